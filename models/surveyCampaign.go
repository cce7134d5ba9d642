package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type SurveyCampaign struct {
	ID                 int       `gorm:"primary_key" json:"id"`
	Name               string    `gorm:"size:255;not null" json:"name"`
	Description        string    `gorm:"type:text" json:"description"`
	KoboAssetUID       string    `gorm:"column:kobo_asset_uid;size:100" json:"kobo_asset_uid"`
	StartDate          time.Time `gorm:"type:date;not null" json:"start_date"`
	EndDate            time.Time `gorm:"type:date;not null" json:"end_date"`
	TargetInstitutions int       `gorm:"default:0" json:"target_institutions"`
	IsActive           *bool     `gorm:"not null;default:true" json:"is_active"`
	CreatedAt          time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetSurveyCampaign returns nil, nil when the campaign does not exist.
func GetSurveyCampaign(ctx context.Context, db *gorm.DB, id int) (*SurveyCampaign, error) {
	var campaign SurveyCampaign
	err := db.WithContext(ctx).Where("id = ?", id).Take(&campaign).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &campaign, nil
}

// ListActiveSurveyCampaigns returns the active campaigns, newest first.
func ListActiveSurveyCampaigns(ctx context.Context, db *gorm.DB) ([]SurveyCampaign, error) {
	var campaigns []SurveyCampaign
	if err := db.WithContext(ctx).Where("is_active = ?", true).Order("start_date desc, id desc").Find(&campaigns).Error; err != nil {
		return nil, err
	}
	return campaigns, nil
}
