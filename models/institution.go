package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Institution is matched on the exact (name, region_id) pair. There is no
// normalized-name key, so "Oshakati Hospital" and "oshakati hospital" are two
// rows.
type Institution struct {
	ID            int               `gorm:"primary_key" json:"id"`
	Name          string            `gorm:"index:idx_institution_name_region;size:255;not null" json:"name"`
	Type          string            `gorm:"size:100" json:"type"`
	Sector        InstitutionSector `gorm:"size:20;not null;default:other" json:"sector"`
	RegionId      int               `gorm:"index:idx_institution_name_region;not null" json:"region_id"`
	Region        *Region           `gorm:"foreignKey:RegionId" json:"region,omitempty"`
	Address       *string           `gorm:"type:text" json:"address"`
	ContactPerson *string           `gorm:"size:255" json:"contact_person"`
	ContactEmail  *string           `gorm:"size:255" json:"contact_email"`
	ContactPhone  *string           `gorm:"size:50" json:"contact_phone"`
	CreatedAt     time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time         `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewInstitution struct {
	Name          string
	Type          string
	Sector        InstitutionSector
	RegionId      int
	ContactPerson *string
	ContactEmail  *string
	ContactPhone  *string
}

// FindInstitution returns nil, nil when the pair is unknown.
func FindInstitution(ctx context.Context, db *gorm.DB, name string, regionId int) (*Institution, error) {
	var inst Institution
	err := db.WithContext(ctx).Where("name = ? AND region_id = ?", name, regionId).Take(&inst).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &inst, nil
}

// FindOrCreateInstitution looks the institution up by (name, region_id) and
// inserts it when absent. The insert is flushed immediately so the returned id
// can be referenced by the caller. The bool reports whether a row was created.
func FindOrCreateInstitution(ctx context.Context, db *gorm.DB, input *NewInstitution) (*Institution, bool, error) {
	existing, err := FindInstitution(ctx, db, input.Name, input.RegionId)
	if err != nil {
		return nil, false, err
	}
	if existing != nil {
		return existing, false, nil
	}

	sector := input.Sector
	if !sector.IsValid() {
		sector = InstitutionSectorOther
	}
	inst := Institution{
		Name:          input.Name,
		Type:          input.Type,
		Sector:        sector,
		RegionId:      input.RegionId,
		ContactPerson: input.ContactPerson,
		ContactEmail:  input.ContactEmail,
		ContactPhone:  input.ContactPhone,
	}
	if err := db.WithContext(ctx).Create(&inst).Error; err != nil {
		return nil, false, err
	}
	return &inst, true, nil
}
