package models

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

// Survey is one institution's response to a campaign. KoboSubmissionId is the
// natural key used by the sync engine; at most one survey exists per id.
type Survey struct {
	ID               int              `gorm:"primary_key" json:"id"`
	CampaignId       int              `gorm:"index;not null" json:"campaign_id"`
	Campaign         *SurveyCampaign  `gorm:"foreignKey:CampaignId" json:"campaign,omitempty"`
	InstitutionId    int              `gorm:"index;not null" json:"institution_id"`
	Institution      *Institution     `gorm:"foreignKey:InstitutionId" json:"institution,omitempty"`
	Status           SurveyStatus     `gorm:"size:20;not null;default:pending" json:"status"`
	KoboSubmissionId *string          `gorm:"uniqueIndex;size:100" json:"kobo_submission_id"`
	SubmittedAt      *time.Time       `json:"submitted_at"`
	CompletedAt      *time.Time       `json:"completed_at"`
	Readiness        *ReadinessRecord `gorm:"foreignKey:SurveyId" json:"readiness,omitempty"`
	CreatedAt        time.Time        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetSurveyByKoboSubmissionId returns nil, nil when no survey carries the id.
func GetSurveyByKoboSubmissionId(ctx context.Context, db *gorm.DB, submissionId string) (*Survey, error) {
	var survey Survey
	err := db.WithContext(ctx).Where("kobo_submission_id = ?", submissionId).Take(&survey).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &survey, nil
}

// CreateSurveyWithReadiness inserts the survey and its readiness record as a
// pair. Callers run it inside their own transaction.
func CreateSurveyWithReadiness(ctx context.Context, db *gorm.DB, survey *Survey, readiness *ReadinessRecord) error {
	tx := db.WithContext(ctx)
	if err := tx.Omit("Readiness", "Campaign", "Institution").Create(survey).Error; err != nil {
		return err
	}
	readiness.SurveyId = survey.ID
	if err := tx.Create(readiness).Error; err != nil {
		return err
	}
	survey.Readiness = readiness
	return nil
}

// MarkSurveyCompleted moves an existing survey to completed with the given
// completion time.
func MarkSurveyCompleted(ctx context.Context, db *gorm.DB, survey *Survey, completedAt time.Time) error {
	if err := db.WithContext(ctx).Model(survey).Updates(map[string]interface{}{
		"status":       SurveyStatusCompleted,
		"completed_at": completedAt,
	}).Error; err != nil {
		return err
	}
	survey.Status = SurveyStatusCompleted
	survey.CompletedAt = &completedAt
	return nil
}

// ListCampaignSurveys returns the campaign's surveys with institution, region
// and readiness preloaded.
func ListCampaignSurveys(ctx context.Context, db *gorm.DB, campaignId int) ([]Survey, error) {
	var surveys []Survey
	err := db.WithContext(ctx).
		Preload("Institution.Region").
		Preload("Readiness").
		Where("campaign_id = ?", campaignId).
		Order("id").
		Find(&surveys).Error
	if err != nil {
		return nil, err
	}
	return surveys, nil
}
