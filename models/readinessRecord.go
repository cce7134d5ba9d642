package models

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// ReadinessRecord holds the canonical indicator values of one survey.
type ReadinessRecord struct {
	ID       int `gorm:"primary_key" json:"id"`
	SurveyId int `gorm:"uniqueIndex;not null" json:"survey_id"`

	HasGBVPolicy            bool   `gorm:"column:has_gbv_policy;default:false" json:"has_gbv_policy"`
	HasICTInfrastructure    bool   `gorm:"column:has_ict_infrastructure;default:false" json:"has_ict_infrastructure"`
	HasCaseManagementSystem bool   `gorm:"default:false" json:"has_case_management_system"`
	HasDataProtectionPolicy bool   `gorm:"default:false" json:"has_data_protection_policy"`
	HasTrainedStaff         bool   `gorm:"default:false" json:"has_trained_staff"`
	NumTrainedStaff         int    `gorm:"default:0" json:"num_trained_staff"`
	HasReferralPathway      bool   `gorm:"default:false" json:"has_referral_pathway"`
	HasReportingMechanism   bool   `gorm:"default:false" json:"has_reporting_mechanism"`
	HasSurvivorSupport      bool   `gorm:"default:false" json:"has_survivor_support"`
	HasMonitoringSystem     bool   `gorm:"default:false" json:"has_monitoring_system"`
	InternetConnectivity    string `gorm:"size:20;default:none" json:"internet_connectivity"`
	HasComputers            bool   `gorm:"default:false" json:"has_computers"`
	NumComputers            int    `gorm:"default:0" json:"num_computers"`
	HasDedicatedGBVBudget   bool   `gorm:"column:has_dedicated_gbv_budget;default:false" json:"has_dedicated_gbv_budget"`
	HasPartnerships         bool   `gorm:"default:false" json:"has_partnerships"`

	RespondentName     *string `gorm:"size:255" json:"respondent_name"`
	RespondentPosition *string `gorm:"size:255" json:"respondent_position"`
	RespondentContact  *string `gorm:"size:255" json:"respondent_contact"`

	ReadinessScore decimal.Decimal `gorm:"type:decimal(5,2)" json:"readiness_score"`
	// UnansweredIndicators is a JSON array of the indicator columns whose false
	// value came from a missing or unrecognized answer.
	UnansweredIndicators datatypes.JSON `json:"unanswered_indicators"`
	RawSubmission        datatypes.JSON `json:"raw_submission"`

	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GetReadinessRecordBySurvey returns nil, nil when the survey has no record.
func GetReadinessRecordBySurvey(ctx context.Context, db *gorm.DB, surveyId int) (*ReadinessRecord, error) {
	var rr ReadinessRecord
	err := db.WithContext(ctx).Where("survey_id = ?", surveyId).Take(&rr).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rr, nil
}

// ReplaceReadinessRecord overwrites every indicator column of the survey's
// record with the values in rr, creating the record if it is missing.
func ReplaceReadinessRecord(ctx context.Context, db *gorm.DB, surveyId int, rr *ReadinessRecord) error {
	existing, err := GetReadinessRecordBySurvey(ctx, db, surveyId)
	if err != nil {
		return err
	}
	rr.SurveyId = surveyId
	if existing == nil {
		return db.WithContext(ctx).Create(rr).Error
	}
	rr.ID = existing.ID
	rr.CreatedAt = existing.CreatedAt
	return db.WithContext(ctx).Model(existing).Select("*").Omit("id", "survey_id", "created_at").Updates(rr).Error
}

// Indicators returns the boolean indicator columns keyed by column name.
func (rr ReadinessRecord) Indicators() map[string]bool {
	return map[string]bool{
		"has_gbv_policy":             rr.HasGBVPolicy,
		"has_ict_infrastructure":     rr.HasICTInfrastructure,
		"has_case_management_system": rr.HasCaseManagementSystem,
		"has_data_protection_policy": rr.HasDataProtectionPolicy,
		"has_trained_staff":          rr.HasTrainedStaff,
		"has_referral_pathway":       rr.HasReferralPathway,
		"has_reporting_mechanism":    rr.HasReportingMechanism,
		"has_survivor_support":       rr.HasSurvivorSupport,
		"has_monitoring_system":      rr.HasMonitoringSystem,
		"has_computers":              rr.HasComputers,
		"has_dedicated_gbv_budget":   rr.HasDedicatedGBVBudget,
		"has_partnerships":           rr.HasPartnerships,
	}
}
