package models

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// MaxSyncLogErrors bounds how many error messages a sync log keeps.
const MaxSyncLogErrors = 50

// SyncLog is the audit row of one reconciliation run. It is written at the
// start of the run and finalized once at the end.
type SyncLog struct {
	ID            int            `gorm:"primary_key" json:"id"`
	CampaignId    int            `gorm:"index;not null" json:"campaign_id"`
	CorrelationId string         `gorm:"size:36" json:"correlation_id"`
	StartedAt     time.Time      `gorm:"not null" json:"started_at"`
	CompletedAt   *time.Time     `json:"completed_at"`
	FetchedCount  int            `gorm:"default:0" json:"fetched_count"`
	NewCount      int            `gorm:"default:0" json:"new_count"`
	UpdatedCount  int            `gorm:"default:0" json:"updated_count"`
	ErrorCount    int            `gorm:"default:0" json:"error_count"`
	ErrorDetails  datatypes.JSON `json:"error_details"`
	FailureReason *string        `gorm:"type:text" json:"failure_reason"`
	Status        SyncLogStatus  `gorm:"size:20;not null;default:running" json:"status"`
	CreatedAt     time.Time      `gorm:"autoCreateTime" json:"created_at"`
}

type SyncLogResult struct {
	Status        SyncLogStatus
	FetchedCount  int
	NewCount      int
	UpdatedCount  int
	Errors        []string
	FailureReason string
}

func StartSyncLog(ctx context.Context, db *gorm.DB, campaignId int, correlationId string, startedAt time.Time) (*SyncLog, error) {
	syncLog := SyncLog{
		CampaignId:    campaignId,
		CorrelationId: correlationId,
		StartedAt:     startedAt,
		Status:        SyncLogStatusRunning,
	}
	if err := db.WithContext(ctx).Create(&syncLog).Error; err != nil {
		return nil, err
	}
	return &syncLog, nil
}

// FinishSyncLog writes the final counters and status. ErrorCount keeps the
// full number of errors while ErrorDetails stores at most MaxSyncLogErrors.
func FinishSyncLog(ctx context.Context, db *gorm.DB, syncLog *SyncLog, result SyncLogResult, completedAt time.Time) error {
	details := result.Errors
	if len(details) > MaxSyncLogErrors {
		details = details[:MaxSyncLogErrors]
	}
	if details == nil {
		details = []string{}
	}
	detailsJSON, err := json.Marshal(details)
	if err != nil {
		return err
	}

	var reason *string
	if result.FailureReason != "" {
		r := result.FailureReason
		reason = &r
	}

	if err := db.WithContext(ctx).Model(syncLog).Updates(map[string]interface{}{
		"status":         result.Status,
		"completed_at":   completedAt,
		"fetched_count":  result.FetchedCount,
		"new_count":      result.NewCount,
		"updated_count":  result.UpdatedCount,
		"error_count":    len(result.Errors),
		"error_details":  datatypes.JSON(detailsJSON),
		"failure_reason": reason,
	}).Error; err != nil {
		return err
	}
	syncLog.Status = result.Status
	syncLog.CompletedAt = &completedAt
	syncLog.FetchedCount = result.FetchedCount
	syncLog.NewCount = result.NewCount
	syncLog.UpdatedCount = result.UpdatedCount
	syncLog.ErrorCount = len(result.Errors)
	syncLog.ErrorDetails = detailsJSON
	syncLog.FailureReason = reason
	return nil
}

// ErrorMessages decodes ErrorDetails.
func (l SyncLog) ErrorMessages() []string {
	var messages []string
	if len(l.ErrorDetails) == 0 {
		return messages
	}
	_ = json.Unmarshal(l.ErrorDetails, &messages)
	return messages
}

// GetLatestSyncLog returns nil, nil when the campaign was never synced.
func GetLatestSyncLog(ctx context.Context, db *gorm.DB, campaignId int) (*SyncLog, error) {
	var syncLog SyncLog
	err := db.WithContext(ctx).Where("campaign_id = ?", campaignId).Order("started_at desc, id desc").Take(&syncLog).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &syncLog, nil
}

func ListSyncLogs(ctx context.Context, db *gorm.DB, campaignId int, limit int) ([]SyncLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var logs []SyncLog
	if err := db.WithContext(ctx).Where("campaign_id = ?", campaignId).Order("id desc").Limit(limit).Find(&logs).Error; err != nil {
		return nil, err
	}
	return logs, nil
}
