package reports

import (
	"context"
	"time"

	"github.com/mmdatafocus/survey_backend/indicators"
	"github.com/mmdatafocus/survey_backend/models"
)

const DefaultProgressDays = 30

type DailyProgress struct {
	Date                string `json:"date"`
	DailyCompleted      int    `json:"daily_completed"`
	CumulativeCompleted int    `json:"cumulative_completed"`
}

// DailyProgress counts completed surveys per Namibian calendar day over the
// last days days, today included. Days without completions are listed with
// zero so the series is continuous. The cumulative count starts with every
// completion before the window.
func (s *Service) DailyProgress(ctx context.Context, campaignId int, days int) ([]DailyProgress, error) {
	if days <= 0 {
		days = DefaultProgressDays
	}
	surveys, err := models.ListCampaignSurveys(ctx, s.db, campaignId)
	if err != nil {
		return nil, err
	}

	today := dayOf(s.now())
	first := today.AddDate(0, 0, -(days - 1))
	perDay := make(map[string]int)
	before := 0
	for _, sv := range surveys {
		if sv.Status != models.SurveyStatusCompleted || sv.CompletedAt == nil {
			continue
		}
		day := dayOf(*sv.CompletedAt)
		if day.Before(first) {
			before++
			continue
		}
		perDay[day.Format(time.DateOnly)]++
	}

	out := make([]DailyProgress, 0, days)
	cumulative := before
	for d := first; !d.After(today); d = d.AddDate(0, 0, 1) {
		key := d.Format(time.DateOnly)
		cumulative += perDay[key]
		out = append(out, DailyProgress{Date: key, DailyCompleted: perDay[key], CumulativeCompleted: cumulative})
	}
	return out, nil
}

func dayOf(t time.Time) time.Time {
	local := t.In(indicators.Namibia)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, indicators.Namibia)
}

type SyncStatus struct {
	SyncId        int        `json:"sync_id"`
	CorrelationId string     `json:"correlation_id"`
	Status        string     `json:"status"`
	StartedAt     time.Time  `json:"started_at"`
	CompletedAt   *time.Time `json:"completed_at"`
	Fetched       int        `json:"submissions_fetched"`
	New           int        `json:"new_records"`
	Updated       int        `json:"updated_records"`
	ErrorCount    int        `json:"errors_count"`
	Errors        []string   `json:"errors"`
	FailureReason *string    `json:"failure_reason,omitempty"`
}

// SyncStatus describes the latest sync run of the campaign, or nil when it
// was never synced. It is not cached so a running sync is visible at once.
func (s *Service) SyncStatus(ctx context.Context, campaignId int) (*SyncStatus, error) {
	log, err := models.GetLatestSyncLog(ctx, s.db, campaignId)
	if err != nil || log == nil {
		return nil, err
	}
	status := syncStatusOf(*log)
	return &status, nil
}

// SyncHistory lists the most recent sync runs of the campaign, newest first.
func (s *Service) SyncHistory(ctx context.Context, campaignId int, limit int) ([]SyncStatus, error) {
	logs, err := models.ListSyncLogs(ctx, s.db, campaignId, limit)
	if err != nil {
		return nil, err
	}
	out := make([]SyncStatus, 0, len(logs))
	for _, log := range logs {
		out = append(out, syncStatusOf(log))
	}
	return out, nil
}

func syncStatusOf(log models.SyncLog) SyncStatus {
	return SyncStatus{
		SyncId:        log.ID,
		CorrelationId: log.CorrelationId,
		Status:        string(log.Status),
		StartedAt:     log.StartedAt,
		CompletedAt:   log.CompletedAt,
		Fetched:       log.FetchedCount,
		New:           log.NewCount,
		Updated:       log.UpdatedCount,
		ErrorCount:    log.ErrorCount,
		Errors:        log.ErrorMessages(),
		FailureReason: log.FailureReason,
	}
}
