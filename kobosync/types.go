package kobosync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/survey_backend/config"
	"github.com/mmdatafocus/survey_backend/models"
	"github.com/mmdatafocus/survey_backend/submission"
)

var (
	ErrSyncInProgress   = errors.New("a sync is already running for this campaign")
	ErrCampaignNotFound = errors.New("campaign not found")
	ErrNoAssetUID       = errors.New("campaign has no kobo asset uid")
)

// ResubmissionPolicy decides what happens to a survey's readiness record when
// its submission id shows up again.
type ResubmissionPolicy string

const (
	// KeepFirst leaves the readiness record as first ingested and only moves
	// the survey to completed.
	KeepFirst ResubmissionPolicy = config.ResubmissionKeepFirst
	// OverwriteLatest replaces the readiness record with the latest answers.
	OverwriteLatest ResubmissionPolicy = config.ResubmissionOverwriteLatest
)

func ParseResubmissionPolicy(s string) (ResubmissionPolicy, error) {
	switch ResubmissionPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", KeepFirst:
		return KeepFirst, nil
	case OverwriteLatest:
		return OverwriteLatest, nil
	}
	return "", fmt.Errorf("unknown resubmission policy %q", s)
}

// UnknownRegionError is recorded when a new submission names a region that is
// not in the regions table.
type UnknownRegionError struct {
	SubmissionID string
	Region       string
}

func (e *UnknownRegionError) Error() string {
	region := e.Region
	if region == "" {
		region = "<empty>"
	}
	return fmt.Sprintf("Unknown region: %s (submission %s)", region, e.SubmissionID)
}

// Outcome summarizes one reconciliation run.
type Outcome struct {
	CampaignId      int                  `json:"campaign_id"`
	SyncLogId       int                  `json:"sync_log_id"`
	CorrelationId   string               `json:"correlation_id"`
	Status          models.SyncLogStatus `json:"status"`
	Fetched         int                  `json:"fetched"`
	New             int                  `json:"new"`
	Updated         int                  `json:"updated"`
	NewInstitutions int                  `json:"new_institutions"`
	// Skipped counts submissions without an id; they are not errors.
	Skipped       int       `json:"skipped"`
	Errors        []string  `json:"errors"`
	FailureReason string    `json:"failure_reason,omitempty"`
	StartedAt     time.Time `json:"started_at"`
	CompletedAt   time.Time `json:"completed_at"`
}

// SubmissionSource fetches raw submissions for a form.
type SubmissionSource interface {
	Submissions(ctx context.Context, assetUID string) ([]submission.Value, error)
	SubmissionsSince(ctx context.Context, assetUID string, since time.Time) ([]submission.Value, error)
}

// Locker serializes syncs of the same campaign.
type Locker interface {
	Obtain(ctx context.Context, key string, ttl time.Duration) (Lock, error)
}

type Lock interface {
	Release(ctx context.Context) error
}

// Notifier is told about every finished run, successful or not.
type Notifier interface {
	Notify(ctx context.Context, outcome Outcome) error
}

type NotifierFunc func(ctx context.Context, outcome Outcome) error

func (f NotifierFunc) Notify(ctx context.Context, outcome Outcome) error {
	return f(ctx, outcome)
}
