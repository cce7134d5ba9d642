package kobosync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/survey_backend/config"
	"github.com/mmdatafocus/survey_backend/models"
	"github.com/mmdatafocus/survey_backend/submission"
	"github.com/mmdatafocus/survey_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const moduleName = "kobosync"

// Engine reconciles raw submissions into institutions, surveys and readiness
// records.
type Engine struct {
	db          *gorm.DB
	transformer *submission.Transformer
	source      SubmissionSource
	policy      ResubmissionPolicy
	locker      Locker
	lockTTL     time.Duration
	notifiers   []Notifier
	logger      *logrus.Logger
	now         func() time.Time
}

type Option func(*Engine)

func WithTransformer(t *submission.Transformer) Option {
	return func(e *Engine) { e.transformer = t }
}

func WithSource(s SubmissionSource) Option {
	return func(e *Engine) { e.source = s }
}

func WithResubmissionPolicy(p ResubmissionPolicy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithLocker guards each campaign with a lock held for at most ttl.
func WithLocker(l Locker, ttl time.Duration) Option {
	return func(e *Engine) {
		e.locker = l
		e.lockTTL = ttl
	}
}

func WithNotifiers(n ...Notifier) Option {
	return func(e *Engine) { e.notifiers = append(e.notifiers, n...) }
}

func WithLogger(l *logrus.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

func WithNow(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(db *gorm.DB, opts ...Option) *Engine {
	e := &Engine{
		db:      db,
		policy:  KeepFirst,
		lockTTL: 10 * time.Minute,
		logger:  config.GetLogger(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.transformer == nil {
		e.transformer = submission.NewDefaultTransformer()
	}
	return e
}

type fetchFunc func(ctx context.Context) ([]submission.Value, error)

// Sync reconciles submissions that were already fetched.
//
// Per-submission problems (unknown region, a failing insert) are recorded in
// Outcome.Errors and the run continues. A batch-level failure rolls back every
// change of the run, marks the sync log failed and is returned as an error
// alongside the failed Outcome.
func (e *Engine) Sync(ctx context.Context, campaignId int, subs []submission.Value) (Outcome, error) {
	return e.run(ctx, campaignId, func(context.Context) ([]submission.Value, error) {
		return subs, nil
	})
}

// SyncCampaign fetches every submission of the campaign's form and
// reconciles it.
func (e *Engine) SyncCampaign(ctx context.Context, campaignId int) (Outcome, error) {
	return e.syncCampaign(ctx, campaignId, nil)
}

// SyncCampaignSince only fetches submissions made at or after since.
func (e *Engine) SyncCampaignSince(ctx context.Context, campaignId int, since time.Time) (Outcome, error) {
	return e.syncCampaign(ctx, campaignId, &since)
}

func (e *Engine) syncCampaign(ctx context.Context, campaignId int, since *time.Time) (Outcome, error) {
	if e.source == nil {
		return Outcome{}, errors.New("kobosync: no submission source configured")
	}
	campaign, err := models.GetSurveyCampaign(ctx, e.db, campaignId)
	if err != nil {
		return Outcome{}, err
	}
	if campaign == nil {
		return Outcome{}, ErrCampaignNotFound
	}
	assetUID := strings.TrimSpace(campaign.KoboAssetUID)
	if assetUID == "" {
		return Outcome{}, ErrNoAssetUID
	}

	return e.run(ctx, campaignId, func(ctx context.Context) ([]submission.Value, error) {
		if since != nil {
			return e.source.SubmissionsSince(ctx, assetUID, *since)
		}
		return e.source.Submissions(ctx, assetUID)
	})
}

func (e *Engine) run(ctx context.Context, campaignId int, fetch fetchFunc) (Outcome, error) {
	ctx, correlationId := utils.EnsureCorrelationId(ctx)
	ctx = utils.SetCampaignIdInContext(ctx, campaignId)

	if e.locker != nil {
		lock, err := e.locker.Obtain(ctx, lockKey(campaignId), e.lockTTL)
		if err != nil {
			return Outcome{}, err
		}
		defer func() {
			if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
				config.LogError(e.logger, moduleName, "run", "release lock", campaignId, err)
			}
		}()
	}

	outcome := Outcome{
		CampaignId:    campaignId,
		CorrelationId: correlationId,
		Status:        models.SyncLogStatusRunning,
		Errors:        []string{},
		StartedAt:     e.now().UTC(),
	}

	// The sync log is written outside the run's transaction so it survives a
	// rollback.
	syncLog, err := models.StartSyncLog(ctx, e.db, campaignId, correlationId, outcome.StartedAt)
	if err != nil {
		return outcome, fmt.Errorf("start sync log: %w", err)
	}
	outcome.SyncLogId = syncLog.ID
	ctx = utils.SetSyncLogIdInContext(ctx, syncLog.ID)
	triggeredBy, _ := utils.GetTriggeredByFromContext(ctx)
	e.logger.WithFields(logrus.Fields{
		"module":         moduleName,
		"campaign_id":    campaignId,
		"sync_log_id":    syncLog.ID,
		"correlation_id": correlationId,
		"triggered_by":   triggeredBy,
	}).Info("kobo sync started")

	subs, err := fetch(ctx)
	if err != nil {
		return e.fail(ctx, syncLog, outcome, fmt.Errorf("fetch submissions: %w", err))
	}
	outcome.Fetched = len(subs)

	rowOutcome := outcome
	err = e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i, raw := range subs {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := e.reconcile(ctx, tx, campaignId, i, raw, &rowOutcome); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		// Everything written by the rows was rolled back with the transaction.
		outcome.Errors = rowOutcome.Errors
		return e.fail(ctx, syncLog, outcome, err)
	}
	outcome = rowOutcome
	outcome.Status = models.SyncLogStatusCompleted
	outcome.CompletedAt = e.now().UTC()

	if err := models.FinishSyncLog(ctx, e.db, syncLog, e.logResult(outcome), outcome.CompletedAt); err != nil {
		return outcome, fmt.Errorf("finish sync log: %w", err)
	}
	e.logFinished(outcome)
	e.notify(ctx, outcome)
	return outcome, nil
}

func (e *Engine) fail(ctx context.Context, syncLog *models.SyncLog, outcome Outcome, cause error) (Outcome, error) {
	outcome.Status = models.SyncLogStatusFailed
	outcome.New = 0
	outcome.Updated = 0
	outcome.NewInstitutions = 0
	outcome.FailureReason = cause.Error()
	outcome.CompletedAt = e.now().UTC()

	config.LogError(e.logger, moduleName, "run", "batch failed", map[string]interface{}{
		"campaign_id":    outcome.CampaignId,
		"sync_log_id":    outcome.SyncLogId,
		"correlation_id": outcome.CorrelationId,
	}, cause)

	// The caller's context may be the reason we failed; the log must still be
	// finalized.
	finishCtx := context.WithoutCancel(ctx)
	if err := models.FinishSyncLog(finishCtx, e.db, syncLog, e.logResult(outcome), outcome.CompletedAt); err != nil {
		config.LogError(e.logger, moduleName, "fail", "finish sync log", outcome.SyncLogId, err)
	}
	e.notify(finishCtx, outcome)
	return outcome, cause
}

func (e *Engine) logResult(outcome Outcome) models.SyncLogResult {
	return models.SyncLogResult{
		Status:        outcome.Status,
		FetchedCount:  outcome.Fetched,
		NewCount:      outcome.New,
		UpdatedCount:  outcome.Updated,
		Errors:        outcome.Errors,
		FailureReason: outcome.FailureReason,
	}
}

type rowResult int

const (
	rowNew rowResult = iota + 1
	rowUpdated
)

// reconcile handles one submission. Row problems are appended to outcome and
// swallowed; only an error that leaves the transaction unusable is returned.
func (e *Engine) reconcile(ctx context.Context, tx *gorm.DB, campaignId int, index int, raw submission.Value, outcome *Outcome) error {
	rec, err := e.transformer.Transform(raw)
	if err != nil {
		e.rowError(ctx, outcome, "", fmt.Sprintf("Error processing submission #%d: %v", index, err))
		return nil
	}
	if rec.SubmissionID == "" {
		outcome.Skipped++
		return nil
	}

	var (
		result         rowResult
		newInstitution bool
	)
	// A nested transaction runs under a SAVEPOINT, so a failed row is rolled
	// back alone and the rows before it survive.
	err = tx.Transaction(func(rowTx *gorm.DB) error {
		var err error
		result, newInstitution, err = e.apply(ctx, rowTx, campaignId, rec)
		return err
	})
	if err != nil {
		var unknownRegion *UnknownRegionError
		if errors.As(err, &unknownRegion) {
			e.rowError(ctx, outcome, rec.SubmissionID, err.Error())
			return nil
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		e.rowError(ctx, outcome, rec.SubmissionID, fmt.Sprintf("Error processing submission %s: %v", rec.SubmissionID, err))
		return nil
	}

	switch result {
	case rowNew:
		outcome.New++
	case rowUpdated:
		outcome.Updated++
	}
	if newInstitution {
		outcome.NewInstitutions++
	}
	return nil
}

func (e *Engine) apply(ctx context.Context, tx *gorm.DB, campaignId int, rec submission.Record) (rowResult, bool, error) {
	existing, err := models.GetSurveyByKoboSubmissionId(ctx, tx, rec.SubmissionID)
	if err != nil {
		return 0, false, err
	}
	if existing != nil {
		if err := models.MarkSurveyCompleted(ctx, tx, existing, rec.SubmittedAt); err != nil {
			return 0, false, err
		}
		if e.policy == OverwriteLatest {
			readiness, err := readinessFromRecord(rec)
			if err != nil {
				return 0, false, err
			}
			if err := models.ReplaceReadinessRecord(ctx, tx, existing.ID, readiness); err != nil {
				return 0, false, err
			}
		}
		return rowUpdated, false, nil
	}

	var region *models.Region
	if rec.RegionCode != "" {
		region, err = models.GetRegionByCode(ctx, tx, rec.RegionCode)
		if err != nil {
			return 0, false, err
		}
	}
	if region == nil {
		return 0, false, &UnknownRegionError{SubmissionID: rec.SubmissionID, Region: rec.RegionName}
	}

	institution, created, err := models.FindOrCreateInstitution(ctx, tx, institutionFromRecord(rec, region.ID))
	if err != nil {
		return 0, false, err
	}

	submissionId := rec.SubmissionID
	completedAt := rec.SubmittedAt
	survey := models.Survey{
		CampaignId:       campaignId,
		InstitutionId:    institution.ID,
		Status:           models.SurveyStatusCompleted,
		KoboSubmissionId: &submissionId,
		CompletedAt:      &completedAt,
	}
	if rec.SubmittedAtParsed {
		submittedAt := rec.SubmittedAt
		survey.SubmittedAt = &submittedAt
	}
	readiness, err := readinessFromRecord(rec)
	if err != nil {
		return 0, false, err
	}
	if err := models.CreateSurveyWithReadiness(ctx, tx, &survey, readiness); err != nil {
		return 0, false, err
	}
	return rowNew, created, nil
}

func (e *Engine) rowError(ctx context.Context, outcome *Outcome, submissionId string, message string) {
	outcome.Errors = append(outcome.Errors, message)
	campaignId, _ := utils.GetCampaignIdFromContext(ctx)
	syncLogId, _ := utils.GetSyncLogIdFromContext(ctx)
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	e.logger.WithFields(logrus.Fields{
		"module":         moduleName,
		"campaign_id":    campaignId,
		"sync_log_id":    syncLogId,
		"correlation_id": correlationId,
		"submission_id":  submissionId,
	}).Warn(message)
}

func (e *Engine) logFinished(outcome Outcome) {
	e.logger.WithFields(logrus.Fields{
		"module":         moduleName,
		"campaign_id":    outcome.CampaignId,
		"sync_log_id":    outcome.SyncLogId,
		"correlation_id": outcome.CorrelationId,
		"fetched":        outcome.Fetched,
		"new":            outcome.New,
		"updated":        outcome.Updated,
		"skipped":        outcome.Skipped,
		"errors":         len(outcome.Errors),
	}).Info("kobo sync finished")
}

func (e *Engine) notify(ctx context.Context, outcome Outcome) {
	for _, n := range e.notifiers {
		if err := n.Notify(ctx, outcome); err != nil {
			config.LogError(e.logger, moduleName, "notify", "notifier failed", outcome.SyncLogId, err)
		}
	}
}

func institutionFromRecord(rec submission.Record, regionId int) *models.NewInstitution {
	input := &models.NewInstitution{
		Name:          rec.InstitutionName,
		Type:          rec.InstitutionType,
		Sector:        models.InstitutionSector(rec.Sector),
		RegionId:      regionId,
		ContactPerson: rec.RespondentName,
	}
	if rec.RespondentContact != nil {
		contact := *rec.RespondentContact
		if strings.Contains(contact, "@") {
			input.ContactEmail = &contact
		} else {
			input.ContactPhone = &contact
		}
	}
	return input
}

func readinessFromRecord(rec submission.Record) (*models.ReadinessRecord, error) {
	raw, err := json.Marshal(rec.Raw)
	if err != nil {
		return nil, fmt.Errorf("encode raw submission: %w", err)
	}
	unanswered := rec.UnansweredIndicators
	if unanswered == nil {
		unanswered = []string{}
	}
	unansweredJSON, err := json.Marshal(unanswered)
	if err != nil {
		return nil, err
	}
	return &models.ReadinessRecord{
		HasGBVPolicy:            rec.HasGBVPolicy,
		HasICTInfrastructure:    rec.HasICTInfrastructure,
		HasCaseManagementSystem: rec.HasCaseManagementSystem,
		HasDataProtectionPolicy: rec.HasDataProtectionPolicy,
		HasTrainedStaff:         rec.HasTrainedStaff,
		NumTrainedStaff:         rec.NumTrainedStaff,
		HasReferralPathway:      rec.HasReferralPathway,
		HasReportingMechanism:   rec.HasReportingMechanism,
		HasSurvivorSupport:      rec.HasSurvivorSupport,
		HasMonitoringSystem:     rec.HasMonitoringSystem,
		InternetConnectivity:    rec.InternetConnectivity,
		HasComputers:            rec.HasComputers,
		NumComputers:            rec.NumComputers,
		HasDedicatedGBVBudget:   rec.HasDedicatedGBVBudget,
		HasPartnerships:         rec.HasPartnerships,
		RespondentName:          rec.RespondentName,
		RespondentPosition:      rec.RespondentPosition,
		RespondentContact:       rec.RespondentContact,
		ReadinessScore:          decimal.NewFromFloat(rec.ReadinessScore()).Round(2),
		UnansweredIndicators:    datatypes.JSON(unansweredJSON),
		RawSubmission:           datatypes.JSON(raw),
	}, nil
}
