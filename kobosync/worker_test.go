package kobosync_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/survey_backend/kobosync"
	"github.com/mmdatafocus/survey_backend/models"
	"github.com/mmdatafocus/survey_backend/submission"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := models.MigrateTable(context.Background(), db); err != nil {
		t.Fatalf("MigrateTable: %v", err)
	}
	return db
}

func createCampaign(t *testing.T, db *gorm.DB, assetUID string) models.SurveyCampaign {
	t.Helper()
	active := true
	campaign := models.SurveyCampaign{
		Name:               "GBV ICT readiness baseline",
		KoboAssetUID:       assetUID,
		StartDate:          time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC),
		TargetInstitutions: 20,
		IsActive:           &active,
	}
	if err := db.Create(&campaign).Error; err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	return campaign
}

func rawSubmission(id any, institution, region string, answers map[string]any) submission.Value {
	m := map[string]any{
		"institution_name": institution,
		"institution_type": "Police",
		"region":           region,
		"_submission_time": "2024-06-03T08:15:00Z",
	}
	if id != nil {
		m["_id"] = id
	}
	for k, v := range answers {
		m[k] = v
	}
	return submission.MustFromAny(m)
}

var regionNames = []string{"Khomas", "Erongo", "Oshana", "Kavango East", "//Karas", "Zambezi", "Hardap", "Kunene", "Omusati"}

func validBatch() []submission.Value {
	subs := make([]submission.Value, 0, len(regionNames))
	for i, region := range regionNames {
		subs = append(subs, rawSubmission(1000+i, fmt.Sprintf("Station %d", i), region, map[string]any{
			"has_gbv_policy": "yes",
			"trained_staff":  "no",
		}))
	}
	return subs
}

func countRows(t *testing.T, db *gorm.DB, model interface{}) int64 {
	t.Helper()
	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestSync_UnknownRegionIsRecordedAndSkipped(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := createCampaign(t, db, "aBc123")
	engine := kobosync.NewEngine(db)

	subs := append(validBatch(), rawSubmission(2000, "Atlantis Clinic", "Atlantis", nil))
	outcome, err := engine.Sync(ctx, campaign.ID, subs)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if outcome.Fetched != 10 || outcome.New != 9 || outcome.Updated != 0 {
		t.Fatalf("expected fetched 10 / new 9 / updated 0, got %+v", outcome)
	}
	if len(outcome.Errors) != 1 || !strings.Contains(outcome.Errors[0], "Unknown region") || !strings.Contains(outcome.Errors[0], "Atlantis") {
		t.Fatalf("expected one unknown region error, got %v", outcome.Errors)
	}
	if outcome.Status != models.SyncLogStatusCompleted {
		t.Fatalf("expected completed status, got %s", outcome.Status)
	}
	if n := countRows(t, db, &models.Survey{}); n != 9 {
		t.Fatalf("expected 9 surveys, got %d", n)
	}
	if n := countRows(t, db, &models.ReadinessRecord{}); n != 9 {
		t.Fatalf("expected 9 readiness records, got %d", n)
	}
	var atlantis int64
	db.Model(&models.Institution{}).Where("name = ?", "Atlantis Clinic").Count(&atlantis)
	if atlantis != 0 {
		t.Fatalf("no institution may be created for an unknown region")
	}

	syncLog, err := models.GetLatestSyncLog(ctx, db, campaign.ID)
	if err != nil || syncLog == nil {
		t.Fatalf("GetLatestSyncLog: %v", err)
	}
	if syncLog.ID != outcome.SyncLogId || syncLog.Status != models.SyncLogStatusCompleted || syncLog.NewCount != 9 || syncLog.ErrorCount != 1 || syncLog.FetchedCount != 10 {
		t.Fatalf("unexpected sync log %+v", syncLog)
	}
	if syncLog.CorrelationId == "" || syncLog.CorrelationId != outcome.CorrelationId {
		t.Fatalf("expected correlation id on sync log, got %q", syncLog.CorrelationId)
	}
}

func TestSync_RerunOnlyUpdates(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := createCampaign(t, db, "aBc123")
	engine := kobosync.NewEngine(db)

	first, err := engine.Sync(ctx, campaign.ID, validBatch())
	if err != nil || first.New != len(regionNames) {
		t.Fatalf("first run: %+v (%v)", first, err)
	}
	before := readinessBySubmission(t, db)

	second, err := engine.Sync(ctx, campaign.ID, validBatch())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.New != 0 || second.Updated != len(regionNames) || len(second.Errors) != 0 {
		t.Fatalf("expected new 0 / updated %d, got %+v", len(regionNames), second)
	}
	after := readinessBySubmission(t, db)
	for id, rr := range before {
		if after[id] != rr {
			t.Fatalf("readiness of %s changed on an identical rerun: %+v -> %+v", id, rr, after[id])
		}
	}
	if n := countRows(t, db, &models.Survey{}); n != int64(len(regionNames)) {
		t.Fatalf("expected %d surveys after rerun, got %d", len(regionNames), n)
	}
}

type readinessSnapshot struct {
	GBVPolicy    bool
	TrainedStaff bool
	Computers    bool
	Score        string
}

func readinessBySubmission(t *testing.T, db *gorm.DB) map[string]readinessSnapshot {
	t.Helper()
	var surveys []models.Survey
	if err := db.Preload("Readiness").Find(&surveys).Error; err != nil {
		t.Fatalf("load surveys: %v", err)
	}
	out := make(map[string]readinessSnapshot, len(surveys))
	for _, s := range surveys {
		if s.Readiness == nil || s.KoboSubmissionId == nil {
			t.Fatalf("survey %d has no readiness record or id", s.ID)
		}
		out[*s.KoboSubmissionId] = readinessSnapshot{
			GBVPolicy:    s.Readiness.HasGBVPolicy,
			TrainedStaff: s.Readiness.HasTrainedStaff,
			Computers:    s.Readiness.HasComputers,
			Score:        s.Readiness.ReadinessScore.StringFixed(1),
		}
	}
	return out
}

func TestSync_ResubmissionPolicies(t *testing.T) {
	corrected := func() []submission.Value {
		return []submission.Value{rawSubmission(1000, "Station 0", "Khomas", map[string]any{
			"has_gbv_policy":      "no",
			"computers_available": "yes",
			"_submission_time":    "2024-07-01T10:00:00Z",
		})}
	}

	cases := []struct {
		name     string
		policy   kobosync.ResubmissionPolicy
		expected readinessSnapshot
	}{
		{"keep-first", kobosync.KeepFirst, readinessSnapshot{GBVPolicy: true, Score: "8.3"}},
		{"overwrite-latest", kobosync.OverwriteLatest, readinessSnapshot{Computers: true, Score: "8.3"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			db := openTestDB(t)
			campaign := createCampaign(t, db, "aBc123")
			engine := kobosync.NewEngine(db, kobosync.WithResubmissionPolicy(tc.policy))

			if _, err := engine.Sync(ctx, campaign.ID, validBatch()[:1]); err != nil {
				t.Fatalf("first run: %v", err)
			}
			outcome, err := engine.Sync(ctx, campaign.ID, corrected())
			if err != nil || outcome.Updated != 1 {
				t.Fatalf("second run: %+v (%v)", outcome, err)
			}
			got := readinessBySubmission(t, db)["1000"]
			if got != tc.expected {
				t.Fatalf("expected %+v, got %+v", tc.expected, got)
			}

			survey, _ := models.GetSurveyByKoboSubmissionId(ctx, db, "1000")
			want := time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC)
			if survey.Status != models.SurveyStatusCompleted || survey.CompletedAt == nil || !survey.CompletedAt.Equal(want) {
				t.Fatalf("expected completed_at %s, got %+v", want, survey.CompletedAt)
			}
		})
	}
}

func TestSync_MissingIdIsSkippedSilently(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := createCampaign(t, db, "aBc123")
	engine := kobosync.NewEngine(db)

	subs := []submission.Value{
		rawSubmission(nil, "Test Form", "Khomas", nil),
		rawSubmission("", "Blank Id", "Khomas", nil),
		rawSubmission(42, "Real Station", "Khomas", nil),
		submission.String("not a submission"),
	}
	outcome, err := engine.Sync(ctx, campaign.ID, subs)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if outcome.New != 1 || outcome.Skipped != 2 {
		t.Fatalf("expected new 1 / skipped 2, got %+v", outcome)
	}
	if len(outcome.Errors) != 1 || !strings.Contains(outcome.Errors[0], "not a mapping") {
		t.Fatalf("expected only the non-mapping row as an error, got %v", outcome.Errors)
	}
}

func TestSync_InstitutionsMatchOnExactName(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := createCampaign(t, db, "aBc123")
	engine := kobosync.NewEngine(db)

	subs := []submission.Value{
		rawSubmission(1, "Katutura Police Station", "Khomas", nil),
		rawSubmission(2, "Katutura Police Station", "Khomas", nil),
		rawSubmission(3, "katutura police station", "Khomas", nil),
		rawSubmission(4, "Katutura Police Station", "Erongo", nil),
	}
	outcome, err := engine.Sync(ctx, campaign.ID, subs)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if outcome.New != 4 || outcome.NewInstitutions != 3 {
		t.Fatalf("expected 4 surveys over 3 institutions, got %+v", outcome)
	}
	if n := countRows(t, db, &models.Institution{}); n != 3 {
		t.Fatalf("case variants and other regions must be distinct institutions, got %d", n)
	}
}

func TestSync_FailedRowDoesNotAbortBatch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := createCampaign(t, db, "aBc123")

	err := db.Callback().Create().Before("gorm:create").Register("test:reject_broken", func(tx *gorm.DB) {
		if inst, ok := tx.Statement.Dest.(*models.Institution); ok && inst.Name == "Broken Station" {
			tx.AddError(errors.New("insert rejected"))
		}
	})
	if err != nil {
		t.Fatalf("register callback: %v", err)
	}

	engine := kobosync.NewEngine(db)
	subs := []submission.Value{
		rawSubmission(1, "Station A", "Khomas", nil),
		rawSubmission(2, "Broken Station", "Khomas", nil),
		rawSubmission(3, "Station B", "Oshana", nil),
	}
	outcome, err := engine.Sync(ctx, campaign.ID, subs)
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if outcome.New != 2 || len(outcome.Errors) != 1 || !strings.Contains(outcome.Errors[0], "insert rejected") {
		t.Fatalf("expected 2 new and the rejected row recorded, got %+v", outcome)
	}
	if n := countRows(t, db, &models.Survey{}); n != 2 {
		t.Fatalf("expected rows around the failure to commit, got %d surveys", n)
	}
}

type fakeSource struct {
	subs   []submission.Value
	err    error
	since  *time.Time
	onCall func()
}

func (f *fakeSource) Submissions(ctx context.Context, assetUID string) ([]submission.Value, error) {
	if f.onCall != nil {
		f.onCall()
	}
	return f.subs, f.err
}

func (f *fakeSource) SubmissionsSince(ctx context.Context, assetUID string, since time.Time) ([]submission.Value, error) {
	f.since = &since
	return f.Submissions(ctx, assetUID)
}

func TestSyncCampaign_FetchFailureMarksLogFailed(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := createCampaign(t, db, "aBc123")

	var notified []kobosync.Outcome
	engine := kobosync.NewEngine(db,
		kobosync.WithSource(&fakeSource{err: &kobosync.APIError{StatusCode: 502, Body: "bad gateway"}}),
		kobosync.WithNotifiers(kobosync.NotifierFunc(func(ctx context.Context, o kobosync.Outcome) error {
			notified = append(notified, o)
			return nil
		})),
	)
	outcome, err := engine.SyncCampaign(ctx, campaign.ID)
	var apiErr *kobosync.APIError
	if !errors.As(err, &apiErr) || apiErr.StatusCode != 502 {
		t.Fatalf("expected the api error to surface, got %v", err)
	}
	if outcome.Status != models.SyncLogStatusFailed || !strings.Contains(outcome.FailureReason, "bad gateway") {
		t.Fatalf("expected failed outcome, got %+v", outcome)
	}
	syncLog, _ := models.GetLatestSyncLog(ctx, db, campaign.ID)
	if syncLog == nil || syncLog.Status != models.SyncLogStatusFailed || syncLog.FailureReason == nil || syncLog.CompletedAt == nil {
		t.Fatalf("expected failed sync log with reason, got %+v", syncLog)
	}
	if len(notified) != 1 || notified[0].Status != models.SyncLogStatusFailed {
		t.Fatalf("expected one failed notification, got %+v", notified)
	}
}

func TestSyncCampaign_BatchFailureRollsBack(t *testing.T) {
	db := openTestDB(t)
	campaign := createCampaign(t, db, "aBc123")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	engine := kobosync.NewEngine(db, kobosync.WithSource(&fakeSource{subs: validBatch(), onCall: cancel}))

	outcome, err := engine.SyncCampaign(ctx, campaign.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if outcome.Status != models.SyncLogStatusFailed || outcome.New != 0 || outcome.Fetched != len(regionNames) {
		t.Fatalf("unexpected outcome %+v", outcome)
	}
	if n := countRows(t, db, &models.Survey{}); n != 0 {
		t.Fatalf("expected nothing persisted, got %d surveys", n)
	}
	syncLog, _ := models.GetLatestSyncLog(context.Background(), db, campaign.ID)
	if syncLog == nil || syncLog.Status != models.SyncLogStatusFailed {
		t.Fatalf("expected failed sync log, got %+v", syncLog)
	}
}

func TestSyncCampaign_Preconditions(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	noAsset := createCampaign(t, db, "  ")
	engine := kobosync.NewEngine(db, kobosync.WithSource(&fakeSource{}))

	if _, err := engine.SyncCampaign(ctx, 9999); !errors.Is(err, kobosync.ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
	if _, err := engine.SyncCampaign(ctx, noAsset.ID); !errors.Is(err, kobosync.ErrNoAssetUID) {
		t.Fatalf("expected ErrNoAssetUID, got %v", err)
	}
	if n := countRows(t, db, &models.SyncLog{}); n != 0 {
		t.Fatalf("rejected campaigns must not leave sync logs, got %d", n)
	}
}

func TestSyncCampaignSince_PassesCutoff(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := createCampaign(t, db, "aBc123")
	source := &fakeSource{subs: validBatch()[:2]}
	engine := kobosync.NewEngine(db, kobosync.WithSource(source))

	since := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	outcome, err := engine.SyncCampaignSince(ctx, campaign.ID, since)
	if err != nil || outcome.New != 2 {
		t.Fatalf("SyncCampaignSince: %+v (%v)", outcome, err)
	}
	if source.since == nil || !source.since.Equal(since) {
		t.Fatalf("expected cutoff %s, got %v", since, source.since)
	}
}

type fakeLocker struct {
	held     map[string]bool
	released int
}

type fakeLock struct {
	l   *fakeLocker
	key string
}

func (l *fakeLocker) Obtain(ctx context.Context, key string, ttl time.Duration) (kobosync.Lock, error) {
	if l.held[key] {
		return nil, kobosync.ErrSyncInProgress
	}
	l.held[key] = true
	return &fakeLock{l: l, key: key}, nil
}

func (f *fakeLock) Release(ctx context.Context) error {
	delete(f.l.held, f.key)
	f.l.released++
	return nil
}

func TestSync_LockPreventsConcurrentRuns(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := createCampaign(t, db, "aBc123")
	locker := &fakeLocker{held: map[string]bool{}}
	engine := kobosync.NewEngine(db, kobosync.WithLocker(locker, time.Minute))

	locker.held[fmt.Sprintf("kobo-sync:campaign:%d", campaign.ID)] = true
	if _, err := engine.Sync(ctx, campaign.ID, validBatch()); !errors.Is(err, kobosync.ErrSyncInProgress) {
		t.Fatalf("expected ErrSyncInProgress, got %v", err)
	}
	if n := countRows(t, db, &models.SyncLog{}); n != 0 {
		t.Fatalf("a locked-out run must not write a sync log, got %d", n)
	}

	locker.held = map[string]bool{}
	if _, err := engine.Sync(ctx, campaign.ID, validBatch()); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if locker.released != 1 || len(locker.held) != 0 {
		t.Fatalf("expected the lock to be released, released=%d held=%v", locker.released, locker.held)
	}
}

func TestParseResubmissionPolicy(t *testing.T) {
	for in, expected := range map[string]kobosync.ResubmissionPolicy{"": kobosync.KeepFirst, "keep-first": kobosync.KeepFirst, " Overwrite-Latest ": kobosync.OverwriteLatest} {
		got, err := kobosync.ParseResubmissionPolicy(in)
		if err != nil || got != expected {
			t.Fatalf("ParseResubmissionPolicy(%q) expected %s, got %s (%v)", in, expected, got, err)
		}
	}
	if _, err := kobosync.ParseResubmissionPolicy("merge"); err == nil {
		t.Fatalf("expected an error for an unknown policy")
	}
}
