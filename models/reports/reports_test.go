package reports_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/survey_backend/indicators"
	"github.com/mmdatafocus/survey_backend/kobosync"
	"github.com/mmdatafocus/survey_backend/models"
	"github.com/mmdatafocus/survey_backend/models/reports"
	"github.com/mmdatafocus/survey_backend/submission"
	"github.com/shopspring/decimal"
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

type fakeCache struct {
	data        map[string][]byte
	gets, hits  int
	invalidated []int
}

func newFakeCache() *fakeCache { return &fakeCache{data: map[string][]byte{}} }

func (c *fakeCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.gets++
	b, ok := c.data[key]
	if !ok {
		return false, nil
	}
	c.hits++
	return true, json.Unmarshal(b, dest)
}

func (c *fakeCache) Set(_ context.Context, key string, value any, _ time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = b
	return nil
}

func (c *fakeCache) Invalidate(_ context.Context, campaignId int) error {
	c.invalidated = append(c.invalidated, campaignId)
	prefix := fmt.Sprintf("survey-summary:campaign:%d:", campaignId)
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			delete(c.data, k)
		}
	}
	return nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// seed syncs three submissions (two in Khomas, one in Erongo) and adds a
// pending survey in Oshana that has no readiness record.
func seed(t *testing.T, db *gorm.DB, notifiers ...kobosync.Notifier) models.SurveyCampaign {
	t.Helper()
	ctx := context.Background()
	active := true
	campaign := models.SurveyCampaign{
		Name:               "GBV ICT readiness baseline",
		KoboAssetUID:       "aXyZ",
		StartDate:          time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		EndDate:            time.Date(2024, 8, 31, 0, 0, 0, 0, time.UTC),
		TargetInstitutions: 20,
		IsActive:           &active,
	}
	if err := db.Create(&campaign).Error; err != nil {
		t.Fatalf("create campaign: %v", err)
	}

	subs := []submission.Value{
		submission.MustFromAny(map[string]any{
			"_id": 1, "_submission_time": "2024-06-03T08:15:00Z",
			"institution_name": "Windhoek Police Station", "region": "Khomas",
			"has_gbv_policy": "yes", "has_cms": "yes", "has_computers": "yes",
			"internet_connectivity": "good", "grp3/q3_2_3": "yes", "grp3/q3_1_1": "yes",
		}),
		submission.MustFromAny(map[string]any{
			"_id": 2, "_submission_time": "2024-06-03T09:00:00Z",
			"institution_name": "Katutura Hospital", "region": "Khomas",
			"has_gbv_policy": "yes", "internet_connectivity": "limited", "grp3/q3_2_3": "no",
		}),
		submission.MustFromAny(map[string]any{
			"_id": 3, "_submission_time": "2024-06-03T10:30:00Z",
			"institution_name": "Walvis Bay Clinic", "region": "Erongo",
			"grp3/q3_2_3": "dk",
		}),
	}
	engine := kobosync.NewEngine(db, kobosync.WithNotifiers(notifiers...))
	outcome, err := engine.Sync(ctx, campaign.ID, subs)
	if err != nil || outcome.New != 3 {
		t.Fatalf("seed sync: %+v (%v)", outcome, err)
	}

	region, _ := models.GetRegionByCode(ctx, db, "ON")
	inst, _, err := models.FindOrCreateInstitution(ctx, db, &models.NewInstitution{Name: "Oshakati Shelter", RegionId: region.ID})
	if err != nil {
		t.Fatalf("FindOrCreateInstitution: %v", err)
	}
	pending := models.Survey{CampaignId: campaign.ID, InstitutionId: inst.ID, Status: models.SurveyStatusPending}
	if err := db.Omit("Readiness", "Campaign", "Institution").Create(&pending).Error; err != nil {
		t.Fatalf("create pending survey: %v", err)
	}
	return campaign
}

func TestNationalSummary(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := seed(t, db)
	svc := reports.NewService(db)

	s, err := svc.NationalSummary(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("NationalSummary: %v", err)
	}
	if s.TotalSurveys != 4 || s.CompletedSurveys != 3 || s.InProgressSurveys != 0 || s.PendingSurveys != 1 {
		t.Fatalf("unexpected counts %+v", s)
	}
	if !s.CompletionRate.Equal(dec("15")) {
		t.Fatalf("expected 15%% of the target of 20, got %s", s.CompletionRate)
	}
	if s.AvgReadinessScore == nil || !s.AvgReadinessScore.Equal(dec("11.1")) {
		t.Fatalf("expected average 11.1, got %v", s.AvgReadinessScore)
	}
	if !s.Adoption.PolicyAdoptionRate.Equal(dec("66.7")) || !s.Adoption.CMSAdoptionRate.Equal(dec("33.3")) ||
		!s.Adoption.StaffTrainingRate.IsZero() || !s.Adoption.ComputerAccessRate.Equal(dec("33.3")) {
		t.Fatalf("unexpected adoption rates %+v", s.Adoption)
	}

	if _, err := svc.NationalSummary(ctx, 999); !errors.Is(err, reports.ErrCampaignNotFound) {
		t.Fatalf("expected ErrCampaignNotFound, got %v", err)
	}
}

func TestRegionalSummary(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := seed(t, db)

	rows, err := reports.NewService(db).RegionalSummary(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("RegionalSummary: %v", err)
	}
	if len(rows) != 14 {
		t.Fatalf("expected every region, got %d", len(rows))
	}
	byCode := map[string]reports.RegionSummary{}
	for _, r := range rows {
		byCode[r.RegionCode] = r
	}

	kh := byCode["KH"]
	if kh.TotalSurveys != 2 || kh.CompletedSurveys != 2 || !kh.CompletionRate.Equal(dec("100")) || kh.InstitutionsAssessed != 2 {
		t.Fatalf("unexpected Khomas row %+v", kh)
	}
	if !kh.AvgReadinessScore.Equal(dec("16.65")) || !kh.PolicyAdoptionPct.Equal(dec("100")) || !kh.CMSAdoptionPct.Equal(dec("50")) {
		t.Fatalf("unexpected Khomas readiness %+v", kh)
	}
	on := byCode["ON"]
	if on.TotalSurveys != 1 || on.CompletedSurveys != 0 || !on.CompletionRate.IsZero() || on.AvgReadinessScore != nil || on.PolicyAdoptionPct != nil {
		t.Fatalf("unexpected Oshana row %+v", on)
	}
	if ke := byCode["KE"]; ke.TotalSurveys != 0 || ke.AvgReadinessScore != nil {
		t.Fatalf("a region without surveys must be empty, got %+v", ke)
	}
}

func TestReadinessSummary(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := seed(t, db)
	svc := reports.NewService(db)

	s, err := svc.ReadinessSummary(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("ReadinessSummary: %v", err)
	}
	if s.TotalAssessed != 3 || !s.Average.Equal(dec("11.1")) || !s.Minimum.IsZero() || !s.Maximum.Equal(dec("25")) {
		t.Fatalf("unexpected scores %+v", s)
	}
	if s.Levels[indicators.LevelLow] != 3 {
		t.Fatalf("expected three low institutions, got %v", s.Levels)
	}
	if got := s.Indicators["has_gbv_policy"]; got.Count != 2 || !got.Pct.Equal(dec("66.7")) {
		t.Fatalf("unexpected policy count %+v", got)
	}
	if s.Connectivity["good"] != 1 || s.Connectivity["limited"] != 1 || s.Connectivity["none"] != 1 || s.Connectivity["excellent"] != 0 {
		t.Fatalf("unexpected connectivity %v", s.Connectivity)
	}

	other := models.SurveyCampaign{Name: "Empty", StartDate: time.Now(), EndDate: time.Now()}
	db.Create(&other)
	if _, err := svc.ReadinessSummary(ctx, other.ID); !errors.Is(err, reports.ErrNoReadinessData) {
		t.Fatalf("expected ErrNoReadinessData, got %v", err)
	}
}

func TestIndicatorReport(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := seed(t, db)

	r, err := reports.NewService(db).IndicatorReport(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("IndicatorReport: %v", err)
	}
	if r.Submissions != 3 {
		t.Fatalf("expected 3 raw submissions, got %d", r.Submissions)
	}

	var network, hr *indicators.CategoryResult
	for i := range r.Categories {
		switch r.Categories[i].Name {
		case indicators.CategoryNetwork:
			network = &r.Categories[i]
		case indicators.CategoryHR:
			hr = &r.Categories[i]
		}
	}
	if network == nil || network.Score == nil || *network.Score != 33.3 {
		t.Fatalf("unexpected network category %+v", network)
	}
	if hr == nil || hr.Score == nil || *hr.Score != 100 || hr.Level != indicators.LevelHigh {
		t.Fatalf("unexpected HR category %+v", hr)
	}

	if len(r.ByGroup) != 2 || r.ByGroup[0].Group != indicators.GroupHealth || r.ByGroup[1].Group != indicators.GroupPolice {
		t.Fatalf("unexpected institution groups %+v", r.ByGroup)
	}
	if r.ByGroup[1].Score == nil || *r.ByGroup[1].Score != 50 || r.ByGroup[1].Level != indicators.LevelMedium {
		t.Fatalf("unexpected police readiness %+v", r.ByGroup[1])
	}
	if len(r.ByRegion) != 2 || r.ByRegion[0].Group != "Erongo" || r.ByRegion[1].Submissions != 2 {
		t.Fatalf("unexpected regions %+v", r.ByRegion)
	}
	if len(r.ByInstitution) != 3 {
		t.Fatalf("expected one row per institution, got %+v", r.ByInstitution)
	}
	if r.QuestionTypes["grp3/q3_2_3"].Type != indicators.TypeCategorical {
		t.Fatalf("yes/no/dk answers are categorical, got %+v", r.QuestionTypes["grp3/q3_2_3"])
	}

	custom, err := reports.NewService(db, reports.WithReadinessKeywords("no_such_question")).IndicatorReport(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("IndicatorReport: %v", err)
	}
	for _, g := range custom.ByRegion {
		if g.Score != nil || g.Level != indicators.LevelUnknown {
			t.Fatalf("expected no score without matching questions, got %+v", g)
		}
	}
}

func TestDailyProgress(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := seed(t, db)
	svc := reports.NewService(db, reports.WithClock(func() time.Time {
		return time.Date(2024, 6, 5, 12, 0, 0, 0, time.UTC)
	}))

	series, err := svc.DailyProgress(ctx, campaign.ID, 3)
	if err != nil {
		t.Fatalf("DailyProgress: %v", err)
	}
	want := []reports.DailyProgress{
		{Date: "2024-06-03", DailyCompleted: 3, CumulativeCompleted: 3},
		{Date: "2024-06-04", DailyCompleted: 0, CumulativeCompleted: 3},
		{Date: "2024-06-05", DailyCompleted: 0, CumulativeCompleted: 3},
	}
	if len(series) != len(want) {
		t.Fatalf("expected %d days, got %+v", len(want), series)
	}
	for i := range want {
		if series[i] != want[i] {
			t.Fatalf("day %d: expected %+v, got %+v", i, want[i], series[i])
		}
	}

	short, _ := svc.DailyProgress(ctx, campaign.ID, 2)
	if len(short) != 2 || short[0].DailyCompleted != 0 || short[0].CumulativeCompleted != 3 {
		t.Fatalf("completions before the window must carry into the cumulative count, got %+v", short)
	}
	if def, _ := svc.DailyProgress(ctx, campaign.ID, 0); len(def) != reports.DefaultProgressDays {
		t.Fatalf("expected the default window, got %d days", len(def))
	}
}

func TestSyncStatus(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	campaign := seed(t, db)
	svc := reports.NewService(db)

	status, err := svc.SyncStatus(ctx, campaign.ID)
	if err != nil || status == nil {
		t.Fatalf("SyncStatus: %+v (%v)", status, err)
	}
	if status.Status != string(models.SyncLogStatusCompleted) || status.Fetched != 3 || status.New != 3 || status.ErrorCount != 0 || status.CompletedAt == nil {
		t.Fatalf("unexpected status %+v", status)
	}
	none, err := svc.SyncStatus(ctx, 999)
	if err != nil || none != nil {
		t.Fatalf("expected nil, nil for a campaign without syncs, got %+v (%v)", none, err)
	}

	if _, err := kobosync.NewEngine(db).Sync(ctx, campaign.ID, nil); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	history, err := svc.SyncHistory(ctx, campaign.ID, 10)
	if err != nil {
		t.Fatalf("SyncHistory: %v", err)
	}
	if len(history) != 2 || history[0].Fetched != 0 || history[1].SyncId != status.SyncId {
		t.Fatalf("expected the empty run first then the seeded one, got %+v", history)
	}
}

func TestSummariesAreCachedUntilTheNextSync(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	cache := newFakeCache()
	svc := reports.NewService(db, reports.WithCache(cache, time.Minute))
	invalidate := kobosync.NotifierFunc(func(ctx context.Context, o kobosync.Outcome) error {
		return svc.Invalidate(ctx, o.CampaignId)
	})
	campaign := seed(t, db, invalidate)
	if len(cache.invalidated) != 1 || cache.invalidated[0] != campaign.ID {
		t.Fatalf("expected the sync to invalidate the campaign, got %v", cache.invalidated)
	}

	first, err := svc.NationalSummary(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("NationalSummary: %v", err)
	}
	second, err := svc.NationalSummary(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("NationalSummary: %v", err)
	}
	if cache.hits != 1 || second.TotalSurveys != first.TotalSurveys || !second.CompletionRate.Equal(first.CompletionRate) {
		t.Fatalf("expected the second call to be served from cache, hits=%d %+v", cache.hits, second)
	}

	engine := kobosync.NewEngine(db, kobosync.WithNotifiers(invalidate))
	extra := submission.MustFromAny(map[string]any{
		"_id": 4, "_submission_time": "2024-06-04T08:00:00Z", "institution_name": "Rundu Police", "region": "Kavango East",
	})
	if _, err := engine.Sync(ctx, campaign.ID, []submission.Value{extra}); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	third, err := svc.NationalSummary(ctx, campaign.ID)
	if err != nil {
		t.Fatalf("NationalSummary: %v", err)
	}
	if third.TotalSurveys != 5 || cache.hits != 1 {
		t.Fatalf("expected a fresh summary after the sync, got %+v (hits %d)", third, cache.hits)
	}
}
