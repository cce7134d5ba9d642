package models_test

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/survey_backend/models"
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

func TestSeedRegions_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	if err := models.SeedRegions(ctx, db); err != nil {
		t.Fatalf("SeedRegions: %v", err)
	}
	regions, err := models.ListRegions(ctx, db)
	if err != nil {
		t.Fatalf("ListRegions: %v", err)
	}
	if len(regions) != 14 {
		t.Fatalf("expected 14 regions, got %d", len(regions))
	}
	region, err := models.GetRegionByCode(ctx, db, "ke")
	if err != nil || region == nil || region.Name != "Kavango East" {
		t.Fatalf("expected Kavango East, got %+v (%v)", region, err)
	}
	missing, err := models.GetRegionByCode(ctx, db, "ZZ")
	if err != nil || missing != nil {
		t.Fatalf("expected nil, nil for unknown code, got %+v (%v)", missing, err)
	}
}

func TestFindOrCreateInstitution_ExactNameMatch(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	region, _ := models.GetRegionByCode(ctx, db, "ON")

	first, created, err := models.FindOrCreateInstitution(ctx, db, &models.NewInstitution{Name: "Oshakati Hospital", RegionId: region.ID, Sector: models.InstitutionSectorHealth})
	if err != nil || !created || first.ID == 0 {
		t.Fatalf("expected a created institution, got %+v created=%v err=%v", first, created, err)
	}
	again, created, err := models.FindOrCreateInstitution(ctx, db, &models.NewInstitution{Name: "Oshakati Hospital", RegionId: region.ID})
	if err != nil || created || again.ID != first.ID {
		t.Fatalf("expected the existing row, got %+v created=%v err=%v", again, created, err)
	}
	variant, created, err := models.FindOrCreateInstitution(ctx, db, &models.NewInstitution{Name: "oshakati hospital", RegionId: region.ID, Sector: "hospitalish"})
	if err != nil || !created || variant.ID == first.ID {
		t.Fatalf("a case variant must create a distinct row, got %+v created=%v err=%v", variant, created, err)
	}
	if variant.Sector != models.InstitutionSectorOther {
		t.Fatalf("unknown sector must fall back to other, got %s", variant.Sector)
	}
}

func TestSurveyLifecycle(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	active := true
	campaign := models.SurveyCampaign{Name: "Baseline", KoboAssetUID: "aX1", StartDate: time.Now(), EndDate: time.Now(), IsActive: &active}
	if err := db.Create(&campaign).Error; err != nil {
		t.Fatalf("create campaign: %v", err)
	}
	region, _ := models.GetRegionByCode(ctx, db, "KH")
	inst, _, _ := models.FindOrCreateInstitution(ctx, db, &models.NewInstitution{Name: "Windhoek Police", RegionId: region.ID})

	externalID := "9001"
	submitted := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	survey := models.Survey{CampaignId: campaign.ID, InstitutionId: inst.ID, Status: models.SurveyStatusCompleted, KoboSubmissionId: &externalID, SubmittedAt: &submitted, CompletedAt: &submitted}
	rr := models.ReadinessRecord{HasGBVPolicy: true, ReadinessScore: decimal.NewFromFloat(8.3)}
	if err := models.CreateSurveyWithReadiness(ctx, db, &survey, &rr); err != nil {
		t.Fatalf("CreateSurveyWithReadiness: %v", err)
	}

	found, err := models.GetSurveyByKoboSubmissionId(ctx, db, externalID)
	if err != nil || found == nil || found.ID != survey.ID {
		t.Fatalf("expected survey by external id, got %+v (%v)", found, err)
	}
	later := submitted.Add(48 * time.Hour)
	if err := models.MarkSurveyCompleted(ctx, db, found, later); err != nil {
		t.Fatalf("MarkSurveyCompleted: %v", err)
	}

	if err := models.ReplaceReadinessRecord(ctx, db, survey.ID, &models.ReadinessRecord{HasComputers: true, ReadinessScore: decimal.NewFromFloat(8.3)}); err != nil {
		t.Fatalf("ReplaceReadinessRecord: %v", err)
	}
	stored, _ := models.GetReadinessRecordBySurvey(ctx, db, survey.ID)
	if stored == nil || stored.HasGBVPolicy || !stored.HasComputers || stored.ID != rr.ID {
		t.Fatalf("expected indicators replaced in place, got %+v", stored)
	}

	surveys, err := models.ListCampaignSurveys(ctx, db, campaign.ID)
	if err != nil || len(surveys) != 1 {
		t.Fatalf("ListCampaignSurveys: %d (%v)", len(surveys), err)
	}
	got := surveys[0]
	if got.Institution == nil || got.Institution.Region == nil || got.Institution.Region.Code != "KH" || got.Readiness == nil {
		t.Fatalf("expected preloaded institution, region and readiness, got %+v", got)
	}
	if got.CompletedAt == nil || !got.CompletedAt.Equal(later) {
		t.Fatalf("expected completed_at %s, got %v", later, got.CompletedAt)
	}
}

func TestFinishSyncLog_CapsErrorDetails(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	syncLog, err := models.StartSyncLog(ctx, db, 1, "corr-1", time.Now())
	if err != nil {
		t.Fatalf("StartSyncLog: %v", err)
	}
	errs := make([]string, 0, 60)
	for i := 0; i < 60; i++ {
		errs = append(errs, fmt.Sprintf("Unknown region: r%d", i))
	}
	if err := models.FinishSyncLog(ctx, db, syncLog, models.SyncLogResult{Status: models.SyncLogStatusCompleted, FetchedCount: 60, Errors: errs}, time.Now()); err != nil {
		t.Fatalf("FinishSyncLog: %v", err)
	}

	latest, err := models.GetLatestSyncLog(ctx, db, 1)
	if err != nil || latest == nil {
		t.Fatalf("GetLatestSyncLog: %+v (%v)", latest, err)
	}
	if latest.ErrorCount != 60 || len(latest.ErrorMessages()) != models.MaxSyncLogErrors {
		t.Fatalf("expected 60 errors with %d details, got %d / %d", models.MaxSyncLogErrors, latest.ErrorCount, len(latest.ErrorMessages()))
	}
	if latest.Status != models.SyncLogStatusCompleted || latest.CompletedAt == nil {
		t.Fatalf("expected completed log, got %+v", latest)
	}
	if none, _ := models.GetLatestSyncLog(ctx, db, 2); none != nil {
		t.Fatalf("expected nil for a campaign that never synced")
	}
}
