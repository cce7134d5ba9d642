package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mmdatafocus/survey_backend/config"
	"github.com/mmdatafocus/survey_backend/indicators"
	"github.com/mmdatafocus/survey_backend/kobosync"
	"github.com/mmdatafocus/survey_backend/models"
	"github.com/mmdatafocus/survey_backend/models/reports"
	"github.com/mmdatafocus/survey_backend/submission"
	"github.com/mmdatafocus/survey_backend/utils"
	"github.com/sirupsen/logrus"
)

type runResult struct {
	CampaignId int                       `json:"campaign_id"`
	Outcome    *kobosync.Outcome         `json:"outcome,omitempty"`
	Error      string                    `json:"error,omitempty"`
	National   *reports.NationalSummary  `json:"national,omitempty"`
	Regional   []reports.RegionSummary   `json:"regional,omitempty"`
	Readiness  *reports.ReadinessSummary `json:"readiness,omitempty"`
	Indicators *reports.IndicatorReport  `json:"indicators,omitempty"`
	Progress   []reports.DailyProgress   `json:"daily_progress,omitempty"`
	History    []reports.SyncStatus      `json:"sync_history,omitempty"`
}

func main() {
	campaignID := flag.Int("campaign-id", 0, "Campaign to sync. 0 syncs every active campaign.")
	since := flag.String("since", "", "Optional: only fetch submissions at or after this time (RFC3339 or YYYY-MM-DD).")
	migrate := flag.Bool("migrate", config.EnvBool("DB_AUTO_MIGRATE", false), "Run AutoMigrate and seed regions before syncing.")
	summaries := flag.Bool("summaries", false, "Print campaign summaries after the sync.")
	progressDays := flag.Int("days", reports.DefaultProgressDays, "Days of daily progress to include with -summaries.")
	history := flag.Int("history", 0, "Also print this many recent sync runs per campaign.")
	noSync := flag.Bool("no-sync", false, "Skip the sync; useful with -summaries.")
	dryRun := flag.Bool("dry-run", false, "Fetch and analyze submissions without writing anything.")
	export := flag.Bool("export", false, "With -dry-run, print the fetched submissions with personal data removed.")
	listAssets := flag.Bool("list-assets", false, "List the Kobo assets visible to the token and exit.")
	flag.Parse()

	logger := config.GetLogger()
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = utils.SetTriggeredByInContext(ctx, "kobo-sync-cli")

	koboCfg, err := config.LoadKoboConfig()
	if err != nil && !*noSync {
		exitf("%v", err)
	}
	syncCfg, err := config.LoadSyncConfig()
	if err != nil {
		exitf("%v", err)
	}

	var client *kobosync.Client
	if !*noSync {
		client, err = kobosync.NewClient(koboCfg)
		if err != nil {
			exitf("kobo client: %v", err)
		}
	}

	if *listAssets {
		if client == nil {
			exitf("-list-assets needs the kobo client")
		}
		assets, err := client.Assets(ctx)
		if err != nil {
			exitf("list assets: %v", err)
		}
		printJSON(assets)
		return
	}

	var sinceTime *time.Time
	if s := strings.TrimSpace(*since); s != "" {
		t, ok := submission.ParseTimestamp(s)
		if !ok {
			exitf("invalid -since %q", s)
		}
		sinceTime = &t
	}

	if err := config.ConnectDatabaseWithRetry(config.EnvInt("DB_CONNECT_MAX_ATTEMPTS", 5)); err != nil {
		exitf("database: %v", err)
	}
	db := config.GetDB()
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}
	if *migrate {
		if err := models.MigrateTable(ctx, db); err != nil {
			exitf("migrate: %v", err)
		}
	}

	campaigns, err := selectCampaigns(ctx, *campaignID)
	if err != nil {
		exitf("%v", err)
	}

	if *dryRun {
		for _, c := range campaigns {
			subs, err := fetch(ctx, client, c.KoboAssetUID, sinceTime)
			if err != nil {
				exitf("campaign %d: %v", c.ID, err)
			}
			if *export {
				printJSON(indicators.Sanitize(subs))
				continue
			}
			printJSON(indicators.AnalyzeSubmissions(subs))
		}
		return
	}

	if err := config.ConnectRedisWithRetry(ctx, config.EnvInt("REDIS_CONNECT_MAX_ATTEMPTS", 5)); err != nil {
		logger.WithFields(logrus.Fields{"field": "redis"}).Warn(err)
	}

	reportOpts := []reports.Option{
		reports.WithLogger(logger),
		reports.WithReadinessKeywords(config.EnvList("READINESS_KEYWORDS")...),
	}
	if config.GetRedisDB() != nil {
		reportOpts = append(reportOpts, reports.WithCache(reports.RedisCache{}, syncCfg.SummaryCacheTTL))
	}
	reportSvc := reports.NewService(db, reportOpts...)

	policy, err := kobosync.ParseResubmissionPolicy(syncCfg.ResubmissionPolicy)
	if err != nil {
		exitf("%v", err)
	}
	notifiers := []kobosync.Notifier{kobosync.NotifierFunc(func(ctx context.Context, o kobosync.Outcome) error {
		return reportSvc.Invalidate(ctx, o.CampaignId)
	})}
	if syncCfg.Topic != "" {
		psClient, err := config.GetClient(ctx)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub"}).Warn(err)
		} else {
			if _, err := config.CreateTopicIfNotExists(ctx, psClient, syncCfg.Topic); err != nil {
				logger.WithFields(logrus.Fields{"field": "pubsub"}).Warn(err)
			}
			notifiers = append(notifiers, kobosync.NewPubSubNotifier(psClient, syncCfg.Topic))
		}
	}

	engineOpts := []kobosync.Option{
		kobosync.WithTransformer(submission.NewDefaultTransformer(submission.WithPhoneRegion(syncCfg.RespondentPhoneRegion))),
		kobosync.WithResubmissionPolicy(policy),
		kobosync.WithNotifiers(notifiers...),
		kobosync.WithLogger(logger),
	}
	if client != nil {
		engineOpts = append(engineOpts, kobosync.WithSource(client))
	}
	if l := config.GetRedisLock(); l != nil {
		engineOpts = append(engineOpts, kobosync.WithLocker(kobosync.NewRedisLocker(l), syncCfg.LockTTL))
	}
	engine := kobosync.NewEngine(db, engineOpts...)

	failed := false
	results := make([]runResult, 0, len(campaigns))
	for _, c := range campaigns {
		res := runResult{CampaignId: c.ID}
		if !*noSync {
			var outcome kobosync.Outcome
			if sinceTime != nil {
				outcome, err = engine.SyncCampaignSince(ctx, c.ID, *sinceTime)
			} else {
				outcome, err = engine.SyncCampaign(ctx, c.ID)
			}
			if outcome.SyncLogId != 0 {
				res.Outcome = &outcome
			}
			if err != nil {
				failed = true
				res.Error = err.Error()
			}
		}
		if *summaries {
			if err := collectSummaries(ctx, reportSvc, c.ID, *progressDays, &res); err != nil {
				failed = true
				res.Error = strings.TrimPrefix(res.Error+"; "+err.Error(), "; ")
			}
		}
		if *history > 0 {
			if res.History, err = reportSvc.SyncHistory(ctx, c.ID, *history); err != nil {
				failed = true
				res.Error = strings.TrimPrefix(res.Error+"; "+err.Error(), "; ")
			}
		}
		results = append(results, res)
	}
	printJSON(results)
	if failed {
		os.Exit(1)
	}
}

func selectCampaigns(ctx context.Context, campaignID int) ([]models.SurveyCampaign, error) {
	db := config.GetDB()
	if campaignID != 0 {
		c, err := models.GetSurveyCampaign(ctx, db, campaignID)
		if err != nil {
			return nil, err
		}
		if c == nil {
			return nil, fmt.Errorf("campaign %d: %w", campaignID, kobosync.ErrCampaignNotFound)
		}
		return []models.SurveyCampaign{*c}, nil
	}
	campaigns, err := models.ListActiveSurveyCampaigns(ctx, db)
	if err != nil {
		return nil, err
	}
	if len(campaigns) == 0 {
		return nil, errors.New("no active campaigns")
	}
	return campaigns, nil
}

func fetch(ctx context.Context, client *kobosync.Client, assetUID string, since *time.Time) ([]submission.Value, error) {
	if client == nil {
		return nil, errors.New("kobo client is not configured")
	}
	if since != nil {
		return client.SubmissionsSince(ctx, assetUID, *since)
	}
	return client.Submissions(ctx, assetUID)
}

func collectSummaries(ctx context.Context, svc *reports.Service, campaignID, days int, res *runResult) error {
	var err error
	if res.National, err = svc.NationalSummary(ctx, campaignID); err != nil {
		return err
	}
	if res.Regional, err = svc.RegionalSummary(ctx, campaignID); err != nil {
		return err
	}
	res.Readiness, err = svc.ReadinessSummary(ctx, campaignID)
	if err != nil && !errors.Is(err, reports.ErrNoReadinessData) {
		return err
	}
	if res.Indicators, err = svc.IndicatorReport(ctx, campaignID); err != nil {
		return err
	}
	res.Progress, err = svc.DailyProgress(ctx, campaignID, days)
	return err
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		exitf("encode output: %v", err)
	}
}

func exitf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
