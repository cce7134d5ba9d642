package reports

import (
	"context"

	"github.com/mmdatafocus/survey_backend/indicators"
	"github.com/mmdatafocus/survey_backend/models"
	"github.com/mmdatafocus/survey_backend/submission"
	"github.com/shopspring/decimal"
)

type IndicatorCount struct {
	Count int             `json:"count"`
	Pct   decimal.Decimal `json:"pct"`
}

type ReadinessSummary struct {
	CampaignId      int                               `json:"campaign_id"`
	TotalAssessed   int                               `json:"total_institutions_assessed"`
	Average         decimal.Decimal                   `json:"average"`
	Minimum         decimal.Decimal                   `json:"minimum"`
	Maximum         decimal.Decimal                   `json:"maximum"`
	Levels          map[indicators.ReadinessLevel]int `json:"levels"`
	Indicators      map[string]IndicatorCount         `json:"indicators"`
	AvgTrainedStaff decimal.Decimal                   `json:"avg_trained_staff_per_institution"`
	AvgComputers    decimal.Decimal                   `json:"avg_functional_computers"`
	Connectivity    map[string]int                    `json:"connectivity"`
}

// ReadinessSummary aggregates the stored readiness records of the campaign.
// It returns ErrNoReadinessData when nothing was assessed yet.
func (s *Service) ReadinessSummary(ctx context.Context, campaignId int) (*ReadinessSummary, error) {
	return cached(ctx, s, campaignId, "readiness", func() (*ReadinessSummary, error) {
		surveys, err := models.ListCampaignSurveys(ctx, s.db, campaignId)
		if err != nil {
			return nil, err
		}
		assessed := readinessOf(surveys)
		if len(assessed) == 0 {
			return nil, ErrNoReadinessData
		}

		total := len(assessed)
		summary := &ReadinessSummary{
			CampaignId:    campaignId,
			TotalAssessed: total,
			Average:       *averageScore(assessed),
			Minimum:       assessed[0].ReadinessScore,
			Maximum:       assessed[0].ReadinessScore,
			Levels:        make(map[indicators.ReadinessLevel]int),
			Indicators:    make(map[string]IndicatorCount),
			Connectivity:  make(map[string]int),
		}
		for _, level := range submission.ConnectivityLevels {
			summary.Connectivity[level] = 0
		}

		var staff, computers []decimal.Decimal
		for _, rr := range assessed {
			summary.Minimum = decimal.Min(summary.Minimum, rr.ReadinessScore)
			summary.Maximum = decimal.Max(summary.Maximum, rr.ReadinessScore)
			summary.Levels[indicators.Level(rr.ReadinessScore.InexactFloat64(), true)]++
			summary.Connectivity[rr.InternetConnectivity]++
			staff = append(staff, decimal.NewFromInt(int64(rr.NumTrainedStaff)))
			computers = append(computers, decimal.NewFromInt(int64(rr.NumComputers)))
		}
		for column := range assessed[0].Indicators() {
			n := countTrue(assessed, column)
			summary.Indicators[column] = IndicatorCount{Count: n, Pct: percentOf(n, total, 1)}
		}
		summary.AvgTrainedStaff = *average(staff)
		summary.AvgComputers = *average(computers)
		return summary, nil
	})
}

type IndicatorReport struct {
	CampaignId      int                             `json:"campaign_id"`
	Submissions     int                             `json:"submissions"`
	Categories      []indicators.CategoryResult     `json:"categories"`
	ByRegion        []indicators.GroupReadiness     `json:"by_region"`
	ByGroup         []indicators.GroupReadiness     `json:"by_institution_group"`
	ByInstitution   []indicators.GroupReadiness     `json:"by_institution"`
	QuestionTypes   map[string]indicators.FieldInfo `json:"question_types"`
	RegionQuestions []indicators.GroupStats         `json:"region_questions"`
}

// IndicatorReport runs the indicator aggregator over the raw submissions kept
// with each readiness record, grouped by region, institution group and
// institution.
func (s *Service) IndicatorReport(ctx context.Context, campaignId int) (*IndicatorReport, error) {
	return cached(ctx, s, campaignId, "indicators", func() (*IndicatorReport, error) {
		surveys, err := models.ListCampaignSurveys(ctx, s.db, campaignId)
		if err != nil {
			return nil, err
		}
		records := rawRecords(surveys)

		byRegion := indicators.ByFields(regionKey)
		byInstitution := indicators.ByFields(institutionKey)
		types := indicators.InferTypes(records)
		return &IndicatorReport{
			CampaignId:      campaignId,
			Submissions:     len(records),
			Categories:      indicators.CategoryReport(records),
			ByRegion:        s.scorer.ScoreByGroup(records, byRegion),
			ByGroup:         s.scorer.ScoreByGroup(records, indicators.ByInstitutionGroup(institutionKey)),
			ByInstitution:   s.scorer.ScoreByGroup(records, byInstitution),
			QuestionTypes:   types,
			RegionQuestions: indicators.GroupedStats(records, byRegion, types),
		}, nil
	})
}

// Keys added to each raw submission so grouping does not depend on the form
// layout.
const (
	regionKey      = "_region"
	institutionKey = "_institution"
)

func rawRecords(surveys []models.Survey) []submission.Value {
	var out []submission.Value
	for _, sv := range surveys {
		if sv.Readiness == nil || len(sv.Readiness.RawSubmission) == 0 {
			continue
		}
		raw, err := submission.ParseJSON(sv.Readiness.RawSubmission)
		if err != nil || raw.Kind() != submission.KindMap {
			continue
		}
		if sv.Institution != nil {
			raw = raw.With(institutionKey, submission.String(sv.Institution.Name))
			if sv.Institution.Region != nil {
				raw = raw.With(regionKey, submission.String(sv.Institution.Region.Name))
			}
		}
		out = append(out, raw)
	}
	return out
}
