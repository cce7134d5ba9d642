package reports

import (
	"context"

	"github.com/mmdatafocus/survey_backend/models"
	"github.com/shopspring/decimal"
)

type AdoptionRates struct {
	PolicyAdoptionRate *decimal.Decimal `json:"policy_adoption_rate"`
	CMSAdoptionRate    *decimal.Decimal `json:"cms_adoption_rate"`
	StaffTrainingRate  *decimal.Decimal `json:"staff_training_rate"`
	ComputerAccessRate *decimal.Decimal `json:"computer_access_rate"`
}

type NationalSummary struct {
	CampaignId         int              `json:"campaign_id"`
	CampaignName       string           `json:"campaign_name"`
	TargetInstitutions int              `json:"target_institutions"`
	TotalSurveys       int              `json:"total_surveys"`
	CompletedSurveys   int              `json:"completed_surveys"`
	InProgressSurveys  int              `json:"in_progress_surveys"`
	PendingSurveys     int              `json:"pending_surveys"`
	CompletionRate     decimal.Decimal  `json:"completion_rate"`
	AvgReadinessScore  *decimal.Decimal `json:"avg_readiness_score"`
	Adoption           AdoptionRates    `json:"readiness_indicators"`
}

// NationalSummary counts the campaign's surveys by status. The completion
// rate is measured against the campaign target, or against all surveys when
// no target is set.
func (s *Service) NationalSummary(ctx context.Context, campaignId int) (*NationalSummary, error) {
	return cached(ctx, s, campaignId, "national", func() (*NationalSummary, error) {
		campaign, err := s.campaign(ctx, campaignId)
		if err != nil {
			return nil, err
		}
		surveys, err := models.ListCampaignSurveys(ctx, s.db, campaignId)
		if err != nil {
			return nil, err
		}

		summary := &NationalSummary{
			CampaignId:         campaign.ID,
			CampaignName:       campaign.Name,
			TargetInstitutions: campaign.TargetInstitutions,
			TotalSurveys:       len(surveys),
		}
		for _, sv := range surveys {
			switch sv.Status {
			case models.SurveyStatusCompleted:
				summary.CompletedSurveys++
			case models.SurveyStatusInProgress:
				summary.InProgressSurveys++
			}
		}
		summary.PendingSurveys = summary.TotalSurveys - summary.CompletedSurveys - summary.InProgressSurveys

		target := campaign.TargetInstitutions
		if target == 0 {
			target = summary.TotalSurveys
		}
		summary.CompletionRate = percentOf(summary.CompletedSurveys, target, 2)

		assessed := readinessOf(surveys)
		summary.AvgReadinessScore = averageScore(assessed)
		summary.Adoption = AdoptionRates{
			PolicyAdoptionRate: optionalPercent(countTrue(assessed, "has_gbv_policy"), len(assessed)),
			CMSAdoptionRate:    optionalPercent(countTrue(assessed, "has_case_management_system"), len(assessed)),
			StaffTrainingRate:  optionalPercent(countTrue(assessed, "has_trained_staff"), len(assessed)),
			ComputerAccessRate: optionalPercent(countTrue(assessed, "has_computers"), len(assessed)),
		}
		return summary, nil
	})
}

type RegionSummary struct {
	RegionId             int              `json:"region_id"`
	RegionCode           string           `json:"region_code"`
	RegionName           string           `json:"region_name"`
	TotalSurveys         int              `json:"total_surveys"`
	CompletedSurveys     int              `json:"completed_surveys"`
	CompletionRate       decimal.Decimal  `json:"completion_rate"`
	InstitutionsAssessed int              `json:"institutions_assessed"`
	AvgReadinessScore    *decimal.Decimal `json:"avg_readiness_score"`
	PolicyAdoptionPct    *decimal.Decimal `json:"policy_adoption_pct"`
	CMSAdoptionPct       *decimal.Decimal `json:"cms_adoption_pct"`
	TrainingPct          *decimal.Decimal `json:"training_pct"`
}

// RegionalSummary returns one row per region, including regions without any
// survey, ordered by region name.
func (s *Service) RegionalSummary(ctx context.Context, campaignId int) ([]RegionSummary, error) {
	return cached(ctx, s, campaignId, "regional", func() ([]RegionSummary, error) {
		regions, err := models.ListRegions(ctx, s.db)
		if err != nil {
			return nil, err
		}
		surveys, err := models.ListCampaignSurveys(ctx, s.db, campaignId)
		if err != nil {
			return nil, err
		}
		byRegion := make(map[int][]models.Survey)
		for _, sv := range surveys {
			if sv.Institution == nil {
				continue
			}
			byRegion[sv.Institution.RegionId] = append(byRegion[sv.Institution.RegionId], sv)
		}

		out := make([]RegionSummary, 0, len(regions))
		for _, r := range regions {
			rs := RegionSummary{RegionId: r.ID, RegionCode: r.Code, RegionName: r.Name}
			regionSurveys := byRegion[r.ID]
			rs.TotalSurveys = len(regionSurveys)
			for _, sv := range regionSurveys {
				if sv.Status == models.SurveyStatusCompleted {
					rs.CompletedSurveys++
				}
			}
			rs.CompletionRate = percentOf(rs.CompletedSurveys, rs.TotalSurveys, 2)

			assessed := readinessOf(regionSurveys)
			rs.InstitutionsAssessed = len(assessed)
			rs.AvgReadinessScore = averageScore(assessed)
			rs.PolicyAdoptionPct = optionalPercent(countTrue(assessed, "has_gbv_policy"), len(assessed))
			rs.CMSAdoptionPct = optionalPercent(countTrue(assessed, "has_case_management_system"), len(assessed))
			rs.TrainingPct = optionalPercent(countTrue(assessed, "has_trained_staff"), len(assessed))
			out = append(out, rs)
		}
		return out, nil
	})
}

func readinessOf(surveys []models.Survey) []*models.ReadinessRecord {
	var out []*models.ReadinessRecord
	for _, sv := range surveys {
		if sv.Readiness != nil {
			out = append(out, sv.Readiness)
		}
	}
	return out
}

func averageScore(records []*models.ReadinessRecord) *decimal.Decimal {
	scores := make([]decimal.Decimal, 0, len(records))
	for _, rr := range records {
		scores = append(scores, rr.ReadinessScore)
	}
	return average(scores)
}

func countTrue(records []*models.ReadinessRecord, column string) int {
	n := 0
	for _, rr := range records {
		if rr.Indicators()[column] {
			n++
		}
	}
	return n
}
