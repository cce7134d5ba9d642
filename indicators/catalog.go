package indicators

import "github.com/mmdatafocus/survey_backend/submission"

type Indicator struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

type Category struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Indicators  []Indicator `json:"indicators"`
}

const (
	CategoryPolicy     = "Policy & Legal Framework"
	CategoryHR         = "Human Resources & Capacity"
	CategoryNetwork    = "Network Infrastructure"
	CategoryHardware   = "Hardware & Software"
	CategoryData       = "Data Management & Security"
	CategoryAppSystems = "Systems & Applications"
)

// Catalog returns the GBV ICT readiness indicators of the assessment form,
// keyed by their Kobo question path. Each call returns a fresh copy.
func Catalog() []Category {
	return []Category{
		{
			Name:        CategoryPolicy,
			Description: "Assessment of institutional policies and legal frameworks for GBV response",
			Indicators: []Indicator{
				{"grp2/q2_1_1", "Has ICT policy document"},
				{"grp2/q2_1_2", "Policy includes GBV provisions"},
				{"grp2/q2_1_3", "Has data protection policy"},
				{"grp2/q2_1_4", "Has information security policy"},
				{"grp2/q2_1_5", "Has disaster recovery plan"},
				{"grp2/q2_1_6", "Has business continuity plan"},
				{"grp2/q2_1_7", "Has ICT governance framework"},
				{"grp2/q2_4_1", "Has dedicated ICT budget"},
				{"grp2/q2_5_1", "Conducts regular ICT audits"},
				{"grp2/q2_5_2", "Has ICT risk assessment process"},
				{"grp2/q2_5_3", "Staff trained on data protection"},
				{"grp2/q2_5_4", "Has incident response procedures"},
				{"grp2/q2_5_5", "Compliant with national ICT standards"},
			},
		},
		{
			Name:        CategoryHR,
			Description: "ICT staffing levels and technical capabilities",
			Indicators: []Indicator{
				{"grp3/q3_1_1", "Has dedicated ICT staff"},
				{"grp3/q3_1_2", "ICT staff has formal qualifications"},
				{"grp3/q3_1_3", "ICT staff receives regular training"},
				{"grp3/q3_1_4", "Has ICT support arrangement"},
			},
		},
		{
			Name:        CategoryNetwork,
			Description: "Internet connectivity and network equipment",
			Indicators: []Indicator{
				{"grp3/q3_2_1", "Has fiber optic connection"},
				{"grp3/q3_2_2", "Has wireless network (WiFi)"},
				{"grp3/q3_2_3", "Has internet connectivity"},
				{"grp3/q3_2_4", "Has network equipment (routers/switches)"},
				{"grp3/q3_2_5", "Has network monitoring tools"},
			},
		},
		{
			Name:        CategoryHardware,
			Description: "Computing devices and software systems",
			Indicators: []Indicator{
				{"grp3/q3_3_1", "Has case management system"},
				{"grp3/q3_4_1", "Has access control system"},
				{"grp3/q3_4_2", "Has antivirus/security software"},
				{"grp3/q3_4_3", "Has audit logging system"},
			},
		},
		{
			Name:        CategoryData,
			Description: "Data handling, backup, and security measures",
			Indicators: []Indicator{
				{"grp3/q3_5_1", "Has data validation procedures"},
				{"grp3/q3_5_2", "Has data encryption"},
				{"grp3/q3_5_3", "Has data sharing protocols"},
				{"grp3/q3_5_4", "Has data retention policy"},
				{"grp3/q3_5_5", "Has data quality assurance"},
			},
		},
		{
			Name:        CategoryAppSystems,
			Description: "Information systems and digital tools for GBV response",
			Indicators: []Indicator{
				{"grp4/q4_1_1", "Has GBV reporting system"},
				{"grp4/q4_1_2", "System allows anonymous reporting"},
				{"grp4/q4_2_1", "Has referral management system"},
				{"grp4/q4_2_2", "Has case tracking system"},
				{"grp4/q4_3_1", "Type of IT support (in-house/outsourced)"},
				{"grp4/q4_4_1", "Has data backup system"},
				{"grp4/q4_4_2", "Has disaster recovery system"},
				{"grp4/q4_4_3", "Has cloud-based services"},
			},
		},
	}
}

func findCategory(name string) (Category, bool) {
	for _, c := range Catalog() {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// CategoryScore is the mean yes percentage over the indicators of category
// that received at least one answer, rounded to one decimal. ok is false for
// an unknown category or when none of its indicators were answered.
func CategoryScore(records []submission.Value, category string) (score float64, ok bool) {
	c, found := findCategory(category)
	if !found {
		return 0, false
	}
	sum, n := 0.0, 0
	for _, ind := range c.Indicators {
		st := IndicatorStats(records, ind.Key)
		if st.Total == 0 {
			continue
		}
		sum += st.YesPct
		n++
	}
	if n == 0 {
		return 0, false
	}
	return round1(sum / float64(n)), true
}

type IndicatorResult struct {
	Indicator
	AnswerStats
}

type CategoryResult struct {
	Name       string            `json:"name"`
	Score      *float64          `json:"score"`
	Level      ReadinessLevel    `json:"level"`
	Indicators []IndicatorResult `json:"indicators"`
}

// CategoryReport scores every catalog category over records.
func CategoryReport(records []submission.Value) []CategoryResult {
	catalog := Catalog()
	out := make([]CategoryResult, 0, len(catalog))
	for _, c := range catalog {
		res := CategoryResult{Name: c.Name, Indicators: make([]IndicatorResult, 0, len(c.Indicators))}
		for _, ind := range c.Indicators {
			res.Indicators = append(res.Indicators, IndicatorResult{Indicator: ind, AnswerStats: IndicatorStats(records, ind.Key)})
		}
		score, ok := CategoryScore(records, c.Name)
		if ok {
			res.Score = &score
		}
		res.Level = Level(score, ok)
		out = append(out, res)
	}
	return out
}
