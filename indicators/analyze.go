package indicators

import (
	"strings"
	"time"

	"github.com/mmdatafocus/survey_backend/submission"
)

const recentSubmissions = 10

// Analysis is a quick overview of a raw submission batch.
type Analysis struct {
	Total      int                `json:"total_submissions"`
	ByRegion   map[string]int     `json:"by_region"`
	ByDate     map[string]int     `json:"by_date"`
	FormFields []string           `json:"form_fields"`
	Recent     []submission.Value `json:"recent_submissions,omitempty"`
}

// AnalyzeSubmissions counts submissions per region and per Namibian local
// submission date. The region question is the first field of the first record
// whose name mentions "region".
func AnalyzeSubmissions(records []submission.Value) Analysis {
	a := Analysis{ByRegion: map[string]int{}, ByDate: map[string]int{}, FormFields: []string{}}
	if len(records) == 0 {
		return a
	}
	a.Total = len(records)
	a.FormFields = records[0].Keys()

	regionField := ""
	for _, f := range a.FormFields {
		if strings.Contains(strings.ToLower(f), "region") {
			regionField = f
			break
		}
	}

	for _, rec := range records {
		if ts, ok := rec.Get(submissionTimeKey); ok {
			if t, ok := submission.ParseTimestamp(ts.Text()); ok {
				a.ByDate[t.In(Namibia).Format(time.DateOnly)]++
			}
		}
		if regionField == "" {
			continue
		}
		if v, ok := rec.Get(regionField); ok && !v.IsBlank() {
			a.ByRegion[v.Text()]++
		}
	}

	n := min(recentSubmissions, len(records))
	a.Recent = records[:n]
	return a
}
