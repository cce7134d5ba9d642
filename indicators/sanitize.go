package indicators

import (
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/mmdatafocus/survey_backend/submission"
)

const submissionTimeKey = "_submission_time"

var (
	piiPatterns = []string{
		"email", "phone", "name", "first_name", "last_name", "address", "gps",
		"id", "id_number", "idcard", "personal", "username",
	}
	exportKeys = map[string]struct{}{
		"grp_login/institution_name":    {},
		"institution_name":              {},
		"institution":                   {},
		"grp_login/resp_region_display": {},
		"resp_region_display":           {},
		"region":                        {},
		submissionTimeKey:               {},
	}
)

// Namibia is the timezone submission dates are reported in.
var Namibia = loadNamibia()

func loadNamibia() *time.Location {
	loc, err := time.LoadLocation("Africa/Windhoek")
	if err != nil {
		return time.FixedZone("CAT", 2*60*60)
	}
	return loc
}

// Sanitize strips metadata and anything that looks like personal data from
// records so they can be exported. Institution, region and answer fields are
// kept. The submission time is replaced by a submission_date in Namibian
// local time.
func Sanitize(records []submission.Value) []submission.Value {
	out := make([]submission.Value, 0, len(records))
	for _, rec := range records {
		clean := make(map[string]submission.Value)
		for _, k := range rec.Keys() {
			v, _ := rec.Get(k)
			lower := strings.ToLower(k)
			if _, keep := exportKeys[lower]; keep {
				clean[k] = v
				continue
			}
			if strings.HasPrefix(lower, "meta") || strings.HasPrefix(lower, "_meta") || looksPersonal(lower) {
				continue
			}
			clean[k] = v
		}
		if ts, ok := clean[submissionTimeKey]; ok {
			delete(clean, submissionTimeKey)
			clean["submission_date"] = submission.Null()
			if t, ok := submission.ParseTimestamp(ts.Text()); ok {
				clean["submission_date"] = submission.String(t.In(Namibia).Format(time.DateOnly))
			}
		}
		out = append(out, submission.Map(clean))
	}
	return out
}

func looksPersonal(key string) bool {
	for _, p := range piiPatterns {
		if strings.Contains(key, p) {
			return true
		}
	}
	return false
}
