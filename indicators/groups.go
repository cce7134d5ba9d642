package indicators

import "strings"

const (
	GroupPolice       = "Police"
	GroupHealth       = "Ministry of Health Services"
	GroupCorrectional = "Correctional Services"
	GroupGender       = "Ministry of Gender"
	GroupOther        = "Other"
)

// Checked in order; the first group with a matching keyword wins.
var institutionGroups = []struct {
	name     string
	keywords []string
}{
	{GroupPolice, []string{"police", "nampol", "police station"}},
	{GroupHealth, []string{"clinic", "hospital", "health", "medical"}},
	{GroupCorrectional, []string{"prison", "correctional", "custody"}},
	{GroupGender, []string{"women", "children", "shelter", "gender"}},
}

// ClassifyInstitution assigns an institution to its service group by keywords
// in its name.
func ClassifyInstitution(name string) string {
	lower := strings.ToLower(name)
	for _, g := range institutionGroups {
		for _, k := range g.keywords {
			if strings.Contains(lower, k) {
				return g.name
			}
		}
	}
	return GroupOther
}
