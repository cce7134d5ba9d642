package submission

import (
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	affirmatives = map[string]struct{}{"yes": {}, "true": {}, "1": {}, "y": {}}
	negatives    = map[string]struct{}{"no": {}, "false": {}, "0": {}, "n": {}}
)

// IsAffirmative reports whether s is one of yes/true/1/y, ignoring case and
// surrounding space.
func IsAffirmative(s string) bool {
	_, ok := affirmatives[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// IsNegative reports whether s is one of no/false/0/n, ignoring case and
// surrounding space.
func IsNegative(s string) bool {
	_, ok := negatives[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

// ParseBool converts a survey answer into a boolean. Anything that is not an
// affirmative answer is false, so a missing answer and a "no" look the same in
// the first result. The second result reports whether the answer was actually
// recognized (a literal bool, a number, or a yes/no word); callers that need
// to tell "no" from "unanswered" use it.
func ParseBool(v Value) (bool, bool) {
	switch v.Kind() {
	case KindBool:
		b, _ := v.AsBool()
		return b, true
	case KindNumber:
		n, _ := v.AsNumber()
		return n != 0, true
	case KindString:
		s, _ := v.AsString()
		if IsAffirmative(s) {
			return true, true
		}
		return false, IsNegative(s)
	}
	return false, false
}

// ParseInt converts v to an int, returning def when it cannot. Numbers are
// truncated toward zero; strings must hold an integer literal. The second
// result is false when def was used.
func ParseInt(v Value, def int) (int, bool) {
	switch v.Kind() {
	case KindNumber:
		n, _ := v.AsNumber()
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return def, false
		}
		return int(n), true
	case KindBool:
		if b, _ := v.AsBool(); b {
			return 1, true
		}
		return 0, true
	case KindString:
		s, _ := v.AsString()
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return def, false
		}
		return n, true
	}
	return def, false
}

// RegionTable maps normalized region names to two-letter region codes.
type RegionTable struct {
	codes map[string]string
}

// NewRegionTable copies aliases, normalizing each key the same way lookups are
// normalized.
func NewRegionTable(aliases map[string]string) RegionTable {
	codes := make(map[string]string, len(aliases))
	for name, code := range aliases {
		codes[normalizeRegionKey(name)] = strings.ToUpper(strings.TrimSpace(code))
	}
	return RegionTable{codes: codes}
}

// Normalize maps a free-text region name to its code. Unknown names return
// ("", false); they are never mapped to a default region.
func (t RegionTable) Normalize(region string) (string, bool) {
	key := normalizeRegionKey(region)
	if key == "" {
		return "", false
	}
	code, ok := t.codes[key]
	return code, ok
}

func normalizeRegionKey(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.Join(strings.Fields(s), " ")
}

// SectorTable maps free-text institution types onto the sector vocabulary.
type SectorTable struct {
	sectors map[string]string
}

const SectorOther = "other"

func NewSectorTable(aliases map[string]string) SectorTable {
	sectors := make(map[string]string, len(aliases))
	for name, sector := range aliases {
		sectors[normalizeRegionKey(name)] = sector
	}
	return SectorTable{sectors: sectors}
}

// Normalize returns the sector for s. An exact match wins; otherwise the first
// alias (in sorted order) contained in s is used, and "other" when none is.
func (t SectorTable) Normalize(s string) string {
	key := normalizeRegionKey(s)
	if key == "" {
		return SectorOther
	}
	if sector, ok := t.sectors[key]; ok {
		return sector
	}
	best := ""
	for alias := range t.sectors {
		if strings.Contains(key, alias) && (best == "" || len(alias) > len(best) || (len(alias) == len(best) && alias < best)) {
			best = alias
		}
	}
	if best == "" {
		return SectorOther
	}
	return t.sectors[best]
}

// Connectivity levels of the readiness record, worst to best.
var ConnectivityLevels = []string{"none", "limited", "moderate", "good", "excellent"}

// NormalizeConnectivity maps an answer onto ConnectivityLevels, defaulting to
// "none".
func NormalizeConnectivity(v Value) (string, bool) {
	s := strings.ToLower(strings.TrimSpace(v.Text()))
	for _, level := range ConnectivityLevels {
		if s == level {
			return level, true
		}
	}
	switch {
	case s == "":
		return "none", false
	case strings.Contains(s, "excellent") || strings.Contains(s, "fibre") || strings.Contains(s, "fiber"):
		return "excellent", true
	case strings.Contains(s, "good") || strings.Contains(s, "reliable"):
		return "good", true
	case strings.Contains(s, "moderate") || strings.Contains(s, "average"):
		return "moderate", true
	case strings.Contains(s, "limited") || strings.Contains(s, "poor") || strings.Contains(s, "intermittent"):
		return "limited", true
	case IsAffirmative(s):
		return "limited", true
	case IsNegative(s):
		return "none", true
	}
	return "none", false
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseTimestamp parses an ISO-8601 timestamp, accepting a trailing Z as UTC
// and treating values without an offset as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
