package indicators

import (
	"strings"

	"github.com/mmdatafocus/survey_backend/submission"
)

type ReadinessLevel string

const (
	LevelHigh    ReadinessLevel = "High"
	LevelMedium  ReadinessLevel = "Medium"
	LevelLow     ReadinessLevel = "Low"
	LevelUnknown ReadinessLevel = "Unknown"
)

// DefaultReadinessKeywords returns the infrastructure, connectivity and
// training terms that mark a question as readiness related.
func DefaultReadinessKeywords() []string {
	return []string{
		"internet", "power", "backup", "trained", "device", "computer", "laptop", "phone",
		"network", "wifi", "electric", "solar", "connect", "connectivity", "server", "data",
	}
}

var truthyAnswers = map[string]struct{}{
	"true": {}, "yes": {}, "1": {}, "y": {}, "available": {}, "present": {},
}

// ReadinessScorer scores a set of records on the questions whose key contains
// one of its keywords.
type ReadinessScorer struct {
	keywords []string
}

// NewReadinessScorer uses DefaultReadinessKeywords when none are given.
func NewReadinessScorer(keywords ...string) ReadinessScorer {
	if len(keywords) == 0 {
		keywords = DefaultReadinessKeywords()
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			lowered = append(lowered, k)
		}
	}
	return ReadinessScorer{keywords: lowered}
}

func (s ReadinessScorer) matches(key string) bool {
	key = strings.ToLower(key)
	for _, k := range s.keywords {
		if strings.Contains(key, k) {
			return true
		}
	}
	return false
}

// Score is the mean share of truthy answers per readiness question, scaled to
// 0-100 and rounded to one decimal. ok is false when no readiness question was
// answered; that means "not assessed" and is different from a score of 0.
func (s ReadinessScorer) Score(records []submission.Value) (score float64, ok bool) {
	var shares []float64
	for _, key := range unionKeys(records) {
		if !s.matches(key) {
			continue
		}
		truthy, total := 0, 0
		for _, rec := range records {
			v, present := rec.Get(key)
			if !present || v.IsNull() {
				continue
			}
			total++
			if _, yes := truthyAnswers[normalizedText(v)]; yes {
				truthy++
			}
		}
		if total > 0 {
			shares = append(shares, float64(truthy)/float64(total))
		}
	}
	if len(shares) == 0 {
		return 0, false
	}
	sum := 0.0
	for _, sh := range shares {
		sum += sh
	}
	return round1(sum / float64(len(shares)) * 100), true
}

// Level buckets a score; a missing score is LevelUnknown.
func Level(score float64, ok bool) ReadinessLevel {
	switch {
	case !ok:
		return LevelUnknown
	case score >= 80:
		return LevelHigh
	case score >= 50:
		return LevelMedium
	}
	return LevelLow
}

type GroupReadiness struct {
	Group       string         `json:"group"`
	Submissions int            `json:"submissions"`
	Score       *float64       `json:"score"`
	Level       ReadinessLevel `json:"level"`
}

// ScoreByGroup scores each group of records separately, the same way a
// region or an institution is scored. Groups are sorted by name.
func (s ReadinessScorer) ScoreByGroup(records []submission.Value, group GroupFunc) []GroupReadiness {
	names, members := partition(records, group)
	out := make([]GroupReadiness, 0, len(names))
	for _, g := range names {
		score, ok := s.Score(members[g])
		gr := GroupReadiness{Group: g, Submissions: len(members[g]), Level: Level(score, ok)}
		if ok {
			gr.Score = &score
		}
		out = append(out, gr)
	}
	return out
}
