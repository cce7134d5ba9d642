package indicators

import (
	"sort"
	"strings"

	"github.com/mmdatafocus/survey_backend/submission"
	"github.com/shopspring/decimal"
)

const (
	UnknownGroup = "Unknown"

	multiSelectOptions = 10
)

// GroupFunc picks the group a record belongs to.
type GroupFunc func(record submission.Value) string

// ByFields groups by the first of keys holding a non-blank value, falling back
// to UnknownGroup.
func ByFields(keys ...string) GroupFunc {
	return func(record submission.Value) string {
		for _, k := range keys {
			v, ok := record.Get(k)
			if !ok || v.IsNull() {
				continue
			}
			if s := strings.TrimSpace(v.Text()); s != "" {
				return s
			}
		}
		return UnknownGroup
	}
}

// ByInstitutionGroup maps the institution name found under keys onto its
// institution group.
func ByInstitutionGroup(keys ...string) GroupFunc {
	name := ByFields(keys...)
	return func(record submission.Value) string {
		return ClassifyInstitution(name(record))
	}
}

// FieldStats holds the statistics of one question inside one group. Only the
// members relevant to Type are set.
type FieldStats struct {
	Type        FieldType     `json:"type"`
	Count       int           `json:"count"`
	Mean        *float64      `json:"mean,omitempty"`
	Median      *float64      `json:"median,omitempty"`
	Min         *float64      `json:"min,omitempty"`
	Max         *float64      `json:"max,omitempty"`
	Sum         *float64      `json:"sum,omitempty"`
	PercentTrue *float64      `json:"percent_true,omitempty"`
	TopValue    *string       `json:"top_value,omitempty"`
	TopPct      *float64      `json:"top_pct,omitempty"`
	Options     []OptionCount `json:"options,omitempty"`
	NonEmpty    int           `json:"non_empty,omitempty"`
}

type GroupStats struct {
	Group       string                `json:"group"`
	Submissions int                   `json:"submissions"`
	Fields      map[string]FieldStats `json:"fields"`
}

// GroupedStats splits records with group and summarizes every question of
// types inside each group. A nil types map is inferred from records. Groups
// are returned sorted by name.
func GroupedStats(records []submission.Value, group GroupFunc, types map[string]FieldInfo) []GroupStats {
	if len(records) == 0 {
		return nil
	}
	if types == nil {
		types = InferTypes(records)
	}

	names, members := partition(records, group)
	out := make([]GroupStats, 0, len(names))
	for _, g := range names {
		recs := members[g]
		gs := GroupStats{Group: g, Submissions: len(recs), Fields: make(map[string]FieldStats, len(types))}
		for key, info := range types {
			gs.Fields[key] = fieldStats(presentValues(recs, key), info.Type)
		}
		out = append(out, gs)
	}
	return out
}

// partition returns the sorted group names and the records of each group.
func partition(records []submission.Value, group GroupFunc) ([]string, map[string][]submission.Value) {
	members := make(map[string][]submission.Value)
	for _, rec := range records {
		g := group(rec)
		members[g] = append(members[g], rec)
	}
	names := make([]string, 0, len(members))
	for g := range members {
		names = append(names, g)
	}
	sort.Strings(names)
	return names, members
}

func presentValues(records []submission.Value, key string) []submission.Value {
	var out []submission.Value
	for _, rec := range records {
		if v, ok := rec.Get(key); ok && !v.IsNull() {
			out = append(out, v)
		}
	}
	return out
}

func fieldStats(values []submission.Value, typ FieldType) FieldStats {
	fs := FieldStats{Type: typ}
	switch typ {
	case TypeNumeric:
		nums := make([]float64, 0, len(values))
		for _, v := range values {
			if n, ok := coerceNumber(v); ok {
				nums = append(nums, n)
			}
		}
		fs.Count = len(nums)
		if len(nums) == 0 {
			return fs
		}
		sort.Float64s(nums)
		sum := 0.0
		for _, n := range nums {
			sum += n
		}
		mean := sum / float64(len(nums))
		median := nums[len(nums)/2]
		if len(nums)%2 == 0 {
			median = (nums[len(nums)/2-1] + nums[len(nums)/2]) / 2
		}
		fs.Mean, fs.Median, fs.Sum = &mean, &median, &sum
		fs.Min, fs.Max = &nums[0], &nums[len(nums)-1]
	case TypeBoolean:
		fs.Count = len(values)
		if len(values) == 0 {
			return fs
		}
		yes := 0
		for _, v := range values {
			if submission.IsAffirmative(v.Text()) {
				yes++
			}
		}
		pct := percent(yes, len(values))
		fs.PercentTrue = &pct
	case TypeCategorical:
		counts := countTexts(values)
		fs.Count = sumCounts(counts)
		if top := topN(counts, 1); len(top) == 1 {
			pct := percent(top[0].Count, fs.Count)
			fs.TopValue, fs.TopPct = &top[0].Value, &pct
		}
	case TypeMultiSelect:
		var flat []submission.Value
		for _, v := range values {
			items, ok := v.AsList()
			if !ok {
				continue
			}
			for _, item := range items {
				if !item.IsNull() {
					flat = append(flat, item)
				}
			}
		}
		counts := countTexts(flat)
		fs.Count = sumCounts(counts)
		fs.Options = topN(counts, multiSelectOptions)
	default:
		fs.Count = len(values)
		for _, v := range values {
			if strings.TrimSpace(v.Text()) != "" {
				fs.NonEmpty++
			}
		}
	}
	return fs
}

// AnswerStats splits the answers to one yes/no indicator. Answers that are
// neither yes nor no (don't know, n/a, free text) land in Unknown.
type AnswerStats struct {
	Yes        int     `json:"yes"`
	No         int     `json:"no"`
	Unknown    int     `json:"unknown"`
	Total      int     `json:"total"`
	YesPct     float64 `json:"yes_pct"`
	NoPct      float64 `json:"no_pct"`
	UnknownPct float64 `json:"unknown_pct"`
}

// IndicatorStats counts yes/no/unknown answers to key over records. Blank
// answers are not counted, so an indicator nobody answered is all zeros.
func IndicatorStats(records []submission.Value, key string) AnswerStats {
	var st AnswerStats
	for _, rec := range records {
		v, ok := rec.Get(key)
		if !ok || v.IsBlank() {
			continue
		}
		st.Total++
		switch text := v.Text(); {
		case submission.IsAffirmative(text):
			st.Yes++
		case submission.IsNegative(text):
			st.No++
		default:
			st.Unknown++
		}
	}
	if st.Total == 0 {
		return st
	}
	st.YesPct = round1(percent(st.Yes, st.Total))
	st.NoPct = round1(percent(st.No, st.Total))
	st.UnknownPct = round1(percent(st.Unknown, st.Total))
	return st
}

func percent(part, whole int) float64 {
	if whole == 0 {
		return 0
	}
	return float64(part) / float64(whole) * 100
}

func round1(f float64) float64 {
	return decimal.NewFromFloat(f).Round(1).InexactFloat64()
}
