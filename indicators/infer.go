package indicators

import (
	"sort"
	"strconv"
	"strings"

	"github.com/mmdatafocus/survey_backend/submission"
)

type FieldType string

const (
	TypeNumeric     FieldType = "numeric"
	TypeBoolean     FieldType = "boolean"
	TypeMultiSelect FieldType = "multi-select"
	TypeCategorical FieldType = "categorical"
	TypeText        FieldType = "text"
	TypeUnknown     FieldType = "unknown"
)

const (
	DefaultSampleSize           = 500
	DefaultCategoricalThreshold = 30

	numericShare = 0.8
	topOptions   = 5
)

var booleanWords = map[string]struct{}{
	"true": {}, "false": {}, "yes": {}, "no": {}, "y": {}, "n": {}, "1": {}, "0": {},
}

type OptionCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// FieldInfo is the inferred shape of one question.
type FieldInfo struct {
	Type   FieldType     `json:"type"`
	Unique int           `json:"unique"`
	Top    []OptionCount `json:"top,omitempty"`
}

type inferOptions struct {
	sampleSize int
	threshold  int
}

type InferOption func(*inferOptions)

func WithSampleSize(n int) InferOption {
	return func(o *inferOptions) {
		if n > 0 {
			o.sampleSize = n
		}
	}
}

// WithCategoricalThreshold sets the highest distinct-value count that still
// counts as categorical.
func WithCategoricalThreshold(n int) InferOption {
	return func(o *inferOptions) {
		if n > 0 {
			o.threshold = n
		}
	}
}

// InferTypes classifies every question key seen in the first records of the
// sample. Keys starting with "_" are Kobo metadata and are skipped. The result
// depends on the sample, so the same question can classify differently across
// batches.
func InferTypes(records []submission.Value, opts ...InferOption) map[string]FieldInfo {
	o := inferOptions{sampleSize: DefaultSampleSize, threshold: DefaultCategoricalThreshold}
	for _, opt := range opts {
		opt(&o)
	}
	sample := records
	if len(sample) > o.sampleSize {
		sample = sample[:o.sampleSize]
	}

	types := make(map[string]FieldInfo)
	for _, key := range unionKeys(sample) {
		if strings.HasPrefix(key, "_") {
			continue
		}
		types[key] = inferField(sample, key, o.threshold)
	}
	return types
}

func inferField(sample []submission.Value, key string, threshold int) FieldInfo {
	var (
		flat    []submission.Value
		hasList bool
	)
	for _, rec := range sample {
		v, ok := rec.Get(key)
		if !ok || v.IsNull() {
			continue
		}
		if items, isList := v.AsList(); isList {
			hasList = true
			for _, item := range items {
				if !item.IsNull() {
					flat = append(flat, item)
				}
			}
			continue
		}
		flat = append(flat, v)
	}
	if len(flat) == 0 {
		return FieldInfo{Type: TypeUnknown}
	}

	numeric := 0
	for _, v := range flat {
		if _, ok := coerceNumber(v); ok {
			numeric++
		}
	}
	if float64(numeric)/float64(len(flat)) >= numericShare {
		return FieldInfo{Type: TypeNumeric, Unique: distinct(flat, false)}
	}

	allBoolean := true
	for _, v := range flat {
		if _, ok := booleanWords[normalizedText(v)]; !ok {
			allBoolean = false
			break
		}
	}
	if allBoolean {
		return FieldInfo{Type: TypeBoolean, Unique: distinct(flat, true)}
	}

	counts := countTexts(flat)
	if hasList {
		return FieldInfo{Type: TypeMultiSelect, Unique: len(counts), Top: topN(counts, topOptions)}
	}
	if len(counts) <= threshold {
		return FieldInfo{Type: TypeCategorical, Unique: len(counts), Top: topN(counts, topOptions)}
	}
	return FieldInfo{Type: TypeText, Unique: len(counts)}
}

// coerceNumber accepts numbers and strings holding a float literal. Booleans
// are not numbers here.
func coerceNumber(v submission.Value) (float64, bool) {
	if n, ok := v.AsNumber(); ok {
		return n, true
	}
	if s, ok := v.AsString(); ok {
		n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		return n, err == nil
	}
	return 0, false
}

func normalizedText(v submission.Value) string {
	return strings.ToLower(strings.TrimSpace(v.Text()))
}

func distinct(values []submission.Value, normalize bool) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		key := v.Kind().String() + ":" + v.Text()
		if normalize {
			key = normalizedText(v)
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

func sumCounts(counts map[string]int) int {
	n := 0
	for _, c := range counts {
		n += c
	}
	return n
}

func countTexts(values []submission.Value) map[string]int {
	counts := make(map[string]int)
	for _, v := range values {
		counts[v.Text()]++
	}
	return counts
}

// topN orders by count, breaking ties by value.
func topN(counts map[string]int, n int) []OptionCount {
	out := make([]OptionCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, OptionCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func unionKeys(records []submission.Value) []string {
	seen := make(map[string]struct{})
	var keys []string
	for _, rec := range records {
		for _, k := range rec.Keys() {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}
