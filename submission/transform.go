package submission

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mmdatafocus/survey_backend/utils"
	"github.com/shopspring/decimal"
)

var ErrNotMapping = errors.New("submission is not a mapping")

const (
	DefaultInstitutionName = "Unknown"
	DefaultInstitutionType = "Other"
)

// Record is a submission after field resolution and normalization. Its fields
// mirror the institutions, surveys and readiness tables.
type Record struct {
	SubmissionID    string    `json:"submission_id"`
	InstitutionName string    `json:"institution_name"`
	InstitutionType string    `json:"institution_type"`
	Sector          string    `json:"sector"`
	RegionCode      string    `json:"region_code"`
	RegionName      string    `json:"region_name"`
	SubmittedAt     time.Time `json:"submitted_at"`
	// SubmittedAtParsed is false when the source timestamp was missing or
	// malformed and SubmittedAt holds the processing time instead.
	SubmittedAtParsed bool `json:"submitted_at_parsed"`

	HasGBVPolicy            bool   `json:"has_gbv_policy"`
	HasICTInfrastructure    bool   `json:"has_ict_infrastructure"`
	HasCaseManagementSystem bool   `json:"has_case_management_system"`
	HasDataProtectionPolicy bool   `json:"has_data_protection_policy"`
	HasTrainedStaff         bool   `json:"has_trained_staff"`
	NumTrainedStaff         int    `json:"num_trained_staff"`
	HasReferralPathway      bool   `json:"has_referral_pathway"`
	HasReportingMechanism   bool   `json:"has_reporting_mechanism"`
	HasSurvivorSupport      bool   `json:"has_survivor_support"`
	HasMonitoringSystem     bool   `json:"has_monitoring_system"`
	InternetConnectivity    string `json:"internet_connectivity"`
	HasComputers            bool   `json:"has_computers"`
	NumComputers            int    `json:"num_computers"`
	HasDedicatedGBVBudget   bool   `json:"has_dedicated_gbv_budget"`
	HasPartnerships         bool   `json:"has_partnerships"`

	RespondentName     *string `json:"respondent_name"`
	RespondentPosition *string `json:"respondent_position"`
	RespondentContact  *string `json:"respondent_contact"`

	// UnansweredIndicators lists boolean indicators whose false value came
	// from a missing or unrecognized answer rather than an explicit "no".
	UnansweredIndicators []string `json:"unanswered_indicators,omitempty"`

	Raw Value `json:"-"`
}

// Indicators returns the boolean indicators keyed by field name.
func (r Record) Indicators() map[string]bool {
	return map[string]bool{
		FieldHasGBVPolicy:            r.HasGBVPolicy,
		FieldHasICTInfrastructure:    r.HasICTInfrastructure,
		FieldHasCaseManagementSystem: r.HasCaseManagementSystem,
		FieldHasDataProtectionPolicy: r.HasDataProtectionPolicy,
		FieldHasTrainedStaff:         r.HasTrainedStaff,
		FieldHasReferralPathway:      r.HasReferralPathway,
		FieldHasReportingMechanism:   r.HasReportingMechanism,
		FieldHasSurvivorSupport:      r.HasSurvivorSupport,
		FieldHasMonitoringSystem:     r.HasMonitoringSystem,
		FieldHasComputers:            r.HasComputers,
		FieldHasDedicatedGBVBudget:   r.HasDedicatedGBVBudget,
		FieldHasPartnerships:         r.HasPartnerships,
	}
}

// ReadinessScore is the percentage of true boolean indicators, rounded to one
// decimal.
func (r Record) ReadinessScore() float64 {
	indicators := r.Indicators()
	yes := 0
	for _, field := range BooleanIndicators {
		if indicators[field] {
			yes++
		}
	}
	return decimal.NewFromInt(int64(yes * 100)).
		Div(decimal.NewFromInt(int64(len(BooleanIndicators)))).
		Round(1).
		InexactFloat64()
}

// AsValue flattens the record into a map Value so it can be fed to the
// indicator aggregator alongside raw submissions.
func (r Record) AsValue() Value {
	fields := map[string]Value{
		FieldSubmissionID:         String(r.SubmissionID),
		FieldInstitutionName:      String(r.InstitutionName),
		FieldInstitutionType:      String(r.InstitutionType),
		"sector":                  String(r.Sector),
		"region_code":             String(r.RegionCode),
		FieldRegion:               String(r.RegionName),
		FieldSubmissionDate:       String(r.SubmittedAt.UTC().Format(time.RFC3339)),
		FieldNumTrainedStaff:      Number(float64(r.NumTrainedStaff)),
		FieldNumComputers:         Number(float64(r.NumComputers)),
		FieldInternetConnectivity: String(r.InternetConnectivity),
	}
	for field, b := range r.Indicators() {
		fields[field] = Bool(b)
	}
	for field, p := range map[string]*string{
		FieldRespondentName:     r.RespondentName,
		FieldRespondentPosition: r.RespondentPosition,
		FieldRespondentContact:  r.RespondentContact,
	} {
		if p != nil {
			fields[field] = String(*p)
		}
	}
	return Map(fields)
}

// Transformer turns raw submissions into canonical records.
type Transformer struct {
	resolver    *Resolver
	regions     RegionTable
	sectors     SectorTable
	phoneRegion string
	now         func() time.Time
}

type TransformerOption func(*Transformer)

// WithClock replaces time.Now as the fallback submission time.
func WithClock(now func() time.Time) TransformerOption {
	return func(t *Transformer) { t.now = now }
}

// WithPhoneRegion sets the default region used to normalize respondent phone
// numbers ("NA" unless set).
func WithPhoneRegion(region string) TransformerOption {
	return func(t *Transformer) { t.phoneRegion = strings.ToUpper(strings.TrimSpace(region)) }
}

func NewTransformer(resolver *Resolver, regions RegionTable, sectors SectorTable, opts ...TransformerOption) *Transformer {
	t := &Transformer{
		resolver:    resolver,
		regions:     regions,
		sectors:     sectors,
		phoneRegion: "NA",
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewDefaultTransformer wires the built-in alias, region and sector tables.
func NewDefaultTransformer(opts ...TransformerOption) *Transformer {
	return NewTransformer(
		NewResolver(DefaultFieldAliases()),
		NewRegionTable(DefaultRegionAliases()),
		NewSectorTable(DefaultSectorAliases()),
		opts...,
	)
}

// Transform never fails on missing or malformed fields; they fall back to
// defaults. Only a raw value that is not a map is rejected.
func (t *Transformer) Transform(raw Value) (Record, error) {
	if raw.Kind() != KindMap {
		return Record{}, fmt.Errorf("%w: got %s", ErrNotMapping, raw.Kind())
	}

	rec := Record{Raw: raw}
	rec.SubmissionID, _ = t.resolver.ResolveText(raw, FieldSubmissionID, "")
	rec.InstitutionName, _ = t.resolver.ResolveText(raw, FieldInstitutionName, DefaultInstitutionName)
	rec.InstitutionType, _ = t.resolver.ResolveText(raw, FieldInstitutionType, DefaultInstitutionType)
	rec.Sector = t.sectors.Normalize(rec.InstitutionType)
	rec.RegionName, _ = t.resolver.ResolveText(raw, FieldRegion, "")
	rec.RegionCode, _ = t.regions.Normalize(rec.RegionName)

	if ts, ok := t.resolver.ResolveText(raw, FieldSubmissionDate, ""); ok {
		rec.SubmittedAt, rec.SubmittedAtParsed = ParseTimestamp(ts)
	}
	if !rec.SubmittedAtParsed {
		rec.SubmittedAt = t.now().UTC()
	}

	boolField := func(field string) bool {
		v, _ := t.resolver.Resolve(raw, field)
		b, known := ParseBool(v)
		if !known {
			rec.UnansweredIndicators = append(rec.UnansweredIndicators, field)
		}
		return b
	}
	intField := func(field string) int {
		v, _ := t.resolver.Resolve(raw, field)
		n, _ := ParseInt(v, 0)
		return n
	}

	rec.HasGBVPolicy = boolField(FieldHasGBVPolicy)
	rec.HasICTInfrastructure = boolField(FieldHasICTInfrastructure)
	rec.HasCaseManagementSystem = boolField(FieldHasCaseManagementSystem)
	rec.HasDataProtectionPolicy = boolField(FieldHasDataProtectionPolicy)
	rec.HasTrainedStaff = boolField(FieldHasTrainedStaff)
	rec.NumTrainedStaff = intField(FieldNumTrainedStaff)
	rec.HasReferralPathway = boolField(FieldHasReferralPathway)
	rec.HasReportingMechanism = boolField(FieldHasReportingMechanism)
	rec.HasSurvivorSupport = boolField(FieldHasSurvivorSupport)
	rec.HasMonitoringSystem = boolField(FieldHasMonitoringSystem)
	connectivity, _ := t.resolver.Resolve(raw, FieldInternetConnectivity)
	rec.InternetConnectivity, _ = NormalizeConnectivity(connectivity)
	rec.HasComputers = boolField(FieldHasComputers)
	rec.NumComputers = intField(FieldNumComputers)
	rec.HasDedicatedGBVBudget = boolField(FieldHasDedicatedGBVBudget)
	rec.HasPartnerships = boolField(FieldHasPartnerships)

	rec.RespondentName = t.optionalText(raw, FieldRespondentName)
	rec.RespondentPosition = t.optionalText(raw, FieldRespondentPosition)
	if contact := t.optionalText(raw, FieldRespondentContact); contact != nil {
		normalized := utils.NormalizePhoneNumber(*contact, t.phoneRegion)
		rec.RespondentContact = &normalized
	}

	return rec, nil
}

// TransformAll transforms every submission, skipping those that are not maps.
func (t *Transformer) TransformAll(raws []Value) []Record {
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		rec, err := t.Transform(raw)
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func (t *Transformer) optionalText(raw Value, field string) *string {
	s, ok := t.resolver.ResolveText(raw, field, "")
	if !ok {
		return nil
	}
	return &s
}
