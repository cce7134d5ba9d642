package submission

// Logical field names produced by the resolver.
const (
	FieldInstitutionName    = "institution_name"
	FieldInstitutionType    = "institution_type"
	FieldRegion             = "region"
	FieldSubmissionDate     = "submission_date"
	FieldSubmissionID       = "submission_id"
	FieldRespondentName     = "respondent_name"
	FieldRespondentPosition = "respondent_position"
	FieldRespondentContact  = "respondent_contact"

	FieldHasGBVPolicy            = "has_gbv_policy"
	FieldHasICTInfrastructure    = "has_ict_infrastructure"
	FieldHasCaseManagementSystem = "has_case_management_system"
	FieldHasDataProtectionPolicy = "has_data_protection_policy"
	FieldHasTrainedStaff         = "has_trained_staff"
	FieldNumTrainedStaff         = "num_trained_staff"
	FieldHasReferralPathway      = "has_referral_pathway"
	FieldHasReportingMechanism   = "has_reporting_mechanism"
	FieldHasSurvivorSupport      = "has_survivor_support"
	FieldHasMonitoringSystem     = "has_monitoring_system"
	FieldInternetConnectivity    = "internet_connectivity"
	FieldHasComputers            = "has_computers"
	FieldNumComputers            = "num_computers"
	FieldHasDedicatedGBVBudget   = "has_dedicated_gbv_budget"
	FieldHasPartnerships         = "has_partnerships"
)

// BooleanIndicators lists the yes/no indicator fields of a canonical record in
// schema order.
var BooleanIndicators = []string{
	FieldHasGBVPolicy,
	FieldHasICTInfrastructure,
	FieldHasCaseManagementSystem,
	FieldHasDataProtectionPolicy,
	FieldHasTrainedStaff,
	FieldHasReferralPathway,
	FieldHasReportingMechanism,
	FieldHasSurvivorSupport,
	FieldHasMonitoringSystem,
	FieldHasComputers,
	FieldHasDedicatedGBVBudget,
	FieldHasPartnerships,
}

// DefaultFieldAliases returns a fresh copy of the Kobo form alias table. Each
// logical field maps to raw field names tried in order; names containing "/"
// may also be walked as nested groups.
func DefaultFieldAliases() map[string][]string {
	return map[string][]string{
		FieldInstitutionName: {"institution_name", "name_of_institution", "org_name", "institution", "grp_login/institution_name", "grp_login/institution"},
		FieldInstitutionType: {"institution_type", "type_of_institution", "org_type", "sector"},
		FieldRegion:          {"region", "region_name", "location/region", "grp_login/resp_region_display", "resp_region_display"},
		FieldSubmissionDate:  {"_submission_time", "submission_date", "date"},
		FieldSubmissionID:    {"_id"},

		FieldHasGBVPolicy:            {"has_gbv_policy", "gbv_policy_exists", "policy/gbv_policy"},
		FieldHasICTInfrastructure:    {"has_ict_infrastructure", "ict_infrastructure", "infrastructure/ict"},
		FieldHasCaseManagementSystem: {"case_management_system", "cms_exists", "has_cms"},
		FieldHasDataProtectionPolicy: {"data_protection_policy", "data_privacy_policy", "has_data_protection"},
		FieldHasTrainedStaff:         {"trained_staff", "staff_trained", "has_trained_staff"},
		FieldNumTrainedStaff:         {"num_trained_staff", "number_trained", "trained_staff_count"},
		FieldHasReferralPathway:      {"referral_pathway", "has_referral_pathway", "referral_system"},
		FieldHasReportingMechanism:   {"reporting_mechanism", "has_reporting_mechanism", "complaint_mechanism"},
		FieldHasSurvivorSupport:      {"survivor_support", "has_survivor_support", "victim_support"},
		FieldHasMonitoringSystem:     {"monitoring_system", "has_monitoring", "m_and_e_system"},
		FieldInternetConnectivity:    {"internet_connectivity", "internet_access", "connectivity"},
		FieldHasComputers:            {"has_computers", "computer_access", "computers_available"},
		FieldNumComputers:            {"num_computers", "number_of_computers", "computer_count"},
		FieldHasDedicatedGBVBudget:   {"gbv_budget", "has_gbv_budget", "dedicated_budget"},
		FieldHasPartnerships:         {"partnerships", "has_partnerships", "partner_organizations"},

		FieldRespondentName:     {"respondent_name", "respondent", "enumerator"},
		FieldRespondentPosition: {"respondent_position", "position", "job_title"},
		FieldRespondentContact:  {"contact", "phone", "email"},
	}
}

// DefaultRegionAliases returns a fresh copy of the Namibian region alias
// table, keyed by normalized name.
func DefaultRegionAliases() map[string]string {
	return map[string]string{
		"zambezi":      "CA",
		"caprivi":      "CA",
		"erongo":       "ER",
		"hardap":       "HA",
		"karas":        "KA",
		"//karas":      "KA",
		"kharas":       "KA",
		"kavango east": "KE",
		"kavango west": "KW",
		"khomas":       "KH",
		"kunene":       "KU",
		"ohangwena":    "OW",
		"omaheke":      "OH",
		"omusati":      "OS",
		"oshana":       "ON",
		"oshikoto":     "OT",
		"otjozondjupa": "OD",
	}
}

// DefaultSectorAliases maps free-text institution types onto the sector
// vocabulary of the institutions table.
func DefaultSectorAliases() map[string]string {
	return map[string]string{
		"government":     "government",
		"ministry":       "government",
		"public":         "government",
		"health":         "health",
		"clinic":         "health",
		"hospital":       "health",
		"education":      "education",
		"school":         "education",
		"police":         "police",
		"nampol":         "police",
		"justice":        "justice",
		"court":          "justice",
		"correctional":   "justice",
		"social welfare": "social_welfare",
		"social":         "social_welfare",
		"ngo":            "ngo",
		"cso":            "ngo",
		"private":        "private",
		"community":      "community",
		"cbo":            "community",
		"other":          "other",
	}
}
