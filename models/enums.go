package models

type SurveyStatus string

const (
	SurveyStatusPending    SurveyStatus = "pending"
	SurveyStatusInProgress SurveyStatus = "in_progress"
	SurveyStatusCompleted  SurveyStatus = "completed"
)

func (s SurveyStatus) IsValid() bool {
	switch s {
	case SurveyStatusPending, SurveyStatusInProgress, SurveyStatusCompleted:
		return true
	}
	return false
}

type SyncLogStatus string

const (
	SyncLogStatusRunning   SyncLogStatus = "running"
	SyncLogStatusCompleted SyncLogStatus = "completed"
	SyncLogStatusFailed    SyncLogStatus = "failed"
)

func (s SyncLogStatus) IsFinished() bool {
	return s == SyncLogStatusCompleted || s == SyncLogStatusFailed
}

// InstitutionSector matches the sector vocabulary produced by the submission
// sector table.
type InstitutionSector string

const (
	InstitutionSectorGovernment    InstitutionSector = "government"
	InstitutionSectorHealth        InstitutionSector = "health"
	InstitutionSectorEducation     InstitutionSector = "education"
	InstitutionSectorPolice        InstitutionSector = "police"
	InstitutionSectorJustice       InstitutionSector = "justice"
	InstitutionSectorSocialWelfare InstitutionSector = "social_welfare"
	InstitutionSectorNGO           InstitutionSector = "ngo"
	InstitutionSectorPrivate       InstitutionSector = "private"
	InstitutionSectorCommunity     InstitutionSector = "community"
	InstitutionSectorOther         InstitutionSector = "other"
)

func (s InstitutionSector) IsValid() bool {
	switch s {
	case InstitutionSectorGovernment, InstitutionSectorHealth, InstitutionSectorEducation,
		InstitutionSectorPolice, InstitutionSectorJustice, InstitutionSectorSocialWelfare,
		InstitutionSectorNGO, InstitutionSectorPrivate, InstitutionSectorCommunity, InstitutionSectorOther:
		return true
	}
	return false
}
