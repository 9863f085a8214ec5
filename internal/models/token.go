package models

import (
	"strconv"
	"time"
)

type Token struct {
	ID                    string      `json:"id"`
	Number                int         `json:"number"`
	TokenInitial          string      `json:"token_initial,omitempty"`
	PatientName           string      `json:"patient_name" validate:"required"`
	PatientEmail          string      `json:"patient_email,omitempty"`
	PatientData           PatientData `json:"patient_data"`
	Status                string      `json:"status"`
	ClinicID              string      `json:"clinic_id" validate:"required"`
	GroupID               string      `json:"group_id,omitempty"`
	CabinID               string      `json:"cabin_id,omitempty"`
	DoctorID              string      `json:"doctor_id,omitempty"`
	Timestamp             time.Time   `json:"timestamp"`
	VisitStartTime        *time.Time  `json:"visit_start_time,omitempty"`
	VisitEndTime          *time.Time  `json:"visit_end_time,omitempty"`
	LastRecalledTimestamp *time.Time  `json:"last_recalled_timestamp,omitempty"`
}

const (
	StatusWaiting    = "WAITING"
	StatusCalling    = "CALLING"
	StatusConsulting = "CONSULTING"
	StatusCompleted  = "COMPLETED"
	StatusCancelled  = "CANCELLED"
	StatusNoShow     = "NO_SHOW"
)

// TokenNumberBase is the first number issued within a group.
const TokenNumberBase = 101

func ValidStatus(status string) bool {
	switch status {
	case StatusWaiting, StatusCalling, StatusConsulting, StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	default:
		return false
	}
}

func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusCancelled || status == StatusNoShow
}

// IsServing reports whether the token currently occupies its cabin.
func IsServing(status string) bool {
	return status == StatusCalling || status == StatusConsulting
}

// DisplayNumber renders the number with the group prefix, e.g. "GM-101".
func (t Token) DisplayNumber() string {
	if t.TokenInitial == "" {
		return strconv.Itoa(t.Number)
	}
	return t.TokenInitial + "-" + strconv.Itoa(t.Number)
}

// CallTime is the moment the token was last called into a cabin.
func (t Token) CallTime() time.Time {
	if t.LastRecalledTimestamp != nil {
		return *t.LastRecalledTimestamp
	}
	if t.VisitStartTime != nil {
		return *t.VisitStartTime
	}
	return time.Time{}
}
