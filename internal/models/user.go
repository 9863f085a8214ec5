package models

import "time"

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name" validate:"required"`
	Email        string `json:"email" validate:"required,email"`
	PasswordHash string `json:"-"`
	Role         string `json:"role" validate:"required,oneof=CENTRAL_ADMIN CLINIC_ADMIN DOCTOR ASSISTANT SCREEN ADVERTISER"`
	Phone        string `json:"phone,omitempty"`
	Specialty    string `json:"specialty,omitempty"`
	ClinicID     string `json:"clinic_id,omitempty"`
	AdvertiserID string `json:"advertiser_id,omitempty"`
	Avatar       string `json:"avatar,omitempty"`
}

const (
	RoleCentralAdmin = "CENTRAL_ADMIN"
	RoleClinicAdmin  = "CLINIC_ADMIN"
	RoleDoctor       = "DOCTOR"
	RoleAssistant    = "ASSISTANT"
	RoleScreen       = "SCREEN"
	RoleAdvertiser   = "ADVERTISER"
)

// IsClinicStaff reports whether the role is scoped to a single clinic.
func IsClinicStaff(role string) bool {
	switch role {
	case RoleClinicAdmin, RoleDoctor, RoleAssistant, RoleScreen:
		return true
	default:
		return false
	}
}

type Session struct {
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LoginLog struct {
	UserID    string    `json:"user_id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	ClinicID  string    `json:"clinic_id,omitempty"`
	LoginAt   time.Time `json:"login_at"`
	UserAgent string    `json:"user_agent"`
}
