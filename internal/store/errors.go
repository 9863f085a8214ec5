package store

import "errors"

var (
	ErrClinicNotFound     = errors.New("clinic not found")
	ErrGroupNotFound      = errors.New("group not found")
	ErrCabinNotFound      = errors.New("cabin not found")
	ErrFormNotFound       = errors.New("form not found")
	ErrTokenNotFound      = errors.New("token not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrAdvertiserNotFound = errors.New("advertiser not found")
	ErrVideoNotFound      = errors.New("video not found")
	ErrSpecialtyNotFound  = errors.New("specialty not found")
	ErrInvalidTransition  = errors.New("invalid token transition")
	ErrNoShowTooEarly     = errors.New("no-show not yet allowed")
	ErrCabinOccupied      = errors.New("cabin already serving a token")
	ErrCabinLocked        = errors.New("cabin has no doctor assigned")
	ErrCabinTaken         = errors.New("cabin assigned to another doctor")
	ErrQueueEmpty         = errors.New("no waiting tokens")
	ErrValidation         = errors.New("validation failed")
	ErrDuplicateEmail     = errors.New("email already registered")
	ErrSyncFailed         = errors.New("remote sync failed")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionNotFound    = errors.New("session not found")
	ErrAccessDenied       = errors.New("access denied")
	ErrUnknownTable       = errors.New("unknown table")
)
