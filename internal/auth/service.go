package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"omnitoken/clinic-service/internal/metrics"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"

	"github.com/rs/zerolog"
)

const DefaultSessionTTL = 8 * time.Hour

// Sessions is the part of the remote store that backs logins.
type Sessions interface {
	FindUserByEmail(ctx context.Context, email string) (models.User, error)
	RecordLogin(ctx context.Context, entry models.LoginLog) error
	CreateSession(ctx context.Context, userID string, expiresAt time.Time) (models.Session, error)
	GetSession(ctx context.Context, sessionID string) (models.Session, error)
	DeleteSession(ctx context.Context, sessionID string) error
}

type Service struct {
	state    *state.Store
	sessions Sessions
	logger   zerolog.Logger
	ttl      time.Duration
	now      func() time.Time
}

func NewService(st *state.Store, sessions Sessions, logger zerolog.Logger, ttl time.Duration) *Service {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Service{
		state:    st,
		sessions: sessions,
		logger:   logger.With().Str("component", "auth").Logger(),
		ttl:      ttl,
		now:      time.Now,
	}
}

type LoginResult struct {
	User    models.User    `json:"user"`
	Session models.Session `json:"session"`
}

// Login verifies the credentials and opens a session. Unknown emails and
// wrong passwords both return ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password, userAgent string) (LoginResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		metrics.IncLogin("rejected")
		return LoginResult{}, store.ErrInvalidCredentials
	}

	user, err := s.lookup(ctx, email)
	if err != nil {
		metrics.IncLogin("rejected")
		return LoginResult{}, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		metrics.IncLogin("rejected")
		s.logger.Warn().Str("email", email).Msg("login rejected")
		return LoginResult{}, store.ErrInvalidCredentials
	}

	session, err := s.sessions.CreateSession(ctx, user.ID, s.now().Add(s.ttl))
	if err != nil {
		metrics.IncLogin("error")
		return LoginResult{}, err
	}

	entry := models.LoginLog{
		UserID:    user.ID,
		Email:     user.Email,
		Role:      user.Role,
		ClinicID:  user.ClinicID,
		LoginAt:   s.now(),
		UserAgent: userAgent,
	}
	if err := s.sessions.RecordLogin(ctx, entry); err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("record login failed")
	}

	metrics.IncLogin("ok")
	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("user logged in")
	user.PasswordHash = ""
	return LoginResult{User: user, Session: session}, nil
}

// lookup prefers the in-process state and falls back to the remote store
// for users created by another instance.
func (s *Service) lookup(ctx context.Context, email string) (models.User, error) {
	var (
		user  models.User
		found bool
	)
	s.state.View(func(snap *models.Snapshot) {
		if i := state.UserByEmail(snap, email); i >= 0 {
			user = snap.Users[i]
			found = true
		}
	})
	if found {
		return user, nil
	}

	user, err := s.sessions.FindUserByEmail(ctx, email)
	if errors.Is(err, store.ErrUserNotFound) {
		return models.User{}, store.ErrInvalidCredentials
	}
	if err != nil {
		return models.User{}, err
	}
	return user, nil
}

func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.DeleteSession(ctx, sessionID)
}

// SessionUser resolves a session id to its user, without the password hash.
func (s *Service) SessionUser(ctx context.Context, sessionID string) (models.User, error) {
	session, err := s.sessions.GetSession(ctx, sessionID)
	if err != nil {
		return models.User{}, err
	}

	var (
		user  models.User
		found bool
	)
	s.state.View(func(snap *models.Snapshot) {
		if i := state.UserIndex(snap, session.UserID); i >= 0 {
			user = snap.Users[i]
			found = true
		}
	})
	if !found {
		return models.User{}, store.ErrSessionNotFound
	}
	user.PasswordHash = ""
	return user, nil
}
