package auth

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type fakeSessions struct {
	remoteUsers map[string]models.User
	sessions    map[string]models.Session
	logins      []models.LoginLog
	recordErr   error
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{remoteUsers: map[string]models.User{}, sessions: map[string]models.Session{}}
}

func (f *fakeSessions) FindUserByEmail(ctx context.Context, email string) (models.User, error) {
	user, ok := f.remoteUsers[email]
	if !ok {
		return models.User{}, store.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeSessions) RecordLogin(ctx context.Context, entry models.LoginLog) error {
	f.logins = append(f.logins, entry)
	return f.recordErr
}

func (f *fakeSessions) CreateSession(ctx context.Context, userID string, expiresAt time.Time) (models.Session, error) {
	session := models.Session{SessionID: "sess-" + userID, UserID: userID, ExpiresAt: expiresAt}
	f.sessions[session.SessionID] = session
	return session, nil
}

func (f *fakeSessions) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	session, ok := f.sessions[sessionID]
	if !ok {
		return models.Session{}, store.ErrSessionNotFound
	}
	return session, nil
}

func (f *fakeSessions) DeleteSession(ctx context.Context, sessionID string) error {
	delete(f.sessions, sessionID)
	return nil
}

func mustHash(t *testing.T, password string) string {
	t.Helper()
	hash, err := HashPassword(password, bcrypt.MinCost)
	require.NoError(t, err)
	return hash
}

func newTestService(t *testing.T) (*Service, *fakeSessions) {
	t.Helper()
	st := state.New(models.Snapshot{Users: []models.User{
		{ID: "u1", Name: "Doc", Email: "doc@clinic.test", Role: models.RoleDoctor, ClinicID: "c1", PasswordHash: mustHash(t, "s3cret")},
	}})
	sessions := newFakeSessions()
	svc := NewService(st, sessions, zerolog.New(io.Discard), 0)
	svc.now = func() time.Time { return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC) }
	return svc, sessions
}

func TestLoginSuccess(t *testing.T) {
	svc, sessions := newTestService(t)

	result, err := svc.Login(context.Background(), "DOC@clinic.test", "s3cret", "kiosk/1.0")
	require.NoError(t, err)

	assert.Equal(t, "u1", result.User.ID)
	assert.Empty(t, result.User.PasswordHash)
	assert.Equal(t, time.Date(2024, 1, 1, 20, 0, 0, 0, time.UTC), result.Session.ExpiresAt)
	require.Len(t, sessions.logins, 1)
	assert.Equal(t, models.LoginLog{UserID: "u1", Email: "doc@clinic.test", Role: models.RoleDoctor, ClinicID: "c1", LoginAt: svc.now(), UserAgent: "kiosk/1.0"}, sessions.logins[0])
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, sessions := newTestService(t)
	ctx := context.Background()

	_, err := svc.Login(ctx, "doc@clinic.test", "wrong", "")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@clinic.test", "s3cret", "")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)

	_, err = svc.Login(ctx, "", "", "")
	assert.ErrorIs(t, err, store.ErrInvalidCredentials)
	assert.Empty(t, sessions.sessions)
}

func TestLoginFallsBackToRemoteUsers(t *testing.T) {
	svc, sessions := newTestService(t)
	sessions.remoteUsers["new@clinic.test"] = models.User{ID: "u2", Email: "new@clinic.test", PasswordHash: mustHash(t, "pw")}

	result, err := svc.Login(context.Background(), "new@clinic.test", "pw", "")
	require.NoError(t, err)
	assert.Equal(t, "u2", result.User.ID)
}

func TestLoginLogFailureIsNotFatal(t *testing.T) {
	svc, sessions := newTestService(t)
	sessions.recordErr = errors.New("insert failed")

	_, err := svc.Login(context.Background(), "doc@clinic.test", "s3cret", "")
	assert.NoError(t, err)
}

func TestSessionUserAndLogout(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	result, err := svc.Login(ctx, "doc@clinic.test", "s3cret", "")
	require.NoError(t, err)

	user, err := svc.SessionUser(ctx, result.Session.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Empty(t, user.PasswordHash)

	require.NoError(t, svc.Logout(ctx, result.Session.SessionID))
	_, err = svc.SessionUser(ctx, result.Session.SessionID)
	assert.ErrorIs(t, err, store.ErrSessionNotFound)
}

func TestPasswordHashing(t *testing.T) {
	hash := mustHash(t, "pw")
	assert.NotEqual(t, "pw", hash)
	assert.True(t, CheckPassword(hash, "pw"))
	assert.False(t, CheckPassword(hash, "PW"))
	assert.False(t, CheckPassword("", "pw"))

	_, err := HashPassword("", bcrypt.MinCost)
	assert.Error(t, err)
}
