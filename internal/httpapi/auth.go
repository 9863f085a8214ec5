package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/scope"
	"omnitoken/clinic-service/internal/store"
)

type authContextKey struct{}

// SessionResolver maps a session id to the signed-in user.
type SessionResolver interface {
	SessionUser(ctx context.Context, sessionID string) (models.User, error)
}

type authInfo struct {
	SessionID string
	User      models.User
}

func AuthMiddleware(sessions SessionResolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isPublicEndpoint(r) {
			next.ServeHTTP(w, r)
			return
		}
		sessionID := sessionIDFromRequest(r)
		if sessionID == "" {
			writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
			return
		}
		user, err := sessions.SessionUser(r.Context(), sessionID)
		if err != nil {
			if errors.Is(err, store.ErrSessionNotFound) || errors.Is(err, store.ErrUserNotFound) {
				writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "invalid session")
				return
			}
			writeError(w, requestIDFromRequest(r), http.StatusInternalServerError, "internal_error", "internal server error")
			return
		}
		if info := requestInfoFromContext(r.Context()); info != nil {
			info.UserID = user.ID
			info.ClinicID = user.ClinicID
		}
		ctx := context.WithValue(r.Context(), authContextKey{}, authInfo{SessionID: sessionID, User: user})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userFromContext(ctx context.Context) (models.User, bool) {
	info, ok := ctx.Value(authContextKey{}).(authInfo)
	if !ok {
		return models.User{}, false
	}
	return info.User, true
}

func sessionFromContext(ctx context.Context) (string, bool) {
	info, ok := ctx.Value(authContextKey{}).(authInfo)
	if !ok {
		return "", false
	}
	return info.SessionID, true
}

// requireUser returns the signed-in user or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request) (models.User, bool) {
	user, ok := userFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return models.User{}, false
	}
	return user, true
}

const (
	permManagePlatform = "manage_platform"
	permManageClinic   = "manage_clinic"
	permTokens         = "tokens"
	permCabinAssign    = "cabin_assign"
	permReadQueue      = "read_queue"
	permAdView         = "ad_view"
	permVideos         = "videos"
)

// rolePermissions is the single source of write and read rights per role.
// Clinic-scoped rights additionally require the record to sit in the
// user's clinic.
var rolePermissions = map[string][]string{
	models.RoleCentralAdmin: {permManagePlatform, permManageClinic, permTokens, permCabinAssign, permReadQueue, permAdView, permVideos},
	models.RoleClinicAdmin:  {permManageClinic, permTokens, permCabinAssign, permReadQueue, permAdView},
	models.RoleDoctor:       {permTokens, permCabinAssign, permReadQueue},
	models.RoleAssistant:    {permTokens, permCabinAssign, permReadQueue},
	models.RoleScreen:       {permReadQueue, permAdView},
	models.RoleAdvertiser:   {permVideos},
}

func can(user models.User, perm string) bool {
	return contains(rolePermissions[user.Role], perm)
}

// authorize checks perm and, when clinicID is set, that the clinic is in
// the user's scope.
func authorize(user models.User, perm, clinicID string) error {
	if !can(user, perm) {
		return store.ErrAccessDenied
	}
	if clinicID != "" && !scope.CanSeeClinic(user, clinicID) {
		return store.ErrAccessDenied
	}
	return nil
}

func contains(values []string, value string) bool {
	for _, item := range values {
		if item == value {
			return true
		}
	}
	return false
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return strings.TrimSpace(r.Header.Get("X-Session-ID"))
}

func requestIDFromRequest(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-Request-ID"))
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return parts[1]
}

func isPublicEndpoint(r *http.Request) bool {
	switch r.URL.Path {
	case "/healthz", "/metrics", "/api/auth/login":
		return true
	}
	if strings.HasPrefix(r.URL.Path, "/api/register/") || strings.HasPrefix(r.URL.Path, "/display/") {
		return true
	}
	return r.Method == http.MethodOptions
}
