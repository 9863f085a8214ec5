package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"omnitoken/clinic-service/internal/admin"
	"omnitoken/clinic-service/internal/auth"
	"omnitoken/clinic-service/internal/blob"
	"omnitoken/clinic-service/internal/insight"
	"omnitoken/clinic-service/internal/lifecycle"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"

	"github.com/rs/zerolog"
)

// StateFetcher serves the remote, role-scoped view of the state.
type StateFetcher interface {
	FetchStateForUser(ctx context.Context, user models.User) (models.Snapshot, error)
}

// Uploader stores an ad asset and returns its public URL.
type Uploader interface {
	Upload(ctx context.Context, up blob.Upload) (string, error)
}

type Handler struct {
	state    *state.Store
	engine   *lifecycle.Engine
	admin    *admin.Service
	auth     *auth.Service
	insights *insight.Service
	uploader Uploader
	remote   StateFetcher
	logger   zerolog.Logger
	now      func() time.Time
	entities map[string]entityRoutes
}

type Options struct {
	Insights *insight.Service
	Uploader Uploader
	Remote   StateFetcher
	Logger   zerolog.Logger
}

type errorResponse struct {
	RequestID string        `json:"request_id"`
	Error     responseError `json:"error"`
}

type responseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func NewHandler(st *state.Store, engine *lifecycle.Engine, adminSvc *admin.Service, authSvc *auth.Service, options Options) *Handler {
	h := &Handler{
		state:    st,
		engine:   engine,
		admin:    adminSvc,
		auth:     authSvc,
		insights: options.Insights,
		uploader: options.Uploader,
		remote:   options.Remote,
		logger:   options.Logger,
		now:      time.Now,
	}
	if h.insights == nil {
		h.insights = insight.NewService(nil, options.Logger)
	}
	h.entities = h.entityTable()
	return h
}

func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", h.handleHealth)
	mux.HandleFunc("/api/auth/login", h.handleLogin)
	mux.HandleFunc("/api/auth/logout", h.handleLogout)
	mux.HandleFunc("/api/auth/me", h.handleMe)
	mux.HandleFunc("/api/state", h.handleState)
	mux.HandleFunc("/api/register/", h.handleRegistration)
	mux.HandleFunc("/api/tokens", h.handleTokens)
	mux.HandleFunc("/api/tokens/", h.handleTokenActions)
	mux.HandleFunc("/api/queue", h.handleQueue)
	mux.HandleFunc("/api/queue/stats", h.handleQueueStats)
	mux.HandleFunc("/api/queue/call-next", h.handleCallNext)
	mux.HandleFunc("/api/patients", h.handlePatients)
	mux.HandleFunc("/api/patients/history", h.handleHistory)
	mux.HandleFunc("/api/patients/history/export", h.handleHistoryExport)
	mux.HandleFunc("/api/display/", h.handleDisplayBoard)
	mux.HandleFunc("/api/cabins/login", h.handleCabinLogin)
	mux.HandleFunc("/api/cabins/logout", h.handleCabinLogout)
	mux.HandleFunc("/api/videos/upload", h.handleVideoUpload)
	mux.HandleFunc("/api/insights/slogan", h.handleSlogan)
	mux.HandleFunc("/api/insights/queue", h.handleQueueInsight)
	for name := range h.entities {
		mux.HandleFunc("/api/"+name, h.handleEntityCollection(name))
		mux.HandleFunc("/api/"+name+"/", h.handleEntityItem(name))
	}
	return mux
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	w.WriteHeader(http.StatusOK)
}

var errEmptyBody = errors.New("empty body")

// decodeJSON decodes a strict JSON body. With optional set an empty body
// leaves target untouched.
func decodeJSON(w http.ResponseWriter, r *http.Request, target interface{}, optional bool) bool {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	err := decoder.Decode(target)
	if errors.Is(err, io.EOF) {
		err = errEmptyBody
		if optional {
			return true
		}
	}
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_json", "invalid JSON payload")
		return false
	}
	return true
}

// pathParts splits what follows prefix into non-empty segments.
func pathParts(path, prefix string) []string {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return nil
	}
	return strings.Split(rest, "/")
}

func parseDate(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", value)
}

func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, store.ErrValidation):
		return http.StatusBadRequest, "invalid_request", err.Error()
	case errors.Is(err, store.ErrUnknownTable):
		return http.StatusBadRequest, "invalid_request", "unknown table"
	case errors.Is(err, store.ErrClinicNotFound):
		return http.StatusNotFound, "clinic_not_found", "clinic not found"
	case errors.Is(err, store.ErrGroupNotFound):
		return http.StatusNotFound, "group_not_found", "group not found"
	case errors.Is(err, store.ErrCabinNotFound):
		return http.StatusNotFound, "cabin_not_found", "cabin not found"
	case errors.Is(err, store.ErrFormNotFound):
		return http.StatusNotFound, "form_not_found", "form not found"
	case errors.Is(err, store.ErrTokenNotFound):
		return http.StatusNotFound, "token_not_found", "token not found"
	case errors.Is(err, store.ErrUserNotFound):
		return http.StatusNotFound, "user_not_found", "user not found"
	case errors.Is(err, store.ErrAdvertiserNotFound):
		return http.StatusNotFound, "advertiser_not_found", "advertiser not found"
	case errors.Is(err, store.ErrVideoNotFound):
		return http.StatusNotFound, "video_not_found", "video not found"
	case errors.Is(err, store.ErrSpecialtyNotFound):
		return http.StatusNotFound, "specialty_not_found", "specialty not found"
	case errors.Is(err, store.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition", "token state does not allow this action"
	case errors.Is(err, store.ErrNoShowTooEarly):
		return http.StatusConflict, "no_show_too_early", "no-show not yet allowed"
	case errors.Is(err, store.ErrCabinOccupied):
		return http.StatusConflict, "cabin_occupied", "cabin is serving another token"
	case errors.Is(err, store.ErrCabinLocked):
		return http.StatusConflict, "cabin_locked", "cabin has no doctor assigned"
	case errors.Is(err, store.ErrCabinTaken):
		return http.StatusConflict, "cabin_taken", "cabin assigned to another doctor"
	case errors.Is(err, store.ErrQueueEmpty):
		return http.StatusConflict, "queue_empty", "no waiting tokens"
	case errors.Is(err, store.ErrDuplicateEmail):
		return http.StatusConflict, "duplicate_email", "email already registered"
	case errors.Is(err, store.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials", "invalid email or password"
	case errors.Is(err, store.ErrSessionNotFound):
		return http.StatusUnauthorized, "unauthorized", "invalid session"
	case errors.Is(err, store.ErrAccessDenied):
		return http.StatusForbidden, "access_denied", "access denied"
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

// fail maps err and writes it. Unmapped errors are logged.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := mapError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Str("request_id", requestIDFromRequest(r)).Msg("request failed")
	}
	writeError(w, requestIDFromRequest(r), status, code, msg)
}

func (h *Handler) failNoShow(w http.ResponseWriter, r *http.Request, tokenID string, err error) {
	if !errors.Is(err, store.ErrNoShowTooEarly) {
		h.fail(w, r, err)
		return
	}
	remaining, cerr := h.engine.NoShowCountdown(tokenID)
	if cerr != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Retry-After", strconv.Itoa(remaining))
	writeError(w, requestIDFromRequest(r), http.StatusConflict, "no_show_too_early",
		fmt.Sprintf("no-show allowed in %d seconds", remaining))
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, errorResponse{
		RequestID: requestID,
		Error: responseError{
			Code:    code,
			Message: message,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}
