package httpapi

import (
	"net/http"
	"strings"

	"omnitoken/clinic-service/internal/lifecycle"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/scope"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req loginRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	result, err := h.auth.Login(r.Context(), strings.TrimSpace(req.Email), req.Password, r.UserAgent())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	sessionID, ok := sessionFromContext(r.Context())
	if !ok {
		writeError(w, requestIDFromRequest(r), http.StatusUnauthorized, "unauthorized", "missing session")
		return
	}
	if err := h.auth.Logout(r.Context(), sessionID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// handleState returns the caller's scoped view. source=remote reads the
// (cached) remote mirror instead of local state.
func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if r.URL.Query().Get("source") == "remote" {
		if h.remote == nil {
			writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "remote_unavailable", "remote store not configured")
			return
		}
		snap, err := h.remote.FetchStateForUser(r.Context(), user)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, snap)
		return
	}
	writeJSON(w, http.StatusOK, scope.ForUser(h.state.Snapshot(), user))
}

type registrationRequest struct {
	PatientName string             `json:"patient_name"`
	PatientData models.PatientData `json:"patient_data"`
	GroupID     string             `json:"group_id"`
}

// handleRegistration serves the public self-registration form: GET shows
// the form, POST issues a token.
func (h *Handler) handleRegistration(w http.ResponseWriter, r *http.Request) {
	parts := pathParts(r.URL.Path, "/api/register/")
	if len(parts) != 1 {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		return
	}
	formID := parts[0]

	switch r.Method {
	case http.MethodGet:
		view, err := h.admin.Registration(formID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, view)
	case http.MethodPost:
		view, err := h.admin.Registration(formID)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		var req registrationRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		token, err := h.engine.CreateToken(r.Context(), lifecycle.CreateTokenInput{
			PatientName: req.PatientName,
			PatientData: req.PatientData,
			ClinicID:    view.Form.ClinicID,
			FormID:      formID,
			GroupID:     strings.TrimSpace(req.GroupID),
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusCreated, token)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}
