package httpapi

import (
	"context"
	"net/http"
	"strings"

	"omnitoken/clinic-service/internal/lifecycle"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/scope"
	"omnitoken/clinic-service/internal/store"
)

type createTokenRequest struct {
	PatientName string             `json:"patient_name"`
	PatientData models.PatientData `json:"patient_data"`
	ClinicID    string             `json:"clinic_id"`
	FormID      string             `json:"form_id"`
	GroupID     string             `json:"group_id"`
}

type statusRequest struct {
	Status  string `json:"status"`
	CabinID string `json:"cabin_id"`
}

type cabinRequest struct {
	CabinID string `json:"cabin_id"`
}

type callNextRequest struct {
	GroupID string `json:"group_id"`
	CabinID string `json:"cabin_id"`
}

func (h *Handler) handleTokens(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	var req createTokenRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	clinicID := strings.TrimSpace(req.ClinicID)
	if clinicID == "" {
		clinicID = user.ClinicID
	}
	if err := authorize(user, permTokens, clinicID); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.engine.CreateToken(r.Context(), lifecycle.CreateTokenInput{
		PatientName: req.PatientName,
		PatientData: req.PatientData,
		ClinicID:    clinicID,
		FormID:      strings.TrimSpace(req.FormID),
		GroupID:     strings.TrimSpace(req.GroupID),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, token)
}

// handleTokenActions serves /api/tokens/{id} and /api/tokens/{id}/{action}.
func (h *Handler) handleTokenActions(w http.ResponseWriter, r *http.Request) {
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	parts := pathParts(r.URL.Path, "/api/tokens/")
	if len(parts) == 0 || len(parts) > 2 {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		return
	}
	tokenID := parts[0]

	token, err := h.engine.GetToken(tokenID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !h.canActOnToken(user, token) {
		h.fail(w, r, store.ErrAccessDenied)
		return
	}
	if len(parts) == 1 {
		h.handleToken(w, r, token)
		return
	}

	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if !can(user, permTokens) {
		h.fail(w, r, store.ErrAccessDenied)
		return
	}

	var updated models.Token
	ctx := r.Context()
	switch parts[1] {
	case "status":
		var req statusRequest
		if !decodeJSON(w, r, &req, false) {
			return
		}
		updated, err = h.engine.UpdateStatus(ctx, tokenID, strings.ToUpper(strings.TrimSpace(req.Status)), strings.TrimSpace(req.CabinID))
	case "call":
		var req cabinRequest
		if !decodeJSON(w, r, &req, true) {
			return
		}
		cabinID := strings.TrimSpace(req.CabinID)
		if cabinID == "" {
			cabinID = token.CabinID
		}
		updated, err = h.engine.Call(ctx, tokenID, cabinID)
	case "recall":
		updated, err = h.engine.Recall(ctx, tokenID)
	case "start":
		updated, err = h.engine.StartConsultation(ctx, tokenID)
	case "complete":
		updated, err = h.engine.Complete(ctx, tokenID)
	case "cancel":
		updated, err = h.engine.Cancel(ctx, tokenID)
	case "no-show":
		updated, err = h.engine.NoShow(ctx, tokenID)
	default:
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		return
	}
	if err != nil {
		h.failNoShow(w, r, tokenID, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *Handler) handleToken(w http.ResponseWriter, r *http.Request, token models.Token) {
	user, _ := userFromContext(r.Context())
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, token)
	case http.MethodPut:
		if !can(user, permTokens) {
			h.fail(w, r, store.ErrAccessDenied)
			return
		}
		var req models.Token
		if !decodeJSON(w, r, &req, false) {
			return
		}
		req.ID = token.ID
		updated, err := h.engine.UpdateToken(r.Context(), req)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	case http.MethodDelete:
		if !can(user, permTokens) {
			h.fail(w, r, store.ErrAccessDenied)
			return
		}
		if err := h.engine.DeleteToken(r.Context(), token.ID); err != nil {
			h.fail(w, r, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *Handler) canActOnToken(user models.User, token models.Token) bool {
	var ok bool
	h.state.View(func(snap *models.Snapshot) {
		ok = scope.CanSeeToken(snap, user, token)
	})
	return ok
}

func (h *Handler) handleCallNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !can(user, permTokens) {
		h.fail(w, r, store.ErrAccessDenied)
		return
	}
	var req callNextRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	cabinID := strings.TrimSpace(req.CabinID)
	if err := h.checkCabinClinic(user, cabinID); err != nil {
		h.fail(w, r, err)
		return
	}
	token, err := h.engine.CallNext(r.Context(), user, strings.TrimSpace(req.GroupID), cabinID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// checkCabinClinic rejects cabins outside the user's clinic. Unknown
// cabins are left for the engine to report.
func (h *Handler) checkCabinClinic(user models.User, cabinID string) error {
	if cabinID == "" {
		return nil
	}
	clinicID := h.cabinClinic(cabinID)
	if clinicID == "" || scope.CanSeeClinic(user, clinicID) {
		return nil
	}
	return store.ErrAccessDenied
}

func (h *Handler) cabinClinic(cabinID string) string {
	var clinicID string
	h.state.View(func(snap *models.Snapshot) {
		for _, c := range snap.Cabins {
			if c.ID == cabinID {
				clinicID = c.ClinicID
				return
			}
		}
	})
	return clinicID
}

func (h *Handler) handleCabinLogin(w http.ResponseWriter, r *http.Request) {
	h.cabinSession(w, r, h.engine.DoctorCabinLogin)
}

func (h *Handler) handleCabinLogout(w http.ResponseWriter, r *http.Request) {
	h.cabinSession(w, r, h.engine.DoctorCabinLogout)
}

func (h *Handler) cabinSession(w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, doctor models.User, cabinID string) (models.Cabin, error)) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if user.Role != models.RoleDoctor {
		h.fail(w, r, store.ErrAccessDenied)
		return
	}
	var req cabinRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	cabin, err := fn(r.Context(), user, strings.TrimSpace(req.CabinID))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cabin)
}
