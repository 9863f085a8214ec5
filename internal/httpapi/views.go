package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"omnitoken/clinic-service/internal/blob"
	"omnitoken/clinic-service/internal/export"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/queue"
	"omnitoken/clinic-service/internal/scope"
	"omnitoken/clinic-service/internal/store"
)

const maxUploadBytes = 512 << 20

type queueResponse struct {
	Tokens []models.Token `json:"tokens"`
}

type statsResponse struct {
	Stats  queue.Stats          `json:"stats"`
	Groups []queue.GroupSummary `json:"groups"`
}

type textResponse struct {
	Text string `json:"text"`
}

type uploadResponse struct {
	URL   string          `json:"url"`
	Video *models.AdVideo `json:"video,omitempty"`
}

// queueScope resolves the caller's group selector. Admins asking for the
// aggregate view get every group of their scope, including ungrouped
// tokens.
func (h *Handler) queueScope(snap *models.Snapshot, user models.User, selector string) ([]string, []models.ClinicGroup, error) {
	groups := scope.GroupsFor(snap, user)
	admin := user.Role == models.RoleCentralAdmin || user.Role == models.RoleClinicAdmin
	if admin && (selector == "" || selector == scope.AllGroups) {
		return nil, groups, nil
	}
	ids, ok := scope.GroupIDs(snap, user, selector)
	if !ok {
		return nil, nil, store.ErrGroupNotFound
	}
	return ids, groups, nil
}

func clinicFilter(user models.User) string {
	if user.Role == models.RoleCentralAdmin {
		return ""
	}
	return user.ClinicID
}

func (h *Handler) handleQueue(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !can(user, permReadQueue) {
		h.fail(w, r, store.ErrAccessDenied)
		return
	}
	query := r.URL.Query()
	sortKey := query.Get("sort")
	if !queue.ValidSortKey(sortKey) {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "unknown sort key")
		return
	}

	var (
		tokens []models.Token
		err    error
	)
	h.state.View(func(snap *models.Snapshot) {
		var (
			ids    []string
			groups []models.ClinicGroup
		)
		ids, groups, err = h.queueScope(snap, user, query.Get("group_id"))
		if err != nil {
			return
		}
		tokens = queue.LiveQueue(snap.Tokens, groups, queue.Filter{
			GroupIDs: ids,
			ClinicID: clinicFilter(user),
			Query:    query.Get("q"),
			SortKey:  sortKey,
			Order:    query.Get("order"),
		})
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queueResponse{Tokens: tokens})
}

func (h *Handler) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !can(user, permReadQueue) {
		h.fail(w, r, store.ErrAccessDenied)
		return
	}

	var (
		resp statsResponse
		err  error
	)
	h.state.View(func(snap *models.Snapshot) {
		var (
			ids    []string
			groups []models.ClinicGroup
		)
		ids, groups, err = h.queueScope(snap, user, r.URL.Query().Get("group_id"))
		if err != nil {
			return
		}
		tokens := clinicTokens(snap.Tokens, clinicFilter(user))
		resp.Stats = queue.Count(tokens, ids)
		if ids != nil {
			groups = selectGroups(groups, ids)
		}
		resp.Groups = queue.Summaries(tokens, groups)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func clinicTokens(tokens []models.Token, clinicID string) []models.Token {
	if clinicID == "" {
		return tokens
	}
	out := make([]models.Token, 0, len(tokens))
	for _, t := range tokens {
		if t.ClinicID == clinicID {
			out = append(out, t)
		}
	}
	return out
}

func selectGroups(groups []models.ClinicGroup, ids []string) []models.ClinicGroup {
	out := make([]models.ClinicGroup, 0, len(ids))
	for _, g := range groups {
		if contains(ids, g.ID) {
			out = append(out, g)
		}
	}
	return out
}

func (h *Handler) handlePatients(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !can(user, permReadQueue) || user.Role == models.RoleScreen {
		h.fail(w, r, store.ErrAccessDenied)
		return
	}
	query := r.URL.Query()
	var patients []queue.Patient
	h.state.View(func(snap *models.Snapshot) {
		patients = queue.UniquePatients(clinicTokens(snap.Tokens, clinicFilter(user)), query.Get("q"))
	})
	if key := query.Get("sort"); key != "" {
		queue.SortPatients(patients, key, query.Get("order"))
	}
	writeJSON(w, http.StatusOK, patients)
}

// historyRequest parses the visit history filter. name and phone identify
// the patient and are required.
func historyRequest(r *http.Request) (queue.HistoryFilter, error) {
	query := r.URL.Query()
	f := queue.HistoryFilter{
		Name:     query.Get("name"),
		Phone:    query.Get("phone"),
		DoctorID: query.Get("doctor_id"),
		Status:   strings.ToUpper(query.Get("status")),
	}
	if f.Name == "" {
		return f, fmt.Errorf("%w: name is required", store.ErrValidation)
	}
	if f.Status != "" && !models.ValidStatus(f.Status) {
		return f, fmt.Errorf("%w: unknown status %q", store.ErrValidation, f.Status)
	}
	var err error
	if f.From, err = parseDate(query.Get("from")); err != nil {
		return f, fmt.Errorf("%w: from must be YYYY-MM-DD", store.ErrValidation)
	}
	if f.Till, err = parseDate(query.Get("till")); err != nil {
		return f, fmt.Errorf("%w: till must be YYYY-MM-DD", store.ErrValidation)
	}
	return f, nil
}

func (h *Handler) history(r *http.Request, user models.User) ([]models.Token, export.Lookup, error) {
	if !can(user, permReadQueue) || user.Role == models.RoleScreen {
		return nil, export.Lookup{}, store.ErrAccessDenied
	}
	filter, err := historyRequest(r)
	if err != nil {
		return nil, export.Lookup{}, err
	}
	var (
		visits []models.Token
		lookup export.Lookup
	)
	h.state.View(func(snap *models.Snapshot) {
		visits = queue.VisitHistory(clinicTokens(snap.Tokens, clinicFilter(user)), filter)
		lookup = export.NewLookup(snap)
	})
	return visits, lookup, nil
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	visits, _, err := h.history(r, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, queueResponse{Tokens: visits})
}

func (h *Handler) handleHistoryExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatXLSX
	}
	if format != export.FormatXLSX && format != export.FormatCSV {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", export.ErrUnknownFormat.Error())
		return
	}
	visits, lookup, err := h.history(r, user)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	filename := fmt.Sprintf("visits-%s.%s", h.now().UTC().Format("20060102"), format)
	w.Header().Set("Content-Type", export.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if err := export.Visits(w, format, visits, lookup); err != nil {
		h.logger.Error().Err(err).Str("request_id", requestIDFromRequest(r)).Msg("visit export failed")
	}
}

// handleDisplayBoard returns the board of /api/display/{screenId}. Screens
// read their own board; staff may read any screen of their clinic.
func (h *Handler) handleDisplayBoard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	parts := pathParts(r.URL.Path, "/api/display/")
	if len(parts) != 1 {
		writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		return
	}
	screenID := parts[0]

	var (
		board queue.Board
		err   error
	)
	h.state.View(func(snap *models.Snapshot) {
		i := -1
		for idx, u := range snap.Users {
			if u.ID == screenID && u.Role == models.RoleScreen {
				i = idx
				break
			}
		}
		if i < 0 {
			err = store.ErrUserNotFound
			return
		}
		if user.ID != screenID && (user.Role == models.RoleScreen || !can(user, permReadQueue) || !scope.CanSeeClinic(user, snap.Users[i].ClinicID)) {
			err = store.ErrAccessDenied
			return
		}
		board = queue.BuildBoard(snap, screenID)
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

func (h *Handler) handleSlogan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	if _, ok := requireUser(w, r); !ok {
		return
	}
	clinic := strings.TrimSpace(r.URL.Query().Get("clinic"))
	if clinic == "" {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "clinic is required")
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: h.insights.Slogan(r.Context(), clinic)})
}

func (h *Handler) handleQueueInsight(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !can(user, permReadQueue) {
		h.fail(w, r, store.ErrAccessDenied)
		return
	}
	var (
		waiting int
		err     error
	)
	h.state.View(func(snap *models.Snapshot) {
		var ids []string
		ids, _, err = h.queueScope(snap, user, r.URL.Query().Get("group_id"))
		if err != nil {
			return
		}
		waiting = queue.Count(clinicTokens(snap.Tokens, clinicFilter(user)), ids).InQueue
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, textResponse{Text: h.insights.QueueInsight(r.Context(), waiting)})
}

// handleVideoUpload stores a multipart "file" through the uploader. With
// title and advertiser_id set it also registers the video.
func (h *Handler) handleVideoUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	user, ok := requireUser(w, r)
	if !ok {
		return
	}
	if !can(user, permVideos) {
		h.fail(w, r, store.ErrAccessDenied)
		return
	}
	if h.uploader == nil {
		writeError(w, requestIDFromRequest(r), http.StatusServiceUnavailable, "upload_unavailable", "asset storage not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, requestIDFromRequest(r), http.StatusBadRequest, "invalid_request", "file is required")
		return
	}
	defer file.Close()

	advertiserID := strings.TrimSpace(r.FormValue("advertiser_id"))
	if user.Role == models.RoleAdvertiser {
		if advertiserID != "" && advertiserID != user.AdvertiserID {
			h.fail(w, r, store.ErrAccessDenied)
			return
		}
		advertiserID = user.AdvertiserID
	}

	name := fmt.Sprintf("%d_%s", h.now().UnixMilli(), header.Filename)
	url, err := h.uploader.Upload(r.Context(), blob.Upload{
		Name:        name,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	})
	if err != nil {
		h.logger.Error().Err(err).Str("file", name).Msg("asset upload failed")
		writeError(w, requestIDFromRequest(r), http.StatusBadGateway, "upload_failed", "asset upload failed")
		return
	}

	resp := uploadResponse{URL: url}
	title := strings.TrimSpace(r.FormValue("title"))
	if title != "" && advertiserID != "" {
		video, err := h.admin.AddVideo(r.Context(), models.AdVideo{
			Title:        title,
			URL:          url,
			Type:         models.VideoB2,
			AdvertiserID: advertiserID,
		})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		resp.Video = &video
	}
	writeJSON(w, http.StatusCreated, resp)
}
