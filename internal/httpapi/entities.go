package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/scope"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
)

type entityFunc func(r *http.Request, user models.User, id string) (interface{}, error)

// entityRoutes wires one entity's collection and item endpoints. Each
// func enforces its own permissions.
type entityRoutes struct {
	list    func(r *http.Request, user models.User) interface{}
	add     func(r *http.Request, user models.User) (interface{}, error)
	update  entityFunc
	remove  func(r *http.Request, user models.User, id string) error
	actions map[string]entityFunc
}

type userRequest struct {
	models.User
	Password string `json:"password"`
}

type advertiserRequest struct {
	models.Advertiser
	Password string `json:"password"`
}

type advertiserResponse struct {
	Advertiser models.Advertiser `json:"advertiser"`
	User       models.User       `json:"user"`
}

type groupResponse struct {
	Group models.ClinicGroup      `json:"group"`
	Form  models.RegistrationForm `json:"form"`
}

type assignDoctorRequest struct {
	DoctorID string `json:"doctor_id"`
}

func (h *Handler) handleEntityCollection(name string) http.HandlerFunc {
	routes := h.entities[name]
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, routes.list(r, user))
		case http.MethodPost:
			created, err := routes.add(r, user)
			if err != nil {
				h.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, created)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func (h *Handler) handleEntityItem(name string) http.HandlerFunc {
	routes := h.entities[name]
	prefix := "/api/" + name + "/"
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := requireUser(w, r)
		if !ok {
			return
		}
		parts := pathParts(r.URL.Path, prefix)
		switch len(parts) {
		case 1:
			switch r.Method {
			case http.MethodPut:
				updated, err := routes.update(r, user, parts[0])
				if err != nil {
					h.fail(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, updated)
			case http.MethodDelete:
				if err := routes.remove(r, user, parts[0]); err != nil {
					h.fail(w, r, err)
					return
				}
				w.WriteHeader(http.StatusNoContent)
			default:
				w.WriteHeader(http.StatusMethodNotAllowed)
			}
		case 2:
			action, ok := routes.actions[parts[1]]
			if !ok {
				writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
				return
			}
			if r.Method != http.MethodPost {
				w.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			result, err := action(r, user, parts[0])
			if err != nil {
				h.fail(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, result)
		default:
			writeError(w, requestIDFromRequest(r), http.StatusNotFound, "not_found", "not found")
		}
	}
}

// decodeEntity is decodeJSON for the entity funcs, which report errors
// instead of writing them.
func decodeEntity(r *http.Request, target interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", store.ErrValidation)
		}
		return fmt.Errorf("%w: invalid JSON payload", store.ErrValidation)
	}
	return nil
}

// scoped returns the caller's role-scoped view of the state.
func (h *Handler) scoped(user models.User) models.Snapshot {
	return scope.ForUser(h.state.Snapshot(), user)
}

// clinicOf returns the clinic a stored record belongs to, or "" when the
// record does not exist.
func (h *Handler) clinicOf(table, id string) string {
	var clinicID string
	h.state.View(func(snap *models.Snapshot) {
		switch table {
		case store.TableUsers:
			if i := state.UserIndex(snap, id); i >= 0 {
				clinicID = snap.Users[i].ClinicID
			}
		case store.TableCabins:
			if i := state.CabinIndex(snap, id); i >= 0 {
				clinicID = snap.Cabins[i].ClinicID
			}
		case store.TableGroups:
			if i := state.GroupIndex(snap, id); i >= 0 {
				clinicID = snap.Groups[i].ClinicID
			}
		case store.TableForms:
			if i := state.FormIndex(snap, id); i >= 0 {
				clinicID = snap.Forms[i].ClinicID
			}
		}
	})
	return clinicID
}

// authorizeExisting checks perm against the clinic of the stored record.
// Missing records pass so the service can report not found.
func (h *Handler) authorizeExisting(user models.User, perm, table, id string) error {
	if !can(user, perm) {
		return store.ErrAccessDenied
	}
	if clinicID := h.clinicOf(table, id); clinicID != "" && !scope.CanSeeClinic(user, clinicID) {
		return store.ErrAccessDenied
	}
	return nil
}

func (h *Handler) videoOwner(id string) string {
	var owner string
	h.state.View(func(snap *models.Snapshot) {
		if i := state.VideoIndex(snap, id); i >= 0 {
			owner = snap.Videos[i].AdvertiserID
		}
	})
	return owner
}

func (h *Handler) entityTable() map[string]entityRoutes {
	return map[string]entityRoutes{
		"clinics":     h.clinicRoutes(),
		"users":       h.userRoutes(),
		"cabins":      h.cabinRoutes(),
		"groups":      h.groupRoutes(),
		"forms":       h.formRoutes(),
		"advertisers": h.advertiserRoutes(),
		"videos":      h.videoRoutes(),
		"specialties": h.specialtyRoutes(),
	}
}

func (h *Handler) clinicRoutes() entityRoutes {
	return entityRoutes{
		list: func(r *http.Request, user models.User) interface{} {
			return nonNil(h.scoped(user).Clinics)
		},
		add: func(r *http.Request, user models.User) (interface{}, error) {
			if !can(user, permManagePlatform) {
				return nil, store.ErrAccessDenied
			}
			var req models.Clinic
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			return h.admin.AddClinic(r.Context(), req)
		},
		update: func(r *http.Request, user models.User, id string) (interface{}, error) {
			if err := authorize(user, permManageClinic, id); err != nil {
				return nil, err
			}
			var req models.Clinic
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			req.ID = id
			return h.admin.UpdateClinic(r.Context(), req)
		},
		remove: func(r *http.Request, user models.User, id string) error {
			if !can(user, permManagePlatform) {
				return store.ErrAccessDenied
			}
			return h.admin.DeleteClinic(r.Context(), id)
		},
	}
}

// checkStaffAccount limits what a clinic admin may do with accounts:
// only clinic staff, only in their own clinic.
func checkStaffAccount(user models.User, account *models.User) error {
	if can(user, permManagePlatform) {
		return nil
	}
	if !can(user, permManageClinic) || !models.IsClinicStaff(account.Role) {
		return store.ErrAccessDenied
	}
	if account.ClinicID == "" {
		account.ClinicID = user.ClinicID
	}
	if account.ClinicID != user.ClinicID {
		return store.ErrAccessDenied
	}
	return nil
}

// authorizeAccount checks that the caller may change the stored account.
// Clinic admins only reach accounts of their own clinic.
func (h *Handler) authorizeAccount(user models.User, id string) error {
	if can(user, permManagePlatform) {
		return nil
	}
	if !can(user, permManageClinic) {
		return store.ErrAccessDenied
	}
	clinicID := h.clinicOf(store.TableUsers, id)
	if clinicID == "" || clinicID != user.ClinicID {
		return store.ErrAccessDenied
	}
	return nil
}

func (h *Handler) userRoutes() entityRoutes {
	return entityRoutes{
		list: func(r *http.Request, user models.User) interface{} {
			if !can(user, permManageClinic) {
				return []models.User{}
			}
			return nonNil(h.scoped(user).Users)
		},
		add: func(r *http.Request, user models.User) (interface{}, error) {
			var req userRequest
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			if err := checkStaffAccount(user, &req.User); err != nil {
				return nil, err
			}
			return h.admin.AddUser(r.Context(), req.User, req.Password)
		},
		update: func(r *http.Request, user models.User, id string) (interface{}, error) {
			if err := h.authorizeAccount(user, id); err != nil {
				return nil, err
			}
			var req userRequest
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			req.ID = id
			if err := checkStaffAccount(user, &req.User); err != nil {
				return nil, err
			}
			return h.admin.UpdateUser(r.Context(), req.User, req.Password)
		},
		remove: func(r *http.Request, user models.User, id string) error {
			if err := h.authorizeAccount(user, id); err != nil {
				return err
			}
			return h.admin.DeleteUser(r.Context(), id)
		},
	}
}

func (h *Handler) cabinRoutes() entityRoutes {
	return entityRoutes{
		list: func(r *http.Request, user models.User) interface{} {
			return nonNil(h.scoped(user).Cabins)
		},
		add: func(r *http.Request, user models.User) (interface{}, error) {
			var req models.Cabin
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			if req.ClinicID == "" {
				req.ClinicID = user.ClinicID
			}
			if err := authorize(user, permManageClinic, req.ClinicID); err != nil {
				return nil, err
			}
			return h.admin.AddCabin(r.Context(), req)
		},
		update: func(r *http.Request, user models.User, id string) (interface{}, error) {
			if err := h.authorizeExisting(user, permManageClinic, store.TableCabins, id); err != nil {
				return nil, err
			}
			var req models.Cabin
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			req.ID = id
			if err := authorize(user, permManageClinic, req.ClinicID); err != nil {
				return nil, err
			}
			return h.admin.UpdateCabin(r.Context(), req)
		},
		remove: func(r *http.Request, user models.User, id string) error {
			if err := h.authorizeExisting(user, permManageClinic, store.TableCabins, id); err != nil {
				return err
			}
			return h.admin.DeleteCabin(r.Context(), id)
		},
		actions: map[string]entityFunc{
			"doctor": func(r *http.Request, user models.User, id string) (interface{}, error) {
				if err := h.authorizeExisting(user, permCabinAssign, store.TableCabins, id); err != nil {
					return nil, err
				}
				var req assignDoctorRequest
				if err := decodeEntity(r, &req); err != nil {
					return nil, err
				}
				return h.engine.AssignCabinToDoctor(r.Context(), id, strings.TrimSpace(req.DoctorID))
			},
		},
	}
}

func (h *Handler) groupRoutes() entityRoutes {
	return entityRoutes{
		list: func(r *http.Request, user models.User) interface{} {
			return nonNil(h.scoped(user).Groups)
		},
		add: func(r *http.Request, user models.User) (interface{}, error) {
			var req models.ClinicGroup
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			if req.ClinicID == "" {
				req.ClinicID = user.ClinicID
			}
			if err := authorize(user, permManageClinic, req.ClinicID); err != nil {
				return nil, err
			}
			group, form, err := h.admin.AddGroup(r.Context(), req)
			if err != nil {
				return nil, err
			}
			return groupResponse{Group: group, Form: form}, nil
		},
		update: func(r *http.Request, user models.User, id string) (interface{}, error) {
			if err := h.authorizeExisting(user, permManageClinic, store.TableGroups, id); err != nil {
				return nil, err
			}
			var req models.ClinicGroup
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			req.ID = id
			if err := authorize(user, permManageClinic, req.ClinicID); err != nil {
				return nil, err
			}
			group, form, err := h.admin.UpdateGroup(r.Context(), req)
			if err != nil {
				return nil, err
			}
			return groupResponse{Group: group, Form: form}, nil
		},
		remove: func(r *http.Request, user models.User, id string) error {
			if err := h.authorizeExisting(user, permManageClinic, store.TableGroups, id); err != nil {
				return err
			}
			return h.admin.DeleteGroup(r.Context(), id)
		},
	}
}

func (h *Handler) formRoutes() entityRoutes {
	return entityRoutes{
		list: func(r *http.Request, user models.User) interface{} {
			return nonNil(h.scoped(user).Forms)
		},
		add: func(r *http.Request, user models.User) (interface{}, error) {
			var req models.RegistrationForm
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			if req.ClinicID == "" {
				req.ClinicID = user.ClinicID
			}
			if err := authorize(user, permManageClinic, req.ClinicID); err != nil {
				return nil, err
			}
			return h.admin.AddForm(r.Context(), req)
		},
		update: func(r *http.Request, user models.User, id string) (interface{}, error) {
			if err := h.authorizeExisting(user, permManageClinic, store.TableForms, id); err != nil {
				return nil, err
			}
			var req models.RegistrationForm
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			req.ID = id
			if err := authorize(user, permManageClinic, req.ClinicID); err != nil {
				return nil, err
			}
			return h.admin.UpdateForm(r.Context(), req)
		},
		remove: func(r *http.Request, user models.User, id string) error {
			if err := h.authorizeExisting(user, permManageClinic, store.TableForms, id); err != nil {
				return err
			}
			return h.admin.DeleteForm(r.Context(), id)
		},
	}
}

func (h *Handler) advertiserRoutes() entityRoutes {
	return entityRoutes{
		list: func(r *http.Request, user models.User) interface{} {
			return nonNil(h.scoped(user).Advertisers)
		},
		add: func(r *http.Request, user models.User) (interface{}, error) {
			if !can(user, permManagePlatform) {
				return nil, store.ErrAccessDenied
			}
			var req advertiserRequest
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			adv, account, err := h.admin.AddAdvertiser(r.Context(), req.Advertiser, req.Password)
			if err != nil {
				return nil, err
			}
			return advertiserResponse{Advertiser: adv, User: account}, nil
		},
		update: func(r *http.Request, user models.User, id string) (interface{}, error) {
			if !can(user, permManagePlatform) {
				return nil, store.ErrAccessDenied
			}
			var req models.Advertiser
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			req.ID = id
			return h.admin.UpdateAdvertiser(r.Context(), req)
		},
		remove: func(r *http.Request, user models.User, id string) error {
			if !can(user, permManagePlatform) {
				return store.ErrAccessDenied
			}
			return h.admin.DeleteAdvertiser(r.Context(), id)
		},
	}
}

// checkVideoOwner pins advertisers to their own videos.
func checkVideoOwner(user models.User, advertiserID string) error {
	if !can(user, permVideos) {
		return store.ErrAccessDenied
	}
	if user.Role == models.RoleAdvertiser && advertiserID != user.AdvertiserID {
		return store.ErrAccessDenied
	}
	return nil
}

func (h *Handler) videoRoutes() entityRoutes {
	return entityRoutes{
		list: func(r *http.Request, user models.User) interface{} {
			return nonNil(h.scoped(user).Videos)
		},
		add: func(r *http.Request, user models.User) (interface{}, error) {
			var req models.AdVideo
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			if user.Role == models.RoleAdvertiser && req.AdvertiserID == "" {
				req.AdvertiserID = user.AdvertiserID
			}
			if err := checkVideoOwner(user, req.AdvertiserID); err != nil {
				return nil, err
			}
			return h.admin.AddVideo(r.Context(), req)
		},
		update: func(r *http.Request, user models.User, id string) (interface{}, error) {
			if err := checkVideoOwner(user, h.videoOwner(id)); err != nil {
				return nil, err
			}
			var req models.AdVideo
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			req.ID = id
			if user.Role == models.RoleAdvertiser && req.AdvertiserID == "" {
				req.AdvertiserID = user.AdvertiserID
			}
			if err := checkVideoOwner(user, req.AdvertiserID); err != nil {
				return nil, err
			}
			return h.admin.UpdateVideo(r.Context(), req)
		},
		remove: func(r *http.Request, user models.User, id string) error {
			if err := checkVideoOwner(user, h.videoOwner(id)); err != nil {
				return err
			}
			return h.admin.DeleteVideo(r.Context(), id)
		},
		actions: map[string]entityFunc{
			"view": func(r *http.Request, user models.User, id string) (interface{}, error) {
				if !can(user, permAdView) {
					return nil, store.ErrAccessDenied
				}
				return h.admin.RecordAdView(r.Context(), id)
			},
		},
	}
}

func (h *Handler) specialtyRoutes() entityRoutes {
	return entityRoutes{
		list: func(r *http.Request, user models.User) interface{} {
			return nonNil(h.state.Snapshot().Specialties)
		},
		add: func(r *http.Request, user models.User) (interface{}, error) {
			if !can(user, permManagePlatform) {
				return nil, store.ErrAccessDenied
			}
			var req models.Specialty
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			return h.admin.AddSpecialty(r.Context(), req)
		},
		update: func(r *http.Request, user models.User, id string) (interface{}, error) {
			if !can(user, permManagePlatform) {
				return nil, store.ErrAccessDenied
			}
			var req models.Specialty
			if err := decodeEntity(r, &req); err != nil {
				return nil, err
			}
			req.ID = id
			return h.admin.UpdateSpecialty(r.Context(), req)
		},
		remove: func(r *http.Request, user models.User, id string) error {
			if !can(user, permManagePlatform) {
				return store.ErrAccessDenied
			}
			return h.admin.DeleteSpecialty(r.Context(), id)
		},
	}
}

// nonNil keeps empty lists encoding as [] rather than null.
func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
