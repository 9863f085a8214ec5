package admin

import (
	"context"
	"strings"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
)

// AddGroup creates a group together with its registration form.
func (s *Service) AddGroup(ctx context.Context, group models.ClinicGroup) (models.ClinicGroup, models.RegistrationForm, error) {
	group.ID = s.newID()
	group = normalizeGroup(group)
	if err := validate(group); err != nil {
		return models.ClinicGroup{}, models.RegistrationForm{}, err
	}

	form := models.RegistrationForm{
		ID:       s.newID(),
		Name:     group.FormTitle,
		ClinicID: group.ClinicID,
		Fields:   models.FieldIDs(),
	}
	if form.Name == "" {
		form.Name = group.Name + " Registration"
	}
	form.QRCodeURL = s.QRCodeURL(form.ID)
	group.FormID = form.ID

	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		if err := checkGroupRefs(snap, group); err != nil {
			return err
		}
		snap.Groups = append(snap.Groups, group)
		snap.Forms = append(snap.Forms, form)
		b.upsert(store.TableGroups, group)
		b.upsert(store.TableForms, form)
		return nil
	})
	if err != nil {
		return models.ClinicGroup{}, models.RegistrationForm{}, err
	}
	s.logger.Info().Str("group_id", group.ID).Str("form_id", form.ID).Msg("group added")
	return group, form, nil
}

// UpdateGroup replaces the group and brings its form's name and fields
// back in line. A group that lost its form gets a new one.
func (s *Service) UpdateGroup(ctx context.Context, group models.ClinicGroup) (models.ClinicGroup, models.RegistrationForm, error) {
	group = normalizeGroup(group)
	if err := validate(group); err != nil {
		return models.ClinicGroup{}, models.RegistrationForm{}, err
	}

	var form models.RegistrationForm
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.GroupIndex(snap, group.ID)
		if i < 0 {
			return store.ErrGroupNotFound
		}
		if err := checkGroupRefs(snap, group); err != nil {
			return err
		}
		group.FormID = snap.Groups[i].FormID

		if f := state.FormIndex(snap, group.FormID); group.FormID != "" && f >= 0 {
			form = snap.Forms[f]
			if group.FormTitle != "" {
				form.Name = group.FormTitle
			}
			form.Fields = models.FieldIDs()
			snap.Forms[f] = form
		} else {
			form = models.RegistrationForm{
				ID:       s.newID(),
				Name:     group.FormTitle,
				ClinicID: group.ClinicID,
				Fields:   models.FieldIDs(),
			}
			if form.Name == "" {
				form.Name = group.Name + " Registration"
			}
			form.QRCodeURL = s.QRCodeURL(form.ID)
			group.FormID = form.ID
			snap.Forms = append(snap.Forms, form)
		}

		snap.Groups[i] = group
		b.upsert(store.TableGroups, group)
		b.upsert(store.TableForms, form)
		return nil
	})
	if err != nil {
		return models.ClinicGroup{}, models.RegistrationForm{}, err
	}
	return group, form, nil
}

// DeleteGroup removes the group and its registration form.
func (s *Service) DeleteGroup(ctx context.Context, id string) error {
	return s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.GroupIndex(snap, id)
		if i < 0 {
			return store.ErrGroupNotFound
		}
		formID := snap.Groups[i].FormID
		snap.Groups = state.RemoveAt(snap.Groups, i)
		b.delete(store.TableGroups, id)
		if f := state.FormIndex(snap, formID); formID != "" && f >= 0 {
			snap.Forms = state.RemoveAt(snap.Forms, f)
			b.delete(store.TableForms, formID)
		}
		return nil
	})
}

func normalizeGroup(g models.ClinicGroup) models.ClinicGroup {
	g.Name = strings.TrimSpace(g.Name)
	g.TokenInitial = strings.ToUpper(strings.TrimSpace(g.TokenInitial))
	g.FormTitle = strings.TrimSpace(g.FormTitle)
	g.DoctorIDs = trimAll(g.DoctorIDs)
	g.AssistantIDs = trimAll(g.AssistantIDs)
	g.ScreenIDs = trimAll(g.ScreenIDs)
	g.CabinIDs = trimAll(g.CabinIDs)
	g.FormFields = trimAll(g.FormFields)
	return g
}

// checkGroupRefs makes sure every member and cabin belongs to the
// group's clinic.
func checkGroupRefs(snap *models.Snapshot, g models.ClinicGroup) error {
	if state.ClinicIndex(snap, g.ClinicID) < 0 {
		return store.ErrClinicNotFound
	}
	for _, ids := range [][]string{g.DoctorIDs, g.AssistantIDs, g.ScreenIDs} {
		for _, id := range ids {
			i := state.UserIndex(snap, id)
			if i < 0 || snap.Users[i].ClinicID != g.ClinicID {
				return store.ErrUserNotFound
			}
		}
	}
	for _, id := range g.CabinIDs {
		i := state.CabinIndex(snap, id)
		if i < 0 || snap.Cabins[i].ClinicID != g.ClinicID {
			return store.ErrCabinNotFound
		}
	}
	return nil
}

func (s *Service) AddForm(ctx context.Context, form models.RegistrationForm) (models.RegistrationForm, error) {
	form.ID = s.newID()
	form = normalizeForm(form)
	form.QRCodeURL = s.QRCodeURL(form.ID)
	if err := validate(form); err != nil {
		return models.RegistrationForm{}, err
	}
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		if state.ClinicIndex(snap, form.ClinicID) < 0 {
			return store.ErrClinicNotFound
		}
		snap.Forms = append(snap.Forms, form)
		b.upsert(store.TableForms, form)
		return nil
	})
	if err != nil {
		return models.RegistrationForm{}, err
	}
	return form, nil
}

func (s *Service) UpdateForm(ctx context.Context, form models.RegistrationForm) (models.RegistrationForm, error) {
	form = normalizeForm(form)
	form.QRCodeURL = s.QRCodeURL(form.ID)
	if err := validate(form); err != nil {
		return models.RegistrationForm{}, err
	}
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.FormIndex(snap, form.ID)
		if i < 0 {
			return store.ErrFormNotFound
		}
		snap.Forms[i] = form
		b.upsert(store.TableForms, form)
		return nil
	})
	if err != nil {
		return models.RegistrationForm{}, err
	}
	return form, nil
}

func (s *Service) DeleteForm(ctx context.Context, id string) error {
	return s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.FormIndex(snap, id)
		if i < 0 {
			return store.ErrFormNotFound
		}
		snap.Forms = state.RemoveAt(snap.Forms, i)
		b.delete(store.TableForms, id)
		return nil
	})
}

func normalizeForm(f models.RegistrationForm) models.RegistrationForm {
	f.Name = strings.TrimSpace(f.Name)
	f.Fields = trimAll(f.Fields)
	if len(f.Fields) == 0 {
		f.Fields = models.FieldIDs()
	}
	return f
}

// RegistrationView is what a patient sees when opening a form's link.
type RegistrationView struct {
	Form   models.RegistrationForm `json:"form"`
	Clinic models.Clinic           `json:"clinic"`
	Groups []models.ClinicGroup    `json:"groups"`
	Fields []models.FieldOption    `json:"fields"`
}

// Registration resolves a form id to its clinic and groups.
func (s *Service) Registration(formID string) (RegistrationView, error) {
	var (
		view RegistrationView
		err  error
	)
	s.state.View(func(snap *models.Snapshot) {
		i := state.FormIndex(snap, formID)
		if i < 0 {
			err = store.ErrFormNotFound
			return
		}
		view.Form = snap.Forms[i]
		c := state.ClinicIndex(snap, view.Form.ClinicID)
		if c < 0 {
			err = store.ErrClinicNotFound
			return
		}
		view.Clinic = snap.Clinics[c]
		for _, g := range snap.Groups {
			if g.ClinicID == view.Form.ClinicID {
				view.Groups = append(view.Groups, g)
			}
		}
		for _, option := range models.FieldOptions {
			for _, id := range view.Form.Fields {
				if id == option.ID {
					view.Fields = append(view.Fields, option)
				}
			}
		}
	})
	if err != nil {
		return RegistrationView{}, err
	}
	return view, nil
}
