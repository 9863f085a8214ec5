package admin

import (
	"context"
	"strings"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
)

func (s *Service) AddSpecialty(ctx context.Context, sp models.Specialty) (models.Specialty, error) {
	sp.ID = s.newID()
	sp.Name = strings.TrimSpace(sp.Name)
	if err := validate(sp); err != nil {
		return models.Specialty{}, err
	}
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		snap.Specialties = append(snap.Specialties, sp)
		b.upsert(store.TableSpecialties, sp)
		return nil
	})
	if err != nil {
		return models.Specialty{}, err
	}
	return sp, nil
}

// UpdateSpecialty replaces the specialty. A rename is carried into every
// clinic's specialty list and every doctor holding the old name.
func (s *Service) UpdateSpecialty(ctx context.Context, sp models.Specialty) (models.Specialty, error) {
	sp.Name = strings.TrimSpace(sp.Name)
	if err := validate(sp); err != nil {
		return models.Specialty{}, err
	}
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.SpecialtyIndex(snap, sp.ID)
		if i < 0 {
			return store.ErrSpecialtyNotFound
		}
		oldName := snap.Specialties[i].Name
		snap.Specialties[i] = sp
		b.upsert(store.TableSpecialties, sp)
		if oldName != sp.Name {
			rewriteSpecialty(snap, b, oldName, func(string) (string, bool) { return sp.Name, true })
		}
		return nil
	})
	if err != nil {
		return models.Specialty{}, err
	}
	return sp, nil
}

// DeleteSpecialty removes the specialty from the catalogue, from every
// clinic's list and from every doctor's profile.
func (s *Service) DeleteSpecialty(ctx context.Context, id string) error {
	return s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.SpecialtyIndex(snap, id)
		if i < 0 {
			return store.ErrSpecialtyNotFound
		}
		name := snap.Specialties[i].Name
		snap.Specialties = state.RemoveAt(snap.Specialties, i)
		b.delete(store.TableSpecialties, id)
		rewriteSpecialty(snap, b, name, func(string) (string, bool) { return "", false })
		return nil
	})
}

// rewriteSpecialty replaces or drops oldName wherever it is referenced.
// Records are copied before they change so queued pushes never see a
// later edit.
func rewriteSpecialty(snap *models.Snapshot, b *batch, oldName string, replace func(string) (string, bool)) {
	for i, c := range snap.Clinics {
		if !containsName(c.Specialties, oldName) {
			continue
		}
		next := make([]string, 0, len(c.Specialties))
		for _, name := range c.Specialties {
			if name != oldName {
				next = append(next, name)
				continue
			}
			if renamed, keep := replace(name); keep {
				next = append(next, renamed)
			}
		}
		c.Specialties = next
		snap.Clinics[i] = c
		b.upsert(store.TableClinics, c)
	}
	for i, u := range snap.Users {
		if u.Role != models.RoleDoctor || u.Specialty != oldName {
			continue
		}
		renamed, keep := replace(u.Specialty)
		if keep {
			u.Specialty = renamed
		} else {
			u.Specialty = ""
		}
		snap.Users[i] = u
		b.upsert(store.TableUsers, u)
	}
}

func containsName(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
