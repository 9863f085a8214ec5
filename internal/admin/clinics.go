package admin

import (
	"context"
	"strings"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
)

func (s *Service) AddClinic(ctx context.Context, clinic models.Clinic) (models.Clinic, error) {
	clinic.ID = s.newID()
	clinic = normalizeClinic(clinic)
	if err := validate(clinic); err != nil {
		return models.Clinic{}, err
	}
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		snap.Clinics = append(snap.Clinics, clinic)
		b.upsert(store.TableClinics, clinic)
		return nil
	})
	if err != nil {
		return models.Clinic{}, err
	}
	s.logger.Info().Str("clinic_id", clinic.ID).Msg("clinic added")
	return clinic, nil
}

func (s *Service) UpdateClinic(ctx context.Context, clinic models.Clinic) (models.Clinic, error) {
	clinic = normalizeClinic(clinic)
	if err := validate(clinic); err != nil {
		return models.Clinic{}, err
	}
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.ClinicIndex(snap, clinic.ID)
		if i < 0 {
			return store.ErrClinicNotFound
		}
		snap.Clinics[i] = clinic
		b.upsert(store.TableClinics, clinic)
		return nil
	})
	if err != nil {
		return models.Clinic{}, err
	}
	return clinic, nil
}

// DeleteClinic removes only the clinic row; its staff and rooms stay.
func (s *Service) DeleteClinic(ctx context.Context, id string) error {
	return s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.ClinicIndex(snap, id)
		if i < 0 {
			return store.ErrClinicNotFound
		}
		snap.Clinics = state.RemoveAt(snap.Clinics, i)
		b.delete(store.TableClinics, id)
		return nil
	})
}

func normalizeClinic(c models.Clinic) models.Clinic {
	c.Name = strings.TrimSpace(c.Name)
	c.Email = strings.TrimSpace(c.Email)
	c.Specialties = trimAll(c.Specialties)
	return c
}

func (s *Service) AddCabin(ctx context.Context, cabin models.Cabin) (models.Cabin, error) {
	cabin.ID = s.newID()
	cabin.Name = strings.TrimSpace(cabin.Name)
	if err := validate(cabin); err != nil {
		return models.Cabin{}, err
	}
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		if state.ClinicIndex(snap, cabin.ClinicID) < 0 {
			return store.ErrClinicNotFound
		}
		snap.Cabins = append(snap.Cabins, cabin)
		b.upsert(store.TableCabins, cabin)
		return nil
	})
	if err != nil {
		return models.Cabin{}, err
	}
	return cabin, nil
}

// UpdateCabin renames a cabin. The doctor assignment is kept; it changes
// only through the cabin assignment commands.
func (s *Service) UpdateCabin(ctx context.Context, cabin models.Cabin) (models.Cabin, error) {
	cabin.Name = strings.TrimSpace(cabin.Name)
	if err := validate(cabin); err != nil {
		return models.Cabin{}, err
	}
	var updated models.Cabin
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.CabinIndex(snap, cabin.ID)
		if i < 0 {
			return store.ErrCabinNotFound
		}
		if snap.Cabins[i].ClinicID != cabin.ClinicID {
			return store.ErrCabinNotFound
		}
		updated = cabin
		updated.CurrentDoctorID = snap.Cabins[i].CurrentDoctorID
		snap.Cabins[i] = updated
		b.upsert(store.TableCabins, updated)
		return nil
	})
	if err != nil {
		return models.Cabin{}, err
	}
	return updated, nil
}

func (s *Service) DeleteCabin(ctx context.Context, id string) error {
	return s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.CabinIndex(snap, id)
		if i < 0 {
			return store.ErrCabinNotFound
		}
		snap.Cabins = state.RemoveAt(snap.Cabins, i)
		b.delete(store.TableCabins, id)
		return nil
	})
}
