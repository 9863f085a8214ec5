package lifecycle

import (
	"context"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
)

// AssignCabinToDoctor sets or, with an empty doctorID, clears the cabin's
// current doctor. It does not touch tokens; a cabin without a doctor is
// locked for new calls.
func (e *Engine) AssignCabinToDoctor(ctx context.Context, cabinID, doctorID string) (models.Cabin, error) {
	var updated models.Cabin
	err := e.state.Update(func(snap *models.Snapshot) error {
		i := state.CabinIndex(snap, cabinID)
		if i < 0 {
			return store.ErrCabinNotFound
		}
		if doctorID != "" {
			if err := checkDoctor(snap, doctorID, snap.Cabins[i].ClinicID); err != nil {
				return err
			}
		}
		snap.Cabins[i].CurrentDoctorID = doctorID
		updated = snap.Cabins[i]
		return nil
	})
	if err != nil {
		return models.Cabin{}, err
	}

	e.logger.Info().Str("cabin_id", cabinID).Str("doctor_id", doctorID).Msg("cabin assignment changed")
	e.sync.Upsert(store.TableCabins, updated)
	return updated, nil
}

// DoctorCabinLogin lets a doctor take a vacant cabin of one of their groups.
func (e *Engine) DoctorCabinLogin(ctx context.Context, doctor models.User, cabinID string) (models.Cabin, error) {
	var updated models.Cabin
	err := e.state.Update(func(snap *models.Snapshot) error {
		i := state.CabinIndex(snap, cabinID)
		if i < 0 {
			return store.ErrCabinNotFound
		}
		cabin := snap.Cabins[i]
		if !worksInCabin(snap, doctor.ID, cabin) {
			return store.ErrAccessDenied
		}
		if cabin.CurrentDoctorID != "" && cabin.CurrentDoctorID != doctor.ID {
			return store.ErrCabinTaken
		}
		snap.Cabins[i].CurrentDoctorID = doctor.ID
		updated = snap.Cabins[i]
		return nil
	})
	if err != nil {
		return models.Cabin{}, err
	}
	e.sync.Upsert(store.TableCabins, updated)
	return updated, nil
}

// DoctorCabinLogout releases a cabin held by the doctor.
func (e *Engine) DoctorCabinLogout(ctx context.Context, doctor models.User, cabinID string) (models.Cabin, error) {
	var updated models.Cabin
	err := e.state.Update(func(snap *models.Snapshot) error {
		i := state.CabinIndex(snap, cabinID)
		if i < 0 {
			return store.ErrCabinNotFound
		}
		if snap.Cabins[i].CurrentDoctorID != doctor.ID {
			return store.ErrCabinTaken
		}
		snap.Cabins[i].CurrentDoctorID = ""
		updated = snap.Cabins[i]
		return nil
	})
	if err != nil {
		return models.Cabin{}, err
	}
	e.sync.Upsert(store.TableCabins, updated)
	return updated, nil
}

func checkDoctor(snap *models.Snapshot, doctorID, clinicID string) error {
	i := state.UserIndex(snap, doctorID)
	if i < 0 {
		return store.ErrUserNotFound
	}
	user := snap.Users[i]
	if user.Role != models.RoleDoctor || user.ClinicID != clinicID {
		return store.ErrUserNotFound
	}
	return nil
}

func worksInCabin(snap *models.Snapshot, doctorID string, cabin models.Cabin) bool {
	for _, g := range snap.Groups {
		if g.ClinicID == cabin.ClinicID && g.HasCabin(cabin.ID) && containsString(g.DoctorIDs, doctorID) {
			return true
		}
	}
	return false
}

func containsString(values []string, value string) bool {
	for _, v := range values {
		if v == value {
			return true
		}
	}
	return false
}
