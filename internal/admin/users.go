package admin

import (
	"context"
	"fmt"
	"strings"

	"omnitoken/clinic-service/internal/auth"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
)

// AddUser creates a staff account with the given initial password.
func (s *Service) AddUser(ctx context.Context, user models.User, password string) (models.User, error) {
	user.ID = s.newID()
	user = normalizeUser(user)
	if err := validate(user); err != nil {
		return models.User{}, err
	}
	if password == "" {
		return models.User{}, fmt.Errorf("%w: password is required", store.ErrValidation)
	}
	hash, err := auth.HashPassword(password, s.bcryptCost)
	if err != nil {
		return models.User{}, err
	}
	user.PasswordHash = hash

	err = s.mutate(func(snap *models.Snapshot, b *batch) error {
		if err := checkUserRefs(snap, user); err != nil {
			return err
		}
		if state.UserByEmail(snap, user.Email) >= 0 {
			return store.ErrDuplicateEmail
		}
		snap.Users = append(snap.Users, user)
		b.upsert(store.TableUsers, user)
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	s.logger.Info().Str("user_id", user.ID).Str("role", user.Role).Msg("user added")
	user.PasswordHash = ""
	return user, nil
}

// UpdateUser replaces a user's profile. The stored password hash is kept
// unless password is non-empty.
func (s *Service) UpdateUser(ctx context.Context, user models.User, password string) (models.User, error) {
	user = normalizeUser(user)
	if err := validate(user); err != nil {
		return models.User{}, err
	}
	var newHash string
	if password != "" {
		hash, err := auth.HashPassword(password, s.bcryptCost)
		if err != nil {
			return models.User{}, err
		}
		newHash = hash
	}

	var updated models.User
	err := s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.UserIndex(snap, user.ID)
		if i < 0 {
			return store.ErrUserNotFound
		}
		if err := checkUserRefs(snap, user); err != nil {
			return err
		}
		if j := state.UserByEmail(snap, user.Email); j >= 0 && j != i {
			return store.ErrDuplicateEmail
		}
		updated = user
		updated.PasswordHash = snap.Users[i].PasswordHash
		if newHash != "" {
			updated.PasswordHash = newHash
		}
		snap.Users[i] = updated
		b.upsert(store.TableUsers, updated)
		return nil
	})
	if err != nil {
		return models.User{}, err
	}
	updated.PasswordHash = ""
	return updated, nil
}

func (s *Service) DeleteUser(ctx context.Context, id string) error {
	return s.mutate(func(snap *models.Snapshot, b *batch) error {
		i := state.UserIndex(snap, id)
		if i < 0 {
			return store.ErrUserNotFound
		}
		snap.Users = state.RemoveAt(snap.Users, i)
		b.delete(store.TableUsers, id)
		return nil
	})
}

func normalizeUser(u models.User) models.User {
	u.Name = strings.TrimSpace(u.Name)
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.Specialty = strings.TrimSpace(u.Specialty)
	if models.IsClinicStaff(u.Role) {
		u.AdvertiserID = ""
	}
	if u.Role == models.RoleAdvertiser {
		u.ClinicID = ""
	}
	return u
}

func checkUserRefs(snap *models.Snapshot, u models.User) error {
	if models.IsClinicStaff(u.Role) {
		if u.ClinicID == "" {
			return fmt.Errorf("%w: clinic_id is required for %s", store.ErrValidation, u.Role)
		}
		if state.ClinicIndex(snap, u.ClinicID) < 0 {
			return store.ErrClinicNotFound
		}
	}
	if u.Role == models.RoleAdvertiser && state.AdvertiserIndex(snap, u.AdvertiserID) < 0 {
		return store.ErrAdvertiserNotFound
	}
	return nil
}
