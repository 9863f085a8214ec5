package state

import (
	"strings"

	"omnitoken/clinic-service/internal/models"
)

func indexOf[T any](items []T, id string, key func(T) string) int {
	for i := range items {
		if key(items[i]) == id {
			return i
		}
	}
	return -1
}

// RemoveAt drops the element at i, keeping order.
func RemoveAt[T any](items []T, i int) []T {
	return append(items[:i], items[i+1:]...)
}

func ClinicIndex(snap *models.Snapshot, id string) int {
	return indexOf(snap.Clinics, id, func(c models.Clinic) string { return c.ID })
}

func UserIndex(snap *models.Snapshot, id string) int {
	return indexOf(snap.Users, id, func(u models.User) string { return u.ID })
}

func AdvertiserIndex(snap *models.Snapshot, id string) int {
	return indexOf(snap.Advertisers, id, func(a models.Advertiser) string { return a.ID })
}

func CabinIndex(snap *models.Snapshot, id string) int {
	return indexOf(snap.Cabins, id, func(c models.Cabin) string { return c.ID })
}

func FormIndex(snap *models.Snapshot, id string) int {
	return indexOf(snap.Forms, id, func(f models.RegistrationForm) string { return f.ID })
}

func TokenIndex(snap *models.Snapshot, id string) int {
	return indexOf(snap.Tokens, id, func(t models.Token) string { return t.ID })
}

func VideoIndex(snap *models.Snapshot, id string) int {
	return indexOf(snap.Videos, id, func(v models.AdVideo) string { return v.ID })
}

func GroupIndex(snap *models.Snapshot, id string) int {
	return indexOf(snap.Groups, id, func(g models.ClinicGroup) string { return g.ID })
}

func SpecialtyIndex(snap *models.Snapshot, id string) int {
	return indexOf(snap.Specialties, id, func(s models.Specialty) string { return s.ID })
}

// GroupByForm finds the group whose registration form is formID.
func GroupByForm(snap *models.Snapshot, formID string) int {
	if formID == "" {
		return -1
	}
	return indexOf(snap.Groups, formID, func(g models.ClinicGroup) string { return g.FormID })
}

func UserByEmail(snap *models.Snapshot, email string) int {
	for i := range snap.Users {
		if strings.EqualFold(snap.Users[i].Email, email) {
			return i
		}
	}
	return -1
}
