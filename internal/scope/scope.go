// Package scope decides what part of the entity state a user may see.
// Every read path (HTTP state endpoint, queue views, display boards) goes
// through these functions instead of filtering on its own.
package scope

import "omnitoken/clinic-service/internal/models"

// AllGroups selects the aggregate view across every group a user belongs to.
const AllGroups = "ALL"

// ForUser returns the role-scoped copy of snap. It applies the same rules
// as the remote store's scoped fetch so local and remote reads agree.
func ForUser(snap models.Snapshot, user models.User) models.Snapshot {
	out := models.Snapshot{Specialties: snap.Specialties}

	switch {
	case user.Role == models.RoleCentralAdmin:
		out = snap
	case models.IsClinicStaff(user.Role):
		if user.ClinicID == "" {
			break
		}
		out.Clinics = filter(snap.Clinics, func(c models.Clinic) bool { return c.ID == user.ClinicID })
		out.Users = filter(snap.Users, func(u models.User) bool { return u.ClinicID == user.ClinicID })
		out.Cabins = filter(snap.Cabins, func(c models.Cabin) bool { return c.ClinicID == user.ClinicID })
		out.Forms = filter(snap.Forms, func(f models.RegistrationForm) bool { return f.ClinicID == user.ClinicID })
		out.Tokens = filter(snap.Tokens, func(t models.Token) bool { return t.ClinicID == user.ClinicID })
		out.Groups = filter(snap.Groups, func(g models.ClinicGroup) bool { return g.ClinicID == user.ClinicID })
		out.Videos = snap.Videos
	case user.Role == models.RoleAdvertiser:
		if user.AdvertiserID == "" {
			break
		}
		out.Advertisers = filter(snap.Advertisers, func(a models.Advertiser) bool { return a.ID == user.AdvertiserID })
		out.Videos = filter(snap.Videos, func(v models.AdVideo) bool { return v.AdvertiserID == user.AdvertiserID })
	}
	return out.Clone()
}

// GroupsFor lists the groups whose queues the user works on. Admins see
// every group of their clinic (central admins every group); other staff
// only the groups they are assigned to.
func GroupsFor(snap *models.Snapshot, user models.User) []models.ClinicGroup {
	switch user.Role {
	case models.RoleCentralAdmin:
		return append([]models.ClinicGroup(nil), snap.Groups...)
	case models.RoleClinicAdmin:
		return filter(snap.Groups, func(g models.ClinicGroup) bool { return g.ClinicID == user.ClinicID })
	case models.RoleDoctor, models.RoleAssistant, models.RoleScreen:
		return filter(snap.Groups, func(g models.ClinicGroup) bool {
			return g.ClinicID == user.ClinicID && g.HasMember(user.ID)
		})
	default:
		return nil
	}
}

// GroupIDs resolves a group selector to concrete group ids. AllGroups
// expands to every group in GroupsFor; any other id must be one of them.
func GroupIDs(snap *models.Snapshot, user models.User, selector string) ([]string, bool) {
	groups := GroupsFor(snap, user)
	if selector == "" || selector == AllGroups {
		ids := make([]string, 0, len(groups))
		for _, g := range groups {
			ids = append(ids, g.ID)
		}
		return ids, true
	}
	for _, g := range groups {
		if g.ID == selector {
			return []string{g.ID}, true
		}
	}
	return nil, false
}

// CanSeeClinic reports whether clinic-scoped data of clinicID is visible.
func CanSeeClinic(user models.User, clinicID string) bool {
	if user.Role == models.RoleCentralAdmin {
		return true
	}
	return models.IsClinicStaff(user.Role) && user.ClinicID != "" && user.ClinicID == clinicID
}

// CanSeeToken reports whether the user may read or act on the token.
func CanSeeToken(snap *models.Snapshot, user models.User, token models.Token) bool {
	if !CanSeeClinic(user, token.ClinicID) {
		return false
	}
	switch user.Role {
	case models.RoleCentralAdmin, models.RoleClinicAdmin:
		return true
	}
	if token.GroupID == "" {
		return true
	}
	for _, g := range GroupsFor(snap, user) {
		if g.ID == token.GroupID {
			return true
		}
	}
	return false
}

func filter[T any](items []T, keep func(T) bool) []T {
	var out []T
	for _, item := range items {
		if keep(item) {
			out = append(out, item)
		}
	}
	return out
}
