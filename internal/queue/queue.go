// Package queue derives read-only views from the token list. Nothing here
// mutates state or caches results; callers pass in a snapshot.
package queue

import (
	"sort"
	"strings"

	"omnitoken/clinic-service/internal/models"
)

const (
	SortNumber      = "number"
	SortPatientName = "patient_name"
	SortGroup       = "group"
	SortTimestamp   = "timestamp"
	SortWait        = "wait"
	SortStatus      = "status"

	OrderAsc  = "asc"
	OrderDesc = "desc"
)

func ValidSortKey(key string) bool {
	switch key {
	case "", SortNumber, SortPatientName, SortGroup, SortTimestamp, SortWait, SortStatus:
		return true
	default:
		return false
	}
}

type Filter struct {
	// GroupIDs limits the view to these groups; nil means every group.
	GroupIDs []string
	ClinicID string
	Query    string
	SortKey  string
	Order    string
}

// LiveQueue lists the non-terminal tokens in scope, filtered and sorted.
// The default order is issue time ascending.
func LiveQueue(tokens []models.Token, groups []models.ClinicGroup, f Filter) []models.Token {
	inGroup := groupSet(f.GroupIDs)
	query := strings.ToLower(strings.TrimSpace(f.Query))

	out := make([]models.Token, 0)
	for _, t := range tokens {
		if models.IsTerminal(t.Status) {
			continue
		}
		if f.ClinicID != "" && t.ClinicID != f.ClinicID {
			continue
		}
		if inGroup != nil && !inGroup[t.GroupID] {
			continue
		}
		if query != "" && !Matches(t, query) {
			continue
		}
		out = append(out, t)
	}

	names := groupNames(groups)
	less := tokenLess(f.SortKey, names)
	desc := f.Order == OrderDesc
	sort.SliceStable(out, func(i, j int) bool {
		if desc {
			return less(out[j], out[i])
		}
		return less(out[i], out[j])
	})
	return out
}

// Matches reports whether the lower-cased query occurs in the patient's
// name, email or phone.
func Matches(t models.Token, query string) bool {
	if strings.Contains(strings.ToLower(t.PatientName), query) {
		return true
	}
	email := t.PatientData.Email
	if email == "" {
		email = t.PatientEmail
	}
	return strings.Contains(strings.ToLower(email), query) ||
		strings.Contains(strings.ToLower(t.PatientData.Phone), query)
}

func tokenLess(key string, groupNames map[string]string) func(a, b models.Token) bool {
	switch key {
	case SortNumber:
		return func(a, b models.Token) bool { return a.Number < b.Number }
	case SortPatientName:
		return func(a, b models.Token) bool {
			return strings.ToLower(a.PatientName) < strings.ToLower(b.PatientName)
		}
	case SortGroup:
		return func(a, b models.Token) bool {
			return strings.ToLower(groupNames[a.GroupID]) < strings.ToLower(groupNames[b.GroupID])
		}
	case SortStatus:
		return func(a, b models.Token) bool { return a.Status < b.Status }
	default:
		return func(a, b models.Token) bool { return a.Timestamp.Before(b.Timestamp) }
	}
}

func groupSet(ids []string) map[string]bool {
	if ids == nil {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func groupNames(groups []models.ClinicGroup) map[string]string {
	names := make(map[string]string, len(groups))
	for _, g := range groups {
		names[g.ID] = g.Name
	}
	return names
}
