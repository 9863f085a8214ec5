package queue

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"omnitoken/clinic-service/internal/models"
)

// Patient is the demographic snapshot from the first token issued to a
// (name, phone) pair.
type Patient struct {
	Name   string `json:"name"`
	Phone  string `json:"phone"`
	Email  string `json:"email"`
	Age    string `json:"age"`
	Gender string `json:"gender"`
}

// UniquePatients dedupes tokens by (patient name, phone), keeping the
// first one seen. Tokens are taken in slice order.
func UniquePatients(tokens []models.Token, query string) []Patient {
	query = strings.ToLower(strings.TrimSpace(query))
	seen := make(map[string]bool)
	out := make([]Patient, 0)
	for _, t := range tokens {
		if query != "" && !Matches(t, query) {
			continue
		}
		key := t.PatientName + "\x00" + t.PatientData.Phone
		if seen[key] {
			continue
		}
		seen[key] = true
		email := t.PatientData.Email
		if email == "" {
			email = t.PatientEmail
		}
		out = append(out, Patient{
			Name:   t.PatientName,
			Phone:  t.PatientData.Phone,
			Email:  email,
			Age:    t.PatientData.Age,
			Gender: t.PatientData.Gender,
		})
	}
	return out
}

// SortPatients orders the registry by name, phone, email, age or gender.
// Age compares numerically; unparsable ages count as zero.
func SortPatients(patients []Patient, key, order string) {
	field := func(p Patient) string {
		switch key {
		case "phone":
			return p.Phone
		case "email":
			return p.Email
		case "gender":
			return p.Gender
		default:
			return p.Name
		}
	}
	less := func(a, b Patient) bool { return field(a) < field(b) }
	if key == "age" {
		less = func(a, b Patient) bool {
			x, _ := strconv.Atoi(a.Age)
			y, _ := strconv.Atoi(b.Age)
			return x < y
		}
	}
	sort.SliceStable(patients, func(i, j int) bool {
		if order == OrderDesc {
			return less(patients[j], patients[i])
		}
		return less(patients[i], patients[j])
	})
}

type HistoryFilter struct {
	Name     string
	Phone    string
	From     time.Time
	Till     time.Time
	DoctorID string
	Status   string
}

// VisitHistory returns the visits of one patient, newest first. Till is
// inclusive of the whole day: the window is [From, Till+24h).
func VisitHistory(tokens []models.Token, f HistoryFilter) []models.Token {
	var end time.Time
	if !f.Till.IsZero() {
		end = f.Till.Add(24 * time.Hour)
	}

	out := make([]models.Token, 0)
	for _, t := range tokens {
		if t.PatientName != f.Name || t.PatientData.Phone != f.Phone {
			continue
		}
		if !f.From.IsZero() && t.Timestamp.Before(f.From) {
			continue
		}
		if !end.IsZero() && !t.Timestamp.Before(end) {
			continue
		}
		if f.DoctorID != "" && t.DoctorID != f.DoctorID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	return out
}
