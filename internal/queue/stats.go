package queue

import (
	"sort"
	"time"

	"omnitoken/clinic-service/internal/models"
)

const (
	BandUnder10 = "<10"
	Band10To14  = "10-14"
	Band15To29  = "15-29"
	Band30To44  = "30-44"
	Band45Plus  = ">=45"
)

// WaitMinutes is the whole minutes since the token was issued.
func WaitMinutes(t models.Token, now time.Time) int {
	if now.Before(t.Timestamp) {
		return 0
	}
	return int(now.Sub(t.Timestamp) / time.Minute)
}

func WaitBand(minutes int) string {
	switch {
	case minutes >= 45:
		return Band45Plus
	case minutes >= 30:
		return Band30To44
	case minutes >= 15:
		return Band15To29
	case minutes >= 10:
		return Band10To14
	default:
		return BandUnder10
	}
}

type Stats struct {
	Total    int `json:"total"`
	InQueue  int `json:"in_queue"`
	Attended int `json:"attended"`
	NoShows  int `json:"no_shows"`
}

// Count tallies every token in the groups (nil means all), terminal or not.
func Count(tokens []models.Token, groupIDs []string) Stats {
	inGroup := groupSet(groupIDs)
	var s Stats
	for _, t := range tokens {
		if inGroup != nil && !inGroup[t.GroupID] {
			continue
		}
		s.Total++
		switch t.Status {
		case models.StatusWaiting:
			s.InQueue++
		case models.StatusCompleted:
			s.Attended++
		case models.StatusNoShow:
			s.NoShows++
		}
	}
	return s
}

type GroupSummary struct {
	GroupID   string        `json:"group_id"`
	GroupName string        `json:"group_name"`
	Waiting   int           `json:"waiting"`
	Next      *models.Token `json:"next,omitempty"`
}

// Summaries lists each group's waiting count and the token it will call
// next.
func Summaries(tokens []models.Token, groups []models.ClinicGroup) []GroupSummary {
	out := make([]GroupSummary, 0, len(groups))
	for _, g := range groups {
		summary := GroupSummary{GroupID: g.ID, GroupName: g.Name}
		waiting := waitingIn(tokens, g.ID)
		summary.Waiting = len(waiting)
		if len(waiting) > 0 {
			next := waiting[0]
			summary.Next = &next
		}
		out = append(out, summary)
	}
	return out
}

func waitingIn(tokens []models.Token, groupID string) []models.Token {
	var out []models.Token
	for _, t := range tokens {
		if t.GroupID == groupID && t.Status == models.StatusWaiting {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
