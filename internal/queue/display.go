package queue

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"omnitoken/clinic-service/internal/models"
)

const (
	AnnouncementRepeats  = 3
	AnnouncementInterval = 6 * time.Second
	WaitingPerGroup      = 2
)

type BoardEntry struct {
	TokenID   string `json:"token_id"`
	Display   string `json:"display"`
	Patient   string `json:"patient_name"`
	Status    string `json:"status"`
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	CabinName string `json:"cabin_name,omitempty"`
}

type GroupWaiting struct {
	GroupID   string       `json:"group_id"`
	GroupName string       `json:"group_name"`
	Tokens    []BoardEntry `json:"tokens"`
}

type Announcement struct {
	TokenID  string        `json:"token_id"`
	Text     string        `json:"text"`
	CallTime time.Time     `json:"call_time"`
	Repeats  int           `json:"repeats"`
	Interval time.Duration `json:"interval_ns"`
}

// Board is what a display screen shows: who is being served, who is next
// per group, and the ad rotation.
type Board struct {
	ScreenID     string           `json:"screen_id"`
	Ongoing      []BoardEntry     `json:"ongoing"`
	Waiting      []GroupWaiting   `json:"waiting"`
	Videos       []models.AdVideo `json:"videos"`
	Announcement *Announcement    `json:"announcement,omitempty"`

	calling []models.Token
	cabins  map[string]string
}

// BuildBoard assembles the board for a screen user from the groups that
// list the screen.
func BuildBoard(snap *models.Snapshot, screenID string) Board {
	board := Board{
		ScreenID: screenID,
		Ongoing:  make([]BoardEntry, 0),
		Waiting:  make([]GroupWaiting, 0),
		Videos:   append([]models.AdVideo(nil), snap.Videos...),
		cabins:   make(map[string]string, len(snap.Cabins)),
	}
	for _, c := range snap.Cabins {
		board.cabins[c.ID] = c.Name
	}

	groups := make(map[string]models.ClinicGroup)
	var order []models.ClinicGroup
	for _, g := range snap.Groups {
		if g.HasScreen(screenID) {
			groups[g.ID] = g
			order = append(order, g)
		}
	}

	var ongoing []models.Token
	for _, t := range snap.Tokens {
		if _, ok := groups[t.GroupID]; ok && models.IsServing(t.Status) {
			ongoing = append(ongoing, t)
		}
	}
	sort.SliceStable(ongoing, func(i, j int) bool {
		ci, cj := ongoing[i].Status == models.StatusCalling, ongoing[j].Status == models.StatusCalling
		if ci != cj {
			return ci
		}
		return ongoing[i].Timestamp.After(ongoing[j].Timestamp)
	})
	for _, t := range ongoing {
		board.Ongoing = append(board.Ongoing, board.entry(t, groups[t.GroupID]))
		if t.Status == models.StatusCalling {
			board.calling = append(board.calling, t)
		}
	}

	for _, g := range order {
		waiting := waitingIn(snap.Tokens, g.ID)
		if len(waiting) > WaitingPerGroup {
			waiting = waiting[:WaitingPerGroup]
		}
		gw := GroupWaiting{GroupID: g.ID, GroupName: g.Name, Tokens: make([]BoardEntry, 0, len(waiting))}
		for _, t := range waiting {
			gw.Tokens = append(gw.Tokens, board.entry(t, g))
		}
		board.Waiting = append(board.Waiting, gw)
	}
	return board
}

func (b Board) entry(t models.Token, g models.ClinicGroup) BoardEntry {
	return BoardEntry{
		TokenID:   t.ID,
		Display:   t.DisplayNumber(),
		Patient:   t.PatientName,
		Status:    t.Status,
		GroupID:   g.ID,
		GroupName: g.Name,
		CabinName: b.cabins[t.CabinID],
	}
}

// AnnouncementText is the phrase read out for a called token. The group
// initial is spelled letter by letter.
func AnnouncementText(t models.Token, cabinName string) string {
	number := fmt.Sprintf("%d", t.Number)
	if t.TokenInitial != "" {
		number = strings.Join(strings.Split(t.TokenInitial, ""), " ") + " " + number
	}
	if cabinName == "" {
		cabinName = "Reception"
	}
	return fmt.Sprintf("Token number %s. %s. Please proceed to %s.", number, t.PatientName, cabinName)
}

// Announcer remembers, per screen, the call time last announced for each
// token so a call or recall is announced exactly once.
type Announcer struct {
	mu   sync.Mutex
	seen map[string]map[string]time.Time
}

func NewAnnouncer() *Announcer {
	return &Announcer{seen: make(map[string]map[string]time.Time)}
}

// Next picks the most recently called token that has not been announced
// at its current call time, records it, and attaches it to the board.
func (a *Announcer) Next(board *Board) *Announcement {
	a.mu.Lock()
	defer a.mu.Unlock()

	seen, ok := a.seen[board.ScreenID]
	if !ok {
		seen = make(map[string]time.Time)
		a.seen[board.ScreenID] = seen
	}

	var (
		pick   *models.Token
		latest time.Time
	)
	for i := range board.calling {
		t := board.calling[i]
		callTime := t.CallTime()
		if callTime.After(seen[t.ID]) && callTime.After(latest) {
			latest = callTime
			pick = &board.calling[i]
		}
	}
	if pick == nil {
		return nil
	}
	seen[pick.ID] = latest

	announcement := &Announcement{
		TokenID:  pick.ID,
		Text:     AnnouncementText(*pick, board.cabins[pick.CabinID]),
		CallTime: latest,
		Repeats:  AnnouncementRepeats,
		Interval: AnnouncementInterval,
	}
	board.Announcement = announcement
	return announcement
}

// Forget drops the announcement history of a screen.
func (a *Announcer) Forget(screenID string) {
	a.mu.Lock()
	delete(a.seen, screenID)
	a.mu.Unlock()
}
