package hub

import (
	"encoding/json"
	"time"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/queue"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
	"omnitoken/clinic-service/internal/syncer"

	"github.com/rs/zerolog"
)

const (
	EventBoard  = "board"
	EventChange = "change"
)

type Envelope struct {
	Type      string      `json:"type"`
	Payload   interface{} `json:"payload"`
	CreatedAt time.Time   `json:"created_at"`
}

type changePayload struct {
	Op     string      `json:"op"`
	Table  string      `json:"table"`
	ID     string      `json:"id"`
	Record interface{} `json:"record,omitempty"`
}

// Feed turns entity changes into hub messages: staff clients get the raw
// change, display screens get a rebuilt board.
type Feed struct {
	hub       *Hub
	state     *state.Store
	announcer *queue.Announcer
	logger    zerolog.Logger
	now       func() time.Time
}

func NewFeed(h *Hub, st *state.Store, logger zerolog.Logger) *Feed {
	return &Feed{
		hub:       h,
		state:     st,
		announcer: queue.NewAnnouncer(),
		logger:    logger.With().Str("component", "display_feed").Logger(),
		now:       time.Now,
	}
}

// Notify is registered as a syncer listener.
func (f *Feed) Notify(change syncer.Change) {
	if change.ClinicID != "" && change.Table != store.TableUsers {
		payload := changePayload{Op: change.Op, Table: change.Table, ID: change.ID, Record: change.Record}
		if data, err := f.encode(EventChange, payload); err == nil {
			f.hub.Broadcast(data, Subscription{ClinicID: change.ClinicID, GroupID: groupOf(change.Record)})
		}
	}

	switch change.Table {
	case store.TableTokens, store.TableCabins, store.TableGroups, store.TableVideos:
		f.refreshScreens(change.ClinicID)
	}
}

// Board builds the current board for a screen and records any
// announcement it carries.
func (f *Feed) Board(screenID string) queue.Board {
	var board queue.Board
	f.state.View(func(snap *models.Snapshot) {
		board = queue.BuildBoard(snap, screenID)
	})
	f.announcer.Next(&board)
	return board
}

// BoardMessage encodes the board for screenID as a hub envelope.
func (f *Feed) BoardMessage(screenID string) ([]byte, error) {
	return f.encode(EventBoard, f.Board(screenID))
}

func (f *Feed) refreshScreens(clinicID string) {
	f.hub.EachScreen(clinicID, func(sub Subscription) ([]byte, bool) {
		data, err := f.BoardMessage(sub.ScreenID)
		if err != nil {
			f.logger.Error().Err(err).Str("screen_id", sub.ScreenID).Msg("encode board failed")
			return nil, false
		}
		return data, true
	})
}

func (f *Feed) encode(eventType string, payload interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: eventType, Payload: payload, CreatedAt: f.now().UTC()})
}

func groupOf(record interface{}) string {
	if t, ok := record.(models.Token); ok {
		return t.GroupID
	}
	if g, ok := record.(models.ClinicGroup); ok {
		return g.ID
	}
	return ""
}
