package hub

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"
)

// Subscription narrows what a connected client receives. Empty fields
// match anything.
type Subscription struct {
	ClinicID string
	GroupID  string
	ScreenID string
}

type Client struct {
	ID           string
	Send         chan []byte
	Subscription Subscription
}

type Hub struct {
	mu      sync.RWMutex
	clients map[string]*Client
	logger  zerolog.Logger
}

type SubscribeMessage struct {
	Action   string `json:"action"`
	GroupID  string `json:"group_id"`
	ScreenID string `json:"screen_id"`
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]*Client),
		logger:  logger.With().Str("component", "hub").Logger(),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[client.ID] = client
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client.ID]; !ok {
		return
	}
	delete(h.clients, client.ID)
	close(client.Send)
}

func (h *Hub) UpdateSubscription(client *Client, sub Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	client.Subscription = sub
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast sends payload to every client whose subscription matches meta.
// Slow clients lose the message instead of blocking the sender.
func (h *Hub) Broadcast(payload []byte, meta Subscription) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, client := range h.clients {
		if client.Subscription.ScreenID != "" || !match(client.Subscription, meta) {
			continue
		}
		h.deliver(client, payload)
	}
}

// EachScreen builds one payload per screen id in clinicID (every clinic
// when empty) and delivers it to every client showing that screen. build
// returns false to skip the screen.
func (h *Hub) EachScreen(clinicID string, build func(sub Subscription) ([]byte, bool)) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	built := make(map[string][]byte)
	for _, client := range h.clients {
		sub := client.Subscription
		if sub.ScreenID == "" {
			continue
		}
		if clinicID != "" && sub.ClinicID != clinicID {
			continue
		}
		payload, done := built[sub.ScreenID]
		if !done {
			var ok bool
			if payload, ok = build(sub); !ok {
				payload = nil
			}
			built[sub.ScreenID] = payload
		}
		if payload == nil {
			continue
		}
		h.deliver(client, payload)
	}
}

func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.Send <- payload:
	default:
		h.logger.Warn().Str("client_id", client.ID).Msg("drop message for slow client")
	}
}

func match(sub Subscription, meta Subscription) bool {
	if sub.ClinicID != "" && meta.ClinicID != sub.ClinicID {
		return false
	}
	if sub.GroupID != "" && meta.GroupID != sub.GroupID {
		return false
	}
	return true
}

func ParseSubscribe(data []byte) (SubscribeMessage, bool) {
	var msg SubscribeMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return SubscribeMessage{}, false
	}
	if msg.Action != "subscribe" && msg.Action != "unsubscribe" {
		return SubscribeMessage{}, false
	}
	return msg, true
}
