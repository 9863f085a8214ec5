package hub

import (
	"context"
	"net/http"
	"strings"

	"omnitoken/clinic-service/internal/metrics"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/rs/zerolog"
)

// SessionResolver maps a session id to the signed-in user.
type SessionResolver interface {
	SessionUser(ctx context.Context, sessionID string) (models.User, error)
}

// NewDisplayHandler serves the SockJS endpoint under prefix. Screen users
// are bound to their own board on connect; staff pick a group or screen
// with a subscribe message.
func NewDisplayHandler(prefix string, h *Hub, feed *Feed, st *state.Store, sessions SessionResolver, logger zerolog.Logger) http.Handler {
	return sockjs.NewHandler(prefix, sockjs.DefaultOptions, func(session sockjs.Session) {
		req := session.Request()
		sessionID := sessionIDFromRequest(req)
		if sessionID == "" {
			_ = session.Close(4001, "missing session")
			return
		}
		user, err := sessions.SessionUser(req.Context(), sessionID)
		if err != nil {
			_ = session.Close(4002, "invalid session")
			return
		}
		if user.Role == models.RoleAdvertiser {
			_ = session.Close(4003, "access denied")
			return
		}

		client := &Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		if user.Role == models.RoleScreen {
			client.Subscription = Subscription{ClinicID: user.ClinicID, ScreenID: user.ID}
		} else {
			client.Subscription = Subscription{ClinicID: user.ClinicID}
		}
		h.Register(client)
		metrics.DisplayConnected()
		defer metrics.DisplayDisconnected()
		defer h.Unregister(client)

		log := logger.With().Str("client_id", client.ID).Str("user_id", user.ID).Logger()
		log.Info().Str("role", user.Role).Msg("display client connected")

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		if client.Subscription.ScreenID != "" {
			sendBoard(h, feed, client, log)
		}

		for {
			msg, err := session.Recv()
			if err != nil {
				log.Info().Msg("display client disconnected")
				return
			}
			parsed, ok := ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, Subscription{ClinicID: user.ClinicID})
				continue
			}
			var sub Subscription
			var allowed bool
			st.View(func(snap *models.Snapshot) {
				sub, allowed = ResolveSubscription(snap, user, parsed)
			})
			if !allowed {
				_ = session.Close(4003, "access denied")
				return
			}
			h.UpdateSubscription(client, sub)
			if sub.ScreenID != "" {
				sendBoard(h, feed, client, log)
			}
		}
	})
}

func sendBoard(h *Hub, feed *Feed, client *Client, log zerolog.Logger) {
	data, err := feed.BoardMessage(client.Subscription.ScreenID)
	if err != nil {
		log.Error().Err(err).Msg("encode board failed")
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if _, ok := h.clients[client.ID]; ok {
		h.deliver(client, data)
	}
}

// ResolveSubscription checks a subscribe request against what user may
// see. Screens are fixed to their own board.
func ResolveSubscription(snap *models.Snapshot, user models.User, msg SubscribeMessage) (Subscription, bool) {
	if user.Role == models.RoleScreen {
		return Subscription{ClinicID: user.ClinicID, ScreenID: user.ID}, msg.ScreenID == "" || msg.ScreenID == user.ID
	}
	if user.Role != models.RoleCentralAdmin && !models.IsClinicStaff(user.Role) {
		return Subscription{}, false
	}

	var clinicID string
	if msg.ScreenID != "" {
		i := state.UserIndex(snap, msg.ScreenID)
		if i < 0 || snap.Users[i].Role != models.RoleScreen {
			return Subscription{}, false
		}
		clinicID = snap.Users[i].ClinicID
	}
	if msg.GroupID != "" {
		i := state.GroupIndex(snap, msg.GroupID)
		if i < 0 {
			return Subscription{}, false
		}
		if clinicID != "" && snap.Groups[i].ClinicID != clinicID {
			return Subscription{}, false
		}
		clinicID = snap.Groups[i].ClinicID
	}
	if clinicID == "" {
		clinicID = user.ClinicID
	}
	if user.Role != models.RoleCentralAdmin && clinicID != user.ClinicID {
		return Subscription{}, false
	}
	return Subscription{ClinicID: clinicID, GroupID: msg.GroupID, ScreenID: msg.ScreenID}, true
}

func sessionIDFromRequest(r *http.Request) string {
	if token := bearerToken(r.Header.Get("Authorization")); token != "" {
		return token
	}
	return r.URL.Query().Get("session_id")
}

func bearerToken(value string) string {
	if value == "" {
		return ""
	}
	parts := strings.SplitN(value, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
