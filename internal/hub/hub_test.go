package hub

import (
	"encoding/json"
	"io"
	"testing"
	"time"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
	"omnitoken/clinic-service/internal/syncer"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newClient(id string, sub Subscription) *Client {
	return &Client{ID: id, Send: make(chan []byte, 4), Subscription: sub}
}

func TestBroadcastMatchesSubscription(t *testing.T) {
	h := New(zerolog.New(io.Discard))
	all := newClient("all", Subscription{ClinicID: "c1"})
	group := newClient("group", Subscription{ClinicID: "c1", GroupID: "g1"})
	other := newClient("other", Subscription{ClinicID: "c2"})
	screen := newClient("screen", Subscription{ClinicID: "c1", ScreenID: "s1"})
	for _, c := range []*Client{all, group, other, screen} {
		h.Register(c)
	}

	h.Broadcast([]byte("x"), Subscription{ClinicID: "c1", GroupID: "g2"})

	assert.Len(t, all.Send, 1)
	assert.Len(t, group.Send, 0)
	assert.Len(t, other.Send, 0)
	assert.Len(t, screen.Send, 0, "screens only receive boards")
}

func TestBroadcastDropsForSlowClient(t *testing.T) {
	h := New(zerolog.New(io.Discard))
	c := &Client{ID: "slow", Send: make(chan []byte, 1)}
	h.Register(c)

	h.Broadcast([]byte("1"), Subscription{})
	h.Broadcast([]byte("2"), Subscription{})

	require.Len(t, c.Send, 1)
	assert.Equal(t, "1", string(<-c.Send))
}

func TestUnregisterClosesChannel(t *testing.T) {
	h := New(zerolog.New(io.Discard))
	c := newClient("a", Subscription{})
	h.Register(c)
	h.Unregister(c)
	h.Unregister(c)

	_, open := <-c.Send
	assert.False(t, open)
	assert.Equal(t, 0, h.Count())
}

func TestParseSubscribe(t *testing.T) {
	msg, ok := ParseSubscribe([]byte(`{"action":"subscribe","group_id":"g1"}`))
	require.True(t, ok)
	assert.Equal(t, "g1", msg.GroupID)

	_, ok = ParseSubscribe([]byte(`{"action":"ping"}`))
	assert.False(t, ok)
	_, ok = ParseSubscribe([]byte(`not json`))
	assert.False(t, ok)
}

func feedSnapshot() models.Snapshot {
	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return models.Snapshot{
		Clinics: []models.Clinic{{ID: "c1", Name: "City"}, {ID: "c2", Name: "Town"}},
		Users: []models.User{
			{ID: "scr1", Role: models.RoleScreen, ClinicID: "c1"},
			{ID: "scr2", Role: models.RoleScreen, ClinicID: "c2"},
			{ID: "adm1", Role: models.RoleClinicAdmin, ClinicID: "c1"},
			{ID: "root", Role: models.RoleCentralAdmin},
			{ID: "ad1", Role: models.RoleAdvertiser, AdvertiserID: "a1"},
		},
		Cabins: []models.Cabin{{ID: "cab1", Name: "Room 1", ClinicID: "c1"}},
		Groups: []models.ClinicGroup{
			{ID: "g1", Name: "General", ClinicID: "c1", TokenInitial: "GM", ScreenIDs: []string{"scr1"}, CabinIDs: []string{"cab1"}},
			{ID: "g2", Name: "Dental", ClinicID: "c2", ScreenIDs: []string{"scr2"}},
		},
		Tokens: []models.Token{
			{ID: "t1", Number: 101, TokenInitial: "GM", PatientName: "Asha", Status: models.StatusCalling, ClinicID: "c1", GroupID: "g1", CabinID: "cab1", Timestamp: start, VisitStartTime: &start},
			{ID: "t2", Number: 102, TokenInitial: "GM", PatientName: "Ravi", Status: models.StatusWaiting, ClinicID: "c1", GroupID: "g1", Timestamp: start.Add(time.Minute)},
		},
	}
}

func decode(t *testing.T, data []byte) (string, map[string]interface{}) {
	t.Helper()
	var env struct {
		Type    string                 `json:"type"`
		Payload map[string]interface{} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	return env.Type, env.Payload
}

func TestFeedRefreshesScreensOfClinic(t *testing.T) {
	h := New(zerolog.New(io.Discard))
	feed := NewFeed(h, state.New(feedSnapshot()), zerolog.New(io.Discard))
	scr1 := newClient("1", Subscription{ClinicID: "c1", ScreenID: "scr1"})
	scr2 := newClient("2", Subscription{ClinicID: "c2", ScreenID: "scr2"})
	staff := newClient("3", Subscription{ClinicID: "c1"})
	h.Register(scr1)
	h.Register(scr2)
	h.Register(staff)

	token := feedSnapshot().Tokens[1]
	feed.Notify(syncer.NewUpsert(store.TableTokens, token))

	require.Len(t, scr1.Send, 1)
	assert.Len(t, scr2.Send, 0)
	require.Len(t, staff.Send, 1)

	kind, payload := decode(t, <-scr1.Send)
	assert.Equal(t, EventBoard, kind)
	assert.Equal(t, "scr1", payload["screen_id"])
	announcement, ok := payload["announcement"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "t1", announcement["token_id"])

	kind, payload = decode(t, <-staff.Send)
	assert.Equal(t, EventChange, kind)
	assert.Equal(t, "t2", payload["id"])
}

func TestFeedSendsSameAnnouncementToEveryClientOfScreen(t *testing.T) {
	h := New(zerolog.New(io.Discard))
	feed := NewFeed(h, state.New(feedSnapshot()), zerolog.New(io.Discard))
	tab1 := newClient("a", Subscription{ClinicID: "c1", ScreenID: "scr1"})
	tab2 := newClient("b", Subscription{ClinicID: "c1", ScreenID: "scr1"})
	h.Register(tab1)
	h.Register(tab2)

	feed.Notify(syncer.NewUpsert(store.TableTokens, feedSnapshot().Tokens[0]))

	require.Len(t, tab1.Send, 1)
	require.Len(t, tab2.Send, 1)
	for _, client := range []*Client{tab1, tab2} {
		_, payload := decode(t, <-client.Send)
		announcement, ok := payload["announcement"].(map[string]interface{})
		require.True(t, ok, client.ID)
		assert.Equal(t, "t1", announcement["token_id"])
	}
}

func TestFeedAnnouncesOnce(t *testing.T) {
	h := New(zerolog.New(io.Discard))
	feed := NewFeed(h, state.New(feedSnapshot()), zerolog.New(io.Discard))

	first := feed.Board("scr1")
	second := feed.Board("scr1")

	require.NotNil(t, first.Announcement)
	assert.Nil(t, second.Announcement)
}

func TestFeedDeleteRefreshesEveryScreen(t *testing.T) {
	h := New(zerolog.New(io.Discard))
	feed := NewFeed(h, state.New(feedSnapshot()), zerolog.New(io.Discard))
	scr1 := newClient("1", Subscription{ClinicID: "c1", ScreenID: "scr1"})
	scr2 := newClient("2", Subscription{ClinicID: "c2", ScreenID: "scr2"})
	h.Register(scr1)
	h.Register(scr2)

	feed.Notify(syncer.NewDelete(store.TableTokens, "t9"))

	assert.Len(t, scr1.Send, 1)
	assert.Len(t, scr2.Send, 1)
}

func TestFeedIgnoresUserChangesForStaff(t *testing.T) {
	h := New(zerolog.New(io.Discard))
	feed := NewFeed(h, state.New(feedSnapshot()), zerolog.New(io.Discard))
	staff := newClient("3", Subscription{ClinicID: "c1"})
	h.Register(staff)

	feed.Notify(syncer.NewUpsert(store.TableUsers, models.User{ID: "adm1", ClinicID: "c1"}))

	assert.Len(t, staff.Send, 0)
}

func TestResolveSubscription(t *testing.T) {
	snap := feedSnapshot()
	byID := func(id string) models.User {
		return snap.Users[state.UserIndex(&snap, id)]
	}

	sub, ok := ResolveSubscription(&snap, byID("scr1"), SubscribeMessage{Action: "subscribe"})
	require.True(t, ok)
	assert.Equal(t, Subscription{ClinicID: "c1", ScreenID: "scr1"}, sub)

	_, ok = ResolveSubscription(&snap, byID("scr1"), SubscribeMessage{Action: "subscribe", ScreenID: "scr2"})
	assert.False(t, ok, "screen cannot watch another screen")

	sub, ok = ResolveSubscription(&snap, byID("adm1"), SubscribeMessage{Action: "subscribe", GroupID: "g1"})
	require.True(t, ok)
	assert.Equal(t, Subscription{ClinicID: "c1", GroupID: "g1"}, sub)

	_, ok = ResolveSubscription(&snap, byID("adm1"), SubscribeMessage{Action: "subscribe", GroupID: "g2"})
	assert.False(t, ok, "foreign clinic group")

	sub, ok = ResolveSubscription(&snap, byID("root"), SubscribeMessage{Action: "subscribe", ScreenID: "scr2"})
	require.True(t, ok)
	assert.Equal(t, "c2", sub.ClinicID)

	_, ok = ResolveSubscription(&snap, byID("root"), SubscribeMessage{Action: "subscribe", GroupID: "missing"})
	assert.False(t, ok)

	_, ok = ResolveSubscription(&snap, byID("ad1"), SubscribeMessage{Action: "subscribe"})
	assert.False(t, ok)
}

func TestSessionIDFromRequest(t *testing.T) {
	assert.Equal(t, "abc", bearerToken("Bearer abc"))
	assert.Equal(t, "abc", bearerToken("bearer  abc "))
	assert.Equal(t, "", bearerToken("Basic abc"))
	assert.Equal(t, "", bearerToken(""))
}
