package queue

import (
	"testing"
	"time"

	"omnitoken/clinic-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2024, 5, 10, 8, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return base.Add(time.Duration(minutes) * time.Minute)
}

func ptr(t time.Time) *time.Time { return &t }

func sampleTokens() []models.Token {
	return []models.Token{
		{ID: "t1", Number: 101, PatientName: "Zara", GroupID: "g1", ClinicID: "c1", Status: models.StatusWaiting, Timestamp: at(5), PatientData: models.PatientData{Phone: "555-1000"}},
		{ID: "t2", Number: 102, PatientName: "adam", GroupID: "g1", ClinicID: "c1", Status: models.StatusCalling, Timestamp: at(1), PatientData: models.PatientData{Email: "adam@mail.test"}},
		{ID: "t3", Number: 101, PatientName: "Mia", GroupID: "g2", ClinicID: "c1", Status: models.StatusCompleted, Timestamp: at(0)},
		{ID: "t4", Number: 102, PatientName: "Bob", GroupID: "g2", ClinicID: "c1", Status: models.StatusWaiting, Timestamp: at(3)},
		{ID: "t5", Number: 103, PatientName: "Eve", GroupID: "g2", ClinicID: "c1", Status: models.StatusNoShow, Timestamp: at(4)},
	}
}

var sampleGroups = []models.ClinicGroup{{ID: "g1", Name: "Pediatrics"}, {ID: "g2", Name: "Cardiology"}}

func ids(tokens []models.Token) []string {
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		out = append(out, t.ID)
	}
	return out
}

func TestLiveQueueDefaultOrder(t *testing.T) {
	live := LiveQueue(sampleTokens(), sampleGroups, Filter{})
	assert.Equal(t, []string{"t2", "t4", "t1"}, ids(live))
}

func TestLiveQueueGroupAndSearch(t *testing.T) {
	tokens := sampleTokens()

	assert.Equal(t, []string{"t2", "t1"}, ids(LiveQueue(tokens, sampleGroups, Filter{GroupIDs: []string{"g1"}})))
	assert.Equal(t, []string{"t1"}, ids(LiveQueue(tokens, sampleGroups, Filter{Query: "555"})))
	assert.Equal(t, []string{"t2"}, ids(LiveQueue(tokens, sampleGroups, Filter{Query: "ADAM@"})))
	assert.Empty(t, LiveQueue(tokens, sampleGroups, Filter{GroupIDs: []string{}}))
}

func TestLiveQueueSortKeys(t *testing.T) {
	tokens := sampleTokens()
	cases := []struct {
		key   string
		order string
		want  []string
	}{
		{SortNumber, OrderAsc, []string{"t1", "t2", "t4"}},
		{SortPatientName, OrderAsc, []string{"t2", "t4", "t1"}},
		{SortPatientName, OrderDesc, []string{"t1", "t4", "t2"}},
		{SortGroup, OrderAsc, []string{"t4", "t1", "t2"}},
		{SortStatus, OrderAsc, []string{"t2", "t1", "t4"}},
		{SortTimestamp, OrderDesc, []string{"t1", "t4", "t2"}},
	}
	for _, tc := range cases {
		t.Run(tc.key+"_"+tc.order, func(t *testing.T) {
			got := LiveQueue(tokens, sampleGroups, Filter{SortKey: tc.key, Order: tc.order})
			assert.Equal(t, tc.want, ids(got))
		})
	}
	assert.True(t, ValidSortKey(SortWait))
	assert.False(t, ValidSortKey("age"))
}

func TestUniquePatients(t *testing.T) {
	tokens := []models.Token{
		{PatientName: "Ann", PatientData: models.PatientData{Phone: "1", Age: "30"}},
		{PatientName: "Ann", PatientData: models.PatientData{Phone: "1", Age: "31"}},
		{PatientName: "Ann", PatientData: models.PatientData{Phone: "2", Age: "9"}},
		{PatientName: "Ben", PatientEmail: "ben@x.test"},
	}

	patients := UniquePatients(tokens, "")
	require.Len(t, patients, 3)
	assert.Equal(t, "30", patients[0].Age, "first seen snapshot wins")
	assert.Equal(t, "ben@x.test", patients[2].Email)

	assert.Len(t, UniquePatients(tokens, "ben@"), 1)

	SortPatients(patients, "age", OrderAsc)
	assert.Equal(t, []string{"", "9", "30"}, []string{patients[0].Age, patients[1].Age, patients[2].Age})
}

func TestVisitHistory(t *testing.T) {
	day := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	tokens := []models.Token{
		{ID: "v1", PatientName: "Ann", PatientData: models.PatientData{Phone: "1"}, Timestamp: day.Add(-time.Hour), Status: models.StatusCompleted, DoctorID: "d1"},
		{ID: "v2", PatientName: "Ann", PatientData: models.PatientData{Phone: "1"}, Timestamp: day.Add(10 * time.Hour), Status: models.StatusCompleted, DoctorID: "d2"},
		{ID: "v3", PatientName: "Ann", PatientData: models.PatientData{Phone: "1"}, Timestamp: day.Add(23 * time.Hour), Status: models.StatusNoShow, DoctorID: "d1"},
		{ID: "v4", PatientName: "Ann", PatientData: models.PatientData{Phone: "1"}, Timestamp: day.Add(24 * time.Hour), Status: models.StatusCompleted},
		{ID: "other", PatientName: "Ann", PatientData: models.PatientData{Phone: "9"}, Timestamp: day},
	}

	all := VisitHistory(tokens, HistoryFilter{Name: "Ann", Phone: "1"})
	assert.Equal(t, []string{"v4", "v3", "v2", "v1"}, ids(all))

	oneDay := VisitHistory(tokens, HistoryFilter{Name: "Ann", Phone: "1", From: day, Till: day})
	assert.Equal(t, []string{"v3", "v2"}, ids(oneDay))

	byDoctor := VisitHistory(tokens, HistoryFilter{Name: "Ann", Phone: "1", DoctorID: "d1", Status: models.StatusNoShow})
	assert.Equal(t, []string{"v3"}, ids(byDoctor))
}

func TestWaitBands(t *testing.T) {
	cases := map[int]string{0: BandUnder10, 9: BandUnder10, 10: Band10To14, 14: Band10To14, 15: Band15To29, 29: Band15To29, 30: Band30To44, 44: Band30To44, 45: Band45Plus, 120: Band45Plus}
	for minutes, want := range cases {
		assert.Equal(t, want, WaitBand(minutes), "minutes=%d", minutes)
	}
	assert.Equal(t, 12, WaitMinutes(models.Token{Timestamp: at(0)}, at(12).Add(59*time.Second)))
	assert.Equal(t, 0, WaitMinutes(models.Token{Timestamp: at(5)}, at(0)))
}

func TestCountAndSummaries(t *testing.T) {
	tokens := sampleTokens()

	assert.Equal(t, Stats{Total: 5, InQueue: 2, Attended: 1, NoShows: 1}, Count(tokens, nil))
	assert.Equal(t, Stats{Total: 3, InQueue: 1, Attended: 1, NoShows: 1}, Count(tokens, []string{"g2"}))

	summaries := Summaries(tokens, sampleGroups)
	require.Len(t, summaries, 2)
	assert.Equal(t, 1, summaries[0].Waiting)
	require.NotNil(t, summaries[1].Next)
	assert.Equal(t, "t4", summaries[1].Next.ID)
}

func boardSnapshot() models.Snapshot {
	return models.Snapshot{
		Cabins: []models.Cabin{{ID: "cab1", Name: "Room 1"}},
		Groups: []models.ClinicGroup{
			{ID: "g1", Name: "General", ScreenIDs: []string{"screen1"}},
			{ID: "g2", Name: "Other"},
		},
		Tokens: []models.Token{
			{ID: "a", Number: 101, TokenInitial: "GM", PatientName: "Ann", GroupID: "g1", Status: models.StatusConsulting, CabinID: "cab1", Timestamp: at(1), VisitStartTime: ptr(at(2))},
			{ID: "b", Number: 102, TokenInitial: "GM", PatientName: "Bob", GroupID: "g1", Status: models.StatusCalling, CabinID: "cab1", Timestamp: at(2), VisitStartTime: ptr(at(5))},
			{ID: "c", Number: 103, TokenInitial: "GM", PatientName: "Cat", GroupID: "g1", Status: models.StatusWaiting, Timestamp: at(3)},
			{ID: "d", Number: 104, TokenInitial: "GM", PatientName: "Dan", GroupID: "g1", Status: models.StatusWaiting, Timestamp: at(4)},
			{ID: "e", Number: 105, TokenInitial: "GM", PatientName: "Eli", GroupID: "g1", Status: models.StatusWaiting, Timestamp: at(5)},
			{ID: "x", Number: 101, PatientName: "Xen", GroupID: "g2", Status: models.StatusCalling, Timestamp: at(0), VisitStartTime: ptr(at(9))},
		},
		Videos: []models.AdVideo{{ID: "v1"}},
	}
}

func TestBuildBoard(t *testing.T) {
	snap := boardSnapshot()
	board := BuildBoard(&snap, "screen1")

	require.Len(t, board.Ongoing, 2)
	assert.Equal(t, "b", board.Ongoing[0].TokenID, "calling tokens come first")
	assert.Equal(t, "Room 1", board.Ongoing[0].CabinName)
	assert.Equal(t, "GM-102", board.Ongoing[0].Display)

	require.Len(t, board.Waiting, 1)
	require.Len(t, board.Waiting[0].Tokens, 2)
	assert.Equal(t, "c", board.Waiting[0].Tokens[0].TokenID)
	assert.Equal(t, "d", board.Waiting[0].Tokens[1].TokenID)
	assert.Len(t, board.Videos, 1)
}

func TestAnnouncerAnnouncesEachCallOnce(t *testing.T) {
	snap := boardSnapshot()
	announcer := NewAnnouncer()

	board := BuildBoard(&snap, "screen1")
	first := announcer.Next(&board)
	require.NotNil(t, first)
	assert.Equal(t, "b", first.TokenID)
	assert.Equal(t, "Token number G M 102. Bob. Please proceed to Room 1.", first.Text)
	assert.Equal(t, AnnouncementRepeats, first.Repeats)
	assert.Same(t, first, board.Announcement)

	board = BuildBoard(&snap, "screen1")
	assert.Nil(t, announcer.Next(&board))

	snap.Tokens[1].LastRecalledTimestamp = ptr(at(20))
	board = BuildBoard(&snap, "screen1")
	again := announcer.Next(&board)
	require.NotNil(t, again)
	assert.Equal(t, at(20), again.CallTime)

	announcer.Forget("screen1")
	board = BuildBoard(&snap, "screen1")
	assert.NotNil(t, announcer.Next(&board))
}

func TestAnnouncementTextFallbacks(t *testing.T) {
	assert.Equal(t, "Token number 7. Kim. Please proceed to Reception.", AnnouncementText(models.Token{Number: 7, PatientName: "Kim"}, ""))
}
