package syncer

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"omnitoken/clinic-service/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRemote struct {
	mu       sync.Mutex
	upserts  []string
	deletes  []string
	failWith error
	block    chan struct{}
}

func (f *fakeRemote) Upsert(ctx context.Context, table string, record interface{}) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.upserts = append(f.upserts, table+"/"+RecordID(record))
	return f.failWith
}

func (f *fakeRemote) Delete(ctx context.Context, table, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, table+"/"+id)
	return f.failWith
}

func TestBestEffortPushesChanges(t *testing.T) {
	remote := &fakeRemote{}
	var pushed []Change
	var mu sync.Mutex
	s := NewBestEffort(remote, zerolog.New(io.Discard), Options{
		Workers: 1,
		AfterPush: func(change Change, err error) {
			mu.Lock()
			pushed = append(pushed, change)
			mu.Unlock()
		},
	})

	s.Upsert("tokens", models.Token{ID: "t1", ClinicID: "c1"})
	s.Delete("cabins", "cab1")
	require.NoError(t, s.Close(context.Background()))

	assert.Equal(t, []string{"tokens/t1"}, remote.upserts)
	assert.Equal(t, []string{"cabins/cab1"}, remote.deletes)
	require.Len(t, pushed, 2)
	assert.Equal(t, "c1", pushed[0].ClinicID)
}

func TestBestEffortSwallowsFailures(t *testing.T) {
	remote := &fakeRemote{failWith: errors.New("network down")}
	var failures int
	s := NewBestEffort(remote, zerolog.New(io.Discard), Options{
		Workers: 1,
		AfterPush: func(change Change, err error) {
			if err != nil {
				failures++
			}
		},
	})

	s.Upsert("clinics", models.Clinic{ID: "c1"})
	require.NoError(t, s.Close(context.Background()))
	assert.Equal(t, 1, failures)
}

func TestBestEffortDropsWhenQueueFull(t *testing.T) {
	remote := &fakeRemote{block: make(chan struct{})}
	s := NewBestEffort(remote, zerolog.New(io.Discard), Options{Workers: 1, QueueSize: 1})

	// first change occupies the worker, second fills the queue, rest are dropped
	for i := 0; i < 5; i++ {
		s.Upsert("tokens", models.Token{ID: "t"})
	}
	close(remote.block)
	require.NoError(t, s.Close(context.Background()))

	assert.LessOrEqual(t, len(remote.upserts), 2)
}

func TestCloseHonoursContext(t *testing.T) {
	remote := &fakeRemote{block: make(chan struct{})}
	s := NewBestEffort(remote, zerolog.New(io.Discard), Options{Workers: 1})
	s.Upsert("tokens", models.Token{ID: "t1"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Close(ctx), context.DeadlineExceeded)
	close(remote.block)
}

func TestFanoutAndListener(t *testing.T) {
	var got []Change
	listener := ListenerFunc(func(change Change) { got = append(got, change) })
	f := Fanout{Discard{}, listener}

	f.Upsert("groups", models.ClinicGroup{ID: "g1", ClinicID: "c9"})
	f.Delete("groups", "g1")

	require.Len(t, got, 2)
	assert.Equal(t, Change{Op: OpUpsert, Table: "groups", ID: "g1", ClinicID: "c9", Record: models.ClinicGroup{ID: "g1", ClinicID: "c9"}}, got[0])
	assert.Equal(t, OpDelete, got[1].Op)
	assert.Equal(t, "g1", got[1].ID)
}

type orderedRemote struct {
	mu     sync.Mutex
	status map[string]string
}

func (o *orderedRemote) Upsert(ctx context.Context, table string, record interface{}) error {
	tok := record.(models.Token)
	if tok.Status == models.StatusConsulting {
		time.Sleep(30 * time.Millisecond)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.status[tok.ID] = tok.Status
	return nil
}

func (o *orderedRemote) Delete(ctx context.Context, table, id string) error { return nil }

func TestBestEffortKeepsPerRecordOrder(t *testing.T) {
	remote := &orderedRemote{status: make(map[string]string)}
	s := NewBestEffort(remote, zerolog.New(io.Discard), Options{Workers: 8})

	for _, id := range []string{"t1", "t2", "t3"} {
		for _, status := range []string{models.StatusCalling, models.StatusConsulting, models.StatusCompleted} {
			s.Upsert("tokens", models.Token{ID: id, Status: status})
		}
	}
	require.NoError(t, s.Close(context.Background()))

	for _, id := range []string{"t1", "t2", "t3"} {
		assert.Equal(t, models.StatusCompleted, remote.status[id], id)
	}
}

func TestBestEffortTracksDirtyRecords(t *testing.T) {
	remote := &fakeRemote{failWith: errors.New("network down")}
	s := NewBestEffort(remote, zerolog.New(io.Discard), Options{Workers: 2})

	s.Upsert("tokens", models.Token{ID: "t1"})
	s.Delete("tokens", "t2")
	require.NoError(t, s.Close(context.Background()))

	assert.True(t, s.Dirty("tokens", "t1"))
	assert.True(t, s.Dirty("tokens", "t2"))
	assert.False(t, s.Dirty("tokens", "t3"))
	assert.Zero(t, s.Generation())
}

func TestBestEffortClearsDirtyAfterSuccess(t *testing.T) {
	remote := &fakeRemote{failWith: errors.New("network down")}
	s := NewBestEffort(remote, zerolog.New(io.Discard), Options{Workers: 1})
	s.Upsert("tokens", models.Token{ID: "t1"})
	require.Eventually(t, func() bool { return s.Pending() == 0 }, time.Second, 5*time.Millisecond)
	require.True(t, s.Dirty("tokens", "t1"))

	remote.mu.Lock()
	remote.failWith = nil
	remote.mu.Unlock()
	s.Upsert("tokens", models.Token{ID: "t1", Status: models.StatusCancelled})
	require.NoError(t, s.Close(context.Background()))

	assert.False(t, s.Dirty("tokens", "t1"))
	assert.Equal(t, uint64(1), s.Generation())
}
