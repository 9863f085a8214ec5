package syncer

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"omnitoken/clinic-service/internal/metrics"

	"github.com/rs/zerolog"
)

// Remote is the subset of the remote store the syncer writes to.
type Remote interface {
	Upsert(ctx context.Context, table string, record interface{}) error
	Delete(ctx context.Context, table, id string) error
}

type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
	// AfterPush runs on a worker goroutine once the remote call returns.
	AfterPush func(change Change, err error)
}

var errDropped = errors.New("sync change dropped")

// BestEffort queues mutations and pushes them from a small worker pool.
// Changes to one record always go to the same worker, so they reach the
// remote in the order they were made. A full queue drops the change; failed
// pushes are logged and the record stays dirty until a later push succeeds.
type BestEffort struct {
	remote    Remote
	logger    zerolog.Logger
	timeout   time.Duration
	afterPush func(Change, error)

	mu      sync.RWMutex
	closed  bool
	queues  []chan Change
	wg      sync.WaitGroup
	pending atomic.Int64

	dirtyMu     sync.Mutex
	outstanding map[string]int
	failed      map[string]struct{}
	generation  uint64
}

func NewBestEffort(remote Remote, logger zerolog.Logger, opts Options) *BestEffort {
	workers := opts.Workers
	if workers <= 0 {
		workers = 4
	}
	queueSize := opts.QueueSize
	if queueSize <= 0 {
		queueSize = 256
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	s := &BestEffort{
		remote:    remote,
		logger:    logger.With().Str("component", "syncer").Logger(),
		timeout:   timeout,
		afterPush: opts.AfterPush,
		queues:    make([]chan Change, workers),

		outstanding: make(map[string]int),
		failed:      make(map[string]struct{}),
	}
	for i := range s.queues {
		s.queues[i] = make(chan Change, queueSize)
		s.wg.Add(1)
		go s.run(s.queues[i])
	}
	return s
}

func (s *BestEffort) Upsert(table string, record interface{}) {
	s.enqueue(NewUpsert(table, record))
}

func (s *BestEffort) Delete(table, id string) {
	s.enqueue(NewDelete(table, id))
}

func (s *BestEffort) enqueue(change Change) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := dirtyKey(change.Table, change.ID)
	s.markQueued(key)
	if s.closed {
		s.logger.Warn().Str("table", change.Table).Str("id", change.ID).Msg("sync after close dropped")
		metrics.IncSync(change.Table, change.Op, "dropped")
		s.settle(key, errDropped)
		return
	}
	s.pending.Add(1)
	select {
	case s.queues[s.worker(key)] <- change:
	default:
		s.pending.Add(-1)
		s.logger.Warn().Str("table", change.Table).Str("id", change.ID).Msg("sync queue full, change dropped")
		metrics.IncSync(change.Table, change.Op, "dropped")
		s.settle(key, errDropped)
	}
}

func (s *BestEffort) worker(key string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(len(s.queues)))
}

func (s *BestEffort) run(queue <-chan Change) {
	defer s.wg.Done()
	for change := range queue {
		s.push(change)
		s.pending.Add(-1)
	}
}

func (s *BestEffort) push(change Change) {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	var err error
	switch change.Op {
	case OpUpsert:
		err = s.remote.Upsert(ctx, change.Table, change.Record)
	case OpDelete:
		err = s.remote.Delete(ctx, change.Table, change.ID)
	}
	if err != nil {
		s.logger.Error().Err(err).Str("op", change.Op).Str("table", change.Table).Str("id", change.ID).Msg("remote sync failed")
		metrics.IncSync(change.Table, change.Op, "failed")
	} else {
		metrics.IncSync(change.Table, change.Op, "ok")
	}
	s.settle(dirtyKey(change.Table, change.ID), err)
	if s.afterPush != nil {
		s.afterPush(change, err)
	}
}

// Pending is the number of changes queued or being pushed.
func (s *BestEffort) Pending() int {
	return int(s.pending.Load())
}

func dirtyKey(table, id string) string {
	return table + "/" + id
}

func (s *BestEffort) markQueued(key string) {
	s.dirtyMu.Lock()
	s.outstanding[key]++
	s.dirtyMu.Unlock()
}

// settle ends one outstanding change for key. Only a successful push clears
// an earlier failure.
func (s *BestEffort) settle(key string, err error) {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	if n := s.outstanding[key] - 1; n > 0 {
		s.outstanding[key] = n
	} else {
		delete(s.outstanding, key)
	}
	if err != nil {
		s.failed[key] = struct{}{}
		return
	}
	delete(s.failed, key)
	s.generation++
}

// Dirty reports whether the record has changes that are queued, in flight,
// or that never reached the remote.
func (s *BestEffort) Dirty(table, id string) bool {
	key := dirtyKey(table, id)
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	if s.outstanding[key] > 0 {
		return true
	}
	_, failed := s.failed[key]
	return failed
}

// Generation changes every time a push lands on the remote.
func (s *BestEffort) Generation() uint64 {
	s.dirtyMu.Lock()
	defer s.dirtyMu.Unlock()
	return s.generation
}

// Close stops accepting changes and waits for queued ones to drain or for
// ctx to expire.
func (s *BestEffort) Close(ctx context.Context) error {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		for _, queue := range s.queues {
			close(queue)
		}
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
