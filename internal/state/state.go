package state

import (
	"sync"

	"omnitoken/clinic-service/internal/models"
)

// Store owns the in-process entity state. Writers are serialized; readers
// get copies so they never observe a half-applied command.
type Store struct {
	mu      sync.RWMutex
	data    models.Snapshot
	version uint64
}

func New(initial models.Snapshot) *Store {
	return &Store{data: initial.Clone()}
}

func (s *Store) Snapshot() models.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone()
}

// SnapshotAt returns a copy of the state together with its version.
func (s *Store) SnapshotAt() (models.Snapshot, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data.Clone(), s.version
}

// View runs fn against the live state under the read lock. fn must not
// retain or modify the snapshot.
func (s *Store) View(fn func(snap *models.Snapshot)) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	fn(&s.data)
}

// Update runs fn under the write lock. fn must finish all checks that can
// fail before it mutates the snapshot.
func (s *Store) Update(fn func(snap *models.Snapshot) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := fn(&s.data); err != nil {
		return err
	}
	s.version++
	return nil
}

// Version counts successful updates and replacements.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Replace swaps in a freshly loaded state, e.g. after a remote refresh.
func (s *Store) Replace(snap models.Snapshot) {
	next := snap.Clone()
	s.mu.Lock()
	s.data = next
	s.version++
	s.mu.Unlock()
}

// ReplaceIf swaps in snap only when no update happened since version was
// read. It reports whether the swap took place.
func (s *Store) ReplaceIf(version uint64, snap models.Snapshot) bool {
	next := snap.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != version {
		return false
	}
	s.data = next
	s.version++
	return true
}
