package admin

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
	"omnitoken/clinic-service/internal/syncer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const qrCodeEndpoint = "https://api.qrserver.com/v1/create-qr-code/?size=150x150&data="

type Options struct {
	PublicBaseURL string
	BcryptCost    int
	Clock         func() time.Time
	NewID         func() string
}

// Service implements add/update/delete for every entity other than
// tokens, including the cross-entity cascades.
type Service struct {
	state      *state.Store
	sync       syncer.Syncer
	logger     zerolog.Logger
	baseURL    string
	bcryptCost int
	now        func() time.Time
	newID      func() string
}

func NewService(st *state.Store, sync syncer.Syncer, logger zerolog.Logger, opts Options) *Service {
	s := &Service{
		state:      st,
		sync:       sync,
		logger:     logger.With().Str("component", "admin").Logger(),
		baseURL:    strings.TrimRight(opts.PublicBaseURL, "/"),
		bcryptCost: opts.BcryptCost,
		now:        opts.Clock,
		newID:      opts.NewID,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.NewString() }
	}
	if s.sync == nil {
		s.sync = syncer.Discard{}
	}
	return s
}

// RegistrationURL is the self-registration deep link for a form.
func (s *Service) RegistrationURL(formID string) string {
	return s.baseURL + "/register/" + formID
}

func (s *Service) QRCodeURL(formID string) string {
	return qrCodeEndpoint + url.QueryEscape(s.RegistrationURL(formID))
}

// batch collects the remote writes of one command so they can be pushed
// after the state lock is released.
type batch struct {
	changes []syncer.Change
}

func (b *batch) upsert(table string, record interface{}) {
	b.changes = append(b.changes, syncer.NewUpsert(table, record))
}

func (b *batch) delete(table, id string) {
	b.changes = append(b.changes, syncer.NewDelete(table, id))
}

// mutate runs fn under the state write lock and pushes whatever it
// recorded once it succeeds.
func (s *Service) mutate(fn func(snap *models.Snapshot, b *batch) error) error {
	var b batch
	if err := s.state.Update(func(snap *models.Snapshot) error {
		return fn(snap, &b)
	}); err != nil {
		return err
	}
	for _, change := range b.changes {
		switch change.Op {
		case syncer.OpUpsert:
			s.sync.Upsert(change.Table, change.Record)
		case syncer.OpDelete:
			s.sync.Delete(change.Table, change.ID)
		}
	}
	return nil
}

func validationError(err error) error {
	return fmt.Errorf("%w: %v", store.ErrValidation, err)
}

func validate(record interface{}) error {
	if err := models.Validate(record); err != nil {
		return validationError(err)
	}
	return nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]bool, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
