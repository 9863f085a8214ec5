package jobs

import (
	"context"
	"time"

	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Fetcher loads the full state from the remote store.
type Fetcher interface {
	FetchStateForUser(ctx context.Context, user models.User) (models.Snapshot, error)
}

// SessionSweeper removes sessions that expired before a given time.
type SessionSweeper interface {
	DeleteExpiredSessions(ctx context.Context, before time.Time) (int64, error)
}

// DirtyTracker knows which local records the remote does not hold yet.
type DirtyTracker interface {
	Dirty(table, id string) bool
	Generation() uint64
}

// Refresher pulls the remote mirror into local state. Records with local
// changes the remote has not accepted keep their local version. A refresh
// is discarded when a local update or a push lands during the fetch.
type Refresher struct {
	remote  Fetcher
	state   *state.Store
	dirty   DirtyTracker
	logger  zerolog.Logger
	timeout time.Duration
}

func NewRefresher(remote Fetcher, st *state.Store, dirty DirtyTracker, logger zerolog.Logger) *Refresher {
	return &Refresher{
		remote:  remote,
		state:   st,
		dirty:   dirty,
		logger:  logger.With().Str("job", "state_refresh").Logger(),
		timeout: 30 * time.Second,
	}
}

// Run performs one refresh and reports whether local state was replaced.
func (r *Refresher) Run(ctx context.Context) bool {
	local, version := r.state.SnapshotAt()
	var generation uint64
	if r.dirty != nil {
		generation = r.dirty.Generation()
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	remote, err := r.remote.FetchStateForUser(ctx, models.User{Role: models.RoleCentralAdmin})
	if err != nil {
		r.logger.Error().Err(err).Msg("remote fetch failed")
		return false
	}
	if r.dirty != nil && r.dirty.Generation() != generation {
		r.logger.Debug().Msg("refresh discarded, pushes landed during fetch")
		return false
	}

	merged := Merge(local, remote, r.isDirty)
	if !r.state.ReplaceIf(version, merged) {
		r.logger.Debug().Msg("refresh discarded, local state changed")
		return false
	}
	r.logger.Info().Int("tokens", len(merged.Tokens)).Int("users", len(merged.Users)).Msg("state refreshed")
	return true
}

func (r *Refresher) isDirty(table, id string) bool {
	return r.dirty != nil && r.dirty.Dirty(table, id)
}

// Merge takes remote records except where dirty reports a pending local
// change: those keep the local record, or stay absent when deleted locally.
func Merge(local, remote models.Snapshot, dirty func(table, id string) bool) models.Snapshot {
	return models.Snapshot{
		Clinics:     mergeTable(store.TableClinics, local.Clinics, remote.Clinics, func(c models.Clinic) string { return c.ID }, dirty),
		Users:       mergeTable(store.TableUsers, local.Users, remote.Users, func(u models.User) string { return u.ID }, dirty),
		Advertisers: mergeTable(store.TableAdvertisers, local.Advertisers, remote.Advertisers, func(a models.Advertiser) string { return a.ID }, dirty),
		Cabins:      mergeTable(store.TableCabins, local.Cabins, remote.Cabins, func(c models.Cabin) string { return c.ID }, dirty),
		Forms:       mergeTable(store.TableForms, local.Forms, remote.Forms, func(f models.RegistrationForm) string { return f.ID }, dirty),
		Tokens:      mergeTable(store.TableTokens, local.Tokens, remote.Tokens, func(t models.Token) string { return t.ID }, dirty),
		Videos:      mergeTable(store.TableVideos, local.Videos, remote.Videos, func(v models.AdVideo) string { return v.ID }, dirty),
		Groups:      mergeTable(store.TableGroups, local.Groups, remote.Groups, func(g models.ClinicGroup) string { return g.ID }, dirty),
		Specialties: mergeTable(store.TableSpecialties, local.Specialties, remote.Specialties, func(s models.Specialty) string { return s.ID }, dirty),
	}
}

func mergeTable[T any](table string, local, remote []T, id func(T) string, dirty func(table, id string) bool) []T {
	byID := make(map[string]T, len(local))
	for _, rec := range local {
		byID[id(rec)] = rec
	}
	out := make([]T, 0, len(remote))
	seen := make(map[string]struct{}, len(remote))
	for _, rec := range remote {
		key := id(rec)
		seen[key] = struct{}{}
		if !dirty(table, key) {
			out = append(out, rec)
			continue
		}
		if mine, ok := byID[key]; ok {
			out = append(out, mine)
		}
	}
	for _, rec := range local {
		key := id(rec)
		if _, ok := seen[key]; ok {
			continue
		}
		if dirty(table, key) {
			out = append(out, rec)
		}
	}
	return out
}

type Sweeper struct {
	sessions SessionSweeper
	logger   zerolog.Logger
	now      func() time.Time
}

func NewSweeper(sessions SessionSweeper, logger zerolog.Logger) *Sweeper {
	return &Sweeper{sessions: sessions, logger: logger.With().Str("job", "session_sweep").Logger(), now: time.Now}
}

func (s *Sweeper) Run(ctx context.Context) int64 {
	removed, err := s.sessions.DeleteExpiredSessions(ctx, s.now())
	if err != nil {
		s.logger.Error().Err(err).Msg("session sweep failed")
		return 0
	}
	if removed > 0 {
		s.logger.Info().Int64("removed", removed).Msg("expired sessions removed")
	}
	return removed
}

type Schedule struct {
	Refresh      string
	SessionSweep string
}

// Start registers the jobs on a cron scheduler and starts it. An empty
// schedule disables the job. Stop the returned scheduler on shutdown.
func Start(sched Schedule, refresher *Refresher, sweeper *Sweeper, logger zerolog.Logger) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	if sched.Refresh != "" && refresher != nil {
		if _, err := c.AddFunc(sched.Refresh, func() { refresher.Run(context.Background()) }); err != nil {
			return nil, err
		}
	}
	if sched.SessionSweep != "" && sweeper != nil {
		if _, err := c.AddFunc(sched.SessionSweep, func() { sweeper.Run(context.Background()) }); err != nil {
			return nil, err
		}
	}

	c.Start()
	logger.Info().Int("jobs", len(c.Entries())).Msg("scheduler started")
	return c, nil
}
