package lifecycle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"omnitoken/clinic-service/internal/metrics"
	"omnitoken/clinic-service/internal/models"
	"omnitoken/clinic-service/internal/scope"
	"omnitoken/clinic-service/internal/state"
	"omnitoken/clinic-service/internal/store"
	"omnitoken/clinic-service/internal/syncer"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const DefaultNoShowGrace = 30 * time.Second

type Options struct {
	NoShowGrace time.Duration
	Clock       func() time.Time
	NewID       func() string
}

// Engine owns every token state change. Each command runs under the
// state store's write lock; the resulting record is handed to the syncer
// after the lock is released.
type Engine struct {
	state       *state.Store
	sync        syncer.Syncer
	logger      zerolog.Logger
	now         func() time.Time
	newID       func() string
	noShowGrace time.Duration
}

func NewEngine(st *state.Store, sync syncer.Syncer, logger zerolog.Logger, opts Options) *Engine {
	e := &Engine{
		state:       st,
		sync:        sync,
		logger:      logger.With().Str("component", "lifecycle").Logger(),
		now:         opts.Clock,
		newID:       opts.NewID,
		noShowGrace: opts.NoShowGrace,
	}
	if e.now == nil {
		e.now = time.Now
	}
	if e.newID == nil {
		e.newID = func() string { return uuid.NewString() }
	}
	if e.noShowGrace <= 0 {
		e.noShowGrace = DefaultNoShowGrace
	}
	if e.sync == nil {
		e.sync = syncer.Discard{}
	}
	return e
}

type CreateTokenInput struct {
	PatientName string
	PatientData models.PatientData
	ClinicID    string
	FormID      string
	GroupID     string
}

// CreateToken issues a WAITING token. The group comes from the form, then
// the explicit group id, then a "groupId" entry in the patient data.
func (e *Engine) CreateToken(ctx context.Context, in CreateTokenInput) (models.Token, error) {
	token := models.Token{
		ID:           e.newID(),
		PatientName:  strings.TrimSpace(in.PatientName),
		PatientEmail: in.PatientData.Email,
		PatientData:  in.PatientData,
		Status:       models.StatusWaiting,
		ClinicID:     strings.TrimSpace(in.ClinicID),
	}
	if err := models.Validate(token); err != nil {
		return models.Token{}, fmt.Errorf("%w: %v", store.ErrValidation, err)
	}

	err := e.state.Update(func(snap *models.Snapshot) error {
		if state.ClinicIndex(snap, token.ClinicID) < 0 {
			return store.ErrClinicNotFound
		}
		group, found, err := resolveGroup(snap, in)
		if err != nil {
			return err
		}
		if found {
			if group.ClinicID != token.ClinicID {
				return store.ErrGroupNotFound
			}
			token.GroupID = group.ID
			token.TokenInitial = group.TokenInitial
		}
		token.Number = nextNumber(snap, token.ClinicID, token.GroupID)
		token.Timestamp = e.now()
		snap.Tokens = append(snap.Tokens, token)
		return nil
	})
	if err != nil {
		return models.Token{}, err
	}

	metrics.IncTokenIssued()
	e.logger.Info().Str("token_id", token.ID).Str("clinic_id", token.ClinicID).Str("group_id", token.GroupID).Int("number", token.Number).Msg("token issued")
	e.sync.Upsert(store.TableTokens, token)
	return token, nil
}

func resolveGroup(snap *models.Snapshot, in CreateTokenInput) (models.ClinicGroup, bool, error) {
	if in.FormID != "" {
		if i := state.GroupByForm(snap, in.FormID); i >= 0 {
			return snap.Groups[i], true, nil
		}
	}
	groupID := in.GroupID
	if groupID == "" {
		groupID = in.PatientData.Get("groupId")
	}
	if groupID == "" {
		if in.FormID != "" && state.FormIndex(snap, in.FormID) < 0 {
			return models.ClinicGroup{}, false, store.ErrFormNotFound
		}
		return models.ClinicGroup{}, false, nil
	}
	i := state.GroupIndex(snap, groupID)
	if i < 0 {
		return models.ClinicGroup{}, false, store.ErrGroupNotFound
	}
	return snap.Groups[i], true, nil
}

// nextNumber continues the group's sequence from 101. Ungrouped tokens
// share one sequence per clinic.
func nextNumber(snap *models.Snapshot, clinicID, groupID string) int {
	next := models.TokenNumberBase
	for _, t := range snap.Tokens {
		if t.GroupID != groupID {
			continue
		}
		if groupID == "" && t.ClinicID != clinicID {
			continue
		}
		if t.Number >= next {
			next = t.Number + 1
		}
	}
	return next
}

func (e *Engine) GetToken(tokenID string) (models.Token, error) {
	var (
		token models.Token
		found bool
	)
	e.state.View(func(snap *models.Snapshot) {
		if i := state.TokenIndex(snap, tokenID); i >= 0 {
			token = snap.Tokens[i]
			found = true
		}
	})
	if !found {
		return models.Token{}, store.ErrTokenNotFound
	}
	return token, nil
}

// UpdateToken replaces the patient-facing fields of a token. Number,
// status and timing only change through the transition commands.
func (e *Engine) UpdateToken(ctx context.Context, in models.Token) (models.Token, error) {
	in.PatientName = strings.TrimSpace(in.PatientName)
	if in.PatientName == "" {
		return models.Token{}, fmt.Errorf("%w: patient_name is required", store.ErrValidation)
	}

	var updated models.Token
	err := e.state.Update(func(snap *models.Snapshot) error {
		i := state.TokenIndex(snap, in.ID)
		if i < 0 {
			return store.ErrTokenNotFound
		}
		updated = snap.Tokens[i]
		updated.PatientName = in.PatientName
		updated.PatientData = in.PatientData
		updated.PatientEmail = in.PatientData.Email
		if in.PatientEmail != "" {
			updated.PatientEmail = in.PatientEmail
		}
		snap.Tokens[i] = updated
		return nil
	})
	if err != nil {
		return models.Token{}, err
	}
	e.sync.Upsert(store.TableTokens, updated)
	return updated, nil
}

func (e *Engine) DeleteToken(ctx context.Context, tokenID string) error {
	err := e.state.Update(func(snap *models.Snapshot) error {
		i := state.TokenIndex(snap, tokenID)
		if i < 0 {
			return store.ErrTokenNotFound
		}
		snap.Tokens = state.RemoveAt(snap.Tokens, i)
		return nil
	})
	if err != nil {
		return err
	}
	e.sync.Delete(store.TableTokens, tokenID)
	return nil
}

// UpdateStatus moves a token to status, resolving the action from the
// token's current status. cabinID is only used when calling.
func (e *Engine) UpdateStatus(ctx context.Context, tokenID, status, cabinID string) (models.Token, error) {
	if !models.ValidStatus(status) {
		return models.Token{}, fmt.Errorf("%w: unknown status %q", store.ErrValidation, status)
	}
	current, err := e.GetToken(tokenID)
	if err != nil {
		return models.Token{}, err
	}
	action, ok := store.ActionFor(current.Status, status)
	if !ok {
		return models.Token{}, store.ErrInvalidTransition
	}
	return e.apply(tokenID, action, cabinID, current.Status)
}

func (e *Engine) Call(ctx context.Context, tokenID, cabinID string) (models.Token, error) {
	return e.apply(tokenID, store.ActionCall, cabinID, "")
}

func (e *Engine) Recall(ctx context.Context, tokenID string) (models.Token, error) {
	return e.apply(tokenID, store.ActionRecall, "", "")
}

func (e *Engine) StartConsultation(ctx context.Context, tokenID string) (models.Token, error) {
	return e.apply(tokenID, store.ActionStartConsultation, "", "")
}

func (e *Engine) Complete(ctx context.Context, tokenID string) (models.Token, error) {
	return e.apply(tokenID, store.ActionComplete, "", "")
}

func (e *Engine) Cancel(ctx context.Context, tokenID string) (models.Token, error) {
	return e.apply(tokenID, store.ActionCancel, "", "")
}

func (e *Engine) NoShow(ctx context.Context, tokenID string) (models.Token, error) {
	return e.apply(tokenID, store.ActionNoShow, "", "")
}

// apply runs one transition. expectFrom, when set, makes the command fail
// if another writer moved the token since the caller resolved the action.
func (e *Engine) apply(tokenID, action, cabinID, expectFrom string) (models.Token, error) {
	var updated models.Token
	err := e.state.Update(func(snap *models.Snapshot) error {
		i := state.TokenIndex(snap, tokenID)
		if i < 0 {
			return store.ErrTokenNotFound
		}
		token, err := e.transition(snap, snap.Tokens[i], action, cabinID, expectFrom)
		if err != nil {
			return err
		}
		snap.Tokens[i] = token
		updated = token
		return nil
	})
	if err != nil {
		return models.Token{}, err
	}

	metrics.IncTransition(updated.Status)
	e.logger.Debug().Str("token_id", updated.ID).Str("action", action).Str("status", updated.Status).Msg("token transition")
	e.sync.Upsert(store.TableTokens, updated)
	return updated, nil
}

func (e *Engine) transition(snap *models.Snapshot, token models.Token, action, cabinID, expectFrom string) (models.Token, error) {
	if expectFrom != "" && token.Status != expectFrom {
		return token, store.ErrInvalidTransition
	}
	if !store.ValidTransition(action, token.Status) {
		return token, store.ErrInvalidTransition
	}
	target, _ := store.TargetStatus(action)
	now := e.now()

	switch action {
	case store.ActionCall:
		if cabinID != "" {
			cabin, err := servingCabin(snap, token, cabinID)
			if err != nil {
				return token, err
			}
			token.CabinID = cabin.ID
			token.DoctorID = cabin.CurrentDoctorID
		}
		if token.VisitStartTime == nil {
			token.VisitStartTime = timePtr(now)
		}
		token.LastRecalledTimestamp = timePtr(now)
	case store.ActionRecall:
		token.LastRecalledTimestamp = timePtr(now)
	case store.ActionNoShow:
		if remaining := e.noShowRemaining(token, now); remaining > 0 {
			return token, fmt.Errorf("%w: %s remaining", store.ErrNoShowTooEarly, remaining.Round(time.Second))
		}
		token.VisitEndTime = timePtr(now)
	case store.ActionComplete, store.ActionCancel:
		token.VisitEndTime = timePtr(now)
	}
	token.Status = target
	return token, nil
}

// servingCabin checks that the cabin can take token: it exists in the
// token's clinic, has a doctor, and is not serving anyone else.
func servingCabin(snap *models.Snapshot, token models.Token, cabinID string) (models.Cabin, error) {
	i := state.CabinIndex(snap, cabinID)
	if i < 0 || snap.Cabins[i].ClinicID != token.ClinicID {
		return models.Cabin{}, store.ErrCabinNotFound
	}
	cabin := snap.Cabins[i]
	if cabin.CurrentDoctorID == "" {
		return models.Cabin{}, store.ErrCabinLocked
	}
	for _, other := range snap.Tokens {
		if other.ID != token.ID && other.CabinID == cabinID && models.IsServing(other.Status) {
			return models.Cabin{}, store.ErrCabinOccupied
		}
	}
	return cabin, nil
}

// CallNext calls the oldest WAITING token of the selected group (or of
// every group the caller works on) into cabinID.
func (e *Engine) CallNext(ctx context.Context, caller models.User, groupSelector, cabinID string) (models.Token, error) {
	if cabinID == "" {
		return models.Token{}, fmt.Errorf("%w: cabin_id is required", store.ErrValidation)
	}

	var updated models.Token
	err := e.state.Update(func(snap *models.Snapshot) error {
		groupIDs, ok := scope.GroupIDs(snap, caller, groupSelector)
		if !ok {
			return store.ErrGroupNotFound
		}
		i := NextWaiting(snap.Tokens, groupIDs)
		if i < 0 {
			return store.ErrQueueEmpty
		}
		token, err := e.transition(snap, snap.Tokens[i], store.ActionCall, cabinID, "")
		if err != nil {
			return err
		}
		snap.Tokens[i] = token
		updated = token
		return nil
	})
	if err != nil {
		return models.Token{}, err
	}

	metrics.IncTransition(updated.Status)
	e.logger.Info().Str("token_id", updated.ID).Str("cabin_id", cabinID).Str("doctor_id", updated.DoctorID).Msg("next patient called")
	e.sync.Upsert(store.TableTokens, updated)
	return updated, nil
}

// NextWaiting returns the index of the WAITING token in groupIDs with the
// earliest timestamp, ties broken by id, or -1.
func NextWaiting(tokens []models.Token, groupIDs []string) int {
	allowed := make(map[string]bool, len(groupIDs))
	for _, id := range groupIDs {
		allowed[id] = true
	}
	candidates := make([]int, 0)
	for i, t := range tokens {
		if t.Status == models.StatusWaiting && allowed[t.GroupID] {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return -1
	}
	sort.Slice(candidates, func(a, b int) bool {
		ta, tb := tokens[candidates[a]], tokens[candidates[b]]
		if !ta.Timestamp.Equal(tb.Timestamp) {
			return ta.Timestamp.Before(tb.Timestamp)
		}
		return ta.ID < tb.ID
	})
	return candidates[0]
}

// NoShowCountdown returns the whole seconds left before the token may be
// marked as a no-show; zero once allowed.
func (e *Engine) NoShowCountdown(tokenID string) (int, error) {
	token, err := e.GetToken(tokenID)
	if err != nil {
		return 0, err
	}
	return Countdown(token, e.now(), e.noShowGrace), nil
}

func (e *Engine) noShowRemaining(token models.Token, now time.Time) time.Duration {
	called := calledAt(token)
	if called == nil {
		return e.noShowGrace
	}
	elapsed := now.Sub(*called)
	if elapsed >= e.noShowGrace {
		return 0
	}
	return e.noShowGrace - elapsed
}

// calledAt is when the grace period started: the visit start, or the last
// recall for tokens loaded without one. Nil means the token was never
// called here; a recall starts the clock.
func calledAt(token models.Token) *time.Time {
	if token.VisitStartTime != nil {
		return token.VisitStartTime
	}
	return token.LastRecalledTimestamp
}

// Countdown is grace minus the whole seconds elapsed since the token was
// called, clamped at zero.
func Countdown(token models.Token, now time.Time, grace time.Duration) int {
	if token.Status != models.StatusCalling {
		return 0
	}
	called := calledAt(token)
	if called == nil {
		return int(grace / time.Second)
	}
	elapsed := int(now.Sub(*called) / time.Second)
	remaining := int(grace/time.Second) - elapsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

func timePtr(t time.Time) *time.Time {
	return &t
}
