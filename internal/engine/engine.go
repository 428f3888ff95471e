// Package engine implements the booking transaction engine: role-gated
// mutations, conflict resolution over expanded occurrences, cascading
// preemption, and bounded undo/redo, all serialized by a single mutation
// lock.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"reservd/internal/calendar"
	"reservd/internal/command"
	"reservd/internal/events"
	"reservd/internal/interval"
	"reservd/internal/metrics"
	"reservd/internal/models"
	"reservd/internal/strategy"
)

// Repo is the repository surface the engine drives. Reads are safe on their
// own; multi-call read-evaluate-commit sequences are serialized by the
// engine's mutation lock.
type Repo interface {
	command.Repo
	ListAll(ctx context.Context) []models.Booking
}

// Bus receives domain events. Optional.
type Bus interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Engine coordinates repository, strategy and history. The mutation lock
// serializes Create/Modify/Cancel end to end; the history keeps its own lock
// and is only ever acquired while holding (or strictly after) the mutation
// lock, so the ordering is fixed and deadlock-free.
type Engine struct {
	repo    Repo
	history *command.History
	bus     Bus
	logger  zerolog.Logger

	mu    sync.Mutex
	strat strategy.Strategy
}

// New assembles an engine. bus may be nil.
func New(repo Repo, strat strategy.Strategy, history *command.History, bus Bus, logger zerolog.Logger) *Engine {
	return &Engine{
		repo:    repo,
		history: history,
		bus:     bus,
		logger:  logger.With().Str("component", "engine").Logger(),
		strat:   strat,
	}
}

// SetStrategy swaps the active conflict policy. Persisted bookings are
// untouched.
func (e *Engine) SetStrategy(s strategy.Strategy) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strat = s
	e.logger.Info().Str("strategy", s.Name()).Msg("strategy switched")
}

func canMutate(actor models.User, target models.Booking) bool {
	switch actor.Role {
	case models.RoleAdmin, models.RoleManager:
		return true
	case models.RoleUser:
		return actor.ID == target.UserID
	default:
		return false
	}
}

func canCreate(actor models.User) bool {
	switch actor.Role {
	case models.RoleAdmin, models.RoleManager, models.RoleUser:
		return true
	default:
		return false
	}
}

// searchWindow bounds recurrence expansion for conflict checking to a
// tractable range around the candidate.
func searchWindow(b models.Booking) (time.Time, time.Time) {
	from := b.Start.Add(-24 * time.Hour)
	var to time.Time
	if u := b.Recurrence.Until; u != nil {
		to = u.Add(time.Hour)
	} else {
		to = b.Start.Add(365 * 24 * time.Hour)
	}
	return from, to
}

// Create runs the full transaction for a candidate booking. It returns the
// new identifier, or 0 with a nil error when the strategy rejected the
// candidate (a conflict is an expected outcome, not an error).
func (e *Engine) Create(ctx context.Context, b models.Booking, actor models.User) (int64, error) {
	if !canCreate(actor) {
		return 0, fmt.Errorf("create: %w", models.ErrAccessDenied)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// The stored priority is always the creator's at this moment; later
	// priority changes must not alter past bookings' preemption standing.
	b.OwnerPriority = actor.Priority

	from, to := searchWindow(b)

	candidates := interval.Expand(b, from, to)
	if len(candidates) == 0 {
		candidates = []models.Occurrence{{Booking: b}}
	}

	var existing []models.Occurrence
	for _, ex := range e.repo.ListAll(ctx) {
		if ex.RoomID != b.RoomID && !ex.SharesResource(b) {
			continue
		}
		existing = append(existing, interval.Expand(ex, from, to)...)
	}

	for _, cand := range candidates {
		res := e.strat.Resolve(cand, existing, actor)
		if !res.OK {
			e.logger.Info().Str("reason", res.Message).Msg("create rejected")
			metrics.IncBookingCreated("conflict")
			return 0, nil
		}

		if len(res.Preempt) > 0 {
			if actor.Role != models.RoleAdmin && actor.Role != models.RoleManager {
				e.logger.Info().Msg("preemption authorized by policy but actor lacks rights")
				metrics.IncBookingCreated("conflict")
				return 0, nil
			}
			if err := e.preemptLocked(ctx, res.Preempt); err != nil {
				return 0, err
			}
			existing = strikeBookings(existing, res.Preempt)
		}

		if res.SuggestedStart != nil {
			adjusted := b
			dur := b.Duration()
			adjusted.Start = *res.SuggestedStart
			adjusted.End = adjusted.Start.Add(dur)
			return e.commitCreateLocked(ctx, adjusted, "adjusted")
		}
	}

	return e.commitCreateLocked(ctx, b, "created")
}

// CreateFromRequest is a convenience overload over Create.
func (e *Engine) CreateFromRequest(ctx context.Context, req models.CreateRequest) (int64, error) {
	return e.Create(ctx, req.Booking, req.Actor)
}

func (e *Engine) commitCreateLocked(ctx context.Context, b models.Booking, outcome string) (int64, error) {
	cmd := command.NewCreate(e.repo, b)
	if err := cmd.Execute(ctx); err != nil {
		return 0, err
	}
	e.history.Push(cmd)
	metrics.IncBookingCreated(outcome)

	b.ID = cmd.ID()
	e.publish(events.TypeBookingCreated, b)
	e.logger.Info().Int64("id", b.ID).Str("outcome", outcome).Msg("booking committed")
	return b.ID, nil
}

// preemptLocked removes every named booking as its own invertible command so
// an undo sequence can bring the victims back one by one.
func (e *Engine) preemptLocked(ctx context.Context, ids []int64) error {
	for _, id := range ids {
		cmd := command.NewRemove(e.repo, id)
		if err := cmd.Execute(ctx); err != nil {
			return fmt.Errorf("preempting booking %d: %w", id, err)
		}
		e.history.Push(cmd)
		metrics.IncBookingPreempted()
		e.publish(events.TypeBookingPreempted, map[string]int64{"id": id})
		e.logger.Info().Int64("id", id).Msg("booking preempted")
	}
	return nil
}

func strikeBookings(occs []models.Occurrence, ids []int64) []models.Occurrence {
	removed := make(map[int64]bool, len(ids))
	for _, id := range ids {
		removed[id] = true
	}
	out := occs[:0]
	for _, o := range occs {
		if !removed[o.ID] {
			out = append(out, o)
		}
	}
	return out
}

// Modify patches an existing booking with the request's non-nil fields. It
// deliberately does not re-run conflict detection against the new interval;
// a rescheduled booking may land on an occupied slot.
func (e *Engine) Modify(ctx context.Context, req models.ChangeRequest) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.repo.Get(ctx, req.ID)
	if !ok {
		return false, nil
	}
	if !canMutate(req.Actor, old) {
		return false, fmt.Errorf("modify: %w", models.ErrAccessDenied)
	}

	updated := old
	if req.Title != nil {
		updated.Title = *req.Title
	}
	if req.Description != nil {
		updated.Description = *req.Description
	}
	if req.Start != nil {
		updated.Start = *req.Start
	}
	if req.End != nil {
		updated.End = *req.End
	}

	cmd := command.NewUpdate(e.repo, old, updated)
	if err := cmd.Execute(ctx); err != nil {
		return false, err
	}
	e.history.Push(cmd)
	e.publish(events.TypeBookingUpdated, updated)
	e.logger.Info().Int64("id", req.ID).Msg("booking modified")
	return true, nil
}

// Cancel removes a booking. Owner-or-privileged RBAC, same as Modify.
func (e *Engine) Cancel(ctx context.Context, id int64, actor models.User) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	old, ok := e.repo.Get(ctx, id)
	if !ok {
		return false, nil
	}
	if !canMutate(actor, old) {
		return false, fmt.Errorf("cancel: %w", models.ErrAccessDenied)
	}

	cmd := command.NewRemove(e.repo, id)
	if err := cmd.Execute(ctx); err != nil {
		return false, err
	}
	e.history.Push(cmd)
	metrics.IncBookingCancelled()
	e.publish(events.TypeBookingCancelled, old)
	e.logger.Info().Int64("id", id).Msg("booking cancelled")
	return true, nil
}

// Get returns a booking by id. Reads do not take the mutation lock and may
// observe an in-flight commit's pre- or post-state.
func (e *Engine) Get(ctx context.Context, id int64) (models.Booking, bool) {
	return e.repo.Get(ctx, id)
}

// ListBookings expands every booking in the room into its occurrences within
// [from, to).
func (e *Engine) ListBookings(ctx context.Context, room int64, from, to time.Time) []models.Occurrence {
	var out []models.Occurrence
	for _, b := range e.repo.ListAll(ctx) {
		if b.RoomID != room {
			continue
		}
		out = append(out, interval.Expand(b, from, to)...)
	}
	return out
}

// Undo reverses the most recent mutation and reports what was undone.
func (e *Engine) Undo(ctx context.Context) (string, error) {
	desc, ok, err := e.history.Undo(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "nothing to undo", nil
	}
	metrics.IncHistoryOp("undo")
	return "undid: " + desc, nil
}

// Redo replays the most recently undone mutation.
func (e *Engine) Redo(ctx context.Context) (string, error) {
	desc, ok, err := e.history.Redo(ctx)
	if err != nil {
		return "", err
	}
	if !ok {
		return "nothing to redo", nil
	}
	metrics.IncHistoryOp("redo")
	return "redid: " + desc, nil
}

// ImportFromCalendar submits every fetched event through the ordinary Create
// path and returns the identifiers that were actually created. Conflicting
// events are skipped; access and storage failures abort the import.
func (e *Engine) ImportFromCalendar(ctx context.Context, adapter calendar.Adapter, from, to time.Time, actor models.User) ([]int64, error) {
	if actor.Role != models.RoleAdmin && actor.Role != models.RoleManager {
		return nil, fmt.Errorf("import: %w", models.ErrAccessDenied)
	}

	fetched, err := adapter.Fetch(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("fetching calendar events: %w", err)
	}

	var imported []int64
	for _, ev := range fetched {
		b := models.Booking{
			RoomID:      ev.RoomID,
			UserID:      ev.UserID,
			Start:       ev.Start,
			End:         ev.End,
			Title:       ev.Title,
			Description: ev.Description,
		}
		id, err := e.Create(ctx, b, actor)
		if err != nil {
			return imported, err
		}
		if id != 0 {
			imported = append(imported, id)
			e.publish(events.TypeBookingImported, map[string]int64{"id": id})
		}
	}
	e.logger.Info().Int("imported", len(imported)).Int("fetched", len(fetched)).Msg("calendar import finished")
	return imported, nil
}

func (e *Engine) publish(eventType string, payload interface{}) {
	if e.bus == nil {
		return
	}
	if err := e.bus.PublishJSON(eventType, payload); err != nil {
		e.logger.Warn().Err(err).Str("event", eventType).Msg("event publish failed")
	}
}
