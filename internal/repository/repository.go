// Package repository owns the authoritative set of bookings and persists it
// through the storage contract: a full snapshot rewrite plus a journal append
// on every mutation.
package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"reservd/internal/models"
	"reservd/internal/storage"
)

// Repository is a lock-guarded in-memory map of bookings keyed by id,
// persisted on every mutation. Its own lock makes individual operations safe
// on their own, but read-then-write sequences spanning several calls still
// need the engine's mutation lock.
type Repository struct {
	store  storage.Storage
	logger zerolog.Logger

	mu       sync.Mutex
	bookings map[int64]models.Booking
}

// New loads the snapshot from storage and returns a ready repository.
func New(ctx context.Context, store storage.Storage, logger zerolog.Logger) (*Repository, error) {
	r := &Repository{
		store:    store,
		logger:   logger.With().Str("component", "repository").Logger(),
		bookings: make(map[int64]models.Booking),
	}

	snap, err := store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	for _, b := range snap.Bookings {
		r.bookings[b.ID] = b
	}
	r.logger.Info().Int("bookings", len(r.bookings)).Msg("repository loaded")
	return r, nil
}

// Create stores the booking under a fresh identifier (max existing id + 1)
// and returns it. Monotonic assignment relies on callers serializing Create
// externally; the repository lock alone cannot prevent two concurrent
// read-evaluate-create sequences from racing.
func (r *Repository) Create(ctx context.Context, b models.Booking) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var maxID int64
	for id := range r.bookings {
		if id > maxID {
			maxID = id
		}
	}
	b.ID = maxID + 1
	r.bookings[b.ID] = b

	if err := r.persistLocked(ctx); err != nil {
		delete(r.bookings, b.ID)
		return 0, err
	}
	if err := r.journalLocked(ctx, storage.JournalEntry{Op: storage.OpCreate, Booking: &b}); err != nil {
		return 0, err
	}
	return b.ID, nil
}

// Restore re-inserts a booking under its original identifier. Used by undo
// of a removal, where the vacated id must come back.
func (r *Repository) Restore(ctx context.Context, b models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.bookings[b.ID] = b
	if err := r.persistLocked(ctx); err != nil {
		delete(r.bookings, b.ID)
		return err
	}
	return r.journalLocked(ctx, storage.JournalEntry{Op: storage.OpCreate, Booking: &b})
}

// Update replaces the stored booking with the same id.
func (r *Repository) Update(ctx context.Context, b models.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.bookings[b.ID]
	r.bookings[b.ID] = b
	if err := r.persistLocked(ctx); err != nil {
		if existed {
			r.bookings[b.ID] = prev
		} else {
			delete(r.bookings, b.ID)
		}
		return err
	}
	return r.journalLocked(ctx, storage.JournalEntry{Op: storage.OpUpdate, Booking: &b})
}

// Remove deletes the booking with the given id. Removing an unknown id is a
// no-op that still persists.
func (r *Repository) Remove(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, existed := r.bookings[id]
	delete(r.bookings, id)
	if err := r.persistLocked(ctx); err != nil {
		if existed {
			r.bookings[id] = prev
		}
		return err
	}
	return r.journalLocked(ctx, storage.JournalEntry{Op: storage.OpRemove, BookingID: id})
}

// Get returns the booking and whether it exists.
func (r *Repository) Get(ctx context.Context, id int64) (models.Booking, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	return b, ok
}

// ListAll returns every live booking, ordered by id.
func (r *Repository) ListAll(ctx context.Context) []models.Booking {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.Booking, 0, len(r.bookings))
	for _, b := range r.bookings {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Repository) persistLocked(ctx context.Context) error {
	snap := storage.Snapshot{Bookings: make([]models.Booking, 0, len(r.bookings))}
	for _, b := range r.bookings {
		snap.Bookings = append(snap.Bookings, b)
	}
	sort.Slice(snap.Bookings, func(i, j int) bool { return snap.Bookings[i].ID < snap.Bookings[j].ID })

	if err := r.store.SaveState(ctx, snap); err != nil {
		return fmt.Errorf("persisting snapshot: %w", err)
	}
	return nil
}

// journalLocked appends an audit entry. Storage failures propagate to the
// caller; the snapshot for the mutation has already been written by then, so
// the live map is not rolled back.
func (r *Repository) journalLocked(ctx context.Context, entry storage.JournalEntry) error {
	entry.ID = uuid.NewString()
	entry.At = time.Now().UTC()
	if err := r.store.AppendJournal(ctx, entry); err != nil {
		r.logger.Error().Err(err).Str("op", entry.Op).Msg("journal append failed")
		return fmt.Errorf("appending journal: %w", err)
	}
	return nil
}
