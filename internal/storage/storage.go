// Package storage defines the persistence contract consumed by the
// repository: a full-state snapshot plus an append-only journal.
package storage

import (
	"context"
	"time"

	"reservd/internal/models"
)

// Journal operation tags.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpRemove = "remove"
)

// Snapshot is the full serialized state of the live booking set. It must
// round-trip losslessly, including recurrence, attendees and resources.
type Snapshot struct {
	Bookings []models.Booking `json:"bookings"`
}

// JournalEntry records one repository mutation for audit/replay. Entries are
// independently parseable; corrupt entries are skipped on load, never fatal.
type JournalEntry struct {
	ID        string          `json:"id"`
	Op        string          `json:"op"`
	Booking   *models.Booking `json:"booking,omitempty"`
	BookingID int64           `json:"booking_id,omitempty"`
	At        time.Time       `json:"at"`
}

// Storage persists snapshots and journal entries. Implementations must be
// safe for concurrent use.
type Storage interface {
	SaveState(ctx context.Context, snap Snapshot) error
	LoadState(ctx context.Context) (Snapshot, error)
	AppendJournal(ctx context.Context, entry JournalEntry) error
	LoadJournal(ctx context.Context) ([]JournalEntry, error)
}
