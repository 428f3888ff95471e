// Package models defines the domain types shared across reservd.
package models

import (
	"errors"
	"time"
)

// Role controls what an actor may do to bookings.
type Role int

const (
	RoleAdmin Role = iota
	RoleManager
	RoleUser
)

// String returns a human-readable role name.
func (r Role) String() string {
	switch r {
	case RoleAdmin:
		return "admin"
	case RoleManager:
		return "manager"
	case RoleUser:
		return "user"
	default:
		return "unknown"
	}
}

// User identifies an actor. Identity and role are supplied by the caller,
// never verified or persisted by the engine.
type User struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Role     Role   `json:"role"`
	Priority int    `json:"priority"` // consulted only by the preempt strategy
}

// Resource is an opaque equipment tag, e.g. "projector-1".
type Resource struct {
	ID string `json:"id"`
}

// RecurrenceType enumerates supported repetition kinds.
type RecurrenceType int

const (
	RecurrenceNone RecurrenceType = iota
	RecurrenceDaily
	RecurrenceWeekly
)

// Recurrence governs how a booking expands into occurrences.
type Recurrence struct {
	Type  RecurrenceType `json:"type"`
	Until *time.Time     `json:"until,omitempty"`
}

// Booking is the persisted reservation record. Start/End are wall-clock
// instants; End is exclusive. Callers must not submit Start >= End.
type Booking struct {
	ID            int64      `json:"id"`
	RoomID        int64      `json:"room_id"`
	UserID        int64      `json:"user_id"`
	Start         time.Time  `json:"start"`
	End           time.Time  `json:"end"`
	Recurrence    Recurrence `json:"recurrence"`
	Title         string     `json:"title"`
	Description   string     `json:"description"`
	Attendees     []int64    `json:"attendees,omitempty"`
	Resources     []Resource `json:"resources,omitempty"`
	OwnerPriority int        `json:"owner_priority"` // snapshot of the creator's priority
}

// Duration returns End - Start.
func (b Booking) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

// SharesResource reports whether two bookings hold at least one common
// resource identifier.
func (b Booking) SharesResource(other Booking) bool {
	for _, r := range b.Resources {
		for _, o := range other.Resources {
			if r.ID == o.ID {
				return true
			}
		}
	}
	return false
}

// Occurrence is one concrete time-boxed materialization of a (possibly
// recurring) booking. Never persisted; computed on demand.
type Occurrence struct {
	Booking
}

// CreateRequest bundles a candidate booking with the acting user.
type CreateRequest struct {
	Booking Booking
	Actor   User
}

// ChangeRequest patches an existing booking. Only non-nil fields are applied.
type ChangeRequest struct {
	ID          int64
	Title       *string
	Description *string
	Start       *time.Time
	End         *time.Time
	Actor       User
}

// CalendarEvent is one imported external-calendar entry.
type CalendarEvent struct {
	RoomID      int64     `json:"room_id"`
	UserID      int64     `json:"user_id"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
}

// ErrAccessDenied indicates an RBAC policy violation. It is the only
// condition that aborts a multi-step operation outright; conflicts and
// missing bookings are ordinary outcomes, not errors.
var ErrAccessDenied = errors.New("access denied")
