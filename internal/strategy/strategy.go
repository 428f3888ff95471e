// Package strategy implements the pluggable conflict-resolution policies run
// by the engine for each candidate occurrence.
package strategy

import (
	"fmt"
	"time"

	"reservd/internal/interval"
	"reservd/internal/models"
)

// Resolution is the outcome of evaluating one candidate occurrence against
// the relevant existing occurrences.
type Resolution struct {
	OK             bool
	Message        string
	SuggestedStart *time.Time // auto-bump: alternative start preserving duration
	Preempt        []int64    // booking ids to forcibly remove
}

// Strategy decides accept/reject/adjust/preempt for a candidate occurrence.
// Implementations are stateless apart from configuration and may be swapped
// on a live engine.
type Strategy interface {
	Resolve(candidate models.Occurrence, existing []models.Occurrence, actor models.User) Resolution
	Name() string
}

// Reject fails on the first overlapping occurrence.
type Reject struct{}

func (Reject) Name() string { return "reject" }

func (Reject) Resolve(candidate models.Occurrence, existing []models.Occurrence, _ models.User) Resolution {
	for _, e := range existing {
		if interval.Overlaps(candidate.Start, candidate.End, e.Start, e.End) {
			return Resolution{Message: fmt.Sprintf("conflict with booking id %d", e.ID)}
		}
	}
	return Resolution{OK: true}
}

// AutoBump shifts the candidate's start past any occurrence it overlaps,
// re-scanning from the top after every shift until a fixed point is reached.
// It always succeeds.
type AutoBump struct{}

func (AutoBump) Name() string { return "autobump" }

func (AutoBump) Resolve(candidate models.Occurrence, existing []models.Occurrence, _ models.User) Resolution {
	start := candidate.Start
	dur := candidate.Duration()

	moved := true
	for moved {
		moved = false
		for _, e := range existing {
			if interval.Overlaps(start, start.Add(dur), e.Start, e.End) {
				start = e.End
				moved = true
			}
		}
	}

	if !start.Equal(candidate.Start) {
		s := start
		return Resolution{OK: true, Message: "auto-bumped", SuggestedStart: &s}
	}
	return Resolution{OK: true}
}

// Preempt removes lower-priority overlapping bookings. A single overlap the
// actor cannot outrank vetoes the whole candidate; there is no partial
// preemption.
type Preempt struct{}

func (Preempt) Name() string { return "preempt" }

func (Preempt) Resolve(candidate models.Occurrence, existing []models.Occurrence, actor models.User) Resolution {
	var preempt []int64
	for _, e := range existing {
		if !interval.Overlaps(candidate.Start, candidate.End, e.Start, e.End) {
			continue
		}
		if actor.Priority > e.OwnerPriority {
			preempt = append(preempt, e.ID)
		} else {
			return Resolution{Message: "higher priority booking exists"}
		}
	}
	return Resolution{OK: true, Message: "preempt allowed", Preempt: preempt}
}

// Quorum admits an overlapping candidate iff it brings enough attendees.
type Quorum struct {
	Threshold int
}

func (q Quorum) Name() string { return "quorum" }

func (q Quorum) Resolve(candidate models.Occurrence, existing []models.Occurrence, _ models.User) Resolution {
	for _, e := range existing {
		if interval.Overlaps(candidate.Start, candidate.End, e.Start, e.End) {
			if len(candidate.Attendees) >= q.Threshold {
				return Resolution{OK: true, Message: fmt.Sprintf("allowed by quorum (%d)", q.Threshold)}
			}
			return Resolution{Message: fmt.Sprintf("conflict and quorum not satisfied (need %d)", q.Threshold)}
		}
	}
	return Resolution{OK: true}
}
