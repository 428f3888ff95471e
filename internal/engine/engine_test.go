package engine

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reservd/internal/calendar"
	"reservd/internal/command"
	"reservd/internal/models"
	"reservd/internal/repository"
	"reservd/internal/storage"
	"reservd/internal/strategy"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

var (
	admin   = models.User{ID: 1, Name: "root", Role: models.RoleAdmin, Priority: 100}
	manager = models.User{ID: 2, Name: "mark", Role: models.RoleManager, Priority: 50}
	alice   = models.User{ID: 3, Name: "alice", Role: models.RoleUser, Priority: 10}
	bob     = models.User{ID: 4, Name: "bob", Role: models.RoleUser, Priority: 10}
)

func newTestEngine(t *testing.T, strat strategy.Strategy) *Engine {
	t.Helper()
	logger := zerolog.New(io.Discard)
	repo, err := repository.New(context.Background(), storage.NewMemoryStorage(), logger)
	require.NoError(t, err)
	return New(repo, strat, command.NewHistory(0), nil, logger)
}

func slot(room int64, owner models.User, start time.Time, dur time.Duration) models.Booking {
	return models.Booking{
		RoomID: room,
		UserID: owner.ID,
		Start:  start,
		End:    start.Add(dur),
		Title:  "meeting",
	}
}

func TestCreateReject(t *testing.T) {
	ctx := context.Background()

	t.Run("PartialOverlapFails", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		id, err := e.Create(ctx, slot(1, alice, base, 2*time.Hour), alice)
		require.NoError(t, err)
		require.NotZero(t, id)

		got, err := e.Create(ctx, slot(1, bob, base.Add(time.Hour), 2*time.Hour), bob)
		require.NoError(t, err)
		assert.Zero(t, got, "partial overlap in same room must be rejected")
	})

	t.Run("ContainmentFailsBothWays", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		_, err := e.Create(ctx, slot(1, alice, base, 4*time.Hour), alice)
		require.NoError(t, err)

		inner, err := e.Create(ctx, slot(1, bob, base.Add(time.Hour), time.Hour), bob)
		require.NoError(t, err)
		assert.Zero(t, inner)

		e2 := newTestEngine(t, strategy.Reject{})
		_, err = e2.Create(ctx, slot(1, alice, base.Add(time.Hour), time.Hour), alice)
		require.NoError(t, err)
		outer, err := e2.Create(ctx, slot(1, bob, base, 4*time.Hour), bob)
		require.NoError(t, err)
		assert.Zero(t, outer)
	})

	t.Run("TouchingEndpointsBothSucceed", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		id1, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)
		id2, err := e.Create(ctx, slot(1, bob, base.Add(time.Hour), time.Hour), bob)
		require.NoError(t, err)
		assert.NotZero(t, id1)
		assert.NotZero(t, id2)
	})

	t.Run("DifferentRoomSucceeds", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		_, err := e.Create(ctx, slot(1, alice, base, 2*time.Hour), alice)
		require.NoError(t, err)
		id, err := e.Create(ctx, slot(2, bob, base, 2*time.Hour), bob)
		require.NoError(t, err)
		assert.NotZero(t, id)
	})

	t.Run("SharedResourceConflictsAcrossRooms", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		a := slot(1, alice, base, 2*time.Hour)
		a.Resources = []models.Resource{{ID: "projector-1"}}
		_, err := e.Create(ctx, a, alice)
		require.NoError(t, err)

		b := slot(2, bob, base.Add(time.Hour), 2*time.Hour)
		b.Resources = []models.Resource{{ID: "projector-1"}}
		got, err := e.Create(ctx, b, bob)
		require.NoError(t, err)
		assert.Zero(t, got, "same resource id conflicts even across rooms")

		c := slot(2, bob, base.Add(time.Hour), 2*time.Hour)
		c.Resources = []models.Resource{{ID: "camera-7"}}
		got, err = e.Create(ctx, c, bob)
		require.NoError(t, err)
		assert.NotZero(t, got, "disjoint resource sets never conflict via the resource path")
	})
}

func TestCreateRecurrence(t *testing.T) {
	ctx := context.Background()

	t.Run("DailyConflictsWithLaterOneOff", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		until := base.Add(48 * time.Hour)
		daily := slot(1, alice, base, time.Hour)
		daily.Recurrence = models.Recurrence{Type: models.RecurrenceDaily, Until: &until}
		_, err := e.Create(ctx, daily, alice)
		require.NoError(t, err)

		oneOff := slot(1, bob, base.Add(24*time.Hour), time.Hour)
		got, err := e.Create(ctx, oneOff, bob)
		require.NoError(t, err)
		assert.Zero(t, got, "tomorrow's occurrence of the daily booking occupies the slot")
	})

	t.Run("DisjointDailyWindowsNeverConflict", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		untilA := base.Add(5 * 24 * time.Hour)
		a := slot(1, alice, base, time.Hour)
		a.Recurrence = models.Recurrence{Type: models.RecurrenceDaily, Until: &untilA}
		_, err := e.Create(ctx, a, alice)
		require.NoError(t, err)

		untilB := base.Add(3 * 24 * time.Hour)
		b := slot(1, bob, base.Add(2*time.Hour), time.Hour)
		b.Recurrence = models.Recurrence{Type: models.RecurrenceDaily, Until: &untilB}
		id, err := e.Create(ctx, b, bob)
		require.NoError(t, err)
		assert.NotZero(t, id)
	})
}

func TestCreateAutoBump(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, strategy.AutoBump{})

	_, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
	require.NoError(t, err)

	id, err := e.Create(ctx, slot(1, bob, base.Add(30*time.Minute), time.Hour), bob)
	require.NoError(t, err)
	require.NotZero(t, id)

	got, ok := e.Get(ctx, id)
	require.True(t, ok)
	assert.True(t, got.Start.Equal(base.Add(time.Hour)), "bumped past the existing booking")
	assert.Equal(t, time.Hour, got.Duration(), "duration preserved")
}

func TestCreatePreempt(t *testing.T) {
	ctx := context.Background()

	t.Run("AdminPreemptsUserBooking", func(t *testing.T) {
		e := newTestEngine(t, strategy.Preempt{})
		victim, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)

		id, err := e.Create(ctx, slot(1, admin, base, time.Hour), admin)
		require.NoError(t, err)
		require.NotZero(t, id)

		_, ok := e.Get(ctx, victim)
		assert.False(t, ok, "preempted booking removed")
		_, ok = e.Get(ctx, id)
		assert.True(t, ok)
	})

	t.Run("UserCannotPreemptAdminBooking", func(t *testing.T) {
		e := newTestEngine(t, strategy.Preempt{})
		kept, err := e.Create(ctx, slot(1, admin, base, time.Hour), admin)
		require.NoError(t, err)

		id, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)
		assert.Zero(t, id)
		_, ok := e.Get(ctx, kept)
		assert.True(t, ok)
	})

	t.Run("PolicyAllowsButRoleForbidsExecution", func(t *testing.T) {
		// A user with an inflated priority wins the policy comparison but
		// may not execute preemption.
		e := newTestEngine(t, strategy.Preempt{})
		victim, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)

		vip := models.User{ID: 9, Role: models.RoleUser, Priority: 99}
		id, err := e.Create(ctx, slot(1, vip, base, time.Hour), vip)
		require.NoError(t, err)
		assert.Zero(t, id)
		_, ok := e.Get(ctx, victim)
		assert.True(t, ok, "victim survives when the actor lacks preemption rights")
	})

	t.Run("OwnerPrioritySnapshotIgnoresLaterActorChanges", func(t *testing.T) {
		e := newTestEngine(t, strategy.Preempt{})
		inflated := models.Booking{RoomID: 1, UserID: alice.ID, Start: base, End: base.Add(time.Hour), OwnerPriority: 999}
		id, err := e.Create(ctx, inflated, alice)
		require.NoError(t, err)
		got, ok := e.Get(ctx, id)
		require.True(t, ok)
		assert.Equal(t, alice.Priority, got.OwnerPriority, "caller-supplied priority overridden by actor snapshot")
	})
}

func TestCreateQuorum(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, strategy.Quorum{Threshold: 2})

	_, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
	require.NoError(t, err)

	small := slot(1, bob, base, time.Hour)
	small.Attendees = []int64{10}
	id, err := e.Create(ctx, small, bob)
	require.NoError(t, err)
	assert.Zero(t, id)

	big := slot(1, bob, base, time.Hour)
	big.Attendees = []int64{10, 11}
	id, err = e.Create(ctx, big, bob)
	require.NoError(t, err)
	assert.NotZero(t, id)
}

func TestRBAC(t *testing.T) {
	ctx := context.Background()

	t.Run("UserCannotCancelOthersBooking", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		id, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)

		_, err = e.Cancel(ctx, id, bob)
		assert.ErrorIs(t, err, models.ErrAccessDenied)
	})

	t.Run("OwnerCanCancel", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		id, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)
		ok, err := e.Cancel(ctx, id, alice)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("AdminAndManagerCanCancelAny", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		id1, _ := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		id2, _ := e.Create(ctx, slot(1, alice, base.Add(2*time.Hour), time.Hour), alice)

		ok, err := e.Cancel(ctx, id1, admin)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = e.Cancel(ctx, id2, manager)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("CancelUnknownIDIsNotFound", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		ok, err := e.Cancel(ctx, 12345, admin)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("UserCannotModifyOthersBooking", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		id, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)

		title := "hijacked"
		_, err = e.Modify(ctx, models.ChangeRequest{ID: id, Title: &title, Actor: bob})
		assert.ErrorIs(t, err, models.ErrAccessDenied)
	})
}

func TestModify(t *testing.T) {
	ctx := context.Background()

	t.Run("PatchesOnlyPresentFields", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		id, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)

		title := "retro"
		ok, err := e.Modify(ctx, models.ChangeRequest{ID: id, Title: &title, Actor: alice})
		require.NoError(t, err)
		require.True(t, ok)

		got, _ := e.Get(ctx, id)
		assert.Equal(t, "retro", got.Title)
		assert.True(t, got.Start.Equal(base), "untouched fields preserved")
	})

	t.Run("UnknownIDReturnsFalse", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		title := "x"
		ok, err := e.Modify(ctx, models.ChangeRequest{ID: 999, Title: &title, Actor: admin})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("RescheduleSkipsConflictCheck", func(t *testing.T) {
		// Deliberate permissiveness: modify does not re-run the strategy.
		e := newTestEngine(t, strategy.Reject{})
		id1, _ := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		_, err := e.Create(ctx, slot(1, bob, base.Add(2*time.Hour), time.Hour), bob)
		require.NoError(t, err)

		newStart := base.Add(2 * time.Hour)
		newEnd := base.Add(3 * time.Hour)
		ok, err := e.Modify(ctx, models.ChangeRequest{ID: id1, Start: &newStart, End: &newEnd, Actor: alice})
		require.NoError(t, err)
		assert.True(t, ok, "reschedule lands on an occupied slot without complaint")
	})
}

func TestHistory(t *testing.T) {
	ctx := context.Background()

	t.Run("CreateUndoRedoKeepsIdentifier", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		id, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)

		msg, err := e.Undo(ctx)
		require.NoError(t, err)
		assert.Contains(t, msg, "undid")
		_, ok := e.Get(ctx, id)
		assert.False(t, ok)

		msg, err = e.Redo(ctx)
		require.NoError(t, err)
		assert.Contains(t, msg, "redid")
		got, ok := e.Get(ctx, id)
		assert.True(t, ok)
		assert.Equal(t, id, got.ID)
	})

	t.Run("CancelUndoRestores", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		id, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)
		ok, err := e.Cancel(ctx, id, alice)
		require.NoError(t, err)
		require.True(t, ok)

		_, err = e.Undo(ctx)
		require.NoError(t, err)
		got, ok := e.Get(ctx, id)
		assert.True(t, ok)
		assert.Equal(t, id, got.ID)
	})

	t.Run("ModifyUndoRestoresPriorState", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		id, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)
		title := "renamed"
		_, err = e.Modify(ctx, models.ChangeRequest{ID: id, Title: &title, Actor: alice})
		require.NoError(t, err)

		_, err = e.Undo(ctx)
		require.NoError(t, err)
		got, _ := e.Get(ctx, id)
		assert.Equal(t, "meeting", got.Title)
	})

	t.Run("NewMutationClearsRedo", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		_, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)
		_, err = e.Undo(ctx)
		require.NoError(t, err)

		_, err = e.Create(ctx, slot(2, alice, base, time.Hour), alice)
		require.NoError(t, err)

		msg, err := e.Redo(ctx)
		require.NoError(t, err)
		assert.Equal(t, "nothing to redo", msg)
	})

	t.Run("UndoBoundedAtCapacity", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		for i := 0; i < command.DefaultUndoLimit+5; i++ {
			id, err := e.Create(ctx, slot(1, alice, base.Add(time.Duration(i)*2*time.Hour), time.Hour), alice)
			require.NoError(t, err)
			require.NotZero(t, id)
		}

		undone := 0
		for {
			msg, err := e.Undo(ctx)
			require.NoError(t, err)
			if msg == "nothing to undo" {
				break
			}
			undone++
		}
		assert.Equal(t, command.DefaultUndoLimit, undone)
	})
}

func TestListBookings(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, strategy.Reject{})

	daily := slot(1, alice, base, time.Hour)
	daily.Recurrence = models.Recurrence{Type: models.RecurrenceDaily}
	_, err := e.Create(ctx, daily, alice)
	require.NoError(t, err)
	_, err = e.Create(ctx, slot(2, bob, base, time.Hour), bob)
	require.NoError(t, err)

	occs := e.ListBookings(ctx, 1, base.Add(-time.Hour), base.Add(3*24*time.Hour))
	assert.Len(t, occs, 3, "daily booking expands into one occurrence per day")
	for _, occ := range occs {
		assert.Equal(t, int64(1), occ.RoomID)
	}
}

func writeCalendarFile(t *testing.T, events []map[string]interface{}) string {
	t.Helper()
	data, err := json.Marshal(events)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "calendar.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestImportFromCalendar(t *testing.T) {
	ctx := context.Background()

	events := []map[string]interface{}{
		{"room_id": 1, "user_id": 3, "start": base.Unix(), "end": base.Add(time.Hour).Unix(), "title": "imported-1"},
		{"room_id": 1, "user_id": 3, "start": base.Add(2 * time.Hour).Unix(), "end": base.Add(3 * time.Hour).Unix(), "title": "imported-2"},
	}

	t.Run("OnlySuccessfulCreatesReported", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		// Occupy the first event's slot so it conflicts.
		_, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
		require.NoError(t, err)

		adapter := calendar.NewFileAdapter(writeCalendarFile(t, events))
		ids, err := e.ImportFromCalendar(ctx, adapter, base.Add(-time.Hour), base.Add(24*time.Hour), manager)
		require.NoError(t, err)
		require.Len(t, ids, 1)

		got, ok := e.Get(ctx, ids[0])
		require.True(t, ok)
		assert.Equal(t, "imported-2", got.Title)
	})

	t.Run("UserActorDenied", func(t *testing.T) {
		e := newTestEngine(t, strategy.Reject{})
		adapter := calendar.NewFileAdapter(writeCalendarFile(t, events))
		_, err := e.ImportFromCalendar(ctx, adapter, base.Add(-time.Hour), base.Add(24*time.Hour), alice)
		assert.ErrorIs(t, err, models.ErrAccessDenied)
	})
}

func TestSetStrategy(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, strategy.Reject{})

	id, err := e.Create(ctx, slot(1, alice, base, time.Hour), alice)
	require.NoError(t, err)

	// Reject refuses the overlap; after a live swap AutoBump admits it.
	got, err := e.Create(ctx, slot(1, bob, base, time.Hour), bob)
	require.NoError(t, err)
	require.Zero(t, got)

	e.SetStrategy(strategy.AutoBump{})
	got, err = e.Create(ctx, slot(1, bob, base, time.Hour), bob)
	require.NoError(t, err)
	assert.NotZero(t, got)

	_, ok := e.Get(ctx, id)
	assert.True(t, ok, "persisted bookings survive the swap")
}
