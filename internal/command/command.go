// Package command models repository mutations as invertible units and keeps
// the bounded undo/redo history over them.
package command

import (
	"context"
	"fmt"

	"reservd/internal/models"
)

// Repo is the slice of the repository surface commands mutate through.
type Repo interface {
	Create(ctx context.Context, b models.Booking) (int64, error)
	Restore(ctx context.Context, b models.Booking) error
	Update(ctx context.Context, b models.Booking) error
	Remove(ctx context.Context, id int64) error
	Get(ctx context.Context, id int64) (models.Booking, bool)
}

// Command is one reversible repository mutation.
type Command interface {
	Execute(ctx context.Context) error
	Undo(ctx context.Context) error
	Describe() string
}

// Create inserts a new booking. The first execution assigns the identifier;
// re-execution (redo) restores the booking under the same identifier.
type Create struct {
	repo     Repo
	booking  models.Booking
	executed bool
}

// NewCreate returns a create command for the given candidate booking.
func NewCreate(repo Repo, b models.Booking) *Create {
	return &Create{repo: repo, booking: b}
}

func (c *Create) Execute(ctx context.Context) error {
	if !c.executed {
		id, err := c.repo.Create(ctx, c.booking)
		if err != nil {
			return err
		}
		c.booking.ID = id
		c.executed = true
		return nil
	}
	return c.repo.Restore(ctx, c.booking)
}

func (c *Create) Undo(ctx context.Context) error {
	if !c.executed {
		return nil
	}
	return c.repo.Remove(ctx, c.booking.ID)
}

func (c *Create) Describe() string {
	return fmt.Sprintf("create booking id=%d title=%q", c.booking.ID, c.booking.Title)
}

// ID returns the identifier assigned on first execution.
func (c *Create) ID() int64 { return c.booking.ID }

// Update swaps a booking between its before and after states.
type Update struct {
	repo   Repo
	before models.Booking
	after  models.Booking
}

// NewUpdate returns an update command capturing both states.
func NewUpdate(repo Repo, before, after models.Booking) *Update {
	return &Update{repo: repo, before: before, after: after}
}

func (c *Update) Execute(ctx context.Context) error {
	return c.repo.Update(ctx, c.after)
}

func (c *Update) Undo(ctx context.Context) error {
	return c.repo.Update(ctx, c.before)
}

func (c *Update) Describe() string {
	return fmt.Sprintf("update booking id=%d title=%q", c.before.ID, c.before.Title)
}

// Remove deletes a booking, capturing it first so undo can restore it under
// its original identifier.
type Remove struct {
	repo Repo
	id   int64
	old  *models.Booking
}

// NewRemove returns a remove command for the given identifier.
func NewRemove(repo Repo, id int64) *Remove {
	return &Remove{repo: repo, id: id}
}

func (c *Remove) Execute(ctx context.Context) error {
	if b, ok := c.repo.Get(ctx, c.id); ok {
		c.old = &b
		return c.repo.Remove(ctx, c.id)
	}
	return nil
}

func (c *Remove) Undo(ctx context.Context) error {
	if c.old == nil {
		return nil
	}
	return c.repo.Restore(ctx, *c.old)
}

func (c *Remove) Describe() string {
	return fmt.Sprintf("cancel booking id=%d", c.id)
}
