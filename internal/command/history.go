package command

import (
	"context"
	"sync"
)

// DefaultUndoLimit bounds the undo stack.
const DefaultUndoLimit = 300

// History is the linear undo/redo log. The undo side evicts its oldest entry
// once the limit is reached; pushing any new command discards the redo side.
// History carries its own lock, independent of the engine's mutation lock,
// and must only ever be acquired after it.
type History struct {
	mu    sync.Mutex
	undo  []Command
	redo  []Command
	limit int
}

// NewHistory returns a history bounded to limit entries (DefaultUndoLimit if
// limit is not positive).
func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultUndoLimit
	}
	return &History{limit: limit}
}

// Push records an executed command and clears the redo stack.
func (h *History) Push(cmd Command) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.undo = append(h.undo, cmd)
	if len(h.undo) > h.limit {
		h.undo = h.undo[1:]
	}
	h.redo = nil
}

// Undo reverses the most recent command and moves it to the redo stack. The
// returned bool is false when there is nothing to undo. If the inverse fails,
// the command stays on the undo stack.
func (h *History) Undo(ctx context.Context) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.undo) == 0 {
		return "", false, nil
	}
	cmd := h.undo[len(h.undo)-1]
	if err := cmd.Undo(ctx); err != nil {
		return "", true, err
	}
	h.undo = h.undo[:len(h.undo)-1]
	h.redo = append(h.redo, cmd)
	return cmd.Describe(), true, nil
}

// Redo re-executes the most recently undone command and moves it back to the
// undo stack.
func (h *History) Redo(ctx context.Context) (string, bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.redo) == 0 {
		return "", false, nil
	}
	cmd := h.redo[len(h.redo)-1]
	if err := cmd.Execute(ctx); err != nil {
		return "", true, err
	}
	h.redo = h.redo[:len(h.redo)-1]
	h.undo = append(h.undo, cmd)
	return cmd.Describe(), true, nil
}

// Depth returns the current undo and redo stack sizes.
func (h *History) Depth() (undo, redo int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.undo), len(h.redo)
}
