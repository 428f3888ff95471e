// Package calendar provides the external-calendar fetch contract and its
// adapters. Fetched events are submitted through the engine's ordinary
// create path by the import operation.
package calendar

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"reservd/internal/interval"
	"reservd/internal/models"
)

// Adapter fetches external events intersecting [from, to).
type Adapter interface {
	Fetch(ctx context.Context, from, to time.Time) ([]models.CalendarEvent, error)
}

// FileAdapter reads events from a JSON array file. Entries carry unix-second
// start/end instants.
type FileAdapter struct {
	path string
}

// NewFileAdapter returns an adapter over the given file.
func NewFileAdapter(path string) *FileAdapter {
	return &FileAdapter{path: path}
}

type fileEvent struct {
	RoomID      int64  `json:"room_id"`
	UserID      int64  `json:"user_id"`
	Start       int64  `json:"start"`
	End         int64  `json:"end"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Fetch parses the file and returns the events overlapping the window.
func (a *FileAdapter) Fetch(_ context.Context, from, to time.Time) ([]models.CalendarEvent, error) {
	data, err := os.ReadFile(a.path)
	if err != nil {
		return nil, fmt.Errorf("reading calendar file: %w", err)
	}

	var raw []fileEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decoding calendar file: %w", err)
	}

	var out []models.CalendarEvent
	for _, e := range raw {
		start := time.Unix(e.Start, 0).UTC()
		end := time.Unix(e.End, 0).UTC()
		if !interval.Overlaps(start, end, from, to) {
			continue
		}
		out = append(out, models.CalendarEvent{
			RoomID:      e.RoomID,
			UserID:      e.UserID,
			Start:       start,
			End:         end,
			Title:       e.Title,
			Description: e.Description,
		})
	}
	return out, nil
}
