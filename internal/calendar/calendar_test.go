package calendar

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func writeEvents(t *testing.T, events interface{}) string {
	t.Helper()
	data, err := json.Marshal(events)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "calendar.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestFileAdapter(t *testing.T) {
	ctx := context.Background()

	t.Run("FiltersByWindow", func(t *testing.T) {
		events := []map[string]interface{}{
			{"room_id": 1, "user_id": 2, "start": base.Unix(), "end": base.Add(time.Hour).Unix(), "title": "inside"},
			{"room_id": 1, "user_id": 2, "start": base.Add(-3 * time.Hour).Unix(), "end": base.Add(-2 * time.Hour).Unix(), "title": "before"},
			{"room_id": 1, "user_id": 2, "start": base.Add(48 * time.Hour).Unix(), "end": base.Add(49 * time.Hour).Unix(), "title": "after"},
		}
		a := NewFileAdapter(writeEvents(t, events))

		got, err := a.Fetch(ctx, base.Add(-time.Hour), base.Add(24*time.Hour))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "inside", got[0].Title)
		assert.True(t, got[0].Start.Equal(base))
		assert.Equal(t, int64(1), got[0].RoomID)
	})

	t.Run("TouchingWindowEdgeExcluded", func(t *testing.T) {
		events := []map[string]interface{}{
			{"room_id": 1, "user_id": 2, "start": base.Add(-time.Hour).Unix(), "end": base.Unix(), "title": "ends-at-from"},
		}
		a := NewFileAdapter(writeEvents(t, events))
		got, err := a.Fetch(ctx, base, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("MissingFileErrors", func(t *testing.T) {
		a := NewFileAdapter(filepath.Join(t.TempDir(), "absent.json"))
		_, err := a.Fetch(ctx, base, base.Add(time.Hour))
		assert.Error(t, err)
	})

	t.Run("NonArrayDocumentErrors", func(t *testing.T) {
		a := NewFileAdapter(writeEvents(t, map[string]string{"not": "an array"}))
		_, err := a.Fetch(ctx, base, base.Add(time.Hour))
		assert.Error(t, err)
	})
}
