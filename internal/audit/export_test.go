package audit

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"reservd/internal/models"
	"reservd/internal/storage"
)

func TestExport(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()

	start := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	b := models.Booking{ID: 1, RoomID: 2, UserID: 3, Start: start, End: start.Add(time.Hour), Title: "standup"}
	require.NoError(t, store.AppendJournal(ctx, storage.JournalEntry{ID: "e1", Op: storage.OpCreate, Booking: &b, At: start}))
	require.NoError(t, store.AppendJournal(ctx, storage.JournalEntry{ID: "e2", Op: storage.OpRemove, BookingID: 1, At: start.Add(time.Hour)}))

	var buf bytes.Buffer
	exporter := NewExporter(store, zerolog.New(io.Discard))
	require.NoError(t, exporter.Export(ctx, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Journal")
	require.NoError(t, err)
	require.Len(t, rows, 3, "header plus one row per entry")

	assert.Equal(t, "Entry ID", rows[0][0])
	assert.Equal(t, "e1", rows[1][0])
	assert.Equal(t, "create", rows[1][1])
	assert.Equal(t, "standup", rows[1][7])
	assert.Equal(t, "e2", rows[2][0])
	assert.Equal(t, "remove", rows[2][1])
}

func TestExportEmptyJournal(t *testing.T) {
	ctx := context.Background()
	exporter := NewExporter(storage.NewMemoryStorage(), zerolog.New(io.Discard))

	var buf bytes.Buffer
	require.NoError(t, exporter.Export(ctx, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows("Journal")
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}
