// Package audit exports the mutation journal as an Excel workbook for
// offline review.
package audit

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"

	"reservd/internal/storage"
)

var columns = []string{"Entry ID", "Operation", "Booking ID", "Room", "Owner", "Start", "End", "Title", "Recorded At"}

// Exporter turns journal entries into spreadsheet rows.
type Exporter struct {
	store  storage.Storage
	logger zerolog.Logger
}

// NewExporter creates an exporter over the given storage.
func NewExporter(store storage.Storage, logger zerolog.Logger) *Exporter {
	return &Exporter{
		store:  store,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Export writes the full journal, one row per entry, to w as an .xlsx
// workbook.
func (e *Exporter) Export(ctx context.Context, w io.Writer) error {
	entries, err := e.store.LoadJournal(ctx)
	if err != nil {
		return fmt.Errorf("loading journal: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Journal"
	f.SetSheetName("Sheet1", sheet)

	for i, col := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return err
		}
	}
	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = f.SetCellStyle(sheet, startCell, endCell, style)
	}

	for i, entry := range entries {
		row := entryRowValues(entry)
		for j, v := range row {
			cell, err := excelize.CoordinatesToCellName(j+1, i+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	e.logger.Info().Int("entries", len(entries)).Msg("journal exported")
	return nil
}

// ExportFile is Export targeting a path on disk.
func (e *Exporter) ExportFile(ctx context.Context, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()
	return e.Export(ctx, f)
}

func entryRowValues(entry storage.JournalEntry) []interface{} {
	row := []interface{}{entry.ID, entry.Op}
	if b := entry.Booking; b != nil {
		row = append(row, b.ID, b.RoomID, b.UserID,
			b.Start.Format(time.RFC3339), b.End.Format(time.RFC3339), b.Title)
	} else {
		row = append(row, entry.BookingID, "", "", "", "", "")
	}
	return append(row, entry.At.Format(time.RFC3339))
}
