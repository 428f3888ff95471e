package storage

import (
	"context"
	"sync"

	"reservd/internal/models"
)

// MemoryStorage holds state in process memory. Used by tests and the demo.
type MemoryStorage struct {
	mu       sync.Mutex
	snapshot Snapshot
	journal  []JournalEntry
}

// NewMemoryStorage returns an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

func (s *MemoryStorage) SaveState(_ context.Context, snap Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = Snapshot{Bookings: append([]models.Booking(nil), snap.Bookings...)}
	return nil
}

func (s *MemoryStorage) LoadState(_ context.Context) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Bookings: append([]models.Booking(nil), s.snapshot.Bookings...)}, nil
}

func (s *MemoryStorage) AppendJournal(_ context.Context, entry JournalEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.journal = append(s.journal, entry)
	return nil
}

func (s *MemoryStorage) LoadJournal(_ context.Context) ([]JournalEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]JournalEntry(nil), s.journal...), nil
}
