package storage

import (
	"sort"
	"sync"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// MemoryStore keeps snapshots in process memory. Used when no snapshot path
// is configured, and by tests.
type MemoryStore struct {
	mu      sync.Mutex
	books   map[string]BookRecord
	lastSeq uint64
	saves   int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{books: make(map[string]BookRecord)}
}

func (s *MemoryStore) SaveBooks(books []BookRecord, lastSequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range books {
		orders := make([]orderbook.Order, len(rec.Orders))
		copy(orders, rec.Orders)
		s.books[rec.Instrument] = BookRecord{Instrument: rec.Instrument, Orders: orders}
	}
	s.lastSeq = lastSequence
	s.saves++
	return nil
}

func (s *MemoryStore) LoadBooks() ([]BookRecord, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BookRecord, 0, len(s.books))
	for _, rec := range s.books {
		orders := make([]orderbook.Order, len(rec.Orders))
		copy(orders, rec.Orders)
		out = append(out, BookRecord{Instrument: rec.Instrument, Orders: orders})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Instrument < out[j].Instrument })
	return out, s.lastSeq, nil
}

// Saves counts completed SaveBooks calls.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func (s *MemoryStore) Close() error { return nil }

var _ BookStore = (*MemoryStore)(nil)
