package market

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// DefaultCapacity is the number of distinct instruments a registry accepts
// when no capacity is configured.
const DefaultCapacity = 1024

var (
	// ErrCapacityExceeded matches any *CapacityExceededError via errors.Is.
	ErrCapacityExceeded = errors.New("instrument capacity exceeded")
	// ErrUnknownInstrument is returned by Lookup for instruments never seen.
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// CapacityExceededError rejects a previously unseen instrument once the
// registry is full.
type CapacityExceededError struct {
	Instrument string
	Capacity   int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("cannot open book for %q: registry is full (%d instruments)", e.Instrument, e.Capacity)
}

func (e *CapacityExceededError) Is(target error) bool { return target == ErrCapacityExceeded }

// Registry maps instrument identifiers to their books, up to a fixed capacity.
// Books are created on first reference and never removed.
type Registry struct {
	mu       sync.RWMutex
	capacity int
	books    map[string]*orderbook.Book
}

// NewRegistry creates an empty registry. A non-positive capacity falls back
// to DefaultCapacity.
func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Registry{
		capacity: capacity,
		books:    make(map[string]*orderbook.Book),
	}
}

// LookupOrCreate returns the book for instrument, creating it if there is room.
// Concurrent first references to the same instrument all get the same book.
func (r *Registry) LookupOrCreate(instrument string) (*orderbook.Book, error) {
	r.mu.RLock()
	book, ok := r.books[instrument]
	r.mu.RUnlock()
	if ok {
		return book, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another caller may have created it between the two locks.
	if book, ok := r.books[instrument]; ok {
		return book, nil
	}
	if len(r.books) >= r.capacity {
		return nil, &CapacityExceededError{Instrument: instrument, Capacity: r.capacity}
	}

	book = orderbook.NewBook(instrument)
	r.books[instrument] = book
	return book, nil
}

// Lookup returns an existing book without creating one.
func (r *Registry) Lookup(instrument string) (*orderbook.Book, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	book, ok := r.books[instrument]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownInstrument, instrument)
	}
	return book, nil
}

// Books returns every registered book. The slice is a copy; order is unspecified.
func (r *Registry) Books() []*orderbook.Book {
	r.mu.RLock()
	defer r.mu.RUnlock()

	books := make([]*orderbook.Book, 0, len(r.books))
	for _, b := range r.books {
		books = append(books, b)
	}
	return books
}

// Instruments returns registered instrument identifiers, sorted.
func (r *Registry) Instruments() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.books))
	for sym := range r.books {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered instruments.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.books)
}

func (r *Registry) Capacity() int { return r.capacity }
