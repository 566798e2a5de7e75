package storage

import (
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
)

// BookStore persists resting orders between runs.
type BookStore interface {
	// SaveBooks writes every record and the sequence high-water mark
	// atomically.
	SaveBooks(books []BookRecord, lastSequence uint64) error
	// LoadBooks returns every stored book (ordered by instrument) and the
	// last saved sequence.
	LoadBooks() ([]BookRecord, uint64, error)
	Close() error
}

type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble at %s: %w", path, err)
	}
	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error { return s.db.Close() }

func (s *PebbleStore) SaveBooks(books []BookRecord, lastSequence uint64) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, rec := range books {
		val, err := encodeBook(rec)
		if err != nil {
			return fmt.Errorf("encode book %s: %w", rec.Instrument, err)
		}
		if err := batch.Set(bookKey(rec.Instrument), val, nil); err != nil {
			return fmt.Errorf("stage book %s: %w", rec.Instrument, err)
		}
	}
	if err := batch.Set(seqKey(), encodeSeq(lastSequence), nil); err != nil {
		return fmt.Errorf("stage sequence: %w", err)
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func (s *PebbleStore) LoadBooks() ([]BookRecord, uint64, error) {
	seq, err := s.loadSeq()
	if err != nil {
		return nil, 0, err
	}

	prefix := []byte(prefixBook)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return nil, 0, fmt.Errorf("open book iterator: %w", err)
	}
	defer iter.Close()

	var books []BookRecord
	for iter.First(); iter.Valid(); iter.Next() {
		rec, err := decodeBook(iter.Value())
		if err != nil {
			return nil, 0, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		books = append(books, rec)
	}
	if err := iter.Error(); err != nil {
		return nil, 0, fmt.Errorf("scan books: %w", err)
	}
	return books, seq, nil
}

func (s *PebbleStore) loadSeq() (uint64, error) {
	val, closer, err := s.db.Get(seqKey())
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get sequence: %w", err)
	}
	defer closer.Close()
	return decodeSeq(val)
}

var _ BookStore = (*PebbleStore)(nil)
