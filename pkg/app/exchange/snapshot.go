package exchange

import (
	"context"
	"fmt"
	"time"

	"github.com/uhyunpark/matchbook/pkg/storage"
)

// Checkpoint writes the resting orders of every book to store. Each book is
// copied under its own lock; books are not frozen together, so the result is
// consistent per book rather than across books.
func (e *Engine) Checkpoint(store storage.BookStore) (int, error) {
	lastSeq := e.seq.Current()
	books := e.registry.Books()

	records := make([]storage.BookRecord, 0, len(books))
	orders := 0
	for _, b := range books {
		resting := b.RestingOrders()
		orders += len(resting)
		records = append(records, storage.BookRecord{Instrument: b.Instrument(), Orders: resting})
	}
	if err := store.SaveBooks(records, lastSeq); err != nil {
		e.metrics.snapshot("error")
		return 0, fmt.Errorf("checkpoint %d books: %w", len(records), err)
	}
	e.metrics.snapshot("ok")
	return orders, nil
}

// Restore reloads books from store into the registry and moves the
// sequencer past every restored sequence. Call it before accepting orders.
func (e *Engine) Restore(store storage.BookStore) (int, error) {
	records, lastSeq, err := store.LoadBooks()
	if err != nil {
		return 0, fmt.Errorf("load books: %w", err)
	}

	high := lastSeq
	restored := 0
	for _, rec := range records {
		book, err := e.registry.LookupOrCreate(rec.Instrument)
		if err != nil {
			return restored, fmt.Errorf("restore %s: %w", rec.Instrument, err)
		}
		for i := range rec.Orders {
			o := rec.Orders[i]
			if o.Quantity <= 0 {
				continue
			}
			book.Insert(&o)
			high = max(high, o.Sequence)
			restored++
		}
	}
	e.seq.AdvanceTo(high)
	e.metrics.setInstruments(e.registry.Count())
	e.log.Infow("books_restored", "books", len(records), "orders", restored, "sequence", high)
	return restored, nil
}

// SnapshotJob checkpoints the engine on a fixed interval and once more on
// shutdown.
type SnapshotJob struct {
	engine   *Engine
	store    storage.BookStore
	interval time.Duration
}

func NewSnapshotJob(engine *Engine, store storage.BookStore, interval time.Duration) *SnapshotJob {
	return &SnapshotJob{engine: engine, store: store, interval: interval}
}

func (j *SnapshotJob) Run(ctx context.Context) error {
	log := j.engine.log
	if j.interval <= 0 {
		return fmt.Errorf("snapshot interval must be positive, got %v", j.interval)
	}
	for {
		select {
		case <-ctx.Done():
			n, err := j.engine.Checkpoint(j.store)
			if err != nil {
				return fmt.Errorf("final snapshot: %w", err)
			}
			log.Infow("snapshot_final", "orders", n)
			return nil
		case <-j.engine.clock.After(j.interval):
			n, err := j.engine.Checkpoint(j.store)
			if err != nil {
				log.Errorw("snapshot_failed", "err", err)
				continue
			}
			log.Debugw("snapshot_written", "orders", n)
		}
	}
}
