package orderbook

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
)

// Book holds the resting orders of one instrument.
//
// Both sides live in a B-tree ordered by (price, sequence): bids by price
// descending, asks by price ascending, earlier sequence first on ties. The
// best order of either side is therefore always Min().
//
// A single mutex serializes every insert and every matching pass on the book.
// Books of different instruments share nothing.
type Book struct {
	mu         sync.Mutex
	instrument string

	bids *btree.BTreeG[*Order]
	asks *btree.BTreeG[*Order]

	lastPrice decimal.Decimal
	traded    bool
}

func bidLess(a, b *Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c > 0
	}
	return a.Sequence < b.Sequence
}

func askLess(a, b *Order) bool {
	if c := a.Price.Cmp(b.Price); c != 0 {
		return c < 0
	}
	return a.Sequence < b.Sequence
}

// NewBook creates an empty book. The trees run without their own locks;
// b.mu is the only guard.
func NewBook(instrument string) *Book {
	opts := btree.Options{NoLocks: true}
	return &Book{
		instrument: instrument,
		bids:       btree.NewBTreeGOptions(bidLess, opts),
		asks:       btree.NewBTreeGOptions(askLess, opts),
	}
}

func (b *Book) Instrument() string { return b.instrument }

func (b *Book) side(s Side) *btree.BTreeG[*Order] {
	if s == Buy {
		return b.bids
	}
	return b.asks
}

// Insert places an order that already carries its sequence. Restores from
// snapshots go through here; fresh submissions use Accept.
func (b *Book) Insert(o *Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.side(o.Side).Set(o)
}

// Accept stamps the next sequence on o and inserts it, both under the book
// lock, so no matching pass on this book can see a later sequence before an
// earlier one. The returned copy is safe to read after the lock is released.
func (b *Book) Accept(o *Order, seq *Sequencer) Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	o.Sequence = seq.Next()
	b.side(o.Side).Set(o)
	return *o
}

// Match drains every crossing pair from the book.
//
// Execution price is always the ask's price, whichever side arrived last.
// Equal top-of-book prices cross. Each iteration removes at least one order,
// so the loop ends after at most bids+asks iterations.
func (b *Book) Match(now time.Time) []Trade {
	return b.MatchFunc(now, nil, nil)
}

// MatchFunc runs one pass like Match. When next is set, each trade takes
// next() as its Sequence in execution order. A non-empty batch is passed to
// emit before the book lock is released, so batches from one book reach emit
// in execution order. emit must not block or call back into the book.
func (b *Book) MatchFunc(now time.Time, next func() uint64, emit func([]Trade)) []Trade {
	b.mu.Lock()
	defer b.mu.Unlock()

	trades := b.match(now, next)
	if emit != nil && len(trades) > 0 {
		emit(trades)
	}
	return trades
}

func (b *Book) match(now time.Time, next func() uint64) []Trade {
	var trades []Trade
	for {
		buy, ok := b.bids.Min()
		if !ok {
			break
		}
		sell, ok := b.asks.Min()
		if !ok {
			break
		}
		if buy.Price.LessThan(sell.Price) {
			break
		}

		qty := min(buy.Quantity, sell.Quantity)
		tr := Trade{
			Instrument: b.instrument,
			Quantity:   qty,
			Price:      sell.Price,
			Buy:        buy.Ref(),
			Sell:       sell.Ref(),
			Timestamp:  now,
		}
		if next != nil {
			tr.Sequence = next()
		}
		trades = append(trades, tr)
		buy.Quantity -= qty
		sell.Quantity -= qty
		b.lastPrice = sell.Price
		b.traded = true

		if buy.Quantity == 0 {
			b.bids.PopMin()
		}
		if sell.Quantity == 0 {
			b.asks.PopMin()
		}
	}
	return trades
}

// Snapshot copies both sides in priority order.
func (b *Book) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		Instrument: b.instrument,
		Bids:       make([]Level, 0, b.bids.Len()),
		Asks:       make([]Level, 0, b.asks.Len()),
	}
	b.bids.Scan(func(o *Order) bool {
		snap.Bids = append(snap.Bids, Level{Price: o.Price, Quantity: o.Quantity, Sequence: o.Sequence})
		return true
	})
	b.asks.Scan(func(o *Order) bool {
		snap.Asks = append(snap.Asks, Level{Price: o.Price, Quantity: o.Quantity, Sequence: o.Sequence})
		return true
	})
	return snap
}

// RestingOrders returns copies of every resting order, bids first, each side
// in priority order.
func (b *Book) RestingOrders() []Order {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Order, 0, b.bids.Len()+b.asks.Len())
	collect := func(o *Order) bool {
		out = append(out, *o)
		return true
	}
	b.bids.Scan(collect)
	b.asks.Scan(collect)
	return out
}

// Len returns the number of resting bids and asks.
func (b *Book) Len() (bids, asks int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.bids.Len(), b.asks.Len()
}

// BestBid returns the highest bid price, if any.
func (b *Book) BestBid() (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.bids.Min(); ok {
		return o.Price, true
	}
	return decimal.Decimal{}, false
}

// BestAsk returns the lowest ask price, if any.
func (b *Book) BestAsk() (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if o, ok := b.asks.Min(); ok {
		return o.Price, true
	}
	return decimal.Decimal{}, false
}

// LastPrice returns the price of the most recent trade on this book.
func (b *Book) LastPrice() (decimal.Decimal, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPrice, b.traded
}
