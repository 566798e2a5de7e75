package orderbook

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2026, 1, 2, 9, 30, 0, 0, time.UTC)

func px(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func accept(b *Book, seq *Sequencer, side Side, qty int64, price string) Order {
	return b.Accept(NewOrder(side, b.Instrument(), qty, px(price)), seq)
}

// requireSorted checks the priority order of both sides of a snapshot.
func requireSorted(t require.TestingT, snap Snapshot) {
	for i := 1; i < len(snap.Bids); i++ {
		prev, cur := snap.Bids[i-1], snap.Bids[i]
		c := prev.Price.Cmp(cur.Price)
		require.True(t, c > 0 || (c == 0 && prev.Sequence < cur.Sequence),
			"bids out of order at %d: %v/%d then %v/%d", i, prev.Price, prev.Sequence, cur.Price, cur.Sequence)
	}
	for i := 1; i < len(snap.Asks); i++ {
		prev, cur := snap.Asks[i-1], snap.Asks[i]
		c := prev.Price.Cmp(cur.Price)
		require.True(t, c < 0 || (c == 0 && prev.Sequence < cur.Sequence),
			"asks out of order at %d: %v/%d then %v/%d", i, prev.Price, prev.Sequence, cur.Price, cur.Sequence)
	}
}

func TestInsert_PriorityOrder(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)

	accept(b, seq, Buy, 10, "99.50")
	accept(b, seq, Buy, 10, "101")
	accept(b, seq, Buy, 10, "100")
	accept(b, seq, Buy, 10, "101")
	accept(b, seq, Sell, 10, "105")
	accept(b, seq, Sell, 10, "103.25")
	accept(b, seq, Sell, 10, "105")

	snap := b.Snapshot()
	requireSorted(t, snap)

	require.Len(t, snap.Bids, 4)
	assert.True(t, snap.Bids[0].Price.Equal(px("101")))
	assert.Equal(t, uint64(2), snap.Bids[0].Sequence)
	assert.Equal(t, uint64(4), snap.Bids[1].Sequence)
	assert.True(t, snap.Bids[3].Price.Equal(px("99.5")))

	require.Len(t, snap.Asks, 3)
	assert.True(t, snap.Asks[0].Price.Equal(px("103.25")))
	assert.Equal(t, uint64(5), snap.Asks[1].Sequence)
	assert.Equal(t, uint64(7), snap.Asks[2].Sequence)
}

func TestInsert_PresetSequence(t *testing.T) {
	b := NewBook("AAPL")

	// Restored orders may arrive in any order; the book sorts by sequence.
	for _, s := range []uint64{7, 3, 5} {
		o := NewOrder(Buy, "AAPL", 1, px("100"))
		o.Sequence = s
		b.Insert(o)
	}

	snap := b.Snapshot()
	require.Len(t, snap.Bids, 3)
	assert.Equal(t, uint64(3), snap.Bids[0].Sequence)
	assert.Equal(t, uint64(5), snap.Bids[1].Sequence)
	assert.Equal(t, uint64(7), snap.Bids[2].Sequence)
}

func TestMatch_EndToEnd(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)

	buy := accept(b, seq, Buy, 5, "101")
	sell := accept(b, seq, Sell, 3, "100")

	trades := b.Match(t0)
	require.Len(t, trades, 1)
	assert.Equal(t, int64(3), trades[0].Quantity)
	assert.True(t, trades[0].Price.Equal(px("100")), "execution at ask price")
	assert.Equal(t, buy.ID, trades[0].Buy.ID)
	assert.Equal(t, sell.ID, trades[0].Sell.ID)
	assert.Equal(t, "AAPL", trades[0].Instrument)
	assert.Equal(t, t0, trades[0].Timestamp)

	snap := b.Snapshot()
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(2), snap.Bids[0].Quantity)
	assert.True(t, snap.Bids[0].Price.Equal(px("101")))
	assert.Empty(t, snap.Asks)
}

func TestMatch_Fairness(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)

	first := accept(b, seq, Buy, 10, "100")
	second := accept(b, seq, Buy, 10, "100")
	accept(b, seq, Sell, 10, "100")

	trades := b.Match(t0)
	require.Len(t, trades, 1)
	assert.Equal(t, first.ID, trades[0].Buy.ID)
	assert.Equal(t, uint64(1), trades[0].Buy.Sequence)

	snap := b.Snapshot()
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, second.Sequence, snap.Bids[0].Sequence)
	assert.Equal(t, int64(10), snap.Bids[0].Quantity)
	assert.Empty(t, snap.Asks)
}

func TestMatch_EqualPricesCross(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)
	accept(b, seq, Sell, 4, "100")
	accept(b, seq, Buy, 4, "100")

	trades := b.Match(t0)
	require.Len(t, trades, 1)
	bids, asks := b.Len()
	assert.Zero(t, bids)
	assert.Zero(t, asks)
}

func TestMatch_NoCross(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)
	accept(b, seq, Buy, 4, "99.99")
	accept(b, seq, Sell, 4, "100")

	assert.Empty(t, b.Match(t0))
	bids, asks := b.Len()
	assert.Equal(t, 1, bids)
	assert.Equal(t, 1, asks)
}

func TestMatch_EmptySides(t *testing.T) {
	b := NewBook("AAPL")
	assert.Empty(t, b.Match(t0))

	seq := NewSequencer(0)
	accept(b, seq, Buy, 4, "100")
	assert.Empty(t, b.Match(t0))
}

func TestMatch_WalksTheBook(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)

	accept(b, seq, Sell, 3, "100")
	accept(b, seq, Sell, 3, "101")
	accept(b, seq, Sell, 3, "102")
	accept(b, seq, Buy, 7, "101.50")

	trades := b.Match(t0)
	require.Len(t, trades, 2)
	assert.True(t, trades[0].Price.Equal(px("100")))
	assert.Equal(t, int64(3), trades[0].Quantity)
	assert.True(t, trades[1].Price.Equal(px("101")))
	assert.Equal(t, int64(3), trades[1].Quantity)

	snap := b.Snapshot()
	require.Len(t, snap.Bids, 1)
	assert.Equal(t, int64(1), snap.Bids[0].Quantity)
	require.Len(t, snap.Asks, 1)
	assert.True(t, snap.Asks[0].Price.Equal(px("102")))

	last, ok := b.LastPrice()
	require.True(t, ok)
	assert.True(t, last.Equal(px("101")))
}

func TestMatch_AskPriceEvenWhenSellArrivesLast(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)
	accept(b, seq, Buy, 1, "110")
	accept(b, seq, Sell, 1, "100")

	trades := b.Match(t0)
	require.Len(t, trades, 1)
	assert.True(t, trades[0].Price.Equal(px("100")))
}

func TestMatchFunc_NumbersAndEmitsUnderLock(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)
	accept(b, seq, Sell, 2, "100")
	accept(b, seq, Sell, 2, "101")
	accept(b, seq, Buy, 4, "101")

	var n uint64 = 40
	next := func() uint64 { n++; return n }
	var emitted []Trade
	trades := b.MatchFunc(t0, next, func(batch []Trade) {
		assert.False(t, b.mu.TryLock(), "emit called without the book lock")
		emitted = batch
	})

	require.Len(t, trades, 2)
	assert.Equal(t, uint64(41), trades[0].Sequence)
	assert.Equal(t, uint64(42), trades[1].Sequence)
	assert.Equal(t, trades, emitted)

	called := false
	assert.Empty(t, b.MatchFunc(t0, next, func([]Trade) { called = true }))
	assert.False(t, called, "empty pass must not emit")

	accept(b, seq, Buy, 1, "100")
	accept(b, seq, Sell, 1, "100")
	plain := b.Match(t0)
	require.Len(t, plain, 1)
	assert.Zero(t, plain[0].Sequence, "plain Match leaves trades unnumbered")
}

func TestMatch_Termination(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)

	const n = 2000
	for i := 0; i < n; i++ {
		accept(b, seq, Buy, int64(i%7+1), "100")
		accept(b, seq, Sell, int64(i%5+1), "100")
	}

	trades := b.Match(t0)
	// every trade removes at least one order
	assert.LessOrEqual(t, len(trades), 2*n)
	bids, asks := b.Len()
	assert.True(t, bids == 0 || asks == 0)
}

func TestBestPrices(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)

	_, ok := b.BestBid()
	assert.False(t, ok)
	_, ok = b.BestAsk()
	assert.False(t, ok)

	accept(b, seq, Buy, 1, "99")
	accept(b, seq, Buy, 1, "100")
	accept(b, seq, Sell, 1, "102")
	accept(b, seq, Sell, 1, "101")

	bid, ok := b.BestBid()
	require.True(t, ok)
	assert.True(t, bid.Equal(px("100")))
	ask, ok := b.BestAsk()
	require.True(t, ok)
	assert.True(t, ask.Equal(px("101")))
}

func TestRestingOrders(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)
	accept(b, seq, Sell, 2, "101")
	accept(b, seq, Buy, 1, "99")
	accept(b, seq, Buy, 1, "100")

	orders := b.RestingOrders()
	require.Len(t, orders, 3)
	assert.Equal(t, Buy, orders[0].Side)
	assert.True(t, orders[0].Price.Equal(px("100")))
	assert.Equal(t, Sell, orders[2].Side)

	// copies, not the resting orders themselves
	orders[0].Quantity = 42
	assert.Equal(t, int64(1), b.Snapshot().Bids[0].Quantity)
}

func TestConcurrentAccept(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)

	const producers, perProducer = 16, 250
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				side := Buy
				price := fmt.Sprintf("%d", 90+i%10)
				if (p+i)%2 == 0 {
					side = Sell
					price = fmt.Sprintf("%d", 110+i%10)
				}
				accept(b, seq, side, 1, price)
			}
		}(p)
	}
	wg.Wait()

	snap := b.Snapshot()
	requireSorted(t, snap)
	require.Equal(t, producers*perProducer, len(snap.Bids)+len(snap.Asks))

	seen := make(map[uint64]bool, producers*perProducer)
	for _, l := range append(snap.Bids, snap.Asks...) {
		require.False(t, seen[l.Sequence], "duplicate sequence %d", l.Sequence)
		seen[l.Sequence] = true
	}
	assert.Equal(t, uint64(producers*perProducer), seq.Current())
}

func TestConcurrentAcceptAndMatch(t *testing.T) {
	b := NewBook("AAPL")
	seq := NewSequencer(0)

	const producers, perProducer = 8, 200
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		traded   int64
		stop     = make(chan struct{})
		matchers sync.WaitGroup
	)

	for m := 0; m < 2; m++ {
		matchers.Add(1)
		go func() {
			defer matchers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for _, tr := range b.Match(t0) {
					mu.Lock()
					traded += tr.Quantity
					mu.Unlock()
				}
			}
		}()
	}

	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			side := Buy
			if p%2 == 1 {
				side = Sell
			}
			for i := 0; i < perProducer; i++ {
				accept(b, seq, side, 3, "100")
			}
		}(p)
	}
	wg.Wait()
	close(stop)
	matchers.Wait()

	for _, tr := range b.Match(t0) {
		traded += tr.Quantity
	}

	// Equal buy and sell interest at one price: everything trades away.
	total := int64(producers/2*perProducer) * 3
	assert.Equal(t, total, traded)
	bids, asks := b.Len()
	assert.Zero(t, bids)
	assert.Zero(t, asks)
}

func TestSideParsing(t *testing.T) {
	tests := []struct {
		in   string
		want Side
		ok   bool
	}{
		{"buy", Buy, true},
		{"SELL", Sell, true},
		{" Buy ", Buy, true},
		{"hold", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseSide(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
	assert.False(t, Side(0).Valid())
	assert.Equal(t, "buy", Buy.String())
}

func TestSequencer_AdvanceTo(t *testing.T) {
	s := NewSequencer(5)
	assert.Equal(t, uint64(6), s.Next())

	s.AdvanceTo(100)
	assert.Equal(t, uint64(101), s.Next())

	s.AdvanceTo(10) // never moves backwards
	assert.Equal(t, uint64(102), s.Next())
}
