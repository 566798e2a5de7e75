package outbox

import (
	"sync"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// Outbox is the handoff between matching and trade delivery.
//
// Push only takes a short mutex and never waits on a consumer, so a slow sink
// cannot stall matching. Trades come out of Take in the order they were pushed.
type Outbox struct {
	mu     sync.Mutex
	trades []orderbook.Trade
	ready  chan struct{}
}

func New() *Outbox {
	return &Outbox{ready: make(chan struct{}, 1)}
}

// Push appends trades and wakes a waiting consumer.
func (o *Outbox) Push(trades []orderbook.Trade) {
	if len(trades) == 0 {
		return
	}
	o.mu.Lock()
	o.trades = append(o.trades, trades...)
	o.mu.Unlock()

	select {
	case o.ready <- struct{}{}:
	default:
		// a wakeup is already pending
	}
}

// Ready fires after Push; a consumer should Take until empty after each wakeup.
func (o *Outbox) Ready() <-chan struct{} { return o.ready }

// Take removes and returns up to max trades (all of them if max <= 0).
func (o *Outbox) Take(max int) []orderbook.Trade {
	o.mu.Lock()
	defer o.mu.Unlock()

	n := len(o.trades)
	if n == 0 {
		return nil
	}
	if max > 0 && n > max {
		n = max
	}
	out := make([]orderbook.Trade, n)
	copy(out, o.trades[:n])
	o.trades = o.trades[n:]
	if len(o.trades) == 0 {
		o.trades = nil
	}
	return out
}

// Len returns pending trades (for tests/metrics).
func (o *Outbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.trades)
}
