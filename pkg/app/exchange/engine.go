package exchange

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchbook/pkg/app/core/market"
	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/matchbook/pkg/app/core/outbox"
	"github.com/uhyunpark/matchbook/pkg/util"
)

// DefaultMaxInstrumentLen bounds instrument identifiers when Config leaves it unset.
const DefaultMaxInstrumentLen = 32

// MatchMode selects when books are matched.
type MatchMode int

const (
	// MatchOnInsert drains the book right after every accepted order.
	MatchOnInsert MatchMode = iota + 1
	// MatchPeriodic leaves matching to RunMatcher (or explicit MatchOnce/MatchAll calls).
	MatchPeriodic
	// MatchBoth does both.
	MatchBoth
)

func (m MatchMode) String() string {
	switch m {
	case MatchOnInsert:
		return "insert"
	case MatchPeriodic:
		return "periodic"
	case MatchBoth:
		return "both"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

func ParseMatchMode(s string) (MatchMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "insert":
		return MatchOnInsert, nil
	case "periodic":
		return MatchPeriodic, nil
	case "both", "":
		return MatchBoth, nil
	default:
		return 0, fmt.Errorf("unknown match mode %q (want insert, periodic or both)", s)
	}
}

func (m MatchMode) onInsert() bool { return m == MatchOnInsert || m == MatchBoth }

// Config wires an Engine. Zero values pick sensible defaults.
type Config struct {
	MatchMode        MatchMode
	MaxInstrumentLen int
	Clock            util.Clock
	// Sequencer is shared by every book; nil starts a fresh one at zero.
	Sequencer *orderbook.Sequencer
	// Outbox receives every trade the engine produces; nil means trades are
	// only returned to callers.
	Outbox  *outbox.Outbox
	Metrics *Metrics
}

// OrderHandle describes an accepted order at the time it entered its book.
// Trades lists any fills produced by matching right after the insert.
type OrderHandle struct {
	ID         uuid.UUID         `json:"id"`
	Instrument string            `json:"instrument"`
	Side       orderbook.Side    `json:"side"`
	Price      decimal.Decimal   `json:"price"`
	Quantity   int64             `json:"quantity"`
	Sequence   uint64            `json:"sequence"`
	Trades     []orderbook.Trade `json:"trades,omitempty"`
}

// Engine is the order entry point: it validates submissions, routes them to
// their book through the registry, and drives matching.
type Engine struct {
	registry *market.Registry
	seq      *orderbook.Sequencer
	tradeSeq atomic.Uint64

	mode             MatchMode
	maxInstrumentLen int
	clock            util.Clock
	out              *outbox.Outbox
	metrics          *Metrics
	log              *zap.SugaredLogger
}

func NewEngine(registry *market.Registry, cfg Config, log *zap.SugaredLogger) *Engine {
	if cfg.MatchMode == 0 {
		cfg.MatchMode = MatchBoth
	}
	if cfg.MaxInstrumentLen <= 0 {
		cfg.MaxInstrumentLen = DefaultMaxInstrumentLen
	}
	if cfg.Clock == nil {
		cfg.Clock = util.RealClock{}
	}
	if cfg.Sequencer == nil {
		cfg.Sequencer = orderbook.NewSequencer(0)
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Engine{
		registry:         registry,
		seq:              cfg.Sequencer,
		mode:             cfg.MatchMode,
		maxInstrumentLen: cfg.MaxInstrumentLen,
		clock:            cfg.Clock,
		out:              cfg.Outbox,
		metrics:          cfg.Metrics,
		log:              log,
	}
}

func (e *Engine) Registry() *market.Registry      { return e.registry }
func (e *Engine) Sequencer() *orderbook.Sequencer { return e.seq }
func (e *Engine) Mode() MatchMode                 { return e.mode }

func (e *Engine) validate(side orderbook.Side, instrument string, qty int64, price decimal.Decimal) error {
	switch {
	case !side.Valid():
		return invalid("side", "must be buy or sell")
	case strings.TrimSpace(instrument) == "":
		return invalid("instrument", "must not be empty")
	case len(instrument) > e.maxInstrumentLen:
		return invalid("instrument", fmt.Sprintf("longer than %d bytes", e.maxInstrumentLen))
	case qty <= 0:
		return invalid("quantity", "must be positive")
	case !price.IsPositive():
		return invalid("price", "must be positive")
	}
	return nil
}

// Submit validates an order and places it in its instrument's book, opening
// the book if the registry has room. Rejections leave every book untouched.
func (e *Engine) Submit(side orderbook.Side, instrument string, qty int64, price decimal.Decimal) (OrderHandle, error) {
	if err := e.validate(side, instrument, qty, price); err != nil {
		e.metrics.rejected("validation")
		e.log.Debugw("order_rejected", "instrument", instrument, "side", side.String(), "err", err)
		return OrderHandle{}, err
	}

	book, err := e.registry.LookupOrCreate(instrument)
	if err != nil {
		e.metrics.rejected("capacity")
		e.log.Warnw("order_rejected", "instrument", instrument, "err", err)
		return OrderHandle{}, err
	}
	e.metrics.setInstruments(e.registry.Count())

	accepted := book.Accept(orderbook.NewOrder(side, instrument, qty, price), e.seq)
	e.metrics.accepted(side)

	handle := OrderHandle{
		ID:         accepted.ID,
		Instrument: accepted.Instrument,
		Side:       accepted.Side,
		Price:      accepted.Price,
		Quantity:   accepted.Quantity,
		Sequence:   accepted.Sequence,
	}
	if e.mode.onInsert() {
		handle.Trades = e.match(book)
	}
	return handle, nil
}

// MatchOnce drains one existing book.
func (e *Engine) MatchOnce(instrument string) ([]orderbook.Trade, error) {
	book, err := e.registry.Lookup(instrument)
	if err != nil {
		return nil, err
	}
	return e.match(book), nil
}

// MatchAll drains every book. Books are visited in no particular order.
func (e *Engine) MatchAll() []orderbook.Trade {
	var all []orderbook.Trade
	for _, book := range e.registry.Books() {
		all = append(all, e.match(book)...)
	}
	return all
}

// Snapshot returns the current book of an existing instrument.
func (e *Engine) Snapshot(instrument string) (orderbook.Snapshot, error) {
	book, err := e.registry.Lookup(instrument)
	if err != nil {
		return orderbook.Snapshot{}, err
	}
	return book.Snapshot(), nil
}

func (e *Engine) Instruments() []string { return e.registry.Instruments() }

// RunMatcher calls MatchAll every interval until ctx is done.
func (e *Engine) RunMatcher(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("matcher interval must be positive, got %v", interval)
	}
	e.log.Infow("matcher_started", "interval", interval, "mode", e.mode.String())
	for {
		select {
		case <-ctx.Done():
			e.log.Infow("matcher_stopped")
			return nil
		case <-e.clock.After(interval):
			e.MatchAll()
		}
	}
}

// match runs one pass on book. Trades are numbered and pushed to the outbox
// while the book is still locked, so numbering follows execution order.
func (e *Engine) match(book *orderbook.Book) []orderbook.Trade {
	start := time.Now()
	trades := book.MatchFunc(e.clock.Now(), e.nextTradeSeq, e.publish)
	e.metrics.observeMatch(time.Since(start))
	if len(trades) == 0 {
		return nil
	}
	e.metrics.traded(trades)
	return trades
}

func (e *Engine) nextTradeSeq() uint64 { return e.tradeSeq.Add(1) }

// publish runs under a book lock; Outbox.Push never blocks.
func (e *Engine) publish(trades []orderbook.Trade) {
	if e.out == nil {
		return
	}
	out := make([]orderbook.Trade, len(trades))
	copy(out, trades)
	e.out.Push(out)
}
