package exchange

import (
	"context"

	"go.uber.org/zap"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/matchbook/pkg/app/core/outbox"
)

// TradeSink receives trades after they leave the engine. Implementations
// must be safe to call from the dispatcher goroutine only; they never see
// a book lock.
type TradeSink interface {
	PublishTrades(ctx context.Context, trades []orderbook.Trade) error
}

// SinkFunc adapts a function to TradeSink.
type SinkFunc func(ctx context.Context, trades []orderbook.Trade) error

func (f SinkFunc) PublishTrades(ctx context.Context, trades []orderbook.Trade) error {
	return f(ctx, trades)
}

// LogSink writes one structured log line per trade.
type LogSink struct {
	log *zap.SugaredLogger
}

func NewLogSink(log *zap.SugaredLogger) *LogSink { return &LogSink{log: log} }

func (s *LogSink) PublishTrades(_ context.Context, trades []orderbook.Trade) error {
	for _, t := range trades {
		s.log.Infow("trade_executed",
			"seq", t.Sequence,
			"instrument", t.Instrument,
			"qty", t.Quantity,
			"price", t.Price.String(),
			"buy_seq", t.Buy.Sequence,
			"sell_seq", t.Sell.Sequence,
		)
	}
	return nil
}

type namedSink struct {
	name string
	sink TradeSink
}

// Dispatcher drains the outbox and fans trades out to every sink in
// registration order. A failing sink is logged and skipped; delivery is
// not retried.
type Dispatcher struct {
	out     *outbox.Outbox
	sinks   []namedSink
	batch   int
	metrics *Metrics
	log     *zap.SugaredLogger
}

// NewDispatcher reads from out in batches of at most batch trades
// (all pending when batch <= 0).
func NewDispatcher(out *outbox.Outbox, batch int, metrics *Metrics, log *zap.SugaredLogger) *Dispatcher {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Dispatcher{out: out, batch: batch, metrics: metrics, log: log}
}

// Add registers a sink. Call before Run.
func (d *Dispatcher) Add(name string, sink TradeSink) {
	d.sinks = append(d.sinks, namedSink{name: name, sink: sink})
}

// Sinks lists registered sink names in delivery order.
func (d *Dispatcher) Sinks() []string {
	names := make([]string, len(d.sinks))
	for i, s := range d.sinks {
		names[i] = s.name
	}
	return names
}

// Run delivers trades until ctx is done, then flushes what is left.
func (d *Dispatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			// sinks get a fresh context so the final flush is not cut short
			d.Flush(context.WithoutCancel(ctx))
			return nil
		case <-d.out.Ready():
			d.Flush(ctx)
		}
	}
}

// Flush delivers everything currently pending.
func (d *Dispatcher) Flush(ctx context.Context) {
	for {
		trades := d.out.Take(d.batch)
		if len(trades) == 0 {
			return
		}
		d.deliver(ctx, trades)
	}
}

func (d *Dispatcher) deliver(ctx context.Context, trades []orderbook.Trade) {
	for _, s := range d.sinks {
		if err := s.sink.PublishTrades(ctx, trades); err != nil {
			d.metrics.sinkFailed(s.name)
			d.log.Errorw("trade_delivery_failed", "sink", s.name, "trades", len(trades), "err", err)
		}
	}
}
