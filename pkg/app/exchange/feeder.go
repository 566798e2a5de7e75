package exchange

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// OrderSubmitter is the part of Engine the feeder drives.
type OrderSubmitter interface {
	Submit(side orderbook.Side, instrument string, qty int64, price decimal.Decimal) (OrderHandle, error)
}

var _ OrderSubmitter = (*Engine)(nil)

// FeederConfig controls simulated order flow.
type FeederConfig struct {
	Producers   int           // concurrent producers
	Instruments int           // distinct instruments (TICKER0..n-1)
	MinDelay    time.Duration // pause between orders of one producer
	MaxDelay    time.Duration
	Seed        int64 // 0 picks a time-based seed
}

// DefaultFeederConfig mirrors a modest simulated market.
func DefaultFeederConfig() FeederConfig {
	return FeederConfig{
		Producers:   5,
		Instruments: 1024,
		MinDelay:    10 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
	}
}

// FeederStats counts what the producers did.
type FeederStats struct {
	Submitted uint64
	Rejected  uint64
}

// Feeder runs concurrent producers submitting random orders.
type Feeder struct {
	target OrderSubmitter
	cfg    FeederConfig
	log    *zap.SugaredLogger

	submitted atomic.Uint64
	rejected  atomic.Uint64
}

func NewFeeder(target OrderSubmitter, cfg FeederConfig, log *zap.SugaredLogger) *Feeder {
	def := DefaultFeederConfig()
	if cfg.Producers <= 0 {
		cfg.Producers = def.Producers
	}
	if cfg.Instruments <= 0 {
		cfg.Instruments = def.Instruments
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Feeder{target: target, cfg: cfg, log: log}
}

// Run blocks until ctx is done and every producer has returned.
func (f *Feeder) Run(ctx context.Context) error {
	f.log.Infow("feeder_started",
		"producers", f.cfg.Producers,
		"instruments", f.cfg.Instruments,
		"min_delay", f.cfg.MinDelay,
		"max_delay", f.cfg.MaxDelay,
	)
	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < f.cfg.Producers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			f.produce(ctx, NewOrderGenerator(f.cfg.Instruments, f.cfg.Seed+int64(id)))
		}(i)
	}
	wg.Wait()

	st := f.Stats()
	elapsed := time.Since(start)
	f.log.Infow("feeder_stopped",
		"submitted", st.Submitted,
		"rejected", st.Rejected,
		"elapsed", elapsed.Round(time.Millisecond),
		"orders_per_sec", float64(st.Submitted)/elapsed.Seconds(),
	)
	return nil
}

func (f *Feeder) produce(ctx context.Context, gen *OrderGenerator) {
	spread := int64(f.cfg.MaxDelay - f.cfg.MinDelay)
	for {
		o := gen.Next()
		if _, err := f.target.Submit(o.Side, o.Instrument, o.Quantity, o.Price); err != nil {
			f.rejected.Add(1)
			f.log.Debugw("feeder_order_rejected", "instrument", o.Instrument, "err", err)
		} else {
			f.submitted.Add(1)
		}

		delay := f.cfg.MinDelay
		if spread > 0 {
			delay += time.Duration(gen.rng.Int63n(spread + 1))
		}
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}

func (f *Feeder) Stats() FeederStats {
	return FeederStats{Submitted: f.submitted.Load(), Rejected: f.rejected.Load()}
}
