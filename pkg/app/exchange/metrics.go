package exchange

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/uhyunpark/matchbook/pkg/app/core/market"
	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// Metrics holds the engine's Prometheus collectors. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	OrdersAccepted *prometheus.CounterVec
	OrdersRejected *prometheus.CounterVec
	Trades         prometheus.Counter
	TradedQty      prometheus.Counter
	MatchDuration  prometheus.Histogram
	Instruments    prometheus.Gauge
	LastTradeSeq   prometheus.Gauge
	SinkErrors     *prometheus.CounterVec
	Snapshots      *prometheus.CounterVec

	// lastSeq keeps LastTradeSeq from moving backwards when passes on
	// different books finish out of order.
	mu      sync.Mutex
	lastSeq uint64
}

// NewMetrics registers the engine collectors with reg. Pass
// prometheus.NewRegistry() in tests to keep them isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		OrdersAccepted: f.NewCounterVec(prometheus.CounterOpts{
			Name: "matchbook_orders_accepted_total",
			Help: "Orders accepted into a book, by side",
		}, []string{"side"}),
		OrdersRejected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "matchbook_orders_rejected_total",
			Help: "Orders rejected before reaching a book, by reason",
		}, []string{"reason"}),
		Trades: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_trades_total",
			Help: "Trades produced by matching",
		}),
		TradedQty: f.NewCounter(prometheus.CounterOpts{
			Name: "matchbook_traded_quantity_total",
			Help: "Sum of traded quantity",
		}),
		MatchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "matchbook_match_duration_seconds",
			Help:    "Duration of one matching pass over a book",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),
		Instruments: f.NewGauge(prometheus.GaugeOpts{
			Name: "matchbook_instruments",
			Help: "Instruments with an open book",
		}),
		LastTradeSeq: f.NewGauge(prometheus.GaugeOpts{
			Name: "matchbook_last_trade_sequence",
			Help: "Sequence of the most recent trade",
		}),
		SinkErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "matchbook_sink_errors_total",
			Help: "Failed trade deliveries, by sink",
		}, []string{"sink"}),
		Snapshots: f.NewCounterVec(prometheus.CounterOpts{
			Name: "matchbook_snapshots_total",
			Help: "Book snapshots written, by result",
		}, []string{"result"}),
	}
}

func (m *Metrics) accepted(side orderbook.Side) {
	if m == nil {
		return
	}
	m.OrdersAccepted.WithLabelValues(side.String()).Inc()
}

func (m *Metrics) rejected(reason string) {
	if m == nil {
		return
	}
	m.OrdersRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) setInstruments(n int) {
	if m == nil {
		return
	}
	m.Instruments.Set(float64(n))
}

func (m *Metrics) observeMatch(d time.Duration) {
	if m == nil {
		return
	}
	m.MatchDuration.Observe(d.Seconds())
}

func (m *Metrics) traded(trades []orderbook.Trade) {
	if m == nil || len(trades) == 0 {
		return
	}
	var (
		qty  int64
		high uint64
	)
	for _, t := range trades {
		qty += t.Quantity
		high = max(high, t.Sequence)
	}
	m.Trades.Add(float64(len(trades)))
	m.TradedQty.Add(float64(qty))

	m.mu.Lock()
	if high > m.lastSeq {
		m.lastSeq = high
		m.LastTradeSeq.Set(float64(high))
	}
	m.mu.Unlock()
}

func (m *Metrics) sinkFailed(sink string) {
	if m == nil {
		return
	}
	m.SinkErrors.WithLabelValues(sink).Inc()
}

func (m *Metrics) snapshot(result string) {
	if m == nil {
		return
	}
	m.Snapshots.WithLabelValues(result).Inc()
}

var (
	bookDepthDesc = prometheus.NewDesc(
		"matchbook_book_depth",
		"Resting orders per book side",
		[]string{"instrument", "side"}, nil,
	)
	bestPriceDesc = prometheus.NewDesc(
		"matchbook_book_best_price",
		"Best resting price per book side",
		[]string{"instrument", "side"}, nil,
	)
)

// BookCollector reports depth and top-of-book prices for every registered
// book at scrape time. Empty sides report depth 0 and no price.
type BookCollector struct {
	registry *market.Registry
}

func NewBookCollector(registry *market.Registry) *BookCollector {
	return &BookCollector{registry: registry}
}

func (c *BookCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- bookDepthDesc
	ch <- bestPriceDesc
}

func (c *BookCollector) Collect(ch chan<- prometheus.Metric) {
	buy, sell := orderbook.Buy.String(), orderbook.Sell.String()
	for _, book := range c.registry.Books() {
		instr := book.Instrument()
		bids, asks := book.Len()
		ch <- prometheus.MustNewConstMetric(bookDepthDesc, prometheus.GaugeValue, float64(bids), instr, buy)
		ch <- prometheus.MustNewConstMetric(bookDepthDesc, prometheus.GaugeValue, float64(asks), instr, sell)
		if p, ok := book.BestBid(); ok {
			ch <- prometheus.MustNewConstMetric(bestPriceDesc, prometheus.GaugeValue, p.InexactFloat64(), instr, buy)
		}
		if p, ok := book.BestAsk(); ok {
			ch <- prometheus.MustNewConstMetric(bestPriceDesc, prometheus.GaugeValue, p.InexactFloat64(), instr, sell)
		}
	}
}

var _ prometheus.Collector = (*BookCollector)(nil)
