package exchange

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uhyunpark/matchbook/pkg/app/core/market"
	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

func TestMetrics_LastTradeSeqNeverDecreases(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.traded([]orderbook.Trade{{Sequence: 4, Quantity: 1}, {Sequence: 5, Quantity: 2}})
	// a pass on another book that numbered earlier but finished later
	m.traded([]orderbook.Trade{{Sequence: 3, Quantity: 1}})

	assert.Equal(t, 5.0, testutil.ToFloat64(m.LastTradeSeq))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.Trades))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.TradedQty))

	m.traded([]orderbook.Trade{{Sequence: 6, Quantity: 1}})
	assert.Equal(t, 6.0, testutil.ToFloat64(m.LastTradeSeq))
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.traded([]orderbook.Trade{{Sequence: 1, Quantity: 1}})
		m.accepted(orderbook.Buy)
		m.rejected("validation")
	})
}

func TestBookCollector(t *testing.T) {
	registry := market.NewRegistry(4)
	e := NewEngine(registry, Config{MatchMode: MatchOnInsert}, nil)

	_, err := e.Submit(orderbook.Buy, "A", 3, px("99.5"))
	require.NoError(t, err)
	_, err = e.Submit(orderbook.Buy, "A", 1, px("99"))
	require.NoError(t, err)
	_, err = e.Submit(orderbook.Sell, "A", 2, px("101.25"))
	require.NoError(t, err)
	_, err = e.Submit(orderbook.Sell, "B", 1, px("7"))
	require.NoError(t, err)

	expected := `
# HELP matchbook_book_best_price Best resting price per book side
# TYPE matchbook_book_best_price gauge
matchbook_book_best_price{instrument="A",side="buy"} 99.5
matchbook_book_best_price{instrument="A",side="sell"} 101.25
matchbook_book_best_price{instrument="B",side="sell"} 7
# HELP matchbook_book_depth Resting orders per book side
# TYPE matchbook_book_depth gauge
matchbook_book_depth{instrument="A",side="buy"} 2
matchbook_book_depth{instrument="A",side="sell"} 1
matchbook_book_depth{instrument="B",side="buy"} 0
matchbook_book_depth{instrument="B",side="sell"} 1
`
	c := NewBookCollector(registry)
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected)))

	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(c))
}
