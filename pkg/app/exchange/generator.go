package exchange

import (
	"fmt"
	"math/rand"

	"github.com/shopspring/decimal"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// GeneratedOrder is one random limit order produced for load simulation.
type GeneratedOrder struct {
	Side       orderbook.Side
	Instrument string
	Quantity   int64
	Price      decimal.Decimal
}

// OrderGenerator draws random orders over the instruments TICKER0..TICKER{n-1}:
// even odds buy or sell, quantity 1..100, price 10.00..500.00 in cents.
// Not safe for concurrent use; give each producer its own.
type OrderGenerator struct {
	instruments int
	rng         *rand.Rand
}

func NewOrderGenerator(instruments int, seed int64) *OrderGenerator {
	if instruments <= 0 {
		instruments = 1
	}
	return &OrderGenerator{
		instruments: instruments,
		rng:         rand.New(rand.NewSource(seed)),
	}
}

// InstrumentName returns the simulated identifier for index i.
func InstrumentName(i int) string { return fmt.Sprintf("TICKER%d", i) }

func (g *OrderGenerator) Next() GeneratedOrder {
	side := orderbook.Buy
	if g.rng.Intn(2) == 1 {
		side = orderbook.Sell
	}
	cents := 1000 + g.rng.Int63n(49001) // 10.00 .. 500.00
	return GeneratedOrder{
		Side:       side,
		Instrument: InstrumentName(g.rng.Intn(g.instruments)),
		Quantity:   1 + g.rng.Int63n(100),
		Price:      decimal.New(cents, -2),
	}
}
