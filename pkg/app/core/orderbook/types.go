package orderbook

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Side int8

const (
	Buy  Side = 1
	Sell Side = -1
)

func (s Side) String() string {
	switch s {
	case Buy:
		return "buy"
	case Sell:
		return "sell"
	default:
		return fmt.Sprintf("side(%d)", int8(s))
	}
}

// Valid reports whether s is one of the two recognized sides.
func (s Side) Valid() bool { return s == Buy || s == Sell }

func (s Side) MarshalText() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("cannot encode %s", s)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	v, ok := ParseSide(string(b))
	if !ok {
		return fmt.Errorf("unknown side %q", b)
	}
	*s = v
	return nil
}

// ParseSide accepts "buy"/"sell" in any case.
func ParseSide(v string) (Side, bool) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "buy":
		return Buy, true
	case "sell":
		return Sell, true
	default:
		return 0, false
	}
}

// Order is one resting limit order. Everything except Quantity is fixed at
// creation; Quantity only goes down as the order is filled.
type Order struct {
	ID         uuid.UUID
	Instrument string
	Side       Side
	Price      decimal.Decimal
	Quantity   int64
	Sequence   uint64
}

// NewOrder builds an unsequenced order. The sequence is stamped by
// Book.Accept or by the caller through a Sequencer.
func NewOrder(side Side, instrument string, qty int64, price decimal.Decimal) *Order {
	return &Order{
		ID:         uuid.New(),
		Instrument: instrument,
		Side:       side,
		Price:      price,
		Quantity:   qty,
	}
}

// Ref is the part of an order a trade points back to.
func (o *Order) Ref() OrderRef {
	return OrderRef{ID: o.ID, Sequence: o.Sequence}
}

type OrderRef struct {
	ID       uuid.UUID `json:"id"`
	Sequence uint64    `json:"sequence"`
}

// Trade is produced once per pairing and never retained by the book.
// Sequence is zero as returned by Book.Match. Book.MatchFunc numbers trades
// under the book lock, in execution order.
type Trade struct {
	Sequence   uint64          `json:"sequence"`
	Instrument string          `json:"instrument"`
	Quantity   int64           `json:"quantity"`
	Price      decimal.Decimal `json:"price"`
	Buy        OrderRef        `json:"buy"`
	Sell       OrderRef        `json:"sell"`
	Timestamp  time.Time       `json:"timestamp"`
}

// Level is one row of a book snapshot.
type Level struct {
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"quantity"`
	Sequence uint64          `json:"sequence"`
}

// Snapshot is a point-in-time copy of both sides in priority order.
type Snapshot struct {
	Instrument string  `json:"instrument"`
	Bids       []Level `json:"bids"`
	Asks       []Level `json:"asks"`
}
