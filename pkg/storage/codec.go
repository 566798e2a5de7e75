package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
)

// BookRecord is the persisted form of one book: its instrument and the
// orders resting in it when the snapshot was taken.
type BookRecord struct {
	Instrument string
	Orders     []orderbook.Order
}

type storedOrder struct {
	ID       uuid.UUID       `json:"id"`
	Side     string          `json:"side"`
	Price    decimal.Decimal `json:"price"`
	Quantity int64           `json:"qty"`
	Sequence uint64          `json:"seq"`
}

type storedBook struct {
	Instrument string        `json:"instrument"`
	Orders     []storedOrder `json:"orders"`
}

func encodeBook(rec BookRecord) ([]byte, error) {
	sb := storedBook{Instrument: rec.Instrument, Orders: make([]storedOrder, len(rec.Orders))}
	for i, o := range rec.Orders {
		sb.Orders[i] = storedOrder{
			ID:       o.ID,
			Side:     o.Side.String(),
			Price:    o.Price,
			Quantity: o.Quantity,
			Sequence: o.Sequence,
		}
	}
	return json.Marshal(sb)
}

func decodeBook(b []byte) (BookRecord, error) {
	var sb storedBook
	if err := json.Unmarshal(b, &sb); err != nil {
		return BookRecord{}, err
	}
	rec := BookRecord{Instrument: sb.Instrument, Orders: make([]orderbook.Order, len(sb.Orders))}
	for i, so := range sb.Orders {
		side, ok := orderbook.ParseSide(so.Side)
		if !ok {
			return BookRecord{}, fmt.Errorf("order %s: bad side %q", so.ID, so.Side)
		}
		rec.Orders[i] = orderbook.Order{
			ID:         so.ID,
			Instrument: sb.Instrument,
			Side:       side,
			Price:      so.Price,
			Quantity:   so.Quantity,
			Sequence:   so.Sequence,
		}
	}
	return rec, nil
}

func encodeSeq(v uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], v)
	return k[:]
}

func decodeSeq(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("sequence record: want 8 bytes, got %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}
