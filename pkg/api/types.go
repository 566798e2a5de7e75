package api

import (
	"github.com/shopspring/decimal"

	"github.com/uhyunpark/matchbook/pkg/app/core/orderbook"
	"github.com/uhyunpark/matchbook/pkg/app/exchange"
)

// API request and response types for REST endpoints and WebSocket messages

// ==============================
// REST Request Types
// ==============================

// SubmitOrderRequest is the payload for POST /api/v1/orders.
// Price accepts a JSON string ("100.25") or number.
type SubmitOrderRequest struct {
	Instrument string          `json:"instrument" validate:"required"`
	Side       string          `json:"side" validate:"required"`
	Quantity   int64           `json:"quantity" validate:"gt=0"`
	Price      decimal.Decimal `json:"price"`
}

// ==============================
// REST Response Types
// ==============================

// SubmitOrderResponse echoes the accepted order and any immediate fills.
type SubmitOrderResponse struct {
	Status string               `json:"status"` // "accepted"
	Order  exchange.OrderHandle `json:"order"`
}

// MatchResponse lists the trades produced by a match request
type MatchResponse struct {
	Trades []orderbook.Trade `json:"trades"`
}

// InstrumentsResponse lists instruments that have a book
type InstrumentsResponse struct {
	Instruments []string `json:"instruments"`
	Count       int      `json:"count"`
	Capacity    int      `json:"capacity"`
}

// OrderbookSnapshot represents current book state
type OrderbookSnapshot struct {
	Instrument string            `json:"instrument"`
	Bids       []orderbook.Level `json:"bids"` // best first
	Asks       []orderbook.Level `json:"asks"` // best first
	BestBid    *decimal.Decimal  `json:"bestBid,omitempty"`
	BestAsk    *decimal.Decimal  `json:"bestAsk,omitempty"`
	LastPrice  *decimal.Decimal  `json:"lastPrice,omitempty"`
	Timestamp  int64             `json:"timestamp"` // Unix milliseconds
}

// ErrorResponse is returned for all errors
type ErrorResponse struct {
	Error   string `json:"error"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// ==============================
// WebSocket Message Types
// ==============================

// WSSubscribeRequest is sent by client to subscribe to channels
type WSSubscribeRequest struct {
	Op       string   `json:"op"`       // "subscribe" or "unsubscribe"
	Channels []string `json:"channels"` // e.g. ["trades:TICKER7"] or ["trades:*"]
}

// TradeUpdate is pushed for every trade on a subscribed channel
type TradeUpdate struct {
	Type  string          `json:"type"` // "trade"
	Trade orderbook.Trade `json:"trade"`
}
