package exchange

import (
	"strings"
	"time"
)

type OrderSide string

const (
	SideBuy  OrderSide = "BUY"
	SideSell OrderSide = "SELL"
)

// Opposite returns the side that reduces a position opened with s.
func (s OrderSide) Opposite() OrderSide {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// PositionSide is the hedge-mode leg an order belongs to.
type PositionSide string

const (
	PositionBoth  PositionSide = "BOTH"
	PositionLong  PositionSide = "LONG"
	PositionShort PositionSide = "SHORT"
)

type OrderType string

const (
	OrderMarket           OrderType = "MARKET"
	OrderStopMarket       OrderType = "STOP_MARKET"
	OrderTakeProfitMarket OrderType = "TAKE_PROFIT_MARKET"

	// Account-level steps, recorded next to orders so a partial execution
	// can be reconciled against the venue.
	OrderLeverage  OrderType = "LEVERAGE"
	OrderCancelAll OrderType = "CANCEL_ALL"
)

// StatusApplied marks a step record that took effect at the venue.
const StatusApplied = "APPLIED"

// MarketOrderRequest describes an entry or exit at market.
type MarketOrderRequest struct {
	Symbol       string
	Side         OrderSide
	Quantity     float64
	ReduceOnly   bool
	PositionSide PositionSide // empty means one-way mode
	ProductType  string       // venue product, e.g. INTRADAY; ignored where meaningless
}

// BracketRequest asks for protective orders on an open position. Zero prices
// are skipped.
type BracketRequest struct {
	Symbol       string
	StopLoss     float64
	TakeProfit   float64
	PositionSide PositionSide
}

// Order is a venue order record, normalised across brokers.
type Order struct {
	OrderID      string       `json:"order_id"`
	ClientID     string       `json:"client_order_id,omitempty"`
	Symbol       string       `json:"symbol"`
	Side         OrderSide    `json:"side"`
	Type         OrderType    `json:"type"`
	Status       string       `json:"status"`
	Quantity     float64      `json:"quantity"`
	ExecutedQty  float64      `json:"executed_qty"`
	AvgPrice     float64      `json:"avg_price"`
	StopPrice    float64      `json:"stop_price,omitempty"`
	ReduceOnly   bool         `json:"reduce_only,omitempty"`
	PositionSide PositionSide `json:"position_side,omitempty"`
	Time         time.Time    `json:"time"`
	Error        string       `json:"error,omitempty"`
}

// Position is a broker-side snapshot. Amount is signed: positive long,
// negative short.
type Position struct {
	Symbol           string  `json:"symbol"`
	Amount           float64 `json:"position_amt"`
	EntryPrice       float64 `json:"entry_price"`
	MarkPrice        float64 `json:"mark_price"`
	Leverage         int     `json:"leverage"`
	UnrealizedPnL    float64 `json:"unrealized_pnl"`
	LiquidationPrice float64 `json:"liquidation_price,omitempty"`
}

// IsOpen reports a non-zero position.
func (p *Position) IsOpen() bool { return p != nil && p.Amount != 0 }

// IsLong reports a positive position.
func (p *Position) IsLong() bool { return p != nil && p.Amount > 0 }

// CloseSide is the order side that flattens p.
func (p *Position) CloseSide() OrderSide {
	if p.IsLong() {
		return SideSell
	}
	return SideBuy
}

// Leg is the hedge-mode leg p sits on.
func (p *Position) Leg() PositionSide {
	if p.IsLong() {
		return PositionLong
	}
	return PositionShort
}

// Balance is the account's funds in its settlement currency.
type Balance struct {
	Currency      string    `json:"currency"`
	Total         float64   `json:"total"`
	Available     float64   `json:"available"`
	UnrealizedPnL float64   `json:"unrealized_pnl"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NormalizeSide maps BUY/SELL in any case.
func NormalizeSide(s string) OrderSide {
	return OrderSide(strings.ToUpper(strings.TrimSpace(s)))
}
