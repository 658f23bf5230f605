// Package exchange defines the capability contract brokers offer to the
// execution engine. Every venue implements Broker; venues that can attach
// exchange-side stop-loss and take-profit orders also implement BracketBroker.
package exchange

import "context"

// Broker is the minimum a venue must support.
type Broker interface {
	Name() string

	// PlaceMarketOrder submits a market order and returns the venue's record.
	PlaceMarketOrder(ctx context.Context, req MarketOrderRequest) (Order, error)

	// GetPosition returns the open position for symbol, or nil when flat.
	GetPosition(ctx context.Context, symbol string) (*Position, error)

	GetBalance(ctx context.Context) (Balance, error)

	GetPrice(ctx context.Context, symbol string) (float64, error)
}

// BracketBroker can manage leverage and protective orders at the venue.
type BracketBroker interface {
	Broker

	SetLeverage(ctx context.Context, symbol string, leverage int) error

	// SetStopLossTakeProfit attaches close-position stop orders to the current
	// position. It returns the orders created, which may be fewer than
	// requested when the position is already flat.
	SetStopLossTakeProfit(ctx context.Context, req BracketRequest) ([]Order, error)

	CancelAllOrders(ctx context.Context, symbol string) error
}

// WholeUnits is implemented by brokers that only accept integer quantities,
// such as cash equity venues.
type WholeUnits interface {
	WholeUnits() bool
}

// RequiresWholeUnits reports whether b only accepts integer quantities.
func RequiresWholeUnits(b Broker) bool {
	w, ok := b.(WholeUnits)
	return ok && w.WholeUnits()
}

// SupportsBrackets returns b as a BracketBroker when it has that capability.
func SupportsBrackets(b Broker) (BracketBroker, bool) {
	bb, ok := b.(BracketBroker)
	return bb, ok
}
