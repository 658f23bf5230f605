// Package brokerobs decorates brokers with tracing spans and structured logs.
package brokerobs

import (
	"context"
	"time"

	"tradebot/internal/gateway/exchange"
	"tradebot/internal/logger"
	"tradebot/internal/trace"

	"go.opentelemetry.io/otel/attribute"
)

// observableBroker wraps a Broker with logging and tracing.
type observableBroker struct {
	broker exchange.Broker
}

// observableBracketBroker additionally forwards the bracket capability.
type observableBracketBroker struct {
	observableBroker
	bracket exchange.BracketBroker
}

var (
	_ exchange.Broker        = (*observableBroker)(nil)
	_ exchange.WholeUnits    = (*observableBroker)(nil)
	_ exchange.BracketBroker = (*observableBracketBroker)(nil)
)

// Wrap returns b with observability. The result keeps b's capabilities:
// a BracketBroker stays a BracketBroker and whole-unit venues stay whole-unit.
func Wrap(b exchange.Broker) exchange.Broker {
	base := observableBroker{broker: b}
	if bb, ok := exchange.SupportsBrackets(b); ok {
		return &observableBracketBroker{observableBroker: base, bracket: bb}
	}
	return &base
}

// Unwrap returns the decorated broker.
func Unwrap(b exchange.Broker) exchange.Broker {
	switch ob := b.(type) {
	case *observableBroker:
		return ob.broker
	case *observableBracketBroker:
		return ob.broker
	}
	return b
}

func (ob *observableBroker) Name() string { return ob.broker.Name() }

func (ob *observableBroker) WholeUnits() bool { return exchange.RequiresWholeUnits(ob.broker) }

func (ob *observableBroker) observe(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := trace.StartSpan(ctx, "broker."+op, append(attrs, attribute.String("broker", ob.broker.Name()))...)
	defer span.End()
	start := time.Now()
	err := fn(ctx)
	l := logger.With("broker", ob.broker.Name(), "op", op, "elapsed_ms", time.Since(start).Milliseconds())
	for _, a := range attrs {
		l = l.With(string(a.Key), a.Value.Emit())
	}
	if err != nil {
		trace.Fail(span, err)
		l.Warn("broker call failed", "error", err)
		return err
	}
	l.Debug("broker call")
	return nil
}

func (ob *observableBroker) PlaceMarketOrder(ctx context.Context, req exchange.MarketOrderRequest) (exchange.Order, error) {
	var out exchange.Order
	err := ob.observe(ctx, "PlaceMarketOrder", []attribute.KeyValue{
		attribute.String("symbol", req.Symbol),
		attribute.String("side", string(req.Side)),
		attribute.Float64("quantity", req.Quantity),
		attribute.Bool("reduce_only", req.ReduceOnly),
	}, func(ctx context.Context) error {
		var err error
		out, err = ob.broker.PlaceMarketOrder(ctx, req)
		return err
	})
	if err == nil {
		logger.With("broker", ob.broker.Name(), "symbol", req.Symbol, "order_id", out.OrderID, "status", out.Status).
			Info("order placed")
	}
	return out, err
}

func (ob *observableBroker) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	var out *exchange.Position
	err := ob.observe(ctx, "GetPosition", []attribute.KeyValue{attribute.String("symbol", symbol)}, func(ctx context.Context) error {
		var err error
		out, err = ob.broker.GetPosition(ctx, symbol)
		return err
	})
	return out, err
}

func (ob *observableBroker) GetBalance(ctx context.Context) (exchange.Balance, error) {
	var out exchange.Balance
	err := ob.observe(ctx, "GetBalance", nil, func(ctx context.Context) error {
		var err error
		out, err = ob.broker.GetBalance(ctx)
		return err
	})
	return out, err
}

func (ob *observableBroker) GetPrice(ctx context.Context, symbol string) (float64, error) {
	var out float64
	err := ob.observe(ctx, "GetPrice", []attribute.KeyValue{attribute.String("symbol", symbol)}, func(ctx context.Context) error {
		var err error
		out, err = ob.broker.GetPrice(ctx, symbol)
		return err
	})
	return out, err
}

func (ob *observableBracketBroker) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return ob.observe(ctx, "SetLeverage", []attribute.KeyValue{
		attribute.String("symbol", symbol),
		attribute.Int("leverage", leverage),
	}, func(ctx context.Context) error {
		return ob.bracket.SetLeverage(ctx, symbol, leverage)
	})
}

func (ob *observableBracketBroker) SetStopLossTakeProfit(ctx context.Context, req exchange.BracketRequest) ([]exchange.Order, error) {
	var out []exchange.Order
	err := ob.observe(ctx, "SetStopLossTakeProfit", []attribute.KeyValue{
		attribute.String("symbol", req.Symbol),
		attribute.Float64("stop_loss", req.StopLoss),
		attribute.Float64("take_profit", req.TakeProfit),
	}, func(ctx context.Context) error {
		var err error
		out, err = ob.bracket.SetStopLossTakeProfit(ctx, req)
		return err
	})
	return out, err
}

func (ob *observableBracketBroker) CancelAllOrders(ctx context.Context, symbol string) error {
	return ob.observe(ctx, "CancelAllOrders", []attribute.KeyValue{attribute.String("symbol", symbol)}, func(ctx context.Context) error {
		return ob.bracket.CancelAllOrders(ctx, symbol)
	})
}
