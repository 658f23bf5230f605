package brokerobs

import (
	"context"
	"errors"
	"testing"

	"tradebot/internal/gateway/exchange"
	"tradebot/internal/gateway/paper"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type wholeBroker struct {
	err error
}

func (wholeBroker) Name() string     { return "whole" }
func (wholeBroker) WholeUnits() bool { return true }

func (w wholeBroker) PlaceMarketOrder(context.Context, exchange.MarketOrderRequest) (exchange.Order, error) {
	return exchange.Order{OrderID: "1"}, w.err
}

func (w wholeBroker) GetPosition(context.Context, string) (*exchange.Position, error) {
	return nil, w.err
}

func (w wholeBroker) GetBalance(context.Context) (exchange.Balance, error) {
	return exchange.Balance{Available: 10}, w.err
}

func (w wholeBroker) GetPrice(context.Context, string) (float64, error) { return 100, w.err }

func TestWrapKeepsBracketCapability(t *testing.T) {
	inner := paper.New(paper.Config{Balance: 1000, Prices: map[string]float64{"BTCUSDT": 100}})
	b := Wrap(inner)

	bb, ok := exchange.SupportsBrackets(b)
	require.True(t, ok)
	assert.False(t, exchange.RequiresWholeUnits(b))
	assert.Equal(t, "paper", b.Name())
	assert.Same(t, inner, Unwrap(b))

	ctx := context.Background()
	require.NoError(t, bb.SetLeverage(ctx, "BTCUSDT", 2))
	_, err := b.PlaceMarketOrder(ctx, exchange.MarketOrderRequest{Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: 1})
	require.NoError(t, err)
	orders, err := bb.SetStopLossTakeProfit(ctx, exchange.BracketRequest{Symbol: "BTCUSDT", StopLoss: 90, TakeProfit: 120})
	require.NoError(t, err)
	assert.Len(t, orders, 2)

	pos, err := b.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2, pos.Leverage)
}

func TestWrapKeepsWholeUnits(t *testing.T) {
	b := Wrap(wholeBroker{})
	_, ok := exchange.SupportsBrackets(b)
	assert.False(t, ok)
	assert.True(t, exchange.RequiresWholeUnits(b))

	px, err := b.GetPrice(context.Background(), "RELIANCE")
	require.NoError(t, err)
	assert.Equal(t, 100.0, px)
}

func TestWrapPassesErrorsThrough(t *testing.T) {
	boom := errors.New("boom")
	b := Wrap(wholeBroker{err: boom})
	ctx := context.Background()

	_, err := b.PlaceMarketOrder(ctx, exchange.MarketOrderRequest{Symbol: "X", Side: exchange.SideSell, Quantity: 1})
	assert.ErrorIs(t, err, boom)
	_, err = b.GetBalance(ctx)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, wholeBroker{err: boom}, Unwrap(b))
}
