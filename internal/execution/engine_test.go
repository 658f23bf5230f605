package execution

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"tradebot/internal/decision"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockBroker struct {
	mock.Mock
}

func (m *mockBroker) Name() string { return "mock" }

func (m *mockBroker) PlaceMarketOrder(ctx context.Context, req exchange.MarketOrderRequest) (exchange.Order, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(exchange.Order), args.Error(1)
}

func (m *mockBroker) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	args := m.Called(ctx, symbol)
	pos, _ := args.Get(0).(*exchange.Position)
	return pos, args.Error(1)
}

func (m *mockBroker) GetBalance(ctx context.Context) (exchange.Balance, error) {
	args := m.Called(ctx)
	return args.Get(0).(exchange.Balance), args.Error(1)
}

func (m *mockBroker) GetPrice(ctx context.Context, symbol string) (float64, error) {
	args := m.Called(ctx, symbol)
	return args.Get(0).(float64), args.Error(1)
}

type mockBracketBroker struct {
	mockBroker
}

func (m *mockBracketBroker) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	return m.Called(ctx, symbol, leverage).Error(0)
}

func (m *mockBracketBroker) SetStopLossTakeProfit(ctx context.Context, req exchange.BracketRequest) ([]exchange.Order, error) {
	args := m.Called(ctx, req)
	orders, _ := args.Get(0).([]exchange.Order)
	return orders, args.Error(1)
}

func (m *mockBracketBroker) CancelAllOrders(ctx context.Context, symbol string) error {
	return m.Called(ctx, symbol).Error(0)
}

type mockWholeBroker struct {
	mockBroker
}

func (m *mockWholeBroker) WholeUnits() bool { return true }

type mockRisk struct {
	mock.Mock
}

func (m *mockRisk) PositionSize(balance, positionPct, leverage, price float64) (float64, error) {
	args := m.Called(balance, positionPct, leverage, price)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockRisk) StopLossPrice(entry, pct float64, side risk.Side) (float64, error) {
	args := m.Called(entry, pct, side)
	return args.Get(0).(float64), args.Error(1)
}

func (m *mockRisk) TakeProfitPrice(entry, pct float64, side risk.Side) (float64, error) {
	args := m.Called(entry, pct, side)
	return args.Get(0).(float64), args.Error(1)
}

func balance(avail float64) exchange.Balance {
	return exchange.Balance{Currency: "USDT", Total: avail, Available: avail}
}

func methodNames(m *mock.Mock) []string {
	names := make([]string, 0, len(m.Calls))
	for _, c := range m.Calls {
		names = append(names, c.Method)
	}
	return names
}

func TestExecuteHoldAndWait(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})

	res := eng.Execute(context.Background(), Request{Decision: decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionHold}})
	assert.True(t, res.Success())
	assert.Equal(t, "hold", res.Action)
	assert.Equal(t, "Hold - no action taken", res.Message)
	assert.Empty(t, res.Orders)
	assert.False(t, res.Timestamp.IsZero())

	res = eng.Execute(context.Background(), Request{Decision: decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionWait}})
	assert.True(t, res.Success())
	assert.Equal(t, "Wait - no action taken", res.Message)
	assert.Empty(t, broker.Calls)
}

func TestExecuteUnknownAction(t *testing.T) {
	broker := &mockBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})

	res := eng.Execute(context.Background(), Request{Decision: decision.Decision{Symbol: "BTCUSDT", Action: "flip"}})
	assert.False(t, res.Success())
	assert.Equal(t, "Unknown action: flip", res.Message)
	assert.Empty(t, broker.Calls)
}

func TestExecuteCloseWithoutPosition(t *testing.T) {
	cases := []struct {
		action  decision.Action
		pos     *exchange.Position
		message string
	}{
		{decision.ActionClosePosition, nil, "No position to close"},
		{decision.ActionClosePosition, &exchange.Position{Symbol: "BTCUSDT"}, "No position to close"},
		{decision.ActionCloseLong, &exchange.Position{Symbol: "BTCUSDT", Amount: -1}, "No long position to close"},
		{decision.ActionCloseShort, &exchange.Position{Symbol: "BTCUSDT", Amount: 1}, "No short position to close"},
		{decision.ActionReducePosition, nil, "No position to reduce"},
		{decision.ActionAddPosition, nil, "No position to add to"},
	}
	for _, tc := range cases {
		t.Run(string(tc.action)+"/"+tc.message, func(t *testing.T) {
			broker := &mockBracketBroker{}
			eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})

			res := eng.Execute(context.Background(), Request{
				Decision: decision.Decision{Symbol: "BTCUSDT", Action: tc.action},
				Balance:  balance(1000),
				Position: tc.pos,
			})
			assert.False(t, res.Success())
			assert.Equal(t, tc.message, res.Message)
			assert.Empty(t, res.Orders)
			broker.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything)
			broker.AssertNotCalled(t, "CancelAllOrders", mock.Anything, mock.Anything)
		})
	}
}

func TestExecuteOpenLongWithBrackets(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})

	broker.On("SetLeverage", mock.Anything, "BTCUSDT", 2).Return(nil)
	broker.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(req exchange.MarketOrderRequest) bool {
		return req.Symbol == "BTCUSDT" && req.Side == exchange.SideBuy && !req.ReduceOnly && req.PositionSide == ""
	})).Return(exchange.Order{OrderID: "1", Side: exchange.SideBuy, Type: exchange.OrderMarket, AvgPrice: 86000}, nil)
	broker.On("SetStopLossTakeProfit", mock.Anything, mock.MatchedBy(func(req exchange.BracketRequest) bool {
		return req.Symbol == "BTCUSDT" && req.StopLoss > 84709 && req.StopLoss < 84711 &&
			req.TakeProfit > 88579 && req.TakeProfit < 88581
	})).Return([]exchange.Order{
		{OrderID: "2", Type: exchange.OrderStopMarket},
		{OrderID: "3", Type: exchange.OrderTakeProfitMarket},
	}, nil)

	f := decision.Fields{
		"action": "open_long", "symbol": "BTCUSDT", "leverage": 2.0, "position_size_usd": 200.0,
		"entry_price": 86000.0, "stop_loss": 84710.0, "take_profit": 88580.0,
		"confidence": 75.0, "reasoning": "x",
	}
	require.True(t, decision.NewValidator(decision.DefaultConfig()).Validate(f).Valid)
	d, err := f.Decode()
	require.NoError(t, err)

	res := eng.Execute(context.Background(), Request{Decision: d, Balance: balance(1000), CurrentPrice: 86000})
	require.True(t, res.Success(), res.Message)
	assert.Equal(t, "open_long", res.Action)
	assert.Equal(t, "Long position opened successfully", res.Message)
	assert.InDelta(t, 400.0/86000.0, res.Quantity, 1e-12)
	assert.Equal(t, 86000.0, res.EntryPrice)
	assert.InDelta(t, 84710, res.StopLoss, 1e-6)
	assert.InDelta(t, 88580, res.TakeProfit, 1e-6)
	require.Len(t, res.Orders, 4)
	assert.Equal(t, exchange.OrderLeverage, res.Orders[0].Type)
	assert.Equal(t, exchange.StatusApplied, res.Orders[0].Status)
	assert.Equal(t, "1", res.Orders[1].OrderID)
	assert.Equal(t, []string{"SetLeverage", "PlaceMarketOrder", "SetStopLossTakeProfit"}, methodNames(&broker.Mock))
	broker.AssertExpectations(t)
}

func TestExecuteOpenShortHedgeModeUsesDefaults(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{HedgeMode: true})

	broker.On("SetLeverage", mock.Anything, "ETHUSDT", 3).Return(nil)
	broker.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(req exchange.MarketOrderRequest) bool {
		return req.Side == exchange.SideSell && req.PositionSide == exchange.PositionShort
	})).Return(exchange.Order{OrderID: "1"}, nil)
	broker.On("SetStopLossTakeProfit", mock.Anything, mock.MatchedBy(func(req exchange.BracketRequest) bool {
		return req.PositionSide == exchange.PositionShort
	})).Return([]exchange.Order{{OrderID: "2"}, {OrderID: "3"}}, nil)

	res := eng.Execute(context.Background(), Request{
		Decision:     decision.Decision{Symbol: "ETHUSDT", Action: decision.ActionOpenShort, Leverage: 3, PositionSizePct: 10},
		Balance:      balance(1000),
		CurrentPrice: 2000,
	})
	require.True(t, res.Success(), res.Message)
	assert.Equal(t, "Short position opened successfully", res.Message)
	// no fill price reported, so the snapshot price is the entry
	assert.Equal(t, 2000.0, res.EntryPrice)
	assert.InDelta(t, 0.15, res.Quantity, 1e-12)
	assert.InDelta(t, 2020, res.StopLoss, 1e-9)
	assert.InDelta(t, 1960, res.TakeProfit, 1e-9)
	broker.AssertExpectations(t)
}

func TestExecuteOpenLeverageFailureContinues(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})

	broker.On("SetLeverage", mock.Anything, "BTCUSDT", 5).Return(errors.New("leverage not modified"))
	broker.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(exchange.Order{OrderID: "1", AvgPrice: 100}, nil)
	broker.On("SetStopLossTakeProfit", mock.Anything, mock.Anything).Return([]exchange.Order{{OrderID: "2"}, {OrderID: "3"}}, nil)

	res := eng.Execute(context.Background(), Request{
		Decision:     decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionOpenLong, Leverage: 5},
		Balance:      balance(1000),
		CurrentPrice: 100,
	})
	assert.True(t, res.Success(), res.Message)
	assert.Len(t, res.Orders, 3)
	broker.AssertExpectations(t)
}

func TestExecuteOpenBracketFailureKeepsEntryOrder(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})

	broker.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	broker.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(exchange.Order{OrderID: "entry", AvgPrice: 100}, nil)
	broker.On("SetStopLossTakeProfit", mock.Anything, mock.Anything).
		Return([]exchange.Order{{OrderID: "sl"}}, errors.New("take profit rejected"))

	res := eng.Execute(context.Background(), Request{
		Decision:     decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionOpenLong, Leverage: 1},
		Balance:      balance(1000),
		CurrentPrice: 100,
	})
	assert.False(t, res.Success())
	assert.Equal(t, "Execution failed: take profit rejected", res.Message)
	require.Len(t, res.Orders, 3)
	assert.Equal(t, exchange.OrderLeverage, res.Orders[0].Type)
	assert.Equal(t, "entry", res.Orders[1].OrderID)
	assert.Equal(t, "sl", res.Orders[2].OrderID)
}

func TestExecuteOpenMarketOrderFailure(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})

	broker.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	broker.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(exchange.Order{}, errors.New("insufficient margin"))

	res := eng.Execute(context.Background(), Request{
		Decision:     decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionOpenLong},
		Balance:      balance(1000),
		CurrentPrice: 100,
	})
	assert.False(t, res.Success())
	assert.Equal(t, "Execution failed: insufficient margin", res.Message)
	// the leverage change already took effect and must be reconcilable
	require.Len(t, res.Orders, 1)
	assert.Equal(t, "BTCUSDT", res.Orders[0].Symbol)
	assert.Equal(t, exchange.OrderLeverage, res.Orders[0].Type)
	assert.Equal(t, exchange.StatusApplied, res.Orders[0].Status)
	assert.Empty(t, res.Orders[0].OrderID)
	broker.AssertNotCalled(t, "SetStopLossTakeProfit", mock.Anything, mock.Anything)
}

func TestExecuteOpenSizingError(t *testing.T) {
	broker := &mockBracketBroker{}
	rm := &mockRisk{}
	rm.On("PositionSize", 0.0, 10.0, 1.0, 100.0).Return(0.0, risk.ErrNoBalance)
	eng := NewEngine(broker, rm, Config{})

	res := eng.Execute(context.Background(), Request{
		Decision:     decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionOpenLong},
		Balance:      balance(0),
		CurrentPrice: 100,
	})
	assert.False(t, res.Success())
	assert.Contains(t, res.Message, "Execution failed: ")
	assert.Empty(t, broker.Calls)
	rm.AssertExpectations(t)
}

func TestExecuteWholeUnitsBroker(t *testing.T) {
	t.Run("floors quantity", func(t *testing.T) {
		broker := &mockWholeBroker{}
		eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})
		broker.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(req exchange.MarketOrderRequest) bool {
			return req.Quantity == 3 && req.ProductType == "INTRADAY"
		})).Return(exchange.Order{OrderID: "A1"}, nil)

		res := eng.Execute(context.Background(), Request{
			Decision: decision.Decision{
				Symbol: "RELIANCE-EQ", Action: decision.ActionOpenLong, PositionSizePct: 10,
				StopLoss: 2850, TakeProfit: 3050, EntryPrice: 2913.5,
			},
			Balance:      balance(100000),
			CurrentPrice: 2913.5,
		})
		require.True(t, res.Success(), res.Message)
		assert.Equal(t, 3.0, res.Quantity)
		assert.Len(t, res.Orders, 1)
		assert.Greater(t, res.StopLoss, 0.0)
		assert.Greater(t, res.TakeProfit, res.EntryPrice)
		broker.AssertExpectations(t)
	})

	t.Run("below one unit fails", func(t *testing.T) {
		broker := &mockWholeBroker{}
		eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})

		res := eng.Execute(context.Background(), Request{
			Decision:     decision.Decision{Symbol: "MRF-EQ", Action: decision.ActionOpenLong, PositionSizePct: 1},
			Balance:      balance(10000),
			CurrentPrice: 130000,
		})
		assert.False(t, res.Success())
		assert.Contains(t, res.Message, "quantity rounds to zero")
		broker.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything)
	})
}

func TestExecuteClosePosition(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})

	broker.On("CancelAllOrders", mock.Anything, "BTCUSDT").Return(nil)
	broker.On("PlaceMarketOrder", mock.Anything, exchange.MarketOrderRequest{
		Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: 0.5, ReduceOnly: true, ProductType: "INTRADAY",
	}).Return(exchange.Order{OrderID: "c1"}, nil)

	res := eng.Execute(context.Background(), Request{
		Decision: decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionCloseShort},
		Position: &exchange.Position{Symbol: "BTCUSDT", Amount: -0.5},
	})
	require.True(t, res.Success(), res.Message)
	assert.Equal(t, "close_short", res.Action)
	assert.Equal(t, "Position closed successfully", res.Message)
	require.Len(t, res.Orders, 2)
	assert.Equal(t, exchange.OrderCancelAll, res.Orders[0].Type)
	assert.Equal(t, "c1", res.Orders[1].OrderID)
	assert.Equal(t, []string{"CancelAllOrders", "PlaceMarketOrder"}, methodNames(&broker.Mock))
}

func TestExecuteCloseExitFailureReportsCancel(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})
	broker.On("CancelAllOrders", mock.Anything, "BTCUSDT").Return(nil)
	broker.On("PlaceMarketOrder", mock.Anything, mock.Anything).Return(exchange.Order{}, errors.New("rejected"))

	res := eng.Execute(context.Background(), Request{
		Decision: decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionClosePosition},
		Position: &exchange.Position{Symbol: "BTCUSDT", Amount: 1},
	})
	assert.False(t, res.Success())
	assert.Equal(t, "Execution failed: rejected", res.Message)
	// brackets are gone even though the position is still open
	require.Len(t, res.Orders, 1)
	assert.Equal(t, exchange.OrderCancelAll, res.Orders[0].Type)
	assert.Equal(t, exchange.StatusApplied, res.Orders[0].Status)
	assert.Equal(t, "BTCUSDT", res.Orders[0].Symbol)
}

func TestExecuteCloseCancelFailure(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})
	broker.On("CancelAllOrders", mock.Anything, "BTCUSDT").Return(errors.New("timeout"))

	res := eng.Execute(context.Background(), Request{
		Decision: decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionClosePosition},
		Position: &exchange.Position{Symbol: "BTCUSDT", Amount: 1},
	})
	assert.False(t, res.Success())
	assert.Equal(t, "Execution failed: timeout", res.Message)
	broker.AssertNotCalled(t, "PlaceMarketOrder", mock.Anything, mock.Anything)
}

func TestExecuteReducePosition(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{HedgeMode: true})
	broker.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(req exchange.MarketOrderRequest) bool {
		return req.Side == exchange.SideSell && req.Quantity == 0.5 && req.ReduceOnly && req.PositionSide == exchange.PositionLong
	})).Return(exchange.Order{OrderID: "r1"}, nil)

	res := eng.Execute(context.Background(), Request{
		Decision: decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionReducePosition},
		Position: &exchange.Position{Symbol: "BTCUSDT", Amount: 1},
	})
	require.True(t, res.Success(), res.Message)
	assert.Equal(t, "Position reduced successfully", res.Message)
	assert.Equal(t, 0.5, res.Quantity)
	broker.AssertNotCalled(t, "CancelAllOrders", mock.Anything, mock.Anything)
}

func TestExecuteAddPositionFollowsExistingSide(t *testing.T) {
	broker := &mockBracketBroker{}
	eng := NewEngine(broker, risk.NewDefault(risk.Config{}), Config{})
	broker.On("SetLeverage", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	broker.On("PlaceMarketOrder", mock.Anything, mock.MatchedBy(func(req exchange.MarketOrderRequest) bool {
		return req.Side == exchange.SideSell && !req.ReduceOnly
	})).Return(exchange.Order{OrderID: "a1", AvgPrice: 100}, nil)
	broker.On("SetStopLossTakeProfit", mock.Anything, mock.Anything).Return([]exchange.Order{}, nil)

	res := eng.Execute(context.Background(), Request{
		// a long-looking hint is ignored in favour of the open short
		Decision:     decision.Decision{Symbol: "BTCUSDT", Action: decision.ActionAddPosition, Side: "long"},
		Balance:      balance(1000),
		Position:     &exchange.Position{Symbol: "BTCUSDT", Amount: -2},
		CurrentPrice: 100,
	})
	require.True(t, res.Success(), res.Message)
	assert.Equal(t, "Short position opened successfully", res.Message)
	assert.Greater(t, res.StopLoss, res.EntryPrice)
	broker.AssertExpectations(t)
}

func TestPositionPct(t *testing.T) {
	eng := NewEngine(&mockBroker{}, risk.NewDefault(risk.Config{}), Config{DefaultPositionPct: 7})
	bal := balance(1000)

	assert.Equal(t, 12.0, eng.positionPct(decision.Decision{PositionSizePct: 12, PositionSizeUSD: 500}, bal))
	assert.Equal(t, 50.0, eng.positionPct(decision.Decision{PositionSizeUSD: 500}, bal))
	assert.Equal(t, 7.0, eng.positionPct(decision.Decision{}, bal))
}

func TestResultJSON(t *testing.T) {
	res := Result{Outcome: OutcomeOK, Action: "hold", Symbol: "BTCUSDT", Message: "Hold - no action taken"}
	raw, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"success":true`)
	assert.Contains(t, string(raw), `"orders":[]`)

	var back Result
	require.NoError(t, json.Unmarshal(raw, &back))
	assert.True(t, back.Success())
	assert.Equal(t, "hold", back.Action)
}
