package execution

import (
	"context"
	"math"

	"tradebot/internal/decision"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/logger"
	"tradebot/internal/pkg/trading"
	"tradebot/internal/risk"
)

// closePosition flattens the position. A non-empty only restricts it to
// positions on that side, as close_long and close_short require.
func (e *Engine) closePosition(ctx context.Context, req Request, only risk.Side) (Result, error) {
	d := req.Decision
	pos := req.Position
	action := d.Action
	if !pos.IsOpen() {
		return e.failed(action, noPositionMessage(only)), nil
	}
	if only == risk.Long && !pos.IsLong() || only == risk.Short && pos.IsLong() {
		return e.failed(action, noPositionMessage(only)), nil
	}

	res := Result{Action: string(action), Timestamp: e.now()}
	qty, err := e.wholeUnits(math.Abs(pos.Amount))
	if err != nil {
		return res, err
	}
	if bracket, ok := exchange.SupportsBrackets(e.broker); ok {
		if err := bracket.CancelAllOrders(ctx, d.Symbol); err != nil {
			return res, err
		}
		res.Orders = append(res.Orders, e.step(exchange.OrderCancelAll, d.Symbol))
	}
	logger.Infof("closing position: %s %v %s", pos.CloseSide(), qty, d.Symbol)
	order, err := e.broker.PlaceMarketOrder(ctx, e.exitOrder(d, pos, qty))
	if err != nil {
		return res, err
	}
	res.Orders = append(res.Orders, order)
	res.Quantity = qty
	res.Outcome = OutcomeOK
	res.Message = "Position closed successfully"
	return res, nil
}

func noPositionMessage(only risk.Side) string {
	switch only {
	case risk.Long:
		return "No long position to close"
	case risk.Short:
		return "No short position to close"
	}
	return "No position to close"
}

// reducePosition closes half of the open position.
func (e *Engine) reducePosition(ctx context.Context, req Request) (Result, error) {
	d := req.Decision
	pos := req.Position
	if !pos.IsOpen() {
		return e.failed(decision.ActionReducePosition, "No position to reduce"), nil
	}
	res := Result{Action: string(decision.ActionReducePosition), Timestamp: e.now()}
	qty, err := e.wholeUnits(trading.CloseQuantity(pos.Amount, reduceFraction))
	if err != nil {
		return res, err
	}
	order, err := e.broker.PlaceMarketOrder(ctx, e.exitOrder(d, pos, qty))
	if err != nil {
		return res, err
	}
	logger.Infof("position reduced: %v %s", qty, d.Symbol)
	res.Orders = append(res.Orders, order)
	res.Quantity = qty
	res.Outcome = OutcomeOK
	res.Message = "Position reduced successfully"
	return res, nil
}

func (e *Engine) exitOrder(d decision.Decision, pos *exchange.Position, qty float64) exchange.MarketOrderRequest {
	req := exchange.MarketOrderRequest{
		Symbol:      d.Symbol,
		Side:        pos.CloseSide(),
		Quantity:    qty,
		ReduceOnly:  true,
		ProductType: e.productType(d),
	}
	if _, ok := exchange.SupportsBrackets(e.broker); ok && e.cfg.HedgeMode {
		req.PositionSide = pos.Leg()
	}
	return req
}
