package execution

import (
	"context"
	"math"

	"tradebot/internal/decision"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/logger"
	"tradebot/internal/risk"
)

func (e *Engine) open(ctx context.Context, req Request, side risk.Side) (Result, error) {
	d := req.Decision
	action := decision.ActionOpenLong
	orderSide := exchange.SideBuy
	leg := exchange.PositionLong
	msg := "Long position opened successfully"
	if side == risk.Short {
		action = decision.ActionOpenShort
		orderSide = exchange.SideSell
		leg = exchange.PositionShort
		msg = "Short position opened successfully"
	}
	res := Result{Action: string(action), Timestamp: e.now()}

	qty, err := e.risk.PositionSize(req.Balance.Available, e.positionPct(d, req.Balance), float64(d.LeverageInt()), req.CurrentPrice)
	if err != nil {
		return res, err
	}
	if qty, err = e.wholeUnits(qty); err != nil {
		return res, err
	}

	order := exchange.MarketOrderRequest{
		Symbol:      d.Symbol,
		Side:        orderSide,
		Quantity:    qty,
		ProductType: e.productType(d),
	}
	bracket, hasBrackets := exchange.SupportsBrackets(e.broker)
	if hasBrackets {
		if err := bracket.SetLeverage(ctx, d.Symbol, d.LeverageInt()); err != nil {
			logger.Warnf("set leverage %dx for %s failed: %v", d.LeverageInt(), d.Symbol, err)
		} else {
			res.Orders = append(res.Orders, e.step(exchange.OrderLeverage, d.Symbol))
		}
		if e.cfg.HedgeMode {
			order.PositionSide = leg
		}
	}
	placed, err := e.broker.PlaceMarketOrder(ctx, order)
	if err != nil {
		return res, err
	}
	res.Orders = append(res.Orders, placed)
	res.Quantity = qty

	entry := req.CurrentPrice
	if placed.AvgPrice > 0 {
		entry = placed.AvgPrice
	}
	res.EntryPrice = entry

	slPct, tpPct := e.bracketPcts(d, req.CurrentPrice)
	if res.StopLoss, err = e.risk.StopLossPrice(entry, slPct, side); err != nil {
		return res, err
	}
	if res.TakeProfit, err = e.risk.TakeProfitPrice(entry, tpPct, side); err != nil {
		return res, err
	}

	if hasBrackets {
		br := exchange.BracketRequest{Symbol: d.Symbol, StopLoss: res.StopLoss, TakeProfit: res.TakeProfit}
		if e.cfg.HedgeMode {
			br.PositionSide = leg
		}
		protective, err := bracket.SetStopLossTakeProfit(ctx, br)
		res.Orders = append(res.Orders, protective...)
		if err != nil {
			return res, err
		}
	}
	logger.Infof("%s opened: %v %s @ %v", side, qty, d.Symbol, entry)
	res.Outcome = OutcomeOK
	res.Message = msg
	return res, nil
}

// positionPct prefers position_size_pct, then position_size_usd as a share of
// available balance, then the configured default.
func (e *Engine) positionPct(d decision.Decision, bal exchange.Balance) float64 {
	if d.PositionSizePct > 0 {
		return d.PositionSizePct
	}
	if d.PositionSizeUSD > 0 && bal.Available > 0 {
		return d.PositionSizeUSD / bal.Available * 100
	}
	return e.cfg.DefaultPositionPct
}

// bracketPcts returns stop and take distances as fractions of entry. Explicit
// percentages win; absolute levels are converted against the decision's
// reference price so the distance survives fill slippage.
func (e *Engine) bracketPcts(d decision.Decision, currentPrice float64) (float64, float64) {
	ref := d.ReferencePrice()
	if ref <= 0 {
		ref = currentPrice
	}
	sl := d.StopLossPct
	if sl <= 0 && d.StopLoss > 0 && ref > 0 {
		sl = math.Abs(ref-d.StopLoss) / ref
	}
	if sl <= 0 {
		sl = e.cfg.DefaultStopLossPct
	}
	tp := d.TakeProfitPct
	if tp <= 0 && d.TakeProfit > 0 && ref > 0 {
		tp = math.Abs(d.TakeProfit-ref) / ref
	}
	if tp <= 0 {
		tp = e.cfg.DefaultTakeProfitPct
	}
	return sl, tp
}

func (e *Engine) productType(d decision.Decision) string {
	if d.ProductType != "" {
		return d.ProductType
	}
	return e.cfg.ProductType
}

func (e *Engine) addPosition(ctx context.Context, req Request) (Result, error) {
	pos := req.Position
	if !pos.IsOpen() {
		return e.failed(decision.ActionAddPosition, "No position to add to"), nil
	}
	side := risk.Short
	if pos.IsLong() {
		side = risk.Long
	}
	if implied, ok := impliedSide(req.Decision); ok && implied != side {
		logger.Warnf("add_position %s: decision implies %s but existing position is %s, adding %s",
			req.Decision.Symbol, implied, side, side)
	}
	return e.open(ctx, req, side)
}

// impliedSide reads the direction a decision suggests from its side hint, or
// failing that from its stop and take levels.
func impliedSide(d decision.Decision) (risk.Side, bool) {
	if s, err := risk.ParseSide(d.Side); err == nil {
		return s, true
	}
	if d.StopLoss > 0 && d.TakeProfit > 0 && d.StopLoss != d.TakeProfit {
		if d.StopLoss < d.TakeProfit {
			return risk.Long, true
		}
		return risk.Short, true
	}
	return "", false
}
