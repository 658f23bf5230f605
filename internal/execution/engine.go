// Package execution turns validated decisions into broker orders and a
// uniform Result. It holds no mutable state; callers must serialise calls for
// the same symbol.
package execution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"tradebot/internal/decision"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/logger"
	"tradebot/internal/risk"
	"tradebot/internal/trace"

	"go.opentelemetry.io/otel/attribute"
)

const reduceFraction = 0.5

var errZeroQuantity = errors.New("quantity rounds to zero")

// Config holds fallbacks for decisions that omit percentage fields.
type Config struct {
	// DefaultStopLossPct and DefaultTakeProfitPct are fractions of entry.
	DefaultStopLossPct   float64
	DefaultTakeProfitPct float64
	// DefaultPositionPct is a percentage of available balance.
	DefaultPositionPct float64
	// HedgeMode tags bracket-broker orders with a LONG/SHORT position side.
	HedgeMode bool
	// ProductType is passed to brokers that distinguish products.
	ProductType string
}

// Request carries one decision plus the account snapshot it runs against.
type Request struct {
	Decision     decision.Decision
	Balance      exchange.Balance
	Position     *exchange.Position
	CurrentPrice float64
}

// Engine dispatches decisions to a broker.
type Engine struct {
	broker exchange.Broker
	risk   risk.Manager
	cfg    Config
	now    func() time.Time
}

func NewEngine(broker exchange.Broker, rm risk.Manager, cfg Config) *Engine {
	if cfg.DefaultStopLossPct <= 0 {
		cfg.DefaultStopLossPct = 0.01
	}
	if cfg.DefaultTakeProfitPct <= 0 {
		cfg.DefaultTakeProfitPct = 0.02
	}
	if cfg.DefaultPositionPct <= 0 {
		cfg.DefaultPositionPct = 10
	}
	if strings.TrimSpace(cfg.ProductType) == "" {
		cfg.ProductType = "INTRADAY"
	}
	return &Engine{broker: broker, risk: rm, cfg: cfg, now: time.Now}
}

// Broker returns the bound broker.
func (e *Engine) Broker() exchange.Broker { return e.broker }

// Execute runs one decision. Expected non-events such as closing while flat
// come back as failed Results, and so does every broker or sizing error; it
// never returns an error and never retries.
func (e *Engine) Execute(ctx context.Context, req Request) (res Result) {
	d := req.Decision
	ctx, span := trace.StartSpan(ctx, "execution.Execute",
		attribute.String("symbol", d.Symbol),
		attribute.String("action", string(d.Action)),
	)
	defer span.End()

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Message = fmt.Sprintf("Execution failed: %v", r)
		}
		if res.Action == "" {
			res.Action = string(d.Action)
		}
		res.Symbol = d.Symbol
		if res.Timestamp.IsZero() {
			res.Timestamp = e.now()
		}
		span.SetAttributes(attribute.Bool("success", res.Success()))
		e.logOutcome(res)
	}()

	var err error
	switch d.Action {
	case decision.ActionHold:
		res = e.ok(d.Action, "Hold - no action taken")
	case decision.ActionWait:
		res = e.ok(d.Action, "Wait - no action taken")
	case decision.ActionOpenLong:
		res, err = e.open(ctx, req, risk.Long)
	case decision.ActionOpenShort:
		res, err = e.open(ctx, req, risk.Short)
	case decision.ActionClosePosition:
		res, err = e.closePosition(ctx, req, "")
	case decision.ActionCloseLong:
		res, err = e.closePosition(ctx, req, risk.Long)
	case decision.ActionCloseShort:
		res, err = e.closePosition(ctx, req, risk.Short)
	case decision.ActionAddPosition:
		res, err = e.addPosition(ctx, req)
	case decision.ActionReducePosition:
		res, err = e.reducePosition(ctx, req)
	default:
		res = e.failed(d.Action, "Unknown action: "+string(d.Action))
	}
	if err != nil {
		trace.Fail(span, err)
		res.Outcome = OutcomeFailed
		res.Message = "Execution failed: " + err.Error()
	}
	return res
}

func (e *Engine) ok(action decision.Action, msg string) Result {
	return Result{Outcome: OutcomeOK, Action: string(action), Timestamp: e.now(), Message: msg}
}

func (e *Engine) failed(action decision.Action, msg string) Result {
	return Result{Outcome: OutcomeFailed, Action: string(action), Timestamp: e.now(), Message: msg}
}

// step records an account-level change that already reached the broker.
func (e *Engine) step(typ exchange.OrderType, symbol string) exchange.Order {
	return exchange.Order{Symbol: symbol, Type: typ, Status: exchange.StatusApplied, Time: e.now()}
}

func (e *Engine) logOutcome(res Result) {
	l := logger.With(
		"action", res.Action,
		"symbol", res.Symbol,
		"success", res.Success(),
		"orders", len(res.Orders),
		"message", res.Message,
	)
	if res.Quantity != 0 {
		l = l.With("quantity", res.Quantity)
	}
	if res.EntryPrice != 0 {
		l = l.With("entry_price", res.EntryPrice)
	}
	if res.Success() {
		l.Info("execution")
	} else {
		l.Warn("execution")
	}
}

// wholeUnits floors qty for brokers that reject fractions.
func (e *Engine) wholeUnits(qty float64) (float64, error) {
	if !exchange.RequiresWholeUnits(e.broker) {
		return qty, nil
	}
	whole := math.Floor(qty)
	if whole < 1 {
		return 0, fmt.Errorf("%w: %v is below one whole unit", errZeroQuantity, qty)
	}
	return whole, nil
}
