// Package paper is an in-memory BracketBroker used for dry runs. It fills
// market orders at the last known price and fires its own stop orders when
// SetPrice crosses them.
package paper

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"tradebot/internal/gateway/exchange"
	"tradebot/internal/logger"
	symbolpkg "tradebot/internal/pkg/symbol"
	"tradebot/internal/precision"

	"github.com/google/uuid"
)

var (
	ErrNoPrice             = errors.New("no price for symbol")
	ErrInsufficientBalance = errors.New("insufficient available balance")
	ErrReduceOnly          = errors.New("reduce-only order would open or flip a position")
)

// PriceSource supplies live prices, typically a real broker in dry-run mode.
type PriceSource interface {
	GetPrice(ctx context.Context, symbol string) (float64, error)
}

type Config struct {
	Balance  float64
	Currency string
	// Prices seeds the last price per symbol.
	Prices map[string]float64
	// Source, when set, is asked for a price on every fill.
	Source PriceSource
	// WholeUnits makes the engine floor quantities, as a cash-equity venue would.
	WholeUnits bool
}

type position struct {
	amount   float64
	entry    float64
	leverage int
}

type Broker struct {
	mu        sync.Mutex
	currency  string
	wallet    float64
	prices    map[string]float64
	leverage  map[string]int
	positions map[string]*position
	brackets  map[string][]exchange.Order
	history   []exchange.Order
	source    PriceSource
	whole     bool
	now       func() time.Time
}

var _ exchange.BracketBroker = (*Broker)(nil)

func New(cfg Config) *Broker {
	b := &Broker{
		currency:  cfg.Currency,
		wallet:    cfg.Balance,
		prices:    make(map[string]float64, len(cfg.Prices)),
		leverage:  make(map[string]int),
		positions: make(map[string]*position),
		brackets:  make(map[string][]exchange.Order),
		source:    cfg.Source,
		whole:     cfg.WholeUnits,
		now:       time.Now,
	}
	if b.currency == "" {
		b.currency = "USDT"
	}
	for sym, px := range cfg.Prices {
		b.prices[key(sym)] = px
	}
	return b
}

func key(sym string) string { return symbolpkg.Binance.ToExchange(sym) }

func (b *Broker) Name() string { return "paper" }

func (b *Broker) WholeUnits() bool { return b.whole }

func (b *Broker) price(ctx context.Context, sym string) (float64, error) {
	if b.source != nil {
		px, err := b.source.GetPrice(ctx, sym)
		if err == nil && px > 0 {
			b.mu.Lock()
			b.prices[key(sym)] = px
			b.mu.Unlock()
			return px, nil
		}
		if err != nil {
			logger.Warnf("[paper] price source failed for %s, using last price: %v", sym, err)
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	px, ok := b.prices[key(sym)]
	if !ok || px <= 0 {
		return 0, fmt.Errorf("%w: %s", ErrNoPrice, sym)
	}
	return px, nil
}

func (b *Broker) PlaceMarketOrder(ctx context.Context, req exchange.MarketOrderRequest) (exchange.Order, error) {
	if req.Quantity <= 0 {
		return exchange.Order{}, fmt.Errorf("quantity must be positive, got %v", req.Quantity)
	}
	px, err := b.price(ctx, req.Symbol)
	if err != nil {
		return exchange.Order{}, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.fill(key(req.Symbol), req.Side, req.Quantity, px, req.ReduceOnly); err != nil {
		return exchange.Order{}, err
	}
	order := b.record(exchange.Order{
		Symbol:       req.Symbol,
		Side:         req.Side,
		Type:         exchange.OrderMarket,
		Status:       "FILLED",
		Quantity:     req.Quantity,
		ExecutedQty:  req.Quantity,
		AvgPrice:     px,
		ReduceOnly:   req.ReduceOnly,
		PositionSide: req.PositionSide,
	})
	return order, nil
}

// fill applies a trade to the book. Callers hold b.mu.
func (b *Broker) fill(sym string, side exchange.OrderSide, qty, px float64, reduceOnly bool) error {
	signed := qty
	if side == exchange.SideSell {
		signed = -qty
	}
	pos := b.positions[sym]
	closing := pos != nil && pos.amount != 0 && math.Signbit(pos.amount) != math.Signbit(signed)
	if reduceOnly && (!closing || qty > math.Abs(pos.amount)+1e-12) {
		return ErrReduceOnly
	}

	if closing {
		closed := math.Min(qty, math.Abs(pos.amount))
		pnl, err := precision.LinearPnL(pos.entry, px, closed, pos.amount > 0)
		if err != nil {
			return err
		}
		b.wallet += precision.Float(pnl)
		remaining := pos.amount + signed
		if math.Abs(remaining) < 1e-12 {
			delete(b.positions, sym)
			delete(b.brackets, sym)
			return nil
		}
		if math.Signbit(remaining) == math.Signbit(pos.amount) {
			pos.amount = remaining
			return nil
		}
		// flipped: the excess opens a fresh position at px
		pos = nil
		delete(b.positions, sym)
		delete(b.brackets, sym)
		signed = remaining
		qty = math.Abs(remaining)
	}

	lev := b.leverage[sym]
	if lev < 1 {
		lev = 1
	}
	margin := qty * px / float64(lev)
	if margin > b.available()+1e-9 {
		return fmt.Errorf("%w: need %.4f, have %.4f", ErrInsufficientBalance, margin, b.available())
	}
	if pos == nil {
		b.positions[sym] = &position{amount: signed, entry: px, leverage: lev}
		return nil
	}
	total := pos.amount + signed
	pos.entry = (math.Abs(pos.amount)*pos.entry + qty*px) / math.Abs(total)
	pos.amount = total
	pos.leverage = lev
	return nil
}

func (b *Broker) record(o exchange.Order) exchange.Order {
	o.OrderID = uuid.NewString()
	o.Time = b.now()
	b.history = append(b.history, o)
	return o
}

func (b *Broker) marginUsed() float64 {
	var used float64
	for _, p := range b.positions {
		used += math.Abs(p.amount) * p.entry / float64(p.leverage)
	}
	return used
}

func (b *Broker) unrealized() float64 {
	var total float64
	for sym, p := range b.positions {
		px := b.prices[sym]
		if px <= 0 {
			continue
		}
		pnl, err := precision.LinearPnL(p.entry, px, math.Abs(p.amount), p.amount > 0)
		if err != nil {
			continue
		}
		total += precision.Float(pnl)
	}
	return total
}

func (b *Broker) available() float64 {
	avail := b.wallet + b.unrealized() - b.marginUsed()
	if avail < 0 {
		return 0
	}
	return avail
}

func (b *Broker) SetLeverage(_ context.Context, symbol string, leverage int) error {
	if leverage < 1 {
		return fmt.Errorf("leverage must be at least 1, got %d", leverage)
	}
	b.mu.Lock()
	b.leverage[key(symbol)] = leverage
	b.mu.Unlock()
	return nil
}

func (b *Broker) SetStopLossTakeProfit(_ context.Context, req exchange.BracketRequest) ([]exchange.Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sym := key(req.Symbol)
	pos := b.positions[sym]
	if pos == nil || pos.amount == 0 {
		logger.Warnf("[paper] no %s position, cannot set SL/TP", sym)
		return nil, nil
	}
	closeSide := exchange.SideSell
	if pos.amount < 0 {
		closeSide = exchange.SideBuy
	}
	var out []exchange.Order
	for _, leg := range []struct {
		price float64
		typ   exchange.OrderType
	}{
		{req.StopLoss, exchange.OrderStopMarket},
		{req.TakeProfit, exchange.OrderTakeProfitMarket},
	} {
		if leg.price <= 0 {
			continue
		}
		o := b.record(exchange.Order{
			Symbol:       req.Symbol,
			Side:         closeSide,
			Type:         leg.typ,
			Status:       "NEW",
			StopPrice:    leg.price,
			ReduceOnly:   true,
			PositionSide: req.PositionSide,
		})
		b.brackets[sym] = append(b.brackets[sym], o)
		out = append(out, o)
	}
	return out, nil
}

func (b *Broker) CancelAllOrders(_ context.Context, symbol string) error {
	b.mu.Lock()
	delete(b.brackets, key(symbol))
	b.mu.Unlock()
	return nil
}

func (b *Broker) GetPosition(_ context.Context, symbol string) (*exchange.Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sym := key(symbol)
	p := b.positions[sym]
	if p == nil || p.amount == 0 {
		return nil, nil
	}
	out := &exchange.Position{
		Symbol:     symbol,
		Amount:     p.amount,
		EntryPrice: p.entry,
		MarkPrice:  b.prices[sym],
		Leverage:   p.leverage,
	}
	if out.MarkPrice > 0 {
		if pnl, err := precision.LinearPnL(p.entry, out.MarkPrice, math.Abs(p.amount), p.amount > 0); err == nil {
			out.UnrealizedPnL = precision.Float(pnl)
		}
	}
	if liq, err := precision.LiquidationPrice(p.entry, p.leverage, p.amount > 0, nil, precision.Linear); err == nil {
		out.LiquidationPrice = precision.Float(liq)
	}
	return out, nil
}

func (b *Broker) GetBalance(context.Context) (exchange.Balance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return exchange.Balance{
		Currency:      b.currency,
		Total:         b.wallet,
		Available:     b.available(),
		UnrealizedPnL: b.unrealized(),
		UpdatedAt:     b.now(),
	}, nil
}

func (b *Broker) GetPrice(ctx context.Context, symbol string) (float64, error) {
	return b.price(ctx, symbol)
}

// SetPrice records a new mark price and fires any stop order it crosses.
// It returns the fills produced.
func (b *Broker) SetPrice(symbol string, px float64) []exchange.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	sym := key(symbol)
	b.prices[sym] = px
	pos := b.positions[sym]
	if pos == nil {
		return nil
	}
	for _, o := range b.brackets[sym] {
		if !triggered(o, pos.amount > 0, px) {
			continue
		}
		qty := math.Abs(pos.amount)
		if err := b.fill(sym, o.Side, qty, px, true); err != nil {
			logger.Warnf("[paper] %s %s trigger failed: %v", sym, o.Type, err)
			return nil
		}
		fill := b.record(exchange.Order{
			ClientID:    o.OrderID,
			Symbol:      o.Symbol,
			Side:        o.Side,
			Type:        o.Type,
			Status:      "FILLED",
			Quantity:    qty,
			ExecutedQty: qty,
			AvgPrice:    px,
			StopPrice:   o.StopPrice,
			ReduceOnly:  true,
		})
		logger.Infof("[paper] %s %s triggered at %v", sym, strings.ToLower(string(o.Type)), px)
		return []exchange.Order{fill}
	}
	return nil
}

func triggered(o exchange.Order, long bool, px float64) bool {
	switch o.Type {
	case exchange.OrderStopMarket:
		if long {
			return px <= o.StopPrice
		}
		return px >= o.StopPrice
	case exchange.OrderTakeProfitMarket:
		if long {
			return px >= o.StopPrice
		}
		return px <= o.StopPrice
	}
	return false
}

// Orders returns every order the broker has recorded, oldest first.
func (b *Broker) Orders() []exchange.Order {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]exchange.Order(nil), b.history...)
}
