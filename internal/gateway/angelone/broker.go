package angelone

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"tradebot/internal/gateway/exchange"
	"tradebot/internal/logger"
	symbolpkg "tradebot/internal/pkg/symbol"
)

// Broker places market orders in whole shares. It has no exchange-side
// bracket support, so the engine only returns computed stop and take levels.
type Broker struct {
	cfg         Config
	client      *Client
	instruments *instruments
	now         func() time.Time
}

var (
	_ exchange.Broker     = (*Broker)(nil)
	_ exchange.WholeUnits = (*Broker)(nil)
)

func New(cfg Config) *Broker {
	c := NewClient(cfg)
	return &Broker{
		cfg:         c.cfg,
		client:      c,
		instruments: newInstruments(c.cfg.InstrumentURL, c.http, c.cfg.SymbolTokens),
		now:         time.Now,
	}
}

func (b *Broker) Name() string { return "angelone" }

func (b *Broker) WholeUnits() bool { return true }

// Client exposes the underlying SmartAPI session.
func (b *Broker) Client() *Client { return b.client }

func (b *Broker) resolve(ctx context.Context, symbol string) (Instrument, error) {
	return b.instruments.Lookup(ctx, b.cfg.Exchange, symbolpkg.AngelOne.ToExchange(symbol))
}

func (b *Broker) PlaceMarketOrder(ctx context.Context, req exchange.MarketOrderRequest) (exchange.Order, error) {
	if req.Quantity != math.Trunc(req.Quantity) || req.Quantity < 1 {
		return exchange.Order{}, fmt.Errorf("quantity must be a positive whole number, got %v", req.Quantity)
	}
	inst, err := b.resolve(ctx, req.Symbol)
	if err != nil {
		return exchange.Order{}, err
	}
	product := req.ProductType
	if strings.TrimSpace(product) == "" {
		product = b.cfg.ProductType
	}
	qty := int(req.Quantity)
	id, err := b.client.PlaceOrder(ctx, OrderParams{
		Variety:         b.cfg.Variety,
		TradingSymbol:   inst.TradingSymbol,
		SymbolToken:     inst.Token,
		TransactionType: string(req.Side),
		Exchange:        inst.Exchange,
		OrderType:       "MARKET",
		ProductType:     product,
		Duration:        b.cfg.Duration,
		Quantity:        qty,
	})
	if err != nil {
		return exchange.Order{}, err
	}
	order := exchange.Order{
		OrderID:    id,
		Symbol:     inst.TradingSymbol,
		Side:       req.Side,
		Type:       exchange.OrderMarket,
		Status:     "PLACED",
		Quantity:   float64(qty),
		ReduceOnly: req.ReduceOnly,
		Time:       b.now(),
	}
	// a status miss leaves the order as placed; the engine then uses the snapshot price
	if st, err := b.OrderStatus(ctx, id); err == nil {
		order.Status = strings.ToUpper(st.Status)
		order.ExecutedQty = st.FilledQty
		order.AvgPrice = st.AveragePrice
		if strings.EqualFold(st.Status, "rejected") {
			order.Error = st.Text
			return order, fmt.Errorf("order %s rejected: %s", id, st.Text)
		}
	} else {
		logger.Warnf("[angelone] order %s status unavailable: %v", id, err)
	}
	return order, nil
}

// OrderStatus finds id in the day's order book.
func (b *Broker) OrderStatus(ctx context.Context, id string) (OrderBookEntry, error) {
	book, err := b.client.OrderBook(ctx)
	if err != nil {
		return OrderBookEntry{}, err
	}
	for _, o := range book {
		if o.OrderID == id {
			return o, nil
		}
	}
	return OrderBookEntry{}, fmt.Errorf("order %s not found", id)
}

func (b *Broker) CancelOrder(ctx context.Context, id string) error {
	return b.client.CancelOrder(ctx, b.cfg.Variety, id)
}

func (b *Broker) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	want := symbolpkg.AngelOne.ToExchange(symbol)
	rows, err := b.client.Positions(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		if !strings.EqualFold(r.TradingSymbol, want) || r.NetQty == 0 {
			continue
		}
		return &exchange.Position{
			Symbol:        r.TradingSymbol,
			Amount:        r.NetQty,
			EntryPrice:    r.AvgPrice,
			MarkPrice:     r.LTP,
			Leverage:      1,
			UnrealizedPnL: r.Unrealised,
		}, nil
	}
	return nil, nil
}

func (b *Broker) GetBalance(ctx context.Context) (exchange.Balance, error) {
	rms, err := b.client.RMS(ctx)
	if err != nil {
		return exchange.Balance{}, err
	}
	return exchange.Balance{
		Currency:      "INR",
		Total:         rms.Net,
		Available:     rms.AvailableCash,
		UnrealizedPnL: rms.M2MUnrealized,
		UpdatedAt:     b.now(),
	}, nil
}

func (b *Broker) GetPrice(ctx context.Context, symbol string) (float64, error) {
	inst, err := b.resolve(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return b.client.LTP(ctx, inst.Exchange, inst.TradingSymbol, inst.Token)
}
