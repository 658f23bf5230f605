// Package binance implements exchange.BracketBroker on Binance USDⓈ-M futures.
package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"tradebot/internal/gateway/exchange"
	"tradebot/internal/logger"
	"tradebot/internal/pkg/convert"
	symbolpkg "tradebot/internal/pkg/symbol"

	"github.com/adshao/go-binance/v2/futures"
	"golang.org/x/sync/singleflight"
)

type Broker struct {
	cfg    Config
	client *futures.Client

	mu            sync.RWMutex
	symbolFilters map[string]symbolFilters
	infoGroup     singleflight.Group
}

var _ exchange.BracketBroker = (*Broker)(nil)

func New(cfg Config) (*Broker, error) {
	final := cfg.withDefaults()
	client, err := final.newClient()
	if err != nil {
		return nil, err
	}
	return &Broker{cfg: final, client: client}, nil
}

func (b *Broker) Name() string { return "binance" }

func venueSymbol(sym string) string {
	return symbolpkg.Binance.ToExchange(sym)
}

func (b *Broker) PlaceMarketOrder(ctx context.Context, req exchange.MarketOrderRequest) (exchange.Order, error) {
	sym := venueSymbol(req.Symbol)
	if sym == "" {
		return exchange.Order{}, fmt.Errorf("symbol is required")
	}
	qty, err := b.formatQty(ctx, sym, req.Quantity)
	if err != nil {
		return exchange.Order{}, err
	}
	svc := b.client.NewCreateOrderService().
		Symbol(sym).
		Side(futures.SideType(req.Side)).
		Type(futures.OrderTypeMarket).
		Quantity(qty).
		NewOrderResponseType(futures.NewOrderRespTypeRESULT)
	if req.PositionSide != "" {
		svc = svc.PositionSide(futures.PositionSideType(req.PositionSide))
	}
	// reduceOnly is rejected in hedge mode, where the leg already implies it
	if req.ReduceOnly && (req.PositionSide == "" || req.PositionSide == exchange.PositionBoth) {
		svc = svc.ReduceOnly(true)
	}
	resp, err := svc.Do(ctx)
	if err != nil {
		return exchange.Order{}, fmt.Errorf("market %s %s %s: %w", req.Side, qty, sym, err)
	}
	logger.Infof("[binance] market order placed: %s %s %s (positionSide=%s)", req.Side, qty, sym, req.PositionSide)
	return convertOrder(resp), nil
}

func (b *Broker) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	sym := venueSymbol(symbol)
	_, err := b.client.NewChangeLeverageService().Symbol(sym).Leverage(leverage).Do(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "No need to change") {
			return nil
		}
		return fmt.Errorf("set leverage %dx for %s: %w", leverage, sym, err)
	}
	return nil
}

// SetStopLossTakeProfit places close-position STOP_MARKET and
// TAKE_PROFIT_MARKET orders against the live position. When the position is
// already flat it places nothing.
func (b *Broker) SetStopLossTakeProfit(ctx context.Context, req exchange.BracketRequest) ([]exchange.Order, error) {
	sym := venueSymbol(req.Symbol)
	pos, err := b.position(ctx, sym, req.PositionSide)
	if err != nil {
		return nil, err
	}
	if !pos.IsOpen() {
		logger.Warnf("[binance] no %s position, cannot set SL/TP", sym)
		return nil, nil
	}
	var orders []exchange.Order
	legs := []struct {
		price float64
		typ   futures.OrderType
		name  string
	}{
		{req.StopLoss, futures.OrderTypeStopMarket, "stop loss"},
		{req.TakeProfit, futures.OrderTypeTakeProfitMarket, "take profit"},
	}
	for _, leg := range legs {
		if leg.price <= 0 {
			continue
		}
		stop, err := b.formatPrice(ctx, sym, leg.price)
		if err != nil {
			return orders, err
		}
		svc := b.client.NewCreateOrderService().
			Symbol(sym).
			Side(futures.SideType(pos.CloseSide())).
			Type(leg.typ).
			StopPrice(stop).
			ClosePosition(true)
		if req.PositionSide != "" {
			svc = svc.PositionSide(futures.PositionSideType(req.PositionSide))
		}
		resp, err := svc.Do(ctx)
		if err != nil {
			return orders, fmt.Errorf("%s at %s: %w", leg.name, stop, err)
		}
		logger.Infof("[binance] %s set: %s %s", leg.name, sym, stop)
		orders = append(orders, convertOrder(resp))
	}
	return orders, nil
}

func (b *Broker) CancelAllOrders(ctx context.Context, symbol string) error {
	sym := venueSymbol(symbol)
	if err := b.client.NewCancelAllOpenOrdersService().Symbol(sym).Do(ctx); err != nil {
		return fmt.Errorf("cancel orders %s: %w", sym, err)
	}
	logger.Infof("[binance] cancelled all %s orders", sym)
	return nil
}

func (b *Broker) GetPosition(ctx context.Context, symbol string) (*exchange.Position, error) {
	return b.position(ctx, venueSymbol(symbol), "")
}

// position returns the first non-zero leg, or the requested hedge leg.
func (b *Broker) position(ctx context.Context, sym string, leg exchange.PositionSide) (*exchange.Position, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(sym).Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("position %s: %w", sym, err)
	}
	for _, r := range risks {
		if r == nil || !strings.EqualFold(r.Symbol, sym) {
			continue
		}
		if leg != "" && leg != exchange.PositionBoth && !strings.EqualFold(string(r.PositionSide), string(leg)) {
			continue
		}
		amt := convert.ToFloat64(r.PositionAmt)
		if amt == 0 {
			continue
		}
		lev, _ := strconv.Atoi(strings.TrimSpace(r.Leverage))
		return &exchange.Position{
			Symbol:           r.Symbol,
			Amount:           amt,
			EntryPrice:       convert.ToFloat64(r.EntryPrice),
			MarkPrice:        convert.ToFloat64(r.MarkPrice),
			Leverage:         lev,
			UnrealizedPnL:    convert.ToFloat64(r.UnRealizedProfit),
			LiquidationPrice: convert.ToFloat64(r.LiquidationPrice),
		}, nil
	}
	return nil, nil
}

func (b *Broker) GetBalance(ctx context.Context) (exchange.Balance, error) {
	acct, err := b.client.NewGetAccountService().Do(ctx)
	if err != nil {
		return exchange.Balance{}, fmt.Errorf("account: %w", err)
	}
	return exchange.Balance{
		Currency:      "USDT",
		Total:         convert.ToFloat64(acct.TotalWalletBalance),
		Available:     convert.ToFloat64(acct.AvailableBalance),
		UnrealizedPnL: convert.ToFloat64(acct.TotalUnrealizedProfit),
		UpdatedAt:     time.Now(),
	}, nil
}

func (b *Broker) GetPrice(ctx context.Context, symbol string) (float64, error) {
	sym := venueSymbol(symbol)
	prices, err := b.client.NewListPricesService().Symbol(sym).Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("ticker %s: %w", sym, err)
	}
	for _, p := range prices {
		if p != nil && strings.EqualFold(p.Symbol, sym) {
			return convert.ToFloat64(p.Price), nil
		}
	}
	return 0, fmt.Errorf("no price for %s", sym)
}

func convertOrder(resp *futures.CreateOrderResponse) exchange.Order {
	if resp == nil {
		return exchange.Order{}
	}
	o := exchange.Order{
		OrderID:      strconv.FormatInt(resp.OrderID, 10),
		ClientID:     resp.ClientOrderID,
		Symbol:       resp.Symbol,
		Side:         exchange.OrderSide(resp.Side),
		Type:         exchange.OrderType(resp.Type),
		Status:       string(resp.Status),
		Quantity:     convert.ToFloat64(resp.OrigQuantity),
		ExecutedQty:  convert.ToFloat64(resp.ExecutedQuantity),
		AvgPrice:     convert.ToFloat64(resp.AvgPrice),
		StopPrice:    convert.ToFloat64(resp.StopPrice),
		ReduceOnly:   resp.ReduceOnly,
		PositionSide: exchange.PositionSide(resp.PositionSide),
	}
	if resp.UpdateTime > 0 {
		o.Time = time.UnixMilli(resp.UpdateTime)
	}
	return o
}
