package binance

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"tradebot/internal/logger"
	"tradebot/internal/pkg/convert"
	"tradebot/internal/precision"
)

// symbolFilters are the LOT_SIZE and PRICE_FILTER increments of one symbol.
type symbolFilters struct {
	StepSize string
	MinQty   string
	TickSize string
}

func (b *Broker) filters(ctx context.Context, symbol string) (symbolFilters, bool) {
	b.mu.RLock()
	loaded := b.symbolFilters != nil
	f, ok := b.symbolFilters[symbol]
	b.mu.RUnlock()
	if loaded {
		return f, ok
	}
	_, err, _ := b.infoGroup.Do("exchangeInfo", func() (any, error) {
		return nil, b.loadFilters(ctx)
	})
	if err != nil {
		logger.Warnf("[binance] exchange info unavailable, sending unrounded values: %v", err)
		return symbolFilters{}, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	f, ok = b.symbolFilters[symbol]
	return f, ok
}

func (b *Broker) loadFilters(ctx context.Context) error {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("exchange info: %w", err)
	}
	out := make(map[string]symbolFilters, len(info.Symbols))
	for _, s := range info.Symbols {
		var f symbolFilters
		for _, filter := range s.Filters {
			switch filter["filterType"] {
			case "LOT_SIZE":
				f.StepSize, _ = filter["stepSize"].(string)
				f.MinQty, _ = filter["minQty"].(string)
			case "PRICE_FILTER":
				f.TickSize, _ = filter["tickSize"].(string)
			}
		}
		out[s.Symbol] = f
	}
	b.mu.Lock()
	b.symbolFilters = out
	b.mu.Unlock()
	return nil
}

// formatQty floors qty to the symbol's step size.
func (b *Broker) formatQty(ctx context.Context, symbol string, qty float64) (string, error) {
	f, ok := b.filters(ctx, symbol)
	if !ok || isZeroStep(f.StepSize) {
		return strconv.FormatFloat(qty, 'f', -1, 64), nil
	}
	d, err := precision.RoundQty(qty, f.StepSize)
	if err != nil {
		return "", err
	}
	if !d.IsPositive() {
		return "", fmt.Errorf("quantity %v is below step size %s for %s", qty, f.StepSize, symbol)
	}
	return d.String(), nil
}

// formatPrice floors price to the symbol's tick size.
func (b *Broker) formatPrice(ctx context.Context, symbol string, price float64) (string, error) {
	f, ok := b.filters(ctx, symbol)
	if !ok || isZeroStep(f.TickSize) {
		return strconv.FormatFloat(price, 'f', -1, 64), nil
	}
	d, err := precision.RoundPrice(price, f.TickSize)
	if err != nil {
		return "", err
	}
	return d.String(), nil
}

func isZeroStep(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || convert.ToFloat64(s) == 0
}
