package angelone

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"tradebot/internal/logger"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

var ErrUnknownSymbol = errors.New("symbol not found in instrument master")

// Instrument identifies a tradable contract at the venue.
type Instrument struct {
	Exchange      string
	TradingSymbol string
	Token         string
	LotSize       int
}

// instruments resolves trading symbols to SmartAPI tokens, from the pinned
// map first and the public scrip master otherwise.
type instruments struct {
	url    string
	http   *resty.Client
	pinned map[string]string

	group  singleflight.Group
	mu     sync.RWMutex
	master map[string]Instrument
}

func newInstruments(url string, hc *resty.Client, pinned map[string]string) *instruments {
	p := make(map[string]string, len(pinned))
	for sym, tok := range pinned {
		p[strings.ToUpper(strings.TrimSpace(sym))] = strings.TrimSpace(tok)
	}
	return &instruments{url: url, http: hc, pinned: p}
}

func instrumentKey(exchange, symbol string) string {
	return strings.ToUpper(exchange) + ":" + strings.ToUpper(symbol)
}

func (in *instruments) Lookup(ctx context.Context, exchange, tradingSymbol string) (Instrument, error) {
	sym := strings.ToUpper(strings.TrimSpace(tradingSymbol))
	if tok, ok := in.pinned[sym]; ok && tok != "" {
		return Instrument{Exchange: exchange, TradingSymbol: sym, Token: tok, LotSize: 1}, nil
	}
	in.mu.RLock()
	loaded := in.master != nil
	inst, ok := in.master[instrumentKey(exchange, sym)]
	in.mu.RUnlock()
	if ok {
		return inst, nil
	}
	if loaded {
		return Instrument{}, fmt.Errorf("%w: %s on %s", ErrUnknownSymbol, sym, exchange)
	}
	if _, err, _ := in.group.Do("master", func() (any, error) { return nil, in.load(ctx) }); err != nil {
		return Instrument{}, err
	}
	in.mu.RLock()
	inst, ok = in.master[instrumentKey(exchange, sym)]
	in.mu.RUnlock()
	if !ok {
		return Instrument{}, fmt.Errorf("%w: %s on %s", ErrUnknownSymbol, sym, exchange)
	}
	return inst, nil
}

func (in *instruments) load(ctx context.Context) error {
	resp, err := in.http.R().SetContext(ctx).Get(in.url)
	if err != nil {
		return fmt.Errorf("instrument master: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("instrument master: HTTP %d", resp.StatusCode())
	}
	raw := resp.Body()
	if !gjson.ValidBytes(raw) {
		return errors.New("instrument master: invalid JSON")
	}
	master := make(map[string]Instrument)
	gjson.ParseBytes(raw).ForEach(func(_, row gjson.Result) bool {
		exch := row.Get("exch_seg").String()
		sym := row.Get("symbol").String()
		tok := row.Get("token").String()
		if exch == "" || sym == "" || tok == "" {
			return true
		}
		lot := int(num(row, "lotsize"))
		if lot < 1 {
			lot = 1
		}
		master[instrumentKey(exch, sym)] = Instrument{Exchange: exch, TradingSymbol: sym, Token: tok, LotSize: lot}
		return true
	})
	in.mu.Lock()
	in.master = master
	in.mu.Unlock()
	logger.Infof("[angelone] loaded %d instruments", len(master))
	return nil
}
