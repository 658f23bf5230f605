package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"

	"tradebot/internal/gateway/exchange"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedCall struct {
	Method string
	Path   string
	Form   url.Values
}

type fakeFutures struct {
	mu       sync.Mutex
	calls    []recordedCall
	position string
	orderErr string
}

func (f *fakeFutures) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.calls = append(f.calls, recordedCall{Method: r.Method, Path: r.URL.Path, Form: r.Form})
	position, orderErr := f.position, f.orderErr
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	switch {
	case strings.HasSuffix(r.URL.Path, "/exchangeInfo"):
		_, _ = w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT","filters":[
			{"filterType":"PRICE_FILTER","tickSize":"0.10","minPrice":"0.10","maxPrice":"1000000"},
			{"filterType":"LOT_SIZE","stepSize":"0.001","minQty":"0.001","maxQty":"1000"}]}]}`))
	case strings.HasSuffix(r.URL.Path, "/order"):
		if orderErr != "" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(orderErr))
			return
		}
		typ := r.Form.Get("type")
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","orderId":42,"clientOrderId":"c42","side":"` + r.Form.Get("side") +
			`","type":"` + typ + `","status":"FILLED","origQty":"` + r.Form.Get("quantity") +
			`","executedQty":"` + r.Form.Get("quantity") + `","avgPrice":"86000.5","stopPrice":"` + r.Form.Get("stopPrice") +
			`","updateTime":1700000000000}`))
	case strings.HasSuffix(r.URL.Path, "/leverage"):
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","leverage":` + r.Form.Get("leverage") + `,"maxNotionalValue":"1000000"}`))
	case strings.HasSuffix(r.URL.Path, "/allOpenOrders"):
		_, _ = w.Write([]byte(`{"code":200,"msg":"The operation of cancel all open order is done."}`))
	case strings.HasSuffix(r.URL.Path, "/positionRisk"):
		_, _ = w.Write([]byte(position))
	case strings.HasSuffix(r.URL.Path, "/account"):
		_, _ = w.Write([]byte(`{"totalWalletBalance":"1000.5","availableBalance":"800.25","totalUnrealizedProfit":"-3.5","assets":[],"positions":[]}`))
	case strings.HasSuffix(r.URL.Path, "/ticker/price"):
		_, _ = w.Write([]byte(`{"symbol":"BTCUSDT","price":"86123.4","time":1700000000000}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"code":-1,"msg":"unknown path"}`))
	}
}

func (f *fakeFutures) ordersPlaced() []recordedCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []recordedCall
	for _, c := range f.calls {
		if strings.HasSuffix(c.Path, "/order") {
			out = append(out, c)
		}
	}
	return out
}

func newTestBroker(t *testing.T, fake *fakeFutures) *Broker {
	t.Helper()
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)
	b, err := New(Config{APIKey: "k", SecretKey: "s", RESTBaseURL: srv.URL})
	require.NoError(t, err)
	return b
}

const longPosition = `[{"symbol":"BTCUSDT","positionAmt":"0.004","entryPrice":"86000.5","markPrice":"86100",
	"unRealizedProfit":"0.4","liquidationPrice":"43000","leverage":"2","marginType":"cross",
	"isolatedMargin":"0","positionSide":"BOTH"}]`

func TestPlaceMarketOrderFloorsQuantity(t *testing.T) {
	fake := &fakeFutures{}
	b := newTestBroker(t, fake)

	order, err := b.PlaceMarketOrder(context.Background(), exchange.MarketOrderRequest{
		Symbol: "BTC/USDT", Side: exchange.SideBuy, Quantity: 0.0046511,
	})
	require.NoError(t, err)
	assert.Equal(t, "42", order.OrderID)
	assert.Equal(t, 86000.5, order.AvgPrice)
	assert.Equal(t, exchange.SideBuy, order.Side)

	placed := fake.ordersPlaced()
	require.Len(t, placed, 1)
	assert.Equal(t, "BTCUSDT", placed[0].Form.Get("symbol"))
	assert.Equal(t, "MARKET", placed[0].Form.Get("type"))
	assert.Equal(t, "0.004", placed[0].Form.Get("quantity"))
	assert.Empty(t, placed[0].Form.Get("reduceOnly"))
}

func TestPlaceMarketOrderReduceOnly(t *testing.T) {
	fake := &fakeFutures{}
	b := newTestBroker(t, fake)

	_, err := b.PlaceMarketOrder(context.Background(), exchange.MarketOrderRequest{
		Symbol: "BTCUSDT", Side: exchange.SideSell, Quantity: 0.004, ReduceOnly: true,
	})
	require.NoError(t, err)
	placed := fake.ordersPlaced()
	require.Len(t, placed, 1)
	assert.Equal(t, "true", placed[0].Form.Get("reduceOnly"))
}

func TestPlaceMarketOrderBelowStep(t *testing.T) {
	fake := &fakeFutures{}
	b := newTestBroker(t, fake)

	_, err := b.PlaceMarketOrder(context.Background(), exchange.MarketOrderRequest{
		Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: 0.0004,
	})
	require.Error(t, err)
	assert.Empty(t, fake.ordersPlaced())
}

func TestPlaceMarketOrderAPIError(t *testing.T) {
	fake := &fakeFutures{orderErr: `{"code":-2019,"msg":"Margin is insufficient."}`}
	b := newTestBroker(t, fake)

	_, err := b.PlaceMarketOrder(context.Background(), exchange.MarketOrderRequest{
		Symbol: "BTCUSDT", Side: exchange.SideBuy, Quantity: 0.01,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Margin is insufficient")
}

func TestSetStopLossTakeProfit(t *testing.T) {
	fake := &fakeFutures{position: longPosition}
	b := newTestBroker(t, fake)

	orders, err := b.SetStopLossTakeProfit(context.Background(), exchange.BracketRequest{
		Symbol: "BTCUSDT", StopLoss: 84710.37, TakeProfit: 88580.04,
	})
	require.NoError(t, err)
	require.Len(t, orders, 2)

	placed := fake.ordersPlaced()
	require.Len(t, placed, 2)
	assert.Equal(t, "STOP_MARKET", placed[0].Form.Get("type"))
	assert.Equal(t, "84710.3", placed[0].Form.Get("stopPrice"))
	assert.Equal(t, "SELL", placed[0].Form.Get("side"))
	assert.Equal(t, "true", placed[0].Form.Get("closePosition"))
	assert.Equal(t, "TAKE_PROFIT_MARKET", placed[1].Form.Get("type"))
	assert.Equal(t, "88580", placed[1].Form.Get("stopPrice"))
}

func TestSetStopLossTakeProfitFlat(t *testing.T) {
	fake := &fakeFutures{position: `[{"symbol":"BTCUSDT","positionAmt":"0","entryPrice":"0","leverage":"2","positionSide":"BOTH"}]`}
	b := newTestBroker(t, fake)

	orders, err := b.SetStopLossTakeProfit(context.Background(), exchange.BracketRequest{
		Symbol: "BTCUSDT", StopLoss: 84710, TakeProfit: 88580,
	})
	require.NoError(t, err)
	assert.Empty(t, orders)
	assert.Empty(t, fake.ordersPlaced())
}

func TestGetPositionAndBalance(t *testing.T) {
	fake := &fakeFutures{position: longPosition}
	b := newTestBroker(t, fake)
	ctx := context.Background()

	pos, err := b.GetPosition(ctx, "BTCUSDT")
	require.NoError(t, err)
	require.NotNil(t, pos)
	assert.Equal(t, 0.004, pos.Amount)
	assert.Equal(t, 2, pos.Leverage)
	assert.True(t, pos.IsLong())

	bal, err := b.GetBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1000.5, bal.Total)
	assert.Equal(t, 800.25, bal.Available)

	price, err := b.GetPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 86123.4, price)
}

func TestLeverageAndCancel(t *testing.T) {
	fake := &fakeFutures{}
	b := newTestBroker(t, fake)
	ctx := context.Background()

	require.NoError(t, b.SetLeverage(ctx, "BTCUSDT", 3))
	require.NoError(t, b.CancelAllOrders(ctx, "BTCUSDT"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	require.Len(t, fake.calls, 2)
	assert.Equal(t, "3", fake.calls[0].Form.Get("leverage"))
	assert.Equal(t, http.MethodDelete, fake.calls[1].Method)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{Testnet: true}
	final := cfg.withDefaults()
	assert.Equal(t, testnetURL, final.RESTBaseURL)
	assert.Positive(t, final.HTTPTimeout)

	cfg = Config{RESTBaseURL: " https://example.test/ "}
	assert.Equal(t, "https://example.test", cfg.withDefaults().RESTBaseURL)
}
