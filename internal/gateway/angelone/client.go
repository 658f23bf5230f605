// Package angelone talks to the Angel One SmartAPI REST interface and exposes
// it as an exchange.Broker for NSE/BSE cash and F&O trading.
package angelone

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"tradebot/internal/logger"
	"tradebot/internal/pkg/convert"
	"tradebot/internal/pkg/text"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/singleflight"
)

const (
	pathLogin       = "/rest/auth/angelbroking/user/v1/loginByPassword"
	pathPlaceOrder  = "/rest/secure/angelbroking/order/v1/placeOrder"
	pathCancelOrder = "/rest/secure/angelbroking/order/v1/cancelOrder"
	pathOrderBook   = "/rest/secure/angelbroking/order/v1/getOrderBook"
	pathPositions   = "/rest/secure/angelbroking/order/v1/getPosition"
	pathRMS         = "/rest/secure/angelbroking/user/v1/getRMS"
	pathLTP         = "/rest/secure/angelbroking/order/v1/getLtpData"
)

// invalid or expired session
const errCodeInvalidToken = "AG8001"

var ErrSession = errors.New("smartapi session rejected")

// APIError is a SmartAPI response with status false.
type APIError struct {
	Path      string
	ErrorCode string
	Message   string
}

func (e *APIError) Error() string {
	if e.ErrorCode != "" {
		return fmt.Sprintf("smartapi %s: %s (%s)", e.Path, e.Message, e.ErrorCode)
	}
	return fmt.Sprintf("smartapi %s: %s", e.Path, e.Message)
}

// Client is a SmartAPI session. It logs in lazily and once more when the
// venue rejects the token.
type Client struct {
	cfg  Config
	http *resty.Client
	now  func() time.Time

	mu     sync.RWMutex
	jwt    string
	logins singleflight.Group
}

func NewClient(cfg Config) *Client {
	final := cfg.withDefaults()
	hc := resty.New().
		SetBaseURL(final.BaseURL).
		SetTimeout(final.HTTPTimeout).
		SetHeaders(map[string]string{
			"Content-Type":     "application/json",
			"Accept":           "application/json",
			"X-UserType":       "USER",
			"X-SourceID":       "WEB",
			"X-ClientLocalIP":  final.ClientLocalIP,
			"X-ClientPublicIP": final.ClientPublicIP,
			"X-MACAddress":     final.MACAddress,
			"X-PrivateKey":     final.APIKey,
		})
	return &Client{cfg: final, http: hc, now: time.Now}
}

func (c *Client) token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.jwt
}

// Login exchanges client code, password and a fresh TOTP for a JWT.
func (c *Client) Login(ctx context.Context) error {
	_, err, _ := c.logins.Do("login", func() (any, error) {
		code, err := totp.GenerateCode(c.cfg.TOTPSecret, c.now())
		if err != nil {
			return nil, fmt.Errorf("totp: %w", err)
		}
		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("X-Request-Id", uuid.NewString()).
			SetBody(map[string]string{
				"clientcode": c.cfg.ClientCode,
				"password":   c.cfg.Password,
				"totp":       code,
			}).
			Post(pathLogin)
		if err != nil {
			return nil, fmt.Errorf("login: %w", err)
		}
		body, err := checkResponse(pathLogin, resp)
		if err != nil {
			return nil, err
		}
		jwt := body.Get("data.jwtToken").String()
		if jwt == "" {
			return nil, fmt.Errorf("%w: login returned no token", ErrSession)
		}
		c.mu.Lock()
		c.jwt = strings.TrimPrefix(jwt, "Bearer ")
		c.mu.Unlock()
		logger.Infof("[angelone] logged in as %s", c.cfg.ClientCode)
		return nil, nil
	})
	return err
}

// call issues an authenticated request and retries once after re-login when
// the session is rejected.
func (c *Client) call(ctx context.Context, method, path string, body any) (gjson.Result, error) {
	if c.token() == "" {
		if err := c.Login(ctx); err != nil {
			return gjson.Result{}, err
		}
	}
	out, err := c.send(ctx, method, path, body)
	if errors.Is(err, ErrSession) {
		c.mu.Lock()
		c.jwt = ""
		c.mu.Unlock()
		if err := c.Login(ctx); err != nil {
			return gjson.Result{}, err
		}
		out, err = c.send(ctx, method, path, body)
	}
	return out, err
}

func (c *Client) send(ctx context.Context, method, path string, body any) (gjson.Result, error) {
	req := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.token()).
		SetHeader("X-Request-Id", uuid.NewString())
	if body != nil {
		req = req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("smartapi %s: %w", path, err)
	}
	return checkResponse(path, resp)
}

func checkResponse(path string, resp *resty.Response) (gjson.Result, error) {
	raw := resp.Body()
	if resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden {
		return gjson.Result{}, fmt.Errorf("%w: %s HTTP %d", ErrSession, path, resp.StatusCode())
	}
	if !gjson.ValidBytes(raw) {
		return gjson.Result{}, fmt.Errorf("smartapi %s: HTTP %d: non-JSON body %q", path, resp.StatusCode(), text.Truncate(resp.String(), 200))
	}
	res := gjson.ParseBytes(raw)
	if !res.Get("status").Bool() {
		apiErr := &APIError{
			Path:      path,
			ErrorCode: res.Get("errorcode").String(),
			Message:   res.Get("message").String(),
		}
		if apiErr.ErrorCode == errCodeInvalidToken {
			return res, fmt.Errorf("%w: %w", ErrSession, apiErr)
		}
		return res, apiErr
	}
	return res, nil
}

// PlaceOrder submits an order and returns the venue order id.
func (c *Client) PlaceOrder(ctx context.Context, p OrderParams) (string, error) {
	p, err := p.normalize()
	if err != nil {
		return "", err
	}
	res, err := c.call(ctx, http.MethodPost, pathPlaceOrder, p.payload())
	if err != nil {
		return "", err
	}
	id := res.Get("data.orderid").String()
	if id == "" {
		id = res.Get("data").String()
	}
	logger.Infof("[angelone] order placed: %s %d %s @ %s (%s)", p.TransactionType, p.Quantity, p.TradingSymbol, p.OrderType, id)
	return id, nil
}

func (c *Client) CancelOrder(ctx context.Context, variety, orderID string) error {
	if strings.TrimSpace(orderID) == "" {
		return errors.New("order id is required")
	}
	v, err := oneOf("variety", upperOr(variety, c.cfg.Variety), validVarieties)
	if err != nil {
		return err
	}
	_, err = c.call(ctx, http.MethodPost, pathCancelOrder, map[string]string{"variety": v, "orderid": orderID})
	return err
}

// OrderBookEntry is one row of the day's order book.
type OrderBookEntry struct {
	OrderID       string
	TradingSymbol string
	Side          string
	OrderType     string
	Status        string
	Quantity      float64
	FilledQty     float64
	AveragePrice  float64
	Text          string
}

func (c *Client) OrderBook(ctx context.Context) ([]OrderBookEntry, error) {
	res, err := c.call(ctx, http.MethodGet, pathOrderBook, nil)
	if err != nil {
		return nil, err
	}
	var out []OrderBookEntry
	res.Get("data").ForEach(func(_, row gjson.Result) bool {
		out = append(out, OrderBookEntry{
			OrderID:       first(row, "orderid", "uniqueorderid").String(),
			TradingSymbol: row.Get("tradingsymbol").String(),
			Side:          row.Get("transactiontype").String(),
			OrderType:     row.Get("ordertype").String(),
			Status:        first(row, "orderstatus", "status").String(),
			Quantity:      num(row, "quantity"),
			FilledQty:     num(row, "filledshares"),
			AveragePrice:  num(row, "averageprice"),
			Text:          row.Get("text").String(),
		})
		return true
	})
	return out, nil
}

// PositionEntry is one row of the net position book.
type PositionEntry struct {
	TradingSymbol string
	Exchange      string
	ProductType   string
	NetQty        float64
	AvgPrice      float64
	LTP           float64
	Unrealised    float64
}

func (c *Client) Positions(ctx context.Context) ([]PositionEntry, error) {
	res, err := c.call(ctx, http.MethodGet, pathPositions, nil)
	if err != nil {
		return nil, err
	}
	var out []PositionEntry
	res.Get("data").ForEach(func(_, row gjson.Result) bool {
		qty := num(row, "netqty", "quantity")
		if qty == 0 && !first(row, "netqty", "quantity").Exists() {
			qty = num(row, "buyqty") - num(row, "sellqty")
		}
		out = append(out, PositionEntry{
			TradingSymbol: first(row, "tradingsymbol", "symbol").String(),
			Exchange:      row.Get("exchange").String(),
			ProductType:   row.Get("producttype").String(),
			NetQty:        qty,
			AvgPrice:      num(row, "avgnetprice", "averageprice", "buyavgprice"),
			LTP:           num(row, "ltp", "lastprice"),
			Unrealised:    num(row, "unrealised", "pnl"),
		})
		return true
	})
	return out, nil
}

// RMS is the account's risk management limits.
type RMS struct {
	Net           float64
	AvailableCash float64
	M2MUnrealized float64
}

func (c *Client) RMS(ctx context.Context) (RMS, error) {
	res, err := c.call(ctx, http.MethodGet, pathRMS, nil)
	if err != nil {
		return RMS{}, err
	}
	data := res.Get("data")
	return RMS{
		Net:           num(data, "net", "total"),
		AvailableCash: num(data, "availablecash", "available", "cash"),
		M2MUnrealized: num(data, "m2munrealized", "unrealised"),
	}, nil
}

func (c *Client) LTP(ctx context.Context, exchange, tradingSymbol, token string) (float64, error) {
	res, err := c.call(ctx, http.MethodPost, pathLTP, map[string]string{
		"exchange":      exchange,
		"tradingsymbol": tradingSymbol,
		"symboltoken":   token,
	})
	if err != nil {
		return 0, err
	}
	px := num(res.Get("data"), "ltp", "last_price", "close")
	if px <= 0 {
		return 0, fmt.Errorf("no LTP for %s", tradingSymbol)
	}
	return px, nil
}

// first returns the first present key, SmartAPI having renamed several
// fields across versions.
func first(row gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := row.Get(k); v.Exists() && v.String() != "" {
			return v
		}
	}
	return gjson.Result{}
}

// num reads numbers SmartAPI sends either as JSON numbers or numeric strings.
func num(row gjson.Result, keys ...string) float64 {
	return convert.ToFloat64(first(row, keys...).Value())
}
