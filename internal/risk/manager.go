// Package risk turns validated decision fields into concrete order sizes and
// protective price levels.
package risk

import (
	"errors"
	"fmt"
	"strings"

	"tradebot/internal/precision"

	"github.com/shopspring/decimal"
)

// Side is the position direction, "LONG" or "SHORT".
type Side string

const (
	Long  Side = "LONG"
	Short Side = "SHORT"
)

// ParseSide accepts long/short in any case.
func ParseSide(s string) (Side, error) {
	switch Side(strings.ToUpper(strings.TrimSpace(s))) {
	case Long:
		return Long, nil
	case Short:
		return Short, nil
	}
	return "", fmt.Errorf("unknown side %q", s)
}

var (
	ErrNoBalance   = errors.New("account balance must be positive")
	ErrNoPrice     = errors.New("price must be positive")
	ErrBadPercent  = errors.New("percentage must be non-negative")
	ErrBadLeverage = errors.New("leverage must be at least 1")
)

// Manager sizes positions and computes stop/take levels.
type Manager interface {
	// PositionSize returns the order quantity for balance*positionPct%*leverage
	// worth of notional at price.
	PositionSize(balance, positionPct, leverage, price float64) (float64, error)
	// StopLossPrice is entry moved against the position by pct (a fraction).
	StopLossPrice(entry, pct float64, side Side) (float64, error)
	// TakeProfitPrice is entry moved in favour of the position by pct (a fraction).
	TakeProfitPrice(entry, pct float64, side Side) (float64, error)
}

// Config tunes the default manager.
type Config struct {
	// QtyStep floors computed quantities; zero leaves them unrounded.
	QtyStep float64
	// TickSize floors computed prices; zero leaves them unrounded.
	TickSize float64
	// MaxNotionalPct caps balance*pct before leverage, in percent. Zero disables.
	MaxNotionalPct float64
}

// Default is the decimal-backed Manager.
type Default struct {
	cfg Config
}

var _ Manager = (*Default)(nil)

func NewDefault(cfg Config) *Default {
	return &Default{cfg: cfg}
}

var hundred = decimal.NewFromInt(100)

func (m *Default) PositionSize(balance, positionPct, leverage, price float64) (float64, error) {
	if balance <= 0 {
		return 0, fmt.Errorf("position size: %w (got %v)", ErrNoBalance, balance)
	}
	if price <= 0 {
		return 0, fmt.Errorf("position size: %w (got %v)", ErrNoPrice, price)
	}
	if positionPct < 0 {
		return 0, fmt.Errorf("position size: %w (got %v)", ErrBadPercent, positionPct)
	}
	if leverage < 1 {
		return 0, fmt.Errorf("position size: %w (got %v)", ErrBadLeverage, leverage)
	}
	pct := decimal.NewFromFloat(positionPct)
	if m.cfg.MaxNotionalPct > 0 {
		pct = decimal.Min(pct, decimal.NewFromFloat(m.cfg.MaxNotionalPct))
	}
	notional := decimal.NewFromFloat(balance).Mul(pct).Div(hundred).Mul(decimal.NewFromFloat(leverage))
	qty := notional.DivRound(decimal.NewFromFloat(price), precision.Digits)
	if m.cfg.QtyStep > 0 {
		rounded, err := precision.RoundQty(qty, m.cfg.QtyStep)
		if err != nil {
			return 0, err
		}
		qty = rounded
	}
	return precision.Float(qty), nil
}

func (m *Default) StopLossPrice(entry, pct float64, side Side) (float64, error) {
	// a long stop sits below entry
	return m.offset("stop loss", entry, pct, side == Short)
}

func (m *Default) TakeProfitPrice(entry, pct float64, side Side) (float64, error) {
	return m.offset("take profit", entry, pct, side == Long)
}

func (m *Default) offset(what string, entry, pct float64, up bool) (float64, error) {
	if entry <= 0 {
		return 0, fmt.Errorf("%s: %w (got %v)", what, ErrNoPrice, entry)
	}
	if pct < 0 {
		return 0, fmt.Errorf("%s: %w (got %v)", what, ErrBadPercent, pct)
	}
	factor := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(pct))
	if up {
		factor = decimal.NewFromInt(1).Add(decimal.NewFromFloat(pct))
	}
	px := decimal.NewFromFloat(entry).Mul(factor)
	if m.cfg.TickSize > 0 {
		rounded, err := precision.RoundPrice(px, m.cfg.TickSize)
		if err != nil {
			return 0, err
		}
		px = rounded
	}
	return precision.Float(px), nil
}
