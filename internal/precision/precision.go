// Package precision implements exact decimal money arithmetic: price and quantity
// rounding, linear and inverse PnL, and an approximate liquidation price.
//
// All intermediate values are decimal.Decimal at 18 significant digits; only
// callers that need a display value convert the final result with Float.
package precision

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Digits is the significant-digit budget used for divisions.
const Digits = 18

// DefaultMaintenanceMarginRate is used when callers pass a zero rate.
var DefaultMaintenanceMarginRate = decimal.RequireFromString("0.004")

var one = decimal.NewFromInt(1)

// ToDecimal converts numbers and numeric strings. Anything else, including NaN,
// infinities and malformed strings, is an InvalidInput error.
func ToDecimal(v any) (decimal.Decimal, error) {
	switch t := v.(type) {
	case decimal.Decimal:
		return t, nil
	case *decimal.Decimal:
		if t == nil {
			return decimal.Zero, invalid("convert", "nil decimal")
		}
		return *t, nil
	case float64:
		if math.IsNaN(t) || math.IsInf(t, 0) {
			return decimal.Zero, invalid("convert", "non-finite value %v", t)
		}
		return decimal.NewFromFloat(t), nil
	case float32:
		return ToDecimal(float64(t))
	case int:
		return decimal.NewFromInt(int64(t)), nil
	case int32:
		return decimal.NewFromInt32(t), nil
	case int64:
		return decimal.NewFromInt(t), nil
	case uint:
		return decimal.NewFromUint64(uint64(t)), nil
	case uint64:
		return decimal.NewFromUint64(t), nil
	case json.Number:
		return ToDecimal(string(t))
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(t))
		if err != nil {
			return decimal.Zero, invalid("convert", "not a number: %q", t)
		}
		return d, nil
	default:
		return decimal.Zero, invalid("convert", "unsupported type %T", v)
	}
}

// Float converts a result for display.
func Float(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

func div(op string, a, b decimal.Decimal, what string) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, divByZero(op, what)
	}
	return roundSig(a.DivRound(b, 2*Digits)), nil
}

// roundSig keeps at most Digits significant digits.
func roundSig(d decimal.Decimal) decimal.Decimal {
	n := d.NumDigits()
	if d.IsZero() || n <= Digits {
		return d
	}
	return d.Round(-d.Exponent() - int32(n-Digits))
}

// floorToStep floors value to a multiple of step.
func floorToStep(op string, value, step any) (decimal.Decimal, error) {
	v, err := ToDecimal(value)
	if err != nil {
		return decimal.Zero, err
	}
	s, err := ToDecimal(step)
	if err != nil {
		return decimal.Zero, err
	}
	if s.IsNegative() {
		return decimal.Zero, invalid(op, "negative step %s", s)
	}
	if s.IsZero() {
		return decimal.Zero, divByZero(op, "step")
	}
	// QuoRem keeps the quotient exact; Div would round it to DivisionPrecision
	// first and could lift it onto the next step.
	q, r := v.QuoRem(s, 0)
	if r.IsNegative() {
		q = q.Sub(one)
	}
	return q.Mul(s), nil
}

// RoundPrice floors price to the nearest tick below it.
func RoundPrice(price, tickSize any) (decimal.Decimal, error) {
	return floorToStep("round_price", price, tickSize)
}

// RoundQty floors qty to the nearest step below it.
func RoundQty(qty, qtyStep any) (decimal.Decimal, error) {
	return floorToStep("round_qty", qty, qtyStep)
}

// RoundPriceForSpec floors price to the spec's tick size.
func RoundPriceForSpec(spec ContractSpec, price any) (decimal.Decimal, error) {
	return RoundPrice(price, spec.TickSize)
}

// RoundQtyForSpec floors qty to the spec's quantity step.
func RoundQtyForSpec(spec ContractSpec, qty any) (decimal.Decimal, error) {
	return RoundQty(qty, spec.QtyStep)
}

// ValidQty reports whether qty is at least the spec's minimum and on its step grid.
func ValidQty(spec ContractSpec, qty decimal.Decimal) bool {
	if qty.LessThan(spec.MinQty) {
		return false
	}
	if spec.QtyStep.IsZero() {
		return true
	}
	return qty.Mod(spec.QtyStep).IsZero()
}

// LinearPnL is (exit-entry)*qty for longs and (entry-exit)*qty for shorts.
func LinearPnL(entry, exit, qty any, isLong bool) (decimal.Decimal, error) {
	e, x, q, err := three(entry, exit, qty)
	if err != nil {
		return decimal.Zero, err
	}
	if isLong {
		return x.Sub(e).Mul(q), nil
	}
	return e.Sub(x).Mul(q), nil
}

// InversePnL returns base-currency PnL for coin-margined contracts:
// (1/entry - 1/exit)*contracts*size for longs, sign reversed for shorts.
func InversePnL(entry, exit, contracts, contractSize any, isLong bool) (decimal.Decimal, error) {
	const op = "inverse_pnl"
	e, x, c, err := three(entry, exit, contracts)
	if err != nil {
		return decimal.Zero, err
	}
	size, err := ToDecimal(contractSize)
	if err != nil {
		return decimal.Zero, err
	}
	invEntry, err := div(op, one, e, "entry price")
	if err != nil {
		return decimal.Zero, err
	}
	invExit, err := div(op, one, x, "exit price")
	if err != nil {
		return decimal.Zero, err
	}
	diff := invEntry.Sub(invExit)
	if !isLong {
		diff = diff.Neg()
	}
	return roundSig(diff.Mul(c).Mul(size)), nil
}

// InversePnLUSD converts InversePnL into USD at settlement, which defaults to exit when nil.
func InversePnLUSD(entry, exit, contracts, contractSize any, isLong bool, settlement any) (decimal.Decimal, error) {
	coin, err := InversePnL(entry, exit, contracts, contractSize, isLong)
	if err != nil {
		return decimal.Zero, err
	}
	if settlement == nil {
		settlement = exit
	}
	px, err := ToDecimal(settlement)
	if err != nil {
		return decimal.Zero, err
	}
	return roundSig(coin.Mul(px)), nil
}

// LiquidationPrice approximates the isolated-margin liquidation price:
//
//	long:  entry * (1 - 1/leverage + mmr)
//	short: entry * (1 + 1/leverage - mmr)
//
// Realized PnL, funding and cross-margin offsets are ignored, so the value will
// not match an exchange's own figure exactly. A nil mmr selects
// DefaultMaintenanceMarginRate. The contract type does not change the formula.
func LiquidationPrice(entry, leverage any, isLong bool, mmr any, _ ContractType) (decimal.Decimal, error) {
	const op = "liquidation_price"
	e, err := ToDecimal(entry)
	if err != nil {
		return decimal.Zero, err
	}
	lev, err := ToDecimal(leverage)
	if err != nil {
		return decimal.Zero, err
	}
	rate := DefaultMaintenanceMarginRate
	if mmr != nil {
		if rate, err = ToDecimal(mmr); err != nil {
			return decimal.Zero, err
		}
	}
	if e.Sign() <= 0 {
		return decimal.Zero, invalid(op, "entry price must be positive: %s", e)
	}
	if lev.IsNegative() {
		return decimal.Zero, invalid(op, "negative leverage %s", lev)
	}
	inv, err := div(op, one, lev, "leverage")
	if err != nil {
		return decimal.Zero, err
	}
	factor := one.Sub(inv).Add(rate)
	if !isLong {
		factor = one.Add(inv).Sub(rate)
	}
	return roundSig(e.Mul(factor)), nil
}

func three(a, b, c any) (decimal.Decimal, decimal.Decimal, decimal.Decimal, error) {
	x, err := ToDecimal(a)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	y, err := ToDecimal(b)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	z, err := ToDecimal(c)
	if err != nil {
		return decimal.Zero, decimal.Zero, decimal.Zero, err
	}
	return x, y, z, nil
}
