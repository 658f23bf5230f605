package precision

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestRoundPriceFloors(t *testing.T) {
	cases := []struct {
		price, tick any
		want        string
	}{
		{100.07, 0.1, "100"},
		{100.09, 0.1, "100"},
		{"100.1", "0.1", "100.1"},
		{86012.37, "0.5", "86012"},
		{0.123456, 0.0001, "0.1234"},
	}
	for _, tc := range cases {
		got, err := RoundPrice(tc.price, tc.tick)
		require.NoError(t, err)
		assert.True(t, dec(tc.want).Equal(got), "RoundPrice(%v,%v)=%s", tc.price, tc.tick, got)
	}
}

func TestRoundQty(t *testing.T) {
	got, err := RoundQty(0.0239, 0.001)
	require.NoError(t, err)
	assert.True(t, dec("0.023").Equal(got))

	got, err = RoundQtyForSpec(InverseBTC, "57.9")
	require.NoError(t, err)
	assert.True(t, dec("57").Equal(got))
}

func TestRoundQtyNeverRoundsUp(t *testing.T) {
	cases := []struct {
		qty, step any
		want      string
	}{
		// quotients within 1e-16 of the next step
		{"0.001999999999999999999", "0.001", "0.001"},
		{dec("0.0999999999999999999999"), "0.01", "0.09"},
		{"2.99999999999999999999", 1, "2"},
		{"-0.001000000000000000001", "0.001", "-0.002"},
		// already on the grid
		{"0.003", "0.001", "0.003"},
	}
	for _, tc := range cases {
		got, err := RoundQty(tc.qty, tc.step)
		require.NoError(t, err)
		assert.True(t, dec(tc.want).Equal(got), "RoundQty(%v, %v) = %s, want %s", tc.qty, tc.step, got, tc.want)
		in, err := ToDecimal(tc.qty)
		require.NoError(t, err)
		assert.True(t, got.LessThanOrEqual(in), "RoundQty(%v, %v) = %s rounded up", tc.qty, tc.step, got)
	}
}

func TestRoundZeroStep(t *testing.T) {
	_, err := RoundQty(1.5, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDivisionByZero))

	var perr *Error
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, KindDivisionByZero, perr.Kind)
}

func TestMalformedInput(t *testing.T) {
	_, err := RoundPrice("12,000", 0.1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidInput))

	_, err = LinearPnL([]int{1}, 2, 3, true)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestLinearPnL(t *testing.T) {
	long, err := LinearPnL(50000, 51000, 0.1, true)
	require.NoError(t, err)
	assert.Equal(t, 100.0, Float(long))

	short, err := LinearPnL(50000, 49000, 0.1, false)
	require.NoError(t, err)
	assert.Equal(t, 100.0, Float(short))

	loss, err := LinearPnL(50000, 49000, 0.1, true)
	require.NoError(t, err)
	assert.Equal(t, -100.0, Float(loss))
}

func TestLinearPnLNoFloatDrift(t *testing.T) {
	got, err := LinearPnL("0.1", "0.3", "3", true)
	require.NoError(t, err)
	assert.True(t, dec("0.6").Equal(got))
}

func TestInversePnL(t *testing.T) {
	got, err := InversePnL(50000, 51000, 100, 100, true)
	require.NoError(t, err)

	inv := decimal.NewFromInt(1)
	want := inv.DivRound(dec("50000"), 36).Sub(inv.DivRound(dec("51000"), 36)).Mul(dec("10000"))
	assert.InDelta(t, Float(want), Float(got), 1e-15)
	assert.InDelta(t, 0.0039215686, Float(got), 1e-9)

	short, err := InversePnL(50000, 51000, 100, 100, false)
	require.NoError(t, err)
	assert.True(t, got.Neg().Equal(short))
}

func TestInversePnLZeroPrice(t *testing.T) {
	_, err := InversePnL(0, 51000, 100, 100, true)
	assert.True(t, errors.Is(err, ErrDivisionByZero))

	_, err = InversePnL(50000, 0, 100, 100, true)
	assert.True(t, errors.Is(err, ErrDivisionByZero))
}

func TestInversePnLUSD(t *testing.T) {
	coin, err := InversePnL(50000, 51000, 100, 100, true)
	require.NoError(t, err)

	atExit, err := InversePnLUSD(50000, 51000, 100, 100, true, nil)
	require.NoError(t, err)
	assert.InDelta(t, Float(coin)*51000, Float(atExit), 1e-9)
	assert.InDelta(t, 200.0, Float(atExit), 1e-9)

	atSettle, err := InversePnLUSD(50000, 51000, 100, 100, true, 60000)
	require.NoError(t, err)
	assert.InDelta(t, Float(coin)*60000, Float(atSettle), 1e-9)
}

func TestLiquidationPriceAdverseSide(t *testing.T) {
	long, err := LiquidationPrice(50000, 10, true, nil, Linear)
	require.NoError(t, err)
	assert.True(t, long.LessThan(dec("50000")))
	assert.True(t, dec("45200").Equal(long), "got %s", long)

	short, err := LiquidationPrice(50000, 10, false, nil, Linear)
	require.NoError(t, err)
	assert.True(t, short.GreaterThan(dec("50000")))
	assert.True(t, dec("54800").Equal(short), "got %s", short)

	custom, err := LiquidationPrice(50000, 10, true, 0.01, Inverse)
	require.NoError(t, err)
	assert.True(t, dec("45500").Equal(custom), "got %s", custom)
}

func TestLiquidationPriceZeroMaintenanceMargin(t *testing.T) {
	long, err := LiquidationPrice(50000, 10, true, 0.0, Linear)
	require.NoError(t, err)
	assert.True(t, dec("45000").Equal(long), "got %s", long)

	short, err := LiquidationPrice(50000, 10, false, "0", Linear)
	require.NoError(t, err)
	assert.True(t, dec("55000").Equal(short), "got %s", short)
}

func TestLiquidationPriceErrors(t *testing.T) {
	_, err := LiquidationPrice(50000, 0, true, nil, Linear)
	assert.True(t, errors.Is(err, ErrDivisionByZero))

	_, err = LiquidationPrice(0, 10, true, nil, Linear)
	assert.True(t, errors.Is(err, ErrInvalidInput))
}

func TestSignificantDigits(t *testing.T) {
	got, err := div("test", decimal.NewFromInt(1), decimal.NewFromInt(3), "x")
	require.NoError(t, err)
	assert.Equal(t, "0.333333333333333333", got.String())
}

func TestValidQty(t *testing.T) {
	assert.True(t, ValidQty(LinearBTC, dec("0.005")))
	assert.False(t, ValidQty(LinearBTC, dec("0.0005")))
	assert.False(t, ValidQty(InverseETH, dec("1.5")))
}
