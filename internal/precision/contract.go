package precision

import "github.com/shopspring/decimal"

// ContractType distinguishes stablecoin-settled from coin-settled derivatives.
type ContractType string

const (
	Linear  ContractType = "LINEAR"
	Inverse ContractType = "INVERSE"
)

// ContractSpec is the financial shape of an instrument family. Values are never mutated.
type ContractSpec struct {
	Type         ContractType
	ContractSize decimal.Decimal
	TickSize     decimal.Decimal
	MinQty       decimal.Decimal
	QtyStep      decimal.Decimal
}

// IsInverse reports whether PnL must be computed with inverted prices.
func (s ContractSpec) IsInverse() bool { return s.Type == Inverse }

func mustDec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Presets for the instruments the bot trades most.
var (
	LinearBTC = ContractSpec{
		Type:         Linear,
		ContractSize: mustDec("1"),
		TickSize:     mustDec("0.1"),
		MinQty:       mustDec("0.001"),
		QtyStep:      mustDec("0.001"),
	}
	InverseBTC = ContractSpec{
		Type:         Inverse,
		ContractSize: mustDec("100"),
		TickSize:     mustDec("0.1"),
		MinQty:       mustDec("1"),
		QtyStep:      mustDec("1"),
	}
	InverseETH = ContractSpec{
		Type:         Inverse,
		ContractSize: mustDec("10"),
		TickSize:     mustDec("0.01"),
		MinQty:       mustDec("1"),
		QtyStep:      mustDec("1"),
	}
)

// Presets maps preset names as they appear in configuration.
var Presets = map[string]ContractSpec{
	"linear_btc":  LinearBTC,
	"inverse_btc": InverseBTC,
	"inverse_eth": InverseETH,
}
