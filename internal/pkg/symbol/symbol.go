// Package symbol translates the symbols a decision names into the form each
// venue expects. Decisions may say "BTC/USDT", "btcusdt" or "BTC/USDT:USDT";
// Binance wants BTCUSDT and SmartAPI wants RELIANCE-EQ.
package symbol

import "strings"

type Format string

const (
	FormatBinance  Format = "binance"
	FormatAngelOne Format = "angelone"
)

// Converter maps a decision symbol to a venue symbol and back.
type Converter interface {
	ToExchange(symbol string) string
	FromExchange(raw string) string
	Format() Format
}

// quoteAssets are matched as suffixes, in order.
var quoteAssets = []string{"FDUSD", "USDT", "USDC", "BUSD", "TUSD", "BTC", "ETH", "BNB"}

// Pair is a crypto BASE/QUOTE pair.
type Pair struct {
	Base  string
	Quote string
}

func (p Pair) String() string { return p.Base + "/" + p.Quote }

// Concat is the venue form without a separator.
func (p Pair) Concat() string { return p.Base + p.Quote }

// ParsePair accepts BASE/QUOTE, BASE/QUOTE:SETTLE and concatenated pairs
// with a known quote asset.
func ParsePair(s string) (Pair, bool) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	if base, quote, ok := strings.Cut(s, "/"); ok {
		base, quote = strings.TrimSpace(base), strings.TrimSpace(quote)
		return Pair{Base: base, Quote: quote}, base != "" && quote != ""
	}
	for _, q := range quoteAssets {
		if base, ok := strings.CutSuffix(s, q); ok && base != "" {
			return Pair{Base: base, Quote: q}, true
		}
	}
	return Pair{}, false
}

type binanceConverter struct{}

// Binance renders pairs as BTCUSDT. Unparseable input is upper-cased with
// separators removed.
var Binance Converter = binanceConverter{}

func (binanceConverter) ToExchange(symbol string) string {
	if p, ok := ParsePair(symbol); ok {
		return p.Concat()
	}
	return strings.ReplaceAll(strings.ToUpper(strings.TrimSpace(symbol)), "/", "")
}

func (binanceConverter) FromExchange(raw string) string {
	if p, ok := ParsePair(raw); ok {
		return p.String()
	}
	return strings.ToUpper(strings.TrimSpace(raw))
}

func (binanceConverter) Format() Format { return FormatBinance }

// ForVenue returns the converter for a broker kind. Binance naming is the
// default, which the paper broker shares.
func ForVenue(kind string) Converter {
	if strings.EqualFold(strings.TrimSpace(kind), "angelone") {
		return AngelOne
	}
	return Binance
}
