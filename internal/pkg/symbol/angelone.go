package symbol

import "strings"

// DefaultEquitySeries is the NSE series appended to bare equity names.
const DefaultEquitySeries = "EQ"

// AngelOneConverter maps bare NSE names such as RELIANCE to SmartAPI trading
// symbols such as RELIANCE-EQ. Symbols that already carry a series, and
// derivatives, pass through unchanged.
type AngelOneConverter struct {
	Series string
}

func (c AngelOneConverter) ToExchange(internal string) string {
	s := strings.ToUpper(strings.TrimSpace(internal))
	if s == "" || strings.Contains(s, "-") || isDerivative(s) {
		return s
	}
	series := strings.ToUpper(strings.TrimSpace(c.Series))
	if series == "" {
		series = DefaultEquitySeries
	}
	return s + "-" + series
}

func (c AngelOneConverter) FromExchange(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if idx := strings.LastIndex(s, "-"); idx > 0 {
		return s[:idx]
	}
	return s
}

func (AngelOneConverter) Format() Format {
	return FormatAngelOne
}

// isDerivative spots F&O contract names, which end in FUT, CE or PE after an
// expiry date.
func isDerivative(s string) bool {
	if strings.HasSuffix(s, "FUT") {
		return true
	}
	if len(s) > 7 && (strings.HasSuffix(s, "CE") || strings.HasSuffix(s, "PE")) {
		c := s[len(s)-3]
		return c >= '0' && c <= '9'
	}
	return false
}

var AngelOne = AngelOneConverter{}
