package decision

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"tradebot/internal/precision"

	"github.com/mitchellh/mapstructure"
	"github.com/shopspring/decimal"
)

// Fields is a decision exactly as the model produced it. Numeric values keep
// their Go kind so the validator can tell 12 from "12".
type Fields map[string]any

// Has reports whether key exists, even with a null value.
func (f Fields) Has(key string) bool {
	_, ok := f[key]
	return ok
}

// Present reports whether key exists with a non-null value.
func (f Fields) Present(key string) bool {
	v, ok := f[key]
	return ok && v != nil
}

// String returns the value for key when it is a string.
func (f Fields) String(key string) string {
	s, _ := f[key].(string)
	return s
}

// Number returns the value for key when it is an actual number. Numeric
// strings do not count.
func (f Fields) Number(key string) (float64, bool) {
	return asNumber(f[key])
}

// Decimal is Number without the float round trip.
func (f Fields) Decimal(key string) (decimal.Decimal, bool) {
	v, ok := f[key]
	if !ok || !isNumeric(v) {
		return decimal.Zero, false
	}
	d, err := precision.ToDecimal(v)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// Keys returns the field names in lexical order.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Decode converts the raw fields into the typed view. Call it after Validate;
// unknown keys are ignored.
func (f Fields) Decode() (Decision, error) {
	var d Decision
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		WeaklyTypedInput: true,
		Result:           &d,
	})
	if err != nil {
		return Decision{}, err
	}
	if err := dec.Decode(map[string]any(f)); err != nil {
		return Decision{}, fmt.Errorf("decode decision: %w", err)
	}
	d.Symbol = strings.TrimSpace(d.Symbol)
	d.Action = Action(strings.TrimSpace(string(d.Action)))
	return d, nil
}

func isNumeric(v any) bool {
	_, ok := asNumber(v)
	return ok
}

func asNumber(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, !math.IsNaN(t) && !math.IsInf(t, 0)
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case decimal.Decimal:
		return t.InexactFloat64(), true
	default:
		return 0, false
	}
}

// formatValue renders a decision value for error messages.
func formatValue(v any) string {
	if f, ok := asNumber(v); ok {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	if v == nil {
		return "None"
	}
	return fmt.Sprint(v)
}

// formatLimit renders a configured float limit with at least one decimal.
func formatLimit(f float64) string {
	if f == math.Trunc(f) && math.Abs(f) < 1e15 {
		return strconv.FormatFloat(f, 'f', 1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
