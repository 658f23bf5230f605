// Package convert normalizes loosely typed numbers from broker payloads.
package convert

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ParseFloat reads v as a float64. Strings may carry surrounding space or
// thousands separators ("1,234.50"). NaN and infinities are rejected.
func ParseFloat(v any) (float64, bool) {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case float32:
		f = float64(t)
	case int:
		f = float64(t)
	case int32:
		f = float64(t)
	case int64:
		f = float64(t)
	case uint64:
		f = float64(t)
	case json.Number:
		var err error
		if f, err = t.Float64(); err != nil {
			return 0, false
		}
	case string:
		s := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		if s == "" {
			return 0, false
		}
		var err error
		if f, err = strconv.ParseFloat(s, 64); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToFloat64 is ParseFloat with 0 for anything unreadable.
func ToFloat64(v any) float64 {
	f, _ := ParseFloat(v)
	return f
}
