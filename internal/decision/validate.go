package decision

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	requiredFields = []string{"symbol", "action", "reasoning"}
	openFields     = []string{"leverage", "position_size_usd", "stop_loss", "take_profit"}
	numericFields  = []string{"leverage", "position_size_usd", "stop_loss", "take_profit", "risk_usd"}

	thousandsPattern = regexp.MustCompile(`^\d{1,3}(,\d{3})+(\.\d+)?$`)
)

const openMissingPrefix = "Open position action missing required field: "

// Validator gates decisions before sizing and order placement. It holds only
// its immutable Config and is safe for concurrent use.
type Validator struct {
	cfg Config
}

// NewValidator builds a validator. Non-positive limits fall back to defaults.
func NewValidator(cfg Config) *Validator {
	def := DefaultConfig()
	if cfg.MaxLeverage <= 0 {
		cfg.MaxLeverage = def.MaxLeverage
	}
	if cfg.MaxPositionPct <= 0 {
		cfg.MaxPositionPct = def.MaxPositionPct
	}
	if cfg.MaxConfidence <= 0 {
		cfg.MaxConfidence = def.MaxConfidence
	}
	if cfg.MinRiskRewardRatio <= 0 {
		cfg.MinRiskRewardRatio = def.MinRiskRewardRatio
	}
	return &Validator{cfg: cfg}
}

// Config returns the thresholds in effect.
func (v *Validator) Config() Config { return v.cfg }

// Validate checks one decision. The input is only read.
//
// Missing base fields and missing open-position fields end the check early;
// every other rule runs and all errors are returned together.
func (v *Validator) Validate(f Fields) Result {
	var errs []string
	for _, field := range requiredFields {
		if !f.Has(field) {
			errs = append(errs, "Missing required field: "+field)
		}
	}
	if len(errs) > 0 {
		return Result{Valid: false, Errors: errs}
	}

	action := Action(fmt.Sprint(f["action"]))
	if !validActions[action] {
		errs = append(errs, "Invalid action: "+formatValue(f["action"]))
	}

	if f.Present("confidence") {
		conf, ok := f.Number("confidence")
		if !ok || conf < v.cfg.MinConfidence || conf > v.cfg.MaxConfidence {
			errs = append(errs, fmt.Sprintf("confidence out of range [%s, %s]: %s",
				formatValue(v.cfg.MinConfidence), formatValue(v.cfg.MaxConfidence), formatValue(f["confidence"])))
		}
	}

	errs = append(errs, formatErrors(f)...)

	if action.IsOpen() {
		missing := false
		for _, field := range openFields {
			if !f.Present(field) {
				errs = append(errs, openMissingPrefix+field)
				missing = true
			}
		}
		if missing {
			return Result{Valid: false, Errors: errs}
		}
		errs = append(errs, v.openErrors(action, f)...)
	}
	return Result{Valid: len(errs) == 0, Errors: errs}
}

func (v *Validator) openErrors(action Action, f Fields) []string {
	var errs []string
	if lev, ok := f.Number("leverage"); ok {
		if lev < 1 || lev > float64(v.cfg.MaxLeverage) {
			errs = append(errs, fmt.Sprintf("leverage out of range [1, %d]: %s", v.cfg.MaxLeverage, formatValue(f["leverage"])))
		}
	}
	if f.Has("position_size_pct") {
		pct, ok := f.Number("position_size_pct")
		if !ok || pct < 0 || pct > v.cfg.MaxPositionPct {
			errs = append(errs, fmt.Sprintf("position_size_pct out of range [0, %s]: %s",
				formatLimit(v.cfg.MaxPositionPct), formatValue(f["position_size_pct"])))
		}
	}
	for _, field := range numericFields {
		if !f.Has(field) {
			continue
		}
		val := f[field]
		switch {
		case isString(val):
			errs = append(errs, fmt.Sprintf("%s cannot be string (may contain formula): %s", field, formatValue(val)))
		case !isNumeric(val):
			errs = append(errs, fmt.Sprintf("%s must be a number: %s", field, formatValue(val)))
		}
	}
	if !StopLossDirectionOK(f) {
		entry, _ := referencePrice(f)
		sl, _ := f.Decimal("stop_loss")
		if action == ActionOpenLong {
			errs = append(errs, fmt.Sprintf("Long stop loss direction error: stop_loss (%s) must be < entry_price (%s)", sl, entry))
		} else {
			errs = append(errs, fmt.Sprintf("Short stop loss direction error: stop_loss (%s) must be > entry_price (%s)", sl, entry))
		}
	}
	if !v.RiskRewardOK(f) {
		ratio, _ := RiskRewardRatio(f)
		errs = append(errs, fmt.Sprintf("Insufficient risk-reward ratio: %.2f < %s", ratio, formatLimit(v.cfg.MinRiskRewardRatio)))
	}
	return errs
}

// formatErrors flags range notation and thousands separators in any string field.
func formatErrors(f Fields) []string {
	var errs []string
	for _, key := range f.Keys() {
		s, ok := f[key].(string)
		if !ok {
			continue
		}
		if strings.Contains(s, "~") {
			errs = append(errs, fmt.Sprintf("Field %s contains prohibited range symbol '~': %s", key, s))
		}
		if thousandsPattern.MatchString(s) {
			errs = append(errs, fmt.Sprintf("Field %s contains prohibited thousands separator ',': %s", key, s))
		}
	}
	return errs
}

// StopLossDirectionOK requires stop_loss below entry for longs and above it for
// shorts. It passes when either price is unavailable.
func StopLossDirectionOK(f Fields) bool {
	action := Action(f.String("action"))
	if !action.IsOpen() {
		return true
	}
	entry, ok := referencePrice(f)
	if !ok {
		return true
	}
	sl, ok := f.Decimal("stop_loss")
	if !ok {
		return true
	}
	if action == ActionOpenLong {
		return sl.LessThan(entry)
	}
	return sl.GreaterThan(entry)
}

// RiskRewardOK compares the ratio with the configured minimum, inclusive. An
// incalculable ratio does not block.
func (v *Validator) RiskRewardOK(f Fields) bool {
	ratio, ok := riskReward(f)
	if !ok {
		return true
	}
	return ratio.GreaterThanOrEqual(decimal.NewFromFloat(v.cfg.MinRiskRewardRatio))
}

// RiskRewardRatio returns reward/risk for open actions. ok is false when the
// ratio cannot be computed: not an open action, a missing price, or zero risk.
func RiskRewardRatio(f Fields) (float64, bool) {
	r, ok := riskReward(f)
	if !ok {
		return 0, false
	}
	return r.InexactFloat64(), true
}

func riskReward(f Fields) (decimal.Decimal, bool) {
	action := Action(f.String("action"))
	if !action.IsOpen() {
		return decimal.Zero, false
	}
	entry, ok := referencePrice(f)
	if !ok {
		return decimal.Zero, false
	}
	sl, ok := f.Decimal("stop_loss")
	if !ok {
		return decimal.Zero, false
	}
	tp, ok := f.Decimal("take_profit")
	if !ok {
		return decimal.Zero, false
	}
	var risk, reward decimal.Decimal
	if action == ActionOpenLong {
		risk = entry.Sub(sl).Abs()
		reward = tp.Sub(entry).Abs()
	} else {
		risk = sl.Sub(entry).Abs()
		reward = entry.Sub(tp).Abs()
	}
	if risk.IsZero() {
		return decimal.Zero, false
	}
	return reward.Div(risk), true
}

// referencePrice is entry_price when set and non-zero, else current_price.
func referencePrice(f Fields) (decimal.Decimal, bool) {
	if d, ok := f.Decimal("entry_price"); ok && !d.IsZero() {
		return d, true
	}
	if d, ok := f.Decimal("current_price"); ok {
		return d, true
	}
	return decimal.Zero, false
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}
