package decision

import "math"

// Action is the closed set of verbs a decision may carry.
type Action string

const (
	ActionOpenLong       Action = "open_long"
	ActionOpenShort      Action = "open_short"
	ActionCloseLong      Action = "close_long"
	ActionCloseShort     Action = "close_short"
	ActionClosePosition  Action = "close_position"
	ActionHold           Action = "hold"
	ActionWait           Action = "wait"
	ActionAddPosition    Action = "add_position"
	ActionReducePosition Action = "reduce_position"
)

var validActions = map[Action]bool{
	ActionOpenLong: true, ActionOpenShort: true,
	ActionCloseLong: true, ActionCloseShort: true,
	ActionClosePosition: true,
	ActionHold:          true, ActionWait: true,
}

// IsOpen reports whether the action opens exposure.
func (a Action) IsOpen() bool { return a == ActionOpenLong || a == ActionOpenShort }

// Decision is the typed view of a validated decision.
type Decision struct {
	Symbol          string  `json:"symbol"`
	Action          Action  `json:"action"`
	Reasoning       string  `json:"reasoning"`
	Confidence      float64 `json:"confidence,omitempty"`
	Leverage        float64 `json:"leverage,omitempty"`
	PositionSizeUSD float64 `json:"position_size_usd,omitempty"`
	PositionSizePct float64 `json:"position_size_pct,omitempty"`
	StopLoss        float64 `json:"stop_loss,omitempty"`
	TakeProfit      float64 `json:"take_profit,omitempty"`
	StopLossPct     float64 `json:"stop_loss_pct,omitempty"`
	TakeProfitPct   float64 `json:"take_profit_pct,omitempty"`
	EntryPrice      float64 `json:"entry_price,omitempty"`
	CurrentPrice    float64 `json:"current_price,omitempty"`
	RiskUSD         float64 `json:"risk_usd,omitempty"`
	ProductType     string  `json:"product_type,omitempty"`
	// Side is an optional hint ("long"/"short") used by add_position.
	Side string `json:"side,omitempty"`
}

// LeverageInt floors the leverage to the integer brokers accept, minimum 1.
func (d Decision) LeverageInt() int {
	lev := int(math.Floor(d.Leverage))
	if lev < 1 {
		return 1
	}
	return lev
}

// ReferencePrice is entry_price, falling back to current_price.
func (d Decision) ReferencePrice() float64 {
	if d.EntryPrice != 0 {
		return d.EntryPrice
	}
	return d.CurrentPrice
}

// Config holds the validator thresholds.
type Config struct {
	MaxLeverage        int     `toml:"max_leverage" yaml:"max_leverage" json:"max_leverage"`
	MaxPositionPct     float64 `toml:"max_position_pct" yaml:"max_position_pct" json:"max_position_pct"`
	MinConfidence      float64 `toml:"min_confidence" yaml:"min_confidence" json:"min_confidence"`
	MaxConfidence      float64 `toml:"max_confidence" yaml:"max_confidence" json:"max_confidence"`
	MinRiskRewardRatio float64 `toml:"min_risk_reward_ratio" yaml:"min_risk_reward_ratio" json:"min_risk_reward_ratio"`
}

// DefaultConfig mirrors the production defaults.
func DefaultConfig() Config {
	return Config{
		MaxLeverage:        5,
		MaxPositionPct:     30,
		MinConfidence:      0,
		MaxConfidence:      100,
		MinRiskRewardRatio: 2.0,
	}
}

// Result is the outcome of one validation call.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}
