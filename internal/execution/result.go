package execution

import (
	"encoding/json"
	"time"

	"tradebot/internal/gateway/exchange"
)

// Outcome tags a Result as applied or not.
type Outcome int

const (
	OutcomeFailed Outcome = iota
	OutcomeOK
)

func (o Outcome) String() string {
	if o == OutcomeOK {
		return "ok"
	}
	return "failed"
}

// Result is the uniform record of one execution call. Orders lists, in call
// order, every order and account-level step (leverage, cancel-all) that
// reached the broker, including on a failed Result.
type Result struct {
	Outcome    Outcome          `json:"-"`
	Action     string           `json:"action"`
	Symbol     string           `json:"symbol"`
	Timestamp  time.Time        `json:"timestamp"`
	Orders     []exchange.Order `json:"orders"`
	EntryPrice float64          `json:"entry_price,omitempty"`
	Quantity   float64          `json:"quantity,omitempty"`
	StopLoss   float64          `json:"stop_loss,omitempty"`
	TakeProfit float64          `json:"take_profit,omitempty"`
	Message    string           `json:"message"`
}

// Success reports an applied Result.
func (r Result) Success() bool { return r.Outcome == OutcomeOK }

func (r Result) MarshalJSON() ([]byte, error) {
	type alias Result
	orders := r.Orders
	if orders == nil {
		orders = []exchange.Order{}
	}
	r.Orders = orders
	return json.Marshal(struct {
		Success bool `json:"success"`
		alias
	}{Success: r.Success(), alias: alias(r)})
}

func (r *Result) UnmarshalJSON(data []byte) error {
	type alias Result
	aux := struct {
		Success bool `json:"success"`
		*alias
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Outcome = OutcomeFailed
	if aux.Success {
		r.Outcome = OutcomeOK
	}
	return nil
}
