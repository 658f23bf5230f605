package trader

import (
	"context"
	"time"

	"tradebot/internal/decision"
	"tradebot/internal/execution"
	"tradebot/internal/store/decisionlog"
	"tradebot/internal/store/model"
)

// Submission is what one decision produced: the validation verdict and,
// for valid decisions, the execution result.
type Submission struct {
	TraceID    string            `json:"trace_id"`
	Symbol     string            `json:"symbol"`
	Validation decision.Result   `json:"validation"`
	RiskReward *float64          `json:"risk_reward_ratio,omitempty"`
	Summary    string            `json:"summary"`
	Result     *execution.Result `json:"result,omitempty"`
	// DecisionLogID and ExecutionID are zero when no store is configured.
	DecisionLogID int64 `json:"decision_log_id,omitempty"`
	ExecutionID   int64 `json:"execution_id,omitempty"`
}

// Executed reports whether the engine ran for this submission.
func (s Submission) Executed() bool { return s.Result != nil }

// DecisionLog is the audit sink for every submitted decision.
type DecisionLog interface {
	Insert(ctx context.Context, rec decisionlog.Record) (int64, error)
	MarkExecuted(ctx context.Context, id int64, note string) error
}

// ExecutionStore persists engine results.
type ExecutionStore interface {
	SaveExecution(ctx context.Context, rec *model.ExecutionModel) error
}

// Config tunes the manager.
type Config struct {
	// BrokerName is recorded with every execution.
	BrokerName string
	DryRun     bool
	// Source tags decision log rows, e.g. "http" or "cli".
	Source string
	// QueueSize bounds pending cycles per symbol.
	QueueSize int
	// SlowCycle is the duration above which a cycle is logged as slow.
	SlowCycle time.Duration
}

// envelope is one queued decision cycle.
type envelope struct {
	ctx     context.Context
	fields  decision.Fields
	traceID string
	source  string
	reply   chan cycleReply
}

type cycleReply struct {
	sub Submission
	err error
}

var timeNow = time.Now
