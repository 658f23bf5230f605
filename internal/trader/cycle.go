package trader

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"tradebot/internal/decision"
	"tradebot/internal/execution"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/logger"
	"tradebot/internal/store/decisionlog"
	"tradebot/internal/store/gormstore"
	"tradebot/internal/trace"

	"go.opentelemetry.io/otel/attribute"
)

const failedPrefix = "Execution failed: "

// runCycle is validate, snapshot, execute, persist for one decision. Once
// the broker has been touched the cycle runs to completion even if the
// caller gives up waiting.
func (m *Manager) runCycle(env envelope) (Submission, error) {
	if err := env.ctx.Err(); err != nil {
		return Submission{}, err
	}
	ctx := context.WithoutCancel(env.ctx)
	f := env.fields
	ctx, span := trace.StartSpan(ctx, "trader.cycle",
		attribute.String("trace_id", env.traceID),
		attribute.String("symbol", f.String("symbol")),
		attribute.String("action", f.String("action")),
	)
	defer span.End()

	v := m.validator.Load()
	res := v.Validate(f)
	sub := Submission{
		TraceID:    env.traceID,
		Symbol:     actorKey(m.conv, f.String("symbol")),
		Validation: res,
		RiskReward: riskReward(f),
		Summary:    v.Summary(f),
	}
	sub.DecisionLogID = m.logDecision(ctx, env, sub)
	log := logger.With("trace_id", env.traceID, "symbol", sub.Symbol, "action", f.String("action"))

	if !res.Valid {
		raw, _ := json.Marshal(f)
		logger.LogDecisionPayload(env.source, sub.Symbol, string(raw), res.Errors)
		log.Warn("decision rejected", "errors", len(res.Errors))
		return sub, nil
	}
	d, err := f.Decode()
	if err != nil {
		trace.Fail(span, err)
		return sub, err
	}
	d.Symbol = sub.Symbol

	result := m.execute(ctx, d)
	sub.Result = &result
	m.persist(ctx, &sub, d)
	m.notify(ctx, sub, d)
	log.Info("decision cycle done", "success", result.Success(), "message", result.Message)
	return sub, nil
}

func (m *Manager) execute(ctx context.Context, d decision.Decision) execution.Result {
	if d.Action == decision.ActionHold || d.Action == decision.ActionWait {
		return m.engine.Execute(ctx, execution.Request{Decision: d})
	}
	if m.breaker != nil && !m.breaker.Allow() {
		logger.Warnf("trader: %s skipped, broker circuit %s is open", d.Symbol, m.breaker.Name())
		return failedResult(d, fmt.Sprintf("circuit %s open", m.breaker.Name()))
	}
	req, err := m.snapshot(ctx, d)
	if err != nil {
		m.recordBroker(false)
		return failedResult(d, "snapshot: "+err.Error())
	}
	result := m.engine.Execute(ctx, req)
	// only broker and sizing errors count against the circuit
	m.recordBroker(result.Success() || !strings.HasPrefix(result.Message, failedPrefix))
	return result
}

func (m *Manager) recordBroker(ok bool) {
	if m.breaker == nil {
		return
	}
	if ok {
		m.breaker.RecordSuccess()
	} else {
		m.breaker.RecordFailure()
	}
}

// snapshot reads the account state the engine sizes against. Concurrent
// cycles share one balance request.
func (m *Manager) snapshot(ctx context.Context, d decision.Decision) (execution.Request, error) {
	v, err, _ := m.balances.Do("balance", func() (any, error) {
		return m.broker.GetBalance(ctx)
	})
	if err != nil {
		return execution.Request{}, fmt.Errorf("balance: %w", err)
	}
	pos, err := m.broker.GetPosition(ctx, d.Symbol)
	if err != nil {
		return execution.Request{}, fmt.Errorf("position: %w", err)
	}
	px, err := m.broker.GetPrice(ctx, d.Symbol)
	if err != nil {
		return execution.Request{}, fmt.Errorf("price: %w", err)
	}
	return execution.Request{
		Decision:     d,
		Balance:      v.(exchange.Balance),
		Position:     pos,
		CurrentPrice: px,
	}, nil
}

func failedResult(d decision.Decision, msg string) execution.Result {
	return execution.Result{
		Outcome:   execution.OutcomeFailed,
		Action:    string(d.Action),
		Symbol:    d.Symbol,
		Timestamp: timeNow(),
		Message:   failedPrefix + msg,
	}
}

func (m *Manager) logDecision(ctx context.Context, env envelope, sub Submission) int64 {
	if m.decisions == nil {
		return 0
	}
	raw, err := json.Marshal(env.fields)
	if err != nil {
		raw = []byte("{}")
	}
	id, err := m.decisions.Insert(ctx, decisionlog.Record{
		TraceID:    env.traceID,
		Source:     env.source,
		Symbol:     sub.Symbol,
		Action:     env.fields.String("action"),
		Valid:      sub.Validation.Valid,
		Errors:     sub.Validation.Errors,
		RiskReward: sub.RiskReward,
		Summary:    sub.Summary,
		RawJSON:    string(raw),
	})
	if err != nil {
		logger.Errorf("trader: decision log insert failed (%s): %v", env.traceID, err)
		return 0
	}
	return id
}

// persist records the result. Failures are logged only: the orders have
// already been placed.
func (m *Manager) persist(ctx context.Context, sub *Submission, d decision.Decision) {
	if m.executions != nil {
		rec, err := gormstore.ExecutionRecord(sub.TraceID, m.cfg.BrokerName, m.cfg.DryRun, *sub.Result, d)
		if err == nil {
			err = m.executions.SaveExecution(ctx, rec)
		}
		if err != nil {
			logger.Errorf("trader: save execution failed (%s): %v", sub.TraceID, err)
		} else {
			sub.ExecutionID = rec.ID
		}
	}
	if m.decisions != nil && sub.DecisionLogID > 0 {
		if err := m.decisions.MarkExecuted(ctx, sub.DecisionLogID, sub.Result.Message); err != nil {
			logger.Errorf("trader: mark decision %d executed failed: %v", sub.DecisionLogID, err)
		}
	}
}
