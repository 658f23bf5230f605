package trader

import (
	"context"
	"fmt"
	"time"

	"tradebot/internal/decision"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/gateway/notifier"
	"tradebot/internal/logger"
)

const notifyTimeout = 30 * time.Second

// notify pushes the execution outcome of sub in the background. Holds and
// waits are not announced.
func (m *Manager) notify(ctx context.Context, sub Submission, d decision.Decision) {
	if m.notifier == nil || sub.Result == nil {
		return
	}
	if d.Action == decision.ActionHold || d.Action == decision.ActionWait {
		return
	}
	body := executionMessage(sub, d, m.cfg).RenderMarkdown()
	m.notifies.Add(1)
	go func() {
		defer m.notifies.Done()
		nctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
		defer cancel()
		if err := m.notifier.SendText(nctx, body); err != nil {
			logger.Warnf("trader: notify %s failed: %v", sub.TraceID, err)
		}
	}()
}

func executionMessage(sub Submission, d decision.Decision, cfg Config) notifier.StructuredMessage {
	res := sub.Result
	icon := "✅"
	if !res.Success() {
		icon = "❌"
	}
	order := []string{res.Message}
	if res.Quantity > 0 {
		order = append(order, fmt.Sprintf("quantity: %v", res.Quantity))
	}
	if res.EntryPrice > 0 {
		order = append(order, fmt.Sprintf("entry: %v", res.EntryPrice))
	}
	if res.StopLoss > 0 || res.TakeProfit > 0 {
		order = append(order, fmt.Sprintf("SL/TP: %v / %v", res.StopLoss, res.TakeProfit))
	}
	for _, o := range res.Orders {
		if o.Status == exchange.StatusApplied {
			order = append(order, fmt.Sprintf("%s applied", o.Type))
			continue
		}
		order = append(order, fmt.Sprintf("%s %s %v (%s)", o.Side, o.Type, o.Quantity, o.OrderID))
	}
	decisionLines := []string{d.Reasoning}
	if d.Confidence > 0 {
		decisionLines = append(decisionLines, fmt.Sprintf("confidence: %v", d.Confidence))
	}
	if sub.RiskReward != nil {
		decisionLines = append(decisionLines, fmt.Sprintf("risk-reward: %.2f", *sub.RiskReward))
	}
	footer := fmt.Sprintf("broker %s · trace %s", cfg.BrokerName, sub.TraceID)
	if cfg.DryRun {
		footer += " · dry run"
	}
	return notifier.StructuredMessage{
		Icon:  icon,
		Title: fmt.Sprintf("%s %s", sub.Symbol, d.Action),
		Sections: []notifier.MessageSection{
			{Title: "Execution", Lines: order},
			{Title: "Decision", Lines: decisionLines},
		},
		Footer:    footer,
		Timestamp: res.Timestamp,
	}
}
