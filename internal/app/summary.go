package app

import (
	"fmt"
	"io"
	"os"
	"strings"

	"tradebot/internal/config"
)

type StartupSummary struct {
	Version  string
	Env      string
	Broker   BrokerSummary
	Risk     RiskSummary
	Store    config.StoreConfig
	HTTPAddr string
	Symbols  []string
	Out      io.Writer
}

type BrokerSummary struct {
	Name      string
	Kind      string
	DryRun    bool
	HedgeMode bool
}

type RiskSummary struct {
	MaxLeverage        int
	MaxPositionPct     float64
	MinConfidence      float64
	MinRiskRewardRatio float64
	DefaultStopLoss    float64
	DefaultTakeProfit  float64
	RiskFile           string
}

func NewStartupSummary(cfg *config.Config, brokerName string, symbols []string) *StartupSummary {
	return &StartupSummary{
		Version: Version,
		Env:     cfg.App.Env,
		Broker: BrokerSummary{
			Name:      brokerName,
			Kind:      cfg.Broker.NormalizedKind(),
			DryRun:    cfg.Broker.DryRun,
			HedgeMode: cfg.Broker.HedgeMode,
		},
		Risk: RiskSummary{
			MaxLeverage:        cfg.Risk.MaxLeverage,
			MaxPositionPct:     cfg.Risk.MaxPositionPct,
			MinConfidence:      cfg.Risk.MinConfidence,
			MinRiskRewardRatio: cfg.Risk.MinRiskRewardRatio,
			DefaultStopLoss:    cfg.Risk.DefaultStopLossPct,
			DefaultTakeProfit:  cfg.Risk.DefaultTakeProfitPct,
			RiskFile:           cfg.Risk.RiskFile,
		},
		Store:    cfg.Store,
		HTTPAddr: cfg.App.HTTPAddr,
		Symbols:  symbols,
	}
}

func (s *StartupSummary) Print() {
	w := s.Out
	if w == nil {
		w = os.Stdout
	}
	title := "STARTUP SUMMARY"
	fmt.Fprintln(w, strings.Repeat("=", 80))
	fmt.Fprintf(w, "%*s\n", 40+len(title)/2, title)
	fmt.Fprintln(w, strings.Repeat("=", 80))

	fmt.Fprintf(w, "  version: %s  env: %s\n", s.Version, orNone(s.Env))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[BROKER]")
	fmt.Fprintf(w, "  name: %s (kind: %s)\n", s.Broker.Name, s.Broker.Kind)
	fmt.Fprintf(w, "  dry run: %t  hedge mode: %t\n", s.Broker.DryRun, s.Broker.HedgeMode)
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[RISK]")
	fmt.Fprintf(w, "  max leverage: %dx  max position: %.1f%%\n", s.Risk.MaxLeverage, s.Risk.MaxPositionPct)
	fmt.Fprintf(w, "  min confidence: %.0f  min risk-reward: %.2f\n", s.Risk.MinConfidence, s.Risk.MinRiskRewardRatio)
	fmt.Fprintf(w, "  default SL/TP: %.2f%% / %.2f%%\n", s.Risk.DefaultStopLoss*100, s.Risk.DefaultTakeProfit*100)
	fmt.Fprintf(w, "  risk file: %s\n", orNone(s.Risk.RiskFile))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[STORAGE]")
	fmt.Fprintf(w, "  executions: %s\n", orNone(s.Store.ExecutionDB))
	fmt.Fprintf(w, "  decisions: %s\n", orNone(s.Store.DecisionDB))
	fmt.Fprintln(w)

	fmt.Fprintln(w, "[SERVING]")
	fmt.Fprintf(w, "  http: %s\n", orNone(s.HTTPAddr))
	fmt.Fprintf(w, "  symbols: %s\n", formatList(s.Symbols))
	fmt.Fprintln(w, strings.Repeat("=", 80))
}

func formatList(items []string) string {
	if len(items) == 0 {
		return "(none)"
	}
	return strings.Join(items, ", ")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(none)"
	}
	return s
}
