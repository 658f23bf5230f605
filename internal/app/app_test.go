package app

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"tradebot/internal/config"
	"tradebot/internal/decision"
	"tradebot/internal/store/decisionlog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{}
	cfg.App.HTTPAddr = "127.0.0.1:0"
	cfg.App.LogLevel = "error"
	cfg.Broker.Kind = config.BrokerPaper
	cfg.Paper.Balance = 10000
	cfg.Paper.Currency = "USDT"
	cfg.Paper.Prices = map[string]float64{"BTCUSDT": 86000}
	cfg.Risk.MaxLeverage = 5
	cfg.Risk.MaxPositionPct = 30
	cfg.Risk.MaxConfidence = 100
	cfg.Risk.MinRiskRewardRatio = 2
	cfg.Risk.DefaultStopLossPct = 0.01
	cfg.Risk.DefaultTakeProfitPct = 0.02
	cfg.Risk.DefaultPositionPct = 10
	cfg.Circuit.Threshold = 3
	cfg.Circuit.TimeoutSeconds = 10
	cfg.Store.ExecutionDB = filepath.Join(dir, "tradebot.db")
	cfg.Store.DecisionDB = filepath.Join(dir, "tradebot.db")
	cfg.Symbols = []string{"BTCUSDT"}
	return cfg
}

func TestNewAppWiresPaperStack(t *testing.T) {
	a, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Equal(t, "paper", a.Broker().Name())
	assert.Equal(t, []string{"BTCUSDT"}, a.Manager().Symbols())
	require.NotNil(t, a.Stores().Executions)
	require.NotNil(t, a.Stores().Decisions)

	sub, err := a.Manager().Submit(context.Background(), decision.Fields{
		"symbol":     "BTCUSDT",
		"action":     "hold",
		"reasoning":  "flat market",
		"confidence": 40.0,
	})
	require.NoError(t, err)
	assert.True(t, sub.Validation.Valid)
	require.NotNil(t, sub.Result)
	assert.Equal(t, "Hold - no action taken", sub.Result.Message)

	n, err := a.Stores().Decisions.Count(context.Background(), decisionlog.Query{Symbol: "BTCUSDT"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewAppRejectsUnknownBroker(t *testing.T) {
	cfg := testConfig(t)
	cfg.Broker.Kind = "kraken"
	_, err := NewApp(context.Background(), cfg)
	require.Error(t, err)
}

func TestRunStopsOnCancel(t *testing.T) {
	a, err := NewApp(context.Background(), testConfig(t))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()
	cancel()
	require.NoError(t, <-done)
	a.Close()
}

func TestStartupSummaryPrint(t *testing.T) {
	cfg := testConfig(t)
	var buf bytes.Buffer
	s := NewStartupSummary(cfg, "paper", []string{"BTCUSDT", "ETHUSDT"})
	s.Out = &buf
	s.Print()
	out := buf.String()
	assert.Contains(t, out, "STARTUP SUMMARY")
	assert.Contains(t, out, "max leverage: 5x")
	assert.Contains(t, out, "symbols: BTCUSDT, ETHUSDT")
	assert.Contains(t, out, "risk file: (none)")
}
