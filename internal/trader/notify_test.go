package trader

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tradebot/internal/execution"
	"tradebot/internal/gateway/paper"
	symbolpkg "tradebot/internal/pkg/symbol"
	"tradebot/internal/risk"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memNotifier struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (n *memNotifier) SendText(_ context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, text)
	return n.err
}

func (n *memNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.sent...)
}

func newNotifyManager(t *testing.T, n *memNotifier) *Manager {
	t.Helper()
	b := paper.New(paper.Config{Balance: 10000, Currency: "USDT", Prices: map[string]float64{"BTCUSDT": 86000}})
	eng := execution.NewEngine(b, risk.NewDefault(risk.Config{}), execution.Config{})
	m, err := NewManager(Deps{Engine: eng, Symbols: symbolpkg.Binance, Notifier: n}, Config{DryRun: true})
	require.NoError(t, err)
	return m
}

func TestNotifyAnnouncesExecutions(t *testing.T) {
	n := &memNotifier{}
	m := newNotifyManager(t, n)

	sub, err := m.Submit(context.Background(), openLong("BTCUSDT"))
	require.NoError(t, err)
	require.True(t, sub.Result.Success())
	m.Stop()

	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "✅ BTCUSDT open_long")
	assert.Contains(t, msgs[0], "Long position opened successfully")
	assert.Contains(t, msgs[0], "risk-reward: 2.00")
	assert.Contains(t, msgs[0], "LEVERAGE applied")
	assert.Contains(t, msgs[0], "dry run")
	assert.Contains(t, msgs[0], sub.TraceID)
}

func TestNotifySkipsHoldAndRejected(t *testing.T) {
	n := &memNotifier{}
	m := newNotifyManager(t, n)

	_, err := m.Submit(context.Background(), map[string]any{"symbol": "BTCUSDT", "action": "hold", "reasoning": "flat"})
	require.NoError(t, err)
	bad := openLong("BTCUSDT")
	bad["leverage"] = 50
	_, err = m.Submit(context.Background(), bad)
	require.NoError(t, err)
	m.Stop()

	assert.Empty(t, n.messages())
}

func TestNotifyFailureDoesNotFailCycle(t *testing.T) {
	n := &memNotifier{err: errors.New("telegram down")}
	m := newNotifyManager(t, n)

	sub, err := m.Submit(context.Background(), map[string]any{
		"symbol": "BTCUSDT", "action": "close_position", "reasoning": "exit",
	})
	require.NoError(t, err)
	assert.Equal(t, "No position to close", sub.Result.Message)
	m.Stop()

	msgs := n.messages()
	require.Len(t, msgs, 1)
	assert.Contains(t, msgs[0], "❌ BTCUSDT close_position")
}
