package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(append([]string{"--env-file", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestValidateFromStdin(t *testing.T) {
	input := "Model says:\n```json\n" + `[
	{"symbol":"BTCUSDT","action":"open_long","reasoning":"breakout","leverage":3,
	 "position_size_usd":400,"entry_price":86000,"stop_loss":84710,"take_profit":88580,"confidence":75},
	{"symbol":"ETHUSDT","action":"hold","reasoning":"chop"}
]` + "\n```"
	out, err := runCmd(t, input, "validate", "--defaults", "-")
	require.NoError(t, err)

	var rows []validateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Valid)
	require.NotNil(t, rows[0].RiskReward)
	assert.InDelta(t, 2.0, *rows[0].RiskReward, 1e-9)
	assert.Equal(t, "Decision validation passed: open_long, risk-reward ratio: 2.00", rows[0].Summary)
	assert.True(t, rows[1].Valid)
	assert.Nil(t, rows[1].RiskReward)
}

func TestValidateReportsFailures(t *testing.T) {
	input := `{"symbol":"BTCUSDT","action":"open_long","reasoning":"x","leverage":20,
		"position_size_usd":400,"entry_price":86000,"stop_loss":87000,"take_profit":88000}`
	out, err := runCmd(t, input, "validate", "--defaults")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 decisions failed validation")

	var rows []validateOutput
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 1)
	assert.False(t, rows[0].Valid)
	assert.Contains(t, rows[0].Errors, "leverage out of range [1, 5]: 20")
}

func TestValidateRejectsInputWithoutJSON(t *testing.T) {
	_, err := runCmd(t, "no decision here", "validate", "--defaults")
	require.Error(t, err)
}

func TestPnLLinear(t *testing.T) {
	out, err := runCmd(t, "", "pnl", "--entry", "50000", "--exit", "51000", "--qty", "0.5")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "500", got["pnl"])
	assert.Equal(t, "LINEAR", got["type"])
}

func TestPnLInverseShortProfitsOnDrop(t *testing.T) {
	out, err := runCmd(t, "", "pnl", "--preset", "inverse_btc", "--side", "short",
		"--entry", "50000", "--exit", "40000", "--qty", "100", "--leverage", "10")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "0.05", got["pnl_coin"])
	assert.Equal(t, "2000", got["pnl_usd"])
	assert.Equal(t, "54800", got["liquidation_price"])
}

func TestPnLRejectsBadSide(t *testing.T) {
	_, err := runCmd(t, "", "pnl", "--entry", "1", "--exit", "2", "--qty", "1", "--side", "sideways")
	require.Error(t, err)
}
