package logger

import (
	"bytes"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLevelAndOutput(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stdout)
	defer SetLevel("info")

	SetLevel("warn")
	Infof("hidden %d", 1)
	Warnf("shown %d", 2)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown 2")

	buf.Reset()
	SetLevel("debug")
	With("symbol", "BTCUSDT", "success", true).Debug("execution")
	assert.Contains(t, buf.String(), "symbol=BTCUSDT")
	assert.Contains(t, buf.String(), "success=true")
}

func TestSetLevelNames(t *testing.T) {
	defer SetLevel("info")
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" INFO ":  slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"chatty":  slog.LevelInfo,
		"":        slog.LevelInfo,
	}
	for name, want := range cases {
		SetLevel(name)
		assert.Equal(t, want, Level(), name)
	}
}

func TestDecisionPayload(t *testing.T) {
	var buf bytes.Buffer
	SetPayloadWriter(&buf)
	defer SetPayloadWriter(nil)

	LogDecisionPayload("http", "BTCUSDT", `{"action":"hold"}`, []string{"Missing required field: symbol"})
	out := buf.String()
	assert.Contains(t, out, "[DECISION][http][BTCUSDT]")
	assert.Contains(t, out, "--- RAW ---\n{\"action\":\"hold\"}\n")
	assert.Contains(t, out, "--- REJECTED ---\nMissing required field: symbol\n")

	buf.Reset()
	LogDecisionPayload("http", "", "   ", nil)
	assert.Empty(t, buf.String())
}
