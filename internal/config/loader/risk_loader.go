// Package loader watches the risk threshold file and republishes it on change.
package loader

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tradebot/internal/decision"
	"tradebot/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// RiskSnapshot is one immutable version of the thresholds.
type RiskSnapshot struct {
	Version  int
	LoadedAt time.Time
	Config   decision.Config
}

// ChangeListener is called with every new snapshot.
type ChangeListener func(RiskSnapshot)

// RiskLoader reads a YAML threshold file and reloads it when it changes.
type RiskLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  RiskSnapshot
	listeners []ChangeListener
}

// NewRiskLoader loads path and starts watching it.
func NewRiskLoader(path string) (*RiskLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("risk loader requires path")
	}
	l := &RiskLoader{path: path}
	if err := l.Reload(); err != nil {
		return nil, err
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read risk config failed: %w", err)
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.Reload(); err != nil {
			// keep serving the last good snapshot
			logger.Errorf("risk reload failed (%s): %v", evt.Name, err)
		}
	})
	v.WatchConfig()
	l.v = v
	return l, nil
}

// Snapshot returns the thresholds currently in effect.
func (l *RiskLoader) Snapshot() RiskSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.snapshot
}

// Subscribe registers fn and immediately delivers the current snapshot.
func (l *RiskLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := l.snapshot
	l.mu.Unlock()
	go deliver(fn, snap)
}

// Reload re-reads the file and notifies subscribers. Unknown keys and
// out-of-range thresholds are rejected and the previous snapshot is kept.
func (l *RiskLoader) Reload() error {
	cfg, err := readRiskFile(l.path)
	if err != nil {
		return err
	}
	l.mu.Lock()
	l.snapshot = RiskSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Config:   cfg,
	}
	snap := l.snapshot
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.Unlock()

	logger.Infof("risk thresholds v%d loaded from %s: max_leverage=%d max_position_pct=%v min_rr=%v",
		snap.Version, filepath.Base(l.path), cfg.MaxLeverage, cfg.MaxPositionPct, cfg.MinRiskRewardRatio)
	for _, fn := range listeners {
		go deliver(fn, snap)
	}
	return nil
}

func deliver(fn ChangeListener, snap RiskSnapshot) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("risk listener panic: %v", r)
		}
	}()
	fn(snap)
}

func readRiskFile(path string) (decision.Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return decision.Config{}, fmt.Errorf("read risk config failed: %w", err)
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		// editors truncate before writing; an empty read is not a valid config
		return decision.Config{}, fmt.Errorf("risk config %s is empty", path)
	}
	cfg := decision.DefaultConfig()
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return decision.Config{}, fmt.Errorf("parse risk config failed: %w", err)
	}
	if err := checkThresholds(cfg); err != nil {
		return decision.Config{}, err
	}
	return cfg, nil
}

func checkThresholds(c decision.Config) error {
	switch {
	case c.MaxLeverage < 1:
		return fmt.Errorf("max_leverage must be >= 1, got %d", c.MaxLeverage)
	case c.MaxPositionPct <= 0 || c.MaxPositionPct > 100:
		return fmt.Errorf("max_position_pct must be in (0, 100], got %v", c.MaxPositionPct)
	case c.MinConfidence < 0 || c.MinConfidence > c.MaxConfidence:
		return fmt.Errorf("confidence range invalid: [%v, %v]", c.MinConfidence, c.MaxConfidence)
	case c.MinRiskRewardRatio < 0:
		return fmt.Errorf("min_risk_reward_ratio must be >= 0, got %v", c.MinRiskRewardRatio)
	}
	return nil
}
