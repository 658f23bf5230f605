// Package trader routes decisions to per-symbol actors that validate,
// snapshot the account, execute and persist one cycle at a time.
package trader

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"tradebot/internal/decision"
	"tradebot/internal/execution"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/gateway/notifier"
	"tradebot/internal/logger"
	"tradebot/internal/pkg/circuit"
	symbolpkg "tradebot/internal/pkg/symbol"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

var ErrStopped = errors.New("trader manager is stopped")

const (
	defaultQueueSize = 16
	defaultSlowCycle = 5 * time.Second
)

// Deps are the collaborators of a Manager. Decisions, Executions, Breaker
// and Notifier are optional.
type Deps struct {
	Engine     *execution.Engine
	Validator  *decision.Validator
	Breaker    *circuit.CircuitBreaker
	Symbols    symbolpkg.Converter
	Decisions  DecisionLog
	Executions ExecutionStore
	Notifier   notifier.TextNotifier
}

type Manager struct {
	cfg        Config
	engine     *execution.Engine
	broker     exchange.Broker
	breaker    *circuit.CircuitBreaker
	conv       symbolpkg.Converter
	decisions  DecisionLog
	executions ExecutionStore
	notifier   notifier.TextNotifier

	validator atomic.Pointer[decision.Validator]
	balances  singleflight.Group

	mu       sync.Mutex
	actors   map[string]*symbolActor
	stopped  bool
	notifies sync.WaitGroup
}

func NewManager(deps Deps, cfg Config) (*Manager, error) {
	if deps.Engine == nil {
		return nil, fmt.Errorf("trader: engine is required")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.SlowCycle <= 0 {
		cfg.SlowCycle = defaultSlowCycle
	}
	if cfg.BrokerName == "" {
		cfg.BrokerName = deps.Engine.Broker().Name()
	}
	m := &Manager{
		cfg:        cfg,
		engine:     deps.Engine,
		broker:     deps.Engine.Broker(),
		breaker:    deps.Breaker,
		conv:       deps.Symbols,
		decisions:  deps.Decisions,
		executions: deps.Executions,
		notifier:   deps.Notifier,
		actors:     make(map[string]*symbolActor),
	}
	v := deps.Validator
	if v == nil {
		v = decision.NewValidator(decision.DefaultConfig())
	}
	m.validator.Store(v)
	return m, nil
}

// Validator returns the validator currently in effect.
func (m *Manager) Validator() *decision.Validator { return m.validator.Load() }

// SetThresholds swaps in a validator built from cfg. Cycles already running
// finish with the validator they started with.
func (m *Manager) SetThresholds(cfg decision.Config) {
	m.validator.Store(decision.NewValidator(cfg))
	logger.Infof("trader: risk thresholds updated: max_leverage=%d max_position_pct=%v min_rr=%v",
		cfg.MaxLeverage, cfg.MaxPositionPct, cfg.MinRiskRewardRatio)
}

// Check validates f without executing or logging it.
func (m *Manager) Check(f decision.Fields) (decision.Result, *float64, string) {
	v := m.validator.Load()
	return v.Validate(f), riskReward(f), v.Summary(f)
}

// Submit runs one decision through its symbol's actor and waits for it.
func (m *Manager) Submit(ctx context.Context, f decision.Fields) (Submission, error) {
	return m.submit(ctx, f, m.cfg.Source)
}

// SubmitFrom is Submit with an explicit decision log source.
func (m *Manager) SubmitFrom(ctx context.Context, source string, f decision.Fields) (Submission, error) {
	return m.submit(ctx, f, source)
}

func (m *Manager) submit(ctx context.Context, f decision.Fields, source string) (Submission, error) {
	env := envelope{ctx: ctx, fields: f, traceID: uuid.NewString(), source: source}
	key := actorKey(m.conv, f.String("symbol"))
	if key == "" {
		// no symbol means validation fails; nothing reaches the broker
		return m.runCycle(env)
	}
	a, err := m.actor(key)
	if err != nil {
		return Submission{}, err
	}
	return a.send(ctx, env)
}

// SubmitAll submits a batch. Decisions for the same symbol run in input
// order; different symbols run concurrently. Results keep input order.
func (m *Manager) SubmitAll(ctx context.Context, source string, batch []decision.Fields) ([]Submission, error) {
	out := make([]Submission, len(batch))
	groups := make(map[string][]int)
	var order []string
	for i, f := range batch {
		key := actorKey(m.conv, f.String("symbol"))
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], i)
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, key := range order {
		idx := groups[key]
		g.Go(func() error {
			for _, i := range idx {
				sub, err := m.submit(gctx, batch[i], source)
				if err != nil {
					return fmt.Errorf("decision %d: %w", i, err)
				}
				out[i] = sub
			}
			return nil
		})
	}
	err := g.Wait()
	return out, err
}

// Symbols lists the symbols with a running actor.
func (m *Manager) Symbols() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.actors))
	for sym := range m.actors {
		out = append(out, sym)
	}
	return out
}

// Start pre-creates actors for symbols.
func (m *Manager) Start(symbols []string) error {
	for _, s := range symbols {
		if key := actorKey(m.conv, s); key != "" {
			if _, err := m.actor(key); err != nil {
				return err
			}
		}
	}
	return nil
}

// Stop stops every actor after its current cycle.
func (m *Manager) Stop() {
	m.mu.Lock()
	m.stopped = true
	actors := make([]*symbolActor, 0, len(m.actors))
	for _, a := range m.actors {
		actors = append(actors, a)
	}
	m.mu.Unlock()
	for _, a := range actors {
		a.stop()
	}
	m.notifies.Wait()
}

func (m *Manager) actor(key string) (*symbolActor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return nil, ErrStopped
	}
	a, ok := m.actors[key]
	if !ok {
		a = newSymbolActor(key, m, m.cfg.QueueSize)
		a.start()
		m.actors[key] = a
	}
	return a, nil
}

func riskReward(f decision.Fields) *float64 {
	if rr, ok := decision.RiskRewardRatio(f); ok {
		return &rr
	}
	return nil
}
