package app

import (
	"strings"

	"tradebot/internal/config"
	"tradebot/internal/config/loader"
	"tradebot/internal/decision"
	"tradebot/internal/execution"
	"tradebot/internal/gateway"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/gateway/notifier"
	"tradebot/internal/logger"
	"tradebot/internal/pkg/circuit"
	symbolpkg "tradebot/internal/pkg/symbol"
	"tradebot/internal/risk"
	"tradebot/internal/store/decisionlog"
	"tradebot/internal/store/gormstore"
	"tradebot/internal/trader"
	livehttp "tradebot/internal/transport/http/live"
)

// Stores groups the optional persistence backends. Either may be nil.
type Stores struct {
	Executions *gormstore.GormStore
	Decisions  *decisionlog.DecisionLogStore
}

func (s *Stores) close() {
	if s.Decisions != nil {
		if err := s.Decisions.Close(); err != nil {
			logger.Warnf("decision log close failed: %v", err)
		}
	}
	if s.Executions != nil {
		if err := s.Executions.Close(); err != nil {
			logger.Warnf("execution store close failed: %v", err)
		}
	}
}

func provideBroker(cfg *config.Config) (exchange.Broker, error) {
	return gateway.NewBrokerFromConfig(cfg)
}

func provideRiskManager() risk.Manager {
	return risk.NewDefault(risk.Config{})
}

func provideEngine(cfg *config.Config, broker exchange.Broker, rm risk.Manager) *execution.Engine {
	return execution.NewEngine(broker, rm, execution.Config{
		DefaultStopLossPct:   cfg.Risk.DefaultStopLossPct,
		DefaultTakeProfitPct: cfg.Risk.DefaultTakeProfitPct,
		DefaultPositionPct:   cfg.Risk.DefaultPositionPct,
		HedgeMode:            cfg.Broker.HedgeMode,
		ProductType:          cfg.AngelOne.ProductType,
	})
}

func provideBreaker(cfg *config.Config, broker exchange.Broker) *circuit.CircuitBreaker {
	cb := circuit.NewCircuitBreaker(broker.Name(), cfg.Circuit.Threshold, cfg.Circuit.Timeout())
	cb.SetStateChangeHandler(func(name string, from, to circuit.State) {
		logger.With("circuit", name, "from", from.String(), "to", to.String()).Warn("broker circuit state changed")
	})
	return cb
}

// provideStores opens the stores named in cfg. When both point at the same
// file the decision log reuses the execution store's connection pool.
func provideStores(cfg *config.Config) (*Stores, func(), error) {
	s := &Stores{}
	execPath := strings.TrimSpace(cfg.Store.ExecutionDB)
	decPath := strings.TrimSpace(cfg.Store.DecisionDB)
	if execPath != "" {
		store, err := gormstore.NewGormStore(execPath)
		if err != nil {
			return nil, nil, err
		}
		s.Executions = store
	}
	if decPath != "" {
		logs, err := decisionlog.NewDecisionLogStore(decPath)
		if err != nil {
			s.close()
			return nil, nil, err
		}
		s.Decisions = logs
		if decPath == execPath && s.Executions != nil {
			db, err := s.Executions.SQLDB()
			if err == nil {
				err = logs.UseExternalDB(db)
			}
			if err != nil {
				s.close()
				return nil, nil, err
			}
		}
	}
	return s, s.close, nil
}

// provideNotifier returns nil when no notification channel is enabled.
func provideNotifier(cfg *config.Config) notifier.TextNotifier {
	tg := cfg.Notify.Telegram
	if !tg.Enabled {
		return nil
	}
	return notifier.NewTelegram(tg.BotToken, tg.ChatID, tg.BaseURL)
}

// provideThresholds loads the validator thresholds, from the watched risk
// file when one is configured.
func provideThresholds(cfg *config.Config) (decision.Config, *loader.RiskLoader, error) {
	if strings.TrimSpace(cfg.Risk.RiskFile) == "" {
		return cfg.Risk.Thresholds(), nil, nil
	}
	rl, err := loader.NewRiskLoader(cfg.Risk.RiskFile)
	if err != nil {
		return decision.Config{}, nil, err
	}
	return rl.Snapshot().Config, rl, nil
}

func provideManager(cfg *config.Config, engine *execution.Engine, breaker *circuit.CircuitBreaker, stores *Stores, notify notifier.TextNotifier) (*trader.Manager, func(), error) {
	thresholds, rl, err := provideThresholds(cfg)
	if err != nil {
		return nil, nil, err
	}
	deps := trader.Deps{
		Engine:    engine,
		Validator: decision.NewValidator(thresholds),
		Breaker:   breaker,
		Symbols:   symbolpkg.ForVenue(cfg.Broker.NormalizedKind()),
		Notifier:  notify,
	}
	if stores.Executions != nil {
		deps.Executions = stores.Executions
	}
	if stores.Decisions != nil {
		deps.Decisions = stores.Decisions
	}
	m, err := trader.NewManager(deps, trader.Config{
		BrokerName: cfg.Broker.NormalizedKind(),
		DryRun:     cfg.Broker.DryRun,
		Source:     "cli",
	})
	if err != nil {
		return nil, nil, err
	}
	if rl != nil {
		rl.Subscribe(func(s loader.RiskSnapshot) { m.SetThresholds(s.Config) })
	}
	if err := m.Start(cfg.Symbols); err != nil {
		m.Stop()
		return nil, nil, err
	}
	return m, m.Stop, nil
}

func provideServer(cfg *config.Config, m *trader.Manager, stores *Stores, breaker *circuit.CircuitBreaker) (*livehttp.Server, error) {
	sc := livehttp.ServerConfig{
		Addr:       cfg.App.HTTPAddr,
		BrokerName: cfg.Broker.NormalizedKind(),
		Trader:     m,
		Circuit:    breaker,
	}
	if stores.Executions != nil {
		sc.Executions = stores.Executions
	}
	if stores.Decisions != nil {
		sc.Decisions = stores.Decisions
	}
	return livehttp.NewServer(sc)
}
