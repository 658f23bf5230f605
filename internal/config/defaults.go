package config

import (
	"strings"

	"tradebot/internal/decision"
)

const (
	defaultAppEnv          = "dev"
	defaultAppLogLevel     = "info"
	defaultAppHTTPAddr     = ":9991"
	defaultBrokerKind      = BrokerPaper
	defaultStopLossPct     = 0.01
	defaultTakeProfitPct   = 0.02
	defaultPositionPct     = 10
	defaultBinanceTimeout  = 15
	defaultAngelExchange   = "NSE"
	defaultAngelProduct    = "INTRADAY"
	defaultPaperBalance    = 10000
	defaultPaperCurrency   = "USDT"
	defaultExecutionDB     = "data/executions.db"
	defaultDecisionDB      = "data/decisions.db"
	defaultCircuitFailures = 5
	defaultCircuitTimeout  = 60
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Risk.applyDefaults(keys)
	c.Broker.applyDefaults(keys)
	c.Binance.applyDefaults(keys)
	c.AngelOne.applyDefaults(keys)
	c.Paper.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Circuit.applyDefaults(keys)
	c.Symbols = normalizeSymbols(c.Symbols)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (r *RiskConfig) applyDefaults(keys keySet) {
	def := decision.DefaultConfig()
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "risk.max_leverage",
			need:  func() bool { return r.MaxLeverage <= 0 },
			apply: func() { r.MaxLeverage = def.MaxLeverage },
		},
		floatFieldDefault("risk.max_position_pct", &r.MaxPositionPct, def.MaxPositionPct),
		floatFieldDefault("risk.max_confidence", &r.MaxConfidence, def.MaxConfidence),
		floatFieldDefault("risk.min_risk_reward_ratio", &r.MinRiskRewardRatio, def.MinRiskRewardRatio),
		floatFieldDefault("risk.default_stop_loss_pct", &r.DefaultStopLossPct, defaultStopLossPct),
		floatFieldDefault("risk.default_take_profit_pct", &r.DefaultTakeProfitPct, defaultTakeProfitPct),
		floatFieldDefault("risk.default_position_pct", &r.DefaultPositionPct, defaultPositionPct),
	)
}

func (b *BrokerConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys, stringFieldDefault("broker.kind", &b.Kind, defaultBrokerKind))
	b.Kind = b.NormalizedKind()
}

func (b *BinanceConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "binance.http_timeout_seconds",
			need:  func() bool { return b.HTTPTimeoutSeconds <= 0 },
			apply: func() { b.HTTPTimeoutSeconds = defaultBinanceTimeout },
		},
	)
}

func (a *AngelOneConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("angelone.exchange", &a.Exchange, defaultAngelExchange),
		stringFieldDefault("angelone.product_type", &a.ProductType, defaultAngelProduct),
	)
	a.Exchange = strings.ToUpper(a.Exchange)
	a.ProductType = strings.ToUpper(a.ProductType)
}

func (p *PaperConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		floatFieldDefault("paper.balance", &p.Balance, defaultPaperBalance),
		stringFieldDefault("paper.currency", &p.Currency, defaultPaperCurrency),
	)
	if len(p.Prices) > 0 {
		prices := make(map[string]float64, len(p.Prices))
		for sym, px := range p.Prices {
			prices[strings.ToUpper(strings.TrimSpace(sym))] = px
		}
		p.Prices = prices
	}
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		stringFieldDefault("store.execution_db", &s.ExecutionDB, defaultExecutionDB),
		stringFieldDefault("store.decision_db", &s.DecisionDB, defaultDecisionDB),
	)
}

func (c *CircuitConfig) applyDefaults(keys keySet) {
	applyFieldDefaults(keys,
		fieldDefault{
			key:   "circuit.threshold",
			need:  func() bool { return c.Threshold <= 0 },
			apply: func() { c.Threshold = defaultCircuitFailures },
		},
		fieldDefault{
			key:   "circuit.timeout_seconds",
			need:  func() bool { return c.TimeoutSeconds <= 0 },
			apply: func() { c.TimeoutSeconds = defaultCircuitTimeout },
		},
	)
}

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return strings.TrimSpace(*target) == "" },
		apply: func() { *target = def },
	}
}

func floatFieldDefault(key string, target *float64, def float64) fieldDefault {
	return fieldDefault{
		key:   key,
		need:  func() bool { return *target <= 0 },
		apply: func() { *target = def },
	}
}

func normalizeSymbols(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
