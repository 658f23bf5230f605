package config

import (
	"strings"
	"time"

	"tradebot/internal/decision"
)

// Config is the root of the tradebot configuration file.
type Config struct {
	App      AppConfig      `toml:"app"`
	Risk     RiskConfig     `toml:"risk"`
	Broker   BrokerConfig   `toml:"broker"`
	Binance  BinanceConfig  `toml:"binance"`
	AngelOne AngelOneConfig `toml:"angelone"`
	Paper    PaperConfig    `toml:"paper"`
	Store    StoreConfig    `toml:"store"`
	Circuit  CircuitConfig  `toml:"circuit"`
	Tracing  TracingConfig  `toml:"tracing"`
	Notify   NotifyConfig   `toml:"notify"`
	Symbols  []string       `toml:"symbols"`
}

type AppConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	LogPath  string `toml:"log_path"`
	HTTPAddr string `toml:"http_addr"`
	// PayloadLog receives raw decision text and rejection reasons.
	PayloadLog string `toml:"payload_log"`
}

// RiskConfig holds the validator thresholds and the engine's fallback
// percentages. RiskFile, when set, overrides the thresholds and is watched.
type RiskConfig struct {
	MaxLeverage          int     `toml:"max_leverage"`
	MaxPositionPct       float64 `toml:"max_position_pct"`
	MinConfidence        float64 `toml:"min_confidence"`
	MaxConfidence        float64 `toml:"max_confidence"`
	MinRiskRewardRatio   float64 `toml:"min_risk_reward_ratio"`
	DefaultStopLossPct   float64 `toml:"default_stop_loss_pct"`
	DefaultTakeProfitPct float64 `toml:"default_take_profit_pct"`
	DefaultPositionPct   float64 `toml:"default_position_pct"`
	RiskFile             string  `toml:"risk_file"`
}

// Thresholds is the validator view of the risk section.
func (r RiskConfig) Thresholds() decision.Config {
	return decision.Config{
		MaxLeverage:        r.MaxLeverage,
		MaxPositionPct:     r.MaxPositionPct,
		MinConfidence:      r.MinConfidence,
		MaxConfidence:      r.MaxConfidence,
		MinRiskRewardRatio: r.MinRiskRewardRatio,
	}
}

type BrokerConfig struct {
	// Kind is binance, angelone or paper.
	Kind      string `toml:"kind"`
	DryRun    bool   `toml:"dry_run"`
	HedgeMode bool   `toml:"hedge_mode"`
}

// NormalizedKind lowercases Kind and folds aliases.
func (b BrokerConfig) NormalizedKind() string {
	switch k := strings.ToLower(strings.TrimSpace(b.Kind)); k {
	case "binance-futures", "binance_futures":
		return BrokerBinance
	case "angel", "angel_one", "angel-one", "smartapi":
		return BrokerAngelOne
	default:
		return k
	}
}

const (
	BrokerBinance  = "binance"
	BrokerAngelOne = "angelone"
	BrokerPaper    = "paper"
)

type BinanceConfig struct {
	APIKey             string `toml:"api_key"`
	SecretKey          string `toml:"secret_key"`
	RESTBaseURL        string `toml:"rest_base_url"`
	Testnet            bool   `toml:"testnet"`
	HTTPTimeoutSeconds int    `toml:"http_timeout_seconds"`
	ProxyEnabled       bool   `toml:"proxy_enabled"`
	RESTProxyURL       string `toml:"rest_proxy_url"`
}

func (b BinanceConfig) HTTPTimeout() time.Duration {
	return time.Duration(b.HTTPTimeoutSeconds) * time.Second
}

type AngelOneConfig struct {
	APIKey             string            `toml:"api_key"`
	ClientCode         string            `toml:"client_code"`
	Password           string            `toml:"password"`
	TOTPSecret         string            `toml:"totp_secret"`
	BaseURL            string            `toml:"base_url"`
	InstrumentURL      string            `toml:"instrument_url"`
	Exchange           string            `toml:"exchange"`
	ProductType        string            `toml:"product_type"`
	HTTPTimeoutSeconds int               `toml:"http_timeout_seconds"`
	SymbolTokens       map[string]string `toml:"symbol_tokens"`
}

func (a AngelOneConfig) HTTPTimeout() time.Duration {
	return time.Duration(a.HTTPTimeoutSeconds) * time.Second
}

type PaperConfig struct {
	Balance  float64            `toml:"balance"`
	Currency string             `toml:"currency"`
	Prices   map[string]float64 `toml:"prices"`
}

type StoreConfig struct {
	ExecutionDB string `toml:"execution_db"`
	DecisionDB  string `toml:"decision_db"`
}

type CircuitConfig struct {
	Threshold      int `toml:"threshold"`
	TimeoutSeconds int `toml:"timeout_seconds"`
}

func (c CircuitConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

type TracingConfig struct {
	Enabled bool `toml:"enabled"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

// TelegramConfig enables execution notifications to one chat.
type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	BaseURL  string `toml:"base_url"`
}

// keySet tracks field paths set explicitly in the config file.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	_, ok := k[strings.ToLower(strings.TrimSpace(path))]
	return ok
}

// fieldDefault describes when and how a single field gets its default.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
