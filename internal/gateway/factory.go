// Package gateway builds the configured broker.
package gateway

import (
	"fmt"
	"strings"

	"tradebot/internal/config"
	"tradebot/internal/gateway/angelone"
	"tradebot/internal/gateway/binance"
	"tradebot/internal/gateway/brokerobs"
	"tradebot/internal/gateway/exchange"
	"tradebot/internal/gateway/paper"
	"tradebot/internal/logger"
)

// NewBrokerFromConfig returns the broker for cfg.Broker, wrapped with
// tracing and logging. In dry-run mode orders go to a paper broker that
// takes its prices from the live venue.
func NewBrokerFromConfig(cfg *config.Config) (exchange.Broker, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	kind := cfg.Broker.NormalizedKind()
	var (
		live  exchange.Broker
		err   error
		whole bool
	)
	switch kind {
	case config.BrokerPaper:
	case config.BrokerBinance:
		live, err = newBinance(cfg.Binance)
	case config.BrokerAngelOne:
		whole = true
		if !cfg.Broker.DryRun || strings.TrimSpace(cfg.AngelOne.APIKey) != "" {
			live = newAngelOne(cfg.AngelOne)
		}
	default:
		return nil, fmt.Errorf("unsupported broker kind: %s", cfg.Broker.Kind)
	}
	if err != nil {
		return nil, err
	}
	if live != nil && !cfg.Broker.DryRun {
		logger.Infof("broker: %s (live)", live.Name())
		return brokerobs.Wrap(live), nil
	}

	pcfg := paper.Config{
		Balance:    cfg.Paper.Balance,
		Currency:   cfg.Paper.Currency,
		Prices:     cfg.Paper.Prices,
		WholeUnits: whole,
	}
	if live != nil {
		pcfg.Source = live
		if kind == config.BrokerAngelOne && cfg.Paper.Currency == "USDT" {
			pcfg.Currency = "INR"
		}
		logger.Infof("broker: paper (dry run, prices from %s)", live.Name())
	} else {
		logger.Infof("broker: paper")
	}
	return brokerobs.Wrap(paper.New(pcfg)), nil
}

func newBinance(c config.BinanceConfig) (exchange.Broker, error) {
	return binance.New(binance.Config{
		APIKey:       c.APIKey,
		SecretKey:    c.SecretKey,
		RESTBaseURL:  c.RESTBaseURL,
		Testnet:      c.Testnet,
		HTTPTimeout:  c.HTTPTimeout(),
		ProxyEnabled: c.ProxyEnabled,
		RESTProxyURL: c.RESTProxyURL,
	})
}

func newAngelOne(c config.AngelOneConfig) exchange.Broker {
	return angelone.New(angelone.Config{
		APIKey:        c.APIKey,
		ClientCode:    c.ClientCode,
		Password:      c.Password,
		TOTPSecret:    c.TOTPSecret,
		BaseURL:       c.BaseURL,
		InstrumentURL: c.InstrumentURL,
		HTTPTimeout:   c.HTTPTimeout(),
		Exchange:      c.Exchange,
		ProductType:   c.ProductType,
		SymbolTokens:  c.SymbolTokens,
	})
}
