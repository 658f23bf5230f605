package config

import (
	"fmt"
	"strings"
)

func validate(c *Config) error {
	if err := c.Risk.validate(); err != nil {
		return err
	}
	if err := c.validateBroker(); err != nil {
		return err
	}
	if c.Circuit.Threshold < 0 || c.Circuit.TimeoutSeconds < 0 {
		return fmt.Errorf("circuit.threshold and circuit.timeout_seconds must be >= 0")
	}
	if tg := c.Notify.Telegram; tg.Enabled && (strings.TrimSpace(tg.BotToken) == "" || strings.TrimSpace(tg.ChatID) == "") {
		return fmt.Errorf("notify.telegram.bot_token and notify.telegram.chat_id are required when telegram is enabled")
	}
	return nil
}

func (r *RiskConfig) validate() error {
	if r.MaxLeverage < 1 {
		return fmt.Errorf("risk.max_leverage must be >= 1, got %d", r.MaxLeverage)
	}
	if r.MaxPositionPct <= 0 || r.MaxPositionPct > 100 {
		return fmt.Errorf("risk.max_position_pct must be in (0, 100], got %v", r.MaxPositionPct)
	}
	if r.MinConfidence < 0 || r.MinConfidence > r.MaxConfidence {
		return fmt.Errorf("risk confidence range invalid: [%v, %v]", r.MinConfidence, r.MaxConfidence)
	}
	if r.MinRiskRewardRatio < 0 {
		return fmt.Errorf("risk.min_risk_reward_ratio must be >= 0")
	}
	for key, v := range map[string]float64{
		"risk.default_stop_loss_pct":   r.DefaultStopLossPct,
		"risk.default_take_profit_pct": r.DefaultTakeProfitPct,
	} {
		if v <= 0 || v >= 1 {
			return fmt.Errorf("%s must be a fraction in (0, 1), got %v", key, v)
		}
	}
	if r.DefaultPositionPct <= 0 || r.DefaultPositionPct > r.MaxPositionPct {
		return fmt.Errorf("risk.default_position_pct must be in (0, %v], got %v", r.MaxPositionPct, r.DefaultPositionPct)
	}
	return nil
}

func (c *Config) validateBroker() error {
	switch c.Broker.Kind {
	case BrokerPaper:
		if c.Paper.Balance <= 0 {
			return fmt.Errorf("paper.balance must be > 0")
		}
	case BrokerBinance:
		if c.Broker.DryRun {
			return nil
		}
		if strings.TrimSpace(c.Binance.APIKey) == "" || strings.TrimSpace(c.Binance.SecretKey) == "" {
			return fmt.Errorf("binance.api_key and binance.secret_key are required unless broker.dry_run is set")
		}
	case BrokerAngelOne:
		a := c.AngelOne
		if c.Broker.DryRun && a.APIKey == "" {
			return nil
		}
		missing := []string{}
		for name, v := range map[string]string{
			"api_key":     a.APIKey,
			"client_code": a.ClientCode,
			"password":    a.Password,
			"totp_secret": a.TOTPSecret,
		} {
			if strings.TrimSpace(v) == "" {
				missing = append(missing, "angelone."+name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("missing AngelOne credentials: %s", strings.Join(sortedCopy(missing), ", "))
		}
	default:
		return fmt.Errorf("unsupported broker.kind: %q", c.Broker.Kind)
	}
	return nil
}
