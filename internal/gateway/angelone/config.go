package angelone

import (
	"strings"
	"time"
)

const (
	defaultBaseURL       = "https://apiconnect.angelone.in"
	defaultInstrumentURL = "https://margincalculator.angelbroking.com/OpenAPI_File/files/OpenAPIScripMaster.json"
)

type Config struct {
	APIKey     string
	ClientCode string
	Password   string
	// TOTPSecret is the base32 seed shown when enabling TOTP on the account.
	TOTPSecret string

	BaseURL       string
	InstrumentURL string
	HTTPTimeout   time.Duration

	Exchange    string
	ProductType string
	Variety     string
	Duration    string

	// SymbolTokens pins trading symbols to tokens and skips the scrip master.
	SymbolTokens map[string]string

	ClientLocalIP  string
	ClientPublicIP string
	MACAddress     string
}

func (c *Config) withDefaults() Config {
	out := *c
	out.BaseURL = strings.TrimRight(strings.TrimSpace(out.BaseURL), "/")
	if out.BaseURL == "" {
		out.BaseURL = defaultBaseURL
	}
	if strings.TrimSpace(out.InstrumentURL) == "" {
		out.InstrumentURL = defaultInstrumentURL
	}
	if out.HTTPTimeout <= 0 {
		out.HTTPTimeout = 15 * time.Second
	}
	out.Exchange = upperOr(out.Exchange, "NSE")
	out.ProductType = upperOr(out.ProductType, "INTRADAY")
	out.Variety = upperOr(out.Variety, "NORMAL")
	out.Duration = upperOr(out.Duration, "DAY")
	if out.ClientLocalIP == "" {
		out.ClientLocalIP = "127.0.0.1"
	}
	if out.ClientPublicIP == "" {
		out.ClientPublicIP = "127.0.0.1"
	}
	if out.MACAddress == "" {
		out.MACAddress = "00:00:00:00:00:00"
	}
	return out
}

func upperOr(v, def string) string {
	v = strings.ToUpper(strings.TrimSpace(v))
	if v == "" {
		return def
	}
	return v
}
