package binance

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/adshao/go-binance/v2/futures"
)

const (
	mainnetURL         = "https://fapi.binance.com"
	testnetURL         = "https://testnet.binancefuture.com"
	defaultHTTPTimeout = 15 * time.Second
)

// Config holds USDⓈ-M futures credentials and transport settings. An empty
// RESTBaseURL selects mainnet, or testnet when Testnet is set.
type Config struct {
	APIKey      string
	SecretKey   string
	RESTBaseURL string
	Testnet     bool
	HTTPTimeout time.Duration
	// RESTProxyURL is used only when ProxyEnabled is set.
	ProxyEnabled bool
	RESTProxyURL string
}

func (c Config) withDefaults() Config {
	c.APIKey = strings.TrimSpace(c.APIKey)
	c.SecretKey = strings.TrimSpace(c.SecretKey)
	c.RESTProxyURL = strings.TrimSpace(c.RESTProxyURL)
	c.RESTBaseURL = strings.TrimRight(strings.TrimSpace(c.RESTBaseURL), "/")
	switch {
	case c.RESTBaseURL != "":
	case c.Testnet:
		c.RESTBaseURL = testnetURL
	default:
		c.RESTBaseURL = mainnetURL
	}
	if c.HTTPTimeout <= 0 {
		c.HTTPTimeout = defaultHTTPTimeout
	}
	return c
}

// newClient builds the SDK client with c's base URL, timeout and proxy.
func (c Config) newClient() (*futures.Client, error) {
	hc := &http.Client{Timeout: c.HTTPTimeout}
	if c.ProxyEnabled && c.RESTProxyURL != "" {
		proxy, err := url.Parse(c.RESTProxyURL)
		if err != nil {
			return nil, fmt.Errorf("invalid REST proxy url: %w", err)
		}
		tr, ok := http.DefaultTransport.(*http.Transport)
		if !ok {
			return nil, fmt.Errorf("default transport is %T, want *http.Transport", http.DefaultTransport)
		}
		tr = tr.Clone()
		tr.Proxy = http.ProxyURL(proxy)
		hc.Transport = tr
	}
	client := futures.NewClient(c.APIKey, c.SecretKey)
	client.BaseURL = c.RESTBaseURL
	client.HTTPClient = hc
	return client, nil
}
