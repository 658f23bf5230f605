package trader

import (
	"strings"

	symbolpkg "tradebot/internal/pkg/symbol"
)

// actorKey maps a decision symbol to the venue symbol, so BTC/USDT and
// BTCUSDT share one actor.
func actorKey(conv symbolpkg.Converter, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if conv != nil {
		if sym := conv.ToExchange(raw); sym != "" {
			return strings.ToUpper(sym)
		}
	}
	return strings.ToUpper(raw)
}
