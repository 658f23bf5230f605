package angelone

import (
	"fmt"
	"strconv"
	"strings"
)

var (
	validOrderTypes   = []string{"MARKET", "LIMIT", "STOPLOSS_LIMIT", "STOPLOSS_MARKET"}
	validProductTypes = []string{"INTRADAY", "DELIVERY", "CARRYFORWARD", "MARGIN", "BO", "CO"}
	validSides        = []string{"BUY", "SELL"}
	validVarieties    = []string{"NORMAL", "STOPLOSS", "AMO", "ROBO"}
)

// OrderParams is a SmartAPI placeOrder request. Quantity is whole shares or
// lots.
type OrderParams struct {
	Variety         string
	TradingSymbol   string
	SymbolToken     string
	TransactionType string
	Exchange        string
	OrderType       string
	ProductType     string
	Duration        string
	Quantity        int
	Price           float64
	TriggerPrice    float64
}

func oneOf(field, v string, valid []string) (string, error) {
	v = strings.ToUpper(strings.TrimSpace(v))
	for _, ok := range valid {
		if v == ok {
			return v, nil
		}
	}
	return "", fmt.Errorf("invalid %s: %s. Valid: %s", field, v, strings.Join(valid, ", "))
}

// normalize upper-cases and checks the enumerated fields and price rules.
func (p OrderParams) normalize() (OrderParams, error) {
	var err error
	if p.TransactionType, err = oneOf("side", p.TransactionType, validSides); err != nil {
		return p, err
	}
	if p.OrderType, err = oneOf("order_type", p.OrderType, validOrderTypes); err != nil {
		return p, err
	}
	if p.ProductType, err = oneOf("product_type", p.ProductType, validProductTypes); err != nil {
		return p, err
	}
	if p.Variety, err = oneOf("variety", p.Variety, validVarieties); err != nil {
		return p, err
	}
	if p.Quantity < 1 {
		return p, fmt.Errorf("quantity must be a positive whole number, got %d", p.Quantity)
	}
	if (p.OrderType == "LIMIT" || p.OrderType == "STOPLOSS_LIMIT") && p.Price <= 0 {
		return p, fmt.Errorf("price required for %s orders", p.OrderType)
	}
	if strings.HasPrefix(p.OrderType, "STOPLOSS") && p.TriggerPrice <= 0 {
		return p, fmt.Errorf("trigger price required for %s orders", p.OrderType)
	}
	return p, nil
}

func (p OrderParams) payload() map[string]string {
	price, trigger := "0", "0"
	if p.OrderType == "LIMIT" || p.OrderType == "STOPLOSS_LIMIT" {
		price = strconv.FormatFloat(p.Price, 'f', -1, 64)
	}
	if strings.HasPrefix(p.OrderType, "STOPLOSS") {
		trigger = strconv.FormatFloat(p.TriggerPrice, 'f', -1, 64)
	}
	return map[string]string{
		"variety":         p.Variety,
		"tradingsymbol":   p.TradingSymbol,
		"symboltoken":     p.SymbolToken,
		"transactiontype": p.TransactionType,
		"exchange":        p.Exchange,
		"ordertype":       p.OrderType,
		"producttype":     p.ProductType,
		"duration":        p.Duration,
		"quantity":        strconv.Itoa(p.Quantity),
		"price":           price,
		"triggerprice":    trigger,
	}
}
