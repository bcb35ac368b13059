package executor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

// OrderRequest is the brokerage order schema. Optional fields are omitted
// from the JSON body when unset.
type OrderRequest struct {
	Symbol        string                 `json:"symbol"`
	Qty           string                 `json:"qty,omitempty"`
	Notional      string                 `json:"notional,omitempty"`
	Side          string                 `json:"side"`
	Type          string                 `json:"type"`
	TimeInForce   string                 `json:"time_in_force"`
	LimitPrice    string                 `json:"limit_price,omitempty"`
	StopPrice     string                 `json:"stop_price,omitempty"`
	TrailPrice    string                 `json:"trail_price,omitempty"`
	TrailPercent  string                 `json:"trail_percent,omitempty"`
	ExtendedHours bool                   `json:"extended_hours,omitempty"`
	ClientOrderID string                 `json:"client_order_id,omitempty"`
	OrderClass    string                 `json:"order_class,omitempty"`
	TakeProfit    map[string]interface{} `json:"take_profit,omitempty"`
	StopLoss      map[string]interface{} `json:"stop_loss,omitempty"`
}

// MapOrder translates generic action parameters into the brokerage order
// schema: quantity becomes a stringified qty, orderType is lower-cased into
// type (defaulting to "market"), and time_in_force defaults to "day". Orders
// missing symbol or a size (qty or notional) are rejected.
func MapOrder(actionType models.ActionType, params models.Parameters) (*OrderRequest, error) {
	var side string
	switch actionType {
	case models.ActionBuy:
		side = "buy"
	case models.ActionSell:
		side = "sell"
	default:
		return nil, fmt.Errorf("%w: action type %s is not an order", models.ErrUnknownActionType, actionType)
	}

	order := &OrderRequest{
		Symbol:       stringParam(params, "symbol"),
		Qty:          numericParam(params, "quantity"),
		Notional:     numericParam(params, "notional"),
		Side:         side,
		Type:         strings.ToLower(stringParam(params, "orderType")),
		TimeInForce:  strings.ToLower(stringParam(params, "timeInForce")),
		LimitPrice:   numericParam(params, "limitPrice"),
		StopPrice:    numericParam(params, "stopPrice"),
		TrailPrice:   numericParam(params, "trailPrice"),
		TrailPercent: numericParam(params, "trailPercent"),
	}

	if order.Type == "" {
		order.Type = "market"
	}
	if order.TimeInForce == "" {
		order.TimeInForce = "day"
	}
	if v, ok := params["extendedHours"].(bool); ok {
		order.ExtendedHours = v
	}
	order.ClientOrderID = stringParam(params, "clientOrderId")
	order.OrderClass = stringParam(params, "orderClass")
	if v, ok := params["takeProfit"].(map[string]interface{}); ok {
		order.TakeProfit = v
	}
	if v, ok := params["stopLoss"].(map[string]interface{}); ok {
		order.StopLoss = v
	}

	if order.Symbol == "" {
		return nil, fmt.Errorf("%w: symbol", models.ErrOrderIncomplete)
	}
	if order.Qty == "" && order.Notional == "" {
		return nil, fmt.Errorf("%w: qty or notional", models.ErrOrderIncomplete)
	}

	return order, nil
}

func stringParam(params models.Parameters, key string) string {
	if v, ok := params[key].(string); ok {
		return v
	}
	return ""
}

// numericParam renders a numeric or numeric-string parameter as a string,
// which is how the brokerage API wants sizes and prices.
func numericParam(params models.Parameters, key string) string {
	switch v := params[key].(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case string:
		return v
	default:
		return ""
	}
}
