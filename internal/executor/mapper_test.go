package executor

import (
	"errors"
	"testing"

	"github.com/robert-nguyenn/strategy-engine/internal/models"
)

func TestMapOrderBuy(t *testing.T) {
	order, err := MapOrder(models.ActionBuy, models.Parameters{
		"symbol":   "AAPL",
		"quantity": 10.0,
	})
	if err != nil {
		t.Fatalf("MapOrder() error = %v", err)
	}

	if order.Symbol != "AAPL" {
		t.Errorf("Symbol = %q, want AAPL", order.Symbol)
	}
	if order.Qty != "10" {
		t.Errorf("Qty = %q, want \"10\"", order.Qty)
	}
	if order.Side != "buy" {
		t.Errorf("Side = %q, want buy", order.Side)
	}
	if order.Type != "market" {
		t.Errorf("Type = %q, want market (default)", order.Type)
	}
	if order.TimeInForce != "day" {
		t.Errorf("TimeInForce = %q, want day (default)", order.TimeInForce)
	}
}

func TestMapOrderSellWithExplicitFields(t *testing.T) {
	order, err := MapOrder(models.ActionSell, models.Parameters{
		"symbol":      "MSFT",
		"quantity":    2.5,
		"orderType":   "LIMIT",
		"timeInForce": "GTC",
		"limitPrice":  401.25,
	})
	if err != nil {
		t.Fatalf("MapOrder() error = %v", err)
	}

	if order.Side != "sell" {
		t.Errorf("Side = %q, want sell", order.Side)
	}
	if order.Qty != "2.5" {
		t.Errorf("Qty = %q, want \"2.5\"", order.Qty)
	}
	if order.Type != "limit" {
		t.Errorf("Type = %q, want limit", order.Type)
	}
	if order.TimeInForce != "gtc" {
		t.Errorf("TimeInForce = %q, want gtc", order.TimeInForce)
	}
	if order.LimitPrice != "401.25" {
		t.Errorf("LimitPrice = %q, want \"401.25\"", order.LimitPrice)
	}
}

func TestMapOrderNotionalInsteadOfQty(t *testing.T) {
	order, err := MapOrder(models.ActionBuy, models.Parameters{
		"symbol":   "SPY",
		"notional": 500.0,
	})
	if err != nil {
		t.Fatalf("MapOrder() error = %v", err)
	}
	if order.Notional != "500" {
		t.Errorf("Notional = %q, want \"500\"", order.Notional)
	}
	if order.Qty != "" {
		t.Errorf("Qty = %q, want empty", order.Qty)
	}
}

func TestMapOrderStringQuantity(t *testing.T) {
	// Quantities arrive as strings when the strategy builder sent them quoted.
	order, err := MapOrder(models.ActionBuy, models.Parameters{
		"symbol":   "AAPL",
		"quantity": "3",
	})
	if err != nil {
		t.Fatalf("MapOrder() error = %v", err)
	}
	if order.Qty != "3" {
		t.Errorf("Qty = %q, want \"3\"", order.Qty)
	}
}

func TestMapOrderRejectsIncomplete(t *testing.T) {
	tests := []struct {
		name   string
		params models.Parameters
	}{
		{"missing symbol", models.Parameters{"quantity": 10.0}},
		{"missing size", models.Parameters{"symbol": "AAPL"}},
		{"empty", models.Parameters{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := MapOrder(models.ActionBuy, tt.params)
			if !errors.Is(err, models.ErrOrderIncomplete) {
				t.Errorf("MapOrder() error = %v, want ErrOrderIncomplete", err)
			}
		})
	}
}

func TestMapOrderRejectsNonOrderActions(t *testing.T) {
	_, err := MapOrder(models.ActionNotify, models.Parameters{"symbol": "AAPL", "quantity": 1.0})
	if !errors.Is(err, models.ErrUnknownActionType) {
		t.Errorf("MapOrder() error = %v, want ErrUnknownActionType", err)
	}
}
