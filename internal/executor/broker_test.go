package executor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/robert-nguyenn/strategy-engine/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAlpacaBrokerClientSubmitOrder(t *testing.T) {
	var gotPath, gotUser, gotPass string
	var gotBody map[string]interface{}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUser, gotPass, _ = r.BasicAuth()
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"id":"order-1","status":"accepted"}`))
	}))
	defer server.Close()

	client := NewAlpacaBrokerClient(config.BrokerConfig{
		APIKey:         "key",
		APISecret:      "secret",
		BaseURL:        server.URL,
		RequestTimeout: 2 * time.Second,
	})

	order := &OrderRequest{
		Symbol:      "AAPL",
		Qty:         "10",
		Side:        "buy",
		Type:        "market",
		TimeInForce: "day",
	}
	err := client.SubmitOrder(context.Background(), "acct-123", order)
	require.NoError(t, err)

	assert.Equal(t, "/v1/trading/accounts/acct-123/orders", gotPath)
	assert.Equal(t, "key", gotUser)
	assert.Equal(t, "secret", gotPass)
	assert.Equal(t, "AAPL", gotBody["symbol"])
	assert.Equal(t, "10", gotBody["qty"])
	assert.Equal(t, "buy", gotBody["side"])
	assert.Equal(t, "day", gotBody["time_in_force"])
	// Unset optional fields stay off the wire.
	assert.NotContains(t, gotBody, "limit_price")
	assert.NotContains(t, gotBody, "notional")
}

func TestAlpacaBrokerClientSurfacesRejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte(`{"message":"insufficient buying power"}`))
	}))
	defer server.Close()

	client := NewAlpacaBrokerClient(config.BrokerConfig{
		BaseURL:        server.URL,
		RequestTimeout: 2 * time.Second,
	})

	order := &OrderRequest{Symbol: "AAPL", Qty: "1000000", Side: "buy", Type: "market", TimeInForce: "day"}
	err := client.SubmitOrder(context.Background(), "acct-123", order)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "403"))
	assert.True(t, strings.Contains(err.Error(), "insufficient buying power"))
}
