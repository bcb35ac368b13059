package executor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/robert-nguyenn/strategy-engine/internal/config"
	"github.com/robert-nguyenn/strategy-engine/pkg/logger"
)

// BrokerClient submits orders against a user's brokerage trading account.
type BrokerClient interface {
	SubmitOrder(ctx context.Context, accountID string, order *OrderRequest) error
}

// AlpacaBrokerClient submits orders to the Alpaca broker API's
// account-scoped orders endpoint with Basic auth credentials.
type AlpacaBrokerClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	apiSecret  string
}

// NewAlpacaBrokerClient creates a broker client from config.
func NewAlpacaBrokerClient(cfg config.BrokerConfig) *AlpacaBrokerClient {
	return &AlpacaBrokerClient{
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
	}
}

// SubmitOrder POSTs the order to the account-scoped orders endpoint. Any
// non-2xx response is surfaced as an error carrying the response body.
func (c *AlpacaBrokerClient) SubmitOrder(ctx context.Context, accountID string, order *OrderRequest) error {
	body, err := json.Marshal(order)
	if err != nil {
		return fmt.Errorf("failed to marshal order: %w", err)
	}

	url := fmt.Sprintf("%s/v1/trading/accounts/%s/orders", c.baseURL, accountID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build order request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.apiKey, c.apiSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("order request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("brokerage rejected order: status %d: %s", resp.StatusCode, string(respBody))
	}

	logger.Info("Order submitted",
		logger.String("account_id", accountID),
		logger.String("symbol", order.Symbol),
		logger.String("side", order.Side),
		logger.String("qty", order.Qty),
		logger.String("type", order.Type),
	)
	return nil
}
