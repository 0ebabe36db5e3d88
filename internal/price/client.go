// Package price serves USD spot prices for ledger assets, backed by a
// CoinGecko-compatible API with a short-lived cache in front of it.
package price

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tripmesh/trustd/internal/cache"
)

// ErrUnknownAsset means the upstream API has no quote for the asset id.
var ErrUnknownAsset = errors.New("unknown asset")

// Client fetches spot prices and caches them per asset id.
type Client struct {
	apiURL string
	client *http.Client
	cache  *cache.Cache[float64]
	logger *slog.Logger
}

func NewClient(apiURL string, c *cache.Cache[float64], logger *slog.Logger) *Client {
	return &Client{
		apiURL: apiURL,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  c,
		logger: logger,
	}
}

// Price returns the USD price for asset, serving from cache while the
// entry is fresh. asset is a CoinGecko coin id such as "solana".
func (c *Client) Price(ctx context.Context, asset string) (float64, error) {
	if cached, ok := c.cache.Get(asset); ok {
		return cached, nil
	}

	quote, err := c.fetchQuote(ctx, asset)
	if err != nil {
		return 0, err
	}

	c.cache.Set(asset, quote)
	c.logger.Debug("price refreshed", "asset", asset, "usd", quote)
	return quote, nil
}

func (c *Client) fetchQuote(ctx context.Context, asset string) (float64, error) {
	endpoint := fmt.Sprintf("%s/api/v3/simple/price?ids=%s&vs_currencies=usd",
		c.apiURL, url.QueryEscape(asset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return 0, fmt.Errorf("create price request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("price request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("read price response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("price status %d: %s", resp.StatusCode, string(body))
	}

	// Unknown ids come back as an empty object, not an error status.
	var quotes map[string]struct {
		USD *float64 `json:"usd"`
	}
	if err := json.Unmarshal(body, &quotes); err != nil {
		return 0, fmt.Errorf("parse price response: %w", err)
	}

	quote, ok := quotes[asset]
	if !ok || quote.USD == nil {
		return 0, fmt.Errorf("%w: %s", ErrUnknownAsset, asset)
	}
	return *quote.USD, nil
}
