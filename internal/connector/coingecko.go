// Package connector provides clients for external market data providers.
package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/portfolio-tracker/internal/config"
	"golang.org/x/time/rate"
)

// CoinMarketData is one row of a markets listing: identity, rank, and the
// price observation fields the collectors persist.
type CoinMarketData struct {
	ID               string   `json:"id"`
	Symbol           string   `json:"symbol"`
	Name             string   `json:"name"`
	MarketCapRank    int      `json:"market_cap_rank"`
	CurrentPrice     float64  `json:"current_price"`
	MarketCap        *float64 `json:"market_cap"`
	TotalVolume      *float64 `json:"total_volume"`
	PriceChangePct24 *float64 `json:"price_change_percentage_24h"`
}

// CoinDetail carries the per-platform contract addresses for one coin.
type CoinDetail struct {
	ID        string            `json:"id"`
	Symbol    string            `json:"symbol"`
	Name      string            `json:"name"`
	Platforms map[string]string `json:"platforms"`
}

// CoinGeckoClient calls the CoinGecko REST API. All requests pass through a
// shared rate limiter so concurrent jobs stay inside the provider's quota.
type CoinGeckoClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewCoinGeckoClient creates a client from market data configuration.
func NewCoinGeckoClient(cfg *config.MarketDataConfig) *CoinGeckoClient {
	rpm := cfg.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	return &CoinGeckoClient{
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1),
	}
}

// ListMarkets fetches one page of the USD markets listing ordered by market
// cap. perPage is capped at 250 by the provider.
func (c *CoinGeckoClient) ListMarkets(ctx context.Context, page, perPage int) ([]CoinMarketData, error) {
	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("order", "market_cap_desc")
	params.Set("page", strconv.Itoa(page))
	params.Set("per_page", strconv.Itoa(perPage))
	params.Set("sparkline", "false")

	var markets []CoinMarketData
	if err := c.get(ctx, "/coins/markets", params, &markets); err != nil {
		return nil, fmt.Errorf("failed to list markets: %w", err)
	}
	return markets, nil
}

// GetCoinDetail fetches one coin's detail including its contract addresses
// per platform.
func (c *CoinGeckoClient) GetCoinDetail(ctx context.Context, coinID string) (*CoinDetail, error) {
	params := url.Values{}
	params.Set("localization", "false")
	params.Set("tickers", "false")
	params.Set("market_data", "false")
	params.Set("community_data", "false")
	params.Set("developer_data", "false")

	var detail CoinDetail
	if err := c.get(ctx, "/coins/"+url.PathEscape(coinID), params, &detail); err != nil {
		return nil, fmt.Errorf("failed to get coin detail for %s: %w", coinID, err)
	}
	return &detail, nil
}

// SimplePrices fetches current USD prices for a set of coin IDs in one call.
func (c *CoinGeckoClient) SimplePrices(ctx context.Context, coinIDs []string) (map[string]float64, error) {
	if len(coinIDs) == 0 {
		return map[string]float64{}, nil
	}

	params := url.Values{}
	params.Set("vs_currency", "usd")
	params.Set("ids", strings.Join(coinIDs, ","))

	var raw map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := c.getSimple(ctx, "/simple/price", params, &raw); err != nil {
		return nil, fmt.Errorf("failed to get simple prices: %w", err)
	}

	prices := make(map[string]float64, len(raw))
	for id, entry := range raw {
		prices[id] = entry.USD
	}
	return prices, nil
}

func (c *CoinGeckoClient) getSimple(ctx context.Context, path string, params url.Values, dest interface{}) error {
	params.Set("vs_currencies", "usd")
	params.Del("vs_currency")
	return c.get(ctx, path, params, dest)
}

func (c *CoinGeckoClient) get(ctx context.Context, path string, params url.Values, dest interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body) // nolint:errcheck // drain for connection reuse
		_ = resp.Body.Close()                 // nolint:errcheck // cleanup in defer
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
