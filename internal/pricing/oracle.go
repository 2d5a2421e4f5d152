// Package pricing provides the SOL/USD price oracle used to convert
// on-chain valuations into reference-currency values.
package pricing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/observability"
)

// Well-known mints used for the reference quote.
const (
	SolMint  = "So11111111111111111111111111111111111111112"
	USDCMint = "EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v"
)

// Default configuration values.
const (
	DefaultTTL         = 5 * time.Minute
	DefaultTimeout     = 10 * time.Second
	DefaultNotionalSol = 1.0

	lamportsPerSol = 1_000_000_000
	usdcDecimals   = 6
)

// ErrNoPrice is returned when no SOL price has ever been fetched.
var ErrNoPrice = errors.New("no SOL price available")

// OracleClient fetches the SOL/USD rate from a quote API and caches it
// for a short TTL. A single refresh is in flight at any time; concurrent
// callers are served the previous cached value instead of blocking.
type OracleClient struct {
	endpoint    string
	client      *http.Client
	ttl         time.Duration
	notionalSol float64
	logger      *zap.Logger
	metrics     *observability.Metrics

	mu       sync.Mutex
	cached   *domain.SolPrice
	updating bool
}

// OracleOption configures OracleClient.
type OracleOption func(*OracleClient)

// WithTTL sets the price cache TTL.
func WithTTL(d time.Duration) OracleOption {
	return func(c *OracleClient) {
		c.ttl = d
	}
}

// WithNotional sets the notional SOL amount quoted per refresh.
func WithNotional(sol float64) OracleOption {
	return func(c *OracleClient) {
		c.notionalSol = sol
	}
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) OracleOption {
	return func(c *OracleClient) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) OracleOption {
	return func(c *OracleClient) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *observability.Metrics) OracleOption {
	return func(c *OracleClient) {
		c.metrics = m
	}
}

// NewOracleClient creates a new price oracle client for a quote endpoint.
func NewOracleClient(endpoint string, opts ...OracleOption) *OracleClient {
	c := &OracleClient{
		endpoint:    endpoint,
		client:      &http.Client{Timeout: DefaultTimeout},
		ttl:         DefaultTTL,
		notionalSol: DefaultNotionalSol,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetPrice returns the cached SOL price when it is younger than the TTL
// and forceRefresh is false; otherwise it refreshes from the quote API.
// If a refresh is already in flight the previous cached value is returned
// without blocking; if the refresh fails a stale cached value is served.
func (c *OracleClient) GetPrice(ctx context.Context, forceRefresh bool) (domain.SolPrice, error) {
	c.mu.Lock()
	if c.cached != nil && !forceRefresh && time.Since(c.cached.FetchedAt) < c.ttl {
		price := *c.cached
		c.mu.Unlock()
		return price, nil
	}

	if c.updating {
		// Refresh already in flight. Serve the previous value rather than
		// issuing a duplicate request.
		if c.cached != nil {
			price := *c.cached
			c.mu.Unlock()
			return price, nil
		}
		c.mu.Unlock()
		return domain.SolPrice{}, ErrNoPrice
	}
	c.updating = true
	c.mu.Unlock()

	price, err := c.fetchPrice(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.updating = false

	if err != nil {
		if c.cached != nil {
			c.logger.Warn("price refresh failed, serving stale price",
				zap.Error(err),
				zap.Time("fetched_at", c.cached.FetchedAt))
			return *c.cached, nil
		}
		return domain.SolPrice{}, fmt.Errorf("fetch sol price: %w", err)
	}

	c.cached = &price
	c.logger.Debug("sol price refreshed", zap.Float64("price_usd", price.PriceUSD))
	return price, nil
}

// Convert converts an amount in SOL to USD using the last cached price.
// Returns ErrNoPrice if no price has ever been fetched.
func (c *OracleClient) Convert(amountSol float64) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cached == nil {
		return 0, ErrNoPrice
	}
	return amountSol * c.cached.PriceUSD, nil
}

// quoteResponse is the quote API response. outAmount is an integer in the
// output token's smallest units, serialized as a string.
type quoteResponse struct {
	OutAmount string `json:"outAmount"`
}

// fetchPrice quotes a fixed notional of SOL against USDC and derives the
// unit price.
func (c *OracleClient) fetchPrice(ctx context.Context) (domain.SolPrice, error) {
	params := url.Values{}
	params.Set("inputMint", SolMint)
	params.Set("outputMint", USDCMint)
	params.Set("amount", strconv.FormatInt(int64(c.notionalSol*lamportsPerSol), 10))

	if c.metrics != nil {
		c.metrics.PriceFetches.Inc()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return domain.SolPrice{}, fmt.Errorf("create quote request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.SolPrice{}, fmt.Errorf("quote request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.SolPrice{}, fmt.Errorf("read quote response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return domain.SolPrice{}, fmt.Errorf("quote API status %d: %s", resp.StatusCode, string(body))
	}

	var quote quoteResponse
	if err := json.Unmarshal(body, &quote); err != nil {
		return domain.SolPrice{}, fmt.Errorf("decode quote response: %w", err)
	}

	outAmount, err := strconv.ParseFloat(quote.OutAmount, 64)
	if err != nil {
		return domain.SolPrice{}, fmt.Errorf("parse outAmount %q: %w", quote.OutAmount, err)
	}

	priceUSD := outAmount / float64(pow10(usdcDecimals)) / c.notionalSol
	if priceUSD <= 0 {
		return domain.SolPrice{}, fmt.Errorf("quote API returned non-positive price %f", priceUSD)
	}

	return domain.SolPrice{
		PriceUSD:  priceUSD,
		FetchedAt: time.Now(),
	}, nil
}

func pow10(n int) int64 {
	result := int64(1)
	for i := 0; i < n; i++ {
		result *= 10
	}
	return result
}
