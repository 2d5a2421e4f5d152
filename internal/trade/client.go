// Package trade brokers trades through the external execution API and
// confirms them on-chain in the background.
package trade

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/observability"
)

// DefaultTimeout bounds a single execution API request.
const DefaultTimeout = 30 * time.Second

// Request describes a trade to submit.
type Request struct {
	Wallet      string
	Mint        string
	Side        domain.TradeDirection
	AmountSol   float64
	SlippagePct float64
	PriorityFee float64
}

// Response is the execution API's answer to a submitted trade.
type Response struct {
	Signature string `json:"signature"`
}

// Client submits trades to the execution API.
type Client struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
	metrics  *observability.Metrics
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics registry.
func WithMetrics(m *observability.Metrics) ClientOption {
	return func(c *Client) {
		c.metrics = m
	}
}

// NewClient creates an execution API client.
func NewClient(endpoint, apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: DefaultTimeout},
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// executeRequest is the wire form of a trade submission.
type executeRequest struct {
	PublicKey        string  `json:"publicKey"`
	Action           string  `json:"action"`
	Mint             string  `json:"mint"`
	Amount           float64 `json:"amount"`
	DenominatedInSol string  `json:"denominatedInSol"`
	Slippage         float64 `json:"slippage"`
	PriorityFee      float64 `json:"priorityFee"`
}

type executeError struct {
	Errors []string `json:"errors"`
}

// Execute submits a trade and returns the resulting transaction
// signature. Confirmation is not awaited; use Confirmer for that.
func (c *Client) Execute(ctx context.Context, req Request) (*Response, error) {
	body, err := json.Marshal(executeRequest{
		PublicKey:        req.Wallet,
		Action:           string(req.Side),
		Mint:             req.Mint,
		Amount:           req.AmountSol,
		DenominatedInSol: "true",
		Slippage:         req.SlippagePct,
		PriorityFee:      req.PriorityFee,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal trade request: %w", err)
	}

	url := c.endpoint
	if c.apiKey != "" {
		url += "?api-key=" + c.apiKey
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create trade request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("trade request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read trade response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr executeError
		if json.Unmarshal(respBody, &apiErr) == nil && len(apiErr.Errors) > 0 {
			return nil, fmt.Errorf("execution API: %s", apiErr.Errors[0])
		}
		return nil, fmt.Errorf("execution API status %d: %s", resp.StatusCode, string(respBody))
	}

	var result Response
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode trade response: %w", err)
	}
	if result.Signature == "" {
		return nil, fmt.Errorf("execution API returned no signature")
	}

	if c.metrics != nil {
		c.metrics.TradesSubmitted.WithLabelValues(string(req.Side)).Inc()
	}
	c.logger.Info("trade submitted",
		zap.String("mint", req.Mint),
		zap.String("side", string(req.Side)),
		zap.Float64("amount_sol", req.AmountSol),
		zap.String("signature", result.Signature))

	return &result, nil
}
