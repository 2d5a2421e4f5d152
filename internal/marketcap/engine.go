package marketcap

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/observability"
	"token-launchpad/internal/storage"
)

// PriceSource converts SOL-denominated valuations to USD.
// Implemented by pricing.OracleClient.
type PriceSource interface {
	GetPrice(ctx context.Context, forceRefresh bool) (domain.SolPrice, error)
	Convert(amountSol float64) (float64, error)
}

// Source identifies where a reconciled valuation came from.
type Source string

const (
	// SourceLive means a positive valuation from the live trade cache.
	SourceLive Source = "live"
	// SourceDerived means a valuation re-derived from the persisted USD
	// value and the current SOL price.
	SourceDerived Source = "derived"
	// SourceNone means no signal at all; the valuation is zero.
	SourceNone Source = "none"
)

// Result is the outcome of reconciling one token.
type Result struct {
	Updated      bool
	MarketCapUSD float64
	Source       Source
}

// Engine decides the authoritative valuation for a token and writes it
// back to the store when policy dictates.
type Engine struct {
	cache   *Cache
	store   storage.TokenStore
	prices  PriceSource
	logger  *zap.Logger
	metrics *observability.Metrics
}

// EngineOption configures Engine.
type EngineOption func(*Engine)

// WithEngineLogger sets the logger.
func WithEngineLogger(logger *zap.Logger) EngineOption {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithEngineMetrics sets the metrics registry.
func WithEngineMetrics(m *observability.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// NewEngine creates a reconciliation engine.
func NewEngine(cache *Cache, store storage.TokenStore, prices PriceSource, opts ...EngineOption) *Engine {
	e := &Engine{
		cache:  cache,
		store:  store,
		prices: prices,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Reconcile computes the authoritative USD valuation for a token.
//
// Source selection: a positive live cache valuation wins; otherwise a
// positive persisted USD value is re-derived to SOL via the current unit
// price; otherwise the valuation is zero. Write-back happens only for
// live data, or for a first-time explicit zero when the token never had
// a positive persisted value. A value merely re-derived from the store
// is never written back.
func (e *Engine) Reconcile(ctx context.Context, token *domain.Token) (Result, error) {
	valuationSol := 0.0
	source := SourceNone

	if entry, ok := e.cache.Get(token.Mint); ok && entry.MarketCapSol > 0 {
		valuationSol = entry.MarketCapSol
		source = SourceLive
	} else if token.HadPositiveMarketCap() {
		price, err := e.prices.GetPrice(ctx, false)
		if err != nil {
			return Result{}, fmt.Errorf("derive valuation for %s: %w", token.Mint, err)
		}
		valuationSol = *token.MarketCapUSD / price.PriceUSD
		source = SourceDerived
	}

	// A definitionally-zero valuation converts to zero directly, without
	// touching a possibly-unavailable price.
	var marketCapUSD float64
	if valuationSol != 0 {
		usd, err := e.prices.Convert(valuationSol)
		if err != nil {
			return Result{}, fmt.Errorf("convert valuation for %s: %w", token.Mint, err)
		}
		marketCapUSD = usd
	}

	// Live data always commits. An explicit zero commits only the first
	// time a token has no signal at all; once a value is on record the
	// zero is not rewritten.
	shouldPersist := source == SourceLive ||
		(source == SourceNone && token.MarketCapUSD == nil)

	if !shouldPersist {
		if e.metrics != nil {
			e.metrics.Reconciliations.WithLabelValues(string(source), "skipped").Inc()
		}
		return Result{Updated: false, MarketCapUSD: marketCapUSD, Source: source}, nil
	}

	if err := e.store.UpdateMarketCap(ctx, token.Mint, marketCapUSD, time.Now()); err != nil {
		return Result{}, fmt.Errorf("persist market cap for %s: %w", token.Mint, err)
	}

	if e.metrics != nil {
		e.metrics.Reconciliations.WithLabelValues(string(source), "updated").Inc()
	}
	e.logger.Debug("market cap reconciled",
		zap.String("mint", token.Mint),
		zap.String("source", string(source)),
		zap.Float64("market_cap_usd", marketCapUSD))

	return Result{Updated: true, MarketCapUSD: marketCapUSD, Source: source}, nil
}
