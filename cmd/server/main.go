// Package main runs the token-launchpad backend: the HTTP API, the live
// trade-feed stream and the market-cap update scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"token-launchpad/internal/marketcap"
	"token-launchpad/internal/observability"
	"token-launchpad/internal/pricing"
	"token-launchpad/internal/server"
	"token-launchpad/internal/solana"
	"token-launchpad/internal/storage"
	"token-launchpad/internal/storage/memory"
	"token-launchpad/internal/storage/migrations"
	pgstore "token-launchpad/internal/storage/postgres"
	"token-launchpad/internal/trade"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	listen := flag.String("listen", envOr("LISTEN_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	useMemory := flag.Bool("memory", false, "Use in-memory storage instead of PostgreSQL")
	feedEndpoint := flag.String("feed-endpoint", envOr("TRADE_FEED_ENDPOINT", "wss://pumpportal.fun/api/data"), "Trade feed WebSocket endpoint")
	quoteEndpoint := flag.String("quote-endpoint", envOr("QUOTE_ENDPOINT", "https://quote-api.jup.ag/v6/quote"), "Price quote API endpoint")
	rpcEndpoint := flag.String("rpc-endpoint", envOr("SOLANA_RPC_ENDPOINT", "https://api.mainnet-beta.solana.com"), "Solana RPC HTTP endpoint")
	tradeEndpoint := flag.String("trade-endpoint", os.Getenv("TRADE_API_ENDPOINT"), "Trade execution API endpoint (empty disables /trade)")
	tradeAPIKey := flag.String("trade-api-key", os.Getenv("TRADE_API_KEY"), "Trade execution API key")
	startInterval := flag.Int("start-interval", envIntOr("UPDATE_INTERVAL_MINUTES", 0), "Start the scheduler at this interval in minutes (0 = wait for API call)")
	staleness := flag.Duration("staleness", envDurationOr("STALENESS_THRESHOLD", marketcap.DefaultStalenessThreshold), "Age beyond which a market cap is refreshed")
	settling := flag.Duration("settling", envDurationOr("SETTLING_DELAY", marketcap.DefaultSettlingDelay), "Wait after subscribing before reconciling")
	priceTTL := flag.Duration("price-ttl", envDurationOr("PRICE_TTL", pricing.DefaultTTL), "SOL price cache TTL")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	logger, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics := observability.NewMetrics("")

	// Storage
	var store storage.TokenStore
	var pool *pgstore.Pool
	if *useMemory {
		logger.Info("using in-memory storage")
		store = memory.NewTokenStore()
	} else {
		if *postgresDSN == "" {
			logger.Fatal("POSTGRES_DSN is required (or pass -memory)")
		}
		pool, err = pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatal("connect postgres", zap.Error(err))
		}
		defer pool.Close()

		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatal("run migrations", zap.Error(err))
		}
		store = pgstore.NewTokenStore(pool)
	}

	// Market-cap pipeline
	cache := marketcap.NewCache()
	stream := marketcap.NewTradeStream(*feedEndpoint, cache,
		marketcap.WithStreamLogger(logger.Named("feed")),
		marketcap.WithStreamMetrics(metrics),
	)
	defer stream.Close()

	oracle := pricing.NewOracleClient(*quoteEndpoint,
		pricing.WithTTL(*priceTTL),
		pricing.WithLogger(logger.Named("oracle")),
		pricing.WithMetrics(metrics),
	)

	engine := marketcap.NewEngine(cache, store, oracle,
		marketcap.WithEngineLogger(logger.Named("reconcile")),
		marketcap.WithEngineMetrics(metrics),
	)

	scheduler := marketcap.NewScheduler(store, stream, engine,
		marketcap.WithSchedulerConfig(marketcap.SchedulerConfig{
			StalenessThreshold: *staleness,
			SettlingDelay:      *settling,
		}),
		marketcap.WithSchedulerLogger(logger.Named("scheduler")),
		marketcap.WithSchedulerMetrics(metrics),
	)

	// HTTP server
	serverOpts := []server.Option{server.WithLogger(logger.Named("http"))}

	var confirmer *trade.Confirmer
	if *tradeEndpoint != "" {
		rpc := solana.NewClient(*rpcEndpoint)
		confirmer = trade.NewConfirmer(rpc,
			trade.WithConfirmerLogger(logger.Named("confirm")),
			trade.WithConfirmerMetrics(metrics),
		)
		tradeClient := trade.NewClient(*tradeEndpoint, *tradeAPIKey,
			trade.WithLogger(logger.Named("trade")),
			trade.WithMetrics(metrics),
		)
		serverOpts = append(serverOpts, server.WithTradeClient(tradeClient, confirmer))
	}

	srv := server.New(store, scheduler, serverOpts...)
	httpServer := &http.Server{
		Addr:              *listen,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if *startInterval > 0 {
		go scheduler.Start(time.Duration(*startInterval) * time.Minute)
	}

	go func() {
		logger.Info("http server listening", zap.String("addr", *listen))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}

	scheduler.Stop()
	if confirmer != nil {
		confirmer.Wait()
	}
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return fallback
	}
	return n
}

func envDurationOr(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
