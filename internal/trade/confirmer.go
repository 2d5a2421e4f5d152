package trade

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"token-launchpad/internal/observability"
	"token-launchpad/internal/solana"
)

// Confirmer defaults.
const (
	DefaultPollInterval  = 2 * time.Second
	DefaultConfirmBudget = 90 * time.Second
)

// Confirmer watches submitted transactions to their confirmation in the
// background. Each watch is a detached task with its own timeout budget,
// decoupled from the HTTP request that spawned it.
type Confirmer struct {
	rpc     *solana.Client
	logger  *zap.Logger
	metrics *observability.Metrics

	pollInterval time.Duration
	budget       time.Duration

	wg sync.WaitGroup
}

// ConfirmerOption configures Confirmer.
type ConfirmerOption func(*Confirmer)

// WithPollInterval sets the status polling interval.
func WithPollInterval(d time.Duration) ConfirmerOption {
	return func(c *Confirmer) {
		c.pollInterval = d
	}
}

// WithConfirmBudget sets the per-watch timeout budget.
func WithConfirmBudget(d time.Duration) ConfirmerOption {
	return func(c *Confirmer) {
		c.budget = d
	}
}

// WithConfirmerLogger sets the logger.
func WithConfirmerLogger(logger *zap.Logger) ConfirmerOption {
	return func(c *Confirmer) {
		c.logger = logger
	}
}

// WithConfirmerMetrics sets the metrics registry.
func WithConfirmerMetrics(m *observability.Metrics) ConfirmerOption {
	return func(c *Confirmer) {
		c.metrics = m
	}
}

// NewConfirmer creates a confirmation poller backed by the RPC client.
func NewConfirmer(rpc *solana.Client, opts ...ConfirmerOption) *Confirmer {
	c := &Confirmer{
		rpc:          rpc,
		logger:       zap.NewNop(),
		pollInterval: DefaultPollInterval,
		budget:       DefaultConfirmBudget,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Watch spawns a supervised goroutine polling the signature status until
// it confirms, fails, or the budget expires. It never blocks the caller.
func (c *Confirmer) Watch(signature string) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.budget)
		defer cancel()

		outcome := c.poll(ctx, signature)
		if c.metrics != nil {
			c.metrics.TradeConfirmations.WithLabelValues(outcome).Inc()
		}
	}()
}

// Wait blocks until all in-flight watches complete. Intended for
// shutdown and tests.
func (c *Confirmer) Wait() {
	c.wg.Wait()
}

func (c *Confirmer) poll(ctx context.Context, signature string) string {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := c.rpc.GetSignatureStatuses(ctx, []string{signature})
		if err != nil {
			c.logger.Warn("confirmation poll failed",
				zap.String("signature", signature),
				zap.Error(err))
		} else if len(statuses) > 0 {
			status := statuses[0]
			switch {
			case status.Failed():
				c.logger.Warn("trade failed on-chain",
					zap.String("signature", signature),
					zap.Any("err", status.Err))
				return "failed"
			case status.Confirmed():
				c.logger.Info("trade confirmed",
					zap.String("signature", signature),
					zap.Int64("slot", status.Slot))
				return "confirmed"
			}
		}

		select {
		case <-ctx.Done():
			c.logger.Warn("trade confirmation timed out",
				zap.String("signature", signature))
			return "timeout"
		case <-ticker.C:
		}
	}
}
