package marketcap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/observability"
	"token-launchpad/internal/storage"
)

// TradeFeed is the stream surface the scheduler drives.
// Implemented by TradeStream.
type TradeFeed interface {
	Subscribe(mints []string) error
}

// Scheduler defaults.
const (
	DefaultStalenessThreshold = 15 * time.Minute
	DefaultSettlingDelay      = 5 * time.Second
)

// SchedulerConfig configures update-cycle behavior.
type SchedulerConfig struct {
	// StalenessThreshold is the age beyond which a persisted valuation
	// becomes eligible for refresh.
	StalenessThreshold time.Duration
	// SettlingDelay is how long a cycle waits after subscribing before
	// reconciling, to let live trades arrive.
	SettlingDelay time.Duration
}

// DefaultSchedulerConfig returns the canonical scheduler configuration.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		StalenessThreshold: DefaultStalenessThreshold,
		SettlingDelay:      DefaultSettlingDelay,
	}
}

// Scheduler drives the reconciliation pipeline on a fixed cadence and
// exposes manual trigger, stop and status operations. Update cycles are
// serialized: the recurring tick skips when a cycle is already in
// flight, a manual trigger waits its turn.
type Scheduler struct {
	store   storage.TokenStore
	feed    TradeFeed
	engine  *Engine
	config  SchedulerConfig
	logger  *zap.Logger
	metrics *observability.Metrics

	mu       sync.Mutex // guards running, interval, stopCh
	running  bool
	interval time.Duration
	stopCh   chan struct{}

	cycleMu sync.Mutex // serializes update cycles

	statusMu sync.Mutex
	lastJob  *domain.JobStatus
}

// SchedulerOption configures Scheduler.
type SchedulerOption func(*Scheduler)

// WithSchedulerConfig overrides the cycle configuration.
func WithSchedulerConfig(cfg SchedulerConfig) SchedulerOption {
	return func(s *Scheduler) {
		s.config = cfg
	}
}

// WithSchedulerLogger sets the logger.
func WithSchedulerLogger(logger *zap.Logger) SchedulerOption {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// WithSchedulerMetrics sets the metrics registry.
func WithSchedulerMetrics(m *observability.Metrics) SchedulerOption {
	return func(s *Scheduler) {
		s.metrics = m
	}
}

// NewScheduler creates an update scheduler.
func NewScheduler(store storage.TokenStore, feed TradeFeed, engine *Engine, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		store:  store,
		feed:   feed,
		engine: engine,
		config: DefaultSchedulerConfig(),
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs one update cycle immediately, then arms a recurring timer
// at the given interval. No-op when already running.
func (s *Scheduler) Start(interval time.Duration) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Warn("scheduler already running")
		return
	}
	s.running = true
	s.interval = interval
	s.stopCh = make(chan struct{})
	stopCh := s.stopCh
	s.mu.Unlock()

	s.logger.Info("scheduler started", zap.Duration("interval", interval))

	// Immediate cycle, synchronously awaited. Failures are recorded in
	// the job status and logged; they do not prevent the timer.
	s.runCycle()

	go s.loop(interval, stopCh)
}

// loop invokes the update cycle on each tick until stopped.
func (s *Scheduler) loop(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			if !s.cycleMu.TryLock() {
				s.logger.Warn("skipping scheduled cycle: previous cycle still running")
				if s.metrics != nil {
					s.metrics.JobRuns.WithLabelValues("skipped").Inc()
				}
				continue
			}
			_, err := s.performUpdate(context.Background())
			s.cycleMu.Unlock()
			if err != nil {
				// The timer keeps ticking regardless.
				s.logger.Error("scheduled update cycle failed", zap.Error(err))
			}
		}
	}
}

// runCycle runs one serialized cycle, swallowing the error after logging.
func (s *Scheduler) runCycle() {
	s.cycleMu.Lock()
	_, err := s.performUpdate(context.Background())
	s.cycleMu.Unlock()
	if err != nil {
		s.logger.Error("update cycle failed", zap.Error(err))
	}
}

// Stop cancels future ticks. A cycle already in progress is not
// interrupted.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.stopCh = nil
	s.logger.Info("scheduler stopped")
}

// TriggerUpdate runs one update cycle immediately, regardless of timer
// state, and returns the resulting job status. Unlike the timer path,
// cycle failures propagate to the caller.
func (s *Scheduler) TriggerUpdate(ctx context.Context) (*domain.JobStatus, error) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()
	return s.performUpdate(ctx)
}

// IsRunning reports whether the recurring timer is armed.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// UpdateInterval returns the configured interval (zero before Start).
func (s *Scheduler) UpdateInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// StalenessThreshold returns the configured staleness threshold.
func (s *Scheduler) StalenessThreshold() time.Duration {
	return s.config.StalenessThreshold
}

// LastJobStatus returns a copy of the most recent job status, or nil if
// no cycle has ever run.
func (s *Scheduler) LastJobStatus() *domain.JobStatus {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	if s.lastJob == nil {
		return nil
	}
	job := *s.lastJob
	job.Errors = append([]domain.JobError(nil), s.lastJob.Errors...)
	return &job
}

// setStatus replaces the current job status record.
func (s *Scheduler) setStatus(job *domain.JobStatus) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()

	snapshot := *job
	snapshot.Errors = append([]domain.JobError(nil), job.Errors...)
	s.lastJob = &snapshot
}

// performUpdate is the cycle body: select stale tokens, subscribe the
// feed, wait the settling delay, then reconcile each candidate in order.
// Callers must hold cycleMu.
func (s *Scheduler) performUpdate(ctx context.Context) (*domain.JobStatus, error) {
	start := time.Now()
	job := &domain.JobStatus{
		Status:    domain.JobRunning,
		StartTime: start,
	}
	s.setStatus(job)

	fail := func(err error) (*domain.JobStatus, error) {
		end := time.Now()
		job.Status = domain.JobFailed
		job.EndTime = &end
		job.Error = err.Error()
		s.setStatus(job)
		if s.metrics != nil {
			s.metrics.JobRuns.WithLabelValues("failed").Inc()
		}
		return s.LastJobStatus(), err
	}

	candidates, err := s.store.ListNeedingUpdate(ctx, start.Add(-s.config.StalenessThreshold))
	if err != nil {
		return fail(fmt.Errorf("list tokens needing update: %w", err))
	}

	if len(candidates) == 0 {
		end := time.Now()
		job.Status = domain.JobCompleted
		job.EndTime = &end
		s.setStatus(job)
		if s.metrics != nil {
			s.metrics.JobRuns.WithLabelValues("completed").Inc()
		}
		s.logger.Debug("update cycle: no stale tokens")
		return s.LastJobStatus(), nil
	}

	mints := make([]string, 0, len(candidates))
	for _, t := range candidates {
		mints = append(mints, t.Mint)
	}

	// A feed failure degrades the cycle to persisted data; it does not
	// abort it.
	if err := s.feed.Subscribe(mints); err != nil {
		s.logger.Warn("trade feed subscribe failed, reconciling without live data",
			zap.Int("mints", len(mints)),
			zap.Error(err))
	}

	// Settling window: give live trades a chance to arrive.
	select {
	case <-time.After(s.config.SettlingDelay):
	case <-ctx.Done():
		return fail(ctx.Err())
	}

	for _, token := range candidates {
		job.TokensProcessed++
		result, err := s.engine.Reconcile(ctx, token)
		if err != nil {
			job.Errors = append(job.Errors, domain.JobError{
				Mint:    token.Mint,
				Message: err.Error(),
			})
			continue
		}
		if result.Updated {
			job.TokensUpdated++
		}
	}

	end := time.Now()
	job.Status = domain.JobCompleted
	job.EndTime = &end
	s.setStatus(job)

	if s.metrics != nil {
		s.metrics.JobRuns.WithLabelValues("completed").Inc()
		s.metrics.JobDuration.Observe(end.Sub(start).Seconds())
	}
	s.logger.Info("update cycle completed",
		zap.Int("processed", job.TokensProcessed),
		zap.Int("updated", job.TokensUpdated),
		zap.Int("errors", len(job.Errors)),
		zap.Duration("took", end.Sub(start)))

	return s.LastJobStatus(), nil
}
