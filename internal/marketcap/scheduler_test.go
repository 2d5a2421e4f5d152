package marketcap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/storage"
	"token-launchpad/internal/storage/memory"
)

// recordingFeed captures subscription calls.
type recordingFeed struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (f *recordingFeed) Subscribe(mints []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, append([]string(nil), mints...))
	return f.err
}

func (f *recordingFeed) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// failingStore makes the candidate query fail.
type failingStore struct {
	storage.TokenStore
}

func (failingStore) ListNeedingUpdate(context.Context, time.Time) ([]*domain.Token, error) {
	return nil, errors.New("db down")
}

func newTestScheduler(store storage.TokenStore, feed TradeFeed, prices PriceSource, cache *Cache) *Scheduler {
	engine := NewEngine(cache, store, prices)
	return NewScheduler(store, feed, engine,
		WithSchedulerConfig(SchedulerConfig{
			StalenessThreshold: 15 * time.Minute,
			SettlingDelay:      0, // no settling wait in tests
		}),
	)
}

func TestScheduler_NoStatusBeforeFirstRun(t *testing.T) {
	s := newTestScheduler(memory.NewTokenStore(), &recordingFeed{}, &stubPrices{priceUSD: 1}, NewCache())
	assert.Nil(t, s.LastJobStatus())
	assert.False(t, s.IsRunning())
	assert.Zero(t, s.UpdateInterval())
}

func TestScheduler_TriggerUpdate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTokenStore()
	cache := NewCache()
	feed := &recordingFeed{}
	s := newTestScheduler(store, feed, &stubPrices{priceUSD: 150}, cache)

	// One never-updated token and one fresh token.
	insertToken(t, store, &domain.Token{ID: "1", Mint: "stale", CreatedAt: time.Now()})
	fresh := time.Now()
	mcap := 10.0
	insertToken(t, store, &domain.Token{
		ID: "2", Mint: "fresh",
		MarketCapUSD: &mcap, LastMarketCapUpdate: &fresh,
		CreatedAt: time.Now(),
	})

	// Live data for the stale token.
	cache.Upsert(domain.MarketCapEntry{Mint: "stale", MarketCapSol: 50})

	job, err := s.TriggerUpdate(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 1, job.TokensProcessed)
	assert.Equal(t, 1, job.TokensUpdated)
	assert.Empty(t, job.Errors)
	require.NotNil(t, job.EndTime)

	require.Equal(t, 1, feed.callCount())
	assert.Equal(t, []string{"stale"}, feed.calls[0])

	persisted, err := store.GetByMint(ctx, "stale")
	require.NoError(t, err)
	require.NotNil(t, persisted.MarketCapUSD)
	assert.InDelta(t, 7500.0, *persisted.MarketCapUSD, 1e-9)
}

func TestScheduler_EmptyCandidateSetSkipsSubscribe(t *testing.T) {
	ctx := context.Background()
	feed := &recordingFeed{}
	s := newTestScheduler(memory.NewTokenStore(), feed, &stubPrices{priceUSD: 1}, NewCache())

	job, err := s.TriggerUpdate(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Zero(t, job.TokensProcessed)
	assert.Zero(t, job.TokensUpdated)
	assert.Equal(t, 0, feed.callCount())
}

func TestScheduler_SecondRunIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTokenStore()
	cache := NewCache()
	s := newTestScheduler(store, &recordingFeed{}, &stubPrices{priceUSD: 150}, cache)

	insertToken(t, store, &domain.Token{ID: "1", Mint: "mintA", CreatedAt: time.Now()})
	cache.Upsert(domain.MarketCapEntry{Mint: "mintA", MarketCapSol: 50})

	job, err := s.TriggerUpdate(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, job.TokensUpdated)

	before, err := store.GetByMint(ctx, "mintA")
	require.NoError(t, err)

	// The timestamp was just set, so the candidate set is now empty.
	job, err = s.TriggerUpdate(ctx)
	require.NoError(t, err)
	assert.Zero(t, job.TokensProcessed)

	after, err := store.GetByMint(ctx, "mintA")
	require.NoError(t, err)
	assert.Equal(t, *before.MarketCapUSD, *after.MarketCapUSD)
	assert.True(t, after.LastMarketCapUpdate.Equal(*before.LastMarketCapUpdate))
}

func TestScheduler_PerTokenErrorsDoNotAbortCycle(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTokenStore()
	cache := NewCache()
	// Oracle down: live tokens fail conversion, empty tokens still get
	// their zero write.
	s := newTestScheduler(store, &recordingFeed{}, &stubPrices{err: errors.New("oracle down")}, cache)

	insertToken(t, store, &domain.Token{ID: "1", Mint: "live", CreatedAt: time.Now()})
	insertToken(t, store, &domain.Token{ID: "2", Mint: "silent", CreatedAt: time.Now()})
	cache.Upsert(domain.MarketCapEntry{Mint: "live", MarketCapSol: 50})

	job, err := s.TriggerUpdate(ctx)
	require.NoError(t, err)

	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 2, job.TokensProcessed)
	assert.Equal(t, 1, job.TokensUpdated)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, "live", job.Errors[0].Mint)
}

func TestScheduler_QueryFailureRecordsFailedStatus(t *testing.T) {
	ctx := context.Background()
	feed := &recordingFeed{}
	s := newTestScheduler(failingStore{memory.NewTokenStore()}, feed, &stubPrices{priceUSD: 1}, NewCache())

	job, err := s.TriggerUpdate(ctx)
	require.Error(t, err)

	require.NotNil(t, job)
	assert.Equal(t, domain.JobFailed, job.Status)
	assert.Contains(t, job.Error, "db down")
	require.NotNil(t, job.EndTime)

	// The failed record sticks around for status reads.
	last := s.LastJobStatus()
	require.NotNil(t, last)
	assert.Equal(t, domain.JobFailed, last.Status)
}

func TestScheduler_FeedFailureDegradesGracefully(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTokenStore()
	feed := &recordingFeed{err: errors.New("stream gave up")}
	s := newTestScheduler(store, feed, &stubPrices{priceUSD: 150}, NewCache())

	insertToken(t, store, &domain.Token{ID: "1", Mint: "mintA", CreatedAt: time.Now()})

	job, err := s.TriggerUpdate(ctx)
	require.NoError(t, err)

	// No live data arrives; the no-signal zero write still happens.
	assert.Equal(t, domain.JobCompleted, job.Status)
	assert.Equal(t, 1, job.TokensProcessed)
	assert.Equal(t, 1, job.TokensUpdated)
}

func TestScheduler_StartStop(t *testing.T) {
	store := memory.NewTokenStore()
	s := newTestScheduler(store, &recordingFeed{}, &stubPrices{priceUSD: 1}, NewCache())

	s.Start(time.Minute)
	assert.True(t, s.IsRunning())
	assert.Equal(t, time.Minute, s.UpdateInterval())

	// The immediate cycle ran synchronously.
	job := s.LastJobStatus()
	require.NotNil(t, job)
	assert.Equal(t, domain.JobCompleted, job.Status)

	// Second start is a no-op.
	s.Start(5 * time.Minute)
	assert.Equal(t, time.Minute, s.UpdateInterval())

	s.Stop()
	assert.False(t, s.IsRunning())

	// Stopping twice is safe.
	s.Stop()
	assert.False(t, s.IsRunning())
}
