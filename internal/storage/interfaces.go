package storage

import (
	"context"
	"time"

	"token-launchpad/internal/domain"
)

// MarketStatsUpdate is a partial update applied by the manual-override
// endpoint. Nil fields are left untouched.
type MarketStatsUpdate struct {
	MarketCapUSD *float64
	PriceUSD     *float64
	Volume24hUSD *float64
}

// IsEmpty reports whether the update carries no fields at all.
func (u MarketStatsUpdate) IsEmpty() bool {
	return u.MarketCapUSD == nil && u.PriceUSD == nil && u.Volume24hUSD == nil
}

// TokenStore provides access to tokens storage.
type TokenStore interface {
	// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
	Insert(ctx context.Context, t *domain.Token) error

	// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
	GetByMint(ctx context.Context, mint string) (*domain.Token, error)

	// ListNeedingUpdate retrieves non-test tokens whose LastMarketCapUpdate
	// is nil or older than olderThan, ordered oldest first with
	// never-updated tokens leading.
	ListNeedingUpdate(ctx context.Context, olderThan time.Time) ([]*domain.Token, error)

	// UpdateMarketCap writes the pipeline-owned fields (MarketCapUSD and
	// LastMarketCapUpdate) for a mint. Returns ErrNotFound if not exists.
	UpdateMarketCap(ctx context.Context, mint string, marketCapUSD float64, at time.Time) error

	// UpdateMarketStats applies a manual override. Returns ErrInvalidInput
	// if the update is empty, ErrNotFound if the mint does not exist.
	UpdateMarketStats(ctx context.Context, mint string, upd MarketStatsUpdate, at time.Time) error
}
