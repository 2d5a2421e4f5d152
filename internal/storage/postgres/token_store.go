package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/storage"
)

// TokenStore implements storage.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *Pool
}

// NewTokenStore creates a new TokenStore.
func NewTokenStore(pool *Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
func (s *TokenStore) Insert(ctx context.Context, t *domain.Token) error {
	query := `
		INSERT INTO tokens (
			id, mint, name, symbol, creator, image_uri,
			market_cap_usd, price_usd, volume_24h_usd,
			last_market_cap_update, is_test, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := s.pool.Exec(ctx, query,
		t.ID,
		t.Mint,
		t.Name,
		t.Symbol,
		t.Creator,
		t.ImageURI,
		t.MarketCapUSD,
		t.PriceUSD,
		t.Volume24hUSD,
		t.LastMarketCapUpdate,
		t.IsTest,
		t.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(ctx context.Context, mint string) (*domain.Token, error) {
	query := tokenSelect + ` WHERE mint = $1`

	row := s.pool.QueryRow(ctx, query, mint)
	t, err := scanToken(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token by mint: %w", err)
	}
	return t, nil
}

// ListNeedingUpdate retrieves non-test tokens whose last_market_cap_update
// is NULL or older than olderThan, never-updated tokens first, then oldest.
func (s *TokenStore) ListNeedingUpdate(ctx context.Context, olderThan time.Time) ([]*domain.Token, error) {
	query := tokenSelect + `
		WHERE is_test = FALSE
		  AND (last_market_cap_update IS NULL OR last_market_cap_update < $1)
		ORDER BY last_market_cap_update ASC NULLS FIRST
	`

	rows, err := s.pool.Query(ctx, query, olderThan)
	if err != nil {
		return nil, fmt.Errorf("list tokens needing update: %w", err)
	}
	defer rows.Close()

	var tokens []*domain.Token
	for rows.Next() {
		t, err := scanToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list tokens needing update: %w", err)
	}
	return tokens, nil
}

// UpdateMarketCap writes the pipeline-owned fields for a mint.
func (s *TokenStore) UpdateMarketCap(ctx context.Context, mint string, marketCapUSD float64, at time.Time) error {
	query := `
		UPDATE tokens
		SET market_cap_usd = $2, last_market_cap_update = $3
		WHERE mint = $1
	`

	tag, err := s.pool.Exec(ctx, query, mint, marketCapUSD, at)
	if err != nil {
		return fmt.Errorf("update market cap: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// UpdateMarketStats applies a manual override of market fields.
func (s *TokenStore) UpdateMarketStats(ctx context.Context, mint string, upd storage.MarketStatsUpdate, at time.Time) error {
	if upd.IsEmpty() {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE tokens
		SET market_cap_usd = COALESCE($2, market_cap_usd),
		    price_usd = COALESCE($3, price_usd),
		    volume_24h_usd = COALESCE($4, volume_24h_usd),
		    last_market_cap_update = $5
		WHERE mint = $1
	`

	tag, err := s.pool.Exec(ctx, query, mint, upd.MarketCapUSD, upd.PriceUSD, upd.Volume24hUSD, at)
	if err != nil {
		return fmt.Errorf("update market stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const tokenSelect = `
	SELECT id, mint, name, symbol, creator, image_uri,
	       market_cap_usd, price_usd, volume_24h_usd,
	       last_market_cap_update, is_test, created_at
	FROM tokens
`

// scanToken scans a single row into Token.
func scanToken(row pgx.Row) (*domain.Token, error) {
	var t domain.Token

	err := row.Scan(
		&t.ID,
		&t.Mint,
		&t.Name,
		&t.Symbol,
		&t.Creator,
		&t.ImageURI,
		&t.MarketCapUSD,
		&t.PriceUSD,
		&t.Volume24hUSD,
		&t.LastMarketCapUpdate,
		&t.IsTest,
		&t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &t, nil
}
