package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"token-launchpad/internal/domain"
	"token-launchpad/internal/storage"
)

// TokenStore is an in-memory implementation of storage.TokenStore.
type TokenStore struct {
	mu     sync.RWMutex
	byMint map[string]*domain.Token
}

// NewTokenStore creates a new in-memory token store.
func NewTokenStore() *TokenStore {
	return &TokenStore{
		byMint: make(map[string]*domain.Token),
	}
}

var _ storage.TokenStore = (*TokenStore)(nil)

// Insert adds a new token. Returns ErrDuplicateKey if the mint exists.
func (s *TokenStore) Insert(_ context.Context, t *domain.Token) error {
	if t == nil || t.Mint == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byMint[t.Mint]; exists {
		return storage.ErrDuplicateKey
	}

	tokenCopy := *t
	s.byMint[t.Mint] = &tokenCopy
	return nil
}

// GetByMint retrieves a token by mint address. Returns ErrNotFound if not exists.
func (s *TokenStore) GetByMint(_ context.Context, mint string) (*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, exists := s.byMint[mint]
	if !exists {
		return nil, storage.ErrNotFound
	}

	tokenCopy := *t
	return &tokenCopy, nil
}

// ListNeedingUpdate retrieves non-test tokens whose LastMarketCapUpdate is
// nil or older than olderThan, never-updated tokens first, then oldest.
func (s *TokenStore) ListNeedingUpdate(_ context.Context, olderThan time.Time) ([]*domain.Token, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var tokens []*domain.Token
	for _, t := range s.byMint {
		if t.IsTest {
			continue
		}
		if t.LastMarketCapUpdate == nil || t.LastMarketCapUpdate.Before(olderThan) {
			tokenCopy := *t
			tokens = append(tokens, &tokenCopy)
		}
	}

	sort.Slice(tokens, func(i, j int) bool {
		a, b := tokens[i].LastMarketCapUpdate, tokens[j].LastMarketCapUpdate
		switch {
		case a == nil && b == nil:
			return tokens[i].Mint < tokens[j].Mint
		case a == nil:
			return true
		case b == nil:
			return false
		default:
			return a.Before(*b)
		}
	})

	return tokens, nil
}

// UpdateMarketCap writes the pipeline-owned fields for a mint.
func (s *TokenStore) UpdateMarketCap(_ context.Context, mint string, marketCapUSD float64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.byMint[mint]
	if !exists {
		return storage.ErrNotFound
	}

	value := marketCapUSD
	updated := at
	t.MarketCapUSD = &value
	t.LastMarketCapUpdate = &updated
	return nil
}

// UpdateMarketStats applies a manual override of market fields.
func (s *TokenStore) UpdateMarketStats(_ context.Context, mint string, upd storage.MarketStatsUpdate, at time.Time) error {
	if upd.IsEmpty() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, exists := s.byMint[mint]
	if !exists {
		return storage.ErrNotFound
	}

	if upd.MarketCapUSD != nil {
		value := *upd.MarketCapUSD
		t.MarketCapUSD = &value
	}
	if upd.PriceUSD != nil {
		value := *upd.PriceUSD
		t.PriceUSD = &value
	}
	if upd.Volume24hUSD != nil {
		value := *upd.Volume24hUSD
		t.Volume24hUSD = &value
	}
	updated := at
	t.LastMarketCapUpdate = &updated
	return nil
}
