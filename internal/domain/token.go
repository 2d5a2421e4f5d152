package domain

import "time"

// Token represents a launched token tracked by the platform.
// Corresponds to the tokens table in PostgreSQL.
type Token struct {
	ID       string // PRIMARY KEY, uuid assigned at creation
	Mint     string // token mint address, unique, immutable
	Name     string
	Symbol   string
	Creator  string // creator wallet address
	ImageURI string

	// Market fields, written by the market-cap pipeline and the
	// manual-override endpoint. All denominated in USD.
	MarketCapUSD *float64
	PriceUSD     *float64
	Volume24hUSD *float64

	// LastMarketCapUpdate is nil iff MarketCapUSD has never been written.
	// An explicit zero write still sets the timestamp.
	LastMarketCapUpdate *time.Time

	// IsTest excludes a token from the update pipeline.
	IsTest bool

	CreatedAt time.Time
}

// HadPositiveMarketCap reports whether the token carries a previously
// persisted positive market cap.
func (t *Token) HadPositiveMarketCap() bool {
	return t.MarketCapUSD != nil && *t.MarketCapUSD > 0
}
