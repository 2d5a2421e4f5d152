package domain

import "time"

// SolPrice is the cached SOL/USD conversion rate.
type SolPrice struct {
	PriceUSD  float64 // USD per one SOL
	FetchedAt time.Time
}

// Age returns how old the cached price is.
func (p SolPrice) Age(now time.Time) time.Duration {
	return now.Sub(p.FetchedAt)
}
