package domain

import "time"

// TradeDirection is the side of a trade as reported by the feed.
type TradeDirection string

const (
	TradeBuy  TradeDirection = "buy"
	TradeSell TradeDirection = "sell"
)

// TradeEvent is a single trade observed on the live feed. Events are
// transient: they update the market-cap cache and are then discarded.
type TradeEvent struct {
	Mint         string
	MarketCapSol float64 // implied market cap in SOL at trade time
	TxType       TradeDirection
	SolAmount    float64
	TokenAmount  float64
	ObservedAt   time.Time
}

// MarketCapEntry is the latest observed valuation for a mint.
// One entry per mint, overwritten on every new trade event.
type MarketCapEntry struct {
	Mint         string
	MarketCapSol float64
	TxType       TradeDirection
	SolAmount    float64
	TokenAmount  float64
	ObservedAt   time.Time
}

// EntryFromTrade converts a trade event into its cache entry.
func EntryFromTrade(e *TradeEvent) MarketCapEntry {
	return MarketCapEntry{
		Mint:         e.Mint,
		MarketCapSol: e.MarketCapSol,
		TxType:       e.TxType,
		SolAmount:    e.SolAmount,
		TokenAmount:  e.TokenAmount,
		ObservedAt:   e.ObservedAt,
	}
}
