package marketcap

import (
	"encoding/json"
	"time"

	"token-launchpad/internal/domain"
)

type messageKind int

const (
	messageUnknown messageKind = iota
	messageTrade
	messageAck
)

// inboundMessage is the classified form of a feed message.
type inboundMessage struct {
	kind    messageKind
	trade   *domain.TradeEvent
	ackText string
}

// wireMessage is the superset of fields the feed sends. Classification
// is explicit: a message is a trade iff it carries both a mint and a
// marketCapSol field, an acknowledgment iff it carries a message text.
type wireMessage struct {
	Mint         string   `json:"mint"`
	MarketCapSol *float64 `json:"marketCapSol"`
	TxType       string   `json:"txType"`
	SolAmount    float64  `json:"solAmount"`
	TokenAmount  float64  `json:"tokenAmount"`
	Message      string   `json:"message"`
}

// classifyMessage parses a raw feed message into its tagged variant.
// Malformed payloads classify as unknown.
func classifyMessage(data []byte, observedAt time.Time) inboundMessage {
	var wire wireMessage
	if err := json.Unmarshal(data, &wire); err != nil {
		return inboundMessage{kind: messageUnknown}
	}

	if wire.Mint != "" && wire.MarketCapSol != nil {
		return inboundMessage{
			kind: messageTrade,
			trade: &domain.TradeEvent{
				Mint:         wire.Mint,
				MarketCapSol: *wire.MarketCapSol,
				TxType:       domain.TradeDirection(wire.TxType),
				SolAmount:    wire.SolAmount,
				TokenAmount:  wire.TokenAmount,
				ObservedAt:   observedAt,
			},
		}
	}

	if wire.Message != "" {
		return inboundMessage{kind: messageAck, ackText: wire.Message}
	}

	return inboundMessage{kind: messageUnknown}
}
