package domain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// RoundData is one observation from a price feed's append-only round log.
// Price is fixed-point with the feed's declared decimal count (8 for the USD
// feeds consumed here). UpdatedAt of zero marks a round id that was skipped
// and never reported.
type RoundData struct {
	RoundID         *big.Int
	Price           *big.Int
	StartedAt       int64
	UpdatedAt       int64
	AnsweredInRound *big.Int
}

// HasData reports whether the round was actually reported by the feed.
func (r RoundData) HasData() bool {
	return r.UpdatedAt != 0
}

// PriceFeed is the consumed oracle interface. Round identifiers encode a
// phase number in the high 64 bits and a per-phase sequential round number
// in the low 64 bits; ids within a phase may be non-contiguous.
type PriceFeed interface {
	Decimals(ctx context.Context) (uint8, error)
	LatestRoundData(ctx context.Context) (RoundData, error)
	GetRoundData(ctx context.Context, roundID *big.Int) (RoundData, error)
}

// FeedOpener resolves an oracle address into a usable PriceFeed. The chain
// implementation dials the aggregator proxy; the memory implementation hands
// back registered in-process feeds.
type FeedOpener interface {
	Open(oracle common.Address) (PriceFeed, error)
}
