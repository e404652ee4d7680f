package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// TokenClass separates the two independently maintained allow-lists.
type TokenClass string

const (
	TokenClassPayment TokenClass = "payment"
	TokenClassWager   TokenClass = "wager"
)

// TokenInfo is one allow-list entry: a token paired with the oracle feed its
// USD price is read from. Re-adding an already-allowed token replaces the
// oracle. Decimals is the token's own fixed-point scale (18 for the native
// sentinel), used when valuing escrow amounts in USD.
type TokenInfo struct {
	Token    common.Address
	Oracle   common.Address
	Decimals uint8
	Allowed  bool
}

// RefundableFlag records a kill-switch activation for a wager token. Once
// flagged, every wager referencing the token redeems as a refund of both
// escrows, regardless of timing or computed winner.
type RefundableFlag struct {
	Token     common.Address
	FlaggedAt time.Time
}
