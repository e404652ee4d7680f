// Package domain defines the core types, sentinel errors, and persistence
// interfaces shared by every layer of wagerd.
package domain

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// NativeToken is the sentinel address representing the chain's native
// currency. Escrow against it moves attached value instead of ERC20 balances.
var NativeToken = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// OpenTaker is the userB sentinel for peer-to-market wagers: any address may
// fill. A non-zero userB restricts the fill to that address (peer-to-peer).
var OpenTaker = common.Address{}

// NoWinner is returned by winner checks when the settlement price satisfies
// neither side; the pool is then split back to the original contributions.
var NoWinner = common.Address{}

// WagerKind distinguishes the two strike layouts sharing the registry.
type WagerKind string

const (
	// WagerKindFixed carries one strike price plus a directional flag.
	WagerKindFixed WagerKind = "fixed"
	// WagerKindConditional carries one independent strike per side; the
	// side whose strike is closest to the settlement price wins.
	WagerKindConditional WagerKind = "conditional"
)

// Wager is a single escrowed price bet. AmountUserA is stored net of the
// creation fee; AmountUserB is collected unadjusted at fill time.
type Wager struct {
	ID           uint64
	Kind         WagerKind
	UserA        common.Address
	UserB        common.Address
	WagerToken   common.Address
	PaymentToken common.Address

	// Fixed variant.
	WagerPrice *big.Int
	Above      bool

	// Conditional variant.
	WagerPriceA *big.Int
	WagerPriceB *big.Int

	AmountUserA *big.Int
	AmountUserB *big.Int

	Duration  time.Duration
	CreatedAt time.Time
	FilledAt  time.Time

	IsFilled bool
	IsClosed bool
}

// OpenToMarket reports whether the wager may be filled by any counterparty.
func (w *Wager) OpenToMarket() bool {
	return w.UserB == OpenTaker
}

// Deadline is the instant the wager becomes redeemable and the timestamp the
// settlement price is resolved at. Zero until the wager is filled.
func (w *Wager) Deadline() time.Time {
	if w.FilledAt.IsZero() {
		return time.Time{}
	}
	return w.FilledAt.Add(w.Duration)
}

// Pool is the total escrow held once filled.
func (w *Wager) Pool() *big.Int {
	total := new(big.Int).Set(w.AmountUserA)
	if w.AmountUserB != nil {
		total.Add(total, w.AmountUserB)
	}
	return total
}
