// Package escrow abstracts moving value, native currency or ERC20 tokens,
// into and out of the registry's custody. The registry drives an Adapter on
// every state transition and always commits its own state flags before
// calling Payout, so transfer hooks cannot re-enter a half-applied wager.
package escrow

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Adapter moves escrow value. For the native-currency sentinel, Collect
// requires the attached value to equal amount exactly; for ERC20 tokens the
// attached value must be zero and the funds are pulled from the payer's
// pre-approved balance.
type Adapter interface {
	// Collect moves amount of token from the payer into custody. value is
	// the native currency attached to the request (nil means zero).
	Collect(ctx context.Context, token, from common.Address, amount, value *big.Int) error

	// Payout moves amount of token out of custody to the recipient.
	Payout(ctx context.Context, token, to common.Address, amount *big.Int) error
}
