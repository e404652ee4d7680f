package registry

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alta-labs/wagerd/internal/domain"
)

// winnerOf evaluates the wager's strike condition(s) against the settlement
// price. domain.NoWinner means the pool splits back to the original
// contributions.
func winnerOf(w *domain.Wager, price *big.Int) common.Address {
	if w.Kind == domain.WagerKindConditional {
		return conditionalWinner(w, price)
	}
	return fixedWinner(w, price)
}

// fixedWinner: with above=true, user A wins when the price settles above the
// strike and user B when it settles below; an exact hit is a split. The
// directions invert when above=false.
func fixedWinner(w *domain.Wager, price *big.Int) common.Address {
	cmp := price.Cmp(w.WagerPrice)
	if cmp == 0 {
		return domain.NoWinner
	}
	if (cmp > 0) == w.Above {
		return w.UserA
	}
	return w.UserB
}

// conditionalWinner: each side has its own strike; the side whose strike is
// closer to the settlement price wins. Equidistant strikes are a split.
func conditionalWinner(w *domain.Wager, price *big.Int) common.Address {
	distA := new(big.Int).Sub(price, w.WagerPriceA)
	distA.Abs(distA)
	distB := new(big.Int).Sub(price, w.WagerPriceB)
	distB.Abs(distB)
	switch distA.Cmp(distB) {
	case -1:
		return w.UserA
	case 1:
		return w.UserB
	default:
		return domain.NoWinner
	}
}
