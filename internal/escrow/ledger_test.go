package escrow

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alta-labs/wagerd/internal/domain"
)

var (
	weth  = common.HexToAddress("0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2")
	alice = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	bob   = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func TestCollectToken(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Fund(weth, alice, eth(5))

	require.NoError(t, l.Collect(ctx, weth, alice, eth(2), nil))
	assert.Equal(t, eth(3), l.BalanceOf(weth, alice))
	assert.Equal(t, eth(2), l.CustodyBalance(weth))

	err := l.Collect(ctx, weth, alice, eth(10), nil)
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, eth(3), l.BalanceOf(weth, alice))
}

func TestCollectTokenRejectsAttachedValue(t *testing.T) {
	l := NewLedger()
	l.Fund(weth, alice, eth(5))

	err := l.Collect(context.Background(), weth, alice, eth(1), eth(1))
	assert.ErrorIs(t, err, domain.ErrValueMismatch)
}

func TestCollectNativeValueMatch(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Fund(domain.NativeToken, alice, eth(5))

	// Value must equal the amount exactly.
	assert.ErrorIs(t, l.Collect(ctx, domain.NativeToken, alice, eth(2), nil), domain.ErrValueMismatch)
	assert.ErrorIs(t, l.Collect(ctx, domain.NativeToken, alice, eth(2), eth(1)), domain.ErrValueMismatch)
	require.NoError(t, l.Collect(ctx, domain.NativeToken, alice, eth(2), eth(2)))
	assert.Equal(t, eth(2), l.CustodyBalance(domain.NativeToken))
}

func TestPayout(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	l.Fund(weth, alice, eth(4))
	require.NoError(t, l.Collect(ctx, weth, alice, eth(4), nil))

	require.NoError(t, l.Payout(ctx, weth, bob, eth(3)))
	assert.Equal(t, eth(3), l.BalanceOf(weth, bob))
	assert.Equal(t, eth(1), l.CustodyBalance(weth))

	// Paying out more than custody holds must fail without effect.
	err := l.Payout(ctx, weth, bob, eth(2))
	assert.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, eth(3), l.BalanceOf(weth, bob))
	assert.Equal(t, eth(1), l.CustodyBalance(weth))
}
