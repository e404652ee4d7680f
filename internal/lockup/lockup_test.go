package lockup

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/escrow"
)

var (
	holder = common.BytesToAddress([]byte{0x0A})
	token  = common.BytesToAddress([]byte{0xAA})
)

func newVault(t *testing.T) (*Vault, *escrow.Ledger, *time.Time) {
	t.Helper()
	ledger := escrow.NewLedger()
	ledger.Fund(token, holder, big.NewInt(1_000_000))
	ledger.Fund(domain.NativeToken, holder, big.NewInt(1_000_000))

	v, err := New(Config{
		Escrow: ledger,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	require.NoError(t, err)

	clock := time.Unix(1_700_000_000, 0)
	v.now = func() time.Time { return clock }
	return v, ledger, &clock
}

func TestLockAndUnlock(t *testing.T) {
	v, ledger, clock := newVault(t)
	ctx := context.Background()

	entry, err := v.LockTokens(ctx, holder, token, big.NewInt(500), 30*24*time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, entry.Index)
	assert.Equal(t, 0, ledger.CustodyBalance(token).Cmp(big.NewInt(500)))

	// Too early.
	err = v.UnlockTokens(ctx, holder, 0)
	assert.ErrorIs(t, err, domain.ErrStillLocked)

	*clock = clock.Add(30*24*time.Hour + time.Second)
	require.NoError(t, v.UnlockTokens(ctx, holder, 0))
	assert.Equal(t, 0, ledger.CustodyBalance(token).Sign())
	assert.Equal(t, 0, ledger.BalanceOf(token, holder).Cmp(big.NewInt(1_000_000)))

	// Double unlock.
	err = v.UnlockTokens(ctx, holder, 0)
	assert.ErrorIs(t, err, domain.ErrAlreadyRedeemed)
}

func TestLockDurationCap(t *testing.T) {
	v, _, _ := newVault(t)
	ctx := context.Background()

	_, err := v.LockTokens(ctx, holder, token, big.NewInt(500), domain.MaxLockupDuration+time.Hour, nil)
	assert.ErrorIs(t, err, domain.ErrLockupTooLong)

	// Exactly 50 years is accepted.
	_, err = v.LockTokens(ctx, holder, token, big.NewInt(500), domain.MaxLockupDuration, nil)
	assert.NoError(t, err)
}

func TestLockNative(t *testing.T) {
	v, ledger, _ := newVault(t)
	ctx := context.Background()

	_, err := v.LockTokens(ctx, holder, domain.NativeToken, big.NewInt(500), 48*time.Hour, nil)
	assert.ErrorIs(t, err, domain.ErrValueMismatch)

	_, err = v.LockTokens(ctx, holder, domain.NativeToken, big.NewInt(500), 48*time.Hour, big.NewInt(500))
	require.NoError(t, err)
	assert.Equal(t, 0, ledger.CustodyBalance(domain.NativeToken).Cmp(big.NewInt(500)))
}

func TestLockupIndexing(t *testing.T) {
	v, _, _ := newVault(t)
	ctx := context.Background()

	first, err := v.LockTokens(ctx, holder, token, big.NewInt(100), 48*time.Hour, nil)
	require.NoError(t, err)
	second, err := v.LockTokens(ctx, holder, token, big.NewInt(200), 96*time.Hour, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, first.Index)
	assert.Equal(t, 1, second.Index)

	list := v.Lockups(holder)
	require.Len(t, list, 2)
	assert.Equal(t, 0, list[1].Amount.Cmp(big.NewInt(200)))

	err = v.UnlockTokens(ctx, holder, 5)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
