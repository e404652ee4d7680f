package registry

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

	"github.com/alta-labs/wagerd/internal/access"
	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/escrow"
	"github.com/alta-labs/wagerd/internal/oracle"
)

var (
	owner   = common.BytesToAddress([]byte{0x01})
	feeAddr = common.BytesToAddress([]byte{0x02})
	alice   = common.BytesToAddress([]byte{0x0A})
	bob     = common.BytesToAddress([]byte{0x0B})
	carol   = common.BytesToAddress([]byte{0x0C})

	wagerToken  = common.BytesToAddress([]byte{0xAA})
	wagerOracle = common.BytesToAddress([]byte{0xB1})
	payOracle   = common.BytesToAddress([]byte{0xB2})
)

func eth(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1e18))
}

func usd8(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1e8))
}

type fixture struct {
	reg       *Registry
	ledger    *escrow.Ledger
	wagerFeed *oracle.MemoryFeed
	payFeed   *oracle.MemoryFeed
	clock     time.Time
}

// newFixture wires an in-memory registry: ledger escrow, memory feeds, and a
// fixed clock advanced explicitly by the tests. The wager-token feed starts
// at $2500 and the native payment feed at $2000, both at the clock origin.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	fx := &fixture{
		ledger:    escrow.NewLedger(),
		wagerFeed: oracle.NewMemoryFeed(8),
		payFeed:   oracle.NewMemoryFeed(8),
		clock:     time.Unix(1_700_000_000, 0),
	}
	fx.wagerFeed.Append(1, fx.clock.Unix(), usd8(2500))
	fx.payFeed.Append(1, fx.clock.Unix(), usd8(2000))

	feeds := oracle.NewFeedRegistry()
	feeds.Register(wagerOracle, fx.wagerFeed)
	feeds.Register(payOracle, fx.payFeed)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := New(Config{
		Access:   access.NewController(),
		Escrow:   fx.ledger,
		Feeds:    feeds,
		Resolver: oracle.NewResolver(nil, logger),
		Logger:   logger,
	})
	require.NoError(t, err)
	reg.now = func() time.Time { return fx.clock }
	fx.reg = reg

	ctx := context.Background()
	require.NoError(t, reg.Init(ctx, feeAddr, owner))
	require.NoError(t, reg.UpdateWagerTokens(ctx, owner, []domain.TokenInfo{
		{Token: wagerToken, Oracle: wagerOracle, Decimals: 18, Allowed: true},
	}))
	require.NoError(t, reg.UpdatePaymentTokens(ctx, owner, []domain.TokenInfo{
		{Token: domain.NativeToken, Oracle: payOracle, Decimals: 18, Allowed: true},
	}))

	fx.ledger.Fund(domain.NativeToken, alice, eth(100))
	fx.ledger.Fund(domain.NativeToken, bob, eth(100))
	fx.ledger.Fund(domain.NativeToken, carol, eth(100))
	return fx
}

func (fx *fixture) advance(d time.Duration) {
	fx.clock = fx.clock.Add(d)
}

// createReq is a valid open fixed wager: 1 native unit per side, $2500
// strike, above, minimum duration.
func (fx *fixture) createReq(caller common.Address) CreateRequest {
	return CreateRequest{
		Caller:       caller,
		Kind:         domain.WagerKindFixed,
		UserB:        domain.OpenTaker,
		WagerToken:   wagerToken,
		PaymentToken: domain.NativeToken,
		WagerPrice:   usd8(2500),
		Above:        true,
		AmountUserA:  eth(1),
		AmountUserB:  eth(1),
		Duration:     MinDuration,
		Value:        eth(1),
	}
}

// settleAt records the settlement price at the wager's deadline and moves
// the clock past it.
func (fx *fixture) settleAt(t *testing.T, id uint64, price *big.Int) {
	t.Helper()
	w, err := fx.reg.Wager(id)
	require.NoError(t, err)
	require.True(t, w.IsFilled)
	fx.wagerFeed.Append(1, w.Deadline().Unix(), price)
	if fx.clock.Before(w.Deadline()) {
		fx.clock = w.Deadline().Add(time.Second)
	}
}

func TestCreateWagerFee(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), id)

	w, err := fx.reg.Wager(id)
	require.NoError(t, err)

	// Stored escrow is 99.5% of the collected amount.
	wantStored := new(big.Int).Div(new(big.Int).Mul(eth(1), big.NewInt(995)), big.NewInt(1000))
	assert.Equal(t, 0, w.AmountUserA.Cmp(wantStored))
	assert.False(t, w.IsFilled)
	assert.False(t, w.IsClosed)

	fee := new(big.Int).Sub(eth(1), wantStored)
	assert.Equal(t, 0, fx.ledger.BalanceOf(domain.NativeToken, feeAddr).Cmp(fee))
	assert.Equal(t, 0, fx.ledger.CustodyBalance(domain.NativeToken).Cmp(wantStored))

	// Identifiers are sequential.
	id2, err := fx.reg.CreateWager(ctx, fx.createReq(bob))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), id2)
}

func TestCreateWagerRequiresInit(t *testing.T) {
	fx := newFixture(t)
	reg, err := New(Config{
		Access:   access.NewController(),
		Escrow:   fx.ledger,
		Feeds:    oracle.NewFeedRegistry(),
		Resolver: oracle.NewResolver(nil, slog.New(slog.NewTextHandler(io.Discard, nil))),
	})
	require.NoError(t, err)

	_, err = reg.CreateWager(context.Background(), fx.createReq(alice))
	assert.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestCreateWagerUSDFloor(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// At $2000 per native unit, $10 is exactly 0.005 units.
	exactlyTen := big.NewInt(5e15)
	req := fx.createReq(alice)
	req.AmountUserA = exactlyTen
	req.Value = exactlyTen
	_, err := fx.reg.CreateWager(ctx, req)
	assert.NoError(t, err, "floor is inclusive at exactly $10")

	// $9.99 worth.
	under := big.NewInt(4_995_000_000_000_000)
	req = fx.createReq(alice)
	req.AmountUserA = under
	req.Value = under
	_, err = fx.reg.CreateWager(ctx, req)
	assert.ErrorIs(t, err, domain.ErrWagerTooSmall)
}

func TestCreateWagerDuration(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	req := fx.createReq(alice)
	req.Duration = MinDuration - time.Second
	_, err := fx.reg.CreateWager(ctx, req)
	assert.ErrorIs(t, err, domain.ErrDurationTooShort)

	req.Duration = MinDuration
	_, err = fx.reg.CreateWager(ctx, req)
	assert.NoError(t, err)
}

func TestCreateWagerAllowLists(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	req := fx.createReq(alice)
	req.WagerToken = common.BytesToAddress([]byte{0xFF})
	_, err := fx.reg.CreateWager(ctx, req)
	assert.ErrorIs(t, err, domain.ErrUnknownWagerToken)

	req = fx.createReq(alice)
	req.PaymentToken = common.BytesToAddress([]byte{0xFE})
	req.Value = nil
	_, err = fx.reg.CreateWager(ctx, req)
	assert.ErrorIs(t, err, domain.ErrUnknownPaymentToken)

	// A disabled entry is as good as absent.
	require.NoError(t, fx.reg.UpdateWagerTokens(ctx, owner, []domain.TokenInfo{
		{Token: wagerToken, Oracle: wagerOracle, Decimals: 18, Allowed: false},
	}))
	_, err = fx.reg.CreateWager(ctx, fx.createReq(alice))
	assert.ErrorIs(t, err, domain.ErrUnknownWagerToken)
}

func TestCreateWagerNativeValueMismatch(t *testing.T) {
	fx := newFixture(t)

	req := fx.createReq(alice)
	req.Value = eth(2)
	_, err := fx.reg.CreateWager(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrValueMismatch)
	assert.Equal(t, 0, fx.ledger.CustodyBalance(domain.NativeToken).Sign())
}

func TestFillWagerRestrictions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Peer-to-peer wager reserved for bob.
	req := fx.createReq(alice)
	req.UserB = bob
	id, err := fx.reg.CreateWager(ctx, req)
	require.NoError(t, err)

	assert.ErrorIs(t, fx.reg.FillWager(ctx, alice, id, eth(1)), domain.ErrCannotFillOwnWager)
	assert.ErrorIs(t, fx.reg.FillWager(ctx, carol, id, eth(1)), domain.ErrP2PRestricted)
	require.NoError(t, fx.reg.FillWager(ctx, bob, id, eth(1)))
	assert.ErrorIs(t, fx.reg.FillWager(ctx, bob, id, eth(1)), domain.ErrAlreadyFilled)

	w, err := fx.reg.Wager(id)
	require.NoError(t, err)
	assert.True(t, w.IsFilled)
	assert.Equal(t, fx.clock, w.FilledAt)
}

func TestFillWagerOpenTakesFiller(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)

	require.NoError(t, fx.reg.FillWager(ctx, carol, id, eth(1)))
	w, err := fx.reg.Wager(id)
	require.NoError(t, err)
	assert.Equal(t, carol, w.UserB)

	// No fee on the fill side: full amountUserB joins custody.
	wantCustody := new(big.Int).Add(w.AmountUserA, eth(1))
	assert.Equal(t, 0, fx.ledger.CustodyBalance(domain.NativeToken).Cmp(wantCustody))
}

func TestFillWagerCollectFailureReverts(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)

	// Wrong native value: the staged fill must roll back.
	err = fx.reg.FillWager(ctx, bob, id, eth(2))
	assert.ErrorIs(t, err, domain.ErrValueMismatch)

	w, err := fx.reg.Wager(id)
	require.NoError(t, err)
	assert.False(t, w.IsFilled)
	assert.Equal(t, domain.OpenTaker, w.UserB)

	require.NoError(t, fx.reg.FillWager(ctx, bob, id, eth(1)))
}

func TestCancelWager(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)

	assert.ErrorIs(t, fx.reg.CancelWager(ctx, carol, id), domain.ErrUnauthorized)

	before := fx.ledger.BalanceOf(domain.NativeToken, alice)
	require.NoError(t, fx.reg.CancelWager(ctx, alice, id))

	w, err := fx.reg.Wager(id)
	require.NoError(t, err)
	assert.True(t, w.IsClosed)

	// The creator gets the stored, fee-adjusted amount back.
	diff := new(big.Int).Sub(fx.ledger.BalanceOf(domain.NativeToken, alice), before)
	assert.Equal(t, 0, diff.Cmp(w.AmountUserA))

	assert.ErrorIs(t, fx.reg.CancelWager(ctx, alice, id), domain.ErrWagerClosed)
}

func TestCancelWagerAfterFillFails(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	require.NoError(t, fx.reg.FillWager(ctx, bob, id, eth(1)))

	assert.ErrorIs(t, fx.reg.CancelWager(ctx, alice, id), domain.ErrAlreadyFilled)
	assert.ErrorIs(t, fx.reg.CancelWager(ctx, bob, id), domain.ErrAlreadyFilled)
}

func TestRedeemWinnerTakesPool(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	require.NoError(t, fx.reg.FillWager(ctx, bob, id, eth(1)))

	// Above the $2500 strike with above=true: alice wins.
	fx.settleAt(t, id, usd8(3000))

	aliceBefore := fx.ledger.BalanceOf(domain.NativeToken, alice)
	bobBefore := fx.ledger.BalanceOf(domain.NativeToken, bob)
	require.NoError(t, fx.reg.Redeem(ctx, carol, id))

	w, err := fx.reg.Wager(id)
	require.NoError(t, err)
	assert.True(t, w.IsClosed)

	// The full pool, both escrows minus the creation fee already deducted,
	// lands on the winner.
	pool := new(big.Int).Add(w.AmountUserA, w.AmountUserB)
	aliceDiff := new(big.Int).Sub(fx.ledger.BalanceOf(domain.NativeToken, alice), aliceBefore)
	assert.Equal(t, 0, aliceDiff.Cmp(pool))
	assert.Equal(t, 0, fx.ledger.BalanceOf(domain.NativeToken, bob).Cmp(bobBefore))
	assert.Equal(t, 0, fx.ledger.CustodyBalance(domain.NativeToken).Sign())
}

func TestRedeemBeforeDeadline(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	require.NoError(t, fx.reg.FillWager(ctx, bob, id, eth(1)))

	fx.advance(MinDuration - time.Minute)
	assert.ErrorIs(t, fx.reg.Redeem(ctx, alice, id), domain.ErrNotRedeemable)

	w, err := fx.reg.Wager(id)
	require.NoError(t, err)
	assert.False(t, w.IsClosed)
}

func TestRedeemTwice(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	require.NoError(t, fx.reg.FillWager(ctx, bob, id, eth(1)))
	fx.settleAt(t, id, usd8(3000))

	require.NoError(t, fx.reg.Redeem(ctx, alice, id))
	custody := fx.ledger.CustodyBalance(domain.NativeToken)

	assert.ErrorIs(t, fx.reg.Redeem(ctx, alice, id), domain.ErrAlreadyRedeemed)
	assert.Equal(t, 0, fx.ledger.CustodyBalance(domain.NativeToken).Cmp(custody))
}

func TestRedeemUnfilled(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	fx.advance(2 * MinDuration)
	assert.ErrorIs(t, fx.reg.Redeem(ctx, alice, id), domain.ErrNotFilled)
}

func TestRedeemNoWinnerSplitsContributions(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	require.NoError(t, fx.reg.FillWager(ctx, bob, id, eth(1)))

	// Settlement exactly at the strike.
	fx.settleAt(t, id, usd8(2500))

	aliceBefore := fx.ledger.BalanceOf(domain.NativeToken, alice)
	bobBefore := fx.ledger.BalanceOf(domain.NativeToken, bob)
	require.NoError(t, fx.reg.Redeem(ctx, carol, id))

	w, err := fx.reg.Wager(id)
	require.NoError(t, err)
	aliceDiff := new(big.Int).Sub(fx.ledger.BalanceOf(domain.NativeToken, alice), aliceBefore)
	bobDiff := new(big.Int).Sub(fx.ledger.BalanceOf(domain.NativeToken, bob), bobBefore)
	assert.Equal(t, 0, aliceDiff.Cmp(w.AmountUserA))
	assert.Equal(t, 0, bobDiff.Cmp(w.AmountUserB))
}

func TestKillSwitchRefundsRegardlessOfTiming(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	// Wager 0 stays inside its window; wager 1 passes its deadline with a
	// clear winner on the feed.
	id0, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	require.NoError(t, fx.reg.FillWager(ctx, bob, id0, eth(1)))

	id1, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	require.NoError(t, fx.reg.FillWager(ctx, bob, id1, eth(1)))
	fx.settleAt(t, id1, usd8(3000))

	require.NoError(t, fx.reg.MarkTokenRefundable(ctx, owner, wagerToken))

	for _, id := range []uint64{id0, id1} {
		aliceBefore := fx.ledger.BalanceOf(domain.NativeToken, alice)
		bobBefore := fx.ledger.BalanceOf(domain.NativeToken, bob)
		require.NoError(t, fx.reg.Redeem(ctx, carol, id))

		w, err := fx.reg.Wager(id)
		require.NoError(t, err)
		aliceDiff := new(big.Int).Sub(fx.ledger.BalanceOf(domain.NativeToken, alice), aliceBefore)
		bobDiff := new(big.Int).Sub(fx.ledger.BalanceOf(domain.NativeToken, bob), bobBefore)
		assert.Equal(t, 0, aliceDiff.Cmp(w.AmountUserA), "wager %d refunds user A's contribution", id)
		assert.Equal(t, 0, bobDiff.Cmp(w.AmountUserB), "wager %d refunds user B's contribution", id)
	}
}

func TestMarkTokenRefundable(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	assert.ErrorIs(t, fx.reg.MarkTokenRefundable(ctx, alice, wagerToken), domain.ErrNotOwner)
	assert.True(t, fx.reg.TokenRefundableAt(wagerToken).IsZero())

	require.NoError(t, fx.reg.MarkTokenRefundable(ctx, owner, wagerToken))
	first := fx.reg.TokenRefundableAt(wagerToken)
	require.False(t, first.IsZero())

	// Idempotent: the original activation time survives repeated calls.
	fx.advance(time.Hour)
	require.NoError(t, fx.reg.MarkTokenRefundable(ctx, owner, wagerToken))
	assert.Equal(t, first, fx.reg.TokenRefundableAt(wagerToken))
}

func TestCheckWinnerFixed(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		above bool
		price *big.Int
		want  common.Address
	}{
		{"above true, settles above", true, usd8(2600), alice},
		{"above true, settles below", true, usd8(2400), bob},
		{"above true, settles exactly", true, usd8(2500), domain.NoWinner},
		{"above false, settles below", false, usd8(2400), alice},
		{"above false, settles above", false, usd8(2600), bob},
		{"above false, settles exactly", false, usd8(2500), domain.NoWinner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := fx.createReq(alice)
			req.UserB = bob
			req.Above = tc.above
			id, err := fx.reg.CreateWager(ctx, req)
			require.NoError(t, err)
			require.NoError(t, fx.reg.FillWager(ctx, bob, id, eth(1)))
			fx.settleAt(t, id, tc.price)

			winner, price, err := fx.reg.CheckWinner(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tc.want, winner)
			assert.Equal(t, 0, price.Cmp(tc.price))
		})
	}
}

func TestCheckWinnerConditional(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		price *big.Int
		want  common.Address
	}{
		{"closer to user A's strike", usd8(2200), alice},
		{"closer to user B's strike", usd8(2800), bob},
		{"equidistant", usd8(2500), domain.NoWinner},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := fx.createReq(alice)
			req.UserB = bob
			req.Kind = domain.WagerKindConditional
			req.WagerPrice = nil
			req.WagerPriceA = usd8(2000)
			req.WagerPriceB = usd8(3000)
			id, err := fx.reg.CreateWager(ctx, req)
			require.NoError(t, err)
			require.NoError(t, fx.reg.FillWager(ctx, bob, id, eth(1)))
			fx.settleAt(t, id, tc.price)

			winner, _, err := fx.reg.CheckWinner(ctx, id)
			require.NoError(t, err)
			assert.Equal(t, tc.want, winner)
		})
	}
}

func TestCheckWinnerUnfilled(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	_, _, err = fx.reg.CheckWinner(ctx, id)
	assert.ErrorIs(t, err, domain.ErrNotFilled)
}

func TestUpdateTokensOwnerOnly(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	infos := []domain.TokenInfo{{Token: wagerToken, Oracle: wagerOracle, Decimals: 18, Allowed: true}}
	assert.ErrorIs(t, fx.reg.UpdateWagerTokens(ctx, alice, infos), domain.ErrNotOwner)
	assert.ErrorIs(t, fx.reg.UpdatePaymentTokens(ctx, alice, infos), domain.ErrNotOwner)
}

func TestTransferOwnership(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	require.NoError(t, fx.reg.TransferOwnership(ctx, owner, carol))
	infos := []domain.TokenInfo{{Token: wagerToken, Oracle: wagerOracle, Decimals: 18, Allowed: true}}
	assert.ErrorIs(t, fx.reg.UpdateWagerTokens(ctx, owner, infos), domain.ErrNotOwner)
	assert.NoError(t, fx.reg.UpdateWagerTokens(ctx, carol, infos))
}

func TestAllWagersIncludesClosed(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	id0, err := fx.reg.CreateWager(ctx, fx.createReq(alice))
	require.NoError(t, err)
	_, err = fx.reg.CreateWager(ctx, fx.createReq(bob))
	require.NoError(t, err)
	require.NoError(t, fx.reg.CancelWager(ctx, alice, id0))

	all := fx.reg.AllWagers()
	require.Len(t, all, 2)
	assert.True(t, all[0].IsClosed)
	assert.False(t, all[1].IsClosed)

	_, err = fx.reg.Wager(99)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
