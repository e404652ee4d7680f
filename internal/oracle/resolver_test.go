package oracle

import (
	"context"
	"io"
	"log/slog"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alta-labs/wagerd/internal/domain"
)

var testOracle = common.HexToAddress("0x5f4eC3Df9cbd43714FE2740f5E3616155c5b8419")

func newResolver() *Resolver {
	return NewResolver(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func usd(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), big.NewInt(1e8))
}

func TestRoundIDEncoding(t *testing.T) {
	id := RoundID(5, 1)
	want, ok := new(big.Int).SetString("92233720368547758081", 10)
	require.True(t, ok)
	assert.Equal(t, 0, id.Cmp(want))
	assert.Equal(t, uint64(5), PhaseOf(id))
	assert.Equal(t, uint64(1), RoundOf(id))

	id = RoundID(4, 14846)
	assert.Equal(t, uint64(4), PhaseOf(id))
	assert.Equal(t, uint64(14846), RoundOf(id))
}

// buildFeed records two phases: phase 1 with one round per hour starting at
// t=1000, then phase 2 starting at t=100000.
func buildFeed() *MemoryFeed {
	feed := NewMemoryFeed(8)
	for i := int64(0); i < 20; i++ {
		feed.Append(1, 1000+i*3600, usd(100+i))
	}
	for i := int64(0); i < 10; i++ {
		feed.Append(2, 100000+i*3600, usd(200+i))
	}
	return feed
}

func TestRoundForTimestampExact(t *testing.T) {
	ctx := context.Background()
	feed := buildFeed()
	r := newResolver()

	// Exact observation time resolves to that round.
	id, err := r.RoundForTimestamp(ctx, testOracle, feed, 1000+5*3600)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(1, 6)))
}

func TestRoundForTimestampBetweenRounds(t *testing.T) {
	ctx := context.Background()
	feed := buildFeed()
	r := newResolver()

	// A timestamp between two rounds resolves to the earlier one.
	id, err := r.RoundForTimestamp(ctx, testOracle, feed, 1000+5*3600+1800)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(1, 6)))
}

func TestRoundForTimestampBeforeGenesis(t *testing.T) {
	ctx := context.Background()
	feed := buildFeed()
	r := newResolver()

	_, err := r.RoundForTimestamp(ctx, testOracle, feed, 999)
	assert.ErrorIs(t, err, domain.ErrNoRoundForTimestamp)
}

func TestRoundForTimestampAfterLatest(t *testing.T) {
	ctx := context.Background()
	feed := buildFeed()
	r := newResolver()

	id, err := r.RoundForTimestamp(ctx, testOracle, feed, 10_000_000)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(2, 10)))
}

func TestRoundForTimestampCrossPhase(t *testing.T) {
	ctx := context.Background()
	feed := buildFeed()
	r := newResolver()

	// Target after the last round of phase 1 but before phase 2 begins
	// resolves within phase 1.
	lastPhase1 := int64(1000 + 19*3600)
	id, err := r.RoundForTimestamp(ctx, testOracle, feed, lastPhase1+10)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(1, 20)))

	// Target inside phase 2's history resolves within phase 2.
	id, err = r.RoundForTimestamp(ctx, testOracle, feed, 100000+3*3600+5)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(2, 4)))
}

func TestRoundForTimestampSkippedRounds(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed(8)
	feed.Append(1, 1000, usd(100)) // round 1
	feed.Skip(1, 3)                // rounds 2-4 never reported
	feed.Append(1, 5000, usd(101)) // round 5
	feed.Skip(1, 2)                // rounds 6-7 never reported
	feed.Append(1, 9000, usd(102)) // round 8
	r := newResolver()

	// Inside the first gap: the earlier recorded round wins.
	id, err := r.RoundForTimestamp(ctx, testOracle, feed, 4000)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(1, 1)))

	// Inside the second gap.
	id, err = r.RoundForTimestamp(ctx, testOracle, feed, 8000)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(1, 5)))

	// Skipped identifiers are never returned as a match.
	id, err = r.RoundForTimestamp(ctx, testOracle, feed, 5000)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(1, 5)))
}

func TestRoundForTimestampLeadingGap(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed(8)
	feed.Append(1, 100, usd(100)) // round 1
	feed.Skip(1, 8)               // rounds 2-9 never reported
	feed.Append(1, 110, usd(101)) // round 10
	feed.Append(1, 120, usd(102)) // round 11
	feed.Append(1, 130, usd(103)) // round 12
	r := newResolver()

	// The answer sits above a long run of skipped identifiers right after
	// the phase's first round; the search must keep moving upward past the
	// empty range instead of settling for round 1.
	id, err := r.RoundForTimestamp(ctx, testOracle, feed, 115)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(1, 10)))

	// Before the gap's upper edge, round 1 is still the right answer.
	id, err = r.RoundForTimestamp(ctx, testOracle, feed, 105)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(1, 1)))

	price, err := r.SettlementPrice(ctx, testOracle, feed, 125)
	require.NoError(t, err)
	assert.Equal(t, 0, price.Cmp(usd(102)))
}

func TestPhaseForTimestamp(t *testing.T) {
	ctx := context.Background()
	feed := buildFeed()
	r := newResolver()

	info, err := r.PhaseForTimestamp(ctx, feed, 50_000)
	require.NoError(t, err)
	assert.Equal(t, 0, info.FirstRound.Cmp(RoundID(1, 1)))
	assert.Equal(t, int64(1000), info.FirstTimestamp)
	assert.Equal(t, 0, info.CurrentPhaseFirstRound.Cmp(RoundID(2, 1)))

	info, err = r.PhaseForTimestamp(ctx, feed, 200_000)
	require.NoError(t, err)
	assert.Equal(t, 0, info.FirstRound.Cmp(RoundID(2, 1)))
	assert.Equal(t, int64(100000), info.FirstTimestamp)
}

func TestPhaseForTimestampSkippedPhase(t *testing.T) {
	ctx := context.Background()
	feed := NewMemoryFeed(8)
	feed.Append(1, 1000, usd(100))
	// Phase 2 never reported anything; phase 3 took over.
	feed.Append(3, 5000, usd(101))
	feed.Append(3, 6000, usd(102))
	r := newResolver()

	info, err := r.PhaseForTimestamp(ctx, feed, 5500)
	require.NoError(t, err)
	assert.Equal(t, 0, info.FirstRound.Cmp(RoundID(3, 1)))

	id, err := r.RoundForTimestamp(ctx, testOracle, feed, 5500)
	require.NoError(t, err)
	assert.Equal(t, 0, id.Cmp(RoundID(3, 1)))
}

func TestSettlementPrice(t *testing.T) {
	ctx := context.Background()
	feed := buildFeed()
	r := newResolver()

	price, err := r.SettlementPrice(ctx, testOracle, feed, 1000+5*3600)
	require.NoError(t, err)
	assert.Equal(t, 0, price.Cmp(usd(105)))
}

func TestRoundCacheHit(t *testing.T) {
	ctx := context.Background()
	feed := buildFeed()
	cache := &fakeRoundCache{rounds: map[int64]*big.Int{}}
	r := NewResolver(cache, slog.New(slog.NewTextHandler(io.Discard, nil)))

	id, err := r.RoundForTimestamp(ctx, testOracle, feed, 1000+3600)
	require.NoError(t, err)
	require.Equal(t, 0, id.Cmp(RoundID(1, 2)))
	require.Len(t, cache.rounds, 1)

	// Second resolution answers from cache.
	cached, err := r.RoundForTimestamp(ctx, testOracle, feed, 1000+3600)
	require.NoError(t, err)
	assert.Equal(t, 0, cached.Cmp(id))
	assert.Equal(t, 1, cache.gets-cache.misses)
}

type fakeRoundCache struct {
	rounds map[int64]*big.Int
	gets   int
	misses int
}

func (c *fakeRoundCache) GetRound(ctx context.Context, oracle common.Address, target int64) (*big.Int, error) {
	c.gets++
	id, ok := c.rounds[target]
	if !ok {
		c.misses++
		return nil, domain.ErrNotFound
	}
	return id, nil
}

func (c *fakeRoundCache) SetRound(ctx context.Context, oracle common.Address, target int64, roundID *big.Int) error {
	c.rounds[target] = roundID
	return nil
}
