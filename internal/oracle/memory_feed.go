package oracle

import (
	"context"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alta-labs/wagerd/internal/domain"
)

// MemoryFeed is a deterministic in-process PriceFeed for local mode and
// tests. Like a live aggregator proxy, it answers queries for unreported
// round identifiers with zeroed round data rather than an error.
type MemoryFeed struct {
	mu       sync.RWMutex
	decimals uint8
	rounds   map[uint64]map[uint64]domain.RoundData // phase -> round -> data
	nextSeq  map[uint64]uint64
	latest   domain.RoundData
}

// NewMemoryFeed creates an empty feed with the given price decimal count.
func NewMemoryFeed(decimals uint8) *MemoryFeed {
	return &MemoryFeed{
		decimals: decimals,
		rounds:   make(map[uint64]map[uint64]domain.RoundData),
		nextSeq:  make(map[uint64]uint64),
	}
}

// Append records the next round of the given phase and returns its round id.
func (f *MemoryFeed) Append(phase uint64, updatedAt int64, price *big.Int) *big.Int {
	f.mu.Lock()
	defer f.mu.Unlock()

	seq := f.nextSeq[phase]
	if seq == 0 {
		seq = 1
	}
	f.nextSeq[phase] = seq + 1

	id := RoundID(phase, seq)
	rd := domain.RoundData{
		RoundID:         id,
		Price:           new(big.Int).Set(price),
		StartedAt:       updatedAt,
		UpdatedAt:       updatedAt,
		AnsweredInRound: id,
	}
	m := f.rounds[phase]
	if m == nil {
		m = make(map[uint64]domain.RoundData)
		f.rounds[phase] = m
	}
	m[seq] = rd
	f.latest = rd
	return id
}

// Skip advances a phase's sequence counter without recording data, producing
// round identifiers that were never reported.
func (f *MemoryFeed) Skip(phase uint64, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()

	seq := f.nextSeq[phase]
	if seq == 0 {
		seq = 1
	}
	f.nextSeq[phase] = seq + uint64(n)
}

// Decimals implements domain.PriceFeed.
func (f *MemoryFeed) Decimals(ctx context.Context) (uint8, error) {
	return f.decimals, nil
}

// LatestRoundData implements domain.PriceFeed.
func (f *MemoryFeed) LatestRoundData(ctx context.Context) (domain.RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.latest, nil
}

// GetRoundData implements domain.PriceFeed.
func (f *MemoryFeed) GetRoundData(ctx context.Context, roundID *big.Int) (domain.RoundData, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	if m := f.rounds[PhaseOf(roundID)]; m != nil {
		if rd, ok := m[RoundOf(roundID)]; ok {
			return rd, nil
		}
	}
	return domain.RoundData{RoundID: new(big.Int).Set(roundID)}, nil
}

// FeedRegistry is an in-process FeedOpener mapping oracle addresses to
// registered feeds.
type FeedRegistry struct {
	mu    sync.RWMutex
	feeds map[common.Address]domain.PriceFeed
}

// NewFeedRegistry returns an empty FeedRegistry.
func NewFeedRegistry() *FeedRegistry {
	return &FeedRegistry{feeds: make(map[common.Address]domain.PriceFeed)}
}

// Register associates an oracle address with a feed.
func (r *FeedRegistry) Register(oracle common.Address, feed domain.PriceFeed) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.feeds[oracle] = feed
}

// Open implements domain.FeedOpener.
func (r *FeedRegistry) Open(oracle common.Address) (domain.PriceFeed, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	feed, ok := r.feeds[oracle]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return feed, nil
}

// Compile-time interface checks.
var (
	_ domain.PriceFeed  = (*MemoryFeed)(nil)
	_ domain.FeedOpener = (*FeedRegistry)(nil)
)
