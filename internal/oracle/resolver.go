// Package oracle resolves "the price at time T" against append-only price
// feeds whose round identifiers encode a phase number in the high 64 bits
// and a per-phase sequential round number in the low 64 bits.
package oracle

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alta-labs/wagerd/internal/domain"
)

// phaseOffset is the bit position of the phase number within a round id.
const phaseOffset = 64

// probeWindow bounds the linear scan used to step over skipped round ids
// around a binary-search probe.
const probeWindow = 64

// maxPhaseRounds caps the per-phase search ceiling; no feed phase observed
// in the wild comes near 2^32 rounds.
const maxPhaseRounds = uint64(1) << 32

// PhaseInfo describes the feed phase containing a target timestamp, for
// diagnostic and administrative use.
type PhaseInfo struct {
	// FirstRound is the first recorded round id of the containing phase.
	FirstRound *big.Int
	// FirstTimestamp is that round's observation time.
	FirstTimestamp int64
	// CurrentPhaseFirstRound is the first round id of the feed's current
	// phase.
	CurrentPhaseFirstRound *big.Int
}

// RoundID assembles a round identifier from a phase and a per-phase round
// number.
func RoundID(phase, round uint64) *big.Int {
	id := new(big.Int).SetUint64(phase)
	id.Lsh(id, phaseOffset)
	return id.Or(id, new(big.Int).SetUint64(round))
}

// PhaseOf extracts the phase number from a round identifier.
func PhaseOf(roundID *big.Int) uint64 {
	return new(big.Int).Rsh(roundID, phaseOffset).Uint64()
}

// RoundOf extracts the per-phase round number from a round identifier.
func RoundOf(roundID *big.Int) uint64 {
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), phaseOffset), big.NewInt(1))
	return new(big.Int).And(roundID, mask).Uint64()
}

// Resolver maps timestamps to round identifiers. A Redis-backed RoundCache
// is optional; resolved rounds are immutable so cached entries never expire.
type Resolver struct {
	cache  domain.RoundCache
	logger *slog.Logger
}

// NewResolver creates a Resolver. cache may be nil.
func NewResolver(cache domain.RoundCache, logger *slog.Logger) *Resolver {
	return &Resolver{
		cache:  cache,
		logger: logger.With(slog.String("component", "oracle")),
	}
}

// PhaseForTimestamp finds the feed phase whose recorded history contains the
// target timestamp: the phase with the greatest first-round observation time
// not exceeding target. It walks phases from 1 up to the feed's current
// phase, stepping over phases that never reported. A target preceding the
// feed's first ever recorded round yields domain.ErrNoRoundForTimestamp.
func (r *Resolver) PhaseForTimestamp(ctx context.Context, feed domain.PriceFeed, target int64) (PhaseInfo, error) {
	latest, err := feed.LatestRoundData(ctx)
	if err != nil {
		return PhaseInfo{}, fmt.Errorf("oracle: latest round: %w", err)
	}
	if !latest.HasData() {
		return PhaseInfo{}, fmt.Errorf("oracle: feed has no rounds: %w", domain.ErrNoRoundForTimestamp)
	}

	currentPhase := PhaseOf(latest.RoundID)

	var containing domain.RoundData
	found := false
	for phase := uint64(1); phase <= currentPhase; phase++ {
		first, ok, err := r.firstRoundOfPhase(ctx, feed, phase)
		if err != nil {
			return PhaseInfo{}, err
		}
		if !ok {
			continue
		}
		if first.UpdatedAt > target {
			// Phases start in chronological order; once a phase begins
			// after the target, no later phase can contain it.
			break
		}
		containing = first
		found = true
	}

	if !found {
		return PhaseInfo{}, fmt.Errorf("oracle: target %d precedes feed genesis: %w", target, domain.ErrNoRoundForTimestamp)
	}

	return PhaseInfo{
		FirstRound:             containing.RoundID,
		FirstTimestamp:         containing.UpdatedAt,
		CurrentPhaseFirstRound: RoundID(currentPhase, 1),
	}, nil
}

// RoundForTimestamp returns the identifier of the round with the greatest
// observation time not exceeding target. A target after the latest round
// resolves to the latest round; a target in a gap between two recorded
// rounds resolves to the earlier one.
func (r *Resolver) RoundForTimestamp(ctx context.Context, oracle common.Address, feed domain.PriceFeed, target int64) (*big.Int, error) {
	if r.cache != nil {
		if id, err := r.cache.GetRound(ctx, oracle, target); err == nil && id != nil {
			return id, nil
		}
	}

	latest, err := feed.LatestRoundData(ctx)
	if err != nil {
		return nil, fmt.Errorf("oracle: latest round: %w", err)
	}
	if !latest.HasData() {
		return nil, fmt.Errorf("oracle: feed has no rounds: %w", domain.ErrNoRoundForTimestamp)
	}

	var resolved *big.Int
	if target >= latest.UpdatedAt {
		resolved = latest.RoundID
	} else {
		resolved, err = r.searchPhase(ctx, feed, latest, target)
		if err != nil {
			return nil, err
		}
	}

	if r.cache != nil {
		// Cache only settled lookups; a target at or past the latest round
		// may still resolve differently once more rounds land.
		if target < latest.UpdatedAt {
			if err := r.cache.SetRound(ctx, oracle, target, resolved); err != nil {
				r.logger.Warn("round cache write failed",
					slog.String("oracle", oracle.Hex()),
					slog.Int64("target", target),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	return resolved, nil
}

// searchPhase narrows to the containing phase, then binary-searches within
// it for the greatest round with observation time <= target.
func (r *Resolver) searchPhase(ctx context.Context, feed domain.PriceFeed, latest domain.RoundData, target int64) (*big.Int, error) {
	info, err := r.PhaseForTimestamp(ctx, feed, target)
	if err != nil {
		return nil, err
	}

	phase := PhaseOf(info.FirstRound)
	lo := RoundOf(info.FirstRound)

	var hi uint64
	if phase == PhaseOf(latest.RoundID) {
		hi = RoundOf(latest.RoundID)
	} else {
		hi, err = r.phaseCeiling(ctx, feed, phase, lo)
		if err != nil {
			return nil, err
		}
	}

	// best tracks the greatest recorded round with timestamp <= target seen
	// so far. lo starts at a round with data (guaranteed by
	// PhaseForTimestamp) but becomes a plain cursor once the search steps
	// over a skipped range, so best is carried separately.
	best := info.FirstRound
	for lo < hi {
		mid := lo + (hi-lo+1)/2

		rd, probed, ok, err := r.probeDown(ctx, feed, phase, mid, lo)
		if err != nil {
			return nil, err
		}
		if !ok {
			// The probe window below mid holds no recorded round, so any
			// remaining candidate sits above mid. A run of more than
			// probeWindow consecutive skipped ids is treated as one fully
			// skipped range.
			lo = mid
			continue
		}

		if rd.UpdatedAt <= target {
			lo = probed
			best = rd.RoundID
		} else {
			hi = probed - 1
		}
	}

	return best, nil
}

// probeDown fetches the round at phase/round, scanning downward (but not at
// or below floor) over skipped identifiers until it finds one with data. It
// gives up after probeWindow steps.
func (r *Resolver) probeDown(ctx context.Context, feed domain.PriceFeed, phase, round, floor uint64) (domain.RoundData, uint64, bool, error) {
	for i := uint64(0); i <= probeWindow; i++ {
		if round-i <= floor {
			break
		}
		id := RoundID(phase, round-i)
		rd, err := feed.GetRoundData(ctx, id)
		if err != nil {
			return domain.RoundData{}, 0, false, fmt.Errorf("oracle: round %s: %w", id, err)
		}
		if rd.HasData() {
			return rd, round - i, true, nil
		}
	}
	return domain.RoundData{}, 0, false, nil
}

// phaseCeiling finds an upper search bound within an ended phase by
// galloping upward from the first round, tolerating skipped identifiers.
func (r *Resolver) phaseCeiling(ctx context.Context, feed domain.PriceFeed, phase, lo uint64) (uint64, error) {
	hi := lo
	step := uint64(1)
	for {
		next := hi + step
		if next-hi > maxPhaseRounds || next > maxPhaseRounds {
			break
		}
		_, probed, ok, err := r.probeDown(ctx, feed, phase, next, hi)
		if err != nil {
			return 0, err
		}
		if !ok {
			break
		}
		hi = probed
		step *= 2
	}
	// Pad past the last confirmed round so trailing ids inside a gap are
	// still considered by the binary search. The pad bounds the cost of the
	// gallop: a phase whose final recorded round sits more than probeWindow
	// ids beyond the last confirmed one stays out of reach, and resolution
	// degrades to the latest round the search can see.
	return hi + probeWindow, nil
}

// SettlementPrice resolves the round for target and returns its price. It
// fails with domain.ErrRoundNotFound if the resolved round has no data.
func (r *Resolver) SettlementPrice(ctx context.Context, oracle common.Address, feed domain.PriceFeed, target int64) (*big.Int, error) {
	roundID, err := r.RoundForTimestamp(ctx, oracle, feed, target)
	if err != nil {
		return nil, err
	}
	rd, err := feed.GetRoundData(ctx, roundID)
	if err != nil {
		return nil, fmt.Errorf("oracle: round %s: %w", roundID, err)
	}
	if !rd.HasData() || rd.Price == nil {
		return nil, fmt.Errorf("oracle: round %s: %w", roundID, domain.ErrRoundNotFound)
	}
	return rd.Price, nil
}

// firstRoundOfPhase returns the phase's first recorded round, probing a few
// identifiers forward from 1 in case the earliest ids were never reported.
func (r *Resolver) firstRoundOfPhase(ctx context.Context, feed domain.PriceFeed, phase uint64) (domain.RoundData, bool, error) {
	for round := uint64(1); round <= probeWindow; round++ {
		id := RoundID(phase, round)
		rd, err := feed.GetRoundData(ctx, id)
		if err != nil {
			return domain.RoundData{}, false, fmt.Errorf("oracle: round %s: %w", id, err)
		}
		if rd.HasData() {
			return rd, true, nil
		}
	}
	return domain.RoundData{}, false, nil
}
