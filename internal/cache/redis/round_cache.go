package redis

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alta-labs/wagerd/internal/domain"
)

// RoundCache implements domain.RoundCache. A resolved (oracle, timestamp)
// pair is immutable once the timestamp is in the feed's past, so entries
// carry no TTL and are never invalidated.
type RoundCache struct {
	rdb *redis.Client
}

// NewRoundCache creates a RoundCache backed by the given Client.
func NewRoundCache(c *Client) *RoundCache {
	return &RoundCache{rdb: c.Underlying()}
}

func roundKey(oracle common.Address, target int64) string {
	return fmt.Sprintf("wagerd:round:%s:%d", oracle.Hex(), target)
}

// GetRound returns the cached round id for the oracle and target timestamp,
// or domain.ErrNotFound.
func (rc *RoundCache) GetRound(ctx context.Context, oracle common.Address, target int64) (*big.Int, error) {
	val, err := rc.rdb.Get(ctx, roundKey(oracle, target)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis: get round %s@%d: %w", oracle.Hex(), target, err)
	}
	id, ok := new(big.Int).SetString(val, 10)
	if !ok {
		return nil, fmt.Errorf("redis: bad round id %q for %s@%d", val, oracle.Hex(), target)
	}
	return id, nil
}

// SetRound stores a resolved round id.
func (rc *RoundCache) SetRound(ctx context.Context, oracle common.Address, target int64, roundID *big.Int) error {
	if err := rc.rdb.Set(ctx, roundKey(oracle, target), roundID.String(), 0).Err(); err != nil {
		return fmt.Errorf("redis: set round %s@%d: %w", oracle.Hex(), target, err)
	}
	return nil
}

var _ domain.RoundCache = (*RoundCache)(nil)
