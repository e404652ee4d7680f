package redis

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"

	"github.com/alta-labs/wagerd/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each oracle's
// latest price is a hash at "wagerd:price:{oracle}" with fields "price"
// (decimal string, feed fixed point) and "ts" (Unix seconds).
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

func priceKey(oracle common.Address) string {
	return "wagerd:price:" + oracle.Hex()
}

// SetPrice stores the latest observed price for an oracle.
func (pc *PriceCache) SetPrice(ctx context.Context, oracle common.Address, price *big.Int, ts time.Time) error {
	fields := map[string]interface{}{
		"price": price.String(),
		"ts":    strconv.FormatInt(ts.Unix(), 10),
	}
	if err := pc.rdb.HSet(ctx, priceKey(oracle), fields).Err(); err != nil {
		return fmt.Errorf("redis: set price %s: %w", oracle.Hex(), err)
	}
	return nil
}

// GetPrice retrieves the latest price and observation time for an oracle.
// Returns domain.ErrNotFound when nothing is cached.
func (pc *PriceCache) GetPrice(ctx context.Context, oracle common.Address) (*big.Int, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(oracle)).Result()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: get price %s: %w", oracle.Hex(), err)
	}
	if len(vals) == 0 {
		return nil, time.Time{}, domain.ErrNotFound
	}

	priceStr, ok := vals["price"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	price, ok := new(big.Int).SetString(priceStr, 10)
	if !ok {
		return nil, time.Time{}, fmt.Errorf("redis: bad price %q for %s", priceStr, oracle.Hex())
	}

	tsStr, ok := vals["ts"]
	if !ok {
		return nil, time.Time{}, domain.ErrNotFound
	}
	ts, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("redis: parse ts %q for %s: %w", tsStr, oracle.Hex(), err)
	}

	return price, time.Unix(ts, 0), nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
