package domain

import (
	"context"
	"io"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// RoundCache memoizes resolved (feed, timestamp) → round id lookups. A
// resolution is immutable once the target timestamp is in the feed's past,
// so entries never need invalidation.
type RoundCache interface {
	GetRound(ctx context.Context, oracle common.Address, target int64) (*big.Int, error)
	SetRound(ctx context.Context, oracle common.Address, target int64, roundID *big.Int) error
}

// PriceCache stores the latest observed price per oracle feed.
type PriceCache interface {
	SetPrice(ctx context.Context, oracle common.Address, price *big.Int, ts time.Time) error
	GetPrice(ctx context.Context, oracle common.Address) (*big.Int, time.Time, error)
}

// LockManager provides distributed locks serialising per-wager transitions
// across wagerd replicas sharing a database.
type LockManager interface {
	// Acquire returns an unlock function, or ErrLockHeld if the lock is
	// already taken. The unlock function is safe to call multiple times.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// BlobWriter stores archive objects in object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// RateLimiter applies sliding-window request limits keyed by caller.
type RateLimiter interface {
	// Allow reports whether a request for key is permitted under limit
	// requests per window, counting it when it is.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
