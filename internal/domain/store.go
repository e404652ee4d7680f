package domain

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// WagerStore persists the registry's wager records. The in-memory registry is
// authoritative within a process; writes here mirror committed transitions.
type WagerStore interface {
	Insert(ctx context.Context, w Wager) error
	Update(ctx context.Context, w Wager) error
	GetByID(ctx context.Context, id uint64) (Wager, error)
	List(ctx context.Context, opts ListOpts) ([]Wager, error)
	ListOpen(ctx context.Context, opts ListOpts) ([]Wager, error)
	ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]Wager, error)
	DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// TokenStore persists the allow-lists and kill-switch flags.
type TokenStore interface {
	UpsertToken(ctx context.Context, class TokenClass, info TokenInfo) error
	ListTokens(ctx context.Context, class TokenClass) ([]TokenInfo, error)
	SetRefundable(ctx context.Context, token common.Address, flaggedAt time.Time) error
	ListRefundable(ctx context.Context) ([]RefundableFlag, error)
}

// LockupStore persists time-locked escrow entries.
type LockupStore interface {
	Insert(ctx context.Context, l Lockup) (int64, error)
	MarkUnlocked(ctx context.Context, id int64) error
	ListByOwner(ctx context.Context, owner common.Address) ([]Lockup, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
