package postgres

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alta-labs/wagerd/internal/domain"
)

// LockupStore implements domain.LockupStore using PostgreSQL.
type LockupStore struct {
	pool *pgxpool.Pool
}

// NewLockupStore creates a LockupStore backed by the given connection pool.
func NewLockupStore(pool *pgxpool.Pool) *LockupStore {
	return &LockupStore{pool: pool}
}

// Insert stores a new lockup and returns its database identifier.
func (s *LockupStore) Insert(ctx context.Context, l domain.Lockup) (int64, error) {
	const query = `
		INSERT INTO lockups (idx, owner, token, amount, locked_at, release_at, unlocked)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`

	var id int64
	err := s.pool.QueryRow(ctx, query,
		l.Index, l.Owner.Hex(), l.Token.Hex(), l.Amount.String(),
		l.LockedAt, l.ReleaseAt, l.Unlocked,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("postgres: insert lockup for %s: %w", l.Owner.Hex(), err)
	}
	return id, nil
}

// MarkUnlocked flags a lockup as released.
func (s *LockupStore) MarkUnlocked(ctx context.Context, id int64) error {
	tag, err := s.pool.Exec(ctx, `UPDATE lockups SET unlocked = TRUE WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: mark lockup %d unlocked: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: lockup %d: %w", id, domain.ErrNotFound)
	}
	return nil
}

// ListByOwner returns the owner's lockups in index order.
func (s *LockupStore) ListByOwner(ctx context.Context, owner common.Address) ([]domain.Lockup, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, idx, owner, token, amount, locked_at, release_at, unlocked
		FROM lockups WHERE owner = $1 ORDER BY idx`,
		owner.Hex(),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list lockups for %s: %w", owner.Hex(), err)
	}
	defer rows.Close()

	var out []domain.Lockup
	for rows.Next() {
		var (
			l      domain.Lockup
			owner  string
			token  string
			amount string
		)
		if err := rows.Scan(&l.ID, &l.Index, &owner, &token, &amount,
			&l.LockedAt, &l.ReleaseAt, &l.Unlocked); err != nil {
			return nil, fmt.Errorf("postgres: scan lockup: %w", err)
		}
		l.Owner = common.HexToAddress(owner)
		l.Token = common.HexToAddress(token)
		v, ok := new(big.Int).SetString(amount, 10)
		if !ok {
			return nil, fmt.Errorf("postgres: bad lockup amount %q", amount)
		}
		l.Amount = v
		out = append(out, l)
	}
	return out, rows.Err()
}

var _ domain.LockupStore = (*LockupStore)(nil)
