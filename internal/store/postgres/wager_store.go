package postgres

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alta-labs/wagerd/internal/domain"
)

// WagerStore implements domain.WagerStore using PostgreSQL. Amounts and
// strike prices round-trip through NUMERIC(78,0) as decimal strings so the
// full uint256 range survives.
type WagerStore struct {
	pool *pgxpool.Pool
}

// NewWagerStore creates a WagerStore backed by the given connection pool.
func NewWagerStore(pool *pgxpool.Pool) *WagerStore {
	return &WagerStore{pool: pool}
}

const wagerColumns = `
	id, kind, user_a, user_b, wager_token, payment_token,
	wager_price, above, wager_price_a, wager_price_b,
	amount_user_a, amount_user_b, duration_secs,
	created_at, filled_at, is_filled, is_closed`

// Insert stores a newly created wager.
func (s *WagerStore) Insert(ctx context.Context, w domain.Wager) error {
	const query = `
		INSERT INTO wagers (` + wagerColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`

	_, err := s.pool.Exec(ctx, query, wagerArgs(w)...)
	if err != nil {
		return fmt.Errorf("postgres: insert wager %d: %w", w.ID, err)
	}
	return nil
}

// Update rewrites a wager row after a state transition.
func (s *WagerStore) Update(ctx context.Context, w domain.Wager) error {
	const query = `
		UPDATE wagers SET
			user_b     = $2,
			filled_at  = $3,
			is_filled  = $4,
			is_closed  = $5,
			updated_at = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		int64(w.ID), w.UserB.Hex(), nullTime(w.FilledAt), w.IsFilled, w.IsClosed,
	)
	if err != nil {
		return fmt.Errorf("postgres: update wager %d: %w", w.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("postgres: update wager %d: %w", w.ID, domain.ErrNotFound)
	}
	return nil
}

// GetByID returns a single wager.
func (s *WagerStore) GetByID(ctx context.Context, id uint64) (domain.Wager, error) {
	const query = `SELECT ` + wagerColumns + ` FROM wagers WHERE id = $1`
	w, err := scanWager(s.pool.QueryRow(ctx, query, int64(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Wager{}, fmt.Errorf("postgres: wager %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Wager{}, fmt.Errorf("postgres: get wager %d: %w", id, err)
	}
	return w, nil
}

// List returns wagers ordered by identifier with pagination.
func (s *WagerStore) List(ctx context.Context, opts domain.ListOpts) ([]domain.Wager, error) {
	query := `SELECT ` + wagerColumns + ` FROM wagers WHERE 1=1`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY id"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	return s.queryWagers(ctx, query, args...)
}

// ListOpen returns wagers that are not yet closed.
func (s *WagerStore) ListOpen(ctx context.Context, opts domain.ListOpts) ([]domain.Wager, error) {
	query := `SELECT ` + wagerColumns + ` FROM wagers WHERE NOT is_closed ORDER BY id`
	args := []any{}
	argIdx := 1
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}
	return s.queryWagers(ctx, query, args...)
}

// ListClosedBefore returns closed wagers whose last transition predates
// cutoff, oldest first. Used by the archiver.
func (s *WagerStore) ListClosedBefore(ctx context.Context, cutoff time.Time, limit int) ([]domain.Wager, error) {
	query := `SELECT ` + wagerColumns + `
		FROM wagers WHERE is_closed AND updated_at < $1 ORDER BY updated_at`
	args := []any{cutoff}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.queryWagers(ctx, query, args...)
}

// DeleteClosedBefore prunes archived rows. Only the archiver calls this,
// after the corresponding objects are safely in blob storage.
func (s *WagerStore) DeleteClosedBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM wagers WHERE is_closed AND updated_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete closed wagers: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Count returns the total number of stored wagers.
func (s *WagerStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM wagers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("postgres: count wagers: %w", err)
	}
	return n, nil
}

func (s *WagerStore) queryWagers(ctx context.Context, query string, args ...any) ([]domain.Wager, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wagers: %w", err)
	}
	defer rows.Close()

	var out []domain.Wager
	for rows.Next() {
		w, err := scanWager(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan wager: %w", err)
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func wagerArgs(w domain.Wager) []any {
	return []any{
		int64(w.ID), string(w.Kind),
		w.UserA.Hex(), w.UserB.Hex(),
		w.WagerToken.Hex(), w.PaymentToken.Hex(),
		numericStr(w.WagerPrice), w.Above,
		numericStr(w.WagerPriceA), numericStr(w.WagerPriceB),
		numericStr(w.AmountUserA), numericStr(w.AmountUserB),
		int64(w.Duration / time.Second),
		w.CreatedAt, nullTime(w.FilledAt),
		w.IsFilled, w.IsClosed,
	}
}

func scanWager(row pgx.Row) (domain.Wager, error) {
	var (
		w        domain.Wager
		id       int64
		kind     string
		userA    string
		userB    string
		wToken   string
		pToken   string
		price    *string
		priceA   *string
		priceB   *string
		amountA  string
		amountB  string
		duration int64
		filledAt *time.Time
	)
	err := row.Scan(
		&id, &kind, &userA, &userB, &wToken, &pToken,
		&price, &w.Above, &priceA, &priceB,
		&amountA, &amountB, &duration,
		&w.CreatedAt, &filledAt, &w.IsFilled, &w.IsClosed,
	)
	if err != nil {
		return domain.Wager{}, err
	}

	w.ID = uint64(id)
	w.Kind = domain.WagerKind(kind)
	w.UserA = common.HexToAddress(userA)
	w.UserB = common.HexToAddress(userB)
	w.WagerToken = common.HexToAddress(wToken)
	w.PaymentToken = common.HexToAddress(pToken)
	w.Duration = time.Duration(duration) * time.Second
	if filledAt != nil {
		w.FilledAt = *filledAt
	}

	if w.WagerPrice, err = numericVal(price); err != nil {
		return domain.Wager{}, err
	}
	if w.WagerPriceA, err = numericVal(priceA); err != nil {
		return domain.Wager{}, err
	}
	if w.WagerPriceB, err = numericVal(priceB); err != nil {
		return domain.Wager{}, err
	}
	if w.AmountUserA, err = numericVal(&amountA); err != nil {
		return domain.Wager{}, err
	}
	if w.AmountUserB, err = numericVal(&amountB); err != nil {
		return domain.Wager{}, err
	}
	return w, nil
}

// numericStr renders a big.Int for a NUMERIC column, nil-safe.
func numericStr(v *big.Int) *string {
	if v == nil {
		return nil
	}
	s := v.String()
	return &s
}

func numericVal(s *string) (*big.Int, error) {
	if s == nil {
		return nil, nil
	}
	v, ok := new(big.Int).SetString(*s, 10)
	if !ok {
		return nil, fmt.Errorf("postgres: bad numeric %q", *s)
	}
	return v, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

var _ domain.WagerStore = (*WagerStore)(nil)
