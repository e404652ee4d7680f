package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alta-labs/wagerd/internal/domain"
)

// TokenStore implements domain.TokenStore using PostgreSQL.
type TokenStore struct {
	pool *pgxpool.Pool
}

// NewTokenStore creates a TokenStore backed by the given connection pool.
func NewTokenStore(pool *pgxpool.Pool) *TokenStore {
	return &TokenStore{pool: pool}
}

// UpsertToken inserts or replaces one allow-list entry. Re-adding a token
// replaces its oracle.
func (s *TokenStore) UpsertToken(ctx context.Context, class domain.TokenClass, info domain.TokenInfo) error {
	const query = `
		INSERT INTO tokens (class, token, oracle, decimals, allowed, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (class, token) DO UPDATE SET
			oracle     = EXCLUDED.oracle,
			decimals   = EXCLUDED.decimals,
			allowed    = EXCLUDED.allowed,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		string(class), info.Token.Hex(), info.Oracle.Hex(), int16(info.Decimals), info.Allowed,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert %s token %s: %w", class, info.Token.Hex(), err)
	}
	return nil
}

// UpsertTokens writes a batch of allow-list entries in one round trip.
func (s *TokenStore) UpsertTokens(ctx context.Context, class domain.TokenClass, infos []domain.TokenInfo) error {
	if len(infos) == 0 {
		return nil
	}

	const query = `
		INSERT INTO tokens (class, token, oracle, decimals, allowed, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (class, token) DO UPDATE SET
			oracle     = EXCLUDED.oracle,
			decimals   = EXCLUDED.decimals,
			allowed    = EXCLUDED.allowed,
			updated_at = NOW()`

	batch := &pgx.Batch{}
	for _, info := range infos {
		batch.Queue(query,
			string(class), info.Token.Hex(), info.Oracle.Hex(), int16(info.Decimals), info.Allowed,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range infos {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert token batch item %d: %w", i, err)
		}
	}
	return nil
}

// ListTokens returns all entries of one allow-list.
func (s *TokenStore) ListTokens(ctx context.Context, class domain.TokenClass) ([]domain.TokenInfo, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token, oracle, decimals, allowed FROM tokens WHERE class = $1 ORDER BY token`,
		string(class),
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list %s tokens: %w", class, err)
	}
	defer rows.Close()

	var out []domain.TokenInfo
	for rows.Next() {
		var (
			info     domain.TokenInfo
			token    string
			oracle   string
			decimals int16
		)
		if err := rows.Scan(&token, &oracle, &decimals, &info.Allowed); err != nil {
			return nil, fmt.Errorf("postgres: scan token: %w", err)
		}
		info.Token = common.HexToAddress(token)
		info.Oracle = common.HexToAddress(oracle)
		info.Decimals = uint8(decimals)
		out = append(out, info)
	}
	return out, rows.Err()
}

// SetRefundable records a kill-switch activation. The first activation time
// wins; later calls leave the row untouched.
func (s *TokenStore) SetRefundable(ctx context.Context, token common.Address, flaggedAt time.Time) error {
	const query = `
		INSERT INTO refundable_tokens (token, flagged_at)
		VALUES ($1, $2)
		ON CONFLICT (token) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query, token.Hex(), flaggedAt); err != nil {
		return fmt.Errorf("postgres: set refundable %s: %w", token.Hex(), err)
	}
	return nil
}

// ListRefundable returns every kill-switch flag.
func (s *TokenStore) ListRefundable(ctx context.Context) ([]domain.RefundableFlag, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT token, flagged_at FROM refundable_tokens ORDER BY flagged_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list refundable tokens: %w", err)
	}
	defer rows.Close()

	var out []domain.RefundableFlag
	for rows.Next() {
		var (
			flag  domain.RefundableFlag
			token string
		)
		if err := rows.Scan(&token, &flag.FlaggedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan refundable token: %w", err)
		}
		flag.Token = common.HexToAddress(token)
		out = append(out, flag)
	}
	return out, rows.Err()
}

var _ domain.TokenStore = (*TokenStore)(nil)
