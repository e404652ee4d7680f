package escrow

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alta-labs/wagerd/internal/domain"
)

// Ledger is the in-process Adapter used in local mode and tests. It tracks
// per-token account balances plus a custody balance per token, and enforces
// the same value-matching rules the chain adapter does. Every operation is
// all-or-nothing under a single mutex.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]map[common.Address]*big.Int // token -> account -> balance
	custody  map[common.Address]*big.Int                    // token -> held escrow
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]map[common.Address]*big.Int),
		custody:  make(map[common.Address]*big.Int),
	}
}

// Fund credits an account balance. Test and local-mode setup only.
func (l *Ledger) Fund(token, account common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(token, account, amount)
}

// BalanceOf returns the account's balance for token.
func (l *Ledger) BalanceOf(token, account common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m := l.balances[token]; m != nil && m[account] != nil {
		return new(big.Int).Set(m[account])
	}
	return new(big.Int)
}

// CustodyBalance returns the escrow currently held for token.
func (l *Ledger) CustodyBalance(token common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if b := l.custody[token]; b != nil {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

// Collect implements Adapter.
func (l *Ledger) Collect(ctx context.Context, token, from common.Address, amount, value *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("escrow: non-positive amount: %w", domain.ErrInsufficientFunds)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if token == domain.NativeToken {
		if value == nil || value.Cmp(amount) != 0 {
			return fmt.Errorf("escrow: collect %s: %w", from.Hex(), domain.ErrValueMismatch)
		}
	} else if value != nil && value.Sign() != 0 {
		return fmt.Errorf("escrow: token collect carries native value: %w", domain.ErrValueMismatch)
	}

	if err := l.debit(token, from, amount); err != nil {
		return fmt.Errorf("escrow: collect %s from %s: %w", token.Hex(), from.Hex(), err)
	}
	cur := l.custody[token]
	if cur == nil {
		cur = new(big.Int)
		l.custody[token] = cur
	}
	cur.Add(cur, amount)
	return nil
}

// Payout implements Adapter.
func (l *Ledger) Payout(ctx context.Context, token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	cur := l.custody[token]
	if cur == nil || cur.Cmp(amount) < 0 {
		return fmt.Errorf("escrow: payout %s exceeds custody: %w", token.Hex(), domain.ErrInsufficientFunds)
	}
	cur.Sub(cur, amount)
	l.credit(token, to, amount)
	return nil
}

func (l *Ledger) credit(token, account common.Address, amount *big.Int) {
	m := l.balances[token]
	if m == nil {
		m = make(map[common.Address]*big.Int)
		l.balances[token] = m
	}
	b := m[account]
	if b == nil {
		b = new(big.Int)
		m[account] = b
	}
	b.Add(b, amount)
}

func (l *Ledger) debit(token, account common.Address, amount *big.Int) error {
	m := l.balances[token]
	if m == nil || m[account] == nil || m[account].Cmp(amount) < 0 {
		return domain.ErrInsufficientFunds
	}
	m[account].Sub(m[account], amount)
	return nil
}

// Compile-time interface check.
var _ Adapter = (*Ledger)(nil)
