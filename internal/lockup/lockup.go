// Package lockup implements a time-locked escrow vault with no settlement
// logic: tokens go in for a fixed duration and come back out to the same
// owner once it elapses.
package lockup

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/escrow"
)

// Config carries the vault's collaborators. Escrow is required; Store and
// Events are optional.
type Config struct {
	Escrow escrow.Adapter
	Store  domain.LockupStore
	Events domain.EventSink
	Logger *slog.Logger
}

// Vault holds per-owner lockup lists. Entries are addressed by their index
// within the owner's list and are never removed, only marked unlocked.
type Vault struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	entries map[common.Address][]*domain.Lockup
}

// New builds a Vault.
func New(cfg Config) (*Vault, error) {
	if cfg.Escrow == nil {
		return nil, fmt.Errorf("lockup: escrow adapter is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Vault{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "lockup")),
		now:     time.Now,
		entries: make(map[common.Address][]*domain.Lockup),
	}, nil
}

// LockTokens escrows amount of token for duration. value is the native
// currency attached to the call, subject to the same matching rules as
// wager escrow. Durations over 50 years are rejected.
func (v *Vault) LockTokens(ctx context.Context, owner, token common.Address, amount *big.Int, duration time.Duration, value *big.Int) (domain.Lockup, error) {
	if amount == nil || amount.Sign() <= 0 {
		return domain.Lockup{}, fmt.Errorf("lockup: amount must be positive")
	}
	if duration <= 0 {
		return domain.Lockup{}, fmt.Errorf("lockup: duration must be positive")
	}
	if duration > domain.MaxLockupDuration {
		return domain.Lockup{}, fmt.Errorf("lockup: duration %s: %w", duration, domain.ErrLockupTooLong)
	}

	if err := v.cfg.Escrow.Collect(ctx, token, owner, amount, value); err != nil {
		return domain.Lockup{}, fmt.Errorf("lockup: collect: %w", err)
	}

	now := v.now()
	entry := &domain.Lockup{
		Owner:     owner,
		Token:     token,
		Amount:    new(big.Int).Set(amount),
		LockedAt:  now,
		ReleaseAt: now.Add(duration),
	}

	v.mu.Lock()
	entry.Index = len(v.entries[owner])
	v.entries[owner] = append(v.entries[owner], entry)
	v.mu.Unlock()

	if v.cfg.Store != nil {
		id, err := v.cfg.Store.Insert(ctx, *entry)
		if err != nil {
			v.logger.Error("lockup store write failed",
				slog.String("owner", owner.Hex()),
				slog.String("error", err.Error()),
			)
		} else {
			v.mu.Lock()
			entry.ID = id
			v.mu.Unlock()
		}
	}

	v.publish(ctx, domain.Event{
		Type:   domain.EventTokensLocked,
		At:     now,
		Actor:  owner,
		Token:  token,
		Amount: entry.Amount,
	})
	v.logger.Info("tokens locked",
		slog.String("owner", owner.Hex()),
		slog.String("token", token.Hex()),
		slog.Int("index", entry.Index),
		slog.Time("release_at", entry.ReleaseAt),
	)

	return *entry, nil
}

// UnlockTokens releases the owner's lockup at index back to them. Fails
// with domain.ErrStillLocked before the release time.
func (v *Vault) UnlockTokens(ctx context.Context, owner common.Address, index int) error {
	v.mu.Lock()
	list := v.entries[owner]
	if index < 0 || index >= len(list) {
		v.mu.Unlock()
		return fmt.Errorf("lockup: owner %s index %d: %w", owner.Hex(), index, domain.ErrNotFound)
	}
	entry := list[index]
	if entry.Unlocked {
		v.mu.Unlock()
		return fmt.Errorf("lockup: index %d already unlocked: %w", index, domain.ErrAlreadyRedeemed)
	}
	now := v.now()
	if now.Before(entry.ReleaseAt) {
		v.mu.Unlock()
		return fmt.Errorf("lockup: releases at %s: %w", entry.ReleaseAt.Format(time.RFC3339), domain.ErrStillLocked)
	}
	// Mark before paying out so a transfer hook cannot double-unlock.
	entry.Unlocked = true
	snapshot := *entry
	v.mu.Unlock()

	if err := v.cfg.Escrow.Payout(ctx, snapshot.Token, owner, snapshot.Amount); err != nil {
		v.mu.Lock()
		entry.Unlocked = false
		v.mu.Unlock()
		return fmt.Errorf("lockup: payout: %w", err)
	}

	if v.cfg.Store != nil && snapshot.ID != 0 {
		if err := v.cfg.Store.MarkUnlocked(ctx, snapshot.ID); err != nil {
			v.logger.Error("lockup store update failed",
				slog.Int64("id", snapshot.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	v.publish(ctx, domain.Event{
		Type:   domain.EventTokensUnlocked,
		At:     now,
		Actor:  owner,
		Token:  snapshot.Token,
		Amount: snapshot.Amount,
	})
	v.logger.Info("tokens unlocked",
		slog.String("owner", owner.Hex()),
		slog.Int("index", index),
	)
	return nil
}

// Lockups returns copies of the owner's entries in creation order.
func (v *Vault) Lockups(owner common.Address) []domain.Lockup {
	v.mu.RLock()
	defer v.mu.RUnlock()
	list := v.entries[owner]
	out := make([]domain.Lockup, len(list))
	for i, entry := range list {
		out[i] = *entry
	}
	return out
}

// LoadState hydrates per-owner lists from the store for the given owners.
// Entries come back in index order.
func (v *Vault) LoadState(ctx context.Context, owners []common.Address) error {
	if v.cfg.Store == nil {
		return nil
	}
	loaded := make(map[common.Address][]*domain.Lockup, len(owners))
	for _, owner := range owners {
		list, err := v.cfg.Store.ListByOwner(ctx, owner)
		if err != nil {
			return fmt.Errorf("lockup: load %s: %w", owner.Hex(), err)
		}
		ptrs := make([]*domain.Lockup, len(list))
		for i := range list {
			entry := list[i]
			ptrs[i] = &entry
		}
		loaded[owner] = ptrs
	}

	v.mu.Lock()
	for owner, list := range loaded {
		v.entries[owner] = list
	}
	v.mu.Unlock()
	return nil
}

func (v *Vault) publish(ctx context.Context, ev domain.Event) {
	if v.cfg.Events != nil {
		v.cfg.Events.Publish(ctx, ev)
	}
}
