package registry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alta-labs/wagerd/internal/domain"
)

// UpdatePaymentTokens adds, replaces, or disables entries on the payment
// allow-list. Re-adding an allowed token replaces its oracle. Owner only.
func (r *Registry) UpdatePaymentTokens(ctx context.Context, caller common.Address, infos []domain.TokenInfo) error {
	return r.updateTokens(ctx, caller, domain.TokenClassPayment, infos)
}

// UpdateWagerTokens is the wager-token counterpart of UpdatePaymentTokens.
func (r *Registry) UpdateWagerTokens(ctx context.Context, caller common.Address, infos []domain.TokenInfo) error {
	return r.updateTokens(ctx, caller, domain.TokenClassWager, infos)
}

func (r *Registry) updateTokens(ctx context.Context, caller common.Address, class domain.TokenClass, infos []domain.TokenInfo) error {
	if err := r.cfg.Access.Require(caller); err != nil {
		return err
	}

	r.mu.Lock()
	list := r.paymentTokens
	if class == domain.TokenClassWager {
		list = r.wagerTokens
	}
	for _, info := range infos {
		list[info.Token] = info
	}
	r.mu.Unlock()

	if r.cfg.Tokens != nil {
		for _, info := range infos {
			if err := r.cfg.Tokens.UpsertToken(ctx, class, info); err != nil {
				r.logger.Error("token store write failed",
					slog.String("class", string(class)),
					slog.String("token", info.Token.Hex()),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	for _, info := range infos {
		r.audit(ctx, "token_updated", map[string]any{
			"class":   string(class),
			"token":   info.Token.Hex(),
			"oracle":  info.Oracle.Hex(),
			"allowed": info.Allowed,
		})
	}
	r.logger.Info("allow-list updated",
		slog.String("class", string(class)),
		slog.Int("entries", len(infos)),
	)
	return nil
}

// MarkTokenRefundable activates the kill switch for a wager token. From that
// point every redemption of a wager referencing the token, past or future
// deadline alike, refunds both sides. The flag is permanent; repeated calls
// keep the original activation time. Owner only.
func (r *Registry) MarkTokenRefundable(ctx context.Context, caller, token common.Address) error {
	if err := r.cfg.Access.Require(caller); err != nil {
		return err
	}

	r.mu.Lock()
	flaggedAt, already := r.refundable[token]
	if !already {
		flaggedAt = r.now()
		r.refundable[token] = flaggedAt
	}
	r.mu.Unlock()
	if already {
		return nil
	}

	if r.cfg.Tokens != nil {
		if err := r.cfg.Tokens.SetRefundable(ctx, token, flaggedAt); err != nil {
			r.logger.Error("refundable flag write failed",
				slog.String("token", token.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	r.audit(ctx, "token_refundable", map[string]any{
		"token":      token.Hex(),
		"flagged_at": flaggedAt.UTC().Format(time.RFC3339),
	})
	r.logger.Warn("kill switch activated",
		slog.String("token", token.Hex()),
	)
	return nil
}

// TokenRefundableAt reports when the kill switch was activated for token.
// The zero time means it never was.
func (r *Registry) TokenRefundableAt(token common.Address) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.refundable[token]
}

// ListTokens returns the entries of one allow-list.
func (r *Registry) ListTokens(class domain.TokenClass) []domain.TokenInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := r.paymentTokens
	if class == domain.TokenClassWager {
		list = r.wagerTokens
	}
	out := make([]domain.TokenInfo, 0, len(list))
	for _, info := range list {
		out = append(out, info)
	}
	return out
}

// TransferOwnership hands the owner role to newOwner. Owner only.
func (r *Registry) TransferOwnership(ctx context.Context, caller, newOwner common.Address) error {
	if err := r.cfg.Access.TransferOwnership(caller, newOwner); err != nil {
		return err
	}
	r.audit(ctx, "ownership_transferred", map[string]any{
		"from": caller.Hex(),
		"to":   newOwner.Hex(),
	})
	r.logger.Info("ownership transferred",
		slog.String("from", caller.Hex()),
		slog.String("to", newOwner.Hex()),
	)
	return nil
}

// LoadState hydrates the in-process registry from the stores. Called once at
// startup before the API begins serving; wagers load in identifier order so
// the sequential counter resumes where it left off.
func (r *Registry) LoadState(ctx context.Context) error {
	if r.cfg.Wagers == nil {
		return nil
	}

	total, err := r.cfg.Wagers.Count(ctx)
	if err != nil {
		return fmt.Errorf("registry: count wagers: %w", err)
	}

	const page = 500
	wagers := make([]*domain.Wager, 0, total)
	for offset := 0; ; offset += page {
		batch, err := r.cfg.Wagers.List(ctx, domain.ListOpts{Limit: page, Offset: offset})
		if err != nil {
			return fmt.Errorf("registry: load wagers: %w", err)
		}
		for i := range batch {
			w := batch[i]
			if w.ID != uint64(len(wagers)) {
				return fmt.Errorf("registry: wager ids not contiguous at %d", w.ID)
			}
			wagers = append(wagers, &w)
		}
		if len(batch) < page {
			break
		}
	}

	payment := make(map[common.Address]domain.TokenInfo)
	wager := make(map[common.Address]domain.TokenInfo)
	refundable := make(map[common.Address]time.Time)
	if r.cfg.Tokens != nil {
		pay, err := r.cfg.Tokens.ListTokens(ctx, domain.TokenClassPayment)
		if err != nil {
			return fmt.Errorf("registry: load payment tokens: %w", err)
		}
		for _, info := range pay {
			payment[info.Token] = info
		}
		wag, err := r.cfg.Tokens.ListTokens(ctx, domain.TokenClassWager)
		if err != nil {
			return fmt.Errorf("registry: load wager tokens: %w", err)
		}
		for _, info := range wag {
			wager[info.Token] = info
		}
		flags, err := r.cfg.Tokens.ListRefundable(ctx)
		if err != nil {
			return fmt.Errorf("registry: load refundable flags: %w", err)
		}
		for _, flag := range flags {
			refundable[flag.Token] = flag.FlaggedAt
		}
	}

	r.mu.Lock()
	r.wagers = wagers
	r.paymentTokens = payment
	r.wagerTokens = wager
	r.refundable = refundable
	r.mu.Unlock()

	r.logger.Info("registry state loaded",
		slog.Int("wagers", len(wagers)),
		slog.Int("payment_tokens", len(payment)),
		slog.Int("wager_tokens", len(wager)),
		slog.Int("refundable", len(refundable)),
	)
	return nil
}
