// Package registry owns the wager collection, the token allow-lists, and the
// per-token kill-switch flags. Every state transition runs atomically against
// in-process state, with committed transitions mirrored to the persistence
// layer and fanned out to event sinks.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/alta-labs/wagerd/internal/access"
	"github.com/alta-labs/wagerd/internal/domain"
	"github.com/alta-labs/wagerd/internal/escrow"
	"github.com/alta-labs/wagerd/internal/oracle"
)

const (
	// MinDuration is the shortest accepted wager duration.
	MinDuration = 24 * time.Hour

	// feeNumer/feeDenom express the 0.5% creation fee. The stored escrow is
	// amount*995/1000; the remainder is routed to the fee address.
	feeNumer = 995
	feeDenom = 1000

	// usdFloor is the minimum USD value of the creator's escrow, in the
	// 8-decimal fixed point used by the USD feeds. Inclusive.
	usdFloor = 10 * 1e8

	// usdDecimals is the fixed-point scale of the USD feeds.
	usdDecimals = 8

	// priceFreshness bounds how stale a cached oracle price may be before
	// the feed is consulted again for the USD floor check.
	priceFreshness = time.Minute

	wagerLockTTL = 30 * time.Second
)

// Config carries the registry's collaborators. Access, Escrow, Feeds, and
// Resolver are required; the stores, caches, lock manager, and event sink
// are optional and skipped when nil.
type Config struct {
	Access   *access.Controller
	Escrow   escrow.Adapter
	Feeds    domain.FeedOpener
	Resolver *oracle.Resolver

	Wagers domain.WagerStore
	Tokens domain.TokenStore
	Audit  domain.AuditStore
	Locks  domain.LockManager
	Prices domain.PriceCache
	Events domain.EventSink

	Logger *slog.Logger
}

// Registry is the wager state machine. In-process state is authoritative;
// the stores are a write-through mirror and the lock manager serialises
// per-wager transitions across replicas sharing a database.
type Registry struct {
	cfg    Config
	logger *slog.Logger
	now    func() time.Time

	mu            sync.RWMutex
	wagers        []*domain.Wager
	paymentTokens map[common.Address]domain.TokenInfo
	wagerTokens   map[common.Address]domain.TokenInfo
	refundable    map[common.Address]time.Time
}

// New builds a Registry from its collaborators.
func New(cfg Config) (*Registry, error) {
	if cfg.Access == nil || cfg.Escrow == nil || cfg.Feeds == nil || cfg.Resolver == nil {
		return nil, fmt.Errorf("registry: access, escrow, feeds, and resolver are required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		cfg:           cfg,
		logger:        logger.With(slog.String("component", "registry")),
		now:           time.Now,
		paymentTokens: make(map[common.Address]domain.TokenInfo),
		wagerTokens:   make(map[common.Address]domain.TokenInfo),
		refundable:    make(map[common.Address]time.Time),
	}, nil
}

// Init performs the registry's one-time setup, assigning the fee recipient
// and owner. A second call fails with domain.ErrAlreadyInit.
func (r *Registry) Init(ctx context.Context, feeAddr, owner common.Address) error {
	if err := r.cfg.Access.Init(feeAddr, owner); err != nil {
		return err
	}
	r.audit(ctx, "init", map[string]any{
		"fee_address": feeAddr.Hex(),
		"owner":       owner.Hex(),
	})
	r.logger.Info("registry initialized",
		slog.String("owner", owner.Hex()),
		slog.String("fee_address", feeAddr.Hex()),
	)
	return nil
}

// CreateRequest is the input to CreateWager. Value is the native currency
// attached to the call (nil means zero); it must equal AmountUserA exactly
// when PaymentToken is the native sentinel and be zero otherwise.
type CreateRequest struct {
	Caller       common.Address
	Kind         domain.WagerKind
	UserB        common.Address
	WagerToken   common.Address
	PaymentToken common.Address

	WagerPrice *big.Int
	Above      bool

	WagerPriceA *big.Int
	WagerPriceB *big.Int

	AmountUserA *big.Int
	AmountUserB *big.Int

	Duration time.Duration
	Value    *big.Int
}

func (req *CreateRequest) validate() error {
	switch req.Kind {
	case domain.WagerKindFixed:
		if req.WagerPrice == nil || req.WagerPrice.Sign() <= 0 {
			return fmt.Errorf("registry: fixed wager needs a positive strike price")
		}
	case domain.WagerKindConditional:
		if req.WagerPriceA == nil || req.WagerPriceA.Sign() <= 0 ||
			req.WagerPriceB == nil || req.WagerPriceB.Sign() <= 0 {
			return fmt.Errorf("registry: conditional wager needs positive strikes for both sides")
		}
	default:
		return fmt.Errorf("registry: unknown wager kind %q", req.Kind)
	}
	if req.AmountUserA == nil || req.AmountUserA.Sign() <= 0 ||
		req.AmountUserB == nil || req.AmountUserB.Sign() <= 0 {
		return fmt.Errorf("registry: escrow amounts must be positive")
	}
	if req.Duration < MinDuration {
		return fmt.Errorf("registry: duration %s below minimum %s: %w",
			req.Duration, MinDuration, domain.ErrDurationTooShort)
	}
	return nil
}

// CreateWager collects the creator's escrow, deducts the creation fee, and
// records a new open wager. Returns the assigned identifier, sequential
// from 0.
func (r *Registry) CreateWager(ctx context.Context, req CreateRequest) (uint64, error) {
	if !r.cfg.Access.Initialized() {
		return 0, domain.ErrNotInitialized
	}
	if err := req.validate(); err != nil {
		return 0, err
	}

	r.mu.RLock()
	wagerInfo, wagerOK := r.wagerTokens[req.WagerToken]
	payInfo, payOK := r.paymentTokens[req.PaymentToken]
	r.mu.RUnlock()
	if !wagerOK || !wagerInfo.Allowed {
		return 0, fmt.Errorf("registry: wager token %s: %w", req.WagerToken.Hex(), domain.ErrUnknownWagerToken)
	}
	if !payOK || !payInfo.Allowed {
		return 0, fmt.Errorf("registry: payment token %s: %w", req.PaymentToken.Hex(), domain.ErrUnknownPaymentToken)
	}

	if err := r.checkUSDFloor(ctx, payInfo, req.AmountUserA); err != nil {
		return 0, err
	}

	if err := r.cfg.Escrow.Collect(ctx, req.PaymentToken, req.Caller, req.AmountUserA, req.Value); err != nil {
		return 0, fmt.Errorf("registry: collect creator escrow: %w", err)
	}

	stored := new(big.Int).Div(new(big.Int).Mul(req.AmountUserA, big.NewInt(feeNumer)), big.NewInt(feeDenom))
	fee := new(big.Int).Sub(req.AmountUserA, stored)
	if fee.Sign() > 0 {
		if err := r.cfg.Escrow.Payout(ctx, req.PaymentToken, r.cfg.Access.FeeAddress(), fee); err != nil {
			// Unwind the collection so a failed creation has no effect.
			if rerr := r.cfg.Escrow.Payout(ctx, req.PaymentToken, req.Caller, req.AmountUserA); rerr != nil {
				r.logger.Error("escrow refund after fee failure also failed",
					slog.String("caller", req.Caller.Hex()),
					slog.String("error", rerr.Error()),
				)
			}
			return 0, fmt.Errorf("registry: route creation fee: %w", err)
		}
	}

	now := r.now()
	w := &domain.Wager{
		Kind:         req.Kind,
		UserA:        req.Caller,
		UserB:        req.UserB,
		WagerToken:   req.WagerToken,
		PaymentToken: req.PaymentToken,
		WagerPrice:   req.WagerPrice,
		Above:        req.Above,
		WagerPriceA:  req.WagerPriceA,
		WagerPriceB:  req.WagerPriceB,
		AmountUserA:  stored,
		AmountUserB:  new(big.Int).Set(req.AmountUserB),
		Duration:     req.Duration,
		CreatedAt:    now,
	}

	r.mu.Lock()
	w.ID = uint64(len(r.wagers))
	r.wagers = append(r.wagers, w)
	r.mu.Unlock()

	r.persist(ctx, *w, true)
	r.publish(ctx, domain.Event{
		Type:    domain.EventWagerCreated,
		At:      now,
		WagerID: w.ID,
		Actor:   req.Caller,
		UserA:   w.UserA,
		UserB:   w.UserB,
		Token:   w.WagerToken,
		Amount:  stored,
		Prices:  strikes(w),
	})
	r.logger.Info("wager created",
		slog.Uint64("id", w.ID),
		slog.String("kind", string(w.Kind)),
		slog.String("user_a", w.UserA.Hex()),
		slog.String("wager_token", w.WagerToken.Hex()),
	)
	return w.ID, nil
}

// FillWager escrows the counterparty's side and moves the wager to the
// filled state. No fee is charged on the fill side.
func (r *Registry) FillWager(ctx context.Context, caller common.Address, id uint64, value *big.Int) error {
	unlock, err := r.lockWager(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	w, err := r.getLocked(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if w.IsClosed {
		r.mu.Unlock()
		return domain.ErrWagerClosed
	}
	if w.IsFilled {
		r.mu.Unlock()
		return domain.ErrAlreadyFilled
	}
	if caller == w.UserA {
		r.mu.Unlock()
		return domain.ErrCannotFillOwnWager
	}
	if !w.OpenToMarket() && caller != w.UserB {
		r.mu.Unlock()
		return fmt.Errorf("registry: wager %d reserved for %s: %w", id, w.UserB.Hex(), domain.ErrP2PRestricted)
	}

	// Commit the fill before collecting so a transfer hook cannot fill the
	// same wager twice. A failed collection reverts the staged state.
	prevUserB := w.UserB
	w.IsFilled = true
	w.FilledAt = r.now()
	if w.OpenToMarket() {
		w.UserB = caller
	}
	snapshot := *w
	r.mu.Unlock()

	if err := r.cfg.Escrow.Collect(ctx, snapshot.PaymentToken, caller, snapshot.AmountUserB, value); err != nil {
		r.mu.Lock()
		w.IsFilled = false
		w.FilledAt = time.Time{}
		w.UserB = prevUserB
		r.mu.Unlock()
		return fmt.Errorf("registry: collect counterparty escrow: %w", err)
	}

	r.persist(ctx, snapshot, false)
	r.publish(ctx, domain.Event{
		Type:    domain.EventWagerFilled,
		At:      snapshot.FilledAt,
		WagerID: id,
		Actor:   caller,
		UserA:   snapshot.UserA,
		UserB:   snapshot.UserB,
		Token:   snapshot.WagerToken,
		Amount:  snapshot.AmountUserB,
		Prices:  strikes(&snapshot),
	})
	r.logger.Info("wager filled",
		slog.Uint64("id", id),
		slog.String("user_b", snapshot.UserB.Hex()),
	)
	return nil
}

// CancelWager closes an unfilled wager and returns the creator's stored
// escrow. Only the creator or the reserved counterparty may cancel.
func (r *Registry) CancelWager(ctx context.Context, caller common.Address, id uint64) error {
	unlock, err := r.lockWager(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	w, err := r.getLocked(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if caller != w.UserA && caller != w.UserB {
		r.mu.Unlock()
		return domain.ErrUnauthorized
	}
	if w.IsClosed {
		r.mu.Unlock()
		return domain.ErrWagerClosed
	}
	if w.IsFilled {
		// Funds belong to both parties once filled.
		r.mu.Unlock()
		return domain.ErrAlreadyFilled
	}
	w.IsClosed = true
	snapshot := *w
	r.mu.Unlock()

	if err := r.cfg.Escrow.Payout(ctx, snapshot.PaymentToken, snapshot.UserA, snapshot.AmountUserA); err != nil {
		r.mu.Lock()
		w.IsClosed = false
		r.mu.Unlock()
		return fmt.Errorf("registry: return creator escrow: %w", err)
	}

	r.persist(ctx, snapshot, false)
	r.publish(ctx, domain.Event{
		Type:    domain.EventWagerCancelled,
		At:      r.now(),
		WagerID: id,
		Actor:   caller,
		UserA:   snapshot.UserA,
		Token:   snapshot.WagerToken,
		Amount:  snapshot.AmountUserA,
	})
	r.logger.Info("wager cancelled",
		slog.Uint64("id", id),
		slog.String("caller", caller.Hex()),
	)
	return nil
}

// Redeem settles a filled wager. The normal path requires the deadline to
// have passed and pays the full pool to the computed winner, or splits the
// original contributions back when there is no winner. The kill-switch path
// applies whenever the wager token is flagged refundable and always refunds
// both sides, overriding the deadline in either direction.
func (r *Registry) Redeem(ctx context.Context, caller common.Address, id uint64) error {
	unlock, err := r.lockWager(ctx, id)
	if err != nil {
		return err
	}
	defer unlock()

	r.mu.Lock()
	w, err := r.getLocked(id)
	if err != nil {
		r.mu.Unlock()
		return err
	}
	if w.IsClosed {
		r.mu.Unlock()
		return domain.ErrAlreadyRedeemed
	}
	if !w.IsFilled {
		r.mu.Unlock()
		return domain.ErrNotFilled
	}
	_, refund := r.refundable[w.WagerToken]
	snapshot := *w
	r.mu.Unlock()

	now := r.now()
	if !refund && now.Before(snapshot.Deadline()) {
		return fmt.Errorf("registry: wager %d redeemable at %s: %w",
			id, snapshot.Deadline().Format(time.RFC3339), domain.ErrNotRedeemable)
	}

	var winner common.Address
	if !refund {
		winner, _, err = r.settle(ctx, &snapshot)
		if err != nil {
			return err
		}
	}

	// Close before paying out so a payout hook cannot redeem again.
	r.mu.Lock()
	if w.IsClosed {
		r.mu.Unlock()
		return domain.ErrAlreadyRedeemed
	}
	w.IsClosed = true
	snapshot = *w
	r.mu.Unlock()

	if err := r.payoutSettlement(ctx, &snapshot, refund, winner); err != nil {
		r.mu.Lock()
		w.IsClosed = false
		r.mu.Unlock()
		return err
	}

	r.persist(ctx, snapshot, false)
	r.publish(ctx, domain.Event{
		Type:    domain.EventWagerRedeemed,
		At:      now,
		WagerID: id,
		Actor:   caller,
		UserA:   snapshot.UserA,
		UserB:   snapshot.UserB,
		Token:   snapshot.WagerToken,
		Winner:  winner,
		Amount:  snapshot.Pool(),
	})
	r.logger.Info("wager redeemed",
		slog.Uint64("id", id),
		slog.Bool("refund", refund),
		slog.String("winner", winner.Hex()),
	)
	return nil
}

// payoutSettlement drives the escrow transfers for a redemption. A refund or
// a no-winner outcome returns each side's original contribution; otherwise
// the winner takes the whole pool.
func (r *Registry) payoutSettlement(ctx context.Context, w *domain.Wager, refund bool, winner common.Address) error {
	if refund || winner == domain.NoWinner {
		if err := r.cfg.Escrow.Payout(ctx, w.PaymentToken, w.UserA, w.AmountUserA); err != nil {
			return fmt.Errorf("registry: refund user A: %w", err)
		}
		if err := r.cfg.Escrow.Payout(ctx, w.PaymentToken, w.UserB, w.AmountUserB); err != nil {
			return fmt.Errorf("registry: refund user B: %w", err)
		}
		return nil
	}
	if err := r.cfg.Escrow.Payout(ctx, w.PaymentToken, winner, w.Pool()); err != nil {
		return fmt.Errorf("registry: pay winner: %w", err)
	}
	return nil
}

// CheckWinner resolves the settlement price at the wager's deadline and
// reports the winning address, or domain.NoWinner for a split. It never
// mutates state.
func (r *Registry) CheckWinner(ctx context.Context, id uint64) (common.Address, *big.Int, error) {
	r.mu.RLock()
	w, err := r.getLocked(id)
	if err != nil {
		r.mu.RUnlock()
		return domain.NoWinner, nil, err
	}
	if !w.IsFilled {
		r.mu.RUnlock()
		return domain.NoWinner, nil, domain.ErrNotFilled
	}
	snapshot := *w
	r.mu.RUnlock()
	return r.settle(ctx, &snapshot)
}

// settle fetches the settlement price for the wager token at the deadline
// and evaluates the strike condition(s).
func (r *Registry) settle(ctx context.Context, w *domain.Wager) (common.Address, *big.Int, error) {
	r.mu.RLock()
	info, ok := r.wagerTokens[w.WagerToken]
	r.mu.RUnlock()
	if !ok {
		return domain.NoWinner, nil, fmt.Errorf("registry: wager token %s: %w", w.WagerToken.Hex(), domain.ErrUnknownWagerToken)
	}
	feed, err := r.cfg.Feeds.Open(info.Oracle)
	if err != nil {
		return domain.NoWinner, nil, fmt.Errorf("registry: open feed %s: %w", info.Oracle.Hex(), err)
	}
	price, err := r.cfg.Resolver.SettlementPrice(ctx, info.Oracle, feed, w.Deadline().Unix())
	if err != nil {
		return domain.NoWinner, nil, err
	}
	return winnerOf(w, price), price, nil
}

// Wager returns a copy of the identified record.
func (r *Registry) Wager(id uint64) (domain.Wager, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, err := r.getLocked(id)
	if err != nil {
		return domain.Wager{}, err
	}
	return *w, nil
}

// AllWagers returns copies of every wager ever created, closed ones
// included, ordered by identifier.
func (r *Registry) AllWagers() []domain.Wager {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.Wager, len(r.wagers))
	for i, w := range r.wagers {
		out[i] = *w
	}
	return out
}

// checkUSDFloor values amount in USD against the payment token's oracle and
// rejects escrows under the $10 floor. The floor is inclusive.
func (r *Registry) checkUSDFloor(ctx context.Context, info domain.TokenInfo, amount *big.Int) error {
	price, err := r.latestPrice(ctx, info.Oracle)
	if err != nil {
		return fmt.Errorf("registry: price payment token %s: %w", info.Token.Hex(), err)
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(info.Decimals)), nil)
	value := new(big.Int).Div(new(big.Int).Mul(amount, price), scale)
	if value.Cmp(big.NewInt(usdFloor)) < 0 {
		return fmt.Errorf("registry: escrow worth %s is under the $10 floor: %w", value, domain.ErrWagerTooSmall)
	}
	return nil
}

// latestPrice reads the most recent price for an oracle, consulting the
// price cache before the feed.
func (r *Registry) latestPrice(ctx context.Context, oracleAddr common.Address) (*big.Int, error) {
	if r.cfg.Prices != nil {
		if price, ts, err := r.cfg.Prices.GetPrice(ctx, oracleAddr); err == nil && price != nil {
			if r.now().Sub(ts) <= priceFreshness {
				return price, nil
			}
		}
	}
	feed, err := r.cfg.Feeds.Open(oracleAddr)
	if err != nil {
		return nil, err
	}
	latest, err := feed.LatestRoundData(ctx)
	if err != nil {
		return nil, err
	}
	if !latest.HasData() {
		return nil, domain.ErrRoundNotFound
	}
	if r.cfg.Prices != nil {
		if err := r.cfg.Prices.SetPrice(ctx, oracleAddr, latest.Price, time.Unix(latest.UpdatedAt, 0)); err != nil {
			r.logger.Warn("price cache write failed",
				slog.String("oracle", oracleAddr.Hex()),
				slog.String("error", err.Error()),
			)
		}
	}
	return latest.Price, nil
}

// getLocked returns the stored record for id. Callers hold r.mu.
func (r *Registry) getLocked(id uint64) (*domain.Wager, error) {
	if id >= uint64(len(r.wagers)) {
		return nil, fmt.Errorf("registry: wager %d: %w", id, domain.ErrNotFound)
	}
	return r.wagers[id], nil
}

func (r *Registry) lockWager(ctx context.Context, id uint64) (func(), error) {
	if r.cfg.Locks == nil {
		return func() {}, nil
	}
	return r.cfg.Locks.Acquire(ctx, fmt.Sprintf("wager:%d", id), wagerLockTTL)
}

// persist mirrors a committed transition to the wager store. Store failures
// are logged, not surfaced; in-process state is authoritative.
func (r *Registry) persist(ctx context.Context, w domain.Wager, insert bool) {
	if r.cfg.Wagers == nil {
		return
	}
	var err error
	if insert {
		err = r.cfg.Wagers.Insert(ctx, w)
	} else {
		err = r.cfg.Wagers.Update(ctx, w)
	}
	if err != nil {
		r.logger.Error("wager store write failed",
			slog.Uint64("id", w.ID),
			slog.Bool("insert", insert),
			slog.String("error", err.Error()),
		)
	}
}

func (r *Registry) publish(ctx context.Context, ev domain.Event) {
	if r.cfg.Events != nil {
		r.cfg.Events.Publish(ctx, ev)
	}
	r.audit(ctx, string(ev.Type), map[string]any{
		"wager_id": ev.WagerID,
		"actor":    ev.Actor.Hex(),
	})
}

func (r *Registry) audit(ctx context.Context, event string, detail map[string]any) {
	if r.cfg.Audit == nil {
		return
	}
	if err := r.cfg.Audit.Log(ctx, event, detail); err != nil {
		r.logger.Warn("audit write failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func strikes(w *domain.Wager) []*big.Int {
	if w.Kind == domain.WagerKindFixed {
		return []*big.Int{w.WagerPrice}
	}
	return []*big.Int{w.WagerPriceA, w.WagerPriceB}
}
