package domain

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// EventType identifies an observable registry side effect.
type EventType string

const (
	EventWagerCreated   EventType = "wager_created"
	EventWagerFilled    EventType = "wager_filled"
	EventWagerCancelled EventType = "wager_cancelled"
	EventWagerRedeemed  EventType = "wager_redeemed"
	EventTokensLocked   EventType = "tokens_locked"
	EventTokensUnlocked EventType = "tokens_unlocked"
)

// Event is emitted after a state transition commits, for external indexers,
// notification channels, and the websocket hub.
type Event struct {
	Type    EventType      `json:"type"`
	At      time.Time      `json:"at"`
	WagerID uint64         `json:"wager_id,omitempty"`
	Actor   common.Address `json:"actor,omitempty"`
	UserA   common.Address `json:"user_a,omitempty"`
	UserB   common.Address `json:"user_b,omitempty"`
	Token   common.Address `json:"token,omitempty"`
	Winner  common.Address `json:"winner,omitempty"`
	Amount  *big.Int       `json:"amount,omitempty"`
	Prices  []*big.Int     `json:"prices,omitempty"`
}

// EventSink receives committed events. Publish must not call back into the
// registry; it runs after the transition's state is final.
type EventSink interface {
	Publish(ctx context.Context, ev Event)
}

// EventSinks fans an event out to multiple sinks.
type EventSinks []EventSink

func (s EventSinks) Publish(ctx context.Context, ev Event) {
	for _, sink := range s {
		sink.Publish(ctx, ev)
	}
}
