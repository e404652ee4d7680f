package notify

import (
	"context"
	"fmt"

	"github.com/alta-labs/wagerd/internal/domain"
)

// EventSink adapts a Notifier to the domain event stream, rendering each
// committed transition as a short operator message. The notifier's event
// filter decides which types actually go out.
type EventSink struct {
	notifier *Notifier
}

// NewEventSink creates the bridge.
func NewEventSink(n *Notifier) *EventSink {
	return &EventSink{notifier: n}
}

// Publish implements domain.EventSink. Delivery failures are already logged
// by the notifier; they never affect the committed transition.
func (s *EventSink) Publish(ctx context.Context, ev domain.Event) {
	title, message := render(ev)
	_ = s.notifier.Notify(ctx, string(ev.Type), title, message)
}

func render(ev domain.Event) (string, string) {
	switch ev.Type {
	case domain.EventWagerCreated:
		return fmt.Sprintf("Wager #%d created", ev.WagerID),
			fmt.Sprintf("creator %s\ntoken %s\nescrow %s", ev.UserA.Hex(), ev.Token.Hex(), amountStr(ev))
	case domain.EventWagerFilled:
		return fmt.Sprintf("Wager #%d filled", ev.WagerID),
			fmt.Sprintf("counterparty %s\ntoken %s", ev.UserB.Hex(), ev.Token.Hex())
	case domain.EventWagerCancelled:
		return fmt.Sprintf("Wager #%d cancelled", ev.WagerID),
			fmt.Sprintf("by %s", ev.Actor.Hex())
	case domain.EventWagerRedeemed:
		if ev.Winner == domain.NoWinner {
			return fmt.Sprintf("Wager #%d redeemed", ev.WagerID), "no winner, pool split"
		}
		return fmt.Sprintf("Wager #%d redeemed", ev.WagerID),
			fmt.Sprintf("winner %s\npool %s", ev.Winner.Hex(), amountStr(ev))
	case domain.EventTokensLocked:
		return "Tokens locked",
			fmt.Sprintf("owner %s\ntoken %s\namount %s", ev.Actor.Hex(), ev.Token.Hex(), amountStr(ev))
	case domain.EventTokensUnlocked:
		return "Tokens unlocked",
			fmt.Sprintf("owner %s\ntoken %s\namount %s", ev.Actor.Hex(), ev.Token.Hex(), amountStr(ev))
	default:
		return string(ev.Type), fmt.Sprintf("wager #%d actor %s", ev.WagerID, ev.Actor.Hex())
	}
}

func amountStr(ev domain.Event) string {
	if ev.Amount == nil {
		return "0"
	}
	return ev.Amount.String()
}

var _ domain.EventSink = (*EventSink)(nil)
