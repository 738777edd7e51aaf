package ledger

import "context"

// StatusNotifier is the outbound observer surface: invoked whenever a
// wager's status changes (confirmation, cancellation, settlement,
// correction). Delivery is best-effort; the ledger store remains the source
// of truth.
type StatusNotifier interface {
	WagerStatus(ctx context.Context, w *Wager, reason string)
}

// NopNotifier discards all notifications.
type NopNotifier struct{}

func (NopNotifier) WagerStatus(context.Context, *Wager, string) {}
