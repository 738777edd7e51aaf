package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// User carries the two balances the core is allowed to mutate.
// Balance is withdrawable funds; Exposure is the sum of worst-case open
// losses across all markets (always ≥ 0). The admission gate keeps
// Balance ≥ Exposure. Both fields are only read-modified-written inside the
// per-user exclusive scope (UserLocks).
type User struct {
	ID       uuid.UUID
	Balance  decimal.Decimal
	Exposure decimal.Decimal
}

// Headroom is the amount of balance not yet reserved against open positions.
func (u *User) Headroom() decimal.Decimal {
	return u.Balance.Sub(u.Exposure)
}

// ExposureRow is the per (user, match[, session]) worst-case exposure
// snapshot. Rows are soft-deleted (Active=false) instead of removed so the
// correction flow can restore them. At most one active row may exist per key.
type ExposureRow struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	MatchKey    string
	SessionName string // empty for the match-outcome market
	Amount      decimal.Decimal
	Active      bool
}

// Match is the settlement unit. LastKnownState holds the latest outcome feed
// text for matches still awaiting a winner; DistributionDone flips once per
// conclusion and may be reset by a correction. DeletionAttempts counts
// consecutive feed misses before the match is declared gone.
type Match struct {
	Key              string
	LastKnownState   string
	DistributionDone bool
	Finished         bool
	DeletionAttempts int
}
