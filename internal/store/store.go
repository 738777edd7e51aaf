// Package store is the ledger store boundary: durable per-user
// balance/exposure, per-bet records, per-match exposure snapshots and the
// immutable transaction log. The core reads and writes through the Store
// interface only; Postgres is the production implementation and the memory
// store backs unit tests.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BetLedger/internal/ledger"
)

// ErrNotFound is returned for lookups of unknown users or wagers.
var ErrNotFound = errors.New("store: not found")

// Confirmation is the atomic unit written when the admission pipeline
// accepts a wager: wager flips to Confirmed (possibly at improved odds), the
// prior active exposure row for the key is soft-deleted, the new row is
// inserted and the user's aggregate exposure is updated. All four writes
// commit or fail together.
type Confirmation struct {
	Wager        *ledger.Wager
	Exposure     *ledger.ExposureRow
	ReplaceRowID *uuid.UUID // prior active row for the same key, if any
	UserExposure decimal.Decimal
}

// UserSettlement is the atomic unit for settling one user on one match:
// transactions appended, wagers flipped Won/Lost, exposure rows
// soft-deleted, balance and exposure updated.
type UserSettlement struct {
	UserID         uuid.UUID
	Transactions   []*ledger.Transaction
	WagerStatus    map[uuid.UUID]ledger.WagerStatus
	DeactivateRows []uuid.UUID
	Balance        decimal.Decimal
	Exposure       decimal.Decimal
}

// UserCorrection is the atomic unit for compensating one user's settlement:
// transactions flip done → reversed (the row itself is otherwise immutable),
// wagers return to Confirmed, exposure rows reactivate, balance and exposure
// are restored.
type UserCorrection struct {
	UserID         uuid.UUID
	ReverseTxIDs   []uuid.UUID
	WagerStatus    map[uuid.UUID]ledger.WagerStatus
	ReactivateRows []uuid.UUID
	Balance        decimal.Decimal
	Exposure       decimal.Decimal
}

// Store is the single source of truth for balances, wagers, exposure
// snapshots and the transaction log.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *ledger.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*ledger.User, error)

	// Matches. GetMatch returns (nil, nil) for unknown matches.
	GetMatch(ctx context.Context, key string) (*ledger.Match, error)
	UpsertMatch(ctx context.Context, m *ledger.Match) error
	UnsettledMatches(ctx context.Context) ([]*ledger.Match, error)

	// Wagers (append-only; status is the only mutable field)
	CreateWager(ctx context.Context, w *ledger.Wager) error
	GetWager(ctx context.Context, id uuid.UUID) (*ledger.Wager, error)
	UpdateWagerStatus(ctx context.Context, id uuid.UUID, status ledger.WagerStatus) error
	WagersByStatus(ctx context.Context, matchKey string, status ledger.WagerStatus) ([]*ledger.Wager, error)
	UserWagersByStatus(ctx context.Context, userID uuid.UUID, matchKey string, status ledger.WagerStatus) ([]*ledger.Wager, error)
	// PendingWagers lists every wager still awaiting confirmation, so a
	// restarted process can resume where the previous one stopped.
	PendingWagers(ctx context.Context) ([]*ledger.Wager, error)

	// Exposure rows. ActiveExposure returns (nil, nil) when no active row
	// exists for the key; InactiveExposure returns the most recently
	// soft-deleted row for the key, which the correction flow reactivates.
	ActiveExposure(ctx context.Context, userID uuid.UUID, matchKey, session string) (*ledger.ExposureRow, error)
	InactiveExposure(ctx context.Context, userID uuid.UUID, matchKey, session string) (*ledger.ExposureRow, error)
	ExposureRows(ctx context.Context, ids []uuid.UUID) ([]*ledger.ExposureRow, error)

	// Transactions
	SettlementTransactions(ctx context.Context, matchKey string) ([]*ledger.Transaction, error)
	UserTransactions(ctx context.Context, userID uuid.UUID) ([]*ledger.Transaction, error)

	// Atomic units
	ApplyConfirmation(ctx context.Context, c *Confirmation) error
	ApplySettlement(ctx context.Context, s *UserSettlement) error
	ApplyCorrection(ctx context.Context, c *UserCorrection) error
}
