package query

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceResponse carries the user's funds plus the derived headroom the
// admission gate checks against.
type BalanceResponse struct {
	UserID   uuid.UUID       `json:"user_id"`
	Balance  decimal.Decimal `json:"balance"`
	Exposure decimal.Decimal `json:"exposure"`
	Headroom decimal.Decimal `json:"headroom"`
}

// WagerResponse is one wager in a history listing.
type WagerResponse struct {
	ID          uuid.UUID       `json:"id"`
	MatchKey    string          `json:"match_key"`
	SessionName string          `json:"session_name,omitempty"`
	Side        string          `json:"side,omitempty"`
	Kind        string          `json:"kind"`
	Stake       decimal.Decimal `json:"stake"`
	Odd         decimal.Decimal `json:"odd"`
	Status      string          `json:"status"`
	PlacedAt    time.Time       `json:"placed_at"`
}

// TransactionResponse is one ledger entry in a statement listing.
type TransactionResponse struct {
	ID           uuid.UUID       `json:"id"`
	Type         string          `json:"type"`
	Amount       decimal.Decimal `json:"amount"`
	Remark       string          `json:"remark"`
	Status       string          `json:"status"`
	BalanceAfter decimal.Decimal `json:"balance_after"`
	CreatedAt    time.Time       `json:"created_at"`
}

// MatchResponse is the settlement progress of one match.
type MatchResponse struct {
	Key              string `json:"key"`
	LastKnownState   string `json:"last_known_state,omitempty"`
	DistributionDone bool   `json:"distribution_done"`
	Finished         bool   `json:"finished"`
	DeletionAttempts int    `json:"deletion_attempts"`
}
