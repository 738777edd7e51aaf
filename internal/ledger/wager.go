package ledger

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BetKind identifies the direction of a wager.
// Back/Lay apply to match-outcome markets, Yes/No to session markets.
type BetKind int32

const (
	BetKindBack BetKind = iota
	BetKindLay
	BetKindYes
	BetKindNo
)

func (k BetKind) String() string {
	switch k {
	case BetKindBack:
		return "back"
	case BetKindLay:
		return "lay"
	case BetKindYes:
		return "yes"
	case BetKindNo:
		return "no"
	default:
		return "unknown"
	}
}

// ParseBetKind maps the wire representation back to a BetKind.
func ParseBetKind(s string) (BetKind, error) {
	switch s {
	case "back":
		return BetKindBack, nil
	case "lay":
		return BetKindLay, nil
	case "yes":
		return BetKindYes, nil
	case "no":
		return BetKindNo, nil
	default:
		return 0, fmt.Errorf("unknown bet kind: %q", s)
	}
}

// IsSessionKind reports whether the kind belongs to a session (yes/no) market.
func (k BetKind) IsSessionKind() bool {
	return k == BetKindYes || k == BetKindNo
}

// WagerStatus is the lifecycle state of a wager.
type WagerStatus int32

const (
	WagerStatusPending WagerStatus = iota
	WagerStatusConfirmed
	WagerStatusCancelled
	WagerStatusWon
	WagerStatusLost
)

func (s WagerStatus) String() string {
	switch s {
	case WagerStatusPending:
		return "pending"
	case WagerStatusConfirmed:
		return "confirmed"
	case WagerStatusCancelled:
		return "cancelled"
	case WagerStatusWon:
		return "won"
	case WagerStatusLost:
		return "lost"
	default:
		return "unknown"
	}
}

// ParseWagerStatus maps the storage representation back to a WagerStatus.
func ParseWagerStatus(s string) (WagerStatus, error) {
	switch s {
	case "pending":
		return WagerStatusPending, nil
	case "confirmed":
		return WagerStatusConfirmed, nil
	case "cancelled":
		return WagerStatusCancelled, nil
	case "won":
		return WagerStatusWon, nil
	case "lost":
		return WagerStatusLost, nil
	default:
		return 0, fmt.Errorf("unknown wager status: %q", s)
	}
}

// CanTransitionTo enforces the wager state machine:
// Pending → Confirmed|Cancelled, Confirmed → Won|Lost,
// Won|Lost → Confirmed (correction only). Cancelled is terminal.
func (s WagerStatus) CanTransitionTo(next WagerStatus) bool {
	switch s {
	case WagerStatusPending:
		return next == WagerStatusConfirmed || next == WagerStatusCancelled
	case WagerStatusConfirmed:
		return next == WagerStatusWon || next == WagerStatusLost
	case WagerStatusWon, WagerStatusLost:
		return next == WagerStatusConfirmed
	default:
		return false
	}
}

// Wager is an append-only ledger event: created once, status-mutated by the
// admission pipeline and the settlement engine, never deleted.
type Wager struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	MatchKey    string // match identifier/URL
	SessionName string // empty for match-outcome wagers
	Side        string // team name for match wagers
	Kind        BetKind
	Stake       decimal.Decimal
	Odd         decimal.Decimal
	Status      WagerStatus
	PlacedAt    time.Time
}

// IsSession reports whether the wager belongs to a session market.
func (w *Wager) IsSession() bool {
	return w.SessionName != ""
}

// MarketName is the human-readable market the wager was placed on.
func (w *Wager) MarketName() string {
	if w.IsSession() {
		return w.SessionName
	}
	return "match_odds"
}

// BackProfit is stake·(odd−1), the payout of a winning back bet and the
// liability of a losing lay bet.
func (w *Wager) BackProfit() decimal.Decimal {
	return w.Stake.Mul(w.Odd.Sub(decimal.NewFromInt(1)))
}
