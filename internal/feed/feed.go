// Package feed defines the external data surfaces the core consumes: live
// odds, match outcomes and the clock. Concrete transport lives behind these
// interfaces; the core never parses provider payloads itself.
package feed

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// TeamOdds is one side of a test-match-style market with explicit per-team
// prices.
type TeamOdds struct {
	Team string          `json:"team"`
	Back decimal.Decimal `json:"back"`
	Lay  decimal.Decimal `json:"lay"`
}

// OneDayOdds is the single favorite/underdog pair quoted for limited-overs
// matches.
type OneDayOdds struct {
	FavoriteSide string          `json:"favorite_side"`
	FavoriteBack decimal.Decimal `json:"favorite_back"`
	FavoriteLay  decimal.Decimal `json:"favorite_lay"`
	UnderdogSide string          `json:"underdog_side"`
	UnderdogBack decimal.Decimal `json:"underdog_back"`
	UnderdogLay  decimal.Decimal `json:"underdog_lay"`
}

// OddsSnapshot is the latest known market prices for one match. Exactly one
// of Teams / OneDay is populated, which also decides the market shape the
// admission pipeline confirms against.
type OddsSnapshot struct {
	MatchKey  string     `json:"match_key"`
	Teams     []TeamOdds `json:"teams,omitempty"`
	OneDay    *OneDayOdds `json:"one_day,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// SideOdds returns the live back/lay prices for side, favoring the explicit
// per-team list when present. A side not quoted on the snapshot returns
// ok=false.
func (s *OddsSnapshot) SideOdds(side string) (back, lay decimal.Decimal, ok bool) {
	for _, t := range s.Teams {
		if t.Team == side {
			return t.Back, t.Lay, true
		}
	}
	if s.OneDay != nil {
		switch side {
		case s.OneDay.FavoriteSide:
			return s.OneDay.FavoriteBack, s.OneDay.FavoriteLay, true
		case s.OneDay.UnderdogSide:
			return s.OneDay.UnderdogBack, s.OneDay.UnderdogLay, true
		}
	}
	return decimal.Zero, decimal.Zero, false
}

// SessionOdds is the yes/no quote for one session market.
type SessionOdds struct {
	MatchKey  string          `json:"match_key"`
	Session   string          `json:"session"`
	Back      decimal.Decimal `json:"back"`
	Lay       decimal.Decimal `json:"lay"`
	Timestamp time.Time       `json:"timestamp"`
}

// OddsFeed delivers the current best back/lay odds for a match and its
// session markets. A nil snapshot with nil error means the provider knows
// nothing about the match (distinct from a transport failure).
type OddsFeed interface {
	LiveOdds(ctx context.Context, matchKey string) (*OddsSnapshot, error)
	SessionOdds(ctx context.Context, matchKey, session string) (*SessionOdds, error)
}

// Outcome is the structured match result. Winner is empty while the match is
// still running ("no result yet" is a legitimate wait state, not an error).
type Outcome struct {
	MatchKey  string
	Winner    string
	StateText string // latest raw feed text, recorded on the match
	Gone      bool   // provider no longer knows the match
}

// OutcomeFeed delivers match and session results.
type OutcomeFeed interface {
	MatchOutcome(ctx context.Context, matchKey string) (*Outcome, error)
	// SessionResult returns the scored value for a session once decided.
	SessionResult(ctx context.Context, matchKey, session string) (value decimal.Decimal, decided bool, err error)
}

// Clock is injected wherever the core needs wall time, for deterministic
// tests.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
