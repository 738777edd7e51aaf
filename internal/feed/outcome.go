package feed

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// StateSource is the raw provider surface: free-text match state plus session
// scores. Free-text parsing is confined to this adapter so the settlement
// engine only ever sees structured Outcome values.
type StateSource interface {
	MatchState(ctx context.Context, matchKey string) (text string, found bool, err error)
	SessionScore(ctx context.Context, matchKey, session string) (value decimal.Decimal, decided bool, err error)
}

// OutcomeAdapter turns a StateSource into an OutcomeFeed.
type OutcomeAdapter struct {
	src StateSource
}

func NewOutcomeAdapter(src StateSource) *OutcomeAdapter {
	return &OutcomeAdapter{src: src}
}

func (a *OutcomeAdapter) MatchOutcome(ctx context.Context, matchKey string) (*Outcome, error) {
	text, found, err := a.src.MatchState(ctx, matchKey)
	if err != nil {
		return nil, err
	}
	if !found {
		return &Outcome{MatchKey: matchKey, Gone: true}, nil
	}
	return &Outcome{
		MatchKey:  matchKey,
		Winner:    ParseWinner(text),
		StateText: text,
	}, nil
}

func (a *OutcomeAdapter) SessionResult(ctx context.Context, matchKey, session string) (decimal.Decimal, bool, error) {
	return a.src.SessionScore(ctx, matchKey, session)
}

// ParseWinner extracts the winning side from a provider state description
// such as "India won by 5 wickets" or "Australia beat England by 20 runs".
// Draws, abandoned matches and in-progress states return "".
func ParseWinner(state string) string {
	s := strings.TrimSpace(state)
	lower := strings.ToLower(s)

	for _, terminal := range []string{"drawn", "draw", "no result", "abandoned", "tied"} {
		if strings.Contains(lower, terminal) {
			return ""
		}
	}

	if idx := strings.Index(lower, " won"); idx > 0 {
		return strings.TrimSpace(s[:idx])
	}
	if idx := strings.Index(lower, " beat "); idx > 0 {
		return strings.TrimSpace(s[:idx])
	}
	return ""
}
