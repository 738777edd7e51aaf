// Package exposure computes worst-case loss for one user's confirmed wagers
// on a single market. All functions are pure: no locking, no I/O. Callers
// must apply the result to the ledger inside the same per-user exclusive
// scope that read the inputs.
package exposure

import (
	"sort"

	"github.com/shopspring/decimal"

	"BetLedger/internal/ledger"
)

// teamBook aggregates all back/lay wagers on one side of a match market.
type teamBook struct {
	backStake    decimal.Decimal // Σ stake over back wagers
	backProfit   decimal.Decimal // Σ stake·(odd−1) over back wagers
	layStake     decimal.Decimal // Σ stake over lay wagers
	layLiability decimal.Decimal // Σ stake·(odd−1) over lay wagers
}

func newTeamBook() *teamBook {
	return &teamBook{
		backStake:    decimal.Zero,
		backProfit:   decimal.Zero,
		layStake:     decimal.Zero,
		layLiability: decimal.Zero,
	}
}

func (b *teamBook) add(w *ledger.Wager) {
	switch w.Kind {
	case ledger.BetKindBack:
		b.backStake = b.backStake.Add(w.Stake)
		b.backProfit = b.backProfit.Add(w.BackProfit())
	case ledger.BetKindLay:
		b.layStake = b.layStake.Add(w.Stake)
		b.layLiability = b.layLiability.Add(w.BackProfit())
	}
}

// win is the net result if this side wins (positive = profit).
func (b *teamBook) win() decimal.Decimal {
	return b.backProfit.Sub(b.layLiability)
}

// lose is the net result if this side loses (positive = profit).
func (b *teamBook) lose() decimal.Decimal {
	return b.layStake.Sub(b.backStake)
}

// MatchExposure computes the worst-case loss across the mutually exclusive
// outcomes of a match market. Opposing positions are netted: the scenario
// "team t wins" resolves t's book at win() and every other book at lose(),
// which for two teams is exactly the adjusted-win/adjusted-lose
// cross-adjustment (team A adjusted-win = winA + loseB, adjusted-lose =
// loseA + winB). The returned exposure is ≥ 0; zero means no outcome can
// cost the user money.
func MatchExposure(wagers []*ledger.Wager) decimal.Decimal {
	books := make(map[string]*teamBook)
	for _, w := range wagers {
		if w.Kind.IsSessionKind() {
			continue
		}
		b, ok := books[w.Side]
		if !ok {
			b = newTeamBook()
			books[w.Side] = b
		}
		b.add(w)
	}
	if len(books) == 0 {
		return decimal.Zero
	}

	// Deterministic scenario order.
	teams := make([]string, 0, len(books))
	for t := range books {
		teams = append(teams, t)
	}
	sort.Strings(teams)

	worst := decimal.Zero
	first := true
	for _, winner := range teams {
		outcome := books[winner].win()
		for _, other := range teams {
			if other == winner {
				continue
			}
			outcome = outcome.Add(books[other].lose())
		}
		if first || outcome.LessThan(worst) {
			worst = outcome
			first = false
		}
	}

	// Single-sided books also carry the scenario where that side loses.
	if len(teams) == 1 {
		lose := books[teams[0]].lose()
		if lose.LessThan(worst) {
			worst = lose
		}
	}

	if worst.IsNegative() {
		return worst.Neg()
	}
	return decimal.Zero
}

// SessionExposure computes worst-case loss for yes/no wagers on one session
// market. Yes wagers sorted by ascending threshold and no wagers by
// descending threshold are offset pairwise while yesOdd < noOdd: such a pair
// is a risk-free hedge (any result lands at least one winner and possibly
// both), so the smaller stake cancels from both sides. Because the scored
// value is continuous, both residual sides can lose simultaneously, so the
// exposure is the sum of both residual stakes. Session payouts are
// even-money (stake for stake), hence no odds multiplier here.
func SessionExposure(wagers []*ledger.Wager) decimal.Decimal {
	type leg struct {
		odd   decimal.Decimal
		stake decimal.Decimal
	}

	var yes, no []leg
	for _, w := range wagers {
		switch w.Kind {
		case ledger.BetKindYes:
			yes = append(yes, leg{odd: w.Odd, stake: w.Stake})
		case ledger.BetKindNo:
			no = append(no, leg{odd: w.Odd, stake: w.Stake})
		}
	}

	sort.Slice(yes, func(i, j int) bool { return yes[i].odd.LessThan(yes[j].odd) })
	sort.Slice(no, func(i, j int) bool { return no[i].odd.GreaterThan(no[j].odd) })

	i, j := 0, 0
	for i < len(yes) && j < len(no) && yes[i].odd.LessThan(no[j].odd) {
		off := decimal.Min(yes[i].stake, no[j].stake)
		yes[i].stake = yes[i].stake.Sub(off)
		no[j].stake = no[j].stake.Sub(off)
		if yes[i].stake.IsZero() {
			i++
		}
		if j < len(no) && no[j].stake.IsZero() {
			j++
		}
	}

	total := decimal.Zero
	for _, l := range yes {
		total = total.Add(l.stake)
	}
	for _, l := range no {
		total = total.Add(l.stake)
	}
	return total
}

// ForWager computes the exposure of the grouping key the wager belongs to:
// the session book for session wagers, the match-outcome book otherwise.
// The input must already be filtered to confirmed wagers of one user on one
// match; wagers of the other grouping are ignored.
func ForWager(w *ledger.Wager, confirmed []*ledger.Wager) decimal.Decimal {
	if w.IsSession() {
		var sameSession []*ledger.Wager
		for _, c := range confirmed {
			if c.SessionName == w.SessionName {
				sameSession = append(sameSession, c)
			}
		}
		return SessionExposure(sameSession)
	}
	var matchOnly []*ledger.Wager
	for _, c := range confirmed {
		if !c.IsSession() {
			matchOnly = append(matchOnly, c)
		}
	}
	return MatchExposure(matchOnly)
}
