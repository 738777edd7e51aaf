package exposure

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BetLedger/internal/ledger"
)

func mustDec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func matchWager(t *testing.T, kind ledger.BetKind, side, stake, odd string) *ledger.Wager {
	t.Helper()
	return &ledger.Wager{
		ID:       uuid.New(),
		UserID:   uuid.New(),
		MatchKey: "india-vs-australia-2026-03-14",
		Side:     side,
		Kind:     kind,
		Stake:    mustDec(t, stake),
		Odd:      mustDec(t, odd),
		Status:   ledger.WagerStatusConfirmed,
	}
}

func sessionWager(t *testing.T, kind ledger.BetKind, session, stake, odd string) *ledger.Wager {
	t.Helper()
	w := matchWager(t, kind, "", stake, odd)
	w.SessionName = session
	return w
}

func assertDec(t *testing.T, got decimal.Decimal, want string) {
	t.Helper()
	if !got.Equal(mustDec(t, want)) {
		t.Fatalf("got %s, want %s", got, want)
	}
}

func TestMatchExposureSingleBack(t *testing.T) {
	// Back 100 @ 1.86: winning pays 86, losing costs the stake.
	got := MatchExposure([]*ledger.Wager{
		matchWager(t, ledger.BetKindBack, "india", "100", "1.86"),
	})
	assertDec(t, got, "100")
}

func TestMatchExposureSingleLay(t *testing.T) {
	// Lay 100 @ 1.90: losing costs the liability 90.
	got := MatchExposure([]*ledger.Wager{
		matchWager(t, ledger.BetKindLay, "india", "100", "1.90"),
	})
	assertDec(t, got, "90")
}

func TestMatchExposureOffsettingBackAndLay(t *testing.T) {
	got := MatchExposure([]*ledger.Wager{
		matchWager(t, ledger.BetKindBack, "india", "100", "1.86"),
		matchWager(t, ledger.BetKindLay, "india", "100", "1.86"),
	})
	assertDec(t, got, "0")
}

func TestMatchExposureCrossAdjustment(t *testing.T) {
	// Back 1000 @ 2.0 and lay 500 @ 3.0 on the same side.
	// Side wins: +1000 - 1000 = 0. Side loses: +500 - 1000 = -500.
	got := MatchExposure([]*ledger.Wager{
		matchWager(t, ledger.BetKindBack, "india", "1000", "2.0"),
		matchWager(t, ledger.BetKindLay, "india", "500", "3.0"),
	})
	assertDec(t, got, "500")
}

func TestMatchExposureBackBothSidesAtShortOdds(t *testing.T) {
	// Backing every side below evens loses whoever wins:
	// winner pays 50, the other stake of 100 is gone.
	got := MatchExposure([]*ledger.Wager{
		matchWager(t, ledger.BetKindBack, "india", "100", "1.5"),
		matchWager(t, ledger.BetKindBack, "australia", "100", "1.5"),
	})
	assertDec(t, got, "50")
}

func TestMatchExposureBackBothSidesAboveEvens(t *testing.T) {
	got := MatchExposure([]*ledger.Wager{
		matchWager(t, ledger.BetKindBack, "india", "100", "2.5"),
		matchWager(t, ledger.BetKindBack, "australia", "100", "2.5"),
	})
	assertDec(t, got, "0")
}

func TestMatchExposureIgnoresSessionWagers(t *testing.T) {
	got := MatchExposure([]*ledger.Wager{
		sessionWager(t, ledger.BetKindYes, "6 over runs IND", "500", "45"),
		matchWager(t, ledger.BetKindBack, "india", "100", "1.86"),
	})
	assertDec(t, got, "100")
}

func TestMatchExposureEmpty(t *testing.T) {
	assertDec(t, MatchExposure(nil), "0")
}

func TestSessionExposureSingleSides(t *testing.T) {
	tests := []struct {
		name   string
		wagers []*ledger.Wager
		want   string
	}{
		{
			name: "single yes risks the stake",
			wagers: []*ledger.Wager{
				sessionWager(t, ledger.BetKindYes, "s", "250", "45"),
			},
			want: "250",
		},
		{
			name: "single no risks the stake",
			wagers: []*ledger.Wager{
				sessionWager(t, ledger.BetKindNo, "s", "250", "45"),
			},
			want: "250",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assertDec(t, SessionExposure(tc.wagers), tc.want)
		})
	}
}

func TestSessionExposureHedgedPair(t *testing.T) {
	// Yes at 45 and no at 50: any value from 45 to 49 wins both, values
	// outside win exactly one. No losing scenario, so equal stakes cancel.
	got := SessionExposure([]*ledger.Wager{
		sessionWager(t, ledger.BetKindYes, "s", "100", "45"),
		sessionWager(t, ledger.BetKindNo, "s", "100", "50"),
	})
	assertDec(t, got, "0")
}

func TestSessionExposurePartialHedge(t *testing.T) {
	got := SessionExposure([]*ledger.Wager{
		sessionWager(t, ledger.BetKindYes, "s", "100", "45"),
		sessionWager(t, ledger.BetKindNo, "s", "60", "50"),
	})
	assertDec(t, got, "40")
}

func TestSessionExposureInvertedThresholdsDoNotOffset(t *testing.T) {
	// Yes at 50 and no at 45: a value of 47 loses both. Nothing cancels.
	got := SessionExposure([]*ledger.Wager{
		sessionWager(t, ledger.BetKindYes, "s", "100", "50"),
		sessionWager(t, ledger.BetKindNo, "s", "100", "45"),
	})
	assertDec(t, got, "200")
}

func TestSessionExposureMultiLegOffset(t *testing.T) {
	// Offsetting walks yes thresholds ascending against no thresholds
	// descending: 100@40 and 20 of 50@48 cancel against the no 120@50,
	// leaving 30 of yes stake at risk.
	got := SessionExposure([]*ledger.Wager{
		sessionWager(t, ledger.BetKindYes, "s", "100", "40"),
		sessionWager(t, ledger.BetKindYes, "s", "50", "48"),
		sessionWager(t, ledger.BetKindNo, "s", "120", "50"),
	})
	assertDec(t, got, "30")
}

func TestForWagerSelectsSessionBook(t *testing.T) {
	target := sessionWager(t, ledger.BetKindYes, "6 over runs IND", "250", "45")
	confirmed := []*ledger.Wager{
		target,
		sessionWager(t, ledger.BetKindYes, "10 over runs IND", "999", "80"),
		matchWager(t, ledger.BetKindBack, "india", "100", "1.86"),
	}
	// Only the matching session contributes.
	assertDec(t, ForWager(target, confirmed), "250")
}

func TestForWagerSelectsMatchBook(t *testing.T) {
	target := matchWager(t, ledger.BetKindBack, "india", "100", "1.86")
	confirmed := []*ledger.Wager{
		target,
		matchWager(t, ledger.BetKindLay, "india", "100", "1.86"),
		sessionWager(t, ledger.BetKindYes, "6 over runs IND", "999", "45"),
	}
	assertDec(t, ForWager(target, confirmed), "0")
}
