package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BetLedger/internal/ledger"
	"BetLedger/internal/observability"
	"BetLedger/internal/testutil"
)

// Exercises the full confirmation/settlement/correction round trip against a
// real Postgres. Skipped unless a test database is reachable.
func TestPostgresRoundTrip(t *testing.T) {
	testutil.RequireIntegration(t)
	db, cleanup := testutil.SetupTestDB(t)
	t.Cleanup(cleanup)
	ctx := context.Background()

	migrator := NewMigrator(db, "../../migrations", observability.NewLogger("test"))
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	s := NewPostgresStore(db)

	u := &ledger.User{ID: uuid.New(), Balance: decimal.NewFromInt(1000), Exposure: decimal.Zero}
	if err := s.CreateUser(ctx, u); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertMatch(ctx, &ledger.Match{Key: "it-match"}); err != nil {
		t.Fatal(err)
	}

	w := &ledger.Wager{
		ID:       uuid.New(),
		UserID:   u.ID,
		MatchKey: "it-match",
		Side:     "india",
		Kind:     ledger.BetKindBack,
		Stake:    decimal.NewFromInt(100),
		Odd:      decimal.RequireFromString("1.80"),
		Status:   ledger.WagerStatusPending,
		PlacedAt: time.Now().UTC(),
	}
	if err := s.CreateWager(ctx, w); err != nil {
		t.Fatal(err)
	}

	// Confirmation at improved odds.
	row := &ledger.ExposureRow{
		ID:       uuid.New(),
		UserID:   u.ID,
		MatchKey: "it-match",
		Amount:   decimal.NewFromInt(100),
		Active:   true,
	}
	confirmed := *w
	confirmed.Odd = decimal.RequireFromString("1.86")
	err := s.ApplyConfirmation(ctx, &Confirmation{
		Wager:        &confirmed,
		Exposure:     row,
		UserExposure: decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatal(err)
	}

	stored, err := s.GetWager(ctx, w.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != ledger.WagerStatusConfirmed || !stored.Odd.Equal(confirmed.Odd) {
		t.Fatalf("wager = %+v", stored)
	}

	// A second confirmation for the same pending wager must fail.
	if err := s.ApplyConfirmation(ctx, &Confirmation{
		Wager: &confirmed,
		Exposure: &ledger.ExposureRow{
			ID: uuid.New(), UserID: u.ID, MatchKey: "other", Amount: decimal.Zero, Active: true,
		},
		UserExposure: decimal.NewFromInt(100),
	}); err == nil {
		t.Fatal("expected conflict on double confirmation")
	}

	// Settlement.
	txn := &ledger.Transaction{
		ID:           uuid.New(),
		UserID:       u.ID,
		Type:         ledger.TxTypeCredit,
		Amount:       decimal.NewFromInt(86),
		Remark:       ledger.EncodeRemark("it-match", "match_odds", "india"),
		Status:       ledger.TxStatusDone,
		BalanceAfter: decimal.NewFromInt(1086),
		CreatedAt:    time.Now().UTC(),
	}
	err = s.ApplySettlement(ctx, &UserSettlement{
		UserID:         u.ID,
		Transactions:   []*ledger.Transaction{txn},
		WagerStatus:    map[uuid.UUID]ledger.WagerStatus{w.ID: ledger.WagerStatusWon},
		DeactivateRows: []uuid.UUID{row.ID},
		Balance:        decimal.NewFromInt(1086),
		Exposure:       decimal.Zero,
	})
	if err != nil {
		t.Fatal(err)
	}

	inactive, err := s.InactiveExposure(ctx, u.ID, "it-match", "")
	if err != nil {
		t.Fatal(err)
	}
	if inactive == nil || inactive.ID != row.ID {
		t.Fatalf("inactive row = %+v", inactive)
	}

	// Correction restores the pre-settlement state.
	err = s.ApplyCorrection(ctx, &UserCorrection{
		UserID:         u.ID,
		ReverseTxIDs:   []uuid.UUID{txn.ID},
		WagerStatus:    map[uuid.UUID]ledger.WagerStatus{w.ID: ledger.WagerStatusConfirmed},
		ReactivateRows: []uuid.UUID{row.ID},
		Balance:        decimal.NewFromInt(1000),
		Exposure:       decimal.NewFromInt(100),
	})
	if err != nil {
		t.Fatal(err)
	}

	restored, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !restored.Balance.Equal(decimal.NewFromInt(1000)) || !restored.Exposure.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("user = %+v", restored)
	}
	txns, err := s.SettlementTransactions(ctx, "it-match")
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 0 {
		t.Fatalf("reversed transactions leaked: %v", txns)
	}
}
