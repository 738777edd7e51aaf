package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"BetLedger/internal/ledger"
)

func seedUser(t *testing.T, s *MemoryStore, balance int64) *ledger.User {
	t.Helper()
	u := &ledger.User{
		ID:       uuid.New(),
		Balance:  decimal.NewFromInt(balance),
		Exposure: decimal.Zero,
	}
	if err := s.CreateUser(context.Background(), u); err != nil {
		t.Fatal(err)
	}
	return u
}

func seedWager(t *testing.T, s *MemoryStore, userID uuid.UUID, matchKey string) *ledger.Wager {
	t.Helper()
	w := &ledger.Wager{
		ID:       uuid.New(),
		UserID:   userID,
		MatchKey: matchKey,
		Side:     "india",
		Kind:     ledger.BetKindBack,
		Stake:    decimal.NewFromInt(100),
		Odd:      decimal.RequireFromString("1.86"),
		Status:   ledger.WagerStatusPending,
		PlacedAt: time.Now(),
	}
	if err := s.CreateWager(context.Background(), w); err != nil {
		t.Fatal(err)
	}
	return w
}

func confirmWager(t *testing.T, s *MemoryStore, w *ledger.Wager, amount int64) *ledger.ExposureRow {
	t.Helper()
	ctx := context.Background()

	prior, err := s.ActiveExposure(ctx, w.UserID, w.MatchKey, w.SessionName)
	if err != nil {
		t.Fatal(err)
	}
	var replace *uuid.UUID
	if prior != nil {
		replace = &prior.ID
	}

	row := &ledger.ExposureRow{
		ID:          uuid.New(),
		UserID:      w.UserID,
		MatchKey:    w.MatchKey,
		SessionName: w.SessionName,
		Amount:      decimal.NewFromInt(amount),
		Active:      true,
	}
	err = s.ApplyConfirmation(ctx, &Confirmation{
		Wager:        w,
		Exposure:     row,
		ReplaceRowID: replace,
		UserExposure: decimal.NewFromInt(amount),
	})
	if err != nil {
		t.Fatal(err)
	}
	return row
}

func TestPendingWagersListsOnlyPending(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := seedUser(t, s, 1000)

	first := seedWager(t, s, u.ID, "m1")
	second := seedWager(t, s, u.ID, "m2")
	confirmWager(t, s, second, 100)

	pending, err := s.PendingWagers(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].ID != first.ID {
		t.Fatalf("pending = %v, want only wager %s", pending, first.ID)
	}
}

func TestCreateUserRejectsDuplicate(t *testing.T) {
	s := NewMemoryStore()
	u := seedUser(t, s, 1000)
	if err := s.CreateUser(context.Background(), u); err == nil {
		t.Fatal("expected duplicate user error")
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := NewMemoryStore()
	if _, err := s.GetUser(context.Background(), uuid.New()); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestGetMatchUnknownIsNil(t *testing.T) {
	s := NewMemoryStore()
	m, err := s.GetMatch(context.Background(), "no-such-match")
	if err != nil || m != nil {
		t.Fatalf("m=%v err=%v, want nil,nil", m, err)
	}
}

func TestUnsettledMatchesFiltersConcluded(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	for _, m := range []*ledger.Match{
		{Key: "a-open"},
		{Key: "b-done", DistributionDone: true},
		{Key: "c-finished", Finished: true},
		{Key: "d-open"},
	} {
		if err := s.UpsertMatch(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	open, err := s.UnsettledMatches(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(open) != 2 || open[0].Key != "a-open" || open[1].Key != "d-open" {
		t.Fatalf("open = %v", open)
	}
}

func TestUpdateWagerStatusEnforcesTransitions(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := seedUser(t, s, 1000)
	w := seedWager(t, s, u.ID, "m1")

	if err := s.UpdateWagerStatus(ctx, w.ID, ledger.WagerStatusWon); err == nil {
		t.Fatal("pending -> won must be rejected")
	}
	if err := s.UpdateWagerStatus(ctx, w.ID, ledger.WagerStatusCancelled); err != nil {
		t.Fatal(err)
	}
	if err := s.UpdateWagerStatus(ctx, w.ID, ledger.WagerStatusConfirmed); err == nil {
		t.Fatal("cancelled is terminal")
	}
}

func TestApplyConfirmationReplacesActiveRow(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := seedUser(t, s, 1000)

	w1 := seedWager(t, s, u.ID, "m1")
	first := confirmWager(t, s, w1, 100)

	w2 := seedWager(t, s, u.ID, "m1")
	second := confirmWager(t, s, w2, 150)

	active, err := s.ActiveExposure(ctx, u.ID, "m1", "")
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.ID != second.ID {
		t.Fatalf("active row = %v, want %s", active, second.ID)
	}

	rows, err := s.ExposureRows(ctx, []uuid.UUID{first.ID})
	if err != nil {
		t.Fatal(err)
	}
	if rows[0].Active {
		t.Fatal("replaced row must be soft-deleted")
	}

	got, err := s.GetUser(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Exposure.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("exposure = %s", got.Exposure)
	}
}

func TestInactiveExposureReturnsMostRecent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := seedUser(t, s, 1000)

	w1 := seedWager(t, s, u.ID, "m1")
	first := confirmWager(t, s, w1, 100)
	w2 := seedWager(t, s, u.ID, "m1")
	second := confirmWager(t, s, w2, 150)

	err := s.ApplySettlement(ctx, &UserSettlement{
		UserID:         u.ID,
		WagerStatus:    map[uuid.UUID]ledger.WagerStatus{w1.ID: ledger.WagerStatusWon, w2.ID: ledger.WagerStatusWon},
		DeactivateRows: []uuid.UUID{second.ID},
		Balance:        decimal.NewFromInt(1172),
		Exposure:       decimal.Zero,
	})
	if err != nil {
		t.Fatal(err)
	}

	inactive, err := s.InactiveExposure(ctx, u.ID, "m1", "")
	if err != nil {
		t.Fatal(err)
	}
	if inactive == nil || inactive.ID != second.ID {
		t.Fatalf("inactive = %v, want most recent row %s (not %s)", inactive, second.ID, first.ID)
	}
}

func TestApplySettlementWritesTransactionsAndBalances(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := seedUser(t, s, 1000)
	w := seedWager(t, s, u.ID, "m1")
	row := confirmWager(t, s, w, 100)

	txn := &ledger.Transaction{
		ID:           uuid.New(),
		UserID:       u.ID,
		Type:         ledger.TxTypeCredit,
		Amount:       decimal.NewFromInt(86),
		Remark:       ledger.EncodeRemark("m1", "match_odds", "india"),
		Status:       ledger.TxStatusDone,
		BalanceAfter: decimal.NewFromInt(1086),
		CreatedAt:    time.Now(),
	}
	err := s.ApplySettlement(ctx, &UserSettlement{
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

	got, _ := s.GetUser(ctx, u.ID)
	if !got.Balance.Equal(decimal.NewFromInt(1086)) || !got.Exposure.IsZero() {
		t.Fatalf("user = %+v", got)
	}

	settled, _ := s.GetWager(ctx, w.ID)
	if settled.Status != ledger.WagerStatusWon {
		t.Fatalf("status = %v", settled.Status)
	}

	txns, err := s.SettlementTransactions(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 1 || txns[0].ID != txn.ID {
		t.Fatalf("txns = %v", txns)
	}
}

func TestSettlementTransactionsExcludeReversed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := seedUser(t, s, 1000)
	w := seedWager(t, s, u.ID, "m1")
	row := confirmWager(t, s, w, 100)

	txn := &ledger.Transaction{
		ID:           uuid.New(),
		UserID:       u.ID,
		Type:         ledger.TxTypeCredit,
		Amount:       decimal.NewFromInt(86),
		Remark:       ledger.EncodeRemark("m1", "match_odds", "india"),
		Status:       ledger.TxStatusDone,
		BalanceAfter: decimal.NewFromInt(1086),
		CreatedAt:    time.Now(),
	}
	if err := s.ApplySettlement(ctx, &UserSettlement{
		UserID:         u.ID,
		Transactions:   []*ledger.Transaction{txn},
		WagerStatus:    map[uuid.UUID]ledger.WagerStatus{w.ID: ledger.WagerStatusWon},
		DeactivateRows: []uuid.UUID{row.ID},
		Balance:        decimal.NewFromInt(1086),
		Exposure:       decimal.Zero,
	}); err != nil {
		t.Fatal(err)
	}

	if err := s.ApplyCorrection(ctx, &UserCorrection{
		UserID:         u.ID,
		ReverseTxIDs:   []uuid.UUID{txn.ID},
		WagerStatus:    map[uuid.UUID]ledger.WagerStatus{w.ID: ledger.WagerStatusConfirmed},
		ReactivateRows: []uuid.UUID{row.ID},
		Balance:        decimal.NewFromInt(1000),
		Exposure:       decimal.NewFromInt(100),
	}); err != nil {
		t.Fatal(err)
	}

	txns, err := s.SettlementTransactions(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(txns) != 0 {
		t.Fatalf("reversed transactions must not be returned, got %v", txns)
	}

	// The reversed row is still visible in the user history.
	history, err := s.UserTransactions(ctx, u.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(history) != 1 || history[0].Status != ledger.TxStatusReversed {
		t.Fatalf("history = %v", history)
	}

	restored, _ := s.GetUser(ctx, u.ID)
	if !restored.Balance.Equal(decimal.NewFromInt(1000)) || !restored.Exposure.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("user = %+v", restored)
	}

	active, err := s.ActiveExposure(ctx, u.ID, "m1", "")
	if err != nil {
		t.Fatal(err)
	}
	if active == nil || active.ID != row.ID {
		t.Fatal("exposure row must be reactivated")
	}
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	u := seedUser(t, s, 1000)

	got, _ := s.GetUser(ctx, u.ID)
	got.Balance = decimal.Zero

	again, _ := s.GetUser(ctx, u.ID)
	if !again.Balance.Equal(decimal.NewFromInt(1000)) {
		t.Fatal("mutating a returned user must not affect the store")
	}
}
