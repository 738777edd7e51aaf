// Package settlement resolves confirmed wagers into balance movements once a
// match or session outcome is known, and can compensate a wrongly-declared
// outcome by reversing the recorded transactions.
package settlement

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BetLedger/internal/feed"
	"BetLedger/internal/ledger"
	"BetLedger/internal/observability"
	"BetLedger/internal/store"
)

// Config carries the settlement knobs.
type Config struct {
	// MaxDeletionAttempts finishes out a match the outcome feed has missed
	// more than this many consecutive times.
	MaxDeletionAttempts int
}

// Engine settles matches. All per-user mutations run inside the same
// per-user exclusive scope the admission pipeline uses, so a settlement
// racing a live confirmation for one user serializes.
type Engine struct {
	cfg      Config
	store    store.Store
	outcomes feed.OutcomeFeed
	locks    *ledger.UserLocks
	notifier ledger.StatusNotifier
	clock    feed.Clock
	metrics  *observability.Metrics
	log      zerolog.Logger
}

func New(
	cfg Config,
	st store.Store,
	outcomes feed.OutcomeFeed,
	locks *ledger.UserLocks,
	notifier ledger.StatusNotifier,
	clock feed.Clock,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    st,
		outcomes: outcomes,
		locks:    locks,
		notifier: notifier,
		clock:    clock,
		metrics:  metrics,
		log:      log,
	}
}

// SettleMatch runs one settlement pass for a match. Session groups settle as
// soon as their result is decided; the match-outcome group waits for a
// resolved winner ("no result yet" is a legitimate wait state, not an
// error). A per-user failure is logged and does not block other users.
// DistributionDone flips only when the winner is known and every user
// settled cleanly.
func (e *Engine) SettleMatch(ctx context.Context, matchKey string) error {
	m, err := e.store.GetMatch(ctx, matchKey)
	if err != nil {
		return ledger.WrapPersistence("load match", err)
	}
	if m == nil || m.DistributionDone || m.Finished {
		return nil
	}

	out, err := e.outcomes.MatchOutcome(ctx, matchKey)
	if err != nil {
		return err
	}
	if out.Gone {
		m.DeletionAttempts++
		if m.DeletionAttempts > e.cfg.MaxDeletionAttempts {
			m.Finished = true
			e.log.Warn().
				Str("match", matchKey).
				Int("attempts", m.DeletionAttempts).
				Msg("match gone from feed, finishing out")
		}
		return ledger.WrapPersistence("update match", e.store.UpsertMatch(ctx, m))
	}
	// Consecutive misses only.
	m.DeletionAttempts = 0

	confirmed, err := e.store.WagersByStatus(ctx, matchKey, ledger.WagerStatusConfirmed)
	if err != nil {
		return ledger.WrapPersistence("load wagers", err)
	}

	users := make([]uuid.UUID, 0)
	seen := make(map[uuid.UUID]bool)
	for _, w := range confirmed {
		if !seen[w.UserID] {
			seen[w.UserID] = true
			users = append(users, w.UserID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })

	clean := true
	remaining := false
	for _, userID := range users {
		userRemaining, err := e.settleUser(ctx, m, out, userID)
		if err != nil {
			clean = false
			e.log.Error().Err(err).
				Str("match", matchKey).
				Str("user", userID.String()).
				Msg("user settlement failed")
			if e.metrics != nil {
				e.metrics.SettlementUsers.WithLabelValues("error").Inc()
			}
			continue
		}
		if userRemaining {
			remaining = true
		}
		if e.metrics != nil {
			e.metrics.SettlementUsers.WithLabelValues("ok").Inc()
		}
	}

	if out.Winner == "" {
		m.LastKnownState = out.StateText
	}
	if out.Winner != "" && clean && !remaining {
		m.DistributionDone = true
		e.log.Info().Str("match", matchKey).Str("winner", out.Winner).Msg("match settled")
	}
	if err := e.store.UpsertMatch(ctx, m); err != nil {
		return ledger.WrapPersistence("update match", err)
	}

	if e.metrics != nil {
		result := "waiting"
		if m.DistributionDone {
			result = "done"
		} else if !clean {
			result = "partial"
		}
		e.metrics.SettlementRuns.WithLabelValues(result).Inc()
	}
	return nil
}

// settleUser settles one user's confirmed wagers on one match inside the
// per-user exclusive scope. Returns remaining=true when a group could not be
// settled yet (match winner or a session result still pending).
func (e *Engine) settleUser(ctx context.Context, m *ledger.Match, out *feed.Outcome, userID uuid.UUID) (remaining bool, err error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return false, err
	}
	// Re-read under the lock; the match-wide scan may be stale.
	wagers, err := e.store.UserWagersByStatus(ctx, userID, m.Key, ledger.WagerStatusConfirmed)
	if err != nil {
		return false, err
	}
	if len(wagers) == 0 {
		return false, nil
	}

	var (
		matchGroup []*ledger.Wager
		sessions   = make(map[string][]*ledger.Wager)
	)
	for _, w := range wagers {
		if w.IsSession() {
			sessions[w.SessionName] = append(sessions[w.SessionName], w)
		} else {
			matchGroup = append(matchGroup, w)
		}
	}
	sessionNames := make([]string, 0, len(sessions))
	for name := range sessions {
		sessionNames = append(sessionNames, name)
	}
	sort.Strings(sessionNames)

	balance := u.Balance
	statusByID := make(map[uuid.UUID]ledger.WagerStatus)
	var txns []*ledger.Transaction
	var deactivate []uuid.UUID
	released := decimal.Zero

	record := func(w *ledger.Wager, won bool, amount decimal.Decimal, remark string) {
		typ := ledger.TxTypeDebit
		status := ledger.WagerStatusLost
		if won {
			typ = ledger.TxTypeCredit
			status = ledger.WagerStatusWon
		}
		txn := &ledger.Transaction{
			ID:        uuid.New(),
			UserID:    userID,
			Type:      typ,
			Amount:    amount,
			Remark:    remark,
			Status:    ledger.TxStatusDone,
			CreatedAt: e.clock.Now(),
		}
		balance = txn.Apply(balance)
		txn.BalanceAfter = balance
		statusByID[w.ID] = status
		txns = append(txns, txn)
	}

	for _, name := range sessionNames {
		value, decided, err := e.outcomes.SessionResult(ctx, m.Key, name)
		if err != nil {
			return false, err
		}
		if !decided {
			remaining = true
			continue
		}
		for _, w := range sessions[name] {
			// Threshold is the wager's odd; payout is even-money.
			yesWins := value.GreaterThanOrEqual(w.Odd)
			won := (w.Kind == ledger.BetKindYes) == yesWins
			winKind := ledger.BetKindNo
			if yesWins {
				winKind = ledger.BetKindYes
			}
			record(w, won, w.Stake, ledger.EncodeRemark(m.Key, name, winKind.String()))
		}
		if row, err := e.store.ActiveExposure(ctx, userID, m.Key, name); err != nil {
			return false, err
		} else if row != nil {
			deactivate = append(deactivate, row.ID)
			released = released.Add(row.Amount)
		}
	}

	if len(matchGroup) > 0 {
		if out.Winner == "" {
			remaining = true
		} else {
			remark := ledger.EncodeRemark(m.Key, "match_odds", out.Winner)
			for _, w := range matchGroup {
				onWinner := w.Side == out.Winner
				switch {
				case w.Kind == ledger.BetKindBack && onWinner:
					record(w, true, w.BackProfit(), remark)
				case w.Kind == ledger.BetKindBack:
					record(w, false, w.Stake, remark)
				case w.Kind == ledger.BetKindLay && onWinner:
					record(w, false, w.BackProfit(), remark)
				default: // lay on a losing side keeps the stake
					record(w, true, w.Stake, remark)
				}
			}
			if row, err := e.store.ActiveExposure(ctx, userID, m.Key, ""); err != nil {
				return false, err
			} else if row != nil {
				deactivate = append(deactivate, row.ID)
				released = released.Add(row.Amount)
			}
		}
	}

	if len(statusByID) == 0 {
		return remaining, nil
	}

	exposure := u.Exposure.Sub(released)
	if exposure.IsNegative() {
		exposure = decimal.Zero
	}

	err = e.store.ApplySettlement(ctx, &store.UserSettlement{
		UserID:         userID,
		Transactions:   txns,
		WagerStatus:    statusByID,
		DeactivateRows: deactivate,
		Balance:        balance,
		Exposure:       exposure,
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.StoreErrors.WithLabelValues("settlement").Inc()
		}
		return false, err
	}

	for _, w := range wagers {
		status, ok := statusByID[w.ID]
		if !ok {
			continue
		}
		w.Status = status
		e.notifier.WagerStatus(ctx, w, "settled")
	}
	if e.metrics != nil {
		for _, t := range txns {
			e.metrics.SettlementPayouts.WithLabelValues(t.Type.String()).Inc()
		}
	}
	e.log.Info().
		Str("match", m.Key).
		Str("user", userID.String()).
		Int("wagers", len(statusByID)).
		Str("balance", balance.String()).
		Msg("user settled")
	return remaining, nil
}

// Correct compensates a wrongly-declared outcome: every done transaction
// recorded for the match is reversed (opposite balance effect, status flips
// to reversed), settled wagers return to Confirmed, and each user's exposure
// rows for the match are reactivated at their prior amounts. The match is
// reopened for re-settlement on the next scheduler pass.
func (e *Engine) Correct(ctx context.Context, matchKey string) error {
	m, err := e.store.GetMatch(ctx, matchKey)
	if err != nil {
		return ledger.WrapPersistence("load match", err)
	}
	if m == nil {
		return nil
	}

	txns, err := e.store.SettlementTransactions(ctx, matchKey)
	if err != nil {
		return ledger.WrapPersistence("load transactions", err)
	}
	won, err := e.store.WagersByStatus(ctx, matchKey, ledger.WagerStatusWon)
	if err != nil {
		return ledger.WrapPersistence("load wagers", err)
	}
	lost, err := e.store.WagersByStatus(ctx, matchKey, ledger.WagerStatusLost)
	if err != nil {
		return ledger.WrapPersistence("load wagers", err)
	}
	settled := append(won, lost...)

	txByUser := make(map[uuid.UUID][]*ledger.Transaction)
	for _, t := range txns {
		txByUser[t.UserID] = append(txByUser[t.UserID], t)
	}
	wagersByUser := make(map[uuid.UUID][]*ledger.Wager)
	for _, w := range settled {
		wagersByUser[w.UserID] = append(wagersByUser[w.UserID], w)
	}

	users := make([]uuid.UUID, 0, len(wagersByUser))
	seen := make(map[uuid.UUID]bool)
	for _, w := range settled {
		if !seen[w.UserID] {
			seen[w.UserID] = true
			users = append(users, w.UserID)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i].String() < users[j].String() })

	clean := true
	for _, userID := range users {
		if err := e.correctUser(ctx, matchKey, userID, txByUser[userID], wagersByUser[userID]); err != nil {
			clean = false
			e.log.Error().Err(err).
				Str("match", matchKey).
				Str("user", userID.String()).
				Msg("user correction failed")
		}
	}
	if !clean {
		return ledger.ErrSettlementConflict
	}

	m.DistributionDone = false
	if err := e.store.UpsertMatch(ctx, m); err != nil {
		return ledger.WrapPersistence("update match", err)
	}
	if e.metrics != nil {
		e.metrics.CorrectionsApplied.Inc()
	}
	e.log.Info().Str("match", matchKey).Int("users", len(users)).Msg("settlement corrected")
	return nil
}

func (e *Engine) correctUser(ctx context.Context, matchKey string, userID uuid.UUID, txns []*ledger.Transaction, wagers []*ledger.Wager) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	u, err := e.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}

	balance := u.Balance
	reverse := make([]uuid.UUID, 0, len(txns))
	for _, t := range txns {
		reverse = append(reverse, t.ID)
		undo := ledger.Transaction{Type: t.Type.Opposite(), Amount: t.Amount}
		balance = undo.Apply(balance)
	}

	statusByID := make(map[uuid.UUID]ledger.WagerStatus, len(wagers))
	keys := make(map[string]bool)
	for _, w := range wagers {
		statusByID[w.ID] = ledger.WagerStatusConfirmed
		keys[w.SessionName] = true
	}
	keyNames := make([]string, 0, len(keys))
	for k := range keys {
		keyNames = append(keyNames, k)
	}
	sort.Strings(keyNames)

	restored := decimal.Zero
	var reactivate []uuid.UUID
	for _, session := range keyNames {
		// Never introduce a second active row for a key.
		if active, err := e.store.ActiveExposure(ctx, userID, matchKey, session); err != nil {
			return err
		} else if active != nil {
			continue
		}
		row, err := e.store.InactiveExposure(ctx, userID, matchKey, session)
		if err != nil {
			return err
		}
		if row != nil {
			reactivate = append(reactivate, row.ID)
			restored = restored.Add(row.Amount)
		}
	}

	err = e.store.ApplyCorrection(ctx, &store.UserCorrection{
		UserID:         userID,
		ReverseTxIDs:   reverse,
		WagerStatus:    statusByID,
		ReactivateRows: reactivate,
		Balance:        balance,
		Exposure:       u.Exposure.Add(restored),
	})
	if err != nil {
		if e.metrics != nil {
			e.metrics.StoreErrors.WithLabelValues("correction").Inc()
		}
		return err
	}

	for _, w := range wagers {
		w.Status = ledger.WagerStatusConfirmed
		e.notifier.WagerStatus(ctx, w, "settlement corrected")
	}
	return nil
}
