// Package admission validates incoming wagers against live odds and decides
// confirm/reject. Submission returns as soon as the validation gate passes;
// the price check, funds gate and persistence run on a background worker
// pool and the final status is observed through the notification channel.
package admission

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"BetLedger/internal/exposure"
	"BetLedger/internal/feed"
	"BetLedger/internal/ledger"
	"BetLedger/internal/observability"
	"BetLedger/internal/store"
)

// Config carries the admission knobs.
type Config struct {
	// MinStake rejects dust wagers at the validation gate.
	MinStake decimal.Decimal
	// SettleDelay lets an in-flight odds update land before the snapshot is
	// read. A scheduling point only: no lock is held while waiting.
	SettleDelay time.Duration
	// OddsMaxAge cancels wagers whose odds snapshot is older than this.
	// Zero disables the check.
	OddsMaxAge time.Duration
	// MaxDeletionAttempts is the liveness heuristic: a match the outcome
	// feed has missed more often than this is treated as concluded.
	MaxDeletionAttempts int
	// Workers and QueueSize shape the confirmation worker pool.
	Workers   int
	QueueSize int
}

// Pipeline is the admission pipeline.
type Pipeline struct {
	cfg      Config
	store    store.Store
	odds     feed.OddsFeed
	outcomes feed.OutcomeFeed
	locks    *ledger.UserLocks
	notifier ledger.StatusNotifier
	clock    feed.Clock
	metrics  *observability.Metrics
	log      zerolog.Logger

	queue chan uuid.UUID
	wg    sync.WaitGroup
}

func New(
	cfg Config,
	st store.Store,
	odds feed.OddsFeed,
	outcomes feed.OutcomeFeed,
	locks *ledger.UserLocks,
	notifier ledger.StatusNotifier,
	clock feed.Clock,
	metrics *observability.Metrics,
	log zerolog.Logger,
) *Pipeline {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		odds:     odds,
		outcomes: outcomes,
		locks:    locks,
		notifier: notifier,
		clock:    clock,
		metrics:  metrics,
		log:      log,
		queue:    make(chan uuid.UUID, cfg.QueueSize),
	}
}

// Run starts the confirmation workers and blocks until ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context) error {
	for i := 0; i < p.cfg.Workers; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case id := <-p.queue:
					if p.metrics != nil {
						p.metrics.ConfirmQueueDepth.Set(float64(len(p.queue)))
					}
					p.confirm(ctx, id)
				}
			}
		}()
	}
	p.wg.Wait()
	return ctx.Err()
}

// Recover re-enqueues every wager a previous process left in Pending, so a
// stop between submission and confirmation never strands a wager without a
// terminal status. Called at startup once the workers are running; a wager
// that was confirmed or cancelled in the meantime is skipped by confirm.
func (p *Pipeline) Recover(ctx context.Context) error {
	pending, err := p.store.PendingWagers(ctx)
	if err != nil {
		return ledger.WrapPersistence("load pending wagers", err)
	}
	for _, w := range pending {
		select {
		case p.queue <- w.ID:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if len(pending) > 0 {
		p.log.Info().Int("wagers", len(pending)).Msg("re-enqueued wagers pending confirmation")
	}
	return nil
}

// Submit runs the fail-fast validation gate and, on pass, persists the
// wager as Pending and enqueues it for async confirmation. Validation
// failures persist the wager as Cancelled (the ledger keeps every
// submission), notify, and return a ValidationError. No exposure or balance
// state is touched either way.
func (p *Pipeline) Submit(ctx context.Context, w *ledger.Wager) error {
	if w.ID == uuid.Nil {
		w.ID = uuid.New()
	}
	w.PlacedAt = p.clock.Now()

	if reason := p.validate(ctx, w); reason != "" {
		w.Status = ledger.WagerStatusCancelled
		if err := p.store.CreateWager(ctx, w); err != nil {
			return ledger.WrapPersistence("create wager", err)
		}
		p.notifier.WagerStatus(ctx, w, reason)
		if p.metrics != nil {
			p.metrics.WagersCancelled.WithLabelValues("validation").Inc()
		}
		p.log.Info().
			Str("wager", w.ID.String()).
			Str("user", w.UserID.String()).
			Str("reason", reason).
			Msg("wager rejected")
		return ledger.NewValidationError("%s", reason)
	}

	w.Status = ledger.WagerStatusPending
	if err := p.store.CreateWager(ctx, w); err != nil {
		return ledger.WrapPersistence("create wager", err)
	}
	if p.metrics != nil {
		p.metrics.WagersSubmitted.WithLabelValues(w.Kind.String()).Inc()
	}

	select {
	case p.queue <- w.ID:
	case <-ctx.Done():
		return ctx.Err()
	}
	if p.metrics != nil {
		p.metrics.ConfirmQueueDepth.Set(float64(len(p.queue)))
	}
	return nil
}

// validate returns a rejection reason, or "" when the wager may proceed.
func (p *Pipeline) validate(ctx context.Context, w *ledger.Wager) string {
	if w.Odd.IsZero() || w.Odd.LessThanOrEqual(decimal.NewFromInt(1)) {
		return "odds must not be null/invalid"
	}
	if w.Stake.LessThan(p.cfg.MinStake) {
		return "stake below minimum"
	}
	if w.Kind.IsSessionKind() != w.IsSession() {
		return "bet kind does not match market"
	}

	m, err := p.store.GetMatch(ctx, w.MatchKey)
	if err != nil {
		return "market unavailable"
	}
	if m == nil {
		// First wager observed for a live match.
		m = &ledger.Match{Key: w.MatchKey}
		if err := p.store.UpsertMatch(ctx, m); err != nil {
			return "market unavailable"
		}
	}
	if m.Finished || m.DistributionDone || m.DeletionAttempts > p.cfg.MaxDeletionAttempts {
		return "market already concluded"
	}

	if w.IsSession() {
		_, decided, err := p.outcomes.SessionResult(ctx, w.MatchKey, w.SessionName)
		if err == nil && decided {
			return "session already settled"
		}
	}
	return ""
}

// confirm executes the async confirmation step for one pending wager.
func (p *Pipeline) confirm(ctx context.Context, id uuid.UUID) {
	// Let an in-flight odds update settle. No lock is held here.
	if p.cfg.SettleDelay > 0 {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.cfg.SettleDelay):
		}
	}

	w, err := p.store.GetWager(ctx, id)
	if err != nil {
		p.log.Error().Err(err).Str("wager", id.String()).Msg("confirm: load wager")
		return
	}
	if w.Status != ledger.WagerStatusPending {
		return
	}

	confirmOdd, reason := p.priceCheck(ctx, w)
	if reason != "" {
		p.cancel(ctx, w, reason, "odds")
		return
	}

	if err := p.applyConfirmation(ctx, w, confirmOdd); err != nil {
		return
	}

	if p.metrics != nil {
		p.metrics.WagersConfirmed.WithLabelValues(w.Kind.String()).Inc()
		p.metrics.ConfirmDuration.Observe(p.clock.Now().Sub(w.PlacedAt).Seconds())
		if !confirmOdd.Equal(w.Odd) {
			p.metrics.PriceImprovements.Inc()
		}
	}
}

// priceCheck fetches the odds snapshot and applies the monotonic acceptance
// rule for the wager's market shape. It returns the odds to confirm at
// (price improvement, never price worsening) or a cancellation reason.
func (p *Pipeline) priceCheck(ctx context.Context, w *ledger.Wager) (decimal.Decimal, string) {
	if w.IsSession() {
		quote, err := p.odds.SessionOdds(ctx, w.MatchKey, w.SessionName)
		if err != nil || quote == nil {
			return decimal.Zero, "session odds unavailable"
		}
		if p.stale(quote.Timestamp) {
			p.log.Warn().Err(ledger.ErrStaleOdds).
				Str("match", w.MatchKey).Str("session", w.SessionName).
				Time("quoted_at", quote.Timestamp).Msg("session quote rejected")
			return decimal.Zero, "session odds stale"
		}
		return p.monotonic(w, quote.Back, quote.Lay)
	}

	snap, err := p.odds.LiveOdds(ctx, w.MatchKey)
	if err != nil || snap == nil {
		return decimal.Zero, "odds unavailable"
	}
	if p.stale(snap.Timestamp) {
		p.log.Warn().Err(ledger.ErrStaleOdds).
			Str("match", w.MatchKey).
			Time("quoted_at", snap.Timestamp).Msg("odds snapshot rejected")
		return decimal.Zero, "odds stale"
	}
	back, lay, ok := snap.SideOdds(w.Side)
	if !ok {
		return decimal.Zero, "no odds quoted for side"
	}
	return p.monotonic(w, back, lay)
}

// monotonic applies the acceptance rule: a back/yes wager is accepted only
// if requested <= live back, and confirms at the live back. A lay/no wager
// is accepted only if requested >= live lay, confirming at the live lay.
// The confirmed price is never worse than requested.
func (p *Pipeline) monotonic(w *ledger.Wager, liveBack, liveLay decimal.Decimal) (decimal.Decimal, string) {
	switch w.Kind {
	case ledger.BetKindBack, ledger.BetKindYes:
		if liveBack.LessThanOrEqual(decimal.NewFromInt(1)) {
			return decimal.Zero, "no odds quoted for side"
		}
		if w.Odd.GreaterThan(liveBack) {
			return decimal.Zero, "requested odds above market"
		}
		return liveBack, ""
	case ledger.BetKindLay, ledger.BetKindNo:
		if liveLay.LessThanOrEqual(decimal.NewFromInt(1)) {
			return decimal.Zero, "no odds quoted for side"
		}
		if w.Odd.LessThan(liveLay) {
			return decimal.Zero, "requested odds below market"
		}
		return liveLay, ""
	default:
		return decimal.Zero, "unknown bet kind"
	}
}

func (p *Pipeline) stale(ts time.Time) bool {
	if p.cfg.OddsMaxAge <= 0 {
		return false
	}
	return p.clock.Now().Sub(ts) > p.cfg.OddsMaxAge
}

// applyConfirmation recomputes the user's exposure with the candidate wager
// included and persists the confirmation, all inside the per-user exclusive
// scope, so a concurrent wager or settlement for the same user serializes
// against it.
func (p *Pipeline) applyConfirmation(ctx context.Context, w *ledger.Wager, confirmOdd decimal.Decimal) error {
	unlock := p.locks.Lock(w.UserID)
	defer unlock()

	start := p.clock.Now()

	u, err := p.store.GetUser(ctx, w.UserID)
	if err != nil {
		p.log.Error().Err(err).Str("user", w.UserID.String()).Msg("confirm: load user")
		p.cancel(ctx, w, "user unavailable", "store")
		return err
	}

	confirmed, err := p.store.UserWagersByStatus(ctx, w.UserID, w.MatchKey, ledger.WagerStatusConfirmed)
	if err != nil {
		p.cancel(ctx, w, "ledger unavailable", "store")
		return err
	}

	candidate := *w
	candidate.Odd = confirmOdd
	keyExposure := exposure.ForWager(&candidate, append(confirmed, &candidate))

	if p.metrics != nil {
		p.metrics.ExposureRecomputeDur.Observe(p.clock.Now().Sub(start).Seconds())
	}

	prior, err := p.store.ActiveExposure(ctx, w.UserID, w.MatchKey, w.SessionName)
	if err != nil {
		p.cancel(ctx, w, "ledger unavailable", "store")
		return err
	}
	priorAmount := decimal.Zero
	var replaceRowID *uuid.UUID
	if prior != nil {
		priorAmount = prior.Amount
		replaceRowID = &prior.ID
	}

	delta := keyExposure.Sub(priorAmount)
	if delta.GreaterThan(u.Headroom()) {
		p.cancel(ctx, w, "insufficient balance for exposure", "insufficient_funds")
		return ledger.ErrInsufficientFunds
	}

	conf := &store.Confirmation{
		Wager: &candidate,
		Exposure: &ledger.ExposureRow{
			ID:          uuid.New(),
			UserID:      w.UserID,
			MatchKey:    w.MatchKey,
			SessionName: w.SessionName,
			Amount:      keyExposure,
			Active:      true,
		},
		ReplaceRowID: replaceRowID,
		UserExposure: u.Exposure.Add(delta),
	}
	if err := p.store.ApplyConfirmation(ctx, conf); err != nil {
		p.log.Error().Err(err).Str("wager", w.ID.String()).Msg("confirm: persist")
		if p.metrics != nil {
			p.metrics.StoreErrors.WithLabelValues("confirmation").Inc()
		}
		p.cancel(ctx, w, "ledger write failed", "store")
		return err
	}

	candidate.Status = ledger.WagerStatusConfirmed
	p.notifier.WagerStatus(ctx, &candidate, "")
	p.log.Info().
		Str("wager", w.ID.String()).
		Str("user", w.UserID.String()).
		Str("match", w.MatchKey).
		Str("odd", confirmOdd.String()).
		Str("exposure", keyExposure.String()).
		Msg("wager confirmed")
	return nil
}

// cancel transitions the wager to Cancelled and notifies. Expected
// rejections (stale odds, price moved, insufficient funds) are logged at
// info; they are communicated via wager status, not errors.
func (p *Pipeline) cancel(ctx context.Context, w *ledger.Wager, reason, label string) {
	if err := p.store.UpdateWagerStatus(ctx, w.ID, ledger.WagerStatusCancelled); err != nil {
		p.log.Error().Err(err).Str("wager", w.ID.String()).Msg("cancel: persist")
		return
	}
	w.Status = ledger.WagerStatusCancelled
	p.notifier.WagerStatus(ctx, w, reason)
	if p.metrics != nil {
		p.metrics.WagersCancelled.WithLabelValues(label).Inc()
	}
	p.log.Info().
		Str("wager", w.ID.String()).
		Str("user", w.UserID.String()).
		Str("reason", reason).
		Msg("wager cancelled")
}
