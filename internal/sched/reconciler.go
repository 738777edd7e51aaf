// Package sched drives settlement: a fixed-interval scan over unsettled
// matches, each handed to the settlement engine at most once at a time.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"BetLedger/internal/observability"
	"BetLedger/internal/store"
)

// Settler is the slice of the settlement engine the scheduler drives.
type Settler interface {
	SettleMatch(ctx context.Context, matchKey string) error
}

// Config carries the scheduler knobs.
type Config struct {
	// Interval between reconciliation passes.
	Interval time.Duration
}

// Reconciler periodically scans matches with pending settlement. An in-flight
// set guarantees no overlapping settlement runs for the same match; a failure
// on one match never aborts the scan of the rest.
type Reconciler struct {
	cfg     Config
	store   store.Store
	settler Settler
	metrics *observability.Metrics
	log     zerolog.Logger

	mu       sync.Mutex
	inFlight map[string]bool
	wg       sync.WaitGroup
}

func New(cfg Config, st store.Store, settler Settler, metrics *observability.Metrics, log zerolog.Logger) *Reconciler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Reconciler{
		cfg:      cfg,
		store:    st,
		settler:  settler,
		metrics:  metrics,
		log:      log,
		inFlight: make(map[string]bool),
	}
}

// Run ticks until ctx is cancelled, then waits for in-flight settlements to
// drain.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.wg.Wait()
			return ctx.Err()
		case <-ticker.C:
			r.Tick(ctx)
		}
	}
}

// Tick runs one reconciliation pass. Settlements run concurrently per match;
// Tick returns without waiting for them.
func (r *Reconciler) Tick(ctx context.Context) {
	if r.metrics != nil {
		r.metrics.SchedulerTicks.Inc()
	}

	matches, err := r.store.UnsettledMatches(ctx)
	if err != nil {
		r.log.Error().Err(err).Msg("load unsettled matches")
		return
	}

	for _, m := range matches {
		if !r.claim(m.Key) {
			if r.metrics != nil {
				r.metrics.SchedulerSkipped.Inc()
			}
			continue
		}
		r.wg.Add(1)
		go func(key string) {
			defer r.wg.Done()
			defer r.release(key)
			if err := r.settler.SettleMatch(ctx, key); err != nil {
				r.log.Error().Err(err).Str("match", key).Msg("settlement pass failed")
			}
		}(m.Key)
	}
}

// Wait blocks until all in-flight settlements finish. Used by tests and
// shutdown.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

func (r *Reconciler) claim(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inFlight[key] {
		return false
	}
	r.inFlight[key] = true
	return true
}

func (r *Reconciler) release(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.inFlight, key)
}
