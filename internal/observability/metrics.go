package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for BetLedger.
type Metrics struct {
	// --- Admission ---
	WagersSubmitted   *prometheus.CounterVec
	WagersConfirmed   *prometheus.CounterVec
	WagersCancelled   *prometheus.CounterVec
	ConfirmDuration   prometheus.Histogram
	ConfirmQueueDepth prometheus.Gauge
	PriceImprovements prometheus.Counter

	// --- Exposure ---
	ExposureRecomputeDur prometheus.Histogram

	// --- Settlement ---
	SettlementRuns     *prometheus.CounterVec
	SettlementUsers    *prometheus.CounterVec
	SettlementPayouts  *prometheus.CounterVec
	CorrectionsApplied prometheus.Counter

	// --- Scheduler ---
	SchedulerTicks   prometheus.Counter
	SchedulerSkipped prometheus.Counter

	// --- Notifications ---
	NotifyPublished prometheus.Counter
	NotifyFailures  prometheus.Counter

	// --- Store ---
	StoreErrors *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	confirmBuckets := []float64{
		0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10,
	}

	return &Metrics{
		WagersSubmitted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_wagers_submitted_total",
			Help: "Wagers accepted by the validation gate",
		}, []string{"kind"}),

		WagersConfirmed: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_wagers_confirmed_total",
			Help: "Wagers confirmed against live odds",
		}, []string{"kind"}),

		WagersCancelled: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_wagers_cancelled_total",
			Help: "Wagers cancelled (validation, stale odds, price, funds)",
		}, []string{"reason"}),

		ConfirmDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "betledger_confirm_duration_seconds",
			Help:    "Submit-to-confirmed/cancelled latency including settle delay",
			Buckets: confirmBuckets,
		}),

		ConfirmQueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "betledger_confirm_queue_depth",
			Help: "Wagers waiting for async confirmation",
		}),

		PriceImprovements: promauto.NewCounter(prometheus.CounterOpts{
			Name: "betledger_price_improvements_total",
			Help: "Wagers confirmed at better-than-requested odds",
		}),

		ExposureRecomputeDur: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "betledger_exposure_recompute_duration_seconds",
			Help:    "Time to recompute a user's market exposure",
			Buckets: prometheus.DefBuckets,
		}),

		SettlementRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_settlement_runs_total",
			Help: "Settlement engine passes per match",
		}, []string{"result"}),

		SettlementUsers: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_settlement_users_total",
			Help: "Per-user settlement outcomes",
		}, []string{"result"}),

		SettlementPayouts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_settlement_payouts_total",
			Help: "Ledger transactions written by settlement",
		}, []string{"type"}),

		CorrectionsApplied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "betledger_corrections_applied_total",
			Help: "Settlement corrections (compensating reversals)",
		}),

		SchedulerTicks: promauto.NewCounter(prometheus.CounterOpts{
			Name: "betledger_scheduler_ticks_total",
			Help: "Reconciliation scheduler passes",
		}),

		SchedulerSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "betledger_scheduler_skipped_total",
			Help: "Matches skipped because a settlement run was in flight",
		}),

		NotifyPublished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "betledger_notifications_published_total",
			Help: "Wager status notifications published",
		}),

		NotifyFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "betledger_notifications_failed_total",
			Help: "Wager status notifications that failed to publish",
		}),

		StoreErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "betledger_store_errors_total",
			Help: "Ledger store write failures by operation",
		}, []string{"op"}),
	}
}
