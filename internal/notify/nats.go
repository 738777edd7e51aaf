// Package notify publishes wager status changes to NATS JetStream. Delivery
// is best-effort: the ledger store is the source of truth and consumers can
// always query it directly.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"BetLedger/internal/feed"
	"BetLedger/internal/ledger"
	"BetLedger/internal/observability"
)

const (
	// StreamName holds every outbound wager status event.
	StreamName = "BETLEDGER_WAGERS"
	// subjectPrefix is completed with the wager status: bets.ledger.wagers.confirmed etc.
	subjectPrefix = "bets.ledger.wagers."
)

// StatusEvent is the outbound wire format for a wager status change.
type StatusEvent struct {
	WagerID   string    `json:"wager_id"`
	UserID    string    `json:"user_id"`
	MatchKey  string    `json:"match_key"`
	Market    string    `json:"market"`
	Kind      string    `json:"kind"`
	Stake     string    `json:"stake"`
	Odd       string    `json:"odd"`
	Status    string    `json:"status"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher implements ledger.StatusNotifier on JetStream.
type Publisher struct {
	js      jetstream.JetStream
	clock   feed.Clock
	metrics *observability.Metrics
	log     zerolog.Logger
}

func NewPublisher(js jetstream.JetStream, clock feed.Clock, metrics *observability.Metrics, log zerolog.Logger) *Publisher {
	return &Publisher{js: js, clock: clock, metrics: metrics, log: log}
}

// WagerStatus publishes one status change. Failures are logged and counted,
// never propagated: a notification drop must not fail the ledger operation
// that caused it.
func (p *Publisher) WagerStatus(ctx context.Context, w *ledger.Wager, reason string) {
	evt := StatusEvent{
		WagerID:   w.ID.String(),
		UserID:    w.UserID.String(),
		MatchKey:  w.MatchKey,
		Market:    w.MarketName(),
		Kind:      w.Kind.String(),
		Stake:     w.Stake.String(),
		Odd:       w.Odd.String(),
		Status:    w.Status.String(),
		Reason:    reason,
		Timestamp: p.clock.Now(),
	}

	data, err := json.Marshal(evt)
	if err != nil {
		p.log.Error().Err(err).Str("wager", evt.WagerID).Msg("marshal status event")
		return
	}

	subject := subjectPrefix + evt.Status
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		if p.metrics != nil {
			p.metrics.NotifyFailures.Inc()
		}
		p.log.Warn().Err(err).
			Str("wager", evt.WagerID).
			Str("subject", subject).
			Msg("status publish failed")
		return
	}
	if p.metrics != nil {
		p.metrics.NotifyPublished.Inc()
	}
}

var _ ledger.StatusNotifier = (*Publisher)(nil)

// EnsureStream creates the outbound wager status stream if it doesn't exist.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      StreamName,
		Subjects:  []string{subjectPrefix + ">"},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.LimitsPolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", StreamName, err)
	}
	return nil
}

// Connect establishes a NATS connection and returns a JetStream context.
func Connect(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}
	return nc, js, nil
}
