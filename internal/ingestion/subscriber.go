// Package ingestion is the inbound transport: wager submissions arrive on
// NATS JetStream, get parsed into wagers and handed to the admission
// pipeline. Business validation and the confirm/reject decision stay in the
// pipeline; this package only deals with the wire.
package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"BetLedger/internal/admission"
	"BetLedger/internal/ledger"
)

const (
	// SubmitSubject carries wager submissions.
	SubmitSubject = "bets.wagers.submit"
	// SubmitStream holds submissions until the consumer acknowledges them.
	SubmitStream = "BETLEDGER_SUBMIT"

	consumerName = "betledger-admission"
)

// Subscriber consumes wager submissions and submits them to the admission
// pipeline.
type Subscriber struct {
	js       jetstream.JetStream
	pipeline *admission.Pipeline
	log      zerolog.Logger

	consumer jetstream.ConsumeContext
}

func NewSubscriber(js jetstream.JetStream, pipeline *admission.Pipeline, log zerolog.Logger) *Subscriber {
	return &Subscriber{js: js, pipeline: pipeline, log: log}
}

// EnsureStream creates the submission stream if it doesn't exist. WorkQueue
// retention: a submission is consumed exactly once.
func EnsureStream(ctx context.Context, js jetstream.JetStream) error {
	_, err := js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
		Name:      SubmitStream,
		Subjects:  []string{SubmitSubject},
		Storage:   jetstream.FileStorage,
		Retention: jetstream.WorkQueuePolicy,
		MaxAge:    72 * time.Hour,
		Replicas:  1,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", SubmitStream, err)
	}
	return nil
}

// Subscribe starts the durable consumer. Explicit ACK; a message is NAKed
// only on transient failures (store unavailable), so malformed payloads and
// validation rejections are ACKed and never redelivered.
func (s *Subscriber) Subscribe(ctx context.Context) error {
	consumer, err := s.js.CreateOrUpdateConsumer(ctx, SubmitStream, jetstream.ConsumerConfig{
		Durable:       consumerName,
		FilterSubject: SubmitSubject,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    5,
		DeliverPolicy: jetstream.DeliverAllPolicy,
	})
	if err != nil {
		return fmt.Errorf("create consumer %s: %w", consumerName, err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		s.handle(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("consume %s: %w", consumerName, err)
	}
	s.consumer = cc
	s.log.Info().Str("subject", SubmitSubject).Msg("subscribed to wager submissions")
	return nil
}

func (s *Subscriber) handle(ctx context.Context, msg jetstream.Msg) {
	w, err := ParseSubmit(msg.Data())
	if err != nil {
		// Malformed payloads can never succeed; drop them.
		s.log.Warn().Err(err).Msg("malformed submission dropped")
		msg.Ack()
		return
	}

	err = s.pipeline.Submit(ctx, w)
	switch {
	case err == nil, ledger.IsValidation(err):
		msg.Ack()
	default:
		s.log.Error().Err(err).Str("wager", w.ID.String()).Msg("submit failed, will redeliver")
		msg.Nak()
	}
}

// Stop gracefully stops the consumer.
func (s *Subscriber) Stop() {
	if s.consumer != nil {
		s.consumer.Stop()
	}
}
