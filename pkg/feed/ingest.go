package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"

	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/messages"
)

var (
	// ErrBadSignature is returned for position messages that fail verification
	ErrBadSignature = errors.New("invalid message signature")

	errRecordFailed = errors.New("failed to record position")
)

// MessageRecorder receives per-message metrics
type MessageRecorder interface {
	RecordMessage(status, msgType string)
	RecordLatency(msgType string, duration time.Duration)
	RecordError(errorType string)
}

type nopRecorder struct{}

func (nopRecorder) RecordMessage(string, string)        {}
func (nopRecorder) RecordLatency(string, time.Duration) {}
func (nopRecorder) RecordError(string)                  {}

// Ingestor consumes unit position messages into a Recorder
type Ingestor struct {
	store   Recorder
	secret  []byte
	logger  zerolog.Logger
	metrics MessageRecorder
}

// NewIngestor creates an ingestor. When secret is non-empty every message
// must carry a valid signature.
func NewIngestor(store Recorder, secret []byte, logger zerolog.Logger, metrics MessageRecorder) *Ingestor {
	if metrics == nil {
		metrics = nopRecorder{}
	}
	return &Ingestor{
		store:   store,
		secret:  secret,
		logger:  logger.With().Str("component", "position-ingest").Logger(),
		metrics: metrics,
	}
}

// HandleMessage decodes, verifies and records one position message
func (in *Ingestor) HandleMessage(ctx context.Context, data []byte) error {
	start := time.Now()

	var msg messages.UnitPosition
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("failed to unmarshal unit position: %w", err)
	}
	if msg.UnitID == "" {
		return errors.New("unit position without unit_id")
	}

	if len(in.secret) > 0 {
		ok, err := messages.Verify(&msg, in.secret)
		if err != nil {
			return fmt.Errorf("failed to verify unit position: %w", err)
		}
		if !ok {
			return fmt.Errorf("%w from %s", ErrBadSignature, msg.Envelope.Source)
		}
	}

	reportedAt := msg.ReportedAt
	if reportedAt.IsZero() {
		reportedAt = msg.Envelope.Timestamp
	}
	status := eligibility.UnitStatus(msg.Status)
	if status != eligibility.UnitInactive {
		status = eligibility.UnitActive
	}

	report := Report{
		UnitID:     msg.UnitID,
		Position:   msg.Position,
		Status:     status,
		ReportedAt: reportedAt,
	}
	if err := in.store.Record(ctx, report); err != nil {
		return fmt.Errorf("%w: %w", errRecordFailed, err)
	}

	in.metrics.RecordMessage("success", "unit_position")
	in.metrics.RecordLatency("unit_position", time.Since(start))

	in.logger.Debug().
		Str("unit_id", msg.UnitID).
		Str("correlation_id", msg.Envelope.CorrelationID).
		Float64("lat", msg.Position.Lat).
		Float64("lon", msg.Position.Lon).
		Msg("Recorded unit position")

	return nil
}

// Consume fetches position messages from consumer until ctx is cancelled
func (in *Ingestor) Consume(ctx context.Context, consumer jetstream.Consumer) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		msgs, err := consumer.Fetch(50, jetstream.FetchMaxWait(5*time.Second))
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
				continue
			}
			in.logger.Error().Err(err).Msg("Failed to fetch messages")
			in.metrics.RecordError("fetch_error")
			time.Sleep(time.Second)
			continue
		}

		for msg := range msgs.Messages() {
			if err := in.HandleMessage(ctx, msg.Data()); err != nil {
				in.metrics.RecordMessage("failure", "unit_position")
				if errors.Is(err, errRecordFailed) {
					in.logger.Error().Err(err).Str("subject", msg.Subject()).Msg("Failed to store unit position")
					in.metrics.RecordError("store_error")
					_ = msg.Nak()
					continue
				}
				// Malformed or forged reports will never succeed
				in.logger.Warn().Err(err).Str("subject", msg.Subject()).Msg("Rejected unit position")
				_ = msg.Term()
				continue
			}
			_ = msg.Ack()
		}

		if err := msgs.Error(); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			in.logger.Warn().Err(err).Msg("Message batch error")
		}
	}
}
