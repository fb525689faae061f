// Package main provides a simulator that publishes unit positions to NATS
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/agile-defense/routetrack/pkg/agent"
	"github.com/agile-defense/routetrack/pkg/config"
	"github.com/agile-defense/routetrack/pkg/eligibility"
	"github.com/agile-defense/routetrack/pkg/geo"
	"github.com/agile-defense/routetrack/pkg/messages"
	natsutil "github.com/agile-defense/routetrack/pkg/nats"
	"github.com/agile-defense/routetrack/pkg/telemetry"
)

// Simulator publishes the positions of simulated units
type Simulator struct {
	*agent.Base

	units    []*simulatedUnit
	interval time.Duration
	secret   []byte
	rng      *rand.Rand
	tracer   trace.Tracer
}

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTELURL, string(agent.RoleUnitSimulator))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to set up tracing")
	}
	defer shutdownTracing(context.Background())

	sim := NewSimulator(cfg)

	runCtx, err := sim.Start(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start unit simulator")
	}

	if err := sim.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		sim.Logger().Error().Err(err).Msg("Unit simulator error")
	}

	if err := sim.Stop(); err != nil {
		sim.Logger().Warn().Err(err).Msg("Failed to drain NATS connection")
	}
}

// NewSimulator creates a simulator from config
func NewSimulator(cfg config.Config) *Simulator {
	base := agent.NewBase(agent.Config{
		ID:       fmt.Sprintf("unit-simulator-%s", uuid.New().String()[:8]),
		Role:     agent.RoleUnitSimulator,
		NATSUrl:  cfg.NATSURL,
		User:     os.Getenv("NATS_USER"),
		Password: os.Getenv("NATS_PASSWORD"),
	}, log.Logger)

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	home := geo.Position{Lat: cfg.SimLat, Lon: cfg.SimLon}

	return &Simulator{
		Base:     base,
		units:    newSimulatedUnits(cfg.SimUnits, home, rng),
		interval: cfg.SimInterval,
		secret:   cfg.Secret(),
		rng:      rng,
		tracer:   otel.Tracer("github.com/agile-defense/routetrack/cmd/unit-simulator"),
	}
}

// Run publishes positions every interval until ctx is cancelled
func (s *Simulator) Run(ctx context.Context) error {
	if err := natsutil.SetupStreams(ctx, s.JetStream()); err != nil {
		return fmt.Errorf("failed to setup streams: %w", err)
	}

	s.Logger().Info().
		Int("units", len(s.units)).
		Dur("interval", s.interval).
		Bool("signed", s.secret != nil).
		Msg("Starting unit simulation")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, u := range s.units {
				u.step(s.interval, s.rng)
				if err := s.publish(ctx, u); err != nil {
					s.Logger().Error().Err(err).Str("unit_id", u.id).Msg("Failed to publish position")
					s.RecordError("publish_failed")
					continue
				}
				s.RecordMessage("success", "unit_position")
			}
		}
	}
}

func (s *Simulator) publish(ctx context.Context, u *simulatedUnit) error {
	start := time.Now()
	defer func() {
		s.RecordLatency("unit_position", time.Since(start))
	}()

	ctx, span := s.tracer.Start(ctx, "simulator.publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(attribute.String("unit.id", u.id)),
	)
	defer span.End()

	msg := messages.NewUnitPosition(s.ID(), u.id, u.position, string(eligibility.UnitActive))
	msg.Speed = u.speed
	sc := span.SpanContext()
	msg.Envelope = msg.Envelope.WithTracing(sc.TraceID().String(), sc.SpanID().String())

	data, err := messages.MarshalWithSignature(msg, s.secret)
	if err != nil {
		return fmt.Errorf("failed to marshal position: %w", err)
	}

	subject := msg.Subject()
	if _, err := s.JetStream().Publish(ctx, subject, data, jetstream.WithMsgID(msg.Envelope.MessageID)); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}

	s.Logger().Debug().
		Str("unit_id", u.id).
		Float64("lat", u.position.Lat).
		Float64("lon", u.position.Lon).
		Msg("Published position")
	return nil
}
