// Package natsutil provides NATS JetStream configuration and helpers
package natsutil

import (
	"context"
	"time"

	"github.com/nats-io/nats.go/jetstream"
)

// Stream names
const (
	StreamPositions = "POSITIONS"
	StreamRoutes    = "ROUTES"
)

// StreamConfigs defines all streams used by the route tracker
var StreamConfigs = map[string]jetstream.StreamConfig{
	StreamPositions: {
		Name:              StreamPositions,
		Description:       "Unit position reports",
		Subjects:          []string{"unit.position.>"},
		Retention:         jetstream.LimitsPolicy,
		MaxBytes:          512 * 1024 * 1024, // 512MB
		MaxAge:            time.Hour,
		Storage:           jetstream.FileStorage,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: 1000,
	},
	StreamRoutes: {
		Name:              StreamRoutes,
		Description:       "Tracked route updates for renderers",
		Subjects:          []string{"route.>"},
		Retention:         jetstream.LimitsPolicy,
		MaxBytes:          256 * 1024 * 1024,
		MaxAge:            time.Hour,
		Storage:           jetstream.MemoryStorage,
		Replicas:          1,
		Discard:           jetstream.DiscardOld,
		MaxMsgsPerSubject: 1, // Renderers only need the latest state of a route
	},
}

// ConsumerConfigs defines durable consumers by name
var ConsumerConfigs = map[string]jetstream.ConsumerConfig{
	"route-tracker": {
		Durable:       "route-tracker",
		Description:   "Route tracker consumer for unit positions",
		FilterSubject: "unit.position.>",
		DeliverPolicy: jetstream.DeliverLastPerSubjectPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		AckWait:       30 * time.Second,
		MaxDeliver:    3,
		MaxAckPending: 1000,
	},
}

// SetupStreams creates all required streams
func SetupStreams(ctx context.Context, js jetstream.JetStream) error {
	for name, cfg := range StreamConfigs {
		_, err := js.Stream(ctx, name)
		if err == nil {
			continue // Stream exists
		}

		_, err = js.CreateStream(ctx, cfg)
		if err != nil {
			return err
		}
	}
	return nil
}

// SetupConsumer creates a consumer, using ConsumerConfigs when it has an entry for the name
func SetupConsumer(ctx context.Context, js jetstream.JetStream, streamName, consumerName string) (jetstream.Consumer, error) {
	cfg, ok := ConsumerConfigs[consumerName]
	if !ok {
		cfg = jetstream.ConsumerConfig{
			Durable:       consumerName,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    3,
			MaxAckPending: 100,
		}
	}

	stream, err := js.Stream(ctx, streamName)
	if err != nil {
		return nil, err
	}

	consumer, err := stream.Consumer(ctx, cfg.Durable)
	if err == nil {
		return consumer, nil
	}

	return stream.CreateConsumer(ctx, cfg)
}
