package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
)

// Base holds the NATS connection, logger and metrics registry of a process
type Base struct {
	id     string
	role   Role
	config Config

	nc *nats.Conn
	js jetstream.JetStream

	logger zerolog.Logger

	registry      *prometheus.Registry
	messagesTotal *prometheus.CounterVec
	latencyHist   *prometheus.HistogramVec
	errorsTotal   *prometheus.CounterVec

	running bool
	mu      sync.RWMutex
	cancel  context.CancelFunc
}

// NewBase creates a base with its own metrics registry
func NewBase(cfg Config, logger zerolog.Logger) *Base {
	registry := prometheus.NewRegistry()

	messagesTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_messages_total",
			Help: "Total messages processed by agent",
		},
		[]string{"status", "message_type"},
	)

	latencyHist := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "agent_processing_latency_seconds",
			Help:    "Message processing latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"message_type"},
	)

	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "agent_errors_total",
			Help: "Total errors encountered by agent",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(
		messagesTotal, latencyHist, errorsTotal,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Base{
		id:     cfg.ID,
		role:   cfg.Role,
		config: cfg,
		logger: logger.With().
			Str("agent_id", cfg.ID).
			Str("role", string(cfg.Role)).
			Logger(),
		registry:      registry,
		messagesTotal: messagesTotal,
		latencyHist:   latencyHist,
		errorsTotal:   errorsTotal,
	}
}

// ID returns the agent ID
func (a *Base) ID() string {
	return a.id
}

// Role returns the agent role
func (a *Base) Role() Role {
	return a.role
}

// Logger returns the agent logger
func (a *Base) Logger() *zerolog.Logger {
	return &a.logger
}

// NATS returns the NATS connection, nil before Start
func (a *Base) NATS() *nats.Conn {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.nc
}

// JetStream returns the JetStream context, nil before Start
func (a *Base) JetStream() jetstream.JetStream {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.js
}

// Metrics returns the Prometheus registry
func (a *Base) Metrics() *prometheus.Registry {
	return a.registry
}

// RecordMessage records a processed message metric
func (a *Base) RecordMessage(status, msgType string) {
	a.messagesTotal.WithLabelValues(status, msgType).Inc()
}

// RecordLatency records processing latency
func (a *Base) RecordLatency(msgType string, duration time.Duration) {
	a.latencyHist.WithLabelValues(msgType).Observe(duration.Seconds())
}

// RecordError records an error metric
func (a *Base) RecordError(errorType string) {
	a.errorsTotal.WithLabelValues(errorType).Inc()
}

func (a *Base) connect() (*nats.Conn, jetstream.JetStream, error) {
	a.logger.Info().Str("url", a.config.NATSUrl).Msg("Connecting to NATS")

	opts := []nats.Option{
		nats.Name(a.id),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			a.logger.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			a.logger.Info().Msg("NATS reconnected")
		}),
	}
	if a.config.User != "" {
		opts = append(opts, nats.UserInfo(a.config.User, a.config.Password))
	}

	nc, err := nats.Connect(a.config.NATSUrl, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	a.logger.Info().Msg("Connected to NATS with JetStream")
	return nc, js, nil
}

// Health returns the health status
func (a *Base) Health() HealthStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if !a.running {
		return HealthStatus{Healthy: false, Status: "stopped"}
	}

	if a.nc == nil || !a.nc.IsConnected() {
		return HealthStatus{Healthy: false, Status: "disconnected", Details: "NATS connection lost"}
	}

	return HealthStatus{Healthy: true, Status: "running"}
}

// Start connects to NATS. The returned context is cancelled by Stop.
func (a *Base) Start(ctx context.Context) (context.Context, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.running {
		return nil, fmt.Errorf("agent already running")
	}

	nc, js, err := a.connect()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	a.nc, a.js, a.cancel = nc, js, cancel
	a.running = true

	a.logger.Info().Msg("Agent started")
	return ctx, nil
}

// Stop drains the NATS connection
func (a *Base) Stop() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.running {
		return nil
	}

	a.logger.Info().Msg("Stopping agent")

	a.cancel()

	var err error
	if a.nc != nil {
		err = a.nc.Drain()
	}

	a.running = false
	a.logger.Info().Msg("Agent stopped")
	return err
}
