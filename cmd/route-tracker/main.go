// Package main provides the route tracker service
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/agile-defense/routetrack/pkg/agent"
	"github.com/agile-defense/routetrack/pkg/config"
	"github.com/agile-defense/routetrack/pkg/feed"
	"github.com/agile-defense/routetrack/pkg/handler"
	natsutil "github.com/agile-defense/routetrack/pkg/nats"
	"github.com/agile-defense/routetrack/pkg/pathfinding"
	"github.com/agile-defense/routetrack/pkg/postgres"
	"github.com/agile-defense/routetrack/pkg/telemetry"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

// positionStore is a feed that can also be written by the ingestor
type positionStore interface {
	tracker.PositionFeed
	feed.Recorder
}

// HTTP metrics
var (
	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "routetrack_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "routetrack_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	wsConnectionsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "routetrack_websocket_connections_active",
			Help: "Number of active WebSocket connections",
		},
	)
)

func main() {
	cfg, err := config.Load(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	setupLogging(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("Route tracker failed")
	}
	log.Info().Msg("Route tracker shutdown complete")
}

func run(ctx context.Context, cfg config.Config) error {
	log.Info().
		Str("nats_url", cfg.NATSURL).
		Str("osrm_url", cfg.OSRMURL).
		Bool("redis", cfg.RedisURL != "").
		Str("port", cfg.Port).
		Dur("update_interval", cfg.RouteUpdateInterval).
		Msg("Starting route tracker")

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTELURL, string(agent.RoleRouteTracker))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Failed to flush traces")
		}
	}()

	base := agent.NewBase(agent.Config{
		ID:       fmt.Sprintf("route-tracker-%s", uuid.New().String()[:8]),
		Role:     agent.RoleRouteTracker,
		NATSUrl:  cfg.NATSURL,
		User:     os.Getenv("NATS_USER"),
		Password: os.Getenv("NATS_PASSWORD"),
	}, log.Logger)
	base.Metrics().MustRegister(httpRequestsTotal, httpRequestDuration, wsConnectionsActive)

	// Targets
	if cfg.PostgresURL == "" {
		return errors.New("POSTGRES_URL is required")
	}
	db, err := postgres.NewPoolFromURL(ctx, cfg.PostgresURL)
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		return err
	}
	log.Info().Msg("Connected to PostgreSQL")

	// Positions
	store, storeHealth, closeStore, err := openPositionStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	// Bus, optional
	connected := true
	if _, err := base.Start(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to connect to NATS, continuing without position ingest or route publishing")
		connected = false
	}
	defer base.Stop()

	hub := handler.NewWebSocketHub(log.Logger)
	notifiers := tracker.Notifiers{hub}
	if connected {
		publisher := natsutil.NewRoutePublisher(base.NATS(), base.ID(), cfg.Secret(), log.Logger)
		notifiers = append(notifiers, publisher)
	}

	finder := pathfinding.NewClient(cfg.OSRMURL, pathfinding.WithProfile(cfg.OSRMProfile))

	manager, err := tracker.NewManager(tracker.Config{
		Feed:       store,
		Targets:    db,
		Finder:     finder,
		Notifier:   notifiers,
		Interval:   cfg.RouteUpdateInterval,
		Logger:     &log.Logger,
		Registerer: base.Metrics(),
	})
	if err != nil {
		return err
	}
	defer manager.Close()

	router := setupRouter(cfg, base, db, store, storeHealth, manager, hub)
	server := &http.Server{
		Addr:         cfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hub.Run(gCtx)
		return nil
	})

	if connected {
		g.Go(func() error {
			return runPositionConsumer(gCtx, base, store, cfg.Secret())
		})
	}

	g.Go(func() error {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-gCtx.Done():
				return nil
			case <-ticker.C:
				wsConnectionsActive.Set(float64(hub.ClientCount()))
			}
		}
	})

	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		log.Info().Msg("Shutting down HTTP server")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func setupLogging(cfg config.Config) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.LogPretty {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().Timestamp().Str("service", "route-tracker").Logger()
	} else {
		log.Logger = zerolog.New(os.Stdout).With().Timestamp().Str("service", "route-tracker").Logger()
	}
}

// openPositionStore picks Redis when configured and memory otherwise. The
// returned close func releases the Redis client.
func openPositionStore(ctx context.Context, cfg config.Config) (positionStore, func(context.Context) error, func(), error) {
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, keeping unit positions in memory")
		return feed.NewMemoryStore(time.Now), nil, func() {}, nil
	}

	client, err := feed.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	log.Info().Msg("Connected to Redis")

	closeClient := func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}

	store := feed.NewRedisStore(client, time.Now)
	return store, store.Health, closeClient, nil
}

// runPositionConsumer feeds unit positions from JetStream into the store
func runPositionConsumer(ctx context.Context, base *agent.Base, store feed.Recorder, secret []byte) error {
	js := base.JetStream()
	if err := natsutil.SetupStreams(ctx, js); err != nil {
		return fmt.Errorf("failed to setup streams: %w", err)
	}

	consumer, err := natsutil.SetupConsumer(ctx, js, natsutil.StreamPositions, "route-tracker")
	if err != nil {
		return fmt.Errorf("failed to setup consumer: %w", err)
	}

	log.Info().Str("stream", natsutil.StreamPositions).Msg("Consuming unit positions")

	ingestor := feed.NewIngestor(store, secret, log.Logger, base)
	if err := ingestor.Consume(ctx, consumer); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func setupRouter(cfg config.Config, base *agent.Base, db *postgres.Pool, store positionStore, storeHealth func(context.Context) error, manager *tracker.Manager, hub *handler.WebSocketHub) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(correlationIDMiddleware)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(prometheusMiddleware)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Correlation-ID", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Correlation-ID", "X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler(base, db, storeHealth, manager))
	r.Handle("/metrics", promhttp.HandlerFor(base.Metrics(), promhttp.HandlerOpts{}))
	r.Handle("/ws", handler.NewWebSocketHandler(hub, cfg.WebSocketOrigins, log.Logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Mount("/routes", handler.NewRouteHandler(manager, log.Logger).Routes())
		r.Mount("/targets", handler.NewTargetHandler(db, manager, log.Logger).Routes())
		r.Mount("/units", handler.NewUnitHandler(store, log.Logger).Routes())
	})

	return r
}

// correlationIDMiddleware adds a correlation ID to each request
func correlationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
		}

		ctx := handler.WithCorrelationID(r.Context(), correlationID)
		w.Header().Set("X-Correlation-ID", correlationID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requestLogger logs each HTTP request
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("correlation_id", handler.GetCorrelationID(r.Context())).
			Str("remote_addr", r.RemoteAddr).
			Msg("HTTP request")
	})
}

// prometheusMiddleware records HTTP metrics
func prometheusMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		path := chi.RouteContext(r.Context()).RoutePattern()
		if path == "" {
			path = r.URL.Path
		}

		httpRequestsTotal.WithLabelValues(r.Method, path, fmt.Sprintf("%d", ww.Status())).Inc()
		httpRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status        string            `json:"status"`
	Uptime        string            `json:"uptime"`
	ActiveRoutes  int               `json:"active_routes"`
	Components    map[string]string `json:"components"`
	CorrelationID string            `json:"correlation_id"`
}

var startTime = time.Now()

func healthHandler(base *agent.Base, db *postgres.Pool, storeHealth func(context.Context) error, manager *tracker.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		response := HealthResponse{
			Status:        "healthy",
			Uptime:        time.Since(startTime).Round(time.Second).String(),
			ActiveRoutes:  len(manager.ListActiveRoutes()),
			Components:    make(map[string]string),
			CorrelationID: handler.GetCorrelationID(ctx),
		}

		if err := db.Health(ctx); err != nil {
			response.Components["postgres"] = "unhealthy: " + err.Error()
			response.Status = "degraded"
		} else {
			response.Components["postgres"] = "healthy"
		}

		switch {
		case storeHealth == nil:
			response.Components["positions"] = "memory"
		case storeHealth(ctx) != nil:
			response.Components["positions"] = "unhealthy"
			response.Status = "degraded"
		default:
			response.Components["positions"] = "healthy"
		}

		// NATS is optional; a missing bus only disables ingest and publishing
		response.Components["nats"] = base.Health().Status

		status := http.StatusOK
		if response.Status != "healthy" {
			status = http.StatusServiceUnavailable
		}

		handler.WriteJSON(w, status, response)
	}
}
