// Package pathfinding provides a client for an OSRM-compatible routing service
package pathfinding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/agile-defense/routetrack/pkg/geo"
)

// ErrNoRoute is returned when the service cannot connect the two positions
var ErrNoRoute = errors.New("no route between positions")

const tracerName = "github.com/agile-defense/routetrack/pkg/pathfinding"

// Client is a routing service client
type Client struct {
	baseURL    string
	profile    string
	httpClient *http.Client
	tracer     trace.Tracer
}

// Option configures a Client
type Option func(*Client)

// WithProfile selects the routing profile (default "driving")
func WithProfile(profile string) Option {
	return func(c *Client) { c.profile = profile }
}

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a new routing client
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		profile: "driving",
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type routeResponse struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Routes  []struct {
		Geometry string  `json:"geometry"`
		Distance float64 `json:"distance"`
		Duration float64 `json:"duration"`
	} `json:"routes"`
}

// Route requests a driving path from origin to destination
func (c *Client) Route(ctx context.Context, origin, destination geo.Position) (geo.Path, error) {
	ctx, span := c.tracer.Start(ctx, "pathfinding.Route",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.Float64("origin.lat", origin.Lat),
			attribute.Float64("origin.lon", origin.Lon),
			attribute.Float64("destination.lat", destination.Lat),
			attribute.Float64("destination.lon", destination.Lon),
		),
	)
	defer span.End()

	path, err := c.route(ctx, origin, destination)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("path.points", len(path)))
	return path, nil
}

func (c *Client) route(ctx context.Context, origin, destination geo.Position) (geo.Path, error) {
	// OSRM takes lon,lat pairs
	url := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?overview=full&geometries=polyline",
		c.baseURL, c.profile, origin.Lon, origin.Lat, destination.Lon, destination.Lat)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var result routeResponse
	if err := json.Unmarshal(body, &result); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("routing service returned status %d: %s", resp.StatusCode, string(body))
		}
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	switch {
	case result.Code == "NoRoute" || result.Code == "NoSegment":
		return nil, fmt.Errorf("%w: %s", ErrNoRoute, result.Message)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("routing service returned status %d: %s", resp.StatusCode, result.Code)
	case result.Code != "Ok":
		return nil, fmt.Errorf("routing service error %s: %s", result.Code, result.Message)
	case len(result.Routes) == 0:
		return nil, ErrNoRoute
	}

	path := DecodePolyline(result.Routes[0].Geometry, Precision5)
	if len(path) < 2 {
		return nil, ErrNoRoute
	}
	return path, nil
}
