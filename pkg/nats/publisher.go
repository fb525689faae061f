package natsutil

import (
	"encoding/json"

	"github.com/rs/zerolog"

	"github.com/agile-defense/routetrack/pkg/messages"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

// Conn is the part of *nats.Conn the publisher needs
type Conn interface {
	Publish(subject string, data []byte) error
}

// RoutePublisher pushes route changes to NATS for renderers. Core publishes
// are captured by the ROUTES stream.
type RoutePublisher struct {
	conn   Conn
	source string
	secret []byte
	logger zerolog.Logger
}

// NewRoutePublisher creates a publisher. Messages are signed when secret is non-empty.
func NewRoutePublisher(conn Conn, source string, secret []byte, logger zerolog.Logger) *RoutePublisher {
	return &RoutePublisher{
		conn:   conn,
		source: source,
		secret: secret,
		logger: logger.With().Str("component", "route-publisher").Logger(),
	}
}

// RouteUpdated publishes the current state of a route
func (p *RoutePublisher) RouteUpdated(view tracker.View) {
	msg := messages.NewRouteUpdate(p.source, messages.RouteUpdated, view.UnitID, view.TargetID)
	msg.CurrentPath = view.CurrentPath
	msg.Destination = view.Destination
	msg.RemainingMeters = view.RemainingMeters
	msg.Fallback = view.Fallback
	if !view.UpdatedAt.IsZero() {
		msg.UpdatedAt = view.UpdatedAt
	}
	p.publish(msg)
}

// RouteRemoved publishes a removal event
func (p *RoutePublisher) RouteRemoved(key tracker.Key) {
	p.publish(messages.NewRouteUpdate(p.source, messages.RouteRemoved, key.UnitID, key.TargetID))
}

func (p *RoutePublisher) publish(msg *messages.RouteUpdate) {
	var (
		data []byte
		err  error
	)
	if len(p.secret) > 0 {
		data, err = messages.MarshalWithSignature(msg, p.secret)
	} else {
		data, err = json.Marshal(msg)
	}
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to marshal route update")
		return
	}

	subject := msg.Subject()
	if err := p.conn.Publish(subject, data); err != nil {
		p.logger.Warn().Err(err).Str("subject", subject).Msg("Failed to publish route update")
		return
	}
	p.logger.Debug().Str("subject", subject).Msg("Published route update")
}
