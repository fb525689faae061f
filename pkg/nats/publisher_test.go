package natsutil

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/routetrack/pkg/geo"
	"github.com/agile-defense/routetrack/pkg/messages"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

type published struct {
	subject string
	data    []byte
}

type fakeConn struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.msgs = append(c.msgs, published{subject: subject, data: data})
	return nil
}

func TestRoutePublisherUpdated(t *testing.T) {
	conn := &fakeConn{}
	p := NewRoutePublisher(conn, "route-tracker-001", nil, zerolog.Nop())

	updated := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	view := tracker.View{
		UnitID:          "unit-1",
		TargetID:        "alert-9",
		CurrentPath:     geo.Path{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 0.01}},
		Destination:     geo.Position{Lat: 0, Lon: 0.01},
		RemainingMeters: 1111.9,
		UpdatedAt:       updated,
	}
	p.RouteUpdated(view)

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "route.updated.unit-1.alert-9", conn.msgs[0].subject)

	var msg messages.RouteUpdate
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &msg))
	assert.Equal(t, messages.RouteUpdated, msg.Event)
	assert.Equal(t, view.CurrentPath, msg.CurrentPath)
	assert.Equal(t, view.Destination, msg.Destination)
	assert.InDelta(t, 1111.9, msg.RemainingMeters, 1e-9)
	assert.True(t, updated.Equal(msg.UpdatedAt))
	assert.Empty(t, msg.Envelope.Signature)
}

func TestRoutePublisherRemovedSigned(t *testing.T) {
	secret := []byte("route-secret")
	conn := &fakeConn{}
	p := NewRoutePublisher(conn, "route-tracker-001", secret, zerolog.Nop())

	p.RouteRemoved(tracker.Key{UnitID: "unit-1", TargetID: "alert-9"})

	require.Len(t, conn.msgs, 1)
	assert.Equal(t, "route.removed.unit-1.alert-9", conn.msgs[0].subject)

	var msg messages.RouteUpdate
	require.NoError(t, json.Unmarshal(conn.msgs[0].data, &msg))
	assert.Empty(t, msg.CurrentPath)

	ok, err := messages.Verify(&msg, secret)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRoutePublisherSwallowsPublishErrors(t *testing.T) {
	conn := &fakeConn{err: errors.New("nats: connection closed")}
	p := NewRoutePublisher(conn, "route-tracker-001", nil, zerolog.Nop())

	assert.NotPanics(t, func() {
		p.RouteRemoved(tracker.Key{UnitID: "u", TargetID: "t"})
	})
}

func TestStreamConfigs(t *testing.T) {
	positions, ok := StreamConfigs[StreamPositions]
	require.True(t, ok)
	assert.Equal(t, []string{"unit.position.>"}, positions.Subjects)

	routes, ok := StreamConfigs[StreamRoutes]
	require.True(t, ok)
	assert.Equal(t, []string{"route.>"}, routes.Subjects)
	assert.Equal(t, int64(1), routes.MaxMsgsPerSubject)

	consumer, ok := ConsumerConfigs["route-tracker"]
	require.True(t, ok)
	assert.Equal(t, "unit.position.>", consumer.FilterSubject)

	for name, cfg := range StreamConfigs {
		assert.Equal(t, name, cfg.Name)
	}
}
