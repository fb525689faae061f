package handler

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/agile-defense/routetrack/pkg/geo"
	"github.com/agile-defense/routetrack/pkg/tracker"
)

func dialHub(t *testing.T) (*WebSocketHub, *websocket.Conn) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewWebSocketHub(zerolog.Nop())
	go hub.Run(ctx)

	server := httptest.NewServer(NewWebSocketHandler(hub, nil, zerolog.Nop()))
	t.Cleanup(server.Close)

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(server.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	return hub, conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WebSocketMessage {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var msg WebSocketMessage
	require.NoError(t, wsjson.Read(ctx, conn, &msg))
	return msg
}

func TestHubBroadcastsRouteChanges(t *testing.T) {
	hub, conn := dialHub(t)

	hub.RouteUpdated(tracker.View{
		UnitID:      "unit-1",
		TargetID:    "alert-1",
		CurrentPath: geo.Path{origin, geo.Offset(origin, 0, 100)},
	})
	msg := readMessage(t, conn)
	assert.Equal(t, MessageTypeRouteUpdated, msg.Type)

	var view tracker.View
	require.NoError(t, json.Unmarshal(msg.Payload, &view))
	assert.Equal(t, "alert-1", view.TargetID)
	assert.Len(t, view.CurrentPath, 2)

	hub.RouteRemoved(tracker.Key{UnitID: "unit-1", TargetID: "alert-1"})
	msg = readMessage(t, conn)
	assert.Equal(t, MessageTypeRouteRemoved, msg.Type)

	var removed RouteRemovedPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &removed))
	assert.Equal(t, RouteRemovedPayload{UnitID: "unit-1", TargetID: "alert-1"}, removed)
}

func TestHubFiltersBySubscribedUnit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewWebSocketHub(zerolog.Nop())
	go hub.Run(ctx)

	client := &WebSocketClient{
		id:    "c1",
		send:  make(chan WebSocketMessage, 4),
		hub:   hub,
		units: map[string]bool{"unit-2": true},
	}
	hub.register <- client

	hub.RouteRemoved(tracker.Key{UnitID: "unit-1", TargetID: "alert-1"})
	hub.RouteRemoved(tracker.Key{UnitID: "unit-2", TargetID: "alert-1"})

	select {
	case msg := <-client.send:
		var removed RouteRemovedPayload
		require.NoError(t, json.Unmarshal(msg.Payload, &removed))
		assert.Equal(t, "unit-2", removed.UnitID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message delivered")
	}

	assert.True(t, client.follows("unit-2"))
	assert.False(t, client.follows("unit-1"))
}
