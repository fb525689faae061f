package messages

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agile-defense/routetrack/pkg/geo"
)

func TestEnvelopeCreation(t *testing.T) {
	tests := []struct {
		name       string
		source     string
		sourceType string
	}{
		{name: "tracker envelope", source: "route-tracker-001", sourceType: "route-tracker"},
		{name: "simulator envelope", source: "sim-001", sourceType: "unit-reporter"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := NewEnvelope(tt.source, tt.sourceType)

			assert.NotEmpty(t, env.MessageID, "MessageID should be generated")
			assert.Equal(t, tt.source, env.Source)
			assert.Equal(t, tt.sourceType, env.SourceType)
			assert.False(t, env.Timestamp.IsZero(), "Timestamp should be set")
			assert.True(t, env.Timestamp.Before(time.Now().Add(time.Second)), "Timestamp should be recent")
		})
	}

	assert.NotEqual(t, NewEnvelope("a", "b").MessageID, NewEnvelope("a", "b").MessageID)
}

func TestEnvelopeWithCorrelation(t *testing.T) {
	env := NewEnvelope("test-source", "test").WithCorrelation("corr-12345", "cause-67890")
	assert.Equal(t, "corr-12345", env.CorrelationID)
	assert.Equal(t, "cause-67890", env.CausationID)

	env = env.WithTracing("trace-abc", "span-def")
	assert.Equal(t, "trace-abc", env.TraceID)
	assert.Equal(t, "span-def", env.SpanID)
}

func TestEnvelopeSignature(t *testing.T) {
	secret := []byte("test-secret")
	payload := []byte(`{"unit_id":"unit-1"}`)

	env := NewEnvelope("sim-001", "unit-reporter")
	env.Sign(payload, secret)

	assert.Len(t, env.Signature, 64, "hex encoded SHA-256")
	assert.True(t, env.VerifySignature(payload, secret))
	assert.False(t, env.VerifySignature(payload, []byte("other-secret")))
	assert.False(t, env.VerifySignature([]byte(`{"unit_id":"unit-2"}`), secret))
}

func TestMarshalWithSignatureAndVerify(t *testing.T) {
	secret := []byte("test-secret")

	msg := NewUnitPosition("sim-001", "unit-7", geo.Position{Lat: -18.0066, Lon: -70.2463}, "active")
	msg.Speed = 12.5

	data, err := MarshalWithSignature(msg, secret)
	require.NoError(t, err)

	var decoded UnitPosition
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.NotEmpty(t, decoded.Envelope.Signature)

	ok, err := Verify(&decoded, secret)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, msg.Envelope.Signature, decoded.Envelope.Signature, "Verify leaves the message untouched")

	ok, err = Verify(&decoded, []byte("wrong"))
	require.NoError(t, err)
	assert.False(t, ok)

	decoded.Position.Lat += 0.001
	ok, err = Verify(&decoded, secret)
	require.NoError(t, err)
	assert.False(t, ok, "tampered payload must not verify")
}

func TestVerifyUnsigned(t *testing.T) {
	msg := NewUnitPosition("sim-001", "unit-7", geo.Position{}, "active")
	ok, err := Verify(msg, []byte("secret"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarshalWithSignatureResigns(t *testing.T) {
	secret := []byte("test-secret")
	msg := NewUnitPosition("sim-001", "unit-7", geo.Position{Lat: 1, Lon: 2}, "active")

	first, err := MarshalWithSignature(msg, secret)
	require.NoError(t, err)
	second, err := MarshalWithSignature(msg, secret)
	require.NoError(t, err)

	assert.JSONEq(t, string(first), string(second))
}

func TestUnitPositionMessage(t *testing.T) {
	pos := geo.Position{Lat: -18.0066, Lon: -70.2463}
	msg := NewUnitPosition("sim-001", "unit-7", pos, "active")

	assert.Equal(t, "unit.position.unit-7", msg.Subject())
	assert.Equal(t, "sim-001", msg.GetEnvelope().Source)
	assert.Equal(t, msg.Envelope.Timestamp, msg.ReportedAt)

	data, err := json.Marshal(msg)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "envelope")
	assert.Equal(t, "unit-7", raw["unit_id"])
	assert.Equal(t, map[string]interface{}{"lat": -18.0066, "lon": -70.2463}, raw["position"])
}

func TestRouteUpdateSubject(t *testing.T) {
	tests := []struct {
		event string
		want  string
	}{
		{event: RouteUpdated, want: "route.updated.unit-1.alert-9"},
		{event: RouteRemoved, want: "route.removed.unit-1.alert-9"},
	}

	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			msg := NewRouteUpdate("route-tracker-001", tt.event, "unit-1", "alert-9")
			assert.Equal(t, tt.want, msg.Subject())
			assert.Equal(t, "route-tracker", msg.Envelope.SourceType)
		})
	}
}

func TestBaseMessage(t *testing.T) {
	var m BaseMessage
	env := NewEnvelope("x", "y")
	m.SetEnvelope(env)
	assert.Equal(t, env, m.GetEnvelope())
}
