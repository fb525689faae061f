// Package messages defines the data structures exchanged over NATS
package messages

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope contains metadata common to all messages for tracing and security
type Envelope struct {
	// Identity
	MessageID     string `json:"message_id"`
	CorrelationID string `json:"correlation_id"` // Chain tracking across services
	CausationID   string `json:"causation_id"`   // Parent message that caused this

	// Routing
	Source     string `json:"source"`      // Service ID that sent this message
	SourceType string `json:"source_type"` // route-tracker, unit-simulator, ...

	Timestamp time.Time `json:"timestamp"`

	// HMAC-SHA256 of the message marshalled with an empty signature
	Signature string `json:"signature"`

	TraceID string `json:"trace_id,omitempty"`
	SpanID  string `json:"span_id,omitempty"`
}

// NewEnvelope creates a new envelope with generated IDs
func NewEnvelope(source, sourceType string) Envelope {
	return Envelope{
		MessageID:  uuid.New().String(),
		Source:     source,
		SourceType: sourceType,
		Timestamp:  time.Now().UTC(),
	}
}

// WithCorrelation sets the correlation and causation IDs
func (e Envelope) WithCorrelation(correlationID, causationID string) Envelope {
	e.CorrelationID = correlationID
	e.CausationID = causationID
	return e
}

// WithTracing sets OpenTelemetry trace context
func (e Envelope) WithTracing(traceID, spanID string) Envelope {
	e.TraceID = traceID
	e.SpanID = spanID
	return e
}

// Sign generates an HMAC signature for the message
func (e *Envelope) Sign(payload []byte, secret []byte) {
	h := hmac.New(sha256.New, secret)
	h.Write(payload)
	e.Signature = hex.EncodeToString(h.Sum(nil))
}

// VerifySignature checks the HMAC signature
func (e *Envelope) VerifySignature(payload []byte, secret []byte) bool {
	expected := hmac.New(sha256.New, secret)
	expected.Write(payload)
	expectedSig := hex.EncodeToString(expected.Sum(nil))
	return hmac.Equal([]byte(e.Signature), []byte(expectedSig))
}

// Message is an interface for all message types
type Message interface {
	GetEnvelope() Envelope
	SetEnvelope(Envelope)
	Subject() string
}

// BaseMessage provides common functionality
type BaseMessage struct {
	Envelope Envelope `json:"envelope"`
}

func (m *BaseMessage) GetEnvelope() Envelope {
	return m.Envelope
}

func (m *BaseMessage) SetEnvelope(e Envelope) {
	m.Envelope = e
}

// MarshalWithSignature marshals the message and signs it
func MarshalWithSignature(msg Message, secret []byte) ([]byte, error) {
	env := msg.GetEnvelope()
	env.Signature = ""
	msg.SetEnvelope(env)

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	env.Sign(data, secret)
	msg.SetEnvelope(env)

	return json.Marshal(msg)
}

// Verify checks a message decoded from the wire against secret. The message
// is left unchanged.
func Verify(msg Message, secret []byte) (bool, error) {
	env := msg.GetEnvelope()
	if env.Signature == "" {
		return false, nil
	}

	unsigned := env
	unsigned.Signature = ""
	msg.SetEnvelope(unsigned)
	data, err := json.Marshal(msg)
	msg.SetEnvelope(env)
	if err != nil {
		return false, err
	}

	return env.VerifySignature(data, secret), nil
}
