package domain

import (
	"encoding/json"
	"time"
)

// Well-known envelope types. Application code may send additional types;
// clients interpret unknown types as opaque notifications.
const (
	TypeConnected    = "connected"
	TypePing         = "ping"
	TypeNotification = "notification"
	TypeAlert        = "alert"
	TypeUserOnline   = "user_online"
	TypeUserOffline  = "user_offline"
	TypeError        = "error"
)

// Envelope is the outbound message record written to client sockets.
// The Type field governs client-side interpretation.
type Envelope struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Message   string          `json:"message,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEnvelope builds an envelope with the given type and payload, stamping it
// with the given time. Payload marshalling errors are reported to the caller
// rather than silently producing a partial frame.
func NewEnvelope(typ string, payload any, now time.Time) (Envelope, error) {
	env := Envelope{Type: typ, Timestamp: now}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}

// ErrorEnvelope builds the protocol-error reply sent for malformed frames.
func ErrorEnvelope(message string, now time.Time) Envelope {
	return Envelope{Type: TypeError, Message: message, Timestamp: now}
}
