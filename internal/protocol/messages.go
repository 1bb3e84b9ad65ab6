// Package protocol defines the WebSocket messages exchanged between the relay
// and connected frontends. All messages are JSON objects with a "type"
// discriminator; the relay pushes action requests and the frontend answers
// each one with an action reply carrying the same request ID.
package protocol

import (
	"encoding/json"
	"fmt"
)

// ---------------------------------------------------------------------------
// Message type constants
// ---------------------------------------------------------------------------

// Frontend -> relay message types.
const (
	TypeActionReply = "action_reply"
	TypePing        = "ping"
)

// Relay -> frontend message types.
const (
	TypeSessionCreated = "session_created"
	TypeActionRequest  = "action_request"
	TypeError          = "error"
	TypePong           = "pong"
)

// Error codes sent in ErrorMsg.
const (
	CodeParseError      = "parse_error"
	CodeUnsupportedType = "unsupported_type"
	CodeUnknownRequest  = "unknown_request"
)

// ---------------------------------------------------------------------------
// Envelope
// ---------------------------------------------------------------------------

// Envelope holds the message type and the raw JSON payload for deferred
// parsing into a concrete struct.
type Envelope struct {
	Type string          `json:"type"`
	Raw  json.RawMessage `json:"-"`
}

// UnmarshalJSON captures the full raw bytes and extracts only the "type"
// field.
func (e *Envelope) UnmarshalJSON(data []byte) error {
	e.Raw = make(json.RawMessage, len(data))
	copy(e.Raw, data)

	var partial struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &partial); err != nil {
		return fmt.Errorf("protocol: failed to unmarshal envelope: %w", err)
	}
	if partial.Type == "" {
		return fmt.Errorf("protocol: missing or empty \"type\" field")
	}
	e.Type = partial.Type
	return nil
}

// ---------------------------------------------------------------------------
// Frontend -> relay message structs
// ---------------------------------------------------------------------------

// ActionReplyMsg is the frontend's answer to an ActionRequestMsg. Response is
// the JSON-encoded return value and is empty when the action returned
// nothing.
type ActionReplyMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Response  string `json:"response,omitempty"`
}

// PingMsg is a frontend-initiated keepalive ping.
type PingMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Relay -> frontend message structs
// ---------------------------------------------------------------------------

// SessionCreatedMsg tells a newly connected frontend its session ID.
type SessionCreatedMsg struct {
	Type      string `json:"type"`
	SessionID uint32 `json:"session_id"`
}

// ActionRequestMsg asks the frontend to run an action. Parameters is a JSON
// array of positional arguments, passed through verbatim.
type ActionRequestMsg struct {
	Type       string          `json:"type"`
	RequestID  string          `json:"request_id"`
	Path       string          `json:"path"`
	Action     string          `json:"action"`
	Parameters json.RawMessage `json:"parameters"`
	Async      bool            `json:"async"`
}

// ErrorMsg reports a protocol error to the frontend.
type ErrorMsg struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// PongMsg is the relay's response to a frontend ping.
type PongMsg struct {
	Type string `json:"type"`
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ParseFrontendMessage parses a message sent by a frontend. It returns the
// message type, the decoded struct and any parse error. Relay-only and
// unknown types are rejected.
func ParseFrontendMessage(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg any
		err error
	)
	switch env.Type {
	case TypeActionReply:
		var m ActionReplyMsg
		err = json.Unmarshal(env.Raw, &m)
		if err == nil && m.RequestID == "" {
			err = fmt.Errorf("missing request_id")
		}
		msg = m
	case TypePing:
		var m PingMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown frontend message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// ParseRelayMessage parses a message sent by the relay. It is the frontend
// side counterpart of ParseFrontendMessage.
func ParseRelayMessage(data []byte) (string, any, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("protocol: failed to parse message: %w", err)
	}

	var (
		msg any
		err error
	)
	switch env.Type {
	case TypeSessionCreated:
		var m SessionCreatedMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeActionRequest:
		var m ActionRequestMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypeError:
		var m ErrorMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	case TypePong:
		var m PongMsg
		err = json.Unmarshal(env.Raw, &m)
		msg = m
	default:
		return env.Type, nil, fmt.Errorf("protocol: unknown relay message type: %q", env.Type)
	}

	if err != nil {
		return env.Type, nil, fmt.Errorf("protocol: failed to decode %q payload: %w", env.Type, err)
	}
	return env.Type, msg, nil
}

// NewMessage encodes payload with msgType injected under the "type" key.
// Field values are carried through as raw JSON, so numbers and nested
// parameter arrays are not re-encoded.
func NewMessage(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal payload: %w", err)
	}

	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("protocol: failed to unmarshal payload into map: %w", err)
	}
	if m == nil {
		m = make(map[string]json.RawMessage)
	}

	typ, err := json.Marshal(msgType)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal type: %w", err)
	}
	m["type"] = typ

	out, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("protocol: failed to marshal message: %w", err)
	}
	return out, nil
}
