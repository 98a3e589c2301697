package protocol

import "encoding/json"

// Subprotocol is the WebSocket sub-protocol negotiated on dial
const Subprotocol = "graphql-transport-ws"

// MessageType is the value of a frame's "type" field
type MessageType string

// Client -> server
const (
	TypeConnectionInit MessageType = "connection_init"
	TypeSubscribe      MessageType = "subscribe"
)

// Server -> client
const (
	TypeConnectionAck MessageType = "connection_ack"
	TypeNext          MessageType = "next"
	TypeError         MessageType = "error"
)

// Both directions
const (
	TypeComplete MessageType = "complete"
	TypePing     MessageType = "ping"
	TypePong     MessageType = "pong"
)

// Known returns true if the type is part of the sub-protocol
func (t MessageType) Known() bool {
	switch t {
	case TypeConnectionInit, TypeSubscribe, TypeConnectionAck, TypeNext,
		TypeError, TypeComplete, TypePing, TypePong:
		return true
	}
	return false
}

// Frame is one protocol message exchanged over the connection
type Frame struct {
	ID      string          `json:"id,omitempty"`
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HasID returns true if the frame is addressed to a subscription
func (f *Frame) HasID() bool {
	return f.ID != ""
}

// SubscribePayload is the payload of a subscribe frame
type SubscribePayload struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}
