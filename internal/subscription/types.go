package subscription

import (
	"encoding/json"

	"gqlclient/internal/protocol"
)

// Handler receives the payload of each data message
type Handler func(message json.RawMessage)

// ErrorHandler receives error frames and next frames carrying GraphQL errors
type ErrorHandler func(frame *protocol.Frame)

// Request is the subscription document and its variables
type Request struct {
	Query     string
	Variables map[string]any
}

// Options is everything needed to (re)issue a subscription
type Options struct {
	Request      Request
	Handler      Handler
	ErrorHandler ErrorHandler
	Flatten      bool
}

// Snapshot captures a subscription before it is torn down for resubscription
type Snapshot struct {
	ID      string
	Options Options
}
