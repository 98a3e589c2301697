package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMissingType is returned when a decoded frame has no type
var ErrMissingType = errors.New("frame has no type")

// Decode parses a single frame from a text message
func Decode(data []byte) (*Frame, error) {
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse frame: %w", err)
	}
	if f.Type == "" {
		return nil, ErrMissingType
	}
	return &f, nil
}

// Bytes returns the frame as JSON bytes
func (f *Frame) Bytes() ([]byte, error) {
	return json.Marshal(f)
}

// NewConnectionInit creates the init frame carrying the connection headers
func NewConnectionInit(headers map[string]string) (*Frame, error) {
	if headers == nil {
		headers = map[string]string{}
	}
	payload, err := json.Marshal(headers)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal init payload: %w", err)
	}
	return &Frame{Type: TypeConnectionInit, Payload: payload}, nil
}

// NewSubscribe creates a subscribe frame for the given id and document
func NewSubscribe(id, query string, variables map[string]any) (*Frame, error) {
	payload, err := json.Marshal(SubscribePayload{Query: query, Variables: variables})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal subscribe payload: %w", err)
	}
	return &Frame{ID: id, Type: TypeSubscribe, Payload: payload}, nil
}

// NewComplete creates the stop frame for a subscription
func NewComplete(id string) *Frame {
	return &Frame{ID: id, Type: TypeComplete}
}

// NewPing creates a keep-alive ping
func NewPing() *Frame {
	return &Frame{Type: TypePing}
}

// NewPong creates the answer to a server ping
func NewPong() *Frame {
	return &Frame{Type: TypePong}
}

// ParseSubscribe extracts the subscribe payload of a frame
func (f *Frame) ParseSubscribe() (*SubscribePayload, error) {
	if f.Type != TypeSubscribe {
		return nil, fmt.Errorf("not a subscribe frame: %s", f.Type)
	}
	var p SubscribePayload
	if err := json.Unmarshal(f.Payload, &p); err != nil {
		return nil, fmt.Errorf("invalid subscribe payload: %w", err)
	}
	return &p, nil
}
