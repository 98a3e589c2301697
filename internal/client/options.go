package client

import (
	"gqlclient/internal/config"
	"gqlclient/internal/metrics"
	"gqlclient/internal/subscription"
)

// Option configures a Client
type Option func(*Client)

// WithMetrics records transport metrics
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithStore uses an existing environment store instead of one built from
// the configuration
func WithStore(store *config.Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

// SubscribeOption configures a single subscription
type SubscribeOption func(*subscribeOptions)

type subscribeOptions struct {
	id           string
	errorHandler subscription.ErrorHandler
	flatten      bool
}

// WithID uses a caller-chosen subscription id instead of the next counter value
func WithID(id string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.id = id
	}
}

// WithErrorHandler receives error frames and messages carrying GraphQL errors
func WithErrorHandler(h subscription.ErrorHandler) SubscribeOption {
	return func(o *subscribeOptions) {
		o.errorHandler = h
	}
}

// WithFlatten enables or disables flattening of delivered messages. It is
// enabled by default.
func WithFlatten(enabled bool) SubscribeOption {
	return func(o *subscribeOptions) {
		o.flatten = enabled
	}
}
