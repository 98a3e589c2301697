package config

import "time"

// Config represents the main configuration structure
type Config struct {
	LogLevel                 string                  `json:"logLevel" yaml:"logLevel"`
	DefaultEnvironment       string                  `json:"defaultEnvironment" yaml:"defaultEnvironment"`
	Environments             map[string]*Environment `json:"environments" yaml:"environments"`
	AckTimeout               int                     `json:"ackTimeout" yaml:"ackTimeout"`                             // ms - wait for connection_ack after init
	PingInterval             int                     `json:"pingInterval" yaml:"pingInterval"`                         // ms - keep-alive ping period
	ReconnectInitialInterval int                     `json:"reconnectInitialInterval" yaml:"reconnectInitialInterval"` // ms - first reconnect backoff
	ReconnectMaxInterval     int                     `json:"reconnectMaxInterval" yaml:"reconnectMaxInterval"`         // ms - backoff ceiling
	JoinTimeout              int                     `json:"joinTimeout" yaml:"joinTimeout"`                           // ms - wait for a stopping worker
	RetryMaxAttempts         int                     `json:"retryMaxAttempts" yaml:"retryMaxAttempts"`
	MetricsAddr              string                  `json:"metricsAddr,omitempty" yaml:"metricsAddr,omitempty"`
	FlattenCache             *FlattenCacheConfig     `json:"flattenCache,omitempty" yaml:"flattenCache,omitempty"`
}

// FlattenCacheConfig represents the flatten memo configuration
type FlattenCacheConfig struct {
	Enabled bool `json:"enabled" yaml:"enabled"`
	TTL     int  `json:"ttl" yaml:"ttl"`   // seconds
	Size    int  `json:"size" yaml:"size"` // number of entries
}

// Environment is one named GraphQL endpoint
type Environment struct {
	URL              string            `json:"url" yaml:"url"`
	WSS              string            `json:"wss" yaml:"wss"`
	Headers          map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	PostTimeout      int               `json:"postTimeout" yaml:"postTimeout"`           // ms - whole request timeout on the HTTP path
	WebsocketTimeout int               `json:"websocketTimeout" yaml:"websocketTimeout"` // ms - bound of a single subscription read
	IPv4Only         bool              `json:"ipv4Only" yaml:"ipv4Only"`
}

// Default values
const (
	DefaultLogLevel                 = "info"
	DefaultAckTimeout               = 5000  // ms
	DefaultPingInterval             = 15000 // ms
	DefaultReconnectInitialInterval = 1000  // ms
	DefaultReconnectMaxInterval     = 5000  // ms
	DefaultJoinTimeout              = 2000  // ms
	DefaultRetryMaxAttempts         = 1     // a single attempt, no retry
	DefaultPostTimeout              = 60000 // ms
	DefaultWebsocketTimeout         = 1000  // ms
	DefaultFlattenCacheSize         = 256
	DefaultFlattenCacheTTL          = 300 // seconds
)

// GetAckTimeoutDuration returns ack timeout as time.Duration
func (c *Config) GetAckTimeoutDuration() time.Duration {
	return time.Duration(c.AckTimeout) * time.Millisecond
}

// GetPingIntervalDuration returns ping interval as time.Duration
func (c *Config) GetPingIntervalDuration() time.Duration {
	return time.Duration(c.PingInterval) * time.Millisecond
}

// GetReconnectInitialIntervalDuration returns the first backoff as time.Duration
func (c *Config) GetReconnectInitialIntervalDuration() time.Duration {
	return time.Duration(c.ReconnectInitialInterval) * time.Millisecond
}

// GetReconnectMaxIntervalDuration returns the backoff ceiling as time.Duration
func (c *Config) GetReconnectMaxIntervalDuration() time.Duration {
	return time.Duration(c.ReconnectMaxInterval) * time.Millisecond
}

// GetJoinTimeoutDuration returns join timeout as time.Duration
func (c *Config) GetJoinTimeoutDuration() time.Duration {
	return time.Duration(c.JoinTimeout) * time.Millisecond
}

// IsFlattenCacheEnabled returns true if the flatten memo is configured and enabled
func (c *Config) IsFlattenCacheEnabled() bool {
	return c.FlattenCache != nil && c.FlattenCache.Enabled
}

// GetTTLDuration returns cache TTL as time.Duration
func (c *FlattenCacheConfig) GetTTLDuration() time.Duration {
	return time.Duration(c.TTL) * time.Second
}

// GetPostTimeoutDuration returns post timeout as time.Duration
func (e *Environment) GetPostTimeoutDuration() time.Duration {
	return time.Duration(e.PostTimeout) * time.Millisecond
}

// GetWebsocketTimeoutDuration returns websocket read timeout as time.Duration
func (e *Environment) GetWebsocketTimeoutDuration() time.Duration {
	return time.Duration(e.WebsocketTimeout) * time.Millisecond
}

// Clone returns a deep copy of the environment
func (e *Environment) Clone() Environment {
	out := *e
	if e.Headers != nil {
		out.Headers = make(map[string]string, len(e.Headers))
		for k, v := range e.Headers {
			out.Headers[k] = v
		}
	}
	return out
}
