package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_JSONDefaults(t *testing.T) {
	path := writeFile(t, "config.json", `{
		"environments": {
			"dev": {"url": "http://localhost:4000/graphql", "wss": "ws://localhost:4000/graphql"}
		}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, "dev", cfg.DefaultEnvironment, "single environment is selected implicitly")
	assert.Equal(t, 5*time.Second, cfg.GetAckTimeoutDuration())
	assert.Equal(t, 15*time.Second, cfg.GetPingIntervalDuration())
	assert.Equal(t, time.Second, cfg.GetReconnectInitialIntervalDuration())
	assert.Equal(t, 5*time.Second, cfg.GetReconnectMaxIntervalDuration())
	assert.Equal(t, 2*time.Second, cfg.GetJoinTimeoutDuration())
	assert.Equal(t, DefaultRetryMaxAttempts, cfg.RetryMaxAttempts)
	assert.False(t, cfg.IsFlattenCacheEnabled())

	env := cfg.Environments["dev"]
	assert.Equal(t, time.Minute, env.GetPostTimeoutDuration())
	assert.Equal(t, time.Second, env.GetWebsocketTimeoutDuration())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, "config.yaml", `
logLevel: debug
defaultEnvironment: prod
ackTimeout: 2500
flattenCache:
  enabled: true
environments:
  dev:
    url: http://localhost:4000/graphql
  prod:
    url: https://api.example.com/graphql
    wss: wss://api.example.com/graphql
    headers:
      Authorization: Bearer token
    postTimeout: 10000
    ipv4Only: true
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "prod", cfg.DefaultEnvironment)
	assert.Equal(t, 2500*time.Millisecond, cfg.GetAckTimeoutDuration())
	require.True(t, cfg.IsFlattenCacheEnabled())
	assert.Equal(t, DefaultFlattenCacheSize, cfg.FlattenCache.Size)
	assert.Equal(t, 5*time.Minute, cfg.FlattenCache.GetTTLDuration())

	prod := cfg.Environments["prod"]
	assert.Equal(t, "Bearer token", prod.Headers["Authorization"])
	assert.Equal(t, 10*time.Second, prod.GetPostTimeoutDuration())
	assert.True(t, prod.IPv4Only)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad json", `{`},
		{"unknown default", `{"defaultEnvironment":"x","environments":{"dev":{"url":"http://a"}}}`},
		{"no endpoints", `{"environments":{"dev":{}}}`},
		{"bad log level", `{"logLevel":"trace"}`},
		{"negative ack", `{"ackTimeout":-1}`},
		{"backoff inverted", `{"reconnectInitialInterval":9000,"reconnectMaxInterval":1000}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, "config.json", tt.content))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Empty(t, cfg.Environments)
	assert.True(t, cfg.IsFlattenCacheEnabled())
	assert.Equal(t, DefaultJoinTimeout, cfg.JoinTimeout)
}
