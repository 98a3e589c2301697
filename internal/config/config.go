package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file.
// Files ending in .yaml or .yml are read as YAML, anything else as JSON.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes configuration bytes in the format named by ext
func Parse(data []byte, ext string) (*Config, error) {
	cfg := &Config{}

	switch strings.ToLower(ext) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with no environments and all defaults set
func Default() *Config {
	cfg := &Config{
		FlattenCache: &FlattenCacheConfig{Enabled: true},
	}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.AckTimeout == 0 {
		cfg.AckTimeout = DefaultAckTimeout
	}
	if cfg.PingInterval == 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.ReconnectInitialInterval == 0 {
		cfg.ReconnectInitialInterval = DefaultReconnectInitialInterval
	}
	if cfg.ReconnectMaxInterval == 0 {
		cfg.ReconnectMaxInterval = DefaultReconnectMaxInterval
	}
	if cfg.JoinTimeout == 0 {
		cfg.JoinTimeout = DefaultJoinTimeout
	}
	if cfg.RetryMaxAttempts == 0 {
		cfg.RetryMaxAttempts = DefaultRetryMaxAttempts
	}

	if cfg.FlattenCache != nil && cfg.FlattenCache.Enabled {
		if cfg.FlattenCache.Size == 0 {
			cfg.FlattenCache.Size = DefaultFlattenCacheSize
		}
		if cfg.FlattenCache.TTL == 0 {
			cfg.FlattenCache.TTL = DefaultFlattenCacheTTL
		}
	}

	if cfg.Environments == nil {
		cfg.Environments = make(map[string]*Environment)
	}
	for _, env := range cfg.Environments {
		if env != nil {
			applyEnvironmentDefaults(env)
		}
	}

	// A single environment is selected implicitly
	if cfg.DefaultEnvironment == "" && len(cfg.Environments) == 1 {
		for name := range cfg.Environments {
			cfg.DefaultEnvironment = name
		}
	}
}

func applyEnvironmentDefaults(env *Environment) {
	if env.PostTimeout == 0 {
		env.PostTimeout = DefaultPostTimeout
	}
	if env.WebsocketTimeout == 0 {
		env.WebsocketTimeout = DefaultWebsocketTimeout
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	for name, env := range cfg.Environments {
		if err := validateEnvironment(name, env); err != nil {
			return err
		}
	}

	if cfg.DefaultEnvironment != "" {
		if _, ok := cfg.Environments[cfg.DefaultEnvironment]; !ok {
			return fmt.Errorf("defaultEnvironment '%s' is not defined", cfg.DefaultEnvironment)
		}
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.AckTimeout < 0 {
		return fmt.Errorf("ackTimeout must be non-negative")
	}

	if cfg.PingInterval < 0 {
		return fmt.Errorf("pingInterval must be non-negative")
	}

	if cfg.ReconnectInitialInterval < 0 || cfg.ReconnectMaxInterval < 0 {
		return fmt.Errorf("reconnect intervals must be non-negative")
	}

	if cfg.ReconnectMaxInterval < cfg.ReconnectInitialInterval {
		return fmt.Errorf("reconnectMaxInterval must not be less than reconnectInitialInterval")
	}

	if cfg.JoinTimeout < 0 {
		return fmt.Errorf("joinTimeout must be non-negative")
	}

	if cfg.RetryMaxAttempts < 0 {
		return fmt.Errorf("retryMaxAttempts must be non-negative")
	}

	if cfg.FlattenCache != nil && cfg.FlattenCache.Enabled {
		if cfg.FlattenCache.TTL <= 0 {
			return fmt.Errorf("flattenCache.ttl must be positive when cache is enabled")
		}
		if cfg.FlattenCache.Size <= 0 {
			return fmt.Errorf("flattenCache.size must be positive when cache is enabled")
		}
	}

	return nil
}

func validateEnvironment(name string, env *Environment) error {
	if name == "" {
		return fmt.Errorf("environment name is required")
	}
	if env == nil {
		return fmt.Errorf("environment '%s': definition is empty", name)
	}
	if env.URL == "" && env.WSS == "" {
		return fmt.Errorf("environment '%s': at least one of url or wss is required", name)
	}
	if env.PostTimeout < 0 {
		return fmt.Errorf("environment '%s': postTimeout must be non-negative", name)
	}
	if env.WebsocketTimeout < 0 {
		return fmt.Errorf("environment '%s': websocketTimeout must be non-negative", name)
	}
	return nil
}
