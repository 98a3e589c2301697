package config

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrNoEnvironment is returned when no usable environment is selected
	ErrNoEnvironment = errors.New("cannot execute without setting an environment")
	// ErrUnknownEnvironment is returned for names that were never added
	ErrUnknownEnvironment = errors.New("environment not set")
)

// Store holds named environments and the current selection.
// All methods are safe for concurrent use. Methods taking an environment
// name act on the current environment when the name is empty.
type Store struct {
	mu      sync.RWMutex
	envs    map[string]*Environment
	current string
}

// NewStore creates a store seeded from the configuration
func NewStore(cfg *Config) *Store {
	s := &Store{envs: make(map[string]*Environment)}
	if cfg == nil {
		return s
	}
	for name, env := range cfg.Environments {
		if env == nil {
			continue
		}
		e := env.Clone()
		s.envs[name] = &e
	}
	s.current = cfg.DefaultEnvironment
	return s
}

// AddEnvironment adds or replaces an environment, selecting it when makeDefault is set
func (s *Store) AddEnvironment(name string, env Environment, makeDefault bool) error {
	if err := validateEnvironment(name, &env); err != nil {
		return err
	}
	applyEnvironmentDefaults(&env)
	e := env.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.envs[name] = &e
	if makeDefault {
		s.current = name
	}
	return nil
}

// SetEnvironment selects the current environment
func (s *Store) SetEnvironment(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.envs[name]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEnvironment, name)
	}
	s.current = name
	return nil
}

// Environment returns the name of the current environment
func (s *Store) Environment() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Names returns the names of all environments
func (s *Store) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.envs))
	for name := range s.envs {
		names = append(names, name)
	}
	return names
}

// Current returns a copy of the current environment
func (s *Store) Current() (Environment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.envs[s.current]
	if !ok {
		return Environment{}, ErrNoEnvironment
	}
	return env.Clone(), nil
}

// Get returns a copy of a named environment
func (s *Store) Get(name string) (Environment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	env, ok := s.envs[name]
	if !ok {
		return Environment{}, false
	}
	return env.Clone(), true
}

// Enter switches to the named environment and returns a func restoring
// the previous selection. The name is not checked here; executing against
// an unknown environment fails with ErrNoEnvironment.
func (s *Store) Enter(name string) (restore func()) {
	s.mu.Lock()
	saved := s.current
	s.current = name
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		s.current = saved
		s.mu.Unlock()
	}
}

// SetURL sets the HTTP endpoint of an environment
func (s *Store) SetURL(name, url string) error {
	return s.update(name, func(env *Environment) { env.URL = url })
}

// SetWSS sets the subscription endpoint of an environment
func (s *Store) SetWSS(name, url string) error {
	return s.update(name, func(env *Environment) { env.WSS = url })
}

// AddHeader merges headers into an environment
func (s *Store) AddHeader(name string, headers map[string]string) error {
	return s.update(name, func(env *Environment) {
		if env.Headers == nil {
			env.Headers = make(map[string]string, len(headers))
		}
		for k, v := range headers {
			env.Headers[k] = v
		}
	})
}

// SetPostTimeout sets the HTTP request timeout of an environment
func (s *Store) SetPostTimeout(name string, timeout time.Duration) error {
	return s.update(name, func(env *Environment) { env.PostTimeout = int(timeout.Milliseconds()) })
}

// SetWebsocketTimeout sets the subscription read timeout of an environment
func (s *Store) SetWebsocketTimeout(name string, timeout time.Duration) error {
	return s.update(name, func(env *Environment) { env.WebsocketTimeout = int(timeout.Milliseconds()) })
}

func (s *Store) update(name string, fn func(env *Environment)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" {
		name = s.current
	}
	env, ok := s.envs[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownEnvironment, name)
	}
	fn(env)
	return nil
}
