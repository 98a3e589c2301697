package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore(nil)
	require.NoError(t, s.AddEnvironment("dev", Environment{URL: "http://dev/graphql", WSS: "ws://dev/graphql"}, true))
	require.NoError(t, s.AddEnvironment("test", Environment{URL: "http://test/graphql"}, false))
	return s
}

func TestStore_CurrentIsCopy(t *testing.T) {
	s := newTestStore(t)

	env, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, "http://dev/graphql", env.URL)
	assert.Equal(t, DefaultPostTimeout, env.PostTimeout)

	env.URL = "changed"
	env2, _ := s.Current()
	assert.Equal(t, "http://dev/graphql", env2.URL)
}

func TestStore_NoEnvironment(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Current()
	assert.ErrorIs(t, err, ErrNoEnvironment)
}

func TestStore_SetEnvironment(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetEnvironment("test"))
	assert.Equal(t, "test", s.Environment())

	err := s.SetEnvironment("bad_environ")
	assert.ErrorIs(t, err, ErrUnknownEnvironment)
	assert.Equal(t, "test", s.Environment())
}

func TestStore_Enter(t *testing.T) {
	s := newTestStore(t)

	restore := s.Enter("test")
	assert.Equal(t, "test", s.Environment())
	restore()
	assert.Equal(t, "dev", s.Environment())

	restore = s.Enter("bad_environ")
	_, err := s.Current()
	assert.ErrorIs(t, err, ErrNoEnvironment)
	restore()
	_, err = s.Current()
	assert.NoError(t, err)
}

func TestStore_Setters(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetURL("", "https://some.url.io"))
	require.NoError(t, s.SetWSS("", "wss://some.websocket.io"))
	require.NoError(t, s.AddHeader("", map[string]string{"test_header": "Bearer x"}))
	require.NoError(t, s.SetPostTimeout("", 103*time.Second))
	require.NoError(t, s.SetWebsocketTimeout("test", 250*time.Millisecond))

	env, err := s.Current()
	require.NoError(t, err)
	assert.Equal(t, "https://some.url.io", env.URL)
	assert.Equal(t, "wss://some.websocket.io", env.WSS)
	assert.Equal(t, "Bearer x", env.Headers["test_header"])
	assert.Equal(t, 103*time.Second, env.GetPostTimeoutDuration())

	testEnv, ok := s.Get("test")
	require.True(t, ok)
	assert.Equal(t, 250*time.Millisecond, testEnv.GetWebsocketTimeoutDuration())

	assert.ErrorIs(t, s.SetURL("nope", "x"), ErrUnknownEnvironment)
}

func TestStore_FromConfig(t *testing.T) {
	cfg, err := Parse([]byte(`{"environments":{"a":{"url":"http://a"},"b":{"url":"http://b"}},"defaultEnvironment":"b"}`), ".json")
	require.NoError(t, err)

	s := NewStore(cfg)
	assert.Equal(t, "b", s.Environment())
	assert.ElementsMatch(t, []string{"a", "b"}, s.Names())

	require.NoError(t, s.AddHeader("a", map[string]string{"k": "v"}))
	assert.Empty(t, cfg.Environments["a"].Headers, "store must not alias the config")
}

func TestStore_AddEnvironmentValidates(t *testing.T) {
	s := NewStore(nil)
	assert.Error(t, s.AddEnvironment("empty", Environment{}, true))
	assert.Equal(t, "", s.Environment())
}
