package wsconn

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gqlclient/internal/protocol"
	"gqlclient/internal/wstest"
)

func open(t *testing.T, srv *wstest.Server, opts Options) (*Conn, error) {
	t.Helper()
	opts.URL = srv.URL()
	if opts.AckTimeout == 0 {
		opts.AckTimeout = time.Second
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 50 * time.Millisecond
	}
	return NewDialer(opts, zerolog.Nop()).Open(context.Background())
}

func receive(t *testing.T, ch <-chan *protocol.Frame) *protocol.Frame {
	t.Helper()
	select {
	case f := <-ch:
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return nil
	}
}

func TestOpen_SendsInitWithHeaders(t *testing.T) {
	srv := wstest.New(t, wstest.Options{})

	conn, err := open(t, srv, Options{Headers: map[string]string{"Authorization": "Bearer t"}})
	require.NoError(t, err)
	defer conn.Close()

	init := receive(t, srv.Inits)
	assert.Equal(t, protocol.TypeConnectionInit, init.Type)
	assert.JSONEq(t, `{"Authorization":"Bearer t"}`, string(init.Payload))
	assert.True(t, conn.Alive())
	assert.NotEmpty(t, conn.ID())
	assert.Equal(t, srv.URL(), conn.URL())
}

func TestOpen_AckTimeout(t *testing.T) {
	srv := wstest.New(t, wstest.Options{SkipAck: true})

	_, err := open(t, srv, Options{AckTimeout: 50 * time.Millisecond})
	require.Error(t, err)

	var connectErr *ConnectError
	require.True(t, errors.As(err, &connectErr))
	assert.ErrorIs(t, err, ErrAckTimeout)
}

func TestOpen_UnexpectedFirstFrame(t *testing.T) {
	srv := wstest.New(t, wstest.Options{FirstReply: &protocol.Frame{Type: protocol.TypeError}})

	_, err := open(t, srv, Options{})
	assert.ErrorIs(t, err, ErrUnexpectedAck)
}

func TestOpen_DialFailure(t *testing.T) {
	d := NewDialer(Options{URL: "ws://127.0.0.1:1/graphql", HandshakeTimeout: 200 * time.Millisecond}, zerolog.Nop())
	_, err := d.Open(context.Background())

	var connectErr *ConnectError
	require.True(t, errors.As(err, &connectErr))
	assert.Equal(t, "ws://127.0.0.1:1/graphql", connectErr.URL)
}

func TestOpen_NoURL(t *testing.T) {
	_, err := NewDialer(Options{}, zerolog.Nop()).Open(context.Background())
	var connectErr *ConnectError
	assert.True(t, errors.As(err, &connectErr))
}

func TestReadFrame_TimeoutIsNotFatal(t *testing.T) {
	srv := wstest.New(t, wstest.Options{})
	conn, err := open(t, srv, Options{})
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.ReadFrame()
	require.Error(t, err)
	assert.True(t, IsTimeout(err))

	require.NoError(t, srv.Send(&protocol.Frame{ID: "1", Type: protocol.TypeComplete}))

	f, err := conn.ReadFrame()
	for IsTimeout(err) {
		f, err = conn.ReadFrame()
	}
	require.NoError(t, err)
	assert.Equal(t, "1", f.ID)
	assert.Equal(t, protocol.TypeComplete, f.Type)
	assert.True(t, conn.Alive())
}

func TestReadFrame_SkipsMalformed(t *testing.T) {
	srv := wstest.New(t, wstest.Options{})
	conn, err := open(t, srv, Options{ReadTimeout: time.Second})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, srv.SendRaw([]byte(`not json`)))
	require.NoError(t, srv.SendRaw([]byte(`{"id":"1"}`)))
	require.NoError(t, srv.Send(&protocol.Frame{Type: protocol.TypePong}))

	f, err := conn.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, protocol.TypePong, f.Type)
}

func TestReadFrame_ConnectionLost(t *testing.T) {
	srv := wstest.New(t, wstest.Options{})
	conn, err := open(t, srv, Options{})
	require.NoError(t, err)
	defer conn.Close()

	srv.DropConnections()

	deadline := time.Now().Add(2 * time.Second)
	for {
		_, err = conn.ReadFrame()
		if !IsTimeout(err) || time.Now().After(deadline) {
			break
		}
	}
	require.Error(t, err)
	assert.False(t, IsTimeout(err))
	assert.False(t, conn.Alive())
}

func TestWriteFrame_Concurrent(t *testing.T) {
	srv := wstest.New(t, wstest.Options{})
	conn, err := open(t, srv, Options{})
	require.NoError(t, err)
	defer conn.Close()

	const n = 50
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, conn.WriteFrame(protocol.NewPing()))
		}()
	}
	wg.Wait()

	for i := 0; i < n; i++ {
		f := receive(t, srv.Pings)
		assert.Equal(t, protocol.TypePing, f.Type)
	}
}

func TestClose_Idempotent(t *testing.T) {
	srv := wstest.New(t, wstest.Options{})
	conn, err := open(t, srv, Options{})
	require.NoError(t, err)

	conn.Close()
	assert.NoError(t, conn.Close())
	assert.False(t, conn.Alive())
	assert.ErrorIs(t, conn.WriteFrame(protocol.NewPing()), ErrClosed)

	_, err = conn.ReadFrame()
	assert.ErrorIs(t, err, ErrClosed)
}
