package wsconn

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gqlclient/internal/protocol"
)

const (
	// DefaultHandshakeTimeout bounds the HTTP upgrade
	DefaultHandshakeTimeout = 10 * time.Second
	// DefaultAckTimeout bounds the wait for connection_ack
	DefaultAckTimeout = 5 * time.Second
)

var (
	// ErrAckTimeout is returned when the server does not acknowledge init in time
	ErrAckTimeout = errors.New("timed out waiting for connection_ack")
	// ErrUnexpectedAck is returned when the first frame after init is not an ack
	ErrUnexpectedAck = errors.New("expected connection_ack")
)

// ConnectError reports a failed open. No connection is left behind.
type ConnectError struct {
	URL string
	Err error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("failed connecting to %s: %v", e.URL, e.Err)
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Options configures a Dialer
type Options struct {
	URL              string
	Headers          map[string]string
	HandshakeTimeout time.Duration
	AckTimeout       time.Duration
	ReadTimeout      time.Duration
	IPv4Only         bool
}

// Dialer opens acknowledged connections to one endpoint
type Dialer struct {
	opts   Options
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// NewDialer creates a dialer for the given endpoint
func NewDialer(opts Options, logger zerolog.Logger) *Dialer {
	if opts.HandshakeTimeout == 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.AckTimeout == 0 {
		opts.AckTimeout = DefaultAckTimeout
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
		Subprotocols:     []string{protocol.Subprotocol},
	}
	if opts.IPv4Only {
		netDialer := &net.Dialer{Timeout: opts.HandshakeTimeout}
		dialer.NetDialContext = func(ctx context.Context, _, addr string) (net.Conn, error) {
			return netDialer.DialContext(ctx, "tcp4", addr)
		}
	}

	return &Dialer{
		opts:   opts,
		dialer: dialer,
		logger: logger.With().Str("component", "wsconn").Logger(),
	}
}

// URL returns the endpoint
func (d *Dialer) URL() string {
	return d.opts.URL
}

// Open dials the endpoint, sends connection_init and waits for
// connection_ack. Any failure returns a *ConnectError. Open does not retry.
func (d *Dialer) Open(ctx context.Context) (*Conn, error) {
	if d.opts.URL == "" {
		return nil, &ConnectError{URL: d.opts.URL, Err: errors.New("no subscription endpoint configured")}
	}

	id := uuid.NewString()
	logger := d.logger.With().Str("session", id).Logger()
	logger.Debug().Str("url", d.opts.URL).Msg("WebSocket connecting")

	ws, resp, err := d.dialer.DialContext(ctx, d.opts.URL, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, &ConnectError{URL: d.opts.URL, Err: err}
	}
	if ws.Subprotocol() != protocol.Subprotocol {
		logger.Debug().Str("subprotocol", ws.Subprotocol()).Msg("server did not confirm subprotocol")
	}

	conn := newConn(ws, id, d.opts.URL, d.opts.ReadTimeout, logger)

	init, err := protocol.NewConnectionInit(d.opts.Headers)
	if err != nil {
		conn.Close()
		return nil, &ConnectError{URL: d.opts.URL, Err: err}
	}
	if err := conn.WriteFrame(init); err != nil {
		conn.Close()
		return nil, &ConnectError{URL: d.opts.URL, Err: err}
	}

	if err := d.waitAck(ctx, conn); err != nil {
		conn.Close()
		return nil, &ConnectError{URL: d.opts.URL, Err: err}
	}

	logger.Info().Str("url", d.opts.URL).Msg("WebSocket connected")
	return conn, nil
}

func (d *Dialer) waitAck(ctx context.Context, conn *Conn) error {
	f, err := conn.readFrame(ctx, d.opts.AckTimeout)
	if err != nil {
		if IsTimeout(err) {
			return ErrAckTimeout
		}
		return err
	}
	if f.Type != protocol.TypeConnectionAck {
		return fmt.Errorf("%w, got %q", ErrUnexpectedAck, f.Type)
	}
	return nil
}
