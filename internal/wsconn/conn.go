// Package wsconn owns the physical graphql-transport-ws connection: dialing,
// the init/ack handshake, serialized writes and bounded reads.
package wsconn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"gqlclient/internal/protocol"
)

const (
	// writeTimeout bounds a single frame write
	writeTimeout = 10 * time.Second
	// closeGrace bounds the close handshake message
	closeGrace = time.Second
	// incomingBuffer is the number of frames read ahead of the router
	incomingBuffer = 256
)

// ErrClosed is returned for operations on a closed connection
var ErrClosed = errors.New("connection closed")

// ErrReadTimeout is returned when no frame arrived within the read timeout.
// The connection stays usable.
var ErrReadTimeout error = timeoutError{}

type timeoutError struct{}

func (timeoutError) Error() string   { return "read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

// IsTimeout returns true if err is the expected bounded-read timeout
func IsTimeout(err error) bool {
	return errors.Is(err, ErrReadTimeout)
}

// Conn is one established, acknowledged connection. It is never reused
// after a failure; reconnecting creates a new Conn.
type Conn struct {
	ws          *websocket.Conn
	id          string
	url         string
	readTimeout time.Duration
	logger      zerolog.Logger

	writeMu sync.Mutex

	incoming   chan []byte
	readerDone chan struct{}
	readErr    error

	done      chan struct{}
	closeOnce sync.Once
	alive     atomic.Bool
}

func newConn(ws *websocket.Conn, id, url string, readTimeout time.Duration, logger zerolog.Logger) *Conn {
	c := &Conn{
		ws:          ws,
		id:          id,
		url:         url,
		readTimeout: readTimeout,
		logger:      logger,
		incoming:    make(chan []byte, incomingBuffer),
		readerDone:  make(chan struct{}),
		done:        make(chan struct{}),
	}
	c.alive.Store(true)
	go c.readLoop()
	return c
}

// ID returns the session id used for log correlation
func (c *Conn) ID() string {
	return c.id
}

// URL returns the endpoint the connection was dialed to
func (c *Conn) URL() string {
	return c.url
}

// Alive returns false once a read or write failed or the connection was closed
func (c *Conn) Alive() bool {
	return c.alive.Load()
}

// WriteFrame sends one frame. Writes from all goroutines are serialized.
func (c *Conn) WriteFrame(f *protocol.Frame) error {
	data, err := f.Bytes()
	if err != nil {
		return fmt.Errorf("failed to marshal frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	select {
	case <-c.done:
		return ErrClosed
	default:
	}

	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		c.alive.Store(false)
		return fmt.Errorf("failed to write frame: %w", err)
	}
	return nil
}

// ReadFrame waits up to the steady-state read timeout for the next frame.
// ErrReadTimeout is expected and non-fatal; any other error means the
// connection is lost.
func (c *Conn) ReadFrame() (*protocol.Frame, error) {
	return c.readFrame(context.Background(), c.readTimeout)
}

// readFrame waits up to timeout for the next well-formed frame.
// A timeout of zero waits until a frame arrives or the connection ends.
func (c *Conn) readFrame(ctx context.Context, timeout time.Duration) (*protocol.Frame, error) {
	var timerC <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timerC = timer.C
	}

	for {
		select {
		case data := <-c.incoming:
			if f := c.decode(data); f != nil {
				return f, nil
			}
		case <-c.readerDone:
			// Frames read before the failure are still delivered
			select {
			case data := <-c.incoming:
				if f := c.decode(data); f != nil {
					return f, nil
				}
				continue
			default:
			}
			return nil, fmt.Errorf("failed to read frame: %w", c.readErr)
		case <-c.done:
			return nil, ErrClosed
		case <-timerC:
			return nil, ErrReadTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (c *Conn) decode(data []byte) *protocol.Frame {
	f, err := protocol.Decode(data)
	if err != nil {
		c.logger.Warn().Err(err).Int("len", len(data)).Msg("ignoring malformed frame")
		return nil
	}
	return f
}

func (c *Conn) readLoop() {
	defer close(c.readerDone)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			c.alive.Store(false)
			select {
			case <-c.done:
				c.readErr = ErrClosed
			default:
				c.readErr = err
			}
			return
		}
		select {
		case c.incoming <- data:
		case <-c.done:
			c.readErr = ErrClosed
			return
		}
	}
}

// Close closes the connection. Calling Close more than once returns nil.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.alive.Store(false)
		close(c.done)
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(closeGrace))
		err = c.ws.Close()
		c.logger.Debug().Msg("WebSocket closed")
	})
	return err
}
