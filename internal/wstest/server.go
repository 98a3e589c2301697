// Package wstest provides an in-process graphql-transport-ws server for tests.
package wstest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"gqlclient/internal/protocol"
)

const frameBuffer = 256

// Options changes how the server answers the handshake
type Options struct {
	// SkipAck makes the server stay silent after connection_init
	SkipAck bool
	// FirstReply replaces the connection_ack sent after connection_init
	FirstReply *protocol.Frame
}

// Server accepts connections, acknowledges init and records client frames
type Server struct {
	srv      *httptest.Server
	opts     Options
	upgrader websocket.Upgrader

	mu    sync.Mutex
	conns []*serverConn
	total int

	Inits      chan *protocol.Frame
	Subscribes chan *protocol.Frame
	Completes  chan *protocol.Frame
	Pings      chan *protocol.Frame
	Pongs      chan *protocol.Frame

	done      chan struct{}
	closeOnce sync.Once
}

type serverConn struct {
	ws      *websocket.Conn
	writeMu sync.Mutex
}

func (c *serverConn) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteMessage(websocket.TextMessage, data)
}

// New starts a server that is closed when the test ends
func New(t testing.TB, opts Options) *Server {
	t.Helper()
	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			Subprotocols: []string{protocol.Subprotocol},
			CheckOrigin:  func(*http.Request) bool { return true },
		},
		Inits:      make(chan *protocol.Frame, frameBuffer),
		Subscribes: make(chan *protocol.Frame, frameBuffer),
		Completes:  make(chan *protocol.Frame, frameBuffer),
		Pings:      make(chan *protocol.Frame, frameBuffer),
		Pongs:      make(chan *protocol.Frame, frameBuffer),
		done:       make(chan struct{}),
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// URL returns the ws:// endpoint
func (s *Server) URL() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

// Connections returns the number of connections accepted so far
func (s *Server) Connections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.total
}

// Send writes a frame to the most recent connection
func (s *Server) Send(f *protocol.Frame) error {
	data, err := f.Bytes()
	if err != nil {
		return err
	}
	return s.SendRaw(data)
}

// SendRaw writes raw bytes to the most recent connection
func (s *Server) SendRaw(data []byte) error {
	s.mu.Lock()
	if len(s.conns) == 0 {
		s.mu.Unlock()
		return errors.New("no connection")
	}
	c := s.conns[len(s.conns)-1]
	s.mu.Unlock()
	return c.write(data)
}

// DropConnections closes every open connection without a close handshake
func (s *Server) DropConnections() {
	s.mu.Lock()
	conns := s.conns
	s.conns = nil
	s.mu.Unlock()

	for _, c := range conns {
		c.ws.Close()
	}
}

// Close drops all connections and stops the server
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.DropConnections()
		s.srv.Close()
	})
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	c := &serverConn{ws: ws}

	_, data, err := ws.ReadMessage()
	if err != nil {
		ws.Close()
		return
	}
	if f, err := protocol.Decode(data); err == nil {
		s.record(s.Inits, f)
	}

	s.mu.Lock()
	s.conns = append(s.conns, c)
	s.total++
	s.mu.Unlock()

	switch {
	case s.opts.FirstReply != nil:
		if data, err := s.opts.FirstReply.Bytes(); err == nil {
			c.write(data)
		}
	case !s.opts.SkipAck:
		if data, err := (&protocol.Frame{Type: protocol.TypeConnectionAck}).Bytes(); err == nil {
			c.write(data)
		}
	}

	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			ws.Close()
			return
		}
		f, err := protocol.Decode(data)
		if err != nil {
			continue
		}
		switch f.Type {
		case protocol.TypeSubscribe:
			s.record(s.Subscribes, f)
		case protocol.TypeComplete:
			s.record(s.Completes, f)
		case protocol.TypePing:
			s.record(s.Pings, f)
			if pong, err := protocol.NewPong().Bytes(); err == nil {
				c.write(pong)
			}
		case protocol.TypePong:
			s.record(s.Pongs, f)
		}
	}
}

func (s *Server) record(ch chan *protocol.Frame, f *protocol.Frame) {
	select {
	case ch <- f:
	case <-s.done:
	}
}
