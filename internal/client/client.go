// Package client multiplexes GraphQL subscriptions over one self-healing
// graphql-transport-ws connection.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"gqlclient/internal/config"
	"gqlclient/internal/flatten"
	"gqlclient/internal/httpexec"
	"gqlclient/internal/metrics"
	"gqlclient/internal/protocol"
	"gqlclient/internal/subscription"
	"gqlclient/internal/wsconn"
)

var (
	// ErrNoSubscriptionEndpoint is returned when the current environment has no wss URL
	ErrNoSubscriptionEndpoint = errors.New("environment has no subscription endpoint")
	// ErrShutdown is returned by Subscribe after Shutdown
	ErrShutdown = errors.New("client is shut down")
)

// State is the router state, derived from the client flags
type State string

const (
	StateIdle          State = "IDLE"
	StateRouting       State = "ROUTING"
	StateHalted        State = "HALTED"
	StateUnsubscribing State = "UNSUBSCRIBING"
	StateClosing       State = "CLOSING"
)

// Unsubscribe stops one subscription. It returns false if the
// subscription was already gone.
type Unsubscribe func() bool

// loops is one generation of router and heartbeat goroutines
type loops struct {
	stop          chan struct{}
	routerDone    chan struct{}
	heartbeatDone chan struct{}
}

// Client owns the subscription connection and its subscriptions
type Client struct {
	cfg      *config.Config
	store    *config.Store
	logger   zerolog.Logger
	metrics  *metrics.Metrics
	memo     *flatten.Memo
	registry *subscription.Registry
	worker   *subscription.Worker
	exec     *httpexec.Executor

	connMu sync.RWMutex
	conn   *wsconn.Conn

	// subMu serializes subscribe, unsubscribe and resubscription
	subMu sync.Mutex

	loopMu sync.Mutex
	loops  *loops

	halted        atomic.Bool
	closing       atomic.Bool
	unsubscribing atomic.Bool
	shutdown      atomic.Bool
}

// New creates a client. No connection is made until the first Subscribe.
func New(cfg *config.Config, logger zerolog.Logger, opts ...Option) (*Client, error) {
	if cfg == nil {
		cfg = config.Default()
	}

	c := &Client{
		cfg:    cfg,
		logger: logger.With().Str("component", "client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.store == nil {
		c.store = config.NewStore(cfg)
	}

	if cfg.IsFlattenCacheEnabled() {
		memo, err := flatten.NewMemo(cfg.FlattenCache.Size, cfg.FlattenCache.GetTTLDuration())
		if err != nil {
			return nil, fmt.Errorf("failed to create flatten cache: %w", err)
		}
		c.memo = memo
	}

	c.exec = httpexec.New(c.store, cfg, logger)
	c.registry = subscription.NewRegistry(logger)
	c.worker = subscription.NewWorker(c.memo, c.metrics, logger)
	return c, nil
}

// Store returns the environment store
func (c *Client) Store() *config.Store {
	return c.store
}

// State returns the current router state
func (c *Client) State() State {
	switch {
	case c.closing.Load():
		return StateClosing
	case c.halted.Load():
		return StateHalted
	case c.unsubscribing.Load():
		return StateUnsubscribing
	}
	if !c.loopsRunning() {
		return StateIdle
	}
	return StateRouting
}

// Subscriptions returns the registered subscription ids in registration order
func (c *Client) Subscriptions() []string {
	return c.registry.IDs()
}

// Runs returns how many messages the subscription delivered
func (c *Client) Runs(id string) (uint64, bool) {
	sub, ok := c.registry.Get(id)
	if !ok {
		return 0, false
	}
	return sub.Runs(), true
}

// Running returns true while the subscription's worker is consuming
func (c *Client) Running(id string) bool {
	sub, ok := c.registry.Get(id)
	return ok && sub.Running()
}

// Subscribe starts a subscription and returns the function that stops it.
// The first call opens the connection; if that fails no subscription is
// created and the error is returned. A nil handler logs each message.
func (c *Client) Subscribe(ctx context.Context, query string, variables map[string]any, handler subscription.Handler, opts ...SubscribeOption) (Unsubscribe, error) {
	o := subscribeOptions{flatten: true}
	for _, opt := range opts {
		opt(&o)
	}
	if handler == nil {
		handler = c.defaultHandler
	}

	c.subMu.Lock()
	defer c.subMu.Unlock()

	if c.shutdown.Load() {
		return nil, ErrShutdown
	}
	if err := c.ensureConnected(ctx); err != nil {
		c.logger.Error().Err(err).Msg("error creating WebSocket connection for subscription")
		return nil, err
	}

	id, err := c.subscribeLocked(o.id, subscription.Options{
		Request:      subscription.Request{Query: query, Variables: variables},
		Handler:      handler,
		ErrorHandler: o.errorHandler,
		Flatten:      o.flatten,
	})
	if err != nil {
		return nil, err
	}

	return func() bool { return c.Unsubscribe(id) }, nil
}

// Unsubscribe stops the subscription with the given id and removes it.
// No handler call for id happens after it returns.
func (c *Client) Unsubscribe(id string) bool {
	c.subMu.Lock()
	defer c.subMu.Unlock()
	return c.unsubscribeLocked(id)
}

func (c *Client) unsubscribeLocked(id string) bool {
	sub, ok := c.registry.Get(id)
	if !ok {
		c.logger.Debug().Str("id", id).Msg("subscription already cleared")
		return false
	}

	c.unsubscribing.Store(true)
	defer c.unsubscribing.Store(false)

	sub.Kill()
	if conn := c.currentConn(); conn != nil {
		if err := conn.WriteFrame(protocol.NewComplete(id)); err != nil {
			c.logger.Debug().Str("id", id).Err(err).Msg("connection broken, nothing to stop")
		}
	}
	if !sub.Join(c.cfg.GetJoinTimeoutDuration()) {
		c.logger.Warn().Str("id", id).Msg("subscription worker did not stop in time")
	}
	sub.MarkStopped()
	c.registry.Delete(id)
	c.metrics.SetActive(c.registry.Len())
	return true
}

// Close unsubscribes everything, stops the background loops and closes the
// connection. The client can be used again afterwards.
func (c *Client) Close(ctx context.Context) error {
	c.closing.Store(true)
	defer c.closing.Store(false)

	c.loopMu.Lock()
	l := c.loops
	c.loopMu.Unlock()
	if l == nil {
		c.logger.Debug().Msg("connection not established, nothing to close")
		return nil
	}

	for _, id := range c.registry.IDs() {
		c.Unsubscribe(id)
	}

	var errs error
	if conn := c.swapConn(nil); conn != nil {
		errs = multierr.Append(errs, conn.Close())
	}

	close(l.stop)
	for _, done := range []chan struct{}{l.routerDone, l.heartbeatDone} {
		select {
		case <-done:
		case <-ctx.Done():
			errs = multierr.Append(errs, fmt.Errorf("waiting for background loops: %w", ctx.Err()))
		}
		if ctx.Err() != nil {
			break
		}
	}

	c.loopMu.Lock()
	c.loops = nil
	c.loopMu.Unlock()

	c.registry.Clear()
	c.registry.ResetCounter()
	c.halted.Store(false)
	c.metrics.SetActive(0)

	c.logger.Info().Msg("client closed")
	return errs
}

// Shutdown closes the client for good and releases the flatten cache.
// Subscribe fails with ErrShutdown afterwards.
func (c *Client) Shutdown(ctx context.Context) error {
	c.subMu.Lock()
	c.shutdown.Store(true)
	c.subMu.Unlock()

	err := c.Close(ctx)
	c.memo.Close()
	return err
}

// ResetConnection drops the connection so the router reconnects and
// resubscribes. It returns false if there is no running connection.
func (c *Client) ResetConnection() bool {
	if !c.loopsRunning() {
		c.logger.Info().Msg("connection not established, nothing to reset")
		return false
	}
	c.halt(errors.New("connection reset requested"))
	return true
}

// ensureConnected opens the connection and starts the loops the first time.
// Callers hold subMu.
func (c *Client) ensureConnected(ctx context.Context) error {
	if c.currentConn() != nil && c.loopsRunning() {
		return nil
	}

	conn, err := c.open(ctx)
	if err != nil {
		return err
	}
	if old := c.swapConn(conn); old != nil {
		old.Close()
	}
	c.halted.Store(false)
	c.restartLoops()
	return nil
}

// subscribeLocked registers a subscription, starts its worker and sends the
// subscribe frame. A failed send halts the connection; the subscription is
// kept and reissued after reconnection. Callers hold subMu.
func (c *Client) subscribeLocked(id string, opts subscription.Options) (string, error) {
	sub, err := c.registry.Register(id, opts)
	if err != nil {
		return "", err
	}

	frame, err := protocol.NewSubscribe(sub.ID(), opts.Request.Query, opts.Request.Variables)
	if err != nil {
		c.registry.Delete(sub.ID())
		return "", err
	}

	c.worker.Start(sub)
	c.metrics.SetActive(c.registry.Len())

	if err := c.send(frame); err != nil {
		c.halt(fmt.Errorf("failed to send subscribe for id %s: %w", sub.ID(), err))
		return sub.ID(), nil
	}

	c.logger.Debug().Str("id", sub.ID()).Msg("subscribed")
	return sub.ID(), nil
}

// resubscribeAll tears down every subscription and reissues it under its
// original id. Callers hold subMu.
func (c *Client) resubscribeAll() error {
	snaps := c.registry.Snapshot()
	c.registry.KillAll()
	c.registry.JoinAll(c.cfg.GetJoinTimeoutDuration())
	c.registry.Clear()

	var errs error
	for _, snap := range snaps {
		c.logger.Debug().Str("id", snap.ID).Msg("resubscribing")
		if _, err := c.subscribeLocked(snap.ID, snap.Options); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if c.halted.Load() {
		errs = multierr.Append(errs, errors.New("connection lost during resubscription"))
	}
	return errs
}

func (c *Client) open(ctx context.Context) (*wsconn.Conn, error) {
	env, err := c.store.Current()
	if err != nil {
		return nil, err
	}
	if env.WSS == "" {
		return nil, ErrNoSubscriptionEndpoint
	}

	dialer := wsconn.NewDialer(wsconn.Options{
		URL:         env.WSS,
		Headers:     env.Headers,
		AckTimeout:  c.cfg.GetAckTimeoutDuration(),
		ReadTimeout: env.GetWebsocketTimeoutDuration(),
		IPv4Only:    env.IPv4Only,
	}, c.logger)
	return dialer.Open(ctx)
}

func (c *Client) send(f *protocol.Frame) error {
	conn := c.currentConn()
	if conn == nil {
		return wsconn.ErrClosed
	}
	return conn.WriteFrame(f)
}

func (c *Client) currentConn() *wsconn.Conn {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.conn
}

// swapConn installs conn and returns the previous connection
func (c *Client) swapConn(conn *wsconn.Conn) *wsconn.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	old := c.conn
	c.conn = conn
	return old
}

// halt marks the connection dead and closes it so the router reconnects.
// It does nothing while closing.
func (c *Client) halt(reason error) {
	if c.closing.Load() {
		return
	}
	if !c.halted.CompareAndSwap(false, true) {
		return
	}
	c.logger.Warn().Err(reason).Msg("connection halted")
	if conn := c.currentConn(); conn != nil {
		conn.Close()
	}
}

func (c *Client) loopsRunning() bool {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()
	if c.loops == nil {
		return false
	}
	select {
	case <-c.loops.routerDone:
		return false
	default:
		return true
	}
}

// restartLoops starts router and heartbeat unless they are already running
func (c *Client) restartLoops() {
	c.loopMu.Lock()
	defer c.loopMu.Unlock()

	if c.loops != nil {
		select {
		case <-c.loops.routerDone:
		default:
			return
		}
	}

	l := &loops{
		stop:          make(chan struct{}),
		routerDone:    make(chan struct{}),
		heartbeatDone: make(chan struct{}),
	}
	c.loops = l
	go c.routerLoop(l)
	go c.heartbeatLoop(l)
}

func (c *Client) defaultHandler(message json.RawMessage) {
	c.logger.Info().RawJSON("message", message).Msg("message received on subscription")
}

func sleep(d time.Duration, stop <-chan struct{}) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-stop:
		return false
	}
}
