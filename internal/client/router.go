package client

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"

	"gqlclient/internal/protocol"
	"gqlclient/internal/subscription"
	"gqlclient/internal/wsconn"
)

const backoffMultiplier = 1.5

func (c *Client) newBackoff() *backoff.ExponentialBackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.GetReconnectInitialIntervalDuration()
	bo.MaxInterval = c.cfg.GetReconnectMaxIntervalDuration()
	bo.Multiplier = backoffMultiplier
	// Reconnection is retried for as long as the client is open
	bo.MaxElapsedTime = 0
	bo.Reset()
	return bo
}

// routerLoop reads frames and hands them to subscription queues. It also
// reaps stopped subscriptions and drives reconnection while halted.
func (c *Client) routerLoop(l *loops) {
	defer close(l.routerDone)
	c.logger.Debug().Msg("router started")

	bo := c.newBackoff()
	for {
		select {
		case <-l.stop:
			c.logger.Debug().Msg("router stopped")
			return
		default:
		}

		if c.halted.Load() {
			c.reconnect(l, bo)
			continue
		}

		if c.unsubscribing.Load() {
			sleep(subscription.PollInterval, l.stop)
			continue
		}

		c.registry.Reap(c.cfg.GetJoinTimeoutDuration())
		c.metrics.SetActive(c.registry.Len())

		conn := c.currentConn()
		if conn == nil {
			sleep(subscription.PollInterval, l.stop)
			continue
		}

		f, err := conn.ReadFrame()
		if err != nil {
			if wsconn.IsTimeout(err) {
				continue
			}
			if !c.closing.Load() && !errors.Is(err, wsconn.ErrClosed) {
				c.logger.Warn().Str("session", conn.ID()).Err(err).Msg("error receiving from WebSocket")
			}
			c.halt(err)
			continue
		}

		c.dispatch(conn, f)
	}
}

// dispatch routes one frame. Frames for ids no longer registered are
// dropped, which is expected while subscriptions are being torn down.
func (c *Client) dispatch(conn *wsconn.Conn, f *protocol.Frame) {
	if f.Type.Known() {
		c.metrics.FrameReceived(string(f.Type))
	} else {
		c.metrics.FrameReceived("unknown")
	}

	if f.HasID() {
		sub, ok := c.registry.Get(f.ID)
		if !ok {
			c.metrics.FrameDropped()
			c.logger.Debug().Str("id", f.ID).Str("type", string(f.Type)).Msg("dropping frame for inactive subscription")
			return
		}
		sub.Push(f)
		return
	}

	switch f.Type {
	case protocol.TypeConnectionAck:
		c.logger.Debug().Msg("connection ack with the server")
	case protocol.TypePong:
	case protocol.TypePing:
		if err := conn.WriteFrame(protocol.NewPong()); err != nil {
			c.halt(err)
		}
	default:
		c.logger.Warn().Str("type", string(f.Type)).RawJSON("payload", rawOrNull(f.Payload)).Msg("unknown message type")
	}
}

// reconnect makes one attempt to leave the halted state. On failure it
// waits for the next backoff interval.
func (c *Client) reconnect(l *loops, bo *backoff.ExponentialBackOff) {
	c.logger.Info().Msg("connection halted, attempting reconnection")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		select {
		case <-l.stop:
			cancel()
		case <-ctx.Done():
		}
	}()
	conn, err := c.open(ctx)
	cancel()

	if err != nil {
		c.metrics.ReconnectFailed()
		wait := bo.NextBackOff()
		c.logger.Warn().Err(err).Dur("nextRetry", wait).Msg("reconnection failed, will retry")
		sleep(wait, l.stop)
		return
	}

	c.subMu.Lock()
	if c.closing.Load() {
		c.subMu.Unlock()
		conn.Close()
		return
	}
	if old := c.swapConn(conn); old != nil {
		old.Close()
	}
	c.halted.Store(false)
	c.logger.Info().Str("session", conn.ID()).Msg("reconnection succeeded, resubscribing to lost subscriptions")
	err = c.resubscribeAll()
	c.subMu.Unlock()

	if err != nil {
		// A send failed and halted the new connection; the next attempt
		// resubscribes again.
		c.metrics.ReconnectFailed()
		wait := bo.NextBackOff()
		c.logger.Warn().Err(err).Dur("nextRetry", wait).Msg("resubscription failed")
		sleep(wait, l.stop)
		return
	}

	bo.Reset()
	c.metrics.Reconnected()
	c.logger.Info().Int("subscriptions", c.registry.Len()).Msg("finished resubscriptions")
}

func rawOrNull(data []byte) []byte {
	if len(data) == 0 {
		return []byte("null")
	}
	return data
}
