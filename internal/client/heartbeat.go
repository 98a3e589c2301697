package client

import (
	"errors"
	"fmt"
	"time"

	"gqlclient/internal/protocol"
	"gqlclient/internal/wsconn"
)

// heartbeatTick is how often the heartbeat checks whether a ping is due
const heartbeatTick = 100 * time.Millisecond

// heartbeatLoop sends a ping whenever the ping interval has elapsed. A
// failed send halts the connection.
func (c *Client) heartbeatLoop(l *loops) {
	defer close(l.heartbeatDone)

	ticker := time.NewTicker(heartbeatTick)
	defer ticker.Stop()

	interval := c.cfg.GetPingIntervalDuration()
	lastPing := time.Now()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
		}

		if interval <= 0 || c.halted.Load() {
			continue
		}
		if time.Since(lastPing) <= interval {
			continue
		}
		lastPing = time.Now()

		conn := c.currentConn()
		if conn == nil {
			continue
		}
		if err := conn.WriteFrame(protocol.NewPing()); err != nil {
			if c.closing.Load() || errors.Is(err, wsconn.ErrClosed) && c.halted.Load() {
				continue
			}
			c.halt(fmt.Errorf("error trying to send ping: %w", err))
		}
	}
}
