package subscription

import (
	"sync"
	"sync/atomic"
	"time"

	"gqlclient/internal/protocol"
)

// Subscription is the state of one logical subscription.
// Only its worker sets running and runs; the router and facade set kill.
type Subscription struct {
	id   string
	seq  uint64
	opts Options

	mu    sync.Mutex
	queue []*protocol.Frame

	running  atomic.Bool
	starting atomic.Bool
	kill     atomic.Bool
	started  atomic.Bool
	runs     atomic.Uint64

	done chan struct{}
}

func newSubscription(id string, seq uint64, opts Options) *Subscription {
	s := &Subscription{
		id:   id,
		seq:  seq,
		opts: opts,
		done: make(chan struct{}),
	}
	s.starting.Store(true)
	return s
}

// ID returns the subscription id
func (s *Subscription) ID() string {
	return s.id
}

// Options returns the options the subscription was created with
func (s *Subscription) Options() Options {
	return s.opts
}

// Push appends a frame to the queue
func (s *Subscription) Push(f *protocol.Frame) {
	s.mu.Lock()
	s.queue = append(s.queue, f)
	s.mu.Unlock()
}

// pop removes the oldest frame, or returns nil when the queue is empty
func (s *Subscription) pop() *protocol.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		return nil
	}
	f := s.queue[0]
	s.queue[0] = nil
	s.queue = s.queue[1:]
	return f
}

// Pending returns the number of queued frames
func (s *Subscription) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.queue)
}

// Running returns true while the worker is consuming
func (s *Subscription) Running() bool {
	return s.running.Load()
}

// Starting returns true until the worker has started
func (s *Subscription) Starting() bool {
	return s.starting.Load()
}

// Killed returns true once the subscription was asked to stop or has stopped
func (s *Subscription) Killed() bool {
	return s.kill.Load()
}

// Kill asks the worker to stop
func (s *Subscription) Kill() {
	s.kill.Store(true)
}

// MarkStopped clears the running flag after an explicit unsubscribe
func (s *Subscription) MarkStopped() {
	s.running.Store(false)
}

// Runs returns the number of messages delivered to the handler
func (s *Subscription) Runs() uint64 {
	return s.runs.Load()
}

// Done is closed when the worker exits
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// Join waits up to timeout for the worker to exit. A subscription whose
// worker never started joins immediately.
func (s *Subscription) Join(timeout time.Duration) bool {
	if !s.started.Load() {
		return true
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-s.done:
		return true
	case <-timer.C:
		return false
	}
}

// reapable reports whether the router may delete the entry
func (s *Subscription) reapable() bool {
	if s.starting.Load() {
		return false
	}
	return s.kill.Load() || !s.running.Load()
}
