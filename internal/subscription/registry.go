package subscription

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// ErrDuplicateID is returned when registering an id that is still present
var ErrDuplicateID = errors.New("subscription id already registered")

// Registry maps subscription ids to their state
type Registry struct {
	mu      sync.RWMutex
	subs    map[string]*Subscription
	counter uint64
	seq     uint64
	logger  zerolog.Logger
}

// NewRegistry creates an empty registry
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		subs:   make(map[string]*Subscription),
		logger: logger.With().Str("component", "subscription-registry").Logger(),
	}
}

// Register inserts a fresh entry in the starting state. An empty id is
// replaced with the next counter value.
func (r *Registry) Register(id string, opts Options) (*Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id == "" {
		for {
			r.counter++
			id = strconv.FormatUint(r.counter, 10)
			if _, exists := r.subs[id]; !exists {
				break
			}
		}
	} else if _, exists := r.subs[id]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}

	r.seq++
	sub := newSubscription(id, r.seq, opts)
	r.subs[id] = sub
	return sub, nil
}

// Get returns the entry for id
func (r *Registry) Get(id string) (*Subscription, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sub, ok := r.subs[id]
	return sub, ok
}

// Delete removes the entry for id
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.subs[id]; !ok {
		return false
	}
	delete(r.subs, id)
	return true
}

// Len returns the number of entries
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// IDs returns all ids in registration order
func (r *Registry) IDs() []string {
	subs := r.ordered()
	ids := make([]string, len(subs))
	for i, sub := range subs {
		ids[i] = sub.id
	}
	return ids
}

// Snapshot captures every entry's id and options in registration order
func (r *Registry) Snapshot() []Snapshot {
	subs := r.ordered()
	out := make([]Snapshot, len(subs))
	for i, sub := range subs {
		out[i] = Snapshot{ID: sub.id, Options: sub.opts}
	}
	return out
}

// KillAll asks every worker to stop
func (r *Registry) KillAll() {
	for _, sub := range r.ordered() {
		sub.Kill()
	}
}

// JoinAll waits for every worker to exit, sharing one deadline.
// It returns the ids whose workers did not exit in time.
func (r *Registry) JoinAll(timeout time.Duration) []string {
	deadline := time.Now().Add(timeout)
	var stuck []string
	for _, sub := range r.ordered() {
		remaining := time.Until(deadline)
		if remaining < 0 {
			remaining = 0
		}
		if !sub.Join(remaining) {
			stuck = append(stuck, sub.id)
		}
	}
	if len(stuck) > 0 {
		r.logger.Warn().Strs("ids", stuck).Msg("subscription workers did not stop in time")
	}
	return stuck
}

// Clear removes every entry
func (r *Registry) Clear() {
	r.mu.Lock()
	r.subs = make(map[string]*Subscription)
	r.mu.Unlock()
}

// ResetCounter restarts automatic ids from 1
func (r *Registry) ResetCounter() {
	r.mu.Lock()
	r.counter = 0
	r.mu.Unlock()
}

// Reap deletes entries that were killed or stopped running, skipping those
// still starting. Each worker is joined for up to joinTimeout first.
// It returns the deleted ids.
func (r *Registry) Reap(joinTimeout time.Duration) []string {
	var candidates []*Subscription
	r.mu.RLock()
	for _, sub := range r.subs {
		if sub.reapable() {
			candidates = append(candidates, sub)
		}
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return nil
	}

	var deleted []string
	for _, sub := range candidates {
		if !sub.Join(joinTimeout) {
			r.logger.Warn().Str("id", sub.id).Msg("subscription worker did not stop in time")
		}
		r.mu.Lock()
		// The id may have been re-registered while joining
		if current, ok := r.subs[sub.id]; ok && current == sub {
			delete(r.subs, sub.id)
			deleted = append(deleted, sub.id)
		}
		r.mu.Unlock()
	}
	if len(deleted) > 0 {
		r.logger.Debug().Strs("ids", deleted).Msg("deleted halted subscriptions")
	}
	return deleted
}

func (r *Registry) ordered() []*Subscription {
	r.mu.RLock()
	subs := make([]*Subscription, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	sort.Slice(subs, func(i, j int) bool { return subs[i].seq < subs[j].seq })
	return subs
}
