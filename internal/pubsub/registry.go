// Package pubsub is an in-process change stream. Subscribers register a
// resource key such as "ticket:42" or a wildcard such as "ai_response:*"
// and receive every change published to a matching key.
package pubsub

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ChannelSize is the buffer of each subscription. A full buffer drops the
// change and marks the subscription as lagged rather than blocking publishers.
const ChannelSize = 64

// Change is one committed change to a resource.
type Change struct {
	ResourceKey string    `json:"resource_key"`
	ChangeKind  string    `json:"change_kind"`
	NewValue    any       `json:"new_value"`
	At          time.Time `json:"at"`
}

// Subscription receives changes on C until Close is called.
type Subscription struct {
	C <-chan Change

	key      string
	ch       chan Change
	lagged   atomic.Bool
	closed   chan struct{}
	once     sync.Once
	registry *Registry
}

// Key returns the pattern the subscription was opened with.
func (s *Subscription) Key() string { return s.key }

// Lagged reports whether changes were dropped because C was full, and clears the flag.
func (s *Subscription) Lagged() bool { return s.lagged.Swap(false) }

// Done is closed once the subscription is closed.
func (s *Subscription) Done() <-chan struct{} { return s.closed }

// Close unregisters the subscription and closes C. Extra calls do nothing.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.registry.remove(s)
		close(s.closed)
		close(s.ch)
	})
}

// Registry fans published changes out to matching subscriptions.
type Registry struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	now  func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		subs: make(map[string]map[*Subscription]struct{}),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Subscribe opens a subscription for key. A key ending in ":*" matches every
// key with that prefix.
func (r *Registry) Subscribe(key string) *Subscription {
	ch := make(chan Change, ChannelSize)
	sub := &Subscription{C: ch, key: key, ch: ch, closed: make(chan struct{}), registry: r}

	r.mu.Lock()
	defer r.mu.Unlock()
	set, ok := r.subs[key]
	if !ok {
		set = make(map[*Subscription]struct{})
		r.subs[key] = set
	}
	set[sub] = struct{}{}
	return sub
}

// Publish delivers a change to subscribers of key and of its wildcard. It never blocks.
func (r *Registry) Publish(key, kind string, value any) {
	change := Change{ResourceKey: key, ChangeKind: kind, NewValue: value, At: r.now()}

	r.mu.RLock()
	defer r.mu.RUnlock()
	for sub := range r.subs[key] {
		trySend(sub, change)
	}
	if wildcard, ok := wildcardFor(key); ok {
		for sub := range r.subs[wildcard] {
			trySend(sub, change)
		}
	}
}

// Count returns the number of open subscriptions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, set := range r.subs {
		n += len(set)
	}
	return n
}

func (r *Registry) remove(sub *Subscription) {
	r.mu.Lock()
	defer r.mu.Unlock()
	set := r.subs[sub.key]
	delete(set, sub)
	if len(set) == 0 {
		delete(r.subs, sub.key)
	}
}

// trySend runs under the registry read lock, so Close cannot close ch concurrently.
func trySend(sub *Subscription, change Change) {
	select {
	case sub.ch <- change:
	default:
		sub.lagged.Store(true)
	}
}

func wildcardFor(key string) (string, bool) {
	i := strings.IndexByte(key, ':')
	if i < 0 || strings.HasSuffix(key, ":*") {
		return "", false
	}
	return key[:i] + ":*", true
}
