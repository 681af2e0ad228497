// Package dispatch routes generic chat requests to registered provider
// adapters. Each adapter is guarded by a predicate; the first registered
// adapter whose predicate matches handles the request.
package dispatch

import (
	"context"
	"sync"

	"github.com/switchboardai/switchboard/pkg/chat"
)

// Adapter is a backend-specific implementation of the generic contract.
type Adapter interface {
	// Perform issues a non-streaming call and returns one complete response.
	Perform(ctx context.Context, req *chat.Request) (*chat.Response, error)

	// Stream issues a streaming call and yields deltas as they arrive,
	// including a terminal delta carrying the stop reason. The channel is
	// closed when the stream ends.
	Stream(ctx context.Context, req *chat.Request) (<-chan *chat.Response, error)
}

// Predicate reports whether an adapter can satisfy a request.
type Predicate func(req *chat.Request) bool

type entry struct {
	adapter   Adapter
	predicate Predicate
}

// Dispatcher holds registered adapters in registration order. Registration
// is expected to happen before concurrent dispatch begins; dispatch itself
// only reads the adapter set.
type Dispatcher struct {
	mu      sync.RWMutex
	entries []entry
}

// New creates an empty dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// Register adds an adapter guarded by a predicate. A nil predicate matches
// every request. If two adapters match the same request, registration order
// decides; there is no priority scheme beyond first-match.
func (d *Dispatcher) Register(adapter Adapter, predicate Predicate) {
	if predicate == nil {
		predicate = func(*chat.Request) bool { return true }
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	d.entries = append(d.entries, entry{adapter: adapter, predicate: predicate})
}

// Count returns the number of registered adapters.
func (d *Dispatcher) Count() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.entries)
}

func (d *Dispatcher) match(req *chat.Request) (Adapter, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, e := range d.entries {
		if e.predicate(req) {
			return e.adapter, true
		}
	}
	return nil, false
}

// Perform routes the request to the first matching adapter. It fails with
// chat.ErrNoProvider, without any network activity, when nothing matches.
func (d *Dispatcher) Perform(ctx context.Context, req *chat.Request) (*chat.Response, error) {
	adapter, ok := d.match(req)
	if !ok {
		return nil, chat.ErrNoProvider
	}
	return adapter.Perform(ctx, req)
}

// Stream routes the request to the first matching adapter and returns its
// delta stream.
func (d *Dispatcher) Stream(ctx context.Context, req *chat.Request) (<-chan *chat.Response, error) {
	adapter, ok := d.match(req)
	if !ok {
		return nil, chat.ErrNoProvider
	}
	return adapter.Stream(ctx, req)
}
