// Package engine holds the correlation-id bookkeeping shared by every
// invoke variant in pkg/invoke: tracking the bus subscriptions opened
// for one in-flight call and tearing them all down exactly once,
// whichever of response/abort/fatal completes the call first.
package engine

import (
	"log/slog"
	"sync"

	"github.com/fgrzl/eventkit/internal/idgen"
	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/timestamp"
)

// Call tracks the bus subscriptions opened for one correlation id.
type Call struct {
	ID string

	mu        sync.Mutex
	subs      []bus.Subscription
	done      bool
	startedAt int64
}

// NewCall starts tracking subscriptions for id.
func NewCall(id string) *Call {
	startedAt := timestamp.GetTimestamp()
	slog.Debug("invoke: call registered", "id", id, "ts", startedAt)
	return &Call{ID: id, startedAt: startedAt}
}

// Track records sub for teardown by Finish. If the call already
// finished, sub is unsubscribed immediately.
func (c *Call) Track(sub bus.Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		sub.Unsubscribe()
		return
	}
	c.subs = append(c.subs, sub)
}

// Finish unsubscribes every tracked subscription. Safe to call more
// than once; only the first call does anything.
func (c *Call) Finish() {
	c.mu.Lock()
	if c.done {
		c.mu.Unlock()
		return
	}
	c.done = true
	subs := c.subs
	c.subs = nil
	startedAt := c.startedAt
	c.mu.Unlock()

	now := timestamp.GetTimestamp()
	slog.Debug("invoke: call disposed", "id", c.ID, "ts", now, "duration", now-startedAt)

	for _, s := range subs {
		s.Unsubscribe()
	}
}

// Generator is the package-wide correlation id source. Tests may
// replace it with a deterministic Generator.
var Generator idgen.Generator = idgen.Default{}

// NewID returns a fresh correlation id from Generator.
func NewID() string {
	return Generator.NewID()
}
