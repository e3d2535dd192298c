package engine

import (
	"sync"

	"github.com/fgrzl/eventkit/pkg/bus"
)

// FatalGroup lets every in-flight call sharing one bus.Context/tag pair
// reject together when a fatal transport source fires, without each
// call installing its own bus.Context.OnFatal sink (OnFatal has no
// Off, so per-call registration would leak one sink per completed call
// for the lifetime of the context).
type FatalGroup struct {
	mu      sync.Mutex
	pending map[string]func(error)
}

// NewFatalGroup wires a single OnFatal sink on bc that fans out to
// whatever calls are registered at the time it fires.
func NewFatalGroup(bc *bus.Context) *FatalGroup {
	g := &FatalGroup{pending: make(map[string]func(error))}
	bc.OnFatal(g.fire)
	return g
}

func (g *FatalGroup) fire(err error) {
	g.mu.Lock()
	fns := make([]func(error), 0, len(g.pending))
	for _, fn := range g.pending {
		fns = append(fns, fn)
	}
	g.pending = make(map[string]func(error))
	g.mu.Unlock()

	for _, fn := range fns {
		fn(err)
	}
}

// Register arms onFatal for id; the returned func removes it, and must
// be called once the call completes normally so a long-lived group
// doesn't accumulate finished calls.
func (g *FatalGroup) Register(id string, onFatal func(error)) (unregister func()) {
	g.mu.Lock()
	g.pending[id] = onFatal
	g.mu.Unlock()
	return func() {
		g.mu.Lock()
		delete(g.pending, id)
		g.mu.Unlock()
	}
}
