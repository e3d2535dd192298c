// Package loopback wires two pkg/bus.Context instances directly
// together in the same process, with no encoding step: every emission
// on one side is re-emitted on the other carrying its original typed
// Body. This is the one leg of the transport story that never crosses
// pkg/transport.Frame's JSON boundary, since there is nothing to
// encode for — it exists for single-process setups (tests, embedding
// eventkit's invoke/remote machinery inside one binary) where a real
// wire would only add overhead.
package loopback

import (
	"sync"

	"github.com/fgrzl/eventkit/pkg/bus"
)

// Pair links two bus.Contexts, a and b. Body values must be safe to
// share between whatever goroutines a and b's own listeners run on;
// loopback does not copy them.
type Pair struct {
	a, b   *bus.Context
	subA   bus.Subscription
	subB   bus.Subscription
	once   sync.Once
}

// Wire connects a and b and returns the Pair so the caller can Close
// it. Every emission not already tagged bus.FlowInbound on one side is
// forwarded to the other tagged bus.FlowInbound, the same contract
// pkg/transport.Wire uses for real adapters, so code written against
// one works unmodified against the other.
func Wire(a, b *bus.Context) *Pair {
	p := &Pair{a: a, b: b}

	notInbound := bus.Predicate(func(d bus.Descriptor) bool { return d.Flow != bus.FlowInbound })

	p.subA = a.On(notInbound, func(env bus.Envelope, opts bus.EmitOptions) {
		b.Emit(env.Descriptor.WithFlow(bus.FlowInbound), env.Body, optsToEmitOptions(opts)...)
	})
	p.subB = b.On(notInbound, func(env bus.Envelope, opts bus.EmitOptions) {
		a.Emit(env.Descriptor.WithFlow(bus.FlowInbound), env.Body, optsToEmitOptions(opts)...)
	})

	return p
}

func optsToEmitOptions(o bus.EmitOptions) []bus.EmitOption {
	return []bus.EmitOption{bus.WithCompress(o.Compress), bus.WithExtra(o.Extra)}
}

// Close tears down both directions. Safe to call more than once.
func (p *Pair) Close() {
	p.once.Do(func() {
		p.subA.Unsubscribe()
		p.subB.Unsubscribe()
	})
}
