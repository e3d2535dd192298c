// Package bchan is an in-process, route-keyed fan-out hub: every Frame
// published on a route is delivered to every other subscriber of that
// same route, using a messaging.Route as topic identity without caring
// which concrete message bus would carry it in production.
package bchan

import (
	"context"
	"sync"

	"github.com/fgrzl/eventkit/pkg/transport"
	"github.com/fgrzl/messaging"
)

// Hub is a registry of routes, each fanning Frames out to
// every subscriber on that route except the publisher itself.
type Hub struct {
	mu     sync.Mutex
	routes map[messaging.Route]*topic
}

// NewHub returns an empty hub.
func NewHub() *Hub {
	return &Hub{routes: make(map[messaging.Route]*topic)}
}

type topic struct {
	mu   sync.Mutex
	subs []*Adapter
}

func (h *Hub) topicFor(route messaging.Route) *topic {
	h.mu.Lock()
	defer h.mu.Unlock()
	t, ok := h.routes[route]
	if !ok {
		t = &topic{}
		h.routes[route] = t
	}
	return t
}

// Join returns a pkg/transport.Adapter subscribed to route on h.
// Publishing on the returned adapter delivers to every other adapter
// currently joined to the same route; it never echoes back to itself.
func (h *Hub) Join(route messaging.Route) *Adapter {
	t := h.topicFor(route)

	a := &Adapter{
		topic:   t,
		inbound: make(chan transport.Frame, 32),
	}

	t.mu.Lock()
	t.subs = append(t.subs, a)
	t.mu.Unlock()

	return a
}

// Adapter is one subscriber's handle on a route; it implements
// pkg/transport.Adapter.
type Adapter struct {
	topic   *topic
	inbound chan transport.Frame
	once    sync.Once
}

var _ transport.Adapter = (*Adapter)(nil)

// Publish fans f out to every other adapter on the same route.
func (a *Adapter) Publish(_ context.Context, f transport.Frame) error {
	a.topic.mu.Lock()
	peers := make([]*Adapter, len(a.topic.subs))
	copy(peers, a.topic.subs)
	a.topic.mu.Unlock()

	for _, peer := range peers {
		if peer == a {
			continue
		}
		select {
		case peer.inbound <- f:
		default:
		}
	}
	return nil
}

// Inbound returns the channel Frames from other subscribers arrive on.
func (a *Adapter) Inbound() <-chan transport.Frame { return a.inbound }

// Close removes a from its route and closes its inbound channel. Safe
// to call more than once.
func (a *Adapter) Close() error {
	a.once.Do(func() {
		a.topic.mu.Lock()
		out := a.topic.subs[:0]
		for _, s := range a.topic.subs {
			if s != a {
				out = append(out, s)
			}
		}
		a.topic.subs = out
		a.topic.mu.Unlock()
		close(a.inbound)
	})
	return nil
}
