// Package transport wires a pkg/bus.Context to an external wire: every
// emission not already tagged as having arrived from the wire is
// encoded and handed to an Adapter's Publish, and every Frame the
// Adapter delivers on Inbound is decoded and re-emitted on the bus
// tagged bus.FlowInbound so Wire's own listener does not echo it back
// out. Grounded on the pack's Transport{Send,Receive,Close} +
// TransportCloser{Abort} shape (other_examples/develerltd-capnweb-go__transport.go),
// adapted from blocking Receive to a push-delivered Inbound channel to
// match how pkg/bus.Context already delivers everything else.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/json/polymorphic"
)

// Frame is the wire shape of one bus emission: ID/Kind mirror
// bus.Descriptor, Payload is the body's polymorphic.Envelope encoding.
type Frame struct {
	ID      string          `json:"id"`
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
}

// Adapter is what a concrete transport (loopback, websocket, named
// pipe, in-process channel, child-process stdio) implements to carry
// Frames across some boundary. Publish must be safe for concurrent
// use; Inbound's channel is closed exactly once, when the adapter has
// nothing further to deliver (the peer closed, or the adapter itself
// was closed).
type Adapter interface {
	Publish(ctx context.Context, f Frame) error
	Inbound() <-chan Frame
}

// Closer is an optional Adapter extension; Wire's stop func calls
// Close if the adapter implements it.
type Closer interface {
	Close() error
}

// ErrSource is an optional Adapter extension surfacing transport-level
// failures (a dropped connection, a write error) that Wire forwards to
// bc as a registered fatal source, matching TransportCloser.Abort's
// role in the reference transport.
type ErrSource interface {
	Err() <-chan error
}

var fatalFrameDescriptor = bus.Descriptor{ID: "__eventkit_transport_fatal__", Kind: "transport:fatal"}

// Wire connects bc to a, publishing every non-inbound emission and
// dispatching every Frame a delivers. The returned stop function tears
// down the bus listener, stops the dispatch goroutine, and closes a if
// it implements Closer; it does not block waiting for in-flight
// Publish calls to finish.
func Wire(bc *bus.Context, a Adapter) (stop func()) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	sub := bc.On(bus.Predicate(func(d bus.Descriptor) bool { return d.Flow != bus.FlowInbound }), func(env bus.Envelope, _ bus.EmitOptions) {
		frame, err := encodeFrame(env)
		if err != nil {
			return
		}
		_ = a.Publish(ctx, frame)
	})

	bc.RegisterFatalSource(bus.ID(fatalFrameDescriptor.ID))

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case frame, ok := <-a.Inbound():
				if !ok {
					return
				}
				body, err := decodeFrame(frame)
				if err != nil {
					continue
				}
				d := bus.Descriptor{ID: frame.ID, Kind: frame.Kind}.WithFlow(bus.FlowInbound)
				bc.Emit(d, body)
			case <-ctx.Done():
				return
			}
		}
	}()

	if src, ok := a.(ErrSource); ok {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case err, ok := <-src.Err():
					if !ok {
						return
					}
					bc.Emit(fatalFrameDescriptor, bus.FatalError{Err: err})
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			sub.Unsubscribe()
			cancel()
			if closer, ok := a.(Closer); ok {
				_ = closer.Close()
			}
			wg.Wait()
		})
	}
}

func encodeFrame(env bus.Envelope) (Frame, error) {
	body, ok := env.Body.(polymorphic.Polymorphic)
	if !ok {
		return Frame{}, fmt.Errorf("transport: encode %s: body %T does not implement polymorphic.Polymorphic", env.ID, env.Body)
	}
	envelope := polymorphic.NewEnvelope(body)
	payload, err := json.Marshal(envelope)
	if err != nil {
		return Frame{}, fmt.Errorf("transport: encode %s: %w", env.ID, err)
	}
	return Frame{ID: env.ID, Kind: env.Kind, Payload: payload}, nil
}

func decodeFrame(f Frame) (any, error) {
	envelope := &polymorphic.Envelope{}
	if err := json.Unmarshal(f.Payload, envelope); err != nil {
		return nil, fmt.Errorf("transport: decode %s: %w", f.ID, err)
	}
	return envelope.Content, nil
}
