package remote

import (
	"context"
	"sync"

	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/eventkit/pkg/invoke"
)

// Factory is the remote-methods-aware counterpart to
// pkg/invoke.DefineInvoke/DefineInvokeHandler: it wraps the base
// unary invoke call with Serialize/Deserialize so Func-valued fields
// anywhere in the request or response graph survive the trip, and
// guarantees the stub handlers each direction's serialize pass
// registers are torn down exactly once.
type Factory struct {
	cfg *Config
}

// New returns a Factory bound to cfg.
func New(cfg *Config) *Factory { return &Factory{cfg: cfg} }

// RemoteInvoker is a bound remote-methods call for one tag, mirroring
// invoke.Invoker but operating on the walkable any-graphs
// Serialize/Deserialize understand rather than a fixed Go type, since
// the whole point is that the graph's shape isn't known until it's
// walked.
type RemoteInvoker struct {
	factory *Factory
	inner   *invoke.Invoker[any, any]
}

// DefineRemoteInvoke binds a remote-methods call for tag to f.
func DefineRemoteInvoke(f *Factory, tag string) *RemoteInvoker {
	return &RemoteInvoker{factory: f, inner: invoke.DefineInvoke[any, any](f.cfg.BC, tag)}
}

// PendingCall is a remote-methods call in flight. Wait blocks for the
// outcome; Dispose tears down every stub handler req's serialization
// installed — safe to call before, during, or after Wait returns, and
// safe to call more than once. Exactly one of Wait settling, an
// explicit Dispose call, or cfg.AutoDisposeMs elapsing triggers the
// actual teardown; whichever happens first wins.
type PendingCall struct {
	done chan struct{}
	res  any
	err  error

	once       sync.Once
	disposeFwd func()
}

// Wait blocks until the call settles and returns its outcome.
func (p *PendingCall) Wait() (any, error) {
	<-p.done
	return p.res, p.err
}

// Dispose frees req's stub handlers immediately, even mid-flight —
// the fire-and-forget case, or a caller that no longer needs the call
// to complete but still wants its side effects cleaned up promptly.
func (p *PendingCall) Dispose() { p.once.Do(p.disposeFwd) }

// Call serializes req (stubbing any Func values it contains anywhere
// in its graph), sends it, and returns a PendingCall the caller can
// Wait on. The request's stub handlers are disposed automatically once
// the call settles; Dispose may also be called earlier to free them
// before that.
func (r *RemoteInvoker) Call(ctx context.Context, req any) (*PendingCall, error) {
	sreq, err := Serialize(r.factory.cfg, req)
	if err != nil {
		return nil, err
	}

	pending := &PendingCall{done: make(chan struct{}), disposeFwd: sreq.Dispose}

	go func() {
		defer pending.Dispose()
		res, err := r.inner.Call(ctx, sreq.Value)
		if err != nil {
			pending.err = err
			close(pending.done)
			return
		}
		dres, err := Deserialize(r.factory.cfg, res)
		pending.res, pending.err = dres, err
		close(pending.done)
	}()

	return pending, nil
}

// DefineRemoteInvokeHandler registers handler to answer every
// remote-methods call for tag on f's bus context. The incoming request
// has already been Deserialized by the time handler sees it (any stub
// the caller's Serialize installed is live as a dial-back Func);
// handler's returned value is Serialized in turn before being sent
// back, so a handler may itself return Func-valued fields as callbacks
// the caller can dial.
//
// The response-side stub handlers Serialize registers for handler's
// return value have no further round trip on this unary shape to tie
// disposal to; set Config.AutoDisposeMs to reclaim them on a timer
// instead of leaking them for the lifetime of f's bus context.
func DefineRemoteInvokeHandler(f *Factory, tag string, handler func(context.Context, any) (any, error)) bus.Subscription {
	return invoke.DefineInvokeHandler(f.cfg.BC, tag, func(ctx context.Context, req any) (any, error) {
		args, err := Deserialize(f.cfg, req)
		if err != nil {
			return nil, err
		}
		res, err := handler(ctx, args)
		if err != nil {
			return nil, err
		}
		sres, err := Serialize(f.cfg, res)
		if err != nil {
			return nil, err
		}
		return sres.Value, nil
	})
}
