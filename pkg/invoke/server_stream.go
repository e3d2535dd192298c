package invoke

import (
	"context"
	"fmt"
	"sync"

	"github.com/fgrzl/eventkit/internal/engine"
	"github.com/fgrzl/eventkit/internal/inputstream"
	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/enumerators"
)

// ServerStreamInvoker sends a single request and receives a stream of
// response chunks: server-streaming.
type ServerStreamInvoker[Req, Res any] struct {
	bc     *bus.Context
	family Family
	fatal  *engine.FatalGroup
}

// DefineServerStreamInvoke binds a server-streaming invoke call for tag
// to bc.
func DefineServerStreamInvoke[Req, Res any](bc *bus.Context, tag string) *ServerStreamInvoker[Req, Res] {
	return &ServerStreamInvoker[Req, Res]{bc: bc, family: DefineFamily(tag), fatal: engine.NewFatalGroup(bc)}
}

// Call sends req and returns an enumerator over the response chunks.
// The caller must Dispose it; doing so before the stream ends sends an
// abort, the same as cancelling ctx.
func (i *ServerStreamInvoker[Req, Res]) Call(ctx context.Context, req Req) enumerators.Enumerator[Res] {
	id := engine.NewID()
	call := engine.NewCall(id)
	adapter := inputstream.New[Res]()

	chunkKind := i.family.kind("response-chunk")
	endKind := i.family.kind("response-end")
	responseErrorKind := i.family.kind("response-error")
	abortKind := i.family.kind("abort")

	stop := make(chan struct{})
	var stopOnce sync.Once
	closeStop := func() { stopOnce.Do(func() { close(stop) }) }

	unregisterFatal := i.fatal.Register(id, func(err error) {
		adapter.Abort(fmt.Errorf("%w: %v", ErrFatal, err))
		closeStop()
	})

	call.Track(i.bc.On(bus.ID(id), func(env bus.Envelope, _ bus.EmitOptions) {
		switch env.Kind {
		case chunkKind:
			v, ok := env.Body.(Res)
			if !ok {
				adapter.Abort(fmt.Errorf("%w: unexpected response chunk type %T", ErrHandler, env.Body))
				closeStop()
				return
			}
			adapter.Push(v)
		case endKind:
			adapter.End()
			closeStop()
		case responseErrorKind:
			adapter.Abort(wrapResponseError(env.Body))
			closeStop()
		case abortKind:
			adapter.Abort(wrapAborted(env.Body))
			closeStop()
		}
	}))

	go func() {
		select {
		case <-ctx.Done():
			i.bc.Emit(i.family.Abort(id), AbortBody{Reason: ctx.Err()})
		case <-stop:
		}
	}()

	i.bc.Emit(i.family.Request(id), req)

	disposeStop := func() {
		select {
		case <-stop:
		default:
			i.bc.Emit(i.family.Abort(id), AbortBody{})
		}
		closeStop()
	}

	return &serverStreamEnumerator[Res]{adapter: adapter, call: call, closeStop: disposeStop, unregisterFatal: unregisterFatal}
}

// serverStreamEnumerator wraps internal/inputstream.Adapter so Dispose
// also tears down the call's bus subscriptions and fatal-group
// registration, instead of just the channel.
type serverStreamEnumerator[Res any] struct {
	adapter         *inputstream.Adapter[Res]
	call            *engine.Call
	closeStop       func()
	unregisterFatal func()
}

func (e *serverStreamEnumerator[Res]) MoveNext() bool        { return e.adapter.MoveNext() }
func (e *serverStreamEnumerator[Res]) Current() (Res, error) { return e.adapter.Current() }
func (e *serverStreamEnumerator[Res]) Err() error             { return e.adapter.Err() }
func (e *serverStreamEnumerator[Res]) Dispose() {
	e.adapter.Dispose()
	e.closeStop()
	e.unregisterFatal()
	e.call.Finish()
}

// DefineServerStreamInvokeHandler registers handler to answer every
// server-streaming call for tag arriving on bc. handler pushes response
// chunks to out (e.g. via a channel-backed enumerators.Enumerator it
// returns) and its context is cancelled if the caller aborts.
func DefineServerStreamInvokeHandler[Req, Res any](bc *bus.Context, tag string, handler func(context.Context, Req) enumerators.Enumerator[Res]) bus.Subscription {
	family := DefineFamily(tag)
	requestKind := family.kind("request")
	abortKind := family.kind("abort")
	aborts := newAbortTable()

	unsubAbort := bc.On(bus.Predicate(func(d bus.Descriptor) bool { return d.Kind == abortKind }), func(env bus.Envelope, _ bus.EmitOptions) {
		aborts.abort(env.ID, extractAbortReason(env.Body))
	})

	unsubRequest := bc.On(bus.Predicate(func(d bus.Descriptor) bool { return d.Kind == requestKind }), func(env bus.Envelope, _ bus.EmitOptions) {
		req, ok := env.Body.(Req)
		if !ok {
			bc.Emit(family.ResponseError(env.ID), ErrorBody{Err: fmt.Errorf("unexpected request body type %T", env.Body)})
			return
		}

		id := env.ID
		call := engine.NewCall(id)
		// claim picks up a token already tripped by an abort that raced
		// ahead of this request over a reordering transport.
		token, _ := aborts.claim(id)

		ctx, cancelCtx := context.WithCancel(context.Background())
		go func() {
			select {
			case <-token.Done():
				cancelCtx()
			case <-ctx.Done():
			}
		}()

		go func() {
			defer call.Finish()
			defer cancelCtx()
			defer aborts.release(id)

			chunks := handler(ctx, req)
			defer chunks.Dispose()

			for chunks.MoveNext() {
				if token.Err() != nil {
					return
				}
				v, err := chunks.Current()
				if err != nil {
					bc.Emit(family.ResponseError(id), ErrorBody{Err: err})
					return
				}
				bc.Emit(family.ResponseChunk(id), v)
			}
			if token.Err() != nil {
				return
			}
			bc.Emit(family.ResponseEnd(id), struct{}{})
		}()
	})

	return multiSub(unsubRequest, unsubAbort)
}
