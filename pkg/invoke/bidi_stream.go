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

// BidiStreamInvoker sends a stream of request chunks while concurrently
// receiving a stream of response chunks: bidi-streaming.
type BidiStreamInvoker[Req, Res any] struct {
	bc     *bus.Context
	family Family
	fatal  *engine.FatalGroup
}

// DefineBidiStreamInvoke binds a bidi-streaming invoke call for tag to
// bc.
func DefineBidiStreamInvoke[Req, Res any](bc *bus.Context, tag string) *BidiStreamInvoker[Req, Res] {
	return &BidiStreamInvoker[Req, Res]{bc: bc, family: DefineFamily(tag), fatal: engine.NewFatalGroup(bc)}
}

// Call opens the call, feeding chunks to the remote side while
// returning an enumerator over the response chunks. The two directions
// run independently: the caller may still be sending when the first
// response chunk arrives. Disposing the returned enumerator before the
// response stream ends aborts the whole call, the same as cancelling
// ctx; chunks erroring sends a request-error to the handler's input
// stream instead.
func (i *BidiStreamInvoker[Req, Res]) Call(ctx context.Context, chunks enumerators.Enumerator[Req]) enumerators.Enumerator[Res] {
	id := engine.NewID()
	call := engine.NewCall(id)
	adapter := inputstream.New[Res]()

	responseChunkKind := i.family.kind("response-chunk")
	responseEndKind := i.family.kind("response-end")
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
		case responseChunkKind:
			v, ok := env.Body.(Res)
			if !ok {
				adapter.Abort(fmt.Errorf("%w: unexpected response chunk type %T", ErrHandler, env.Body))
				closeStop()
				return
			}
			adapter.Push(v)
		case responseEndKind:
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

	i.bc.Emit(i.family.Request(id), struct{}{})

	go func() {
		defer chunks.Dispose()
		for chunks.MoveNext() {
			v, err := chunks.Current()
			if err != nil {
				i.bc.Emit(i.family.RequestError(id), ErrorBody{Err: err})
				return
			}
			select {
			case <-stop:
				return
			default:
			}
			i.bc.Emit(i.family.RequestChunk(id), v)
		}
		i.bc.Emit(i.family.RequestEnd(id), struct{}{})
	}()

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

// DefineBidiStreamInvokeHandler registers handler to answer every
// bidi-streaming call for tag arriving on bc. handler both consumes the
// request enumerator and pushes response chunks via the returned
// enumerator; it is responsible for running those two directions
// concurrently if it needs true bidi overlap rather than consume-then-
// produce.
func DefineBidiStreamInvokeHandler[Req, Res any](bc *bus.Context, tag string, handler func(context.Context, enumerators.Enumerator[Req]) enumerators.Enumerator[Res]) bus.Subscription {
	family := DefineFamily(tag)
	requestKind := family.kind("request")
	chunkKind := family.kind("request-chunk")
	endKind := family.kind("request-end")
	requestErrorKind := family.kind("request-error")
	abortKind := family.kind("abort")
	aborts := newAbortTable()

	unsubAbort := bc.On(bus.Predicate(func(d bus.Descriptor) bool { return d.Kind == abortKind }), func(env bus.Envelope, _ bus.EmitOptions) {
		aborts.abort(env.ID, extractAbortReason(env.Body))
	})

	unsubRequest := bc.On(bus.Predicate(func(d bus.Descriptor) bool { return d.Kind == requestKind }), func(env bus.Envelope, _ bus.EmitOptions) {
		id := env.ID
		call := engine.NewCall(id)
		// claim picks up a token already tripped by an abort that raced
		// ahead of this request over a reordering transport.
		token, existed := aborts.claim(id)
		in := inputstream.New[Req]()
		if existed {
			// An abort raced ahead of this request over a reordering
			// transport. Synthesize an empty, already-errored input stream
			// so a chunk arriving even later for this id still lands on a
			// consistent, already-terminal adapter.
			in.Abort(token.Err())
		}

		call.Track(bc.On(bus.ID(id), func(cenv bus.Envelope, _ bus.EmitOptions) {
			switch cenv.Kind {
			case chunkKind:
				v, ok := cenv.Body.(Req)
				if !ok {
					in.Abort(fmt.Errorf("%w: unexpected request chunk type %T", ErrHandler, cenv.Body))
					return
				}
				in.Push(v)
			case endKind:
				in.End()
			case requestErrorKind:
				in.Abort(wrapRequestError(cenv.Body))
			}
		}))

		ctx, cancelCtx := context.WithCancel(context.Background())
		go func() {
			select {
			case <-token.Done():
				cancelCtx()
				in.Abort(token.Err())
			case <-ctx.Done():
			}
		}()

		go func() {
			defer call.Finish()
			defer cancelCtx()
			defer in.Dispose()
			defer aborts.release(id)

			out := handler(ctx, in)
			defer out.Dispose()

			for out.MoveNext() {
				if token.Err() != nil {
					return
				}
				v, err := out.Current()
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
