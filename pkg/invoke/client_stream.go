package invoke

import (
	"context"
	"fmt"

	"github.com/fgrzl/eventkit/internal/engine"
	"github.com/fgrzl/eventkit/internal/inputstream"
	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/enumerators"
)

// ClientStreamInvoker sends a stream of request chunks and receives a
// single response: client-streaming.
type ClientStreamInvoker[Req, Res any] struct {
	bc     *bus.Context
	family Family
	fatal  *engine.FatalGroup
}

// DefineClientStreamInvoke binds a client-streaming invoke call for tag
// to bc.
func DefineClientStreamInvoke[Req, Res any](bc *bus.Context, tag string) *ClientStreamInvoker[Req, Res] {
	return &ClientStreamInvoker[Req, Res]{bc: bc, family: DefineFamily(tag), fatal: engine.NewFatalGroup(bc)}
}

// Call opens the call, draws every chunk from chunks until it's
// exhausted (or errors), then waits for the single response.
//
// chunks implements the same MoveNext/Current/Dispose shape as
// enumerators.Enumerator[Req]; *inputstream.Adapter[Req] satisfies it
// directly, and so does anything from github.com/fgrzl/enumerators.
func (i *ClientStreamInvoker[Req, Res]) Call(ctx context.Context, chunks enumerators.Enumerator[Req]) (Res, error) {
	var zero Res
	id := engine.NewID()
	call := engine.NewCall(id)
	defer call.Finish()
	defer chunks.Dispose()

	out := make(chan unaryOutcome[Res], 1)
	responseKind := i.family.kind("response")
	responseErrorKind := i.family.kind("response-error")
	abortKind := i.family.kind("abort")

	unregisterFatal := i.fatal.Register(id, func(err error) {
		out <- unaryOutcome[Res]{err: fmt.Errorf("%w: %v", ErrFatal, err)}
	})
	defer unregisterFatal()

	call.Track(i.bc.On(bus.ID(id), func(env bus.Envelope, _ bus.EmitOptions) {
		switch env.Kind {
		case responseKind:
			res, ok := env.Body.(Res)
			if !ok {
				out <- unaryOutcome[Res]{err: fmt.Errorf("%w: unexpected response body type %T", ErrHandler, env.Body)}
				return
			}
			out <- unaryOutcome[Res]{res: res}
		case responseErrorKind:
			out <- unaryOutcome[Res]{err: wrapResponseError(env.Body)}
		case abortKind:
			out <- unaryOutcome[Res]{err: wrapAborted(env.Body)}
		}
	}))

	i.bc.Emit(i.family.Request(id), struct{}{})

	sendDone := make(chan error, 1)
	go func() {
		for chunks.MoveNext() {
			v, err := chunks.Current()
			if err != nil {
				sendDone <- err
				return
			}
			i.bc.Emit(i.family.RequestChunk(id), v)
		}
		i.bc.Emit(i.family.RequestEnd(id), struct{}{})
		sendDone <- nil
	}()

	for {
		select {
		case o := <-out:
			return o.res, o.err
		case err := <-sendDone:
			if err != nil {
				i.bc.Emit(i.family.RequestError(id), ErrorBody{Err: err})
				return zero, fmt.Errorf("%w: %w", ErrSendProducer, err)
			}
			// keep waiting for the response
		case <-ctx.Done():
			i.bc.Emit(i.family.Abort(id), AbortBody{Reason: ctx.Err()})
			return zero, fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
		}
	}
}

// DefineClientStreamInvokeHandler registers handler to answer every
// client-streaming call for tag arriving on bc. handler consumes chunks
// via the same pull interface enumerators.Enumerator[Req] exposes;
// aborting the call (from either side) ends that stream with ErrAborted
// instead of a clean end-of-stream.
func DefineClientStreamInvokeHandler[Req, Res any](bc *bus.Context, tag string, handler func(context.Context, enumerators.Enumerator[Req]) (Res, error)) bus.Subscription {
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
		adapter := inputstream.New[Req]()
		if existed {
			// An abort raced ahead of this request over a reordering
			// transport. Synthesize an empty, already-errored input stream
			// so a chunk arriving even later for this id still lands on a
			// consistent, already-terminal adapter.
			adapter.Abort(token.Err())
		}

		call.Track(bc.On(bus.ID(id), func(cenv bus.Envelope, _ bus.EmitOptions) {
			switch cenv.Kind {
			case chunkKind:
				v, ok := cenv.Body.(Req)
				if !ok {
					adapter.Abort(fmt.Errorf("%w: unexpected request chunk type %T", ErrHandler, cenv.Body))
					return
				}
				adapter.Push(v)
			case endKind:
				adapter.End()
			case requestErrorKind:
				adapter.Abort(wrapRequestError(cenv.Body))
			}
		}))

		ctx, cancelCtx := context.WithCancel(context.Background())
		go func() {
			select {
			case <-token.Done():
				cancelCtx()
				adapter.Abort(token.Err())
			case <-ctx.Done():
			}
		}()

		go func() {
			defer call.Finish()
			defer cancelCtx()
			defer adapter.Dispose()
			defer aborts.release(id)

			res, err := handler(ctx, adapter)
			if token.Err() != nil {
				return
			}
			if err != nil {
				bc.Emit(family.ResponseError(id), ErrorBody{Err: err})
				return
			}
			bc.Emit(family.Response(id), res)
		}()
	})

	return multiSub(unsubRequest, unsubAbort)
}
