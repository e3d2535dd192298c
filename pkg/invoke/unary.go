package invoke

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/fgrzl/eventkit/internal/engine"
	"github.com/fgrzl/eventkit/pkg/bus"
)

// Invoker is a bound, strongly-typed unary call: one request, one
// response, generalized from a fixed message set to any tag.
type Invoker[Req, Res any] struct {
	bc     *bus.Context
	family Family
	fatal  *engine.FatalGroup
}

// DefineInvoke binds a unary invoke call for tag to bc. The returned
// Invoker's Call method is safe to use from multiple goroutines
// concurrently; each call gets its own correlation id. Every pending
// Call is rejected with ErrFatal if bc later observes a registered
// fatal transport source fire.
func DefineInvoke[Req, Res any](bc *bus.Context, tag string) *Invoker[Req, Res] {
	return &Invoker[Req, Res]{bc: bc, family: DefineFamily(tag), fatal: engine.NewFatalGroup(bc)}
}

type unaryOutcome[Res any] struct {
	res Res
	err error
}

// Call sends req and blocks for the matching response, an abort from
// either side, or ctx's cancellation — whichever comes first.
func (i *Invoker[Req, Res]) Call(ctx context.Context, req Req) (Res, error) {
	var zero Res
	id := engine.NewID()
	call := engine.NewCall(id)
	defer call.Finish()

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
			if !ok && env.Body != nil {
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

	slog.Debug("invoke: dispatching request", "tag", i.family.Tag, "id", id)
	i.bc.Emit(i.family.Request(id), req)

	select {
	case o := <-out:
		slog.Debug("invoke: call settled", "tag", i.family.Tag, "id", id, "err", o.err)
		return o.res, o.err
	case <-ctx.Done():
		slog.Debug("invoke: call aborted by caller", "tag", i.family.Tag, "id", id, "err", ctx.Err())
		i.bc.Emit(i.family.Abort(id), AbortBody{Reason: ctx.Err()})
		return zero, fmt.Errorf("%w: %w", ErrAborted, ctx.Err())
	}
}

// DefineInvokeHandler registers handler to answer every unary call for
// tag arriving on bc. handler's context is cancelled if the caller
// aborts the call before handler returns; the handler is otherwise free
// to ignore cancellation, matching the cooperative semantics of
// internal/cancel.Token.
func DefineInvokeHandler[Req, Res any](bc *bus.Context, tag string, handler func(context.Context, Req) (Res, error)) bus.Subscription {
	family := DefineFamily(tag)
	requestKind := family.kind("request")
	abortKind := family.kind("abort")
	aborts := newAbortTable()

	unsubAbort := bc.On(bus.Predicate(func(d bus.Descriptor) bool { return d.Kind == abortKind }), func(env bus.Envelope, _ bus.EmitOptions) {
		aborts.abort(env.ID, extractAbortReason(env.Body))
	})

	unsubRequest := bc.On(bus.Predicate(func(d bus.Descriptor) bool { return d.Kind == requestKind }), func(env bus.Envelope, _ bus.EmitOptions) {
		req, ok := env.Body.(Req)
		if !ok && env.Body != nil {
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

			res, err := handler(ctx, req)
			if token.Err() != nil {
				return
			}
			if err != nil {
				slog.Debug("invoke: handler failed", "tag", family.Tag, "id", id, "err", err)
				bc.Emit(family.ResponseError(id), ErrorBody{Err: err})
				return
			}
			bc.Emit(family.Response(id), res)
		}()
	})

	return multiSub(unsubRequest, unsubAbort)
}
