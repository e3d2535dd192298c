package invoke

import "github.com/fgrzl/eventkit/pkg/bus"

// Family derives the nine descriptor kinds one invoke tag needs to
// cover every call shape (unary, client-streaming, server-streaming,
// bidi), cancellation, and the two distinct error channels (a failed
// request producer vs. a failed handler), keyed by the call's
// correlation id rather than the tag itself so the bus's id-bucket
// fast path handles dispatch for every message belonging to one
// in-flight call.
type Family struct {
	Tag string
}

// DefineFamily derives a Family from tag. tag identifies the remote
// method or event contract, not a single call.
func DefineFamily(tag string) Family {
	return Family{Tag: tag}
}

func (f Family) kind(suffix string) string { return f.Tag + ":" + suffix }

// Request is the descriptor for the initial (or only) request payload
// of a call with correlation id.
func (f Family) Request(id string) bus.Descriptor {
	return bus.Descriptor{ID: id, Kind: f.kind("request")}
}

// Response is the descriptor for a call's final (or only) result.
func (f Family) Response(id string) bus.Descriptor {
	return bus.Descriptor{ID: id, Kind: f.kind("response")}
}

// RequestChunk is the descriptor for one client-streamed request chunk.
func (f Family) RequestChunk(id string) bus.Descriptor {
	return bus.Descriptor{ID: id, Kind: f.kind("request-chunk")}
}

// RequestEnd is the descriptor signaling the client request stream is
// exhausted.
func (f Family) RequestEnd(id string) bus.Descriptor {
	return bus.Descriptor{ID: id, Kind: f.kind("request-end")}
}

// ResponseChunk is the descriptor for one server-streamed response
// chunk.
func (f Family) ResponseChunk(id string) bus.Descriptor {
	return bus.Descriptor{ID: id, Kind: f.kind("response-chunk")}
}

// ResponseEnd is the descriptor signaling the server response stream is
// exhausted.
func (f Family) ResponseEnd(id string) bus.Descriptor {
	return bus.Descriptor{ID: id, Kind: f.kind("response-end")}
}

// Abort is the descriptor either side emits to cancel an in-flight
// call; it is bidirectional, so it carries no fixed Flow. Abort never
// carries a request-producer or handler error — RequestError and
// ResponseError exist for those so a caller can tell "cancelled" apart
// from "failed".
func (f Family) Abort(id string) bus.Descriptor {
	return bus.Descriptor{ID: id, Kind: f.kind("abort")}
}

// RequestError is the descriptor the client emits when its request
// stream producer raises while pumping chunks, carrying the producer's
// error to whichever input stream the handler is reading.
func (f Family) RequestError(id string) bus.Descriptor {
	return bus.Descriptor{ID: id, Kind: f.kind("request-error")}
}

// ResponseError is the descriptor the server emits when a handler
// (unary result, server-stream producer, or bidi handler) raises,
// carrying the handler's own error back to the client instead of
// collapsing it into an abort.
func (f Family) ResponseError(id string) bus.Descriptor {
	return bus.Descriptor{ID: id, Kind: f.kind("response-error")}
}
