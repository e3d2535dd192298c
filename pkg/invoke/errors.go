package invoke

import (
	"errors"
	"fmt"
)

// ErrHandler wraps an error a registered handler returned.
var ErrHandler = errors.New("invoke: handler error")

// ErrSendProducer wraps an error a client-streaming send producer
// returned while feeding request chunks.
var ErrSendProducer = errors.New("invoke: send producer error")

// ErrAborted is returned to the caller (or surfaced on an input/output
// stream) when a call was cancelled by either side before it completed
// normally.
var ErrAborted = errors.New("invoke: call aborted")

// ErrFatal wraps an error delivered through a registered fatal
// transport source, rejecting every call still pending on that bus
// context.
var ErrFatal = errors.New("invoke: fatal transport error")

// AbortBody is the payload carried by a Family.Abort descriptor. Reason
// is nil when the abort carries no specific cause (e.g. disposing a
// response stream early); a client whose ctx is cancelled sets it to
// ctx.Err().
type AbortBody struct {
	Reason error
}

func extractAbortReason(body any) error {
	return wrapAborted(body)
}

// wrapAborted builds the terminal error a caller sees for a real Abort
// descriptor, preserving whatever reason travelled with it (e.g.
// ctx.Err()) through Unwrap so callers can errors.Is against either
// ErrAborted or the original cause.
func wrapAborted(body any) error {
	if ab, ok := body.(AbortBody); ok && ab.Reason != nil {
		return fmt.Errorf("%w: %w", ErrAborted, ab.Reason)
	}
	return ErrAborted
}

// ErrorBody is the payload carried by a Family.RequestError or
// Family.ResponseError descriptor. Unlike AbortBody, Err is the actual
// cause and is never nil: these descriptors only fire when a request
// producer or a handler raised, never for plain cancellation.
type ErrorBody struct {
	Err error
}

// wrapResponseError builds the terminal error a caller sees for a
// ResponseError descriptor, preserving the handler's own error through
// Unwrap.
func wrapResponseError(body any) error {
	if eb, ok := body.(ErrorBody); ok && eb.Err != nil {
		return fmt.Errorf("%w: %w", ErrHandler, eb.Err)
	}
	return ErrHandler
}

// wrapRequestError builds the terminal error a caller sees for a
// RequestError descriptor, preserving the request producer's own error
// through Unwrap.
func wrapRequestError(body any) error {
	if eb, ok := body.(ErrorBody); ok && eb.Err != nil {
		return fmt.Errorf("%w: %w", ErrSendProducer, eb.Err)
	}
	return ErrSendProducer
}
