// Package inputstream adapts the server-side push delivery of
// client-streaming request chunks (bus events arrive as they're
// emitted) into the pull-based enumerators.Enumerator[T] shape handlers
// consume.
package inputstream

import "sync"

type item[T any] struct {
	value T
	err   error
	end   bool
}

// Adapter is a single-producer, single-consumer push-to-pull bridge
// implementing the same MoveNext/Current/Dispose shape as
// fgrzl/enumerators.Enumerator[T], so a handler written against that
// interface can consume request chunks with no special casing.
type Adapter[T any] struct {
	ch   chan item[T]
	once sync.Once

	current T
	err     error
}

// New returns an empty, open adapter ready to receive Push/End/Abort.
func New[T any]() *Adapter[T] {
	return &Adapter[T]{ch: make(chan item[T], 8)}
}

// Push delivers the next chunk. Safe to call any number of times before
// End or Abort; undefined after either (mirrors "a send-stream-end
// closes the input controller and drops it").
func (a *Adapter[T]) Push(v T) {
	a.ch <- item[T]{value: v}
}

// End signals a clean close: the handler's next MoveNext returns false
// with a nil error, same as an exhausted enumerator.
func (a *Adapter[T]) End() {
	a.once.Do(func() {
		a.ch <- item[T]{end: true}
		close(a.ch)
	})
}

// Abort delivers a terminal error: the handler's next (or currently
// blocked) MoveNext returns false and Current's error is err.
func (a *Adapter[T]) Abort(err error) {
	a.once.Do(func() {
		a.ch <- item[T]{err: err}
		close(a.ch)
	})
}

// MoveNext advances to the next chunk, blocking until one is pushed or
// the stream ends/aborts.
func (a *Adapter[T]) MoveNext() bool {
	it, ok := <-a.ch
	if !ok {
		return false
	}
	if it.end {
		return false
	}
	if it.err != nil {
		a.err = it.err
		return false
	}
	a.current = it.value
	return true
}

// Current returns the value (and error, if the stream just aborted)
// from the most recent successful MoveNext.
func (a *Adapter[T]) Current() (T, error) {
	return a.current, a.err
}

// Err returns the error that terminated the stream, if any.
func (a *Adapter[T]) Err() error {
	return a.err
}

// Dispose releases the adapter; safe to call after End/Abort or instead
// of waiting for either.
func (a *Adapter[T]) Dispose() {
	a.once.Do(func() {
		close(a.ch)
	})
}
