// Package scheduler stands in for a single-threaded cooperative
// scheduler with a microtask priority lane, which Go has no literal
// equivalent for. NextTurn is the closest approximation: it yields the
// calling goroutine once via runtime.Gosched before running fn on a
// fresh goroutine, so a handler that synchronously installs observers
// right after starting has a chance to do so before fn runs. True
// ordering, when it matters, is still enforced by whatever mutex-guarded
// state fn and the handler both touch — NextTurn only biases scheduling,
// it does not guarantee an order the way a real microtask queue would.
package scheduler

import "runtime"

// NextTurn runs fn on a new goroutine after yielding the current one.
func NextTurn(fn func()) {
	runtime.Gosched()
	go fn()
}
