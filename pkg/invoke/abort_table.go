package invoke

import (
	"sync"

	"github.com/fgrzl/eventkit/internal/cancel"
	"github.com/fgrzl/eventkit/internal/scheduler"
)

// abortTable tracks the cancellation token for every invocation of one
// invoke family, including ones whose request hasn't arrived yet. A
// transport that can reorder frames (pkg/wskit and friends) can
// deliver an abort before the request it cancels; without this table
// that abort has nothing to land on and is silently dropped.
type abortTable struct {
	mu     sync.Mutex
	tokens map[string]*cancel.Token
}

func newAbortTable() *abortTable {
	return &abortTable{tokens: make(map[string]*cancel.Token)}
}

// claim returns the token for id, creating an untripped one the first
// time id is seen. existed is true when a token was already there —
// abort arrived for id before this call did, so the token may already
// be tripped.
func (a *abortTable) claim(id string) (tok *cancel.Token, existed bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if tok, existed = a.tokens[id]; existed {
		return tok, true
	}
	tok = cancel.NewToken()
	a.tokens[id] = tok
	return tok, false
}

// abort trips id's token with reason, stashing a pre-tripped token if
// id's request hasn't arrived yet. A token already registered means the
// handler has started (or is starting); its trip is deferred one
// scheduler turn so the handler finishes installing its own observers
// first.
func (a *abortTable) abort(id string, reason error) {
	a.mu.Lock()
	tok, existed := a.tokens[id]
	if !existed {
		tok = cancel.NewToken()
		a.tokens[id] = tok
	}
	a.mu.Unlock()

	if existed {
		scheduler.NextTurn(func() { tok.Trip(reason) })
		return
	}
	tok.Trip(reason)
}

// release drops id once its call has finished, so the table doesn't
// grow without bound over a long-lived bus.Context.
func (a *abortTable) release(id string) {
	a.mu.Lock()
	delete(a.tokens, id)
	a.mu.Unlock()
}
