package wskit

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/eventkit/pkg/transport"
	"golang.org/x/net/websocket"
)

// Dial opens a bearer-token-authenticated WebSocket connection to addr
// and returns it wired to a fresh bus.Context, along with a stop func
// tearing the connection down.
func Dial(addr, token string) (*bus.Context, func(), error) {
	cfg, err := websocket.NewConfig(addr, "http://localhost")
	if err != nil {
		return nil, nil, fmt.Errorf("wskit: dial config: %w", err)
	}
	cfg.Header = http.Header{}
	cfg.Header.Set("Authorization", "Bearer "+token)

	conn, err := websocket.DialConfig(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("wskit: dial: %w", err)
	}

	bc := bus.NewContext()
	muxer := New(conn)
	stopWire := transport.Wire(bc, muxer)

	return bc, stopWire, nil
}

// ConnPool caches one dialed bus.Context per (address, token) pair so
// callers sharing a destination and credential reuse a single
// multiplexed connection instead of dialing per call, keyed by
// (addr, token) rather than a tenant id since eventkit has no tenant
// concept.
type ConnPool struct {
	mu      sync.RWMutex
	entries map[connKey]*poolEntry
}

type connKey struct{ addr, token string }

type poolEntry struct {
	bc   *bus.Context
	stop func()
}

// NewConnPool returns an empty pool.
func NewConnPool() *ConnPool {
	return &ConnPool{entries: make(map[connKey]*poolEntry)}
}

// Get returns the pooled bus.Context for (addr, token), dialing one if
// none exists yet.
func (p *ConnPool) Get(addr, token string) (*bus.Context, error) {
	key := connKey{addr, token}

	p.mu.RLock()
	entry, ok := p.entries[key]
	p.mu.RUnlock()
	if ok {
		return entry.bc, nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if entry, ok := p.entries[key]; ok {
		return entry.bc, nil
	}

	bc, stop, err := Dial(addr, token)
	if err != nil {
		return nil, err
	}
	p.entries[key] = &poolEntry{bc: bc, stop: stop}
	return bc, nil
}

// Close tears down every pooled connection.
func (p *ConnPool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, entry := range p.entries {
		entry.stop()
		delete(p.entries, key)
	}
}
