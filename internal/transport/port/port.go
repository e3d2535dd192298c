// Package port frames pkg/transport.Frame values over any net.Conn
// using internal/transport/framing's length-prefixed JSON wire
// format: one Conn is one logical connection, with no per-stream
// multiplexing, since Frame.ID already carries the correlation
// identity a call needs. Any non-io.EOF read error ends the loop.
package port

import (
	"context"
	"io"
	"net"
	"sync"

	"github.com/fgrzl/eventkit/internal/transport/framing"
	"github.com/fgrzl/eventkit/pkg/transport"
)

// Adapter frames transport.Frame values over a single net.Conn.
type Adapter struct {
	conn      net.Conn
	writeMu   sync.Mutex
	inbound   chan transport.Frame
	errCh     chan error
	closeOnce sync.Once
}

var (
	_ transport.Adapter   = (*Adapter)(nil)
	_ transport.Closer    = (*Adapter)(nil)
	_ transport.ErrSource = (*Adapter)(nil)
)

// New wraps conn and starts its read loop. Call Close (directly, or
// via the stop func returned by pkg/transport.Wire) to release conn.
func New(conn net.Conn) *Adapter {
	a := &Adapter{
		conn:    conn,
		inbound: make(chan transport.Frame, 32),
		errCh:   make(chan error, 1),
	}
	go a.readLoop()
	return a
}

// Publish writes f to the wire.
func (a *Adapter) Publish(_ context.Context, f transport.Frame) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return framing.Write(a.conn, f)
}

func (a *Adapter) readLoop() {
	defer close(a.inbound)
	defer close(a.errCh)

	for {
		f, err := framing.Read(a.conn)
		if err != nil {
			if err != io.EOF {
				a.errCh <- err
			}
			return
		}
		a.inbound <- f
	}
}

// Inbound returns the channel decoded Frames arrive on; it closes when
// the read loop exits (peer closed, or a read error occurred).
func (a *Adapter) Inbound() <-chan transport.Frame { return a.inbound }

// Err surfaces read-loop failures so pkg/transport.Wire can forward
// them as a registered fatal source.
func (a *Adapter) Err() <-chan error { return a.errCh }

// Close closes the underlying conn. Safe to call more than once.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() { err = a.conn.Close() })
	return err
}
