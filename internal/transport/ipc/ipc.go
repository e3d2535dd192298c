// Package ipc runs a child process and frames pkg/transport.Frame
// values over its stdin/stdout using internal/transport/framing's
// length-prefixed JSON wire format, since a child process's stdio is
// a pair of plain byte streams with no framing of its own — the same
// treatment internal/transport/port gives a net.Conn.
package ipc

import (
	"context"
	"io"
	"os/exec"
	"sync"

	"github.com/fgrzl/eventkit/internal/transport/framing"
	"github.com/fgrzl/eventkit/pkg/transport"
)

// Adapter frames transport.Frame values over a running child process's
// stdin/stdout.
type Adapter struct {
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	stdout    io.ReadCloser
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

// Start launches cmd (which must not already be started) and begins
// framing its stdio. The caller owns cmd for configuring args/env/dir
// before calling Start; Close waits for the process to exit.
func Start(cmd *exec.Cmd) (*Adapter, error) {
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	a := &Adapter{
		cmd:     cmd,
		stdin:   stdin,
		stdout:  stdout,
		inbound: make(chan transport.Frame, 32),
		errCh:   make(chan error, 1),
	}
	go a.readLoop()
	return a, nil
}

// Publish writes f to the child's stdin.
func (a *Adapter) Publish(_ context.Context, f transport.Frame) error {
	a.writeMu.Lock()
	defer a.writeMu.Unlock()
	return framing.Write(a.stdin, f)
}

func (a *Adapter) readLoop() {
	defer close(a.inbound)
	defer close(a.errCh)

	for {
		f, err := framing.Read(a.stdout)
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
// the child's stdout closes or a read error occurs.
func (a *Adapter) Inbound() <-chan transport.Frame { return a.inbound }

// Err surfaces read-loop failures so pkg/transport.Wire can forward
// them as a registered fatal source.
func (a *Adapter) Err() <-chan error { return a.errCh }

// Close closes stdin (signalling the child no more requests are
// coming) and waits for the process to exit. Safe to call more than
// once.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		_ = a.stdin.Close()
		err = a.cmd.Wait()
	})
	return err
}
