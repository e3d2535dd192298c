// Package framing is the length-prefixed JSON wire format shared by
// internal/transport/port and internal/transport/ipc: both stand in
// for a byte-stream-shaped transport (a net.Conn, a child process's
// stdio) with no framing of its own, so both need the same "4-byte
// big-endian length, then JSON body" envelope.
package framing

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fgrzl/eventkit/pkg/transport"
)

// MaxFrameSize bounds both outgoing and incoming frames.
const MaxFrameSize = 64 * 1024 * 1024

// Write encodes f as a length-prefixed JSON frame and writes it to w.
func Write(w io.Writer, f transport.Frame) error {
	body, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("framing: encode frame %s: %w", f.ID, err)
	}
	if len(body) > MaxFrameSize {
		return fmt.Errorf("framing: frame %s exceeds max size", f.ID)
	}

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(body)))
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("framing: write header: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("framing: write body: %w", err)
	}
	return nil
}

// Read blocks until one full frame has been read from r, or returns
// the read error (including io.EOF on a clean close) otherwise.
func Read(r io.Reader) (transport.Frame, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return transport.Frame{}, err
	}
	size := binary.BigEndian.Uint32(header[:])
	if size > MaxFrameSize {
		return transport.Frame{}, fmt.Errorf("framing: incoming frame exceeds max size")
	}

	body := make([]byte, size)
	if _, err := io.ReadFull(r, body); err != nil {
		return transport.Frame{}, fmt.Errorf("framing: read body: %w", err)
	}

	var f transport.Frame
	if err := json.Unmarshal(body, &f); err != nil {
		return transport.Frame{}, fmt.Errorf("framing: decode frame: %w", err)
	}
	return f, nil
}
