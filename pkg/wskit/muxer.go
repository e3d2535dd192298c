package wskit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/fgrzl/eventkit/pkg/transport"
	"github.com/golang/snappy"
	"golang.org/x/net/websocket"
)

// compressThreshold is the payload size above which wireMsg bodies are
// snappy-compressed before being sent, matching SPEC_FULL's "frames
// above a size threshold are snappy-compressed".
const compressThreshold = 4 * 1024

// wireMsg is what actually travels over the WebSocket connection: a
// transport.Frame plus a flag saying whether Payload was
// snappy-compressed, since compression is a transport-layer decision
// orthogonal to message shape.
type wireMsg struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Payload    []byte `json:"payload"`
	Compressed bool   `json:"compressed,omitempty"`
}

// Muxer adapts a single golang.org/x/net/websocket.Conn into a
// pkg/transport.Adapter. It does not track one sub-stream per channel
// id: pkg/bus.Context already demultiplexes by Frame.ID, so Muxer only
// needs to move frames on and off the wire and, on the server side,
// enforce Session routing.
type Muxer struct {
	conn    *websocket.Conn
	session Session

	writeMu   sync.Mutex
	inbound   chan transport.Frame
	errCh     chan error
	closeOnce sync.Once
}

var (
	_ transport.Adapter   = (*Muxer)(nil)
	_ transport.Closer    = (*Muxer)(nil)
	_ transport.ErrSource = (*Muxer)(nil)
)

// New wraps conn for the client side, where every Frame is routable
// (the client only ever receives responses to calls it made).
func New(conn *websocket.Conn) *Muxer {
	return newMuxer(conn, NewClientSession())
}

// NewServer wraps conn for the server side, gating inbound frames by
// session's allowed tag prefixes.
func NewServer(conn *websocket.Conn, session Session) *Muxer {
	return newMuxer(conn, session)
}

func newMuxer(conn *websocket.Conn, session Session) *Muxer {
	m := &Muxer{
		conn:    conn,
		session: session,
		inbound: make(chan transport.Frame, 32),
		errCh:   make(chan error, 1),
	}
	go m.readLoop()
	return m
}

// Publish sends f over the WebSocket, snappy-compressing the payload
// when it exceeds compressThreshold.
func (m *Muxer) Publish(_ context.Context, f transport.Frame) error {
	msg := wireMsg{ID: f.ID, Kind: f.Kind, Payload: f.Payload}
	if len(f.Payload) > compressThreshold {
		msg.Payload = snappy.Encode(nil, f.Payload)
		msg.Compressed = true
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()
	if err := websocket.JSON.Send(m.conn, &msg); err != nil {
		return fmt.Errorf("wskit: send: %w", err)
	}
	return nil
}

func (m *Muxer) readLoop() {
	defer close(m.inbound)
	defer close(m.errCh)

	for {
		var msg wireMsg
		if err := websocket.JSON.Receive(m.conn, &msg); err != nil {
			slog.Debug("wskit: receive loop ending", "error", err)
			m.errCh <- err
			return
		}

		payload := msg.Payload
		if msg.Compressed {
			decoded, err := snappy.Decode(nil, msg.Payload)
			if err != nil {
				slog.Warn("wskit: dropping frame with bad snappy payload", "id", msg.ID, "error", err)
				continue
			}
			payload = decoded
		}

		if m.session != nil && !m.session.AllowAll() && !m.session.CanRoute(tagFromKind(msg.Kind)) {
			slog.Warn("wskit: dropping frame outside session scope", "id", msg.ID, "kind", msg.Kind)
			continue
		}

		m.inbound <- transport.Frame{ID: msg.ID, Kind: msg.Kind, Payload: json.RawMessage(payload)}
	}
}

// Inbound returns the channel decoded Frames arrive on.
func (m *Muxer) Inbound() <-chan transport.Frame { return m.inbound }

// Err surfaces receive-loop failures.
func (m *Muxer) Err() <-chan error { return m.errCh }

// Close closes the underlying connection. Safe to call more than once.
func (m *Muxer) Close() error {
	var err error
	m.closeOnce.Do(func() { err = m.conn.Close() })
	return err
}
