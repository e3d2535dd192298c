package port_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/fgrzl/eventkit/internal/transport/port"
	"github.com/fgrzl/eventkit/pkg/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdapterRoundTripsFramesOverAPipe(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	server := port.New(serverConn)
	client := port.New(clientConn)
	defer server.Close()
	defer client.Close()

	frame := transport.Frame{ID: "call-1", Kind: "greet:request", Payload: []byte(`{"content":{"name":"ada"}}`)}
	require.NoError(t, client.Publish(context.Background(), frame))

	select {
	case got := <-server.Inbound():
		assert.Equal(t, frame.ID, got.ID)
		assert.Equal(t, frame.Kind, got.Kind)
		assert.JSONEq(t, string(frame.Payload), string(got.Payload))
	case <-time.After(time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestAdapterInboundClosesWhenPeerCloses(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	server := port.New(serverConn)
	client := port.New(clientConn)
	defer server.Close()

	require.NoError(t, client.Close())

	select {
	case _, ok := <-server.Inbound():
		assert.False(t, ok)
	case <-time.After(time.Second):
		t.Fatal("server inbound never closed after peer closed")
	}
}
