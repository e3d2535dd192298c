package wskit

import (
	"github.com/fgrzl/eventkit/pkg/bus"
	"github.com/fgrzl/eventkit/pkg/transport"
	"github.com/fgrzl/mux"
	"golang.org/x/net/websocket"
)

// ConfigureWebSocketServer mounts the eventkit WebSocket upgrade
// handler at "/ws" on router. Every accepted connection is scoped to
// its principal's Session and wired to bc via pkg/transport.Wire; that
// Wire is stopped once the connection's receive loop ends (grounded on
// pkg/transport/wskit/server.go's ConfigureWebSocketServer).
func ConfigureWebSocketServer(router *mux.Router, bc *bus.Context) {
	s := &server{bc: bc}
	router.GET("/ws", s.connect)
}

type server struct {
	bc *bus.Context
}

func (s *server) connect(c mux.RouteContext) {
	session, err := NewServerSession(c.User())
	if err != nil {
		c.Unauthorized()
		return
	}

	handler := &handler{bc: s.bc, session: session}
	websocket.Handler(handler.handle).ServeHTTP(c.Response(), c.Request())
}

type handler struct {
	bc      *bus.Context
	session Session
}

func (h *handler) handle(conn *websocket.Conn) {
	muxer := NewServer(conn, h.session)
	stop := transport.Wire(h.bc, muxer)
	defer stop()

	<-muxer.Err()
}
