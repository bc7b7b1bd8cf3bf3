package gatewaysession

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn is the subset of *websocket.Conn the Session needs. Defining it as
// an interface (rather than depending on *websocket.Conn directly) lets
// tests drive the session loop with a fake transport instead of a real
// socket, following the teacher's own preference for dependency-light
// websocket tests.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetReadDeadline(t time.Time) error
	SetPongHandler(h func(appData string) error)
}

// Dialer opens a wsConn to url. Implementations must honor ctx cancellation.
type Dialer interface {
	Dial(ctx context.Context, url string) (wsConn, error)
}

// realDialer dials actual gateway WebSocket endpoints via gorilla/websocket.
type realDialer struct {
	handshakeTimeout time.Duration
}

// NewRealDialer returns a Dialer backed by gorilla/websocket, using
// handshakeTimeout as the dial deadline.
func NewRealDialer(handshakeTimeout time.Duration) Dialer {
	return &realDialer{handshakeTimeout: handshakeTimeout}
}

func (d *realDialer) Dial(ctx context.Context, url string) (wsConn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: d.handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
