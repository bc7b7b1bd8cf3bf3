package gatewaysession

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// fakeConn is a wsConn driven entirely in-process: writes are captured,
// reads are fed from a channel the test controls. Modeled on the teacher's
// own preference for bare struct fakes over real sockets in hub tests.
type fakeConn struct {
	mu     sync.Mutex
	toPeer chan []byte
	sent   [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{toPeer: make(chan []byte, 32)}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	data, ok := <-c.toPeer
	if !ok {
		return 0, nil, errors.New("fakeConn: closed")
	}
	return websocket.TextMessage, data, nil
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("fakeConn: write on closed connection")
	}
	c.sent = append(c.sent, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.toPeer)
	}
	return nil
}

func (c *fakeConn) SetReadDeadline(time.Time) error   { return nil }
func (c *fakeConn) SetPongHandler(func(string) error) {}

func (c *fakeConn) Sent() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([][]byte, len(c.sent))
	copy(out, c.sent)
	return out
}

// pushServerFrame delivers a server->client frame as if read off the wire.
func (c *fakeConn) pushServerFrame(data []byte) {
	c.toPeer <- data
}

// fakeDialer hands out fakeConns, optionally gated and optionally failing
// after a configured number of successful dials (used to simulate a
// gateway that becomes unreachable for reconnect-budget tests).
type fakeDialer struct {
	mu         sync.Mutex
	conns      []*fakeConn
	gate       chan struct{}
	failAfter  int // -1 = never fail
	dialCount  int
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{failAfter: -1}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (wsConn, error) {
	d.mu.Lock()
	gate := d.gate
	d.dialCount++
	count := d.dialCount
	failAfter := d.failAfter
	d.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if failAfter >= 0 && count > failAfter {
		return nil, errors.New("fakeDialer: simulated unreachable gateway")
	}

	conn := newFakeConn()
	d.mu.Lock()
	d.conns = append(d.conns, conn)
	d.mu.Unlock()
	return conn, nil
}

func (d *fakeDialer) lastConn() *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.conns) == 0 {
		return nil
	}
	return d.conns[len(d.conns)-1]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dialCount
}
