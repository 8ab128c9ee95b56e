package relay

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/gorilla/websocket"
)

// peerConn wraps a websocket connection with a write mutex and a closed flag.
// Both relay pumps may write to the same socket (the voice relay's tool-result
// path writes upstream from the downstream pump), and every send checks the
// connection state immediately before writing so a concurrently-closing peer
// cannot receive frames after close.
type peerConn struct {
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool
}

func newPeerConn(conn *websocket.Conn) *peerConn {
	return &peerConn{conn: conn}
}

var errPeerClosed = errors.New("peer connection closed")

func (p *peerConn) ReadMessage() (int, []byte, error) {
	return p.conn.ReadMessage()
}

func (p *peerConn) Write(messageType int, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	return p.conn.WriteMessage(messageType, data)
}

func (p *peerConn) WriteJSON(v any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errPeerClosed
	}
	return p.conn.WriteJSON(v)
}

// Close marks the peer closed and closes the socket, unblocking any pending
// read. Safe to call more than once.
func (p *peerConn) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()
	return p.conn.Close()
}

// isExpectedClose reports whether a pump read/write error is part of normal
// teardown rather than a failure worth propagating.
func isExpectedClose(ctx context.Context, err error) bool {
	if err == nil {
		return true
	}
	if ctx.Err() != nil {
		return true
	}
	if errors.Is(err, errPeerClosed) || errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent) {
		return true
	}
	return websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived,
		websocket.CloseAbnormalClosure,
	)
}
