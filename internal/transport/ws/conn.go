package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const writeWait = 5 * time.Second

var errConnClosed = errors.New("ws: connection closed")

// wsConn serializes writes over one gorilla connection. sendMu is a
// one-slot channel used as a mutex so a Send during shutdown can bail out
// via the closed channel instead of blocking.
type wsConn struct {
	id        string
	raw       *websocket.Conn
	sendMu    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newWSConn(id string, raw *websocket.Conn) *wsConn {
	c := &wsConn{
		id:     id,
		raw:    raw,
		sendMu: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
	c.sendMu <- struct{}{}
	return c
}

func (c *wsConn) SessionID() string { return c.id }

func (c *wsConn) Send(msg Envelope) error {
	select {
	case <-c.closed:
		return errConnClosed
	case lock := <-c.sendMu:
		defer func() { c.sendMu <- lock }()
	}

	_ = c.raw.SetWriteDeadline(time.Now().Add(writeWait))
	return c.raw.WriteJSON(msg)
}

func (c *wsConn) ping() error {
	select {
	case <-c.closed:
		return errConnClosed
	case lock := <-c.sendMu:
		defer func() { c.sendMu <- lock }()
	}

	return c.raw.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

// Close is safe for concurrent callers: the ping loop, the read loop's
// teardown, and hub shutdown can all race here.
func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.raw.Close()
	})
	return err
}
