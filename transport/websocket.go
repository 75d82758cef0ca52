package gqlwstransport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	gqlwserror "github.com/onichandame/gql-client/error"
	gqlwsmessage "github.com/onichandame/gql-client/message"
)

// Dialer opens the duplex connection a session runs on.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// Conn is a text frame connection. Receive is only ever called from one
// goroutine and Send from another.
type Conn interface {
	Send(ctx context.Context, frame []byte) error
	Receive(ctx context.Context) ([]byte, error)
	// Close sends a close frame with the given code, spending at most grace on
	// it, then drops the connection. Calling it twice is safe.
	Close(code int, reason string, grace time.Duration) error
}

// WSDialer dials websockets with gorilla.
type WSDialer struct {
	Headers          map[string]string
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
}

func (d *WSDialer) Dial(ctx context.Context, url string) (Conn, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.HandshakeTimeout,
		Subprotocols:     []string{gqlwsmessage.Subprotocol},
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
	}
	if dialer.HandshakeTimeout <= 0 {
		dialer.HandshakeTimeout = time.Second * 10
	}
	header := http.Header{}
	for k, v := range d.Headers {
		header.Set(k, v)
	}
	conn, _, err := dialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, gqlwserror.NewTransportError(`dial`, err)
	}
	return &wsConn{conn: conn, writeTimeout: d.WriteTimeout}, nil
}

type wsConn struct {
	conn         *websocket.Conn
	writeTimeout time.Duration
	writeLock    sync.Mutex
	closeOnce    sync.Once
	closeErr     error
}

func (c *wsConn) Send(ctx context.Context, frame []byte) error {
	c.writeLock.Lock()
	defer c.writeLock.Unlock()
	deadline := time.Time{}
	if d, ok := ctx.Deadline(); ok {
		deadline = d
	}
	if c.writeTimeout > 0 {
		if d := time.Now().Add(c.writeTimeout); deadline.IsZero() || d.Before(deadline) {
			deadline = d
		}
	}
	c.conn.SetWriteDeadline(deadline)
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return gqlwserror.NewTransportError(`send`, err)
	}
	return nil
}

func (c *wsConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			return nil, gqlwserror.NewTransportError(`receive`, err)
		}
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			return data, nil
		}
	}
}

func (c *wsConn) Close(code int, reason string, grace time.Duration) error {
	c.closeOnce.Do(func() {
		c.writeLock.Lock()
		c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(grace))
		c.writeLock.Unlock()
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
