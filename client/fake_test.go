package gqlwsclient_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	gqlwsmessage "github.com/onichandame/gql-client/message"
	gqlwstransport "github.com/onichandame/gql-client/transport"
	"github.com/stretchr/testify/require"
)

const waitTimeout = time.Second * 2

// fakeDialer hands every connection the session dials to the test
type fakeDialer struct {
	conns chan *fakeConn
	// gate, when set, holds every dial until the test lets it through
	gate chan struct{}
	// fail makes the next n dials fail
	fail int32

	lock  sync.Mutex
	dials []time.Time
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(chan *fakeConn, 16)}
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (gqlwstransport.Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.lock.Lock()
	d.dials = append(d.dials, time.Now())
	d.lock.Unlock()
	if atomic.AddInt32(&d.fail, -1) >= 0 {
		return nil, errors.New(`connection refused`)
	}
	c := newFakeConn()
	d.conns <- c
	return c, nil
}

func (d *fakeDialer) dialTimes() []time.Time {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]time.Time(nil), d.dials...)
}

func (d *fakeDialer) accept(t *testing.T) *fakeConn {
	t.Helper()
	select {
	case c := <-d.conns:
		return c
	case <-time.After(waitTimeout):
		require.FailNow(t, `no connection dialed`)
		return nil
	}
}

type fakeConn struct {
	toClient   chan []byte
	fromClient chan []byte
	closed     chan struct{}
	closes     int32
	once       sync.Once

	lock   sync.Mutex
	reason string
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		toClient:   make(chan []byte),
		fromClient: make(chan []byte, 64),
		closed:     make(chan struct{}),
	}
}

func (c *fakeConn) Send(ctx context.Context, frame []byte) error {
	select {
	case <-c.closed:
		return errors.New(`use of closed connection`)
	default:
	}
	select {
	case c.fromClient <- frame:
		return nil
	case <-c.closed:
		return errors.New(`use of closed connection`)
	}
}

func (c *fakeConn) Receive(ctx context.Context) ([]byte, error) {
	select {
	case data := <-c.toClient:
		return data, nil
	case <-c.closed:
		return nil, io.EOF
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *fakeConn) Close(code int, reason string, grace time.Duration) error {
	atomic.AddInt32(&c.closes, 1)
	c.lock.Lock()
	c.reason = reason
	c.lock.Unlock()
	c.drop()
	return nil
}

func (c *fakeConn) closeReason() string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.reason
}

// drop kills the connection from the server side
func (c *fakeConn) drop() {
	c.once.Do(func() { close(c.closed) })
}

func (c *fakeConn) next(t *testing.T) *gqlwsmessage.Message {
	t.Helper()
	select {
	case data := <-c.fromClient:
		var msg gqlwsmessage.Message
		require.Nil(t, json.Unmarshal(data, &msg))
		return &msg
	case <-time.After(waitTimeout):
		require.FailNow(t, `no frame received`)
		return nil
	}
}

func (c *fakeConn) expect(t *testing.T, typ gqlwsmessage.Type) *gqlwsmessage.Message {
	t.Helper()
	msg := c.next(t)
	require.Equal(t, typ, msg.Type, `frame %+v`, msg)
	return msg
}

// expectStart returns the id of the next start frame
func (c *fakeConn) expectStart(t *testing.T) string {
	t.Helper()
	msg := c.expect(t, gqlwsmessage.Start)
	var payload gqlwsmessage.StartPayload
	require.Nil(t, json.Unmarshal(msg.Payload, &payload))
	require.NotEmpty(t, payload.Query)
	return msg.ID
}

// silent asserts the client sends nothing for a while
func (c *fakeConn) silent(t *testing.T, d time.Duration) {
	t.Helper()
	select {
	case data := <-c.fromClient:
		require.FailNow(t, `unexpected frame`, string(data))
	case <-time.After(d):
	}
}

func (c *fakeConn) emit(t *testing.T, typ gqlwsmessage.Type, id string, payload string) {
	t.Helper()
	msg := gqlwsmessage.Message{Type: typ, ID: id}
	if payload != `` {
		msg.Payload = json.RawMessage(payload)
	}
	data, err := json.Marshal(msg)
	require.Nil(t, err)
	c.emitRaw(t, data)
}

func (c *fakeConn) emitRaw(t *testing.T, data []byte) {
	t.Helper()
	select {
	case c.toClient <- data:
	case <-time.After(waitTimeout):
		require.FailNow(t, `client is not reading`)
	}
}

// handshake answers connection_init
func (c *fakeConn) handshake(t *testing.T) *gqlwsmessage.Message {
	t.Helper()
	init := c.expect(t, gqlwsmessage.ConnectionInit)
	c.emit(t, gqlwsmessage.ConnectionAck, ``, ``)
	return init
}
