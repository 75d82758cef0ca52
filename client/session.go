package gqlwsclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/gorilla/websocket"
	goutils "github.com/onichandame/go-utils"
	gqlwserror "github.com/onichandame/gql-client/error"
	gqlwsmessage "github.com/onichandame/gql-client/message"
	gqlwsserializer "github.com/onichandame/gql-client/serializer"
	gqlwstransport "github.com/onichandame/gql-client/transport"
	"github.com/rs/zerolog"
)

var (
	errAckTimeout       = errors.New(`connection ack timeout`)
	errKeepAliveTimeout = errors.New(`keep-alive timeout`)
)

// Session multiplexes any number of subscriptions over one websocket using the
// graphql-ws protocol. The socket is dialed on the first Subscribe and redialed
// with back-off whenever it is lost; active subscriptions are restarted on every
// new connection in the order they were made.
//
// All state below the mailbox is owned by the loop goroutine.
type Session struct {
	cfg Config
	log zerolog.Logger

	state   int32
	closing int32
	mailbox *mailbox
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	once    sync.Once

	subs    *subMan
	conn    gqlwstransport.Conn
	gen     uint64
	attempt int
	dials   chan dialResult
	frames  chan frame

	retryTimer *time.Timer
	ackTimer   *time.Timer
	aliveTimer *time.Timer
}

type dialResult struct {
	gen  uint64
	conn gqlwstransport.Conn
	err  error
}

type frame struct {
	gen  uint64
	data []byte
	err  error
}

// NewSession validates the config and starts the session loop. The socket is
// not dialed until the first subscription.
func NewSession(cfg *Config) (*Session, error) {
	if cfg == nil {
		return nil, errors.New(`gql-ws session requires a config`)
	}
	c := *cfg
	if err := c.validate(); err != nil {
		return nil, err
	}
	s := &Session{
		cfg:     c,
		log:     c.Logger.With().Str(`component`, `gqlws-session`).Str(`url`, c.URL).Logger(),
		mailbox: newMailbox(),
		done:    make(chan struct{}),
		subs:    newSubMan(),
		dials:   make(chan dialResult),
		frames:  make(chan frame),
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	go s.run()
	return s, nil
}

// State returns the current connection state.
func (s *Session) State() State { return State(atomic.LoadInt32(&s.state)) }

// Subscribe registers a subscription and returns its stream right away. The
// start frame goes out as soon as the session is connected.
func Subscribe[T any](s *Session, req gqlwsmessage.Request) (*Stream[T], error) {
	reg, err := s.register(req)
	if err != nil {
		return nil, err
	}
	return &Stream[T]{id: reg.id, reg: reg, sink: reg.sink, session: s, serializer: s.cfg.Serializer}, nil
}

func (s *Session) register(req gqlwsmessage.Request) (*registration, error) {
	if req.Query == `` {
		return nil, gqlwserror.ErrEmptyQuery
	}
	if atomic.LoadInt32(&s.closing) != 0 {
		return nil, gqlwserror.ErrSessionClosed
	}
	reg := &registration{id: s.cfg.NewID(), request: req, sink: newSink()}
	if !s.mailbox.push(cmdSubscribe{reg: reg}) {
		return nil, gqlwserror.ErrSessionClosed
	}
	return reg, nil
}

func (s *Session) unsubscribe(reg *registration) {
	s.mailbox.push(cmdUnsubscribe{reg: reg})
}

// Close terminates every subscription with gqlwserror.ErrSessionClosed, says
// goodbye to the server and closes the socket. It waits at most CloseTimeout.
// Calling it again only waits for the first call to finish.
func (s *Session) Close() {
	s.once.Do(func() {
		atomic.StoreInt32(&s.closing, 1)
		if !s.mailbox.push(cmdClose{}) {
			s.cancel()
		}
	})
	select {
	case <-s.done:
	case <-time.After(s.cfg.CloseTimeout):
		s.cancel()
	}
}

// Wait blocks until the session is terminated.
func (s *Session) Wait() {
	<-s.done
}

func (s *Session) run() {
	defer close(s.done)
	defer s.cancel()
	for {
		select {
		case <-s.mailbox.wake:
			cmds := s.mailbox.drain()
			for i, cmd := range cmds {
				if s.handleCommand(cmd) {
					s.reject(cmds[i+1:])
					return
				}
			}
		case res := <-s.dials:
			s.onDialed(res)
		case f := <-s.frames:
			s.onFrame(f)
		case <-timerC(s.retryTimer):
			s.retryTimer = nil
			s.connect()
		case <-timerC(s.ackTimer):
			s.ackTimer = nil
			s.drop(errAckTimeout)
		case <-timerC(s.aliveTimer):
			s.aliveTimer = nil
			s.drop(errKeepAliveTimeout)
		}
	}
}

// handleCommand returns true when the session terminated
func (s *Session) handleCommand(cmd command) bool {
	switch cmd := cmd.(type) {
	case cmdSubscribe:
		reg := cmd.reg
		if s.subs.has(reg.id) {
			reg.sink.end(fmt.Errorf(`subscription id %s already in use`, reg.id))
			return false
		}
		s.subs.add(reg)
		s.cfg.Metrics.subscriptions(s.subs.len())
		s.log.Debug().Str(`id`, reg.id).Msg(`subscription registered`)
		switch s.State() {
		case Disconnected:
			s.connect()
		case Connected:
			s.start(reg)
		}
	case cmdUnsubscribe:
		reg := s.subs.get(cmd.reg.id)
		if reg != cmd.reg || reg.state == stopped {
			return false
		}
		if s.State() == Connected && reg.state == active {
			reg.state = stopped
			s.send(&gqlwsmessage.Message{Type: gqlwsmessage.Stop, ID: reg.id})
		} else {
			s.subs.del(reg.id)
			s.cfg.Metrics.subscriptions(s.subs.len())
		}
		s.log.Debug().Str(`id`, reg.id).Msg(`subscription stopped`)
	case cmdClose:
		s.terminate()
		return true
	}
	return false
}

func (s *Session) setState(state State) {
	old := State(atomic.SwapInt32(&s.state, int32(state)))
	if old != state {
		s.log.Debug().Stringer(`from`, old).Stringer(`state`, state).Msg(`connection state changed`)
	}
}

func (s *Session) connect() {
	s.setState(Connecting)
	s.gen++
	gen := s.gen
	go func() {
		conn, err := s.cfg.Dialer.Dial(s.ctx, s.cfg.URL)
		select {
		case s.dials <- dialResult{gen: gen, conn: conn, err: err}:
		case <-s.done:
			if conn != nil {
				conn.Close(websocket.CloseGoingAway, ``, 0)
			}
		}
	}()
}

func (s *Session) onDialed(res dialResult) {
	if res.gen != s.gen || s.State() != Connecting {
		if res.conn != nil {
			res.conn.Close(websocket.CloseNormalClosure, ``, 0)
		}
		return
	}
	if res.err != nil {
		s.scheduleReconnect(res.err)
		return
	}
	s.conn = res.conn
	go s.read(res.gen, res.conn)
	var params interface{}
	if err := goutils.Try(func() { params = s.cfg.OnConnecting() }); err != nil {
		s.drop(err)
		return
	}
	msg := &gqlwsmessage.Message{Type: gqlwsmessage.ConnectionInit}
	if params != nil {
		payload, err := s.cfg.Serializer.Marshal(params)
		if err != nil {
			s.drop(err)
			return
		}
		msg.Payload = payload
	}
	if !s.send(msg) {
		return
	}
	s.ackTimer = time.NewTimer(s.cfg.ConnectionAckTimeout)
}

// read is the only goroutine blocking on the socket
func (s *Session) read(gen uint64, conn gqlwstransport.Conn) {
	var err error
	defer func() {
		if err != nil {
			select {
			case s.frames <- frame{gen: gen, err: err}:
			case <-s.done:
			}
		}
	}()
	defer goutils.RecoverToErr(&err)
	for {
		data, rerr := conn.Receive(s.ctx)
		if rerr != nil {
			err = rerr
			return
		}
		select {
		case s.frames <- frame{gen: gen, data: data}:
		case <-s.done:
			return
		}
	}
}

func (s *Session) onFrame(f frame) {
	if f.gen != s.gen || s.conn == nil {
		return
	}
	if f.err != nil {
		s.drop(f.err)
		return
	}
	msg, err := gqlwsserializer.DecodeFrame(s.cfg.Serializer, f.data)
	if err != nil {
		s.log.Debug().Err(err).Msg(`dropping malformed frame`)
		s.cfg.Metrics.dropped(dropMalformed)
		return
	}
	s.keepAlive()
	switch msg.Type {
	case gqlwsmessage.ConnectionAck:
		s.onAck()
	case gqlwsmessage.KeepAlive:
	case gqlwsmessage.ConnectionError:
		if msg.ID == `` {
			if s.State() == Connecting {
				s.drop(gqlwserror.NewProtocolError(msg))
			} else {
				s.log.Warn().RawJSON(`payload`, rawOrNull(msg.Payload)).Msg(`connection error from server`)
			}
			return
		}
		s.end(msg, gqlwserror.NewProtocolError(msg))
	case gqlwsmessage.Data:
		reg := s.route(msg)
		if reg == nil {
			return
		}
		reg.sink.push(event{payload: msg.Payload})
	case gqlwsmessage.Error:
		s.end(msg, gqlwserror.NewProtocolError(msg))
	case gqlwsmessage.Complete:
		s.end(msg, io.EOF)
	default:
		reg := s.route(msg)
		if reg == nil {
			return
		}
		reg.sink.push(event{err: gqlwserror.NewPayloadError(msg.ID, fmt.Errorf(`unexpected message type %q`, msg.Type))})
	}
}

// route finds the live registration a frame belongs to. Frames of unknown or
// stopped subscriptions are late arrivals and are dropped.
func (s *Session) route(msg *gqlwsmessage.Message) *registration {
	reg := s.subs.get(msg.ID)
	switch {
	case reg == nil:
		s.dropFrame(msg, dropUnknownID)
		return nil
	case reg.state == stopped:
		s.dropFrame(msg, dropStopped)
		return nil
	case reg.state != active:
		s.dropFrame(msg, dropUnexpected)
		return nil
	}
	return reg
}

func (s *Session) dropFrame(msg *gqlwsmessage.Message, reason string) {
	s.log.Debug().Str(`id`, msg.ID).Str(`type`, string(msg.Type)).Str(`reason`, reason).Msg(`dropping frame`)
	s.cfg.Metrics.dropped(reason)
}

// end handles a frame that ends its subscription. A stopped registration is
// simply forgotten, its consumer is gone already.
func (s *Session) end(msg *gqlwsmessage.Message, err error) {
	if s.subs.get(msg.ID) == nil {
		s.dropFrame(msg, dropUnknownID)
		return
	}
	s.finish(msg.ID, err)
}

// finish ends a subscription for good
func (s *Session) finish(id string, err error) {
	reg := s.subs.get(id)
	if reg == nil {
		return
	}
	reg.sink.end(err)
	s.subs.del(id)
	s.cfg.Metrics.subscriptions(s.subs.len())
}

func (s *Session) onAck() {
	if s.State() != Connecting {
		return
	}
	stopTimer(s.ackTimer)
	s.ackTimer = nil
	if err := goutils.Try(func() { goutils.Assert(s.cfg.OnConnected(s)) }); err != nil {
		s.drop(err)
		return
	}
	s.setState(Connected)
	s.attempt = 0
	s.log.Info().Int(`subscriptions`, s.subs.len()).Msg(`connected`)
	for _, reg := range s.subs.ordered() {
		if reg.state != pending {
			continue
		}
		if !s.start(reg) {
			return
		}
	}
}

// start sends the start frame of a registration. It returns false when the
// connection was lost doing so.
func (s *Session) start(reg *registration) bool {
	msg, err := gqlwsserializer.NewStartFrame(s.cfg.Serializer, reg.id, reg.request)
	if err != nil {
		s.finish(reg.id, err)
		return true
	}
	if !s.send(msg) {
		return false
	}
	reg.state = active
	return true
}

// send writes a frame on the current connection, dropping it on failure
func (s *Session) send(msg *gqlwsmessage.Message) bool {
	if s.conn == nil {
		return false
	}
	data, err := gqlwsserializer.EncodeFrame(s.cfg.Serializer, msg)
	if err != nil {
		s.log.Error().Err(err).Str(`type`, string(msg.Type)).Msg(`failed to encode frame`)
		return true
	}
	if err := s.conn.Send(s.ctx, data); err != nil {
		s.drop(err)
		return false
	}
	return true
}

// notify writes a frame ignoring failures
func (s *Session) notify(msg *gqlwsmessage.Message) {
	data, err := gqlwsserializer.EncodeFrame(s.cfg.Serializer, msg)
	if err != nil {
		return
	}
	if err := s.conn.Send(s.ctx, data); err != nil {
		s.log.Debug().Err(err).Str(`type`, string(msg.Type)).Msg(`failed to notify server`)
	}
}

func (s *Session) keepAlive() {
	if s.cfg.KeepAliveTimeout <= 0 {
		return
	}
	if s.aliveTimer == nil {
		s.aliveTimer = time.NewTimer(s.cfg.KeepAliveTimeout)
		return
	}
	stopTimer(s.aliveTimer)
	s.aliveTimer.Reset(s.cfg.KeepAliveTimeout)
}

// drop abandons the current connection after a transport failure and
// schedules the next attempt
func (s *Session) drop(err error) {
	s.closeConn(websocket.CloseAbnormalClosure, err.Error())
	s.subs.reset()
	s.cfg.Metrics.subscriptions(s.subs.len())
	s.scheduleReconnect(err)
}

func (s *Session) closeConn(code int, reason string) {
	stopTimer(s.ackTimer)
	stopTimer(s.aliveTimer)
	s.ackTimer, s.aliveTimer = nil, nil
	if s.conn == nil {
		return
	}
	// frames still in flight from this connection are ignored from now on
	s.gen++
	if code == websocket.CloseAbnormalClosure {
		// 1006 must not be sent on the wire
		code = websocket.CloseGoingAway
	}
	s.conn.Close(code, closeReason(reason), s.cfg.GraceClosePeriod)
	s.conn = nil
}

// a close frame payload is at most 125 bytes, two of them being the code
const maxCloseReason = 123

func closeReason(reason string) string {
	if len(reason) <= maxCloseReason {
		return reason
	}
	n := maxCloseReason
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}

func (s *Session) scheduleReconnect(err error) {
	s.setState(Reconnecting)
	delay := s.cfg.BackOff(s.attempt)
	s.log.Info().Err(err).Int(`attempt`, s.attempt).Dur(`delay`, delay).Msg(`connection lost, reconnecting`)
	s.attempt++
	s.cfg.Metrics.reconnected()
	stopTimer(s.retryTimer)
	s.retryTimer = time.NewTimer(delay)
}

func (s *Session) terminate() {
	if s.conn != nil && s.State() == Connected {
		// best effort, the socket is closed right after
		for _, reg := range s.subs.ordered() {
			if reg.state == active {
				s.notify(&gqlwsmessage.Message{Type: gqlwsmessage.Stop, ID: reg.id})
			}
		}
		s.notify(&gqlwsmessage.Message{Type: gqlwsmessage.ConnectionTerminate})
	}
	s.closeConn(websocket.CloseNormalClosure, ``)
	stopTimer(s.retryTimer)
	s.retryTimer = nil
	s.setState(Terminated)
	for _, reg := range s.subs.clear() {
		reg.sink.end(gqlwserror.ErrSessionClosed)
	}
	s.reject(s.mailbox.close())
	s.cfg.Metrics.subscriptions(0)
	s.log.Info().Msg(`session closed`)
}

// reject ends the streams of subscriptions that raced with Close
func (s *Session) reject(cmds []command) {
	for _, cmd := range cmds {
		if sub, ok := cmd.(cmdSubscribe); ok {
			sub.reg.sink.end(gqlwserror.ErrSessionClosed)
		}
	}
}

func timerC(t *time.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C
}

func stopTimer(t *time.Timer) {
	if t == nil {
		return
	}
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}

func rawOrNull(p []byte) []byte {
	if len(p) == 0 {
		return []byte(`null`)
	}
	return p
}
