package gqlwsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/language/ast"
	goutils "github.com/onichandame/go-utils"
	gqlwserror "github.com/onichandame/gql-client/error"
	gqlwsmessage "github.com/onichandame/gql-client/message"
)

// Socket serves one graphql-ws connection.
type Socket struct {
	*Config

	conn    *websocket.Conn
	writer  chan *gqlwsmessage.Message
	breaker chan error
	done    chan interface{}
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
	inited  chan interface{}
	err     error
	// the connection parameters negotiated on ConnectionInit
	// will inject into every graphql resolver. can be retrieved by GetConnectionParams
	connectionParams ConnectionParams
	onStart          func(id string, req gqlwsmessage.Request)

	sm *subMan
}

func newSocket(cfg *Config, conn *websocket.Conn) *Socket {
	var sock Socket
	sock.Config = cfg
	sock.conn = conn
	sock.writer = make(chan *gqlwsmessage.Message)
	sock.breaker = make(chan error, 1)
	sock.done = make(chan interface{})
	sock.inited = make(chan interface{})
	sock.ctx, sock.cancel = context.WithCancel(cfg.Context)
	sock.sm = newSubMan()
	return &sock
}

// Close closes the socket with a close frame.
func (sock *Socket) Close() {
	sock.fail(errors.New(`closed by server`))
}

// Drop kills the connection without a close frame.
func (sock *Socket) Drop() {
	sock.conn.Close()
}

func (sock *Socket) Wait() {
	<-sock.done
}

func (sock *Socket) Error() error { return sock.err }

func (sock *Socket) fail(err error) {
	select {
	case sock.breaker <- err:
	default:
	}
}

func (sock *Socket) write(msg *gqlwsmessage.Message) {
	select {
	case sock.writer <- msg:
	case <-sock.done:
	}
}

func (sock *Socket) listen() {
	conn := sock.conn
	// cleanup
	go func() {
		defer close(sock.done)
		defer conn.Close()
		defer sock.sm.clear()
		defer sock.cancel()
		err := <-sock.breaker
		sock.err = err
		if err != nil {
			code, text := websocket.CloseNormalClosure, err.Error()
			var fe *gqlwserror.FatalError
			if errors.As(err, &fe) {
				code = fe.Code()
			}
			if err := conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, text), time.Now().Add(sock.GraceClosePeriod)); err == nil {
				time.Sleep(sock.GraceClosePeriod)
			}
		}
	}()
	// reader
	go func() {
		var err error
		defer func() {
			sock.fail(err)
		}()
		defer goutils.RecoverToErr(&err)
		for {
			var msg gqlwsmessage.Message
			goutils.Assert(conn.ReadJSON(&msg))
			go sock.handleRequest(&msg)
		}
	}()
	// writer
	go func() {
		var err error
		defer func() {
			sock.fail(err)
		}()
		defer goutils.RecoverToErr(&err)
		for {
			select {
			case msg := <-sock.writer:
				goutils.Assert(conn.WriteJSON(msg))
			case <-sock.done:
				return
			}
		}
	}()
	// init timeout
	go func() {
		select {
		case <-time.After(sock.ConnectionInitTimeout):
			sock.fail(gqlwserror.NewFatalError(4408, `Connection initialisation timeout`))
		case <-sock.inited:
		case <-sock.done:
		}
	}()
	if sock.KeepAliveInterval > 0 {
		go func() {
			ticker := time.NewTicker(sock.KeepAliveInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					sock.write(&gqlwsmessage.Message{Type: gqlwsmessage.KeepAlive})
				case <-sock.done:
					return
				}
			}
		}()
	}
}

func (sock *Socket) isInited() bool {
	select {
	case <-sock.inited:
		return true
	default:
		return false
	}
}

func (sock *Socket) handleRequest(msg *gqlwsmessage.Message) {
	var err error
	defer func() {
		if err != nil {
			var he *gqlwserror.HandlableError
			if errors.As(err, &he) {
				sock.write(he.GetMessage())
			} else {
				sock.fail(err)
			}
		}
	}()
	defer goutils.RecoverToErr(&err)
	switch msg.Type {
	case gqlwsmessage.ConnectionInit:
		if sock.isInited() {
			panic(gqlwserror.NewFatalError(4429, `Too many initialisation requests`))
		}
		if err := sock.OnConnectionInit(msg); err != nil {
			payload, _ := json.Marshal(map[string]string{`message`: err.Error()})
			sock.write(&gqlwsmessage.Message{Type: gqlwsmessage.ConnectionError, Payload: payload})
			return
		}
		if len(msg.Payload) > 0 {
			json.Unmarshal(msg.Payload, &sock.connectionParams)
		}
		sock.once.Do(func() { close(sock.inited) })
		sock.write(&gqlwsmessage.Message{Type: gqlwsmessage.ConnectionAck})
	case gqlwsmessage.Start:
		if !sock.isInited() {
			panic(gqlwserror.NewFatalError(4401, `Unauthorized`))
		}
		if msg.ID == `` {
			panic(gqlwserror.NewFatalError(4400, `start message must come with an id`))
		}
		var payload gqlwsmessage.StartPayload
		if err := json.Unmarshal(msg.Payload, &payload); err != nil {
			panic(gqlwserror.NewHandlableError(msg.ID, `payload of start request invalid`))
		}
		req := payload.Request()
		if sock.onStart != nil {
			sock.onStart(msg.ID, req)
		}
		stopchan := sock.sm.add(msg.ID)
		if stopchan == nil {
			panic(gqlwserror.NewHandlableError(msg.ID, fmt.Sprintf(`subscriber for %v already exists`, msg.ID)))
		}
		defer sock.sm.del(msg.ID)
		params := sock.getGqlParams(req, stopchan)
		if req.OperationType() == ast.OperationTypeSubscription {
			reschan := graphql.Subscribe(*params)
			for res := range reschan {
				sock.writeResult(msg.ID, res)
			}
		} else {
			sock.writeResult(msg.ID, graphql.Do(*params))
		}
		sock.write(&gqlwsmessage.Message{Type: gqlwsmessage.Complete, ID: msg.ID})
	case gqlwsmessage.Stop:
		sock.sm.del(msg.ID)
	case gqlwsmessage.ConnectionTerminate:
		sock.fail(nil)
	default:
		panic(gqlwserror.NewFatalError(4400, fmt.Sprintf(`message type %v not supported`, msg.Type)))
	}
}

func (sock *Socket) writeResult(id string, res *graphql.Result) {
	payload, err := json.Marshal(res)
	goutils.Assert(err)
	sock.write(&gqlwsmessage.Message{Type: gqlwsmessage.Data, ID: id, Payload: payload})
}

func (sock *Socket) getGqlParams(req gqlwsmessage.Request, stopchan chan interface{}) *graphql.Params {
	return &graphql.Params{
		Schema:         *sock.Schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        context.WithValue(context.WithValue(sock.ctx, connParamsKey, sock.connectionParams), subscriptionStopKey, stopchan),
	}
}

func upgrade(w http.ResponseWriter, r *http.Request) *websocket.Conn {
	upgrader := websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		CheckOrigin:      func(r *http.Request) bool { return true },
		HandshakeTimeout: time.Second * 5,
		Subprotocols:     []string{gqlwsmessage.Subprotocol},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	goutils.Assert(err)
	if conn.Subprotocol() != gqlwsmessage.Subprotocol {
		conn.Close()
		panic(fmt.Errorf(`subprotocol must be %s`, gqlwsmessage.Subprotocol))
	}
	return conn
}
