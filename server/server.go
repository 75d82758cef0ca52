// Package gqlwsserver is a reference GraphQL server for the client. It serves
// POST requests and the graphql-ws websocket protocol on the same path, and
// lets tests observe and break the connections it holds.
package gqlwsserver

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/graphql/gqlerrors"
	gqlwsmessage "github.com/onichandame/gql-client/message"
)

// Start records a start frame received by the server.
type Start struct {
	ID      string
	Request gqlwsmessage.Request
}

type Server struct {
	*Config

	engine      *gin.Engine
	lock        sync.Mutex
	sockets     map[*Socket]struct{}
	connections int
	starts      []Start
	status      int
}

// NewServer panics on an invalid config, like the rest of the package.
func NewServer(cfg *Config) *Server {
	cfg.init()
	srv := &Server{Config: cfg, sockets: make(map[*Socket]struct{})}
	gin.SetMode(gin.ReleaseMode)
	srv.engine = gin.New()
	srv.engine.Use(gin.Recovery())
	srv.engine.POST(cfg.Path, srv.handlePost)
	srv.engine.GET(cfg.Path, srv.handleSocket)
	return srv
}

func (srv *Server) Handler() http.Handler { return srv.engine }

func (srv *Server) handlePost(c *gin.Context) {
	srv.lock.Lock()
	status := srv.status
	srv.lock.Unlock()
	if status != 0 {
		c.String(status, http.StatusText(status))
		return
	}
	var req gqlwsmessage.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, graphql.Result{Errors: gqlerrors.FormatErrors(err)})
		return
	}
	res := graphql.Do(graphql.Params{
		Schema:         *srv.Schema,
		RequestString:  req.Query,
		VariableValues: req.Variables,
		OperationName:  req.OperationName,
		Context:        c.Request.Context(),
	})
	c.JSON(http.StatusOK, res)
}

func (srv *Server) handleSocket(c *gin.Context) {
	var conn = upgrade(c.Writer, c.Request)
	sock := newSocket(srv.Config, conn)
	sock.onStart = srv.recordStart
	srv.lock.Lock()
	srv.sockets[sock] = struct{}{}
	srv.connections++
	srv.lock.Unlock()
	defer func() {
		srv.lock.Lock()
		delete(srv.sockets, sock)
		srv.lock.Unlock()
	}()
	sock.listen()
	sock.Wait()
}

func (srv *Server) recordStart(id string, req gqlwsmessage.Request) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	srv.starts = append(srv.starts, Start{ID: id, Request: req})
}

// RespondWith makes every following POST answer with the given status. Zero
// restores normal execution.
func (srv *Server) RespondWith(status int) {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	srv.status = status
}

// DropConnections kills every open websocket without a close handshake.
func (srv *Server) DropConnections() {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	for sock := range srv.sockets {
		sock.Drop()
	}
}

// CloseConnections closes every open websocket with a close frame.
func (srv *Server) CloseConnections() {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	for sock := range srv.sockets {
		sock.Close()
	}
}

// Connections returns how many websockets were accepted so far.
func (srv *Server) Connections() int {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	return srv.connections
}

// OpenConnections returns how many websockets are currently open.
func (srv *Server) OpenConnections() int {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	return len(srv.sockets)
}

// Starts returns the start frames received so far, in arrival order.
func (srv *Server) Starts() []Start {
	srv.lock.Lock()
	defer srv.lock.Unlock()
	return append([]Start(nil), srv.starts...)
}
