// Package gqlclient is a GraphQL client. Queries and mutations are POSTed (or,
// optionally, sent over the websocket); subscriptions run on a reconnecting
// graphql-ws session shared by the whole client.
package gqlclient

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/graphql-go/graphql/language/ast"
	gqlwsclient "github.com/onichandame/gql-client/client"
	gqlwserror "github.com/onichandame/gql-client/error"
	gqlwsmessage "github.com/onichandame/gql-client/message"
	gqlwsserializer "github.com/onichandame/gql-client/serializer"
	"github.com/rs/zerolog"
)

var (
	// ErrSubscriptionOperation is returned when a subscription document is sent
	// as a one-shot operation.
	ErrSubscriptionOperation = errors.New(`subscriptions must be sent with Subscribe`)
	// ErrNoResponse is returned when the server completed a one-shot operation
	// sent over the websocket without answering it.
	ErrNoResponse = errors.New(`operation completed without a response`)
)

type Client struct {
	opts Options
	log  zerolog.Logger

	lock    sync.Mutex
	session *gqlwsclient.Session
	closed  bool
}

// New validates the options. No connection is made.
func New(opts Options) (*Client, error) {
	if err := opts.init(); err != nil {
		return nil, err
	}
	return &Client{
		opts: opts,
		log:  opts.Logger.With().Str(`component`, `gqlclient`).Str(`endpoint`, opts.Endpoint).Logger(),
	}, nil
}

// Options returns the effective options.
func (c *Client) Options() Options { return c.opts }

// Session returns the websocket session, creating it on first use.
func (c *Client) Session() (*gqlwsclient.Session, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.closed {
		return nil, gqlwserror.ErrSessionClosed
	}
	if c.session != nil {
		return c.session, nil
	}
	session, err := gqlwsclient.NewSession(&gqlwsclient.Config{
		URL:                  c.opts.WebSocketEndpoint,
		Headers:              c.opts.Headers,
		Dialer:               c.opts.Dialer,
		Serializer:           c.opts.Serializer,
		ConnectionAckTimeout: c.opts.ConnectionAckTimeout,
		GraceClosePeriod:     c.opts.GraceClosePeriod,
		KeepAliveTimeout:     c.opts.KeepAliveTimeout,
		BackOff:              c.opts.BackOff,
		OnConnecting:         c.opts.OnConnecting,
		OnConnected:          func(*gqlwsclient.Session) error { return c.opts.OnWebSocketConnected(c) },
		Logger:               c.opts.Logger,
		Metrics:              c.opts.Metrics,
	})
	if err != nil {
		return nil, err
	}
	c.session = session
	return session, nil
}

// Close closes the websocket session, if any. The client cannot subscribe
// afterwards but POST operations keep working.
func (c *Client) Close() {
	c.lock.Lock()
	c.closed = true
	session := c.session
	c.lock.Unlock()
	if session != nil {
		session.Close()
	}
}

// Query runs a query and decodes its data into T.
func Query[T any](ctx context.Context, c *Client, req gqlwsmessage.Request) (*gqlwsmessage.Response[T], error) {
	return send[T](ctx, c, req)
}

// Mutate runs a mutation and decodes its data into T.
func Mutate[T any](ctx context.Context, c *Client, req gqlwsmessage.Request) (*gqlwsmessage.Response[T], error) {
	return send[T](ctx, c, req)
}

// Subscribe starts a subscription on the client's session.
func Subscribe[T any](ctx context.Context, c *Client, req gqlwsmessage.Request) (*gqlwsclient.Stream[T], error) {
	req, err := c.opts.PreprocessRequest(ctx, req, c)
	if err != nil {
		return nil, err
	}
	session, err := c.Session()
	if err != nil {
		return nil, err
	}
	return gqlwsclient.Subscribe[T](session, req)
}

func send[T any](ctx context.Context, c *Client, req gqlwsmessage.Request) (*gqlwsmessage.Response[T], error) {
	req, err := c.opts.PreprocessRequest(ctx, req, c)
	if err != nil {
		return nil, err
	}
	if req.Query == `` {
		return nil, gqlwserror.ErrEmptyQuery
	}
	if req.OperationType() == ast.OperationTypeSubscription {
		return nil, ErrSubscriptionOperation
	}
	if c.opts.UseWebSocketForQueriesAndMutations {
		return sendOverWebSocket[T](ctx, c, req)
	}
	body, err := gqlwsserializer.EncodeRequest(c.opts.Serializer, req)
	if err != nil {
		return nil, err
	}
	c.log.Debug().Str(`operation`, req.OperationName).Msg(`posting request`)
	data, err := c.opts.Sender.Post(ctx, body)
	if err != nil {
		return nil, err
	}
	return gqlwsserializer.DecodeResponse[T](c.opts.Serializer, data)
}

func sendOverWebSocket[T any](ctx context.Context, c *Client, req gqlwsmessage.Request) (*gqlwsmessage.Response[T], error) {
	session, err := c.Session()
	if err != nil {
		return nil, err
	}
	stream, err := gqlwsclient.Subscribe[T](session, req)
	if err != nil {
		return nil, err
	}
	defer stream.Close()
	c.log.Debug().Str(`operation`, req.OperationName).Str(`id`, stream.ID()).Msg(`sending request over websocket`)
	res, err := stream.Next(ctx)
	if errors.Is(err, io.EOF) {
		return nil, ErrNoResponse
	}
	return res, err
}
