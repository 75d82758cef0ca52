package gqlwsserver

import (
	"context"
	"errors"
	"time"

	"github.com/graphql-go/graphql"
	gqlwsmessage "github.com/onichandame/gql-client/message"
)

type Config struct {
	Schema *graphql.Schema
	// Path the engine serves POST and websocket requests on
	Path string

	GraceClosePeriod, ConnectionInitTimeout time.Duration
	// KeepAliveInterval between ka frames. Zero disables them.
	KeepAliveInterval time.Duration

	// OnConnectionInit validates connection_init. An error is answered with
	// connection_error.
	OnConnectionInit func(*gqlwsmessage.Message) error
	// Context is passed to resolvers. can be used to pass context-related values
	Context context.Context
}

var defaultConfig = Config{
	Path:                  `/graphql`,
	GraceClosePeriod:      time.Second * 5,
	ConnectionInitTimeout: time.Second * 30,
	Context:               context.Background(),
}

func (c *Config) init() {
	if c.Path == `` {
		c.Path = defaultConfig.Path
	}
	if c.GraceClosePeriod <= 0 {
		c.GraceClosePeriod = defaultConfig.GraceClosePeriod
	}
	if c.ConnectionInitTimeout <= 0 {
		c.ConnectionInitTimeout = defaultConfig.ConnectionInitTimeout
	}
	if c.Context == nil {
		c.Context = defaultConfig.Context
	}
	if c.Schema == nil {
		panic(errors.New(`gql-ws server requires a schema`))
	}
	if c.OnConnectionInit == nil {
		c.OnConnectionInit = func(m *gqlwsmessage.Message) error { return nil }
	}
}
