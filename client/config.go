package gqlwsclient

import (
	"errors"
	"math/rand"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	goutils "github.com/onichandame/go-utils"
	gqlwsserializer "github.com/onichandame/gql-client/serializer"
	gqlwstransport "github.com/onichandame/gql-client/transport"
	"github.com/rs/zerolog"
)

type Config struct {
	URL     string
	Headers map[string]string
	// Dialer defaults to a gorilla websocket dialer sending Headers
	Dialer     gqlwstransport.Dialer
	Serializer gqlwsserializer.Serializer

	ConnectionAckTimeout time.Duration
	GraceClosePeriod     time.Duration
	// CloseTimeout bounds how long Close waits for the socket to shut down
	CloseTimeout time.Duration
	WriteTimeout time.Duration
	// KeepAliveTimeout drops the connection when the server stays silent for
	// longer. Zero disables the check.
	KeepAliveTimeout time.Duration

	// BackOff returns the delay before reconnect attempt n (zero-based)
	BackOff func(attempt int) time.Duration
	// NewID generates correlation ids. Must be safe for concurrent use.
	NewID func() string
	// OnConnecting returns the payload of connection_init
	OnConnecting func() interface{}
	// OnConnected runs on the session loop after the server acknowledged the
	// connection and before subscriptions are replayed. It must not block.
	// Returning an error fails the handshake.
	OnConnected func(*Session) error

	Logger  *zerolog.Logger
	Metrics *Metrics
}

func (c *Config) init() {
	if u, err := url.Parse(c.URL); err != nil {
		panic(err)
	} else {
		if !strings.HasPrefix(u.Scheme, "ws") {
			panic(errors.New(`gql-ws must be configured to a websocket endpoint`))
		}
	}
	if c.ConnectionAckTimeout <= 0 {
		c.ConnectionAckTimeout = time.Second * 30
	}
	if c.GraceClosePeriod <= 0 {
		c.GraceClosePeriod = time.Second * 5
	}
	if c.CloseTimeout <= 0 {
		c.CloseTimeout = c.GraceClosePeriod * 2
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = time.Second * 10
	}
	if c.Dialer == nil {
		c.Dialer = &gqlwstransport.WSDialer{Headers: c.Headers, WriteTimeout: c.WriteTimeout}
	}
	if c.Serializer == nil {
		c.Serializer = gqlwsserializer.Default()
	}
	if c.BackOff == nil {
		c.BackOff = DefaultBackOff
	}
	if c.NewID == nil {
		c.NewID = uuid.NewString
	}
	if c.OnConnecting == nil {
		c.OnConnecting = func() interface{} { return nil }
	}
	if c.OnConnected == nil {
		c.OnConnected = func(*Session) error { return nil }
	}
	if c.Logger == nil {
		nop := zerolog.Nop()
		c.Logger = &nop
	}
}

func (c *Config) validate() (err error) {
	defer goutils.RecoverToErr(&err)
	c.init()
	return nil
}

// DefaultBackOff grows linearly for the first five attempts and adds up to a
// second of jitter: min(attempt,5)*1.5s + rand[0,1s).
func DefaultBackOff(attempt int) time.Duration {
	if attempt > 5 {
		attempt = 5
	}
	if attempt < 0 {
		attempt = 0
	}
	return time.Duration(float64(attempt)*1.5*float64(time.Second)) + time.Duration(rand.Int63n(int64(time.Second)))
}

// ConstantBackOff waits the same delay before every attempt.
func ConstantBackOff(d time.Duration) func(int) time.Duration {
	return func(int) time.Duration { return d }
}

// SequentialIDs hands out "1", "2", ... in order.
func SequentialIDs() func() string {
	var n uint64
	return func() string {
		return strconv.FormatUint(atomic.AddUint64(&n, 1), 10)
	}
}
