package gqlclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"time"

	gqlwsclient "github.com/onichandame/gql-client/client"
	gqlwsmessage "github.com/onichandame/gql-client/message"
	gqlwsserializer "github.com/onichandame/gql-client/serializer"
	gqlwstransport "github.com/onichandame/gql-client/transport"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Options configure a Client. The data fields can be loaded from YAML; hooks
// and collaborators are set in code.
type Options struct {
	// Endpoint of POST requests
	Endpoint string `yaml:"endpoint"`
	// WebSocketEndpoint defaults to Endpoint with its scheme switched to ws or wss
	WebSocketEndpoint string `yaml:"websocket_endpoint"`
	// Headers are added to every POST and to the websocket handshake
	Headers map[string]string `yaml:"headers"`
	// MediaType is the Content-Type of POST requests
	MediaType string `yaml:"media_type"`
	// UseWebSocketForQueriesAndMutations sends one-shot operations over the
	// subscription socket instead of POST
	UseWebSocketForQueriesAndMutations bool `yaml:"use_websocket_for_queries_and_mutations"`

	ConnectionAckTimeout time.Duration `yaml:"connection_ack_timeout"`
	KeepAliveTimeout     time.Duration `yaml:"keep_alive_timeout"`
	GraceClosePeriod     time.Duration `yaml:"grace_close_period"`

	HTTPClient *http.Client               `yaml:"-"`
	Sender     gqlwstransport.Sender      `yaml:"-"`
	Dialer     gqlwstransport.Dialer      `yaml:"-"`
	Serializer gqlwsserializer.Serializer `yaml:"-"`
	// BackOff computes the delay before websocket reconnect attempt n
	BackOff func(attempt int) time.Duration `yaml:"-"`
	// PreprocessRequest runs before every operation, e.g. to inject credentials
	PreprocessRequest func(context.Context, gqlwsmessage.Request, *Client) (gqlwsmessage.Request, error) `yaml:"-"`
	// OnConnecting returns the connection_init payload
	OnConnecting func() interface{} `yaml:"-"`
	// OnWebSocketConnected runs after every successful websocket handshake,
	// before any subscription is (re)started. It must not block.
	OnWebSocketConnected func(*Client) error `yaml:"-"`

	Logger  *zerolog.Logger      `yaml:"-"`
	Metrics *gqlwsclient.Metrics `yaml:"-"`
}

// ParseOptions reads options from YAML. Durations use Go syntax ("5s").
func ParseOptions(data []byte) (Options, error) {
	var opts Options
	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf(`parse options: %w`, err)
	}
	return opts, nil
}

// LoadOptions reads options from a YAML file.
func LoadOptions(path string) (Options, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Options{}, err
	}
	return ParseOptions(data)
}

func (o *Options) init() error {
	if o.Endpoint == `` {
		return errors.New(`endpoint must be set`)
	}
	u, err := url.Parse(o.Endpoint)
	if err != nil {
		return fmt.Errorf(`invalid endpoint: %w`, err)
	}
	if o.WebSocketEndpoint == `` {
		switch u.Scheme {
		case `http`:
			u.Scheme = `ws`
		case `https`:
			u.Scheme = `wss`
		case `ws`, `wss`:
		default:
			return fmt.Errorf(`unsupported endpoint scheme %q`, u.Scheme)
		}
		o.WebSocketEndpoint = u.String()
	}
	if o.MediaType == `` {
		o.MediaType = `application/json`
	}
	if o.Serializer == nil {
		o.Serializer = gqlwsserializer.Default()
	}
	if o.Sender == nil {
		o.Sender = &gqlwstransport.HTTPSender{
			Client:    o.HTTPClient,
			Endpoint:  o.Endpoint,
			MediaType: o.MediaType,
			Headers:   o.Headers,
		}
	}
	if o.PreprocessRequest == nil {
		o.PreprocessRequest = func(_ context.Context, req gqlwsmessage.Request, _ *Client) (gqlwsmessage.Request, error) {
			return req, nil
		}
	}
	if o.OnWebSocketConnected == nil {
		o.OnWebSocketConnected = func(*Client) error { return nil }
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	return nil
}
