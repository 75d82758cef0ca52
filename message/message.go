package gqlwsmessage

import "encoding/json"

// Type is the type tag of a graphql-ws protocol frame.
type Type string

const (
	// client -> server
	ConnectionInit      Type = `connection_init`
	Start               Type = `start`
	Stop                Type = `stop`
	ConnectionTerminate Type = `connection_terminate`
	// server -> client
	ConnectionAck   Type = `connection_ack`
	ConnectionError Type = `connection_error`
	Data            Type = `data`
	Error           Type = `error`
	Complete        Type = `complete`
	KeepAlive       Type = `ka`
)

// Subprotocol is negotiated on the websocket handshake.
const Subprotocol = `graphql-ws`

// Message is a single frame on the socket. Payload is kept raw so that it can be
// decoded into the shape the subscriber asked for.
type Message struct {
	Type    Type            `json:"type"`
	ID      string          `json:"id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// StartPayload is the payload of a start frame.
type StartPayload struct {
	Query         string                 `json:"query"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	OperationName string                 `json:"operationName,omitempty"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
}

// NewStartPayload copies a request into a start payload.
func NewStartPayload(req Request) StartPayload {
	return StartPayload{
		Query:         req.Query,
		Variables:     req.Variables,
		OperationName: req.OperationName,
		Extensions:    req.Extensions,
	}
}

// Request returns the request carried by the payload.
func (p StartPayload) Request() Request {
	return Request{
		Query:         p.Query,
		Variables:     p.Variables,
		OperationName: p.OperationName,
		Extensions:    p.Extensions,
	}
}
