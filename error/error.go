package gqlwserror

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/graphql-go/graphql/gqlerrors"
	gqlwsmessage "github.com/onichandame/gql-client/message"
)

// ErrSessionClosed is returned by every operation on a session that has been closed.
var ErrSessionClosed = errors.New(`session closed`)

// ErrStreamClosed is returned by a stream after its consumer closed it.
var ErrStreamClosed = errors.New(`stream closed`)

// ErrEmptyQuery rejects a request without a query document.
var ErrEmptyQuery = errors.New(`request query must not be empty`)

// TransportError is a failure of the underlying HTTP or websocket exchange.
// The session recovers from these by reconnecting.
type TransportError struct {
	Op         string
	StatusCode int
	Body       []byte
	Err        error
}

func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf(`%s: unexpected status %d`, e.Op, e.StatusCode)
	}
	return fmt.Sprintf(`%s: %v`, e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError terminates a single subscription: the server answered its start
// frame with error or connection_error. Errors holds the decoded GraphQL errors
// when the payload carried any.
type ProtocolError struct {
	ID      string
	Type    gqlwsmessage.Type
	Payload json.RawMessage
	Errors  []gqlwsmessage.GraphQLError
}

func NewProtocolError(msg *gqlwsmessage.Message) *ProtocolError {
	e := &ProtocolError{ID: msg.ID, Type: msg.Type, Payload: msg.Payload}
	if len(msg.Payload) > 0 {
		// the payload is either a list of errors or a single one
		var list []gqlwsmessage.GraphQLError
		if json.Unmarshal(msg.Payload, &list) == nil {
			e.Errors = list
		} else {
			var single gqlwsmessage.GraphQLError
			if json.Unmarshal(msg.Payload, &single) == nil && single.Message != `` {
				e.Errors = []gqlwsmessage.GraphQLError{single}
			}
		}
	}
	return e
}

func (e *ProtocolError) Error() string {
	if len(e.Errors) > 0 {
		return fmt.Sprintf(`%s for subscription %s: %s`, e.Type, e.ID, e.Errors[0].Message)
	}
	return fmt.Sprintf(`%s for subscription %s`, e.Type, e.ID)
}

// PayloadError reports a frame addressed to a subscription that could not be
// decoded. The subscription stays alive.
type PayloadError struct {
	ID  string
	Err error
}

func NewPayloadError(id string, err error) *PayloadError {
	return &PayloadError{ID: id, Err: err}
}

func (e *PayloadError) Error() string {
	return fmt.Sprintf(`invalid payload for subscription %s: %v`, e.ID, e.Err)
}

func (e *PayloadError) Unwrap() error { return e.Err }

// FatalError closes the socket with a websocket close code.
type FatalError struct {
	code    int
	message string
}

func NewFatalError(code int, msg string) *FatalError {
	var err FatalError
	err.code = code
	err.message = msg
	return &err
}

func (e *FatalError) Code() int { return e.code }

func (e *FatalError) Error() string {
	return string(websocket.FormatCloseMessage(e.code, e.message))
}

// HandlableError is reported back to the peer on the subscription it belongs to
// without closing the socket.
type HandlableError struct {
	ID      string
	message string
}

func NewHandlableError(id string, message string) *HandlableError {
	var err HandlableError
	err.ID = id
	err.message = message
	return &err
}

func (e *HandlableError) Error() string {
	return e.message
}

// GetMessage builds the error frame for the peer.
func (e *HandlableError) GetMessage() *gqlwsmessage.Message {
	payload, _ := json.Marshal(gqlerrors.FormatErrors(e))
	return &gqlwsmessage.Message{Type: gqlwsmessage.Error, ID: e.ID, Payload: payload}
}
