package gqlwstransport_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gqlwserror "github.com/onichandame/gql-client/error"
	gqlwsmessage "github.com/onichandame/gql-client/message"
	gqlwsserver "github.com/onichandame/gql-client/server"
	gqlwstransport "github.com/onichandame/gql-client/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransport(t *testing.T) {
	srv := gqlwsserver.NewServer(&gqlwsserver.Config{
		Schema:           gqlwsserver.Schema(gqlwsserver.NewChat()),
		GraceClosePeriod: time.Millisecond * 50,
	})
	server := httptest.NewServer(srv.Handler())
	defer server.Close()
	endpoint := server.URL + `/graphql`
	ctx := context.Background()

	t.Run("HTTPSender", func(t *testing.T) {
		sender := &gqlwstransport.HTTPSender{Endpoint: endpoint}
		t.Run("posts", func(t *testing.T) {
			data, err := sender.Post(ctx, []byte(`{"query":"query{messages{content}}"}`))
			require.Nil(t, err)
			assert.JSONEq(t, `{"data":{"messages":[]}}`, string(data))
		})
		t.Run("reports statuses", func(t *testing.T) {
			srv.RespondWith(http.StatusBadGateway)
			defer srv.RespondWith(0)
			_, err := sender.Post(ctx, []byte(`{"query":"query{messages{content}}"}`))
			var te *gqlwserror.TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, http.StatusBadGateway, te.StatusCode)
			assert.Equal(t, `post`, te.Op)
		})
		t.Run("reports unreachable endpoints", func(t *testing.T) {
			unreachable := &gqlwstransport.HTTPSender{Endpoint: `http://127.0.0.1:1/graphql`}
			_, err := unreachable.Post(ctx, []byte(`{}`))
			var te *gqlwserror.TransportError
			require.True(t, errors.As(err, &te))
			assert.Zero(t, te.StatusCode)
			assert.NotNil(t, errors.Unwrap(te))
		})
		t.Run("honours the context", func(t *testing.T) {
			cancelled, cancel := context.WithCancel(ctx)
			cancel()
			_, err := sender.Post(cancelled, []byte(`{}`))
			assert.ErrorIs(t, err, context.Canceled)
		})
	})

	t.Run("WSDialer", func(t *testing.T) {
		wsURL := `ws` + strings.TrimPrefix(endpoint, `http`)
		dialer := &gqlwstransport.WSDialer{WriteTimeout: time.Second}
		receive := func(t *testing.T, conn gqlwstransport.Conn) *gqlwsmessage.Message {
			t.Helper()
			data, err := conn.Receive(ctx)
			require.Nil(t, err)
			var msg gqlwsmessage.Message
			require.Nil(t, json.Unmarshal(data, &msg))
			return &msg
		}
		t.Run("exchanges frames", func(t *testing.T) {
			conn, err := dialer.Dial(ctx, wsURL)
			require.Nil(t, err)
			defer conn.Close(1000, ``, time.Millisecond*50)
			require.Nil(t, conn.Send(ctx, []byte(`{"type":"connection_init"}`)))
			assert.Equal(t, gqlwsmessage.ConnectionAck, receive(t, conn).Type)
			require.Nil(t, conn.Send(ctx, []byte(`{"type":"start","id":"1","payload":{"query":"subscription{counter(limit: 1)}"}}`)))
			msg := receive(t, conn)
			assert.Equal(t, gqlwsmessage.Data, msg.Type)
			assert.Equal(t, `1`, msg.ID)
			assert.JSONEq(t, `{"data":{"counter":1}}`, string(msg.Payload))
			msg = receive(t, conn)
			assert.Equal(t, gqlwsmessage.Complete, msg.Type)
		})
		t.Run("closes once", func(t *testing.T) {
			conn, err := dialer.Dial(ctx, wsURL)
			require.Nil(t, err)
			conn.Close(1000, `bye`, time.Millisecond*50)
			conn.Close(1000, `bye`, time.Millisecond*50)
			_, err = conn.Receive(ctx)
			assert.NotNil(t, err)
			assert.NotNil(t, conn.Send(ctx, []byte(`{}`)))
		})
		t.Run("fails on a plain http endpoint", func(t *testing.T) {
			stub := httptest.NewServer(http.NotFoundHandler())
			defer stub.Close()
			_, err := dialer.Dial(ctx, `ws`+strings.TrimPrefix(stub.URL, `http`))
			var te *gqlwserror.TransportError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, `dial`, te.Op)
		})
	})
}
