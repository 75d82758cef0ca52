package gqlclient_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	gqlclient "github.com/onichandame/gql-client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const optionsYAML = `
endpoint: https://api.example.com/graphql
headers:
  Authorization: Bearer secret
media_type: application/graphql-response+json
use_websocket_for_queries_and_mutations: true
connection_ack_timeout: 3s
keep_alive_timeout: 1m
grace_close_period: 250ms
`

func TestOptions(t *testing.T) {
	t.Run("parses yaml", func(t *testing.T) {
		opts, err := gqlclient.ParseOptions([]byte(optionsYAML))
		require.Nil(t, err)
		assert.Equal(t, `https://api.example.com/graphql`, opts.Endpoint)
		assert.Equal(t, map[string]string{`Authorization`: `Bearer secret`}, opts.Headers)
		assert.Equal(t, `application/graphql-response+json`, opts.MediaType)
		assert.True(t, opts.UseWebSocketForQueriesAndMutations)
		assert.Equal(t, time.Second*3, opts.ConnectionAckTimeout)
		assert.Equal(t, time.Minute, opts.KeepAliveTimeout)
		assert.Equal(t, time.Millisecond*250, opts.GraceClosePeriod)
	})
	t.Run("loads a file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), `client.yaml`)
		require.Nil(t, os.WriteFile(path, []byte(optionsYAML), 0o600))
		opts, err := gqlclient.LoadOptions(path)
		require.Nil(t, err)
		client, err := gqlclient.New(opts)
		require.Nil(t, err)
		assert.Equal(t, `wss://api.example.com/graphql`, client.Options().WebSocketEndpoint)
		_, err = gqlclient.LoadOptions(filepath.Join(t.TempDir(), `missing.yaml`))
		assert.NotNil(t, err)
	})
	t.Run("rejects malformed yaml", func(t *testing.T) {
		_, err := gqlclient.ParseOptions([]byte(`connection_ack_timeout: [1`))
		assert.NotNil(t, err)
		_, err = gqlclient.ParseOptions([]byte(`connection_ack_timeout: soon`))
		assert.NotNil(t, err)
	})
	t.Run("defaults the media type", func(t *testing.T) {
		client, err := gqlclient.New(gqlclient.Options{Endpoint: `http://host/graphql`})
		require.Nil(t, err)
		assert.Equal(t, `application/json`, client.Options().MediaType)
		assert.NotNil(t, client.Options().Serializer)
	})
}
