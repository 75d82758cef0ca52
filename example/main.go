package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"

	goutils "github.com/onichandame/go-utils"
	gqlclient "github.com/onichandame/gql-client"
	gqlwsmessage "github.com/onichandame/gql-client/message"
	"github.com/rs/zerolog"
)

type messageAdded struct {
	OnMessageAdded struct {
		Content string `json:"content"`
		FromID  string `json:"fromId"`
	} `json:"onMessageAdded"`
}

// usage: example [options.yaml]
func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	opts := gqlclient.Options{Endpoint: `http://localhost:8080/graphql`}
	if len(os.Args) > 1 {
		var err error
		opts, err = gqlclient.LoadOptions(os.Args[1])
		goutils.Assert(err)
	}
	opts.Logger = &log
	client, err := gqlclient.New(opts)
	goutils.Assert(err)
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	res, err := gqlclient.Mutate[map[string]interface{}](ctx, client, gqlwsmessage.Request{
		Query:     `mutation($content: String!){addMessage(content: $content, fromId: "example"){content}}`,
		Variables: map[string]interface{}{`content`: `hello`},
	})
	goutils.Assert(err)
	log.Info().Interface(`data`, res.Data).Msg(`posted`)

	stream, err := gqlclient.Subscribe[messageAdded](ctx, client, gqlwsmessage.Request{
		Query: `subscription{onMessageAdded{content fromId}}`,
	})
	goutils.Assert(err)
	defer stream.Close()
	for {
		res, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return
		}
		if err != nil {
			log.Error().Err(err).Msg(`subscription`)
			continue
		}
		log.Info().Str(`from`, res.Data.OnMessageAdded.FromID).Msg(res.Data.OnMessageAdded.Content)
	}
}
