package main

import (
	"net/http"
	"os"
	"time"

	goutils "github.com/onichandame/go-utils"
	gqlwsserver "github.com/onichandame/gql-client/server"
	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	chat := gqlwsserver.NewChat()
	srv := gqlwsserver.NewServer(&gqlwsserver.Config{
		Schema:            gqlwsserver.Schema(chat),
		KeepAliveInterval: time.Second * 10,
	})
	go func() {
		ticker := time.NewTicker(time.Second * 5)
		defer ticker.Stop()
		for now := range ticker.C {
			chat.AddMessage(gqlwsserver.Message{Content: now.Format(time.RFC3339), FromID: `clock`})
		}
	}()
	log.Info().Str(`addr`, `:8080`).Msg(`serving /graphql`)
	goutils.Assert(http.ListenAndServe(`0.0.0.0:8080`, srv.Handler()))
}
