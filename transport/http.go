package gqlwstransport

import (
	"bytes"
	"context"
	"io"
	"net/http"

	gqlwserror "github.com/onichandame/gql-client/error"
)

// Sender performs a single request/response exchange.
type Sender interface {
	Post(ctx context.Context, body []byte) ([]byte, error)
}

// HTTPSender posts GraphQL requests over plain HTTP.
type HTTPSender struct {
	Client    *http.Client
	Endpoint  string
	MediaType string
	Headers   map[string]string
}

func (s *HTTPSender) Post(ctx context.Context, body []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, gqlwserror.NewTransportError(`post`, err)
	}
	mediaType := s.MediaType
	if mediaType == `` {
		mediaType = `application/json`
	}
	req.Header.Set(`Content-Type`, mediaType)
	req.Header.Set(`Accept`, `application/json`)
	for k, v := range s.Headers {
		req.Header.Set(k, v)
	}
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	res, err := client.Do(req)
	if err != nil {
		return nil, gqlwserror.NewTransportError(`post`, err)
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, gqlwserror.NewTransportError(`post`, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &gqlwserror.TransportError{Op: `post`, StatusCode: res.StatusCode, Body: data}
	}
	return data, nil
}
