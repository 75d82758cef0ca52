// Package gqlwsserializer encodes GraphQL requests and decodes typed responses
// and protocol frames. Any Serializer can be plugged into the client.
package gqlwsserializer

import (
	"encoding/json"
	"io"

	jsoniter "github.com/json-iterator/go"
	gqlwsmessage "github.com/onichandame/gql-client/message"
)

// Serializer is a stateless JSON codec.
type Serializer interface {
	Marshal(v interface{}) ([]byte, error)
	Unmarshal(data []byte, v interface{}) error
	NewDecoder(r io.Reader) Decoder
}

// Decoder reads one value from a stream.
type Decoder interface {
	Decode(v interface{}) error
}

// Jsoniter is backed by json-iterator. The zero value uses the configuration
// compatible with encoding/json.
type Jsoniter struct {
	API jsoniter.API
}

// Default is the serializer used when none is configured.
func Default() Serializer { return Jsoniter{} }

func (s Jsoniter) api() jsoniter.API {
	if s.API == nil {
		return jsoniter.ConfigCompatibleWithStandardLibrary
	}
	return s.API
}

func (s Jsoniter) Marshal(v interface{}) ([]byte, error) { return s.api().Marshal(v) }

func (s Jsoniter) Unmarshal(data []byte, v interface{}) error { return s.api().Unmarshal(data, v) }

func (s Jsoniter) NewDecoder(r io.Reader) Decoder { return s.api().NewDecoder(r) }

// JSON is backed by encoding/json.
type JSON struct {
	// DisallowUnknownFields is applied to stream decoding
	DisallowUnknownFields bool
}

func (JSON) Marshal(v interface{}) ([]byte, error) { return json.Marshal(v) }

func (JSON) Unmarshal(data []byte, v interface{}) error { return json.Unmarshal(data, v) }

func (s JSON) NewDecoder(r io.Reader) Decoder {
	dec := json.NewDecoder(r)
	if s.DisallowUnknownFields {
		dec.DisallowUnknownFields()
	}
	return dec
}

// EncodeRequest serializes a request for a POST body.
func EncodeRequest(s Serializer, req gqlwsmessage.Request) ([]byte, error) {
	return s.Marshal(req)
}

// DecodeRequest is the inverse of EncodeRequest.
func DecodeRequest(s Serializer, data []byte) (gqlwsmessage.Request, error) {
	var req gqlwsmessage.Request
	err := s.Unmarshal(data, &req)
	return req, err
}

// DecodeResponse decodes a response envelope whose data has the shape T.
func DecodeResponse[T any](s Serializer, data []byte) (*gqlwsmessage.Response[T], error) {
	var res gqlwsmessage.Response[T]
	if err := s.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// DecodeResponseFrom decodes a response envelope from a stream.
func DecodeResponseFrom[T any](s Serializer, r io.Reader) (*gqlwsmessage.Response[T], error) {
	var res gqlwsmessage.Response[T]
	if err := s.NewDecoder(r).Decode(&res); err != nil {
		return nil, err
	}
	return &res, nil
}

// EncodeFrame serializes a protocol frame.
func EncodeFrame(s Serializer, msg *gqlwsmessage.Message) ([]byte, error) {
	return s.Marshal(msg)
}

// DecodeFrame parses a protocol frame, leaving its payload raw.
func DecodeFrame(s Serializer, data []byte) (*gqlwsmessage.Message, error) {
	var msg gqlwsmessage.Message
	if err := s.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// NewStartFrame builds the start frame of a subscription.
func NewStartFrame(s Serializer, id string, req gqlwsmessage.Request) (*gqlwsmessage.Message, error) {
	payload, err := s.Marshal(gqlwsmessage.NewStartPayload(req))
	if err != nil {
		return nil, err
	}
	return &gqlwsmessage.Message{Type: gqlwsmessage.Start, ID: id, Payload: payload}, nil
}
