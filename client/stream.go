package gqlwsclient

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/eapache/queue"
	gqlwserror "github.com/onichandame/gql-client/error"
	gqlwsmessage "github.com/onichandame/gql-client/message"
	gqlwsserializer "github.com/onichandame/gql-client/serializer"
)

type event struct {
	payload json.RawMessage
	err     error
}

// sink buffers the events of one subscription until its consumer reads them.
// The session loop never blocks on a slow consumer.
type sink struct {
	lock   sync.Mutex
	queue  *queue.Queue
	notify chan struct{}
	// final is returned once the queue is drained after the stream ended
	final  error
	ended  bool
	closed bool
}

func newSink() *sink {
	return &sink{queue: queue.New(), notify: make(chan struct{}, 1)}
}

func (s *sink) push(ev event) bool {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ended || s.closed {
		return false
	}
	s.queue.Add(ev)
	s.signal()
	return true
}

// end terminates the stream. The first terminal error wins.
func (s *sink) end(err error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.final = err
	s.signal()
}

func (s *sink) close() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.closed = true
	s.queue = queue.New()
	s.signal()
}

func (s *sink) signal() {
	select {
	case s.notify <- struct{}{}:
	default:
	}
}

func (s *sink) pop(ctx context.Context) (event, error) {
	for {
		s.lock.Lock()
		switch {
		case s.closed:
			s.lock.Unlock()
			return event{}, gqlwserror.ErrStreamClosed
		case s.queue.Length() > 0:
			ev := s.queue.Remove().(event)
			s.lock.Unlock()
			return ev, nil
		case s.ended:
			err := s.final
			s.lock.Unlock()
			return event{}, err
		}
		s.lock.Unlock()
		select {
		case <-s.notify:
		case <-ctx.Done():
			return event{}, ctx.Err()
		}
	}
}

// Stream is the consumer side of one subscription. Responses survive
// reconnects: the subscription is restarted on the new connection.
type Stream[T any] struct {
	id         string
	reg        *registration
	sink       *sink
	session    *Session
	serializer gqlwsserializer.Serializer
	closeOnce  sync.Once
}

func (s *Stream[T]) ID() string { return s.id }

// Next blocks until the next response arrives. GraphQL errors are part of the
// response. A *gqlwserror.PayloadError means one frame could not be decoded
// and the stream goes on. io.EOF marks normal completion; any other error is
// terminal and returned again on every later call.
func (s *Stream[T]) Next(ctx context.Context) (*gqlwsmessage.Response[T], error) {
	ev, err := s.sink.pop(ctx)
	if err != nil {
		return nil, err
	}
	if ev.err != nil {
		return nil, ev.err
	}
	res, err := gqlwsserializer.DecodeResponse[T](s.serializer, ev.payload)
	if err != nil {
		return nil, gqlwserror.NewPayloadError(s.id, err)
	}
	return res, nil
}

// Close unsubscribes. Buffered responses are discarded. It never blocks and
// may be called any number of times, also after the session is closed.
func (s *Stream[T]) Close() {
	s.closeOnce.Do(func() {
		s.sink.close()
		s.session.unsubscribe(s.reg)
	})
}
