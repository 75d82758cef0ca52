package gqlwsserver

import (
	"errors"
	"sync"

	"github.com/graphql-go/graphql"
	goutils "github.com/onichandame/go-utils"
)

// Message is a chat message.
type Message struct {
	Content string `json:"content"`
	FromID  string `json:"fromId"`
}

// Chat is a tiny in-memory chat room backing the schema returned by Schema.
type Chat struct {
	lock        sync.Mutex
	messages    []Message
	subscribers map[*subscriber]struct{}
}

type subscriber struct {
	ch   chan Message
	done chan struct{}
}

func NewChat() *Chat {
	return &Chat{subscribers: make(map[*subscriber]struct{})}
}

// Messages returns every message posted so far.
func (c *Chat) Messages() []Message {
	c.lock.Lock()
	defer c.lock.Unlock()
	messages := make([]Message, len(c.messages))
	copy(messages, c.messages)
	return messages
}

// Subscribers returns the number of live onMessageAdded subscriptions.
func (c *Chat) Subscribers() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.subscribers)
}

// AddMessage stores a message and hands it to every subscriber.
func (c *Chat) AddMessage(msg Message) Message {
	c.lock.Lock()
	c.messages = append(c.messages, msg)
	subs := make([]*subscriber, 0, len(c.subscribers))
	for sub := range c.subscribers {
		subs = append(subs, sub)
	}
	c.lock.Unlock()
	for _, sub := range subs {
		select {
		case sub.ch <- msg:
		case <-sub.done:
		}
	}
	return msg
}

func (c *Chat) subscribe() *subscriber {
	sub := &subscriber{ch: make(chan Message, 16), done: make(chan struct{})}
	c.lock.Lock()
	defer c.lock.Unlock()
	c.subscribers[sub] = struct{}{}
	return sub
}

func (c *Chat) unsubscribe(sub *subscriber) {
	c.lock.Lock()
	defer c.lock.Unlock()
	delete(c.subscribers, sub)
	close(sub.done)
}

type extendedError struct {
	error
	extensions map[string]interface{}
}

func (e *extendedError) Extensions() map[string]interface{} { return e.extensions }

// TestExtensions are reported by the extensionsTest query.
var TestExtensions = map[string]interface{}{`data`: map[string]interface{}{`number`: 42, `text`: `some text`}}

// Schema builds a chat schema on top of chat:
//
//	query { messages { content fromId } extensionsTest }
//	mutation { addMessage(content: String!, fromId: String) { content fromId } }
//	subscription { onMessageAdded { content fromId } counter(limit: Int!) }
func Schema(chat *Chat) *graphql.Schema {
	message := graphql.NewObject(graphql.ObjectConfig{
		Name: `Message`,
		Fields: graphql.Fields{
			`content`: &graphql.Field{Type: graphql.NewNonNull(graphql.String)},
			`fromId`:  &graphql.Field{Type: graphql.String},
		},
	})
	schema, err := graphql.NewSchema(graphql.SchemaConfig{
		Query: graphql.NewObject(graphql.ObjectConfig{
			Name: `Query`,
			Fields: graphql.Fields{
				`messages`: &graphql.Field{
					Type: graphql.NewNonNull(graphql.NewList(graphql.NewNonNull(message))),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return chat.Messages(), nil
					},
				},
				`extensionsTest`: &graphql.Field{
					Type: graphql.String,
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return nil, &extendedError{error: errors.New(`extensions test`), extensions: TestExtensions}
					},
				},
			},
		}),
		Mutation: graphql.NewObject(graphql.ObjectConfig{
			Name: `Mutation`,
			Fields: graphql.Fields{
				`addMessage`: &graphql.Field{
					Type: graphql.NewNonNull(message),
					Args: graphql.FieldConfigArgument{
						`content`: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
						`fromId`:  &graphql.ArgumentConfig{Type: graphql.String},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						msg := Message{}
						msg.Content, _ = p.Args[`content`].(string)
						msg.FromID, _ = p.Args[`fromId`].(string)
						return chat.AddMessage(msg), nil
					},
				},
			},
		}),
		Subscription: graphql.NewObject(graphql.ObjectConfig{
			Name: `Subscription`,
			Fields: graphql.Fields{
				`onMessageAdded`: &graphql.Field{
					Type: graphql.NewNonNull(message),
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return p.Source, nil
					},
					Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
						stop := GetSubscriptionStopSig(p.Context)
						sub := chat.subscribe()
						res := make(chan interface{})
						go func() {
							defer close(res)
							defer chat.unsubscribe(sub)
							for {
								select {
								case msg := <-sub.ch:
									select {
									case res <- msg:
									case <-stop:
										return
									case <-p.Context.Done():
										return
									}
								case <-stop:
									return
								case <-p.Context.Done():
									return
								}
							}
						}()
						return res, nil
					},
				},
				`counter`: &graphql.Field{
					Type: graphql.NewNonNull(graphql.Int),
					Args: graphql.FieldConfigArgument{
						`limit`: &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Int)},
					},
					Resolve: func(p graphql.ResolveParams) (interface{}, error) {
						return p.Source, nil
					},
					Subscribe: func(p graphql.ResolveParams) (interface{}, error) {
						stop := GetSubscriptionStopSig(p.Context)
						limit, _ := p.Args[`limit`].(int)
						res := make(chan interface{})
						go func() {
							defer close(res)
							for i := 1; i <= limit; i++ {
								select {
								case res <- i:
								case <-stop:
									return
								case <-p.Context.Done():
									return
								}
							}
						}()
						return res, nil
					},
				},
			},
		}),
	})
	goutils.Assert(err)
	return &schema
}
