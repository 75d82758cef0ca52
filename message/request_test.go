package gqlwsmessage_test

import (
	"testing"

	"github.com/graphql-go/graphql/gqlerrors"
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/location"
	gqlwsmessage "github.com/onichandame/gql-client/message"
	"github.com/stretchr/testify/assert"
)

func TestRequest(t *testing.T) {
	req := gqlwsmessage.Request{
		Query:         `query Q($id: ID!){node(id: $id){id}}`,
		OperationName: `Q`,
		Variables:     map[string]interface{}{`id`: `1`},
	}
	t.Run("equal", func(t *testing.T) {
		same := req
		same.Variables = map[string]interface{}{`id`: `1`}
		same.Extensions = map[string]interface{}{}
		assert.True(t, req.Equal(same))
		other := req
		other.Variables = map[string]interface{}{`id`: `2`}
		assert.False(t, req.Equal(other))
		other = req
		other.OperationName = ``
		assert.False(t, req.Equal(other))
	})
	t.Run("start payload carries the request", func(t *testing.T) {
		assert.True(t, req.Equal(gqlwsmessage.NewStartPayload(req).Request()))
	})
}

func TestOperationType(t *testing.T) {
	doc := `query Q{messages} mutation M{addMessage(content: "x"){content}} subscription S{onMessageAdded{content}}`
	for _, c := range []struct {
		req  gqlwsmessage.Request
		want string
	}{
		{gqlwsmessage.Request{Query: `{messages}`}, ast.OperationTypeQuery},
		{gqlwsmessage.Request{Query: doc}, ast.OperationTypeQuery},
		{gqlwsmessage.Request{Query: doc, OperationName: `M`}, ast.OperationTypeMutation},
		{gqlwsmessage.Request{Query: doc, OperationName: `S`}, ast.OperationTypeSubscription},
		{gqlwsmessage.Request{Query: doc, OperationName: `missing`}, ``},
		{gqlwsmessage.Request{Query: `subscription {`}, ``},
	} {
		assert.Equal(t, c.want, c.req.OperationType(), c.req.OperationName)
	}
}

func TestResponse(t *testing.T) {
	err := gqlerrors.FormattedError{
		Message:   `boom`,
		Locations: []location.SourceLocation{{Line: 1, Column: 2}},
		Path:      []interface{}{`node`, 0},
	}
	a := &gqlwsmessage.Response[map[string]interface{}]{Data: map[string]interface{}{`node`: nil}, Errors: []gqlwsmessage.GraphQLError{err}}
	b := &gqlwsmessage.Response[map[string]interface{}]{
		Data:       map[string]interface{}{`node`: nil},
		Errors:     []gqlwsmessage.GraphQLError{err},
		Extensions: map[string]interface{}{`cost`: 1},
	}
	assert.True(t, a.HasErrors())
	assert.True(t, a.Equal(b))
	b.Errors[0].Extensions = map[string]interface{}{`code`: `E`}
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
	var empty *gqlwsmessage.Response[int]
	assert.False(t, empty.HasErrors())
}
