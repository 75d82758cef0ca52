package gqlwsmessage

import (
	"reflect"

	"github.com/graphql-go/graphql/gqlerrors"
)

// Request is a single GraphQL operation. It must not be mutated once sent.
type Request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables,omitempty"`
	Extensions    map[string]interface{} `json:"extensions,omitempty"`
}

// Equal reports whether both requests carry the same content.
func (r Request) Equal(o Request) bool {
	return r.Query == o.Query &&
		r.OperationName == o.OperationName &&
		equalMaps(r.Variables, o.Variables) &&
		equalMaps(r.Extensions, o.Extensions)
}

// GraphQLError is a GraphQL error as it appears in the errors field of a response.
type GraphQLError = gqlerrors.FormattedError

// Response is the envelope of a GraphQL result. Data and Errors may both be set
// on partial success. Use a pointer or map for T when data may be absent.
type Response[T any] struct {
	Data       T                      `json:"data"`
	Errors     []GraphQLError         `json:"errors,omitempty"`
	Extensions map[string]interface{} `json:"extensions,omitempty"`
}

// HasErrors reports whether the server returned any GraphQL error.
func (r *Response[T]) HasErrors() bool { return r != nil && len(r.Errors) > 0 }

// Equal compares Data and Errors. Extensions are not part of the identity.
func (r *Response[T]) Equal(o *Response[T]) bool {
	if r == o {
		return true
	}
	if r == nil || o == nil {
		return false
	}
	if !reflect.DeepEqual(r.Data, o.Data) {
		return false
	}
	if len(r.Errors) != len(o.Errors) {
		return false
	}
	for i := range r.Errors {
		if !equalErrors(r.Errors[i], o.Errors[i]) {
			return false
		}
	}
	return true
}

func equalErrors(a, b GraphQLError) bool {
	return a.Message == b.Message &&
		reflect.DeepEqual(a.Locations, b.Locations) &&
		reflect.DeepEqual(a.Path, b.Path) &&
		equalMaps(a.Extensions, b.Extensions)
}

// nil and empty maps are the same thing on the wire
func equalMaps(a, b map[string]interface{}) bool {
	if len(a) == 0 && len(b) == 0 {
		return true
	}
	return reflect.DeepEqual(a, b)
}
