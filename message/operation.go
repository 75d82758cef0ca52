package gqlwsmessage

import (
	"github.com/graphql-go/graphql/language/ast"
	"github.com/graphql-go/graphql/language/parser"
	"github.com/graphql-go/graphql/language/source"
)

// OperationType returns the type of the operation the request selects (query,
// mutation or subscription), or "" when the document does not parse or holds
// no operation named OperationName.
func (r Request) OperationType() string {
	src := source.NewSource(&source.Source{
		Body: []byte(r.Query),
		Name: "GraphQL request",
	})

	AST, err := parser.Parse(parser.ParseParams{Source: src})
	if err != nil {
		return ""
	}

	for _, node := range AST.Definitions {
		if operationDef, ok := node.(*ast.OperationDefinition); ok {
			if r.OperationName == `` || (operationDef.Name != nil && operationDef.Name.Value == r.OperationName) {
				return operationDef.Operation
			}
		}
	}
	return ""
}
