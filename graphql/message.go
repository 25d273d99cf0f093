// Package graphql provides the GraphQL documents and payloads exchanged over the bridge.
package graphql

import (
	"encoding/json"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Query is the JSON body of a GraphQL HTTP request.
type Query struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName,omitempty"`
	Variables     map[string]interface{} `json:"variables"`
}

// Response is the JSON body of a GraphQL response.
type Response struct {
	Data   json.RawMessage `json:"data,omitempty"`
	Errors gqlerror.List   `json:"errors,omitempty"`
}

// HasData reports whether the response carries a non-null data field.
func (r *Response) HasData() bool {
	return r != nil && len(r.Data) > 0 && string(r.Data) != "null"
}

// UnmarshalData decodes the data field into v.
func (r *Response) UnmarshalData(v any) error {
	if !r.HasData() {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// Err returns the GraphQL errors of the response, or nil.
func (r *Response) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return r.Errors
}

// NewQuery builds the HTTP request body for a document.
func NewQuery(doc *Document, variables map[string]interface{}) Query {
	if variables == nil {
		variables = map[string]interface{}{}
	}
	return Query{
		Query:         doc.Source,
		OperationName: doc.OperationName(),
		Variables:     variables,
	}
}
