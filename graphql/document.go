package graphql

import (
	"encoding/json"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Document is a parsed GraphQL executable document.
//
// The document is opaque to the bridge: it travels as its source text and
// the receiving side is responsible for resolving it.
type Document struct {
	Source string
	AST    *ast.QueryDocument
}

// Parse parses a GraphQL document. Only the syntax is checked, no schema is involved.
func Parse(src string) (*Document, error) {
	doc, err := parser.ParseQuery(&ast.Source{Name: "document", Input: src})
	if err != nil {
		return nil, fmt.Errorf("failed to parse graphql document: %w", err)
	}
	return &Document{
		Source: src,
		AST:    doc,
	}, nil
}

// MustParse parses a GraphQL document or panic.
func MustParse(src string) *Document {
	doc, err := Parse(src)
	if err != nil {
		panic(err)
	}
	return doc
}

// OperationName returns the name of the first operation of the document.
func (d *Document) OperationName() string {
	if d == nil || d.AST == nil || len(d.AST.Operations) == 0 {
		return ""
	}
	return d.AST.Operations[0].Name
}

// Operation returns the kind of the first operation (query, mutation, subscription).
func (d *Document) Operation() ast.Operation {
	if d == nil || d.AST == nil || len(d.AST.Operations) == 0 {
		return ""
	}
	return d.AST.Operations[0].Operation
}

func (d *Document) String() string {
	if d == nil {
		return ""
	}
	return d.Source
}

// MarshalJSON encodes the document as its source text.
func (d *Document) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Source)
}

// UnmarshalJSON decodes and parses a document from its source text.
func (d *Document) UnmarshalJSON(b []byte) error {
	var src string
	if err := json.Unmarshal(b, &src); err != nil {
		return err
	}
	parsed, err := Parse(src)
	if err != nil {
		return err
	}
	*d = *parsed
	return nil
}
