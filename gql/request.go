package gql

import (
	"bytes"
	"encoding/json"
	"hash/fnv"
	"io"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/Bipboy/urql/errors"
)

// Request describes a GraphQL document plus variables under a
// deterministic key. The same (query, variables) pair always yields the
// same key regardless of query whitespace or variable map ordering.
type Request struct {
	// Key identifies the request. Derived from the formatter-normalized
	// document and the canonically serialized variables with FNV-1a 64.
	// The hash is structural, not cryptographic: collisions are accepted
	// as overwhelmingly unlikely, not impossible.
	Key uint64

	// Query is the raw document text as supplied by the caller. This is
	// what transports put on the wire.
	Query string

	// Document is the parsed form of Query.
	Document *ast.QueryDocument

	// Variables are the operation variables, may be nil.
	Variables map[string]any
}

// NewRequest parses query, derives the request key and returns the
// immutable Request. Parse failures are classified as invalid.
func NewRequest(query string, variables map[string]any) (Request, error) {
	if query == "" {
		return Request{}, errors.WrapInvalid(
			errors.ErrMissingQuery, "gql", "NewRequest", "query validation")
	}

	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return Request{}, errors.WrapInvalid(
			err, "gql", "NewRequest", "query parsing")
	}

	key, err := requestKey(doc, variables)
	if err != nil {
		return Request{}, errors.Wrap(err, "gql", "NewRequest", "key derivation")
	}

	return Request{
		Key:       key,
		Query:     query,
		Document:  doc,
		Variables: variables,
	}, nil
}

// requestKey hashes the normalized document and variables. The document
// is printed through the gqlparser formatter so formatting differences
// collapse to one key; encoding/json sorts map keys, making variable
// ordering canonical.
func requestKey(doc *ast.QueryDocument, variables map[string]any) (uint64, error) {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf).FormatQueryDocument(doc)

	h := fnv.New64a()
	_, _ = io.WriteString(h, buf.String())

	if len(variables) > 0 {
		vars, err := json.Marshal(variables)
		if err != nil {
			return 0, errors.WrapInvalid(err, "gql", "requestKey", "variable serialization")
		}
		_, _ = h.Write([]byte{0})
		_, _ = h.Write(vars)
	}

	return h.Sum64(), nil
}

// OperationName returns the name of the first named operation in the
// document, or "" for anonymous documents.
func (r Request) OperationName() string {
	if r.Document == nil {
		return ""
	}
	for _, op := range r.Document.Operations {
		if op.Name != "" {
			return op.Name
		}
	}
	return ""
}
