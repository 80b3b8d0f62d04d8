package gql

import (
	"strings"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/Bipboy/urql/errors"
)

// CombinedError aggregates zero-or-more GraphQL response errors and an
// optional network-layer error into one value. It is created once per
// failing result and never mutated after construction. The original
// error values are preserved by reference for programmatic inspection.
type CombinedError struct {
	GraphQLErrors gqlerror.List
	NetworkError  error

	message string
}

// NewCombinedError builds a CombinedError. An empty error list with no
// network error is a construction-contract violation and is rejected
// with a classified invalid error.
func NewCombinedError(graphQLErrors gqlerror.List, networkError error) (*CombinedError, error) {
	if len(graphQLErrors) == 0 && networkError == nil {
		return nil, errors.WrapInvalid(
			errors.ErrEmptyCombined, "gql", "NewCombinedError", "input validation")
	}
	return &CombinedError{
		GraphQLErrors: graphQLErrors,
		NetworkError:  networkError,
		message:       combineMessages(graphQLErrors, networkError),
	}, nil
}

// NetworkErr builds a CombinedError for a transport failure.
func NetworkErr(err error) *CombinedError {
	ce, _ := NewCombinedError(nil, err)
	return ce
}

// ResponseErrs builds a CombinedError from server-side response errors.
func ResponseErrs(graphQLErrors gqlerror.List) *CombinedError {
	ce, _ := NewCombinedError(graphQLErrors, nil)
	return ce
}

// combineMessages concatenates all causes with a fixed "\n" separator.
// Network causes are prefixed "[Network]", server causes "[GraphQL]".
func combineMessages(graphQLErrors gqlerror.List, networkError error) string {
	parts := make([]string, 0, len(graphQLErrors)+1)
	if networkError != nil {
		parts = append(parts, "[Network] "+networkError.Error())
	}
	for _, gqlErr := range graphQLErrors {
		parts = append(parts, "[GraphQL] "+gqlErr.Message)
	}
	return strings.Join(parts, "\n")
}

// Error implements the error interface with the flattened message.
func (e *CombinedError) Error() string {
	return e.message
}

// Unwrap exposes the underlying causes to errors.Is / errors.As.
func (e *CombinedError) Unwrap() []error {
	causes := make([]error, 0, len(e.GraphQLErrors)+1)
	if e.NetworkError != nil {
		causes = append(causes, e.NetworkError)
	}
	for _, gqlErr := range e.GraphQLErrors {
		causes = append(causes, gqlErr)
	}
	return causes
}
