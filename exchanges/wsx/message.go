package wsx

import (
	"encoding/json"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/gql"
)

// graphql-transport-ws message types.
const (
	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// message is the graphql-transport-ws frame envelope.
type message struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// subscribePayload is the payload of a subscribe frame.
type subscribePayload struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// executionResult is the payload of a next frame.
type executionResult struct {
	Data       json.RawMessage `json:"data"`
	Errors     gqlerror.List   `json:"errors"`
	Extensions map[string]any  `json:"extensions"`
}

func newMessage(id, msgType string, payload any) (message, error) {
	m := message{ID: id, Type: msgType}
	if payload == nil {
		return m, nil
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return message{}, errors.WrapInvalid(err, "wsx", "newMessage", "payload encode")
	}
	m.Payload = encoded
	return m, nil
}

func subscribeMessage(id string, op gql.Operation) (message, error) {
	return newMessage(id, msgSubscribe, subscribePayload{
		Query:         op.Query,
		OperationName: op.OperationName(),
		Variables:     op.Variables,
	})
}

// nextResult decodes a next frame's payload into a result for op.
func nextResult(op gql.Operation, payload json.RawMessage) (gql.OperationResult, error) {
	var decoded executionResult
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return gql.OperationResult{}, errors.WrapInvalid(
			err, "wsx", "nextResult", "payload decode")
	}

	result := gql.OperationResult{
		Operation:  op,
		Data:       decoded.Data,
		Extensions: decoded.Extensions,
	}
	if len(decoded.Errors) > 0 {
		result.Error = gql.ResponseErrs(decoded.Errors)
	}
	return result, nil
}

// errorResult decodes an error frame's payload, which the protocol
// defines as a list of GraphQL errors, into a failure result for op.
func errorResult(op gql.Operation, payload json.RawMessage) gql.OperationResult {
	var list gqlerror.List
	if err := json.Unmarshal(payload, &list); err != nil || len(list) == 0 {
		return gql.ErrorResult(op, gql.NetworkErr(errors.WrapTransient(
			errors.ErrSubscribeFailed, "wsx", "errorResult",
			"malformed error frame")))
	}
	return gql.ErrorResult(op, gql.ResponseErrs(list))
}
