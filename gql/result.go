package gql

import "encoding/json"

// OperationResult is one outcome of an operation. Exactly one of Data
// and Error is populated for a success or failure; both are absent only
// in a vacuous result such as a cache-only miss. Every result carries
// the operation that produced it so consumers can correlate without
// auxiliary bookkeeping.
type OperationResult struct {
	Operation  Operation
	Data       json.RawMessage
	Error      *CombinedError
	Extensions map[string]any

	// Stale marks a result an exchange knows is outdated but returns
	// eagerly, e.g. cache-and-network's first emission.
	Stale bool
}

// HasData reports whether the result carries a payload.
func (r OperationResult) HasData() bool {
	return len(r.Data) > 0
}

// UnmarshalData decodes the payload into target.
func (r OperationResult) UnmarshalData(target any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, target)
}

// ErrorResult builds a failure result for op.
func ErrorResult(op Operation, err *CombinedError) OperationResult {
	return OperationResult{Operation: op, Error: err}
}
