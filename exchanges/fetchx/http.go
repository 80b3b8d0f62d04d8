package fetchx

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/Bipboy/urql/errors"
	"github.com/Bipboy/urql/gql"
)

// maxResponseBytes bounds how much of a response body is read. GraphQL
// responses beyond this are almost certainly a misdirected endpoint.
const maxResponseBytes = 32 << 20

// requestBody is the GraphQL-over-HTTP POST shape.
type requestBody struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// responseBody is the GraphQL-over-HTTP response shape.
type responseBody struct {
	Data       json.RawMessage `json:"data"`
	Errors     gqlerror.List   `json:"errors"`
	Extensions map[string]any  `json:"extensions"`
}

// execute performs one GraphQL HTTP exchange. A returned error is a
// network-layer failure; server-side errors come back inside the
// result.
func execute(ctx context.Context, httpClient *http.Client, op gql.Operation) (gql.OperationResult, error) {
	if op.Context.HTTPClient != nil {
		httpClient = op.Context.HTTPClient
	}

	req, err := buildRequest(ctx, op)
	if err != nil {
		return gql.OperationResult{}, err
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return gql.OperationResult{}, errors.WrapTransient(
			err, "fetchx", "execute", "HTTP round trip")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return gql.OperationResult{}, errors.WrapTransient(
			err, "fetchx", "execute", "response read")
	}

	var decoded responseBody
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Servers signal some failures (auth, routing) with a bare
		// status and a non-GraphQL body.
		if resp.StatusCode >= 300 {
			return gql.OperationResult{}, errors.WrapTransient(
				fmt.Errorf("unexpected status %s", resp.Status),
				"fetchx", "execute", "response decode")
		}
		return gql.OperationResult{}, errors.WrapInvalid(
			err, "fetchx", "execute", "response decode")
	}

	result := gql.OperationResult{
		Operation:  op,
		Data:       decoded.Data,
		Extensions: decoded.Extensions,
	}
	if len(decoded.Errors) > 0 {
		result.Error = gql.ResponseErrs(decoded.Errors)
	}
	if !result.HasData() && result.Error == nil && resp.StatusCode >= 300 {
		return gql.OperationResult{}, errors.WrapTransient(
			fmt.Errorf("unexpected status %s", resp.Status),
			"fetchx", "execute", "response validation")
	}
	return result, nil
}

func buildRequest(ctx context.Context, op gql.Operation) (*http.Request, error) {
	fetchOptions := op.Context.FetchOptions
	if op.Context.FetchOptionsFn != nil {
		fetchOptions = op.Context.FetchOptionsFn()
	}

	var req *http.Request
	var err error
	if methodFor(op) == http.MethodGet {
		req, err = buildGetRequest(ctx, op)
	} else {
		req, err = buildPostRequest(ctx, op)
	}
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")
	for name, values := range fetchOptions.Headers {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}
	return req, nil
}

func buildPostRequest(ctx context.Context, op gql.Operation) (*http.Request, error) {
	payload, err := json.Marshal(requestBody{
		Query:         op.Query,
		OperationName: op.OperationName(),
		Variables:     op.Variables,
	})
	if err != nil {
		return nil, errors.WrapInvalid(err, "fetchx", "buildPostRequest", "body encode")
	}

	req, err := http.NewRequestWithContext(
		ctx, http.MethodPost, op.Context.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WrapInvalid(err, "fetchx", "buildPostRequest", "request build")
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

func buildGetRequest(ctx context.Context, op gql.Operation) (*http.Request, error) {
	u, err := url.Parse(op.Context.URL)
	if err != nil {
		return nil, errors.WrapInvalid(err, "fetchx", "buildGetRequest", "URL parse")
	}

	q := u.Query()
	q.Set("query", op.Query)
	if name := op.OperationName(); name != "" {
		q.Set("operationName", name)
	}
	if len(op.Variables) > 0 {
		vars, err := json.Marshal(op.Variables)
		if err != nil {
			return nil, errors.WrapInvalid(err, "fetchx", "buildGetRequest", "variables encode")
		}
		q.Set("variables", string(vars))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, errors.WrapInvalid(err, "fetchx", "buildGetRequest", "request build")
	}
	return req, nil
}
