package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
)

// Operation is a parsed GraphQL document holding exactly one operation.
type Operation struct {
	Name  string
	Kind  ast.Operation
	Query string
}

// ParseOperation parses query and extracts its operation name and kind.
func ParseOperation(query string) (*Operation, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil {
		return nil, fmt.Errorf("invalid GraphQL document: %w", err)
	}
	if len(doc.Operations) != 1 {
		return nil, fmt.Errorf("GraphQL document must hold one operation, found %d", len(doc.Operations))
	}
	op := doc.Operations[0]
	if op.Name == "" {
		return nil, errors.New("GraphQL operation must be named")
	}
	return &Operation{Name: op.Name, Kind: op.Operation, Query: query}, nil
}

// MustParseOperation is ParseOperation for package-level documents.
func MustParseOperation(query string) *Operation {
	op, err := ParseOperation(query)
	if err != nil {
		panic(err)
	}
	return op
}

type graphQLRequest struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName"`
	Variables     map[string]any `json:"variables,omitempty"`
}

type graphQLResponse struct {
	Data   json.RawMessage `json:"data"`
	Errors gqlerror.List   `json:"errors"`
}

// GraphQL posts op to the client's base URL and decodes the data member
// into out. A response with errors is a *ServiceError even when data is
// partially present. Queries are retried per WithRetry, mutations never.
func (c *Client) GraphQL(ctx context.Context, op *Operation, vars map[string]any, out any) error {
	var resp graphQLResponse
	req := graphQLRequest{
		Query:         op.Query,
		OperationName: op.Name,
		Variables:     vars,
	}
	send := func() error {
		resp = graphQLResponse{}
		return c.do(ctx, op.Name, http.MethodPost, "", req, &resp)
	}

	var err error
	if op.Kind == ast.Query {
		err = c.withRetry(ctx, op.Name, send)
	} else {
		err = send()
	}
	if err != nil {
		return fmt.Errorf("%s: %w", op.Name, err)
	}

	if len(resp.Errors) > 0 {
		return fmt.Errorf("%s: %w", op.Name, &ServiceError{
			StatusCode: http.StatusOK,
			Message:    resp.Errors.Error(),
			Errors:     resp.Errors,
		})
	}

	if out == nil || len(resp.Data) == 0 || string(resp.Data) == "null" {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("%s: failed to parse data: %w", op.Name, err)
	}
	return nil
}
