package client

import (
	"context"
	"encoding/json"

	"github.com/vektah/gqlparser/v2/gqlerror"

	"gqlclient/internal/batch"
	"gqlclient/internal/httpexec"
)

// Query runs a query against the current environment's url
func (c *Client) Query(ctx context.Context, query string, variables map[string]any, opts ...httpexec.Option) (json.RawMessage, gqlerror.List) {
	return c.exec.Query(ctx, query, variables, opts...)
}

// QueryOne runs a query whose result collapses to a single item
func (c *Client) QueryOne(ctx context.Context, query string, variables map[string]any) (json.RawMessage, gqlerror.List) {
	return c.exec.QueryOne(ctx, query, variables)
}

// Mutate runs a mutation against the current environment's url
func (c *Client) Mutate(ctx context.Context, mutation string, variables map[string]any, opts ...httpexec.Option) (json.RawMessage, gqlerror.List) {
	return c.exec.Mutate(ctx, mutation, variables, opts...)
}

// Execute posts a document and returns the raw response
func (c *Client) Execute(ctx context.Context, query string, variables map[string]any) (*httpexec.Response, error) {
	return c.exec.Execute(ctx, query, variables)
}

// MutationBatch starts a batch of mutations sent through this client
func (c *Client) MutationBatch(label string) *batch.Batch {
	return batch.NewMutationBatch(c.exec, label)
}

// QueryBatch starts a batch of queries sent through this client
func (c *Client) QueryBatch(label string) *batch.Batch {
	return batch.NewQueryBatch(c.exec, label)
}
