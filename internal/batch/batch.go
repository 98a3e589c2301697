package batch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"gqlclient/internal/httpexec"
)

// ServerKey is the error map key holding request level errors
const ServerKey = "server"

// ErrEmptyBatch is returned when executing a batch with nothing appended
var ErrEmptyBatch = errors.New("batch is empty")

// Executor runs a document over the request/response path
type Executor interface {
	Execute(ctx context.Context, query string, variables map[string]any) (*httpexec.Response, error)
}

// Batch merges several single-operation documents into one request.
// Every top-level field is aliased <label>_<n> so results can be told apart.
type Batch struct {
	exec   Executor
	op     ast.Operation
	name   string
	label  string
	count  int
	fields ast.SelectionSet
}

// NewMutationBatch creates a batch of mutations. An empty label means "mutation".
func NewMutationBatch(exec Executor, label string) *Batch {
	if label == "" {
		label = "mutation"
	}
	return &Batch{exec: exec, op: ast.Mutation, name: "BatchMutation", label: label}
}

// NewQueryBatch creates a batch of queries. An empty label means "query".
func NewQueryBatch(exec Executor, label string) *Batch {
	if label == "" {
		label = "query"
	}
	return &Batch{exec: exec, op: ast.Query, name: "BatchQuery", label: label}
}

// Append adds a document to the batch.
// Its variable definitions are dropped and $name references are replaced
// with the literal values from variables.
func (b *Batch) Append(doc string, variables map[string]any) error {
	def, err := Parse(doc, b.op)
	if err != nil {
		return err
	}

	body := format(&ast.OperationDefinition{Operation: b.op, SelectionSet: def.SelectionSet})
	def, err = Parse(Substitute(body, variables), b.op)
	if err != nil {
		return err
	}

	fields := make(ast.SelectionSet, 0, len(def.SelectionSet))
	for _, sel := range def.SelectionSet {
		field, ok := sel.(*ast.Field)
		if !ok {
			return fmt.Errorf("%w: top-level selections must be fields", ErrInvalidDocument)
		}
		fields = append(fields, field)
	}

	for _, sel := range fields {
		b.count++
		sel.(*ast.Field).Alias = b.Label(b.count)
		b.fields = append(b.fields, sel)
	}
	return nil
}

// Label returns the alias given to the n-th appended field
func (b *Batch) Label(n int) string {
	return fmt.Sprintf("%s_%d", b.label, n)
}

// Len returns the number of aliased fields in the batch
func (b *Batch) Len() int {
	return len(b.fields)
}

// Document returns the merged document
func (b *Batch) Document() string {
	return format(&ast.OperationDefinition{Operation: b.op, Name: b.name, SelectionSet: b.fields})
}

// Execute sends the merged document.
// The error map holds request errors under ServerKey and the messages
// list of each aliased result under its label. Mutation data is dropped
// when the request failed.
func (b *Batch) Execute(ctx context.Context) (map[string]json.RawMessage, map[string]gqlerror.List) {
	errs := make(map[string]gqlerror.List)
	if len(b.fields) == 0 {
		errs[ServerKey] = gqlerror.List{{Err: ErrEmptyBatch, Message: ErrEmptyBatch.Error()}}
		return nil, errs
	}

	resp, err := b.exec.Execute(ctx, b.Document(), nil)
	if err != nil {
		errs[ServerKey] = gqlerror.List{{Err: err, Message: err.Error()}}
		return nil, errs
	}
	if len(resp.Errors) > 0 {
		errs[ServerKey] = resp.Errors
		if b.op == ast.Mutation {
			return nil, errs
		}
	}

	var data map[string]json.RawMessage
	if err := json.Unmarshal(resp.Data, &data); err != nil || data == nil {
		return nil, errs
	}
	for label, result := range data {
		if messages := httpexec.Messages(result); len(messages) > 0 {
			errs[label] = messages
		}
	}
	return data, errs
}

func format(def *ast.OperationDefinition) string {
	var buf bytes.Buffer
	formatter.NewFormatter(&buf, formatter.WithIndent("  ")).FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{def},
	})
	return buf.String()
}
