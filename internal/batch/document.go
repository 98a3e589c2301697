package batch

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

var (
	// ErrInvalidDocument is returned for documents that do not parse
	ErrInvalidDocument = errors.New("invalid document")
	// ErrWrongOperation is returned when a document is not the expected operation
	ErrWrongOperation = errors.New("unexpected operation type")
)

// Parse parses a document holding exactly one operation of the given type
func Parse(doc string, op ast.Operation) (*ast.OperationDefinition, error) {
	parsed, err := parser.ParseQuery(&ast.Source{Name: "document", Input: doc})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if len(parsed.Operations) != 1 {
		return nil, fmt.Errorf("%w: expected one operation, got %d", ErrInvalidDocument, len(parsed.Operations))
	}
	def := parsed.Operations[0]
	if def.Operation != op {
		return nil, fmt.Errorf("%w: expected %s, got %s", ErrWrongOperation, op, def.Operation)
	}
	return def, nil
}

// ValidateQuery checks that doc is a well-formed query document
func ValidateQuery(doc string) error {
	_, err := Parse(doc, ast.Query)
	return err
}

// ValidateMutation checks that doc is a well-formed mutation document
func ValidateMutation(doc string) error {
	_, err := Parse(doc, ast.Mutation)
	return err
}

// ValidateSubscription checks that doc is a well-formed subscription document
func ValidateSubscription(doc string) error {
	_, err := Parse(doc, ast.Subscription)
	return err
}

// Validate checks that doc parses as any single operation and returns its type
func Validate(doc string) (ast.Operation, error) {
	parsed, err := parser.ParseQuery(&ast.Source{Name: "document", Input: doc})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	if len(parsed.Operations) != 1 {
		return "", fmt.Errorf("%w: expected one operation, got %d", ErrInvalidDocument, len(parsed.Operations))
	}
	return parsed.Operations[0].Operation, nil
}

// FormatValue renders v as a GraphQL literal.
// Strings are quoted, booleans are true|false and nil is null. Lists and
// maps become list and object literals with keys in sorted order. Other
// types (typed slices and maps, structs) are rendered from their JSON form.
func FormatValue(v any) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case string:
		quoted, _ := json.Marshal(t)
		return string(quoted)
	case bool:
		if t {
			return "true"
		}
		return "false"
	case json.Number:
		return t.String()
	case []any:
		items := make([]string, len(t))
		for i, item := range t {
			items[i] = FormatValue(item)
		}
		return "[" + strings.Join(items, ", ") + "]"
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]string, len(keys))
		for i, k := range keys {
			fields[i] = k + ": " + FormatValue(t[k])
		}
		return "{" + strings.Join(fields, ", ") + "}"
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return fmt.Sprint(t)
	}
	return FormatValue(plain(v))
}

// plain converts v to the generic values produced by decoding its JSON
// encoding. Values that cannot be encoded become their quoted text form.
func plain(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return fmt.Sprint(v)
	}
	return out
}

// Substitute replaces $name placeholders with literal values.
// Longer names go first so $id does not clobber $idx.
func Substitute(doc string, variables map[string]any) string {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if len(names[i]) != len(names[j]) {
			return len(names[i]) > len(names[j])
		}
		return names[i] < names[j]
	})

	for _, name := range names {
		doc = strings.ReplaceAll(doc, "$"+name, FormatValue(variables[name]))
	}
	return doc
}
