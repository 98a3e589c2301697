// Package flatten peels single-entry wrapper levels off GraphQL responses,
// turning {"data":{"author":{...}}} into the author object itself.
package flatten

import (
	"bytes"
	"encoding/json"
	"sync/atomic"
	"time"

	"gqlclient/internal/cache"
)

var null = json.RawMessage("null")

// Value flattens a decoded JSON value.
// A map with exactly one entry is replaced by its flattened value. With
// singleChild, a slice of zero elements becomes nil and a slice of one
// element is replaced by its flattened element. Anything else is returned
// unchanged.
func Value(v any, singleChild bool) any {
	switch t := v.(type) {
	case map[string]any:
		if len(t) != 1 {
			return t
		}
		for _, child := range t {
			return Value(child, singleChild)
		}
	case []any:
		if !singleChild {
			return t
		}
		switch len(t) {
		case 0:
			return nil
		case 1:
			return Value(t[0], singleChild)
		}
	}
	return v
}

// Raw flattens an encoded JSON document. Values left untouched keep their
// original encoding, including key order. Input that is not valid JSON is
// returned as-is.
func Raw(data json.RawMessage, singleChild bool) json.RawMessage {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return data
	}

	switch trimmed[0] {
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(trimmed, &obj); err != nil || len(obj) != 1 {
			return data
		}
		for _, child := range obj {
			return Raw(child, singleChild)
		}
	case '[':
		if !singleChild {
			return data
		}
		var list []json.RawMessage
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return data
		}
		switch len(list) {
		case 0:
			return null
		case 1:
			return Raw(list[0], singleChild)
		}
	}
	return data
}

// Memo memoizes Raw by document content
type Memo struct {
	cache  cache.Cache
	closed atomic.Bool
}

// NewMemo creates a memo holding up to size results for ttl.
// A size of zero disables memoization.
func NewMemo(size int, ttl time.Duration) (*Memo, error) {
	c, err := cache.New(size, ttl)
	if err != nil {
		return nil, err
	}
	return &Memo{cache: c}, nil
}

// Raw returns the flattened document, from the cache when possible.
// The cache holds its own copy and every hit returns a fresh slice, so
// callers may modify the result.
func (m *Memo) Raw(data json.RawMessage, singleChild bool) json.RawMessage {
	if m == nil || m.closed.Load() {
		return Raw(data, singleChild)
	}

	key := cache.GenerateKey(namespace(singleChild), data)
	if cached, ok := m.cache.Get(key); ok {
		return bytes.Clone(cached)
	}

	result := Raw(data, singleChild)
	m.cache.Set(key, bytes.Clone(result))
	return result
}

// Len returns the number of memoized results
func (m *Memo) Len() int {
	if m == nil || m.closed.Load() {
		return 0
	}
	return m.cache.Len()
}

// Close releases the underlying cache. Raw keeps working afterwards
// without memoizing.
func (m *Memo) Close() {
	if m != nil && m.closed.CompareAndSwap(false, true) {
		m.cache.Close()
	}
}

func namespace(singleChild bool) string {
	if singleChild {
		return "single"
	}
	return "flat"
}
