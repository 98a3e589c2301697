package protocol

import (
	"bytes"
	"encoding/json"
)

// HasErrors returns true if a next payload carries GraphQL execution errors
func HasErrors(payload json.RawMessage) bool {
	if len(payload) == 0 {
		return false
	}
	var p struct {
		Errors json.RawMessage `json:"errors"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}
	return truthy(p.Errors)
}

// IsInitEcho reports whether a next payload looks like the echo a server
// sends right after a subscription starts, shaped {data: {field: null}}.
//
// This is a heuristic. The first field of data being null marks the echo,
// so a genuine update whose first field is legitimately null is dropped
// the same way. The two cases cannot be told apart from the payload alone.
func IsInitEcho(payload json.RawMessage) bool {
	if len(payload) == 0 {
		return false
	}
	var p struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		return false
	}
	_, value, ok := firstField(p.Data)
	if !ok {
		return false
	}
	return isNull(value)
}

// firstField returns the first key of a JSON object in document order
func firstField(data json.RawMessage) (string, json.RawMessage, bool) {
	if len(data) == 0 || isNull(data) {
		return "", nil, false
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return "", nil, false
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return "", nil, false
	}
	if !dec.More() {
		return "", nil, false
	}
	keyTok, err := dec.Token()
	if err != nil {
		return "", nil, false
	}
	key, ok := keyTok.(string)
	if !ok {
		return "", nil, false
	}
	var value json.RawMessage
	if err := dec.Decode(&value); err != nil {
		return "", nil, false
	}
	return key, value, true
}

func isNull(data json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(data), []byte("null"))
}

// truthy mirrors the loose "has something" check applied to errors fields
func truthy(data json.RawMessage) bool {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return false
	}
	switch string(data) {
	case "null", "false", "0", `""`, "[]", "{}":
		return false
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}
	switch t := v.(type) {
	case []any:
		return len(t) > 0
	case map[string]any:
		return len(t) > 0
	}
	return true
}
