package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnexpectedPayload is returned when a list endpoint answers with something
// that is neither an array nor a known wrapper object.
var ErrUnexpectedPayload = errors.New("unexpected payload shape")

var listWrappers = []string{"data", "Data", "items", "Items", "$values", "result", "Result", "results", "Results"}

func decodeAny(data []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return v, nil
}

// DecodeObject decodes a single JSON object, unwrapping a {"data": {...}}
// envelope when present. Numbers are kept as json.Number.
func DecodeObject(data []byte) (map[string]any, error) {
	v, err := decodeAny(data)
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	m, ok := asMap(v)
	if !ok {
		return nil, fmt.Errorf("%w: want object", ErrUnexpectedPayload)
	}
	if len(m) == 1 {
		for _, k := range []string{"data", "Data", "result", "Result"} {
			if inner, ok := asMap(m[k]); ok {
				return inner, nil
			}
		}
	}
	return m, nil
}

// UnwrapList decodes a list payload that may be a bare array or an object
// holding the array under a wrapper key such as "data" or "$values".
// Non-object items are dropped. A JSON null is an empty list.
func UnwrapList(data []byte) ([]map[string]any, error) {
	v, err := decodeAny(data)
	if err != nil {
		return nil, err
	}
	items, ok := findList(v, 0)
	if !ok {
		return nil, ErrUnexpectedPayload
	}
	out := make([]map[string]any, 0, len(items))
	for _, it := range items {
		if m, ok := asMap(it); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

func findList(v any, depth int) ([]any, bool) {
	switch t := v.(type) {
	case nil:
		return nil, true
	case []any:
		return t, true
	case map[string]any:
		if depth > 2 {
			return nil, false
		}
		for _, k := range listWrappers {
			inner, ok := t[k]
			if !ok {
				continue
			}
			if items, ok := findList(inner, depth+1); ok {
				return items, true
			}
		}
	}
	return nil, false
}
