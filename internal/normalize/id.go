package normalize

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ID is a backend identifier that may arrive as a number or a string.
// Numeric-looking strings are coerced to numbers, so 7 and "7" are the same ID.
type ID struct {
	num   int64
	str   string
	isNum bool
	set   bool
}

// NumericID builds a numeric identifier.
func NumericID(n int64) ID {
	return ID{num: n, isNum: true, set: true}
}

// StringID builds an identifier from a string, coercing numeric-looking input.
func StringID(s string) ID {
	id, _ := ParseID(s)
	return id
}

// ParseID converts a decoded JSON value into an ID. It reports false for nil,
// empty strings, booleans and composite values.
func ParseID(v any) (ID, bool) {
	switch t := v.(type) {
	case nil:
		return ID{}, false
	case ID:
		return t, t.set
	case string:
		return parseIDString(t)
	case json.Number:
		return parseIDString(t.String())
	case float64:
		return fromFloat(t)
	case float32:
		return fromFloat(float64(t))
	case int:
		return NumericID(int64(t)), true
	case int32:
		return NumericID(int64(t)), true
	case int64:
		return NumericID(t), true
	case uint:
		return NumericID(int64(t)), true
	case uint32:
		return NumericID(int64(t)), true
	case uint64:
		if t > math.MaxInt64 {
			return ID{str: strconv.FormatUint(t, 10), set: true}, true
		}
		return NumericID(int64(t)), true
	}
	return ID{}, false
}

func parseIDString(s string) (ID, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ID{}, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return NumericID(n), true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsInf(f, 0) && !math.IsNaN(f) {
		if id, ok := fromFloat(f); ok && id.isNum {
			return id, true
		}
	}
	return ID{str: s, set: true}, true
}

func fromFloat(f float64) (ID, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return ID{}, false
	}
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return NumericID(int64(f)), true
	}
	return ID{str: strconv.FormatFloat(f, 'f', -1, 64), set: true}, true
}

// IsZero reports whether the identifier was never resolved.
func (id ID) IsZero() bool { return !id.set }

// IsNumeric reports whether the identifier holds a number.
func (id ID) IsNumeric() bool { return id.isNum }

// Int returns the numeric value and whether the identifier is numeric.
func (id ID) Int() (int64, bool) { return id.num, id.isNum }

// Key is the value-based comparison key used wherever IDs index a map.
func (id ID) Key() string {
	if !id.set {
		return ""
	}
	if id.isNum {
		return strconv.FormatInt(id.num, 10)
	}
	return id.str
}

func (id ID) String() string { return id.Key() }

// Equal compares two identifiers by value.
func (id ID) Equal(other ID) bool {
	return id.set == other.set && id.Key() == other.Key()
}

// Value returns the identifier as a plain Go value: int64, string or nil.
func (id ID) Value() any {
	if !id.set {
		return nil
	}
	if id.isNum {
		return id.num
	}
	return id.str
}

func (id ID) MarshalJSON() ([]byte, error) {
	if !id.set {
		return []byte("null"), nil
	}
	if id.isNum {
		return []byte(strconv.FormatInt(id.num, 10)), nil
	}
	return json.Marshal(id.str)
}

func (id *ID) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	parsed, _ := ParseID(v)
	*id = parsed
	return nil
}
