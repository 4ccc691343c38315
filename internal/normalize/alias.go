// Package normalize turns loosely shaped backend records into canonical ones.
//
// The school backend is not consistent about key casing: the same field may
// arrive as StudentID, studentID, studentId or student_id, and personal details
// are sometimes nested under UserDetails or User. Each record kind has an alias
// table mapping a canonical field to the ordered list of source paths that may
// carry it; a single resolver walks that list and takes the first non-empty
// value.
package normalize

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Alias maps one canonical field to the ordered source paths that may hold it.
// A path is a dot-separated key path, e.g. "UserDetails.FirstName".
type Alias struct {
	Field string
	Paths []string
}

// Table is the alias table for one record kind.
type Table struct {
	Name    string
	Aliases []Alias
}

// Paths returns the ordered source paths for field.
func (t Table) Paths(field string) []string {
	for _, a := range t.Aliases {
		if a.Field == field {
			return a.Paths
		}
	}
	return nil
}

// Lookup resolves field against raw and returns the first non-empty candidate.
func (t Table) Lookup(raw map[string]any, field string) (any, bool) {
	return Resolve(raw, t.Paths(field))
}

// String resolves field as text, or "" when nothing matched.
func (t Table) String(raw map[string]any, field string) string {
	v, ok := t.Lookup(raw, field)
	if !ok {
		return ""
	}
	return strings.TrimSpace(textOf(v))
}

// ID resolves field as an identifier.
func (t Table) ID(raw map[string]any, field string) (ID, bool) {
	for _, p := range t.Paths(field) {
		v, ok := lookupPath(raw, p)
		if !ok || isEmpty(v) {
			continue
		}
		if id, ok := ParseID(v); ok {
			return id, true
		}
	}
	return ID{}, false
}

// Bool resolves field as a flag, falling back to def when absent or unreadable.
func (t Table) Bool(raw map[string]any, field string, def bool) bool {
	v, ok := t.Lookup(raw, field)
	if !ok {
		return def
	}
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(strings.TrimSpace(b)); err == nil {
			return parsed
		}
	case json.Number:
		return b.String() != "0"
	case float64:
		return b != 0
	case int:
		return b != 0
	case int64:
		return b != 0
	}
	return def
}

func (t Table) clone() Table {
	out := Table{Name: t.Name, Aliases: make([]Alias, len(t.Aliases))}
	for i, a := range t.Aliases {
		out.Aliases[i] = Alias{Field: a.Field, Paths: append([]string(nil), a.Paths...)}
	}
	return out
}

// extend appends extra paths to field, adding the field if the table lacks it.
func (t *Table) extend(field string, paths []string) {
	for i := range t.Aliases {
		if t.Aliases[i].Field == field {
			t.Aliases[i].Paths = appendUnique(t.Aliases[i].Paths, paths...)
			return
		}
	}
	t.Aliases = append(t.Aliases, Alias{Field: field, Paths: appendUnique(nil, paths...)})
}

func appendUnique(dst []string, src ...string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	return dst
}

// Resolve walks paths in order and returns the first value that is neither
// nil nor an empty string.
func Resolve(raw map[string]any, paths []string) (any, bool) {
	if raw == nil {
		return nil, false
	}
	for _, p := range paths {
		v, ok := lookupPath(raw, p)
		if ok && !isEmpty(v) {
			return v, true
		}
	}
	return nil, false
}

func lookupPath(raw map[string]any, path string) (any, bool) {
	cur := any(raw)
	for _, key := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[key]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(t) == ""
	}
	return false
}

func textOf(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case int:
		return strconv.Itoa(t)
	case bool:
		return strconv.FormatBool(t)
	case ID:
		return t.Key()
	case map[string]any, []any:
		return ""
	}
	return fmt.Sprint(v)
}

// asMap returns v as an object when it is one.
func asMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok && m != nil
}
