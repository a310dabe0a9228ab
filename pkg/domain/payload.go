package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Fields is a column (or payload key) to value mapping.
type Fields map[string]any

// Clone returns a deep copy of f. A nil map stays nil.
func (f Fields) Clone() Fields {
	if f == nil {
		return nil
	}
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = cloneValue(v)
	}
	return out
}

// String renders the value stored under key as a string, "" when absent.
func (f Fields) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprint(t)
	}
}

// Equal reports whether both maps hold the same keys with equal renderings.
func (f Fields) Equal(other Fields) bool {
	if len(f) != len(other) {
		return false
	}
	for k := range f {
		if _, ok := other[k]; !ok {
			return false
		}
		if f.String(k) != other.String(k) {
			return false
		}
	}
	return true
}

// UnmarshalJSON keeps numbers as json.Number so rows reloaded from a durable
// store compare equal to the values that were written.
func (f *Fields) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var m map[string]any
	if err := dec.Decode(&m); err != nil {
		return err
	}
	if m == nil {
		*f = nil
		return nil
	}
	*f = Fields(m)
	return nil
}

// Keys returns the sorted key set.
func (f Fields) Keys() []string {
	keys := make([]string, 0, len(f))
	for k := range f {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Payload is the structured business document of a transaction. Each section
// holds either one object or an ordered list of objects.
type Payload map[string]any

// ParsePayload decodes a JSON document into a Payload. Numbers are kept as
// json.Number so identifiers never lose precision.
func ParsePayload(raw []byte) (Payload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc map[string]any
	if err := dec.Decode(&doc); err != nil {
		return nil, ParameterError{Reason: fmt.Sprintf("malformed payload: %v", err)}
	}
	if doc == nil {
		return nil, ParameterError{Reason: "payload must be an object"}
	}
	return NormalizePayload(doc)
}

// NormalizePayload checks that every section is an object or a list of
// objects and converts nested maps into Fields.
func NormalizePayload(doc map[string]any) (Payload, error) {
	out := make(Payload, len(doc))
	for section, v := range doc {
		switch t := v.(type) {
		case map[string]any:
			out[section] = Fields(t).Clone()
		case Fields:
			out[section] = t.Clone()
		case []any:
			rows := make([]Fields, 0, len(t))
			for i, item := range t {
				obj, ok := asFields(item)
				if !ok {
					return nil, ParameterError{Section: section, Reason: fmt.Sprintf("row %d is not an object", i)}
				}
				rows = append(rows, obj.Clone())
			}
			out[section] = rows
		case []Fields:
			rows := make([]Fields, 0, len(t))
			for _, row := range t {
				rows = append(rows, row.Clone())
			}
			out[section] = rows
		default:
			return nil, ParameterError{Section: section, Reason: "section must be an object or a list of objects"}
		}
	}
	return out, nil
}

// Has reports whether the section is present.
func (p Payload) Has(section string) bool {
	_, ok := p[section]
	return ok
}

// Object returns a single-object section. Multi-row sections are rejected.
func (p Payload) Object(section string) (Fields, bool, error) {
	v, ok := p[section]
	if !ok || v == nil {
		return nil, false, nil
	}
	obj, isObj := asFields(v)
	if !isObj {
		return nil, true, ParameterError{Section: section, Reason: "expected an object"}
	}
	return obj, true, nil
}

// Objects returns the rows of a section. A single object is returned as one row.
func (p Payload) Objects(section string) ([]Fields, error) {
	v, ok := p[section]
	if !ok || v == nil {
		return nil, nil
	}
	if obj, isObj := asFields(v); isObj {
		return []Fields{obj}, nil
	}
	switch t := v.(type) {
	case []Fields:
		return t, nil
	case []any:
		rows := make([]Fields, 0, len(t))
		for i, item := range t {
			obj, ok := asFields(item)
			if !ok {
				return nil, ParameterError{Section: section, Reason: fmt.Sprintf("row %d is not an object", i)}
			}
			rows = append(rows, obj)
		}
		return rows, nil
	default:
		return nil, ParameterError{Section: section, Reason: "expected an object or a list of objects"}
	}
}

// SetObjects replaces the rows of a section, keeping the single-object shape
// when the section originally held one object.
func (p Payload) SetObjects(section string, rows []Fields) {
	if _, single := asFields(p[section]); single && len(rows) == 1 {
		p[section] = rows[0]
		return
	}
	p[section] = rows
}

// Clone returns a deep copy of the payload.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

// UnmarshalJSON decodes and normalizes sections so restored transactions
// expose the same shapes as freshly parsed ones.
func (p *Payload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	parsed, err := ParsePayload(data)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

func asFields(v any) (Fields, bool) {
	switch t := v.(type) {
	case Fields:
		return t, true
	case map[string]any:
		return Fields(t), true
	default:
		return nil, false
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Fields:
		return t.Clone()
	case map[string]any:
		return map[string]any(Fields(t).Clone())
	case []Fields:
		out := make([]Fields, len(t))
		for i, row := range t {
			out[i] = row.Clone()
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return v
	}
}
