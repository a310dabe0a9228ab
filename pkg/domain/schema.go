package domain

import (
	"strings"
	"unicode"
)

// FieldMapping projects one payload key onto one live column.
type FieldMapping struct {
	Payload string
	Column  string
}

// SectionSchema describes how one payload section maps onto a live entity.
// It carries no behaviour beyond the projection.
type SectionSchema struct {
	Section  string
	Entity   EntityType
	IDField  string
	Multi    bool
	Required []string
	// Fields lists explicit projections. When empty every payload key is
	// projected onto its snake_case column name.
	Fields []FieldMapping
	// Output names the output parameter that receives the entity id of a
	// single-object section. Empty disables enrichment.
	Output string
	// IDPrefix is prepended to generated identifiers.
	IDPrefix string
}

// ID returns the identity value carried by obj.
func (s SectionSchema) ID(obj Fields) string {
	return obj.String(s.IDField)
}

// Validate checks that required keys are present and non-empty.
func (s SectionSchema) Validate(obj Fields) error {
	for _, key := range s.Required {
		if obj.String(key) == "" {
			return ParameterError{Section: s.Section, Field: key, Reason: "required field missing"}
		}
	}
	return nil
}

// Project maps payload keys onto live column names.
func (s SectionSchema) Project(obj Fields) Fields {
	out := make(Fields, len(obj))
	if len(s.Fields) == 0 {
		for k, v := range obj {
			out[ColumnName(k)] = cloneValue(v)
		}
		return out
	}
	for _, m := range s.Fields {
		v, ok := obj[m.Payload]
		if !ok {
			continue
		}
		col := m.Column
		if col == "" {
			col = ColumnName(m.Payload)
		}
		out[col] = cloneValue(v)
	}
	return out
}

// IDColumn returns the live column holding the entity identity.
func (s SectionSchema) IDColumn() string {
	for _, m := range s.Fields {
		if m.Payload == s.IDField && m.Column != "" {
			return m.Column
		}
	}
	return ColumnName(s.IDField)
}

// ColumnName converts a camelCase payload key into a snake_case column name.
func ColumnName(key string) string {
	var b strings.Builder
	for i, r := range key {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(unicode.ToLower(r))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
