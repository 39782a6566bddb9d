package selector

import (
	"strings"
)

// Clause is one field/operator/value unit of a selector.
//
// Several field names mean "any of these fields matches"; several values mean
// "any of these values matches" (or "none of them" for !=).
type Clause struct {
	Fields []string
	Op     Operator
	Values []string
	Not    bool
	Group  string // @group annotation, forwarded to field-type delegates
	Quote  rune   // '"', '\'', '[' or 0
}

// Field returns the first field name.
func (c *Clause) Field() string {
	if len(c.Fields) == 0 {
		return ""
	}
	return c.Fields[0]
}

// Value returns the first value.
func (c *Clause) Value() string {
	if len(c.Values) == 0 {
		return ""
	}
	return c.Values[0]
}

// HasField reports whether name is one of the clause's fields.
func (c *Clause) HasField(name string) bool {
	for _, f := range c.Fields {
		if f == name {
			return true
		}
	}
	return false
}

// String renders the clause in canonical selector form. Two clauses with the
// same String are structurally identical.
func (c Clause) String() string {
	var b strings.Builder
	if c.Not {
		b.WriteByte('!')
	}
	if c.Group != "" {
		b.WriteByte('@')
	}
	b.WriteString(strings.Join(c.Fields, "|"))
	b.WriteString(string(c.Op))
	for i, v := range c.Values {
		if i > 0 {
			b.WriteByte('|')
		}
		b.WriteString(quoteValue(v, c.Quote))
	}
	return b.String()
}

func quoteValue(v string, quote rune) string {
	if quote == '[' {
		return "[" + v + "]"
	}
	if quote != 0 || strings.ContainsAny(v, `,|"'[]`) {
		return `"` + strings.ReplaceAll(v, `"`, `\"`) + `"`
	}
	return v
}

// SplitField splits "field.subfield" into its parts.
func SplitField(name string) (field, subfield string) {
	field, subfield, _ = strings.Cut(name, ".")
	return field, subfield
}

// Selectors is an ordered clause sequence.
type Selectors []Clause

// String renders the sequence as a selector string.
func (s Selectors) String() string {
	parts := make([]string, len(s))
	for i, c := range s {
		parts[i] = c.String()
	}
	return strings.Join(parts, ", ")
}

// Has reports whether any single-field clause targets field.
func (s Selectors) Has(field string) bool {
	for i := range s {
		if len(s[i].Fields) == 1 && s[i].Fields[0] == field {
			return true
		}
	}
	return false
}

// Clone copies the sequence so that clauses can be rewritten without
// touching the caller's values.
func (s Selectors) Clone() Selectors {
	out := make(Selectors, len(s))
	for i, c := range s {
		c.Fields = append([]string(nil), c.Fields...)
		c.Values = append([]string(nil), c.Values...)
		out[i] = c
	}
	return out
}
