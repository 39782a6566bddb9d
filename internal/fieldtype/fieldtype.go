// Package fieldtype holds the per-field-type match delegates. A delegate turns
// one (operator, value) pair against a field's storage table into query
// fragments; the finder decides how those fragments are joined and combined.
package fieldtype

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/selector"
)

// Request is one value of one clause, scoped to a field table alias.
type Request struct {
	Table    string // storage table, e.g. field_title
	Alias    string // alias the table is joined under
	Subfield string // column or virtual subfield, "data" by default
	Op       selector.Operator
	Value    string
	Group    string // @group annotation of the clause
	Seq      int    // unique per request within a find; used for score aliases

	// Languages lists non-default language ids whose columns are searched
	// alongside data by multi-language delegates.
	Languages []int
}

// Column returns the qualified column the request targets.
func (r Request) Column() string {
	sub := r.Subfield
	if sub == "" {
		sub = "data"
	}
	return query.Col(r.Alias, sub)
}

// Delegate matches values of one field type.
type Delegate interface {
	Name() string
	Match(req Request) (*query.Fragment, error)
	// BlankValue returns the stored representation of an empty value, or
	// false when the type has none and only a missing row counts as blank.
	BlankValue() (any, bool)
}

// PageReference is implemented by delegates whose data column holds page ids.
type PageReference interface {
	Delegate
	ReferencesPages()
}

// Multilingual is implemented by delegates that keep one column per language.
type Multilingual interface {
	Delegate
	LanguageColumn(langID int) string
}

// UnsupportedError is returned when a delegate cannot apply an operator.
type UnsupportedError struct {
	Type string
	Op   selector.Operator
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("operator %q is not supported by field type %s", e.Op, e.Type)
}

var registry = map[string]Delegate{}

// Register makes d available under d.Name().
func Register(d Delegate) {
	registry[d.Name()] = d
}

// Lookup returns the delegate registered for a type name.
func Lookup(name string) (Delegate, bool) {
	d, ok := registry[strings.ToLower(name)]
	return d, ok
}

// Names lists registered type names.
func Names() []string {
	out := make([]string, 0, len(registry))
	for n := range registry {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func init() {
	Register(Text{})
	Register(Textarea{})
	Register(Integer{})
	Register(Float{})
	Register(Checkbox{})
	Register(Datetime{})
	Register(Page{})
	Register(TextLanguage{})
}

// Compare renders a plain SQL comparison of col against v. It reports false
// for operators that are not plain comparisons.
func Compare(col string, op selector.Operator, v any) (sq.Sqlizer, bool) {
	switch op {
	case selector.OpEqual:
		return sq.Eq{col: v}, true
	case selector.OpNotEqual:
		return sq.NotEq{col: v}, true
	case selector.OpLess:
		return sq.Lt{col: v}, true
	case selector.OpLessEqual:
		return sq.LtOrEq{col: v}, true
	case selector.OpGreater:
		return sq.Gt{col: v}, true
	case selector.OpGreaterEqual:
		return sq.GtOrEq{col: v}, true
	case selector.OpBitwiseAnd:
		return sq.Expr("("+col+" & ?) <> 0", v), true
	}
	return nil, false
}

// Like renders a case-insensitive partial match.
func Like(col string, op selector.Operator, value string) sq.Sqlizer {
	return sq.Expr(col+" ILIKE ?", op.LikePattern(query.EscapeLike(value)))
}

// Words renders one whole-word regex match per whitespace-separated word.
func Words(col, value string) sq.Sqlizer {
	var and sq.And
	for _, w := range strings.Fields(value) {
		and = append(and, sq.Expr(col+` ~* ?`, `\m`+regexp.QuoteMeta(w)+`\M`))
	}
	if len(and) == 0 {
		return query.True
	}
	return and
}

func where(conds ...sq.Sqlizer) *query.Fragment {
	return &query.Fragment{Where: conds}
}
