package fieldtype

import (
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/selector"
)

// Page references other pages; each row's data column is a page id.
//
// Subfields: count matches the number of references, and any native page
// column (name, templates_id, status, ...) matches against the referenced page.
type Page struct{}

func (Page) Name() string { return "page" }

func (Page) ReferencesPages() {}

func (Page) BlankValue() (any, bool) { return nil, false }

var pageSubfields = map[string]bool{
	"id": true, "name": true, "templates_id": true, "parent_id": true,
	"status": true, "created": true, "modified": true, "published": true, "sort": true,
}

func (t Page) Match(req Request) (*query.Fragment, error) {
	switch sub := req.Subfield; {
	case sub == "count":
		n, err := strconv.Atoi(strings.TrimSpace(req.Value))
		if err != nil {
			return nil, fmt.Errorf("%s: invalid count %q", t.Name(), req.Value)
		}
		counted := fmt.Sprintf("(SELECT COUNT(*) FROM %s WHERE pages_id = %s.id)", query.QI(req.Table), query.BaseTable)
		cond, ok := Compare(counted, req.Op, n)
		if !ok || req.Op == selector.OpBitwiseAnd {
			return nil, &UnsupportedError{Type: t.Name(), Op: req.Op}
		}
		return where(cond), nil

	case sub == "" || sub == "data":
		if id, err := strconv.ParseInt(req.Value, 10, 64); err == nil {
			cond, ok := Compare(req.Column(), req.Op, id)
			if !ok {
				return nil, &UnsupportedError{Type: t.Name(), Op: req.Op}
			}
			return where(cond), nil
		}
		// a non-numeric value names the referenced page
		return t.matchReferenced(req, "name")

	case pageSubfields[sub]:
		return t.matchReferenced(req, sub)
	}
	return nil, fmt.Errorf("%s: unknown subfield %q", t.Name(), req.Subfield)
}

// matchReferenced matches a column of the referenced page through a subquery.
func (t Page) matchReferenced(req Request, column string) (*query.Fragment, error) {
	col := "ref." + column
	var (
		cond sq.Sqlizer
		err  error
	)
	if column == "name" {
		cond, err = matchText(t.Name(), col, req.Op, req.Value)
	} else if c, ok := Compare(col, req.Op, typedValue(req.Value)); ok {
		cond = c
	} else {
		err = &UnsupportedError{Type: t.Name(), Op: req.Op}
	}
	if err != nil {
		return nil, err
	}
	sub := sq.Select("ref.id").From(query.BaseTable + " AS ref").Where(cond)
	return where(query.In(query.Col(req.Alias, "data"), sub, false)), nil
}

// typedValue passes digit strings as integers so they bind to integer columns.
func typedValue(v string) any {
	if n, err := strconv.ParseInt(v, 10, 64); err == nil && selector.IsDigits(v) {
		return n
	}
	return v
}
