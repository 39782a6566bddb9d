package query

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// BaseTable is the table every find selects from.
const BaseTable = "pages"

// Query accumulates the pieces of one find. It is owned by a single
// compilation and rendered once for rows and optionally once for the count.
type Query struct {
	Fragment

	From    string
	Comment string

	start    uint64
	limit    uint64
	hasLimit bool
}

// New returns an empty query over the pages table.
func New() *Query {
	return &Query{From: BaseTable}
}

// SetLimit sets the row window. A zero limit removes it.
func (q *Query) SetLimit(start, limit int) {
	if limit <= 0 {
		q.start, q.limit, q.hasLimit = 0, 0, false
		return
	}
	if start < 0 {
		start = 0
	}
	q.start, q.limit, q.hasLimit = uint64(start), uint64(limit), true
}

// Limit returns the row window and whether one is set.
func (q *Query) Limit() (start, limit int, ok bool) {
	return int(q.start), int(q.limit), q.hasLimit
}

// Render builds the row query.
func (q *Query) Render() (string, []any, error) {
	qb := q.base(sq.Select())
	for _, col := range q.Select {
		qb = qb.Column(col)
	}
	if len(q.GroupBy) > 0 {
		qb = qb.GroupBy(q.GroupBy...)
	}
	for _, h := range q.Having {
		qb = qb.Having(h)
	}
	for _, o := range q.OrderBy {
		qb = qb.OrderByClause(o)
	}
	if q.hasLimit {
		qb = qb.Limit(q.limit)
		if q.start > 0 {
			qb = qb.Offset(q.start)
		}
	}
	if q.Comment != "" {
		qb = qb.Prefix(comment(q.Comment))
	}
	return qb.PlaceholderFormat(sq.Dollar).ToSql()
}

// RenderCount builds a query returning the number of distinct matching
// pages, ignoring columns, order and the row window. Grouped queries with a
// HAVING filter are counted through a derived table.
func (q *Query) RenderCount() (string, []any, error) {
	pk := q.From + ".id"
	if len(q.Having) == 0 {
		qb := q.base(sq.Select("COUNT(DISTINCT " + pk + ")"))
		return qb.PlaceholderFormat(sq.Dollar).ToSql()
	}

	inner := q.base(sq.Select(pk)).GroupBy(pk)
	for _, h := range q.Having {
		inner = inner.Having(h)
	}
	return sq.Select("COUNT(*)").
		FromSelect(inner, "_c").
		PlaceholderFormat(sq.Dollar).
		ToSql()
}

// ToSql lets a query be embedded as a subquery. Placeholders are left as '?'
// so the enclosing query numbers them.
func (q *Query) ToSql() (string, []any, error) {
	sub := *q
	sub.Comment = ""
	qb := sub.base(sq.Select())
	for _, col := range sub.Select {
		qb = qb.Column(col)
	}
	if len(sub.GroupBy) > 0 {
		qb = qb.GroupBy(sub.GroupBy...)
	}
	for _, h := range sub.Having {
		qb = qb.Having(h)
	}
	return qb.ToSql()
}

// base applies FROM, joins and WHERE, shared by row and count rendering.
func (q *Query) base(qb sq.SelectBuilder) sq.SelectBuilder {
	qb = qb.From(q.From)
	for _, j := range q.Join {
		qb = qb.JoinClause(joinClause{kind: "JOIN", join: j})
	}
	for _, j := range q.LeftJoin {
		qb = qb.JoinClause(joinClause{kind: "LEFT JOIN", join: j})
	}
	for _, w := range q.Where {
		qb = qb.Where(w)
	}
	return qb
}

// comment renders text as a SQL comment safe for placeholder replacement.
func comment(text string) string {
	text = strings.ReplaceAll(text, "*/", "* /")
	text = strings.ReplaceAll(text, "?", "??")
	return "/* " + text + " */"
}
