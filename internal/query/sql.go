package query

import (
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// QI quotes a SQL identifier, escaping embedded double quotes.
func QI(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Col returns alias.column with both parts quoted.
func Col(alias, column string) string {
	return QI(alias) + "." + QI(column)
}

// False is a condition no row satisfies.
var False sq.Sqlizer = literal("1>2")

// True is a condition every row satisfies.
var True sq.Sqlizer = literal("1=1")

type literal string

func (l literal) ToSql() (string, []any, error) { return string(l), nil, nil }

// Not negates cond.
func Not(cond sq.Sqlizer) sq.Sqlizer {
	return notExpr{cond}
}

type notExpr struct{ cond sq.Sqlizer }

func (n notExpr) ToSql() (string, []any, error) {
	s, args, err := n.cond.ToSql()
	if err != nil {
		return "", nil, err
	}
	return "NOT (" + s + ")", args, nil
}

// EscapeLike escapes LIKE wildcards in s.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// In renders "expr IN (subquery)" or "expr NOT IN (subquery)".
func In(expr string, sub sq.Sqlizer, negate bool) sq.Sqlizer {
	return inExpr{expr: expr, sub: sub, negate: negate}
}

type inExpr struct {
	expr   string
	sub    sq.Sqlizer
	negate bool
}

func (e inExpr) ToSql() (string, []any, error) {
	s, args, err := e.sub.ToSql()
	if err != nil {
		return "", nil, err
	}
	op := " IN "
	if e.negate {
		op = " NOT IN "
	}
	return e.expr + op + "(" + s + ")", args, nil
}

// IDs renders "expr = ANY(?)" for a list of ids, or False when empty.
func IDs(expr string, ids []int64) sq.Sqlizer {
	if len(ids) == 0 {
		return False
	}
	return sq.Expr(expr+" = ANY(?)", ids)
}
