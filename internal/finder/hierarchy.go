package finder

import (
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/selector"
)

// ParentsTable lists every ancestor of every page (pages_id, parents_id).
const ParentsTable = "pages_parents"

// path matches pages by their path. Each segment but the last joins one
// more ancestor, walking right to left until the root.
func (c *compilation) path(cl selector.Clause) error {
	if cl.Op != selector.OpEqual {
		return syntaxErrorf(cl.Field(), "Operator '%s' is not supported for '%s'", cl.Op, cl.Field())
	}
	conds := make([]sq.Sqlizer, 0, len(cl.Values))
	for _, v := range cl.Values {
		conds = append(conds, c.pathCond(v))
	}
	cond := or(conds)
	if cl.Not {
		cond = query.Not(cond)
	}
	c.where(cond)
	return nil
}

func (c *compilation) pathCond(v string) sq.Sqlizer {
	var parts []string
	for _, p := range strings.Split(strings.Trim(strings.TrimSpace(v), "/"), "/") {
		if p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return sq.Eq{idColumn: RootID}
	}

	last := len(parts) - 1
	cond := sq.And{c.nameMatch(query.BaseTable, parts[last])}
	prev := query.BaseTable
	for i := last - 1; i >= 0; i-- {
		alias := c.unique("_path_parent")
		on := sq.Expr(query.Col(alias, "id") + " = " + query.Col(prev, "parent_id"))
		c.q.LeftJoin = append(c.q.LeftJoin, query.TableJoin(query.BaseTable, alias, on))
		cond = append(cond, c.nameMatch(alias, parts[i]))
		prev = alias
	}
	return append(cond, sq.Eq{query.Col(prev, "parent_id"): RootID})
}

// nameMatch matches a page name, in any language when language page names
// are enabled.
func (c *compilation) nameMatch(alias, name string) sq.Sqlizer {
	eq := sq.Eq{query.Col(alias, "name"): name}
	if !c.f.cfg.LanguagePageNames {
		return eq
	}
	langs := c.f.reg.NonDefaultLanguages()
	if len(langs) == 0 {
		return eq
	}
	cond := sq.Or{eq}
	for _, id := range langs {
		cond = append(cond, sq.Eq{query.Col(alias, "name"+strconv.Itoa(id)): name})
	}
	return cond
}

// hasParent matches descendants of a page through the ancestry table.
func (c *compilation) hasParent(cl selector.Clause) error {
	field := cl.Field()
	if cl.Op != selector.OpEqual && cl.Op != selector.OpNotEqual {
		return syntaxErrorf(field, "Operator '%s' is not supported for '%s'", cl.Op, field)
	}
	negate := (cl.Op == selector.OpNotEqual) != cl.Not

	conds := make([]sq.Sqlizer, 0, len(cl.Values))
	for _, v := range cl.Values {
		id, err := c.pageID(v)
		if err != nil {
			return err
		}
		var cond sq.Sqlizer
		switch {
		case id == 0 && negate:
			// no such page, so nothing descends from it
			cond = query.True
		case id == 0:
			cond = query.False
		case id == RootID && negate:
			cond = sq.Eq{idColumn: RootID}
		case id == RootID:
			cond = query.True
		default:
			sub := sq.Select("pages_id").From(ParentsTable).
				Where(sq.Or{sq.Eq{"parents_id": id}, sq.Eq{"pages_id": id}})
			cond = query.In(query.BaseTable+".parent_id", sub, negate)
		}
		conds = append(conds, cond)
	}
	if negate {
		c.where(and(conds))
	} else {
		c.where(or(conds))
	}
	return nil
}

// numChildren matches pages by their number of children.
func (c *compilation) numChildren(cl selector.Clause) error {
	field := cl.Field()
	op := cl.Op
	if cl.Not {
		op = invert(op)
	}
	switch op {
	case selector.OpEqual, selector.OpNotEqual, selector.OpLess, selector.OpLessEqual,
		selector.OpGreater, selector.OpGreaterEqual:
	default:
		return syntaxErrorf(field, "Operator '%s' is not supported for '%s'", cl.Op, field)
	}
	n, err := strconv.ParseInt(strings.TrimSpace(cl.Value()), 10, 64)
	if err != nil {
		return syntaxErrorf(field, "value %q is not a number", cl.Value())
	}
	c.childCount(op, n)
	return nil
}

// childCount joins a fresh child count filtered by op n and returns the
// expression to sort by. Comparisons a page without children satisfies
// count in the grouped query so such pages are kept; the others join a
// pre-aggregated count.
func (c *compilation) childCount(op selector.Operator, n int64) string {
	col := c.unique("num_children")
	if zeroMatches(op, n) {
		alias := c.unique("pages_" + col)
		count := "COUNT(DISTINCT " + query.Col(alias, "id") + ")"
		c.q.Select = append(c.q.Select, sq.Expr(count+" AS "+query.QI(col)))
		c.q.LeftJoin = append(c.q.LeftJoin, query.TableJoin(query.BaseTable, alias,
			sq.Expr(query.Col(alias, "parent_id")+" = "+idColumn)))
		c.q.Having = append(c.q.Having, sq.Expr(count+" "+string(op)+" ?", n))
		return query.QI(col)
	}

	alias := c.unique("_" + col)
	sub := sq.Select("parent_id", "COUNT(id) AS "+query.QI(col)).
		From(query.BaseTable).
		GroupBy("parent_id").
		Having("COUNT(id) "+string(op)+" ?", n)
	c.q.LeftJoin = append(c.q.LeftJoin, query.SubJoin(sub, alias,
		sq.Expr(query.Col(alias, "parent_id")+" = "+idColumn)))
	c.q.Select = append(c.q.Select, sq.Expr("MAX("+query.Col(alias, col)+") AS "+query.QI(col)))
	c.q.Where = append(c.q.Where, sq.Expr(query.Col(alias, col)+" "+string(op)+" ?", n))
	return query.QI(col)
}

// zeroMatches reports whether a count of zero may satisfy op n, in which
// case childless pages must survive the join.
func zeroMatches(op selector.Operator, n int64) bool {
	switch op {
	case selector.OpLess:
		return n > 0
	case selector.OpLessEqual:
		return n >= 0
	case selector.OpNotEqual:
		return n != 0
	case selector.OpGreater:
		return n < 0
	case selector.OpGreaterEqual:
		return n <= 0
	case selector.OpEqual:
		return n == 0
	}
	return false
}

func invert(op selector.Operator) selector.Operator {
	switch op {
	case selector.OpEqual:
		return selector.OpNotEqual
	case selector.OpNotEqual:
		return selector.OpEqual
	case selector.OpLess:
		return selector.OpGreaterEqual
	case selector.OpLessEqual:
		return selector.OpGreater
	case selector.OpGreater:
		return selector.OpLessEqual
	case selector.OpGreaterEqual:
		return selector.OpLess
	}
	return op
}
