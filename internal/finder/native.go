package finder

import (
	"fmt"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/treefinder/internal/fieldtype"
	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/selector"
)

// pagesColumns are the real columns of the pages table and how their values
// are typed.
var pagesColumns = map[string]columnKind{
	"id":                kindInt,
	"parent_id":         kindInt,
	"templates_id":      kindInt,
	"name":              kindText,
	"status":            kindInt,
	"sort":              kindInt,
	"created":           kindTime,
	"modified":          kindTime,
	"published":         kindTime,
	"created_users_id":  kindInt,
	"modified_users_id": kindInt,
}

type columnKind int

const (
	kindInt columnKind = iota
	kindText
	kindTime
)

// native matches one native field of a clause against the pages table or a
// relative of it.
func (c *compilation) native(cl selector.Clause, name string) (sq.Sqlizer, error) {
	base, sub := selector.SplitField(name)
	switch base {
	case "child":
		base = "children"
	case "template":
		base = "templates_id"
	case "parent_id":
		if sub == "" {
			base = "parent"
		}
	}

	if base == "parent" || base == "children" {
		switch {
		case sub == "" || sub == "id" || sub == "path" || sub == "url":
			return c.relative(cl, base)
		case hasColumn(sub):
			return c.relativeColumn(cl, base, sub)
		case base == "parent":
			return c.parentMatch(cl, sub)
		default:
			return c.childrenMatch(cl, sub)
		}
	}
	if base == "templates_id" {
		return c.template(cl)
	}
	if !hasColumn(base) {
		return nil, syntaxErrorf(name, "Field '%s' cannot be used in a selector", name)
	}
	return c.column(cl, query.BaseTable, base)
}

func hasColumn(name string) bool {
	_, ok := pagesColumns[name]
	return ok
}

// column compares a pages column of the alias against every clause value.
func (c *compilation) column(cl selector.Clause, alias, col string) (sq.Sqlizer, error) {
	qcol := alias + "." + col
	if alias != query.BaseTable {
		qcol = query.Col(alias, col)
	}
	field := cl.Field()
	kind := pagesColumns[col]

	conds := make([]sq.Sqlizer, 0, len(cl.Values))
	for _, v := range cl.Values {
		var cond sq.Sqlizer
		switch {
		case kind == kindText && cl.Op == selector.OpContainsWords:
			cond = fieldtype.Words(qcol, sanitizeName(v))
		case kind == kindText && cl.Op.IsLike():
			cond = fieldtype.Like(qcol, cl.Op, v)
		case !cl.Op.IsSQL(), kind == kindTime && cl.Op == selector.OpBitwiseAnd:
			return nil, syntaxErrorf(field, "Operator '%s' is not supported for '%s'", cl.Op, field)
		default:
			value, err := typedNative(kind, v)
			if err != nil {
				return nil, syntaxErrorf(field, "%v", err)
			}
			cond, _ = fieldtype.Compare(qcol, cl.Op, value)
		}
		conds = append(conds, cond)
	}
	return combineNative(cl, conds), nil
}

// combineNative ORs the value conditions, or ANDs them for "!=", and
// applies the clause negation.
func combineNative(cl selector.Clause, conds []sq.Sqlizer) sq.Sqlizer {
	var cond sq.Sqlizer
	if cl.Op == selector.OpNotEqual {
		cond = and(conds)
	} else {
		cond = or(conds)
	}
	if cl.Not {
		return query.Not(cond)
	}
	return cond
}

func typedNative(kind columnKind, v string) (any, error) {
	switch kind {
	case kindInt:
		v = strings.TrimSpace(v)
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("value %q is not a number", v)
		}
		return n, nil
	case kindTime:
		return fieldtype.ParseTime(v)
	}
	return v, nil
}

// sanitizeName keeps the characters page names are made of.
func sanitizeName(v string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_' || r == '.' || r == ' ':
			return r
		}
		return ' '
	}, v)
}

// template matches templates_id, accepting template names.
func (c *compilation) template(cl selector.Clause) (sq.Sqlizer, error) {
	if !cl.Op.IsSQL() || cl.Op == selector.OpBitwiseAnd {
		return nil, syntaxErrorf(cl.Field(), "Operator '%s' is not supported for '%s'", cl.Op, cl.Field())
	}
	conds := make([]sq.Sqlizer, 0, len(cl.Values))
	var last int64
	for _, v := range cl.Values {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			id = 0
			if t, ok := c.f.reg.Template(v); ok {
				id = int64(t.ID)
			}
		}
		last = id
		cond, _ := fieldtype.Compare(query.BaseTable+".templates_id", cl.Op, id)
		conds = append(conds, cond)
	}
	if cl.Op == selector.OpEqual && !cl.Not && len(cl.Values) == 1 && len(cl.Fields) == 1 {
		c.templateID = last
	}
	return combineNative(cl, conds), nil
}

// relative matches the parent or children of a page by id or path.
func (c *compilation) relative(cl selector.Clause, base string) (sq.Sqlizer, error) {
	field := cl.Field()
	if !cl.Op.IsSQL() || cl.Op == selector.OpBitwiseAnd {
		return nil, syntaxErrorf(field, "Operator '%s' is not supported for '%s'", cl.Op, field)
	}
	conds := make([]sq.Sqlizer, 0, len(cl.Values))
	var last int64
	for _, v := range cl.Values {
		id, err := c.pageID(v)
		if err != nil {
			return nil, err
		}
		last = id
		if id == 0 && (cl.Op == selector.OpEqual || cl.Op == selector.OpNotEqual) {
			// no such page
			if cl.Op == selector.OpEqual {
				conds = append(conds, query.False)
			} else {
				conds = append(conds, query.True)
			}
			continue
		}
		if base == "children" {
			cond, _ := fieldtype.Compare("id", cl.Op, id)
			sub := sq.Select("parent_id").From(query.BaseTable).Where(cond)
			conds = append(conds, query.In(idColumn, sub, false))
			continue
		}
		cond, _ := fieldtype.Compare(query.BaseTable+".parent_id", cl.Op, id)
		conds = append(conds, cond)
	}
	if base == "parent" && last > 0 && cl.Op == selector.OpEqual && !cl.Not && len(cl.Values) == 1 && len(cl.Fields) == 1 {
		c.parentID = last
	}
	return combineNative(cl, conds), nil
}

// relativeColumn matches a pages column of the parent or of any child.
func (c *compilation) relativeColumn(cl selector.Clause, base, col string) (sq.Sqlizer, error) {
	alias := c.unique("_" + base + "_native")
	on := sq.Expr(query.Col(alias, "id") + " = " + query.BaseTable + ".parent_id")
	if base == "children" {
		on = sq.Expr(query.Col(alias, "parent_id") + " = " + idColumn)
	}
	c.q.LeftJoin = append(c.q.LeftJoin, query.TableJoin(query.BaseTable, alias, on))
	return c.column(cl, alias, col)
}

// parentMatch matches pages whose parent has a custom field matching the
// clause. The parents are found first, including hidden and unpublished
// ones.
func (c *compilation) parentMatch(cl selector.Clause, sub string) (sq.Sqlizer, error) {
	ids, err := c.nestedIDs(selector.Selectors{
		{Fields: []string{"num_children"}, Op: selector.OpGreater, Values: []string{"0"}},
		{Fields: []string{sub}, Op: cl.Op, Values: cl.Values, Group: cl.Group},
	})
	if err != nil {
		return nil, err
	}
	cond := query.IDs(query.BaseTable+".parent_id", ids)
	if cl.Not {
		return query.Not(cond), nil
	}
	return cond, nil
}

// childrenMatch matches pages having a child whose custom field matches the
// clause.
func (c *compilation) childrenMatch(cl selector.Clause, sub string) (sq.Sqlizer, error) {
	opts := DefaultOptions()
	opts.FindAll = true
	opts.GetTotal = TotalOff
	res, err := c.f.find(c.ctx, selector.Selectors{
		{Fields: []string{sub}, Op: cl.Op, Values: cl.Values, Group: cl.Group},
	}, opts, c.depth+1)
	if err != nil {
		return nil, err
	}
	seen := map[int64]bool{}
	var parents []int64
	for _, m := range res.Matches {
		if !seen[m.ParentID] {
			seen[m.ParentID] = true
			parents = append(parents, m.ParentID)
		}
	}
	cond := query.IDs(idColumn, parents)
	if cl.Not {
		return query.Not(cond), nil
	}
	return cond, nil
}

func (c *compilation) nestedIDs(sels selector.Selectors) ([]int64, error) {
	opts := DefaultOptions()
	opts.FindAll = true
	opts.ReturnVerbose = false
	opts.GetTotal = TotalOff
	res, err := c.f.find(c.ctx, sels, opts, c.depth+1)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// pageID returns v as a page id, resolving paths. Unknown paths are 0.
func (c *compilation) pageID(v string) (int64, error) {
	v = strings.TrimSpace(v)
	if selector.IsDigits(v) {
		return strconv.ParseInt(v, 10, 64)
	}
	return c.pageIDByPath(v)
}

// pageIDByPath finds the page at path, or 0.
func (c *compilation) pageIDByPath(path string) (int64, error) {
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	opts := DefaultOptions()
	opts.FindOne = true
	opts.ReturnVerbose = false
	res, err := c.f.find(c.ctx, selector.Selectors{
		{Fields: []string{"path"}, Op: selector.OpEqual, Values: []string{path}},
	}, opts, c.depth+1)
	if err != nil {
		return 0, err
	}
	if len(res.IDs) == 0 {
		return 0, nil
	}
	return res.IDs[0], nil
}
