package finder

import (
	"slices"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/selector"
)

// applySorts turns the deferred sort clauses into ORDER BY keys. The last
// sort clause is the primary key.
func (c *compilation) applySorts() error {
	for i := len(c.sorts) - 1; i >= 0; i-- {
		for _, v := range c.sorts[i].Values {
			if err := c.sortBy(v); err != nil {
				return err
			}
		}
	}
	return nil
}

func (c *compilation) sortBy(v string) error {
	v = strings.TrimSpace(v)
	dir, desc := " ASC", false
	switch {
	case strings.HasPrefix(v, "-"):
		v, dir, desc = v[1:], " DESC", true
	case strings.HasSuffix(v, "-"):
		v, dir, desc = v[:len(v)-1], " DESC", true
	}
	if v == "" {
		return nil
	}

	base, sub := selector.SplitField(v)
	var expr string
	switch {
	case v == "random":
		c.q.OrderBy = append(c.q.OrderBy, sq.Expr("random()"))
		return nil

	case base == "num_children" || base == "numChildren" || v == "children.count" || v == "child.count":
		expr = c.childCount(selector.OpGreater, -1)

	case base == "parent" || base == "template":
		table, on := query.BaseTable, query.BaseTable+".parent_id"
		if base == "template" {
			table, on = "templates", query.BaseTable+".templates_id"
		}
		if sub == "" {
			sub = "name"
		}
		alias := c.unique("_sort_" + base + "_" + sub)
		c.q.LeftJoin = append(c.q.LeftJoin, query.TableJoin(table, alias,
			sq.Expr(query.Col(alias, "id")+" = "+on)))
		if base == "parent" {
			expr = "MAX(" + c.localizedName(alias, sub) + ")"
		} else {
			expr = "MAX(" + query.Col(alias, sub) + ")"
		}

	case base == "template_id" || base == "templates_id" || hasColumn(base) && sub == "":
		if base == "template_id" {
			base = "templates_id"
		}
		if base == "name" {
			expr = c.localizedName(query.BaseTable, "name")
		} else {
			expr = query.BaseTable + "." + base
		}

	default:
		var err error
		if expr, err = c.sortByField(base, sub, desc); err != nil {
			return err
		}
	}
	c.q.OrderBy = append(c.q.OrderBy, sq.Expr(expr+dir))
	return nil
}

// sortByField sorts on a custom field, joining its table once per field and
// subfield.
func (c *compilation) sortByField(name, sub string, desc bool) (string, error) {
	fld, ok := c.f.reg.Field(name)
	if !ok {
		return "", syntaxErrorf("sort", "Field does not exist: %s", name)
	}
	key := "_sort_" + name
	if sub != "" {
		key += "_" + sub
	}
	alias := c.unique(key)
	c.q.LeftJoin = append(c.q.LeftJoin, query.TableJoin(fld.Table(), alias,
		sq.Expr(query.Col(alias, "pages_id")+" = "+idColumn)))

	agg := "MIN"
	if desc {
		agg = "MAX"
	}
	switch {
	case sub == "count":
		return "COUNT(" + query.Col(alias, "data") + ")", nil

	case fld.IsPageReference():
		ref := c.unique("_sort_page_" + name)
		c.q.LeftJoin = append(c.q.LeftJoin, query.TableJoin(query.BaseTable, ref,
			sq.Expr(query.Col(ref, "id")+" = "+query.Col(alias, "data"))))
		if sub == "" {
			sub = "name"
		}
		return agg + "(" + c.localizedName(ref, sub) + ")", nil
	}

	if ml, ok := fld.Multilingual(); ok && (sub == "" || sub == "data") {
		if lang, ok := c.language(); ok {
			return agg + "(COALESCE(NULLIF(" + query.Col(alias, ml.LanguageColumn(lang)) + ", ''), " +
				query.Col(alias, "data") + "))", nil
		}
	}
	if sub == "" {
		sub = "data"
	}
	return agg + "(" + query.Col(alias, sub) + ")", nil
}

// localizedName returns the column of a pages alias to sort by, preferring
// the name in the principal's language when language page names are on.
func (c *compilation) localizedName(alias, col string) string {
	qcol := query.Col(alias, col)
	if alias == query.BaseTable {
		qcol = alias + "." + col
	}
	if col != "name" || !c.f.cfg.LanguagePageNames {
		return qcol
	}
	lang, ok := c.language()
	if !ok {
		return qcol
	}
	localized := query.Col(alias, "name"+strconv.Itoa(lang))
	return "COALESCE(NULLIF(" + localized + ", ''), " + qcol + ")"
}

// language returns the principal's language when it is not the default.
func (c *compilation) language() (int, bool) {
	lang := c.principal.Language
	if lang == 0 {
		return 0, false
	}
	return lang, slices.Contains(c.f.reg.NonDefaultLanguages(), lang)
}
