package finder

import (
	"context"
	"errors"
	"strconv"

	sq "github.com/Masterminds/squirrel"

	"github.com/atlekbai/treefinder/internal/access"
	"github.com/atlekbai/treefinder/internal/fieldtype"
	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/schema"
	"github.com/atlekbai/treefinder/internal/selector"
)

// compilation is the state of one find. It is never shared: nested finds
// get their own.
type compilation struct {
	settings

	ctx       context.Context
	f         *Finder
	sels      selector.Selectors
	depth     int
	q         *query.Query
	principal access.Principal

	start, limit int
	parentID     int64
	templateID   int64

	aliases map[string]bool
	seq     int

	// where conditions grouped by clause text; conditions of identical
	// clauses are ORed, groups are ANDed
	groups  [][]sq.Sqlizer
	groupOf map[string]int
	repeats map[string]int

	sorts []selector.Clause
	// text of the clause being compiled, taken before embedded selectors
	// are resolved
	key string
}

func newCompilation(ctx context.Context, f *Finder, sels selector.Selectors, s settings, depth int) *compilation {
	c := &compilation{
		settings:  s,
		ctx:       ctx,
		f:         f,
		sels:      sels,
		depth:     depth,
		q:         query.New(),
		principal: access.FromContext(ctx),
		aliases:   map[string]bool{query.BaseTable: true},
		groupOf:   map[string]int{},
		repeats:   map[string]int{},
	}
	c.q.Select = append(c.q.Select, sq.Expr(idColumn))
	if s.opts.ReturnVerbose {
		for _, col := range verboseColumn {
			c.q.Select = append(c.q.Select, sq.Expr(col))
		}
	}
	c.q.AddGroupBy(idColumn)
	for _, cl := range sels {
		c.repeats[cl.String()]++
	}
	return c
}

// run compiles every clause into c.q.
func (c *compilation) run() error {
	c.limits()
	for i := range c.sels {
		cl := c.sels[i]
		c.key = cl.String()
		if err := c.resolveEmbedded(&cl); err != nil {
			return err
		}
		if err := c.clause(cl); err != nil {
			return err
		}
	}
	for _, g := range c.groups {
		if len(g) == 1 {
			c.q.Where = append(c.q.Where, g[0])
		} else {
			c.q.Where = append(c.q.Where, sq.Or(g))
		}
	}
	c.access()
	return c.applySorts()
}

func (c *compilation) clause(cl selector.Clause) error {
	name := cl.Field()
	switch name {
	case "sort":
		c.sorts = append(c.sorts, cl)
		return nil
	case "start", "limit":
		return nil
	case "path", "url":
		return c.path(cl)
	case "has_parent", "hasParent":
		return c.hasParent(cl)
	case "num_children", "numChildren", "children.count", "child.count":
		return c.numChildren(cl)
	}

	fields := arrangeFields(c.f.reg, cl.Fields)
	multi := len(fields) > 1
	var conds []sq.Sqlizer
	for _, field := range fields {
		var (
			cond sq.Sqlizer
			err  error
		)
		if isNativeField(c.f.reg, field) {
			cond, err = c.native(cl, field)
		} else {
			cond, err = c.custom(cl, field, multi)
		}
		if err != nil {
			return err
		}
		if cond != nil {
			conds = append(conds, cond)
		}
	}
	switch len(conds) {
	case 0:
	case 1:
		c.where(conds[0])
	default:
		c.where(sq.Or(conds))
	}
	return nil
}

// where adds cond to the group of the current clause's text.
func (c *compilation) where(cond sq.Sqlizer) {
	if i, ok := c.groupOf[c.key]; ok {
		c.groups[i] = append(c.groups[i], cond)
		return
	}
	c.groupOf[c.key] = len(c.groups)
	c.groups = append(c.groups, []sq.Sqlizer{cond})
}

// isNativeField reports whether a clause field is matched against the pages
// table rather than a field table.
func isNativeField(reg *schema.Registry, name string) bool {
	base, _ := selector.SplitField(name)
	return reg.IsNativeName(base)
}

// arrangeFields puts native fields first so cheap pages predicates come
// before field-table joins.
func arrangeFields(reg *schema.Registry, fields []string) []string {
	if len(fields) < 2 {
		return fields
	}
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if isNativeField(reg, f) {
			out = append(out, f)
		}
	}
	for _, f := range fields {
		if !isNativeField(reg, f) {
			out = append(out, f)
		}
	}
	return out
}

// unique returns base, or base followed by the lowest free number.
func (c *compilation) unique(base string) string {
	alias := base
	for n := 1; c.aliases[alias]; n++ {
		alias = base + strconv.Itoa(n)
	}
	c.aliases[alias] = true
	return alias
}

// limits reads start and limit from the clauses. The last value of each
// wins, so the window findOne appends overrides the caller's.
func (c *compilation) limits() {
	var (
		start, limit       int
		hasStart, hasLimit bool
	)
	for _, cl := range c.sels {
		if len(cl.Fields) != 1 {
			continue
		}
		switch cl.Field() {
		case "start":
			start, _ = strconv.Atoi(cl.Value())
			hasStart = true
		case "limit":
			limit, _ = strconv.Atoi(cl.Value())
			hasLimit = true
		}
	}
	if start < 0 {
		start = 0
	}
	if hasLimit && limit > 0 {
		if !hasStart {
			start = (pageNum(c.ctx) - 1) * limit
		}
		c.q.SetLimit(start, limit)
		if c.getTotal && c.totalType == TotalCalc {
			c.q.Select = append(c.q.Select, sq.Expr("count(*) OVER() AS _total"))
		}
	}
	// a start without a limit is dropped
	c.start, c.limit, _ = c.q.Limit()
}

func (c *compilation) access() {
	if !c.checkAccess || c.opts.FindOne || c.f.acl == nil {
		return
	}
	if preds := c.f.acl.Predicates(c.principal); preds != nil {
		if frag := preds.Fragment(); !frag.Empty() {
			c.q.Merge(frag)
		}
	}
}

// resolveEmbedded replaces a [selector] value with the ids of the pages it
// finds. No ids become "0", which matches nothing.
func (c *compilation) resolveEmbedded(cl *selector.Clause) error {
	if cl.Quote != '[' {
		return nil
	}
	var (
		ids      []string
		resolved bool
	)
	for _, v := range cl.Values {
		if !selector.HasSelector(v) {
			// a bracketed literal such as [draft]
			ids = append(ids, v)
			continue
		}
		resolved = true
		sub, err := selector.Parse(v)
		if err != nil {
			return &SyntaxError{Field: cl.Field(), Msg: err.Error(), Err: err}
		}
		sub = c.inferScope(cl.Field(), sub)

		opts := DefaultOptions()
		opts.ReturnVerbose = false
		opts.GetTotal = TotalOff
		res, err := c.f.find(c.ctx, sub, opts, c.depth+1)
		if err != nil {
			return err
		}
		for _, id := range res.IDs {
			ids = append(ids, strconv.FormatInt(id, 10))
		}
	}
	if !resolved {
		return nil
	}
	if len(ids) == 0 {
		ids = []string{"0"}
	}
	cl.Values = ids
	cl.Quote = 0
	return nil
}

// inferScope narrows an embedded selector by the template, parent and
// selector configured on the page reference field it is compared against.
func (c *compilation) inferScope(name string, sub selector.Selectors) selector.Selectors {
	base, rest := selector.SplitField(name)
	if rest != "" && c.f.reg.IsNativeName(base) {
		base, _ = selector.SplitField(rest)
	}
	fld, ok := c.f.reg.Field(base)
	if !ok || !fld.IsPageReference() {
		return sub
	}

	var head selector.Selectors
	if fld.TemplateID > 0 && !sub.Has("template") && !sub.Has("templates_id") {
		head = append(head, selector.Clause{
			Fields: []string{"templates_id"}, Op: selector.OpEqual,
			Values: []string{strconv.Itoa(fld.TemplateID)},
		})
	}
	if fld.ParentID > 0 && !sub.Has("parent") && !sub.Has("parent_id") {
		head = append(head, selector.Clause{
			Fields: []string{"parent_id"}, Op: selector.OpEqual,
			Values: []string{strconv.FormatInt(fld.ParentID, 10)},
		})
	}
	out := append(head, sub...)
	if fld.FindPagesSelector != "" {
		extra, err := selector.Parse(fld.FindPagesSelector)
		if err != nil {
			c.f.log.Warn("ignoring invalid find pages selector", "field", fld.Name, "error", err)
			return out
		}
		for _, cl := range extra {
			if len(cl.Fields) == 1 {
				out = append(out, cl)
			}
		}
	}
	return out
}

// custom matches one custom field of a clause. It returns the condition to
// add to the where groups, or nil when the condition went into an inner
// join.
func (c *compilation) custom(cl selector.Clause, name string, multi bool) (sq.Sqlizer, error) {
	base, sub := selector.SplitField(name)
	fld, ok := c.f.reg.Field(base)
	if !ok {
		return c.external(cl, name)
	}
	if sub == "" {
		sub = "data"
	}

	table := fld.Table()
	alias := c.unique(table)
	joined := sq.Expr(query.Col(alias, "pages_id") + " = " + idColumn)
	isNull := sq.Expr(query.Col(alias, "pages_id") + " IS NULL")

	if sub == "data" && len(cl.Values) == 1 && cl.Value() == "" &&
		(cl.Op == selector.OpEqual || cl.Op == selector.OpNotEqual) {
		c.q.LeftJoin = append(c.q.LeftJoin, query.TableJoin(table, alias, joined))
		return blank(cl, fld, alias, isNull), nil
	}

	var langs []int
	if _, ok := fld.Multilingual(); ok {
		langs = c.f.reg.NonDefaultLanguages()
	}
	ws := make([]sq.Sqlizer, 0, len(cl.Values))
	for _, v := range cl.Values {
		c.seq++
		frag, err := fld.Delegate.Match(fieldtype.Request{
			Table:     table,
			Alias:     alias,
			Subfield:  sub,
			Op:        cl.Op,
			Value:     v,
			Group:     cl.Group,
			Seq:       c.seq,
			Languages: langs,
		})
		if err != nil {
			var ue *fieldtype.UnsupportedError
			if errors.As(err, &ue) {
				return nil, &SyntaxError{Field: name, Msg: "Operator '" + string(cl.Op) + "' is not supported for '" + name + "'", Err: err}
			}
			return nil, &SyntaxError{Field: name, Msg: err.Error(), Err: err}
		}
		ws = append(ws, and(frag.Where))
		rest := *frag
		rest.Where = nil
		c.q.Merge(&rest)
	}

	var cond sq.Sqlizer
	switch {
	case cl.Not && cl.Op == selector.OpNotEqual:
		// not "none equal" is "any equal"
		cond = query.Not(and(ws))
	case cl.Op == selector.OpNotEqual:
		cond = sq.Or{and(ws), isNull}
	case cl.Not:
		cond = sq.Or{query.Not(or(ws)), isNull}
	default:
		cond = or(ws)
	}

	left := multi || sub == "count" || cl.Not || cl.Op == selector.OpNotEqual || c.repeats[c.key] > 1
	if left {
		c.q.LeftJoin = append(c.q.LeftJoin, query.TableJoin(table, alias, joined))
		return cond, nil
	}
	c.q.Join = append(c.q.Join, query.TableJoin(table, alias, sq.And{joined, cond}))
	return nil, nil
}

// blank matches a field compared with the empty value: a page without a
// row and a page whose row holds the type's blank value are both blank.
func blank(cl selector.Clause, fld *schema.Field, alias string, isNull sq.Sqlizer) sq.Sqlizer {
	data := query.Col(alias, "data")
	value, has := fld.Delegate.BlankValue()
	var cond sq.Sqlizer
	if cl.Op == selector.OpEqual {
		cond = isNull
		if has {
			cond = sq.Or{isNull, sq.Eq{data: value}}
		}
	} else {
		cond = sq.Expr(query.Col(alias, "pages_id") + " IS NOT NULL")
		if has {
			cond = sq.And{cond, sq.NotEq{data: value}}
		}
	}
	if cl.Not {
		return query.Not(cond)
	}
	return cond
}

// external evaluates a clause naming a configured external value instead
// of a field.
func (c *compilation) external(cl selector.Clause, name string) (sq.Sqlizer, error) {
	if c.f.cfg.Externals != nil {
		if value, ok := c.f.cfg.Externals(name); ok {
			if len(cl.Fields) > 1 {
				return nil, syntaxErrorf(name, "Multi-field selectors may not reference external value '%s'", name)
			}
			if cl.Matches(value) {
				return nil, nil
			}
			return query.False, nil
		}
	}
	return nil, syntaxErrorf(name, "Field does not exist: %s", name)
}

func and(conds []sq.Sqlizer) sq.Sqlizer {
	if len(conds) == 1 {
		return conds[0]
	}
	return sq.And(conds)
}

func or(conds []sq.Sqlizer) sq.Sqlizer {
	if len(conds) == 1 {
		return conds[0]
	}
	return sq.Or(conds)
}
