package query

import (
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Fragment is a set of query pieces contributed by one resolver or field
// delegate. Where conditions are ANDed; fragments are merged into a Query.
type Fragment struct {
	Select   []sq.Sqlizer
	Join     []Join
	LeftJoin []Join
	Where    []sq.Sqlizer
	GroupBy  []string
	Having   []sq.Sqlizer
	OrderBy  []sq.Sqlizer
}

// Merge appends o's pieces to f. Group-by expressions and join aliases that
// are already present are not repeated.
func (f *Fragment) Merge(o *Fragment) {
	if o == nil {
		return
	}
	f.Select = append(f.Select, o.Select...)
	for _, j := range o.Join {
		if !f.HasJoin(j.Alias) {
			f.Join = append(f.Join, j)
		}
	}
	for _, j := range o.LeftJoin {
		if !f.HasJoin(j.Alias) {
			f.LeftJoin = append(f.LeftJoin, j)
		}
	}
	f.Where = append(f.Where, o.Where...)
	for _, g := range o.GroupBy {
		f.AddGroupBy(g)
	}
	f.Having = append(f.Having, o.Having...)
	f.OrderBy = append(f.OrderBy, o.OrderBy...)
}

// AddGroupBy appends expr unless it is already grouped on.
func (f *Fragment) AddGroupBy(expr string) {
	for _, g := range f.GroupBy {
		if g == expr {
			return
		}
	}
	f.GroupBy = append(f.GroupBy, expr)
}

// HasJoin reports whether a join (inner or left) uses alias.
func (f *Fragment) HasJoin(alias string) bool {
	for _, j := range f.Join {
		if j.Alias == alias {
			return true
		}
	}
	for _, j := range f.LeftJoin {
		if j.Alias == alias {
			return true
		}
	}
	return false
}

// Empty reports whether the fragment contributes nothing.
func (f *Fragment) Empty() bool {
	return len(f.Select) == 0 && len(f.Join) == 0 && len(f.LeftJoin) == 0 &&
		len(f.Where) == 0 && len(f.GroupBy) == 0 && len(f.Having) == 0 && len(f.OrderBy) == 0
}

// Join is "<source> AS <alias> ON <on>". Source is a table name or a
// subquery; On may be nil for a cross join.
type Join struct {
	Table string
	Sub   sq.Sqlizer
	Alias string
	On    sq.Sqlizer
}

// TableJoin joins a plain table under alias.
func TableJoin(table, alias string, on sq.Sqlizer) Join {
	return Join{Table: table, Alias: alias, On: on}
}

// SubJoin joins a derived table under alias.
func SubJoin(sub sq.Sqlizer, alias string, on sq.Sqlizer) Join {
	return Join{Sub: sub, Alias: alias, On: on}
}

func (j Join) ToSql() (string, []any, error) {
	var (
		b    strings.Builder
		args []any
	)
	if j.Sub != nil {
		s, a, err := j.Sub.ToSql()
		if err != nil {
			return "", nil, fmt.Errorf("join %s: %w", j.Alias, err)
		}
		b.WriteString("(" + s + ")")
		args = append(args, a...)
	} else {
		b.WriteString(QI(j.Table))
	}
	b.WriteString(" AS " + QI(j.Alias))
	if j.On != nil {
		s, a, err := j.On.ToSql()
		if err != nil {
			return "", nil, fmt.Errorf("join %s: %w", j.Alias, err)
		}
		b.WriteString(" ON " + s)
		args = append(args, a...)
	} else {
		b.WriteString(" ON true")
	}
	return b.String(), args, nil
}

type joinClause struct {
	kind string
	join Join
}

func (c joinClause) ToSql() (string, []any, error) {
	s, args, err := c.join.ToSql()
	if err != nil {
		return "", nil, err
	}
	return c.kind + " " + s, args, nil
}
