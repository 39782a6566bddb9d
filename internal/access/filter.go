// Package access restricts finds to the templates a principal may view.
package access

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"slices"
	"strconv"

	sq "github.com/Masterminds/squirrel"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"

	"github.com/atlekbai/treefinder/internal/metrics"
	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/schema"
)

// InheritTable lists pages that take their access from another template.
const InheritTable = "pages_access"

// Templates is the template source a Filter partitions.
type Templates interface {
	Templates() []schema.Template
}

// Predicates are the access conditions for one role set.
type Predicates struct {
	Allowed []int
	Denied  []int

	// Where holds the template predicate and the inheritance check.
	Where []sq.Sqlizer
	// LeftJoin is the inheritance lookup, absent when nothing is denied.
	LeftJoin *query.Join
}

// Fragment returns the predicates as a query fragment.
func (p *Predicates) Fragment() *query.Fragment {
	f := &query.Fragment{Where: append([]sq.Sqlizer(nil), p.Where...)}
	if p.LeftJoin != nil {
		f.LeftJoin = []query.Join{*p.LeftJoin}
	}
	return f
}

// Filter computes and caches access predicates per role set. It is safe for
// concurrent use; racing first computations for a role set share one result.
type Filter struct {
	templates Templates
	guestRole int64
	cache     *lru.Cache[uint64, *Predicates]
	group     singleflight.Group
}

// NewFilter returns a filter caching up to size role sets.
func NewFilter(templates Templates, guestRole int64, size int) (*Filter, error) {
	cache, err := lru.New[uint64, *Predicates](size)
	if err != nil {
		return nil, fmt.Errorf("access cache: %w", err)
	}
	return &Filter{templates: templates, guestRole: guestRole, cache: cache}, nil
}

// Predicates returns the access predicates for p, or nil when p is not
// restricted.
func (f *Filter) Predicates(p Principal) *Predicates {
	if p.Superuser {
		return nil
	}
	key := roleKey(p)
	if preds, ok := f.cache.Get(key); ok {
		metrics.AccessCacheLookups.WithLabelValues("hit").Inc()
		return preds
	}
	metrics.AccessCacheLookups.WithLabelValues("miss").Inc()

	v, _, _ := f.group.Do(strconv.FormatUint(key, 16), func() (any, error) {
		preds := f.compute(p)
		f.cache.Add(key, preds)
		return preds, nil
	})
	return v.(*Predicates)
}

// Invalidate drops all cached predicates. Register it with the schema
// registry so template or role changes take effect.
func (f *Filter) Invalidate() {
	f.cache.Purge()
}

// Len returns the number of cached role sets.
func (f *Filter) Len() int {
	return f.cache.Len()
}

func (f *Filter) allows(t *schema.Template, p Principal) bool {
	if t.GuestSearchable || !t.UseRoles || t.HasRole(f.guestRole) {
		return true
	}
	if p.Guest {
		return false
	}
	for _, r := range p.Roles {
		if t.HasRole(r) {
			return true
		}
	}
	return false
}

func (f *Filter) compute(p Principal) *Predicates {
	preds := &Predicates{}
	for _, t := range f.templates.Templates() {
		if f.allows(&t, p) {
			preds.Allowed = append(preds.Allowed, t.ID)
		} else {
			preds.Denied = append(preds.Denied, t.ID)
		}
	}

	if len(preds.Denied) == 0 {
		return preds
	}

	alias := InheritTable
	preds.LeftJoin = &query.Join{
		Table: InheritTable,
		Alias: alias,
		On: sq.And{
			sq.Expr(query.Col(alias, "pages_id") + " = " + query.BaseTable + ".id"),
			sq.Expr(query.Col(alias, "templates_id")+" = ANY(?)", preds.Denied),
		},
	}
	preds.Where = append(preds.Where, sq.Eq{query.Col(alias, "pages_id"): nil})

	col := query.BaseTable + ".templates_id"
	switch {
	case len(preds.Allowed) == 0:
		preds.Where = append(preds.Where, query.False)
	case len(preds.Denied) < len(preds.Allowed):
		preds.Where = append(preds.Where, sq.Expr(col+" <> ALL(?)", preds.Denied))
	default:
		preds.Where = append(preds.Where, sq.Expr(col+" = ANY(?)", preds.Allowed))
	}
	return preds
}

// roleKey hashes what the predicates depend on: guest status and the
// sorted role set.
func roleKey(p Principal) uint64 {
	roles := slices.Clone(p.Roles)
	slices.Sort(roles)
	roles = slices.Compact(roles)

	h := fnv.New64a()
	var buf [8]byte
	if p.Guest {
		h.Write([]byte{1})
	} else {
		h.Write([]byte{0})
	}
	for _, r := range roles {
		binary.LittleEndian.PutUint64(buf[:], uint64(r))
		h.Write(buf[:])
	}
	return h.Sum64()
}
