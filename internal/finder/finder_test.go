package finder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlekbai/treefinder/internal/access"
	"github.com/atlekbai/treefinder/internal/db/dbtest"
	"github.com/atlekbai/treefinder/internal/schema"
	"github.com/atlekbai/treefinder/internal/selector"
)

var pageColumns = []string{"id", "parent_id", "templates_id"}

func testRegistry(t *testing.T) *schema.Registry {
	t.Helper()
	reg, err := schema.NewRegistry(
		[]schema.Field{
			{ID: 1, Name: "title", Type: "text"},
			{ID: 2, Name: "body", Type: "textarea"},
			{ID: 3, Name: "price", Type: "integer"},
			{ID: 4, Name: "categories", Type: "page", TemplateID: 5, ParentID: 1040},
			{ID: 5, Name: "featured", Type: "checkbox"},
			{ID: 6, Name: "headline", Type: "textlanguage"},
			{ID: 7, Name: "event_date", Type: "datetime"},
		},
		[]schema.Template{
			{ID: 1, Name: "home"},
			{ID: 2, Name: "basic-page"},
			{ID: 5, Name: "category"},
			{ID: 6, Name: "members", UseRoles: true, Roles: []int64{40}},
		},
		[]schema.Language{{ID: 1010, Name: "default", IsDefault: true}, {ID: 1012, Name: "de"}},
	)
	require.NoError(t, err)
	return reg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestFinder(t *testing.T, q *dbtest.Querier, cfg Config) *Finder {
	t.Helper()
	if cfg.Logger == nil {
		cfg.Logger = quietLogger()
	}
	return New(testRegistry(t), q, nil, cfg)
}

func compile(t *testing.T, f *Finder, s string, opts Options) *Compiled {
	t.Helper()
	return compileCtx(t, context.Background(), f, s, opts)
}

func compileCtx(t *testing.T, ctx context.Context, f *Finder, s string, opts Options) *Compiled {
	t.Helper()
	comp, err := f.Compile(ctx, selector.MustParse(s), opts)
	require.NoError(t, err)
	return comp
}

func TestCompileCustomField(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	comp := compile(t, f, "title=Home", DefaultOptions())

	assert.Equal(t,
		`SELECT pages.id, pages.parent_id, pages.templates_id FROM pages `+
			`JOIN "field_title" AS "field_title" ON ("field_title"."pages_id" = pages.id AND "field_title"."data" = $1) `+
			`WHERE pages.status < $2 GROUP BY pages.id`,
		comp.SQL)
	assert.Equal(t, []any{"Home", int64(1024)}, comp.Args)
	assert.False(t, comp.GetTotal)
	assert.Empty(t, comp.CountSQL)
}

func TestDefaultVisibility(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})

	tests := []struct {
		name string
		sel  string
		opts func(*Options)
		want int64
	}{
		{"default", "title=Home", nil, StatusHidden},
		{"find hidden", "title=Home", func(o *Options) { o.FindHidden = true }, StatusUnpublished},
		{"include hidden", "title=Home, include=hidden", nil, StatusUnpublished},
		{"find all", "title=Home", func(o *Options) { o.FindAll = true }, StatusMax},
		{"include all", "title=Home, include=all", nil, StatusMax},
		{"find one", "title=Home", func(o *Options) { o.FindOne = true }, StatusUnpublished},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			if tt.opts != nil {
				tt.opts(&opts)
			}
			comp := compile(t, f, tt.sel, opts)
			assert.Contains(t, comp.SQL, "pages.status < $")
			assert.Contains(t, comp.Args, tt.want)
			assert.NotContains(t, comp.SQL, "include")
		})
	}
}

func TestStatusLabelBecomesBitTest(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	comp := compile(t, f, "status=hidden", DefaultOptions())

	assert.Contains(t, comp.SQL, "(pages.status & $1) <> 0")
	assert.Contains(t, comp.SQL, "pages.status < $2")
	assert.Equal(t, []any{int64(StatusHidden), int64(StatusUnpublished)}, comp.Args)
}

func TestStatusAboveUnpublishedIsNotCapped(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	comp := compile(t, f, "status>=unpublished", DefaultOptions())

	assert.Contains(t, comp.SQL, "pages.status >= $1")
	assert.Equal(t, []any{int64(StatusUnpublished)}, comp.Args)
}

func TestFindOneForcesWindow(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	opts := DefaultOptions()
	opts.FindOne = true
	comp := compile(t, f, "title=Home, limit=20, start=40", opts)

	assert.Equal(t, 0, comp.Start)
	assert.Equal(t, 1, comp.Limit)
	assert.False(t, comp.GetTotal)
	assert.Contains(t, comp.SQL, "LIMIT 1")
	assert.NotContains(t, comp.SQL, "OFFSET")
	assert.NotContains(t, comp.SQL, "_total")
}

func TestPageNumFallback(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	ctx := WithPageNum(context.Background(), 2)
	comp := compileCtx(t, ctx, f, "title=Home, limit=10", DefaultOptions())

	assert.Equal(t, 10, comp.Start)
	assert.Equal(t, 10, comp.Limit)
	assert.Contains(t, comp.SQL, "LIMIT 10 OFFSET 10")
	assert.True(t, comp.GetTotal)
	assert.Contains(t, comp.SQL, "count(*) OVER() AS _total")

	comp = compileCtx(t, ctx, f, "title=Home, limit=10, start=0", DefaultOptions())
	assert.Equal(t, 0, comp.Start)
	assert.NotContains(t, comp.SQL, "OFFSET")
}

func TestNotEqualMatchesMissingRows(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	comp := compile(t, f, "title!=Home", DefaultOptions())

	assert.Contains(t, comp.SQL, `LEFT JOIN "field_title" AS "field_title" ON "field_title"."pages_id" = pages.id`)
	assert.Contains(t, comp.SQL, `("field_title"."data" <> $1 OR "field_title"."pages_id" IS NULL)`)
}

func TestNegatedClause(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})

	comp := compile(t, f, "!title=Home", DefaultOptions())
	assert.Contains(t, comp.SQL, `LEFT JOIN "field_title"`)
	assert.Contains(t, comp.SQL, `(NOT ("field_title"."data" = $1) OR "field_title"."pages_id" IS NULL)`)

	// negated "none of" is "any of"
	comp = compile(t, f, "!title!=Home", DefaultOptions())
	assert.Contains(t, comp.SQL, `NOT ("field_title"."data" <> $1)`)
	assert.NotContains(t, comp.SQL, "IS NULL")
}

func TestMultipleValuesAreOred(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})

	comp := compile(t, f, "title=Home|About", DefaultOptions())
	assert.Contains(t, comp.SQL, `("field_title"."data" = $1 OR "field_title"."data" = $2)`)

	comp = compile(t, f, "title!=Home|About", DefaultOptions())
	assert.Contains(t, comp.SQL, `(("field_title"."data" <> $1 AND "field_title"."data" <> $2) OR "field_title"."pages_id" IS NULL)`)
}

func TestIdenticalClausesAreOred(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	comp := compile(t, f, "title=Home, title=Home", DefaultOptions())

	assert.Contains(t, comp.SQL, `LEFT JOIN "field_title" AS "field_title" ON`)
	assert.Contains(t, comp.SQL, `LEFT JOIN "field_title" AS "field_title1" ON`)
	assert.Contains(t, comp.SQL, `("field_title"."data" = $1 OR "field_title1"."data" = $2)`)
}

func TestDistinctClausesAreAnded(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	comp := compile(t, f, "title=Home, title=About", DefaultOptions())

	assert.Contains(t, comp.SQL, `JOIN "field_title" AS "field_title" ON ("field_title"."pages_id" = pages.id AND "field_title"."data" = $1)`)
	assert.Contains(t, comp.SQL, `JOIN "field_title" AS "field_title1" ON ("field_title1"."pages_id" = pages.id AND "field_title1"."data" = $2)`)
	assert.NotContains(t, comp.SQL, " OR ")
	assert.NotContains(t, comp.SQL, "LEFT JOIN")
}

func TestMultiFieldClause(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	comp := compile(t, f, "title|name%=home", DefaultOptions())

	// native fields first
	assert.Contains(t, comp.SQL, `(pages.name ILIKE $1 OR "field_title"."data" ILIKE $2)`)
	assert.Contains(t, comp.SQL, `LEFT JOIN "field_title"`)
	assert.Equal(t, "%home%", comp.Args[0])
}

func TestBlankValue(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})

	comp := compile(t, f, "title=", DefaultOptions())
	assert.Contains(t, comp.SQL, `("field_title"."pages_id" IS NULL OR "field_title"."data" = $1)`)
	assert.Equal(t, "", comp.Args[0])

	comp = compile(t, f, "price=", DefaultOptions())
	assert.Contains(t, comp.SQL, `WHERE "field_price"."pages_id" IS NULL AND`)

	comp = compile(t, f, "title!=", DefaultOptions())
	assert.Contains(t, comp.SQL, `("field_title"."pages_id" IS NOT NULL AND "field_title"."data" <> $1)`)
}

func TestNumChildren(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})

	// zero counts must survive, so the count is taken in the grouped query
	comp := compile(t, f, "num_children>=0", DefaultOptions())
	assert.Contains(t, comp.SQL, `COUNT(DISTINCT "pages_num_children"."id") AS "num_children"`)
	assert.Contains(t, comp.SQL, `LEFT JOIN "pages" AS "pages_num_children" ON "pages_num_children"."parent_id" = pages.id`)
	assert.Contains(t, comp.SQL, `HAVING COUNT(DISTINCT "pages_num_children"."id") >= $`)

	comp = compile(t, f, "num_children>5", DefaultOptions())
	assert.Contains(t, comp.SQL, `LEFT JOIN (SELECT parent_id, COUNT(id) AS "num_children" FROM pages GROUP BY parent_id HAVING COUNT(id) > $1) AS "_num_children"`)
	assert.Contains(t, comp.SQL, `"_num_children"."num_children" > $2`)
	assert.NotContains(t, comp.SQL, "HAVING COUNT(DISTINCT")

	// each clause gets its own aggregate
	comp = compile(t, f, "num_children>2, children.count<10", DefaultOptions())
	assert.Contains(t, comp.SQL, `AS "_num_children"`)
	assert.Contains(t, comp.SQL, `AS "pages_num_children1"`)

	comp = compile(t, f, "!num_children>0", DefaultOptions())
	assert.Contains(t, comp.SQL, `<= $`)
}

func TestZeroMatches(t *testing.T) {
	assert.True(t, zeroMatches(selector.OpGreaterEqual, 0))
	assert.True(t, zeroMatches(selector.OpEqual, 0))
	assert.True(t, zeroMatches(selector.OpLess, 3))
	assert.True(t, zeroMatches(selector.OpNotEqual, 2))
	assert.False(t, zeroMatches(selector.OpGreater, 0))
	assert.False(t, zeroMatches(selector.OpEqual, 2))
	assert.False(t, zeroMatches(selector.OpNotEqual, 0))
}

func TestSortOrderLastDeclaredWins(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})

	comp := compile(t, f, "sort=name, sort=-created", DefaultOptions())
	assert.Contains(t, comp.SQL, "ORDER BY pages.created DESC, pages.name ASC")

	comp = compile(t, f, "sort=-created, sort=name", DefaultOptions())
	assert.Contains(t, comp.SQL, "ORDER BY pages.name ASC, pages.created DESC")
}

func TestSortKinds(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})

	comp := compile(t, f, "sort=-title", DefaultOptions())
	assert.Contains(t, comp.SQL, `LEFT JOIN "field_title" AS "_sort_title" ON "_sort_title"."pages_id" = pages.id`)
	assert.Contains(t, comp.SQL, `ORDER BY MAX("_sort_title"."data") DESC`)

	comp = compile(t, f, "sort=categories", DefaultOptions())
	assert.Contains(t, comp.SQL, `LEFT JOIN "pages" AS "_sort_page_categories" ON "_sort_page_categories"."id" = "_sort_categories"."data"`)
	assert.Contains(t, comp.SQL, `ORDER BY MIN("_sort_page_categories"."name") ASC`)

	comp = compile(t, f, "sort=categories.count", DefaultOptions())
	assert.Contains(t, comp.SQL, `ORDER BY COUNT("_sort_categories_count"."data") ASC`)

	comp = compile(t, f, "sort=template", DefaultOptions())
	assert.Contains(t, comp.SQL, `LEFT JOIN "templates" AS "_sort_template_name" ON "_sort_template_name"."id" = pages.templates_id`)

	comp = compile(t, f, "sort=parent.sort-", DefaultOptions())
	assert.Contains(t, comp.SQL, `ORDER BY MAX("_sort_parent_sort"."sort") DESC`)

	comp = compile(t, f, "sort=random", DefaultOptions())
	assert.Contains(t, comp.SQL, "ORDER BY random()")

	comp = compile(t, f, "sort=-num_children", DefaultOptions())
	assert.Contains(t, comp.SQL, `ORDER BY "num_children" DESC`)

	opts := DefaultOptions()
	opts.LoadPages = false
	comp = compile(t, f, "title=Home, sort=name", opts)
	assert.NotContains(t, comp.SQL, "ORDER BY")

	_, err := f.Compile(context.Background(), selector.MustParse("sort=nope"), DefaultOptions())
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)
}

func TestSortLocalizedName(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{LanguagePageNames: true})
	ctx := access.WithPrincipal(context.Background(), access.Principal{Guest: true, Language: 1012})

	comp := compileCtx(t, ctx, f, "sort=name", DefaultOptions())
	assert.Contains(t, comp.SQL, `ORDER BY COALESCE(NULLIF("pages"."name1012", ''), pages.name) ASC`)

	comp = compileCtx(t, ctx, f, "sort=headline", DefaultOptions())
	assert.Contains(t, comp.SQL, `MIN(COALESCE(NULLIF("_sort_headline"."data1012", ''), "_sort_headline"."data"))`)
}

func TestPathTrailingSlash(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})

	a := compile(t, f, "path=/a/b/c/", DefaultOptions())
	b := compile(t, f, "path=/a/b/c", DefaultOptions())
	assert.Equal(t, a.SQL, b.SQL)
	assert.Equal(t, a.Args, b.Args)

	assert.Contains(t, a.SQL, `LEFT JOIN "pages" AS "_path_parent" ON "_path_parent"."id" = "pages"."parent_id"`)
	assert.Contains(t, a.SQL, `LEFT JOIN "pages" AS "_path_parent1" ON "_path_parent1"."id" = "_path_parent"."parent_id"`)
	assert.Contains(t, a.SQL, `"_path_parent1"."parent_id" = $4`)
	assert.Equal(t, []any{"c", "b", "a", RootID, int64(StatusHidden)}, a.Args)

	root := compile(t, f, "path=/", DefaultOptions())
	assert.Contains(t, root.SQL, "pages.id = $1")

	_, err := f.Compile(context.Background(), selector.MustParse("path*=/a/"), DefaultOptions())
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)
}

func TestPathLanguageNames(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{LanguagePageNames: true})
	comp := compile(t, f, "path=/about/", DefaultOptions())
	assert.Contains(t, comp.SQL, `("pages"."name" = $1 OR "pages"."name1012" = $2)`)
}

func TestHasParent(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})

	comp := compile(t, f, "has_parent=1040", DefaultOptions())
	assert.Contains(t, comp.SQL, "pages.parent_id IN (SELECT pages_id FROM pages_parents WHERE (parents_id = $1 OR pages_id = $2))")

	comp = compile(t, f, "has_parent!=1040", DefaultOptions())
	assert.Contains(t, comp.SQL, "pages.parent_id NOT IN (SELECT pages_id FROM pages_parents")

	comp = compile(t, f, "!has_parent!=1040", DefaultOptions())
	assert.Contains(t, comp.SQL, "pages.parent_id IN (SELECT")

	comp = compile(t, f, "has_parent!=1", DefaultOptions())
	assert.Contains(t, comp.SQL, "pages.id = $1")

	comp = compile(t, f, "has_parent=1", DefaultOptions())
	assert.NotContains(t, comp.SQL, "pages_parents")
}

func TestHasParentPathNotFound(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	comp := compile(t, f, "has_parent=/missing/", DefaultOptions())
	assert.Contains(t, comp.SQL, "1>2")
}

func TestParentByPath(t *testing.T) {
	q := (&dbtest.Querier{}).On(`"pages"."name"`, dbtest.Result{
		Columns: []string{"id"},
		Rows:    [][]any{{int64(1001)}},
	})
	f := newTestFinder(t, q, Config{})
	comp := compile(t, f, "parent=/about/", DefaultOptions())

	assert.Contains(t, comp.SQL, "pages.parent_id = $1")
	assert.Equal(t, int64(1001), comp.Args[0])
	assert.Equal(t, int64(1001), comp.ParentID)

	calls := q.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].SQL, "LIMIT 1")
	assert.Equal(t, "about", calls[0].Args[0])
}

func TestMissingRelativeMatchesNothing(t *testing.T) {
	tests := []struct {
		sel  string
		want string
	}{
		{"parent=/missing/", "1>2"},
		{"parent=[title=Nothing]", "1>2"},
		{"children=/missing/", "1>2"},
		{"parent=0", "1>2"},
		{"parent!=/missing/", "1=1"},
	}
	for _, tt := range tests {
		t.Run(tt.sel, func(t *testing.T) {
			f := newTestFinder(t, &dbtest.Querier{}, Config{})
			comp := compile(t, f, tt.sel, DefaultOptions())
			assert.Contains(t, comp.SQL, tt.want)
			assert.NotContains(t, comp.SQL, "pages.parent_id = ")
			assert.NotContains(t, comp.SQL, "SELECT parent_id FROM pages")
			assert.Zero(t, comp.ParentID)
		})
	}
}

func TestBracketedLiteral(t *testing.T) {
	q := &dbtest.Querier{}
	f := newTestFinder(t, q, Config{})
	comp := compile(t, f, "title=[draft]", DefaultOptions())

	assert.Contains(t, comp.SQL, `"field_title"."data" = $1`)
	assert.Equal(t, "draft", comp.Args[0])
	assert.Empty(t, q.Calls())
}

func TestNativeFields(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})

	comp := compile(t, f, "template=basic-page", DefaultOptions())
	assert.Contains(t, comp.SQL, "pages.templates_id = $1")
	assert.Equal(t, int64(2), comp.Args[0])
	assert.Equal(t, int64(2), comp.TemplateID)

	comp = compile(t, f, "template=nope", DefaultOptions())
	assert.Equal(t, int64(0), comp.Args[0])

	comp = compile(t, f, "name~=hello world", DefaultOptions())
	assert.Contains(t, comp.SQL, "(pages.name ~* $1 AND pages.name ~* $2)")
	assert.Equal(t, `\mhello\M`, comp.Args[0])

	comp = compile(t, f, "name^=abo", DefaultOptions())
	assert.Equal(t, "abo%", comp.Args[0])

	comp = compile(t, f, "id!=1|2", DefaultOptions())
	assert.Contains(t, comp.SQL, "(pages.id <> $1 AND pages.id <> $2)")

	comp = compile(t, f, "!id=3", DefaultOptions())
	assert.Contains(t, comp.SQL, "NOT (pages.id = $1)")

	comp = compile(t, f, "created>=1700000000", DefaultOptions())
	assert.Contains(t, comp.SQL, "pages.created >= $1")

	comp = compile(t, f, "parent.name=blog", DefaultOptions())
	assert.Contains(t, comp.SQL, `LEFT JOIN "pages" AS "_parent_native" ON "_parent_native"."id" = pages.parent_id`)
	assert.Contains(t, comp.SQL, `"_parent_native"."name" = $1`)

	comp = compile(t, f, "children=1050", DefaultOptions())
	assert.Contains(t, comp.SQL, "pages.id IN (SELECT parent_id FROM pages WHERE id = $1)")
}

func TestRelativeCustomField(t *testing.T) {
	q := (&dbtest.Querier{}).On(`"field_title"`, dbtest.Result{
		Columns: pageColumns,
		Rows:    [][]any{{int64(20), int64(10), int64(2)}, {int64(21), int64(10), int64(2)}},
	})
	f := newTestFinder(t, q, Config{})

	comp := compile(t, f, "children.title=News", DefaultOptions())
	assert.Contains(t, comp.SQL, "pages.id = ANY($1)")
	assert.Equal(t, []int64{10}, comp.Args[0])

	comp = compile(t, f, "parent.title=News", DefaultOptions())
	assert.Contains(t, comp.SQL, "pages.parent_id = ANY($1)")
	assert.Equal(t, []int64{20, 21}, comp.Args[0])
}

func TestUnsupportedOperators(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	for _, s := range []string{"title&1", "id~=foo", "num_children*=1", "has_parent>1", "template%=x", "float.x=1", "event_date&5", "created&5"} {
		t.Run(s, func(t *testing.T) {
			_, err := f.Compile(context.Background(), selector.MustParse(s), DefaultOptions())
			var se *SyntaxError
			require.ErrorAs(t, err, &se)
		})
	}
}

func TestUnknownFieldAndExternals(t *testing.T) {
	externals := map[string]string{"user.name": "admin"}
	f := newTestFinder(t, &dbtest.Querier{}, Config{
		Externals: func(name string) (string, bool) {
			v, ok := externals[name]
			return v, ok
		},
	})

	_, err := f.Compile(context.Background(), selector.MustParse("nope=1"), DefaultOptions())
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "nope", se.Field)
	assert.Contains(t, err.Error(), "Field does not exist")

	comp := compile(t, f, "user.name=admin", DefaultOptions())
	assert.NotContains(t, comp.SQL, "1>2")

	comp = compile(t, f, "user.name=guest", DefaultOptions())
	assert.Contains(t, comp.SQL, "1>2")

	_, err = f.Compile(context.Background(), selector.MustParse("title|user.name=admin"), DefaultOptions())
	require.ErrorAs(t, err, &se)
	assert.Contains(t, se.Msg, "Multi-field")
}

func TestEmbeddedSelector(t *testing.T) {
	q := (&dbtest.Querier{}).On(`"field_title"`, dbtest.Result{
		Columns: []string{"id"},
		Rows:    [][]any{{int64(7)}, {int64(8)}},
	})
	f := newTestFinder(t, q, Config{})
	comp := compile(t, f, "categories=[title=Sports]", DefaultOptions())

	calls := q.Calls()
	require.Len(t, calls, 1)
	// template and parent inferred from the field
	assert.Contains(t, calls[0].SQL, "pages.templates_id = $")
	assert.Contains(t, calls[0].SQL, "pages.parent_id = $")
	assert.Contains(t, calls[0].Args, int64(5))
	assert.Contains(t, calls[0].Args, int64(1040))
	assert.NotContains(t, calls[0].SQL, "pages.templates_id,")

	assert.Contains(t, comp.SQL, `("field_categories"."data" = $1 OR "field_categories"."data" = $2)`)
	assert.Equal(t, []any{int64(7), int64(8)}, comp.Args[:2])
}

func TestEmbeddedSelectorWithoutMatches(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	comp := compile(t, f, "categories=[title=Nothing]", DefaultOptions())
	assert.Contains(t, comp.SQL, `"field_categories"."data" = $1`)
	assert.Equal(t, int64(0), comp.Args[0])
}

func TestDepthCap(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{MaxDepth: 1})
	_, err := f.Compile(context.Background(), selector.MustParse("categories=[categories=[title=x]]"), DefaultOptions())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDepthExceeded)
	var se *SyntaxError
	assert.ErrorAs(t, err, &se)
}

func TestAccessPredicates(t *testing.T) {
	reg := testRegistry(t)
	acl, err := access.NewFilter(reg, 37, 16)
	require.NoError(t, err)
	f := New(reg, &dbtest.Querier{}, acl, Config{Logger: quietLogger()})
	ctx := context.Background()

	comp := compileCtx(t, ctx, f, "title=Home", DefaultOptions())
	assert.Contains(t, comp.SQL, `LEFT JOIN "pages_access" AS "pages_access"`)
	assert.Contains(t, comp.SQL, `"pages_access"."pages_id" IS NULL`)
	assert.Contains(t, comp.SQL, "pages.templates_id <> ALL(")

	comp = compileCtx(t, ctx, f, "title=Home, check_access=0", DefaultOptions())
	assert.NotContains(t, comp.SQL, "pages_access")

	opts := DefaultOptions()
	opts.FindAll = true
	comp = compileCtx(t, ctx, f, "title=Home", opts)
	assert.NotContains(t, comp.SQL, "pages_access")

	opts = DefaultOptions()
	opts.FindOne = true
	comp = compileCtx(t, ctx, f, "title=Home", opts)
	assert.NotContains(t, comp.SQL, "pages_access")

	member := access.WithPrincipal(ctx, access.Principal{ID: 41, Roles: []int64{40}})
	comp = compileCtx(t, member, f, "title=Home", DefaultOptions())
	assert.NotContains(t, comp.SQL, "pages_access")

	su := access.WithPrincipal(ctx, access.Principal{ID: 41, Superuser: true})
	comp = compileCtx(t, su, f, "title=Home", DefaultOptions())
	assert.NotContains(t, comp.SQL, "pages_access")
}

func TestFindVerboseWithScore(t *testing.T) {
	q := (&dbtest.Querier{}).On("FROM pages", dbtest.Result{
		Columns: pageColumns,
		Rows:    [][]any{{int64(1), int64(0), int64(1)}},
	})
	f := newTestFinder(t, q, Config{})

	res, err := f.FindString(context.Background(), "title=Home", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Matches, 1)
	assert.Equal(t, Match{ID: 1, ParentID: 0, TemplateID: 1, Score: 0}, res.Matches[0])
	assert.GreaterOrEqual(t, res.Matches[0].Score, 0.0)
	assert.Equal(t, []int64{1}, res.IDs)
	assert.Equal(t, 1, res.Total)

	q.On("ts_rank", dbtest.Result{
		Columns: append(append([]string(nil), pageColumns...), "_score_field_body_1"),
		Rows: [][]any{
			{int64(3), int64(1), int64(2), float32(0.5)},
			{int64(4), int64(1), int64(2), float32(0.25)},
		},
	})
	res, err = f.FindString(context.Background(), "body~=tree house", DefaultOptions())
	require.NoError(t, err)
	require.Len(t, res.Matches, 2)
	assert.InDelta(t, 0.5, res.Matches[0].Score, 1e-6)
	assert.InDelta(t, 0.25, res.Matches[1].Score, 1e-6)
}

func TestFindIDs(t *testing.T) {
	q := (&dbtest.Querier{}).On("FROM pages", dbtest.Result{
		Columns: []string{"id"},
		Rows:    [][]any{{int64(5)}, {int64(6)}},
	})
	f := newTestFinder(t, q, Config{})

	ids, err := f.FindIDs(context.Background(), selector.MustParse("title=Home"), DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []int64{5, 6}, ids)
	assert.Contains(t, q.Calls()[0].SQL, "SELECT pages.id FROM pages")
}

func TestTotals(t *testing.T) {
	ctx := context.Background()

	t.Run("calc", func(t *testing.T) {
		q := (&dbtest.Querier{}).On("FROM pages", dbtest.Result{
			Columns: append(append([]string(nil), pageColumns...), "_total"),
			Rows:    [][]any{{int64(1), int64(0), int64(1), int64(57)}},
		})
		f := newTestFinder(t, q, Config{})
		res, err := f.FindString(ctx, "title=Home, limit=10", DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 57, res.Total)
		assert.Len(t, q.Calls(), 1)
	})

	t.Run("calc past the last page", func(t *testing.T) {
		q := (&dbtest.Querier{}).On("COUNT(DISTINCT pages.id)", dbtest.Result{
			Columns: []string{"count"},
			Rows:    [][]any{{int64(12)}},
		})
		f := newTestFinder(t, q, Config{})
		res, err := f.FindString(ctx, "title=Home, limit=10, start=50", DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 12, res.Total)
		assert.Empty(t, res.IDs)
		assert.Len(t, q.Calls(), 2)
	})

	t.Run("count", func(t *testing.T) {
		q := (&dbtest.Querier{}).
			On("FROM pages", dbtest.Result{Columns: pageColumns, Rows: [][]any{{int64(1), int64(0), int64(1)}}}).
			On("COUNT(DISTINCT pages.id)", dbtest.Result{Columns: []string{"count"}, Rows: [][]any{{int64(42)}}})
		f := newTestFinder(t, q, Config{})
		opts := DefaultOptions()
		opts.GetTotalType = TotalCount
		res, err := f.FindString(ctx, "title=Home, limit=10", opts)
		require.NoError(t, err)
		assert.Equal(t, 42, res.Total)
		calls := q.Calls()
		require.Len(t, calls, 2)
		assert.NotContains(t, calls[0].SQL, "_total")
		assert.NotContains(t, calls[1].SQL, "LIMIT")
	})

	t.Run("count with having", func(t *testing.T) {
		f := newTestFinder(t, &dbtest.Querier{}, Config{})
		opts := DefaultOptions()
		opts.GetTotalType = TotalCount
		comp := compile(t, f, "num_children=0, limit=10", opts)
		assert.Contains(t, comp.CountSQL, "SELECT COUNT(*) FROM (SELECT pages.id FROM pages")
	})

	t.Run("selector directive", func(t *testing.T) {
		q := (&dbtest.Querier{}).On("FROM pages", dbtest.Result{
			Columns: pageColumns,
			Rows:    [][]any{{int64(1), int64(0), int64(1)}, {int64(2), int64(0), int64(1)}},
		})
		f := newTestFinder(t, q, Config{})
		res, err := f.FindString(ctx, "title=Home, limit=10, get_total=0", DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		assert.NotContains(t, q.Calls()[0].SQL, "_total")
	})

	t.Run("off without limit", func(t *testing.T) {
		q := (&dbtest.Querier{}).On("FROM pages", dbtest.Result{
			Columns: pageColumns,
			Rows:    [][]any{{int64(1), int64(0), int64(1)}, {int64(2), int64(0), int64(1)}},
		})
		f := newTestFinder(t, q, Config{})
		res, err := f.FindString(ctx, "title=Home", DefaultOptions())
		require.NoError(t, err)
		assert.Equal(t, 2, res.Total)
		assert.Len(t, q.Calls(), 1)
	})
}

func TestExecutionError(t *testing.T) {
	q := (&dbtest.Querier{}).On("FROM pages", dbtest.Result{Err: errors.New(`relation "field_title" does not exist`)})
	f := newTestFinder(t, q, Config{})

	_, err := f.FindString(context.Background(), "title=Home", DefaultOptions())
	var ee *ExecutionError
	require.ErrorAs(t, err, &ee)
	assert.Contains(t, err.Error(), "does not exist")
	assert.Contains(t, ee.SQL, "field_title")
}

func TestFindStringParseError(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	_, err := f.FindString(context.Background(), "title=", DefaultOptions())
	require.NoError(t, err)

	_, err = f.FindString(context.Background(), `title="Home`, DefaultOptions())
	var se *SyntaxError
	require.ErrorAs(t, err, &se)
	var pe *selector.ParseError
	assert.ErrorAs(t, err, &pe)
}

func TestCallerSelectorsAreNotModified(t *testing.T) {
	f := newTestFinder(t, &dbtest.Querier{}, Config{})
	sels := selector.MustParse("status=hidden, include=all")
	_, err := f.Compile(context.Background(), sels, DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, "status=hidden, include=all", sels.String())
}

func TestOptionsFromMap(t *testing.T) {
	o := OptionsFromMap(map[string]any{
		"findOne":      true,
		"getTotal":     "false",
		"getTotalType": "count",
		"unknown":      42,
	})
	assert.True(t, o.FindOne)
	assert.True(t, o.LoadPages)
	assert.Equal(t, TotalOff, o.GetTotal)
	assert.Equal(t, TotalCount, o.GetTotalType)
}

func TestConcurrentFinds(t *testing.T) {
	q := (&dbtest.Querier{}).On("FROM pages", dbtest.Result{
		Columns: pageColumns,
		Rows:    [][]any{{int64(1), int64(0), int64(1)}},
	})
	f := newTestFinder(t, q, Config{})

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			_, err := f.FindString(context.Background(), "title=Home, num_children>0, sort=-title", DefaultOptions())
			done <- err
		}()
	}
	for i := 0; i < 8; i++ {
		assert.NoError(t, <-done)
	}
}
