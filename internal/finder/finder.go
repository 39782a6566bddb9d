// Package finder compiles selectors into a single SQL query over the page
// tree and runs it.
package finder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/atlekbai/treefinder/internal/access"
	"github.com/atlekbai/treefinder/internal/db"
	"github.com/atlekbai/treefinder/internal/logger"
	"github.com/atlekbai/treefinder/internal/metrics"
	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/schema"
	"github.com/atlekbai/treefinder/internal/selector"
)

// RootID is the id of the root page.
const RootID = 1

// Config tunes a Finder.
type Config struct {
	// MaxDepth bounds how deeply embedded selectors may nest.
	MaxDepth int
	// LanguagePageNames enables per-language page names (name<langID>).
	LanguagePageNames bool
	// Externals resolves names that are not fields, such as "user" or
	// "user.name", to a value clauses can be evaluated against.
	Externals func(name string) (string, bool)
	Logger    *slog.Logger
}

// Finder compiles and runs selectors. It holds no per-find state and is
// safe for concurrent use.
type Finder struct {
	reg *schema.Registry
	db  db.Querier
	acl *access.Filter
	cfg Config
	log *slog.Logger
}

// New returns a Finder. acl may be nil to disable access filtering.
func New(reg *schema.Registry, q db.Querier, acl *access.Filter, cfg Config) *Finder {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 16
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Get()
	}
	return &Finder{reg: reg, db: q, acl: acl, cfg: cfg, log: log}
}

// Match is one verbose result row.
type Match struct {
	ID         int64   `json:"id"`
	ParentID   int64   `json:"parent_id"`
	TemplateID int64   `json:"templates_id"`
	Score      float64 `json:"score"`
}

// Result is the outcome of a find.
type Result struct {
	Matches []Match `json:"matches,omitempty"`
	IDs     []int64 `json:"ids"`
	Total   int     `json:"total"`
	Start   int     `json:"start"`
	Limit   int     `json:"limit"`
	// ParentID and TemplateID are set when the selector pinned a single
	// parent or template with "=".
	ParentID   int64   `json:"parent_id,omitempty"`
	TemplateID int64   `json:"templates_id,omitempty"`
	Options    Options `json:"options"`
}

// Compiled is a rendered find.
type Compiled struct {
	SQL       string
	Args      []any
	CountSQL  string
	CountArgs []any

	Start      int
	Limit      int
	ParentID   int64
	TemplateID int64
	Options    Options
	GetTotal   bool
	TotalType  TotalType
}

// Find returns the pages matching sels.
func (f *Finder) Find(ctx context.Context, sels selector.Selectors, opts Options) (*Result, error) {
	return f.find(ctx, sels, opts, 0)
}

// FindIDs returns only the ids of the pages matching sels.
func (f *Finder) FindIDs(ctx context.Context, sels selector.Selectors, opts Options) ([]int64, error) {
	opts.ReturnVerbose = false
	res, err := f.find(ctx, sels, opts, 0)
	if err != nil {
		return nil, err
	}
	return res.IDs, nil
}

// FindString parses s and finds the matching pages.
func (f *Finder) FindString(ctx context.Context, s string, opts Options) (*Result, error) {
	sels, err := selector.Parse(s)
	if err != nil {
		metrics.FindsTotal.WithLabelValues("syntax_error").Inc()
		return nil, &SyntaxError{Msg: err.Error(), Err: err}
	}
	return f.find(ctx, sels, opts, 0)
}

// Compile renders sels without running the row query. Embedded selectors
// are still resolved, which runs their nested finds.
func (f *Finder) Compile(ctx context.Context, sels selector.Selectors, opts Options) (*Compiled, error) {
	c, err := f.compile(ctx, sels, opts, 0)
	if err != nil {
		return nil, err
	}
	return c.render()
}

func (f *Finder) compile(ctx context.Context, in selector.Selectors, opts Options, depth int) (*compilation, error) {
	if depth > f.cfg.MaxDepth {
		return nil, &SyntaxError{Msg: ErrDepthExceeded.Error(), Err: ErrDepthExceeded}
	}
	sels, s := f.normalize(in, opts)
	c := newCompilation(ctx, f, sels, s, depth)
	if err := c.run(); err != nil {
		return nil, err
	}
	if f.log.Enabled(ctx, slog.LevelDebug) {
		c.q.Comment = "selector: " + sels.String()
	}
	return c, nil
}

func (f *Finder) find(ctx context.Context, sels selector.Selectors, opts Options, depth int) (*Result, error) {
	began := time.Now()
	findID := uuid.NewString()
	log := f.log.With("find_id", findID, "depth", depth)
	if rid := logger.RequestID(ctx); rid != "" {
		log = log.With("request_id", rid)
	}
	if depth > 0 {
		metrics.NestedFindsTotal.Inc()
	}

	c, err := f.compile(ctx, sels, opts, depth)
	if err != nil {
		var se *SyntaxError
		if errors.As(err, &se) {
			metrics.FindsTotal.WithLabelValues("syntax_error").Inc()
		}
		return nil, err
	}
	comp, err := c.render()
	if err != nil {
		return nil, err
	}

	res, err := f.execute(ctx, comp)
	if err != nil {
		metrics.FindsTotal.WithLabelValues("execution_error").Inc()
		log.Error("find failed", "selector", sels.String(), "sql", comp.SQL, "error", err)
		return nil, err
	}
	metrics.FindsTotal.WithLabelValues("ok").Inc()

	elapsed := time.Since(began)
	if depth == 0 {
		mode := "off"
		if comp.GetTotal {
			mode = string(comp.TotalType)
		}
		metrics.FindDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
	}
	log.Debug("find",
		"selector", sels.String(),
		"rows", len(res.IDs),
		"total", res.Total,
		"duration", elapsed,
	)
	return res, nil
}

func (c *compilation) render() (*Compiled, error) {
	comp := &Compiled{
		Start:      c.start,
		Limit:      c.limit,
		ParentID:   c.parentID,
		TemplateID: c.templateID,
		Options:    c.opts,
		GetTotal:   c.getTotal,
		TotalType:  c.totalType,
	}
	var err error
	if comp.SQL, comp.Args, err = c.q.Render(); err != nil {
		return nil, err
	}
	if c.getTotal {
		if comp.CountSQL, comp.CountArgs, err = c.q.RenderCount(); err != nil {
			return nil, err
		}
	}
	return comp, nil
}

func (f *Finder) execute(ctx context.Context, comp *Compiled) (*Result, error) {
	res := &Result{
		IDs:        []int64{},
		Start:      comp.Start,
		Limit:      comp.Limit,
		ParentID:   comp.ParentID,
		TemplateID: comp.TemplateID,
		Options:    comp.Options,
	}

	opts := comp.Options
	calc := comp.GetTotal && comp.TotalType == TotalCalc

	var (
		scanned  int
		windowed = -1
	)
	if opts.LoadPages || calc {
		rows, err := f.db.Query(ctx, comp.SQL, comp.Args...)
		metrics.QueriesTotal.WithLabelValues("rows").Inc()
		if err != nil {
			return nil, &ExecutionError{SQL: comp.SQL, Err: err}
		}
		matches, total, err := scanMatches(rows)
		if err != nil {
			return nil, &ExecutionError{SQL: comp.SQL, Err: err}
		}
		scanned, windowed = len(matches), total
		if opts.LoadPages {
			for _, m := range matches {
				res.IDs = append(res.IDs, m.ID)
			}
			if opts.ReturnVerbose {
				res.Matches = matches
			}
		}
	}

	switch {
	case !comp.GetTotal:
		res.Total = len(res.IDs)
	case calc && comp.Limit == 0:
		res.Total = scanned
	case calc && windowed >= 0:
		res.Total = windowed
	case calc && comp.Start == 0:
		res.Total = 0
	default:
		// count mode, or a calc find paged past the last row
		n, err := f.count(ctx, comp)
		if err != nil {
			return nil, err
		}
		res.Total = n
	}
	return res, nil
}

func (f *Finder) count(ctx context.Context, comp *Compiled) (int, error) {
	rows, err := f.db.Query(ctx, comp.CountSQL, comp.CountArgs...)
	metrics.QueriesTotal.WithLabelValues("count").Inc()
	if err != nil {
		return 0, &ExecutionError{SQL: comp.CountSQL, Err: err}
	}
	defer rows.Close()
	var n int64
	if rows.Next() {
		if err := rows.Scan(&n); err != nil {
			return 0, &ExecutionError{SQL: comp.CountSQL, Err: err}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, &ExecutionError{SQL: comp.CountSQL, Err: err}
	}
	return int(n), nil
}

// columns selected for every find
var (
	idColumn      = query.BaseTable + ".id"
	verboseColumn = []string{query.BaseTable + ".parent_id", query.BaseTable + ".templates_id"}
)
