// Package dbtest provides an in-memory db.Querier returning canned rows.
package dbtest

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Result is the canned answer to a query.
type Result struct {
	Columns []string
	Rows    [][]any
	Err     error
}

// Call records one query issued against the fake.
type Call struct {
	SQL  string
	Args []any
}

type rule struct {
	contains string
	result   Result
}

// Querier answers queries by matching SQL substrings. The most recently
// registered matching rule wins; unmatched queries return no rows.
type Querier struct {
	mu    sync.Mutex
	rules []rule
	calls []Call
}

// On registers a result for queries whose SQL contains substr.
func (q *Querier) On(substr string, res Result) *Querier {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rules = append(q.rules, rule{contains: substr, result: res})
	return q
}

func (q *Querier) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.calls = append(q.calls, Call{SQL: sql, Args: args})
	for i := len(q.rules) - 1; i >= 0; i-- {
		r := q.rules[i]
		if !strings.Contains(sql, r.contains) {
			continue
		}
		if r.result.Err != nil {
			return nil, r.result.Err
		}
		return NewRows(r.result.Columns, r.result.Rows...), nil
	}
	return NewRows(nil), nil
}

// Calls returns the queries issued so far.
func (q *Querier) Calls() []Call {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Call(nil), q.calls...)
}

// Rows is a pgx.Rows over in-memory values.
type Rows struct {
	columns []string
	rows    [][]any
	pos     int
	closed  bool
	err     error
}

// NewRows returns rows with the given column names.
func NewRows(columns []string, rows ...[]any) *Rows {
	return &Rows{columns: columns, rows: rows, pos: -1}
}

func (r *Rows) Close() { r.closed = true }

func (r *Rows) Err() error { return r.err }

func (r *Rows) CommandTag() pgconn.CommandTag {
	return pgconn.NewCommandTag(fmt.Sprintf("SELECT %d", len(r.rows)))
}

func (r *Rows) FieldDescriptions() []pgconn.FieldDescription {
	fds := make([]pgconn.FieldDescription, len(r.columns))
	for i, c := range r.columns {
		fds[i] = pgconn.FieldDescription{Name: c}
	}
	return fds
}

func (r *Rows) Next() bool {
	if r.closed || r.err != nil {
		return false
	}
	r.pos++
	if r.pos >= len(r.rows) {
		r.closed = true
		return false
	}
	return true
}

func (r *Rows) Scan(dest ...any) error {
	row := r.rows[r.pos]
	if len(dest) != len(row) {
		r.err = fmt.Errorf("dbtest: scan %d values into %d destinations", len(row), len(dest))
		return r.err
	}
	for i, d := range dest {
		if err := assign(d, row[i]); err != nil {
			r.err = fmt.Errorf("dbtest: column %d: %w", i, err)
			return r.err
		}
	}
	return nil
}

func (r *Rows) Values() ([]any, error) {
	return append([]any(nil), r.rows[r.pos]...), nil
}

func (r *Rows) RawValues() [][]byte { return nil }

func (r *Rows) Conn() *pgx.Conn { return nil }

func assign(dest, val any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Pointer || dv.IsNil() {
		return fmt.Errorf("destination %T is not a non-nil pointer", dest)
	}
	target := dv.Elem()
	if val == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	v := reflect.ValueOf(val)
	switch {
	case v.Type().AssignableTo(target.Type()):
		target.Set(v)
	case v.Type().ConvertibleTo(target.Type()) && v.Kind() != reflect.Slice &&
		(target.Kind() == reflect.String) == (v.Kind() == reflect.String):
		target.Set(v.Convert(target.Type()))
	default:
		return fmt.Errorf("cannot assign %T to %s", val, target.Type())
	}
	return nil
}
