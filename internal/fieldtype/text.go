package fieldtype

import (
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/selector"
)

// Text is a single-line text field.
type Text struct{}

func (Text) Name() string { return "text" }

func (Text) BlankValue() (any, bool) { return "", true }

func (t Text) Match(req Request) (*query.Fragment, error) {
	cond, err := matchText(t.Name(), req.Column(), req.Op, req.Value)
	if err != nil {
		return nil, err
	}
	return where(cond), nil
}

func matchText(typ, col string, op selector.Operator, value string) (sq.Sqlizer, error) {
	if op == selector.OpBitwiseAnd {
		return nil, &UnsupportedError{Type: typ, Op: op}
	}
	if op == selector.OpContainsWords {
		return Words(col, value), nil
	}
	if op.IsLike() {
		return Like(col, op, value), nil
	}
	if cond, ok := Compare(col, op, value); ok {
		return cond, nil
	}
	return nil, &UnsupportedError{Type: typ, Op: op}
}

// Textarea is long text searched with PostgreSQL full text search. Full text
// operators contribute a relevance score column.
type Textarea struct{}

const tsConfig = "simple"

func (Textarea) Name() string { return "textarea" }

func (Textarea) BlankValue() (any, bool) { return "", true }

func (t Textarea) Match(req Request) (*query.Fragment, error) {
	col := req.Column()
	var tsquery string
	switch req.Op {
	case selector.OpContains:
		tsquery = "phraseto_tsquery"
	case selector.OpContainsWords:
		tsquery = "plainto_tsquery"
	default:
		cond, err := matchText(t.Name(), col, req.Op, req.Value)
		if err != nil {
			return nil, err
		}
		return where(cond), nil
	}

	vector := fmt.Sprintf("to_tsvector('%s', coalesce(%s, ''))", tsConfig, col)
	q := fmt.Sprintf("%s('%s', ?)", tsquery, tsConfig)
	score := fmt.Sprintf("_score_%s_%d", req.Alias, req.Seq)
	return &query.Fragment{
		Select: []sq.Sqlizer{sq.Expr(fmt.Sprintf("MAX(ts_rank(%s, %s)) AS %s", vector, q, query.QI(score)), req.Value)},
		Where:  []sq.Sqlizer{sq.Expr(vector+" @@ "+q, req.Value)},
	}, nil
}
