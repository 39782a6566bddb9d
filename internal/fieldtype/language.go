package fieldtype

import (
	"strconv"

	sq "github.com/Masterminds/squirrel"
	"github.com/atlekbai/treefinder/internal/query"
)

// TextLanguage is text with one extra column per non-default language
// (data1012, data1013, ...). A value matches when any language matches.
type TextLanguage struct{}

func (TextLanguage) Name() string { return "textlanguage" }

func (TextLanguage) BlankValue() (any, bool) { return "", true }

func (TextLanguage) LanguageColumn(langID int) string {
	return "data" + strconv.Itoa(langID)
}

func (t TextLanguage) Match(req Request) (*query.Fragment, error) {
	cond, err := matchText(t.Name(), req.Column(), req.Op, req.Value)
	if err != nil {
		return nil, err
	}
	sub := req.Subfield
	if (sub != "" && sub != "data") || len(req.Languages) == 0 {
		return where(cond), nil
	}
	or := sq.Or{cond}
	for _, id := range req.Languages {
		c, err := matchText(t.Name(), query.Col(req.Alias, t.LanguageColumn(id)), req.Op, req.Value)
		if err != nil {
			return nil, err
		}
		or = append(or, c)
	}
	return where(or), nil
}
