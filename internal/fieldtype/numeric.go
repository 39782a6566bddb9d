package fieldtype

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/selector"
)

// Integer is a whole number field.
type Integer struct{}

func (Integer) Name() string { return "integer" }

func (Integer) BlankValue() (any, bool) { return nil, false }

func (t Integer) Match(req Request) (*query.Fragment, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(req.Value), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid integer %q", t.Name(), req.Value)
	}
	cond, ok := Compare(req.Column(), req.Op, n)
	if !ok {
		return nil, &UnsupportedError{Type: t.Name(), Op: req.Op}
	}
	return where(cond), nil
}

// Float is a decimal number field.
type Float struct{}

func (Float) Name() string { return "float" }

func (Float) BlankValue() (any, bool) { return nil, false }

func (t Float) Match(req Request) (*query.Fragment, error) {
	if req.Op == selector.OpBitwiseAnd {
		return nil, &UnsupportedError{Type: t.Name(), Op: req.Op}
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(req.Value), 64)
	if err != nil {
		return nil, fmt.Errorf("%s: invalid number %q", t.Name(), req.Value)
	}
	cond, ok := Compare(req.Column(), req.Op, f)
	if !ok {
		return nil, &UnsupportedError{Type: t.Name(), Op: req.Op}
	}
	return where(cond), nil
}

// Checkbox stores 1 when checked. An unchecked box is blank.
type Checkbox struct{}

func (Checkbox) Name() string { return "checkbox" }

func (Checkbox) BlankValue() (any, bool) { return 0, true }

func (t Checkbox) Match(req Request) (*query.Fragment, error) {
	if req.Op != selector.OpEqual && req.Op != selector.OpNotEqual {
		return nil, &UnsupportedError{Type: t.Name(), Op: req.Op}
	}
	v := 0
	switch strings.ToLower(strings.TrimSpace(req.Value)) {
	case "1", "true", "yes", "on", "checked":
		v = 1
	}
	cond, _ := Compare(req.Column(), req.Op, v)
	return where(cond), nil
}
