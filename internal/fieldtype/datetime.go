package fieldtype

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/atlekbai/treefinder/internal/query"
	"github.com/atlekbai/treefinder/internal/selector"
)

// Datetime is a timestamp field. Values are unix timestamps or any format
// dateparse understands.
type Datetime struct{}

func (Datetime) Name() string { return "datetime" }

func (Datetime) BlankValue() (any, bool) { return nil, false }

func (t Datetime) Match(req Request) (*query.Fragment, error) {
	if req.Op == selector.OpBitwiseAnd {
		return nil, &UnsupportedError{Type: t.Name(), Op: req.Op}
	}
	ts, err := ParseTime(req.Value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", t.Name(), err)
	}
	cond, ok := Compare(req.Column(), req.Op, ts)
	if !ok {
		return nil, &UnsupportedError{Type: t.Name(), Op: req.Op}
	}
	return where(cond), nil
}

// ParseTime reads a unix timestamp or a free-text date.
func ParseTime(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	if n, err := strconv.ParseInt(value, 10, 64); err == nil {
		return time.Unix(n, 0).UTC(), nil
	}
	ts, err := dateparse.ParseAny(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", value, err)
	}
	return ts, nil
}
