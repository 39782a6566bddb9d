package finder

import (
	"strconv"

	"github.com/atlekbai/treefinder/internal/selector"
)

// Page status bits.
const (
	StatusOn          = 1
	StatusLocked      = 4
	StatusHidden      = 1024
	StatusUnpublished = 2048
	StatusMax         = 9999999
)

var statusLabels = map[string]int{
	"hidden":      StatusHidden,
	"unpublished": StatusUnpublished,
	"locked":      StatusLocked,
	"max":         StatusMax,
}

// settings are what normalization derives from the options and the
// directive clauses.
type settings struct {
	opts        Options
	checkAccess bool
	getTotal    bool
	totalType   TotalType
}

// normalize rewrites status labels, folds directive clauses (include,
// check_access, getTotal) into settings and appends the visibility clause.
// sels is copied; the caller's clauses are not modified.
func (f *Finder) normalize(in selector.Selectors, opts Options) (selector.Selectors, settings) {
	s := settings{opts: opts, checkAccess: true}
	sels := make(selector.Selectors, 0, len(in)+3)

	maxStatus, hasStatus := 0, false
	limit, start := 0, 0

	for _, cl := range in.Clone() {
		if len(cl.Fields) != 1 {
			sels = append(sels, cl)
			continue
		}
		switch name := cl.Field(); name {
		case "status":
			symbolic := false
			for i, v := range cl.Values {
				if selector.IsDigits(v) {
					continue
				}
				symbolic = true
				n, ok := statusLabels[v]
				if !ok {
					n = StatusOn
				}
				cl.Values[i] = strconv.Itoa(n)
			}
			if symbolic && cl.Op == selector.OpEqual {
				cl.Op = selector.OpBitwiseAnd
			}
			for _, v := range cl.Values {
				n, _ := strconv.Atoi(v)
				if !hasStatus || n > maxStatus {
					maxStatus = n
				}
				hasStatus = true
			}

		case "include":
			if cl.Op == selector.OpEqual && (cl.Value() == "hidden" || cl.Value() == "all") {
				if cl.Value() == "hidden" {
					s.opts.FindHidden = true
				} else {
					s.opts.FindAll = true
				}
				continue
			}

		case "check_access", "checkAccess":
			n, _ := strconv.Atoi(cl.Value())
			s.checkAccess = n > 0
			continue

		case "limit":
			limit, _ = strconv.Atoi(cl.Value())

		case "start":
			start, _ = strconv.Atoi(cl.Value())

		case "sort":
			if !s.opts.LoadPages {
				continue
			}

		case "getTotal", "get_total":
			if _, isField := f.reg.Field(name); isField {
				break
			}
			switch v := cl.Value(); {
			case selector.IsDigits(v):
				n, _ := strconv.Atoi(v)
				s.opts.GetTotal = TotalOff
				if n > 0 {
					s.opts.GetTotal = TotalOn
				}
			case v == string(TotalCalc) || v == string(TotalCount):
				s.opts.GetTotal = TotalOn
				s.opts.GetTotalType = TotalType(v)
			}
			continue
		}
		sels = append(sels, cl)
	}

	switch {
	case hasStatus && !s.opts.FindAll:
		// explicit status filters never reach unpublished pages
		if maxStatus < StatusUnpublished {
			sels = append(sels, statusBelow(StatusUnpublished))
		}
	case s.opts.FindAll:
		sels = append(sels, statusBelow(StatusMax))
		s.checkAccess = false
	case s.opts.FindOne || s.opts.FindHidden:
		sels = append(sels, statusBelow(StatusUnpublished))
	default:
		sels = append(sels, statusBelow(StatusHidden))
	}

	total := s.opts.GetTotal
	switch {
	case s.opts.FindOne:
		sels = append(sels,
			selector.Clause{Fields: []string{"start"}, Op: selector.OpEqual, Values: []string{"0"}},
			selector.Clause{Fields: []string{"limit"}, Op: selector.OpEqual, Values: []string{"1"}},
		)
		if total == TotalAuto {
			total = TotalOff
		}
	case limit == 0 && start == 0:
		if total == TotalAuto {
			total = TotalOff
		}
	default:
		if total == TotalAuto {
			total = TotalOn
		}
	}
	s.getTotal = total == TotalOn
	s.totalType = TotalCalc
	if s.opts.GetTotalType == TotalCount {
		s.totalType = TotalCount
	}
	return sels, s
}

func statusBelow(n int) selector.Clause {
	return selector.Clause{Fields: []string{"status"}, Op: selector.OpLess, Values: []string{strconv.Itoa(n)}}
}
