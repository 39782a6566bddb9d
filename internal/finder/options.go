package finder

import (
	"context"
	"strconv"
	"strings"
)

// TotalMode selects whether a find computes the unpaginated total.
type TotalMode int

const (
	// TotalAuto computes the total only when the selector has a limit or start.
	TotalAuto TotalMode = iota
	TotalOn
	TotalOff
)

func (m TotalMode) String() string {
	switch m {
	case TotalOn:
		return "on"
	case TotalOff:
		return "off"
	}
	return "auto"
}

// TotalType selects how the total is computed.
type TotalType string

const (
	// TotalCalc reads the total from a window column on the row query.
	TotalCalc TotalType = "calc"
	// TotalCount runs a separate COUNT query.
	TotalCount TotalType = "count"
)

// Options controls one find.
type Options struct {
	FindOne       bool      `json:"findOne"`
	FindHidden    bool      `json:"findHidden"`
	FindAll       bool      `json:"findAll"`
	LoadPages     bool      `json:"loadPages"`
	ReturnVerbose bool      `json:"returnVerbose"`
	GetTotal      TotalMode `json:"-"`
	GetTotalType  TotalType `json:"getTotalType"`
}

// DefaultOptions loads verbose rows and decides the total automatically.
func DefaultOptions() Options {
	return Options{
		LoadPages:     true,
		ReturnVerbose: true,
		GetTotal:      TotalAuto,
		GetTotalType:  TotalCalc,
	}
}

// OptionsFromMap applies recognized keys over DefaultOptions. Unknown keys
// and values of the wrong type are ignored.
func OptionsFromMap(m map[string]any) Options {
	o := DefaultOptions()
	for k, v := range m {
		switch k {
		case "findOne":
			setBool(&o.FindOne, v)
		case "findHidden":
			setBool(&o.FindHidden, v)
		case "findAll":
			setBool(&o.FindAll, v)
		case "loadPages":
			setBool(&o.LoadPages, v)
		case "returnVerbose":
			setBool(&o.ReturnVerbose, v)
		case "getTotal":
			if v == nil {
				o.GetTotal = TotalAuto
				continue
			}
			var b bool
			if setBool(&b, v) {
				o.GetTotal = TotalOff
				if b {
					o.GetTotal = TotalOn
				}
			}
		case "getTotalType":
			if s, ok := v.(string); ok && TotalType(s) == TotalCount {
				o.GetTotalType = TotalCount
			} else if ok {
				o.GetTotalType = TotalCalc
			}
		}
	}
	return o
}

func setBool(dst *bool, v any) bool {
	switch x := v.(type) {
	case bool:
		*dst = x
	case int:
		*dst = x != 0
	case int64:
		*dst = x != 0
	case float64:
		*dst = x != 0
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false
		}
		*dst = b
	default:
		return false
	}
	return true
}

type pageNumKey struct{}

// WithPageNum attaches the current 1-based page number, used as the start
// offset when a selector has a limit but no start.
func WithPageNum(ctx context.Context, n int) context.Context {
	return context.WithValue(ctx, pageNumKey{}, n)
}

func pageNum(ctx context.Context) int {
	if n, ok := ctx.Value(pageNumKey{}).(int); ok && n > 0 {
		return n
	}
	return 1
}
