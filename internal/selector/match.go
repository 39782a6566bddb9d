package selector

import (
	"strconv"
	"strings"
)

// Matches evaluates the clause against an in-memory value, ignoring its
// field names. It is used when a clause names an external value rather
// than a stored field.
func (c *Clause) Matches(value string) bool {
	var matched bool
	if c.Op == OpNotEqual {
		// none of the values may be equal
		matched = true
		for _, v := range c.Values {
			if compareValues(value, v) == 0 {
				matched = false
				break
			}
		}
	} else {
		for _, v := range c.Values {
			if c.matchOne(value, v) {
				matched = true
				break
			}
		}
	}
	if c.Not {
		return !matched
	}
	return matched
}

func (c *Clause) matchOne(have, want string) bool {
	switch c.Op {
	case OpEqual:
		return compareValues(have, want) == 0
	case OpLess:
		return compareValues(have, want) < 0
	case OpLessEqual:
		return compareValues(have, want) <= 0
	case OpGreater:
		return compareValues(have, want) > 0
	case OpGreaterEqual:
		return compareValues(have, want) >= 0
	case OpContains, OpContainsLike:
		return strings.Contains(strings.ToLower(have), strings.ToLower(want))
	case OpStarts, OpStartsLike:
		return strings.HasPrefix(strings.ToLower(have), strings.ToLower(want))
	case OpEnds, OpEndsLike:
		return strings.HasSuffix(strings.ToLower(have), strings.ToLower(want))
	case OpContainsWords:
		words := strings.Fields(strings.ToLower(have))
		for _, w := range strings.Fields(strings.ToLower(want)) {
			if !containsWord(words, w) {
				return false
			}
		}
		return true
	case OpBitwiseAnd:
		a, err1 := strconv.ParseInt(have, 10, 64)
		b, err2 := strconv.ParseInt(want, 10, 64)
		return err1 == nil && err2 == nil && a&b != 0
	}
	return false
}

// compareValues compares numerically when both sides are numbers.
func compareValues(a, b string) int {
	fa, errA := strconv.ParseFloat(a, 64)
	fb, errB := strconv.ParseFloat(b, 64)
	if errA == nil && errB == nil {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

func containsWord(words []string, w string) bool {
	for _, x := range words {
		if x == w {
			return true
		}
	}
	return false
}

// IsDigits reports whether s is a non-empty run of ASCII digits.
func IsDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
