package selector

// Operator is the comparison operator of a clause.
type Operator string

const (
	OpEqual         Operator = "="
	OpNotEqual      Operator = "!="
	OpLess          Operator = "<"
	OpLessEqual     Operator = "<="
	OpGreater       Operator = ">"
	OpGreaterEqual  Operator = ">="
	OpContains      Operator = "*=" // phrase or substring
	OpContainsWords Operator = "~=" // every word, any order
	OpContainsLike  Operator = "%=" // LIKE %value%
	OpStarts        Operator = "^="
	OpEnds          Operator = "$="
	OpStartsLike    Operator = "%^="
	OpEndsLike      Operator = "%$="
	OpBitwiseAnd    Operator = "&"
)

var validOps = map[Operator]bool{
	OpEqual: true, OpNotEqual: true, OpLess: true, OpLessEqual: true,
	OpGreater: true, OpGreaterEqual: true, OpContains: true, OpContainsWords: true,
	OpContainsLike: true, OpStarts: true, OpEnds: true, OpStartsLike: true,
	OpEndsLike: true, OpBitwiseAnd: true,
}

// IsValid reports whether op is a known selector operator.
func (op Operator) IsValid() bool { return validOps[op] }

// IsSQL reports whether op maps directly onto a SQL comparison operator.
func (op Operator) IsSQL() bool {
	switch op {
	case OpEqual, OpNotEqual, OpLess, OpLessEqual, OpGreater, OpGreaterEqual, OpBitwiseAnd:
		return true
	}
	return false
}

// IsLike reports whether op is one of the partial-match operators translated to LIKE.
func (op Operator) IsLike() bool {
	switch op {
	case OpContains, OpContainsLike, OpStarts, OpEnds, OpStartsLike, OpEndsLike:
		return true
	}
	return false
}

// LikePattern wraps an already escaped value with the wildcards op calls for.
func (op Operator) LikePattern(escaped string) string {
	switch op {
	case OpStarts, OpStartsLike:
		return escaped + "%"
	case OpEnds, OpEndsLike:
		return "%" + escaped
	default:
		return "%" + escaped + "%"
	}
}

func isOpChar(ch rune) bool {
	switch ch {
	case '=', '!', '<', '>', '*', '~', '%', '^', '$', '&':
		return true
	}
	return false
}
