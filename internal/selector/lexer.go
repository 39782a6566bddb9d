package selector

import (
	"fmt"
	"strings"
	"unicode"
)

// ParseError reports a malformed selector string.
type ParseError struct {
	Pos int
	Msg string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("selector error at position %d: %s", e.Pos, e.Msg)
}

// lexer scans selector text. Unlike a token stream, what a run of characters
// means depends on where we are in a clause (field list, operator, value), so
// the parser drives it through the read* methods.
type lexer struct {
	input []rune
	pos   int
}

func newLexer(input string) *lexer {
	return &lexer{input: []rune(input)}
}

func (l *lexer) eof() bool { return l.pos >= len(l.input) }

func (l *lexer) peek() rune {
	if l.eof() {
		return 0
	}
	return l.input[l.pos]
}

func (l *lexer) peekAt(offset int) rune {
	if l.pos+offset >= len(l.input) {
		return 0
	}
	return l.input[l.pos+offset]
}

func (l *lexer) skipWhitespace() {
	for l.pos < len(l.input) && unicode.IsSpace(l.input[l.pos]) {
		l.pos++
	}
}

// readName reads a field name: letters, digits, '_', '.' and a leading '@'.
func (l *lexer) readName() (string, error) {
	l.skipWhitespace()
	start := l.pos
	for l.pos < len(l.input) && isNameChar(l.input[l.pos], l.pos == start) {
		l.pos++
	}
	if start == l.pos {
		if l.eof() {
			return "", l.errorf(l.pos, "expected field name, got end of selector")
		}
		return "", l.errorf(l.pos, "expected field name, got %q", l.input[l.pos])
	}
	return string(l.input[start:l.pos]), nil
}

// readOperator reads the longest run of operator characters.
func (l *lexer) readOperator() (Operator, error) {
	l.skipWhitespace()
	start := l.pos
	for l.pos < len(l.input) && isOpChar(l.input[l.pos]) {
		l.pos++
	}
	if start == l.pos {
		if l.eof() {
			return "", l.errorf(l.pos, "expected operator, got end of selector")
		}
		return "", l.errorf(l.pos, "expected operator, got %q", l.input[l.pos])
	}
	op := Operator(l.input[start:l.pos])
	if !op.IsValid() {
		return "", l.errorf(start, "unknown operator %q", op)
	}
	return op, nil
}

// readValue reads one value and reports the quote style it used.
func (l *lexer) readValue() (string, rune, error) {
	l.skipWhitespace()
	switch ch := l.peek(); ch {
	case '"', '\'':
		s, err := l.readQuoted(ch)
		return s, ch, err
	case '[':
		s, err := l.readBracketed()
		return s, '[', err
	}
	start := l.pos
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == ',' || ch == '|' {
			break
		}
		l.pos++
	}
	return strings.TrimSpace(string(l.input[start:l.pos])), 0, nil
}

func (l *lexer) readQuoted(quote rune) (string, error) {
	pos := l.pos
	l.pos++ // opening quote
	var b strings.Builder
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		if ch == '\\' && l.pos+1 < len(l.input) {
			b.WriteRune(l.input[l.pos+1])
			l.pos += 2
			continue
		}
		if ch == quote {
			l.pos++
			return b.String(), nil
		}
		b.WriteRune(ch)
		l.pos++
	}
	return "", l.errorf(pos, "unterminated quoted value")
}

// readBracketed reads an embedded selector up to the matching ']'.
func (l *lexer) readBracketed() (string, error) {
	pos := l.pos
	l.pos++ // [
	start := l.pos
	depth := 1
	var quote rune
	for l.pos < len(l.input) {
		ch := l.input[l.pos]
		switch {
		case quote != 0:
			if ch == '\\' {
				l.pos++
			} else if ch == quote {
				quote = 0
			}
		case ch == '"' || ch == '\'':
			quote = ch
		case ch == '[':
			depth++
		case ch == ']':
			depth--
			if depth == 0 {
				s := string(l.input[start:l.pos])
				l.pos++
				return strings.TrimSpace(s), nil
			}
		}
		l.pos++
	}
	return "", l.errorf(pos, "unterminated embedded selector")
}

func (l *lexer) errorf(pos int, format string, args ...any) error {
	return &ParseError{Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func isNameChar(ch rune, first bool) bool {
	if first && ch == '@' {
		return true
	}
	return unicode.IsLetter(ch) || unicode.IsDigit(ch) || ch == '_' || ch == '.'
}
