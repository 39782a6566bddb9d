package selector

import "strings"

// Parse parses a selector string such as
//
//	template=article, title|summary*=go, sort=-created, limit=10
//
// into a clause sequence.
func Parse(input string) (Selectors, error) {
	p := &parser{lexer: newLexer(input)}
	var out Selectors
	for {
		p.lexer.skipWhitespace()
		if p.lexer.eof() {
			break
		}
		c, err := p.parseClause()
		if err != nil {
			return nil, err
		}
		out = append(out, c)

		p.lexer.skipWhitespace()
		if p.lexer.eof() {
			break
		}
		if ch := p.lexer.peek(); ch != ',' {
			return nil, p.lexer.errorf(p.lexer.pos, "unexpected %q, expected ',' or end of selector", ch)
		}
		p.lexer.pos++ // ,
	}
	return out, nil
}

// MustParse is Parse for static selectors; it panics on error.
func MustParse(input string) Selectors {
	s, err := Parse(input)
	if err != nil {
		panic(err)
	}
	return s
}

// HasSelector reports whether s reads as a selector rather than a plain value.
func HasSelector(s string) bool {
	if !strings.ContainsAny(s, "=<>&") {
		return false
	}
	sels, err := Parse(s)
	return err == nil && len(sels) > 0
}

type parser struct {
	lexer *lexer
}

// parseClause: ["!"] name {"|" name} operator value {"|" value}
func (p *parser) parseClause() (Clause, error) {
	var c Clause
	l := p.lexer

	l.skipWhitespace()
	if l.peek() == '!' && l.peekAt(1) != '=' {
		c.Not = true
		l.pos++
	}

	for {
		name, err := l.readName()
		if err != nil {
			return Clause{}, err
		}
		if strings.HasPrefix(name, "@") {
			name = name[1:]
			if name == "" {
				return Clause{}, l.errorf(l.pos, "expected field name after '@'")
			}
			if c.Group == "" {
				c.Group, _ = SplitField(name)
			}
		}
		c.Fields = append(c.Fields, name)

		l.skipWhitespace()
		if l.peek() != '|' {
			break
		}
		l.pos++
	}

	op, err := l.readOperator()
	if err != nil {
		return Clause{}, err
	}
	c.Op = op

	for {
		v, quote, err := l.readValue()
		if err != nil {
			return Clause{}, err
		}
		if quote != 0 {
			c.Quote = quote
		}
		c.Values = append(c.Values, v)

		l.skipWhitespace()
		if l.peek() != '|' {
			break
		}
		l.pos++
	}
	return c, nil
}
