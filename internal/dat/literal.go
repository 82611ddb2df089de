package dat

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/roach88/nxcheck/internal/value"
)

// ParseLiteral parses one metadata value written as a literal: integers,
// floats, quoted strings, True, False, None, lists [..], tuples (..) and
// dicts {k: v}, nested freely. Anything else is an error; callers keep the
// raw text instead.
func ParseLiteral(s string) (value.Value, error) {
	p := &literalParser{src: s}
	p.skipSpace()
	v, err := p.parseValue()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.src) {
		return nil, p.errorf("unexpected %q", p.src[p.pos:])
	}
	return v, nil
}

type literalParser struct {
	src string
	pos int
}

func (p *literalParser) errorf(format string, args ...any) error {
	return fmt.Errorf("literal %q at offset %d: %s", p.src, p.pos, fmt.Sprintf(format, args...))
}

func (p *literalParser) skipSpace() {
	for p.pos < len(p.src) {
		switch p.src[p.pos] {
		case ' ', '\t', '\r', '\n':
			p.pos++
		default:
			return
		}
	}
}

func (p *literalParser) peek() byte {
	if p.pos < len(p.src) {
		return p.src[p.pos]
	}
	return 0
}

func (p *literalParser) parseValue() (value.Value, error) {
	switch c := p.peek(); {
	case c == 0:
		return nil, p.errorf("unexpected end of input")
	case c == '\'' || c == '"':
		return p.parseString()
	case c == '[':
		return p.parseSequence('[', ']')
	case c == '(':
		return p.parseSequence('(', ')')
	case c == '{':
		return p.parseDict()
	case c == '-' || c == '+' || c == '.' || isDigit(c):
		return p.parseNumber()
	default:
		return p.parseName()
	}
}

func (p *literalParser) parseString() (value.Value, error) {
	quote := p.src[p.pos]
	p.pos++

	var b strings.Builder
	for p.pos < len(p.src) {
		c := p.src[p.pos]
		switch {
		case c == quote:
			p.pos++
			return value.String(b.String()), nil
		case c == '\\' && p.pos+1 < len(p.src):
			p.pos++
			switch e := p.src[p.pos]; e {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case 'r':
				b.WriteByte('\r')
			case '\\', '\'', '"':
				b.WriteByte(e)
			default:
				b.WriteByte('\\')
				b.WriteByte(e)
			}
		default:
			b.WriteByte(c)
		}
		p.pos++
	}
	return nil, p.errorf("unterminated string")
}

// parseSequence parses a list or tuple; both become value.List.
func (p *literalParser) parseSequence(open, close byte) (value.Value, error) {
	p.pos++ // open
	l := value.List{}
	comma := false
	for {
		p.skipSpace()
		if p.peek() == close {
			p.pos++
			// (x) is a parenthesized value, not a tuple
			if open == '(' && len(l) == 1 && !comma {
				return l[0], nil
			}
			return l, nil
		}
		if len(l) > 0 && !comma {
			return nil, p.errorf("expected ',' or %q", close)
		}
		elem, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		l = append(l, elem)

		p.skipSpace()
		comma = p.peek() == ','
		if comma {
			p.pos++
		}
	}
}

func (p *literalParser) parseDict() (value.Value, error) {
	p.pos++ // {
	m := value.Map{}
	for {
		p.skipSpace()
		if p.peek() == '}' {
			p.pos++
			return m, nil
		}
		key, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.peek() != ':' {
			// {1, 2} is a set, which has no literal form here
			return nil, p.errorf("expected ':'")
		}
		p.pos++
		p.skipSpace()
		val, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		m[value.Format(key)] = val

		p.skipSpace()
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
			p.pos++
			return m, nil
		default:
			return nil, p.errorf("expected ',' or '}'")
		}
	}
}

func (p *literalParser) parseNumber() (value.Value, error) {
	start := p.pos
	if c := p.peek(); c == '-' || c == '+' {
		p.pos++
	}
	digits, isFloat := false, false
scan:
	for p.pos < len(p.src) {
		switch c := p.src[p.pos]; {
		case isDigit(c):
			digits = true
		case c == '.':
			isFloat = true
		case c == 'e' || c == 'E':
			isFloat = true
			if n := p.pos + 1; n < len(p.src) && (p.src[n] == '-' || p.src[n] == '+') {
				p.pos++
			}
		default:
			break scan
		}
		p.pos++
	}

	text := p.src[start:p.pos]
	if !digits {
		return nil, p.errorf("malformed number %q", text)
	}
	if !isFloat {
		if n, err := strconv.ParseInt(text, 10, 64); err == nil {
			return value.Int(n), nil
		}
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, p.errorf("malformed number %q", text)
	}
	return value.Float(f), nil
}

func (p *literalParser) parseName() (value.Value, error) {
	start := p.pos
	for p.pos < len(p.src) && isNameByte(p.src[p.pos]) {
		p.pos++
	}
	switch name := p.src[start:p.pos]; name {
	case "True":
		return value.Bool(true), nil
	case "False":
		return value.Bool(false), nil
	case "None":
		return value.Null{}, nil
	case "":
		return nil, p.errorf("unexpected %q", p.peek())
	default:
		return nil, p.errorf("unknown name %q", name)
	}
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isNameByte(c byte) bool {
	return c == '_' || isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
