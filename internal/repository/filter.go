package repository

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// Operator of a filter condition.
type Operator string

const (
	OpEqual    Operator = "="
	OpNotEqual Operator = "!="
)

// Condition is a single `field op value` clause. Value is a string, float64, bool or nil.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Filter is a conjunction of conditions.
type Filter []Condition

// Eq builds an equality expression with a properly quoted string value.
func Eq(field, value string) string {
	return field + " = " + strconv.Quote(value)
}

// And joins expressions, skipping empty ones.
func And(exprs ...string) string {
	parts := make([]string, 0, len(exprs))
	for _, e := range exprs {
		if strings.TrimSpace(e) != "" {
			parts = append(parts, e)
		}
	}
	return strings.Join(parts, " && ")
}

// ParseFilter parses expressions of the form
//
//	userId = "42" && completed = false && duration != 30
//
// An empty expression yields an empty filter.
func ParseFilter(expr string) (Filter, error) {
	p := &filterParser{src: expr}
	var out Filter
	p.skipSpace()
	if p.done() {
		return out, nil
	}
	for {
		cond, err := p.condition()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
		}
		out = append(out, cond)
		p.skipSpace()
		if p.done() {
			return out, nil
		}
		if !p.consume("&&") {
			return nil, fmt.Errorf("%w: expected && at offset %d", ErrInvalidFilter, p.pos)
		}
	}
}

type filterParser struct {
	src string
	pos int
}

func (p *filterParser) done() bool { return p.pos >= len(p.src) }

func (p *filterParser) skipSpace() {
	for !p.done() && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
}

func (p *filterParser) consume(tok string) bool {
	p.skipSpace()
	if strings.HasPrefix(p.src[p.pos:], tok) {
		p.pos += len(tok)
		return true
	}
	return false
}

func (p *filterParser) condition() (Condition, error) {
	p.skipSpace()
	start := p.pos
	for !p.done() {
		c := rune(p.src[p.pos])
		if !(unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_' || c == '.') {
			break
		}
		p.pos++
	}
	field := p.src[start:p.pos]
	if field == "" {
		return Condition{}, fmt.Errorf("expected field name at offset %d", start)
	}

	var op Operator
	switch {
	case p.consume(string(OpNotEqual)):
		op = OpNotEqual
	case p.consume(string(OpEqual)):
		op = OpEqual
	default:
		return Condition{}, fmt.Errorf("expected = or != after %q", field)
	}

	value, err := p.value()
	if err != nil {
		return Condition{}, err
	}
	return Condition{Field: field, Op: op, Value: value}, nil
}

func (p *filterParser) value() (any, error) {
	p.skipSpace()
	if p.done() {
		return nil, fmt.Errorf("missing value at offset %d", p.pos)
	}

	switch quote := p.src[p.pos]; quote {
	case '"', '\'':
		end := p.pos + 1
		for end < len(p.src) && p.src[end] != quote {
			if p.src[end] == '\\' {
				end++
			}
			end++
		}
		if end >= len(p.src) {
			return nil, fmt.Errorf("unterminated string at offset %d", p.pos)
		}
		raw := p.src[p.pos+1 : end]
		p.pos = end + 1
		if quote == '\'' {
			return strings.ReplaceAll(raw, `\'`, `'`), nil
		}
		s, err := strconv.Unquote(`"` + raw + `"`)
		if err != nil {
			return nil, fmt.Errorf("bad string literal: %v", err)
		}
		return s, nil
	}

	start := p.pos
	for !p.done() && !unicode.IsSpace(rune(p.src[p.pos])) && p.src[p.pos] != '&' {
		p.pos++
	}
	word := p.src[start:p.pos]
	switch word {
	case "true":
		return true, nil
	case "false":
		return false, nil
	case "null":
		return nil, nil
	}
	n, err := strconv.ParseFloat(word, 64)
	if err != nil {
		return nil, fmt.Errorf("unsupported literal %q", word)
	}
	return n, nil
}
