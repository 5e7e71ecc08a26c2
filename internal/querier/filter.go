package querier

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidFilter = errors.New("invalid filter")

const (
	maxFilterLength = 4096
	maxFilterDepth  = 32
)

// FilterError reports a malformed filter expression. Pos is the 1-based character
// offset of the offending token.
type FilterError struct {
	Pos int
	Msg string
}

func (e *FilterError) Error() string {
	return fmt.Sprintf("%s at position %d", e.Msg, e.Pos)
}

func (e *FilterError) Unwrap() error {
	return ErrInvalidFilter
}

type columnKind int

const (
	textColumn columnKind = iota
	numberColumn
	// channelColumn is stored as text but compares numerically against number literals.
	channelColumn
)

// filterColumns are the sensor reading columns a filter may reference.
var filterColumns = map[string]columnKind{
	"device_id": textColumn,
	"sensor_id": textColumn,
	"name":      textColumn,
	"type":      textColumn,
	"unit":      textColumn,
	"channel":   channelColumn,
	"value":     numberColumn,
	"ts":        numberColumn,
}

// FilterColumns lists the columns accepted by ParseFilter.
func FilterColumns() []string {
	return []string{"device_id", "sensor_id", "name", "type", "value", "unit", "channel", "ts"}
}

// Condition is one column/operator/value comparison of a filter.
type Condition struct {
	Column string
	Op     string
	Values []any
}

// Filter is a parsed filter expression compiled to a parameterized predicate over the
// sensor_readings table aliased as sr.
type Filter struct {
	SQL        string
	Args       []any
	Conditions []Condition
}

// ParseFilter parses a boolean filter over sensor readings, for example
//
//	type = 'temp' AND value > 30
//	(channel IN ('3', '4') OR name LIKE 'Temp%') AND NOT unit IS NULL
//	channel > 5
//
// Conditions compare one column against literals with =, !=, <>, <, <=, >, >=, LIKE,
// ILIKE, IN (...) or IS [NOT] NULL, and combine with AND, OR, NOT and parentheses.
// Strings are single-quoted with '' as the escape for a quote. Keywords and column
// names are case-insensitive. Literals are always bound as parameters. A number compared
// with channel compares the channel numerically; a string compares it as text.
func ParseFilter(expr string) (*Filter, error) {
	if len(expr) > maxFilterLength {
		return nil, &FilterError{Pos: maxFilterLength, Msg: fmt.Sprintf("filter longer than %d characters", maxFilterLength)}
	}
	toks, err := lex(expr)
	if err != nil {
		return nil, err
	}
	p := &filterParser{toks: toks}
	if p.peek().kind == tokEOF {
		return nil, &FilterError{Pos: 1, Msg: "empty filter"}
	}

	var b strings.Builder
	if err := p.parseOr(&b, 0); err != nil {
		return nil, err
	}
	if t := p.peek(); t.kind != tokEOF {
		return nil, &FilterError{Pos: t.pos, Msg: fmt.Sprintf("unexpected %s", t)}
	}
	return &Filter{SQL: b.String(), Args: p.args, Conditions: p.conds}, nil
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokIdent
	tokString
	tokNumber
	tokOp
	tokLParen
	tokRParen
	tokComma
)

type token struct {
	kind tokenKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of filter"
	case tokString:
		return fmt.Sprintf("string '%s'", t.text)
	default:
		return fmt.Sprintf("%q", t.text)
	}
}

func (t token) keyword(kw string) bool {
	return t.kind == tokIdent && strings.EqualFold(t.text, kw)
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func lex(s string) ([]token, error) {
	var toks []token
	i := 0
	for i < len(s) {
		c := s[i]
		start := i
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{tokLParen, "(", start + 1})
			i++
		case c == ')':
			toks = append(toks, token{tokRParen, ")", start + 1})
			i++
		case c == ',':
			toks = append(toks, token{tokComma, ",", start + 1})
			i++
		case c == '\'':
			var b strings.Builder
			i++
			for {
				if i >= len(s) {
					return nil, &FilterError{Pos: start + 1, Msg: "unterminated string"}
				}
				if s[i] == '\'' {
					if i+1 < len(s) && s[i+1] == '\'' {
						b.WriteByte('\'')
						i += 2
						continue
					}
					i++
					break
				}
				b.WriteByte(s[i])
				i++
			}
			toks = append(toks, token{tokString, b.String(), start + 1})
		case isDigit(c) || ((c == '-' || c == '+' || c == '.') && i+1 < len(s) && (isDigit(s[i+1]) || s[i+1] == '.')):
			i++
			for i < len(s) && (isDigit(s[i]) || s[i] == '.' || s[i] == 'e' || s[i] == 'E' ||
				((s[i] == '-' || s[i] == '+') && (s[i-1] == 'e' || s[i-1] == 'E'))) {
				i++
			}
			text := s[start:i]
			if _, err := strconv.ParseFloat(text, 64); err != nil {
				return nil, &FilterError{Pos: start + 1, Msg: fmt.Sprintf("invalid number %q", text)}
			}
			toks = append(toks, token{tokNumber, text, start + 1})
		case isIdentStart(c):
			for i < len(s) && (isIdentStart(s[i]) || isDigit(s[i])) {
				i++
			}
			toks = append(toks, token{tokIdent, s[start:i], start + 1})
		case c == '=':
			toks = append(toks, token{tokOp, "=", start + 1})
			i++
		case c == '!' || c == '<' || c == '>':
			op := string(c)
			if i+1 < len(s) && (s[i+1] == '=' || (c == '<' && s[i+1] == '>')) {
				op += string(s[i+1])
			}
			if op == "!" {
				return nil, &FilterError{Pos: start + 1, Msg: `unexpected "!"`}
			}
			toks = append(toks, token{tokOp, op, start + 1})
			i += len(op)
		default:
			return nil, &FilterError{Pos: start + 1, Msg: fmt.Sprintf("unexpected character %q", c)}
		}
	}
	return append(toks, token{kind: tokEOF, pos: len(s) + 1}), nil
}

type filterParser struct {
	toks  []token
	i     int
	args  []any
	conds []Condition
}

func (p *filterParser) peek() token {
	return p.toks[p.i]
}

func (p *filterParser) next() token {
	t := p.toks[p.i]
	if t.kind != tokEOF {
		p.i++
	}
	return t
}

func (p *filterParser) parseOr(b *strings.Builder, depth int) error {
	if depth > maxFilterDepth {
		return &FilterError{Pos: p.peek().pos, Msg: "filter nested too deeply"}
	}
	b.WriteByte('(')
	if err := p.parseAnd(b, depth); err != nil {
		return err
	}
	for p.peek().keyword("OR") {
		p.next()
		b.WriteString(" OR ")
		if err := p.parseAnd(b, depth); err != nil {
			return err
		}
	}
	b.WriteByte(')')
	return nil
}

func (p *filterParser) parseAnd(b *strings.Builder, depth int) error {
	if err := p.parseUnary(b, depth); err != nil {
		return err
	}
	for p.peek().keyword("AND") {
		p.next()
		b.WriteString(" AND ")
		if err := p.parseUnary(b, depth); err != nil {
			return err
		}
	}
	return nil
}

func (p *filterParser) parseUnary(b *strings.Builder, depth int) error {
	t := p.peek()
	switch {
	case t.keyword("NOT"):
		if depth+1 > maxFilterDepth {
			return &FilterError{Pos: t.pos, Msg: "filter nested too deeply"}
		}
		p.next()
		b.WriteString("NOT ")
		return p.parseUnary(b, depth+1)
	case t.kind == tokLParen:
		p.next()
		if err := p.parseOr(b, depth+1); err != nil {
			return err
		}
		if r := p.next(); r.kind != tokRParen {
			return &FilterError{Pos: r.pos, Msg: fmt.Sprintf("expected \")\" but found %s", r)}
		}
		return nil
	default:
		return p.parseCondition(b)
	}
}

func (p *filterParser) parseCondition(b *strings.Builder) error {
	colTok := p.next()
	if colTok.kind != tokIdent {
		return &FilterError{Pos: colTok.pos, Msg: fmt.Sprintf("expected a column name but found %s", colTok)}
	}
	column := strings.ToLower(colTok.text)
	kind, ok := filterColumns[column]
	if !ok {
		return &FilterError{Pos: colTok.pos, Msg: fmt.Sprintf("unknown column %q (available: %s)", colTok.text, strings.Join(FilterColumns(), ", "))}
	}

	opTok := p.next()
	var op string
	switch {
	case opTok.kind == tokOp:
		op = opTok.text
		if op == "!=" {
			op = "<>"
		}
	case opTok.keyword("LIKE"), opTok.keyword("ILIKE"):
		if kind == numberColumn {
			return &FilterError{Pos: opTok.pos, Msg: fmt.Sprintf("%s cannot be used with numeric column %s", strings.ToUpper(opTok.text), column)}
		}
		op = strings.ToUpper(opTok.text)
	case opTok.keyword("IN"):
		return p.parseIn(b, column, kind)
	case opTok.keyword("IS"):
		return p.parseIsNull(b, column)
	default:
		return &FilterError{Pos: opTok.pos, Msg: fmt.Sprintf("expected an operator after %s but found %s", column, opTok)}
	}

	v, err := p.literal(kind, column)
	if err != nil {
		return err
	}
	p.args = append(p.args, v)
	p.conds = append(p.conds, Condition{Column: column, Op: op, Values: []any{v}})
	if _, numeric := v.(float64); numeric && kind == channelColumn {
		fmt.Fprintf(b, "TRY_CAST(sr.%s AS DOUBLE) %s ?", column, op)
		return nil
	}
	fmt.Fprintf(b, "sr.%s %s ?", column, op)
	return nil
}

func (p *filterParser) parseIn(b *strings.Builder, column string, kind columnKind) error {
	if t := p.next(); t.kind != tokLParen {
		return &FilterError{Pos: t.pos, Msg: fmt.Sprintf("expected \"(\" after IN but found %s", t)}
	}
	var values []any
	for {
		v, err := p.literal(kind, column)
		if err != nil {
			return err
		}
		values = append(values, v)
		t := p.next()
		if t.kind == tokRParen {
			break
		}
		if t.kind != tokComma {
			return &FilterError{Pos: t.pos, Msg: fmt.Sprintf("expected \",\" or \")\" but found %s", t)}
		}
	}
	target := "sr." + column
	if kind == channelColumn {
		target = channelInTarget(column, values)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	fmt.Fprintf(b, "%s IN (%s)", target, placeholders)
	p.args = append(p.args, values...)
	p.conds = append(p.conds, Condition{Column: column, Op: "IN", Values: values})
	return nil
}

// channelInTarget compares the channel numerically when every listed value is a number.
// A mixed list compares as text, with numbers rewritten in their shortest form.
func channelInTarget(column string, values []any) string {
	numeric := true
	for _, v := range values {
		if _, ok := v.(float64); !ok {
			numeric = false
		}
	}
	if numeric {
		return "TRY_CAST(sr." + column + " AS DOUBLE)"
	}
	for i, v := range values {
		if f, ok := v.(float64); ok {
			values[i] = strconv.FormatFloat(f, 'f', -1, 64)
		}
	}
	return "sr." + column
}

func (p *filterParser) parseIsNull(b *strings.Builder, column string) error {
	op := "IS NULL"
	t := p.next()
	if t.keyword("NOT") {
		op = "IS NOT NULL"
		t = p.next()
	}
	if !t.keyword("NULL") {
		return &FilterError{Pos: t.pos, Msg: fmt.Sprintf("expected NULL but found %s", t)}
	}
	fmt.Fprintf(b, "sr.%s %s", column, op)
	p.conds = append(p.conds, Condition{Column: column, Op: op})
	return nil
}

// literal reads a value and converts it to the column's type. Numbers compared against
// text columns are matched by their text; against channel they stay numeric.
func (p *filterParser) literal(kind columnKind, column string) (any, error) {
	t := p.next()
	switch t.kind {
	case tokString:
		if kind != numberColumn {
			return t.text, nil
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(t.text), 64)
		if err != nil {
			return nil, &FilterError{Pos: t.pos, Msg: fmt.Sprintf("column %s expects a number but found %s", column, t)}
		}
		return f, nil
	case tokNumber:
		switch kind {
		case textColumn:
			return t.text, nil
		case channelColumn:
			f, _ := strconv.ParseFloat(t.text, 64)
			return f, nil
		}
		if n, err := strconv.ParseInt(t.text, 10, 64); err == nil {
			return n, nil
		}
		f, _ := strconv.ParseFloat(t.text, 64)
		return f, nil
	default:
		return nil, &FilterError{Pos: t.pos, Msg: fmt.Sprintf("expected a value but found %s", t)}
	}
}
