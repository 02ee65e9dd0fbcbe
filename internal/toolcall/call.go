package toolcall

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Call is one parsed function call from the bracket grammar:
// [name(key=value, ...)]. Args values are JSON-shaped: string, float64,
// bool, nil, []any, map[string]any.
type Call struct {
	Name string
	Args map[string]any
	Keys []string // argument order as written
}

// ParseCalls decodes a bracket-call list. The whole input must be a
// single well-formed list; anything else is an error for the editor to
// repair.
func ParseCalls(s string) ([]Call, error) {
	p := &parser{in: strings.TrimSpace(s)}
	calls, err := p.parseList()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos != len(p.in) {
		return nil, p.errorf("trailing input after call list")
	}
	if len(calls) == 0 {
		return nil, p.errorf("empty call list")
	}
	return calls, nil
}

// Render encodes calls back into the canonical bracket form. Map values
// render with sorted keys so output is deterministic.
func Render(calls []Call) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, c := range calls {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(c.Name)
		b.WriteByte('(')
		for j, k := range c.Keys {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(k)
			b.WriteByte('=')
			renderValue(&b, c.Args[k])
		}
		b.WriteByte(')')
	}
	b.WriteByte(']')
	return b.String()
}

func renderValue(b *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		b.WriteString("None")
	case bool:
		if x {
			b.WriteString("True")
		} else {
			b.WriteString("False")
		}
	case float64:
		b.WriteString(strconv.FormatFloat(x, 'g', -1, 64))
	case string:
		b.WriteString(strconv.Quote(x))
	case []any:
		b.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				b.WriteString(", ")
			}
			renderValue(b, e)
		}
		b.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(strconv.Quote(k))
			b.WriteString(": ")
			renderValue(b, x[k])
		}
		b.WriteByte('}')
	default:
		fmt.Fprintf(b, "%v", x)
	}
}

type parser struct {
	in  string
	pos int
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("call parse at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) skipSpace() {
	for p.pos < len(p.in) && unicode.IsSpace(rune(p.in[p.pos])) {
		p.pos++
	}
}

func (p *parser) expect(c byte) error {
	p.skipSpace()
	if p.pos >= len(p.in) || p.in[p.pos] != c {
		return p.errorf("expected %q", string(c))
	}
	p.pos++
	return nil
}

func (p *parser) peek() (byte, bool) {
	p.skipSpace()
	if p.pos >= len(p.in) {
		return 0, false
	}
	return p.in[p.pos], true
}

func (p *parser) parseList() ([]Call, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	var calls []Call
	for {
		if c, ok := p.peek(); ok && c == ']' {
			p.pos++
			return calls, nil
		}
		call, err := p.parseCall()
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
		c, ok := p.peek()
		if !ok {
			return nil, p.errorf("unterminated call list")
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c == ']' {
			p.pos++
			return calls, nil
		}
		return nil, p.errorf("expected ',' or ']' after call")
	}
}

func (p *parser) parseCall() (Call, error) {
	name, err := p.parseIdent()
	if err != nil {
		return Call{}, err
	}
	if err := p.expect('('); err != nil {
		return Call{}, err
	}
	call := Call{Name: name, Args: map[string]any{}}
	for {
		c, ok := p.peek()
		if !ok {
			return Call{}, p.errorf("unterminated argument list")
		}
		if c == ')' {
			p.pos++
			return call, nil
		}
		key, err := p.parseIdent()
		if err != nil {
			return Call{}, err
		}
		if err := p.expect('='); err != nil {
			return Call{}, err
		}
		val, err := p.parseValue()
		if err != nil {
			return Call{}, err
		}
		if _, dup := call.Args[key]; dup {
			return Call{}, p.errorf("duplicate argument %q", key)
		}
		call.Args[key] = val
		call.Keys = append(call.Keys, key)

		c, ok = p.peek()
		if !ok {
			return Call{}, p.errorf("unterminated argument list")
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c != ')' {
			return Call{}, p.errorf("expected ',' or ')' after argument")
		}
	}
}

func (p *parser) parseIdent() (string, error) {
	p.skipSpace()
	start := p.pos
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		if c == '_' || c == '.' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') ||
			(p.pos > start && c >= '0' && c <= '9') {
			p.pos++
			continue
		}
		break
	}
	if p.pos == start {
		return "", p.errorf("expected identifier")
	}
	return p.in[start:p.pos], nil
}

func (p *parser) parseValue() (any, error) {
	c, ok := p.peek()
	if !ok {
		return nil, p.errorf("expected value")
	}
	switch {
	case c == '"' || c == '\'':
		return p.parseString(c)
	case c == '[':
		return p.parseArray()
	case c == '{':
		return p.parseMap()
	case c == '-' || (c >= '0' && c <= '9'):
		return p.parseNumber()
	default:
		return p.parseWord()
	}
}

func (p *parser) parseString(quote byte) (string, error) {
	p.pos++ // opening quote
	var b strings.Builder
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		switch c {
		case quote:
			p.pos++
			return b.String(), nil
		case '\\':
			if p.pos+1 >= len(p.in) {
				return "", p.errorf("dangling escape")
			}
			next := p.in[p.pos+1]
			switch next {
			case 'n':
				b.WriteByte('\n')
			case 't':
				b.WriteByte('\t')
			case '\\', '\'', '"':
				b.WriteByte(next)
			default:
				b.WriteByte('\\')
				b.WriteByte(next)
			}
			p.pos += 2
		default:
			b.WriteByte(c)
			p.pos++
		}
	}
	return "", p.errorf("unterminated string")
}

func (p *parser) parseNumber() (float64, error) {
	start := p.pos
	if p.in[p.pos] == '-' {
		p.pos++
	}
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' ||
			((c == '+' || c == '-') && (p.in[p.pos-1] == 'e' || p.in[p.pos-1] == 'E')) {
			p.pos++
			continue
		}
		break
	}
	n, err := strconv.ParseFloat(p.in[start:p.pos], 64)
	if err != nil {
		return 0, p.errorf("bad number %q", p.in[start:p.pos])
	}
	return n, nil
}

func (p *parser) parseWord() (any, error) {
	start := p.pos
	for p.pos < len(p.in) {
		c := p.in[p.pos]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			p.pos++
			continue
		}
		break
	}
	switch word := p.in[start:p.pos]; word {
	case "true", "True":
		return true, nil
	case "false", "False":
		return false, nil
	case "null", "None":
		return nil, nil
	default:
		return nil, p.errorf("unexpected token %q", word)
	}
}

func (p *parser) parseArray() ([]any, error) {
	p.pos++ // '['
	arr := []any{}
	for {
		c, ok := p.peek()
		if !ok {
			return nil, p.errorf("unterminated array")
		}
		if c == ']' {
			p.pos++
			return arr, nil
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
		c, ok = p.peek()
		if !ok {
			return nil, p.errorf("unterminated array")
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c != ']' {
			return nil, p.errorf("expected ',' or ']' in array")
		}
	}
}

func (p *parser) parseMap() (map[string]any, error) {
	p.pos++ // '{'
	m := map[string]any{}
	for {
		c, ok := p.peek()
		if !ok {
			return nil, p.errorf("unterminated map")
		}
		if c == '}' {
			p.pos++
			return m, nil
		}
		if c != '"' && c != '\'' {
			return nil, p.errorf("map key must be a string")
		}
		key, err := p.parseString(c)
		if err != nil {
			return nil, err
		}
		if err := p.expect(':'); err != nil {
			return nil, err
		}
		v, err := p.parseValue()
		if err != nil {
			return nil, err
		}
		m[key] = v
		c, ok = p.peek()
		if !ok {
			return nil, p.errorf("unterminated map")
		}
		if c == ',' {
			p.pos++
			continue
		}
		if c != '}' {
			return nil, p.errorf("expected ',' or '}' in map")
		}
	}
}
