package document

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/flashdb/playground/internal/engine"
)

var (
	limitPattern  = regexp.MustCompile(`\.limit\(\s*([0-9]+)\s*\)\s*;?\s*$`)
	usePattern    = regexp.MustCompile(`(?i)^\s*use\s+([A-Za-z0-9_\-]+)\s*;?\s*$`)
	callPattern   = regexp.MustCompile(`^\s*db\.([A-Za-z0-9_\-]+)\.([A-Za-z]+)\s*\(([\s\S]*)\)\s*;?\s*$`)
	numberPattern = regexp.MustCompile(`^[-+]?(\d+(\.\d*)?|\.\d+)([eE][-+]?\d+)?$`)
)

// statement is a parsed shell line: useStmt or callStmt.
type statement interface {
	isStatement()
}

type useStmt struct {
	db string
}

type callStmt struct {
	coll  string
	op    string
	args  []string
	limit int // -1 when no .limit(n) is chained
}

func (useStmt) isStatement()  {}
func (callStmt) isStatement() {}

// parseStatement recognizes `use <db>` and `db.<coll>.<op>(<args>)` with an
// optional trailing `.limit(n)`.
func parseStatement(line string) (statement, error) {
	rest := strings.TrimSpace(line)
	limit := -1
	if m := limitPattern.FindStringSubmatchIndex(rest); m != nil {
		n, err := strconv.Atoi(rest[m[2]:m[3]])
		if err == nil {
			limit = n
			rest = rest[:m[0]]
		}
	}
	if m := usePattern.FindStringSubmatch(rest); m != nil {
		return useStmt{db: m[1]}, nil
	}
	m := callPattern.FindStringSubmatch(rest)
	if m == nil {
		return nil, engine.ParseError("Unrecognized Mongo shell command. Try HELP.")
	}
	return callStmt{coll: m[1], op: m[2], args: splitArgs(m[3]), limit: limit}, nil
}

// splitArgs splits an argument list on top-level commas, respecting
// brackets and quoted strings.
func splitArgs(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		depth int
		quote rune
	)
	runes := []rune(s)
	for i := 0; i < len(runes); i++ {
		c := runes[i]
		if quote != 0 {
			cur.WriteRune(c)
			if c == '\\' && i+1 < len(runes) {
				i++
				cur.WriteRune(runes[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '"', '\'':
			quote = c
		case '{', '[', '(':
			depth++
		case '}', ']', ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(cur.String()))
				cur.Reset()
				continue
			}
		}
		cur.WriteRune(c)
	}
	if last := strings.TrimSpace(cur.String()); last != "" {
		out = append(out, last)
	}
	return out
}

// parseArg parses one shell argument. Objects, arrays and quoted strings use
// the relaxed grammar; a bare token is a number, boolean or null by pattern
// and a string otherwise. An empty argument is absent (nil).
func parseArg(s string) (Value, error) {
	t := strings.TrimSpace(s)
	if t == "" {
		return nil, nil
	}
	switch t[0] {
	case '{', '[', '"', '\'':
		return parseRelaxed(t)
	}
	return bareValue(t), nil
}

func bareValue(t string) Value {
	if numberPattern.MatchString(t) {
		if f, err := strconv.ParseFloat(t, 64); err == nil {
			return Number(f)
		}
	}
	switch strings.ToLower(t) {
	case "true":
		return Bool(true)
	case "false":
		return Bool(false)
	case "null":
		return Null{}
	}
	return String(t)
}

// parseRelaxed parses JSON extended with single-quoted strings, unquoted
// keys, bare values and trailing commas.
func parseRelaxed(s string) (Value, error) {
	p := &relaxedParser{src: []rune(s)}
	p.skipSpace()
	v, err := p.value()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if !p.eof() {
		return nil, p.unexpected()
	}
	return v, nil
}

type relaxedParser struct {
	src []rune
	pos int
}

func (p *relaxedParser) eof() bool { return p.pos >= len(p.src) }

func (p *relaxedParser) peek() rune { return p.src[p.pos] }

func (p *relaxedParser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.peek()) {
		p.pos++
	}
}

func (p *relaxedParser) unexpected() error {
	if p.eof() {
		return engine.ParseError("Unexpected end of input")
	}
	return engine.ParseError("Unexpected token %c at position %d", p.peek(), p.pos)
}

func (p *relaxedParser) value() (Value, error) {
	if p.eof() {
		return nil, p.unexpected()
	}
	switch c := p.peek(); c {
	case '{':
		return p.object()
	case '[':
		return p.array()
	case '"', '\'':
		s, err := p.quoted()
		if err != nil {
			return nil, err
		}
		return String(s), nil
	case ',', '}', ']', ':':
		return nil, p.unexpected()
	}
	return p.bare()
}

func (p *relaxedParser) object() (Value, error) {
	p.pos++ // {
	obj := NewObject()
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.unexpected()
		}
		if p.peek() == '}' {
			p.pos++
			return obj, nil
		}
		key, err := p.key()
		if err != nil {
			return nil, err
		}
		p.skipSpace()
		if p.eof() || p.peek() != ':' {
			return nil, p.unexpected()
		}
		p.pos++
		p.skipSpace()
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		obj.Set(key, v)
		p.skipSpace()
		if p.eof() {
			return nil, p.unexpected()
		}
		switch p.peek() {
		case ',':
			p.pos++
		case '}':
		default:
			return nil, p.unexpected()
		}
	}
}

func (p *relaxedParser) array() (Value, error) {
	p.pos++ // [
	arr := Array{}
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.unexpected()
		}
		if p.peek() == ']' {
			p.pos++
			return arr, nil
		}
		v, err := p.value()
		if err != nil {
			return nil, err
		}
		arr = append(arr, v)
		p.skipSpace()
		if p.eof() {
			return nil, p.unexpected()
		}
		switch p.peek() {
		case ',':
			p.pos++
		case ']':
		default:
			return nil, p.unexpected()
		}
	}
}

func (p *relaxedParser) key() (string, error) {
	if c := p.peek(); c == '"' || c == '\'' {
		return p.quoted()
	}
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == ':' || unicode.IsSpace(c) || c == ',' || c == '{' || c == '}' || c == '[' || c == ']' {
			break
		}
		p.pos++
	}
	if p.pos == start {
		return "", p.unexpected()
	}
	return string(p.src[start:p.pos]), nil
}

// bare reads an unquoted value up to the next separator.
func (p *relaxedParser) bare() (Value, error) {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c == ',' || c == '}' || c == ']' {
			break
		}
		p.pos++
	}
	t := strings.TrimSpace(string(p.src[start:p.pos]))
	if t == "" {
		return nil, p.unexpected()
	}
	return bareValue(t), nil
}

func (p *relaxedParser) quoted() (string, error) {
	q := p.peek()
	p.pos++
	var b strings.Builder
	for !p.eof() {
		c := p.peek()
		p.pos++
		switch {
		case c == q:
			return b.String(), nil
		case c == '\\':
			if p.eof() {
				return "", p.unexpected()
			}
			esc := p.peek()
			p.pos++
			switch esc {
			case 'n':
				b.WriteRune('\n')
			case 't':
				b.WriteRune('\t')
			case 'r':
				b.WriteRune('\r')
			case 'b':
				b.WriteRune('\b')
			case 'f':
				b.WriteRune('\f')
			case 'u':
				if p.pos+4 > len(p.src) {
					return "", engine.ParseError("Bad Unicode escape in string")
				}
				n, err := strconv.ParseUint(string(p.src[p.pos:p.pos+4]), 16, 32)
				if err != nil {
					return "", engine.ParseError("Bad Unicode escape in string")
				}
				b.WriteRune(rune(n))
				p.pos += 4
			default:
				b.WriteRune(esc)
			}
		default:
			b.WriteRune(c)
		}
	}
	return "", engine.ParseError("Unterminated string in JSON")
}

// asObject returns v as an object, or nil for any other kind.
func asObject(v Value) *Object {
	o, _ := v.(*Object)
	return o
}

// asArray returns v as an array, or nil for any other kind.
func asArray(v Value) Array {
	a, _ := v.(Array)
	return a
}

func argAt(args []Value, i int) Value {
	if i < len(args) {
		return args[i]
	}
	return nil
}

func parseArgs(raw []string) ([]Value, error) {
	out := make([]Value, len(raw))
	for i, r := range raw {
		v, err := parseArg(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func describe(v Value) string {
	if v == nil {
		return "undefined"
	}
	return Encode(v)
}
