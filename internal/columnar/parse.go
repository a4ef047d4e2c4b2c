package columnar

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/flashdb/playground/internal/engine"
)

var (
	createKeyspacePattern = regexp.MustCompile(`(?i)^CREATE\s+KEYSPACE\s+(IF\s+NOT\s+EXISTS\s+)?(\w+)(?:\s+WITH\s+replication\s*=\s*(\{[\s\S]*\}))?\s*;?$`)
	usePattern            = regexp.MustCompile(`(?i)^USE\s+(\w+)\s*;?$`)
	createTablePattern    = regexp.MustCompile(`(?i)^CREATE\s+TABLE\s+(IF\s+NOT\s+EXISTS\s+)?(\w+)\s*\(([\s\S]+)\)\s*;?$`)
	createIndexPattern    = regexp.MustCompile(`(?i)^CREATE\s+INDEX\s+(?:\w+\s+)?ON\s+(\w+)\s*\(\s*(\w+)\s*\)\s*;?$`)
	insertPattern         = regexp.MustCompile(`(?i)^INSERT\s+INTO\s+(\w+)\s*\(([^)]*)\)\s*VALUES\s*`)
	insertTailPattern     = regexp.MustCompile(`(?i)^\s*(?:USING\s+TTL\s+(\d+))?\s*;?$`)
	deletePattern         = regexp.MustCompile(`(?i)^DELETE\s+FROM\s+(\w+)\s+WHERE\s+(\w+)\s*=\s*([^;]+?)\s*;?$`)
	alterAddPattern       = regexp.MustCompile(`(?i)^ALTER\s+TABLE\s+(\w+)\s+ADD\s+(\w+)\s+(text|int|timestamp)\s*;?$`)
	dropTablePattern      = regexp.MustCompile(`(?i)^DROP\s+TABLE\s+(IF\s+EXISTS\s+)?(\w+)\s*;?$`)
	truncatePattern       = regexp.MustCompile(`(?i)^TRUNCATE\s+(?:TABLE\s+)?(\w+)\s*;?$`)
	describePattern       = regexp.MustCompile(`(?i)^DESC(?:RIBE)?\s+TABLES\s*;?$`)
	selectPattern         = regexp.MustCompile(`(?i)^SELECT\s+(.+)\s+FROM\s+(\w+)(?:\s+WHERE\s+(\w+)\s*(=|IN)\s*(.+?))?(?:\s+ALLOW\s+FILTERING)?(?:\s+LIMIT\s+(\d+))?\s*;?$`)
	allowFilteringPattern = regexp.MustCompile(`(?i)\sALLOW\s+FILTERING`)
	inListPattern         = regexp.MustCompile(`^\(\s*([\s\S]*?)\s*\)$`)

	primaryKeyClause = regexp.MustCompile(`(?i)^PRIMARY\s+KEY\s*\(\s*(\w+)\s*\)$`)
	inlineKeyColumn  = regexp.MustCompile(`(?i)^(\w+)\s+(text|int|timestamp)\s+PRIMARY\s+KEY$`)
	columnDef        = regexp.MustCompile(`(?i)^(\w+)\s+(text|int|timestamp)$`)
)

// statement is a parsed CQL statement. The set of variants is closed; the
// Engine dispatches on the concrete type.
type statement interface {
	isWrite() bool
}

type readOnly struct{}

func (readOnly) isWrite() bool { return false }

type mutating struct{}

func (mutating) isWrite() bool { return true }

type (
	createKeyspaceStmt struct {
		mutating
		name, replication string
		ifNotExists       bool
	}
	useStmt struct {
		readOnly
		keyspace string
	}
	createTableStmt struct {
		mutating
		name        string
		defs        []string
		ifNotExists bool
	}
	createIndexStmt struct {
		mutating
		table, column string
	}
	insertStmt struct {
		mutating
		table   string
		columns []string
		values  []string
		ttl     string // seconds; empty without USING TTL
	}
	deleteStmt struct {
		mutating
		table, field, raw string
	}
	alterAddStmt struct {
		mutating
		table, column string
		typ           Type
	}
	dropTableStmt struct {
		mutating
		table    string
		ifExists bool
	}
	truncateStmt struct {
		mutating
		table string
	}
	selectStmt struct {
		readOnly
		columns        []string // nil selects every declared column
		table          string
		where          *predicate
		allowFiltering bool
		limit          int // -1 without LIMIT
	}
	describeTablesStmt struct{ readOnly }
)

// predicate is a WHERE clause: field = value or field IN (values...).
type predicate struct {
	field  string
	in     bool
	values []string
}

func unsupported() error {
	return engine.Errorf(engine.ErrUnsupportedStatement, "Unsupported CQL. Try HELP.")
}

// parseStatement recognizes one CQL statement, case-insensitively.
func parseStatement(line string) (statement, error) {
	s := strings.TrimSpace(line)

	if m := createKeyspacePattern.FindStringSubmatch(s); m != nil {
		return createKeyspaceStmt{name: m[2], replication: m[3], ifNotExists: m[1] != ""}, nil
	}
	if m := usePattern.FindStringSubmatch(s); m != nil {
		return useStmt{keyspace: m[1]}, nil
	}
	if m := createTablePattern.FindStringSubmatch(s); m != nil {
		return createTableStmt{name: m[2], defs: splitArgs(m[3]), ifNotExists: m[1] != ""}, nil
	}
	if m := createIndexPattern.FindStringSubmatch(s); m != nil {
		return createIndexStmt{table: m[1], column: m[2]}, nil
	}
	if m := insertPattern.FindStringSubmatchIndex(s); m != nil {
		return parseInsert(s, m)
	}
	if m := deletePattern.FindStringSubmatch(s); m != nil {
		return deleteStmt{table: m[1], field: m[2], raw: strings.TrimSpace(m[3])}, nil
	}
	if m := alterAddPattern.FindStringSubmatch(s); m != nil {
		typ, _ := parseType(m[3])
		return alterAddStmt{table: m[1], column: m[2], typ: typ}, nil
	}
	if m := dropTablePattern.FindStringSubmatch(s); m != nil {
		return dropTableStmt{table: m[2], ifExists: m[1] != ""}, nil
	}
	if m := truncatePattern.FindStringSubmatch(s); m != nil {
		return truncateStmt{table: m[1]}, nil
	}
	if describePattern.MatchString(s) {
		return describeTablesStmt{}, nil
	}
	if m := selectPattern.FindStringSubmatch(s); m != nil {
		return parseSelect(s, m)
	}
	return nil, unsupported()
}

// parseInsert reads the VALUES tuple with a quote-aware scan, so literals may
// contain parentheses, then the optional USING TTL tail.
func parseInsert(s string, m []int) (statement, error) {
	stmt := insertStmt{table: s[m[2]:m[3]]}
	for _, c := range strings.Split(s[m[4]:m[5]], ",") {
		stmt.columns = append(stmt.columns, strings.TrimSpace(c))
	}

	rest := s[m[1]:]
	if !strings.HasPrefix(rest, "(") {
		return nil, unsupported()
	}
	end := closingParen(rest)
	if end < 0 {
		return nil, engine.ParseError("Unterminated VALUES list")
	}
	stmt.values = splitArgs(rest[1:end])

	tail := insertTailPattern.FindStringSubmatch(rest[end+1:])
	if tail == nil {
		return nil, unsupported()
	}
	stmt.ttl = tail[1]
	return stmt, nil
}

// closingParen returns the index of the parenthesis closing s[0], or -1.
func closingParen(s string) int {
	depth := 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

func parseSelect(s string, m []string) (statement, error) {
	stmt := selectStmt{
		table:          m[2],
		allowFiltering: allowFilteringPattern.MatchString(s),
		limit:          -1,
	}
	if cols := strings.TrimSpace(m[1]); cols != "*" {
		for _, c := range strings.Split(cols, ",") {
			stmt.columns = append(stmt.columns, strings.TrimSpace(c))
		}
	}
	if m[3] != "" {
		p := &predicate{field: m[3], in: strings.EqualFold(m[4], "IN")}
		rhs := strings.TrimSpace(m[5])
		if p.in {
			if lm := inListPattern.FindStringSubmatch(rhs); lm != nil {
				p.values = splitArgs(lm[1])
			}
		} else {
			p.values = []string{rhs}
		}
		stmt.where = p
	}
	if m[6] != "" {
		n, err := strconv.Atoi(m[6])
		if err != nil {
			return nil, engine.ArgumentError("Invalid LIMIT %s", m[6])
		}
		stmt.limit = n
	}
	return stmt, nil
}

// splitArgs splits on top-level commas, respecting parentheses, brackets
// and quoted strings.
func splitArgs(s string) []string {
	var (
		out   []string
		cur   strings.Builder
		depth int
		quote byte
	)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if quote != 0 {
			cur.WriteByte(c)
			if c == '\\' && i+1 < len(s) {
				i++
				cur.WriteByte(s[i])
			} else if c == quote {
				quote = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			quote = c
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, strings.TrimSpace(cur.String()))
				cur.Reset()
				continue
			}
		}
		cur.WriteByte(c)
	}
	if last := strings.TrimSpace(cur.String()); last != "" {
		out = append(out, last)
	}
	return out
}
