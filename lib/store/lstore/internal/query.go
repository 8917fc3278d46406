package internal

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/ValentinKolb/dRec/lib/store"
)

// --------------------------------------------------------------------------
// Query AST
// --------------------------------------------------------------------------

// Node is a parsed query (or a part of it) that can be evaluated against a hash.
type Node interface {
	// Match reports whether the hash fields satisfy the node.
	Match(fields map[string]string, def store.IndexDefinition) bool
	// Check validates the node against the index definition.
	Check(def store.IndexDefinition) error
}

type matchAll struct{}

type andNode struct {
	children []Node
}

type notNode struct {
	child Node
}

// textNode matches if every term occurs in the field ("" = any text field).
type textNode struct {
	field string
	terms []string
}

type tagNode struct {
	field  string
	values []string
}

type rangeNode struct {
	field            string
	min, max         float64
	minExcl, maxExcl bool
}

func (matchAll) Match(map[string]string, store.IndexDefinition) bool { return true }
func (matchAll) Check(store.IndexDefinition) error                   { return nil }

func (n andNode) Match(fields map[string]string, def store.IndexDefinition) bool {
	for _, c := range n.children {
		if !c.Match(fields, def) {
			return false
		}
	}
	return true
}

func (n andNode) Check(def store.IndexDefinition) error {
	for _, c := range n.children {
		if err := c.Check(def); err != nil {
			return err
		}
	}
	return nil
}

func (n notNode) Match(fields map[string]string, def store.IndexDefinition) bool {
	return !n.child.Match(fields, def)
}

func (n notNode) Check(def store.IndexDefinition) error {
	return n.child.Check(def)
}

func (n textNode) Match(fields map[string]string, def store.IndexDefinition) bool {
	var tokens []string
	for _, f := range def.Fields {
		if f.Kind != store.FieldText || (n.field != "" && f.Name != n.field) {
			continue
		}
		if v, ok := fields[f.Name]; ok {
			tokens = append(tokens, store.Tokenize(v)...)
		}
	}
	for _, term := range n.terms {
		if !containsTerm(tokens, term) {
			return false
		}
	}
	return true
}

func (n textNode) Check(def store.IndexDefinition) error {
	if n.field == "" {
		return nil
	}
	return checkField(def, n.field, store.FieldText)
}

func (n tagNode) Match(fields map[string]string, def store.IndexDefinition) bool {
	v, ok := fields[n.field]
	if !ok {
		return false
	}
	sep := ","
	if f, ok := def.Field(n.field); ok && f.Separator != "" {
		sep = f.Separator
	}
	for _, tag := range strings.Split(v, sep) {
		tag = strings.TrimSpace(tag)
		for _, want := range n.values {
			if strings.EqualFold(tag, want) {
				return true
			}
		}
	}
	return false
}

func (n tagNode) Check(def store.IndexDefinition) error {
	return checkField(def, n.field, store.FieldTag)
}

func (n rangeNode) Match(fields map[string]string, _ store.IndexDefinition) bool {
	raw, ok := fields[n.field]
	if !ok {
		return false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) {
		return false
	}
	if v < n.min || (n.minExcl && v == n.min) {
		return false
	}
	if v > n.max || (n.maxExcl && v == n.max) {
		return false
	}
	return true
}

func (n rangeNode) Check(def store.IndexDefinition) error {
	return checkField(def, n.field, store.FieldNumeric)
}

// containsTerm reports whether term occurs in tokens. A trailing '*' turns the term into a prefix.
func containsTerm(tokens []string, term string) bool {
	prefix := strings.HasSuffix(term, "*")
	term = strings.TrimSuffix(term, "*")
	for _, t := range tokens {
		if t == term || (prefix && strings.HasPrefix(t, term)) {
			return true
		}
	}
	return false
}

func checkField(def store.IndexDefinition, name string, kind store.FieldKind) error {
	f, ok := def.Field(name)
	if !ok {
		return fmt.Errorf("unknown field `%s`", name)
	}
	if f.Kind != kind {
		return fmt.Errorf("field `%s` is of type %s, not %s", name, f.Kind, kind)
	}
	return nil
}

// --------------------------------------------------------------------------
// Parser
// --------------------------------------------------------------------------

// Parse parses the subset of the index query language the local store supports:
//
//	"*"                 all documents
//	term  term*         text term (prefix) over all text fields
//	(a b)               all terms over all text fields
//	@f:term  @f:(a b)   text terms on field f
//	@f:{a|b}            tag f is a or b
//	@f:[min max]        numeric range, '(' for exclusive bounds, -inf / +inf
//	-clause             negation
//
// Clauses separated by whitespace are intersected.
func Parse(query string) (Node, error) {
	p := &parser{in: []rune(strings.TrimSpace(query))}
	if len(p.in) == 0 {
		return nil, fmt.Errorf("syntax error: empty query")
	}

	var clauses []Node
	for {
		p.skipSpace()
		if p.eof() {
			break
		}
		n, err := p.clause()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, n)
	}

	if len(clauses) == 1 {
		return clauses[0], nil
	}
	return andNode{children: clauses}, nil
}

const specialChars = "(){}[]|@:"

type parser struct {
	in  []rune
	pos int
}

func (p *parser) eof() bool {
	return p.pos >= len(p.in)
}

func (p *parser) peek() rune {
	if p.eof() {
		return 0
	}
	return p.in[p.pos]
}

func (p *parser) skipSpace() {
	for !p.eof() && unicode.IsSpace(p.in[p.pos]) {
		p.pos++
	}
}

func (p *parser) expect(r rune) error {
	if p.peek() != r {
		return p.errorf("expected '%c'", r)
	}
	p.pos++
	return nil
}

func (p *parser) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("syntax error at offset %d: %s", p.pos, fmt.Sprintf(format, args...))
}

func (p *parser) clause() (Node, error) {
	negate := false
	if p.peek() == '-' {
		negate = true
		p.pos++
	}

	var (
		n   Node
		err error
	)
	switch p.peek() {
	case '@':
		n, err = p.fieldClause()
	case '(':
		var terms []string
		terms, err = p.group()
		n = textNode{terms: terms}
	case '*':
		p.pos++
		n = matchAll{}
	default:
		t := p.term()
		if t == "" {
			return nil, p.errorf("unexpected '%c'", p.peek())
		}
		n = textNode{terms: []string{t}}
	}
	if err != nil {
		return nil, err
	}

	if negate {
		return notNode{child: n}, nil
	}
	return n, nil
}

func (p *parser) fieldClause() (Node, error) {
	p.pos++ // '@'
	start := p.pos
	for !p.eof() && (unicode.IsLetter(p.peek()) || unicode.IsDigit(p.peek()) || p.peek() == '_') {
		p.pos++
	}
	field := string(p.in[start:p.pos])
	if field == "" {
		return nil, p.errorf("missing field name")
	}
	if err := p.expect(':'); err != nil {
		return nil, err
	}
	p.skipSpace()

	switch p.peek() {
	case '{':
		values, err := p.tags()
		if err != nil {
			return nil, err
		}
		return tagNode{field: field, values: values}, nil
	case '[':
		return p.numRange(field)
	case '(':
		terms, err := p.group()
		if err != nil {
			return nil, err
		}
		return textNode{field: field, terms: terms}, nil
	default:
		t := p.term()
		if t == "" {
			return nil, p.errorf("missing value for field `%s`", field)
		}
		return textNode{field: field, terms: []string{t}}, nil
	}
}

// term reads a single (lower cased) term, honoring backslash escapes.
func (p *parser) term() string {
	var sb strings.Builder
	for !p.eof() {
		r := p.peek()
		if r == '\\' && p.pos+1 < len(p.in) {
			sb.WriteRune(p.in[p.pos+1])
			p.pos += 2
			continue
		}
		if unicode.IsSpace(r) || strings.ContainsRune(specialChars, r) {
			break
		}
		sb.WriteRune(r)
		p.pos++
	}
	return strings.ToLower(sb.String())
}

func (p *parser) group() ([]string, error) {
	if err := p.expect('('); err != nil {
		return nil, err
	}
	var terms []string
	for {
		p.skipSpace()
		if p.eof() {
			return nil, p.errorf("unterminated group")
		}
		if p.peek() == ')' {
			p.pos++
			break
		}
		t := p.term()
		if t == "" {
			return nil, p.errorf("unexpected '%c' in group", p.peek())
		}
		terms = append(terms, t)
	}
	if len(terms) == 0 {
		return nil, p.errorf("empty group")
	}
	return terms, nil
}

func (p *parser) tags() ([]string, error) {
	if err := p.expect('{'); err != nil {
		return nil, err
	}
	var (
		values []string
		sb     strings.Builder
	)
	for {
		if p.eof() {
			return nil, p.errorf("unterminated tag list")
		}
		r := p.peek()
		switch {
		case r == '\\' && p.pos+1 < len(p.in):
			sb.WriteRune(p.in[p.pos+1])
			p.pos += 2
			continue
		case r == '|' || r == '}':
			v := strings.TrimSpace(sb.String())
			if v == "" {
				return nil, p.errorf("empty tag")
			}
			values = append(values, v)
			sb.Reset()
			p.pos++
			if r == '}' {
				return values, nil
			}
			continue
		}
		sb.WriteRune(r)
		p.pos++
	}
}

func (p *parser) numRange(field string) (Node, error) {
	if err := p.expect('['); err != nil {
		return nil, err
	}
	p.skipSpace()
	lo, loExcl, err := p.bound()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	hi, hiExcl, err := p.bound()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if err := p.expect(']'); err != nil {
		return nil, err
	}
	return rangeNode{field: field, min: lo, max: hi, minExcl: loExcl, maxExcl: hiExcl}, nil
}

func (p *parser) bound() (float64, bool, error) {
	start := p.pos
	for !p.eof() && !unicode.IsSpace(p.peek()) && p.peek() != ']' {
		p.pos++
	}
	raw := string(p.in[start:p.pos])
	if raw == "" {
		return 0, false, p.errorf("missing range bound")
	}
	v, excl, err := store.ParseBound(raw)
	if err != nil || math.IsNaN(v) {
		return 0, false, p.errorf("invalid range bound `%s`", raw)
	}
	return v, excl, nil
}
