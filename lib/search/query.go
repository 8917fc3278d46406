package search

import (
	"fmt"
	"math"
	"strings"

	"github.com/ValentinKolb/dRec/lib/store"
)

// Op is the operator of a predicate
type Op int

const (
	OpMatch Op = iota // all terms occur in a text field
	OpTag             // a tag field has one of the values
	OpRange           // a numeric field lies within [Min, Max]
)

func (o Op) String() string {
	switch o {
	case OpMatch:
		return "match"
	case OpTag:
		return "tag"
	case OpRange:
		return "range"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Predicate is a single condition on an indexed field
type Predicate struct {
	Field string `json:"field"`
	Op    Op     `json:"op"`

	// OpMatch: free text, split into terms. A trailing '*' makes the last term a prefix.
	// OpTag: a single tag (used if Values is empty)
	Value  string   `json:"value,omitempty"`
	Values []string `json:"values,omitempty"` // OpTag: alternatives

	// OpRange: nil means unbounded
	Min          *float64 `json:"min,omitempty"`
	Max          *float64 `json:"max,omitempty"`
	MinExclusive bool     `json:"minExclusive,omitempty"`
	MaxExclusive bool     `json:"maxExclusive,omitempty"`

	Negate bool `json:"negate,omitempty"`
}

// Query is a structured search request. All predicates must hold.
type Query struct {
	Predicates []Predicate `json:"predicates,omitempty"`
	// Raw is passed to the index unchanged and combined with the predicates
	Raw    string `json:"raw,omitempty"`
	Offset int    `json:"offset,omitempty"`
	Limit  int    `json:"limit,omitempty"` // 0 = DefaultLimit
}

// Match returns a text predicate
func Match(field, text string) Predicate {
	return Predicate{Field: field, Op: OpMatch, Value: text}
}

// Tag returns a tag predicate matching any of the values
func Tag(field string, values ...string) Predicate {
	return Predicate{Field: field, Op: OpTag, Values: values}
}

// Range returns an inclusive numeric range predicate. Infinite bounds are open ends.
func Range(field string, min, max float64) Predicate {
	return Predicate{Field: field, Op: OpRange, Min: bound(min), Max: bound(max)}
}

func bound(v float64) *float64 {
	if math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Not negates p
func Not(p Predicate) Predicate {
	p.Negate = !p.Negate
	return p
}

// --------------------------------------------------------------------------
// Translation
// --------------------------------------------------------------------------

// Translate converts q into the query language of the index def
func Translate(def store.IndexDefinition, q Query) (string, error) {
	clauses := make([]string, 0, len(q.Predicates)+1)

	if raw := strings.TrimSpace(q.Raw); raw != "" {
		// a union binds weaker than the implicit AND with the predicates
		if len(q.Predicates) > 0 && hasUnion(raw) {
			raw = "(" + raw + ")"
		}
		clauses = append(clauses, raw)
	}

	for i, p := range q.Predicates {
		c, err := translatePredicate(def, p)
		if err != nil {
			return "", store.WrapError(store.RetCInvalidQuery, fmt.Sprintf("predicate %d", i), err)
		}
		clauses = append(clauses, c)
	}

	if len(clauses) == 0 {
		return "*", nil
	}
	return strings.Join(clauses, " "), nil
}

func translatePredicate(def store.IndexDefinition, p Predicate) (string, error) {
	f, ok := def.Field(p.Field)
	if !ok {
		return "", fmt.Errorf("unknown field `%s`", p.Field)
	}

	var clause string
	switch p.Op {
	case OpMatch:
		if f.Kind != store.FieldText {
			return "", kindMismatch(p, f)
		}
		terms := matchTerms(p.Value)
		if len(terms) == 0 {
			return "", fmt.Errorf("no search terms for field `%s`", p.Field)
		}
		clause = fmt.Sprintf("@%s:(%s)", p.Field, strings.Join(terms, " "))

	case OpTag:
		if f.Kind != store.FieldTag {
			return "", kindMismatch(p, f)
		}
		values := p.Values
		if len(values) == 0 && p.Value != "" {
			values = []string{p.Value}
		}
		if len(values) == 0 {
			return "", fmt.Errorf("no tag values for field `%s`", p.Field)
		}
		escaped := make([]string, len(values))
		for i, v := range values {
			v = strings.TrimSpace(v)
			if v == "" {
				return "", fmt.Errorf("empty tag value for field `%s`", p.Field)
			}
			escaped[i] = store.EscapeTag(v)
		}
		clause = fmt.Sprintf("@%s:{%s}", p.Field, strings.Join(escaped, "|"))

	case OpRange:
		if f.Kind != store.FieldNumeric {
			return "", kindMismatch(p, f)
		}
		lo, hi := math.Inf(-1), math.Inf(1)
		if p.Min != nil {
			lo = *p.Min
		}
		if p.Max != nil {
			hi = *p.Max
		}
		if math.IsNaN(lo) || math.IsNaN(hi) {
			return "", fmt.Errorf("range bounds of field `%s` must be numbers", p.Field)
		}
		if lo > hi {
			return "", fmt.Errorf("empty range for field `%s`: %v > %v", p.Field, lo, hi)
		}
		clause = fmt.Sprintf("@%s:[%s %s]", p.Field,
			store.FormatBound(lo, p.MinExclusive), store.FormatBound(hi, p.MaxExclusive))

	default:
		return "", fmt.Errorf("unknown operator %s", p.Op)
	}

	if p.Negate {
		return "-" + clause, nil
	}
	return clause, nil
}

// matchTerms tokenizes free text the way the index does. A trailing '*' is kept
// on the last term.
func matchTerms(text string) []string {
	text = strings.TrimSpace(text)
	prefix := strings.HasSuffix(text, "*")
	terms := store.Tokenize(text)
	if prefix && len(terms) > 0 {
		terms[len(terms)-1] += "*"
	}
	return terms
}

// hasUnion reports whether raw contains a '|' outside of a tag list
func hasUnion(raw string) bool {
	depth := 0
	escaped := false
	for _, r := range raw {
		switch {
		case escaped:
			escaped = false
		case r == '\\':
			escaped = true
		case r == '{':
			depth++
		case r == '}' && depth > 0:
			depth--
		case r == '|' && depth == 0:
			return true
		}
	}
	return false
}

func kindMismatch(p Predicate, f store.FieldSchema) error {
	return fmt.Errorf("operator %s does not apply to %s field `%s`", p.Op, f.Kind, p.Field)
}
