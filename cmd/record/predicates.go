package record

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ValentinKolb/dRec/lib/search"
)

// splitAssignment splits FIELD=VALUE
func splitAssignment(s string) (string, string, error) {
	field, value, ok := strings.Cut(s, "=")
	field = strings.TrimSpace(field)
	if !ok || field == "" {
		return "", "", fmt.Errorf("expected FIELD=VALUE")
	}
	return field, value, nil
}

func parseMatch(s string) (search.Predicate, error) {
	field, text, err := splitAssignment(s)
	if err != nil {
		return search.Predicate{}, err
	}
	return search.Match(field, text), nil
}

func parseTag(s string) (search.Predicate, error) {
	field, values, err := splitAssignment(s)
	if err != nil {
		return search.Predicate{}, err
	}
	var tags []string
	for _, v := range strings.Split(values, "|") {
		if v = strings.TrimSpace(v); v != "" {
			tags = append(tags, v)
		}
	}
	if len(tags) == 0 {
		return search.Predicate{}, fmt.Errorf("no tag values")
	}
	return search.Tag(field, tags...), nil
}

func parseNotTag(s string) (search.Predicate, error) {
	p, err := parseTag(s)
	if err != nil {
		return p, err
	}
	return search.Not(p), nil
}

// parseRange parses FIELD=MIN:MAX, an empty side is unbounded
func parseRange(s string) (search.Predicate, error) {
	field, bounds, err := splitAssignment(s)
	if err != nil {
		return search.Predicate{}, err
	}
	lo, hi, ok := strings.Cut(bounds, ":")
	if !ok {
		return search.Predicate{}, fmt.Errorf("expected MIN:MAX")
	}
	min, err := parseBound(lo, math.Inf(-1))
	if err != nil {
		return search.Predicate{}, err
	}
	max, err := parseBound(hi, math.Inf(1))
	if err != nil {
		return search.Predicate{}, err
	}
	if min > max {
		return search.Predicate{}, fmt.Errorf("min %v is greater than max %v", min, max)
	}
	return search.Range(field, min, max), nil
}

func parseBound(s string, open float64) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return open, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid bound %q", s)
	}
	return v, nil
}
