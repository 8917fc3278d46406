package store

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// --------------------------------------------------------------------------
// Index query language helpers
// --------------------------------------------------------------------------

// TokenSeparators are the characters (besides whitespace) on which text fields
// are split into terms, both when indexing and when querying.
const TokenSeparators = ",.<>{}[]\"':;!@#$%^&*()-+=~|/\\?"

// IsTokenSeparator reports whether r separates two terms of a text field.
func IsTokenSeparator(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(TokenSeparators, r)
}

// Tokenize splits a text value into lower case terms.
func Tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), IsTokenSeparator)
}

// EscapeTag escapes every character of a tag value that has a meaning in the
// query language (everything except letters, digits and '_').
func EscapeTag(v string) string {
	var sb strings.Builder
	sb.Grow(len(v) + 4)
	for _, r := range v {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			sb.WriteRune('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// FormatBound formats a numeric range bound. Infinite values are written as
// -inf / +inf, exclusive bounds are prefixed with '('.
func FormatBound(v float64, exclusive bool) string {
	var s string
	switch {
	case math.IsInf(v, -1):
		s = "-inf"
	case math.IsInf(v, 1):
		s = "+inf"
	default:
		s = strconv.FormatFloat(v, 'f', -1, 64)
	}
	if exclusive {
		return "(" + s
	}
	return s
}

// ParseBound is the inverse of FormatBound.
func ParseBound(s string) (v float64, exclusive bool, err error) {
	if strings.HasPrefix(s, "(") {
		exclusive = true
		s = s[1:]
	}
	switch strings.ToLower(s) {
	case "-inf":
		return math.Inf(-1), exclusive, nil
	case "+inf", "inf":
		return math.Inf(1), exclusive, nil
	}
	v, err = strconv.ParseFloat(s, 64)
	return v, exclusive, err
}
