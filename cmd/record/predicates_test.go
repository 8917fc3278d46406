package record

import (
	"math"
	"testing"

	"github.com/ValentinKolb/dRec/lib/search"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePredicates(t *testing.T) {
	tests := []struct {
		name  string
		parse func(string) (search.Predicate, error)
		in    string
		want  search.Predicate
	}{
		{"match", parseMatch, "name=ali*", search.Match("name", "ali*")},
		{"tag", parseTag, "category=eng", search.Tag("category", "eng")},
		{"tag alternatives", parseTag, "category= eng | ops ", search.Tag("category", "eng", "ops")},
		{"not tag", parseNotTag, "category=sales", search.Not(search.Tag("category", "sales"))},
		{"range", parseRange, "measure=40000:60000", search.Range("measure", 40000, 60000)},
		{"range open min", parseRange, "measure=:100", search.Range("measure", math.Inf(-1), 100)},
		{"range open max", parseRange, "measure=-5.5:", search.Range("measure", -5.5, math.Inf(1))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParsePredicatesInvalid(t *testing.T) {
	tests := []struct {
		name  string
		parse func(string) (search.Predicate, error)
		in    string
	}{
		{"match without field", parseMatch, "=ada"},
		{"tag without assignment", parseTag, "category"},
		{"tag without values", parseTag, "category=|"},
		{"range without colon", parseRange, "measure=5"},
		{"range bad bound", parseRange, "measure=a:5"},
		{"range inverted", parseRange, "measure=10:5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.parse(tt.in)
			assert.Error(t, err)
		})
	}
}
