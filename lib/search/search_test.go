package search

import (
	"context"
	"math"
	"testing"

	"github.com/ValentinKolb/dRec/lib/index"
	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var def = index.RecordIndex("", "")

func TestTranslate(t *testing.T) {
	excl := Range("measure", 10, 20)
	excl.MinExclusive = true

	cases := []struct {
		name string
		q    Query
		want string
	}{
		{"empty", Query{}, "*"},
		{"match", Query{Predicates: []Predicate{Match("name", "Alice  Smith")}}, "@name:(alice smith)"},
		{"prefix", Query{Predicates: []Predicate{Match("name", "ali*")}}, "@name:(ali*)"},
		{"tag", Query{Predicates: []Predicate{Tag("category", "eng")}}, "@category:{eng}"},
		{"tag alternatives", Query{Predicates: []Predicate{Tag("category", "eng", "sales")}}, "@category:{eng|sales}"},
		{"tag escaped", Query{Predicates: []Predicate{Tag("category", "r&d ops")}}, `@category:{r\&d\ ops}`},
		{"tag value", Query{Predicates: []Predicate{{Field: "category", Op: OpTag, Value: "eng"}}}, "@category:{eng}"},
		{"range", Query{Predicates: []Predicate{Range("measure", 40000, 60000.5)}}, "@measure:[40000 60000.5]"},
		{"range open", Query{Predicates: []Predicate{Range("measure", math.Inf(-1), 5)}}, "@measure:[-inf 5]"},
		{"range exclusive", Query{Predicates: []Predicate{excl}}, "@measure:[(10 20]"},
		{"negate", Query{Predicates: []Predicate{Not(Tag("category", "sales"))}}, "-@category:{sales}"},
		{"and", Query{Predicates: []Predicate{Tag("category", "eng"), Range("measure", 0, math.Inf(1))}}, "@category:{eng} @measure:[0 +inf]"},
		{"raw", Query{Raw: "@name:bob"}, "@name:bob"},
		{"raw and predicate", Query{Raw: "@name:bob", Predicates: []Predicate{Tag("category", "eng")}}, "@name:bob @category:{eng}"},
		{"raw union", Query{Raw: "alice | bob", Predicates: []Predicate{Tag("category", "eng")}}, "(alice | bob) @category:{eng}"},
		{"raw tag list", Query{Raw: "@category:{a|b}", Predicates: []Predicate{Match("name", "x")}}, "@category:{a|b} @name:(x)"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			got, err := Translate(def, c.q)
			require.NoError(t, err)
			assert.Equal(t, c.want, got)
		})
	}
}

func TestTranslateInvalid(t *testing.T) {
	nan := math.NaN()
	cases := map[string]Predicate{
		"unknown field": Tag("salary", "x"),
		"tag on text":   Tag("name", "x"),
		"match on tag":  Match("category", "x"),
		"range on text": Range("name", 0, 1),
		"empty match":   Match("name", " ,. "),
		"empty tag":     Tag("category"),
		"blank tag":     Tag("category", "eng", " "),
		"nan":           {Field: "measure", Op: OpRange, Min: &nan},
		"min above max": Range("measure", 2, 1),
		"unknown op":    {Field: "name", Op: Op(42), Value: "x"},
	}
	for name, p := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Translate(def, Query{Predicates: []Predicate{p}})
			assert.ErrorIs(t, err, store.ErrInvalidQuery)
		})
	}
}

// --------------------------------------------------------------------------
// Gateway
// --------------------------------------------------------------------------

func newGateway(t *testing.T, records ...record.Record) (*Gateway, store.IStore) {
	t.Helper()
	s := lstore.NewLocalStore()
	require.NoError(t, index.NewManager(s).EnsureIndex(context.Background(), def))

	var ks record.Keyspace
	for _, r := range records {
		require.NoError(t, s.HSetAll(context.Background(), ks.Key(r.ID), record.Encode(r)))
	}
	return NewGateway(s, def, ks), s
}

func TestGatewayRoundTrip(t *testing.T) {
	alice := record.Record{ID: 1, Name: "Alice Smith", Category: "eng", Measure: 50000}
	bob := record.Record{ID: 2, Name: "Bob Stone", Category: "ops", Measure: 42000}
	g, _ := newGateway(t, alice, bob)
	ctx := context.Background()

	got, err := g.Search(ctx, Query{Predicates: []Predicate{Tag("category", "eng")}})
	require.NoError(t, err)
	assert.Equal(t, []record.Record{alice}, got)

	got, err = g.Search(ctx, Query{Predicates: []Predicate{Range("measure", 45000, 55000)}})
	require.NoError(t, err)
	assert.Equal(t, []record.Record{alice}, got)

	got, err = g.Search(ctx, Query{Predicates: []Predicate{Tag("category", "sales")}})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)

	got, err = g.Search(ctx, Query{Predicates: []Predicate{Match("name", "sto*")}})
	require.NoError(t, err)
	assert.Equal(t, []record.Record{bob}, got)

	got, err = g.Search(ctx, Query{})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestGatewayPartialDocument(t *testing.T) {
	g, s := newGateway(t)
	require.NoError(t, s.HSetAll(context.Background(), "record:9", map[string]string{"name": "Nomeasure", "category": "eng"}))

	got, err := g.Search(context.Background(), Query{Predicates: []Predicate{Tag("category", "eng")}})
	require.NoError(t, err)
	assert.Equal(t, []record.Record{{ID: 9, Name: "Nomeasure", Category: "eng"}}, got)
}

func TestGatewayPaging(t *testing.T) {
	var recs []record.Record
	for i := uint64(1); i <= 30; i++ {
		recs = append(recs, record.Record{ID: i, Name: "n", Category: "bulk", Measure: float64(i)})
	}
	g, _ := newGateway(t, recs...)

	got, err := g.Search(context.Background(), Query{Offset: 25, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, got, 5)

	_, err = g.Search(context.Background(), Query{Offset: -1})
	assert.ErrorIs(t, err, store.ErrInvalidQuery)
}

func TestGatewayMissingIndex(t *testing.T) {
	g := NewGateway(lstore.NewLocalStore(), def, "")

	got, err := g.Search(context.Background(), Query{Predicates: []Predicate{Tag("category", "eng")}})
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestGatewayRejectedQuery(t *testing.T) {
	g, _ := newGateway(t)

	_, err := g.Search(context.Background(), Query{Raw: "@category:{eng"})
	assert.ErrorIs(t, err, store.ErrInvalidQuery)
}

func TestGatewayMalformedKey(t *testing.T) {
	g, s := newGateway(t)
	require.NoError(t, s.HSetAll(context.Background(), "record:abc", map[string]string{"category": "eng"}))

	_, err := g.Search(context.Background(), Query{})
	assert.ErrorIs(t, err, store.ErrMalformedKey)
}
