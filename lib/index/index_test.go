package index

import (
	"context"
	"errors"
	"testing"

	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/lib/store/lstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore refuses every index creation with a fixed error
type failingStore struct {
	store.IStore
	err error
}

func (f failingStore) CreateIndex(context.Context, store.IndexDefinition) error {
	return f.err
}

func TestRecordIndex(t *testing.T) {
	def := RecordIndex(record.Keyspace("employee"), "")
	assert.Equal(t, DefaultName, def.Name)
	assert.Equal(t, "employee:", def.Prefix)

	f, ok := def.Field("category")
	require.True(t, ok)
	assert.Equal(t, store.FieldTag, f.Kind)

	f, ok = def.Field("measure")
	require.True(t, ok)
	assert.Equal(t, store.FieldNumeric, f.Kind)
	assert.True(t, f.Sortable)

	f, ok = def.Field("name")
	require.True(t, ok)
	assert.Equal(t, store.FieldText, f.Kind)
	assert.Equal(t, 1.0, f.Weight)
}

func TestEnsureIndexIdempotent(t *testing.T) {
	m := NewManager(lstore.NewLocalStore())
	def := RecordIndex("", "")

	before := ensureExists.Get()
	require.NoError(t, m.EnsureIndex(context.Background(), def))
	require.NoError(t, m.EnsureIndex(context.Background(), def))
	assert.Equal(t, before+1, ensureExists.Get())
}

func TestEnsureIndexPropagatesFailures(t *testing.T) {
	cause := store.NewError(store.RetCInternalError, "connection refused")
	m := NewManager(failingStore{IStore: lstore.NewLocalStore(), err: cause})

	before := ensureFailed.Get()
	err := m.EnsureIndex(context.Background(), RecordIndex("", ""))
	assert.True(t, errors.Is(err, store.ErrInternal))
	assert.Equal(t, before+1, ensureFailed.Get())
}

func TestValidate(t *testing.T) {
	valid := RecordIndex("", "")
	assert.NoError(t, Validate(valid))

	cases := map[string]store.IndexDefinition{
		"no name":   {Prefix: "p:", Fields: valid.Fields},
		"no prefix": {Name: "idx", Fields: valid.Fields},
		"no fields": {Name: "idx", Prefix: "p:"},
		"duplicate": {Name: "idx", Prefix: "p:", Fields: []store.FieldSchema{
			{Name: "a", Kind: store.FieldTag}, {Name: "a", Kind: store.FieldText},
		}},
	}
	for name, def := range cases {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, Validate(def), store.ErrInvalidOperation)
		})
	}
}
