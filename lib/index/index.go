package index

import (
	"context"
	"errors"

	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("index")

var (
	ensureCreated = metrics.NewCounter(`drec_index_ensure_total{result="created"}`)
	ensureExists  = metrics.NewCounter(`drec_index_ensure_total{result="exists"}`)
	ensureFailed  = metrics.NewCounter(`drec_index_ensure_total{result="failed"}`)
)

// DefaultName is the name of the record index
const DefaultName = "idx:record"

// RecordIndex declares the secondary index over all records of the keyspace.
// If name is empty, DefaultName is used.
func RecordIndex(ks record.Keyspace, name string) store.IndexDefinition {
	if name == "" {
		name = DefaultName
	}
	return store.IndexDefinition{
		Name:   name,
		Prefix: ks.Prefix(),
		Fields: []store.FieldSchema{
			{Name: record.FieldName, Kind: store.FieldText, Weight: 1},
			{Name: record.FieldCategory, Kind: store.FieldTag},
			{Name: record.FieldMeasure, Kind: store.FieldNumeric, Sortable: true},
		},
	}
}

// Manager creates secondary indexes on a store
type Manager struct {
	store store.IStore
}

// NewManager creates a new index manager for the given store
func NewManager(s store.IStore) *Manager {
	return &Manager{store: s}
}

// EnsureIndex creates the index if it does not exist yet.
//
// An existing index is not an error. Every other failure is logged and
// returned, callers decide whether they can continue without search.
func (m *Manager) EnsureIndex(ctx context.Context, def store.IndexDefinition) error {
	if err := Validate(def); err != nil {
		ensureFailed.Inc()
		return err
	}

	err := m.store.CreateIndex(ctx, def)
	switch {
	case err == nil:
		ensureCreated.Inc()
		log.Infof("created index %s on prefix %s", def.Name, def.Prefix)
		return nil
	case errors.Is(err, store.ErrIndexExists):
		ensureExists.Inc()
		log.Infof("index %s already exists", def.Name)
		return nil
	default:
		ensureFailed.Inc()
		log.Errorf("failed to create index %s: %v", def.Name, err)
		return err
	}
}

// Validate checks that the definition can be created
func Validate(def store.IndexDefinition) error {
	if def.Name == "" {
		return store.NewError(store.RetCInvalidOperation, "index name is required")
	}
	if def.Prefix == "" {
		return store.NewError(store.RetCInvalidOperation, "index prefix is required")
	}
	if len(def.Fields) == 0 {
		return store.NewError(store.RetCInvalidOperation, "index needs at least one field")
	}
	seen := make(map[string]bool, len(def.Fields))
	for _, f := range def.Fields {
		if f.Name == "" {
			return store.NewError(store.RetCInvalidOperation, "field name is required")
		}
		if seen[f.Name] {
			return store.NewError(store.RetCInvalidOperation, "duplicate field `"+f.Name+"`")
		}
		seen[f.Name] = true
	}
	return nil
}
