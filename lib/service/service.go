package service

import (
	"context"

	"github.com/ValentinKolb/dRec/lib/index"
	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/search"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/lib/txn"
)

// IRecordService is the create / read / search / delete interface for records.
// It is implemented locally by this package and remotely by the rpc client.
type IRecordService interface {
	// Create stores rec if no record with the same id exists.
	// A record with a non-finite measure is rejected with an InvalidOperation error.
	// Returns false (and no error) if the write could not be confirmed under contention.
	Create(ctx context.Context, rec record.Record) (bool, error)

	// Get returns the record with the given id. The second return value is false
	// if the record does not exist.
	Get(ctx context.Context, id uint64) (*record.Record, bool, error)

	// Search returns all records matching q (never nil).
	Search(ctx context.Context, q search.Query) ([]record.Record, error)

	// Delete removes the record with the given id.
	// Returns false (and no error) if the delete could not be confirmed under contention.
	Delete(ctx context.Context, id uint64) (bool, error)
}

// Config configures a record service
type Config struct {
	Keyspace  record.Keyspace // "" = record.DefaultNamespace
	IndexName string          // "" = index.DefaultName
	Txn       *txn.Options    // nil = txn.DefaultOptions()
}

type serviceImpl struct {
	store    store.IStore
	keyspace record.Keyspace
	engine   *txn.Engine
	gateway  *search.Gateway
}

// NewRecordService composes the transaction engine, the search gateway and the
// codec on top of s.
func NewRecordService(s store.IStore, cfg Config) IRecordService {
	def := Index(cfg)
	return &serviceImpl{
		store:    s,
		keyspace: cfg.Keyspace,
		engine:   txn.NewEngine(s, cfg.Txn),
		gateway:  search.NewGateway(s, def, cfg.Keyspace),
	}
}

// Index returns the index definition used by the service
func Index(cfg Config) store.IndexDefinition {
	return index.RecordIndex(cfg.Keyspace, cfg.IndexName)
}

func (s *serviceImpl) Create(ctx context.Context, rec record.Record) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	return s.engine.CreateIfAbsent(ctx, s.keyspace.Key(rec.ID), record.Encode(rec))
}

func (s *serviceImpl) Get(ctx context.Context, id uint64) (*record.Record, bool, error) {
	fields, err := s.store.HGetAll(ctx, s.keyspace.Key(id))
	if err != nil {
		return nil, false, err
	}
	rec, err := record.Decode(fields)
	if err != nil || rec == nil {
		return nil, false, err
	}
	rec.ID = id
	return rec, true, nil
}

func (s *serviceImpl) Search(ctx context.Context, q search.Query) ([]record.Record, error) {
	return s.gateway.Search(ctx, q)
}

func (s *serviceImpl) Delete(ctx context.Context, id uint64) (bool, error) {
	return s.engine.DeleteIfPresent(ctx, s.keyspace.Key(id))
}
