package lstore

import (
	"context"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/lib/store/lstore/internal"
	"github.com/puzpuzpuz/xsync/v3"
)

const (
	defaultSearchLimit = 10
	supportedFeatures  = store.FeatureWatch | store.FeatureHash | store.FeatureSearch
)

type storeImpl struct {
	// hashes are never mutated in place, every write stores a fresh copy
	data     *xsync.MapOf[string, map[string]string]
	versions *xsync.MapOf[string, uint64]
	indexes  *xsync.MapOf[string, store.IndexDefinition]
	clock    atomic.Uint64

	// watchers counts open Watch scopes. Deletes made while a watch is open
	// leave a tombstone version that is pruned once the last watch ends.
	watchers   atomic.Int64
	tombstones *xsync.MapOf[string, struct{}]

	// writers hold the lock exclusively, watch snapshots hold it shared
	writeMu sync.RWMutex
	closed  atomic.Bool
}

// NewLocalStore creates a new local store instance.
// This store implementation is not distributed and only works inside a single process.
func NewLocalStore() store.IStore {
	return &storeImpl{
		data:     xsync.NewMapOf[string, map[string]string](),
		versions: xsync.NewMapOf[string, uint64](),
		indexes:  xsync.NewMapOf[string, store.IndexDefinition](),

		tombstones: xsync.NewMapOf[string, struct{}](),
	}
}

// bump records a modification of key.
//
// Thread-safety: must be called with writeMu held exclusively.
func (s *storeImpl) bump(key string) {
	s.versions.Store(key, s.clock.Add(1))
	s.tombstones.Delete(key)
}

// forget records the deletion of key. Without an open watch the version is
// dropped, a later write gets a fresh clock value that no earlier snapshot holds.
// With an open watch a tombstone version is kept so the watcher still sees the delete.
//
// Thread-safety: must be called with writeMu held exclusively.
func (s *storeImpl) forget(key string) {
	if s.watchers.Load() == 0 {
		s.versions.Delete(key)
		s.tombstones.Delete(key)
		return
	}
	s.bump(key)
	s.tombstones.Store(key, struct{}{})
}

// unwatch ends a watch scope and prunes the tombstones once no watch is open
func (s *storeImpl) unwatch() {
	if s.watchers.Add(-1) != 0 || s.tombstones.Size() == 0 {
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if s.watchers.Load() != 0 {
		return
	}
	s.tombstones.Range(func(key string, _ struct{}) bool {
		if _, ok := s.data.Load(key); !ok {
			s.versions.Delete(key)
		}
		s.tombstones.Delete(key)
		return true
	})
}

// version returns the current version of key (0 if the key was never written).
func (s *storeImpl) version(key string) uint64 {
	v, _ := s.versions.Load(key)
	return v
}

// apply executes a single command.
//
// Thread-safety: must be called with writeMu held exclusively.
func (s *storeImpl) apply(cmd store.Command) {
	switch cmd.Type {
	case store.CmdHSetAll:
		merged := make(map[string]string, len(cmd.Fields))
		if old, ok := s.data.Load(cmd.Key); ok {
			for k, v := range old {
				merged[k] = v
			}
		}
		for k, v := range cmd.Fields {
			merged[k] = v
		}
		s.data.Store(cmd.Key, merged)
		s.bump(cmd.Key)
	case store.CmdDel:
		if _, ok := s.data.LoadAndDelete(cmd.Key); ok {
			s.forget(cmd.Key)
		}
	}
}

func (s *storeImpl) checkOpen(ctx context.Context) error {
	if s.closed.Load() {
		return store.NewError(store.RetCInternalError, "store is closed")
	}
	if err := ctx.Err(); err != nil {
		return store.WrapError(store.RetCInternalError, "context done", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Watch(ctx context.Context, fn func(tx store.ITx) error, keys ...string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}

	// take the snapshot atomically with respect to writers
	watched := make(map[string]uint64, len(keys))
	s.writeMu.RLock()
	s.watchers.Add(1)
	for _, k := range keys {
		watched[k] = s.version(k)
	}
	s.writeMu.RUnlock()

	tx := &txImpl{store: s, watched: watched}
	defer func() {
		tx.close()
		s.unwatch()
	}()
	return fn(tx)
}

func (s *storeImpl) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.checkOpen(ctx); err != nil {
		return false, err
	}
	_, ok := s.data.Load(key)
	return ok, nil
}

func (s *storeImpl) HSetAll(ctx context.Context, key string, fields map[string]string) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if len(fields) == 0 {
		return store.NewError(store.RetCInvalidOperation, "HSetAll requires at least one field")
	}
	s.writeMu.Lock()
	s.apply(store.HSetAllCommand(key, fields))
	s.writeMu.Unlock()
	return nil
}

func (s *storeImpl) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	if err := s.checkOpen(ctx); err != nil {
		return nil, err
	}
	fields, ok := s.data.Load(key)
	if !ok {
		return map[string]string{}, nil
	}
	return copyFields(fields), nil
}

func (s *storeImpl) Del(ctx context.Context, key string) (bool, error) {
	if err := s.checkOpen(ctx); err != nil {
		return false, err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	_, ok := s.data.Load(key)
	s.apply(store.DelCommand(key))
	return ok, nil
}

func (s *storeImpl) CreateIndex(ctx context.Context, def store.IndexDefinition) error {
	if err := s.checkOpen(ctx); err != nil {
		return err
	}
	if def.Name == "" || len(def.Fields) == 0 {
		return store.NewError(store.RetCInvalidOperation, "index needs a name and at least one field")
	}
	if _, loaded := s.indexes.LoadOrStore(def.Name, def); loaded {
		return store.NewError(store.RetCIndexExists, "Index already exists")
	}
	return nil
}

func (s *storeImpl) Search(ctx context.Context, index, query string, opts store.SearchOptions) (store.SearchResult, error) {
	if err := s.checkOpen(ctx); err != nil {
		return store.SearchResult{}, err
	}
	def, ok := s.indexes.Load(index)
	if !ok {
		return store.SearchResult{}, store.NewError(store.RetCIndexMissing, index+": no such index")
	}

	node, err := internal.Parse(query)
	if err != nil {
		return store.SearchResult{}, store.WrapError(store.RetCInvalidQuery, "invalid query", err)
	}
	if err := node.Check(def); err != nil {
		return store.SearchResult{}, store.WrapError(store.RetCInvalidQuery, "invalid query", err)
	}

	var docs []store.Document
	s.data.Range(func(key string, fields map[string]string) bool {
		if strings.HasPrefix(key, def.Prefix) && node.Match(fields, def) {
			docs = append(docs, store.Document{ID: key, Fields: copyFields(fields)})
		}
		return true
	})
	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })

	return store.SearchResult{Total: len(docs), Docs: page(docs, opts)}, nil
}

func (s *storeImpl) SupportsFeature(feature store.Feature) bool {
	return supportedFeatures&feature == feature
}

func (s *storeImpl) Close() error {
	s.closed.Store(true)
	return nil
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type txImpl struct {
	store   *storeImpl
	watched map[string]uint64 // nil after Unwatch / Commit
	closed  bool
}

func (tx *txImpl) close() {
	tx.closed = true
	tx.watched = nil
}

func (tx *txImpl) Exists(ctx context.Context, key string) (bool, error) {
	if tx.closed {
		return false, store.NewError(store.RetCInvalidOperation, "transaction already closed")
	}
	return tx.store.Exists(ctx, key)
}

func (tx *txImpl) Unwatch(ctx context.Context) error {
	if tx.closed {
		return store.NewError(store.RetCInvalidOperation, "transaction already closed")
	}
	tx.watched = nil
	return tx.store.checkOpen(ctx)
}

func (tx *txImpl) Commit(ctx context.Context, cmds []store.Command) (int, error) {
	if tx.closed {
		return 0, store.NewError(store.RetCInvalidOperation, "transaction already closed")
	}
	if err := tx.store.checkOpen(ctx); err != nil {
		return 0, err
	}

	s := tx.store
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	// like EXEC, a commit always releases the watches
	watched := tx.watched
	tx.watched = nil

	for key, v := range watched {
		if s.version(key) != v {
			return 0, store.ErrWatchConflict
		}
	}
	for _, cmd := range cmds {
		s.apply(cmd)
	}
	return len(cmds), nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func copyFields(fields map[string]string) map[string]string {
	c := make(map[string]string, len(fields))
	for k, v := range fields {
		c[k] = v
	}
	return c
}

func page(docs []store.Document, opts store.SearchOptions) []store.Document {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	if opts.Offset >= len(docs) || opts.Offset < 0 {
		return []store.Document{}
	}
	end := opts.Offset + limit
	if end > len(docs) {
		end = len(docs)
	}
	return docs[opts.Offset:end]
}
