package rstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/redis/go-redis/v9"
)

var log = logger.GetLogger("store")

// Options configures the connection pool of the redis store
type Options struct {
	Addr         string        // host:port of the redis server
	Username     string        // ACL user (optional)
	Password     string        // password (optional)
	DB           int           // logical database (search indexes only work on db 0)
	PoolSize     int           // max. connections (0 = go-redis default of 10 per CPU)
	DialTimeout  time.Duration // (0 = go-redis default)
	ReadTimeout  time.Duration // (0 = go-redis default)
	WriteTimeout time.Duration // (0 = go-redis default)
	// DisableSearch marks the server as not having the search module
	// (e.g. plain redis or an emulator without FT.* commands)
	DisableSearch bool
}

// DefaultOptions returns options for a local redis server
func DefaultOptions() *Options {
	return &Options{
		Addr: "localhost:6379",
	}
}

type storeImpl struct {
	client   *redis.Client
	features store.Feature
}

// NewRedisStore creates a new store backed by a go-redis connection pool.
// The pool is shared by all requests, every Watch call checks out a dedicated
// connection for the duration of the session.
func NewRedisStore(opts *Options) store.IStore {
	if opts == nil {
		opts = DefaultOptions()
	}

	features := store.FeatureWatch | store.FeatureHash
	if !opts.DisableSearch {
		features |= store.FeatureSearch
	}

	client := redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Username:     opts.Username,
		Password:     opts.Password,
		DB:           opts.DB,
		PoolSize:     opts.PoolSize,
		DialTimeout:  opts.DialTimeout,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
		// FT.SEARCH replies are only parsed into typed results with RESP2
		Protocol: 2,
	})

	log.Infof("created redis store for %s (db %d)", opts.Addr, opts.DB)

	return &storeImpl{
		client:   client,
		features: features,
	}
}

// Ping checks the connection to the redis server
func Ping(ctx context.Context, s store.IStore) error {
	impl, ok := s.(*storeImpl)
	if !ok {
		return fmt.Errorf("not a redis store")
	}
	return impl.client.Ping(ctx).Err()
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Watch(ctx context.Context, fn func(tx store.ITx) error, keys ...string) error {
	err := s.client.Watch(ctx, func(tx *redis.Tx) error {
		return fn(&txImpl{tx: tx})
	}, keys...)
	if err == nil {
		return nil
	}
	// errors produced by fn (or by the tx) are passed through unchanged
	var se *store.Error
	if errors.As(err, &se) {
		return err
	}
	return store.WrapError(store.RetCInternalError, "watch failed", err)
}

func (s *storeImpl) Exists(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, store.WrapError(store.RetCInternalError, "EXISTS failed", err)
	}
	return n > 0, nil
}

func (s *storeImpl) HSetAll(ctx context.Context, key string, fields map[string]string) error {
	if len(fields) == 0 {
		return store.NewError(store.RetCInvalidOperation, "HSetAll requires at least one field")
	}
	if err := s.client.HSet(ctx, key, toArgs(fields)).Err(); err != nil {
		return store.WrapError(store.RetCInternalError, "HSET failed", err)
	}
	return nil
}

func (s *storeImpl) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, store.WrapError(store.RetCInternalError, "HGETALL failed", err)
	}
	return fields, nil
}

func (s *storeImpl) Del(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return false, store.WrapError(store.RetCInternalError, "DEL failed", err)
	}
	return n > 0, nil
}

func (s *storeImpl) CreateIndex(ctx context.Context, def store.IndexDefinition) error {
	if !s.SupportsFeature(store.FeatureSearch) {
		return store.NewError(store.RetCUnsupportedOperation, "search is disabled for this store")
	}

	schema := make([]*redis.FieldSchema, 0, len(def.Fields))
	for _, f := range def.Fields {
		fs := &redis.FieldSchema{
			FieldName: f.Name,
			Sortable:  f.Sortable,
		}
		switch f.Kind {
		case store.FieldText:
			fs.FieldType = redis.SearchFieldTypeText
			fs.Weight = f.Weight
		case store.FieldTag:
			fs.FieldType = redis.SearchFieldTypeTag
			fs.Separator = f.Separator
		case store.FieldNumeric:
			fs.FieldType = redis.SearchFieldTypeNumeric
		default:
			return store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unsupported field kind %s", f.Kind))
		}
		schema = append(schema, fs)
	}

	err := s.client.FTCreate(ctx, def.Name, &redis.FTCreateOptions{
		OnHash: true,
		Prefix: []interface{}{def.Prefix},
	}, schema...).Err()
	if err == nil {
		return nil
	}
	if strings.Contains(strings.ToLower(err.Error()), "index already exists") {
		return store.WrapError(store.RetCIndexExists, "Index already exists", err)
	}
	return store.WrapError(store.RetCInternalError, "FT.CREATE failed", err)
}

func (s *storeImpl) Search(ctx context.Context, index, query string, opts store.SearchOptions) (store.SearchResult, error) {
	if !s.SupportsFeature(store.FeatureSearch) {
		return store.SearchResult{}, store.NewError(store.RetCUnsupportedOperation, "search is disabled for this store")
	}

	args := &redis.FTSearchOptions{
		LimitOffset: opts.Offset,
		Limit:       opts.Limit,
	}
	res, err := s.client.FTSearchWithArgs(ctx, index, query, args).Result()
	if err != nil {
		return store.SearchResult{}, classifySearchError(err)
	}

	docs := make([]store.Document, 0, len(res.Docs))
	for _, d := range res.Docs {
		docs = append(docs, store.Document{ID: d.ID, Fields: d.Fields})
	}
	return store.SearchResult{Total: res.Total, Docs: docs}, nil
}

func (s *storeImpl) SupportsFeature(feature store.Feature) bool {
	return s.features&feature == feature
}

func (s *storeImpl) Close() error {
	return s.client.Close()
}

// --------------------------------------------------------------------------
// Transaction
// --------------------------------------------------------------------------

type txImpl struct {
	tx *redis.Tx
}

func (t *txImpl) Exists(ctx context.Context, key string) (bool, error) {
	n, err := t.tx.Exists(ctx, key).Result()
	if err != nil {
		return false, store.WrapError(store.RetCInternalError, "EXISTS failed", err)
	}
	return n > 0, nil
}

func (t *txImpl) Unwatch(ctx context.Context) error {
	if err := t.tx.Unwatch(ctx).Err(); err != nil {
		return store.WrapError(store.RetCInternalError, "UNWATCH failed", err)
	}
	return nil
}

func (t *txImpl) Commit(ctx context.Context, cmds []store.Command) (int, error) {
	res, err := t.tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, cmd := range cmds {
			switch cmd.Type {
			case store.CmdHSetAll:
				pipe.HSet(ctx, cmd.Key, toArgs(cmd.Fields))
			case store.CmdDel:
				pipe.Del(ctx, cmd.Key)
			default:
				return store.NewError(store.RetCInvalidOperation, fmt.Sprintf("unsupported command %s", cmd.Type))
			}
		}
		return nil
	})
	if errors.Is(err, redis.TxFailedErr) {
		return 0, store.ErrWatchConflict
	}
	if err != nil {
		var se *store.Error
		if errors.As(err, &se) {
			return 0, err
		}
		return 0, store.WrapError(store.RetCInternalError, "EXEC failed", err)
	}
	return len(res), nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func toArgs(fields map[string]string) map[string]interface{} {
	args := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		args[k] = v
	}
	return args
}

// classifySearchError maps the error replies of FT.SEARCH to store error codes.
// Only replies of the server are classified, connection errors are internal errors.
func classifySearchError(err error) error {
	var rerr redis.Error
	if !errors.As(err, &rerr) {
		return store.WrapError(store.RetCInternalError, "FT.SEARCH failed", err)
	}
	msg := strings.ToLower(rerr.Error())
	switch {
	case strings.Contains(msg, "no such index"), strings.Contains(msg, "unknown index name"):
		return store.WrapError(store.RetCIndexMissing, "index does not exist", err)
	case strings.Contains(msg, "syntax error"), strings.Contains(msg, "unknown field"),
		strings.Contains(msg, "bad upper range"), strings.Contains(msg, "bad lower range"):
		return store.WrapError(store.RetCInvalidQuery, "invalid query", err)
	default:
		return store.WrapError(store.RetCInternalError, "FT.SEARCH failed", err)
	}
}
