package search

import (
	"context"
	"errors"

	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("search")

const (
	DefaultLimit = 100
	MaxLimit     = 10000
)

// Gateway runs structured queries against the record index
type Gateway struct {
	store    store.IStore
	index    store.IndexDefinition
	keyspace record.Keyspace
}

// NewGateway creates a gateway for the index def over the records of ks
func NewGateway(s store.IStore, def store.IndexDefinition, ks record.Keyspace) *Gateway {
	return &Gateway{store: s, index: def, keyspace: ks}
}

// Search returns the records matching q. The result is never nil.
//
// If the index does not exist (or the store has no search support) the
// problem is logged and an empty result is returned.
func (g *Gateway) Search(ctx context.Context, q Query) ([]record.Record, error) {
	if q.Offset < 0 || q.Limit < 0 {
		return nil, store.NewError(store.RetCInvalidQuery, "offset and limit must not be negative")
	}
	limit := q.Limit
	switch {
	case limit == 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}

	query, err := Translate(g.index, q)
	if err != nil {
		return nil, err
	}

	res, err := g.store.Search(ctx, g.index.Name, query, store.SearchOptions{Offset: q.Offset, Limit: limit})
	switch {
	case errors.Is(err, store.ErrIndexMissing), errors.Is(err, store.ErrUnsupported):
		log.Warningf("search on %s degraded, returning no results: %v", g.index.Name, err)
		return []record.Record{}, nil
	case err != nil:
		return nil, err
	}

	records := make([]record.Record, 0, len(res.Docs))
	for _, doc := range res.Docs {
		rec, err := g.keyspace.DecodeDocument(doc)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	log.Debugf("query %q matched %d of %d records", query, len(records), res.Total)
	return records, nil
}
