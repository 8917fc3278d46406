package store

import (
	"context"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface for interacting with a hash based key–value store
// that offers per-key change detection and atomic multi-command execution.
// All implementations must be safe for concurrent use.
type IStore interface {
	// Watch installs a change-watch on the given keys and runs fn on the
	// connection that holds the watch. The watch is released when fn returns,
	// regardless of the outcome. The ITx must not be used after fn returns.
	Watch(ctx context.Context, fn func(tx ITx) error, keys ...string) (err error)

	// Exists returns whether a key exists in the store.
	Exists(ctx context.Context, key string) (ok bool, err error)
	// HSetAll sets all given fields of the hash stored at key.
	HSetAll(ctx context.Context, key string, fields map[string]string) (err error)
	// HGetAll returns all fields of the hash stored at key.
	// An empty map is returned if the key does not exist.
	HGetAll(ctx context.Context, key string) (fields map[string]string, err error)
	// Del deletes a key. The boolean return value indicates whether the key existed.
	Del(ctx context.Context, key string) (ok bool, err error)

	// CreateIndex creates a secondary index over all hashes whose key starts with def.Prefix.
	// If the index already exists an *Error with code RetCIndexExists is returned.
	CreateIndex(ctx context.Context, def IndexDefinition) (err error)
	// Search runs a query in the index query language against the named index.
	// A query that can not be parsed returns an *Error with code RetCInvalidQuery,
	// an unknown index returns an *Error with code RetCIndexMissing.
	Search(ctx context.Context, index, query string, opts SearchOptions) (result SearchResult, err error)

	// SupportsFeature checks if the store supports the specified feature.
	// Multiple features can be checked at once using bitwise OR (|) operator.
	SupportsFeature(feature Feature) (ok bool)
	// Close releases all resources (e.g. the connection pool) of the store.
	Close() (err error)
}

// ITx is the handle of a single watched session. It is bound to one connection
// and only valid inside the function passed to IStore.Watch.
type ITx interface {
	// Exists returns whether a key exists, read inside the watched window.
	Exists(ctx context.Context, key string) (ok bool, err error)
	// Unwatch releases all watches of the session.
	Unwatch(ctx context.Context) (err error)
	// Commit atomically applies the buffered commands (all or nothing).
	// If a watched key was modified since the watch was installed the commit
	// is refused and ErrWatchConflict is returned. On success the number of
	// applied commands is returned.
	Commit(ctx context.Context, cmds []Command) (applied int, err error)
}

// --------------------------------------------------------------------------
// Commands (buffered inside a transaction)
// --------------------------------------------------------------------------

type CommandType int

const (
	CmdHSetAll CommandType = iota // Set all fields of a hash
	CmdDel                        // Delete a key
)

func (c CommandType) String() string {
	switch c {
	case CmdHSetAll:
		return "HSetAll"
	case CmdDel:
		return "Del"
	default:
		return "Unknown"
	}
}

// Command is a single write that is buffered and applied on commit.
type Command struct {
	Type   CommandType
	Key    string
	Fields map[string]string // Used for: HSetAll
}

// HSetAllCommand creates a command that sets all given fields of the hash at key.
func HSetAllCommand(key string, fields map[string]string) Command {
	return Command{Type: CmdHSetAll, Key: key, Fields: fields}
}

// DelCommand creates a command that deletes key.
func DelCommand(key string) Command {
	return Command{Type: CmdDel, Key: key}
}

// --------------------------------------------------------------------------
// Secondary Index Types
// --------------------------------------------------------------------------

type FieldKind int

const (
	FieldText    FieldKind = iota // Tokenized, searchable by relevance
	FieldTag                      // Exact match, separator delimited multi value
	FieldNumeric                  // Range queryable
)

func (k FieldKind) String() string {
	switch k {
	case FieldText:
		return "TEXT"
	case FieldTag:
		return "TAG"
	case FieldNumeric:
		return "NUMERIC"
	default:
		return "UNKNOWN"
	}
}

// FieldSchema declares a single indexed hash field.
type FieldSchema struct {
	Name      string
	Kind      FieldKind
	Weight    float64 // only for FieldText (0 = store default)
	Separator string  // only for FieldTag ("" = ",")
	Sortable  bool
}

// IndexDefinition declares a secondary index over all hashes whose key starts with Prefix.
type IndexDefinition struct {
	Name   string
	Prefix string
	Fields []FieldSchema
}

// Field returns the schema of the field with the given name.
func (d IndexDefinition) Field(name string) (FieldSchema, bool) {
	for _, f := range d.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSchema{}, false
}

// SearchOptions limits the returned documents. A Limit of 0 means the store default.
type SearchOptions struct {
	Offset int
	Limit  int
}

// Document is a single search hit: the key of the hash and the fields returned by the index.
type Document struct {
	ID     string
	Fields map[string]string
}

// SearchResult holds the total number of matches and the returned page of documents.
type SearchResult struct {
	Total int
	Docs  []Document
}

// --------------------------------------------------------------------------
// Features
// --------------------------------------------------------------------------

// Feature represents store features as bit flags
type Feature uint64

const (
	FeatureWatch  Feature = 1 << iota // Support for Watch / Commit
	FeatureHash                       // Support for HSetAll, HGetAll, Exists, Del
	FeatureSearch                     // Support for CreateIndex and Search
)

func (f Feature) String() string {
	switch f {
	case FeatureWatch:
		return "Watch"
	case FeatureHash:
		return "Hash"
	case FeatureSearch:
		return "Search"
	default:
		return "Unknown"
	}
}
