// Package index declares the record index and creates it idempotently at startup.
//
// The index covers every hash under the keyspace prefix with the schema
//
//	name     TEXT WEIGHT 1
//	category TAG
//	measure  NUMERIC SORTABLE
//
// The outcome of every EnsureIndex call is counted in drec_index_ensure_total.
package index
