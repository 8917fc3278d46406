// Package store provides the abstraction over the key-value store that holds
// the records: hash objects, per-key change detection (watch) with atomic
// multi-command commits, and a secondary index for structured search.
//
// The package focuses on:
//   - A unified interface (IStore) that exposes exactly the primitives the
//     optimistic transaction engine and the search gateway need
//   - A structured error system shared by every layer above the store
//
// Key Components:
//
//   - IStore Interface: Watch, Exists, HSetAll, HGetAll, Del, CreateIndex and
//     Search. Watch scopes a session (ITx) to a single connection; the watch is
//     installed before the callback runs and released when it returns, so it is
//     never held across a return to the caller.
//
//   - ITx Interface: Exists (read inside the watched window), Unwatch and
//     Commit. Commit applies a list of buffered Commands all-or-nothing and
//     returns ErrWatchConflict if a watched key changed in the meantime.
//
//   - Error System: *Error carries a RetCode, a message and an optional cause.
//     errors.Is matches on the code, so callers write
//     errors.Is(err, store.ErrNotFound) regardless of the layer that produced
//     the error or whether it crossed the RPC boundary.
//
// Implementations:
//
//   - Redis Store (rstore): backed by a go-redis connection pool against a
//     Redis server with the search module. Watch maps to WATCH / MULTI / EXEC,
//     indexes map to FT.CREATE and FT.SEARCH.
//     Available in the "github.com/ValentinKolb/dRec/lib/store/rstore" package.
//
//   - Local Store (lstore): an in-process implementation with the same watch
//     semantics based on per-key versions and an evaluator for the subset of the
//     index query language emitted by the search gateway. Suitable for tests and
//     single-node deployments without Redis.
//     Available in the "github.com/ValentinKolb/dRec/lib/store/lstore" package.
//
// Both implementations are verified by the shared test suite in
// "github.com/ValentinKolb/dRec/lib/store/testing".
package store
