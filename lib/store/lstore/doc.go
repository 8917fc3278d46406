// Package lstore implements a local, in-memory, single-node hash store based on the
// store.IStore interface. Data lives in concurrent xsync maps and is not persisted
// between process restarts. The store exists so the record service can run without an
// external server (development, tests, the `--store local` flag of `drec serve`).
//
// Key Features:
//   - Hashes with field merge semantics (HSetAll) and full reads (HGetAll)
//   - Optimistic transactions with the same contract as redis WATCH / MULTI / EXEC
//   - Secondary indexes over key prefixes with a subset of the search query language
//   - Thread-safe operations for concurrent access
//
// Implementation Details:
//
//   - Versions: Every successful modification of a key stamps it with the next value of a
//     global logical clock. Versions survive deletes, so a delete followed by a recreate is
//     still seen as a modification by an open watch.
//
//   - Watch: A watch session snapshots the versions of the watched keys. Commit takes the
//     write lock, compares the snapshot with the current versions and either refuses with
//     store.ErrWatchConflict (applying nothing) or applies every buffered command. A commit
//     always releases the watches, refused or not.
//
//   - Search: Queries are parsed by the internal package into a small AST which is matched
//     against every hash whose key starts with the index prefix. Results are ordered by key.
//
// Usage Example:
//
//	s := lstore.NewLocalStore()
//	err := s.Watch(ctx, func(tx store.ITx) error {
//		exists, err := tx.Exists(ctx, "record:1")
//		if err != nil || exists {
//			return err
//		}
//		_, err = tx.Commit(ctx, []store.Command{store.HSetAllCommand("record:1", fields)})
//		return err
//	}, "record:1")
//
// For production use the rstore package connects the same interface to a redis server
// with the search module.
package lstore
