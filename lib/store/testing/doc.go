// Package testing provides standardised tests for store implementations that
// satisfy the store.IStore interface.
//
// The package contains:
//   - RunStoreTests: hash operations and the watch / commit contract
//     (conflict detection, unwatch, atomic multi-command commits, racing sessions)
//   - RunSearchTests: index creation and the query subset used by the search gateway
//
// Example usage:
//
//	// Creating a factory function for your implementation
//	factory := func(t testing.TB) store.IStore {
//		return NewMyStore()
//	}
//
//	// Running the standard test suites
//	storetesting.RunStoreTests(t, "MyStore", factory)
//	storetesting.RunSearchTests(t, "MyStore", factory)
package testing
