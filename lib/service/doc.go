// Package service provides the record service: create and delete run through
// the optimistic transaction engine (lib/txn), get reads the hash directly and
// search runs through the search gateway (lib/search).
//
// The service holds no state besides the store it was built on and can be
// used concurrently.
package service
