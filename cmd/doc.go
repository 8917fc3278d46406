// Package cmd implements the command-line interface of dRec. It provides a
// hierarchical command structure for running the server and for working
// with records as a client.
//
// The package is organized into several subpackages:
//
//   - serve: starts the record server
//   - record: record operations (create, get, delete, search) and a load test (perf)
//   - util: shared utilities for command-line processing and configuration (internal use)
//
// Every flag can also be set as an environment variable DREC_<FLAG> (dashes
// become underscores), .env and .env.local are loaded on startup.
//
// See drec -help for a list of all commands.
package cmd
