// Package http implements the HTTP transport of the record RPC system.
//
// Routes served by the server transport:
//
//	POST /rpc/{shardId}   serialized request in, serialized response out
//	GET  /health          200 "ok" or 503 if the store is unreachable
//	GET  /metrics         Prometheus text format (VictoriaMetrics/metrics)
//
// Every request is counted and timed per route. With log level debug each
// request is logged as well.
//
// Key Components:
//
//   - httpClientTransport: sends requests round-robin across the configured
//     endpoints. A failed attempt is retried on the next endpoint, up to
//     RetryCount attempts in total. HTTP status errors are not retried.
//
//   - httpServerTransport: routes requests by shard id to the registered
//     handler. Listen shuts the server down gracefully when its context ends.
//
// Thread Safety:
//
//	The client transport is safe for concurrent use. It uses an atomic
//	counter for the round-robin selection of the endpoint.
package http
