// Package transport defines the interfaces for RPC communication between the
// record client and server. Transports move opaque byte slices, encoding is
// left to the serializer package.
//
// Key Components:
//
//   - IRPCClientTransport: sends a request for a shard and returns the raw response.
//
//   - IRPCServerTransport: receives requests and routes them to the registered
//     ServerHandleFunc together with the shard id. It also serves the health
//     check registered with RegisterHealthCheck.
//
// The only implementation is the http sub package.
package transport
