// Package rpc exposes the record service over the network.
//
// The package is organized into several subpackages:
//
//   - common: the Message protocol, configuration structures and logging.
//
//   - transport: client and server transport interfaces with an HTTP
//     implementation that also serves health and metrics.
//
//   - serializer: JSON and GOB encoding of messages.
//
//   - client: a service.IRecordService that forwards every call to a server.
//
//   - server: routes requests by shard to the record service of the shard.
package rpc
