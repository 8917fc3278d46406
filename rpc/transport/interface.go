package transport

import (
	"context"

	"github.com/ValentinKolb/dRec/rpc/common"
)

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc is a function type that handles incoming requests
// This function is called by a server transport layer when a request is received
// It takes a shardId and a request as parameters and returns a response
type ServerHandleFunc func(ctx context.Context, shardId uint64, req []byte) (resp []byte)

// HealthCheckFunc reports whether the server can serve requests (nil = healthy)
type HealthCheckFunc func(ctx context.Context) error

// IRPCServerTransport is the interface for the RPC transport layer
// It must accept a RPCServerConfig as a parameter
type IRPCServerTransport interface {
	// RegisterHandler registers a handler for the transport layer
	// This handler should be called when a request is received
	// The transport layer is responsible for routing the request to the appropriate shard
	RegisterHandler(handler ServerHandleFunc)
	// RegisterHealthCheck registers the check used by the health endpoint
	RegisterHealthCheck(check HealthCheckFunc)
	// Listen starts the transport layer and listens for incoming requests
	// until ctx is canceled
	Listen(ctx context.Context, config common.ServerConfig) error
}

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request to the server and returns the response.
	// A request that is not idempotent is only sent again if it did not reach a server.
	Send(ctx context.Context, shardId uint64, req []byte, idempotent bool) (resp []byte, err error)
	// Close closes the transport connection
	Close() error
}
