package client

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/rpc/common"
	"github.com/ValentinKolb/dRec/rpc/serializer"
	"github.com/ValentinKolb/dRec/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("client")
)

// rpcClientAdapter is a struct that stores all data needed for an implementation if an RPC client
// Used by the record client with composition pattern
type rpcClientAdapter struct {
	shardId    uint64
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// invoke sends req to the shard of the adapter
func (a *rpcClientAdapter) invoke(ctx context.Context, req *common.Message) (*common.Message, error) {
	return invokeRPCRequest(ctx, a.shardId, req, a.transport, a.serializer)
}

// invokeRPCRequest is a helper function used for all RPC Clients to send requests
// It takes a shard ID, a request message, a transport layer and a serializer as parameters
// It returns a response message and an error if any occurs
// This method also checks if the response is an error response and if the type of the response is the expected type
func invokeRPCRequest(ctx context.Context, shardId uint64, req *common.Message, transport transport.IRPCClientTransport, serializer serializer.IRPCSerializer) (*common.Message, error) {
	// Serialize the request
	reqBytes, err := serializer.Serialize(*req)
	if err != nil {
		return nil, store.WrapError(store.RetCInternalError, "failed to serialize request", err)
	}

	// Send the handler
	respBytes, err := transport.Send(ctx, shardId, reqBytes, req.MsgType.Idempotent())
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, store.WrapError(store.RetCTransactionFailure, "request aborted", ctxErr)
		}
		return nil, store.WrapError(store.RetCInternalError, "rpc transport", err)
	}

	// Deserialize the response
	resp := &common.Message{}
	err = serializer.Deserialize(respBytes, resp)
	if err != nil {
		return nil, store.WrapError(store.RetCInternalError, "failed to deserialize response", err)
	}

	// Check if the response is an error response (the code of the server error is kept)
	if err := resp.Error(); err != nil {
		Logger.Debugf("request %s (%s) failed: %v", req.RequestID, req.MsgType, err)
		return nil, err
	}

	// Check if the type of the response is the expected type
	if resp.MsgType != req.MsgType {
		return nil, store.NewError(store.RetCInternalError,
			fmt.Sprintf("unexpected message type: %s, expected %s", resp.MsgType, req.MsgType))
	}

	// Return the response
	return resp, nil
}
