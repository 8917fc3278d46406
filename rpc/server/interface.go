package server

import (
	"context"

	"github.com/ValentinKolb/dRec/lib/service"
	"github.com/ValentinKolb/dRec/rpc/common"
)

// IRPCServerAdapter is the interface for all RPC server adapters
// It is responsible for handling requests and responses
type IRPCServerAdapter interface {
	// Handle handles a request and returns a response
	// It takes a Message and the record service of the shard as parameters.
	// It returns a Message as a response
	// If an error occurs, it should be set in the response
	Handle(ctx context.Context, req *common.Message, svc service.IRecordService) (resp *common.Message)
}
