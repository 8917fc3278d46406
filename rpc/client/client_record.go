package client

import (
	"context"

	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/search"
	"github.com/ValentinKolb/dRec/lib/service"
	"github.com/ValentinKolb/dRec/rpc/common"
	"github.com/ValentinKolb/dRec/rpc/serializer"
	"github.com/ValentinKolb/dRec/rpc/transport"
)

// IRecordClient is a record service that talks to a remote server
type IRecordClient interface {
	service.IRecordService
	// Close releases the connections of the transport
	Close() error
}

// NewRPCRecordService creates a new RPC record client
// The function takes a shard ID, a config, a transport and a serializer as parameters
// It returns an IRecordClient and an error
func NewRPCRecordService(
	shardId uint64,
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (IRecordClient, error) {

	// Connect the transport
	err := transport.Connect(config)
	if err != nil {
		return nil, err
	}

	// Create a new RPC record client
	s := rpcRecordService{
		rpcClientAdapter{
			shardId:    shardId,
			config:     config,
			transport:  transport,
			serializer: serializer,
		},
	}

	// Return the RPC record client
	return &s, nil
}

type rpcRecordService struct {
	rpcClientAdapter
}

// --------------------------------------------------------------------------
// Interface Methods (docu see service.IRecordService)
// --------------------------------------------------------------------------

func (c *rpcRecordService) Create(ctx context.Context, rec record.Record) (bool, error) {
	// the json serializer cannot carry a non-finite measure
	if err := rec.Validate(); err != nil {
		return false, err
	}
	resp, err := c.invoke(ctx, common.NewCreateRequest(rec))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (c *rpcRecordService) Get(ctx context.Context, id uint64) (*record.Record, bool, error) {
	resp, err := c.invoke(ctx, common.NewGetRequest(id))
	if err != nil {
		return nil, false, err
	}
	if !resp.Ok {
		return nil, false, nil
	}
	// gob drops a record with only zero fields
	if resp.Record == nil {
		return &record.Record{ID: id}, true, nil
	}
	return resp.Record, true, nil
}

func (c *rpcRecordService) Search(ctx context.Context, q search.Query) ([]record.Record, error) {
	resp, err := c.invoke(ctx, common.NewSearchRequest(q))
	if err != nil {
		return nil, err
	}
	// empty results are dropped from the wire
	if resp.Records == nil {
		return []record.Record{}, nil
	}
	return resp.Records, nil
}

func (c *rpcRecordService) Delete(ctx context.Context, id uint64) (bool, error) {
	resp, err := c.invoke(ctx, common.NewDeleteRequest(id))
	if err != nil {
		return false, err
	}
	return resp.Ok, nil
}

func (c *rpcRecordService) Close() error {
	return c.transport.Close()
}
