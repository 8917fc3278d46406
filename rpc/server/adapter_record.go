package server

import (
	"context"
	"fmt"

	"github.com/ValentinKolb/dRec/lib/search"
	"github.com/ValentinKolb/dRec/lib/service"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/rpc/common"
)

func NewRecordServerAdapter() IRPCServerAdapter {
	return &recordServerAdapterImpl{}
}

type recordServerAdapterImpl struct{}

func (adapter *recordServerAdapterImpl) Handle(ctx context.Context, req *common.Message, svc service.IRecordService) *common.Message {
	// Check for nil service
	if svc == nil {
		return common.NewErrorResponse(store.RetCInternalError, "handler: service is nil")
	}

	// Handle different message types
	switch req.MsgType {
	case common.MsgTRecCreate:
		if req.Record == nil {
			return common.NewErrorResponse(store.RetCInvalidOperation, "create request without record")
		}
		ok, err := svc.Create(ctx, *req.Record)
		return common.NewCreateResponse(ok, err)
	case common.MsgTRecGet:
		rec, ok, err := svc.Get(ctx, req.ID)
		return common.NewGetResponse(rec, ok, err)
	case common.MsgTRecSearch:
		var q search.Query
		if req.Query != nil {
			q = *req.Query
		}
		records, err := svc.Search(ctx, q)
		return common.NewSearchResponse(records, err)
	case common.MsgTRecDelete:
		ok, err := svc.Delete(ctx, req.ID)
		return common.NewDeleteResponse(ok, err)
	default:
		return common.NewErrorResponse(
			store.RetCUnsupportedOperation,
			fmt.Sprintf("RPC RecordAdapter - Unsupported message type: %s", req.MsgType),
		)
	}
}
