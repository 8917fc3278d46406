package server

import (
	"context"
	"fmt"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/ValentinKolb/dRec/lib/index"
	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/service"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/lib/store/lstore"
	"github.com/ValentinKolb/dRec/lib/store/rstore"
	"github.com/ValentinKolb/dRec/lib/txn"
	"github.com/ValentinKolb/dRec/rpc/common"
	"github.com/ValentinKolb/dRec/rpc/serializer"
	"github.com/ValentinKolb/dRec/rpc/transport"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var Logger = logger.GetLogger("rpc")

// serverShard is a struct that represents a shard in the RPC server
// It contains the record service of the collection and the adapter
// that handles requests for it
type serverShard struct {
	Config  common.ServerShard
	Service service.IRecordService
	Adapter IRPCServerAdapter
}

// NewRPCServer creates a new RPC server
// It takes a config, transport and serializer as parameters
//
// Usage:
//
//	s := server.NewRPCServer(
//		*config,
//		http.NewHttpServerTransport(),
//		serializer.NewJSONSerializer(),
//	)
//
//	if err := s.Serve(ctx); err != nil {
//		panic(err)
//	 }
func NewRPCServer(
	config common.ServerConfig,
	transport transport.IRPCServerTransport,
	serializer serializer.IRPCSerializer,
) rpcServer {
	// https://github.com/golang/go/issues/17393
	if runtime.GOOS == "darwin" {
		signal.Ignore(syscall.Signal(0xd))
	}

	// Create shards map
	shardMap := xsync.NewMapOf[uint64, serverShard]()

	Logger.Infof("Created RPC Server")
	Logger.Infof(config.String())

	// Create the RPC server
	return rpcServer{
		config:     config,
		transport:  transport,
		serializer: serializer,
		shards:     shardMap,
	}
}

type rpcServer struct {
	config     common.ServerConfig
	transport  transport.IRPCServerTransport
	serializer serializer.IRPCSerializer
	shards     *xsync.MapOf[uint64, serverShard]
	store      store.IStore
}

// handle decodes a request, routes it to the shard and encodes the response
func (s *rpcServer) handle(ctx context.Context, shardId uint64, req []byte) []byte {
	var msg common.Message
	var respMsg *common.Message

	// Get appropriate shard
	shard, ok := s.shards.Load(shardId)

	// Case shard does not exist -> error
	if !ok {
		respMsg = common.NewErrorResponse(store.RetCInvalidOperation, fmt.Sprintf("shard %d not found", shardId))
	} else if err := s.serializer.Deserialize(req, &msg); err != nil {
		respMsg = common.NewErrorResponse(store.RetCInvalidOperation, fmt.Sprintf("failed to deserialize request: %s", err))
	} else {
		if s.config.TimeoutSecond > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(s.config.TimeoutSecond)*time.Second)
			defer cancel()
		}

		// Let the adapter handle the request
		respMsg = shard.Adapter.Handle(ctx, &msg, shard.Service)
		respMsg.RequestID = msg.RequestID
		if respMsg.Err != "" {
			Logger.Debugf("request %s (%s) on shard %d failed: %s", msg.RequestID, msg.MsgType, shardId, respMsg.Err)
		}
	}
	metrics.GetOrCreateCounter(fmt.Sprintf(`drec_rpc_requests_total{type=%q,code=%q}`, msg.MsgType, respMsg.Code)).Inc()

	// Return result
	val, err := s.serializer.Serialize(*respMsg)
	if err != nil {
		Logger.Errorf("failed to serialize response: %v", err)
		val, _ = s.serializer.Serialize(*common.NewErrorResponse(
			store.RetCInternalError,
			fmt.Sprintf("failed to serialize response: %s", err),
		))
	}
	return val
}

// openStore creates the store all shards share
func (s *rpcServer) openStore() (store.IStore, error) {
	switch s.config.Store {
	case common.StoreTypeLocal:
		return lstore.NewLocalStore(), nil
	case common.StoreTypeRedis:
		return rstore.NewRedisStore(&rstore.Options{
			Addr:          s.config.Redis.Addr,
			Username:      s.config.Redis.Username,
			Password:      s.config.Redis.Password,
			DB:            s.config.Redis.DB,
			PoolSize:      s.config.Redis.PoolSize,
			DisableSearch: s.config.Redis.DisableSearch,
		}), nil
	default:
		return nil, fmt.Errorf("invalid store type: %q", s.config.Store)
	}
}

func (s *rpcServer) init(ctx context.Context) error {
	if len(s.config.Shards) == 0 {
		return fmt.Errorf("no shards configured")
	}

	st, err := s.openStore()
	if err != nil {
		return err
	}
	s.store = st

	// the store must be reachable before any shard is served
	if s.config.Store == common.StoreTypeRedis {
		if err := rstore.Ping(ctx, st); err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", s.config.Redis.Addr, err)
		}
	}

	txOpts := &txn.Options{
		MaxAttempts: s.config.MaxAttempts,
		Timeout:     s.config.TxTimeout,
	}

	// CREATE SHARDS

	/*
		Note: All shards share the same store. Each shard is a separate
		collection (namespace + index) with its own record service.
	*/

	for _, shardConfig := range s.config.Shards {
		if _, exists := s.shards.Load(shardConfig.ShardID); exists {
			return fmt.Errorf("duplicate shard id %d", shardConfig.ShardID)
		}

		cfg := service.Config{
			Keyspace:  record.Keyspace(shardConfig.Namespace),
			IndexName: shardConfig.IndexName,
			Txn:       txOpts,
		}

		// a missing index only degrades search, so the shard is served anyway
		if st.SupportsFeature(store.FeatureSearch) {
			if err := index.NewManager(st).EnsureIndex(ctx, service.Index(cfg)); err != nil {
				Logger.Warningf("shard %d: search index unavailable: %v", shardConfig.ShardID, err)
			}
		}

		s.shards.Store(shardConfig.ShardID, serverShard{
			Config:  shardConfig,
			Service: service.NewRecordService(st, cfg),
			Adapter: NewRecordServerAdapter(),
		})
		Logger.Infof("created record shard %d (%s)", shardConfig.ShardID, cfg.Keyspace.Prefix())
	}

	Logger.Infof("dRec setup completed successfully")

	// Configure the transport layer
	s.transport.RegisterHandler(s.handle)
	s.transport.RegisterHealthCheck(s.health)

	return nil
}

// health checks the connection to the backing store
func (s *rpcServer) health(ctx context.Context) error {
	if s.config.Store == common.StoreTypeRedis {
		return rstore.Ping(ctx, s.store)
	}
	return nil
}

// Serve starts the RPC server
// This function will also initialize the server plus the shards and start the transport layer.
// It blocks until ctx is canceled or the transport fails.
func (s *rpcServer) Serve(ctx context.Context) error {
	err := s.init(ctx)
	if err != nil {
		if s.store != nil {
			_ = s.store.Close()
		}
		return err
	}
	defer func() {
		if err := s.store.Close(); err != nil {
			Logger.Errorf("failed to close store: %v", err)
		}
	}()
	return s.transport.Listen(ctx, s.config)
}
