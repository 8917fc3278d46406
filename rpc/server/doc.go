// Package server implements the RPC server of the record store.
//
// A server serves one or more shards. Each shard is a record collection with
// its own namespace and search index, all shards share one backing store
// (redis or the in-memory local store). Requests are decoded with the
// configured serializer and dispatched to the IRPCServerAdapter of the shard,
// which calls the record service and encodes the result.
//
// Key Components:
//
//   - IRPCServerAdapter: translates a request message into a call on a
//     service.IRecordService.
//
//   - NewRecordServerAdapter: the adapter for create, get, search and delete.
//
//   - NewRPCServer: creates a server with the given transport and serializer.
//     Serve creates the store, ensures the index of every shard and then
//     listens until the context is canceled.
//
// Usage Example:
//
//	config := common.ServerConfig{
//	  Shards:        []common.ServerShard{{ShardID: 1, Namespace: "record", IndexName: "idx:record"}},
//	  Store:         common.StoreTypeRedis,
//	  Redis:         common.RedisConfig{Addr: "localhost:6379"},
//	  Endpoint:      "0.0.0.0:8080",
//	  TimeoutSecond: 5,
//	  LogLevel:      "info",
//	}
//
//	s := server.NewRPCServer(config, http.NewHttpServerTransport(), serializer.NewJSONSerializer())
//	if err := s.Serve(ctx); err != nil {
//	  log.Fatalf("Server error: %v", err)
//	}
//
// Thread Safety:
//
//	Requests are handled concurrently. Serve must be called only once.
package server
