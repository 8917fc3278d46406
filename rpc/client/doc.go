// Package client implements the RPC client of the record server. The client
// implements service.IRecordService, so code written against a local record
// service runs unchanged against a remote one.
//
// Key Components:
//
//   - NewRPCRecordService: creates a client for one shard (collection) of a
//     server, using the given transport and serializer.
//
// Errors returned by the server keep their return code, so
// errors.Is(err, store.ErrAlreadyExists) works the same as with a local
// service. Transport failures are reported as store.ErrInternal.
//
// Usage Example:
//
//	config := common.ClientConfig{
//	  Endpoints:     []string{"localhost:8080"},
//	  TimeoutSecond: 5,
//	  RetryCount:    2,
//	}
//
//	records, _ := client.NewRPCRecordService(1, config, http.NewHttpClientTransport(), serializer.NewJSONSerializer())
//	defer records.Close()
//
//	ok, err := records.Create(ctx, record.Record{ID: 1, Name: "Ada", Category: "eng", Measure: 50000})
//
// Thread Safety:
//
//	The client is safe for concurrent use from multiple goroutines.
package client
