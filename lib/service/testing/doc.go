// Package testing provides standardised tests for implementations of
// service.IRecordService. The same suite runs against the local service and
// against the rpc client talking to a server.
package testing
