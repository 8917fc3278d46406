// Package serializer encodes the RPC messages exchanged between client and server.
//
// Two implementations of IRPCSerializer exist:
//
//   - jsonSerializerImpl: JSON encoding. Message types are written as their
//     names, so payloads are readable with curl. This is the default.
//
//   - gobSerializerImpl: Go's gob encoding. Smaller for large search
//     responses, only usable between Go peers.
//
// Client and server must use the same serializer.
//
// All serializers are stateless and safe for concurrent use.
//
// Usage:
//
//	s := serializer.NewJSONSerializer()
//	data, err := s.Serialize(*common.NewGetRequest(42))
//	// ... send data ...
//	var resp common.Message
//	err = s.Deserialize(received, &resp)
package serializer
