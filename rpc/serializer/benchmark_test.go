package serializer

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/search"
	"github.com/ValentinKolb/dRec/rpc/common"
)

func searchResponse(n int) common.Message {
	records := make([]record.Record, n)
	for i := range records {
		records[i] = record.Record{ID: uint64(i + 1), Name: fmt.Sprintf("name-%d", i), Category: "eng", Measure: float64(i) * 1000}
	}
	return common.Message{MsgType: common.MsgTRecSearch, Records: records, Ok: true}
}

// benchmarkMessages returns a set of messages for targeted benchmarking
func benchmarkMessages() map[string]common.Message {
	return map[string]common.Message{
		"Empty": {
			MsgType: common.MsgTSuccess,
		},
		"GetRequest": {
			MsgType:   common.MsgTRecGet,
			RequestID: "a5b9c7f2-0f3e-4a8e-9a44-3c1f2b0d6e11",
			ID:        42,
		},
		"CreateRequest": {
			MsgType:   common.MsgTRecCreate,
			RequestID: "a5b9c7f2-0f3e-4a8e-9a44-3c1f2b0d6e11",
			Record:    &record.Record{ID: 42, Name: "Grace Hopper", Category: "eng", Measure: 123456.78},
		},
		"SearchRequest": {
			MsgType: common.MsgTRecSearch,
			Query: &search.Query{
				Predicates: []search.Predicate{
					search.Tag(record.FieldCategory, "eng"),
					search.Range(record.FieldMeasure, 40000, 60000),
				},
				Limit: 100,
			},
		},
		"SmallSearchResponse": searchResponse(10),
		"LargeSearchResponse": searchResponse(1000),
		"ErrorMessage": {
			MsgType: common.MsgTError,
			Err:     "Lorem ipsum dolor sit amet, consectetur adipiscing elit. Sed do eiusmod tempor incididunt ut labore et dolore magna aliqua.",
		},
	}
}

// BenchmarkSerialize benchmarks serialization for all implementations with various message types
func BenchmarkSerialize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					_, err := serializer.Serialize(msg)
					if err != nil {
						b.Fatalf("Failed to serialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkDeserialize benchmarks deserialization for all implementations with various message types
func BenchmarkDeserialize(b *testing.B) {
	messages := benchmarkMessages()
	serializedData := make(map[string]map[string][]byte)

	// Pre-serialize all messages with all serializers
	for name, factory := range testSerializers {
		serializer := factory()
		serializedData[name] = make(map[string][]byte)

		for msgName, msg := range messages {
			data, err := serializer.Serialize(msg)
			if err != nil {
				b.Fatalf("Failed to serialize %s with %s: %v", msgName, name, err)
			}
			serializedData[name][msgName] = data
		}
	}

	// Benchmark deserialization
	for name, factory := range testSerializers {
		for msgName := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				serializer := factory()
				data := serializedData[name][msgName]
				b.ResetTimer()

				for i := 0; i < b.N; i++ {
					var msg common.Message
					if err := serializer.Deserialize(data, &msg); err != nil {
						b.Fatalf("Failed to deserialize: %v", err)
					}
				}
			})
		}
	}
}

// BenchmarkSize reports the serialized size for each message type
func BenchmarkSize(b *testing.B) {
	messages := benchmarkMessages()

	for name, factory := range testSerializers {
		serializer := factory()

		for msgName, msg := range messages {
			b.Run(name+"_"+msgName, func(b *testing.B) {
				data, err := serializer.Serialize(msg)
				if err != nil {
					b.Fatalf("Failed to serialize: %v", err)
				}
				b.ReportMetric(float64(len(data)), "bytes")
				for i := 0; i < b.N; i++ {
					_ = data
				}
			})
		}
	}
}
