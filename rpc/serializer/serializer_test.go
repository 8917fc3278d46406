package serializer

import (
	"reflect"
	"testing"

	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/search"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/ValentinKolb/dRec/rpc/common"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"JSON": NewJSONSerializer,
	"GOB":  NewGOBSerializer,
}

func ptr(f float64) *float64 { return &f }

// testMessages creates a set of test messages with different fields filled
func testMessages() []common.Message {
	return []common.Message{
		// Basic message with just a type
		{MsgType: common.MsgTSuccess},

		// Create request
		{
			MsgType:   common.MsgTRecCreate,
			RequestID: "a5b9c7f2-0f3e-4a8e-9a44-3c1f2b0d6e11",
			Record:    &record.Record{ID: 7, Name: "Ada", Category: "eng", Measure: 50000},
		},

		// Get response
		{
			MsgType: common.MsgTRecGet,
			Record:  &record.Record{ID: 7, Name: "Ada", Category: "eng", Measure: 50000.5},
			Ok:      true,
		},

		// Search request with all predicate kinds
		{
			MsgType: common.MsgTRecSearch,
			Query: &search.Query{
				Predicates: []search.Predicate{
					search.Match(record.FieldName, "ad*"),
					search.Tag(record.FieldCategory, "eng", "ops"),
					{Field: record.FieldMeasure, Op: search.OpRange, Min: ptr(40000), MaxExclusive: true, Max: ptr(60000)},
					search.Not(search.Tag(record.FieldCategory, "sales")),
				},
				Raw:    "@name:bob",
				Offset: 10,
				Limit:  20,
			},
		},

		// Search response
		{
			MsgType: common.MsgTRecSearch,
			Records: []record.Record{
				{ID: 1, Name: "Ada", Category: "eng", Measure: 50000},
				{ID: 2, Name: "Bob", Category: "ops", Measure: -1.25},
			},
			Ok: true,
		},

		// Error response
		{
			MsgType: common.MsgTError,
			Code:    store.RetCInvalidQuery,
			Err:     "test error message",
		},
	}
}

// TestSerializerRoundTrip tests that messages can be serialized and deserialized correctly
func TestSerializerRoundTrip(t *testing.T) {
	messages := testMessages()

	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, msg := range messages {
				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message %d: %v", i, err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message %d: %v", i, err)
					continue
				}

				// Compare
				if !reflect.DeepEqual(msg, result) {
					t.Errorf("Message %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v",
						i, msg, result)
				}
			}
		})
	}
}

// TestMessageTypes tests each message type with each serializer
func TestMessageTypes(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			// Test each message type (don't test for MsgTUnknown since this should raise an error)
			for msgType := common.MsgTSuccess; msgType <= common.MsgTRecDelete; msgType++ {
				msg := common.Message{MsgType: msgType}

				// Serialize
				data, err := serializer.Serialize(msg)
				if err != nil {
					t.Errorf("Failed to serialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Deserialize
				var result common.Message
				err = serializer.Deserialize(data, &result)
				if err != nil {
					t.Errorf("Failed to deserialize message type %s: %v", msgType.String(), err)
					continue
				}

				// Check type
				if result.MsgType != msgType {
					t.Errorf("Message type doesn't match after round trip: Expected %s, got %s",
						msgType.String(), result.MsgType.String())
				}
			}
		})
	}
}

// TestErrorSurvivesRoundTrip checks that the error code is preserved on the wire
func TestErrorSurvivesRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			data, err := serializer.Serialize(*common.NewGetResponse(nil, false, store.NewError(store.RetCMalformedRecord, "bad measure")))
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			var result common.Message
			if err := serializer.Deserialize(data, &result); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if got := store.CodeOf(result.Error()); got != store.RetCMalformedRecord {
				t.Errorf("Expected code %v, got %v", store.RetCMalformedRecord, got)
			}
		})
	}
}

// TestInvalidData tests how the serializers handle corrupt data
func TestInvalidData(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()
			for _, data := range [][]byte{{}, {0xff, 0x01}, []byte(`{"msg_type":`)} {
				var msg common.Message
				if err := serializer.Deserialize(data, &msg); err == nil {
					t.Errorf("Expected error for %q but got none", data)
				}
			}
		})
	}
}

// TestUnknownMessageTypeJSON checks that unknown type names are rejected
func TestUnknownMessageTypeJSON(t *testing.T) {
	var msg common.Message
	if err := NewJSONSerializer().Deserialize([]byte(`{"msg_type":"upsert"}`), &msg); err == nil {
		t.Error("Expected error for unknown message type")
	}
}
