package common

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/search"
	"github.com/ValentinKolb/dRec/lib/store"
	"github.com/google/uuid"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"msg_type"`

	// RequestID correlates a response with its request in the logs
	RequestID string `json:"request_id,omitempty"`

	// General fields
	ID      uint64          `json:"id,omitempty"`      // Used for: Get, Delete
	Record  *record.Record  `json:"record,omitempty"`  // Used for: Create (request), Get (response)
	Query   *search.Query   `json:"query,omitempty"`   // Used for: Search (request)
	Records []record.Record `json:"records,omitempty"` // Used for: Search (response)

	// Response only fields
	Ok   bool          `json:"ok,omitempty"`   // Used for: Create, Get, Delete responses
	Code store.RetCode `json:"code,omitempty"` // Error code, RetCSuccess if no error
	Err  string        `json:"err,omitempty"`  // Empty if no error, otherwise contains the error message
}

// Error returns the error carried by the message (nil if there is none).
// The error has the same code as on the server, so errors.Is works across the wire.
func (m *Message) Error() error {
	if m.Err == "" && m.MsgType != MsgTError {
		return nil
	}
	code := m.Code
	if code == store.RetCSuccess {
		code = store.RetCInternalError
	}
	return store.NewError(code, m.Err)
}

// setError stores err in the message
func (m *Message) setError(err error) *Message {
	if err == nil {
		return m
	}
	var se *store.Error
	if errors.As(err, &se) {
		m.Code = se.Code
		m.Err = se.Msg
		if se.Err != nil {
			m.Err = fmt.Sprintf("%s: %v", se.Msg, se.Err)
		}
		return m
	}
	m.Code = store.RetCInternalError
	m.Err = err.Error()
	return m
}

// --------------------------------------------------------------------------
// Message Factory Functions
// --------------------------------------------------------------------------

func newRequest(t MessageType) *Message {
	return &Message{
		MsgType:   t,
		RequestID: uuid.NewString(),
	}
}

// NewCreateRequest creates a new Create request
func NewCreateRequest(rec record.Record) *Message {
	msg := newRequest(MsgTRecCreate)
	msg.Record = &rec
	return msg
}

// NewCreateResponse creates a new Create response
func NewCreateResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTRecCreate,
		Ok:      ok,
	}
	return msg.setError(err)
}

// NewGetRequest creates a new Get request
func NewGetRequest(id uint64) *Message {
	msg := newRequest(MsgTRecGet)
	msg.ID = id
	return msg
}

// NewGetResponse creates a new Get response
func NewGetResponse(rec *record.Record, ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTRecGet,
		Record:  rec,
		Ok:      ok,
	}
	return msg.setError(err)
}

// NewSearchRequest creates a new Search request
func NewSearchRequest(q search.Query) *Message {
	msg := newRequest(MsgTRecSearch)
	msg.Query = &q
	return msg
}

// NewSearchResponse creates a new Search response
func NewSearchResponse(records []record.Record, err error) *Message {
	msg := &Message{
		MsgType: MsgTRecSearch,
		Records: records,
		Ok:      err == nil,
	}
	return msg.setError(err)
}

// NewDeleteRequest creates a new Delete request
func NewDeleteRequest(id uint64) *Message {
	msg := newRequest(MsgTRecDelete)
	msg.ID = id
	return msg
}

// NewDeleteResponse creates a new Delete response
func NewDeleteResponse(ok bool, err error) *Message {
	msg := &Message{
		MsgType: MsgTRecDelete,
		Ok:      ok,
	}
	return msg.setError(err)
}

// NewErrorResponse creates a new Error response
func NewErrorResponse(code store.RetCode, err string) *Message {
	return &Message{
		MsgType: MsgTError,
		Code:    code,
		Err:     err,
	}
}

// --------------------------------------------------------------------------
// Message Type Definition
// --------------------------------------------------------------------------

// MessageType defines the type of message used in RPC communication.
type MessageType uint8

var messageTypeNames = map[MessageType]string{
	MsgTUnknown:   "unknown",
	MsgTSuccess:   "success",
	MsgTError:     "error",
	MsgTRecCreate: "create",
	MsgTRecGet:    "get",
	MsgTRecSearch: "search",
	MsgTRecDelete: "delete",
}

// String returns the string representation of a MessageType.
func (t MessageType) String() string {
	if s, ok := messageTypeNames[t]; ok {
		return s
	}
	return "unknown"
}

// Idempotent reports whether a request of this type may be sent again after
// it reached a server. Reads are, create and delete are not: a resent create
// of a committed record would report AlreadyExists.
func (t MessageType) Idempotent() bool {
	return t == MsgTRecGet || t == MsgTRecSearch
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	for mt, name := range messageTypeNames {
		if name == s {
			*t = mt
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	// General message types

	MsgTUnknown MessageType = iota
	MsgTSuccess             // Indicates a successful operation
	MsgTError               // Indicates an error occurred

	// IRecordService operations

	MsgTRecCreate // Create a record if it does not exist
	MsgTRecGet    // Get a record by id
	MsgTRecSearch // Search records
	MsgTRecDelete // Delete a record if it exists
)
