package store

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and an optional cause.
//
// Two errors are considered equal by errors.Is if their codes match, so the
// predefined values (e.g. ErrNotFound) can be used as targets:
//
//	if errors.Is(err, store.ErrAlreadyExists) { ... }
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
	Err  error   // The cause (optional)
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" {
		msg = e.Code.String()
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the cause of the error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// WrapError creates a new error with the given code and message wrapping cause.
func WrapError(code RetCode, msg string, cause error) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
		Err:  cause,
	}
}

// CodeOf returns the code of the first *Error in err's chain.
// RetCSuccess is returned for a nil error and RetCInternalError for foreign errors.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return RetCInternalError
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Command executed successfully.
	RetCInternalError                       // 1: Command failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by underlying store.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCAlreadyExists                       // 4: Create precondition violated.
	RetCNotFound                            // 5: Delete (or read) precondition violated.
	RetCTransactionFailure                  // 6: Infrastructure fault while buffering or committing.
	RetCWatchConflict                       // 7: Commit refused because a watched key changed.
	RetCMalformedRecord                     // 8: Stored fields can not be decoded.
	RetCMalformedKey                        // 9: Key does not match the keyspace.
	RetCInvalidQuery                        // 10: Query can not be translated or parsed.
	RetCIndexExists                         // 11: Index already exists.
	RetCIndexMissing                        // 12: Index does not exist.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCAlreadyExists:
		return "AlreadyExists"
	case RetCNotFound:
		return "NotFound"
	case RetCTransactionFailure:
		return "TransactionFailure"
	case RetCWatchConflict:
		return "WatchConflict"
	case RetCMalformedRecord:
		return "MalformedRecord"
	case RetCMalformedKey:
		return "MalformedKey"
	case RetCInvalidQuery:
		return "InvalidQuery"
	case RetCIndexExists:
		return "IndexExists"
	case RetCIndexMissing:
		return "IndexMissing"
	default:
		return "Unknown"
	}
}

// Targets for errors.Is
var (
	ErrInternal           = &Error{Code: RetCInternalError}
	ErrUnsupported        = &Error{Code: RetCUnsupportedOperation}
	ErrInvalidOperation   = &Error{Code: RetCInvalidOperation}
	ErrAlreadyExists      = &Error{Code: RetCAlreadyExists}
	ErrNotFound           = &Error{Code: RetCNotFound}
	ErrTransactionFailure = &Error{Code: RetCTransactionFailure}
	ErrWatchConflict      = &Error{Code: RetCWatchConflict}
	ErrMalformedRecord    = &Error{Code: RetCMalformedRecord}
	ErrMalformedKey       = &Error{Code: RetCMalformedKey}
	ErrInvalidQuery       = &Error{Code: RetCInvalidQuery}
	ErrIndexExists        = &Error{Code: RetCIndexExists}
	ErrIndexMissing       = &Error{Code: RetCIndexMissing}
)
