package store

import (
	"errors"
	"fmt"

	"github.com/roach88/evtrack/internal/blob"
)

// ErrorCode categorizes store failures.
type ErrorCode string

const (
	// ErrCodeReadFailure indicates a persisted batch is missing, corrupt or unreadable.
	ErrCodeReadFailure ErrorCode = "READ_FAILURE"

	// ErrCodeWriteFailure indicates a batch or its manifest could not be written.
	ErrCodeWriteFailure ErrorCode = "WRITE_FAILURE"

	// ErrCodeDeleteFailure indicates a persisted batch could not be removed.
	ErrCodeDeleteFailure ErrorCode = "DELETE_FAILURE"

	// ErrCodeAddressFailure indicates the medium could not resolve a batch location.
	ErrCodeAddressFailure ErrorCode = "ADDRESS_FAILURE"
)

// Error is returned by every EventStore operation that fails.
type Error struct {
	// Code identifies the failure category.
	Code ErrorCode

	// Op names the store operation ("store", "all events", "delete events", "open", "close").
	Op string

	// Addr is the blob involved, if any.
	Addr *blob.Address

	// Err is the underlying cause.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Addr != nil {
		return fmt.Sprintf("%s: %s %s: %v", e.Code, e.Op, e.Addr, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// newError builds an Error, promoting the code to ErrCodeAddressFailure when
// the cause is an unresolvable address.
func newError(code ErrorCode, op string, addr *blob.Address, err error) *Error {
	var ae *blob.AddressError
	if errors.As(err, &ae) {
		code = ErrCodeAddressFailure
	}
	return &Error{Code: code, Op: op, Addr: addr, Err: err}
}

func hasCode(err error, code ErrorCode) bool {
	var se *Error
	if errors.As(err, &se) {
		return se.Code == code
	}
	return false
}

// IsReadFailure returns true if err is a store read failure.
// Uses errors.As to handle wrapped errors.
func IsReadFailure(err error) bool {
	return hasCode(err, ErrCodeReadFailure)
}

// IsWriteFailure returns true if err is a store write failure.
func IsWriteFailure(err error) bool {
	return hasCode(err, ErrCodeWriteFailure)
}

// IsDeleteFailure returns true if err is a store delete failure.
func IsDeleteFailure(err error) bool {
	return hasCode(err, ErrCodeDeleteFailure)
}

// IsAddressFailure returns true if err is an address resolution failure.
func IsAddressFailure(err error) bool {
	return hasCode(err, ErrCodeAddressFailure)
}

// Code returns the ErrorCode carried by err, or "" if err is not a store error.
func Code(err error) ErrorCode {
	var se *Error
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
