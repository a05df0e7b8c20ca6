package tracker

import (
	"errors"

	"github.com/roach88/evtrack/internal/flush"
	"github.com/roach88/evtrack/internal/store"
)

// ErrClosed is reported for operations submitted after Close.
var ErrClosed = errors.New("tracker closed")

// ErrNoFlusher is reported by Flush when the tracker has no flusher.
// The stored events are left untouched.
var ErrNoFlusher = errors.New("no flusher configured")

// ErrNilEvent is reported by Track for a nil event.
var ErrNilEvent = errors.New("nil event")

// Codes reported by Code besides the store and delivery codes.
const (
	CodeClosed    = "CLOSED"
	CodeNoFlusher = "NO_FLUSHER"
	CodeNilEvent  = "NIL_EVENT"
	CodeUnknown   = "ERROR"
)

// Code classifies an operation outcome: "" for nil, the store.ErrorCode for
// store failures, flush.CodeDeliveryFailure for delivery failures.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case flush.IsDeliveryFailure(err):
		return flush.CodeDeliveryFailure
	case store.Code(err) != "":
		return string(store.Code(err))
	case errors.Is(err, ErrClosed):
		return CodeClosed
	case errors.Is(err, ErrNoFlusher):
		return CodeNoFlusher
	case errors.Is(err, ErrNilEvent):
		return CodeNilEvent
	default:
		return CodeUnknown
	}
}
