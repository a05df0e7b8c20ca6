package flush

import (
	"errors"
	"fmt"
)

// CodeDeliveryFailure is the code reported for delivery errors.
const CodeDeliveryFailure = "DELIVERY_FAILURE"

// DeliveryError wraps the error a Flusher returned.
// The events of the failed delivery remain in the store.
type DeliveryError struct {
	// Count is the number of events in the failed delivery.
	Count int

	// Err is the flusher's error.
	Err error
}

// Error implements the error interface.
func (e *DeliveryError) Error() string {
	return fmt.Sprintf("%s: delivering %d events: %v", CodeDeliveryFailure, e.Count, e.Err)
}

// Unwrap returns the flusher's error.
func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// IsDeliveryFailure returns true if err is a DeliveryError.
// Uses errors.As to handle wrapped errors.
func IsDeliveryFailure(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de)
}
