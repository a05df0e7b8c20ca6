package event

// Event is an immutable unit of telemetry.
//
// Serialize must return the same bytes for the same event every time it is
// called. Describe is used by log sinks and diagnostics only.
type Event interface {
	Serialize() ([]byte, error)
	Describe() string
}

// Decoder rebuilds an Event from the bytes produced by its Serialize method.
type Decoder func(data []byte) (Event, error)
