// Package event defines the unit of telemetry handled by the tracker.
//
// The tracker treats events as opaque: it only needs a stable byte form
// for persistence and a human-readable description for log sinks. Embedding
// applications supply their own Event types; Record is the concrete type
// used by the CLI and the scenario harness.
//
// Persisted events are rehydrated through a Decoder, so a store that
// outlives the process must be reopened with the Decoder matching the
// Event type that was written.
package event
