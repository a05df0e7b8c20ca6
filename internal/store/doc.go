// Package store holds events that have been tracked but not yet delivered.
//
// Two EventStore implementations are provided:
//   - MemoryStore: a slice, lost when the process exits
//   - BatchStore: chunked persistence on top of a blob.Store
//
// # Batching
//
// BatchStore accumulates events in an in-memory buffer. When the buffer
// holds batchSize events it is written as one immutable batch blob at the
// current batch index, the buffer is cleared and the index advances. A batch
// is never rewritten or merged. AllEvents reads batches 0..index-1 in order
// and then appends the live buffer; any unreadable batch fails the whole
// read.
//
// # Commit Point
//
// The batch index is committed to a manifest blob after every batch write.
// Reads never look past the committed index, so a batch whose manifest
// update failed, or a stale batch that survived a failed delete, is never
// observed. Later writes at that index replace it.
//
// # Restarts
//
// Close persists the live buffer as a tail blob. OpenBatchStore restores the
// committed index from the manifest and the buffer from the tail, so a clean
// restart sees exactly the sequence that was stored. A crash without Close
// loses at most the events still in the buffer.
//
// # Batch Blob Format
//
//	magic "EVB1" | compression (1 byte) | payload length (uint32 BE) |
//	BLAKE3-256 of payload (32 bytes) | (compressed) payload
//
// The payload is deterministic CBOR of the batch index and the serialized
// events. A bad magic, checksum, length or index is reported as a
// ReadFailure.
package store
