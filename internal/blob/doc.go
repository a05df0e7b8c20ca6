// Package blob provides the durable-storage primitive underneath the
// persistent event store.
//
// A blob is an opaque byte region addressed by a logical name and an integer
// index. The package knows nothing about batches or events; it only has to
// support existence checks, create-if-absent, replacing writes, reads and
// removal.
//
// Implementations:
//   - Memory: map-backed, for tests and volatile trackers
//   - Dir: one file per blob, written via temp file + rename
//   - SQLite: one row per blob in a WAL-mode database
//
// Every implementation validates addresses before touching the medium and
// returns *AddressError when an address cannot be resolved.
package blob
