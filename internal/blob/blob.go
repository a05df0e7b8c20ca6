package blob

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Reserved indices for bookkeeping blobs that share a name with batches.
const (
	// ManifestIndex addresses the blob holding the committed batch count.
	ManifestIndex = -1
	// TailIndex addresses the blob holding the un-batched buffer.
	TailIndex = -2
)

// ErrNotFound is returned by Read when no blob exists at the address.
var ErrNotFound = errors.New("blob not found")

// Address identifies one blob.
type Address struct {
	Name  string
	Index int
}

// String renders the address for logs and errors.
func (a Address) String() string {
	switch a.Index {
	case ManifestIndex:
		return a.Name + "#manifest"
	case TailIndex:
		return a.Name + "#tail"
	default:
		return fmt.Sprintf("%s#%d", a.Name, a.Index)
	}
}

// validName keeps names usable as file name components.
var validName = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Validate reports whether the address can be resolved to a storage location.
func (a Address) Validate() error {
	if a.Name == "" {
		return &AddressError{Addr: a, Reason: "empty name"}
	}
	if len(a.Name) > 128 {
		return &AddressError{Addr: a, Reason: "name longer than 128 bytes"}
	}
	if !validName.MatchString(a.Name) {
		return &AddressError{Addr: a, Reason: "name contains characters outside [A-Za-z0-9._-]"}
	}
	if a.Index < 0 && a.Index != ManifestIndex && a.Index != TailIndex {
		return &AddressError{Addr: a, Reason: fmt.Sprintf("negative index %d", a.Index)}
	}
	return nil
}

// AddressError is returned when an address cannot be resolved to a location
// on the underlying medium.
type AddressError struct {
	Addr   Address
	Reason string
}

// Error implements the error interface.
func (e *AddressError) Error() string {
	return fmt.Sprintf("unresolvable blob address %s: %s", e.Addr, e.Reason)
}

// Store is the durable medium supplied by the embedding application.
//
// Write replaces any existing content. Remove of an absent blob succeeds.
// Read returns ErrNotFound (possibly wrapped) for an absent blob.
type Store interface {
	Exists(ctx context.Context, addr Address) (bool, error)
	Create(ctx context.Context, addr Address) error
	Write(ctx context.Context, addr Address, data []byte) error
	Read(ctx context.Context, addr Address) ([]byte, error)
	Remove(ctx context.Context, addr Address) error
}
