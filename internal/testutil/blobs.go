package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/roach88/evtrack/internal/blob"
)

// ErrInjectedBlob is returned by FaultyBlobs for injected failures.
var ErrInjectedBlob = errors.New("injected blob failure")

// FaultyBlobs wraps a blob.Store and fails chosen operations on chosen
// addresses.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type FaultyBlobs struct {
	blob.Store

	mu     sync.Mutex
	read   map[blob.Address]bool
	write  map[blob.Address]bool
	remove map[blob.Address]bool
}

// NewFaultyBlobs wraps inner. With no failures configured it behaves exactly
// like inner.
func NewFaultyBlobs(inner blob.Store) *FaultyBlobs {
	return &FaultyBlobs{
		Store:  inner,
		read:   make(map[blob.Address]bool),
		write:  make(map[blob.Address]bool),
		remove: make(map[blob.Address]bool),
	}
}

// FailRead makes Read of addr fail until Heal is called.
func (f *FaultyBlobs) FailRead(addr blob.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.read[addr] = true
}

// FailWrite makes Write of addr fail until Heal is called.
func (f *FaultyBlobs) FailWrite(addr blob.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.write[addr] = true
}

// FailRemove makes Remove of addr fail until Heal is called.
func (f *FaultyBlobs) FailRemove(addr blob.Address) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remove[addr] = true
}

// Heal clears every injected failure.
func (f *FaultyBlobs) Heal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	clear(f.read)
	clear(f.write)
	clear(f.remove)
}

func (f *FaultyBlobs) failing(set map[blob.Address]bool, addr blob.Address) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return set[addr]
}

func (f *FaultyBlobs) Read(ctx context.Context, addr blob.Address) ([]byte, error) {
	if f.failing(f.read, addr) {
		return nil, ErrInjectedBlob
	}
	return f.Store.Read(ctx, addr)
}

func (f *FaultyBlobs) Write(ctx context.Context, addr blob.Address, data []byte) error {
	if f.failing(f.write, addr) {
		return ErrInjectedBlob
	}
	return f.Store.Write(ctx, addr, data)
}

func (f *FaultyBlobs) Remove(ctx context.Context, addr blob.Address) error {
	if f.failing(f.remove, addr) {
		return ErrInjectedBlob
	}
	return f.Store.Remove(ctx, addr)
}

// Corrupt flips the last byte of the blob at addr.
func (f *FaultyBlobs) Corrupt(ctx context.Context, addr blob.Address) error {
	data, err := f.Store.Read(ctx, addr)
	if err != nil {
		return err
	}
	if len(data) == 0 {
		return errors.New("cannot corrupt empty blob")
	}
	data[len(data)-1] ^= 0xff
	return f.Store.Write(ctx, addr, data)
}
