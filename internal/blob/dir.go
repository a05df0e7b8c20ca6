package blob

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
)

// Dir stores each blob as a file inside a single directory.
//
// File names:
//
//	<name>.<index>.batch   batch blobs
//	<name>.manifest        ManifestIndex
//	<name>.tail            TailIndex
//
// Writes go to a temporary file in the same directory and are renamed into
// place, so a reader never observes a half-written blob.
type Dir struct {
	root string
}

// OpenDir creates root (and parents) if needed and returns a Dir rooted there.
func OpenDir(root string) (*Dir, error) {
	if root == "" {
		return nil, fmt.Errorf("open blob dir: empty path")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("open blob dir: %w", err)
	}
	return &Dir{root: root}, nil
}

// Root returns the directory holding the blobs.
func (d *Dir) Root() string {
	return d.root
}

// path resolves an address to a file path.
func (d *Dir) path(addr Address) (string, error) {
	if err := addr.Validate(); err != nil {
		return "", err
	}
	var file string
	switch addr.Index {
	case ManifestIndex:
		file = addr.Name + ".manifest"
	case TailIndex:
		file = addr.Name + ".tail"
	default:
		file = addr.Name + "." + strconv.Itoa(addr.Index) + ".batch"
	}
	return filepath.Join(d.root, file), nil
}

func (d *Dir) Exists(_ context.Context, addr Address) (bool, error) {
	p, err := d.path(addr)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", addr, err)
}

func (d *Dir) Create(_ context.Context, addr Address) error {
	p, err := d.path(addr)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create %s: %w", addr, err)
	}
	return f.Close()
}

func (d *Dir) Write(_ context.Context, addr Address, data []byte) error {
	p, err := d.path(addr)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(d.root, ".blob-*")
	if err != nil {
		return fmt.Errorf("write %s: %w", addr, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write %s: %w", addr, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("sync %s: %w", addr, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close %s: %w", addr, err)
	}
	if err := os.Rename(tmpName, p); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename %s: %w", addr, err)
	}
	return nil
}

func (d *Dir) Read(_ context.Context, addr Address) ([]byte, error) {
	p, err := d.path(addr)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read %s: %w", addr, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", addr, err)
	}
	return data, nil
}

func (d *Dir) Remove(_ context.Context, addr Address) error {
	p, err := d.path(addr)
	if err != nil {
		return err
	}
	err = os.Remove(p)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("remove %s: %w", addr, err)
}
