package shm

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Region is a file-backed shared memory region with a length prefix.
// A Region is not safe for concurrent use; callers serialize access
// across processes with a Lock.
type Region struct {
	path  string
	file  *os.File
	mem   []byte
	owner bool
}

// Create makes a new region file of the given capacity in dir and maps it.
// The caller owns the region and must Close it to unlink the file.
func Create(dir string, capacity int64) (*Region, error) {
	if capacity < HeaderSize {
		return nil, fmt.Errorf("region capacity %d smaller than header", capacity)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create region directory: %w", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("lineage-region-%d-%s", os.Getpid(), uuid.NewString()))
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create region file: %w", err)
	}

	// Sparse: pages are only backed once written.
	if err := f.Truncate(capacity); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to size region file: %w", err)
	}

	mem, err := mapFile(f, int(capacity))
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to map region: %w", err)
	}

	r := &Region{path: path, file: f, mem: mem, owner: true}
	binary.NativeEndian.PutUint64(r.mem[:HeaderSize], 0)
	return r, nil
}

// Attach maps an existing region created by an ancestor process.
func Attach(path string) (*Region, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to open region file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to stat region file: %w", err)
	}
	if info.Size() < HeaderSize {
		_ = f.Close()
		return nil, fmt.Errorf("%w: region file is %d bytes", ErrRegionCorrupt, info.Size())
	}

	mem, err := mapFile(f, int(info.Size()))
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to map region: %w", err)
	}

	return &Region{path: path, file: f, mem: mem}, nil
}

// Path returns the region file path children attach to.
func (r *Region) Path() string { return r.path }

// Capacity returns the total region size including the header.
func (r *Region) Capacity() int { return len(r.mem) }

// MaxPayload returns the largest payload Write accepts.
func (r *Region) MaxPayload() int { return len(r.mem) - HeaderSize }

// Owner reports whether this process created the region.
func (r *Region) Owner() bool { return r.owner }

// Read returns a copy of the current payload.
func (r *Region) Read() ([]byte, error) {
	if r.mem == nil {
		return nil, ErrRegionClosed
	}
	n := binary.NativeEndian.Uint64(r.mem[:HeaderSize])
	if n > uint64(r.MaxPayload()) {
		return nil, fmt.Errorf("%w: length %d, capacity %d", ErrRegionCorrupt, n, r.MaxPayload())
	}
	out := make([]byte, n)
	copy(out, r.mem[HeaderSize:HeaderSize+int(n)])
	return out, nil
}

// Write replaces the payload. Oversized payloads are rejected before any
// byte of the region changes.
func (r *Region) Write(payload []byte) error {
	if r.mem == nil {
		return ErrRegionClosed
	}
	if len(payload) > r.MaxPayload() {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrRegionOverflow, len(payload), r.MaxPayload())
	}
	copy(r.mem[HeaderSize:], payload)
	binary.NativeEndian.PutUint64(r.mem[:HeaderSize], uint64(len(payload)))
	return nil
}

// Close unmaps the region. The owner also unlinks the file.
// Close is idempotent.
func (r *Region) Close() error {
	if r.mem == nil {
		return nil
	}
	var firstErr error
	if err := unmap(r.mem); err != nil {
		firstErr = fmt.Errorf("failed to unmap region: %w", err)
	}
	r.mem = nil
	if err := r.file.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("failed to close region file: %w", err)
	}
	if r.owner {
		if err := os.Remove(r.path); err != nil && !os.IsNotExist(err) && firstErr == nil {
			firstErr = fmt.Errorf("failed to unlink region file: %w", err)
		}
	}
	return firstErr
}
