// Package shm provides the shared state used to merge input sets across
// cooperating processes: a fixed-capacity memory-mapped region and the
// advisory lock that guards it.
//
// Region layout:
//
//	[0:8)   uint64 payload length, native byte order
//	[8:8+n) payload (UTF-8 JSON)
//
// The root process creates the region file and is the only process that
// unlinks it. Descendants attach to the same file by path and map it
// shared, so writes are visible to every process without copying.
package shm

import (
	"errors"
)

// HeaderSize is the length prefix size.
const HeaderSize = 8

var (
	// ErrRegionOverflow is returned when a payload does not fit the region.
	ErrRegionOverflow = errors.New("payload exceeds shared region capacity")

	// ErrRegionCorrupt is returned when the length prefix is out of bounds.
	ErrRegionCorrupt = errors.New("shared region length prefix out of bounds")

	// ErrRegionClosed is returned when using a region after Close.
	ErrRegionClosed = errors.New("shared region closed")

	// ErrLockTimeout is returned when the lock is not acquired in time.
	ErrLockTimeout = errors.New("timed out waiting for region lock")

	// ErrUnsupported is returned on platforms without mmap/flock support.
	ErrUnsupported = errors.New("shared regions not supported on this platform")
)
