// Package device defines the accelerator runtime used by dual-location buffers.
//
// A Context owns accelerator memory and the command queue that moves data between
// host and device. Contexts are created explicitly by the caller and passed to
// every component that needs accelerator storage; there is no process-wide device
// state. A nil Context means no accelerator is available.
package device

import (
	"errors"
	"fmt"
)

// ErrDeviceUnavailable is returned when a device-side operation is requested
// without an initialized accelerator context.
var ErrDeviceUnavailable = errors.New("device: accelerator context unavailable")

// ErrForeignBuffer is returned when a buffer is passed to a context that did not allocate it.
var ErrForeignBuffer = errors.New("device: buffer belongs to another context")

// Buffer is a region of accelerator memory.
type Buffer interface {
	// Size returns the usable size of the buffer in bytes.
	Size() uint64
}

// Context is an accelerator runtime: memory allocation, host/device copies and
// synchronization.
//
// Work submitted through a Context executes in submission order. CopyToDevice is
// asynchronous with respect to the caller; CopyToHost blocks until all work
// submitted before it has finished and the data has landed in dst.
type Context interface {
	// Name returns a human-readable name of the accelerator.
	Name() string

	// Alloc allocates size bytes of device memory.
	Alloc(size uint64) (Buffer, error)

	// Free returns a buffer to the context. Freeing nil is a no-op.
	Free(buf Buffer)

	// CopyToDevice enqueues a copy of src into the start of dst.
	CopyToDevice(dst Buffer, src []byte) error

	// CopyToHost copies len(dst) bytes from the start of src into dst.
	CopyToHost(dst []byte, src Buffer) error

	// Synchronize blocks until all submitted work has completed.
	Synchronize() error

	// Stats returns transfer and memory counters.
	Stats() Stats
}

// Stats reports transfer and memory usage counters of a Context.
type Stats struct {
	HostToDeviceCopies uint64
	HostToDeviceBytes  uint64
	DeviceToHostCopies uint64
	DeviceToHostBytes  uint64
	KernelsRun         uint64
	Flushes            uint64

	// Memory tracking
	TotalAllocatedBytes uint64
	PeakMemoryBytes     uint64
	ActiveBuffers       int64

	// Buffer pool statistics
	PoolHits      uint64
	PoolMisses    uint64
	PooledBuffers int
}

// String returns a one-line summary of the counters.
func (s Stats) String() string {
	return fmt.Sprintf("h2d=%d(%dB) d2h=%d(%dB) kernels=%d flushes=%d active=%d peak=%dB",
		s.HostToDeviceCopies, s.HostToDeviceBytes,
		s.DeviceToHostCopies, s.DeviceToHostBytes,
		s.KernelsRun, s.Flushes, s.ActiveBuffers, s.PeakMemoryBytes)
}

// Check returns ErrDeviceUnavailable if ctx is nil.
func Check(ctx Context) error {
	if ctx == nil {
		return ErrDeviceUnavailable
	}
	return nil
}

// AlignSize rounds size up to a multiple of 4 bytes and never returns zero.
// Accelerator runtimes reject empty buffers and copies that are not 4-byte multiples.
func AlignSize(size uint64) uint64 {
	if size == 0 {
		return 4
	}
	return (size + 3) &^ 3
}
