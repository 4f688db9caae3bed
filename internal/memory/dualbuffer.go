// Package memory provides DualBuffer, a vector whose contents live in host memory,
// accelerator memory, or both, with explicit tracking of which copy is authoritative.
package memory

import (
	"fmt"

	"github.com/born-ml/seqtensor/internal/device"
)

// State tells which side of a DualBuffer holds the current values.
type State int

// DualBuffer coherence states.
const (
	// HostAuthoritative: host storage is current, device storage is stale or absent.
	HostAuthoritative State = iota
	// DeviceAuthoritative: device storage is current, host storage is stale.
	DeviceAuthoritative
	// Synced: both copies hold the same values.
	Synced
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case HostAuthoritative:
		return "HostAuthoritative"
	case DeviceAuthoritative:
		return "DeviceAuthoritative"
	case Synced:
		return "Synced"
	default:
		return "Unknown"
	}
}

// DualBuffer is a sequence of T backed by a host slice and an optional device buffer.
//
// Reading a side through HostData or DeviceData copies from the other side first
// when the requested side is stale. Writing through MutableHostData or
// MutableDeviceData marks the other side stale. Writes made to device memory
// behind the buffer's back (for example by a kernel launched on a buffer returned
// from DeviceData) are not detected: callers must call SyncFromDevice before the
// next host read.
//
// DualBuffer is not safe for concurrent use.
type DualBuffer[T Elem] struct {
	host   []T
	dev    device.Buffer
	ctx    device.Context
	state  State
	length int
}

// New creates a DualBuffer holding a copy of initial. ctx may be nil, in which case
// all device-side operations fail with device.ErrDeviceUnavailable.
func New[T Elem](ctx device.Context, initial []T) *DualBuffer[T] {
	host := make([]T, len(initial))
	copy(host, initial)
	return &DualBuffer[T]{
		host:   host,
		ctx:    ctx,
		state:  HostAuthoritative,
		length: len(initial),
	}
}

// Len returns the logical element count.
func (b *DualBuffer[T]) Len() int {
	return b.length
}

// State returns the current coherence state.
func (b *DualBuffer[T]) State() State {
	return b.state
}

// Context returns the accelerator context the buffer was created with.
func (b *DualBuffer[T]) Context() device.Context {
	return b.ctx
}

// HasDevice reports whether device storage has been allocated.
func (b *DualBuffer[T]) HasDevice() bool {
	return b.dev != nil
}

// HostData returns the host view for reading, copying from the device first if
// the host copy is stale. Both sides are valid afterwards.
func (b *DualBuffer[T]) HostData() ([]T, error) {
	if err := b.syncToHost(); err != nil {
		return nil, err
	}
	return b.host[:b.length], nil
}

// MutableHostData returns the host view for writing. The device copy becomes stale.
func (b *DualBuffer[T]) MutableHostData() ([]T, error) {
	if err := b.syncToHost(); err != nil {
		return nil, err
	}
	b.state = HostAuthoritative
	return b.host[:b.length], nil
}

// DeviceData returns the device buffer for reading, allocating it on first use and
// copying from the host if the device copy is stale. Both sides are valid afterwards.
func (b *DualBuffer[T]) DeviceData() (device.Buffer, error) {
	if err := b.syncToDevice(); err != nil {
		return nil, err
	}
	return b.dev, nil
}

// MutableDeviceData returns the device buffer for writing. The host copy becomes stale.
func (b *DualBuffer[T]) MutableDeviceData() (device.Buffer, error) {
	if err := b.syncToDevice(); err != nil {
		return nil, err
	}
	b.state = DeviceAuthoritative
	return b.dev, nil
}

// SyncFromDevice unconditionally copies device storage into host storage, waiting
// for all queued device work first. Use it after mutating device memory out-of-band.
func (b *DualBuffer[T]) SyncFromDevice() error {
	if err := device.Check(b.ctx); err != nil {
		return err
	}
	if b.dev == nil {
		return fmt.Errorf("memory: sync from device: no device storage allocated")
	}
	if err := b.ctx.Synchronize(); err != nil {
		return fmt.Errorf("memory: sync from device: %w", err)
	}
	if err := b.copyToHost(); err != nil {
		return err
	}
	b.state = Synced
	return nil
}

// At returns element i, reading through the host view.
func (b *DualBuffer[T]) At(i int) (T, error) {
	var zero T
	if i < 0 || i >= b.length {
		return zero, &BoundsError{What: "element", Index: i, Len: b.length}
	}
	data, err := b.HostData()
	if err != nil {
		return zero, err
	}
	return data[i], nil
}

// Set assigns element i through the host view.
func (b *DualBuffer[T]) Set(i int, v T) error {
	if i < 0 || i >= b.length {
		return &BoundsError{What: "element", Index: i, Len: b.length}
	}
	data, err := b.MutableHostData()
	if err != nil {
		return err
	}
	data[i] = v
	return nil
}

// Append adds vals at the end through the host view.
func (b *DualBuffer[T]) Append(vals ...T) error {
	if _, err := b.MutableHostData(); err != nil {
		return err
	}
	b.host = append(b.host[:b.length], vals...)
	b.length = len(b.host)
	return nil
}

// Clear sets the length to zero. Host capacity is kept and the host side
// becomes authoritative.
func (b *DualBuffer[T]) Clear() {
	b.host = b.host[:0]
	b.length = 0
	b.state = HostAuthoritative
}

// Resize changes the logical length. New elements are zero. Existing values up to
// min(old, n) are preserved.
func (b *DualBuffer[T]) Resize(n int) error {
	if n < 0 {
		return fmt.Errorf("memory: negative length %d", n)
	}
	if _, err := b.MutableHostData(); err != nil {
		return err
	}
	if n <= cap(b.host) {
		old := b.length
		b.host = b.host[:n]
		if n > old {
			clear(b.host[old:n])
		}
	} else {
		grown := make([]T, n)
		copy(grown, b.host[:b.length])
		b.host = grown
	}
	b.length = n
	return nil
}

// ToSlice returns a copy of the current values.
func (b *DualBuffer[T]) ToSlice() ([]T, error) {
	data, err := b.HostData()
	if err != nil {
		return nil, err
	}
	out := make([]T, len(data))
	copy(out, data)
	return out, nil
}

// Equal reports whether both buffers hold the same values.
func (b *DualBuffer[T]) Equal(other *DualBuffer[T]) (bool, error) {
	if b.length != other.length {
		return false, nil
	}
	x, err := b.HostData()
	if err != nil {
		return false, err
	}
	y, err := other.HostData()
	if err != nil {
		return false, err
	}
	for i := range x {
		if x[i] != y[i] {
			return false, nil
		}
	}
	return true, nil
}

// Clone returns an independent host-authoritative copy on the same context.
func (b *DualBuffer[T]) Clone() (*DualBuffer[T], error) {
	data, err := b.HostData()
	if err != nil {
		return nil, err
	}
	return New(b.ctx, data), nil
}

// Release frees device storage and drops host storage.
func (b *DualBuffer[T]) Release() {
	if b.dev != nil && b.ctx != nil {
		b.ctx.Free(b.dev)
	}
	b.dev = nil
	b.host = nil
	b.length = 0
	b.state = HostAuthoritative
}

func (b *DualBuffer[T]) byteLen() uint64 {
	return uint64(b.length) * uint64(elemSize[T]())
}

// syncToHost copies device → host when the host copy is stale.
func (b *DualBuffer[T]) syncToHost() error {
	if b.state != DeviceAuthoritative {
		return nil
	}
	if err := b.copyToHost(); err != nil {
		return err
	}
	b.state = Synced
	return nil
}

// syncToDevice allocates device storage if needed and copies host → device when
// the device copy is stale.
func (b *DualBuffer[T]) syncToDevice() error {
	if err := device.Check(b.ctx); err != nil {
		return err
	}
	// Host grew since the last upload; growth always leaves the host authoritative.
	if b.dev != nil && b.dev.Size() < b.byteLen() {
		b.ctx.Free(b.dev)
		b.dev = nil
	}
	if b.dev == nil {
		buf, err := b.ctx.Alloc(b.byteLen())
		if err != nil {
			return fmt.Errorf("memory: device alloc: %w", err)
		}
		b.dev = buf
	}
	if b.state == HostAuthoritative {
		if err := b.ctx.CopyToDevice(b.dev, AsBytes(b.host[:b.length])); err != nil {
			return fmt.Errorf("memory: copy to device: %w", err)
		}
	}
	b.state = Synced
	return nil
}

func (b *DualBuffer[T]) copyToHost() error {
	if err := device.Check(b.ctx); err != nil {
		return err
	}
	if err := b.ctx.CopyToHost(AsBytes(b.host[:b.length]), b.dev); err != nil {
		return fmt.Errorf("memory: copy to host: %w", err)
	}
	return nil
}
