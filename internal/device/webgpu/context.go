//go:build windows

// Package webgpu implements a device.Context on WebGPU.
// Uses go-webgpu (github.com/go-webgpu/webgpu) for zero-CGO WebGPU bindings.
package webgpu

import (
	"fmt"
	"sync"
	"unsafe"

	"github.com/born-ml/seqtensor/internal/device"
	"github.com/go-webgpu/webgpu/wgpu"
)

// storageUsage is the usage of every buffer handed out by the context.
const storageUsage = wgpu.BufferUsageStorage | wgpu.BufferUsageCopySrc | wgpu.BufferUsageCopyDst

// Buffer is WebGPU device memory.
type Buffer struct {
	buffer *wgpu.Buffer
	size   uint64
	owner  *Context
}

// Size returns the buffer size in bytes.
func (b *Buffer) Size() uint64 {
	return b.size
}

// Raw returns the underlying WebGPU buffer for binding into compute passes.
func (b *Buffer) Raw() *wgpu.Buffer {
	return b.buffer
}

// Context is a device.Context backed by a WebGPU adapter.
type Context struct {
	instance *wgpu.Instance
	adapter  *wgpu.Adapter
	device   *wgpu.Device
	queue    *wgpu.Queue

	adapterInfo *wgpu.AdapterInfo

	// Command batching: copies are accumulated and submitted together.
	pendingCommands []*wgpu.CommandBuffer
	pendingMu       sync.Mutex
	maxBatchSize    int

	stats   device.Stats
	statsMu sync.RWMutex
}

// New creates a WebGPU context.
// Returns an error wrapping device.ErrDeviceUnavailable if no adapter can be acquired.
func New() (ctx *Context, err error) {
	// Recover from panic if wgpu_native library is not found.
	defer func() {
		if r := recover(); r != nil {
			ctx = nil
			err = fmt.Errorf("webgpu: native library not available: %v: %w", r, device.ErrDeviceUnavailable)
		}
	}()

	instance := wgpu.CreateInstance(nil)
	adapter, adapterErr := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		PowerPreference: wgpu.PowerPreferenceHighPerformance,
	})
	if adapterErr != nil {
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request adapter: %v: %w", adapterErr, device.ErrDeviceUnavailable)
	}

	adapterInfo := adapter.GetInfo()

	dev, deviceErr := adapter.RequestDevice(nil)
	if deviceErr != nil {
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to request device: %v: %w", deviceErr, device.ErrDeviceUnavailable)
	}

	queue := dev.GetQueue()
	if queue == nil {
		dev.Release()
		adapter.Release()
		instance.Release()
		return nil, fmt.Errorf("webgpu: failed to get queue: %w", device.ErrDeviceUnavailable)
	}

	return &Context{
		instance:    instance,
		adapter:     adapter,
		device:      dev,
		queue:       queue,
		adapterInfo: &adapterInfo,
	}, nil
}

// Name returns the adapter name.
func (c *Context) Name() string {
	if c.adapterInfo != nil {
		return fmt.Sprintf("WebGPU (%s %s)", c.adapterInfo.Name, c.adapterInfo.VendorName)
	}
	return "WebGPU"
}

// SetMaxBatchSize sets the number of queued copies before auto-flush (0 = no limit).
func (c *Context) SetMaxBatchSize(size int) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.maxBatchSize = size
}

// Alloc creates a storage buffer of at least size bytes.
func (c *Context) Alloc(size uint64) (device.Buffer, error) {
	if c.device == nil {
		return nil, device.ErrDeviceUnavailable
	}
	aligned := device.AlignSize(size)
	buf := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: storageUsage,
		Size:  aligned,
	})
	if buf == nil {
		return nil, fmt.Errorf("webgpu: failed to allocate %d bytes", aligned)
	}
	c.trackAllocation(aligned)
	return &Buffer{buffer: buf, size: aligned, owner: c}, nil
}

// Free releases a buffer after pending copies have been submitted.
func (c *Context) Free(buf device.Buffer) {
	b, ok := buf.(*Buffer)
	if !ok || b == nil || b.owner != c || b.buffer == nil {
		return
	}
	c.flushCommands()
	b.buffer.Release()
	b.buffer = nil
	c.trackRelease(b.size)
}

// CopyToDevice uploads src through a mapped staging buffer and queues the copy into dst.
func (c *Context) CopyToDevice(dst device.Buffer, src []byte) error {
	b, err := c.own(dst)
	if err != nil {
		return err
	}
	if uint64(len(src)) > b.size {
		return fmt.Errorf("webgpu: copy of %d bytes into %d-byte buffer", len(src), b.size)
	}

	size := device.AlignSize(uint64(len(src)))
	staging := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage:            wgpu.BufferUsageCopySrc,
		Size:             size,
		MappedAtCreation: wgpu.True,
	})
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(mapped, src)
	staging.Unmap()

	encoder := c.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(staging, 0, b.buffer, 0, size)
	c.queueCommand(encoder.Finish(nil))
	staging.Release()

	c.statsMu.Lock()
	c.stats.HostToDeviceCopies++
	c.stats.HostToDeviceBytes += uint64(len(src))
	c.statsMu.Unlock()
	return nil
}

// CopyToHost submits pending work and reads src back through a staging buffer.
func (c *Context) CopyToHost(dst []byte, src device.Buffer) error {
	b, err := c.own(src)
	if err != nil {
		return err
	}
	if uint64(len(dst)) > b.size {
		return fmt.Errorf("webgpu: copy of %d bytes from %d-byte buffer", len(dst), b.size)
	}

	c.flushCommands()

	size := device.AlignSize(uint64(len(dst)))
	staging := c.device.CreateBuffer(&wgpu.BufferDescriptor{
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
		Size:  size,
	})
	defer staging.Release()

	encoder := c.device.CreateCommandEncoder(nil)
	encoder.CopyBufferToBuffer(b.buffer, 0, staging, 0, size)
	c.queue.Submit(encoder.Finish(nil))

	if err := staging.MapAsync(c.device, wgpu.MapModeRead, 0, size); err != nil {
		return fmt.Errorf("webgpu: failed to map staging buffer: %w", err)
	}
	mappedPtr := staging.GetMappedRange(0, size)
	//nolint:gosec // unsafe.Slice for zero-copy conversion from unsafe.Pointer
	mapped := unsafe.Slice((*byte)(mappedPtr), size)
	copy(dst, mapped)
	staging.Unmap()

	c.statsMu.Lock()
	c.stats.DeviceToHostCopies++
	c.stats.DeviceToHostBytes += uint64(len(dst))
	c.statsMu.Unlock()
	return nil
}

// Synchronize submits all queued commands.
func (c *Context) Synchronize() error {
	if c.device == nil {
		return device.ErrDeviceUnavailable
	}
	c.flushCommands()
	return nil
}

// Stats returns transfer and memory counters.
func (c *Context) Stats() device.Stats {
	c.statsMu.RLock()
	defer c.statsMu.RUnlock()
	return c.stats
}

// Release releases all WebGPU resources.
func (c *Context) Release() {
	c.flushCommands()

	if c.queue != nil {
		c.queue.Release()
		c.queue = nil
	}
	if c.device != nil {
		c.device.Release()
		c.device = nil
	}
	if c.adapter != nil {
		c.adapter.Release()
		c.adapter = nil
	}
	if c.instance != nil {
		c.instance.Release()
		c.instance = nil
	}
}

func (c *Context) own(buf device.Buffer) (*Buffer, error) {
	if c.device == nil {
		return nil, device.ErrDeviceUnavailable
	}
	b, ok := buf.(*Buffer)
	if !ok || b == nil || b.owner != c || b.buffer == nil {
		return nil, device.ErrForeignBuffer
	}
	return b, nil
}

// queueCommand adds a command buffer to the pending queue for batch submission.
func (c *Context) queueCommand(cmd *wgpu.CommandBuffer) {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()

	c.pendingCommands = append(c.pendingCommands, cmd)
	if c.maxBatchSize > 0 && len(c.pendingCommands) >= c.maxBatchSize {
		c.flushCommandsLocked()
	}
}

func (c *Context) flushCommands() {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	c.flushCommandsLocked()
}

// flushCommandsLocked submits all pending command buffers (must hold pendingMu lock).
func (c *Context) flushCommandsLocked() {
	if len(c.pendingCommands) == 0 || c.queue == nil {
		return
	}
	c.queue.Submit(c.pendingCommands...)
	c.pendingCommands = c.pendingCommands[:0]

	c.statsMu.Lock()
	c.stats.Flushes++
	c.statsMu.Unlock()
}

func (c *Context) trackAllocation(size uint64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	c.stats.TotalAllocatedBytes += size
	c.stats.ActiveBuffers++
	if c.stats.TotalAllocatedBytes > c.stats.PeakMemoryBytes {
		c.stats.PeakMemoryBytes = c.stats.TotalAllocatedBytes
	}
}

func (c *Context) trackRelease(size uint64) {
	c.statsMu.Lock()
	defer c.statsMu.Unlock()

	if c.stats.TotalAllocatedBytes >= size {
		c.stats.TotalAllocatedBytes -= size
	}
	c.stats.ActiveBuffers--
}

// IsAvailable checks if WebGPU is available on this system.
func IsAvailable() (available bool) {
	defer func() {
		if r := recover(); r != nil {
			available = false
		}
	}()

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	adapter, err := instance.RequestAdapter(nil)
	if err != nil {
		return false
	}
	adapter.Release()

	return true
}
