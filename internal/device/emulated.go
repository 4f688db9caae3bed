package device

import (
	"fmt"
	"sync"
)

// EmulatedConfig controls the behavior of an Emulated context.
type EmulatedConfig struct {
	Name         string // Reported by Name().
	MaxBatchSize int    // Queued commands before auto-flush (0 = flush only on sync points).
	MaxPooled    int    // Pooled buffers kept per size category.
}

// DefaultEmulatedConfig returns the configuration used by NewEmulated(DefaultEmulatedConfig()).
func DefaultEmulatedConfig() EmulatedConfig {
	return EmulatedConfig{
		Name:         "Emulated",
		MaxBatchSize: 0,
		MaxPooled:    100,
	}
}

// Kernel is an opaque device-side transformation. It receives byte views of the
// device buffers it was launched with, in launch order.
type Kernel func(bufs [][]byte)

// emulatedBuffer is device memory of an Emulated context.
type emulatedBuffer struct {
	mem   []byte
	owner *Emulated
}

// Size returns the usable size of the buffer in bytes.
func (b *emulatedBuffer) Size() uint64 {
	return uint64(len(b.mem))
}

// command is a unit of queued device work.
type command struct {
	name string
	run  func()
}

// Emulated is an accelerator Context whose device memory lives in host memory.
//
// It keeps the execution model of a real accelerator: copies to the device and
// kernel launches are queued and only run when the queue is flushed by CopyToHost,
// Synchronize, or the batch size limit. Device memory is therefore not observable
// from the host until a synchronization point.
type Emulated struct {
	cfg  EmulatedConfig
	pool *BufferPool

	pending   []command
	pendingMu sync.Mutex

	stats    Stats
	statsMu  sync.RWMutex
	released bool
}

// NewEmulated creates an emulated accelerator context.
func NewEmulated(cfg EmulatedConfig) *Emulated {
	if cfg.Name == "" {
		cfg.Name = DefaultEmulatedConfig().Name
	}
	return &Emulated{
		cfg:  cfg,
		pool: NewBufferPool(cfg.MaxPooled),
	}
}

// Name returns the configured context name.
func (e *Emulated) Name() string {
	return e.cfg.Name
}

// Alloc allocates a zeroed device buffer.
func (e *Emulated) Alloc(size uint64) (Buffer, error) {
	if e.isReleased() {
		return nil, ErrDeviceUnavailable
	}
	buf := e.pool.Acquire(AlignSize(size))
	buf.owner = e
	e.trackAllocation(buf.Size())
	return buf, nil
}

// Free returns a buffer to the pool. Pending work is flushed first so that no
// queued command touches the buffer after it is reused.
func (e *Emulated) Free(buf Buffer) {
	eb, ok := buf.(*emulatedBuffer)
	if !ok || eb == nil || eb.owner != e {
		return
	}
	e.flush()
	e.trackRelease(eb.Size())
	eb.owner = nil
	e.pool.Release(eb)
}

// CopyToDevice enqueues a copy of src into dst. src is snapshotted at call time.
func (e *Emulated) CopyToDevice(dst Buffer, src []byte) error {
	eb, err := e.own(dst)
	if err != nil {
		return err
	}
	if uint64(len(src)) > eb.Size() {
		return fmt.Errorf("device: copy of %d bytes into %d-byte buffer", len(src), eb.Size())
	}

	snapshot := append([]byte(nil), src...)
	e.queue(command{name: "h2d", run: func() {
		copy(eb.mem, snapshot)
	}})

	e.statsMu.Lock()
	e.stats.HostToDeviceCopies++
	e.stats.HostToDeviceBytes += uint64(len(src))
	e.statsMu.Unlock()
	return nil
}

// CopyToHost flushes queued work and copies len(dst) bytes from src.
func (e *Emulated) CopyToHost(dst []byte, src Buffer) error {
	eb, err := e.own(src)
	if err != nil {
		return err
	}
	if uint64(len(dst)) > eb.Size() {
		return fmt.Errorf("device: copy of %d bytes from %d-byte buffer", len(dst), eb.Size())
	}

	e.flush()
	copy(dst, eb.mem)

	e.statsMu.Lock()
	e.stats.DeviceToHostCopies++
	e.stats.DeviceToHostBytes += uint64(len(dst))
	e.statsMu.Unlock()
	return nil
}

// Launch enqueues kernel k over bufs. The kernel runs at the next flush.
func (e *Emulated) Launch(name string, k Kernel, bufs ...Buffer) error {
	views := make([]*emulatedBuffer, len(bufs))
	for i, b := range bufs {
		eb, err := e.own(b)
		if err != nil {
			return fmt.Errorf("device: launch %s: %w", name, err)
		}
		views[i] = eb
	}

	e.queue(command{name: name, run: func() {
		mem := make([][]byte, len(views))
		for i, v := range views {
			mem[i] = v.mem
		}
		k(mem)
	}})

	e.statsMu.Lock()
	e.stats.KernelsRun++
	e.statsMu.Unlock()
	return nil
}

// Synchronize runs all queued work.
func (e *Emulated) Synchronize() error {
	if e.isReleased() {
		return ErrDeviceUnavailable
	}
	e.flush()
	return nil
}

// Pending returns the number of queued commands.
func (e *Emulated) Pending() int {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return len(e.pending)
}

// Stats returns current counters.
func (e *Emulated) Stats() Stats {
	e.statsMu.RLock()
	s := e.stats
	e.statsMu.RUnlock()

	_, _, hits, misses, pooled := e.pool.Stats()
	s.PoolHits = hits
	s.PoolMisses = misses
	s.PooledBuffers = pooled
	return s
}

// Release drops queued work and pooled memory. The context is unusable afterwards.
func (e *Emulated) Release() {
	e.pendingMu.Lock()
	e.pending = nil
	e.released = true
	e.pendingMu.Unlock()

	e.pool.Clear()
}

func (e *Emulated) isReleased() bool {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	return e.released
}

// own checks that buf was allocated by e and the context is still alive.
func (e *Emulated) own(buf Buffer) (*emulatedBuffer, error) {
	if e.isReleased() {
		return nil, ErrDeviceUnavailable
	}
	eb, ok := buf.(*emulatedBuffer)
	if !ok || eb == nil || eb.owner != e {
		return nil, ErrForeignBuffer
	}
	return eb, nil
}

// queue adds a command to the pending queue, flushing when the batch limit is reached.
func (e *Emulated) queue(cmd command) {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()

	e.pending = append(e.pending, cmd)
	if e.cfg.MaxBatchSize > 0 && len(e.pending) >= e.cfg.MaxBatchSize {
		e.flushLocked()
	}
}

func (e *Emulated) flush() {
	e.pendingMu.Lock()
	defer e.pendingMu.Unlock()
	e.flushLocked()
}

// flushLocked runs all pending commands in order (must hold pendingMu).
func (e *Emulated) flushLocked() {
	if len(e.pending) == 0 {
		return
	}
	for _, cmd := range e.pending {
		cmd.run()
	}
	e.pending = e.pending[:0]

	e.statsMu.Lock()
	e.stats.Flushes++
	e.statsMu.Unlock()
}

func (e *Emulated) trackAllocation(size uint64) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	e.stats.TotalAllocatedBytes += size
	e.stats.ActiveBuffers++
	if e.stats.TotalAllocatedBytes > e.stats.PeakMemoryBytes {
		e.stats.PeakMemoryBytes = e.stats.TotalAllocatedBytes
	}
}

func (e *Emulated) trackRelease(size uint64) {
	e.statsMu.Lock()
	defer e.statsMu.Unlock()

	if e.stats.TotalAllocatedBytes >= size {
		e.stats.TotalAllocatedBytes -= size
	}
	e.stats.ActiveBuffers--
}
