package device

import "sync"

// BufferSize represents different buffer size categories for pooling.
type BufferSize int

const (
	// SmallBuffer for buffers < 4KB.
	SmallBuffer BufferSize = iota
	// MediumBuffer for buffers 4KB-1MB.
	MediumBuffer
	// LargeBuffer for buffers > 1MB.
	LargeBuffer
)

const (
	smallThreshold  = 4 * 1024    // 4KB
	mediumThreshold = 1024 * 1024 // 1MB
)

// BufferPool keeps released emulated device buffers for reuse.
// Buffers are categorized by capacity; a pooled buffer is handed out for any
// request that fits in its capacity.
type BufferPool struct {
	small  []*emulatedBuffer
	medium []*emulatedBuffer
	large  []*emulatedBuffer

	maxPerCategory int

	mu sync.Mutex

	// Statistics
	totalAllocated uint64
	totalReleased  uint64
	poolHits       uint64
	poolMisses     uint64
}

// NewBufferPool creates a pool holding at most maxPerCategory buffers per size category.
func NewBufferPool(maxPerCategory int) *BufferPool {
	return &BufferPool{
		small:          make([]*emulatedBuffer, 0, maxPerCategory),
		medium:         make([]*emulatedBuffer, 0, maxPerCategory),
		large:          make([]*emulatedBuffer, 0, maxPerCategory),
		maxPerCategory: maxPerCategory,
	}
}

// Acquire gets a buffer with at least size bytes from the pool or allocates a new one.
// The returned buffer is zeroed over its usable size.
func (p *BufferPool) Acquire(size uint64) *emulatedBuffer {
	p.mu.Lock()
	defer p.mu.Unlock()

	category := categorize(size)
	pool := p.getPool(category)

	for i, buf := range pool {
		if uint64(cap(buf.mem)) >= size {
			p.removeFromPool(category, i)
			p.poolHits++
			buf.mem = buf.mem[:size]
			clear(buf.mem)
			return buf
		}
	}

	p.poolMisses++
	p.totalAllocated++
	return &emulatedBuffer{mem: make([]byte, size)}
}

// Release returns a buffer to the pool. If the category is full the buffer is dropped.
func (p *BufferPool) Release(buf *emulatedBuffer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.totalReleased++

	category := categorize(uint64(cap(buf.mem)))
	if len(p.getPool(category)) >= p.maxPerCategory {
		buf.mem = nil
		return
	}
	p.addToPool(category, buf)
}

// Clear drops all pooled buffers.
func (p *BufferPool) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.small = p.small[:0]
	p.medium = p.medium[:0]
	p.large = p.large[:0]
}

// Stats returns statistics about buffer pool usage.
func (p *BufferPool) Stats() (allocated, released, hits, misses uint64, pooledCount int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	return p.totalAllocated, p.totalReleased, p.poolHits, p.poolMisses,
		len(p.small) + len(p.medium) + len(p.large)
}

// categorize determines the size category for a buffer.
func categorize(size uint64) BufferSize {
	if size < smallThreshold {
		return SmallBuffer
	}
	if size < mediumThreshold {
		return MediumBuffer
	}
	return LargeBuffer
}

func (p *BufferPool) getPool(category BufferSize) []*emulatedBuffer {
	switch category {
	case SmallBuffer:
		return p.small
	case MediumBuffer:
		return p.medium
	case LargeBuffer:
		return p.large
	default:
		return nil
	}
}

func (p *BufferPool) addToPool(category BufferSize, buf *emulatedBuffer) {
	switch category {
	case SmallBuffer:
		p.small = append(p.small, buf)
	case MediumBuffer:
		p.medium = append(p.medium, buf)
	case LargeBuffer:
		p.large = append(p.large, buf)
	}
}

func (p *BufferPool) removeFromPool(category BufferSize, i int) {
	switch category {
	case SmallBuffer:
		p.small = append(p.small[:i], p.small[i+1:]...)
	case MediumBuffer:
		p.medium = append(p.medium[:i], p.medium[i+1:]...)
	case LargeBuffer:
		p.large = append(p.large[:i], p.large[i+1:]...)
	}
}
