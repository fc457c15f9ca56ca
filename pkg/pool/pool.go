// Package pool provides typed object pooling for arrowlog.
//
// The package provides:
//   - Generic type-safe object pooling with Pool[T]
//   - Byte buffer pooling with size-based buckets
//
// Example usage:
//
//	pages := pool.New(
//	    func() []byte { return make([]byte, 4096) },
//	    nil,
//	)
//	page := pages.Get()
//	defer pages.Put(page)
package pool

import (
	"sync"
	"sync/atomic"
)

// Pool represents a generic object pool with type safety.
// It wraps sync.Pool with statistics tracking and an optional reset
// function. The pool is safe for concurrent use.
type Pool[T any] struct {
	pool  sync.Pool
	new   func() T
	reset func(T)
	stats struct {
		allocated int64
		inUse     int64
		gets      int64
	}
}

// New creates a new typed pool with custom allocation and reset functions.
// The new function is called when the pool is empty. The reset function,
// if not nil, is called before an object goes back into the pool.
func New[T any](new func() T, reset func(T)) *Pool[T] {
	p := &Pool[T]{
		new:   new,
		reset: reset,
	}
	p.pool.New = func() interface{} {
		atomic.AddInt64(&p.stats.allocated, 1)
		return new()
	}
	return p
}

// Get retrieves an object from the pool, allocating when it is empty.
func (p *Pool[T]) Get() T {
	atomic.AddInt64(&p.stats.inUse, 1)
	atomic.AddInt64(&p.stats.gets, 1)
	return p.pool.Get().(T)
}

// Put returns an object to the pool for reuse.
func (p *Pool[T]) Put(obj T) {
	if p.reset != nil {
		p.reset(obj)
	}
	atomic.AddInt64(&p.stats.inUse, -1)
	p.pool.Put(obj)
}

// Stats represents pool statistics for monitoring.
type Stats struct {
	// Allocated is the total number of objects created by the pool
	Allocated int64
	// InUse is the current number of objects checked out from the pool
	InUse int64
	// Hits is the number of Get calls served by a pooled object
	Hits int64
	// Misses is the number of Get calls that had to allocate
	Misses int64
}

// Stats returns a snapshot of the pool statistics.
func (p *Pool[T]) Stats() Stats {
	allocated := atomic.LoadInt64(&p.stats.allocated)
	gets := atomic.LoadInt64(&p.stats.gets)
	hits := gets - allocated
	if hits < 0 {
		hits = 0
	}
	return Stats{
		Allocated: allocated,
		InUse:     atomic.LoadInt64(&p.stats.inUse),
		Hits:      hits,
		Misses:    allocated,
	}
}

// BufferPool manages byte buffer pooling with size-based buckets.
// Requests are served from the smallest bucket that fits.
type BufferPool struct {
	pools []*Pool[[]byte]
	sizes []int
}

// NewBufferPool creates a buffer pool with power-of-4 buckets from 512B
// to 16MB. Larger buffers are allocated directly without pooling.
func NewBufferPool() *BufferPool {
	sizes := []int{
		512,      // 512B
		4096,     // 4KB
		16384,    // 16KB
		65536,    // 64KB
		262144,   // 256KB
		1048576,  // 1MB
		4194304,  // 4MB
		16777216, // 16MB
	}

	pools := make([]*Pool[[]byte], len(sizes))
	for i, size := range sizes {
		size := size
		pools[i] = New(func() []byte { return make([]byte, size) }, nil)
	}

	return &BufferPool{
		pools: pools,
		sizes: sizes,
	}
}

// Get returns a buffer with length size. Its capacity is the bucket size.
func (p *BufferPool) Get(size int) []byte {
	for i, s := range p.sizes {
		if s >= size {
			buf := p.pools[i].Get()
			return buf[:size]
		}
	}
	return make([]byte, size)
}

// Put returns a buffer to the bucket matching its capacity. Buffers of any
// other capacity are left to the garbage collector.
func (p *BufferPool) Put(buf []byte) {
	size := cap(buf)
	for i, s := range p.sizes {
		if s == size {
			p.pools[i].Put(buf[:size])
			return
		}
	}
}

// GlobalBufferPool provides size-based byte buffer pooling for I/O.
var GlobalBufferPool = NewBufferPool()
