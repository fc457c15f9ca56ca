// Package memory provides page-backed output storage for serialized
// batches: a bounded SegmentPool of fixed-size pages and a
// PagedOutputView that supports positioned writes across pages.
package memory

import (
	"sync"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/pool"
)

// ErrPoolExhausted is returned when a bounded SegmentPool has handed out
// all of its pages.
var ErrPoolExhausted = errors.New(errors.ErrorTypeExhausted, "segment pool exhausted")

// SegmentPool hands out fixed-size pages. When maxPages is positive at
// most that many pages are outstanding at once.
type SegmentPool struct {
	pageSize int
	maxPages int

	mu          sync.Mutex
	outstanding int
	pages       *pool.Pool[[]byte]
}

// NewSegmentPool creates a pool of pageSize byte pages. maxPages <= 0
// means unbounded.
func NewSegmentPool(pageSize, maxPages int) (*SegmentPool, error) {
	if pageSize <= 0 {
		return nil, errors.Newf(errors.ErrorTypeConfig, "page size must be positive, got %d", pageSize)
	}
	return &SegmentPool{
		pageSize: pageSize,
		maxPages: maxPages,
		pages: pool.New(
			func() []byte { return make([]byte, pageSize) },
			func(b []byte) { clear(b) },
		),
	}, nil
}

// PageSize returns the size of every page.
func (p *SegmentPool) PageSize() int { return p.pageSize }

// NextSegment returns a zeroed page, or ErrPoolExhausted.
func (p *SegmentPool) NextSegment() ([]byte, error) {
	p.mu.Lock()
	if p.maxPages > 0 && p.outstanding >= p.maxPages {
		p.mu.Unlock()
		return nil, ErrPoolExhausted
	}
	p.outstanding++
	p.mu.Unlock()

	return p.pages.Get(), nil
}

// Return gives pages back to the pool. Pages of a different size are
// dropped but still released from the outstanding count.
func (p *SegmentPool) Return(segments [][]byte) {
	p.mu.Lock()
	p.outstanding -= len(segments)
	if p.outstanding < 0 {
		p.outstanding = 0
	}
	p.mu.Unlock()

	for _, seg := range segments {
		if cap(seg) == p.pageSize {
			p.pages.Put(seg[:p.pageSize])
		}
	}
}

// FreePages returns how many more pages can be handed out, or -1 when
// unbounded.
func (p *SegmentPool) FreePages() int {
	if p.maxPages <= 0 {
		return -1
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxPages - p.outstanding
}
