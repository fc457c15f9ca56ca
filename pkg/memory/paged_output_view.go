package memory

import (
	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

// PagedOutputView is a positioned byte sink over pages of a SegmentPool.
// Writes may span pages; SetPosition may move backwards to patch bytes
// written earlier, such as a batch header. Pages are acquired lazily.
//
// A PagedOutputView is not safe for concurrent use.
type PagedOutputView struct {
	segments *SegmentPool
	pages    [][]byte
	pos      int
	// high is the end of the furthest byte written or positioned to.
	high int
}

// NewPagedOutputView creates an empty view drawing pages from segments.
func NewPagedOutputView(segments *SegmentPool) *PagedOutputView {
	return &PagedOutputView{segments: segments}
}

// SetPosition moves the write cursor, acquiring pages up to pos. The
// bytes between the previous end and pos read as zero.
func (v *PagedOutputView) SetPosition(pos int) error {
	if pos < 0 {
		return errors.Newf(errors.ErrorTypeValidation, "negative position %d", pos)
	}
	if err := v.ensure(pos); err != nil {
		return err
	}
	v.pos = pos
	if pos > v.high {
		v.high = pos
	}
	return nil
}

// Write implements io.Writer. On exhaustion it returns the number of
// bytes that did fit and an error wrapping ErrPoolExhausted.
func (v *PagedOutputView) Write(p []byte) (int, error) {
	pageSize := v.segments.PageSize()
	written := 0
	for written < len(p) {
		pageIdx := v.pos / pageSize
		if pageIdx >= len(v.pages) {
			if err := v.grow(); err != nil {
				return written, err
			}
		}
		off := v.pos % pageSize
		n := copy(v.pages[pageIdx][off:], p[written:])
		written += n
		v.pos += n
	}
	if v.pos > v.high {
		v.high = v.pos
	}
	return written, nil
}

// Position returns the write cursor.
func (v *PagedOutputView) Position() int { return v.pos }

// Len returns the number of bytes up to the furthest position reached.
func (v *PagedOutputView) Len() int { return v.high }

// WrittenSegments returns the pages holding [0, Len()). The last page is
// truncated to the used length. The pages stay owned by the view.
func (v *PagedOutputView) WrittenSegments() [][]byte {
	if v.high == 0 {
		return nil
	}
	pageSize := v.segments.PageSize()
	n := (v.high + pageSize - 1) / pageSize
	out := make([][]byte, n)
	copy(out, v.pages[:n])
	if rem := v.high % pageSize; rem != 0 {
		out[n-1] = out[n-1][:rem]
	}
	return out
}

// Bytes returns a copy of [0, Len()).
func (v *PagedOutputView) Bytes() []byte {
	out := make([]byte, 0, v.high)
	for _, seg := range v.WrittenSegments() {
		out = append(out, seg...)
	}
	return out
}

// Release returns every page to the pool and empties the view. The view
// can be reused afterwards.
func (v *PagedOutputView) Release() {
	v.segments.Return(v.pages)
	v.pages = nil
	v.pos = 0
	v.high = 0
}

func (v *PagedOutputView) ensure(n int) error {
	for len(v.pages)*v.segments.PageSize() < n {
		if err := v.grow(); err != nil {
			return err
		}
	}
	return nil
}

func (v *PagedOutputView) grow() error {
	seg, err := v.segments.NextSegment()
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeExhausted, "failed to acquire output page")
	}
	v.pages = append(v.pages, seg)
	return nil
}
