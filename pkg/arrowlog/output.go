package arrowlog

import (
	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

// OutputView is the positioned byte channel a batch is serialized into.
// memory.PagedOutputView and BytesView implement it.
type OutputView interface {
	Write(p []byte) (int, error)
	// SetPosition moves the write cursor to pos. Bytes between the old
	// end and pos are zero.
	SetPosition(pos int) error
}

// BytesView is an OutputView over a growable byte slice.
type BytesView struct {
	buf []byte
	pos int
}

// NewBytesView creates a view with capacity preallocated.
func NewBytesView(capacity int) *BytesView {
	return &BytesView{buf: make([]byte, 0, capacity)}
}

// SetPosition implements OutputView.
func (v *BytesView) SetPosition(pos int) error {
	if pos < 0 {
		return errors.Newf(errors.ErrorTypeValidation, "negative position %d", pos)
	}
	v.grow(pos)
	v.pos = pos
	return nil
}

// Write implements io.Writer.
func (v *BytesView) Write(p []byte) (int, error) {
	end := v.pos + len(p)
	v.grow(end)
	copy(v.buf[v.pos:end], p)
	v.pos = end
	return len(p), nil
}

func (v *BytesView) grow(n int) {
	if n <= len(v.buf) {
		return
	}
	if n <= cap(v.buf) {
		v.buf = v.buf[:n]
		return
	}
	v.buf = append(v.buf, make([]byte, n-len(v.buf))...)
}

// Position returns the write cursor.
func (v *BytesView) Position() int { return v.pos }

// Bytes returns the content up to the furthest byte ever written. It
// aliases the view.
func (v *BytesView) Bytes() []byte { return v.buf }

// Reset empties the view and keeps its memory.
func (v *BytesView) Reset() {
	v.buf = v.buf[:0]
	v.pos = 0
}
