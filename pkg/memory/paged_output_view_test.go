package memory

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

func TestSegmentPoolBounds(t *testing.T) {
	_, err := NewSegmentPool(0, 1)
	require.True(t, errors.IsType(err, errors.ErrorTypeConfig))

	sp, err := NewSegmentPool(16, 2)
	require.NoError(t, err)

	a, err := sp.NextSegment()
	require.NoError(t, err)
	b, err := sp.NextSegment()
	require.NoError(t, err)
	assert.Equal(t, 0, sp.FreePages())

	_, err = sp.NextSegment()
	require.ErrorIs(t, err, ErrPoolExhausted)

	a[0] = 0xff
	sp.Return([][]byte{a, b})
	assert.Equal(t, 2, sp.FreePages())

	c, err := sp.NextSegment()
	require.NoError(t, err)
	assert.Equal(t, byte(0), c[0], "returned pages are zeroed")
}

func TestPagedOutputViewSpansPages(t *testing.T) {
	sp, err := NewSegmentPool(8, 0)
	require.NoError(t, err)
	assert.Equal(t, -1, sp.FreePages())

	v := NewPagedOutputView(sp)
	require.NoError(t, v.SetPosition(4))

	payload := []byte("0123456789abcdef")
	n, err := v.Write(payload)
	require.NoError(t, err)
	assert.Equal(t, len(payload), n)
	assert.Equal(t, 20, v.Position())

	// patch the reserved header
	require.NoError(t, v.SetPosition(0))
	_, err = v.Write([]byte("HDR!"))
	require.NoError(t, err)

	assert.Equal(t, 20, v.Len())
	assert.Equal(t, append([]byte("HDR!"), payload...), v.Bytes())

	segs := v.WrittenSegments()
	require.Len(t, segs, 3)
	assert.Len(t, segs[2], 4)

	v.Release()
	assert.Equal(t, 0, v.Len())
	assert.Nil(t, v.WrittenSegments())
}

func TestPagedOutputViewExhaustion(t *testing.T) {
	sp, err := NewSegmentPool(8, 2)
	require.NoError(t, err)
	v := NewPagedOutputView(sp)

	n, err := v.Write(bytes.Repeat([]byte{1}, 20))
	require.Error(t, err)
	assert.Equal(t, 16, n)
	assert.True(t, errors.IsType(err, errors.ErrorTypeExhausted))
	assert.ErrorIs(t, err, ErrPoolExhausted)

	err = v.SetPosition(100)
	assert.ErrorIs(t, err, ErrPoolExhausted)

	assert.Error(t, v.SetPosition(-1))

	v.Release()
	assert.Equal(t, 2, sp.FreePages())
}
