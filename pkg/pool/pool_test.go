package pool

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolResetAndStats(t *testing.T) {
	resets := 0
	p := New(func() []byte { return make([]byte, 0, 16) }, func(b []byte) { resets++ })

	a := p.Get()
	b := p.Get()
	st := p.Stats()
	assert.Equal(t, int64(2), st.InUse)
	assert.Equal(t, int64(2), st.Allocated)

	p.Put(a)
	p.Put(b)
	assert.Equal(t, 2, resets)
	assert.Equal(t, int64(0), p.Stats().InUse)
}

func TestBufferPoolBuckets(t *testing.T) {
	bp := NewBufferPool()

	small := bp.Get(1)
	require.Len(t, small, 1)
	assert.Equal(t, 512, cap(small))

	mid := bp.Get(4097)
	assert.Equal(t, 16384, cap(mid))

	huge := bp.Get(32 << 20)
	assert.Len(t, huge, 32<<20)

	// Off-bucket capacities are dropped silently.
	bp.Put(make([]byte, 10))
	bp.Put(small)
	bp.Put(mid)
	bp.Put(huge)
}
