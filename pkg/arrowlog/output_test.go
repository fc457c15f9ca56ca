package arrowlog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
	segmem "github.com/ajitpratap0/arrowlog/pkg/memory"
	"github.com/ajitpratap0/arrowlog/pkg/testutil"
)

func TestBytesViewPositionedWrites(t *testing.T) {
	v := NewBytesView(4)
	require.NoError(t, v.SetPosition(4))
	_, err := v.Write([]byte("body"))
	require.NoError(t, err)
	require.NoError(t, v.SetPosition(0))
	_, err = v.Write([]byte("HEAD"))
	require.NoError(t, err)

	assert.Equal(t, []byte("HEADbody"), v.Bytes())
	assert.Equal(t, 4, v.Position())
	assert.Error(t, v.SetPosition(-1))

	v.Reset()
	assert.Empty(t, v.Bytes())
}

func TestSerializeIntoPagedView(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	w, _ := newTestWriter(t, 1<<20, idNameRowType, mem)
	defer w.release()
	for i := 0; i < 300; i++ {
		require.NoError(t, w.WriteRow(idNameRow(i)))
	}

	sp, err := segmem.NewSegmentPool(256, 0)
	require.NoError(t, err)
	out := segmem.NewPagedOutputView(sp)
	defer out.Release()

	n, err := w.Serialize(out, 16)
	require.NoError(t, err)
	assert.Equal(t, 16+n, out.Len())
	assert.Greater(t, len(out.WrittenSegments()), 1)

	rec, err := ReadRecordBatch(out.Bytes()[16:], w.ArrowSchema(), mem)
	require.NoError(t, err)
	defer rec.Release()
	assert.Equal(t, int64(300), rec.NumRows())
}

func TestSerializeIOErrorKeepsBatch(t *testing.T) {
	mem := testutil.CheckedAllocator(t)
	w, _ := newTestWriter(t, 1<<20, idNameRowType, mem)
	defer w.release()
	for i := 0; i < 300; i++ {
		require.NoError(t, w.WriteRow(idNameRow(i)))
	}

	small, err := segmem.NewSegmentPool(256, 2)
	require.NoError(t, err)
	out := segmem.NewPagedOutputView(small)
	_, err = w.Serialize(out, 0)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeIO))
	assert.True(t, errors.IsRetryable(err))
	assert.ErrorIs(t, err, segmem.ErrPoolExhausted)
	out.Release()

	assert.Equal(t, StateAcquired, w.State())
	assert.Equal(t, 300, w.RecordsCount())

	big, err := segmem.NewSegmentPool(1024, 0)
	require.NoError(t, err)
	retry := segmem.NewPagedOutputView(big)
	defer retry.Release()
	n, err := w.Serialize(retry, 0)
	require.NoError(t, err)

	size, err := w.SizeInBytes()
	require.NoError(t, err)
	assert.Equal(t, size, n)

	rec, err := ReadRecordBatch(retry.Bytes(), w.ArrowSchema(), mem)
	require.NoError(t, err)
	defer rec.Release()
	rows, err := RowsFromRecord(rec, idNameRowType)
	require.NoError(t, err)
	assert.Equal(t, idNameRow(299), rows[299])
}

func TestReadRecordBatchRejectsGarbage(t *testing.T) {
	w, _ := newTestWriter(t, 1024, idNameRowType, nil)
	_, err := ReadRecordBatch([]byte{1, 2, 3}, w.ArrowSchema(), nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}
