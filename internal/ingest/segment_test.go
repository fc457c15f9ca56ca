package ingest

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/ajitpratap0/arrowlog/pkg/arrowlog"
	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/logrecord"
	segmem "github.com/ajitpratap0/arrowlog/pkg/memory"
	"github.com/ajitpratap0/arrowlog/pkg/testutil"
)

type DirSinkSuite struct {
	testutil.IntegrationTestSuite
	writers *arrowlog.WriterPool
	pages   *segmem.SegmentPool
}

func TestDirSinkSuite(t *testing.T) {
	testutil.IntegrationTest(t)
	suite.Run(t, new(DirSinkSuite))
}

func (s *DirSinkSuite) SetupTest() {
	s.writers = arrowlog.NewWriterPool(nil)
	pages, err := segmem.NewSegmentPool(16<<10, 0)
	s.Require().NoError(err)
	s.pages = pages
}

func (s *DirSinkSuite) TearDownTest() {
	s.Require().NoError(s.writers.Close())
}

func (s *DirSinkSuite) TestEventFilesToSegments() {
	rowType := testutil.EventRowType()
	files := testutil.CreateEventFiles(s.T(), s.TempDir(), 3, 400)
	outDir := filepath.Join(s.TempDir(), "segments")
	sink, err := NewDirSink(outDir)
	s.Require().NoError(err)

	opts := DefaultOptions()
	opts.BufferSize = 8 << 10
	opts.SegmentBatches = 4
	opts.Compression = compression.ArrowCompressionInfo{Type: compression.ArrowZstd, Level: compression.DefaultZstdLevel}
	opts.SegmentCompression = &compression.Config{Algorithm: compression.LZ4, Level: compression.Default}
	p, err := NewPipeline(rowType, opts, s.writers, s.pages, sink, testutil.TestLogger(s.T()), nil)
	s.Require().NoError(err)

	testutil.NewPerformanceTest(s.T(), "json lines to segments").
		WithThroughputTarget(1000).
		WithLatencyTarget(time.Millisecond).
		WithMemoryTarget(256 << 20).
		Run(func() (int64, time.Duration) {
			start := time.Now()
			for _, path := range files {
				f, err := os.Open(path)
				s.Require().NoError(err)
				_, err = p.Run(s.Context(), f)
				s.Require().NoError(f.Close())
				s.Require().NoError(err)
			}
			return p.NextOffset(), time.Since(start)
		})
	s.Equal(int64(1200), p.NextOffset())

	paths, err := ListSegments(outDir)
	s.Require().NoError(err)
	s.Require().NotEmpty(paths)
	s.Equal(SegmentName(0), filepath.Base(paths[0]))

	var offset int64
	for _, path := range paths {
		batches, err := ReadSegmentFile(path)
		s.Require().NoError(err)
		it := logrecord.NewIterator(batches, rowType, nil)
		for it.Next() {
			b := it.Batch()
			s.Equal(offset, b.Header.BaseOffset)
			for i, row := range b.Rows {
				s.Equal(offset+int64(i), row[0])
				if (offset+int64(i))%10 == 9 {
					s.Nil(row[1])
				}
			}
			offset += int64(len(b.Rows))
		}
		s.Require().NoError(it.Err())
	}
	s.Equal(int64(1200), offset)
}

func (s *DirSinkSuite) TestListSegmentsSkipsOtherFiles() {
	dir := filepath.Join(s.TempDir(), "mixed")
	sink, err := NewDirSink(dir)
	s.Require().NoError(err)

	s.Require().NoError(sink.WriteSegment(s.Context(), Segment{BaseOffset: 42, Data: []byte{0}}))
	s.Require().NoError(sink.WriteSegment(s.Context(), Segment{BaseOffset: 7, Data: []byte{0}}))
	s.CreateTempFile(filepath.Join("mixed", "notes.txt"), []byte("not a segment"))

	paths, err := ListSegments(dir)
	s.Require().NoError(err)
	s.Require().Len(paths, 2)
	s.Equal(SegmentName(7), filepath.Base(paths[0]))
	s.Equal(SegmentName(42), filepath.Base(paths[1]))

	// a code byte and no payload is an empty uncompressed segment
	batches, err := ReadSegmentFile(paths[0])
	s.Require().NoError(err)
	s.Empty(batches)

	_, err = ReadSegmentFile(filepath.Join(dir, "missing.alog"))
	s.True(errors.IsType(err, errors.ErrorTypeIO))

	_, err = ListSegments(filepath.Join(dir, "nope"))
	s.True(errors.IsType(err, errors.ErrorTypeIO))
}
