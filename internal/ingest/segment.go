package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

// SegmentExt is the file extension of segment files.
const SegmentExt = ".alog"

// A segment file is one algorithm code byte followed by the compressed
// concatenation of its framed log batches.

// EncodeSegment compresses batches into segment file content.
func EncodeSegment(cp *compression.CompressorPool, batches []byte) ([]byte, error) {
	c := cp.Get()
	defer cp.Put(c)

	compressed, err := c.Compress(batches)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeInternal, "failed to compress segment").
			WithDetail("algorithm", string(c.Algorithm()))
	}
	out := make([]byte, 0, len(compressed)+1)
	out = append(out, c.Algorithm().Code())
	return append(out, compressed...), nil
}

// DecodeSegment returns the framed log batches stored in segment file
// content.
func DecodeSegment(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New(errors.ErrorTypeData, "empty segment")
	}
	algo, err := compression.AlgorithmFromCode(data[0])
	if err != nil {
		return nil, err
	}
	c, err := compression.NewCompressor(&compression.Config{Algorithm: algo})
	if err != nil {
		return nil, err
	}
	out, err := c.Decompress(data[1:])
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeData, "failed to decompress segment").
			WithDetail("algorithm", string(algo))
	}
	return out, nil
}

// SegmentName is the file name of the segment starting at baseOffset.
// Names sort in offset order.
func SegmentName(baseOffset int64) string {
	return fmt.Sprintf("%020d%s", baseOffset, SegmentExt)
}

// ReadSegmentFile reads and decodes a segment file.
func ReadSegmentFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path comes from the caller
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to read segment").WithDetail("path", path)
	}
	out, err := DecodeSegment(data)
	if err != nil {
		if e, ok := err.(*errors.Error); ok {
			e.WithDetail("path", path)
		}
		return nil, err
	}
	return out, nil
}

// ListSegments returns the segment files of dir in offset order.
func ListSegments(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to list segments").WithDetail("dir", dir)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), SegmentExt) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// DirSink writes each segment to its own file in a directory.
type DirSink struct {
	Dir string
}

// NewDirSink creates dir if needed.
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeIO, "failed to create segment directory").WithDetail("dir", dir)
	}
	return &DirSink{Dir: dir}, nil
}

// WriteSegment writes seg to a temporary file and renames it into place,
// so readers never see partial segments.
func (s *DirSink) WriteSegment(_ context.Context, seg Segment) error {
	path := filepath.Join(s.Dir, SegmentName(seg.BaseOffset))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, seg.Data, 0o644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write segment").WithDetail("path", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to publish segment").WithDetail("path", path)
	}
	return nil
}
