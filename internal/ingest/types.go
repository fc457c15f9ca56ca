package ingest

import (
	"context"
	"time"

	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/config"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// Transform modifies rows in flight. Returning a nil row drops it.
// Transforms run in the order they were added.
type Transform func(ctx context.Context, row types.GenericRow) (types.GenericRow, error)

// Options contains pipeline parameters.
type Options struct {
	TableID    int64
	SchemaID   int32
	BaseOffset int64 // offset of the first row ingested

	// BufferSize is the byte budget of one log batch
	BufferSize  int
	Compression compression.ArrowCompressionInfo

	// SegmentCompression wraps every segment file
	SegmentCompression *compression.Config
	// SegmentBatches is the number of log batches per segment file
	SegmentBatches int
	// ChannelSize bounds the rows buffered between stages
	ChannelSize int
}

// DefaultOptions returns options for small interactive runs.
func DefaultOptions() Options {
	return Options{
		TableID:            1,
		SchemaID:           1,
		BufferSize:         1 << 20,
		Compression:        compression.NoCompression,
		SegmentCompression: &compression.Config{Algorithm: compression.None},
		SegmentBatches:     16,
		ChannelSize:        1024,
	}
}

// OptionsFromConfig derives options from a validated configuration.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	info, err := cfg.CompressionInfo()
	if err != nil {
		return Options{}, err
	}
	seg, err := cfg.SegmentCompression()
	if err != nil {
		return Options{}, err
	}
	opts := DefaultOptions()
	opts.TableID = cfg.Table.ID
	opts.SchemaID = cfg.Table.SchemaID
	opts.BufferSize = cfg.Writer.BufferSize
	opts.Compression = info
	opts.SegmentCompression = seg
	return opts, nil
}

// Segment is a group of consecutive log batches stored as one file.
type Segment struct {
	BaseOffset int64
	Batches    int
	Records    int64
	// Data is the encoded file content
	Data []byte
}

// SegmentSink receives finished segments in offset order.
type SegmentSink interface {
	WriteSegment(ctx context.Context, seg Segment) error
}

// Stats summarizes a run.
type Stats struct {
	RowsRead    int64
	RowsDropped int64
	Batches     int64
	Segments    int64
	Bytes       int64 // encoded segment bytes
	NextOffset  int64
	Duration    time.Duration
}
