package arrowlog

import (
	"encoding/binary"
	"io"
	"math"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

const (
	// continuationToken prefixes every encapsulated IPC message.
	continuationToken uint32 = 0xFFFFFFFF
	// messageAlignment is the alignment of metadata and body buffers.
	messageAlignment = 8
	// messagePrefixSize is the continuation token plus the int32 metadata
	// size.
	messagePrefixSize = 8
)

var zeroPadding [messageAlignment]byte

// paddedMessageLength is the framed size of a flatbuffer message of
// metaLen bytes: prefix, flatbuffer and padding to the alignment.
func paddedMessageLength(metaLen int) int {
	n := metaLen + messagePrefixSize
	if rem := n % messageAlignment; rem != 0 {
		n += messageAlignment - rem
	}
	return n
}

// writeMessage frames meta as an encapsulated IPC message and returns
// the framed length.
func writeMessage(w io.Writer, meta []byte) (int, error) {
	padded := paddedMessageLength(len(meta))

	var prefix [messagePrefixSize]byte
	binary.LittleEndian.PutUint32(prefix[0:], continuationToken)
	binary.LittleEndian.PutUint32(prefix[4:], uint32(padded-messagePrefixSize))
	if _, err := w.Write(prefix[:]); err != nil {
		return 0, err
	}
	if _, err := w.Write(meta); err != nil {
		return 0, err
	}
	if pad := padded - messagePrefixSize - len(meta); pad > 0 {
		if _, err := w.Write(zeroPadding[:pad]); err != nil {
			return 0, err
		}
	}
	return padded, nil
}

// countingWriter counts bytes and discards them.
type countingWriter struct {
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	c.n += int64(len(p))
	return len(p), nil
}

// trackingWriter forwards to w and counts what was accepted.
type trackingWriter struct {
	w io.Writer
	n int64
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	t.n += int64(n)
	return n, err
}

func ipcOptions(mem memory.Allocator, info compression.ArrowCompressionInfo) []ipc.Option {
	return append([]ipc.Option{ipc.WithAllocator(mem)}, info.IPCOptions()...)
}

// bodyLength encodes rec with opts and returns the exact length of the
// body the encoder would write.
func bodyLength(rec arrow.Record, opts []ipc.Option) (int64, error) {
	payload, err := ipc.GetRecordBatchPayload(rec, opts...)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode record batch")
	}
	defer payload.Release()

	var cw countingWriter
	if err := payload.SerializeBody(&cw); err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to measure record batch body")
	}
	return cw.n, nil
}

// checkBodyLength rejects bodies whose length does not fit an int32.
func checkBodyLength(n int64) (int, error) {
	if n > math.MaxInt32 {
		return 0, errors.New(errors.ErrorTypeSize, "the arrow batch body length is too large").
			WithDetail("body_length", n)
	}
	return int(n), nil
}

var metadataLengths sync.Map // metadataKey -> int

type metadataKey struct {
	schema string
	codec  string
}

// metadataLength returns the framed length of the record batch message of
// schema under info. Flatbuffers elide zero scalars, so the length is
// taken from a one-row batch; it is the same for any non-empty batch of
// the schema.
func metadataLength(schema *arrow.Schema, info compression.ArrowCompressionInfo) (int, error) {
	key := metadataKey{schema: schema.String(), codec: info.Type.String()}
	if v, ok := metadataLengths.Load(key); ok {
		return v.(int), nil
	}

	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, schema)
	defer b.Release()
	for _, fb := range b.Fields() {
		fb.AppendNull()
	}
	rec := b.NewRecord()
	defer rec.Release()

	payload, err := ipc.GetRecordBatchPayload(rec, ipcOptions(mem, info)...)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeInternal, "failed to encode metadata probe")
	}
	defer payload.Release()

	meta := payload.Meta()
	defer meta.Release()

	n := paddedMessageLength(meta.Len())
	metadataLengths.Store(key, n)
	return n, nil
}
