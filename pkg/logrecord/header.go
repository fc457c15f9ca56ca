// Package logrecord frames Arrow record batches as log batches: a fixed
// header carrying the batch identity and a checksum, followed by the
// block a arrowlog.Writer serialized.
//
// Header layout, little-endian:
//
//	offset  size  field
//	0       4     magic "ALOG"
//	4       1     version
//	5       1     arrow compression type
//	6       2     reserved
//	8       8     base offset
//	16      4     schema id
//	20      4     record count
//	24      4     batch length (header and block)
//	28      4     CRC32-C of the block
package logrecord

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

const (
	// HeaderSize is the length of the batch header.
	HeaderSize = 32
	// CurrentVersion is the header version written by this package.
	CurrentVersion uint8 = 1
)

var magic = [4]byte{'A', 'L', 'O', 'G'}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Header describes one log batch.
type Header struct {
	Version     uint8
	Compression compression.ArrowCompressionType
	BaseOffset  int64
	SchemaID    int32
	RecordCount int32
	BatchLength int32
	CRC         uint32
}

// BlockLength returns the length of the block following the header.
func (h Header) BlockLength() int { return int(h.BatchLength) - HeaderSize }

// AppendTo appends the encoded header to dst.
func (h Header) AppendTo(dst []byte) []byte {
	var b [HeaderSize]byte
	copy(b[0:4], magic[:])
	b[4] = h.Version
	b[5] = uint8(h.Compression)
	binary.LittleEndian.PutUint64(b[8:], uint64(h.BaseOffset))
	binary.LittleEndian.PutUint32(b[16:], uint32(h.SchemaID))
	binary.LittleEndian.PutUint32(b[20:], uint32(h.RecordCount))
	binary.LittleEndian.PutUint32(b[24:], uint32(h.BatchLength))
	binary.LittleEndian.PutUint32(b[28:], h.CRC)
	return append(dst, b[:]...)
}

// DecodeHeader parses the header at the start of b.
func DecodeHeader(b []byte) (Header, error) {
	if len(b) < HeaderSize {
		return Header{}, errors.Newf(errors.ErrorTypeData, "log batch header needs %d bytes, got %d", HeaderSize, len(b))
	}
	if [4]byte(b[0:4]) != magic {
		return Header{}, errors.Newf(errors.ErrorTypeData, "bad log batch magic %q", b[0:4])
	}
	h := Header{
		Version:     b[4],
		Compression: compression.ArrowCompressionType(b[5]),
		BaseOffset:  int64(binary.LittleEndian.Uint64(b[8:])),
		SchemaID:    int32(binary.LittleEndian.Uint32(b[16:])),
		RecordCount: int32(binary.LittleEndian.Uint32(b[20:])),
		BatchLength: int32(binary.LittleEndian.Uint32(b[24:])),
		CRC:         binary.LittleEndian.Uint32(b[28:]),
	}
	if h.Version != CurrentVersion {
		return Header{}, errors.Newf(errors.ErrorTypeData, "unsupported log batch version %d", h.Version)
	}
	if h.BatchLength < HeaderSize || h.RecordCount < 0 {
		return Header{}, errors.New(errors.ErrorTypeData, "corrupt log batch header").
			WithDetail("batch_length", h.BatchLength).
			WithDetail("record_count", h.RecordCount)
	}
	switch h.Compression {
	case compression.ArrowNone, compression.ArrowLZ4Frame, compression.ArrowZstd:
	default:
		return Header{}, errors.Newf(errors.ErrorTypeData, "unknown compression type %d", b[5])
	}
	return h, nil
}

// Checksum returns the CRC32-C of block.
func Checksum(block []byte) uint32 {
	return crc32.Checksum(block, castagnoli)
}
