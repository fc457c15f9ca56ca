package compression

import (
	"strconv"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/ipc"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

// ArrowCompressionType is the body codec of an Arrow IPC record batch.
type ArrowCompressionType uint8

const (
	ArrowNone ArrowCompressionType = iota
	ArrowLZ4Frame
	ArrowZstd
)

const (
	// NoCompressionLevel marks a codec without levels.
	NoCompressionLevel = -1
	// DefaultZstdLevel is the level recorded for ZSTD when none is given.
	DefaultZstdLevel = 3
	// MaxZstdLevel is the highest ZSTD level.
	MaxZstdLevel = 22
)

func (t ArrowCompressionType) String() string {
	switch t {
	case ArrowNone:
		return "NONE"
	case ArrowLZ4Frame:
		return "LZ4_FRAME"
	case ArrowZstd:
		return "ZSTD"
	default:
		return "UNKNOWN(" + strconv.Itoa(int(t)) + ")"
	}
}

// ParseArrowCompressionType parses "none", "lz4", "lz4_frame" or "zstd".
func ParseArrowCompressionType(s string) (ArrowCompressionType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "NONE":
		return ArrowNone, nil
	case "LZ4", "LZ4_FRAME":
		return ArrowLZ4Frame, nil
	case "ZSTD":
		return ArrowZstd, nil
	default:
		return 0, errors.Newf(errors.ErrorTypeConfig, "unsupported arrow compression type %q", s)
	}
}

// ArrowCompressionInfo selects the codec applied to every body buffer of
// a record batch. It is part of the identity of pooled writers, so two
// writers with different infos are never interchangeable.
type ArrowCompressionInfo struct {
	Type ArrowCompressionType
	// Level is recorded for identity. The arrow IPC encoder always uses
	// its codec's default level.
	Level int
}

// NoCompression is the info of uncompressed batches.
var NoCompression = ArrowCompressionInfo{Type: ArrowNone, Level: NoCompressionLevel}

// NewArrowCompressionInfo builds an info, filling in the level default of
// the codec when level is NoCompressionLevel.
func NewArrowCompressionInfo(t ArrowCompressionType, level int) (ArrowCompressionInfo, error) {
	info := ArrowCompressionInfo{Type: t, Level: level}
	if t == ArrowZstd && level == NoCompressionLevel {
		info.Level = DefaultZstdLevel
	}
	if t != ArrowZstd {
		info.Level = NoCompressionLevel
	}
	return info, info.Validate()
}

// Validate checks the type and level.
func (i ArrowCompressionInfo) Validate() error {
	switch i.Type {
	case ArrowNone, ArrowLZ4Frame:
		if i.Level != NoCompressionLevel {
			return errors.Newf(errors.ErrorTypeConfig, "%s does not take a level, got %d", i.Type, i.Level)
		}
	case ArrowZstd:
		if i.Level < 1 || i.Level > MaxZstdLevel {
			return errors.Newf(errors.ErrorTypeConfig, "zstd level must be in [1, %d], got %d", MaxZstdLevel, i.Level)
		}
	default:
		return errors.Newf(errors.ErrorTypeConfig, "unknown arrow compression type %d", i.Type)
	}
	return nil
}

// String renders the info as used in pool keys, e.g. "NONE" or "ZSTD(3)".
func (i ArrowCompressionInfo) String() string {
	if i.Type == ArrowZstd {
		return i.Type.String() + "(" + strconv.Itoa(i.Level) + ")"
	}
	return i.Type.String()
}

// IPCOptions returns the arrow IPC writer options enabling the codec.
func (i ArrowCompressionInfo) IPCOptions() []ipc.Option {
	switch i.Type {
	case ArrowLZ4Frame:
		return []ipc.Option{ipc.WithLZ4()}
	case ArrowZstd:
		return []ipc.Option{ipc.WithZstd()}
	default:
		return nil
	}
}

// BlockAlgorithm returns the block Compressor algorithm matching the codec.
func (i ArrowCompressionInfo) BlockAlgorithm() Algorithm {
	switch i.Type {
	case ArrowLZ4Frame:
		return LZ4
	case ArrowZstd:
		return Zstd
	default:
		return None
	}
}
