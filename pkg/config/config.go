package config

import (
	"fmt"

	"github.com/ajitpratap0/arrowlog/pkg/compression"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

// Config is the configuration of an arrowlog writer setup, as used by the
// CLI and the ingest pipeline.
type Config struct {
	// Name identifies the configuration in logs
	Name string `yaml:"name" json:"name" mapstructure:"name"`

	// Table identifies the log the batches belong to
	Table TableConfig `yaml:"table" json:"table" mapstructure:"table"`

	// Writer controls batch sizing and the body codec
	Writer WriterConfig `yaml:"writer" json:"writer" mapstructure:"writer"`

	// Pool controls writer reuse
	Pool PoolConfig `yaml:"pool" json:"pool" mapstructure:"pool"`

	// Paging controls the output pages batches are serialized into
	Paging PagingConfig `yaml:"paging" json:"paging" mapstructure:"paging"`

	// Segment controls segment files written by the ingest pipeline
	Segment SegmentConfig `yaml:"segment" json:"segment" mapstructure:"segment"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`

	// Schema lists the fields of every row
	Schema []types.FieldDef `yaml:"schema" json:"schema" mapstructure:"schema"`
}

// TableConfig identifies a log.
type TableConfig struct {
	ID       int64 `yaml:"id" json:"id" mapstructure:"id"`
	SchemaID int32 `yaml:"schema_id" json:"schema_id" mapstructure:"schema_id"`
}

// WriterConfig contains the batch writer settings.
type WriterConfig struct {
	// BufferSize is the byte budget of one batch before the usage ratio
	BufferSize int `yaml:"buffer_size" json:"buffer_size" mapstructure:"buffer_size"`
	// UsageRatio is the share of BufferSize a batch may fill (0-1, exclusive)
	UsageRatio float64 `yaml:"usage_ratio" json:"usage_ratio" mapstructure:"usage_ratio"`
	// InitialCapacity is the preallocated row capacity of every column
	InitialCapacity int `yaml:"initial_capacity" json:"initial_capacity" mapstructure:"initial_capacity"`
	// Compression selects the arrow body codec
	Compression CompressionConfig `yaml:"compression" json:"compression" mapstructure:"compression"`
}

// CompressionConfig selects a codec by name.
type CompressionConfig struct {
	// Type is none, lz4 or zstd
	Type string `yaml:"type" json:"type" mapstructure:"type"`
	// Level is the zstd level; -1 picks the default
	Level int `yaml:"level" json:"level" mapstructure:"level"`
}

// PoolConfig contains writer pool settings.
type PoolConfig struct {
	MaxIdlePerKey int `yaml:"max_idle_per_key" json:"max_idle_per_key" mapstructure:"max_idle_per_key"`
}

// PagingConfig sizes the output page pool.
type PagingConfig struct {
	PageSize int `yaml:"page_size" json:"page_size" mapstructure:"page_size"`
	// MaxPages bounds the outstanding pages (0 = unbounded)
	MaxPages int `yaml:"max_pages" json:"max_pages" mapstructure:"max_pages"`
}

// SegmentConfig contains segment file settings.
type SegmentConfig struct {
	// Compression is the block algorithm wrapped around each segment
	// (none, gzip, snappy, lz4, zstd, s2)
	Compression string `yaml:"compression" json:"compression" mapstructure:"compression"`
	// Level is fastest, default, better or best
	Level string `yaml:"level" json:"level" mapstructure:"level"`
}

// ObservabilityConfig contains monitoring and observability settings.
type ObservabilityConfig struct {
	// LogLevel sets logging verbosity (debug, info, warn, error)
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`
	// LogFormat is json or console
	LogFormat string `yaml:"log_format" json:"log_format" mapstructure:"log_format"`
	// EnableMetrics activates metrics collection
	EnableMetrics bool `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	// EnableTracing activates tracing to stderr
	EnableTracing bool `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	// TracingSampleRate controls trace sampling (0.0-1.0)
	TracingSampleRate float64 `yaml:"tracing_sample_rate" json:"tracing_sample_rate" mapstructure:"tracing_sample_rate"`
}

// NewDefaultConfig creates a Config with defaults that work for most
// workloads. The schema is left empty.
func NewDefaultConfig() *Config {
	return &Config{
		Name: "arrowlog",
		Table: TableConfig{
			ID:       1,
			SchemaID: 1,
		},
		Writer: WriterConfig{
			BufferSize:      1 << 20, // 1MB
			UsageRatio:      0.96,
			InitialCapacity: 1024,
			Compression: CompressionConfig{
				Type:  "zstd",
				Level: compression.NoCompressionLevel,
			},
		},
		Pool: PoolConfig{
			MaxIdlePerKey: 4,
		},
		Paging: PagingConfig{
			PageSize: 64 << 10,
			MaxPages: 0,
		},
		Segment: SegmentConfig{
			Compression: "none",
			Level:       "default",
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "console",
			EnableMetrics:     false,
			EnableTracing:     false,
			TracingSampleRate: 1.0,
		},
	}
}

// Validate validates the configuration for correctness.
func (c *Config) Validate() error {
	switch {
	case c.Writer.BufferSize <= 0:
		return configErr("writer.buffer_size must be positive, got %d", c.Writer.BufferSize)
	case c.Writer.UsageRatio <= 0 || c.Writer.UsageRatio >= 1:
		return configErr("writer.usage_ratio must be in (0, 1), got %v", c.Writer.UsageRatio)
	case c.Writer.InitialCapacity <= 0:
		return configErr("writer.initial_capacity must be positive, got %d", c.Writer.InitialCapacity)
	case c.Pool.MaxIdlePerKey < 0:
		return configErr("pool.max_idle_per_key cannot be negative")
	case c.Paging.PageSize <= 0:
		return configErr("paging.page_size must be positive, got %d", c.Paging.PageSize)
	case c.Paging.MaxPages < 0:
		return configErr("paging.max_pages cannot be negative")
	case c.Observability.TracingSampleRate < 0 || c.Observability.TracingSampleRate > 1:
		return configErr("observability.tracing_sample_rate must be in [0, 1]")
	}
	if _, err := c.CompressionInfo(); err != nil {
		return err
	}
	if _, err := c.SegmentCompression(); err != nil {
		return err
	}
	if len(c.Schema) > 0 {
		if _, err := c.RowType(); err != nil {
			return err
		}
	}
	return nil
}

func configErr(format string, args ...interface{}) error {
	return errors.New(errors.ErrorTypeConfig, fmt.Sprintf(format, args...))
}

// CompressionInfo returns the arrow body codec of writer.compression.
func (c *Config) CompressionInfo() (compression.ArrowCompressionInfo, error) {
	t, err := compression.ParseArrowCompressionType(c.Writer.Compression.Type)
	if err != nil {
		return compression.ArrowCompressionInfo{}, err
	}
	level := c.Writer.Compression.Level
	if t != compression.ArrowZstd {
		level = compression.NoCompressionLevel
	}
	return compression.NewArrowCompressionInfo(t, level)
}

// SegmentCompression returns the block compressor settings of segment.
func (c *Config) SegmentCompression() (*compression.Config, error) {
	algo, err := compression.ParseAlgorithm(c.Segment.Compression)
	if err != nil {
		return nil, err
	}
	level, err := compression.ParseLevel(c.Segment.Level)
	if err != nil {
		return nil, err
	}
	return &compression.Config{Algorithm: algo, Level: level}, nil
}

// RowType builds the row type of schema.
func (c *Config) RowType() (types.RowType, error) {
	if len(c.Schema) == 0 {
		return types.RowType{}, configErr("schema is empty")
	}
	rt, err := types.RowTypeFromDefs(c.Schema)
	if err != nil {
		return types.RowType{}, errors.Wrap(err, errors.ErrorTypeConfig, "invalid schema")
	}
	return rt, nil
}
