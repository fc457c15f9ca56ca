package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ajitpratap0/arrowlog/pkg/errors"
)

// Load loads a configuration from a YAML file
func Load(filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath) //nolint:gosec // G304: File path is controlled by caller
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to read config file")
	}

	// Substitute environment variables
	content := substituteEnvVars(string(data))

	if err := yaml.Unmarshal([]byte(content), config); err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to parse YAML")
	}

	return nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, config interface{}) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeConfig, "failed to marshal YAML")
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil { //nolint:gosec
		return errors.Wrap(err, errors.ErrorTypeIO, "failed to write config file")
	}

	return nil
}

// LoadConfig reads a Config from a YAML file on top of the defaults and
// validates it.
func LoadConfig(filePath string) (*Config, error) {
	cfg := NewDefaultConfig()
	if err := Load(filePath, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadWithViper reads a Config through viper. Every scalar key can be
// overridden from the environment as <PREFIX>_<SECTION>_<KEY>, e.g.
// ARROWLOG_WRITER_BUFFER_SIZE. An empty filePath loads defaults and the
// environment only.
func LoadWithViper(filePath, envPrefix string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	if envPrefix != "" {
		v.SetEnvPrefix(envPrefix)
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v, NewDefaultConfig())

	if filePath != "" {
		v.SetConfigFile(filePath)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to read config file").
				WithDetail("path", filePath)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "failed to decode config")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setDefaults registers every scalar key so AutomaticEnv can see it.
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("name", d.Name)
	v.SetDefault("table.id", d.Table.ID)
	v.SetDefault("table.schema_id", d.Table.SchemaID)
	v.SetDefault("writer.buffer_size", d.Writer.BufferSize)
	v.SetDefault("writer.usage_ratio", d.Writer.UsageRatio)
	v.SetDefault("writer.initial_capacity", d.Writer.InitialCapacity)
	v.SetDefault("writer.compression.type", d.Writer.Compression.Type)
	v.SetDefault("writer.compression.level", d.Writer.Compression.Level)
	v.SetDefault("pool.max_idle_per_key", d.Pool.MaxIdlePerKey)
	v.SetDefault("paging.page_size", d.Paging.PageSize)
	v.SetDefault("paging.max_pages", d.Paging.MaxPages)
	v.SetDefault("segment.compression", d.Segment.Compression)
	v.SetDefault("segment.level", d.Segment.Level)
	v.SetDefault("observability.log_level", d.Observability.LogLevel)
	v.SetDefault("observability.log_format", d.Observability.LogFormat)
	v.SetDefault("observability.enable_metrics", d.Observability.EnableMetrics)
	v.SetDefault("observability.enable_tracing", d.Observability.EnableTracing)
	v.SetDefault("observability.tracing_sample_rate", d.Observability.TracingSampleRate)
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
