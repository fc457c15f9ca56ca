// Command arrowlog writes JSON lines into segment files of arrow log
// batches and reads them back.
package main

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowlog/pkg/config"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	"github.com/ajitpratap0/arrowlog/pkg/logger"
	"github.com/ajitpratap0/arrowlog/pkg/observability"
	"github.com/ajitpratap0/arrowlog/pkg/types"
)

var version = "0.1.0"

// envPrefix prefixes environment overrides, e.g. ARROWLOG_WRITER_BUFFER_SIZE.
const envPrefix = "ARROWLOG"

// globalFlags are shared by every command.
type globalFlags struct {
	configFile string
	schema     string
	logLevel   string
	logFormat  string
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "arrowlog",
		Short: "arrowlog - arrow log batch writer",
		Long: `arrowlog packs rows into size-budgeted Arrow record batches, frames them as
log batches and stores them in segment files.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&flags.configFile, "config", "c", "", "Path to a YAML configuration file")
	root.PersistentFlags().StringVar(&flags.schema, "schema", "", `Row schema, e.g. "id:BIGINT NOT NULL,name:STRING" (overrides the config)`)
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flags.logFormat, "log-format", "", "Log format (json, console)")

	root.AddCommand(
		newVersionCommand(),
		newWriteCommand(flags),
		newReadCommand(flags),
		newInspectCommand(flags),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "arrowlog v%s\n", version)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}

// setup loads the configuration and initializes logging and tracing. The
// returned function flushes both.
func setup(flags *globalFlags) (*config.Config, func(), error) {
	cfg, err := loadConfig(flags)
	if err != nil {
		return nil, nil, err
	}

	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogFormat,
	}); err != nil {
		return nil, nil, err
	}

	var shutdown observability.ShutdownFunc = func(context.Context) error { return nil }
	if cfg.Observability.EnableTracing {
		tc := observability.DefaultTracingConfig()
		tc.ServiceName = "arrowlog"
		tc.ServiceVersion = version
		tc.SamplingRate = cfg.Observability.TracingSampleRate
		tc.Output = os.Stderr
		if shutdown, err = observability.InitTracing(tc); err != nil {
			return nil, nil, err
		}
	}

	return cfg, func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Warn("failed to flush traces", zap.Error(err))
		}
		_ = logger.Sync()
	}, nil
}

// loadConfig applies, in order: defaults, the config file, ARROWLOG_*
// environment variables and command line flags.
func loadConfig(flags *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadWithViper(flags.configFile, envPrefix)
	if err != nil {
		return nil, err
	}
	if flags.schema != "" {
		defs, err := parseSchemaFlag(flags.schema)
		if err != nil {
			return nil, err
		}
		cfg.Schema = defs
	}
	if flags.logLevel != "" {
		cfg.Observability.LogLevel = flags.logLevel
	}
	if flags.logFormat != "" {
		cfg.Observability.LogFormat = flags.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseSchemaFlag parses "name:TYPE,name:TYPE".
func parseSchemaFlag(s string) ([]types.FieldDef, error) {
	var defs []types.FieldDef
	for _, part := range strings.Split(s, ",") {
		name, typ, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok || name == "" {
			return nil, errors.Newf(errors.ErrorTypeConfig, "malformed schema field %q, want name:TYPE", part)
		}
		defs = append(defs, types.FieldDef{Name: strings.TrimSpace(name), Type: strings.TrimSpace(typ)})
	}
	return defs, nil
}
