package main

import (
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowlog/internal/ingest"
	"github.com/ajitpratap0/arrowlog/pkg/arrowlog"
	"github.com/ajitpratap0/arrowlog/pkg/config"
	jsonpool "github.com/ajitpratap0/arrowlog/pkg/json"
	"github.com/ajitpratap0/arrowlog/pkg/logger"
	segmem "github.com/ajitpratap0/arrowlog/pkg/memory"
	"github.com/ajitpratap0/arrowlog/pkg/metrics"
)

type writeFlags struct {
	outDir     string
	baseOffset int64
	cpuProfile string
	memProfile string
}

func newWriteCommand(global *globalFlags) *cobra.Command {
	flags := &writeFlags{}
	cmd := &cobra.Command{
		Use:   "write [files...]",
		Short: "Write JSON lines into segment files",
		Long: `Write reads JSON lines (one object per row) from the given files, or stdin
when none are given, and writes them as log batches into segment files.

Example:
  arrowlog write -c clicks.yaml --out ./segments events.jsonl`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, done, err := setup(global)
			if err != nil {
				return err
			}
			defer done()

			stopProfiles, err := startProfiles(flags.cpuProfile, flags.memProfile)
			if err != nil {
				return err
			}
			defer stopProfiles()

			return runWrite(cmd, cfg, flags, args)
		},
	}
	cmd.Flags().StringVarP(&flags.outDir, "out", "o", "segments", "Directory receiving segment files")
	cmd.Flags().Int64Var(&flags.baseOffset, "base-offset", 0, "Offset of the first row")
	cmd.Flags().StringVar(&flags.cpuProfile, "cpuprofile", "", "Write a CPU profile to file")
	cmd.Flags().StringVar(&flags.memProfile, "memprofile", "", "Write a heap profile to file")
	return cmd
}

// writeSummary is printed when write completes.
type writeSummary struct {
	Rows       int64              `json:"rows"`
	Dropped    int64              `json:"dropped"`
	Batches    int64              `json:"batches"`
	Segments   int64              `json:"segments"`
	Bytes      int64              `json:"bytes"`
	NextOffset int64              `json:"next_offset"`
	Pool       arrowlog.PoolStats `json:"pool"`
	Resources  *resourceUsage     `json:"resources,omitempty"`
}

func runWrite(cmd *cobra.Command, cfg *config.Config, flags *writeFlags, inputs []string) error {
	log := logger.Get().With(zap.String("component", "arrowlog-cli"), zap.String("config", cfg.Name))

	rowType, err := cfg.RowType()
	if err != nil {
		return err
	}
	opts, err := ingest.OptionsFromConfig(cfg)
	if err != nil {
		return err
	}
	opts.BaseOffset = flags.baseOffset

	var reg *prometheus.Registry
	var m *metrics.WriterMetrics
	if cfg.Observability.EnableMetrics {
		reg = prometheus.NewRegistry()
		m = metrics.NewWriterMetrics(reg)
	}

	writers := arrowlog.NewWriterPool(memory.DefaultAllocator,
		arrowlog.WithMaxIdlePerKey(cfg.Pool.MaxIdlePerKey),
		arrowlog.WithPoolLogger(log),
		arrowlog.WithPoolMetrics(m),
		arrowlog.WithWriterOptions(
			arrowlog.WithUsageRatio(cfg.Writer.UsageRatio),
			arrowlog.WithInitialCapacity(cfg.Writer.InitialCapacity),
			arrowlog.WithLogger(log),
			arrowlog.WithMetrics(m),
		))
	defer writers.Close()

	pages, err := segmem.NewSegmentPool(cfg.Paging.PageSize, cfg.Paging.MaxPages)
	if err != nil {
		return err
	}
	sink, err := ingest.NewDirSink(flags.outDir)
	if err != nil {
		return err
	}
	p, err := ingest.NewPipeline(rowType, opts, writers, pages, sink, log, m)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var sum writeSummary
	run := func(r io.Reader) error {
		stats, err := p.Run(ctx, r)
		sum.Rows += stats.RowsRead
		sum.Dropped += stats.RowsDropped
		sum.Batches += stats.Batches
		sum.Segments += stats.Segments
		sum.Bytes += stats.Bytes
		return err
	}

	if len(inputs) == 0 {
		if err := run(cmd.InOrStdin()); err != nil {
			return err
		}
	}
	for _, path := range inputs {
		f, err := os.Open(path) //nolint:gosec // G304: path is a command argument
		if err != nil {
			return err
		}
		err = run(f)
		_ = f.Close()
		if err != nil {
			return err
		}
		log.Info("ingested file", zap.String("path", path), zap.Int64("next_offset", p.NextOffset()))
	}

	sum.NextOffset = p.NextOffset()
	sum.Pool = writers.Stats()
	sum.Resources = currentUsage()
	if reg != nil {
		logMetrics(log, reg)
	}
	return jsonpool.MarshalToWriter(cmd.OutOrStdout(), sum)
}

// logMetrics logs the current value of every collected series.
func logMetrics(log *zap.Logger, reg *prometheus.Registry) {
	families, err := reg.Gather()
	if err != nil {
		log.Warn("failed to gather metrics", zap.Error(err))
		return
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			fields := []zap.Field{zap.String("metric", mf.GetName())}
			for _, l := range m.GetLabel() {
				fields = append(fields, zap.String(l.GetName(), l.GetValue()))
			}
			switch {
			case m.GetCounter() != nil:
				fields = append(fields, zap.Float64("value", m.GetCounter().GetValue()))
			case m.GetGauge() != nil:
				fields = append(fields, zap.Float64("value", m.GetGauge().GetValue()))
			case m.GetHistogram() != nil:
				fields = append(fields,
					zap.Uint64("count", m.GetHistogram().GetSampleCount()),
					zap.Float64("sum", m.GetHistogram().GetSampleSum()))
			}
			log.Info("metric", fields...)
		}
	}
}
