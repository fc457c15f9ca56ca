package main

import (
	"bufio"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ajitpratap0/arrowlog/internal/ingest"
	"github.com/ajitpratap0/arrowlog/pkg/config"
	"github.com/ajitpratap0/arrowlog/pkg/errors"
	jsonpool "github.com/ajitpratap0/arrowlog/pkg/json"
	"github.com/ajitpratap0/arrowlog/pkg/logger"
	"github.com/ajitpratap0/arrowlog/pkg/logrecord"
	"github.com/ajitpratap0/arrowlog/pkg/observability"
)

func newReadCommand(global *globalFlags) *cobra.Command {
	var from int64
	cmd := &cobra.Command{
		Use:   "read <segment file or directory>...",
		Short: "Print the rows of segment files as JSON lines",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, done, err := setup(global)
			if err != nil {
				return err
			}
			defer done()

			paths, err := expandSegments(args)
			if err != nil {
				return err
			}
			return runRead(cmd, cfg, paths, from)
		},
	}
	cmd.Flags().Int64Var(&from, "from", 0, "Skip rows before this offset")
	return cmd
}

func runRead(cmd *cobra.Command, cfg *config.Config, paths []string, from int64) (err error) {
	ctx, span := observability.StartSpan(cmd.Context(), "cli.read")
	defer func() { span.End(err) }()

	rowType, err := cfg.RowType()
	if err != nil {
		return err
	}
	out := bufio.NewWriter(cmd.OutOrStdout())
	defer out.Flush()
	enc := jsonpool.NewRowEncoder(out, jsonpool.NewRowCodec(rowType))

	var rows int64
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return err
		}
		batches, err := ingest.ReadSegmentFile(path)
		if err != nil {
			return err
		}
		it := logrecord.NewIterator(batches, rowType, nil)
		for it.Next() {
			b := it.Batch()
			if b.Header.SchemaID != cfg.Table.SchemaID {
				return errors.Newf(errors.ErrorTypeData, "batch has schema %d, configured schema is %d",
					b.Header.SchemaID, cfg.Table.SchemaID).WithDetail("path", path)
			}
			for i, row := range b.Rows {
				if b.Header.BaseOffset+int64(i) < from {
					continue
				}
				if err := enc.Encode(row); err != nil {
					return err
				}
				rows++
			}
		}
		if err := it.Err(); err != nil {
			return errors.Wrap(err, errors.ErrorTypeData, "corrupt segment").WithDetail("path", path)
		}
	}
	span.SetAttribute("rows", rows)
	logger.Debug("read segments", zap.Int("segments", len(paths)), zap.Int64("rows", rows))
	return nil
}

// expandSegments replaces directories by the segment files they hold.
func expandSegments(args []string) ([]string, error) {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeIO, "cannot open input").WithDetail("path", arg)
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		segs, err := ingest.ListSegments(arg)
		if err != nil {
			return nil, err
		}
		paths = append(paths, segs...)
	}
	return paths, nil
}
