package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob"
	_ "gocloud.dev/blob/memblob"
	_ "gocloud.dev/blob/s3blob"

	"github.com/ligustah/gitgrab/internal/config"
	"github.com/ligustah/gitgrab/internal/downloader"
	"github.com/ligustah/gitgrab/internal/materialize"
	"github.com/ligustah/gitgrab/internal/progress"
)

func newFetchCmd(stdout, stderr io.Writer) *cobra.Command {
	var (
		flags        sourceFlags
		showProgress bool
		strict       bool
	)

	cmd := &cobra.Command{
		Use:   "fetch [REPO_URL TOKEN PATH_CSV [VERSION] [VERSION_TYPE] [DEST] [PARALLEL]]",
		Short: "Download repository paths into a directory or bucket",
		Long: `Resolve the requested paths with one itemsbatch request and download every
file, preserving repository paths under DEST. Folders are expanded fully.

DEST may be a local directory ($VAR, ${VAR} and %VAR% are expanded) or a
bucket URL such as s3://bucket?region=eu-west-1, gs://bucket or file:///tmp/out.

Failed entries are reported in the summary; use --strict to turn them into
a non-zero exit status.`,
		Args: cobra.MaximumNArgs(7),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load(cmd, args)
			if err != nil {
				return exitWith(ExitInvalidArgs, err)
			}
			cfg.Progress = cfg.Progress || showProgress
			cfg.Strict = cfg.Strict || strict

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return runFetch(ctx, cfg, stdout, stderr)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&showProgress, "progress", false, "Print a progress line to stderr")
	cmd.Flags().BoolVar(&strict, "strict", false, "Exit with status 6 when any entry failed")
	return cmd
}

func runFetch(ctx context.Context, cfg config.Config, stdout, stderr io.Writer) error {
	s, err := openSession(ctx, cfg, stderr)
	if err != nil {
		return exitWith(ExitGeneralError, err)
	}
	defer s.close()

	inv, err := s.resolve(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Found %d item(s) to download.\n", len(inv))

	dst, err := materialize.Open(ctx, config.ExpandPath(cfg.Dest))
	if err != nil {
		s.logger.Error("open destination failed", slog.Any("error", err))
		return exitWith(ExitStorageError, err)
	}

	metrics := progress.NewMetrics(len(inv), s.tel.MeterProvider)

	var reporter *progress.Reporter
	if cfg.Progress {
		reporter = progress.NewReporter(metrics, progress.Options{
			Output:  stderr,
			Source:  cfg.RepoURL,
			Workers: cfg.Parallel,
		})
		reporter.Start()
	}

	start := time.Now()
	snap := downloader.Run(ctx, inv, s.client, dst, downloader.Options{
		Workers: cfg.Parallel,
		Metrics: metrics,
		Logger:  s.logger,
	})
	elapsed := time.Since(start)

	if reporter != nil {
		reporter.Stop()
	}
	closeErr := dst.Close()

	progress.WriteSummary(stdout, snap, elapsed, dst.String())
	s.logger.Info("fetch finished",
		slog.Int64("completed", snap.Completed),
		slog.Int64("skipped", snap.Skipped),
		slog.Int64("failed", snap.Failed),
		slog.Int64("bytes", snap.Bytes),
		slog.Duration("elapsed", elapsed))

	switch {
	case closeErr != nil:
		return exitWith(ExitStorageError, fmt.Errorf("close destination: %w", closeErr))
	case ctx.Err() != nil:
		return exitWith(ExitGeneralError, errors.New("interrupted"))
	case cfg.Strict && snap.Failed > 0:
		return exitWith(ExitEntriesFailed, fmt.Errorf("%d of %d entries failed", snap.Failed, snap.Total))
	}
	return nil
}
