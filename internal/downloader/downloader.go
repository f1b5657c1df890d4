package downloader

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/ligustah/gitgrab/internal/inventory"
	"github.com/ligustah/gitgrab/internal/materialize"
	"github.com/ligustah/gitgrab/internal/progress"
)

// Outcome is the terminal state of one entry.
type Outcome int

const (
	Completed Outcome = iota
	Skipped
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Completed:
		return "completed"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Result is the outcome of processing one entry. Err is set for Failed.
type Result struct {
	Entry   inventory.Entry
	Outcome Outcome
	Bytes   int
	Err     error
}

// Fetcher returns the content behind an entry's content URL.
type Fetcher interface {
	Get(ctx context.Context, url string) ([]byte, error)
}

// Options configures the downloader.
type Options struct {
	// Workers is the number of parallel download workers.
	// Default: 1
	Workers int

	// Metrics receives every outcome. When nil, Run creates its own.
	Metrics *progress.Metrics

	// OnResult, if set, is called once per entry from the worker that
	// processed it. It must be safe for concurrent use.
	OnResult func(Result)

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Run downloads every file entry of inv into dst with up to opts.Workers
// entries in flight. Folder entries are counted as skipped. A failing entry
// is counted and logged; it never stops the others. Run returns once every
// dispatched entry has finished. When ctx is cancelled no further entries
// are dispatched.
func Run(ctx context.Context, inv inventory.Inventory, fetch Fetcher, dst materialize.Writer, opts Options) progress.Snapshot {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Metrics == nil {
		opts.Metrics = progress.NewMetrics(len(inv), nil)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	// In-flight entries run to completion (or their own timeouts) after ctx
	// is cancelled; cancellation only stops dispatch.
	workCtx := context.WithoutCancel(ctx)
	jobs := make(chan inventory.Entry)

	var g errgroup.Group
	for i := 0; i < opts.Workers; i++ {
		g.Go(func() error {
			for entry := range jobs {
				res := process(workCtx, fetch, dst, entry)
				record(workCtx, opts, res)
			}
			return nil
		})
	}

	// Feed jobs in inventory order.
	feed(ctx, inv, jobs)

	_ = g.Wait()
	return opts.Metrics.Snapshot()
}

func feed(ctx context.Context, inv inventory.Inventory, jobs chan<- inventory.Entry) {
	defer close(jobs)
	for _, entry := range inv {
		if ctx.Err() != nil {
			return
		}
		select {
		case jobs <- entry:
		case <-ctx.Done():
			return
		}
	}
}

// process handles one entry.
func process(ctx context.Context, fetch Fetcher, dst materialize.Writer, entry inventory.Entry) Result {
	if entry.IsFolder {
		return Result{Entry: entry, Outcome: Skipped}
	}

	content, err := fetch.Get(ctx, entry.ContentURL)
	if err != nil {
		return Result{Entry: entry, Outcome: Failed, Err: fmt.Errorf("fetch %s: %w", entry.Path, err)}
	}

	if err := dst.Write(ctx, entry.Path, content); err != nil {
		return Result{Entry: entry, Outcome: Failed, Err: fmt.Errorf("write %s: %w", entry.Path, err)}
	}

	return Result{Entry: entry, Outcome: Completed, Bytes: len(content)}
}

func record(ctx context.Context, opts Options, res Result) {
	switch res.Outcome {
	case Completed:
		opts.Metrics.Completed(ctx, res.Bytes)
		opts.Logger.Info("downloaded", slog.String("path", res.Entry.Path), slog.Int("bytes", res.Bytes))
	case Skipped:
		opts.Metrics.Skipped(ctx)
		opts.Logger.Debug("skipped folder", slog.String("path", res.Entry.Path))
	case Failed:
		opts.Metrics.Failed(ctx)
		opts.Logger.Warn("download failed", slog.String("path", res.Entry.Path), slog.Any("error", res.Err))
	}

	if opts.OnResult != nil {
		opts.OnResult(res)
	}
}
