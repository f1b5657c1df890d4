package progress

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Options configures the progress reporter.
type Options struct {
	// Output is where to write progress output.
	// Default: os.Stderr
	Output io.Writer

	// UpdateInterval is how often to update the progress display.
	// Default: 500ms
	UpdateInterval time.Duration

	// Source is the repository being fetched (for display).
	Source string

	// Workers is the number of parallel workers (for display).
	Workers int
}

// Reporter periodically prints the state of a run's Metrics.
type Reporter struct {
	opts    Options
	metrics *Metrics

	mu        sync.Mutex
	startTime time.Time
	stopCh    chan struct{}
	doneCh    chan struct{}
	started   bool
	stopped   bool
}

// NewReporter creates a reporter over m.
func NewReporter(m *Metrics, opts Options) *Reporter {
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if opts.UpdateInterval == 0 {
		opts.UpdateInterval = 500 * time.Millisecond
	}

	return &Reporter{
		opts:    opts,
		metrics: m,
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins outputting progress information.
func (r *Reporter) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.startTime = time.Now()

	snap := r.metrics.Snapshot()
	fmt.Fprintf(r.opts.Output, "[gitgrab] Fetching: %s\n", r.opts.Source)
	fmt.Fprintf(r.opts.Output, "[gitgrab] Entries: %d | Workers: %d\n", snap.Total, r.opts.Workers)

	go r.updateLoop()
}

// Stop stops the reporter and prints the last progress line. It waits for
// the update loop to exit.
func (r *Reporter) Stop() {
	r.mu.Lock()
	if !r.started || r.stopped {
		r.mu.Unlock()
		return
	}
	r.stopped = true
	r.mu.Unlock()

	close(r.stopCh)
	<-r.doneCh
}

func (r *Reporter) updateLoop() {
	defer close(r.doneCh)

	ticker := time.NewTicker(r.opts.UpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopCh:
			r.printProgress()
			fmt.Fprintln(r.opts.Output)
			return
		case <-ticker.C:
			r.printProgress()
		}
	}
}

func (r *Reporter) printProgress() {
	snap := r.metrics.Snapshot()

	var percent float64
	if snap.Total > 0 {
		percent = float64(snap.Done()) / float64(snap.Total) * 100
	}

	fmt.Fprintf(r.opts.Output, "\r[gitgrab] Progress: %.1f%% | %d/%d | %d completed | %d skipped | %d failed | %s    ",
		percent,
		snap.Done(),
		snap.Total,
		snap.Completed,
		snap.Skipped,
		snap.Failed,
		formatDuration(time.Since(r.startTime)),
	)
}

// WriteSummary prints the final run summary.
func WriteSummary(w io.Writer, snap Snapshot, elapsed time.Duration, dest string) {
	fmt.Fprintf(w, "[gitgrab] Completed download at %s\n", dest)
	fmt.Fprintf(w, "[gitgrab] Entries: %d | Completed: %d | Skipped: %d | Failed: %d\n",
		snap.Total, snap.Completed, snap.Skipped, snap.Failed)
	if pending := snap.Total - snap.Done(); pending > 0 {
		fmt.Fprintf(w, "[gitgrab] Not started: %d (interrupted)\n", pending)
	}

	var speed int64
	if elapsed > 0 {
		speed = int64(float64(snap.Bytes) / elapsed.Seconds())
	}
	fmt.Fprintf(w, "[gitgrab] Written: %s | Total time: %s | Average speed: %s/s\n",
		formatBytes(snap.Bytes),
		formatDuration(elapsed),
		formatBytes(speed),
	)
}

// formatBytes formats bytes as a human-readable string.
func formatBytes(b int64) string {
	const (
		KB = 1024
		MB = KB * 1024
		GB = MB * 1024
	)

	switch {
	case b >= GB:
		return fmt.Sprintf("%.2f GB", float64(b)/float64(GB))
	case b >= MB:
		return fmt.Sprintf("%.2f MB", float64(b)/float64(MB))
	case b >= KB:
		return fmt.Sprintf("%.2f KB", float64(b)/float64(KB))
	default:
		return fmt.Sprintf("%d B", b)
	}
}

// formatDuration formats a duration as a human-readable string.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		m := int(d.Minutes())
		s := int(d.Seconds()) % 60
		return fmt.Sprintf("%dm %ds", m, s)
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%dh %dm %ds", h, m, s)
}
