package progress

import (
	"context"
	"fmt"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/ligustah/gitgrab/internal/progress"

// Snapshot is a point-in-time copy of the run counters.
type Snapshot struct {
	Total     int64
	Completed int64
	Skipped   int64
	Failed    int64
	Bytes     int64
}

// Done returns the number of entries that reached a terminal outcome.
func (s Snapshot) Done() int64 {
	return s.Completed + s.Skipped + s.Failed
}

func (s Snapshot) String() string {
	return fmt.Sprintf("completed=%d, skipped=%d, failed=%d", s.Completed, s.Skipped, s.Failed)
}

// Metrics counts entry outcomes for one run. All methods are safe for
// concurrent use.
type Metrics struct {
	total     int64
	completed atomic.Int64
	skipped   atomic.Int64
	failed    atomic.Int64
	bytes     atomic.Int64

	entries      metric.Int64Counter
	bytesCounter metric.Int64Counter
}

// NewMetrics creates counters for a run over total entries. Outcomes are
// also recorded on instruments from mp; a nil mp uses the global provider.
func NewMetrics(total int, mp metric.MeterProvider) *Metrics {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(meterName)

	m := &Metrics{total: int64(total)}

	var err error
	m.entries, err = meter.Int64Counter(
		"gitgrab.entries",
		metric.WithDescription("Number of repository entries processed, by outcome"),
	)
	if err != nil {
		otel.Handle(err)
	}
	m.bytesCounter, err = meter.Int64Counter(
		"gitgrab.bytes_written",
		metric.WithUnit("By"),
		metric.WithDescription("Bytes of file content written to the destination"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return m
}

// Completed records a downloaded and written file of size bytes.
func (m *Metrics) Completed(ctx context.Context, size int) {
	m.completed.Add(1)
	m.bytes.Add(int64(size))
	m.record(ctx, "completed")
	if m.bytesCounter != nil {
		m.bytesCounter.Add(ctx, int64(size))
	}
}

// Skipped records a folder entry.
func (m *Metrics) Skipped(ctx context.Context) {
	m.skipped.Add(1)
	m.record(ctx, "skipped")
}

// Failed records an entry that could not be fetched or written.
func (m *Metrics) Failed(ctx context.Context) {
	m.failed.Add(1)
	m.record(ctx, "failed")
}

func (m *Metrics) record(ctx context.Context, outcome string) {
	if m.entries == nil {
		return
	}
	m.entries.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	return Snapshot{
		Total:     m.total,
		Completed: m.completed.Load(),
		Skipped:   m.skipped.Load(),
		Failed:    m.failed.Load(),
		Bytes:     m.bytes.Load(),
	}
}
