// Package progress counts run outcomes and reports them.
//
// [Metrics] holds the completed, skipped and failed counters that every
// download worker increments. Each increment is mirrored to OpenTelemetry
// counters on the configured meter provider. [Reporter] prints a live
// progress line while a run is in flight, and [WriteSummary] prints the
// final counts once the run is over.
//
// # Usage
//
//	m := progress.NewMetrics(len(inv), nil)
//
//	reporter := progress.NewReporter(m, progress.Options{Workers: 8})
//	reporter.Start()
//	defer reporter.Stop()
//
//	// workers call m.Completed, m.Skipped, m.Failed
//
//	progress.WriteSummary(os.Stdout, m.Snapshot(), time.Since(start), dest)
//
// # Output Format
//
//	[gitgrab] Progress: 45.0% | 9/20 | 7 completed | 2 skipped | 0 failed | 3s
//	[gitgrab] Completed download at /home/me/drop
//	[gitgrab] Entries: 20 | Completed: 17 | Skipped: 2 | Failed: 1
package progress
