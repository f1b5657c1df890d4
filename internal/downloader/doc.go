// Package downloader fetches the files of an inventory with a bounded
// worker pool.
//
// This package coordinates between the HTTP client and a
// materialize.Writer. Every entry ends in exactly one outcome: folders are
// skipped, files are completed or failed. A failed entry is recorded and
// logged and never affects its siblings, so Run always returns a summary.
//
// # Usage
//
//	snap := downloader.Run(ctx, inv, client, dest, downloader.Options{
//	    Workers: 8,
//	    Metrics: metrics,
//	})
//	fmt.Println(snap) // completed=17, skipped=2, failed=1
//
// # Worker Pool
//
// Workers pull entries from one channel fed in inventory (path) order.
// Entries may finish out of order.
//
// # Graceful Shutdown
//
// When the context is cancelled the feeder stops dispatching new entries.
// Entries already in flight finish or hit their per-request timeout.
package downloader
