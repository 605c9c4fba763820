// Package snapshot persists scraped snapshots as CSV artifacts.
//
// Layout under the output directory:
//
//	latest.csv                       baseline for the next run
//	archive/snapshot_<run_id>.csv    full snapshot, one per run
//	archive/added_<run_id>.csv       records new in that run (only if any)
//	archive/removed_<run_id>.csv     records gone in that run (only if any)
//
// Every artifact has a header row: the configured fields in order, any extra
// fields sorted, then the fingerprint column (default "hash"). run_id is the UTC
// start time as YYYYmmdd_HHMMSS. When two runs resolve to the same second the
// later one gets a sequence suffix, snapshot_<run_id>-0002.csv.
//
// Archive files are published with a hard link from a synced temp file, so an
// existing artifact is never overwritten and a reader never sees a partial one.
// latest.csv is replaced by rename. Write errors are returned to the caller and
// never retried here.
package snapshot
