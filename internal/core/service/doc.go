// Package service runs one scrape cycle.
//
// A Runner moves a run through FETCHING, HASHING, DIFFING, PERSISTING and
// EXPORTING to DONE, or to FAILED at the first fatal stage. The baseline is
// latest.csv, falling back to the newest archived snapshot. Persistence writes
// the archive first and replaces latest.csv last, so a failed run never moves
// the baseline. Export failures are logged and counted but do not fail the run.
//
// Collaborators are interfaces (Fetcher, SnapshotStore, RunIndex) so tests can
// substitute them.
package service
