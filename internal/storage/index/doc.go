// Package index keeps a catalog of runs in a Badger database under the
// output directory.
//
// Each run writes one record keyed by run id: timings, outcome, counts, the
// fingerprint-set digest and the artifacts it published. The CSV archive
// remains the source of truth; the index only makes history queryable.
//
// Opening the index takes Badger's exclusive directory lock. The runner holds
// it for the whole run, which is what serializes runs against one archive: a
// second Open fails with domain.ErrArchiveLocked.
package index
