// Package storage groups the on-disk state of a scrapedelta output directory.
//
//   - snapshot: CSV artifacts (latest.csv and the archive/ history)
//   - index: the Badger run index under .index, which doubles as the
//     single-writer lock
//
// The CSV files are the source of truth. The index records run outcomes and
// is never read back to reconstruct a snapshot.
package storage
