// Package domain defines the core domain models for scrapedelta.
//
// Domain models are pure values without IO dependencies. This package contains:
//
//   - Record: a scraped row plus its content fingerprint
//   - Snapshot: an ordered record collection taken by one run
//   - Delta: the added/removed records between two snapshots
//   - RunID: the archive address of a run
//   - Errors: the code-carrying error catalogue and RunError
package domain
