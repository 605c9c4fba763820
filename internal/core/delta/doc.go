// Package delta computes changes between snapshots by fingerprint-set
// difference.
//
// Records are compared by fingerprint only. Two records whose hashed fields
// match are the same record, whatever their other fields say. Each side of a
// delta keeps its source order and duplicates.
package delta
