// Package fingerprint derives stable content fingerprints for scraped records.
//
// A fingerprint is the SHA-256 digest of a canonical string built from a fixed,
// ordered subset of a record's fields:
//
//	canonical = trim(v[k1]) + "|" + trim(v[k2]) + ... + "|" + trim(v[kN])
//
// Missing fields hash as the empty string, so a record with no "price" is a
// distinct, hashable state rather than an error. Values are normalized to valid
// UTF-8 before hashing.
//
// Fingerprints render as 64 lowercase hex characters, which matches the
// "hash" column written by earlier versions of the scraper.
package fingerprint
