// Package export copies run artifacts off the box.
//
// A Sink uploads one local file under a logical name. Sinks compose:
//
//	New(cfg) = Retrying(Sealing(S3 | AzBlob))   or   Noop
//
// Export failures never undo local persistence; the runner reports them and
// moves on.
package export
