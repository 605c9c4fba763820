// Package buildinfo reports the scrapedelta build.
//
// Release builds inject values with ldflags:
//
//	go build -ldflags "-X github.com/yndnr/scrapedelta/internal/infra/buildinfo.Version=v1.2.0 \
//	    -X github.com/yndnr/scrapedelta/internal/infra/buildinfo.Commit=$(git rev-parse --short HEAD)"
//
// Anything not injected is filled from the module build info embedded by the
// Go toolchain (module version, vcs.revision, vcs.time).
package buildinfo
