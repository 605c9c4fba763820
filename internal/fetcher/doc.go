// Package fetcher selects the page fetcher for a target.
//
// Two implementations share one extractor:
//
//   - httpfetch downloads static HTML with net/http
//   - browser renders the page in headless Chrome via rod
//
// Both return rows as []map[string]string keyed by configured field name.
package fetcher
