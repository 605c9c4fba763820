// Command scrapedelta-cli inspects and maintains a scrapedelta output
// directory: the run index, archived artifacts and latest.csv.
//
// Usage:
//
//	scrapedelta-cli [global flags] command [flags] [args]
//	scrapedelta-cli -c scrapedelta.yaml runs --limit 10
//	scrapedelta-cli -d artifacts archive show 20260101_120000 --kind added
//	scrapedelta-cli diff old.csv new.csv -o json
//	scrapedelta-cli prune --keep 30
//
// Exit codes: 0 success, 1 usage or configuration error, 2 operation failed,
// 3 archive locked by a running scrape.
package main
