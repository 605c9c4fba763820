// Package confloader loads layered configuration with koanf.
//
// Priority (highest to lowest):
//
//  1. Command-line flags (LoadMap)
//  2. Environment variables (SCRAPEDELTA_<SECTION>_<KEY>)
//  3. Configuration file (YAML)
//  4. Values already present in the target struct
//
// Lists given in a higher layer replace lists from a lower one. Watcher
// reports edits of the configuration file so long-running processes can reload
// between runs.
package confloader
