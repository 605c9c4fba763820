// Package command defines the scrapedelta-cli commands.
//
// Commands work directly on an output directory: its archive, latest.csv and
// run index. They never talk to a running scrapedelta process, so commands
// that open the run index fail with SD-ARCH-4090 while a run holds the lock.
package command
