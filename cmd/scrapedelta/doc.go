// Command scrapedelta scrapes a configured page, archives the snapshot and the
// records added and removed since the previous run, and exports the new
// artifacts.
//
// By default it performs one run and exits. With -watch it repeats the run
// every schedule.interval, serves status and metrics on metrics.addr, and
// reloads its configuration file between runs.
//
// Exit codes:
//
//	0  run succeeded (changes or not); watch mode stopped cleanly
//	1  configuration or startup error
//	2  fatal run error (fetch, hash, diff or persist)
//	3  archive locked by another run
package main
