// Package shutdown coordinates graceful termination of watch mode.
//
// The first SIGINT or SIGTERM cancels Context, so no new run is scheduled,
// then runs the registered hooks in reverse order under a deadline. A hook
// typically waits for the in-flight run and closes the run index.
//
//	h := shutdown.NewHandler(30 * time.Second)
//	h.OnShutdown(func(ctx context.Context) error { return idx.Close() })
//	h.Listen()
//	loop(h.Context())
//	err := h.Wait()
package shutdown
