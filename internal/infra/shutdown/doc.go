// Package shutdown coordinates graceful process termination.
//
// A Handler waits for SIGINT/SIGTERM (or an explicit Trigger), then runs
// the registered hooks in reverse registration order under one timeout.
//
//	h := shutdown.NewHandler(15*time.Second, log)
//	h.OnShutdown("http", srv.Shutdown)
//	h.OnShutdown("store", store.Close)
//	err := h.Wait(ctx)
package shutdown
