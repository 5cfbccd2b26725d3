// Package ws streams the kernel console over WebSocket.
//
// Message Types (Client → Server):
//   - ping: Keep-alive ping
//   - snapshot: Ask for the current kernel snapshot
//
// Message Types (Server → Client):
//   - system: Connection attached, with the boot id
//   - output: Console bytes
//   - snapshot: Kernel snapshot
//   - halted: The kernel stopped; the connection closes after it
//   - error: Unknown request
//
// Example Usage:
//
//	handler := ws.NewHandler(k, metrics, logger)
//	router.GET("/ws/console", handler.HandleConnection)
package ws
