// Package api exposes the registry store over HTTP and WebSocket.
//
// Every route under /api/v1 except /health requires a caller identity,
// taken from a bearer JWT or, when enabled, an X-API-Key header. Handlers
// pass that identity to the store; ownership rules are enforced there.
//
// Lifecycle:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api
