// Package api implements the HTTP REST API and WebSocket server for the
// Wi-SUN gateway.
//
// It serves:
//   - REST endpoints for gateway status and stored meter readings
//   - a WebSocket hub that streams each meter reading as it is polled
//   - optional JWT bearer authentication (enabled via api.auth_secret)
//   - the middleware chain: request ID, logging, recovery and CORS
//   - TLS when certificates are configured
//
// # Architecture
//
// The API server sits beside the meter bridge: the bridge polls the smart
// meter over the Wi-SUN link, stores readings in SQLite, and hands each
// reading to the server's hub for WebSocket broadcast. REST reads go
// straight to the reading store, so history queries work even while the
// meter link is down.
//
// # Security
//
// When api.auth_secret is set, protected routes require an HMAC-signed JWT
// presented as a bearer token. WebSocket clients pass the same token via
// the "token" query parameter because browsers cannot set headers on
// WebSocket upgrades. With no secret configured the API is open, which is
// the normal mode on a trusted home LAN.
//
// # Degraded Operation
//
// The server operates without the bridge or the reading store; affected
// endpoints return 503 while /health keeps answering for container probes.
package api
