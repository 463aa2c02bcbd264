// Package api provides the JSON REST API server for policydesk.
//
// # Architecture
//
// The API server uses Go 1.22+ routing with a layered middleware stack:
//
//	Recovery → RequestID → Logging → CORS → Throttle → Routes
//
// Health probes (/health, /ready) bypass the middleware stack via a
// top-level mux, ensuring they remain fast and unthrottled.
//
// # Endpoints
//
// Health probes (no middleware):
//   - GET /health — returns {"status":"ok"}
//   - GET /ready  — pings the database pool, returns {"status":"ok"} or 503
//
// Chat:
//   - POST /api/v1/chat — one grounded question/answer turn
//
// # Error Handling
//
// All responses use an envelope format:
//
//	Success: {"data": <payload>}
//	Error:   {"error": {"code": "...", "message": "..."}}
//
// Upstream failures map to stable error codes: retrieval_unavailable and
// generation_unavailable return 503, storage failures on the user message
// return 500. Error messages never echo internal error text.
//
// # Security
//
// The middleware stack enforces:
//   - Per-caller throttling (token bucket keyed by client address)
//   - CORS with explicit origin allowlist
//   - Security headers (CSP, X-Frame-Options, nosniff)
//   - 1MB request body limit on chat
package api
