// Package http serves the operational surface of a bandgo process.
//
// The router exposes:
//   - GET /healthz: reports {"status":"ok"} or 503 with the failing check.
//   - GET /metrics: Prometheus exposition, when a metrics handler is configured.
//   - GET /v1/me: the profile of the session holder. The token is read from the
//     Authorization bearer header or the session_token cookie.
//   - GET /v1/notifications: the session holder's notifications, newest first.
//     ?unread=true limits the list to unread ones.
package http
