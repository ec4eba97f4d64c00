// Package api implements the HTTP REST API and WebSocket server for the
// access core.
//
// This package provides:
//   - Login, refresh and logout endpoints backed by auth.Service
//   - Lock endpoints; lock and unlock go through lockstate.Controller, every
//     other write through the untrusted lockstate.Store path
//   - Biometric enrolment, sealed at rest by the user repository
//   - Fixed-window rate limiting, with a stricter limiter on credential routes
//   - A WebSocket hub broadcasting lock changes and security alerts
//
// # Errors
//
// Every error body is {status, code, message} with an upper-case code that
// clients branch on (TOKEN_EXPIRED, INTEGRITY_VIOLATION, ...). The one
// exception is 429, whose body is {error, code, retryAfter}. Domain errors
// are mapped to responses in a single place, writeDomainError.
//
// # Security
//
// Access tokens are checked by authMiddleware. WebSocket connections use
// single-use tickets so the JWT never appears in a URL. The X-Refresh-Attempt
// header sent by replaying clients is logged but otherwise ignored.
package api
