// Package auth issues and verifies credentials for the access core.
//
// Two HS256 token types share one Codec and are told apart by the "typ"
// claim:
//   - access tokens are short-lived and verified without touching storage
//   - refresh tokens are long-lived and can only mint new access tokens
//
// Verification failures are split so clients know what to do next:
// ErrTokenExpired means refresh and retry, ErrTokenMalformed means give up.
// A signature is always checked before expiry, so a forged token is never
// reported as expired.
//
// When a RefreshStore is configured the SHA-256 of each user's current
// refresh token is kept on the user row. Logging in again or logging out
// replaces it, which revokes the old refresh token before it expires.
//
// Passwords are hashed with Argon2id. Biometric templates on the user row
// are sealed by a biometric.Guard before every write.
package auth
