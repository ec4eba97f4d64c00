// Package logging provides structured logging for the access core.
//
// This package wraps Go's standard log/slog package to provide
// consistent, structured logging across the entire application.
//
// # Configuration
//
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "json"     # json, text
//	  output: "stdout"   # stdout, stderr
//
// # Security
//
// Never log tokens, password hashes, biometric templates or fingerprints.
// Tampering and unauthorised lock changes go through Logger.Security so
// they are always emitted at ERROR with security_event=true.
package logging
