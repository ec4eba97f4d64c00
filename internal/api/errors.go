package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/biometric"
	"github.com/nerrad567/gray-logic-access/internal/lockstate"
	"github.com/nerrad567/gray-logic-access/internal/ratelimit"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes. Clients branch on these, so they are stable.
const (
	ErrCodeBadRequest              = "BAD_REQUEST"
	ErrCodeNotFound                = "NOT_FOUND"
	ErrCodeUnauthorized            = "UNAUTHORIZED"
	ErrCodeForbidden               = "FORBIDDEN"
	ErrCodeConflict                = "CONFLICT"
	ErrCodeInternal                = "INTERNAL_ERROR"
	ErrCodeTokenExpired            = "TOKEN_EXPIRED"
	ErrCodeTokenMalformed          = "TOKEN_MALFORMED"
	ErrCodeTokenWrongType          = "TOKEN_WRONG_TYPE"
	ErrCodeTokenRevoked            = "TOKEN_REVOKED"
	ErrCodeInvalidCredentials      = "INVALID_CREDENTIALS"
	ErrCodeRateLimitExceeded       = "RATE_LIMIT_EXCEEDED"
	ErrCodeIntegrityViolation      = lockstate.KindIntegrityViolation
	ErrCodeUnauthorizedStateChange = lockstate.KindUnauthorizedStateChange
	ErrCodeEncryptionUnavailable   = "ENCRYPTION_KEY_UNAVAILABLE"
)

// rateLimitMessage is the fixed body text of every 429.
const rateLimitMessage = "Too many requests, please try again later."

// rateLimitBody is the 429 payload. Its shape differs from Error because
// existing clients read retryAfter from it.
type rateLimitBody struct {
	Error      string `json:"error"`
	Code       string `json:"code"`
	RetryAfter int    `json:"retryAfter"`
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeForbidden(w http.ResponseWriter, message string) {
	writeError(w, http.StatusForbidden, ErrCodeForbidden, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeRateLimited writes the 429 response and its Retry-After header.
func writeRateLimited(w http.ResponseWriter, retryAfter int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
	writeJSON(w, http.StatusTooManyRequests, rateLimitBody{
		Error:      rateLimitMessage,
		Code:       ErrCodeRateLimitExceeded,
		RetryAfter: retryAfter,
	})
}

// writeDomainError maps an error from the domain packages to a response.
// Anything unrecognised is a 500 with a generic message; the detail goes
// to the log, not the client.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *ratelimit.Error
	switch {
	case errors.As(err, &rl):
		writeRateLimited(w, rl.RetryAfter)
	case errors.Is(err, auth.ErrTokenExpired):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenExpired, "token has expired")
	case errors.Is(err, auth.ErrTokenMalformed):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenMalformed, "token is malformed")
	case errors.Is(err, auth.ErrTokenWrongType):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenWrongType, "wrong token type")
	case errors.Is(err, auth.ErrTokenRevoked):
		writeError(w, http.StatusUnauthorized, ErrCodeTokenRevoked, "token has been revoked")
	case errors.Is(err, auth.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, ErrCodeInvalidCredentials, "invalid email or password")
	case errors.Is(err, auth.ErrUserNotFound), errors.Is(err, lockstate.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, auth.ErrEmailExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, lockstate.ErrInvalidRecord), errors.Is(err, biometric.ErrInvalidTemplate):
		writeBadRequest(w, err.Error())
	case errors.Is(err, lockstate.ErrIntegrityViolation):
		writeError(w, http.StatusConflict, ErrCodeIntegrityViolation,
			"lock record failed its integrity check; writes are blocked until an operator intervenes")
	case errors.Is(err, lockstate.ErrUnauthorizedStateChange):
		writeError(w, http.StatusForbidden, ErrCodeUnauthorizedStateChange,
			"locked can only be changed through the lock and unlock endpoints")
	case errors.Is(err, biometric.ErrEncryptionKeyUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeEncryptionUnavailable,
			"biometric encryption is not configured")
	default:
		s.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
		writeInternalError(w, "internal server error")
	}
}
