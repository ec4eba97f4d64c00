package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/ratelimit"
)

// RefreshPath is the server's rotation endpoint.
const RefreshPath = "/api/v1/auth/refresh"

// maxErrorBody caps how much of an error response is read.
const maxErrorBody = 4 << 10

// Rotator exchanges a refresh token for a new access token.
type Rotator interface {
	Rotate(ctx context.Context, refreshToken string) (string, error)
}

// HTTPRotator calls the server's refresh endpoint.
//
// Its HTTP client must not be one wrapped by a Coordinator, or a failing
// refresh would itself trigger a refresh.
type HTTPRotator struct {
	BaseURL string
	HTTP    *http.Client
}

// NewHTTPRotator returns a rotator for the server at baseURL.
func NewHTTPRotator(baseURL string) *HTTPRotator {
	return &HTTPRotator{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 10 * time.Second},
	}
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

type errorResponse struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// Rotate posts refreshToken and returns the new access token. Server error
// codes map back to the auth sentinels, and RATE_LIMIT_EXCEEDED to a
// *ratelimit.Error.
func (r *HTTPRotator) Rotate(ctx context.Context, refreshToken string) (string, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return "", fmt.Errorf("encoding refresh request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+RefreshPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("building refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeRefreshError(resp)
	}

	var out refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding refresh response: %w", err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("refresh response has no access_token")
	}
	return out.AccessToken, nil
}

func decodeRefreshError(resp *http.Response) error {
	var e errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort
	_ = json.Unmarshal(data, &e)                                    //nolint:errcheck // non-JSON bodies fall through

	switch e.Code {
	case "TOKEN_EXPIRED":
		return auth.ErrTokenExpired
	case "TOKEN_MALFORMED":
		return auth.ErrTokenMalformed
	case "TOKEN_WRONG_TYPE":
		return auth.ErrTokenWrongType
	case "TOKEN_REVOKED":
		return auth.ErrTokenRevoked
	case "RATE_LIMIT_EXCEEDED":
		return &ratelimit.Error{RetryAfter: max(e.RetryAfter, 1)}
	}
	return fmt.Errorf("refresh failed with status %d: %s", resp.StatusCode, strings.TrimSpace(e.Message))
}
