package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/nerrad567/gray-logic-access/internal/auth"
)

// RefreshAttemptHeader marks a request replayed after a refresh. A marked
// request that fails with 401 is returned as is.
const RefreshAttemptHeader = "X-Refresh-Attempt"

// ErrRefreshExhausted means the session could not be renewed. The session
// has been cleared and the user must log in again.
var ErrRefreshExhausted = errors.New("client: refresh exhausted")

// DefaultRefreshTimeout bounds a rotation when Options.RefreshTimeout is zero.
const DefaultRefreshTimeout = 30 * time.Second

// Logger is optional logging for session events.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

// Options configures a Coordinator.
type Options struct {
	// Base performs the actual requests. Defaults to http.DefaultTransport.
	Base    http.RoundTripper
	Store   SessionStore
	Rotator Rotator

	// RefreshTimeout bounds one rotation. Defaults to DefaultRefreshTimeout.
	// A rotation that times out ends the session.
	RefreshTimeout time.Duration

	// OnSessionCleared runs once each time a failed refresh clears the
	// session, typically to send the user to the login screen.
	OnSessionCleared func(cause error)

	Logger Logger
}

// Coordinator is an http.RoundTripper that attaches the session's access
// token and renews it when the server answers 401.
//
// Concurrent 401s share one rotation. A request whose failing token has
// already been replaced skips rotation and retries with the current token.
// Each request is replayed at most once.
//
// Only a rejected refresh token, a missing one or a rotation timeout clear
// the session. Any other rotation failure, such as a rate-limited refresh
// (*ratelimit.Error) or a server outage, keeps the session and is returned
// from RoundTrip as an error.
type Coordinator struct {
	base      http.RoundTripper
	store     SessionStore
	rotator   Rotator
	timeout   time.Duration
	onCleared func(error)
	logger    Logger

	group singleflight.Group
}

// NewCoordinator creates a Coordinator. Store and Rotator are required.
func NewCoordinator(opts Options) (*Coordinator, error) {
	if opts.Store == nil {
		return nil, errors.New("client: session store is required")
	}
	if opts.Rotator == nil {
		return nil, errors.New("client: rotator is required")
	}
	if opts.Base == nil {
		opts.Base = http.DefaultTransport
	}
	if opts.RefreshTimeout <= 0 {
		opts.RefreshTimeout = DefaultRefreshTimeout
	}
	return &Coordinator{
		base:      opts.Base,
		store:     opts.Store,
		rotator:   opts.Rotator,
		timeout:   opts.RefreshTimeout,
		onCleared: opts.OnSessionCleared,
		logger:    opts.Logger,
	}, nil
}

// Client returns an *http.Client using c as its transport.
func (c *Coordinator) Client() *http.Client {
	return &http.Client{Transport: c}
}

// RoundTrip implements http.RoundTripper.
func (c *Coordinator) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	getBody, err := replayableBody(req)
	if err != nil {
		return nil, err
	}

	sess, err := c.store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}

	first, err := c.send(req, getBody, sess.AccessToken, false)
	if err != nil {
		return nil, err
	}
	if first.StatusCode != http.StatusUnauthorized || req.Header.Get(RefreshAttemptHeader) == "true" {
		return first, nil
	}

	access, err := c.refresh(ctx, sess.AccessToken)
	if errors.Is(err, ErrRefreshExhausted) {
		return first, nil
	}
	if err != nil {
		drain(first)
		return nil, fmt.Errorf("client: refreshing session: %w", err)
	}

	drain(first)
	return c.send(req, getBody, access, true)
}

// send clones req with the given bearer token and body.
func (c *Coordinator) send(req *http.Request, getBody func() (io.ReadCloser, error), token string, retry bool) (*http.Response, error) {
	out := req.Clone(req.Context())
	if getBody != nil {
		body, err := getBody()
		if err != nil {
			return nil, fmt.Errorf("rewinding request body: %w", err)
		}
		out.Body = body
		out.GetBody = getBody
	}
	if token != "" {
		out.Header.Set("Authorization", "Bearer "+token)
	}
	if retry {
		out.Header.Set(RefreshAttemptHeader, "true")
	}
	return c.base.RoundTrip(out)
}

// refresh returns a usable access token, rotating at most once for all
// concurrent callers. The rotation is detached from the caller that started
// it, so one cancelled request does not fail the others waiting on it.
func (c *Coordinator) refresh(ctx context.Context, failedToken string) (string, error) {
	ch := c.group.DoChan("refresh", func() (any, error) {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.timeout)
		defer cancel()
		return c.rotate(rctx, failedToken)
	})
	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil //nolint:forcetypeassert // rotate only returns strings
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (c *Coordinator) rotate(ctx context.Context, failedToken string) (string, error) {
	sess, err := c.store.Get(ctx)
	if err != nil {
		return "", fmt.Errorf("loading session: %w", err)
	}
	if sess.IsZero() {
		// Already cleared by an earlier failure.
		return "", ErrRefreshExhausted
	}
	if sess.AccessToken != "" && sess.AccessToken != failedToken {
		return sess.AccessToken, nil
	}
	if sess.RefreshToken == "" {
		c.clear(ctx, ErrRefreshExhausted)
		return "", ErrRefreshExhausted
	}

	access, err := c.rotator.Rotate(ctx, sess.RefreshToken)
	if err != nil {
		if !endsSession(err) && ctx.Err() == nil {
			if c.logger != nil {
				c.logger.Warn("access token refresh failed, session kept", "error", err)
			}
			return "", err
		}
		err = fmt.Errorf("%w: %w", ErrRefreshExhausted, err)
		c.clear(ctx, err)
		return "", err
	}

	sess.AccessToken = access
	if err := c.store.Set(ctx, sess); err != nil {
		return "", fmt.Errorf("saving session: %w", err)
	}
	if c.logger != nil {
		c.logger.Info("access token refreshed")
	}
	return access, nil
}

// endsSession reports whether a rotation error means the refresh token is
// unusable.
func endsSession(err error) bool {
	return errors.Is(err, auth.ErrTokenExpired) ||
		errors.Is(err, auth.ErrTokenMalformed) ||
		errors.Is(err, auth.ErrTokenWrongType) ||
		errors.Is(err, auth.ErrTokenRevoked) ||
		errors.Is(err, context.DeadlineExceeded)
}

func (c *Coordinator) clear(ctx context.Context, cause error) {
	if err := c.store.Clear(context.WithoutCancel(ctx)); err != nil && c.logger != nil {
		c.logger.Warn("failed to clear session", "error", err)
	}
	if c.logger != nil {
		c.logger.Warn("session cleared", "cause", cause)
	}
	if c.onCleared != nil {
		c.onCleared(cause)
	}
}

// replayableBody returns a function producing fresh copies of req's body,
// buffering it when the request cannot rewind itself.
func replayableBody(req *http.Request) (func() (io.ReadCloser, error), error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	if req.GetBody != nil {
		req.Body.Close() //nolint:errcheck // every send uses a fresh copy
		return req.GetBody, nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close() //nolint:errcheck // fully read
	if err != nil {
		return nil, fmt.Errorf("buffering request body: %w", err)
	}
	return func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}, nil
}

// drain lets the connection be reused.
func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody)) //nolint:errcheck // best effort
	resp.Body.Close()                                           //nolint:errcheck // best effort
}
