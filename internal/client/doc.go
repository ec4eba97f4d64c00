// Package client is the caller side of token renewal.
//
// Coordinator wraps an http.RoundTripper. It sends the stored access token
// with every request and, when the server answers 401, exchanges the
// refresh token for a new access token and replays the request once,
// marked with the X-Refresh-Attempt header. However many requests fail at
// the same moment, only one rotation is performed and every caller sees
// its outcome. The rotation runs under its own timeout, so cancelling one
// request does not cancel it.
//
// When the server rejects the refresh token, or rotation times out, the
// session is cleared and the original 401 is returned. Other failures keep
// the session and surface as the RoundTrip error; a rate-limited refresh
// can be inspected with errors.As for a *ratelimit.Error and its RetryAfter.
//
//	store := client.NewMemorySessionStore(client.Session{AccessToken: a, RefreshToken: r})
//	coord, _ := client.NewCoordinator(client.Options{
//	    Store:   store,
//	    Rotator: client.NewHTTPRotator("https://door.example"),
//	    OnSessionCleared: func(error) { showLogin() },
//	})
//	resp, err := coord.Client().Get("https://door.example/api/v1/locks")
package client
