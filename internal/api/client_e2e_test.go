package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/auth"
	"github.com/nerrad567/gray-logic-access/internal/client"
)

// countingRotator wraps the real HTTP rotator to count server round trips.
type countingRotator struct {
	inner client.Rotator
	calls atomic.Int32
}

func (r *countingRotator) Rotate(ctx context.Context, refresh string) (string, error) {
	r.calls.Add(1)
	return r.inner.Rotate(ctx, refresh)
}

// expiredSession returns a session whose access token is already expired
// and whose refresh token is the member's live one.
func expiredSession(t *testing.T, env *testEnv, refresh string) client.Session {
	t.Helper()
	expired, _, err := env.codec.WithClock(func() time.Time {
		return time.Now().Add(-time.Hour)
	}).EncodeAccess(auth.Subject{ID: env.memberID, Email: memberEmail, Role: auth.RoleUser})
	if err != nil {
		t.Fatalf("EncodeAccess: %v", err)
	}
	return client.Session{AccessToken: expired, RefreshToken: refresh}
}

func TestCoordinator_AgainstServer(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	pair := env.login(t, memberEmail)
	sess := expiredSession(t, env, pair.RefreshToken)
	store := client.NewMemorySessionStore(sess)
	rot := &countingRotator{inner: client.NewHTTPRotator(ts.URL)}

	coord, err := client.NewCoordinator(client.Options{Store: store, Rotator: rot})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	hc := coord.Client()

	const callers = 10
	var wg sync.WaitGroup
	statuses := make([]int, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/api/v1/locks", nil)
			resp, err := hc.Do(req)
			if err != nil {
				t.Errorf("request %d: %v", i, err)
				return
			}
			resp.Body.Close()
			statuses[i] = resp.StatusCode
		}()
	}
	wg.Wait()

	for i, s := range statuses {
		if s != http.StatusOK {
			t.Errorf("caller %d status = %d, want 200", i, s)
		}
	}
	if n := rot.calls.Load(); n != 1 {
		t.Errorf("rotations = %d, want 1", n)
	}

	got, _ := store.Get(context.Background())
	if got.AccessToken == sess.AccessToken || got.RefreshToken != pair.RefreshToken {
		t.Errorf("session after refresh = %+v, want new access token and same refresh token", got)
	}
}

func TestCoordinator_RevokedSessionIsCleared(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.router)
	defer ts.Close()

	pair := env.login(t, memberEmail)
	if w := env.do(t, http.MethodPost, "/api/v1/auth/logout", pair.AccessToken, nil); w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", w.Code)
	}

	store := client.NewMemorySessionStore(expiredSession(t, env, pair.RefreshToken))
	var cause error
	coord, err := client.NewCoordinator(client.Options{
		Store:            store,
		Rotator:          client.NewHTTPRotator(ts.URL),
		OnSessionCleared: func(err error) { cause = err },
	})
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}

	req, _ := http.NewRequestWithContext(context.Background(), http.MethodGet, ts.URL+"/api/v1/locks", nil)
	resp, err := coord.Client().Do(req)
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", resp.StatusCode)
	}
	if !errors.Is(cause, auth.ErrTokenRevoked) || !errors.Is(cause, client.ErrRefreshExhausted) {
		t.Errorf("cause = %v, want revoked and exhausted", cause)
	}
	if got, _ := store.Get(context.Background()); !got.IsZero() {
		t.Errorf("session = %+v, want cleared", got)
	}
}
