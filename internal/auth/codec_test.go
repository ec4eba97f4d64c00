package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestCodec_EncodeDecode(t *testing.T) {
	codec := testCodec(nil)
	subject := Subject{ID: "usr-001", Email: "alice@example.com", Role: RoleAdmin}

	tests := []struct {
		name    string
		encode  func(Subject) (string, time.Time, error)
		wantTyp TokenType
		wantTTL time.Duration
	}{
		{"access", codec.EncodeAccess, TokenTypeAccess, 15 * time.Minute},
		{"refresh", codec.EncodeRefresh, TokenTypeRefresh, 30 * 24 * time.Hour},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := time.Now()
			token, exp, err := tt.encode(subject)
			if err != nil {
				t.Fatalf("encode error = %v", err)
			}
			if got := exp.Sub(before); got < tt.wantTTL-time.Second || got > tt.wantTTL+time.Second {
				t.Errorf("expiry in %v, want about %v", got, tt.wantTTL)
			}

			claims, err := codec.Decode(token)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if claims.Principal() != subject {
				t.Errorf("Principal() = %+v, want %+v", claims.Principal(), subject)
			}
			if claims.Type != tt.wantTyp {
				t.Errorf("Type = %q, want %q", claims.Type, tt.wantTyp)
			}
			if claims.ID == "" {
				t.Error("jti should be set")
			}
		})
	}
}

func TestCodec_EncodeRequiresSubject(t *testing.T) {
	codec := testCodec(nil)
	if _, _, err := codec.EncodeAccess(Subject{Role: RoleUser}); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("missing id: error = %v, want ErrTokenMalformed", err)
	}
	if _, _, err := codec.EncodeAccess(Subject{ID: "usr-1"}); !errors.Is(err, ErrTokenMalformed) {
		t.Errorf("missing role: error = %v, want ErrTokenMalformed", err)
	}
}

func TestCodec_ExpiredIsNeverMalformed(t *testing.T) {
	clock := &fakeClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	codec := testCodec(clock)
	subject := Subject{ID: "usr-001", Role: RoleUser}

	access, _, err := codec.EncodeAccess(subject)
	if err != nil {
		t.Fatalf("EncodeAccess() error = %v", err)
	}
	refresh, _, err := codec.EncodeRefresh(subject)
	if err != nil {
		t.Fatalf("EncodeRefresh() error = %v", err)
	}

	offsets := []time.Duration{15 * time.Minute, 15*time.Minute + time.Second, time.Hour, 24 * time.Hour}
	for _, d := range offsets {
		c := codec.WithClock(func() time.Time { return clock.t.Add(d) })
		_, err := c.Decode(access)
		if !errors.Is(err, ErrTokenExpired) {
			t.Errorf("access +%v: error = %v, want ErrTokenExpired", d, err)
		}
		if errors.Is(err, ErrTokenMalformed) {
			t.Errorf("access +%v: expired token reported as malformed", d)
		}
	}

	c := codec.WithClock(func() time.Time { return clock.t.Add(31 * 24 * time.Hour) })
	if _, err := c.Decode(refresh); !errors.Is(err, ErrTokenExpired) {
		t.Errorf("refresh past expiry: error = %v, want ErrTokenExpired", err)
	}

	c = codec.WithClock(func() time.Time { return clock.t.Add(14 * time.Minute) })
	if _, err := c.Decode(access); err != nil {
		t.Errorf("access before expiry: error = %v", err)
	}
}

func TestCodec_Malformed(t *testing.T) {
	codec := testCodec(nil)
	valid, _, err := codec.EncodeAccess(Subject{ID: "usr-001", Role: RoleUser})
	if err != nil {
		t.Fatalf("EncodeAccess() error = %v", err)
	}

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key any) string {
		t.Helper()
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		if err != nil {
			t.Fatalf("signing: %v", err)
		}
		return s
	}
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	past := jwt.NewNumericDate(time.Now().Add(-time.Hour))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"truncated signature", valid[:len(valid)-4]},
		{"wrong secret", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-1", ExpiresAt: exp},
			Role:             RoleUser, Type: TokenTypeAccess,
		}, jwt.SigningMethodHS256, []byte("some-other-secret-that-is-long-enough"))},
		{"expired with wrong secret", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-1", ExpiresAt: past},
			Role:             RoleUser, Type: TokenTypeAccess,
		}, jwt.SigningMethodHS256, []byte("some-other-secret-that-is-long-enough"))},
		{"HS512", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-1", ExpiresAt: exp},
			Role:             RoleUser, Type: TokenTypeAccess,
		}, jwt.SigningMethodHS512, []byte(testSecret))},
		{"alg none", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-1", ExpiresAt: exp},
			Role:             RoleUser, Type: TokenTypeAccess,
		}, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
		{"missing exp", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-1"},
			Role:             RoleUser, Type: TokenTypeAccess,
		}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"missing subject", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: exp},
			Role:             RoleUser, Type: TokenTypeAccess,
		}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"missing role", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-1", ExpiresAt: exp},
			Type:             TokenTypeAccess,
		}, jwt.SigningMethodHS256, []byte(testSecret))},
		{"missing typ", sign(Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: "usr-1", ExpiresAt: exp},
			Role:             RoleUser,
		}, jwt.SigningMethodHS256, []byte(testSecret))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := codec.Decode(tt.token)
			if !errors.Is(err, ErrTokenMalformed) {
				t.Errorf("Decode() error = %v, want ErrTokenMalformed", err)
			}
			if errors.Is(err, ErrTokenExpired) {
				t.Error("malformed token reported as expired")
			}
		})
	}
}

func TestCodec_TokensAreDistinct(t *testing.T) {
	codec := testCodec(nil)
	subject := Subject{ID: "usr-001", Role: RoleUser}

	a, _, _ := codec.EncodeAccess(subject) //nolint:errcheck // valid subject
	b, _, _ := codec.EncodeAccess(subject) //nolint:errcheck // valid subject
	if a == b {
		t.Error("two access tokens for the same subject should differ (jti)")
	}
	if strings.Count(a, ".") != 2 {
		t.Errorf("token %q is not a compact JWS", a)
	}
}
