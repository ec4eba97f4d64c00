package auth

import (
	"context"
	"testing"
)

// ─── Password hashing (Argon2id, deliberately slow) ─────────────────

func BenchmarkHashPassword(b *testing.B) {
	for b.Loop() {
		HashPassword("correct-horse-battery-staple") //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyPassword(b *testing.B) {
	hash, err := HashPassword("correct-horse-battery-staple")
	if err != nil {
		b.Fatalf("HashPassword: %v", err)
	}
	for b.Loop() {
		VerifyPassword("correct-horse-battery-staple", hash) //nolint:errcheck // benchmark
	}
}

// ─── Tokens (per-request hot path) ──────────────────────────────────

func BenchmarkIssue(b *testing.B) {
	svc := NewService(testCodec(nil), nil, nil)
	subject := Subject{ID: "usr-bench", Role: RoleAdmin}
	ctx := context.Background()
	for b.Loop() {
		svc.Issue(ctx, subject) //nolint:errcheck // benchmark
	}
}

func BenchmarkVerifyAccess(b *testing.B) {
	svc := NewService(testCodec(nil), nil, nil)
	pair, err := svc.Issue(context.Background(), Subject{ID: "usr-bench", Role: RoleAdmin})
	if err != nil {
		b.Fatalf("Issue: %v", err)
	}
	for b.Loop() {
		svc.VerifyAccess(pair.AccessToken) //nolint:errcheck // benchmark
	}
}
