package auth

import (
	"bytes"
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/biometric"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-access/migrations"
)

const testSecret = "test-secret-key-for-jwt-signing-0123456789"

// testDB opens a migrated temporary database. Closed when the test ends.
func testDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "auth.db"),
		WALMode:     true,
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup

	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test db: %v", err)
	}
	return db.DB
}

// testGuard returns a biometric guard with a fixed key.
func testGuard() *biometric.Guard {
	return biometric.NewGuard(biometric.StaticKey(bytes.Repeat([]byte{0x5a}, biometric.KeySize)))
}

// testRepo returns a user repository over a fresh database.
func testRepo(t *testing.T) (*SQLiteUserRepository, *sql.DB) {
	t.Helper()
	db := testDB(t)
	return NewUserRepository(db, testGuard()), db
}

// seedTestUser inserts an active user with password "test-password".
func seedTestUser(t *testing.T, repo *SQLiteUserRepository, email string, role Role) *User {
	t.Helper()

	hash, err := HashPassword("test-password")
	if err != nil {
		t.Fatalf("hashing password: %v", err)
	}
	user := &User{
		Email:        email,
		DisplayName:  email,
		PasswordHash: hash,
		Role:         role,
		IsActive:     true,
	}
	if err := repo.Create(t.Context(), user); err != nil {
		t.Fatalf("creating test user %s: %v", email, err)
	}
	return user
}

// fakeClock is a settable time source.
type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func testCodec(clock *fakeClock) *Codec {
	c := NewCodec(testSecret, 15*time.Minute, 30*24*time.Hour)
	if clock != nil {
		c = c.WithClock(clock.Now)
	}
	return c
}
