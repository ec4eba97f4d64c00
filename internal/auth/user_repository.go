package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/biometric"
)

// UserRepository defines user account persistence.
type UserRepository interface {
	Users
	RefreshStore
	Create(ctx context.Context, user *User) error
	List(ctx context.Context) ([]User, error)
	Update(ctx context.Context, user *User) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	SetBiometricTemplate(ctx context.Context, id string, template []byte) error
	Delete(ctx context.Context, id string) error
	Count(ctx context.Context) (int, error)
}

// Sealer encrypts biometric templates before storage.
type Sealer interface {
	Seal(plaintext []byte) ([]byte, error)
	Open(sealed []byte) ([]byte, error)
}

// SQLiteUserRepository implements UserRepository using SQLite.
//
// biometric_template is only ever written as sealed bytes. If the sealer
// cannot produce them (no key configured) the whole write is refused.
type SQLiteUserRepository struct {
	db     *sql.DB
	sealer Sealer
}

// NewUserRepository creates a SQLite-backed user repository. A nil sealer
// refuses every template write with biometric.ErrEncryptionKeyUnavailable.
func NewUserRepository(db *sql.DB, sealer Sealer) *SQLiteUserRepository {
	if sealer == nil {
		sealer = biometric.NewGuard(nil)
	}
	return &SQLiteUserRepository{db: db, sealer: sealer}
}

const userColumns = "id, email, display_name, password_hash, role, is_active, biometric_template IS NOT NULL, created_at, updated_at"

// sealTemplate returns nil for an empty template, otherwise sealed bytes.
func (r *SQLiteUserRepository) sealTemplate(template []byte) ([]byte, error) {
	if template == nil {
		return nil, nil
	}
	sealed, err := r.sealer.Seal(template)
	if err != nil {
		return nil, fmt.Errorf("sealing biometric template: %w", err)
	}
	return sealed, nil
}

// Create inserts a new user account. The ID is generated if empty.
func (r *SQLiteUserRepository) Create(ctx context.Context, user *User) error {
	sealed, err := r.sealTemplate(user.BiometricTemplate)
	if err != nil {
		return err
	}

	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC().Truncate(time.Second)
	user.CreatedAt, user.UpdatedAt = now, now

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO users (id, email, display_name, password_hash, role, is_active, biometric_template, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.DisplayName, user.PasswordHash, string(user.Role),
		boolToInt(user.IsActive), sealed, now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("creating user: %w", err)
	}

	user.HasBiometric = sealed != nil
	user.BiometricTemplate = nil
	return nil
}

// GetByID retrieves a user by ID.
func (r *SQLiteUserRepository) GetByID(ctx context.Context, id string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE id = ?", id))
}

// GetByEmail retrieves a user by email address (case-insensitive).
func (r *SQLiteUserRepository) GetByEmail(ctx context.Context, email string) (*User, error) {
	return scanUser(r.db.QueryRowContext(ctx, "SELECT "+userColumns+" FROM users WHERE email = ? COLLATE NOCASE", email))
}

// List returns all users ordered by creation date.
func (r *SQLiteUserRepository) List(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+userColumns+" FROM users ORDER BY created_at ASC, id ASC")
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	users := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating users: %w", err)
	}
	return users, nil
}

// Update modifies display_name, email, role and is_active. A non-nil
// BiometricTemplate is sealed and replaced in the same statement.
func (r *SQLiteUserRepository) Update(ctx context.Context, user *User) error {
	sealed, err := r.sealTemplate(user.BiometricTemplate)
	if err != nil {
		return err
	}

	now := time.Now().UTC().Truncate(time.Second)
	result, err := r.db.ExecContext(ctx,
		`UPDATE users SET display_name = ?, email = ?, role = ?, is_active = ?,
		        biometric_template = COALESCE(?, biometric_template), updated_at = ?
		 WHERE id = ?`,
		user.DisplayName, user.Email, string(user.Role), boolToInt(user.IsActive),
		sealed, now.Format(time.RFC3339), user.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrEmailExists
		}
		return fmt.Errorf("updating user: %w", err)
	}
	if err := requireRow(result); err != nil {
		return err
	}

	user.UpdatedAt = now
	if sealed != nil {
		user.HasBiometric = true
	}
	user.BiometricTemplate = nil
	return nil
}

// UpdatePassword changes a user's password hash.
func (r *SQLiteUserRepository) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return r.exec(ctx, "updating password",
		`UPDATE users SET password_hash = ?, updated_at = ? WHERE id = ?`,
		passwordHash, time.Now().UTC().Format(time.RFC3339), id)
}

// SetBiometricTemplate seals and stores template. A nil template clears it.
func (r *SQLiteUserRepository) SetBiometricTemplate(ctx context.Context, id string, template []byte) error {
	sealed, err := r.sealTemplate(template)
	if err != nil {
		return err
	}
	return r.exec(ctx, "storing biometric template",
		`UPDATE users SET biometric_template = ?, updated_at = ? WHERE id = ?`,
		sealed, time.Now().UTC().Format(time.RFC3339), id)
}

// BiometricTemplate returns the opened template, or nil if none is stored.
func (r *SQLiteUserRepository) BiometricTemplate(ctx context.Context, id string) ([]byte, error) {
	var sealed []byte
	err := r.db.QueryRowContext(ctx, "SELECT biometric_template FROM users WHERE id = ?", id).Scan(&sealed)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("loading biometric template: %w", err)
	}
	if sealed == nil {
		return nil, nil
	}
	return r.sealer.Open(sealed)
}

// SetRefreshHash records the hash of the user's current refresh token.
// An empty hash clears it.
func (r *SQLiteUserRepository) SetRefreshHash(ctx context.Context, userID, hash string) error {
	return r.exec(ctx, "storing refresh token hash",
		`UPDATE users SET refresh_token_hash = ? WHERE id = ?`, nullString(hash), userID)
}

// RefreshHash returns the stored refresh token hash, or "" if none.
func (r *SQLiteUserRepository) RefreshHash(ctx context.Context, userID string) (string, error) {
	var hash sql.NullString
	err := r.db.QueryRowContext(ctx, "SELECT refresh_token_hash FROM users WHERE id = ?", userID).Scan(&hash)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrUserNotFound
		}
		return "", fmt.Errorf("loading refresh token hash: %w", err)
	}
	return hash.String, nil
}

// Delete removes a user account by ID.
func (r *SQLiteUserRepository) Delete(ctx context.Context, id string) error {
	return r.exec(ctx, "deleting user", "DELETE FROM users WHERE id = ?", id)
}

// Count returns the total number of user accounts.
func (r *SQLiteUserRepository) Count(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// exec runs a single-row statement, mapping zero affected rows to ErrUserNotFound.
func (r *SQLiteUserRepository) exec(ctx context.Context, op, query string, args ...any) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return requireRow(result)
}

func requireRow(result sql.Result) error {
	n, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if n == 0 {
		return ErrUserNotFound
	}
	return nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanUser(s scanner) (*User, error) {
	var u User
	var role, createdAt, updatedAt string
	var isActive, hasBiometric int

	err := s.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &role,
		&isActive, &hasBiometric, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.Role = Role(role)
	u.IsActive = isActive != 0
	u.HasBiometric = hasBiometric != 0
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled
	return &u, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation reports whether err is a SQLite UNIQUE constraint failure.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
