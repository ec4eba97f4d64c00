package auth

import (
	"errors"
	"net/mail"
	"time"
)

// Role is an authorisation tier carried in every token.
type Role string

const (
	// RoleUser is a household member who operates doors.
	RoleUser Role = "user"

	// RoleAdmin manages locks and users.
	RoleAdmin Role = "admin"

	// RoleOwner can do everything admin can, and is the bootstrap account.
	RoleOwner Role = "owner"
)

// IsValidRole reports whether r is a known role.
func IsValidRole(r Role) bool {
	switch r {
	case RoleUser, RoleAdmin, RoleOwner:
		return true
	default:
		return false
	}
}

// IsValidEmail reports whether s is a bare address ("a@b.c", no display name).
func IsValidEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s
}

// Subject identifies the principal a token is issued to.
type Subject struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// User is a human account.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	HasBiometric bool      `json:"has_biometric"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`

	// BiometricTemplate is plaintext supplied on write. It is sealed before
	// it reaches the database and never populated on read.
	BiometricTemplate []byte `json:"-"`
}

// Subject returns the token subject for u.
func (u *User) Subject() Subject {
	return Subject{ID: u.ID, Email: u.Email, Role: u.Role}
}

// TokenPair is returned on login. Immutable once issued.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// AccessToken is the result of a refresh.
type AccessToken struct {
	Token     string    `json:"access_token"`
	ExpiresAt time.Time `json:"-"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrUserInactive       = errors.New("user account is inactive")
	ErrEmailExists        = errors.New("email already exists")

	// ErrTokenExpired means the token was well-formed and correctly signed
	// but is past its expiry instant. Clients should refresh.
	ErrTokenExpired = errors.New("token has expired")

	// ErrTokenMalformed covers bad signatures, wrong algorithms, garbage
	// input and missing claims. Clients should not refresh.
	ErrTokenMalformed = errors.New("token is malformed")

	// ErrTokenWrongType means an access token was used where a refresh
	// token is required, or the reverse.
	ErrTokenWrongType = errors.New("wrong token type")

	// ErrTokenRevoked means the refresh token is no longer the one on record.
	ErrTokenRevoked = errors.New("token has been revoked")
)
