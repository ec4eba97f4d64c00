package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
)

// tokenTypeBearer is the OAuth-style token_type returned with every pair.
const tokenTypeBearer = "Bearer"

// Users is the account lookup the service needs for login.
type Users interface {
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
}

// RefreshStore records the hash of each user's current refresh token.
// An empty hash means no valid refresh token.
type RefreshStore interface {
	SetRefreshHash(ctx context.Context, userID, hash string) error
	RefreshHash(ctx context.Context, userID string) (string, error)
}

// Service issues, verifies and rotates credentials.
type Service struct {
	codec   *Codec
	users   Users
	refresh RefreshStore
}

// NewService creates a token service. users may be nil when Login is not
// needed. refresh may be nil, in which case refresh tokens are valid until
// they expire and Revoke is a no-op.
func NewService(codec *Codec, users Users, refresh RefreshStore) *Service {
	return &Service{codec: codec, users: users, refresh: refresh}
}

// HashToken returns the SHA-256 hex digest stored in place of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Issue mints a new access/refresh pair for s. When revocation is enabled
// the new refresh token replaces any previous one for the subject.
func (s *Service) Issue(ctx context.Context, subject Subject) (TokenPair, error) {
	access, _, err := s.codec.EncodeAccess(subject)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, _, err := s.codec.EncodeRefresh(subject)
	if err != nil {
		return TokenPair{}, err
	}

	if s.refresh != nil {
		if err := s.refresh.SetRefreshHash(ctx, subject.ID, HashToken(refresh)); err != nil {
			return TokenPair{}, fmt.Errorf("recording refresh token: %w", err)
		}
	}

	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    tokenTypeBearer,
		ExpiresIn:    int(s.codec.AccessTTL().Seconds()),
	}, nil
}

// VerifyAccess checks an access token. It touches no storage.
func (s *Service) VerifyAccess(token string) (*Claims, error) {
	claims, err := s.codec.Decode(token)
	if err != nil {
		return nil, err
	}
	if claims.Type != TokenTypeAccess {
		return nil, fmt.Errorf("%w: expected access token, got %s", ErrTokenWrongType, claims.Type)
	}
	return claims, nil
}

// Rotate exchanges a valid refresh token for a new access token. The refresh
// token itself is not replaced.
func (s *Service) Rotate(ctx context.Context, refreshToken string) (AccessToken, error) {
	claims, err := s.codec.Decode(refreshToken)
	if err != nil {
		return AccessToken{}, err
	}
	if claims.Type != TokenTypeRefresh {
		return AccessToken{}, fmt.Errorf("%w: expected refresh token, got %s", ErrTokenWrongType, claims.Type)
	}

	if s.refresh != nil {
		stored, err := s.refresh.RefreshHash(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrUserNotFound) {
				return AccessToken{}, ErrTokenRevoked
			}
			return AccessToken{}, fmt.Errorf("loading refresh token: %w", err)
		}
		if stored == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(HashToken(refreshToken))) != 1 {
			return AccessToken{}, ErrTokenRevoked
		}
	}

	// A deactivated or deleted account cannot renew, and a role change
	// takes effect on the next access token.
	subject := claims.Principal()
	if s.users != nil {
		user, err := s.users.GetByID(ctx, subject.ID)
		switch {
		case errors.Is(err, ErrUserNotFound):
			return AccessToken{}, ErrTokenRevoked
		case err != nil:
			return AccessToken{}, fmt.Errorf("loading user: %w", err)
		case !user.IsActive:
			return AccessToken{}, fmt.Errorf("%w: %w", ErrTokenRevoked, ErrUserInactive)
		}
		subject = user.Subject()
	}

	token, exp, err := s.codec.EncodeAccess(subject)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{Token: token, ExpiresAt: exp}, nil
}

// Login checks email and password and issues a pair. Unknown email, wrong
// password and inactive accounts all return ErrInvalidCredentials so the
// response does not reveal which accounts exist.
func (s *Service) Login(ctx context.Context, email, password string) (TokenPair, *User, error) {
	if s.users == nil {
		return TokenPair{}, nil, errors.New("login not configured")
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn comparable time so timing does not leak account existence.
			_, _ = VerifyPassword(password, dummyHash()) //nolint:errcheck // result unused
			return TokenPair{}, nil, ErrInvalidCredentials
		}
		return TokenPair{}, nil, fmt.Errorf("looking up user: %w", err)
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok || !user.IsActive {
		return TokenPair{}, nil, ErrInvalidCredentials
	}

	pair, err := s.Issue(ctx, user.Subject())
	if err != nil {
		return TokenPair{}, nil, err
	}
	return pair, user, nil
}

// Revoke invalidates the subject's refresh token. Outstanding access tokens
// stay valid until they expire.
func (s *Service) Revoke(ctx context.Context, subjectID string) error {
	if s.refresh == nil {
		return nil
	}
	if err := s.refresh.SetRefreshHash(ctx, subjectID, ""); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}
