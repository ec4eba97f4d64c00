package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

const (
	// seedPasswordBytes is the entropy of a generated owner password.
	seedPasswordBytes = 16

	defaultOwnerEmail = "owner@graylogic.local"
)

// SeedOwner creates the first owner account when the users table is empty.
// The password comes from cfg, or is generated and logged once when unset.
// Returns the password used, or "" if seeding was skipped.
func SeedOwner(ctx context.Context, users UserRepository, cfg config.BootstrapConfig, logger *slog.Logger) (string, error) {
	count, err := users.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("checking user count: %w", err)
	}
	if count > 0 {
		logger.Info("users exist, skipping owner seed")
		return "", nil
	}

	email := cfg.OwnerEmail
	if email == "" {
		email = defaultOwnerEmail
	}

	password := cfg.OwnerPassword
	generated := password == ""
	if generated {
		buf := make([]byte, seedPasswordBytes)
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("generating seed password: %w", err)
		}
		password = hex.EncodeToString(buf)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("hashing seed password: %w", err)
	}

	owner := &User{
		Email:        email,
		DisplayName:  "System Owner",
		PasswordHash: hash,
		Role:         RoleOwner,
		IsActive:     true,
	}
	if err := users.Create(ctx, owner); err != nil {
		return "", fmt.Errorf("creating seed owner: %w", err)
	}

	if generated {
		logger.Warn("seed owner account created",
			"email", email,
			"password", password,
			"action_required", "change this password immediately",
		)
	} else {
		logger.Info("seed owner account created", "email", email)
	}
	return password, nil
}
