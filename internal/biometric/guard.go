// Package biometric encrypts biometric templates before they reach the
// database. Templates are sealed with AES-256-GCM as
//
//	version(1) || nonce(12) || ciphertext+tag
//
// so the stored bytes never equal the plaintext, and a write with no key
// available fails instead of falling back to plaintext.
package biometric

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// sealVersion prefixes every sealed template so the format can evolve.
const sealVersion byte = 1

// hkdfInfo binds derived keys to this use.
const hkdfInfo = "graylogic-access biometric template v1"

var (
	// ErrEncryptionKeyUnavailable is returned when no key material is configured.
	ErrEncryptionKeyUnavailable = errors.New("biometric encryption key unavailable")

	// ErrInvalidTemplate is returned when sealed bytes cannot be opened.
	ErrInvalidTemplate = errors.New("invalid sealed biometric template")
)

// KeySource yields the current encryption key.
type KeySource interface {
	Key() ([]byte, error)
}

// StaticKey is a fixed key.
type StaticKey []byte

// Key returns the key, or ErrEncryptionKeyUnavailable if it has the wrong size.
func (k StaticKey) Key() ([]byte, error) {
	if len(k) != KeySize {
		return nil, ErrEncryptionKeyUnavailable
	}
	return k, nil
}

// PassphraseKey expands passphrase into a key with HKDF-SHA256. The
// derivation happens once.
func PassphraseKey(passphrase string) (KeySource, error) {
	if passphrase == "" {
		return nil, ErrEncryptionKeyUnavailable
	}
	key := make([]byte, KeySize)
	r := hkdf.New(sha256.New, []byte(passphrase), nil, []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("deriving biometric key: %w", err)
	}
	return StaticKey(key), nil
}

// unavailable is the key source used when nothing is configured.
type unavailable struct{}

func (unavailable) Key() ([]byte, error) { return nil, ErrEncryptionKeyUnavailable }

// KeySourceFromConfig picks the configured key material. A base64 key wins
// over a passphrase. With neither, the returned source always fails so
// template writes are refused rather than stored in the clear.
func KeySourceFromConfig(cfg config.BiometricConfig) (KeySource, error) {
	switch {
	case cfg.Key != "":
		raw, err := base64.StdEncoding.DecodeString(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("decoding biometric key: %w", err)
		}
		if len(raw) != KeySize {
			return nil, fmt.Errorf("biometric key must be %d bytes, got %d", KeySize, len(raw))
		}
		return StaticKey(raw), nil
	case cfg.Passphrase != "":
		return PassphraseKey(cfg.Passphrase)
	default:
		return unavailable{}, nil
	}
}

// Guard seals and opens templates.
type Guard struct {
	keys KeySource
	rand io.Reader
}

// NewGuard creates a Guard reading keys from keys. A nil source behaves as
// if no key were configured.
func NewGuard(keys KeySource) *Guard {
	if keys == nil {
		keys = unavailable{}
	}
	return &Guard{keys: keys, rand: rand.Reader}
}

func (g *Guard) aead() (cipher.AEAD, error) {
	key, err := g.keys.Key()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	return cipher.NewGCM(block)
}

// Seal encrypts plaintext with a fresh random nonce.
func (g *Guard) Seal(plaintext []byte) ([]byte, error) {
	gcm, err := g.aead()
	if err != nil {
		return nil, err
	}

	ns := gcm.NonceSize()
	out := make([]byte, 1+ns, 1+ns+len(plaintext)+gcm.Overhead())
	out[0] = sealVersion
	nonce := out[1 : 1+ns]
	if _, err := io.ReadFull(g.rand, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return gcm.Seal(out, nonce, plaintext, []byte{sealVersion}), nil
}

// Open reverses Seal.
func (g *Guard) Open(sealed []byte) ([]byte, error) {
	gcm, err := g.aead()
	if err != nil {
		return nil, err
	}
	if len(sealed) < 1+gcm.NonceSize()+gcm.Overhead() || sealed[0] != sealVersion {
		return nil, ErrInvalidTemplate
	}
	nonce := sealed[1 : 1+gcm.NonceSize()]
	plaintext, err := gcm.Open(nil, nonce, sealed[1+gcm.NonceSize():], []byte{sealVersion})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidTemplate, err)
	}
	return plaintext, nil
}
