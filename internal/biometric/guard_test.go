package biometric

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
)

func testKey() StaticKey {
	return StaticKey(bytes.Repeat([]byte{0x42}, KeySize))
}

func TestSealOpen_RoundTrip(t *testing.T) {
	g := NewGuard(testKey())
	template := []byte("minutiae:12,44;18,90;31,07")

	sealed, err := g.Seal(template)
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Equal(sealed, template) {
		t.Fatal("sealed bytes equal plaintext")
	}
	if bytes.Contains(sealed, template) {
		t.Fatal("sealed bytes contain plaintext")
	}
	if sealed[0] != sealVersion {
		t.Errorf("version byte = %d, want %d", sealed[0], sealVersion)
	}

	opened, err := g.Open(sealed)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if !bytes.Equal(opened, template) {
		t.Errorf("Open() = %q, want %q", opened, template)
	}
}

func TestSeal_FreshNonce(t *testing.T) {
	g := NewGuard(testKey())
	a, err := g.Seal([]byte("same"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	b, err := g.Seal([]byte("same"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two seals of the same template should differ")
	}
}

func TestSeal_KeyUnavailable(t *testing.T) {
	tests := []struct {
		name string
		keys KeySource
	}{
		{"nil source", nil},
		{"short key", StaticKey([]byte("too-short"))},
		{"unconfigured", unavailable{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewGuard(tt.keys).Seal([]byte("template"))
			if !errors.Is(err, ErrEncryptionKeyUnavailable) {
				t.Errorf("Seal() error = %v, want ErrEncryptionKeyUnavailable", err)
			}
		})
	}
}

func TestOpen_Tampered(t *testing.T) {
	g := NewGuard(testKey())
	sealed, err := g.Seal([]byte("template"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}

	sealed[len(sealed)-1] ^= 0xff
	if _, err := g.Open(sealed); !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("Open(tampered) error = %v, want ErrInvalidTemplate", err)
	}
	if _, err := g.Open([]byte{sealVersion, 1, 2}); !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("Open(short) error = %v, want ErrInvalidTemplate", err)
	}
}

func TestOpen_WrongKey(t *testing.T) {
	sealed, err := NewGuard(testKey()).Seal([]byte("template"))
	if err != nil {
		t.Fatalf("Seal() error = %v", err)
	}
	other := StaticKey(bytes.Repeat([]byte{0x07}, KeySize))
	if _, err := NewGuard(other).Open(sealed); !errors.Is(err, ErrInvalidTemplate) {
		t.Errorf("Open() with wrong key error = %v, want ErrInvalidTemplate", err)
	}
}

func TestKeySourceFromConfig(t *testing.T) {
	raw := bytes.Repeat([]byte{0x11}, KeySize)

	t.Run("base64 key", func(t *testing.T) {
		ks, err := KeySourceFromConfig(config.BiometricConfig{Key: base64.StdEncoding.EncodeToString(raw)})
		if err != nil {
			t.Fatalf("KeySourceFromConfig() error = %v", err)
		}
		key, err := ks.Key()
		if err != nil || !bytes.Equal(key, raw) {
			t.Errorf("Key() = %x, %v; want %x", key, err, raw)
		}
	})

	t.Run("key wins over passphrase", func(t *testing.T) {
		ks, err := KeySourceFromConfig(config.BiometricConfig{
			Key:        base64.StdEncoding.EncodeToString(raw),
			Passphrase: "ignored",
		})
		if err != nil {
			t.Fatalf("KeySourceFromConfig() error = %v", err)
		}
		key, _ := ks.Key() //nolint:errcheck // checked via value
		if !bytes.Equal(key, raw) {
			t.Error("base64 key should take precedence")
		}
	})

	t.Run("passphrase is deterministic", func(t *testing.T) {
		a, err := KeySourceFromConfig(config.BiometricConfig{Passphrase: "front door"})
		if err != nil {
			t.Fatalf("KeySourceFromConfig() error = %v", err)
		}
		b, _ := PassphraseKey("front door") //nolint:errcheck // non-empty passphrase
		ka, _ := a.Key()                     //nolint:errcheck // derived key is always valid
		kb, _ := b.Key()                     //nolint:errcheck // as above
		if len(ka) != KeySize || !bytes.Equal(ka, kb) {
			t.Errorf("derived keys differ or have wrong size: %x vs %x", ka, kb)
		}
	})

	t.Run("wrong key length", func(t *testing.T) {
		_, err := KeySourceFromConfig(config.BiometricConfig{Key: base64.StdEncoding.EncodeToString([]byte("short"))})
		if err == nil {
			t.Error("expected error for short key")
		}
	})

	t.Run("bad base64", func(t *testing.T) {
		if _, err := KeySourceFromConfig(config.BiometricConfig{Key: "!!!"}); err == nil {
			t.Error("expected error for invalid base64")
		}
	})

	t.Run("nothing configured", func(t *testing.T) {
		ks, err := KeySourceFromConfig(config.BiometricConfig{})
		if err != nil {
			t.Fatalf("KeySourceFromConfig() error = %v", err)
		}
		if _, err := ks.Key(); !errors.Is(err, ErrEncryptionKeyUnavailable) {
			t.Errorf("Key() error = %v, want ErrEncryptionKeyUnavailable", err)
		}
	})
}
