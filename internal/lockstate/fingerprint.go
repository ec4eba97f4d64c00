package lockstate

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"strconv"
	"time"
)

// minKeyLen matches the config validation for security.integrity.key.
const minKeyLen = 32

// Fingerprinter computes the tamper-evident digest of a Record.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter creates a fingerprinter keyed with key.
func NewFingerprinter(key string) (*Fingerprinter, error) {
	if len(key) < minKeyLen {
		return nil, errors.New("integrity key must be at least 32 characters")
	}
	return &Fingerprinter{key: []byte(key)}, nil
}

// Compute returns hex HMAC-SHA256 over the canonical encoding of every
// field. Each field is length-prefixed so no two records share an encoding.
func (f *Fingerprinter) Compute(r Record) string {
	mac := hmac.New(sha256.New, f.key)
	var n [8]byte
	for _, field := range [...]string{
		r.ID,
		r.Name,
		r.Location,
		strconv.FormatBool(r.Locked),
		strconv.Itoa(r.BatteryLevel),
		formatTime(r.LastUpdate),
		strconv.Itoa(r.WifiStrength),
		strconv.FormatBool(r.CameraActive),
	} {
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		mac.Write(n[:])
		mac.Write([]byte(field))
	}
	return hex.EncodeToString(mac.Sum(nil))
}

// Matches reports, in constant time, whether stored is r's fingerprint.
func (f *Fingerprinter) Matches(r Record, stored string) bool {
	return hmac.Equal([]byte(f.Compute(r)), []byte(stored))
}

// formatTime is the storage and fingerprint encoding of last_update.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
