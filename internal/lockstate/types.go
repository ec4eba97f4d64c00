package lockstate

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors. ErrIntegrityViolation and ErrUnauthorizedStateChange are
// always fatal to the write that raised them.
var (
	ErrNotFound                = errors.New("lock not found")
	ErrInvalidRecord           = errors.New("invalid lock record")
	ErrIntegrityViolation      = errors.New("lock state integrity violation")
	ErrUnauthorizedStateChange = errors.New("unauthorized change to lock state")
)

// Record is the authoritative state of one door lock.
//
// The fingerprint column is deliberately absent: it is read and written
// only inside this package and never leaves it.
type Record struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Location     string    `json:"location"`
	Locked       bool      `json:"locked"`
	BatteryLevel int       `json:"battery_level"`
	LastUpdate   time.Time `json:"last_update"`
	WifiStrength int       `json:"wifi_strength"`
	CameraActive bool      `json:"camera_active"`
}

// Validate checks field ranges.
func (r *Record) Validate() error {
	switch {
	case r.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidRecord)
	case r.BatteryLevel < 0 || r.BatteryLevel > 100:
		return fmt.Errorf("%w: battery_level %d outside 0..100", ErrInvalidRecord, r.BatteryLevel)
	case r.WifiStrength < -127 || r.WifiStrength > 0:
		return fmt.Errorf("%w: wifi_strength %d dBm outside -127..0", ErrInvalidRecord, r.WifiStrength)
	}
	return nil
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Name         *string `json:"name,omitempty"`
	Location     *string `json:"location,omitempty"`
	Locked       *bool   `json:"locked,omitempty"`
	BatteryLevel *int    `json:"battery_level,omitempty"`
	WifiStrength *int    `json:"wifi_strength,omitempty"`
	CameraActive *bool   `json:"camera_active,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p == Patch{}
}

func (p Patch) applyTo(r *Record) {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Location != nil {
		r.Location = *p.Location
	}
	if p.Locked != nil {
		r.Locked = *p.Locked
	}
	if p.BatteryLevel != nil {
		r.BatteryLevel = *p.BatteryLevel
	}
	if p.WifiStrength != nil {
		r.WifiStrength = *p.WifiStrength
	}
	if p.CameraActive != nil {
		r.CameraActive = *p.CameraActive
	}
}

// TrustedWriteContext is the capability required to change Record.Locked.
//
// The zero value is inert. An asserted value can only be constructed inside
// this package and is held solely by Controller, so request handlers cannot
// obtain one.
type TrustedWriteContext struct {
	asserted bool
}

// Asserted reports whether tc grants lock-state changes.
func (tc TrustedWriteContext) Asserted() bool { return tc.asserted }

// Violation describes a rejected write.
type Violation struct {
	Kind      string    `json:"kind"`
	LockID    string    `json:"lock_id"`
	Operation string    `json:"operation"`
	Actor     string    `json:"actor,omitempty"`
	At        time.Time `json:"at"`
}

// Violation kinds, also used as API error codes.
const (
	KindIntegrityViolation      = "INTEGRITY_VIOLATION"
	KindUnauthorizedStateChange = "UNAUTHORIZED_STATE_CHANGE"
)

// Notifier is told about committed changes and rejected writes. Calls are
// made after the transaction has finished and must not block for long.
type Notifier interface {
	LockChanged(ctx context.Context, rec Record)
	SecurityViolation(ctx context.Context, v Violation)
}

// Notifiers fans out to several notifiers in order.
type Notifiers []Notifier

func (ns Notifiers) LockChanged(ctx context.Context, rec Record) {
	for _, n := range ns {
		n.LockChanged(ctx, rec)
	}
}

func (ns Notifiers) SecurityViolation(ctx context.Context, v Violation) {
	for _, n := range ns {
		n.SecurityViolation(ctx, v)
	}
}

type actorKey struct{}

// WithActor tags ctx with the user performing the operation, for audit.
func WithActor(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, actorKey{}, userID)
}

// ActorFrom returns the user set by WithActor, or "".
func ActorFrom(ctx context.Context) string {
	s, _ := ctx.Value(actorKey{}).(string) //nolint:errcheck // type assertion
	return s
}
