package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement names.
const (
	MeasurementLockState      = "lock_state"
	MeasurementSecurityEvents = "security_events"
)

// LockSample is one committed lock state.
type LockSample struct {
	LockID       string
	Location     string
	Locked       bool
	BatteryLevel int
	WifiStrength int
	CameraActive bool
	At           time.Time
}

// WriteLockState records a committed lock state. Non-blocking; dropped
// silently when disconnected.
func (c *Client) WriteLockState(s LockSample) {
	if !c.IsConnected() {
		return
	}
	tags := map[string]string{"lock_id": s.LockID}
	if s.Location != "" {
		tags["location"] = s.Location
	}
	c.writer.WritePoint(write.NewPoint(MeasurementLockState, tags,
		map[string]any{
			"locked":        s.Locked,
			"battery_level": s.BatteryLevel,
			"wifi_strength": s.WifiStrength,
			"camera_active": s.CameraActive,
		},
		s.At,
	))
}

// WriteSecurityEvent records a rejected write. kind is the violation code.
func (c *Client) WriteSecurityEvent(kind, lockID, operation string, at time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writer.WritePoint(write.NewPoint(MeasurementSecurityEvents,
		map[string]string{"kind": kind, "lock_id": lockID},
		map[string]any{"operation": operation, "count": 1},
		at,
	))
}
