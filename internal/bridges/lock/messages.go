package lock

import "time"

// CommandMessage is sent to a device on its command topic.
type CommandMessage struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	LockID    string    `json:"lock_id"`
	// Command is "lock" or "unlock".
	Command string `json:"command"`
	Source  string `json:"source"`
}

// Telemetry is what a device reports on its state topic. Every field is
// optional; absent fields are left unchanged.
type Telemetry struct {
	BatteryLevel *int  `json:"battery_level,omitempty"`
	WifiStrength *int  `json:"wifi_strength,omitempty"`
	CameraActive *bool `json:"camera_active,omitempty"`

	// Locked is accepted so devices that echo it do not fail to parse, but
	// it is never applied. Only the core decides the lock state.
	Locked *bool `json:"locked,omitempty"`
}

// AlertMessage is published on the security alert topic.
type AlertMessage struct {
	Kind      string    `json:"kind"`
	LockID    string    `json:"lock_id"`
	Operation string    `json:"operation"`
	Actor     string    `json:"actor,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
