package mqtt

import (
	"fmt"
	"strings"
)

// Topic roots.
//
// Devices publish under graylogic/state and consume graylogic/command. The
// access core publishes its authoritative view under graylogic/core.
const (
	TopicPrefix       = "graylogic"
	TopicPrefixCore   = "graylogic/core"
	TopicPrefixSystem = "graylogic/system"
)

// Topics builds lock topics.
//
//	mqtt.Topics{}.LockCommand("lock-3f2a91c0")
//	// graylogic/command/lock/lock-3f2a91c0
type Topics struct{}

// LockCommand is where lock/unlock commands are sent to a device.
//
// Example: graylogic/command/lock/lock-3f2a91c0
func (Topics) LockCommand(lockID string) string {
	return fmt.Sprintf("%s/command/lock/%s", TopicPrefix, lockID)
}

// LockTelemetry is where a device reports battery, signal and camera state.
// It never carries the locked flag.
//
// Example: graylogic/state/lock/lock-3f2a91c0
func (Topics) LockTelemetry(lockID string) string {
	return fmt.Sprintf("%s/state/lock/%s", TopicPrefix, lockID)
}

// LockState is the retained, authoritative state published by the core.
//
// Example: graylogic/core/lock/lock-3f2a91c0/state
func (Topics) LockState(lockID string) string {
	return fmt.Sprintf("%s/lock/%s/state", TopicPrefixCore, lockID)
}

// SecurityAlert carries integrity and authorization violations.
func (Topics) SecurityAlert() string {
	return TopicPrefixCore + "/security/alert"
}

// SystemStatus carries the online/offline status of the core, including LWT.
func (Topics) SystemStatus() string {
	return TopicPrefixSystem + "/status"
}

// AllLockTelemetry matches telemetry from every lock.
//
// Pattern: graylogic/state/lock/+
func (Topics) AllLockTelemetry() string {
	return fmt.Sprintf("%s/state/lock/+", TopicPrefix)
}

// LockIDFromTelemetry extracts the lock ID from a telemetry topic.
func (Topics) LockIDFromTelemetry(topic string) (string, bool) {
	id, ok := strings.CutPrefix(topic, TopicPrefix+"/state/lock/")
	if !ok || id == "" || strings.Contains(id, "/") {
		return "", false
	}
	return id, true
}
