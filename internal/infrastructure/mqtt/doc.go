// Package mqtt connects the access core to the broker that links it to
// the door lock devices.
//
// Topic layout:
//
//	graylogic/command/lock/{id}       core -> device, lock/unlock commands
//	graylogic/state/lock/{id}         device -> core, telemetry only
//	graylogic/core/lock/{id}/state    retained authoritative lock state
//	graylogic/core/security/alert     integrity and authorization violations
//	graylogic/system/status           retained online/offline status and LWT
//
// Subscriptions are tracked and restored after every reconnect. Handlers
// run on paho goroutines and are wrapped with panic recovery.
package mqtt
