// Package lock bridges door lock devices on the MQTT bus to the lock store.
//
// Outbound it publishes lock/unlock commands, retained lock state and
// security alerts. Inbound it turns device telemetry (battery, signal,
// camera) into untrusted store updates.
package lock
