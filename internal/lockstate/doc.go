// Package lockstate owns the lock_states table and guards every write to it.
//
// Each row carries an HMAC fingerprint over all of its fields. Store checks
// that fingerprint inside the write transaction before any update or delete,
// so a row edited outside this package (a direct SQL session, a restored
// backup, a compromised tool) refuses all further writes until an operator
// intervenes.
//
// The locked column has a second guard. Only a write carrying an asserted
// TrustedWriteContext may change it, and only Controller holds one. HTTP
// handlers and telemetry consumers use Store.Update, which can never flip a
// lock.
//
// Rejected writes are reported through the security log, the audit trail
// and the configured Notifier.
//
// # Command dispatch
//
// Controller.SetLocked sends the device command from inside the write
// transaction, so a failed publish leaves the row unchanged. Two costs
// follow. The database runs on a single connection, so while the publish
// waits on the broker (bounded by the MQTT publish timeout) every other
// database-backed request waits too, logins included. And a commit that
// fails after a successful publish leaves the door moved but the row not;
// the next telemetry message does not correct it because telemetry never
// carries locked. Such a failure is returned to the caller and logged.
package lockstate
