package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
	"github.com/nerrad567/gray-logic-access/internal/lockstate"
)

// MQTTClient is the part of *mqtt.Client the bridge needs.
type MQTTClient interface {
	PublishJSON(topic string, v any, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	QoS() byte
}

// Updater applies untrusted partial updates. *lockstate.Store satisfies it.
type Updater interface {
	Update(ctx context.Context, id string, patch lockstate.Patch) (*lockstate.Record, error)
}

// Logger is optional structured logging.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Bridge connects lock devices on the broker to the lock store.
//
// It sends commands for Controller, republishes committed state and
// security alerts, and feeds device telemetry into Store.Update. Telemetry
// can never change the lock state because Update carries no trusted
// capability.
type Bridge struct {
	mqtt    MQTTClient
	updater Updater
	logger  Logger
	now     func() time.Time
}

var (
	_ lockstate.Commander = (*Bridge)(nil)
	_ lockstate.Notifier  = (*Bridge)(nil)
)

// NewBridge creates a bridge. updater may be nil until SetUpdater is called;
// telemetry received before then is dropped.
func NewBridge(client MQTTClient, logger Logger) (*Bridge, error) {
	if client == nil {
		return nil, errors.New("MQTT client is required")
	}
	return &Bridge{mqtt: client, logger: logger, now: time.Now}, nil
}

// SetUpdater sets the store telemetry is written to. The store takes the
// bridge as its notifier, so the two are wired in two steps.
func (b *Bridge) SetUpdater(u Updater) {
	b.updater = u
}

// Start subscribes to telemetry from every lock.
func (b *Bridge) Start(ctx context.Context) error {
	topic := mqtt.Topics{}.AllLockTelemetry()
	err := b.mqtt.Subscribe(topic, b.mqtt.QoS(), func(topic string, payload []byte) error {
		return b.HandleTelemetry(ctx, topic, payload)
	})
	if err != nil {
		return fmt.Errorf("subscribe to lock telemetry: %w", err)
	}
	b.logInfo("subscribed to lock telemetry", "topic", topic)
	return nil
}

// SendLockCommand publishes a lock or unlock command. It is called inside
// the state transaction, so an error here rolls the state change back.
func (b *Bridge) SendLockCommand(ctx context.Context, lockID string, locked bool) error {
	cmd := CommandMessage{
		ID:        uuid.NewString(),
		Timestamp: b.now().UTC(),
		LockID:    lockID,
		Command:   "unlock",
		Source:    "api",
	}
	if locked {
		cmd.Command = "lock"
	}
	if actor := lockstate.ActorFrom(ctx); actor == "" {
		cmd.Source = "system"
	}
	return b.mqtt.PublishJSON(mqtt.Topics{}.LockCommand(lockID), cmd, false)
}

// LockChanged publishes the committed record as retained state.
func (b *Bridge) LockChanged(_ context.Context, rec lockstate.Record) {
	if err := b.mqtt.PublishJSON(mqtt.Topics{}.LockState(rec.ID), rec, true); err != nil {
		b.logError("failed to publish lock state", "lock_id", rec.ID, "error", err)
	}
}

// SecurityViolation publishes an alert.
func (b *Bridge) SecurityViolation(_ context.Context, v lockstate.Violation) {
	alert := AlertMessage{
		Kind:      v.Kind,
		LockID:    v.LockID,
		Operation: v.Operation,
		Actor:     v.Actor,
		Timestamp: v.At,
	}
	if err := b.mqtt.PublishJSON(mqtt.Topics{}.SecurityAlert(), alert, false); err != nil {
		b.logError("failed to publish security alert", "lock_id", v.LockID, "error", err)
	}
}

// HandleTelemetry applies one telemetry message.
func (b *Bridge) HandleTelemetry(ctx context.Context, topic string, payload []byte) error {
	lockID, ok := mqtt.Topics{}.LockIDFromTelemetry(topic)
	if !ok {
		return fmt.Errorf("unexpected telemetry topic %q", topic)
	}
	if b.updater == nil {
		return nil
	}

	var t Telemetry
	if err := json.Unmarshal(payload, &t); err != nil {
		return fmt.Errorf("parsing telemetry for %s: %w", lockID, err)
	}
	if t.Locked != nil {
		b.logWarn("ignoring locked flag in device telemetry", "lock_id", lockID)
	}

	patch := lockstate.Patch{
		BatteryLevel: t.BatteryLevel,
		WifiStrength: t.WifiStrength,
		CameraActive: t.CameraActive,
	}
	if patch.IsEmpty() {
		return nil
	}

	if _, err := b.updater.Update(ctx, lockID, patch); err != nil {
		return fmt.Errorf("applying telemetry for %s: %w", lockID, err)
	}
	return nil
}

func (b *Bridge) logInfo(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Info(msg, args...)
	}
}

func (b *Bridge) logWarn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}

func (b *Bridge) logError(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Error(msg, args...)
	}
}
