package lockstate

import (
	"context"
	"fmt"

	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
)

// Commander dispatches a lock or unlock command to the physical device.
type Commander interface {
	SendLockCommand(ctx context.Context, lockID string, locked bool) error
}

// Controller is the server's own lock-control path and the sole holder of
// an asserted TrustedWriteContext.
type Controller struct {
	store   *Store
	cmd     Commander
	audit   audit.Repository
	logger  *logging.Logger
	trusted TrustedWriteContext
}

// NewController creates a Controller. cmd may be nil when no device
// transport is configured, in which case only the record is updated.
func NewController(store *Store, cmd Commander, auditRepo audit.Repository, logger *logging.Logger) *Controller {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Controller{
		store:   store,
		cmd:     cmd,
		audit:   auditRepo,
		logger:  logger,
		trusted: TrustedWriteContext{asserted: true},
	}
}

// SetLocked locks or unlocks a door.
//
// The write runs through the same guarded path as every other update: a
// tampered row is refused before any command is sent. The device command
// is dispatched inside the transaction, so a failed dispatch leaves the
// stored state unchanged.
func (c *Controller) SetLocked(ctx context.Context, id string, locked bool) (*Record, error) {
	patch := Patch{Locked: &locked}

	rec, err := c.store.apply(ctx, id, patch, c.trusted, func(ctx context.Context, next Record) error {
		if c.cmd == nil {
			return nil
		}
		if err := c.cmd.SendLockCommand(ctx, next.ID, locked); err != nil {
			return fmt.Errorf("dispatching lock command: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := audit.ActionUnlock
	if locked {
		action = audit.ActionLock
	}
	c.logger.Info("lock state changed", "lock_id", id, "locked", locked, "actor", ActorFrom(ctx))

	if c.audit != nil {
		entry := &audit.Entry{
			Action:     action,
			EntityType: "lock",
			EntityID:   id,
			UserID:     ActorFrom(ctx),
			Source:     auditSource,
		}
		if err := c.audit.Create(context.WithoutCancel(ctx), entry); err != nil {
			c.logger.Error("failed to audit lock command", "lock_id", id, "error", err)
		}
	}
	return rec, nil
}
