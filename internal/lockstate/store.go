package lockstate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/logging"
)

const auditSource = "lockstate"

// Deps holds the Store's collaborators. DB and Fingerprinter are required.
type Deps struct {
	DB            *sql.DB
	Fingerprinter *Fingerprinter
	Audit         audit.Repository
	Logger        *logging.Logger
	Notifier      Notifier
	Now           func() time.Time
}

// Store is the only write path to the lock_states table.
//
// Every update and delete runs in one transaction that reloads the row,
// checks its fingerprint, checks the TrustedWriteContext if locked changes,
// applies the change and stamps a new fingerprint. The SQLite connection
// pool has a single connection, so writers to the same row are serialised
// and each write sees the fingerprint left by the previous commit.
type Store struct {
	db       *sql.DB
	fp       *Fingerprinter
	audit    audit.Repository
	logger   *logging.Logger
	notifier Notifier
	now      func() time.Time
}

// NewStore creates a Store.
func NewStore(deps Deps) *Store {
	s := &Store{
		db:       deps.DB,
		fp:       deps.Fingerprinter,
		audit:    deps.Audit,
		logger:   deps.Logger,
		notifier: deps.Notifier,
		now:      deps.Now,
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	if s.notifier == nil {
		s.notifier = Notifiers(nil)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// Insert stores a new record and its baseline fingerprint. ID is generated
// when empty and LastUpdate is set to now.
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	if rec.ID == "" {
		rec.ID = "lock-" + uuid.NewString()[:8]
	}
	rec.LastUpdate = s.now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lock_states (id, name, location, locked, battery_level, last_update, wifi_strength, camera_active, fingerprint)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Location, boolToInt(rec.Locked), rec.BatteryLevel,
		formatTime(rec.LastUpdate), rec.WifiStrength, boolToInt(rec.CameraActive),
		s.fp.Compute(*rec),
	)
	if err != nil {
		return fmt.Errorf("inserting lock %s: %w", rec.ID, err)
	}

	s.notifier.LockChanged(ctx, *rec)
	return nil
}

// Get returns a record without checking its fingerprint. Use Verify for that.
func (s *Store) Get(ctx context.Context, id string) (*Record, error) {
	rec, _, err := loadRow(ctx, s.db, id)
	return rec, err
}

// List returns every record ordered by name.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+lockColumns+" FROM lock_states ORDER BY name, id")
	if err != nil {
		return nil, fmt.Errorf("listing locks: %w", err)
	}
	defer rows.Close()

	recs := []Record{}
	for rows.Next() {
		rec, _, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating locks: %w", err)
	}
	return recs, nil
}

// Verify recomputes the fingerprint of the stored row. A mismatch is
// reported like any other violation and returns ErrIntegrityViolation.
func (s *Store) Verify(ctx context.Context, id string) error {
	rec, stored, err := loadRow(ctx, s.db, id)
	if err == nil && !s.fp.Matches(*rec, stored) {
		err = fmt.Errorf("%w: lock %s fingerprint mismatch", ErrIntegrityViolation, id)
	}
	s.reportIfViolation(ctx, err, id, "verify")
	return err
}

// Update applies patch without the trusted capability. Any patch that would
// flip Locked fails with ErrUnauthorizedStateChange.
func (s *Store) Update(ctx context.Context, id string, patch Patch) (*Record, error) {
	return s.Apply(ctx, id, patch, TrustedWriteContext{})
}

// Apply is the guarded write. Only an asserted tc may change Locked.
func (s *Store) Apply(ctx context.Context, id string, patch Patch, tc TrustedWriteContext) (*Record, error) {
	return s.apply(ctx, id, patch, tc, nil)
}

// apply runs the guarded write. beforeCommit, when set, runs after all
// checks pass and the row is written but before commit; an error from it
// rolls the write back.
func (s *Store) apply(ctx context.Context, id string, patch Patch, tc TrustedWriteContext,
	beforeCommit func(context.Context, Record) error,
) (*Record, error) {
	var next Record

	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		cur, stored, err := loadRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if !s.fp.Matches(*cur, stored) {
			return fmt.Errorf("%w: lock %s fingerprint mismatch", ErrIntegrityViolation, id)
		}

		next = *cur
		patch.applyTo(&next)

		if next.Locked != cur.Locked && !tc.Asserted() {
			return fmt.Errorf("%w: lock %s", ErrUnauthorizedStateChange, id)
		}
		if err := next.Validate(); err != nil {
			return err
		}

		next.LastUpdate = s.now().UTC()
		res, err := tx.ExecContext(ctx,
			`UPDATE lock_states
			    SET name = ?, location = ?, locked = ?, battery_level = ?, last_update = ?,
			        wifi_strength = ?, camera_active = ?, fingerprint = ?
			  WHERE id = ? AND fingerprint = ?`,
			next.Name, next.Location, boolToInt(next.Locked), next.BatteryLevel,
			formatTime(next.LastUpdate), next.WifiStrength, boolToInt(next.CameraActive),
			s.fp.Compute(next), id, stored,
		)
		if err != nil {
			return fmt.Errorf("updating lock %s: %w", id, err)
		}
		if n, _ := res.RowsAffected(); n != 1 { //nolint:errcheck // always succeeds on SQLite
			return fmt.Errorf("%w: lock %s changed during write", ErrIntegrityViolation, id)
		}

		if beforeCommit != nil {
			return beforeCommit(ctx, next)
		}
		return nil
	})
	if err != nil {
		s.reportIfViolation(ctx, err, id, "update")
		return nil, err
	}

	s.notifier.LockChanged(ctx, next)
	return &next, nil
}

// Delete removes a record after checking its fingerprint.
func (s *Store) Delete(ctx context.Context, id string) error {
	err := database.WithTx(ctx, s.db, func(ctx context.Context, tx database.DBTX) error {
		cur, stored, err := loadRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if !s.fp.Matches(*cur, stored) {
			return fmt.Errorf("%w: lock %s fingerprint mismatch", ErrIntegrityViolation, id)
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM lock_states WHERE id = ? AND fingerprint = ?", id, stored); err != nil {
			return fmt.Errorf("deleting lock %s: %w", id, err)
		}
		return nil
	})
	s.reportIfViolation(ctx, err, id, "delete")
	return err
}

// reportIfViolation reports err when it is one of the two violation kinds.
func (s *Store) reportIfViolation(ctx context.Context, err error, lockID, op string) {
	switch {
	case errors.Is(err, ErrIntegrityViolation):
		s.report(ctx, KindIntegrityViolation, lockID, op)
	case errors.Is(err, ErrUnauthorizedStateChange):
		s.report(ctx, KindUnauthorizedStateChange, lockID, op)
	}
}

// report logs, audits and publishes a rejected write. It runs after the
// transaction has rolled back; the pool has one connection, so writing the
// audit row inside the transaction would deadlock.
func (s *Store) report(ctx context.Context, kind, lockID, op string) {
	v := Violation{
		Kind:      kind,
		LockID:    lockID,
		Operation: op,
		Actor:     ActorFrom(ctx),
		At:        s.now().UTC(),
	}

	s.logger.Security(ctx, kind, "lock state write rejected",
		"lock_id", lockID, "operation", op, "actor", v.Actor)

	if s.audit != nil {
		action := audit.ActionIntegrityViolation
		if kind == KindUnauthorizedStateChange {
			action = audit.ActionUnauthorizedStateChange
		}
		entry := &audit.Entry{
			Action:     action,
			EntityType: "lock",
			EntityID:   lockID,
			UserID:     v.Actor,
			Source:     auditSource,
			Details:    map[string]any{"operation": op},
		}
		// A cancelled request must not drop the audit row of an incident.
		if err := s.audit.Create(context.WithoutCancel(ctx), entry); err != nil {
			s.logger.Error("failed to audit violation", "lock_id", lockID, "error", err)
		}
	}

	s.notifier.SecurityViolation(ctx, v)
}

const lockColumns = "id, name, location, locked, battery_level, last_update, wifi_strength, camera_active, fingerprint"

func loadRow(ctx context.Context, q database.DBTX, id string) (*Record, string, error) {
	return scanRow(q.QueryRowContext(ctx, "SELECT "+lockColumns+" FROM lock_states WHERE id = ?", id))
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(s scanner) (*Record, string, error) {
	var (
		rec            Record
		locked, camera int
		lastUpdate, fp string
	)
	err := s.Scan(&rec.ID, &rec.Name, &rec.Location, &locked, &rec.BatteryLevel,
		&lastUpdate, &rec.WifiStrength, &camera, &fp)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", ErrNotFound
		}
		return nil, "", fmt.Errorf("scanning lock: %w", err)
	}
	rec.Locked = locked != 0
	rec.CameraActive = camera != 0
	rec.LastUpdate, err = parseTime(lastUpdate)
	if err != nil {
		// An unparseable timestamp cannot have been written by Store.
		return nil, "", fmt.Errorf("%w: lock %s last_update %q", ErrIntegrityViolation, rec.ID, lastUpdate)
	}
	return &rec, fp, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
