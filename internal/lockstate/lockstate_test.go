package lockstate

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/audit"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/database"
	_ "github.com/nerrad567/gray-logic-access/migrations"
)

const testKey = "integrity-key-for-tests-0123456789abcdef"

// tickClock returns a strictly increasing time on every call.
type tickClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *tickClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type recorder struct {
	mu         sync.Mutex
	changes    []Record
	violations []Violation
}

func (r *recorder) LockChanged(_ context.Context, rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, rec)
}

func (r *recorder) SecurityViolation(_ context.Context, v Violation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.violations = append(r.violations, v)
}

type fakeCommander struct {
	mu    sync.Mutex
	calls []bool
	err   error
}

func (f *fakeCommander) SendLockCommand(_ context.Context, _ string, locked bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, locked)
	return f.err
}

type fixture struct {
	db    *sql.DB
	store *Store
	audit *audit.SQLiteRepository
	rec   *recorder
	fp    *Fingerprinter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{
		Path:        filepath.Join(t.TempDir(), "locks.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating: %v", err)
	}

	fp, err := NewFingerprinter(testKey)
	if err != nil {
		t.Fatalf("NewFingerprinter: %v", err)
	}
	f := &fixture{
		db:    db.DB,
		audit: audit.NewSQLiteRepository(db.DB),
		rec:   &recorder{},
		fp:    fp,
	}
	clk := &tickClock{t: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)}
	f.store = NewStore(Deps{
		DB:            f.db,
		Fingerprinter: fp,
		Audit:         f.audit,
		Notifier:      f.rec,
		Now:           clk.Now,
	})
	return f
}

func (f *fixture) insert(t *testing.T, name string) *Record {
	t.Helper()
	rec := &Record{Name: name, Location: "ground floor", Locked: true, BatteryLevel: 90, WifiStrength: -55}
	if err := f.store.Insert(context.Background(), rec); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	return rec
}

func (f *fixture) storedFingerprint(t *testing.T, id string) string {
	t.Helper()
	var fp string
	if err := f.db.QueryRow("SELECT fingerprint FROM lock_states WHERE id = ?", id).Scan(&fp); err != nil {
		t.Fatalf("reading fingerprint: %v", err)
	}
	return fp
}

func (f *fixture) auditActions(t *testing.T, id string) []string {
	t.Helper()
	res, err := f.audit.List(context.Background(), audit.Filter{EntityID: id})
	if err != nil {
		t.Fatalf("listing audit: %v", err)
	}
	actions := make([]string, 0, len(res.Entries))
	for _, e := range res.Entries {
		actions = append(actions, e.Action)
	}
	return actions
}

func ptr[T any](v T) *T { return &v }

func TestNewFingerprinter_ShortKey(t *testing.T) {
	if _, err := NewFingerprinter("short"); err == nil {
		t.Fatal("NewFingerprinter(short) should fail")
	}
}

func TestFingerprint_RoundTrip(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")

	got, err := f.store.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	stored := f.storedFingerprint(t, rec.ID)
	if recomputed := f.fp.Compute(*got); recomputed != stored {
		t.Errorf("recomputed fingerprint = %s, want stored %s", recomputed, stored)
	}
	if err := f.store.Verify(context.Background(), rec.ID); err != nil {
		t.Errorf("Verify() = %v, want nil", err)
	}
}

func TestFingerprint_CoversEveryField(t *testing.T) {
	fp, _ := NewFingerprinter(testKey) //nolint:errcheck // key is valid
	base := Record{
		ID: "lock-1", Name: "Front", Location: "Hall", Locked: true,
		BatteryLevel: 80, LastUpdate: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		WifiStrength: -60, CameraActive: false,
	}
	want := fp.Compute(base)

	tests := []struct {
		name   string
		mutate func(*Record)
	}{
		{"id", func(r *Record) { r.ID = "lock-2" }},
		{"name", func(r *Record) { r.Name = "Back" }},
		{"location", func(r *Record) { r.Location = "Garage" }},
		{"locked", func(r *Record) { r.Locked = false }},
		{"battery", func(r *Record) { r.BatteryLevel = 79 }},
		{"last update", func(r *Record) { r.LastUpdate = r.LastUpdate.Add(time.Nanosecond) }},
		{"wifi", func(r *Record) { r.WifiStrength = -61 }},
		{"camera", func(r *Record) { r.CameraActive = true }},
		{"field boundary", func(r *Record) { r.Name, r.Location = "FrontH", "all" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			tt.mutate(&r)
			if fp.Compute(r) == want {
				t.Error("fingerprint did not change")
			}
		})
	}

	other, _ := NewFingerprinter(strings.Repeat("k", 32)) //nolint:errcheck // key is valid
	if other.Compute(base) == want {
		t.Error("fingerprint does not depend on the key")
	}
}

func TestUpdate_NonLockFields(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")
	before := f.storedFingerprint(t, rec.ID)

	got, err := f.store.Update(context.Background(), rec.ID, Patch{BatteryLevel: ptr(42), CameraActive: ptr(true)})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.BatteryLevel != 42 || !got.CameraActive {
		t.Errorf("Update() = %+v, want battery 42 and camera on", got)
	}
	if !got.LastUpdate.After(rec.LastUpdate) {
		t.Errorf("LastUpdate = %v, want after %v", got.LastUpdate, rec.LastUpdate)
	}
	after := f.storedFingerprint(t, rec.ID)
	if after == before {
		t.Error("fingerprint not restamped")
	}
	if err := f.store.Verify(context.Background(), rec.ID); err != nil {
		t.Errorf("Verify() after update = %v", err)
	}
}

func TestUpdate_UnauthorizedLockedChange(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")
	ctx := WithActor(context.Background(), "usr-mallory")
	before, _ := f.store.Get(ctx, rec.ID) //nolint:errcheck // checked below via Verify
	beforeFP := f.storedFingerprint(t, rec.ID)

	_, err := f.store.Update(ctx, rec.ID, Patch{Locked: ptr(false), BatteryLevel: ptr(10)})
	if !errors.Is(err, ErrUnauthorizedStateChange) {
		t.Fatalf("Update() error = %v, want ErrUnauthorizedStateChange", err)
	}

	after, err := f.store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if *after != *before {
		t.Errorf("row changed: got %+v, want %+v", after, before)
	}
	if got := f.storedFingerprint(t, rec.ID); got != beforeFP {
		t.Error("fingerprint changed after rejected write")
	}

	if len(f.rec.violations) != 1 {
		t.Fatalf("violations = %d, want 1", len(f.rec.violations))
	}
	v := f.rec.violations[0]
	if v.Kind != KindUnauthorizedStateChange || v.LockID != rec.ID || v.Actor != "usr-mallory" {
		t.Errorf("violation = %+v", v)
	}
	actions := f.auditActions(t, rec.ID)
	if len(actions) != 1 || actions[0] != audit.ActionUnauthorizedStateChange {
		t.Errorf("audit actions = %v, want [%s]", actions, audit.ActionUnauthorizedStateChange)
	}
}

func TestUpdate_SameLockedValueAllowed(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")

	if _, err := f.store.Update(context.Background(), rec.ID, Patch{Locked: ptr(true)}); err != nil {
		t.Errorf("Update(locked unchanged) = %v, want nil", err)
	}
}

func TestApply_ZeroTrustedContextIsInert(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")

	_, err := f.store.Apply(context.Background(), rec.ID, Patch{Locked: ptr(false)}, TrustedWriteContext{})
	if !errors.Is(err, ErrUnauthorizedStateChange) {
		t.Errorf("Apply() error = %v, want ErrUnauthorizedStateChange", err)
	}
}

func TestUpdate_Validation(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")

	tests := []struct {
		name  string
		patch Patch
	}{
		{"battery over", Patch{BatteryLevel: ptr(101)}},
		{"battery negative", Patch{BatteryLevel: ptr(-1)}},
		{"wifi positive", Patch{WifiStrength: ptr(3)}},
		{"empty name", Patch{Name: ptr("")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.store.Update(context.Background(), rec.ID, tt.patch)
			if !errors.Is(err, ErrInvalidRecord) {
				t.Errorf("Update() error = %v, want ErrInvalidRecord", err)
			}
		})
	}
	if len(f.rec.violations) != 0 {
		t.Errorf("validation failures reported as violations: %v", f.rec.violations)
	}
}

func TestStore_NotFound(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if _, err := f.store.Get(ctx, "lock-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
	if _, err := f.store.Update(ctx, "lock-missing", Patch{Name: ptr("x")}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update() error = %v, want ErrNotFound", err)
	}
	if err := f.store.Delete(ctx, "lock-missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Delete() error = %v, want ErrNotFound", err)
	}
}

func TestTamperedRow_RejectsUpdateAndDelete(t *testing.T) {
	tests := []struct {
		name   string
		tamper string
	}{
		{"field edited out of band", "UPDATE lock_states SET locked = 0 WHERE id = ?"},
		{"fingerprint overwritten", "UPDATE lock_states SET fingerprint = 'deadbeef' WHERE id = ?"},
		{"timestamp garbage", "UPDATE lock_states SET last_update = 'yesterday' WHERE id = ?"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			rec := f.insert(t, "Front door")
			ctx := context.Background()

			if _, err := f.db.Exec(tt.tamper, rec.ID); err != nil {
				t.Fatalf("tampering: %v", err)
			}

			if _, err := f.store.Update(ctx, rec.ID, Patch{Name: ptr("Renamed")}); !errors.Is(err, ErrIntegrityViolation) {
				t.Errorf("Update() error = %v, want ErrIntegrityViolation", err)
			}
			if err := f.store.Delete(ctx, rec.ID); !errors.Is(err, ErrIntegrityViolation) {
				t.Errorf("Delete() error = %v, want ErrIntegrityViolation", err)
			}
			if err := f.store.Verify(ctx, rec.ID); !errors.Is(err, ErrIntegrityViolation) {
				t.Errorf("Verify() error = %v, want ErrIntegrityViolation", err)
			}

			var n int
			if err := f.db.QueryRow("SELECT COUNT(*) FROM lock_states WHERE id = ?", rec.ID).Scan(&n); err != nil {
				t.Fatalf("counting: %v", err)
			}
			if n != 1 {
				t.Errorf("row count = %d, want 1 (delete must be refused)", n)
			}

			if len(f.rec.violations) != 3 {
				t.Errorf("violations = %d, want 3", len(f.rec.violations))
			}
			for _, v := range f.rec.violations {
				if v.Kind != KindIntegrityViolation {
					t.Errorf("violation kind = %s, want %s", v.Kind, KindIntegrityViolation)
				}
			}
			for _, a := range f.auditActions(t, rec.ID) {
				if a != audit.ActionIntegrityViolation {
					t.Errorf("audit action = %s, want %s", a, audit.ActionIntegrityViolation)
				}
			}
		})
	}
}

func TestDelete(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")

	if err := f.store.Delete(context.Background(), rec.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := f.store.Get(context.Background(), rec.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}
}

func TestConcurrentUpdates_KeepChainValid(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.store.Update(context.Background(), rec.ID, Patch{BatteryLevel: ptr(50 + i)})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("concurrent Update() = %v", err)
		}
	}
	if err := f.store.Verify(context.Background(), rec.ID); err != nil {
		t.Errorf("Verify() after concurrent updates = %v", err)
	}
}

func TestList(t *testing.T) {
	f := newFixture(t)
	f.insert(t, "Side gate")
	f.insert(t, "Back door")

	recs, err := f.store.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(recs) != 2 || recs[0].Name != "Back door" {
		t.Errorf("List() = %+v, want two records ordered by name", recs)
	}
}

func TestRecord_JSONOmitsFingerprint(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")

	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if strings.Contains(string(data), "fingerprint") || strings.Contains(string(data), f.storedFingerprint(t, rec.ID)) {
		t.Errorf("JSON exposes fingerprint: %s", data)
	}
}

func TestController_SetLocked(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")
	cmd := &fakeCommander{}
	ctrl := NewController(f.store, cmd, f.audit, nil)
	ctx := WithActor(context.Background(), "usr-owner")

	got, err := ctrl.SetLocked(ctx, rec.ID, false)
	if err != nil {
		t.Fatalf("SetLocked: %v", err)
	}
	if got.Locked {
		t.Error("SetLocked(false) returned a locked record")
	}
	if len(cmd.calls) != 1 || cmd.calls[0] {
		t.Errorf("commands = %v, want [false]", cmd.calls)
	}
	if err := f.store.Verify(ctx, rec.ID); err != nil {
		t.Errorf("Verify() = %v", err)
	}
	actions := f.auditActions(t, rec.ID)
	if len(actions) != 1 || actions[0] != audit.ActionUnlock {
		t.Errorf("audit actions = %v, want [%s]", actions, audit.ActionUnlock)
	}
	if n := len(f.rec.changes); n != 2 {
		t.Errorf("LockChanged calls = %d, want 2 (insert and unlock)", n)
	}
}

func TestController_CommandFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")
	cmd := &fakeCommander{err: errors.New("broker unreachable")}
	ctrl := NewController(f.store, cmd, f.audit, nil)

	if _, err := ctrl.SetLocked(context.Background(), rec.ID, false); err == nil {
		t.Fatal("SetLocked() should fail when the command cannot be sent")
	}
	got, _ := f.store.Get(context.Background(), rec.ID) //nolint:errcheck // row exists
	if !got.Locked {
		t.Error("record unlocked despite failed command")
	}
	if len(f.rec.violations) != 0 {
		t.Errorf("command failure reported as violation: %v", f.rec.violations)
	}
}

func TestController_TamperedRowSendsNoCommand(t *testing.T) {
	f := newFixture(t)
	rec := f.insert(t, "Front door")
	if _, err := f.db.Exec("UPDATE lock_states SET battery_level = 1 WHERE id = ?", rec.ID); err != nil {
		t.Fatalf("tampering: %v", err)
	}
	cmd := &fakeCommander{}
	ctrl := NewController(f.store, cmd, f.audit, nil)

	if _, err := ctrl.SetLocked(context.Background(), rec.ID, false); !errors.Is(err, ErrIntegrityViolation) {
		t.Errorf("SetLocked() error = %v, want ErrIntegrityViolation", err)
	}
	if len(cmd.calls) != 0 {
		t.Errorf("commands sent for tampered row: %v", cmd.calls)
	}
}

func TestNotifiers_FanOut(t *testing.T) {
	a, b := &recorder{}, &recorder{}
	ns := Notifiers{a, b}

	ns.LockChanged(context.Background(), Record{ID: "lock-1"})
	ns.SecurityViolation(context.Background(), Violation{Kind: KindIntegrityViolation})

	for i, r := range []*recorder{a, b} {
		if len(r.changes) != 1 || len(r.violations) != 1 {
			t.Errorf("notifier %d got %d changes, %d violations", i, len(r.changes), len(r.violations))
		}
	}
}
