/*
Package sqlite provides the SQLite-backed implementation of ledger.Store.

PURPOSE:
  Implements the full repository capability (members, packages, attendance,
  check-ins, lessons, plans, payments, credit events) plus TxStore, so every
  multi-document ledger mutation commits or rolls back as one unit.

KEY TABLES:
  members:           Aggregate counters, mutated only through the ledger
  member_packages:   Credit bundles; AUTOINCREMENT ids are the FIFO key
  lesson_attendance: One row per (member, lesson, date), unique
  check_ins:         Door log, written on attended lessons
  lessons:           Schedulable classes
  plans:             Purchasable package catalog
  payments:          Money received per package
  credit_events:     Append-only trail; no UPDATE or DELETE ever runs on it

ORDERING:
  AUTOINCREMENT guarantees ids never regress, so ORDER BY id ASC is the
  purchase order the activator's FIFO rule depends on.

CONCURRENCY:
  A sync.RWMutex serializes writers on top of SQLite's single-writer model.
  WithTx holds the write lock for the whole transaction and hands the caller
  a store view bound to the open *sql.Tx; the view's methods never touch the
  mutex, so reads inside a transaction cannot self-deadlock.

WAL MODE:
  Opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery
  Use ":memory:" as the path for tests.

USAGE:
  store, err := sqlite.New("./data/studio.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  led := ledger.NewCreditLedger(store, ledger.NewKeyedMutex())

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper
  migration tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/ledger.go: Higher-level ledger using Store
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/studio-ledger/ledger"
)

// dayFormat stores lesson dates as calendar days, not instants.
const dayFormat = "2006-01-02"

// Store implements ledger.Store and ledger.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New opens and migrates a SQLite store at the given path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A :memory: database lives per connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		phone TEXT NOT NULL DEFAULT '',
		membership_type TEXT NOT NULL DEFAULT 'Paketsiz',
		total_lessons INTEGER NOT NULL DEFAULT 0,
		attended_count INTEGER NOT NULL DEFAULT 0,
		extra_count INTEGER NOT NULL DEFAULT 0,
		used_count INTEGER NOT NULL DEFAULT 0,
		remaining_lessons INTEGER NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS member_packages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		package_name TEXT NOT NULL,
		lesson_count INTEGER NOT NULL,
		remaining_lessons INTEGER NOT NULL,
		price TEXT NOT NULL DEFAULT '0',
		purchased_at TEXT NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT FALSE
	);

	CREATE INDEX IF NOT EXISTS idx_packages_member
		ON member_packages(member_id, id);

	CREATE TABLE IF NOT EXISTS lessons (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		schedule TEXT NOT NULL DEFAULT '',
		capacity INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS lesson_attendance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		lesson_id INTEGER NOT NULL REFERENCES lessons(id),
		lesson_date TEXT NOT NULL,
		attended BOOLEAN NOT NULL,
		kind TEXT NOT NULL,
		package_id INTEGER,
		package_name TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- An attendance tuple is recorded at most once.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_attendance_unique
		ON lesson_attendance(member_id, lesson_id, lesson_date);

	CREATE INDEX IF NOT EXISTS idx_attendance_member
		ON lesson_attendance(member_id, id);

	CREATE TABLE IF NOT EXISTS check_ins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		check_in_time TEXT NOT NULL,
		check_out_time TEXT,
		notes TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_check_ins_member
		ON check_ins(member_id, id);

	CREATE TABLE IF NOT EXISTS plans (
		name TEXT PRIMARY KEY,
		lesson_count INTEGER NOT NULL,
		price TEXT NOT NULL DEFAULT '0',
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		package_id INTEGER NOT NULL,
		amount TEXT NOT NULL,
		method TEXT NOT NULL DEFAULT '',
		paid_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_member
		ON payments(member_id);

	-- Append-only credit trail; corrections arrive as refund events.
	CREATE TABLE IF NOT EXISTS credit_events (
		id TEXT PRIMARY KEY,
		member_id INTEGER NOT NULL REFERENCES members(id) ON DELETE CASCADE,
		package_id INTEGER NOT NULL DEFAULT 0,
		event_type TEXT NOT NULL,
		delta INTEGER NOT NULL DEFAULT 0,
		kind TEXT NOT NULL DEFAULT '',
		attended BOOLEAN NOT NULL DEFAULT FALSE,
		reference_id INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_credit_events_member
		ON credit_events(member_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (ledger.TxStore)
// =============================================================================

// WithTx runs fn against a store view bound to one database transaction.
// The write lock is held for the duration.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&txStore{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// txStore is the transaction-scoped view. It bypasses the parent mutex,
// which WithTx already holds.
type txStore struct {
	q *sql.Tx
}

// =============================================================================
// MEMBERS
// =============================================================================

const memberColumns = `id, name, phone, membership_type, total_lessons, attended_count,
	extra_count, used_count, remaining_lessons, is_active, created_at`

func (s *Store) GetMember(ctx context.Context, id int64) (*ledger.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getMember(ctx, s.db, id)
}

func (ts *txStore) GetMember(ctx context.Context, id int64) (*ledger.Member, error) {
	return getMember(ctx, ts.q, id)
}

func getMember(ctx context.Context, q querier, id int64) (*ledger.Member, error) {
	var m ledger.Member
	var createdAt string
	err := q.QueryRowContext(ctx,
		`SELECT `+memberColumns+` FROM members WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.Phone, &m.MembershipType, &m.TotalLessons,
			&m.AttendedCount, &m.ExtraCount, &m.UsedCount, &m.RemainingLessons,
			&m.IsActive, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan member: %w", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &m, nil
}

func (s *Store) InsertMember(ctx context.Context, m *ledger.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertMember(ctx, s.db, m)
}

func (ts *txStore) InsertMember(ctx context.Context, m *ledger.Member) error {
	return insertMember(ctx, ts.q, m)
}

func insertMember(ctx context.Context, q querier, m *ledger.Member) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.MembershipType == "" {
		m.MembershipType = ledger.MembershipNone
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO members (name, phone, membership_type, total_lessons, attended_count,
		                     extra_count, used_count, remaining_lessons, is_active, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.Name, m.Phone, m.MembershipType, m.TotalLessons, m.AttendedCount,
		m.ExtraCount, m.UsedCount, m.RemainingLessons, m.IsActive,
		m.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert member: %w", err)
	}
	m.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateMember(ctx context.Context, m *ledger.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMember(ctx, s.db, m)
}

func (ts *txStore) UpdateMember(ctx context.Context, m *ledger.Member) error {
	return updateMember(ctx, ts.q, m)
}

func updateMember(ctx context.Context, q querier, m *ledger.Member) error {
	_, err := q.ExecContext(ctx, `
		UPDATE members SET name = ?, phone = ?, membership_type = ?, total_lessons = ?,
		       attended_count = ?, extra_count = ?, used_count = ?,
		       remaining_lessons = ?, is_active = ?
		WHERE id = ?`,
		m.Name, m.Phone, m.MembershipType, m.TotalLessons, m.AttendedCount,
		m.ExtraCount, m.UsedCount, m.RemainingLessons, m.IsActive, m.ID)
	if err != nil {
		return fmt.Errorf("failed to update member: %w", err)
	}
	return nil
}

func (s *Store) UpdateMemberContact(ctx context.Context, id int64, name, phone string, isActive bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateMemberContact(ctx, s.db, id, name, phone, isActive)
}

func (ts *txStore) UpdateMemberContact(ctx context.Context, id int64, name, phone string, isActive bool) error {
	return updateMemberContact(ctx, ts.q, id, name, phone, isActive)
}

// updateMemberContact never touches the counter columns, so a stale member
// snapshot in the caller cannot clobber concurrent ledger writes.
func updateMemberContact(ctx context.Context, q querier, id int64, name, phone string, isActive bool) error {
	_, err := q.ExecContext(ctx, `
		UPDATE members SET name = ?, phone = ?, is_active = ?
		WHERE id = ?`,
		name, phone, isActive, id)
	if err != nil {
		return fmt.Errorf("failed to update member contact: %w", err)
	}
	return nil
}

func (s *Store) DeleteMember(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return deleteMember(ctx, s.db, id)
}

func (ts *txStore) DeleteMember(ctx context.Context, id int64) error {
	return deleteMember(ctx, ts.q, id)
}

func deleteMember(ctx context.Context, q querier, id int64) error {
	// Child rows go via ON DELETE CASCADE.
	_, err := q.ExecContext(ctx, `DELETE FROM members WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete member: %w", err)
	}
	return nil
}

func (s *Store) ListMembers(ctx context.Context) ([]ledger.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listMembers(ctx, s.db)
}

func (ts *txStore) ListMembers(ctx context.Context) ([]ledger.Member, error) {
	return listMembers(ctx, ts.q)
}

func listMembers(ctx context.Context, q querier) ([]ledger.Member, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+memberColumns+` FROM members ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query members: %w", err)
	}
	defer rows.Close()

	var out []ledger.Member
	for rows.Next() {
		var m ledger.Member
		var createdAt string
		if err := rows.Scan(&m.ID, &m.Name, &m.Phone, &m.MembershipType, &m.TotalLessons,
			&m.AttendedCount, &m.ExtraCount, &m.UsedCount, &m.RemainingLessons,
			&m.IsActive, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

// =============================================================================
// PACKAGES
// =============================================================================

const packageColumns = `id, member_id, package_name, lesson_count, remaining_lessons, price, purchased_at, is_active`

func (s *Store) GetPackage(ctx context.Context, id int64) (*ledger.MemberPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPackage(ctx, s.db, id)
}

func (ts *txStore) GetPackage(ctx context.Context, id int64) (*ledger.MemberPackage, error) {
	return getPackage(ctx, ts.q, id)
}

func getPackage(ctx context.Context, q querier, id int64) (*ledger.MemberPackage, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+packageColumns+` FROM member_packages WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	pkgs, err := collectPackages(rows)
	if err != nil || len(pkgs) == 0 {
		return nil, err
	}
	return &pkgs[0], nil
}

func (s *Store) InsertPackage(ctx context.Context, p *ledger.MemberPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPackage(ctx, s.db, p)
}

func (ts *txStore) InsertPackage(ctx context.Context, p *ledger.MemberPackage) error {
	return insertPackage(ctx, ts.q, p)
}

func insertPackage(ctx context.Context, q querier, p *ledger.MemberPackage) error {
	if p.PurchasedAt.IsZero() {
		p.PurchasedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO member_packages (member_id, package_name, lesson_count,
		                             remaining_lessons, price, purchased_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.MemberID, p.PackageName, p.LessonCount, p.RemainingLessons,
		p.Price.String(), p.PurchasedAt.Format(time.RFC3339), p.IsActive)
	if err != nil {
		return fmt.Errorf("failed to insert package: %w", err)
	}
	p.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdatePackage(ctx context.Context, p *ledger.MemberPackage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updatePackage(ctx, s.db, p)
}

func (ts *txStore) UpdatePackage(ctx context.Context, p *ledger.MemberPackage) error {
	return updatePackage(ctx, ts.q, p)
}

func updatePackage(ctx context.Context, q querier, p *ledger.MemberPackage) error {
	_, err := q.ExecContext(ctx, `
		UPDATE member_packages SET remaining_lessons = ?, is_active = ?
		WHERE id = ?`,
		p.RemainingLessons, p.IsActive, p.ID)
	if err != nil {
		return fmt.Errorf("failed to update package: %w", err)
	}
	return nil
}

func (s *Store) DeletePackage(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM member_packages WHERE id = ?`, id)
	return err
}

func (ts *txStore) DeletePackage(ctx context.Context, id int64) error {
	_, err := ts.q.ExecContext(ctx, `DELETE FROM member_packages WHERE id = ?`, id)
	return err
}

func (s *Store) PackagesByMember(ctx context.Context, memberID int64) ([]ledger.MemberPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return packagesByMember(ctx, s.db, memberID)
}

func (ts *txStore) PackagesByMember(ctx context.Context, memberID int64) ([]ledger.MemberPackage, error) {
	return packagesByMember(ctx, ts.q, memberID)
}

func packagesByMember(ctx context.Context, q querier, memberID int64) ([]ledger.MemberPackage, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+packageColumns+` FROM member_packages WHERE member_id = ? ORDER BY id ASC`,
		memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPackages(rows)
}

func (s *Store) AllPackages(ctx context.Context) ([]ledger.MemberPackage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return allPackages(ctx, s.db)
}

func (ts *txStore) AllPackages(ctx context.Context) ([]ledger.MemberPackage, error) {
	return allPackages(ctx, ts.q)
}

func allPackages(ctx context.Context, q querier) ([]ledger.MemberPackage, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+packageColumns+` FROM member_packages ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectPackages(rows)
}

func collectPackages(rows *sql.Rows) ([]ledger.MemberPackage, error) {
	var out []ledger.MemberPackage
	for rows.Next() {
		var p ledger.MemberPackage
		var price, purchasedAt string
		if err := rows.Scan(&p.ID, &p.MemberID, &p.PackageName, &p.LessonCount,
			&p.RemainingLessons, &price, &purchasedAt, &p.IsActive); err != nil {
			return nil, fmt.Errorf("failed to scan package: %w", err)
		}
		p.Price, _ = decimal.NewFromString(price)
		p.PurchasedAt, _ = time.Parse(time.RFC3339, purchasedAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// LESSON ATTENDANCE
// =============================================================================

const attendanceColumns = `id, member_id, lesson_id, lesson_date, attended, kind, package_id, package_name, notes, created_at`

func (s *Store) GetAttendance(ctx context.Context, id int64) (*ledger.LessonAttendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getAttendance(ctx, s.db, id)
}

func (ts *txStore) GetAttendance(ctx context.Context, id int64) (*ledger.LessonAttendance, error) {
	return getAttendance(ctx, ts.q, id)
}

func getAttendance(ctx context.Context, q querier, id int64) (*ledger.LessonAttendance, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM lesson_attendance WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recs, err := collectAttendance(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func (s *Store) FindAttendance(ctx context.Context, memberID, lessonID int64, day time.Time) (*ledger.LessonAttendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return findAttendance(ctx, s.db, memberID, lessonID, day)
}

func (ts *txStore) FindAttendance(ctx context.Context, memberID, lessonID int64, day time.Time) (*ledger.LessonAttendance, error) {
	return findAttendance(ctx, ts.q, memberID, lessonID, day)
}

func findAttendance(ctx context.Context, q querier, memberID, lessonID int64, day time.Time) (*ledger.LessonAttendance, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM lesson_attendance
		 WHERE member_id = ? AND lesson_id = ? AND lesson_date = ?`,
		memberID, lessonID, day.Format(dayFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	recs, err := collectAttendance(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return &recs[0], nil
}

func (s *Store) InsertAttendance(ctx context.Context, a *ledger.LessonAttendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertAttendance(ctx, s.db, a)
}

func (ts *txStore) InsertAttendance(ctx context.Context, a *ledger.LessonAttendance) error {
	return insertAttendance(ctx, ts.q, a)
}

func insertAttendance(ctx context.Context, q querier, a *ledger.LessonAttendance) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO lesson_attendance (member_id, lesson_id, lesson_date, attended,
		                               kind, package_id, package_name, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.MemberID, a.LessonID, a.LessonDate.Format(dayFormat), a.Attended,
		string(a.Kind), nullInt64(a.PackageID), a.PackageName, a.Notes,
		a.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert attendance: %w", err)
	}
	a.ID, err = res.LastInsertId()
	return err
}

func (s *Store) UpdateAttendance(ctx context.Context, a *ledger.LessonAttendance) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return updateAttendanceRow(ctx, s.db, a)
}

func (ts *txStore) UpdateAttendance(ctx context.Context, a *ledger.LessonAttendance) error {
	return updateAttendanceRow(ctx, ts.q, a)
}

func updateAttendanceRow(ctx context.Context, q querier, a *ledger.LessonAttendance) error {
	_, err := q.ExecContext(ctx, `
		UPDATE lesson_attendance SET attended = ?, kind = ?, package_id = ?,
		       package_name = ?, notes = ?
		WHERE id = ?`,
		a.Attended, string(a.Kind), nullInt64(a.PackageID), a.PackageName, a.Notes, a.ID)
	if err != nil {
		return fmt.Errorf("failed to update attendance: %w", err)
	}
	return nil
}

func (s *Store) DeleteAttendance(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.ExecContext(ctx, `DELETE FROM lesson_attendance WHERE id = ?`, id)
	return err
}

func (ts *txStore) DeleteAttendance(ctx context.Context, id int64) error {
	_, err := ts.q.ExecContext(ctx, `DELETE FROM lesson_attendance WHERE id = ?`, id)
	return err
}

func (s *Store) AttendanceByMember(ctx context.Context, memberID int64) ([]ledger.LessonAttendance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return attendanceByMember(ctx, s.db, memberID)
}

func (ts *txStore) AttendanceByMember(ctx context.Context, memberID int64) ([]ledger.LessonAttendance, error) {
	return attendanceByMember(ctx, ts.q, memberID)
}

func attendanceByMember(ctx context.Context, q querier, memberID int64) ([]ledger.LessonAttendance, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+attendanceColumns+` FROM lesson_attendance WHERE member_id = ? ORDER BY id ASC`,
		memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectAttendance(rows)
}

func collectAttendance(rows *sql.Rows) ([]ledger.LessonAttendance, error) {
	var out []ledger.LessonAttendance
	for rows.Next() {
		var a ledger.LessonAttendance
		var lessonDate, kind, createdAt string
		var pkgID sql.NullInt64
		if err := rows.Scan(&a.ID, &a.MemberID, &a.LessonID, &lessonDate, &a.Attended,
			&kind, &pkgID, &a.PackageName, &a.Notes, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		a.Kind = ledger.Kind(kind)
		if pkgID.Valid {
			id := pkgID.Int64
			a.PackageID = &id
		}
		a.LessonDate, _ = time.Parse(dayFormat, lessonDate)
		a.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// =============================================================================
// CHECK-INS
// =============================================================================

func (s *Store) InsertCheckIn(ctx context.Context, c *ledger.CheckIn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertCheckIn(ctx, s.db, c)
}

func (ts *txStore) InsertCheckIn(ctx context.Context, c *ledger.CheckIn) error {
	return insertCheckIn(ctx, ts.q, c)
}

func insertCheckIn(ctx context.Context, q querier, c *ledger.CheckIn) error {
	var out any
	if c.CheckOutTime != nil {
		out = c.CheckOutTime.Format(time.RFC3339)
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO check_ins (member_id, check_in_time, check_out_time, notes)
		VALUES (?, ?, ?, ?)`,
		c.MemberID, c.CheckInTime.Format(time.RFC3339), out, c.Notes)
	if err != nil {
		return fmt.Errorf("failed to insert check-in: %w", err)
	}
	c.ID, err = res.LastInsertId()
	return err
}

func (s *Store) CheckInsByMember(ctx context.Context, memberID int64) ([]ledger.CheckIn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return checkInsByMember(ctx, s.db, memberID)
}

func (ts *txStore) CheckInsByMember(ctx context.Context, memberID int64) ([]ledger.CheckIn, error) {
	return checkInsByMember(ctx, ts.q, memberID)
}

func checkInsByMember(ctx context.Context, q querier, memberID int64) ([]ledger.CheckIn, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, member_id, check_in_time, check_out_time, notes
		FROM check_ins WHERE member_id = ? ORDER BY id ASC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.CheckIn
	for rows.Next() {
		var c ledger.CheckIn
		var in string
		var outAt sql.NullString
		if err := rows.Scan(&c.ID, &c.MemberID, &in, &outAt, &c.Notes); err != nil {
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		c.CheckInTime, _ = time.Parse(time.RFC3339, in)
		if outAt.Valid {
			t, _ := time.Parse(time.RFC3339, outAt.String)
			c.CheckOutTime = &t
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// =============================================================================
// LESSONS
// =============================================================================

func (s *Store) GetLesson(ctx context.Context, id int64) (*ledger.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getLesson(ctx, s.db, id)
}

func (ts *txStore) GetLesson(ctx context.Context, id int64) (*ledger.Lesson, error) {
	return getLesson(ctx, ts.q, id)
}

func getLesson(ctx context.Context, q querier, id int64) (*ledger.Lesson, error) {
	var l ledger.Lesson
	var createdAt string
	err := q.QueryRowContext(ctx,
		`SELECT id, name, schedule, capacity, created_at FROM lessons WHERE id = ?`, id).
		Scan(&l.ID, &l.Name, &l.Schedule, &l.Capacity, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan lesson: %w", err)
	}
	l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &l, nil
}

func (s *Store) InsertLesson(ctx context.Context, l *ledger.Lesson) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertLesson(ctx, s.db, l)
}

func (ts *txStore) InsertLesson(ctx context.Context, l *ledger.Lesson) error {
	return insertLesson(ctx, ts.q, l)
}

func insertLesson(ctx context.Context, q querier, l *ledger.Lesson) error {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	res, err := q.ExecContext(ctx, `
		INSERT INTO lessons (name, schedule, capacity, created_at)
		VALUES (?, ?, ?, ?)`,
		l.Name, l.Schedule, l.Capacity, l.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert lesson: %w", err)
	}
	l.ID, err = res.LastInsertId()
	return err
}

func (s *Store) ListLessons(ctx context.Context) ([]ledger.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listLessons(ctx, s.db)
}

func (ts *txStore) ListLessons(ctx context.Context) ([]ledger.Lesson, error) {
	return listLessons(ctx, ts.q)
}

func listLessons(ctx context.Context, q querier) ([]ledger.Lesson, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT id, name, schedule, capacity, created_at FROM lessons ORDER BY id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Lesson
	for rows.Next() {
		var l ledger.Lesson
		var createdAt string
		if err := rows.Scan(&l.ID, &l.Name, &l.Schedule, &l.Capacity, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		l.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, l)
	}
	return out, rows.Err()
}

// =============================================================================
// PLANS
// =============================================================================

func (s *Store) GetPlan(ctx context.Context, name string) (*ledger.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return getPlan(ctx, s.db, name)
}

func (ts *txStore) GetPlan(ctx context.Context, name string) (*ledger.Plan, error) {
	return getPlan(ctx, ts.q, name)
}

func getPlan(ctx context.Context, q querier, name string) (*ledger.Plan, error) {
	var p ledger.Plan
	var price, createdAt string
	err := q.QueryRowContext(ctx,
		`SELECT name, lesson_count, price, created_at FROM plans WHERE name = ?`, name).
		Scan(&p.Name, &p.LessonCount, &price, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan plan: %w", err)
	}
	p.Price, _ = decimal.NewFromString(price)
	p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &p, nil
}

func (s *Store) SavePlan(ctx context.Context, p *ledger.Plan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return savePlan(ctx, s.db, p)
}

func (ts *txStore) SavePlan(ctx context.Context, p *ledger.Plan) error {
	return savePlan(ctx, ts.q, p)
}

func savePlan(ctx context.Context, q querier, p *ledger.Plan) error {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO plans (name, lesson_count, price, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			lesson_count = excluded.lesson_count,
			price = excluded.price`,
		p.Name, p.LessonCount, p.Price.String(), p.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to save plan: %w", err)
	}
	return nil
}

func (s *Store) ListPlans(ctx context.Context) ([]ledger.Plan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return listPlans(ctx, s.db)
}

func (ts *txStore) ListPlans(ctx context.Context) ([]ledger.Plan, error) {
	return listPlans(ctx, ts.q)
}

func listPlans(ctx context.Context, q querier) ([]ledger.Plan, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT name, lesson_count, price, created_at FROM plans ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Plan
	for rows.Next() {
		var p ledger.Plan
		var price, createdAt string
		if err := rows.Scan(&p.Name, &p.LessonCount, &price, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan plan: %w", err)
		}
		p.Price, _ = decimal.NewFromString(price)
		p.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// PAYMENTS
// =============================================================================

func (s *Store) InsertPayment(ctx context.Context, p *ledger.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return insertPayment(ctx, s.db, p)
}

func (ts *txStore) InsertPayment(ctx context.Context, p *ledger.Payment) error {
	return insertPayment(ctx, ts.q, p)
}

func insertPayment(ctx context.Context, q querier, p *ledger.Payment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (id, member_id, package_id, amount, method, paid_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.MemberID, p.PackageID, p.Amount.String(), p.Method,
		p.PaidAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (s *Store) PaymentsByMember(ctx context.Context, memberID int64) ([]ledger.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return paymentsByMember(ctx, s.db, memberID)
}

func (ts *txStore) PaymentsByMember(ctx context.Context, memberID int64) ([]ledger.Payment, error) {
	return paymentsByMember(ctx, ts.q, memberID)
}

func paymentsByMember(ctx context.Context, q querier, memberID int64) ([]ledger.Payment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, member_id, package_id, amount, method, paid_at
		FROM payments WHERE member_id = ? ORDER BY paid_at ASC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Payment
	for rows.Next() {
		var p ledger.Payment
		var amount, paidAt string
		if err := rows.Scan(&p.ID, &p.MemberID, &p.PackageID, &amount, &p.Method, &paidAt); err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		p.Amount, _ = decimal.NewFromString(amount)
		p.PaidAt, _ = time.Parse(time.RFC3339, paidAt)
		out = append(out, p)
	}
	return out, rows.Err()
}

// =============================================================================
// CREDIT EVENTS (append-only)
// =============================================================================

func (s *Store) AppendEvent(ctx context.Context, e *ledger.CreditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return appendEvent(ctx, s.db, e)
}

func (ts *txStore) AppendEvent(ctx context.Context, e *ledger.CreditEvent) error {
	return appendEvent(ctx, ts.q, e)
}

func appendEvent(ctx context.Context, q querier, e *ledger.CreditEvent) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO credit_events (id, member_id, package_id, event_type, delta,
		                           kind, attended, reference_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MemberID, e.PackageID, string(e.Type), e.Delta,
		string(e.Kind), e.Attended, e.ReferenceID, e.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to append credit event: %w", err)
	}
	return nil
}

func (s *Store) EventsByMember(ctx context.Context, memberID int64) ([]ledger.CreditEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return eventsByMember(ctx, s.db, memberID)
}

func (ts *txStore) EventsByMember(ctx context.Context, memberID int64) ([]ledger.CreditEvent, error) {
	return eventsByMember(ctx, ts.q, memberID)
}

func eventsByMember(ctx context.Context, q querier, memberID int64) ([]ledger.CreditEvent, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, member_id, package_id, event_type, delta, kind, attended, reference_id, created_at
		FROM credit_events WHERE member_id = ? ORDER BY created_at ASC, id ASC`, memberID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.CreditEvent
	for rows.Next() {
		var e ledger.CreditEvent
		var eventType, kind, createdAt string
		if err := rows.Scan(&e.ID, &e.MemberID, &e.PackageID, &eventType, &e.Delta,
			&kind, &e.Attended, &e.ReferenceID, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan credit event: %w", err)
		}
		e.Type = ledger.EventType(eventType)
		e.Kind = ledger.Kind(kind)
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// RESET
// =============================================================================

// Reset clears every table. Demo scenario loaders and tests only.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return resetTables(ctx, s.db)
}

func (ts *txStore) Reset(ctx context.Context) error {
	return resetTables(ctx, ts.q)
}

func resetTables(ctx context.Context, q querier) error {
	for _, table := range []string{
		"credit_events", "payments", "check_ins", "lesson_attendance",
		"member_packages", "lessons", "plans", "members",
	} {
		if _, err := q.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func nullInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
