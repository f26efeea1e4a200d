/*
store.go - Persistence interfaces for the credit ledger

PURPOSE:
  Defines the repository capability the ledger consumes: get-by-id, filtered
  queries ordered by id, insert, in-place update, delete, and an append-only
  event trail. The core never touches a database driver directly; it is
  handed a Store (and ideally a TxStore) at construction.

ORDERING CONTRACT:
  Insert* methods assign monotonically increasing int64 ids. Every *ByMember
  query returns rows ordered by id ascending, so "oldest package" is always
  the first row with balance.

APPEND-ONLY EVENTS:
  AppendEvent is the only write on the credit trail. There is no update or
  delete; corrections are refund events.

IMPLEMENTATIONS:
  - store/sqlite: production store, one schema, WAL
  - ledger/store:  in-memory store for tests

SEE ALSO:
  - ledger.go: consumes these interfaces
  - store/sqlite/sqlite.go: concrete implementation
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Repository capability consumed by the ledger
// =============================================================================

// Store is the persistence collaborator. Implementations return nil (not an
// error) for Get* misses; the ledger turns misses into Err*NotFound.
type Store interface {
	// Members. UpdateMember writes every column and is reserved for ledger
	// mutations running under the member lock; contact edits go through
	// UpdateMemberContact, which cannot touch the counter columns.
	GetMember(ctx context.Context, id int64) (*Member, error)
	InsertMember(ctx context.Context, m *Member) error // assigns m.ID
	UpdateMember(ctx context.Context, m *Member) error
	UpdateMemberContact(ctx context.Context, id int64, name, phone string, isActive bool) error
	DeleteMember(ctx context.Context, id int64) error // cascades owned rows
	ListMembers(ctx context.Context) ([]Member, error)

	// Packages. PackagesByMember is ordered by id ascending.
	GetPackage(ctx context.Context, id int64) (*MemberPackage, error)
	InsertPackage(ctx context.Context, p *MemberPackage) error // assigns p.ID
	UpdatePackage(ctx context.Context, p *MemberPackage) error
	DeletePackage(ctx context.Context, id int64) error
	PackagesByMember(ctx context.Context, memberID int64) ([]MemberPackage, error)
	AllPackages(ctx context.Context) ([]MemberPackage, error)

	// Lesson attendance. FindAttendance matches the uniqueness tuple.
	GetAttendance(ctx context.Context, id int64) (*LessonAttendance, error)
	FindAttendance(ctx context.Context, memberID, lessonID int64, day time.Time) (*LessonAttendance, error)
	InsertAttendance(ctx context.Context, a *LessonAttendance) error // assigns a.ID
	UpdateAttendance(ctx context.Context, a *LessonAttendance) error
	DeleteAttendance(ctx context.Context, id int64) error
	AttendanceByMember(ctx context.Context, memberID int64) ([]LessonAttendance, error)

	// Check-ins (write-mostly door log)
	InsertCheckIn(ctx context.Context, c *CheckIn) error
	CheckInsByMember(ctx context.Context, memberID int64) ([]CheckIn, error)

	// Lessons
	GetLesson(ctx context.Context, id int64) (*Lesson, error)
	InsertLesson(ctx context.Context, l *Lesson) error
	ListLessons(ctx context.Context) ([]Lesson, error)

	// Plan catalog
	GetPlan(ctx context.Context, name string) (*Plan, error)
	SavePlan(ctx context.Context, p *Plan) error
	ListPlans(ctx context.Context) ([]Plan, error)

	// Payments
	InsertPayment(ctx context.Context, p *Payment) error
	PaymentsByMember(ctx context.Context, memberID int64) ([]Payment, error)

	// Credit events (append-only)
	AppendEvent(ctx context.Context, e *CreditEvent) error
	EventsByMember(ctx context.Context, memberID int64) ([]CreditEvent, error)

	// Reset clears every table. Used by demo scenario loaders and tests;
	// never exposed to regular API traffic.
	Reset(ctx context.Context) error
}

// TxStore wraps Store with transaction support. Multi-document mutations
// (aggregate + package + event) run inside WithTx so a failing secondary
// write rolls the whole operation back.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. A non-nil error from fn
	// rolls back; nil commits.
	WithTx(ctx context.Context, fn func(Store) error) error
}
