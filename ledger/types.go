/*
Package ledger provides the lesson-credit accounting core.

PURPOSE:
  This package contains the state-transition logic for a member's lesson
  credits: purchasing packages, consuming and refunding credits as attendance
  is recorded, and promoting queued packages when the active one runs dry.
  Two denormalized aggregates are maintained - the Member counters and the
  per-package balances - and every mutation is also appended to an immutable
  CreditEvent trail so the current state can always be explained.

KEY CONCEPTS IN THIS FILE (types.go):
  - Member: aggregate counters (total / attended / extra / used / remaining)
  - MemberPackage: a purchased bundle of N lesson credits, Active or Waiting
  - LessonAttendance: one attendance row, snapshotting its funding package
  - CheckIn: the generic attendance trail (written, never read by the ledger)
  - Plan: the purchasable package catalog entry (name, credits, price)
  - Payment: money received for a package purchase
  - CreditEvent: append-only audit entry for every credit movement

DESIGN PRINCIPLES:
  1. Single derivation: RemainingLessons is always max(Total - Used, 0);
     no code path writes it from a second formula.
  2. The event trail is append-only: corrections are refund events, not edits.
  3. Ordering: package ids are store-assigned and monotonically increasing,
     so "oldest package" is simply the lowest id.

SEE ALSO:
  - ledger.go: CreditLedger operations (purchase, consume, refund, delete)
  - activator.go: FIFO promotion of Waiting packages
  - effect.go: the attendance effect matrix
  - store.go: persistence interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// MembershipNone is the member label when no package is owned.
const MembershipNone = "Paketsiz"

// =============================================================================
// ATTENDANCE KIND
// =============================================================================

// Kind says whether an attendance row draws a package credit.
type Kind string

const (
	// KindIncluded consumes one credit from the oldest package with balance.
	KindIncluded Kind = "included"

	// KindExtra is outside the package; it only bumps the extra counter.
	KindExtra Kind = "extra"
)

func (k Kind) Valid() bool { return k == KindIncluded || k == KindExtra }

// =============================================================================
// MEMBER - Aggregate counters
// =============================================================================

// Member carries the denormalized credit counters for one member.
//
// INVARIANT: RemainingLessons == max(TotalLessons - UsedCount, 0).
// UsedCount counts included credits consumed whether or not the member
// showed up; AttendedCount counts only the ones where they did. For a
// history with no absences the two are equal, which yields the classic
// remaining == total - attended identity.
//
// Mutated only through CreditLedger operations.
type Member struct {
	ID               int64
	Name             string
	Phone            string
	MembershipType   string // mirrors the active package name, or MembershipNone
	TotalLessons     int
	AttendedCount    int
	ExtraCount       int
	UsedCount        int
	RemainingLessons int
	IsActive         bool
	CreatedAt        time.Time
}

// Exhausted reports whether the member has drained every activated credit.
// A member with no package history (TotalLessons == 0) is not exhausted.
func (m *Member) Exhausted() bool {
	return m.TotalLessons > 0 && m.RemainingLessons == 0
}

// deriveRemaining recomputes the remaining counter from the single
// authoritative formula.
func (m *Member) deriveRemaining() {
	r := m.TotalLessons - m.UsedCount
	if r < 0 {
		r = 0
	}
	m.RemainingLessons = r
}

// =============================================================================
// MEMBER PACKAGE - A purchased credit bundle
// =============================================================================

// MemberPackage is one purchased bundle of lesson credits.
//
// LessonCount never changes after purchase; RemainingLessons drains from
// LessonCount to 0. At most one package per member is Active; the rest are
// Waiting with a full balance until FIFO activation. Packages are
// hard-deleted, never soft-deleted.
type MemberPackage struct {
	ID               int64
	MemberID         int64
	PackageName      string
	LessonCount      int
	RemainingLessons int
	Price            decimal.Decimal
	PurchasedAt      time.Time
	IsActive         bool
}

// Waiting reports whether the package is queued behind the active one.
func (p *MemberPackage) Waiting() bool { return !p.IsActive }

// =============================================================================
// LESSON ATTENDANCE - One attendance row, with funding snapshot
// =============================================================================

// LessonAttendance records one member/lesson/date event.
//
// PackageID and PackageName snapshot the package that funded the row at
// record time; they stay meaningful even after that package is deleted.
// Unique on (MemberID, LessonID, LessonDate).
type LessonAttendance struct {
	ID          int64
	MemberID    int64
	LessonID    int64
	LessonDate  time.Time // day granularity
	Attended    bool
	Kind        Kind
	PackageID   *int64
	PackageName string
	Notes       string
	CreatedAt   time.Time
}

// Day normalizes LessonDate to midnight UTC, the uniqueness granularity.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// CHECK-IN - Generic attendance trail
// =============================================================================

// CheckIn is the door log. The ledger writes one per attended lesson and
// never reads it back.
type CheckIn struct {
	ID           int64
	MemberID     int64
	CheckInTime  time.Time
	CheckOutTime *time.Time
	Notes        string
}

// =============================================================================
// LESSON - A schedulable class
// =============================================================================

type Lesson struct {
	ID        int64
	Name      string
	Schedule  string // free-form label, e.g. "Mon/Wed 19:00"
	Capacity  int
	CreatedAt time.Time
}

// =============================================================================
// PLAN - Purchasable package catalog
// =============================================================================

// Plan is a catalog entry: the name members buy and the credits it carries.
type Plan struct {
	Name        string
	LessonCount int
	Price       decimal.Decimal
	CreatedAt   time.Time
}

// =============================================================================
// PAYMENT
// =============================================================================

type Payment struct {
	ID        string // uuid
	MemberID  int64
	PackageID int64
	Amount    decimal.Decimal
	Method    string
	PaidAt    time.Time
}

// =============================================================================
// CREDIT EVENT - Append-only audit trail
// =============================================================================

type EventType string

const (
	EventPurchase      EventType = "purchase"
	EventQueue         EventType = "queue"
	EventConsume       EventType = "consume"
	EventRefund        EventType = "refund"
	EventActivate      EventType = "activate"
	EventDeletePackage EventType = "delete_package"
	EventBackfill      EventType = "backfill"
)

// CreditEvent is one immutable entry in the credit trail. Delta is the
// package-credit movement (negative for consumption), zero for events that
// only touch counters.
type CreditEvent struct {
	ID          string // uuid
	MemberID    int64
	PackageID   int64 // 0 when no package involved
	Type        EventType
	Delta       int
	Kind        Kind
	Attended    bool
	ReferenceID int64 // attendance row id, when applicable
	CreatedAt   time.Time
}
