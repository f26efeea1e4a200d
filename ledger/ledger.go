/*
ledger.go - CreditLedger: the state-transition core

PURPOSE:
  CreditLedger owns every mutation of the Member counters and MemberPackage
  balances: Purchase, Queue, Consume, Refund, DeletePackage. Each operation
  runs inside a store transaction when available and appends a CreditEvent,
  so the aggregates are a materialized view that can always be replayed from
  the trail.

LOCKING CONTRACT:
  Purchase, Queue and DeletePackage acquire the member lock themselves.
  Consume, Refund and PeekFunding are building blocks for the attendance
  recorder, which already holds the lock around its revert-then-reapply
  sequence; they must be called with the member lock held.

FAILURE PROPAGATION:
  Ledger mutations never swallow errors. The only lookup that may be skipped
  is restoring a refunded credit to a package that has since been deleted;
  the member counters are still reverted.

SEE ALSO:
  - activator.go: FIFO promotion on exhaustion
  - attendance/recorder.go: the orchestration on top of Consume/Refund
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// CreditLedger applies credit state transitions against a Store.
type CreditLedger struct {
	store Store
	locks *KeyedMutex
	now   func() time.Time
}

// NewCreditLedger creates a ledger over the given store. All collaborators
// mutating the same members must share the same KeyedMutex.
func NewCreditLedger(store Store, locks *KeyedMutex) *CreditLedger {
	return &CreditLedger{store: store, locks: locks, now: time.Now}
}

// Locks exposes the shared per-member mutex for collaborators that own
// multi-step sequences (the attendance recorder, reconciliation jobs).
func (l *CreditLedger) Locks() *KeyedMutex { return l.locks }

// Store exposes the underlying store for read-only collaborators.
func (l *CreditLedger) Store() Store { return l.store }

// inTx runs fn inside a store transaction when the store supports one.
func (l *CreditLedger) inTx(ctx context.Context, fn func(Store) error) error {
	if tx, ok := l.store.(TxStore); ok {
		return tx.WithTx(ctx, fn)
	}
	return fn(l.store)
}

// =============================================================================
// PURCHASE / QUEUE
// =============================================================================

// Purchase creates the member's first package and points the aggregates at
// it. Fails with ErrDuplicatePackage if the member owns any package row,
// whatever its balance: one purchase at a time is the business rule, and
// follow-up packages go through Queue.
func (l *CreditLedger) Purchase(ctx context.Context, memberID int64, planName string) (*MemberPackage, error) {
	if planName == "" {
		return nil, &ValidationError{Field: "plan_name", Reason: "is required"}
	}

	l.locks.Lock(memberID)
	defer l.locks.Unlock(memberID)

	var pkg *MemberPackage
	err := l.inTx(ctx, func(s Store) error {
		member, err := s.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrMemberNotFound
		}

		plan, err := s.GetPlan(ctx, planName)
		if err != nil {
			return err
		}
		if plan == nil {
			return ErrPlanNotFound
		}

		owned, err := s.PackagesByMember(ctx, memberID)
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			return ErrDuplicatePackage
		}

		pkg = &MemberPackage{
			MemberID:         memberID,
			PackageName:      plan.Name,
			LessonCount:      plan.LessonCount,
			RemainingLessons: plan.LessonCount,
			Price:            plan.Price,
			PurchasedAt:      l.now(),
			IsActive:         true,
		}
		if err := s.InsertPackage(ctx, pkg); err != nil {
			return err
		}

		member.TotalLessons = plan.LessonCount
		member.AttendedCount = 0
		member.ExtraCount = 0
		member.UsedCount = 0
		member.MembershipType = plan.Name
		member.deriveRemaining()
		if err := s.UpdateMember(ctx, member); err != nil {
			return err
		}

		if err := s.InsertPayment(ctx, &Payment{
			ID:        uuid.NewString(),
			MemberID:  memberID,
			PackageID: pkg.ID,
			Amount:    plan.Price,
			PaidAt:    l.now(),
		}); err != nil {
			return err
		}

		return s.AppendEvent(ctx, &CreditEvent{
			ID:        uuid.NewString(),
			MemberID:  memberID,
			PackageID: pkg.ID,
			Type:      EventPurchase,
			Delta:     plan.LessonCount,
			CreatedAt: l.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return pkg, nil
}

// Queue adds a Waiting package behind the member's existing ones. The
// aggregates are untouched; the balance joins them at activation time.
func (l *CreditLedger) Queue(ctx context.Context, memberID int64, planName string) (*MemberPackage, error) {
	if planName == "" {
		return nil, &ValidationError{Field: "plan_name", Reason: "is required"}
	}

	l.locks.Lock(memberID)
	defer l.locks.Unlock(memberID)

	var pkg *MemberPackage
	err := l.inTx(ctx, func(s Store) error {
		member, err := s.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrMemberNotFound
		}

		plan, err := s.GetPlan(ctx, planName)
		if err != nil {
			return err
		}
		if plan == nil {
			return ErrPlanNotFound
		}

		owned, err := s.PackagesByMember(ctx, memberID)
		if err != nil {
			return err
		}
		if len(owned) == 0 {
			return ErrNoPackage
		}

		pkg = &MemberPackage{
			MemberID:         memberID,
			PackageName:      plan.Name,
			LessonCount:      plan.LessonCount,
			RemainingLessons: plan.LessonCount,
			Price:            plan.Price,
			PurchasedAt:      l.now(),
			IsActive:         false,
		}
		if err := s.InsertPackage(ctx, pkg); err != nil {
			return err
		}

		if err := s.InsertPayment(ctx, &Payment{
			ID:        uuid.NewString(),
			MemberID:  memberID,
			PackageID: pkg.ID,
			Amount:    plan.Price,
			PaidAt:    l.now(),
		}); err != nil {
			return err
		}

		return s.AppendEvent(ctx, &CreditEvent{
			ID:        uuid.NewString(),
			MemberID:  memberID,
			PackageID: pkg.ID,
			Type:      EventQueue,
			Delta:     plan.LessonCount,
			CreatedAt: l.now(),
		})
	})
	if err != nil {
		return nil, err
	}
	return pkg, nil
}

// =============================================================================
// CONSUME / REFUND
// =============================================================================

// PeekFunding returns the package that would fund the next included credit:
// the oldest (lowest id) package with remaining balance, or nil when the
// member is exhausted. Read-only; caller must hold the member lock and
// supplies its (possibly transaction-scoped) store.
func (l *CreditLedger) PeekFunding(ctx context.Context, s Store, memberID int64) (*MemberPackage, error) {
	pkgs, err := s.PackagesByMember(ctx, memberID)
	if err != nil {
		return nil, err
	}
	return oldestWithBalance(pkgs), nil
}

func oldestWithBalance(pkgs []MemberPackage) *MemberPackage {
	for i := range pkgs {
		if pkgs[i].RemainingLessons > 0 {
			return &pkgs[i]
		}
	}
	return nil
}

// Consume applies one attendance effect: included draws a credit from the
// oldest package with balance, extra only bumps the extra counter. An
// included consume that finds no balance anywhere fails with NoCreditError
// rather than silently doing nothing. When the consume leaves the member
// exhausted, the next Waiting package is promoted in the same transaction.
//
// refID is the attendance row the effect belongs to, recorded on the event
// trail. Caller must hold the member lock and supplies its
// transaction-scoped store; Consume participates in the caller's
// transaction instead of opening its own.
func (l *CreditLedger) Consume(ctx context.Context, s Store, memberID int64, e Effect, refID int64) error {
	if !e.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "must be included or extra"}
	}

	member, err := s.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrMemberNotFound
	}

	var funded *MemberPackage
	if e.DrawsCredit() {
		pkgs, err := s.PackagesByMember(ctx, memberID)
		if err != nil {
			return err
		}
		funded = oldestWithBalance(pkgs)
		if funded == nil {
			return &NoCreditError{MemberID: memberID}
		}
		funded.RemainingLessons--
		if err := s.UpdatePackage(ctx, funded); err != nil {
			return err
		}
	}

	applyDelta(member, DeltaOf(e))
	if err := s.UpdateMember(ctx, member); err != nil {
		return err
	}

	ev := &CreditEvent{
		ID:          uuid.NewString(),
		MemberID:    memberID,
		Type:        EventConsume,
		Kind:        e.Kind,
		Attended:    e.Attended,
		ReferenceID: refID,
		CreatedAt:   l.now(),
	}
	if funded != nil {
		ev.PackageID = funded.ID
		ev.Delta = -1
	}
	if err := s.AppendEvent(ctx, ev); err != nil {
		return err
	}

	if e.DrawsCredit() && member.Exhausted() {
		_, err := l.promoteNext(ctx, s, member)
		return err
	}
	return nil
}

// Refund is the exact inverse of Consume. The credit goes back to the
// package that funded the original row (the attendance snapshot), capped at
// its lesson count; if that package has since been deleted the counter
// revert still happens and the package restore is skipped. Caller must hold
// the member lock and supplies its transaction-scoped store.
func (l *CreditLedger) Refund(ctx context.Context, s Store, memberID int64, e Effect, packageID, refID int64) error {
	if !e.Kind.Valid() {
		return &ValidationError{Field: "kind", Reason: "must be included or extra"}
	}

	member, err := s.GetMember(ctx, memberID)
	if err != nil {
		return err
	}
	if member == nil {
		return ErrMemberNotFound
	}

	var restored *MemberPackage
	if e.DrawsCredit() && packageID != 0 {
		// Secondary lookup: the snapshot package may be gone.
		pkg, err := s.GetPackage(ctx, packageID)
		if err != nil {
			return err
		}
		if pkg != nil && pkg.RemainingLessons < pkg.LessonCount {
			pkg.RemainingLessons++
			if err := s.UpdatePackage(ctx, pkg); err != nil {
				return err
			}
			restored = pkg
		}
	}

	applyDelta(member, DeltaOf(e).Neg())
	if err := s.UpdateMember(ctx, member); err != nil {
		return err
	}

	ev := &CreditEvent{
		ID:          uuid.NewString(),
		MemberID:    memberID,
		Type:        EventRefund,
		Kind:        e.Kind,
		Attended:    e.Attended,
		ReferenceID: refID,
		CreatedAt:   l.now(),
	}
	if restored != nil {
		ev.PackageID = restored.ID
		ev.Delta = 1
	}
	return s.AppendEvent(ctx, ev)
}

// applyDelta moves the member counters and re-derives the remaining count.
// Counters floor at zero so a stray double-refund cannot go negative.
func applyDelta(m *Member, d Delta) {
	m.UsedCount = floor0(m.UsedCount + d.Used)
	m.AttendedCount = floor0(m.AttendedCount + d.Attended)
	m.ExtraCount = floor0(m.ExtraCount + d.Extra)
	m.deriveRemaining()
}

func floor0(n int) int {
	if n < 0 {
		return 0
	}
	return n
}

// =============================================================================
// DELETE PACKAGE
// =============================================================================

// DeletePackage hard-deletes a package row and zeroes the owning member's
// aggregates, leaving them labelled MembershipNone. If the deleted package
// was the active one, the next Waiting package is promoted and its totals
// land on top of the zeroed state.
func (l *CreditLedger) DeletePackage(ctx context.Context, packageID int64) error {
	// Resolve the owner before locking; the row is re-read under the lock.
	owner, err := l.store.GetPackage(ctx, packageID)
	if err != nil {
		return err
	}
	if owner == nil {
		return ErrPackageNotFound
	}

	l.locks.Lock(owner.MemberID)
	defer l.locks.Unlock(owner.MemberID)

	return l.inTx(ctx, func(s Store) error {
		pkg, err := s.GetPackage(ctx, packageID)
		if err != nil {
			return err
		}
		if pkg == nil {
			return ErrPackageNotFound
		}

		member, err := s.GetMember(ctx, pkg.MemberID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrMemberNotFound
		}

		member.TotalLessons = 0
		member.AttendedCount = 0
		member.ExtraCount = 0
		member.UsedCount = 0
		member.MembershipType = MembershipNone
		member.deriveRemaining()
		if err := s.UpdateMember(ctx, member); err != nil {
			return err
		}

		if err := s.DeletePackage(ctx, pkg.ID); err != nil {
			return err
		}

		if err := s.AppendEvent(ctx, &CreditEvent{
			ID:        uuid.NewString(),
			MemberID:  member.ID,
			PackageID: pkg.ID,
			Type:      EventDeletePackage,
			Delta:     -pkg.RemainingLessons,
			CreatedAt: l.now(),
		}); err != nil {
			return err
		}

		if pkg.IsActive {
			_, err := l.promoteNext(ctx, s, member)
			return err
		}
		return nil
	})
}
