/*
Package reconcile holds batch repair routines for stored aggregates.

PURPOSE:
  Two idempotent jobs, both operating on already-stored state:

  CleanupDuplicatePackages: members occasionally end up with several rows
  for the same package name (double submits, historical imports). The most
  recent row (highest id) wins; the rest are deleted. Surviving balances
  are assumed to already reflect reality, so no counters move.

  BackfillPackage: members migrated from the pre-package era can carry
  non-zero lesson totals with no package row at all. A one-time retroactive
  package is synthesized to match the current totals.

  Both jobs are safe to re-run; a second pass finds nothing to do. They are
  invoked through admin endpoints, not on a schedule.
*/
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/studio-ledger/ledger"
)

// Jobs bundles the repair routines around a ledger.
type Jobs struct {
	led *ledger.CreditLedger
	log *zap.Logger
	now func() time.Time
}

func NewJobs(led *ledger.CreditLedger, log *zap.Logger) *Jobs {
	if log == nil {
		log = zap.NewNop()
	}
	return &Jobs{led: led, log: log, now: time.Now}
}

// CleanupDuplicatePackages deletes all but the highest-id row in every
// (member, package name) group with more than one row. Returns the number
// of rows deleted.
func (j *Jobs) CleanupDuplicatePackages(ctx context.Context) (int, error) {
	all, err := j.led.Store().AllPackages(ctx)
	if err != nil {
		return 0, err
	}

	type group struct {
		member int64
		name   string
	}
	latest := make(map[group]int64)
	for _, p := range all {
		g := group{member: p.MemberID, name: p.PackageName}
		if p.ID > latest[g] {
			latest[g] = p.ID
		}
	}

	deleted := 0
	for _, p := range all {
		g := group{member: p.MemberID, name: p.PackageName}
		if p.ID == latest[g] {
			continue
		}

		if err := j.deleteRow(ctx, p); err != nil {
			return deleted, err
		}
		deleted++
		j.log.Info("deleted duplicate package",
			zap.Int64("member_id", p.MemberID),
			zap.Int64("package_id", p.ID),
			zap.String("package_name", p.PackageName),
			zap.Int64("kept_id", latest[g]))
	}
	return deleted, nil
}

// deleteRow removes one duplicate row under the owner's lock. Unlike
// CreditLedger.DeletePackage this leaves the member counters alone: the
// surviving row is the authoritative one.
func (j *Jobs) deleteRow(ctx context.Context, p ledger.MemberPackage) error {
	locks := j.led.Locks()
	locks.Lock(p.MemberID)
	defer locks.Unlock(p.MemberID)

	return j.inTx(ctx, func(s ledger.Store) error {
		row, err := s.GetPackage(ctx, p.ID)
		if err != nil {
			return err
		}
		if row == nil {
			return nil // already gone, someone repaired first
		}
		if err := s.DeletePackage(ctx, row.ID); err != nil {
			return err
		}
		return s.AppendEvent(ctx, &ledger.CreditEvent{
			ID:        uuid.NewString(),
			MemberID:  row.MemberID,
			PackageID: row.ID,
			Type:      ledger.EventDeletePackage,
			Delta:     -row.RemainingLessons,
			CreatedAt: j.now(),
		})
	})
}

// BackfillPackage synthesizes one retroactive package for a member whose
// counters predate the package model: non-zero totals, zero package rows.
// Returns (nil, nil) when there is nothing to repair.
func (j *Jobs) BackfillPackage(ctx context.Context, memberID int64) (*ledger.MemberPackage, error) {
	locks := j.led.Locks()
	locks.Lock(memberID)
	defer locks.Unlock(memberID)

	var pkg *ledger.MemberPackage
	err := j.inTx(ctx, func(s ledger.Store) error {
		member, err := s.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return ledger.ErrMemberNotFound
		}
		if member.TotalLessons == 0 && member.RemainingLessons == 0 {
			return nil
		}

		owned, err := s.PackagesByMember(ctx, memberID)
		if err != nil {
			return err
		}
		if len(owned) > 0 {
			return nil
		}

		name := member.MembershipType
		if name == "" || name == ledger.MembershipNone {
			name = "Retroaktif"
		}
		pkg = &ledger.MemberPackage{
			MemberID:         memberID,
			PackageName:      name,
			LessonCount:      member.TotalLessons,
			RemainingLessons: member.RemainingLessons,
			PurchasedAt:      j.now(),
			IsActive:         true,
		}
		if err := s.InsertPackage(ctx, pkg); err != nil {
			return err
		}

		if err := s.AppendEvent(ctx, &ledger.CreditEvent{
			ID:        uuid.NewString(),
			MemberID:  memberID,
			PackageID: pkg.ID,
			Type:      ledger.EventBackfill,
			Delta:     pkg.RemainingLessons,
			CreatedAt: j.now(),
		}); err != nil {
			return err
		}

		j.log.Info("backfilled retroactive package",
			zap.Int64("member_id", memberID),
			zap.Int64("package_id", pkg.ID),
			zap.Int("lesson_count", pkg.LessonCount))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pkg, nil
}

func (j *Jobs) inTx(ctx context.Context, fn func(ledger.Store) error) error {
	if tx, ok := j.led.Store().(ledger.TxStore); ok {
		return tx.WithTx(ctx, fn)
	}
	return fn(j.led.Store())
}
