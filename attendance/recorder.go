/*
Package attendance orchestrates the credit ledger per attendance event.

PURPOSE:
  The Recorder owns the protocol around every lesson attendance row:

    Record: validate -> peek funding package -> insert row -> consume
    Update: load old row -> refund old effect -> consume new effect ->
            re-snapshot funding -> persist merged fields
    Delete: load row -> refund its effect -> delete row

  Update and Delete share the same revert discipline: an attendance row's
  effect is always reversed before the row changes or disappears, so the
  member counters and package balances cannot drift from the rows that
  produced them.

ATOMICITY:
  Each operation runs under the member's lock and inside one store
  transaction. A consume that fails (exhausted member) aborts the whole
  Record, leaving no orphan attendance row behind.

SEE ALSO:
  - ledger/ledger.go: Consume/Refund building blocks
  - ledger/effect.go: the 2x2 effect matrix
*/
package attendance

import (
	"context"
	"time"

	"github.com/warp/studio-ledger/ledger"
)

// Recorder records, edits and deletes lesson attendance.
type Recorder struct {
	led *ledger.CreditLedger
	now func() time.Time
}

func NewRecorder(led *ledger.CreditLedger) *Recorder {
	return &Recorder{led: led, now: time.Now}
}

// RecordArgs are the validated arguments for one attendance event.
type RecordArgs struct {
	MemberID   int64
	LessonID   int64
	LessonDate time.Time
	Attended   bool
	Kind       ledger.Kind
	Notes      string
}

// UpdateArgs carries the editable fields of an existing row.
type UpdateArgs struct {
	Attended bool
	Kind     ledger.Kind
	Notes    string
}

// =============================================================================
// RECORD
// =============================================================================

// Record creates one attendance row and applies its credit effect.
//
// The funding package is resolved before the consume so the row snapshots
// which package paid for it; the snapshot survives later package deletion.
// Attended rows also append a check-in to the door log.
func (r *Recorder) Record(ctx context.Context, args RecordArgs) (*ledger.LessonAttendance, error) {
	if args.MemberID == 0 {
		return nil, &ledger.ValidationError{Field: "member_id", Reason: "is required"}
	}
	if args.LessonID == 0 {
		return nil, &ledger.ValidationError{Field: "lesson_id", Reason: "is required"}
	}
	if args.LessonDate.IsZero() {
		return nil, &ledger.ValidationError{Field: "lesson_date", Reason: "is required"}
	}
	if !args.Kind.Valid() {
		return nil, &ledger.ValidationError{Field: "kind", Reason: "must be included or extra"}
	}

	locks := r.led.Locks()
	locks.Lock(args.MemberID)
	defer locks.Unlock(args.MemberID)

	day := ledger.Day(args.LessonDate)

	var row *ledger.LessonAttendance
	err := r.inTx(ctx, func(s ledger.Store) error {
		member, err := s.GetMember(ctx, args.MemberID)
		if err != nil {
			return err
		}
		if member == nil {
			return ledger.ErrMemberNotFound
		}

		lesson, err := s.GetLesson(ctx, args.LessonID)
		if err != nil {
			return err
		}
		if lesson == nil {
			return ledger.ErrLessonNotFound
		}

		existing, err := s.FindAttendance(ctx, args.MemberID, args.LessonID, day)
		if err != nil {
			return err
		}
		if existing != nil {
			return &ledger.DuplicateAttendanceError{
				MemberID:   args.MemberID,
				LessonID:   args.LessonID,
				ExistingID: existing.ID,
			}
		}

		row = &ledger.LessonAttendance{
			MemberID:   args.MemberID,
			LessonID:   args.LessonID,
			LessonDate: day,
			Attended:   args.Attended,
			Kind:       args.Kind,
			Notes:      args.Notes,
			CreatedAt:  r.now(),
		}

		effect := ledger.Effect{Kind: args.Kind, Attended: args.Attended}
		if effect.DrawsCredit() {
			funding, err := r.led.PeekFunding(ctx, s, args.MemberID)
			if err != nil {
				return err
			}
			if funding != nil {
				id := funding.ID
				row.PackageID = &id
				row.PackageName = funding.PackageName
			}
		}

		if err := s.InsertAttendance(ctx, row); err != nil {
			return err
		}

		if err := r.led.Consume(ctx, s, args.MemberID, effect, row.ID); err != nil {
			return err
		}

		if args.Attended {
			return s.InsertCheckIn(ctx, &ledger.CheckIn{
				MemberID:    args.MemberID,
				CheckInTime: r.now(),
				Notes:       lesson.Name,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// =============================================================================
// UPDATE
// =============================================================================

// Update reverts the row's old effect, applies the new one, and persists
// the merged fields. The four (attended, kind) transitions each net out to
// a distinct counter delta, but all of them flow through the same
// refund/consume pair.
func (r *Recorder) Update(ctx context.Context, id int64, args UpdateArgs) (*ledger.LessonAttendance, error) {
	if !args.Kind.Valid() {
		return nil, &ledger.ValidationError{Field: "kind", Reason: "must be included or extra"}
	}

	// Resolve the member outside the lock from the row itself.
	row, err := r.led.Store().GetAttendance(ctx, id)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ledger.ErrAttendanceNotFound
	}

	locks := r.led.Locks()
	locks.Lock(row.MemberID)
	defer locks.Unlock(row.MemberID)

	var updated *ledger.LessonAttendance
	err = r.inTx(ctx, func(s ledger.Store) error {
		prev, err := s.GetAttendance(ctx, id)
		if err != nil {
			return err
		}
		if prev == nil {
			return ledger.ErrAttendanceNotFound
		}

		oldEffect := ledger.Effect{Kind: prev.Kind, Attended: prev.Attended}
		oldPackage := int64(0)
		if prev.PackageID != nil {
			oldPackage = *prev.PackageID
		}
		if err := r.led.Refund(ctx, s, prev.MemberID, oldEffect, oldPackage, prev.ID); err != nil {
			return err
		}

		next := *prev
		next.Attended = args.Attended
		next.Kind = args.Kind
		next.Notes = args.Notes
		next.PackageID = nil
		next.PackageName = ""

		newEffect := ledger.Effect{Kind: args.Kind, Attended: args.Attended}
		if newEffect.DrawsCredit() {
			funding, err := r.led.PeekFunding(ctx, s, prev.MemberID)
			if err != nil {
				return err
			}
			if funding != nil {
				fid := funding.ID
				next.PackageID = &fid
				next.PackageName = funding.PackageName
			}
		}

		if err := r.led.Consume(ctx, s, prev.MemberID, newEffect, prev.ID); err != nil {
			return err
		}

		if err := s.UpdateAttendance(ctx, &next); err != nil {
			return err
		}
		updated = &next
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// =============================================================================
// DELETE
// =============================================================================

// Delete reverts the row's credit effect and removes it. The refund keeps
// deletion symmetric with Update's revert discipline; deleting a row the
// member paid a credit for hands the credit back.
func (r *Recorder) Delete(ctx context.Context, id int64) error {
	row, err := r.led.Store().GetAttendance(ctx, id)
	if err != nil {
		return err
	}
	if row == nil {
		return ledger.ErrAttendanceNotFound
	}

	locks := r.led.Locks()
	locks.Lock(row.MemberID)
	defer locks.Unlock(row.MemberID)

	return r.inTx(ctx, func(s ledger.Store) error {
		prev, err := s.GetAttendance(ctx, id)
		if err != nil {
			return err
		}
		if prev == nil {
			return ledger.ErrAttendanceNotFound
		}

		effect := ledger.Effect{Kind: prev.Kind, Attended: prev.Attended}
		pkgID := int64(0)
		if prev.PackageID != nil {
			pkgID = *prev.PackageID
		}
		if err := r.led.Refund(ctx, s, prev.MemberID, effect, pkgID, prev.ID); err != nil {
			return err
		}

		return s.DeleteAttendance(ctx, prev.ID)
	})
}

func (r *Recorder) inTx(ctx context.Context, fn func(ledger.Store) error) error {
	if tx, ok := r.led.Store().(ledger.TxStore); ok {
		return tx.WithTx(ctx, fn)
	}
	return fn(r.led.Store())
}
