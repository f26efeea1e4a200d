/*
activator.go - FIFO promotion of Waiting packages

PURPOSE:
  A member's packages move Waiting -> Active -> Exhausted. Exhausted is
  implicit: the member has activated credits (TotalLessons > 0) and none
  left (RemainingLessons == 0). Whenever an included consume lands the
  member there, the oldest Waiting package is promoted: purchase order is
  the queue order, and package ids ascend with purchases, so "oldest" is
  the lowest id.

  PackageActivator exposes the same promotion as an idempotent
  administrative call; the ledger itself fires it inline after consumes and
  package deletions.

SEE ALSO:
  - ledger.go: Consume and DeletePackage call promoteNext
*/
package ledger

import (
	"context"

	"github.com/google/uuid"
)

// PackageActivator promotes Waiting packages for exhausted members.
type PackageActivator struct {
	led *CreditLedger
}

func NewPackageActivator(led *CreditLedger) *PackageActivator {
	return &PackageActivator{led: led}
}

// ActivateWaiting promotes the member's oldest Waiting package if the
// member is exhausted. It is a no-op, not an error, when the member still
// has balance, owns no Waiting package, or doesn't exist at all in a state
// worth repairing - the call is safe to repeat.
func (a *PackageActivator) ActivateWaiting(ctx context.Context, memberID int64) error {
	a.led.locks.Lock(memberID)
	defer a.led.locks.Unlock(memberID)

	return a.led.inTx(ctx, func(s Store) error {
		member, err := s.GetMember(ctx, memberID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrMemberNotFound
		}
		if !member.Exhausted() {
			return nil
		}
		_, err = a.led.promoteNext(ctx, s, member)
		return err
	})
}

// promoteNext activates the member's oldest Waiting package: full balance,
// IsActive set, its credits added to the member's totals, membership label
// updated. Drained active packages are retired first so at most one package
// stays active. Returns nil when nothing is Waiting. Caller holds the
// member lock and supplies the transactional store.
func (l *CreditLedger) promoteNext(ctx context.Context, s Store, member *Member) (*MemberPackage, error) {
	pkgs, err := s.PackagesByMember(ctx, member.ID)
	if err != nil {
		return nil, err
	}

	for i := range pkgs {
		if pkgs[i].IsActive && pkgs[i].RemainingLessons == 0 {
			pkgs[i].IsActive = false
			if err := s.UpdatePackage(ctx, &pkgs[i]); err != nil {
				return nil, err
			}
		}
	}

	// A retired package keeps isActive=false with a zero balance; only the
	// full-balance ones are genuinely queued.
	var next *MemberPackage
	for i := range pkgs {
		if pkgs[i].Waiting() && pkgs[i].RemainingLessons > 0 {
			next = &pkgs[i]
			break
		}
	}
	if next == nil {
		return nil, nil
	}

	next.IsActive = true
	next.RemainingLessons = next.LessonCount
	if err := s.UpdatePackage(ctx, next); err != nil {
		return nil, err
	}

	member.TotalLessons += next.LessonCount
	member.MembershipType = next.PackageName
	member.deriveRemaining()
	if err := s.UpdateMember(ctx, member); err != nil {
		return nil, err
	}

	if err := s.AppendEvent(ctx, &CreditEvent{
		ID:        uuid.NewString(),
		MemberID:  member.ID,
		PackageID: next.ID,
		Type:      EventActivate,
		Delta:     next.LessonCount,
		CreatedAt: l.now(),
	}); err != nil {
		return nil, err
	}
	return next, nil
}
