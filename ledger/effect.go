/*
effect.go - The attendance effect matrix

PURPOSE:
  Every attendance row exerts one Effect on the member's counters and (for
  included rows) on a package balance. Recording applies the effect, editing
  reverts the old effect and applies the new one, deleting reverts it. The
  2x2 matrix (included|extra x attended|absent) lives here as one pure
  function instead of branch logic duplicated per call site.

THE MATRIX:
  included / attended: package -1, used +1, attended +1
  included / absent:   no movement (a no-show holds no credit)
  extra    / attended: extra +1
  extra    / absent:   extra +1

  An included row only charges the package while it is marked attended.
  Flipping a row to absent therefore hands the credit back, and flipping
  it to attended draws one again; record-then-revert always returns the
  funding package to its pre-record balance.

SEE ALSO:
  - ledger.go: Consume/Refund apply an Effect and its inverse
*/
package ledger

// Effect is the counter delta one attendance row exerts.
type Effect struct {
	Kind     Kind
	Attended bool
}

// Delta is the decomposed counter movement of an Effect.
type Delta struct {
	Package  int // credits drawn from a package
	Used     int
	Attended int
	Extra    int
}

// DeltaOf returns the counter movement for an effect.
func DeltaOf(e Effect) Delta {
	if e.Kind == KindExtra {
		return Delta{Extra: 1}
	}
	if !e.Attended {
		return Delta{}
	}
	return Delta{Package: 1, Used: 1, Attended: 1}
}

// Neg returns the inverse movement, used for refunds.
func (d Delta) Neg() Delta {
	return Delta{Package: -d.Package, Used: -d.Used, Attended: -d.Attended, Extra: -d.Extra}
}

// DrawsCredit reports whether the effect consumes a package credit.
// Only an attended included row charges the package.
func (e Effect) DrawsCredit() bool { return e.Kind == KindIncluded && e.Attended }
