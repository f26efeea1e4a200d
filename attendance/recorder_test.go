package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/studio-ledger/attendance"
	"github.com/warp/studio-ledger/ledger"
	"github.com/warp/studio-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fixture struct {
	led      *ledger.CreditLedger
	recorder *attendance.Recorder
	store    *store.TxMemory
	member   *ledger.Member
	lesson   *ledger.Lesson
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := store.NewTxMemory()
	led := ledger.NewCreditLedger(mem, ledger.NewKeyedMutex())

	member := &ledger.Member{Name: "Ayşe", MembershipType: ledger.MembershipNone, IsActive: true}
	require.NoError(t, mem.InsertMember(ctx, member))

	lesson := &ledger.Lesson{Name: "Pilates", Schedule: "Mon/Wed 19:00", Capacity: 12}
	require.NoError(t, mem.InsertLesson(ctx, lesson))

	return &fixture{
		led:      led,
		recorder: attendance.NewRecorder(led),
		store:    mem,
		member:   member,
		lesson:   lesson,
	}
}

func (f *fixture) buyPlan(t *testing.T, name string, lessons int) *ledger.MemberPackage {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SavePlan(ctx, &ledger.Plan{
		Name:        name,
		LessonCount: lessons,
		Price:       decimal.NewFromInt(int64(lessons) * 100),
	}))
	pkg, err := f.led.Purchase(ctx, f.member.ID, name)
	require.NoError(t, err)
	return pkg
}

func (f *fixture) queuePlan(t *testing.T, name string, lessons int) *ledger.MemberPackage {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, f.store.SavePlan(ctx, &ledger.Plan{
		Name:        name,
		LessonCount: lessons,
		Price:       decimal.NewFromInt(int64(lessons) * 100),
	}))
	pkg, err := f.led.Queue(ctx, f.member.ID, name)
	require.NoError(t, err)
	return pkg
}

func (f *fixture) record(t *testing.T, day time.Time, attended bool, kind ledger.Kind) *ledger.LessonAttendance {
	t.Helper()
	row, err := f.recorder.Record(context.Background(), attendance.RecordArgs{
		MemberID:   f.member.ID,
		LessonID:   f.lesson.ID,
		LessonDate: day,
		Attended:   attended,
		Kind:       kind,
	})
	require.NoError(t, err)
	return row
}

func (f *fixture) reload(t *testing.T) *ledger.Member {
	t.Helper()
	m, err := f.store.GetMember(context.Background(), f.member.ID)
	require.NoError(t, err)
	require.NotNil(t, m)

	want := m.TotalLessons - m.UsedCount
	if want < 0 {
		want = 0
	}
	require.Equal(t, want, m.RemainingLessons, "remaining must derive from total and used")
	return m
}

func day(n int) time.Time {
	return time.Date(2026, time.March, n, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// RECORD
// =============================================================================

func TestRecord_IncludedAttended_ConsumesAndChecksIn(t *testing.T) {
	// GIVEN: A member with an active Grup8
	// WHEN: Attending an included lesson
	// THEN: One credit consumed, attendance and door log written

	f := newFixture(t)
	pkg := f.buyPlan(t, "Grup8", 8)
	ctx := context.Background()

	row := f.record(t, day(10), true, ledger.KindIncluded)
	require.NotNil(t, row.PackageID)
	assert.Equal(t, pkg.ID, *row.PackageID)
	assert.Equal(t, "Grup8", row.PackageName)

	m := f.reload(t)
	assert.Equal(t, 1, m.AttendedCount)
	assert.Equal(t, 1, m.UsedCount)
	assert.Equal(t, 7, m.RemainingLessons)

	checkIns, err := f.store.CheckInsByMember(ctx, f.member.ID)
	require.NoError(t, err)
	require.Len(t, checkIns, 1)
	assert.Equal(t, "Pilates", checkIns[0].Notes)
}

func TestRecord_IncludedAbsent_NoChargeNoCheckIn(t *testing.T) {
	// GIVEN: An active package
	// WHEN: Marking an included lesson as missed
	// THEN: No credit burns, no snapshot, no door log entry

	f := newFixture(t)
	f.buyPlan(t, "Grup8", 8)

	row := f.record(t, day(10), false, ledger.KindIncluded)
	assert.Nil(t, row.PackageID, "a no-show funds nothing")

	m := f.reload(t)
	assert.Equal(t, 0, m.AttendedCount)
	assert.Equal(t, 0, m.UsedCount)
	assert.Equal(t, 8, m.RemainingLessons)

	checkIns, err := f.store.CheckInsByMember(context.Background(), f.member.ID)
	require.NoError(t, err)
	assert.Empty(t, checkIns)
}

func TestRecord_Extra_NoSnapshotNoCredit(t *testing.T) {
	f := newFixture(t)
	f.buyPlan(t, "Grup8", 8)

	row := f.record(t, day(10), true, ledger.KindExtra)
	assert.Nil(t, row.PackageID)
	assert.Empty(t, row.PackageName)

	m := f.reload(t)
	assert.Equal(t, 1, m.ExtraCount)
	assert.Equal(t, 0, m.UsedCount)
	assert.Equal(t, 8, m.RemainingLessons)
}

func TestRecord_SameTupleTwice_Conflicts(t *testing.T) {
	// GIVEN: An attendance row for (member, lesson, March 10)
	// WHEN: Recording the same tuple again
	// THEN: DuplicateAttendanceError naming the existing row

	f := newFixture(t)
	f.buyPlan(t, "Grup8", 8)

	first := f.record(t, day(10), true, ledger.KindIncluded)

	_, err := f.recorder.Record(context.Background(), attendance.RecordArgs{
		MemberID:   f.member.ID,
		LessonID:   f.lesson.ID,
		LessonDate: day(10),
		Attended:   false,
		Kind:       ledger.KindIncluded,
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateAttendance)

	var dup *ledger.DuplicateAttendanceError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)

	// The failed attempt must not leak a consume.
	m := f.reload(t)
	assert.Equal(t, 1, m.UsedCount)
}

func TestRecord_DifferentTimesOfSameDay_Conflict(t *testing.T) {
	// Uniqueness is per calendar day, not per instant.
	f := newFixture(t)
	f.buyPlan(t, "Grup8", 8)

	f.record(t, day(10), true, ledger.KindIncluded)

	_, err := f.recorder.Record(context.Background(), attendance.RecordArgs{
		MemberID:   f.member.ID,
		LessonID:   f.lesson.ID,
		LessonDate: day(10).Add(19 * time.Hour),
		Attended:   true,
		Kind:       ledger.KindIncluded,
	})
	assert.ErrorIs(t, err, ledger.ErrDuplicateAttendance)
}

func TestRecord_IncludedWithoutCredit_Fails(t *testing.T) {
	// GIVEN: No package at all
	// WHEN: Recording an included lesson
	// THEN: The error surfaces and no row is written

	f := newFixture(t)

	_, err := f.recorder.Record(context.Background(), attendance.RecordArgs{
		MemberID:   f.member.ID,
		LessonID:   f.lesson.ID,
		LessonDate: day(10),
		Attended:   true,
		Kind:       ledger.KindIncluded,
	})
	assert.ErrorIs(t, err, ledger.ErrNoCredit)

	rows, err := f.store.AttendanceByMember(context.Background(), f.member.ID)
	require.NoError(t, err)
	assert.Empty(t, rows, "transaction must roll the row back")
}

func TestRecord_UnknownLesson_NotFound(t *testing.T) {
	f := newFixture(t)
	f.buyPlan(t, "Grup8", 8)

	_, err := f.recorder.Record(context.Background(), attendance.RecordArgs{
		MemberID:   f.member.ID,
		LessonID:   999,
		LessonDate: day(10),
		Attended:   true,
		Kind:       ledger.KindIncluded,
	})
	assert.ErrorIs(t, err, ledger.ErrLessonNotFound)
}

func TestRecord_InvalidKind_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.recorder.Record(context.Background(), attendance.RecordArgs{
		MemberID:   f.member.ID,
		LessonID:   f.lesson.ID,
		LessonDate: day(10),
		Kind:       ledger.Kind("bonus"),
	})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// UPDATE
// =============================================================================

func TestUpdate_FlipAttendedToAbsent_RestoresCredit(t *testing.T) {
	// GIVEN: An included attended row on a fresh Grup8
	// WHEN: Flipping it to absent
	// THEN: Attended count and the funding package balance both return
	//       exactly to their pre-record values

	f := newFixture(t)
	pkg := f.buyPlan(t, "Grup8", 8)
	row := f.record(t, day(10), true, ledger.KindIncluded)

	updated, err := f.recorder.Update(context.Background(), row.ID, attendance.UpdateArgs{
		Attended: false,
		Kind:     ledger.KindIncluded,
	})
	require.NoError(t, err)
	assert.False(t, updated.Attended)
	assert.Nil(t, updated.PackageID, "an absent row funds nothing")

	m := f.reload(t)
	assert.Equal(t, 0, m.AttendedCount)
	assert.Equal(t, 0, m.UsedCount)
	assert.Equal(t, 8, m.RemainingLessons)

	p, err := f.store.GetPackage(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, p.RemainingLessons)
}

func TestUpdate_FlipBackToAttended_DrawsAgain(t *testing.T) {
	// The credit follows the attended flag both ways.
	f := newFixture(t)
	pkg := f.buyPlan(t, "Grup8", 8)
	row := f.record(t, day(10), true, ledger.KindIncluded)

	_, err := f.recorder.Update(context.Background(), row.ID, attendance.UpdateArgs{
		Attended: false, Kind: ledger.KindIncluded,
	})
	require.NoError(t, err)

	after, err := f.recorder.Update(context.Background(), row.ID, attendance.UpdateArgs{
		Attended: true, Kind: ledger.KindIncluded,
	})
	require.NoError(t, err)
	require.NotNil(t, after.PackageID)
	assert.Equal(t, pkg.ID, *after.PackageID)

	m := f.reload(t)
	assert.Equal(t, 1, m.AttendedCount)
	assert.Equal(t, 7, m.RemainingLessons)
}

func TestUpdate_IncludedToExtra_HandsCreditBack(t *testing.T) {
	// GIVEN: An included attended row
	// WHEN: Reclassifying it as extra
	// THEN: The package credit returns; extra counter takes over

	f := newFixture(t)
	pkg := f.buyPlan(t, "Grup8", 8)
	row := f.record(t, day(10), true, ledger.KindIncluded)

	updated, err := f.recorder.Update(context.Background(), row.ID, attendance.UpdateArgs{
		Attended: true,
		Kind:     ledger.KindExtra,
	})
	require.NoError(t, err)
	assert.Nil(t, updated.PackageID, "extra rows carry no funding snapshot")

	m := f.reload(t)
	assert.Equal(t, 1, m.AttendedCount)
	assert.Equal(t, 0, m.UsedCount)
	assert.Equal(t, 1, m.ExtraCount)
	assert.Equal(t, 8, m.RemainingLessons)

	p, err := f.store.GetPackage(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, p.RemainingLessons)
}

func TestUpdate_RoundTrip_RestoresOriginalState(t *testing.T) {
	// GIVEN: A row edited included -> extra
	// WHEN: Editing it back to included
	// THEN: Counters and package balance match the original record

	f := newFixture(t)
	pkg := f.buyPlan(t, "Grup8", 8)
	row := f.record(t, day(10), true, ledger.KindIncluded)
	before := f.reload(t)

	_, err := f.recorder.Update(context.Background(), row.ID, attendance.UpdateArgs{
		Attended: true, Kind: ledger.KindExtra,
	})
	require.NoError(t, err)

	after, err := f.recorder.Update(context.Background(), row.ID, attendance.UpdateArgs{
		Attended: true, Kind: ledger.KindIncluded,
	})
	require.NoError(t, err)
	require.NotNil(t, after.PackageID)
	assert.Equal(t, pkg.ID, *after.PackageID)

	m := f.reload(t)
	assert.Equal(t, before.AttendedCount, m.AttendedCount)
	assert.Equal(t, before.UsedCount, m.UsedCount)
	assert.Equal(t, before.ExtraCount, m.ExtraCount)
	assert.Equal(t, before.RemainingLessons, m.RemainingLessons)
}

func TestUpdate_MissingRow_NotFound(t *testing.T) {
	f := newFixture(t)
	_, err := f.recorder.Update(context.Background(), 42, attendance.UpdateArgs{
		Attended: true, Kind: ledger.KindIncluded,
	})
	assert.ErrorIs(t, err, ledger.ErrAttendanceNotFound)
}

// =============================================================================
// DELETE
// =============================================================================

func TestDelete_RefundsBeforeRemoval(t *testing.T) {
	// GIVEN: An included attended row
	// WHEN: Deleting it
	// THEN: The credit returns to the package and the counters revert

	f := newFixture(t)
	pkg := f.buyPlan(t, "Grup8", 8)
	row := f.record(t, day(10), true, ledger.KindIncluded)

	require.NoError(t, f.recorder.Delete(context.Background(), row.ID))

	m := f.reload(t)
	assert.Equal(t, 0, m.AttendedCount)
	assert.Equal(t, 0, m.UsedCount)
	assert.Equal(t, 8, m.RemainingLessons)

	p, err := f.store.GetPackage(context.Background(), pkg.ID)
	require.NoError(t, err)
	assert.Equal(t, 8, p.RemainingLessons)

	gone, err := f.store.GetAttendance(context.Background(), row.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestDelete_ThenRecordSameDay_Succeeds(t *testing.T) {
	// The uniqueness slot frees up once the row is gone.
	f := newFixture(t)
	f.buyPlan(t, "Grup8", 8)
	row := f.record(t, day(10), true, ledger.KindIncluded)

	require.NoError(t, f.recorder.Delete(context.Background(), row.ID))
	f.record(t, day(10), true, ledger.KindIncluded)

	m := f.reload(t)
	assert.Equal(t, 1, m.UsedCount)
	assert.Equal(t, 7, m.RemainingLessons)
}

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestScenario_DrainGrup8ThenQueueGrup12(t *testing.T) {
	// GIVEN: A member attending through a full Grup8 with a Grup12 queued
	// WHEN: The eighth included lesson lands
	// THEN: Grup12 activates seamlessly and funds the ninth lesson

	f := newFixture(t)
	f.buyPlan(t, "Grup8", 8)
	grup12 := f.queuePlan(t, "Grup12", 12)

	for i := 1; i <= 8; i++ {
		f.record(t, day(i), true, ledger.KindIncluded)
	}

	m := f.reload(t)
	assert.Equal(t, "Grup12", m.MembershipType)
	assert.Equal(t, 20, m.TotalLessons)
	assert.Equal(t, 8, m.UsedCount)
	assert.Equal(t, 12, m.RemainingLessons)

	ninth := f.record(t, day(9), true, ledger.KindIncluded)
	require.NotNil(t, ninth.PackageID)
	assert.Equal(t, grup12.ID, *ninth.PackageID)

	m = f.reload(t)
	assert.Equal(t, 9, m.AttendedCount)
	assert.Equal(t, 11, m.RemainingLessons)
}

func TestScenario_DeleteOnlyPackage_MemberGoesPaketsiz(t *testing.T) {
	// GIVEN: A member with history on their only package
	// WHEN: The package is deleted
	// THEN: The member reads Paketsiz with zeroed counters, and the
	//       attendance rows keep their snapshot of the deleted package

	f := newFixture(t)
	pkg := f.buyPlan(t, "Grup8", 8)
	row := f.record(t, day(10), true, ledger.KindIncluded)

	require.NoError(t, f.led.DeletePackage(context.Background(), pkg.ID))

	m := f.reload(t)
	assert.Equal(t, ledger.MembershipNone, m.MembershipType)
	assert.Equal(t, 0, m.TotalLessons)
	assert.Equal(t, 0, m.RemainingLessons)

	kept, err := f.store.GetAttendance(context.Background(), row.ID)
	require.NoError(t, err)
	require.NotNil(t, kept)
	require.NotNil(t, kept.PackageID)
	assert.Equal(t, pkg.ID, *kept.PackageID)
	assert.Equal(t, "Grup8", kept.PackageName)
}
