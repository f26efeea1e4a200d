package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/studio-ledger/api"
	"github.com/warp/studio-ledger/ledger"
	"github.com/warp/studio-ledger/ledger/store"
)

func TestScheduler_SweepRemovesDuplicatesAndPromotes(t *testing.T) {
	// GIVEN a member whose active package drained without an inline
	// promotion and a second member with duplicate package rows
	ctx := context.Background()
	s := store.NewTxMemory()
	h := api.NewHandler(s, nil)

	drained := &ledger.Member{Name: "Ayşe", MembershipType: "Grup2",
		TotalLessons: 2, UsedCount: 2, AttendedCount: 2, IsActive: true}
	require.NoError(t, s.InsertMember(ctx, drained))
	require.NoError(t, s.InsertPackage(ctx, &ledger.MemberPackage{
		MemberID: drained.ID, PackageName: "Grup2", LessonCount: 2,
		RemainingLessons: 0, PurchasedAt: time.Now(), IsActive: true,
	}))
	require.NoError(t, s.InsertPackage(ctx, &ledger.MemberPackage{
		MemberID: drained.ID, PackageName: "Grup12", LessonCount: 12,
		RemainingLessons: 12, Price: decimal.NewFromInt(1440), PurchasedAt: time.Now(),
	}))

	duped := &ledger.Member{Name: "Mehmet", MembershipType: "Grup8",
		TotalLessons: 8, RemainingLessons: 8, IsActive: true}
	require.NoError(t, s.InsertMember(ctx, duped))
	for i := 0; i < 2; i++ {
		require.NoError(t, s.InsertPackage(ctx, &ledger.MemberPackage{
			MemberID: duped.ID, PackageName: "Grup8", LessonCount: 8,
			RemainingLessons: 8, PurchasedAt: time.Now(), IsActive: true,
		}))
	}

	// WHEN the sweep runs once
	rs := api.NewReconciliationScheduler(h)
	deleted, promoted := rs.RunNow()

	// THEN the counts reflect what actually changed: one duplicate row
	// removed, one queued package promoted. Mehmet still has credit and
	// is not touched by the activation pass.
	assert.Equal(t, 1, deleted)
	assert.Equal(t, 1, promoted)

	// AND the queued package is promoted
	m, err := s.GetMember(ctx, drained.ID)
	require.NoError(t, err)
	assert.Equal(t, "Grup12", m.MembershipType)
	assert.Equal(t, 12, m.RemainingLessons)

	// AND the duplicate row is gone
	pkgs, err := s.PackagesByMember(ctx, duped.ID)
	require.NoError(t, err)
	assert.Len(t, pkgs, 1)

	// AND a repeat pass over the clean state reports nothing
	deleted, promoted = rs.RunNow()
	assert.Zero(t, deleted)
	assert.Zero(t, promoted)
}

func TestScheduler_StartDisabled_DoesNothing(t *testing.T) {
	h := api.NewHandler(store.NewTxMemory(), nil)
	rs := api.NewReconciliationScheduler(h)
	rs.Enabled = false

	rs.Start()
	rs.Stop()
}
