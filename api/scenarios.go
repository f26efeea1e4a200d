/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates members, plans,
	packages, and attendance rows that demonstrate specific features.

AVAILABLE SCENARIOS:

	new-member:       Single member with an active Grup8 package
	queued-packages:  Member draining one package with the next queued
	drop-in:          Package-less member attending as extra
	legacy-backfill:  Member with counters but no package rows

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Seed the default plan catalog via factory
 3. Create lessons and members
 4. Purchase or queue packages
 5. Optionally record attendance

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "queued-packages"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenario handler

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: shared helpers and error mapping
  - factory/plans.go: plan catalog presets
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/warp/studio-ledger/attendance"
	"github.com/warp/studio-ledger/factory"
	"github.com/warp/studio-ledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-member",
		Name:        "New Member",
		Description: "Single member with a fresh Grup8 package and two classes taken",
		Category:    "membership",
	},
	{
		ID:          "queued-packages",
		Name:        "Queued Packages",
		Description: "Member draining a Grup2 package with a Grup12 queued behind it",
		Category:    "membership",
	},
	{
		ID:          "drop-in",
		Name:        "Drop-In Visitor",
		Description: "Package-less member attending classes as extra",
		Category:    "attendance",
	},
	{
		ID:          "legacy-backfill",
		Name:        "Legacy Backfill",
		Description: "Member migrated with counters only, ready for package backfill",
		Category:    "reconciliation",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}

	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}

	// Scenario ID exists but not in list (shouldn't happen)
	writeJSON(w, http.StatusOK, ScenarioDTO{
		ID:          h.currentScenario,
		Name:        h.currentScenario,
		Description: "Currently loaded scenario",
	})
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ScenarioID string `json:"scenario_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	ctx := r.Context()

	// Reset first
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := factory.SeedDefaults(ctx, h.Store); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to seed plan catalog", err)
		return
	}

	var err error
	switch req.ScenarioID {
	case "new-member":
		err = h.loadNewMemberScenario(ctx)
	case "queued-packages":
		err = h.loadQueuedPackagesScenario(ctx)
	case "drop-in":
		err = h.loadDropInScenario(ctx)
	case "legacy-backfill":
		err = h.loadLegacyBackfillScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewMemberScenario(ctx context.Context) error {
	lesson, err := h.seedLesson(ctx, "Reformer Pilates", "Mon/Wed 10:00")
	if err != nil {
		return err
	}

	m := &ledger.Member{Name: "Ayşe Yılmaz", Phone: "0532 000 0001",
		MembershipType: ledger.MembershipNone, IsActive: true}
	if err := h.Store.InsertMember(ctx, m); err != nil {
		return err
	}

	if _, err := h.Ledger.Purchase(ctx, m.ID, "Grup8"); err != nil {
		return err
	}

	// Two classes already taken this week.
	for _, daysAgo := range []int{7, 2} {
		if err := h.recordDemoAttendance(ctx, m.ID, lesson.ID, daysAgo, true, ledger.KindIncluded); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadQueuedPackagesScenario(ctx context.Context) error {
	lesson, err := h.seedLesson(ctx, "Mat Pilates", "Tue/Thu 18:00")
	if err != nil {
		return err
	}

	m := &ledger.Member{Name: "Mehmet Demir", Phone: "0532 000 0002",
		MembershipType: ledger.MembershipNone, IsActive: true}
	if err := h.Store.InsertMember(ctx, m); err != nil {
		return err
	}

	if _, err := h.Ledger.Purchase(ctx, m.ID, "Grup2"); err != nil {
		return err
	}
	if _, err := h.Ledger.Queue(ctx, m.ID, "Grup12"); err != nil {
		return err
	}

	// Draining the Grup2 promotes the queued Grup12 on the second class.
	for _, daysAgo := range []int{10, 3} {
		if err := h.recordDemoAttendance(ctx, m.ID, lesson.ID, daysAgo, true, ledger.KindIncluded); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadDropInScenario(ctx context.Context) error {
	lesson, err := h.seedLesson(ctx, "Yoga Flow", "Sat 09:00")
	if err != nil {
		return err
	}

	m := &ledger.Member{Name: "Zeynep Kaya", Phone: "0532 000 0003",
		MembershipType: ledger.MembershipNone, IsActive: true}
	if err := h.Store.InsertMember(ctx, m); err != nil {
		return err
	}

	// No package; every visit is an extra.
	for _, daysAgo := range []int{14, 7} {
		if err := h.recordDemoAttendance(ctx, m.ID, lesson.ID, daysAgo, true, ledger.KindExtra); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) loadLegacyBackfillScenario(ctx context.Context) error {
	// Migrated from the old spreadsheet: counters survived, package rows
	// did not. POST /api/admin/backfill/{id} synthesizes the missing row.
	m := &ledger.Member{Name: "Fatma Şahin", Phone: "0532 000 0004",
		MembershipType: ledger.MembershipNone, IsActive: true}
	if err := h.Store.InsertMember(ctx, m); err != nil {
		return err
	}

	m.MembershipType = "Grup8"
	m.TotalLessons = 8
	m.UsedCount = 3
	m.AttendedCount = 3
	m.RemainingLessons = 5
	return h.Store.UpdateMember(ctx, m)
}

// =============================================================================
// LOADER HELPERS
// =============================================================================

func (h *Handler) seedLesson(ctx context.Context, name, schedule string) (*ledger.Lesson, error) {
	l := &ledger.Lesson{Name: name, Schedule: schedule, Capacity: 8}
	if err := h.Store.InsertLesson(ctx, l); err != nil {
		return nil, err
	}
	return l, nil
}

func (h *Handler) recordDemoAttendance(ctx context.Context, memberID, lessonID int64, daysAgo int, attended bool, kind ledger.Kind) error {
	day := time.Now().UTC().AddDate(0, 0, -daysAgo).Truncate(24 * time.Hour)
	_, err := h.Recorder.Record(ctx, attendance.RecordArgs{
		MemberID:   memberID,
		LessonID:   lessonID,
		LessonDate: day,
		Attended:   attended,
		Kind:       kind,
	})
	return err
}
