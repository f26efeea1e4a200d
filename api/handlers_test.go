/*
handlers_test.go - HTTP-level tests through the real router

Tests run against the SQLite store in :memory: mode, so every request
exercises the same path production traffic takes: router, handler, ledger,
store.
*/
package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/studio-ledger/api"
	"github.com/warp/studio-ledger/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store, nil), true))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, srv *httptest.Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, srv.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := srv.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if resp.StatusCode != http.StatusNoContent {
		json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func doJSONList(t *testing.T, srv *httptest.Server, path string) []map[string]any {
	t.Helper()
	resp, err := srv.Client().Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createMember(t *testing.T, srv *httptest.Server, name string) int64 {
	t.Helper()
	resp, body := doJSON(t, srv, http.MethodPost, "/api/members", map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return int64(body["id"].(float64))
}

func createLesson(t *testing.T, srv *httptest.Server, name string) int64 {
	t.Helper()
	resp, body := doJSON(t, srv, http.MethodPost, "/api/lessons", map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return int64(body["id"].(float64))
}

func savePlan(t *testing.T, srv *httptest.Server, name string, lessons int) {
	t.Helper()
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/plans", map[string]any{
		"name": name, "lesson_count": lessons, "price": fmt.Sprintf("%d.00", lessons*100),
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
}

func memberPath(id int64, suffix string) string {
	return fmt.Sprintf("/api/members/%d%s", id, suffix)
}

// =============================================================================
// MEMBER LIFECYCLE
// =============================================================================

func TestAPI_CreateAndGetMember(t *testing.T) {
	srv := newTestServer(t)

	id := createMember(t, srv, "Ayşe")

	resp, body := doJSON(t, srv, http.MethodGet, memberPath(id, ""), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ayşe", body["name"])
	assert.Equal(t, "Paketsiz", body["membership_type"])
	assert.Equal(t, float64(0), body["remaining_lessons"])
}

func TestAPI_CreateMember_MissingName_400(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, srv, http.MethodPost, "/api/members", map[string]any{"phone": "555"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_GetMissingMember_404(t *testing.T) {
	srv := newTestServer(t)
	resp, _ := doJSON(t, srv, http.MethodGet, "/api/members/42", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_UpdateMember_ContactOnly(t *testing.T) {
	srv := newTestServer(t)
	id := createMember(t, srv, "Ayşe")

	resp, body := doJSON(t, srv, http.MethodPut, memberPath(id, ""), map[string]any{
		"phone": "555-0101",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "555-0101", body["phone"])
	assert.Equal(t, "Ayşe", body["name"], "absent fields stay untouched")
}

func TestAPI_UpdateMember_KeepsLedgerCounters(t *testing.T) {
	srv := newTestServer(t)
	memberID := createMember(t, srv, "Ayşe")
	lessonID := createLesson(t, srv, "Pilates")
	savePlan(t, srv, "Grup8", 8)
	resp, _ := doJSON(t, srv, http.MethodPost, memberPath(memberID, "/packages"), map[string]any{"plan": "Grup8"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = recordAttendance(t, srv, memberID, lessonID, "2026-03-10", true, "included")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := doJSON(t, srv, http.MethodPut, memberPath(memberID, ""), map[string]any{
		"name": "Ayşe Yılmaz",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ayşe Yılmaz", body["name"])

	_, member := doJSON(t, srv, http.MethodGet, memberPath(memberID, ""), nil)
	assert.Equal(t, float64(1), member["attended_count"], "contact edit must not rewrite counters")
	assert.Equal(t, float64(1), member["used_count"])
	assert.Equal(t, float64(7), member["remaining_lessons"])
	assert.Equal(t, "Grup8", member["membership_type"])
}

func TestAPI_DeleteMember_RemovesEverything(t *testing.T) {
	srv := newTestServer(t)
	id := createMember(t, srv, "Ayşe")
	savePlan(t, srv, "Grup8", 8)

	resp, _ := doJSON(t, srv, http.MethodPost, memberPath(id, "/packages"), map[string]any{"plan": "Grup8"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodDelete, memberPath(id, ""), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodGet, memberPath(id, ""), nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// PACKAGES OVER HTTP
// =============================================================================

func TestAPI_PurchasePackage(t *testing.T) {
	srv := newTestServer(t)
	id := createMember(t, srv, "Ayşe")
	savePlan(t, srv, "Grup8", 8)

	resp, body := doJSON(t, srv, http.MethodPost, memberPath(id, "/packages"), map[string]any{"plan": "Grup8"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, true, body["is_active"])
	assert.Equal(t, float64(8), body["remaining_lessons"])

	_, member := doJSON(t, srv, http.MethodGet, memberPath(id, ""), nil)
	assert.Equal(t, "Grup8", member["membership_type"])
	assert.Equal(t, float64(8), member["remaining_lessons"])
}

func TestAPI_PurchaseTwice_409(t *testing.T) {
	srv := newTestServer(t)
	id := createMember(t, srv, "Ayşe")
	savePlan(t, srv, "Grup8", 8)

	resp, _ := doJSON(t, srv, http.MethodPost, memberPath(id, "/packages"), map[string]any{"plan": "Grup8"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = doJSON(t, srv, http.MethodPost, memberPath(id, "/packages"), map[string]any{"plan": "Grup8"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_QueuePackage_ThenListShowsBoth(t *testing.T) {
	srv := newTestServer(t)
	id := createMember(t, srv, "Ayşe")
	savePlan(t, srv, "Grup8", 8)
	savePlan(t, srv, "Grup12", 12)

	resp, _ := doJSON(t, srv, http.MethodPost, memberPath(id, "/packages"), map[string]any{"plan": "Grup8"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp, queued := doJSON(t, srv, http.MethodPost, memberPath(id, "/packages"), map[string]any{"plan": "Grup12", "queue": true})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, false, queued["is_active"])

	pkgs := doJSONList(t, srv, memberPath(id, "/packages"))
	require.Len(t, pkgs, 2)
	assert.Equal(t, "Grup8", pkgs[0]["package_name"])
	assert.Equal(t, "Grup12", pkgs[1]["package_name"])
}

func TestAPI_PurchaseUnknownPlan_404(t *testing.T) {
	srv := newTestServer(t)
	id := createMember(t, srv, "Ayşe")

	resp, _ := doJSON(t, srv, http.MethodPost, memberPath(id, "/packages"), map[string]any{"plan": "Grup99"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPI_DeletePackage_MemberGoesPaketsiz(t *testing.T) {
	srv := newTestServer(t)
	id := createMember(t, srv, "Ayşe")
	savePlan(t, srv, "Grup8", 8)

	resp, pkg := doJSON(t, srv, http.MethodPost, memberPath(id, "/packages"), map[string]any{"plan": "Grup8"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	pkgID := int64(pkg["id"].(float64))

	resp, _ = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/packages/%d", pkgID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, member := doJSON(t, srv, http.MethodGet, memberPath(id, ""), nil)
	assert.Equal(t, "Paketsiz", member["membership_type"])
	assert.Equal(t, float64(0), member["total_lessons"])
}

// =============================================================================
// ATTENDANCE OVER HTTP
// =============================================================================

func recordAttendance(t *testing.T, srv *httptest.Server, memberID, lessonID int64, date string, attended bool, kind string) (*http.Response, map[string]any) {
	t.Helper()
	return doJSON(t, srv, http.MethodPost, "/api/attendance", map[string]any{
		"member_id":   memberID,
		"lesson_id":   lessonID,
		"lesson_date": date,
		"attended":    attended,
		"kind":        kind,
	})
}

func TestAPI_RecordAttendance_FullFlow(t *testing.T) {
	srv := newTestServer(t)
	memberID := createMember(t, srv, "Ayşe")
	lessonID := createLesson(t, srv, "Pilates")
	savePlan(t, srv, "Grup8", 8)
	resp, _ := doJSON(t, srv, http.MethodPost, memberPath(memberID, "/packages"), map[string]any{"plan": "Grup8"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, row := recordAttendance(t, srv, memberID, lessonID, "2026-03-10", true, "included")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "Grup8", row["package_name"])

	_, member := doJSON(t, srv, http.MethodGet, memberPath(memberID, ""), nil)
	assert.Equal(t, float64(1), member["attended_count"])
	assert.Equal(t, float64(7), member["remaining_lessons"])

	checkIns := doJSONList(t, srv, memberPath(memberID, "/checkins"))
	assert.Len(t, checkIns, 1)
}

func TestAPI_RecordDuplicate_409(t *testing.T) {
	srv := newTestServer(t)
	memberID := createMember(t, srv, "Ayşe")
	lessonID := createLesson(t, srv, "Pilates")
	savePlan(t, srv, "Grup8", 8)
	doJSON(t, srv, http.MethodPost, memberPath(memberID, "/packages"), map[string]any{"plan": "Grup8"})

	resp, _ := recordAttendance(t, srv, memberID, lessonID, "2026-03-10", true, "included")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, _ = recordAttendance(t, srv, memberID, lessonID, "2026-03-10", false, "included")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_RecordWithoutCredit_409(t *testing.T) {
	srv := newTestServer(t)
	memberID := createMember(t, srv, "Ayşe")
	lessonID := createLesson(t, srv, "Pilates")

	resp, _ := recordAttendance(t, srv, memberID, lessonID, "2026-03-10", true, "included")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_RecordBadKind_400(t *testing.T) {
	srv := newTestServer(t)
	memberID := createMember(t, srv, "Ayşe")
	lessonID := createLesson(t, srv, "Pilates")

	resp, _ := recordAttendance(t, srv, memberID, lessonID, "2026-03-10", true, "bonus")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_RecordBadDate_400(t *testing.T) {
	srv := newTestServer(t)
	memberID := createMember(t, srv, "Ayşe")
	lessonID := createLesson(t, srv, "Pilates")

	resp, _ := recordAttendance(t, srv, memberID, lessonID, "10.03.2026", true, "included")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_UpdateAttendance_ReclassifyToExtra(t *testing.T) {
	srv := newTestServer(t)
	memberID := createMember(t, srv, "Ayşe")
	lessonID := createLesson(t, srv, "Pilates")
	savePlan(t, srv, "Grup8", 8)
	doJSON(t, srv, http.MethodPost, memberPath(memberID, "/packages"), map[string]any{"plan": "Grup8"})

	_, row := recordAttendance(t, srv, memberID, lessonID, "2026-03-10", true, "included")
	rowID := int64(row["id"].(float64))

	resp, updated := doJSON(t, srv, http.MethodPut, fmt.Sprintf("/api/attendance/%d", rowID), map[string]any{
		"attended": true, "kind": "extra",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "extra", updated["kind"])

	_, member := doJSON(t, srv, http.MethodGet, memberPath(memberID, ""), nil)
	assert.Equal(t, float64(1), member["extra_count"])
	assert.Equal(t, float64(8), member["remaining_lessons"])
}

func TestAPI_DeleteAttendance_RefundsCredit(t *testing.T) {
	srv := newTestServer(t)
	memberID := createMember(t, srv, "Ayşe")
	lessonID := createLesson(t, srv, "Pilates")
	savePlan(t, srv, "Grup8", 8)
	doJSON(t, srv, http.MethodPost, memberPath(memberID, "/packages"), map[string]any{"plan": "Grup8"})

	_, row := recordAttendance(t, srv, memberID, lessonID, "2026-03-10", true, "included")
	rowID := int64(row["id"].(float64))

	resp, _ := doJSON(t, srv, http.MethodDelete, fmt.Sprintf("/api/attendance/%d", rowID), nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	_, member := doJSON(t, srv, http.MethodGet, memberPath(memberID, ""), nil)
	assert.Equal(t, float64(0), member["attended_count"])
	assert.Equal(t, float64(8), member["remaining_lessons"])
}

// =============================================================================
// ACTIVATION AND ADMIN
// =============================================================================

func TestAPI_ActivateWaiting_AfterDrain(t *testing.T) {
	srv := newTestServer(t)
	memberID := createMember(t, srv, "Ayşe")
	lessonID := createLesson(t, srv, "Pilates")
	savePlan(t, srv, "Grup2", 2)
	savePlan(t, srv, "Grup12", 12)
	doJSON(t, srv, http.MethodPost, memberPath(memberID, "/packages"), map[string]any{"plan": "Grup2"})
	doJSON(t, srv, http.MethodPost, memberPath(memberID, "/packages"), map[string]any{"plan": "Grup12", "queue": true})

	recordAttendance(t, srv, memberID, lessonID, "2026-03-01", true, "included")
	recordAttendance(t, srv, memberID, lessonID, "2026-03-03", true, "included")

	// The drain already promoted inline; the admin call is a safe repeat.
	resp, member := doJSON(t, srv, http.MethodPost, memberPath(memberID, "/activate"), nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Grup12", member["membership_type"])
	assert.Equal(t, float64(12), member["remaining_lessons"])
}

func TestAPI_AdminCleanupAndEvents(t *testing.T) {
	srv := newTestServer(t)
	memberID := createMember(t, srv, "Ayşe")
	savePlan(t, srv, "Grup8", 8)
	doJSON(t, srv, http.MethodPost, memberPath(memberID, "/packages"), map[string]any{"plan": "Grup8"})

	resp, result := doJSON(t, srv, http.MethodPost, "/api/admin/cleanup-duplicates", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(0), result["deleted"])

	events := doJSONList(t, srv, memberPath(memberID, "/events"))
	require.Len(t, events, 1)
	assert.Equal(t, "purchase", events[0]["type"])

	payments := doJSONList(t, srv, memberPath(memberID, "/payments"))
	require.Len(t, payments, 1)
	assert.Equal(t, "800", payments[0]["amount"])
}

func TestAPI_Health(t *testing.T) {
	srv := newTestServer(t)
	resp, err := srv.Client().Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
