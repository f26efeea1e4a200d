/*
handlers.go - HTTP API handlers for the studio membership service

PURPOSE:
  Exposes the credit ledger via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Members:
    GET    /api/members                     List all members
    POST   /api/members                     Create member
    GET    /api/members/{id}                Get member (with packages)
    PUT    /api/members/{id}                Update contact / active flag
    DELETE /api/members/{id}                Delete member and all records
    GET    /api/members/{id}/packages       List packages, queue order
    POST   /api/members/{id}/packages       Purchase (or queue) a plan
    POST   /api/members/{id}/activate       Promote next waiting package
    GET    /api/members/{id}/attendance     Attendance history
    GET    /api/members/{id}/payments       Payment history
    GET    /api/members/{id}/checkins       Door log
    GET    /api/members/{id}/events         Credit audit trail

  Packages:
    DELETE /api/packages/{id}               Remove a package, zero its credits

  Attendance:
    POST   /api/attendance                  Record one attendance event
    GET    /api/attendance/{id}             Get one row
    PUT    /api/attendance/{id}             Edit attended/kind/notes
    DELETE /api/attendance/{id}             Delete and refund

  Catalog:
    GET/POST /api/lessons                   Lessons
    GET/POST /api/plans                     Purchasable plans

  Admin:
    POST   /api/admin/cleanup-duplicates    Deduplicate package rows
    POST   /api/admin/backfill/{id}         Synthesize package from counters

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Member/package/lesson/attendance/plan not found
  - 409: Conflict (duplicate attendance, duplicate package, no credit)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/warp/studio-ledger/attendance"
	"github.com/warp/studio-ledger/ledger"
	"github.com/warp/studio-ledger/reconcile"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store     ledger.TxStore
	Ledger    *ledger.CreditLedger
	Activator *ledger.PackageActivator
	Recorder  *attendance.Recorder
	Jobs      *reconcile.Jobs
	Log       *zap.Logger

	currentScenario string
}

// NewHandler wires the domain components over the given store.
func NewHandler(store ledger.TxStore, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	led := ledger.NewCreditLedger(store, ledger.NewKeyedMutex())
	return &Handler{
		Store:     store,
		Ledger:    led,
		Activator: ledger.NewPackageActivator(led),
		Recorder:  attendance.NewRecorder(led),
		Jobs:      reconcile.NewJobs(led, log),
		Log:       log,
	}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i := range members {
		dtos[i] = memberDTO(&members[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	m := &ledger.Member{
		Name:           req.Name,
		Phone:          req.Phone,
		MembershipType: ledger.MembershipNone,
		IsActive:       true,
	}
	if err := h.Store.InsertMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create member", err)
		return
	}
	writeJSON(w, http.StatusCreated, memberDTO(m))
}

func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	m, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, memberDTO(m))
}

func (h *Handler) UpdateMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Serialize with ledger mutations on the same member, and write only
	// the contact columns so counters can never be clobbered by a stale
	// snapshot.
	locks := h.Ledger.Locks()
	locks.Lock(id)
	defer locks.Unlock(id)

	m, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}

	if req.Name != nil {
		m.Name = *req.Name
	}
	if req.Phone != nil {
		m.Phone = *req.Phone
	}
	if req.IsActive != nil {
		m.IsActive = *req.IsActive
	}
	if err := h.Store.UpdateMemberContact(r.Context(), id, m.Name, m.Phone, m.IsActive); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to update member", err)
		return
	}
	writeJSON(w, http.StatusOK, memberDTO(m))
}

func (h *Handler) DeleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	m, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}
	// Packages, attendance, check-ins, payments and events cascade.
	if err := h.Store.DeleteMember(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to delete member", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// PACKAGE HANDLERS
// =============================================================================

func (h *Handler) ListMemberPackages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	pkgs, err := h.Store.PackagesByMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list packages", err)
		return
	}
	dtos := make([]PackageDTO, len(pkgs))
	for i := range pkgs {
		dtos[i] = packageDTO(&pkgs[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// PurchasePackage buys a plan for the member. With queue=true the package
// is parked behind the current one instead.
func (h *Handler) PurchasePackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req PurchasePackageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var pkg *ledger.MemberPackage
	var err error
	if req.Queue {
		pkg, err = h.Ledger.Queue(r.Context(), id, req.Plan)
	} else {
		pkg, err = h.Ledger.Purchase(r.Context(), id, req.Plan)
	}
	if err != nil {
		writeLedgerError(w, "Failed to purchase package", err)
		return
	}
	writeJSON(w, http.StatusCreated, packageDTO(pkg))
}

func (h *Handler) DeletePackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Ledger.DeletePackage(r.Context(), id); err != nil {
		writeLedgerError(w, "Failed to delete package", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ActivateWaiting(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Activator.ActivateWaiting(r.Context(), id); err != nil {
		writeLedgerError(w, "Failed to activate package", err)
		return
	}
	m, err := h.Store.GetMember(r.Context(), id)
	if err != nil || m == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload member", err)
		return
	}
	writeJSON(w, http.StatusOK, memberDTO(m))
}

// =============================================================================
// ATTENDANCE HANDLERS
// =============================================================================

func (h *Handler) RecordAttendance(w http.ResponseWriter, r *http.Request) {
	var req RecordAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	date, err := time.Parse("2006-01-02", req.LessonDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "lesson_date must be YYYY-MM-DD", err)
		return
	}

	row, err := h.Recorder.Record(r.Context(), attendance.RecordArgs{
		MemberID:   req.MemberID,
		LessonID:   req.LessonID,
		LessonDate: date,
		Attended:   req.Attended,
		Kind:       ledger.Kind(req.Kind),
		Notes:      req.Notes,
	})
	if err != nil {
		writeLedgerError(w, "Failed to record attendance", err)
		return
	}
	writeJSON(w, http.StatusCreated, attendanceDTO(row))
}

func (h *Handler) GetAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	row, err := h.Store.GetAttendance(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get attendance", err)
		return
	}
	if row == nil {
		writeError(w, http.StatusNotFound, "Attendance not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, attendanceDTO(row))
}

func (h *Handler) UpdateAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req UpdateAttendanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	row, err := h.Recorder.Update(r.Context(), id, attendance.UpdateArgs{
		Attended: req.Attended,
		Kind:     ledger.Kind(req.Kind),
		Notes:    req.Notes,
	})
	if err != nil {
		writeLedgerError(w, "Failed to update attendance", err)
		return
	}
	writeJSON(w, http.StatusOK, attendanceDTO(row))
}

func (h *Handler) DeleteAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.Recorder.Delete(r.Context(), id); err != nil {
		writeLedgerError(w, "Failed to delete attendance", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) MemberAttendance(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	rows, err := h.Store.AttendanceByMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list attendance", err)
		return
	}
	dtos := make([]AttendanceDTO, len(rows))
	for i := range rows {
		dtos[i] = attendanceDTO(&rows[i])
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// LESSON HANDLERS
// =============================================================================

func (h *Handler) ListLessons(w http.ResponseWriter, r *http.Request) {
	lessons, err := h.Store.ListLessons(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list lessons", err)
		return
	}
	dtos := make([]LessonDTO, len(lessons))
	for i, l := range lessons {
		dtos[i] = LessonDTO{
			ID:        l.ID,
			Name:      l.Name,
			Schedule:  l.Schedule,
			Capacity:  l.Capacity,
			CreatedAt: l.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateLesson(w http.ResponseWriter, r *http.Request) {
	var req CreateLessonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	l := &ledger.Lesson{Name: req.Name, Schedule: req.Schedule, Capacity: req.Capacity}
	if err := h.Store.InsertLesson(r.Context(), l); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create lesson", err)
		return
	}
	writeJSON(w, http.StatusCreated, LessonDTO{
		ID:        l.ID,
		Name:      l.Name,
		Schedule:  l.Schedule,
		Capacity:  l.Capacity,
		CreatedAt: l.CreatedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// PLAN HANDLERS
// =============================================================================

func (h *Handler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.Store.ListPlans(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list plans", err)
		return
	}
	dtos := make([]PlanDTO, len(plans))
	for i, p := range plans {
		dtos[i] = PlanDTO{Name: p.Name, LessonCount: p.LessonCount, Price: p.Price.String()}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) SavePlan(w http.ResponseWriter, r *http.Request) {
	var req SavePlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	if req.LessonCount < 0 {
		writeError(w, http.StatusBadRequest, "lesson_count must not be negative", nil)
		return
	}
	price := decimal.Zero
	if req.Price != "" {
		var err error
		price, err = decimal.NewFromString(req.Price)
		if err != nil {
			writeError(w, http.StatusBadRequest, "price must be a decimal string", err)
			return
		}
	}

	p := &ledger.Plan{Name: req.Name, LessonCount: req.LessonCount, Price: price}
	if err := h.Store.SavePlan(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save plan", err)
		return
	}
	writeJSON(w, http.StatusOK, PlanDTO{Name: p.Name, LessonCount: p.LessonCount, Price: p.Price.String()})
}

// =============================================================================
// HISTORY HANDLERS
// =============================================================================

func (h *Handler) MemberPayments(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	payments, err := h.Store.PaymentsByMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = PaymentDTO{
			ID:        p.ID,
			MemberID:  p.MemberID,
			PackageID: p.PackageID,
			Amount:    p.Amount.String(),
			Method:    p.Method,
			PaidAt:    p.PaidAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) MemberCheckIns(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	checkIns, err := h.Store.CheckInsByMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list check-ins", err)
		return
	}
	dtos := make([]CheckInDTO, len(checkIns))
	for i, c := range checkIns {
		dtos[i] = CheckInDTO{
			ID:          c.ID,
			MemberID:    c.MemberID,
			CheckInTime: c.CheckInTime.Format(time.RFC3339),
			Notes:       c.Notes,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) MemberEvents(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	events, err := h.Store.EventsByMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list credit events", err)
		return
	}
	dtos := make([]CreditEventDTO, len(events))
	for i, e := range events {
		dtos[i] = CreditEventDTO{
			ID:          e.ID,
			MemberID:    e.MemberID,
			PackageID:   e.PackageID,
			Type:        string(e.Type),
			Delta:       e.Delta,
			Kind:        string(e.Kind),
			Attended:    e.Attended,
			ReferenceID: e.ReferenceID,
			CreatedAt:   e.CreatedAt.Format(time.RFC3339),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

func (h *Handler) CleanupDuplicates(w http.ResponseWriter, r *http.Request) {
	deleted, err := h.Jobs.CleanupDuplicatePackages(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to clean up duplicates", err)
		return
	}
	writeJSON(w, http.StatusOK, CleanupResultDTO{Deleted: deleted})
}

func (h *Handler) BackfillPackage(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	pkg, err := h.Jobs.BackfillPackage(r.Context(), id)
	if err != nil {
		writeLedgerError(w, "Failed to backfill package", err)
		return
	}
	if pkg == nil {
		// Nothing to synthesize; the member already has package rows or an
		// empty history.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusCreated, packageDTO(pkg))
}

// =============================================================================
// HELPERS
// =============================================================================

func pathID(w http.ResponseWriter, r *http.Request, param string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid id", err)
		return 0, false
	}
	return id, true
}

// writeLedgerError maps domain errors onto HTTP status codes.
func writeLedgerError(w http.ResponseWriter, message string, err error) {
	switch {
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, message, err)
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	default:
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
