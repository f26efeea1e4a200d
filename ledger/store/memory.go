// Package store provides ledger.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/warp/studio-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu         sync.RWMutex
	members    map[int64]ledger.Member
	packages   map[int64]ledger.MemberPackage
	attendance map[int64]ledger.LessonAttendance
	checkIns   map[int64]ledger.CheckIn
	lessons    map[int64]ledger.Lesson
	plans      map[string]ledger.Plan
	payments   []ledger.Payment
	events     []ledger.CreditEvent
	nextID     int64
}

func NewMemory() *Memory {
	return &Memory{
		members:    make(map[int64]ledger.Member),
		packages:   make(map[int64]ledger.MemberPackage),
		attendance: make(map[int64]ledger.LessonAttendance),
		checkIns:   make(map[int64]ledger.CheckIn),
		lessons:    make(map[int64]ledger.Lesson),
		plans:      make(map[string]ledger.Plan),
	}
}

func (m *Memory) nextIDLocked() int64 {
	m.nextID++
	return m.nextID
}

// =============================================================================
// MEMBERS
// =============================================================================

func (m *Memory) GetMember(_ context.Context, id int64) (*ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.members[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) InsertMember(_ context.Context, rec *ledger.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextIDLocked()
	m.members[rec.ID] = *rec
	return nil
}

func (m *Memory) UpdateMember(_ context.Context, rec *ledger.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[rec.ID] = *rec
	return nil
}

func (m *Memory) UpdateMemberContact(_ context.Context, id int64, name, phone string, isActive bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.members[id]
	if !ok {
		return nil
	}
	rec.Name = name
	rec.Phone = phone
	rec.IsActive = isActive
	m.members[id] = rec
	return nil
}

func (m *Memory) DeleteMember(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.members, id)
	for pid, p := range m.packages {
		if p.MemberID == id {
			delete(m.packages, pid)
		}
	}
	for aid, a := range m.attendance {
		if a.MemberID == id {
			delete(m.attendance, aid)
		}
	}
	for cid, c := range m.checkIns {
		if c.MemberID == id {
			delete(m.checkIns, cid)
		}
	}
	m.payments = slicesDeleteByMember(m.payments, id, func(p ledger.Payment) int64 { return p.MemberID })
	m.events = slicesDeleteByMember(m.events, id, func(e ledger.CreditEvent) int64 { return e.MemberID })
	return nil
}

func slicesDeleteByMember[T any](in []T, memberID int64, key func(T) int64) []T {
	out := in[:0]
	for _, rec := range in {
		if key(rec) != memberID {
			out = append(out, rec)
		}
	}
	return out
}

func (m *Memory) ListMembers(_ context.Context) ([]ledger.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Member, 0, len(m.members))
	for _, rec := range m.members {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// PACKAGES
// =============================================================================

func (m *Memory) GetPackage(_ context.Context, id int64) (*ledger.MemberPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.packages[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) InsertPackage(_ context.Context, rec *ledger.MemberPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextIDLocked()
	m.packages[rec.ID] = *rec
	return nil
}

func (m *Memory) UpdatePackage(_ context.Context, rec *ledger.MemberPackage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.packages[rec.ID] = *rec
	return nil
}

func (m *Memory) DeletePackage(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.packages, id)
	return nil
}

func (m *Memory) PackagesByMember(_ context.Context, memberID int64) ([]ledger.MemberPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.MemberPackage
	for _, rec := range m.packages {
		if rec.MemberID == memberID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AllPackages(_ context.Context) ([]ledger.MemberPackage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.MemberPackage, 0, len(m.packages))
	for _, rec := range m.packages {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// LESSON ATTENDANCE
// =============================================================================

func (m *Memory) GetAttendance(_ context.Context, id int64) (*ledger.LessonAttendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.attendance[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) FindAttendance(_ context.Context, memberID, lessonID int64, day time.Time) (*ledger.LessonAttendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, rec := range m.attendance {
		if rec.MemberID == memberID && rec.LessonID == lessonID && rec.LessonDate.Equal(day) {
			return &rec, nil
		}
	}
	return nil, nil
}

func (m *Memory) InsertAttendance(_ context.Context, rec *ledger.LessonAttendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextIDLocked()
	m.attendance[rec.ID] = *rec
	return nil
}

func (m *Memory) UpdateAttendance(_ context.Context, rec *ledger.LessonAttendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attendance[rec.ID] = *rec
	return nil
}

func (m *Memory) DeleteAttendance(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.attendance, id)
	return nil
}

func (m *Memory) AttendanceByMember(_ context.Context, memberID int64) ([]ledger.LessonAttendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.LessonAttendance
	for _, rec := range m.attendance {
		if rec.MemberID == memberID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// CHECK-INS
// =============================================================================

func (m *Memory) InsertCheckIn(_ context.Context, rec *ledger.CheckIn) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextIDLocked()
	m.checkIns[rec.ID] = *rec
	return nil
}

func (m *Memory) CheckInsByMember(_ context.Context, memberID int64) ([]ledger.CheckIn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.CheckIn
	for _, rec := range m.checkIns {
		if rec.MemberID == memberID {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// LESSONS
// =============================================================================

func (m *Memory) GetLesson(_ context.Context, id int64) (*ledger.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.lessons[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) InsertLesson(_ context.Context, rec *ledger.Lesson) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.ID = m.nextIDLocked()
	m.lessons[rec.ID] = *rec
	return nil
}

func (m *Memory) ListLessons(_ context.Context) ([]ledger.Lesson, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Lesson, 0, len(m.lessons))
	for _, rec := range m.lessons {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// =============================================================================
// PLANS
// =============================================================================

func (m *Memory) GetPlan(_ context.Context, name string) (*ledger.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if rec, ok := m.plans[name]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (m *Memory) SavePlan(_ context.Context, rec *ledger.Plan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.plans[rec.Name] = *rec
	return nil
}

func (m *Memory) ListPlans(_ context.Context) ([]ledger.Plan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Plan, 0, len(m.plans))
	for _, rec := range m.plans {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// =============================================================================
// PAYMENTS / EVENTS
// =============================================================================

func (m *Memory) InsertPayment(_ context.Context, rec *ledger.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.payments = append(m.payments, *rec)
	return nil
}

func (m *Memory) PaymentsByMember(_ context.Context, memberID int64) ([]ledger.Payment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Payment
	for _, rec := range m.payments {
		if rec.MemberID == memberID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (m *Memory) AppendEvent(_ context.Context, rec *ledger.CreditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *rec)
	return nil
}

func (m *Memory) EventsByMember(_ context.Context, memberID int64) ([]ledger.CreditEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.CreditEvent
	for _, rec := range m.events {
		if rec.MemberID == memberID {
			out = append(out, rec)
		}
	}
	return out, nil
}

// =============================================================================
// RESET
// =============================================================================

func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members = make(map[int64]ledger.Member)
	m.packages = make(map[int64]ledger.MemberPackage)
	m.attendance = make(map[int64]ledger.LessonAttendance)
	m.checkIns = make(map[int64]ledger.CheckIn)
	m.lessons = make(map[int64]ledger.Lesson)
	m.plans = make(map[string]ledger.Plan)
	m.payments = nil
	m.events = nil
	m.nextID = 0
	return nil
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support, simulated with a snapshot
// restored on error.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn against the store, rolling back to a snapshot when fn
// fails. The memory store is single-process, so a full copy is acceptable.
func (tm *TxMemory) WithTx(_ context.Context, fn func(ledger.Store) error) error {
	snap := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

func (tm *TxMemory) snapshot() *Memory {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	cp := NewMemory()
	cp.nextID = tm.nextID
	for k, v := range tm.members {
		cp.members[k] = v
	}
	for k, v := range tm.packages {
		cp.packages[k] = v
	}
	for k, v := range tm.attendance {
		cp.attendance[k] = v
	}
	for k, v := range tm.checkIns {
		cp.checkIns[k] = v
	}
	for k, v := range tm.lessons {
		cp.lessons[k] = v
	}
	for k, v := range tm.plans {
		cp.plans[k] = v
	}
	cp.payments = append(cp.payments, tm.payments...)
	cp.events = append(cp.events, tm.events...)
	return cp
}

func (tm *TxMemory) restore(snap *Memory) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.members = snap.members
	tm.packages = snap.packages
	tm.attendance = snap.attendance
	tm.checkIns = snap.checkIns
	tm.lessons = snap.lessons
	tm.plans = snap.plans
	tm.payments = snap.payments
	tm.events = snap.events
	tm.nextID = snap.nextID
}
