/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers and the domain layer, not in DTOs.
  DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/warp/studio-ledger/ledger"
)

// =============================================================================
// MEMBERS
// =============================================================================

type MemberDTO struct {
	ID               int64  `json:"id"`
	Name             string `json:"name"`
	Phone            string `json:"phone,omitempty"`
	MembershipType   string `json:"membership_type"`
	TotalLessons     int    `json:"total_lessons"`
	AttendedCount    int    `json:"attended_count"`
	ExtraCount       int    `json:"extra_count"`
	UsedCount        int    `json:"used_count"`
	RemainingLessons int    `json:"remaining_lessons"`
	IsActive         bool   `json:"is_active"`
	CreatedAt        string `json:"created_at,omitempty"`
}

type CreateMemberRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

type UpdateMemberRequest struct {
	Name     *string `json:"name,omitempty"`
	Phone    *string `json:"phone,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

func memberDTO(m *ledger.Member) MemberDTO {
	return MemberDTO{
		ID:               m.ID,
		Name:             m.Name,
		Phone:            m.Phone,
		MembershipType:   m.MembershipType,
		TotalLessons:     m.TotalLessons,
		AttendedCount:    m.AttendedCount,
		ExtraCount:       m.ExtraCount,
		UsedCount:        m.UsedCount,
		RemainingLessons: m.RemainingLessons,
		IsActive:         m.IsActive,
		CreatedAt:        m.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PACKAGES
// =============================================================================

type PackageDTO struct {
	ID               int64  `json:"id"`
	MemberID         int64  `json:"member_id"`
	PackageName      string `json:"package_name"`
	LessonCount      int    `json:"lesson_count"`
	RemainingLessons int    `json:"remaining_lessons"`
	Price            string `json:"price"`
	PurchasedAt      string `json:"purchased_at"`
	IsActive         bool   `json:"is_active"`
}

// PurchasePackageRequest buys (or, with queue=true, queues) a catalog plan.
type PurchasePackageRequest struct {
	Plan   string `json:"plan"`
	Method string `json:"method,omitempty"`
	Queue  bool   `json:"queue,omitempty"`
}

func packageDTO(p *ledger.MemberPackage) PackageDTO {
	return PackageDTO{
		ID:               p.ID,
		MemberID:         p.MemberID,
		PackageName:      p.PackageName,
		LessonCount:      p.LessonCount,
		RemainingLessons: p.RemainingLessons,
		Price:            p.Price.String(),
		PurchasedAt:      p.PurchasedAt.Format(time.RFC3339),
		IsActive:         p.IsActive,
	}
}

// =============================================================================
// LESSONS AND PLANS
// =============================================================================

type LessonDTO struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	Schedule  string `json:"schedule,omitempty"`
	Capacity  int    `json:"capacity,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateLessonRequest struct {
	Name     string `json:"name"`
	Schedule string `json:"schedule"`
	Capacity int    `json:"capacity"`
}

type PlanDTO struct {
	Name        string `json:"name"`
	LessonCount int    `json:"lesson_count"`
	Price       string `json:"price"`
}

type SavePlanRequest struct {
	Name        string `json:"name"`
	LessonCount int    `json:"lesson_count"`
	Price       string `json:"price"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type AttendanceDTO struct {
	ID          int64  `json:"id"`
	MemberID    int64  `json:"member_id"`
	LessonID    int64  `json:"lesson_id"`
	LessonDate  string `json:"lesson_date"`
	Attended    bool   `json:"attended"`
	Kind        string `json:"kind"`
	PackageID   *int64 `json:"package_id,omitempty"`
	PackageName string `json:"package_name,omitempty"`
	Notes       string `json:"notes,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

type RecordAttendanceRequest struct {
	MemberID   int64  `json:"member_id"`
	LessonID   int64  `json:"lesson_id"`
	LessonDate string `json:"lesson_date"` // "2006-01-02"
	Attended   bool   `json:"attended"`
	Kind       string `json:"kind"` // "included" or "extra"
	Notes      string `json:"notes,omitempty"`
}

type UpdateAttendanceRequest struct {
	Attended bool   `json:"attended"`
	Kind     string `json:"kind"`
	Notes    string `json:"notes,omitempty"`
}

func attendanceDTO(a *ledger.LessonAttendance) AttendanceDTO {
	return AttendanceDTO{
		ID:          a.ID,
		MemberID:    a.MemberID,
		LessonID:    a.LessonID,
		LessonDate:  a.LessonDate.Format("2006-01-02"),
		Attended:    a.Attended,
		Kind:        string(a.Kind),
		PackageID:   a.PackageID,
		PackageName: a.PackageName,
		Notes:       a.Notes,
		CreatedAt:   a.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// PAYMENTS, CHECK-INS, EVENTS
// =============================================================================

type PaymentDTO struct {
	ID        string `json:"id"`
	MemberID  int64  `json:"member_id"`
	PackageID int64  `json:"package_id"`
	Amount    string `json:"amount"`
	Method    string `json:"method,omitempty"`
	PaidAt    string `json:"paid_at"`
}

type CheckInDTO struct {
	ID          int64  `json:"id"`
	MemberID    int64  `json:"member_id"`
	CheckInTime string `json:"check_in_time"`
	Notes       string `json:"notes,omitempty"`
}

type CreditEventDTO struct {
	ID          string `json:"id"`
	MemberID    int64  `json:"member_id"`
	PackageID   int64  `json:"package_id,omitempty"`
	Type        string `json:"type"`
	Delta       int    `json:"delta"`
	Kind        string `json:"kind,omitempty"`
	Attended    bool   `json:"attended,omitempty"`
	ReferenceID int64  `json:"reference_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// =============================================================================
// ADMIN
// =============================================================================

type CleanupResultDTO struct {
	Deleted int `json:"deleted"`
}

// ScenarioDTO describes a loadable demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
}

// ErrorResponse is the standard error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
