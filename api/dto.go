/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: The domain model these mirror
*/
package api

import (
	"time"

	"github.com/studyhall/credit-engine/ledger"
)

// =============================================================================
// CATALOG
// =============================================================================

type SubjectDTO struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Color       *string `json:"color,omitempty"`
	CreatedAt   string  `json:"created_at,omitempty"`
}

type CreateSubjectRequest struct {
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Color       *string `json:"color"`
}

type PackageDTO struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	CreditCount int      `json:"credit_count"`
	Price       string   `json:"price"`
	IsActive    bool     `json:"is_active"`
	SubjectIDs  []string `json:"subject_ids"`
	CreatedAt   string   `json:"created_at,omitempty"`
}

type CreatePackageRequest struct {
	Name        string   `json:"name"`
	CreditCount int      `json:"credit_count"`
	Price       string   `json:"price"`
	SubjectIDs  []string `json:"subject_ids"`
}

// =============================================================================
// DIRECTORY
// =============================================================================

type StudentDTO struct {
	ID            string  `json:"id"`
	FullName      string  `json:"full_name"`
	Nickname      *string `json:"nickname,omitempty"`
	Grade         *string `json:"grade,omitempty"`
	GuardianName  *string `json:"guardian_name,omitempty"`
	GuardianPhone *string `json:"guardian_phone,omitempty"`
	CreatedAt     string  `json:"created_at,omitempty"`
}

type CreateStudentRequest struct {
	FullName      string  `json:"full_name"`
	Nickname      *string `json:"nickname"`
	Grade         *string `json:"grade"`
	GuardianName  *string `json:"guardian_name"`
	GuardianPhone *string `json:"guardian_phone"`
}

type TeacherDTO struct {
	ID        string `json:"id"`
	FullName  string `json:"full_name"`
	CreatedAt string `json:"created_at,omitempty"`
}

type CreateTeacherRequest struct {
	FullName string `json:"full_name"`
}

// =============================================================================
// PURCHASES AND CREDIT
// =============================================================================

type PurchaseDTO struct {
	ID        string  `json:"id"`
	StudentID string  `json:"student_id"`
	PackageID string  `json:"package_id"`
	Status    string  `json:"status"`
	CreatedAt string  `json:"created_at"`
	PaidAt    *string `json:"paid_at,omitempty"`
}

type CreatePurchaseRequest struct {
	StudentID string `json:"student_id"`
	PackageID string `json:"package_id"`
}

type GrantDTO struct {
	ID               string `json:"id"`
	StudentID        string `json:"student_id"`
	PurchaseID       string `json:"purchase_id"`
	CreditsRemaining int    `json:"credits_remaining"`
}

// SettleResponse reports the settlement outcome. The same payload comes
// back whether the call performed the settlement or found it already done.
type SettleResponse struct {
	Purchase PurchaseDTO `json:"purchase"`
	Grant    GrantDTO    `json:"grant"`
}

type SubjectCreditDTO struct {
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	Remaining   int    `json:"remaining"`
}

type CreditSummaryDTO struct {
	StudentID string             `json:"student_id"`
	Subjects  []SubjectCreditDTO `json:"subjects"`
}

// =============================================================================
// ATTENDANCE
// =============================================================================

type CheckInRequest struct {
	StudentID   string  `json:"student_id"`
	SubjectID   string  `json:"subject_id"`
	TeacherID   string  `json:"teacher_id"`
	CreditsUsed int     `json:"credits_used"`
	Notes       *string `json:"notes"`
}

type CancelRequest struct {
	CancelledBy string  `json:"cancelled_by"`
	Reason      *string `json:"reason"`
}

type AttendanceDTO struct {
	ID          string  `json:"id"`
	StudentID   string  `json:"student_id"`
	SubjectID   string  `json:"subject_id"`
	TeacherID   string  `json:"teacher_id"`
	CreditsUsed int     `json:"credits_used"`
	GrantID     string  `json:"grant_id"`
	CheckedAt   string  `json:"checked_at"`
	Notes       *string `json:"notes,omitempty"`
	Status      string  `json:"status"`
}

// AttendanceRecordDTO is an attendance row joined with display fields for
// the history view.
type AttendanceRecordDTO struct {
	AttendanceDTO

	StudentName     string  `json:"student_name"`
	StudentNickname *string `json:"student_nickname,omitempty"`
	GuardianPhone   *string `json:"guardian_phone,omitempty"`
	SubjectName     string  `json:"subject_name"`
	TeacherName     string  `json:"teacher_name"`
}

type AttendancePageDTO struct {
	Records    []AttendanceRecordDTO `json:"records"`
	TotalCount int                   `json:"total_count"`
	Page       int                   `json:"page"`
	PerPage    int                   `json:"per_page"`
}

type AttendanceLogDTO struct {
	ID           string  `json:"id"`
	AttendanceID string  `json:"attendance_id"`
	Action       string  `json:"action"`
	PerformedBy  string  `json:"performed_by"`
	Reason       *string `json:"reason,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

type EligibleStudentDTO struct {
	StudentID    string  `json:"student_id"`
	FullName     string  `json:"full_name"`
	Nickname     *string `json:"nickname,omitempty"`
	TotalCredits int     `json:"total_credits"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ID string `json:"id"`
}

// ErrorResponse is the uniform error payload. Code is a stable machine
// string ("insufficient_credit", "not_found", ...); Error is for humans.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func fmtRFC3339(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func toSubjectDTO(s *ledger.Subject) SubjectDTO {
	return SubjectDTO{
		ID:          string(s.ID),
		Name:        s.Name,
		Description: s.Description,
		Color:       s.Color,
		CreatedAt:   fmtRFC3339(s.CreatedAt),
	}
}

func toPackageDTO(p *ledger.Package) PackageDTO {
	ids := make([]string, 0, len(p.SubjectIDs))
	for _, sid := range p.SubjectIDs {
		ids = append(ids, string(sid))
	}
	return PackageDTO{
		ID:          string(p.ID),
		Name:        p.Name,
		CreditCount: p.CreditCount,
		Price:       p.Price.String(),
		IsActive:    p.IsActive,
		SubjectIDs:  ids,
		CreatedAt:   fmtRFC3339(p.CreatedAt),
	}
}

func toStudentDTO(s *ledger.Student) StudentDTO {
	return StudentDTO{
		ID:            string(s.ID),
		FullName:      s.FullName,
		Nickname:      s.Nickname,
		Grade:         s.Grade,
		GuardianName:  s.GuardianName,
		GuardianPhone: s.GuardianPhone,
		CreatedAt:     fmtRFC3339(s.CreatedAt),
	}
}

func toTeacherDTO(t *ledger.Teacher) TeacherDTO {
	return TeacherDTO{
		ID:        string(t.ID),
		FullName:  t.FullName,
		CreatedAt: fmtRFC3339(t.CreatedAt),
	}
}

func toPurchaseDTO(p *ledger.Purchase) PurchaseDTO {
	dto := PurchaseDTO{
		ID:        string(p.ID),
		StudentID: string(p.StudentID),
		PackageID: string(p.PackageID),
		Status:    string(p.Status),
		CreatedAt: fmtRFC3339(p.CreatedAt),
	}
	if p.PaidAt != nil {
		s := fmtRFC3339(*p.PaidAt)
		dto.PaidAt = &s
	}
	return dto
}

func toGrantDTO(g *ledger.CreditGrant) GrantDTO {
	return GrantDTO{
		ID:               string(g.ID),
		StudentID:        string(g.StudentID),
		PurchaseID:       string(g.PurchaseID),
		CreditsRemaining: g.CreditsRemaining,
	}
}

func toAttendanceDTO(a *ledger.Attendance) AttendanceDTO {
	return AttendanceDTO{
		ID:          string(a.ID),
		StudentID:   string(a.StudentID),
		SubjectID:   string(a.SubjectID),
		TeacherID:   string(a.TeacherID),
		CreditsUsed: a.CreditsUsed,
		GrantID:     string(a.GrantID),
		CheckedAt:   fmtRFC3339(a.CheckedAt),
		Notes:       a.Notes,
		Status:      string(a.Status),
	}
}

func toAttendanceRecordDTO(r *ledger.AttendanceRecord) AttendanceRecordDTO {
	return AttendanceRecordDTO{
		AttendanceDTO:   toAttendanceDTO(&r.Attendance),
		StudentName:     r.StudentName,
		StudentNickname: r.StudentNickname,
		GuardianPhone:   r.GuardianPhone,
		SubjectName:     r.SubjectName,
		TeacherName:     r.TeacherName,
	}
}

func toAttendanceLogDTO(l *ledger.AttendanceLog) AttendanceLogDTO {
	return AttendanceLogDTO{
		ID:           l.ID,
		AttendanceID: string(l.AttendanceID),
		Action:       string(l.Action),
		PerformedBy:  l.PerformedBy,
		Reason:       l.Reason,
		CreatedAt:    fmtRFC3339(l.CreatedAt),
	}
}
