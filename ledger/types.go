/*
Package ledger provides the credit accounting and attendance recording core.

PURPOSE:
  This package contains the domain types and the Engine that converts a paid
  purchase into usable credit, consumes credit atomically on attendance
  check-in, and reverses that consumption safely on cancellation - while
  preserving an append-only audit trail.

KEY CONCEPTS IN THIS FILE (types.go):
  - Package/Subject:  The catalog. A package bundles N credits usable in a
                      fixed set of subjects.
  - Purchase:         pending -> paid. The paid transition is the single
                      event that creates credit.
  - CreditGrant:      A pool of credit created from exactly one paid
                      purchase, decremented by check-ins, restorable by
                      cancellation.
  - Attendance:       One check-in event. active -> cancelled, never deleted.
  - AttendanceLog:    Append-only record of every attendance transition.

DESIGN PRINCIPLES:
  1. Reversibility: Attendance rows are cancelled, never deleted. The debit
     is refunded to the SAME grant it came from.
  2. Derivation: A grant's eligible subjects are derived via
     purchase -> package -> package_subjects, never stored redundantly.
  3. Precision: Money uses decimal.Decimal, credits are plain integers.
  4. Type Safety: Strong typing for IDs prevents mixing student/subject ids.

SEE ALSO:
  - engine.go:     Engine construction and shared helpers
  - settlement.go: Purchase settlement (grant creation)
  - credits.go:    Debit/credit against grants
  - attendance.go: Check-in / cancel state machine
  - query.go:      Eligibility and attendance search read side
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	SubjectID    string
	PackageID    string
	StudentID    string
	TeacherID    string
	PurchaseID   string
	GrantID      string
	AttendanceID string
)

// =============================================================================
// CATALOG - Packages and subjects
// =============================================================================

// Subject is a teachable subject (Math, English, ...).
type Subject struct {
	ID          SubjectID
	Name        string
	Description *string
	Color       *string
	CreatedAt   time.Time
}

// Package is a catalog item: N credits for a price, spendable on a fixed
// subject set. Once referenced by a paid purchase its credit count must not
// retroactively change already-granted credit (grants copy the count at
// settlement time).
type Package struct {
	ID          PackageID
	Name        string
	CreditCount int
	Price       decimal.Decimal
	IsActive    bool
	CreatedAt   time.Time

	// Subjects this package's credits may be spent on. A package with an
	// empty set grants credit usable in no subject (data-entry error,
	// surfaced as a warning at settlement - never silently universal).
	SubjectIDs []SubjectID
}

// =============================================================================
// DIRECTORY - Students and teachers (display fields for the read side)
// =============================================================================

type Student struct {
	ID            StudentID
	FullName      string
	Nickname      *string
	Grade         *string
	GuardianName  *string
	GuardianPhone *string
	CreatedAt     time.Time
}

type Teacher struct {
	ID        TeacherID
	FullName  string
	CreatedAt time.Time
}

// =============================================================================
// PURCHASE - pending -> paid, the source of all credit
// =============================================================================

type PurchaseStatus string

const (
	PurchasePending PurchaseStatus = "pending"
	PurchasePaid    PurchaseStatus = "paid"
)

type Purchase struct {
	ID        PurchaseID
	StudentID StudentID
	PackageID PackageID
	Status    PurchaseStatus
	CreatedAt time.Time
	PaidAt    *time.Time
}

// =============================================================================
// CREDIT GRANT - One per paid purchase
// =============================================================================

// CreditGrant tracks how much of one purchase's credit remains.
// CreditsRemaining never goes below zero; the conditional decrement in the
// store is the enforcement point.
type CreditGrant struct {
	ID               GrantID
	StudentID        StudentID
	PurchaseID       PurchaseID
	CreditsRemaining int
}

// =============================================================================
// ATTENDANCE - One check-in event, active -> cancelled
// =============================================================================

type AttendanceStatus string

const (
	AttendanceActive    AttendanceStatus = "active"
	AttendanceCancelled AttendanceStatus = "cancelled"
)

type Attendance struct {
	ID        AttendanceID
	StudentID StudentID
	SubjectID SubjectID
	TeacherID TeacherID

	// CreditsUsed is a positive integer. The surrounding UI always sends 1,
	// but the model does not special-case that.
	CreditsUsed int

	// GrantID records which grant was debited at check-in time, so a later
	// cancel refunds the exact pool the credit came from.
	GrantID GrantID

	CheckedAt time.Time
	Notes     *string
	Status    AttendanceStatus
}

// =============================================================================
// ATTENDANCE LOG - Append-only audit trail
// =============================================================================

type LogAction string

const (
	LogCheckIn LogAction = "check_in"
	LogCancel  LogAction = "cancel"
)

// AttendanceLog records one state transition of an Attendance row.
// Never mutated, never deleted.
type AttendanceLog struct {
	ID           string
	AttendanceID AttendanceID
	Action       LogAction
	PerformedBy  string
	Reason       *string
	CreatedAt    time.Time
}

// =============================================================================
// READ-SIDE ROWS
// =============================================================================

// EligibleStudent is one row of the check-in selector: a student holding
// usable credit for a subject, and how much.
type EligibleStudent struct {
	StudentID    StudentID
	FullName     string
	Nickname     *string
	TotalCredits int
}

// SubjectCredit is one row of a student's per-subject balance view.
type SubjectCredit struct {
	SubjectID   SubjectID
	SubjectName string
	Remaining   int
}

// AttendanceRecord is an attendance row joined with its display fields.
type AttendanceRecord struct {
	Attendance

	StudentName     string
	StudentNickname *string
	GuardianPhone   *string
	SubjectName     string
	TeacherName     string
}

// SearchAttendanceParams filters the paginated attendance history.
// Search matches student name, nickname, or guardian phone
// (case-insensitive substring). Zero values mean "no filter".
type SearchAttendanceParams struct {
	Search    string
	SubjectID SubjectID
	Page      int
	PerPage   int
}

// AttendancePage is one page of search results. TotalCount is the size of
// the filtered set, not the page.
type AttendancePage struct {
	Records    []AttendanceRecord
	TotalCount int
	Page       int
	PerPage    int
}
