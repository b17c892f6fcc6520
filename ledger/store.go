/*
store.go - Persistence interface for the credit ledger

PURPOSE:
  Defines the interface between the Engine and the database. Three
  implementations exist: in-memory (ledger/store, tests and dev), SQLite
  (store/sqlite) and PostgreSQL (store/postgres).

TRANSACTION CONTRACT:
  Every mutating Engine operation runs inside TxStore.WithTx. The store
  passed to the closure sees uncommitted writes of the same transaction;
  if the closure returns an error, nothing is visible afterwards.

CONCURRENCY CONTRACT:
  TryDebitGrant is the single enforcement point for the no-negative-balance
  invariant. SQL stores implement it as a conditional UPDATE
  (... WHERE credits_remaining >= amount); the memory store checks under
  its lock. Two concurrent debits of a grant with 1 remaining credit must
  yield exactly one success.

MUTATION DISCIPLINE:
  attendance_logs is append-only: AppendAttendanceLog is the only write.
  attendance rows are never deleted: MarkAttendanceCancelled is the only
  status mutation. credit_grants move only through TryDebitGrant and
  RefundGrant.
*/
package ledger

import (
	"context"
	"time"
)

// =============================================================================
// STORE - Full persistence surface
// =============================================================================

// Store handles persistence for the catalog, directory, purchases, grants,
// attendance and its audit log. List methods return rows in a stable order
// (creation time unless stated otherwise). Lookup methods return the
// matching Err*NotFound when the row is absent.
type Store interface {
	// --- Catalog ---

	CreateSubject(ctx context.Context, s *Subject) error
	GetSubject(ctx context.Context, id SubjectID) (*Subject, error)
	ListSubjects(ctx context.Context) ([]Subject, error)

	// CreatePackage persists the package and its subject set.
	CreatePackage(ctx context.Context, p *Package) error
	// GetPackage returns the package including its SubjectIDs.
	GetPackage(ctx context.Context, id PackageID) (*Package, error)
	ListPackages(ctx context.Context) ([]Package, error)

	// --- Directory ---

	CreateStudent(ctx context.Context, s *Student) error
	GetStudent(ctx context.Context, id StudentID) (*Student, error)
	ListStudents(ctx context.Context) ([]Student, error)

	CreateTeacher(ctx context.Context, t *Teacher) error
	GetTeacher(ctx context.Context, id TeacherID) (*Teacher, error)
	ListTeachers(ctx context.Context) ([]Teacher, error)

	// --- Purchases ---

	CreatePurchase(ctx context.Context, p *Purchase) error
	GetPurchase(ctx context.Context, id PurchaseID) (*Purchase, error)
	ListPurchases(ctx context.Context) ([]Purchase, error)
	// MarkPurchasePaid flips pending->paid. It does not create the grant;
	// that is the Engine's job, inside the same transaction.
	MarkPurchasePaid(ctx context.Context, id PurchaseID, paidAt time.Time) error
	// DeletePurchase removes a purchase row. The Engine only calls it for
	// pending purchases.
	DeletePurchase(ctx context.Context, id PurchaseID) error

	// --- Credit grants ---

	InsertGrant(ctx context.Context, g *CreditGrant) error
	GetGrant(ctx context.Context, id GrantID) (*CreditGrant, error)
	// GrantForPurchase returns the grant settled from a purchase, or
	// ErrGrantNotFound. Used for settlement idempotency.
	GrantForPurchase(ctx context.Context, id PurchaseID) (*CreditGrant, error)
	// EligibleGrants returns the student's grants whose underlying package
	// includes the subject, oldest paid_at first (FIFO consumption order).
	// Exhausted grants (zero remaining) are included; the caller skips them.
	EligibleGrants(ctx context.Context, studentID StudentID, subjectID SubjectID) ([]CreditGrant, error)
	// TryDebitGrant atomically decrements a grant if and only if
	// credits_remaining >= amount. Returns false (no error) when the grant
	// no longer covers the amount.
	TryDebitGrant(ctx context.Context, id GrantID, amount int) (bool, error)
	// RefundGrant increments a grant's remaining credit. Used only by
	// cancellation, always with the amount originally debited.
	RefundGrant(ctx context.Context, id GrantID, amount int) error

	// --- Attendance ---

	InsertAttendance(ctx context.Context, a *Attendance) error
	GetAttendance(ctx context.Context, id AttendanceID) (*Attendance, error)
	MarkAttendanceCancelled(ctx context.Context, id AttendanceID) error

	// --- Attendance log (append-only) ---

	AppendAttendanceLog(ctx context.Context, l *AttendanceLog) error
	// AttendanceLogs returns a row's log entries, oldest first.
	AttendanceLogs(ctx context.Context, id AttendanceID) ([]AttendanceLog, error)

	// --- Read-side queries ---

	// RemainingCredit sums credits_remaining over the student's grants
	// whose package includes the subject.
	RemainingCredit(ctx context.Context, studentID StudentID, subjectID SubjectID) (int, error)
	// SubjectCredits returns the student's remaining credit per subject,
	// subjects with zero balance omitted, sorted by subject name.
	SubjectCredits(ctx context.Context, studentID StudentID) ([]SubjectCredit, error)
	// EligibleStudents returns students with positive eligible credit for
	// the subject, sorted by full name.
	EligibleStudents(ctx context.Context, subjectID SubjectID) ([]EligibleStudent, error)
	// SearchAttendance returns one page of filtered history plus the total
	// filtered count, most recent checked_at first.
	SearchAttendance(ctx context.Context, params SearchAttendanceParams) ([]AttendanceRecord, int, error)
}

// =============================================================================
// TRANSACTIONAL STORE
// =============================================================================

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction.
	// If fn returns an error, the transaction is rolled back.
	WithTx(ctx context.Context, fn func(Store) error) error
}
