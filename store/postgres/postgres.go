/*
Package postgres provides the PostgreSQL-backed implementation of
ledger.TxStore.

PURPOSE:
  The production store. Same schema and queries as store/sqlite with three
  dialect differences:
  - $n placeholders instead of ?
  - native TIMESTAMPTZ / NUMERIC columns instead of TEXT
  - row locks (SELECT ... FOR UPDATE) instead of a process-wide mutex

CONCURRENCY:
  EligibleGrants locks the candidate grant rows for the duration of the
  transaction, so a check-in holds its FIFO view stable while it debits.
  Lock conflicts surface as pq error 40001/40P01 and are translated to
  ledger.ErrConcurrencyConflict, which the engine retries.

SEE ALSO:
  - ledger/store.go: Interface definitions
  - store/sqlite/sqlite.go: Development variant
*/
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/studyhall/credit-engine/ledger"
)

// Store implements ledger.TxStore on PostgreSQL.
type Store struct {
	db *sql.DB
	q  querier
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Open connects to PostgreSQL with the given DSN and migrates the schema.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: ping: %v", ledger.ErrStoreUnavailable, err)
	}

	s := &Store{db: db, q: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS subjects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT,
		color TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS packages (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		credit_count INTEGER NOT NULL,
		price NUMERIC(12,2) NOT NULL,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS package_subjects (
		package_id TEXT NOT NULL REFERENCES packages(id),
		subject_id TEXT NOT NULL REFERENCES subjects(id),
		PRIMARY KEY (package_id, subject_id)
	);

	CREATE TABLE IF NOT EXISTS students (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		nickname TEXT,
		grade TEXT,
		guardian_name TEXT,
		guardian_phone TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS teachers (
		id TEXT PRIMARY KEY,
		full_name TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE TABLE IF NOT EXISTS purchases (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		package_id TEXT NOT NULL REFERENCES packages(id),
		status TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL,
		paid_at TIMESTAMPTZ
	);

	CREATE INDEX IF NOT EXISTS idx_purchases_student
		ON purchases(student_id);

	CREATE TABLE IF NOT EXISTS credit_grants (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		purchase_id TEXT NOT NULL UNIQUE REFERENCES purchases(id),
		credits_remaining INTEGER NOT NULL CHECK (credits_remaining >= 0)
	);

	CREATE INDEX IF NOT EXISTS idx_credit_grants_student
		ON credit_grants(student_id);

	CREATE TABLE IF NOT EXISTS attendance (
		id TEXT PRIMARY KEY,
		student_id TEXT NOT NULL REFERENCES students(id),
		subject_id TEXT NOT NULL REFERENCES subjects(id),
		teacher_id TEXT NOT NULL REFERENCES teachers(id),
		credits_used INTEGER NOT NULL CHECK (credits_used > 0),
		grant_id TEXT NOT NULL REFERENCES credit_grants(id),
		checked_at TIMESTAMPTZ NOT NULL,
		notes TEXT,
		status TEXT NOT NULL DEFAULT 'active'
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_checked_at
		ON attendance(checked_at DESC);
	CREATE INDEX IF NOT EXISTS idx_attendance_subject
		ON attendance(subject_id);
	CREATE INDEX IF NOT EXISTS idx_attendance_student
		ON attendance(student_id);

	CREATE TABLE IF NOT EXISTS attendance_logs (
		id TEXT PRIMARY KEY,
		attendance_id TEXT NOT NULL REFERENCES attendance(id),
		action TEXT NOT NULL,
		performed_by TEXT NOT NULL,
		reason TEXT,
		created_at TIMESTAMPTZ NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_attendance_logs_attendance
		ON attendance_logs(attendance_id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// =============================================================================
// TRANSACTIONS (ledger.TxStore)
// =============================================================================

// WithTx executes fn within a database transaction. Serialization failures
// and deadlocks come back as ledger.ErrConcurrencyConflict so the engine
// can retry them.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	sqlTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ledger.ErrStoreUnavailable, err)
	}
	defer sqlTx.Rollback()

	if err := fn(&Store{db: s.db, q: sqlTx}); err != nil {
		return mapConflict(err)
	}
	if err := sqlTx.Commit(); err != nil {
		if conflict := mapConflict(err); errors.Is(conflict, ledger.ErrConcurrencyConflict) {
			return conflict
		}
		return fmt.Errorf("%w: commit: %v", ledger.ErrStoreUnavailable, err)
	}
	return nil
}

// mapConflict rewrites pq serialization and deadlock errors into the
// retryable sentinel. Other errors pass through unchanged.
func mapConflict(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %v", ledger.ErrConcurrencyConflict, err)
		}
	}
	return err
}

// =============================================================================
// CATALOG
// =============================================================================

func (s *Store) CreateSubject(ctx context.Context, sub *ledger.Subject) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO subjects (id, name, description, color, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		sub.ID, sub.Name, sub.Description, sub.Color, sub.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create subject: %w", err)
	}
	return nil
}

func (s *Store) GetSubject(ctx context.Context, id ledger.SubjectID) (*ledger.Subject, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, description, color, created_at
		FROM subjects WHERE id = $1`, id)

	var sub ledger.Subject
	if err := row.Scan(&sub.ID, &sub.Name, &sub.Description, &sub.Color, &sub.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrSubjectNotFound
		}
		return nil, fmt.Errorf("failed to get subject: %w", err)
	}
	return &sub, nil
}

func (s *Store) ListSubjects(ctx context.Context) ([]ledger.Subject, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, description, color, created_at
		FROM subjects ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subjects: %w", err)
	}
	defer rows.Close()

	var out []ledger.Subject
	for rows.Next() {
		var sub ledger.Subject
		if err := rows.Scan(&sub.ID, &sub.Name, &sub.Description, &sub.Color, &sub.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *Store) CreatePackage(ctx context.Context, p *ledger.Package) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO packages (id, name, credit_count, price, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.CreditCount, p.Price.String(), p.IsActive, p.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create package: %w", err)
	}
	for _, sid := range p.SubjectIDs {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO package_subjects (package_id, subject_id) VALUES ($1, $2)`,
			p.ID, sid); err != nil {
			return fmt.Errorf("failed to map package subject: %w", err)
		}
	}
	return nil
}

func (s *Store) GetPackage(ctx context.Context, id ledger.PackageID) (*ledger.Package, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, name, credit_count, price, is_active, created_at
		FROM packages WHERE id = $1`, id)

	p, err := scanPackage(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrPackageNotFound
		}
		return nil, fmt.Errorf("failed to get package: %w", err)
	}

	subjects, err := s.packageSubjects(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.SubjectIDs = subjects
	return p, nil
}

func (s *Store) ListPackages(ctx context.Context) ([]ledger.Package, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, name, credit_count, price, is_active, created_at
		FROM packages ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}
	defer rows.Close()

	var out []ledger.Package
	for rows.Next() {
		p, err := scanPackage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		subjects, err := s.packageSubjects(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].SubjectIDs = subjects
	}
	return out, nil
}

func (s *Store) packageSubjects(ctx context.Context, id ledger.PackageID) ([]ledger.SubjectID, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT subject_id FROM package_subjects WHERE package_id = $1 ORDER BY subject_id`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load package subjects: %w", err)
	}
	defer rows.Close()

	var out []ledger.SubjectID
	for rows.Next() {
		var sid ledger.SubjectID
		if err := rows.Scan(&sid); err != nil {
			return nil, err
		}
		out = append(out, sid)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPackage(row rowScanner) (*ledger.Package, error) {
	var p ledger.Package
	var price string
	if err := row.Scan(&p.ID, &p.Name, &p.CreditCount, &price, &p.IsActive, &p.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("bad price %q: %w", price, err)
	}
	p.Price = d
	return &p, nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (s *Store) CreateStudent(ctx context.Context, st *ledger.Student) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO students (id, full_name, nickname, grade, guardian_name, guardian_phone, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		st.ID, st.FullName, st.Nickname, st.Grade, st.GuardianName, st.GuardianPhone, st.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create student: %w", err)
	}
	return nil
}

func (s *Store) GetStudent(ctx context.Context, id ledger.StudentID) (*ledger.Student, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, full_name, nickname, grade, guardian_name, guardian_phone, created_at
		FROM students WHERE id = $1`, id)

	var st ledger.Student
	if err := row.Scan(&st.ID, &st.FullName, &st.Nickname, &st.Grade, &st.GuardianName, &st.GuardianPhone, &st.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrStudentNotFound
		}
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return &st, nil
}

func (s *Store) ListStudents(ctx context.Context) ([]ledger.Student, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, full_name, nickname, grade, guardian_name, guardian_phone, created_at
		FROM students ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var out []ledger.Student
	for rows.Next() {
		var st ledger.Student
		if err := rows.Scan(&st.ID, &st.FullName, &st.Nickname, &st.Grade, &st.GuardianName, &st.GuardianPhone, &st.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) CreateTeacher(ctx context.Context, t *ledger.Teacher) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO teachers (id, full_name, created_at) VALUES ($1, $2, $3)`,
		t.ID, t.FullName, t.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to create teacher: %w", err)
	}
	return nil
}

func (s *Store) GetTeacher(ctx context.Context, id ledger.TeacherID) (*ledger.Teacher, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, full_name, created_at FROM teachers WHERE id = $1`, id)

	var t ledger.Teacher
	if err := row.Scan(&t.ID, &t.FullName, &t.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrTeacherNotFound
		}
		return nil, fmt.Errorf("failed to get teacher: %w", err)
	}
	return &t, nil
}

func (s *Store) ListTeachers(ctx context.Context) ([]ledger.Teacher, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, full_name, created_at FROM teachers ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list teachers: %w", err)
	}
	defer rows.Close()

	var out []ledger.Teacher
	for rows.Next() {
		var t ledger.Teacher
		if err := rows.Scan(&t.ID, &t.FullName, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// =============================================================================
// PURCHASES
// =============================================================================

func (s *Store) CreatePurchase(ctx context.Context, p *ledger.Purchase) error {
	var paidAt *time.Time
	if p.PaidAt != nil {
		t := p.PaidAt.UTC()
		paidAt = &t
	}
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO purchases (id, student_id, package_id, status, created_at, paid_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.StudentID, p.PackageID, p.Status, p.CreatedAt.UTC(), paidAt)
	if err != nil {
		return fmt.Errorf("failed to create purchase: %w", err)
	}
	return nil
}

func (s *Store) GetPurchase(ctx context.Context, id ledger.PurchaseID) (*ledger.Purchase, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, student_id, package_id, status, created_at, paid_at
		FROM purchases WHERE id = $1`, id)

	p, err := scanPurchase(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("failed to get purchase: %w", err)
	}
	return p, nil
}

func (s *Store) ListPurchases(ctx context.Context) ([]ledger.Purchase, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, student_id, package_id, status, created_at, paid_at
		FROM purchases ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list purchases: %w", err)
	}
	defer rows.Close()

	var out []ledger.Purchase
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

func scanPurchase(row rowScanner) (*ledger.Purchase, error) {
	var p ledger.Purchase
	var paidAt sql.NullTime
	if err := row.Scan(&p.ID, &p.StudentID, &p.PackageID, &p.Status, &p.CreatedAt, &paidAt); err != nil {
		return nil, err
	}
	if paidAt.Valid {
		t := paidAt.Time
		p.PaidAt = &t
	}
	return &p, nil
}

func (s *Store) MarkPurchasePaid(ctx context.Context, id ledger.PurchaseID, paidAt time.Time) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE purchases SET status = $1, paid_at = $2 WHERE id = $3`,
		ledger.PurchasePaid, paidAt.UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark purchase paid: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrPurchaseNotFound
	}
	return nil
}

func (s *Store) DeletePurchase(ctx context.Context, id ledger.PurchaseID) error {
	res, err := s.q.ExecContext(ctx, `DELETE FROM purchases WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete purchase: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrPurchaseNotFound
	}
	return nil
}

// =============================================================================
// CREDIT GRANTS
// =============================================================================

func (s *Store) InsertGrant(ctx context.Context, g *ledger.CreditGrant) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO credit_grants (id, student_id, purchase_id, credits_remaining)
		VALUES ($1, $2, $3, $4)`,
		g.ID, g.StudentID, g.PurchaseID, g.CreditsRemaining)
	if err != nil {
		return fmt.Errorf("failed to insert grant: %w", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, id ledger.GrantID) (*ledger.CreditGrant, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, student_id, purchase_id, credits_remaining
		FROM credit_grants WHERE id = $1`, id)

	var g ledger.CreditGrant
	if err := row.Scan(&g.ID, &g.StudentID, &g.PurchaseID, &g.CreditsRemaining); err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to get grant: %w", err)
	}
	return &g, nil
}

func (s *Store) GrantForPurchase(ctx context.Context, id ledger.PurchaseID) (*ledger.CreditGrant, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, student_id, purchase_id, credits_remaining
		FROM credit_grants WHERE purchase_id = $1`, id)

	var g ledger.CreditGrant
	if err := row.Scan(&g.ID, &g.StudentID, &g.PurchaseID, &g.CreditsRemaining); err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrGrantNotFound
		}
		return nil, fmt.Errorf("failed to get grant for purchase: %w", err)
	}
	return &g, nil
}

// EligibleGrants returns the student's grants whose purchase funds the
// subject, oldest payment first. Inside a transaction the rows are locked
// with FOR UPDATE so the FIFO view stays stable while the caller debits.
func (s *Store) EligibleGrants(ctx context.Context, studentID ledger.StudentID, subjectID ledger.SubjectID) ([]ledger.CreditGrant, error) {
	lock := ""
	if _, inTx := s.q.(*sql.Tx); inTx {
		lock = "FOR UPDATE OF g"
	}
	rows, err := s.q.QueryContext(ctx, fmt.Sprintf(`
		SELECT g.id, g.student_id, g.purchase_id, g.credits_remaining
		FROM credit_grants g
		JOIN purchases p ON p.id = g.purchase_id
		JOIN package_subjects ps ON ps.package_id = p.package_id
		WHERE g.student_id = $1 AND ps.subject_id = $2 AND p.status = $3
		ORDER BY p.paid_at ASC, g.id ASC
		%s`, lock),
		studentID, subjectID, ledger.PurchasePaid)
	if err != nil {
		return nil, mapConflict(fmt.Errorf("failed to load eligible grants: %w", err))
	}
	defer rows.Close()

	var out []ledger.CreditGrant
	for rows.Next() {
		var g ledger.CreditGrant
		if err := rows.Scan(&g.ID, &g.StudentID, &g.PurchaseID, &g.CreditsRemaining); err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

// TryDebitGrant decrements the grant if and only if enough credit remains.
func (s *Store) TryDebitGrant(ctx context.Context, id ledger.GrantID, amount int) (bool, error) {
	res, err := s.q.ExecContext(ctx, `
		UPDATE credit_grants
		SET credits_remaining = credits_remaining - $1
		WHERE id = $2 AND credits_remaining >= $1`,
		amount, id)
	if err != nil {
		return false, mapConflict(fmt.Errorf("failed to debit grant: %w", err))
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}
	var exists int
	if err := s.q.QueryRowContext(ctx, `SELECT 1 FROM credit_grants WHERE id = $1`, id).Scan(&exists); err != nil {
		if err == sql.ErrNoRows {
			return false, ledger.ErrGrantNotFound
		}
		return false, err
	}
	return false, nil
}

func (s *Store) RefundGrant(ctx context.Context, id ledger.GrantID, amount int) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE credit_grants SET credits_remaining = credits_remaining + $1 WHERE id = $2`,
		amount, id)
	if err != nil {
		return mapConflict(fmt.Errorf("failed to refund grant: %w", err))
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrGrantNotFound
	}
	return nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (s *Store) InsertAttendance(ctx context.Context, a *ledger.Attendance) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO attendance (id, student_id, subject_id, teacher_id, credits_used, grant_id, checked_at, notes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		a.ID, a.StudentID, a.SubjectID, a.TeacherID, a.CreditsUsed, a.GrantID, a.CheckedAt.UTC(), a.Notes, a.Status)
	if err != nil {
		return fmt.Errorf("failed to insert attendance: %w", err)
	}
	return nil
}

func (s *Store) GetAttendance(ctx context.Context, id ledger.AttendanceID) (*ledger.Attendance, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, student_id, subject_id, teacher_id, credits_used, grant_id, checked_at, notes, status
		FROM attendance WHERE id = $1`, id)

	var a ledger.Attendance
	if err := row.Scan(&a.ID, &a.StudentID, &a.SubjectID, &a.TeacherID, &a.CreditsUsed, &a.GrantID, &a.CheckedAt, &a.Notes, &a.Status); err != nil {
		if err == sql.ErrNoRows {
			return nil, ledger.ErrAttendanceNotFound
		}
		return nil, fmt.Errorf("failed to get attendance: %w", err)
	}
	return &a, nil
}

func (s *Store) MarkAttendanceCancelled(ctx context.Context, id ledger.AttendanceID) error {
	res, err := s.q.ExecContext(ctx, `
		UPDATE attendance SET status = $1 WHERE id = $2`,
		ledger.AttendanceCancelled, id)
	if err != nil {
		return fmt.Errorf("failed to cancel attendance: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ledger.ErrAttendanceNotFound
	}
	return nil
}

// =============================================================================
// ATTENDANCE LOG (append-only)
// =============================================================================

func (s *Store) AppendAttendanceLog(ctx context.Context, l *ledger.AttendanceLog) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO attendance_logs (id, attendance_id, action, performed_by, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		l.ID, l.AttendanceID, l.Action, l.PerformedBy, l.Reason, l.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to append attendance log: %w", err)
	}
	return nil
}

func (s *Store) AttendanceLogs(ctx context.Context, id ledger.AttendanceID) ([]ledger.AttendanceLog, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, attendance_id, action, performed_by, reason, created_at
		FROM attendance_logs WHERE attendance_id = $1
		ORDER BY created_at ASC, id ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load attendance logs: %w", err)
	}
	defer rows.Close()

	var out []ledger.AttendanceLog
	for rows.Next() {
		var l ledger.AttendanceLog
		if err := rows.Scan(&l.ID, &l.AttendanceID, &l.Action, &l.PerformedBy, &l.Reason, &l.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// =============================================================================
// READ-SIDE QUERIES
// =============================================================================

func (s *Store) RemainingCredit(ctx context.Context, studentID ledger.StudentID, subjectID ledger.SubjectID) (int, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(g.credits_remaining), 0)
		FROM credit_grants g
		JOIN purchases p ON p.id = g.purchase_id
		JOIN package_subjects ps ON ps.package_id = p.package_id
		WHERE g.student_id = $1 AND ps.subject_id = $2 AND p.status = $3`,
		studentID, subjectID, ledger.PurchasePaid)

	var total int
	if err := row.Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum remaining credit: %w", err)
	}
	return total, nil
}

func (s *Store) SubjectCredits(ctx context.Context, studentID ledger.StudentID) ([]ledger.SubjectCredit, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT ps.subject_id, sub.name, SUM(g.credits_remaining)
		FROM credit_grants g
		JOIN purchases p ON p.id = g.purchase_id
		JOIN package_subjects ps ON ps.package_id = p.package_id
		JOIN subjects sub ON sub.id = ps.subject_id
		WHERE g.student_id = $1 AND g.credits_remaining > 0 AND p.status = $2
		GROUP BY ps.subject_id, sub.name
		ORDER BY sub.name`,
		studentID, ledger.PurchasePaid)
	if err != nil {
		return nil, fmt.Errorf("failed to load subject credits: %w", err)
	}
	defer rows.Close()

	var out []ledger.SubjectCredit
	for rows.Next() {
		var sc ledger.SubjectCredit
		if err := rows.Scan(&sc.SubjectID, &sc.SubjectName, &sc.Remaining); err != nil {
			return nil, err
		}
		out = append(out, sc)
	}
	return out, rows.Err()
}

func (s *Store) EligibleStudents(ctx context.Context, subjectID ledger.SubjectID) ([]ledger.EligibleStudent, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT st.id, st.full_name, st.nickname, SUM(g.credits_remaining) AS total
		FROM credit_grants g
		JOIN purchases p ON p.id = g.purchase_id
		JOIN package_subjects ps ON ps.package_id = p.package_id
		JOIN students st ON st.id = g.student_id
		WHERE ps.subject_id = $1 AND g.credits_remaining > 0 AND p.status = $2
		GROUP BY st.id, st.full_name, st.nickname
		ORDER BY st.full_name, st.id`,
		subjectID, ledger.PurchasePaid)
	if err != nil {
		return nil, fmt.Errorf("failed to load eligible students: %w", err)
	}
	defer rows.Close()

	var out []ledger.EligibleStudent
	for rows.Next() {
		var es ledger.EligibleStudent
		if err := rows.Scan(&es.StudentID, &es.FullName, &es.Nickname, &es.TotalCredits); err != nil {
			return nil, err
		}
		out = append(out, es)
	}
	return out, rows.Err()
}

// SearchAttendance returns a page of attendance records matching the search
// and subject filters, newest first, plus the total match count.
func (s *Store) SearchAttendance(ctx context.Context, params ledger.SearchAttendanceParams) ([]ledger.AttendanceRecord, int, error) {
	var conds []string
	var args []any
	next := func() string { return fmt.Sprintf("$%d", len(args)) }

	if params.SubjectID != "" {
		args = append(args, params.SubjectID)
		conds = append(conds, "a.subject_id = "+next())
	}
	if search := strings.TrimSpace(params.Search); search != "" {
		args = append(args, "%"+strings.ToLower(search)+"%")
		n := next()
		conds = append(conds, fmt.Sprintf(`(
			LOWER(st.full_name) LIKE %[1]s
			OR LOWER(COALESCE(st.nickname, '')) LIKE %[1]s
			OR LOWER(COALESCE(st.guardian_phone, '')) LIKE %[1]s)`, n))
	}

	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	limitPos := len(args) + 1
	query := fmt.Sprintf(`
		SELECT a.id, a.student_id, a.subject_id, a.teacher_id, a.credits_used, a.grant_id,
		       a.checked_at, a.notes, a.status,
		       st.full_name, st.nickname, st.guardian_phone,
		       sub.name, t.full_name,
		       COUNT(*) OVER() AS total_count
		FROM attendance a
		JOIN students st ON st.id = a.student_id
		JOIN subjects sub ON sub.id = a.subject_id
		JOIN teachers t ON t.id = a.teacher_id
		%s
		ORDER BY a.checked_at DESC, a.id DESC
		LIMIT $%d OFFSET $%d`, where, limitPos, limitPos+1)
	pageArgs := append(append([]any{}, args...), params.PerPage, (params.Page-1)*params.PerPage)

	rows, err := s.q.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search attendance: %w", err)
	}
	defer rows.Close()

	var out []ledger.AttendanceRecord
	total := 0
	for rows.Next() {
		var rec ledger.AttendanceRecord
		if err := rows.Scan(
			&rec.ID, &rec.StudentID, &rec.SubjectID, &rec.TeacherID, &rec.CreditsUsed, &rec.GrantID,
			&rec.CheckedAt, &rec.Notes, &rec.Status,
			&rec.StudentName, &rec.StudentNickname, &rec.GuardianPhone,
			&rec.SubjectName, &rec.TeacherName,
			&total,
		); err != nil {
			return nil, 0, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if len(out) == 0 {
		countQuery := fmt.Sprintf(`
			SELECT COUNT(*)
			FROM attendance a
			JOIN students st ON st.id = a.student_id
			%s`, where)
		if err := s.q.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
			return nil, 0, fmt.Errorf("failed to count attendance: %w", err)
		}
	}
	return out, total, nil
}

// =============================================================================
// MAINTENANCE
// =============================================================================

// Reset clears all tables. Used by demo scenario loading and tests.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.q.ExecContext(ctx, `
		TRUNCATE attendance_logs, attendance, credit_grants, purchases,
		         package_subjects, packages, subjects, students, teachers`)
	if err != nil {
		return fmt.Errorf("failed to reset: %w", err)
	}
	return nil
}
