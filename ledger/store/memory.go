/*
Package store provides the in-memory Store implementation.

PURPOSE:
  Backs unit tests, handler tests and demo runs without a database file.
  Implements the full ledger.Store surface plus WithTx via snapshot and
  rollback: the closure mutates the live state under the store lock, and
  an error restores the pre-transaction snapshot.

FIDELITY NOTES:
  - TryDebitGrant checks-and-decrements under the lock, matching the SQL
    stores' conditional UPDATE semantics.
  - List and query ordering matches the SQL stores (insertion order for
    lists, paid_at FIFO for eligible grants, name order for eligibility,
    checked_at DESC for search).
*/
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/studyhall/credit-engine/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu sync.RWMutex

	subjects map[ledger.SubjectID]*ledger.Subject
	packages map[ledger.PackageID]*ledger.Package
	students map[ledger.StudentID]*ledger.Student
	teachers map[ledger.TeacherID]*ledger.Teacher

	purchases  map[ledger.PurchaseID]*ledger.Purchase
	grants     map[ledger.GrantID]*ledger.CreditGrant
	attendance map[ledger.AttendanceID]*ledger.Attendance
	logs       []ledger.AttendanceLog

	// Insertion order for stable listings.
	subjectOrder  []ledger.SubjectID
	packageOrder  []ledger.PackageID
	studentOrder  []ledger.StudentID
	teacherOrder  []ledger.TeacherID
	purchaseOrder []ledger.PurchaseID
	grantOrder    []ledger.GrantID
}

func NewMemory() *Memory {
	return &Memory{
		subjects:   make(map[ledger.SubjectID]*ledger.Subject),
		packages:   make(map[ledger.PackageID]*ledger.Package),
		students:   make(map[ledger.StudentID]*ledger.Student),
		teachers:   make(map[ledger.TeacherID]*ledger.Teacher),
		purchases:  make(map[ledger.PurchaseID]*ledger.Purchase),
		grants:     make(map[ledger.GrantID]*ledger.CreditGrant),
		attendance: make(map[ledger.AttendanceID]*ledger.Attendance),
	}
}

// Reset drops all state. Used by demo scenario loading.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subjects = make(map[ledger.SubjectID]*ledger.Subject)
	m.packages = make(map[ledger.PackageID]*ledger.Package)
	m.students = make(map[ledger.StudentID]*ledger.Student)
	m.teachers = make(map[ledger.TeacherID]*ledger.Teacher)
	m.purchases = make(map[ledger.PurchaseID]*ledger.Purchase)
	m.grants = make(map[ledger.GrantID]*ledger.CreditGrant)
	m.attendance = make(map[ledger.AttendanceID]*ledger.Attendance)
	m.logs = nil
	m.subjectOrder = nil
	m.packageOrder = nil
	m.studentOrder = nil
	m.teacherOrder = nil
	m.purchaseOrder = nil
	m.grantOrder = nil
	return nil
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) CreateSubject(_ context.Context, s *ledger.Subject) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.subjects[s.ID] = &cp
	m.subjectOrder = append(m.subjectOrder, s.ID)
	return nil
}

func (m *Memory) GetSubject(_ context.Context, id ledger.SubjectID) (*ledger.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.subjects[id]
	if !ok {
		return nil, ledger.ErrSubjectNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ListSubjects(_ context.Context) ([]ledger.Subject, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Subject, 0, len(m.subjectOrder))
	for _, id := range m.subjectOrder {
		out = append(out, *m.subjects[id])
	}
	return out, nil
}

func (m *Memory) CreatePackage(_ context.Context, p *ledger.Package) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	cp.SubjectIDs = append([]ledger.SubjectID(nil), p.SubjectIDs...)
	m.packages[p.ID] = &cp
	m.packageOrder = append(m.packageOrder, p.ID)
	return nil
}

func (m *Memory) GetPackage(_ context.Context, id ledger.PackageID) (*ledger.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.packages[id]
	if !ok {
		return nil, ledger.ErrPackageNotFound
	}
	cp := *p
	cp.SubjectIDs = append([]ledger.SubjectID(nil), p.SubjectIDs...)
	return &cp, nil
}

func (m *Memory) ListPackages(_ context.Context) ([]ledger.Package, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Package, 0, len(m.packageOrder))
	for _, id := range m.packageOrder {
		p := *m.packages[id]
		p.SubjectIDs = append([]ledger.SubjectID(nil), m.packages[id].SubjectIDs...)
		out = append(out, p)
	}
	return out, nil
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) CreateStudent(_ context.Context, s *ledger.Student) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.students[s.ID] = &cp
	m.studentOrder = append(m.studentOrder, s.ID)
	return nil
}

func (m *Memory) GetStudent(_ context.Context, id ledger.StudentID) (*ledger.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[id]
	if !ok {
		return nil, ledger.ErrStudentNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Memory) ListStudents(_ context.Context) ([]ledger.Student, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Student, 0, len(m.studentOrder))
	for _, id := range m.studentOrder {
		out = append(out, *m.students[id])
	}
	return out, nil
}

func (m *Memory) CreateTeacher(_ context.Context, t *ledger.Teacher) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *t
	m.teachers[t.ID] = &cp
	m.teacherOrder = append(m.teacherOrder, t.ID)
	return nil
}

func (m *Memory) GetTeacher(_ context.Context, id ledger.TeacherID) (*ledger.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.teachers[id]
	if !ok {
		return nil, ledger.ErrTeacherNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) ListTeachers(_ context.Context) ([]ledger.Teacher, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Teacher, 0, len(m.teacherOrder))
	for _, id := range m.teacherOrder {
		out = append(out, *m.teachers[id])
	}
	return out, nil
}

// =============================================================================
// PURCHASES
// =============================================================================

func (m *Memory) CreatePurchase(_ context.Context, p *ledger.Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.purchases[p.ID] = &cp
	m.purchaseOrder = append(m.purchaseOrder, p.ID)
	return nil
}

func (m *Memory) GetPurchase(_ context.Context, id ledger.PurchaseID) (*ledger.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.purchases[id]
	if !ok {
		return nil, ledger.ErrPurchaseNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *Memory) ListPurchases(_ context.Context) ([]ledger.Purchase, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Purchase, 0, len(m.purchaseOrder))
	for _, id := range m.purchaseOrder {
		out = append(out, *m.purchases[id])
	}
	return out, nil
}

func (m *Memory) MarkPurchasePaid(_ context.Context, id ledger.PurchaseID, paidAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.purchases[id]
	if !ok {
		return ledger.ErrPurchaseNotFound
	}
	p.Status = ledger.PurchasePaid
	p.PaidAt = &paidAt
	return nil
}

func (m *Memory) DeletePurchase(_ context.Context, id ledger.PurchaseID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.purchases[id]; !ok {
		return ledger.ErrPurchaseNotFound
	}
	delete(m.purchases, id)
	for i, pid := range m.purchaseOrder {
		if pid == id {
			m.purchaseOrder = append(m.purchaseOrder[:i], m.purchaseOrder[i+1:]...)
			break
		}
	}
	return nil
}

// =============================================================================
// CREDIT GRANTS
// =============================================================================

func (m *Memory) InsertGrant(_ context.Context, g *ledger.CreditGrant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *g
	m.grants[g.ID] = &cp
	m.grantOrder = append(m.grantOrder, g.ID)
	return nil
}

func (m *Memory) GetGrant(_ context.Context, id ledger.GrantID) (*ledger.CreditGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.grants[id]
	if !ok {
		return nil, ledger.ErrGrantNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *Memory) GrantForPurchase(_ context.Context, id ledger.PurchaseID) (*ledger.CreditGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, gid := range m.grantOrder {
		if m.grants[gid].PurchaseID == id {
			cp := *m.grants[gid]
			return &cp, nil
		}
	}
	return nil, ledger.ErrGrantNotFound
}

func (m *Memory) EligibleGrants(_ context.Context, studentID ledger.StudentID, subjectID ledger.SubjectID) ([]ledger.CreditGrant, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.eligibleGrantsLocked(studentID, subjectID), nil
}

func (m *Memory) eligibleGrantsLocked(studentID ledger.StudentID, subjectID ledger.SubjectID) []ledger.CreditGrant {
	var out []ledger.CreditGrant
	for _, gid := range m.grantOrder {
		g := m.grants[gid]
		if g.StudentID != studentID {
			continue
		}
		if !m.grantFundsSubjectLocked(g, subjectID) {
			continue
		}
		out = append(out, *g)
	}
	// FIFO: oldest paid purchase first.
	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := m.purchases[out[i].PurchaseID], m.purchases[out[j].PurchaseID]
		if pi == nil || pi.PaidAt == nil || pj == nil || pj.PaidAt == nil {
			return false
		}
		return pi.PaidAt.Before(*pj.PaidAt)
	})
	return out
}

func (m *Memory) grantFundsSubjectLocked(g *ledger.CreditGrant, subjectID ledger.SubjectID) bool {
	p, ok := m.purchases[g.PurchaseID]
	if !ok {
		return false
	}
	pkg, ok := m.packages[p.PackageID]
	if !ok {
		return false
	}
	for _, sid := range pkg.SubjectIDs {
		if sid == subjectID {
			return true
		}
	}
	return false
}

func (m *Memory) TryDebitGrant(_ context.Context, id ledger.GrantID, amount int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok {
		return false, ledger.ErrGrantNotFound
	}
	if g.CreditsRemaining < amount {
		return false, nil
	}
	g.CreditsRemaining -= amount
	return true, nil
}

func (m *Memory) RefundGrant(_ context.Context, id ledger.GrantID, amount int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.grants[id]
	if !ok {
		return ledger.ErrGrantNotFound
	}
	g.CreditsRemaining += amount
	return nil
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func (m *Memory) InsertAttendance(_ context.Context, a *ledger.Attendance) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *a
	m.attendance[a.ID] = &cp
	return nil
}

func (m *Memory) GetAttendance(_ context.Context, id ledger.AttendanceID) (*ledger.Attendance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attendance[id]
	if !ok {
		return nil, ledger.ErrAttendanceNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) MarkAttendanceCancelled(_ context.Context, id ledger.AttendanceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.attendance[id]
	if !ok {
		return ledger.ErrAttendanceNotFound
	}
	a.Status = ledger.AttendanceCancelled
	return nil
}

// =============================================================================
// ATTENDANCE LOG (append-only)
// =============================================================================

func (m *Memory) AppendAttendanceLog(_ context.Context, l *ledger.AttendanceLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logs = append(m.logs, *l)
	return nil
}

func (m *Memory) AttendanceLogs(_ context.Context, id ledger.AttendanceID) ([]ledger.AttendanceLog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.AttendanceLog
	for _, l := range m.logs {
		if l.AttendanceID == id {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// READ-SIDE QUERIES
// =============================================================================

func (m *Memory) RemainingCredit(_ context.Context, studentID ledger.StudentID, subjectID ledger.SubjectID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := 0
	for _, g := range m.eligibleGrantsLocked(studentID, subjectID) {
		total += g.CreditsRemaining
	}
	return total, nil
}

func (m *Memory) SubjectCredits(_ context.Context, studentID ledger.StudentID) ([]ledger.SubjectCredit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bySubject := make(map[ledger.SubjectID]int)
	for _, gid := range m.grantOrder {
		g := m.grants[gid]
		if g.StudentID != studentID || g.CreditsRemaining == 0 {
			continue
		}
		p, ok := m.purchases[g.PurchaseID]
		if !ok {
			continue
		}
		pkg, ok := m.packages[p.PackageID]
		if !ok {
			continue
		}
		for _, sid := range pkg.SubjectIDs {
			bySubject[sid] += g.CreditsRemaining
		}
	}
	out := make([]ledger.SubjectCredit, 0, len(bySubject))
	for sid, n := range bySubject {
		name := ""
		if s, ok := m.subjects[sid]; ok {
			name = s.Name
		}
		out = append(out, ledger.SubjectCredit{SubjectID: sid, SubjectName: name, Remaining: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SubjectName < out[j].SubjectName })
	return out, nil
}

func (m *Memory) EligibleStudents(_ context.Context, subjectID ledger.SubjectID) ([]ledger.EligibleStudent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.EligibleStudent
	for _, sid := range m.studentOrder {
		total := 0
		for _, g := range m.eligibleGrantsLocked(sid, subjectID) {
			total += g.CreditsRemaining
		}
		if total <= 0 {
			continue
		}
		st := m.students[sid]
		out = append(out, ledger.EligibleStudent{
			StudentID:    st.ID,
			FullName:     st.FullName,
			Nickname:     st.Nickname,
			TotalCredits: total,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

func (m *Memory) SearchAttendance(_ context.Context, params ledger.SearchAttendanceParams) ([]ledger.AttendanceRecord, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	needle := strings.ToLower(strings.TrimSpace(params.Search))

	var matched []ledger.AttendanceRecord
	for _, a := range m.attendance {
		if params.SubjectID != "" && a.SubjectID != params.SubjectID {
			continue
		}
		rec := m.recordLocked(a)
		if needle != "" && !recordMatches(rec, needle) {
			continue
		}
		matched = append(matched, rec)
	}

	// Newest first, id as tie-break, matching the SQL stores' ORDER BY.
	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CheckedAt.Equal(matched[j].CheckedAt) {
			return matched[i].CheckedAt.After(matched[j].CheckedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := len(matched)
	offset := (params.Page - 1) * params.PerPage
	if offset >= total {
		return nil, total, nil
	}
	end := offset + params.PerPage
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (m *Memory) recordLocked(a *ledger.Attendance) ledger.AttendanceRecord {
	rec := ledger.AttendanceRecord{Attendance: *a}
	if st, ok := m.students[a.StudentID]; ok {
		rec.StudentName = st.FullName
		rec.StudentNickname = st.Nickname
		rec.GuardianPhone = st.GuardianPhone
	}
	if s, ok := m.subjects[a.SubjectID]; ok {
		rec.SubjectName = s.Name
	}
	if t, ok := m.teachers[a.TeacherID]; ok {
		rec.TeacherName = t.FullName
	}
	return rec
}

func recordMatches(rec ledger.AttendanceRecord, needle string) bool {
	if strings.Contains(strings.ToLower(rec.StudentName), needle) {
		return true
	}
	if rec.StudentNickname != nil && strings.Contains(strings.ToLower(*rec.StudentNickname), needle) {
		return true
	}
	if rec.GuardianPhone != nil && strings.Contains(strings.ToLower(*rec.GuardianPhone), needle) {
		return true
	}
	return false
}
