package store

import (
	"context"

	"github.com/studyhall/credit-engine/ledger"
)

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support.
//
// Transactions are serialized on txMu: WithTx snapshots the full state,
// runs the closure against the live store, and restores the snapshot when
// the closure fails. Serializing whole transactions is stricter than the
// SQL stores' row locking, which keeps test semantics simple.
type TxMemory struct {
	*Memory
	txMu chan struct{}
}

func NewTxMemory() *TxMemory {
	tm := &TxMemory{Memory: NewMemory(), txMu: make(chan struct{}, 1)}
	tm.txMu <- struct{}{}
	return tm
}

// WithTx executes fn within a transaction. On error the pre-transaction
// snapshot is restored.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	select {
	case <-tm.txMu:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { tm.txMu <- struct{}{} }()

	snap := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	subjects map[ledger.SubjectID]ledger.Subject
	packages map[ledger.PackageID]ledger.Package
	students map[ledger.StudentID]ledger.Student
	teachers map[ledger.TeacherID]ledger.Teacher

	purchases  map[ledger.PurchaseID]ledger.Purchase
	grants     map[ledger.GrantID]ledger.CreditGrant
	attendance map[ledger.AttendanceID]ledger.Attendance
	logs       []ledger.AttendanceLog

	subjectOrder  []ledger.SubjectID
	packageOrder  []ledger.PackageID
	studentOrder  []ledger.StudentID
	teacherOrder  []ledger.TeacherID
	purchaseOrder []ledger.PurchaseID
	grantOrder    []ledger.GrantID
}

func (tm *TxMemory) snapshot() memSnapshot {
	m := tm.Memory
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := memSnapshot{
		subjects:   make(map[ledger.SubjectID]ledger.Subject, len(m.subjects)),
		packages:   make(map[ledger.PackageID]ledger.Package, len(m.packages)),
		students:   make(map[ledger.StudentID]ledger.Student, len(m.students)),
		teachers:   make(map[ledger.TeacherID]ledger.Teacher, len(m.teachers)),
		purchases:  make(map[ledger.PurchaseID]ledger.Purchase, len(m.purchases)),
		grants:     make(map[ledger.GrantID]ledger.CreditGrant, len(m.grants)),
		attendance: make(map[ledger.AttendanceID]ledger.Attendance, len(m.attendance)),

		logs:          append([]ledger.AttendanceLog(nil), m.logs...),
		subjectOrder:  append([]ledger.SubjectID(nil), m.subjectOrder...),
		packageOrder:  append([]ledger.PackageID(nil), m.packageOrder...),
		studentOrder:  append([]ledger.StudentID(nil), m.studentOrder...),
		teacherOrder:  append([]ledger.TeacherID(nil), m.teacherOrder...),
		purchaseOrder: append([]ledger.PurchaseID(nil), m.purchaseOrder...),
		grantOrder:    append([]ledger.GrantID(nil), m.grantOrder...),
	}
	for id, v := range m.subjects {
		snap.subjects[id] = *v
	}
	for id, v := range m.packages {
		cp := *v
		cp.SubjectIDs = append([]ledger.SubjectID(nil), v.SubjectIDs...)
		snap.packages[id] = cp
	}
	for id, v := range m.students {
		snap.students[id] = *v
	}
	for id, v := range m.teachers {
		snap.teachers[id] = *v
	}
	for id, v := range m.purchases {
		cp := *v
		if v.PaidAt != nil {
			paidAt := *v.PaidAt
			cp.PaidAt = &paidAt
		}
		snap.purchases[id] = cp
	}
	for id, v := range m.grants {
		snap.grants[id] = *v
	}
	for id, v := range m.attendance {
		snap.attendance[id] = *v
	}
	return snap
}

func (tm *TxMemory) restore(snap memSnapshot) {
	m := tm.Memory
	m.mu.Lock()
	defer m.mu.Unlock()

	m.subjects = make(map[ledger.SubjectID]*ledger.Subject, len(snap.subjects))
	for id := range snap.subjects {
		v := snap.subjects[id]
		m.subjects[id] = &v
	}
	m.packages = make(map[ledger.PackageID]*ledger.Package, len(snap.packages))
	for id := range snap.packages {
		v := snap.packages[id]
		m.packages[id] = &v
	}
	m.students = make(map[ledger.StudentID]*ledger.Student, len(snap.students))
	for id := range snap.students {
		v := snap.students[id]
		m.students[id] = &v
	}
	m.teachers = make(map[ledger.TeacherID]*ledger.Teacher, len(snap.teachers))
	for id := range snap.teachers {
		v := snap.teachers[id]
		m.teachers[id] = &v
	}
	m.purchases = make(map[ledger.PurchaseID]*ledger.Purchase, len(snap.purchases))
	for id := range snap.purchases {
		v := snap.purchases[id]
		m.purchases[id] = &v
	}
	m.grants = make(map[ledger.GrantID]*ledger.CreditGrant, len(snap.grants))
	for id := range snap.grants {
		v := snap.grants[id]
		m.grants[id] = &v
	}
	m.attendance = make(map[ledger.AttendanceID]*ledger.Attendance, len(snap.attendance))
	for id := range snap.attendance {
		v := snap.attendance[id]
		m.attendance[id] = &v
	}

	m.logs = snap.logs
	m.subjectOrder = snap.subjectOrder
	m.packageOrder = snap.packageOrder
	m.studentOrder = snap.studentOrder
	m.teacherOrder = snap.teacherOrder
	m.purchaseOrder = snap.purchaseOrder
	m.grantOrder = snap.grantOrder
}
