/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates subjects, packages,
	students, teachers, purchases, and attendance that demonstrate specific
	behaviors of the credit engine.

AVAILABLE SCENARIOS:

	new-student:    One settled purchase, full credit, no attendance yet
	busy-semester:  Several students mid-semester, check-ins and one cancel
	fifo-depletion: Two settled purchases showing oldest-first consumption

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create catalog (subjects, packages)
 3. Create students and teachers
 4. Create and settle purchases through the engine
 5. Optionally run check-ins and cancellations through the engine

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Remaining HTTP handlers
  - ledger/engine.go: The operations scenarios drive
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/studyhall/credit-engine/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "new-student",
		Name:        "New Student",
		Description: "Single settled purchase, 10 credits untouched",
	},
	{
		ID:          "busy-semester",
		Name:        "Busy Semester",
		Description: "Three students mid-semester with check-ins and one cancellation",
	},
	{
		ID:          "fifo-depletion",
		Name:        "FIFO Depletion",
		Description: "Two settled purchases demonstrating oldest-grant-first consumption",
	},
}

// resetter is implemented by every store; scenario loading wipes the
// database before seeding.
type resetter interface {
	Reset(ctx context.Context) error
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario wipes the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", "invalid_input", err)
		return
	}

	ctx := r.Context()
	rs, ok := h.Store.(resetter)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Store does not support reset", "internal", nil)
		return
	}
	if err := rs.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", "internal", err)
		return
	}

	var err error
	switch req.ID {
	case "new-student":
		err = h.loadNewStudentScenario(ctx)
	case "busy-semester":
		err = h.loadBusySemesterScenario(ctx)
	case "fifo-depletion":
		err = h.loadFIFODepletionScenario(ctx)
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", "invalid_input", nil)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), "internal", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ID})
}

// Reset wipes all data without loading anything.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	rs, ok := h.Store.(resetter)
	if !ok {
		writeError(w, http.StatusInternalServerError, "Store does not support reset", "internal", nil)
		return
	}
	if err := rs.Reset(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

// =============================================================================
// SEED HELPERS
// =============================================================================

func strPtr(s string) *string { return &s }

func (h *Handler) seedSubject(ctx context.Context, id, name, color string) error {
	return h.Store.CreateSubject(ctx, &ledger.Subject{
		ID:        ledger.SubjectID(id),
		Name:      name,
		Color:     strPtr(color),
		CreatedAt: time.Now().UTC(),
	})
}

func (h *Handler) seedPackage(ctx context.Context, id, name string, credits int, price string, subjects ...string) error {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return err
	}
	sids := make([]ledger.SubjectID, 0, len(subjects))
	for _, s := range subjects {
		sids = append(sids, ledger.SubjectID(s))
	}
	return h.Store.CreatePackage(ctx, &ledger.Package{
		ID:          ledger.PackageID(id),
		Name:        name,
		CreditCount: credits,
		Price:       p,
		IsActive:    true,
		SubjectIDs:  sids,
		CreatedAt:   time.Now().UTC(),
	})
}

func (h *Handler) seedStudent(ctx context.Context, id, name, nickname, phone string) error {
	st := &ledger.Student{
		ID:        ledger.StudentID(id),
		FullName:  name,
		CreatedAt: time.Now().UTC(),
	}
	if nickname != "" {
		st.Nickname = strPtr(nickname)
	}
	if phone != "" {
		st.GuardianPhone = strPtr(phone)
	}
	return h.Store.CreateStudent(ctx, st)
}

func (h *Handler) seedTeacher(ctx context.Context, id, name string) error {
	return h.Store.CreateTeacher(ctx, &ledger.Teacher{
		ID:        ledger.TeacherID(id),
		FullName:  name,
		CreatedAt: time.Now().UTC(),
	})
}

// settledPurchase runs a purchase through the real settlement path so the
// scenario data obeys the same invariants as live traffic.
func (h *Handler) settledPurchase(ctx context.Context, studentID, packageID string) error {
	purchase, err := h.Engine.CreatePurchase(ctx, ledger.StudentID(studentID), ledger.PackageID(packageID))
	if err != nil {
		return err
	}
	_, _, err = h.Engine.SettlePurchase(ctx, purchase.ID)
	return err
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) loadNewStudentScenario(ctx context.Context) error {
	if err := h.seedSubject(ctx, "subj-math", "Math", "#2563eb"); err != nil {
		return err
	}
	if err := h.seedPackage(ctx, "pkg-math-10", "Math 10-pack", 10, "300.00", "subj-math"); err != nil {
		return err
	}
	if err := h.seedStudent(ctx, "stu-mina", "Mina Park", "Mimi", "010-1111-2222"); err != nil {
		return err
	}
	if err := h.seedTeacher(ctx, "tch-oh", "Mr. Oh"); err != nil {
		return err
	}
	return h.settledPurchase(ctx, "stu-mina", "pkg-math-10")
}

func (h *Handler) loadBusySemesterScenario(ctx context.Context) error {
	for _, s := range [][3]string{
		{"subj-math", "Math", "#2563eb"},
		{"subj-english", "English", "#16a34a"},
		{"subj-science", "Science", "#dc2626"},
	} {
		if err := h.seedSubject(ctx, s[0], s[1], s[2]); err != nil {
			return err
		}
	}
	if err := h.seedPackage(ctx, "pkg-math-10", "Math 10-pack", 10, "300.00", "subj-math"); err != nil {
		return err
	}
	if err := h.seedPackage(ctx, "pkg-combo-20", "Math+English 20-pack", 20, "520.00", "subj-math", "subj-english"); err != nil {
		return err
	}
	if err := h.seedPackage(ctx, "pkg-science-8", "Science 8-pack", 8, "260.00", "subj-science"); err != nil {
		return err
	}

	for _, st := range [][4]string{
		{"stu-mina", "Mina Park", "Mimi", "010-1111-2222"},
		{"stu-jun", "Jun Kim", "", "010-3333-4444"},
		{"stu-sora", "Sora Lee", "So", "010-5555-6666"},
	} {
		if err := h.seedStudent(ctx, st[0], st[1], st[2], st[3]); err != nil {
			return err
		}
	}
	if err := h.seedTeacher(ctx, "tch-oh", "Mr. Oh"); err != nil {
		return err
	}
	if err := h.seedTeacher(ctx, "tch-han", "Ms. Han"); err != nil {
		return err
	}

	for _, p := range [][2]string{
		{"stu-mina", "pkg-combo-20"},
		{"stu-jun", "pkg-math-10"},
		{"stu-sora", "pkg-science-8"},
	} {
		if err := h.settledPurchase(ctx, p[0], p[1]); err != nil {
			return err
		}
	}

	// A few check-ins, one of which gets cancelled.
	checkIns := []ledger.CheckInInput{
		{StudentID: "stu-mina", SubjectID: "subj-math", TeacherID: "tch-oh"},
		{StudentID: "stu-mina", SubjectID: "subj-english", TeacherID: "tch-han"},
		{StudentID: "stu-jun", SubjectID: "subj-math", TeacherID: "tch-oh"},
		{StudentID: "stu-sora", SubjectID: "subj-science", TeacherID: "tch-han"},
	}
	var last *ledger.Attendance
	for _, in := range checkIns {
		att, err := h.Engine.CheckIn(ctx, in)
		if err != nil {
			return err
		}
		last = att
	}
	_, err := h.Engine.Cancel(ctx, last.ID, "tch-han", strPtr("entered for the wrong student"))
	return err
}

func (h *Handler) loadFIFODepletionScenario(ctx context.Context) error {
	if err := h.seedSubject(ctx, "subj-math", "Math", "#2563eb"); err != nil {
		return err
	}
	if err := h.seedPackage(ctx, "pkg-math-2", "Math starter 2-pack", 2, "70.00", "subj-math"); err != nil {
		return err
	}
	if err := h.seedPackage(ctx, "pkg-math-10", "Math 10-pack", 10, "300.00", "subj-math"); err != nil {
		return err
	}
	if err := h.seedStudent(ctx, "stu-jun", "Jun Kim", "", "010-3333-4444"); err != nil {
		return err
	}
	if err := h.seedTeacher(ctx, "tch-oh", "Mr. Oh"); err != nil {
		return err
	}

	// Older small purchase settles first, so its grant drains first.
	if err := h.settledPurchase(ctx, "stu-jun", "pkg-math-2"); err != nil {
		return err
	}
	if err := h.settledPurchase(ctx, "stu-jun", "pkg-math-10"); err != nil {
		return err
	}

	// Three check-ins: the first two empty the older grant, the third
	// rolls over to the newer one.
	for i := 0; i < 3; i++ {
		if _, err := h.Engine.CheckIn(ctx, ledger.CheckInInput{
			StudentID: "stu-jun",
			SubjectID: "subj-math",
			TeacherID: "tch-oh",
		}); err != nil {
			return err
		}
	}
	return nil
}
