/*
engine_test.go - Core engine behavior tests

Covers the full credit lifecycle against the in-memory store: settlement
and its idempotency, FIFO consumption, the no-splitting rule, cancel
reversibility, eligibility queries, and credit conservation. The SQL
stores share these semantics; store-specific tests live next to them.
*/
package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/credit-engine/ledger"
	"github.com/studyhall/credit-engine/ledger/store"
	"github.com/studyhall/credit-engine/metrics"
)

// =============================================================================
// FIXTURES
// =============================================================================

const (
	subjMath    = ledger.SubjectID("subj-math")
	subjEnglish = ledger.SubjectID("subj-english")
	stuMina     = ledger.StudentID("stu-mina")
	stuJun      = ledger.StudentID("stu-jun")
	tchOh       = ledger.TeacherID("tch-oh")
)

func newTestEngine(t *testing.T) (*ledger.Engine, *store.TxMemory) {
	t.Helper()
	st := store.NewTxMemory()
	return ledger.NewEngine(st, nil), st
}

func strPtr(s string) *string { return &s }

// seedWorld creates the base catalog and directory every test uses: two
// subjects, two students, one teacher. Packages vary per test.
func seedWorld(t *testing.T, st *store.TxMemory) {
	t.Helper()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.CreateSubject(ctx, &ledger.Subject{ID: subjMath, Name: "Math", CreatedAt: now}))
	require.NoError(t, st.CreateSubject(ctx, &ledger.Subject{ID: subjEnglish, Name: "English", CreatedAt: now}))
	require.NoError(t, st.CreateStudent(ctx, &ledger.Student{
		ID: stuMina, FullName: "Mina Park", Nickname: strPtr("Mimi"),
		GuardianPhone: strPtr("010-1111-2222"), CreatedAt: now,
	}))
	require.NoError(t, st.CreateStudent(ctx, &ledger.Student{
		ID: stuJun, FullName: "Jun Kim", CreatedAt: now,
	}))
	require.NoError(t, st.CreateTeacher(ctx, &ledger.Teacher{ID: tchOh, FullName: "Mr. Oh", CreatedAt: now}))
}

func seedPackage(t *testing.T, st *store.TxMemory, id ledger.PackageID, credits int, subjects ...ledger.SubjectID) {
	t.Helper()
	require.NoError(t, st.CreatePackage(context.Background(), &ledger.Package{
		ID:          id,
		Name:        string(id),
		CreditCount: credits,
		Price:       decimal.NewFromInt(int64(credits) * 30),
		IsActive:    true,
		SubjectIDs:  subjects,
		CreatedAt:   time.Now().UTC(),
	}))
}

// settle creates and settles a purchase, returning the grant.
func settle(t *testing.T, e *ledger.Engine, studentID ledger.StudentID, packageID ledger.PackageID) *ledger.CreditGrant {
	t.Helper()
	ctx := context.Background()
	p, err := e.CreatePurchase(ctx, studentID, packageID)
	require.NoError(t, err)
	_, g, err := e.SettlePurchase(ctx, p.ID)
	require.NoError(t, err)
	return g
}

// =============================================================================
// SETTLEMENT
// =============================================================================

func TestSettlePurchaseCreatesGrant(t *testing.T) {
	// GIVEN a pending purchase of a 10-credit math package
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	ctx := context.Background()

	p, err := e.CreatePurchase(ctx, stuMina, "pkg-math-10")
	require.NoError(t, err)
	assert.Equal(t, ledger.PurchasePending, p.Status)
	assert.Nil(t, p.PaidAt)

	// No credit exists before settlement
	remaining, err := e.RemainingCredit(ctx, stuMina, subjMath)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	// WHEN the purchase is settled
	paid, grant, err := e.SettlePurchase(ctx, p.ID)
	require.NoError(t, err)

	// THEN the purchase is paid and the grant carries the package's credits
	assert.Equal(t, ledger.PurchasePaid, paid.Status)
	require.NotNil(t, paid.PaidAt)
	assert.Equal(t, 10, grant.CreditsRemaining)
	assert.Equal(t, p.ID, grant.PurchaseID)

	remaining, err = e.RemainingCredit(ctx, stuMina, subjMath)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestSettlePurchaseIsIdempotent(t *testing.T) {
	// GIVEN an already-settled purchase
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	ctx := context.Background()

	p, err := e.CreatePurchase(ctx, stuMina, "pkg-math-10")
	require.NoError(t, err)
	_, first, err := e.SettlePurchase(ctx, p.ID)
	require.NoError(t, err)

	// WHEN it is settled a second time
	_, second, err := e.SettlePurchase(ctx, p.ID)
	require.NoError(t, err)

	// THEN the same grant comes back and no extra credit appears
	assert.Equal(t, first.ID, second.ID)
	remaining, err := e.RemainingCredit(ctx, stuMina, subjMath)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestSettleUnknownPurchase(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)

	_, _, err := e.SettlePurchase(context.Background(), "missing")
	assert.True(t, ledger.IsNotFound(err))
}

func TestCreatePurchaseRequiresKnownRefs(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	ctx := context.Background()

	_, err := e.CreatePurchase(ctx, "ghost", "pkg-math-10")
	assert.True(t, ledger.IsNotFound(err))

	_, err = e.CreatePurchase(ctx, stuMina, "ghost")
	assert.True(t, ledger.IsNotFound(err))
}

func TestDeletePurchase(t *testing.T) {
	// GIVEN one pending and one settled purchase
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	ctx := context.Background()

	pending, err := e.CreatePurchase(ctx, stuMina, "pkg-math-10")
	require.NoError(t, err)
	paid, err := e.CreatePurchase(ctx, stuMina, "pkg-math-10")
	require.NoError(t, err)
	_, _, err = e.SettlePurchase(ctx, paid.ID)
	require.NoError(t, err)

	// THEN the pending one deletes, the paid one is refused
	require.NoError(t, e.DeletePurchase(ctx, pending.ID))
	err = e.DeletePurchase(ctx, paid.ID)
	assert.ErrorIs(t, err, ledger.ErrPurchasePaid)

	// The refusal left the grant intact
	remaining, err := e.RemainingCredit(ctx, stuMina, subjMath)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestZeroSubjectPackageSettlesButGrantsUnusableCredit(t *testing.T) {
	// GIVEN a package funding no subjects (catalog data-entry error)
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-empty", 5)
	ctx := context.Background()

	// WHEN it settles
	g := settle(t, e, stuMina, "pkg-empty")
	assert.Equal(t, 5, g.CreditsRemaining)

	// THEN the credit applies to no subject
	remaining, err := e.RemainingCredit(ctx, stuMina, subjMath)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
	credits, err := e.SubjectCredits(ctx, stuMina)
	require.NoError(t, err)
	assert.Empty(t, credits)
}

// =============================================================================
// CHECK-IN
// =============================================================================

func TestCheckInDebitsOldestGrantFirst(t *testing.T) {
	// GIVEN a small older grant and a large newer one
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-2", 2, subjMath)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	ctx := context.Background()

	older := settle(t, e, stuJun, "pkg-math-2")
	newer := settle(t, e, stuJun, "pkg-math-10")

	// WHEN three single-credit check-ins happen
	var grants []ledger.GrantID
	for i := 0; i < 3; i++ {
		att, err := e.CheckIn(ctx, ledger.CheckInInput{
			StudentID: stuJun, SubjectID: subjMath, TeacherID: tchOh,
		})
		require.NoError(t, err)
		grants = append(grants, att.GrantID)
	}

	// THEN the older grant drains before the newer one is touched
	assert.Equal(t, []ledger.GrantID{older.ID, older.ID, newer.ID}, grants)

	g, err := st.GetGrant(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, g.CreditsRemaining)
	g, err = st.GetGrant(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, g.CreditsRemaining)
}

func TestCheckInNeverSplitsAcrossGrants(t *testing.T) {
	// GIVEN two grants of 1 credit each (total 2)
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-1", 1, subjMath)
	ctx := context.Background()

	settle(t, e, stuJun, "pkg-math-1")
	settle(t, e, stuJun, "pkg-math-1")

	// WHEN a 2-credit check-in is attempted
	_, err := e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuJun, SubjectID: subjMath, TeacherID: tchOh, CreditsUsed: 2,
	})

	// THEN it fails whole: no single grant covers the amount
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredit)
	var ice *ledger.InsufficientCreditError
	require.ErrorAs(t, err, &ice)
	assert.Equal(t, 2, ice.Available)
	assert.Equal(t, 2, ice.Requested)

	// And the ledger is untouched: no attendance, no logs, full balance
	remaining, err := e.RemainingCredit(ctx, stuJun, subjMath)
	require.NoError(t, err)
	assert.Equal(t, 2, remaining)
	page, err := e.SearchAttendance(ctx, ledger.SearchAttendanceParams{})
	require.NoError(t, err)
	assert.Equal(t, 0, page.TotalCount)
}

func TestCheckInDefaultsToOneCredit(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	settle(t, e, stuMina, "pkg-math-10")
	ctx := context.Background()

	att, err := e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuMina, SubjectID: subjMath, TeacherID: tchOh,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, att.CreditsUsed)

	_, err = e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuMina, SubjectID: subjMath, TeacherID: tchOh, CreditsUsed: -1,
	})
	assert.ErrorIs(t, err, ledger.ErrInvalidInput)
}

func TestCheckInUnknownRefs(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	settle(t, e, stuMina, "pkg-math-10")
	ctx := context.Background()

	_, err := e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuMina, SubjectID: "ghost", TeacherID: tchOh,
	})
	assert.True(t, ledger.IsNotFound(err))

	_, err = e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuMina, SubjectID: subjMath, TeacherID: "ghost",
	})
	assert.True(t, ledger.IsNotFound(err))
}

func TestCheckInWrongSubjectCredit(t *testing.T) {
	// GIVEN credit usable only for math
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	settle(t, e, stuMina, "pkg-math-10")

	// WHEN checking in for english
	_, err := e.CheckIn(context.Background(), ledger.CheckInInput{
		StudentID: stuMina, SubjectID: subjEnglish, TeacherID: tchOh,
	})

	// THEN the math credit does not apply
	assert.ErrorIs(t, err, ledger.ErrInsufficientCredit)
}

func TestCheckInWritesAuditLog(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	settle(t, e, stuMina, "pkg-math-10")
	ctx := context.Background()

	att, err := e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuMina, SubjectID: subjMath, TeacherID: tchOh,
	})
	require.NoError(t, err)

	logs, err := e.AttendanceLogs(ctx, att.ID)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, ledger.LogCheckIn, logs[0].Action)
	assert.Equal(t, string(tchOh), logs[0].PerformedBy)
}

func TestCheckInMetricsDistinguishFailureKinds(t *testing.T) {
	// GIVEN a student with no credit
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-1", 1, subjMath)
	ctx := context.Background()

	insufficient := func() float64 {
		return testutil.ToFloat64(metrics.CheckIns.WithLabelValues("insufficient_credit"))
	}

	// WHEN the input is malformed
	before := insufficient()
	_, err := e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuMina, SubjectID: subjMath, TeacherID: tchOh, CreditsUsed: -1,
	})
	require.ErrorIs(t, err, ledger.ErrInvalidInput)

	// THEN the shortage counter is untouched
	assert.Equal(t, before, insufficient())

	// A real shortage does count
	_, err = e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuMina, SubjectID: subjMath, TeacherID: tchOh,
	})
	require.ErrorIs(t, err, ledger.ErrInsufficientCredit)
	assert.Equal(t, before+1, insufficient())
}

// =============================================================================
// CANCEL
// =============================================================================

func TestCancelRefundsTheExactGrant(t *testing.T) {
	// GIVEN the older grant is drained and the newer one partially used
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-2", 2, subjMath)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	ctx := context.Background()

	older := settle(t, e, stuJun, "pkg-math-2")
	newer := settle(t, e, stuJun, "pkg-math-10")

	first, err := e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuJun, SubjectID: subjMath, TeacherID: tchOh, CreditsUsed: 2,
	})
	require.NoError(t, err)
	require.Equal(t, older.ID, first.GrantID)
	second, err := e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuJun, SubjectID: subjMath, TeacherID: tchOh,
	})
	require.NoError(t, err)
	require.Equal(t, newer.ID, second.GrantID)

	// WHEN the first attendance is cancelled
	cancelled, err := e.Cancel(ctx, first.ID, string(tchOh), strPtr("double entry"))
	require.NoError(t, err)
	assert.Equal(t, ledger.AttendanceCancelled, cancelled.Status)

	// THEN the refund lands on the OLDER grant, not the most recent one
	g, err := st.GetGrant(ctx, older.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, g.CreditsRemaining)
	g, err = st.GetGrant(ctx, newer.ID)
	require.NoError(t, err)
	assert.Equal(t, 9, g.CreditsRemaining)

	// And the row survives as cancelled history with a full audit trail
	logs, err := e.AttendanceLogs(ctx, first.ID)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, ledger.LogCheckIn, logs[0].Action)
	assert.Equal(t, ledger.LogCancel, logs[1].Action)
	require.NotNil(t, logs[1].Reason)
	assert.Equal(t, "double entry", *logs[1].Reason)
}

func TestCancelTwiceDoesNotDoubleRefund(t *testing.T) {
	// GIVEN a cancelled attendance
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	settle(t, e, stuMina, "pkg-math-10")
	ctx := context.Background()

	att, err := e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuMina, SubjectID: subjMath, TeacherID: tchOh,
	})
	require.NoError(t, err)
	_, err = e.Cancel(ctx, att.ID, string(tchOh), nil)
	require.NoError(t, err)

	// WHEN cancelling again
	_, err = e.Cancel(ctx, att.ID, string(tchOh), nil)

	// THEN it fails and the balance stays refunded exactly once
	assert.ErrorIs(t, err, ledger.ErrAlreadyCancelled)
	remaining, err := e.RemainingCredit(ctx, stuMina, subjMath)
	require.NoError(t, err)
	assert.Equal(t, 10, remaining)
}

func TestCancelUnknownAttendance(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)

	_, err := e.Cancel(context.Background(), "missing", "someone", nil)
	assert.True(t, ledger.IsNotFound(err))
}

// =============================================================================
// QUERIES
// =============================================================================

func TestEligibleStudentsListsOnlyPositiveBalances(t *testing.T) {
	// GIVEN Mina with 10 math credits and Jun with 1, then Jun spends it
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	seedPackage(t, st, "pkg-math-1", 1, subjMath)
	ctx := context.Background()

	settle(t, e, stuMina, "pkg-math-10")
	settle(t, e, stuJun, "pkg-math-1")
	_, err := e.CheckIn(ctx, ledger.CheckInInput{
		StudentID: stuJun, SubjectID: subjMath, TeacherID: tchOh,
	})
	require.NoError(t, err)

	// WHEN listing eligible students for math
	students, err := e.ListEligibleStudents(ctx, subjMath)
	require.NoError(t, err)

	// THEN only Mina appears
	require.Len(t, students, 1)
	assert.Equal(t, stuMina, students[0].StudentID)
	assert.Equal(t, 10, students[0].TotalCredits)

	// Unknown subject is an error, not an empty list
	_, err = e.ListEligibleStudents(ctx, "ghost")
	assert.True(t, ledger.IsNotFound(err))
}

func TestSubjectCreditsAggregateAcrossPackages(t *testing.T) {
	// GIVEN a math-only package and a math+english combo
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	seedPackage(t, st, "pkg-combo-20", 20, subjMath, subjEnglish)
	ctx := context.Background()

	settle(t, e, stuMina, "pkg-math-10")
	settle(t, e, stuMina, "pkg-combo-20")

	// THEN math shows the sum and english only the combo
	credits, err := e.SubjectCredits(ctx, stuMina)
	require.NoError(t, err)
	require.Len(t, credits, 2)

	bySubject := map[ledger.SubjectID]int{}
	for _, c := range credits {
		bySubject[c.SubjectID] = c.Remaining
	}
	assert.Equal(t, 30, bySubject[subjMath])
	assert.Equal(t, 20, bySubject[subjEnglish])
}

func TestSearchAttendancePaginatesNewestFirst(t *testing.T) {
	// GIVEN five check-ins
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	settle(t, e, stuMina, "pkg-math-10")
	ctx := context.Background()

	var ids []ledger.AttendanceID
	for i := 0; i < 5; i++ {
		att, err := e.CheckIn(ctx, ledger.CheckInInput{
			StudentID: stuMina, SubjectID: subjMath, TeacherID: tchOh,
		})
		require.NoError(t, err)
		ids = append(ids, att.ID)
	}

	// WHEN fetching page 2 with 2 per page
	page, err := e.SearchAttendance(ctx, ledger.SearchAttendanceParams{Page: 2, PerPage: 2})
	require.NoError(t, err)

	// THEN the total covers the filtered set and ordering is newest first
	assert.Equal(t, 5, page.TotalCount)
	require.Len(t, page.Records, 2)
	assert.Equal(t, ids[2], page.Records[0].ID)
	assert.Equal(t, ids[1], page.Records[1].ID)

	// A page past the end is empty but still reports the true total
	page, err = e.SearchAttendance(ctx, ledger.SearchAttendanceParams{Page: 9, PerPage: 2})
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Equal(t, 5, page.TotalCount)
}

func TestSearchAttendanceFilters(t *testing.T) {
	// GIVEN check-ins by two students in two subjects
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-combo-20", 20, subjMath, subjEnglish)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	ctx := context.Background()

	settle(t, e, stuMina, "pkg-combo-20")
	settle(t, e, stuJun, "pkg-math-10")

	for _, in := range []ledger.CheckInInput{
		{StudentID: stuMina, SubjectID: subjMath, TeacherID: tchOh},
		{StudentID: stuMina, SubjectID: subjEnglish, TeacherID: tchOh},
		{StudentID: stuJun, SubjectID: subjMath, TeacherID: tchOh},
	} {
		_, err := e.CheckIn(ctx, in)
		require.NoError(t, err)
	}

	// Nickname search matches Mina only, case-insensitively
	page, err := e.SearchAttendance(ctx, ledger.SearchAttendanceParams{Search: "mimi"})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)
	for _, rec := range page.Records {
		assert.Equal(t, stuMina, rec.StudentID)
	}

	// Subject filter narrows to math
	page, err = e.SearchAttendance(ctx, ledger.SearchAttendanceParams{SubjectID: subjMath})
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)

	// Combined filters intersect
	page, err = e.SearchAttendance(ctx, ledger.SearchAttendanceParams{Search: "010-1111", SubjectID: subjMath})
	require.NoError(t, err)
	assert.Equal(t, 1, page.TotalCount)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Mina Park", page.Records[0].StudentName)
}

// =============================================================================
// CONSERVATION
// =============================================================================

// Every credit granted is either still remaining on a grant or held by an
// active attendance row. Cancellations move credit back, never create it.
func TestCreditConservation(t *testing.T) {
	e, st := newTestEngine(t)
	seedWorld(t, st)
	seedPackage(t, st, "pkg-math-2", 2, subjMath)
	seedPackage(t, st, "pkg-math-10", 10, subjMath)
	ctx := context.Background()

	granted := 0
	for _, pkg := range []ledger.PackageID{"pkg-math-2", "pkg-math-10"} {
		g := settle(t, e, stuJun, pkg)
		granted += g.CreditsRemaining
	}

	var atts []ledger.AttendanceID
	for i := 0; i < 4; i++ {
		att, err := e.CheckIn(ctx, ledger.CheckInInput{
			StudentID: stuJun, SubjectID: subjMath, TeacherID: tchOh,
		})
		require.NoError(t, err)
		atts = append(atts, att.ID)
	}
	_, err := e.Cancel(ctx, atts[1], string(tchOh), nil)
	require.NoError(t, err)

	remaining, err := e.RemainingCredit(ctx, stuJun, subjMath)
	require.NoError(t, err)

	page, err := e.SearchAttendance(ctx, ledger.SearchAttendanceParams{PerPage: 100})
	require.NoError(t, err)
	held := 0
	active := 0
	for _, rec := range page.Records {
		if rec.Status == ledger.AttendanceActive {
			held += rec.CreditsUsed
			active++
		}
	}

	assert.Equal(t, 3, active)
	assert.Equal(t, granted, remaining+held)
}
