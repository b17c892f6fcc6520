/*
handlers_test.go - HTTP layer tests over the in-memory store

Exercises the JSON contract end to end through the chi router: request
validation, the domain-error to status-code mapping, and the scenario
loader. Ledger semantics themselves are covered in ledger's own tests.
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studyhall/credit-engine/ledger"
	"github.com/studyhall/credit-engine/ledger/store"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	st := store.NewTxMemory()
	engine := ledger.NewEngine(st, nil)
	return NewRouter(NewHandler(engine, st, nil), nil, "")
}

// do runs one request against the router and decodes the JSON response
// into out (skipped when out is nil).
func do(t *testing.T, srv http.Handler, method, path string, body, out any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)
	if out != nil {
		require.NoError(t, json.NewDecoder(rec.Body).Decode(out),
			"undecodable response for %s %s: %s", method, path, rec.Body.String())
	}
	return rec
}

func createVia(t *testing.T, srv http.Handler, path string, body any) string {
	t.Helper()
	var created struct {
		ID string `json:"id"`
	}
	rec := do(t, srv, http.MethodPost, path, body, &created)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.NotEmpty(t, created.ID)
	return created.ID
}

// seedAPI builds a minimal catalog through the public API and returns the
// created ids: subject, package, student, teacher.
func seedAPI(t *testing.T, srv http.Handler) (string, string, string, string) {
	t.Helper()
	subjID := createVia(t, srv, "/api/subjects", map[string]any{"name": "Math"})
	pkgID := createVia(t, srv, "/api/packages", map[string]any{
		"name": "Math 10-pack", "credit_count": 10, "price": "300.00",
		"subject_ids": []string{subjID},
	})
	stuID := createVia(t, srv, "/api/students", map[string]any{
		"full_name": "Mina Park", "nickname": "Mimi", "guardian_phone": "010-1111-2222",
	})
	tchID := createVia(t, srv, "/api/teachers", map[string]any{"full_name": "Mr. Oh"})
	return subjID, pkgID, stuID, tchID
}

// settledPurchaseVia creates and settles a purchase through the API.
func settledPurchaseVia(t *testing.T, srv http.Handler, stuID, pkgID string) string {
	t.Helper()
	purID := createVia(t, srv, "/api/purchases", map[string]any{
		"student_id": stuID, "package_id": pkgID,
	})
	rec := do(t, srv, http.MethodPost, "/api/purchases/"+purID+"/settle", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return purID
}

// =============================================================================
// VALIDATION
// =============================================================================

func TestCreateSubjectValidation(t *testing.T) {
	srv := newTestServer(t)

	var errResp ErrorResponse
	rec := do(t, srv, http.MethodPost, "/api/subjects", map[string]any{"name": "  "}, &errResp)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errResp.Code)

	var subj SubjectDTO
	rec = do(t, srv, http.MethodPost, "/api/subjects", map[string]any{"name": "Math"}, &subj)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "Math", subj.Name)
	assert.NotEmpty(t, subj.ID)
}

func TestCreatePackageValidation(t *testing.T) {
	srv := newTestServer(t)
	subjID := createVia(t, srv, "/api/subjects", map[string]any{"name": "Math"})

	cases := []struct {
		name string
		body map[string]any
		want int
		code string
	}{
		{"zero credits", map[string]any{
			"name": "p", "credit_count": 0, "price": "10", "subject_ids": []string{subjID},
		}, http.StatusBadRequest, "invalid_input"},
		{"bad price", map[string]any{
			"name": "p", "credit_count": 5, "price": "ten", "subject_ids": []string{subjID},
		}, http.StatusBadRequest, "invalid_input"},
		{"negative price", map[string]any{
			"name": "p", "credit_count": 5, "price": "-1", "subject_ids": []string{subjID},
		}, http.StatusBadRequest, "invalid_input"},
		{"unknown subject", map[string]any{
			"name": "p", "credit_count": 5, "price": "10", "subject_ids": []string{"ghost"},
		}, http.StatusNotFound, "not_found"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var errResp ErrorResponse
			rec := do(t, srv, http.MethodPost, "/api/packages", tc.body, &errResp)
			assert.Equal(t, tc.want, rec.Code)
			assert.Equal(t, tc.code, errResp.Code)
		})
	}
}

// =============================================================================
// PURCHASE LIFECYCLE
// =============================================================================

func TestPurchaseSettleFlow(t *testing.T) {
	// GIVEN a catalog and a pending purchase
	srv := newTestServer(t)
	subjID, pkgID, stuID, _ := seedAPI(t, srv)

	var purchase PurchaseDTO
	rec := do(t, srv, http.MethodPost, "/api/purchases", map[string]any{
		"student_id": stuID, "package_id": pkgID,
	}, &purchase)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "pending", purchase.Status)
	assert.Nil(t, purchase.PaidAt)

	// WHEN settling it
	var settled SettleResponse
	rec = do(t, srv, http.MethodPost, "/api/purchases/"+purchase.ID+"/settle", nil, &settled)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN the purchase is paid and the grant shows the package credits
	assert.Equal(t, "paid", settled.Purchase.Status)
	require.NotNil(t, settled.Purchase.PaidAt)
	assert.Equal(t, 10, settled.Grant.CreditsRemaining)

	// And the student's credit summary reflects it
	var summary CreditSummaryDTO
	rec = do(t, srv, http.MethodGet, "/api/students/"+stuID+"/credits", nil, &summary)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, summary.Subjects, 1)
	assert.Equal(t, subjID, summary.Subjects[0].SubjectID)
	assert.Equal(t, 10, summary.Subjects[0].Remaining)
}

func TestSettleUnknownPurchaseIs404(t *testing.T) {
	srv := newTestServer(t)

	var errResp ErrorResponse
	rec := do(t, srv, http.MethodPost, "/api/purchases/ghost/settle", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not_found", errResp.Code)
}

func TestDeletePaidPurchaseIs409(t *testing.T) {
	srv := newTestServer(t)
	_, pkgID, stuID, _ := seedAPI(t, srv)
	purID := settledPurchaseVia(t, srv, stuID, pkgID)

	var errResp ErrorResponse
	rec := do(t, srv, http.MethodDelete, "/api/purchases/"+purID, nil, &errResp)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "purchase_paid", errResp.Code)
}

// =============================================================================
// ATTENDANCE
// =============================================================================

func TestCheckInWithoutCreditIs409(t *testing.T) {
	// GIVEN a student with no settled purchase
	srv := newTestServer(t)
	subjID, _, stuID, tchID := seedAPI(t, srv)

	// WHEN checking in
	var errResp ErrorResponse
	rec := do(t, srv, http.MethodPost, "/api/attendance", map[string]any{
		"student_id": stuID, "subject_id": subjID, "teacher_id": tchID,
	}, &errResp)

	// THEN the conflict names the stable code the UI switches on
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "insufficient_credit", errResp.Code)
}

func TestCheckInAndCancelFlow(t *testing.T) {
	// GIVEN a settled 10-credit purchase
	srv := newTestServer(t)
	subjID, pkgID, stuID, tchID := seedAPI(t, srv)
	settledPurchaseVia(t, srv, stuID, pkgID)

	// WHEN checking in
	var att AttendanceDTO
	rec := do(t, srv, http.MethodPost, "/api/attendance", map[string]any{
		"student_id": stuID, "subject_id": subjID, "teacher_id": tchID,
	}, &att)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "active", att.Status)
	assert.Equal(t, 1, att.CreditsUsed)
	assert.NotEmpty(t, att.GrantID)

	// Cancelling without an actor is rejected
	var errResp ErrorResponse
	rec = do(t, srv, http.MethodPost, "/api/attendance/"+att.ID+"/cancel",
		map[string]any{"reason": "oops"}, &errResp)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errResp.Code)

	// THEN a proper cancel flips the status and refunds the credit
	var cancelled AttendanceDTO
	rec = do(t, srv, http.MethodPost, "/api/attendance/"+att.ID+"/cancel",
		map[string]any{"cancelled_by": tchID, "reason": "wrong student"}, &cancelled)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "cancelled", cancelled.Status)

	var summary CreditSummaryDTO
	rec = do(t, srv, http.MethodGet, "/api/students/"+stuID+"/credits", nil, &summary)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, summary.Subjects, 1)
	assert.Equal(t, 10, summary.Subjects[0].Remaining)

	// A second cancel conflicts
	rec = do(t, srv, http.MethodPost, "/api/attendance/"+att.ID+"/cancel",
		map[string]any{"cancelled_by": tchID}, &errResp)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "already_cancelled", errResp.Code)

	// And the audit trail holds both actions
	var logs []AttendanceLogDTO
	rec = do(t, srv, http.MethodGet, "/api/attendance/"+att.ID+"/logs", nil, &logs)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, logs, 2)
	assert.Equal(t, "check_in", logs[0].Action)
	assert.Equal(t, "cancel", logs[1].Action)
}

func TestSearchAttendanceParamsAndFilters(t *testing.T) {
	// GIVEN three check-ins
	srv := newTestServer(t)
	subjID, pkgID, stuID, tchID := seedAPI(t, srv)
	settledPurchaseVia(t, srv, stuID, pkgID)

	for i := 0; i < 3; i++ {
		rec := do(t, srv, http.MethodPost, "/api/attendance", map[string]any{
			"student_id": stuID, "subject_id": subjID, "teacher_id": tchID,
		}, nil)
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	// WHEN fetching a one-row page
	var page AttendancePageDTO
	rec := do(t, srv, http.MethodGet, "/api/attendance?page=2&per_page=1", nil, &page)
	require.Equal(t, http.StatusOK, rec.Code)

	// THEN pagination reports the full filtered total
	assert.Equal(t, 3, page.TotalCount)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 1, page.PerPage)
	require.Len(t, page.Records, 1)
	assert.Equal(t, "Mina Park", page.Records[0].StudentName)

	// Junk paging params fall back to the defaults
	rec = do(t, srv, http.MethodGet, "/api/attendance?page=abc&per_page=-3", nil, &page)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 30, page.PerPage)

	// A search with no hits is an empty page, not an error
	rec = do(t, srv, http.MethodGet, "/api/attendance?search=nobody", nil, &page)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, page.TotalCount)
	assert.Empty(t, page.Records)

	// Subject filter and nickname search both reach the store
	rec = do(t, srv, http.MethodGet, "/api/attendance?search=mimi&subject_id="+subjID, nil, &page)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 3, page.TotalCount)
}

func TestEligibleStudentsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	subjID, pkgID, stuID, _ := seedAPI(t, srv)
	settledPurchaseVia(t, srv, stuID, pkgID)

	var students []EligibleStudentDTO
	rec := do(t, srv, http.MethodGet, fmt.Sprintf("/api/subjects/%s/eligible-students", subjID), nil, &students)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, students, 1)
	assert.Equal(t, stuID, students[0].StudentID)
	assert.Equal(t, 10, students[0].TotalCredits)

	var errResp ErrorResponse
	rec = do(t, srv, http.MethodGet, "/api/subjects/ghost/eligible-students", nil, &errResp)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// SCENARIOS AND OPERATIONAL
// =============================================================================

func TestScenarioLoad(t *testing.T) {
	srv := newTestServer(t)

	var list []ScenarioDTO
	rec := do(t, srv, http.MethodGet, "/api/scenarios", nil, &list)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, list, 3)

	rec = do(t, srv, http.MethodPost, "/api/scenarios/load", map[string]any{"id": "fifo-depletion"}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// The seeded world is reachable through the normal endpoints
	var students []StudentDTO
	rec = do(t, srv, http.MethodGet, "/api/students", nil, &students)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, students)

	var page AttendancePageDTO
	rec = do(t, srv, http.MethodGet, "/api/attendance", nil, &page)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotZero(t, page.TotalCount)

	// Loading replaces, never accumulates
	rec = do(t, srv, http.MethodPost, "/api/scenarios/load", map[string]any{"id": "new-student"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, srv, http.MethodGet, "/api/students", nil, &students)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, students, 1)

	var errResp ErrorResponse
	rec = do(t, srv, http.MethodPost, "/api/scenarios/load", map[string]any{"id": "nope"}, &errResp)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_input", errResp.Code)
}

func TestResetEndpoint(t *testing.T) {
	srv := newTestServer(t)
	seedAPI(t, srv)

	rec := do(t, srv, http.MethodPost, "/api/reset", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var students []StudentDTO
	rec = do(t, srv, http.MethodGet, "/api/students", nil, &students)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, students)
}

// unavailableStore fails every transaction the way a store does when it
// cannot commit.
type unavailableStore struct {
	*store.TxMemory
}

func (u unavailableStore) WithTx(context.Context, func(ledger.Store) error) error {
	return fmt.Errorf("commit transaction: %w", ledger.ErrStoreUnavailable)
}

func TestStoreUnavailableIs503(t *testing.T) {
	// GIVEN a store that cannot commit
	st := unavailableStore{store.NewTxMemory()}
	engine := ledger.NewEngine(st, nil)
	srv := NewRouter(NewHandler(engine, st, nil), nil, "")

	// WHEN any mutating request runs
	var errResp ErrorResponse
	rec := do(t, srv, http.MethodPost, "/api/purchases/any/settle", nil, &errResp)

	// THEN the caller sees a retryable 503, not an opaque 500
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "store_unavailable", errResp.Code)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t)

	var body map[string]string
	rec := do(t, srv, http.MethodGet, "/healthz", nil, &body)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}
