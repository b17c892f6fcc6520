/*
query.go - Eligibility and attendance history read side

PURPOSE:
  Derived, read-only projections over the ledger. These never gate a debit
  decision: CheckIn re-checks balance inside its own transaction, so
  normal read-committed staleness here is acceptable for display.
*/
package ledger

import (
	"context"
	"fmt"
)

const (
	defaultPerPage = 30
	maxPerPage     = 100
)

// ListEligibleStudents returns every student currently holding usable
// credit for the subject, sorted by full name. Drives the check-in
// selector.
func (e *Engine) ListEligibleStudents(ctx context.Context, subjectID SubjectID) ([]EligibleStudent, error) {
	if subjectID == "" {
		return nil, fmt.Errorf("%w: subject id required", ErrInvalidInput)
	}
	if _, err := e.store.GetSubject(ctx, subjectID); err != nil {
		return nil, err
	}
	return e.store.EligibleStudents(ctx, subjectID)
}

// SearchAttendance returns one page of attendance history, filtered and
// most recent first. TotalCount reflects the whole filtered set.
func (e *Engine) SearchAttendance(ctx context.Context, params SearchAttendanceParams) (*AttendancePage, error) {
	if params.Page < 1 {
		params.Page = 1
	}
	if params.PerPage <= 0 {
		params.PerPage = defaultPerPage
	}
	if params.PerPage > maxPerPage {
		params.PerPage = maxPerPage
	}

	records, total, err := e.store.SearchAttendance(ctx, params)
	if err != nil {
		return nil, err
	}
	return &AttendancePage{
		Records:    records,
		TotalCount: total,
		Page:       params.Page,
		PerPage:    params.PerPage,
	}, nil
}
