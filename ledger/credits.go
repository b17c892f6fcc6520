/*
credits.go - The credit ledger: balance reads and grant mutations

PURPOSE:
  Remaining credit is a READ AGGREGATION over grants, never a stored
  field: sum(credits_remaining) across the student's grants whose package
  includes the subject. There is no duplicated balance to drift.

CONSUMPTION POLICY:
  debit drains the OLDEST grant first (earliest paid_at) that alone covers
  the amount - FIFO across purchase batches. No multi-grant splitting: if
  no single grant covers the amount, the debit fails whole rather than
  partially consuming.

RACE HANDLING:
  Between loading the eligible grants and decrementing one, a concurrent
  session may have drained it. TryDebitGrant's conditional decrement
  detects that (returns false) and debit simply moves to the next grant
  in FIFO order. The store's transaction isolation covers the rest.
*/
package ledger

import (
	"context"
	"fmt"
)

// RemainingCredit returns the student's usable credit for a subject.
// Read-only; a debit never trusts this value and re-checks inside its own
// transaction.
func (e *Engine) RemainingCredit(ctx context.Context, studentID StudentID, subjectID SubjectID) (int, error) {
	if studentID == "" || subjectID == "" {
		return 0, fmt.Errorf("%w: student and subject ids required", ErrInvalidInput)
	}
	return e.store.RemainingCredit(ctx, studentID, subjectID)
}

// SubjectCredits returns the student's remaining credit per subject for
// dashboard display.
func (e *Engine) SubjectCredits(ctx context.Context, studentID StudentID) ([]SubjectCredit, error) {
	if studentID == "" {
		return nil, fmt.Errorf("%w: student id required", ErrInvalidInput)
	}
	if _, err := e.store.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return e.store.SubjectCredits(ctx, studentID)
}

// debit selects one eligible grant (FIFO by paid_at) holding at least
// amount credits, decrements it, and returns its id. Runs inside the
// caller's transaction.
func (e *Engine) debit(ctx context.Context, s Store, studentID StudentID, subjectID SubjectID, amount int) (GrantID, error) {
	if amount <= 0 {
		return "", fmt.Errorf("%w: debit amount must be positive, got %d", ErrInvalidInput, amount)
	}

	grants, err := s.EligibleGrants(ctx, studentID, subjectID)
	if err != nil {
		return "", err
	}

	available := 0
	for _, g := range grants {
		available += g.CreditsRemaining
	}

	for _, g := range grants {
		if g.CreditsRemaining < amount {
			continue
		}
		ok, err := s.TryDebitGrant(ctx, g.ID, amount)
		if err != nil {
			return "", err
		}
		if ok {
			return g.ID, nil
		}
		// Grant shrank under a concurrent debit; try the next one.
	}

	return "", &InsufficientCreditError{
		StudentID: studentID,
		SubjectID: subjectID,
		Available: available,
		Requested: amount,
	}
}

// credit refunds amount to the exact grant a debit came from. Runs inside
// the caller's transaction and always succeeds if the grant exists.
func (e *Engine) credit(ctx context.Context, s Store, grantID GrantID, amount int) error {
	if amount <= 0 {
		return fmt.Errorf("%w: credit amount must be positive, got %d", ErrInvalidInput, amount)
	}
	return s.RefundGrant(ctx, grantID, amount)
}
