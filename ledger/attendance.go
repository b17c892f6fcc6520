/*
attendance.go - The attendance state machine

PURPOSE:
  Governs a single attendance event. States: active (initial) and
  cancelled (terminal, no transitions out). Every transition appends one
  AttendanceLog row.

CHECK-IN:
  debit ledger -> insert active row -> append check_in log, one
  transaction. A failure after the debit rolls the whole thing back, so no
  credit is ever lost to a failed check-in. Duplicate same-day check-ins
  for the same student+subject are VALID (back-to-back sessions); the UI
  warns, the core does not block.

CANCEL:
  refund the recorded grant -> flip to cancelled -> append cancel log, one
  transaction. The refund goes to Attendance.GrantID, the exact grant
  debited at check-in, never to "any grant" - credit cannot teleport
  between purchase batches. A second cancel fails with ErrAlreadyCancelled
  and does not double-credit.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhall/credit-engine/metrics"
)

// CheckInInput describes one check-in. CreditsUsed defaults to 1 when
// zero; negative values are rejected.
type CheckInInput struct {
	StudentID   StudentID
	SubjectID   SubjectID
	TeacherID   TeacherID
	CreditsUsed int
	Notes       *string
}

// CheckIn records an attendance event, debiting the credit ledger.
// On insufficient credit no row is created and the ledger is unchanged.
func (e *Engine) CheckIn(ctx context.Context, in CheckInInput) (*Attendance, error) {
	if in.StudentID == "" || in.SubjectID == "" || in.TeacherID == "" {
		return nil, fmt.Errorf("%w: student, subject and teacher ids required", ErrInvalidInput)
	}
	if in.CreditsUsed < 0 {
		return nil, fmt.Errorf("%w: credits_used must be positive, got %d", ErrInvalidInput, in.CreditsUsed)
	}
	if in.CreditsUsed == 0 {
		in.CreditsUsed = 1
	}

	var att *Attendance
	err := e.withConflictRetry(ctx, "check_in", func() error {
		return e.store.WithTx(ctx, func(s Store) error {
			if _, err := s.GetStudent(ctx, in.StudentID); err != nil {
				return err
			}
			if _, err := s.GetSubject(ctx, in.SubjectID); err != nil {
				return err
			}
			if _, err := s.GetTeacher(ctx, in.TeacherID); err != nil {
				return err
			}

			grantID, err := e.debit(ctx, s, in.StudentID, in.SubjectID, in.CreditsUsed)
			if err != nil {
				return err
			}

			now := e.now().UTC()
			a := &Attendance{
				ID:          AttendanceID(uuid.NewString()),
				StudentID:   in.StudentID,
				SubjectID:   in.SubjectID,
				TeacherID:   in.TeacherID,
				CreditsUsed: in.CreditsUsed,
				GrantID:     grantID,
				CheckedAt:   now,
				Notes:       in.Notes,
				Status:      AttendanceActive,
			}
			if err := s.InsertAttendance(ctx, a); err != nil {
				return err
			}

			if err := s.AppendAttendanceLog(ctx, &AttendanceLog{
				ID:           uuid.NewString(),
				AttendanceID: a.ID,
				Action:       LogCheckIn,
				PerformedBy:  string(in.TeacherID),
				CreatedAt:    now,
			}); err != nil {
				return err
			}

			att = a
			return nil
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInsufficientCredit):
			metrics.CheckIns.WithLabelValues("insufficient_credit").Inc()
		default:
			metrics.CheckIns.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.CheckIns.WithLabelValues("ok").Inc()
	e.log.Info("attendance recorded",
		zap.String("attendance_id", string(att.ID)),
		zap.String("student_id", string(att.StudentID)),
		zap.String("subject_id", string(att.SubjectID)),
		zap.Int("credits_used", att.CreditsUsed))
	return att, nil
}

// Cancel reverses an active attendance: refunds the debited grant, flips
// the row to cancelled and appends a cancel log entry. Reason is optional
// and preserved verbatim for audit.
func (e *Engine) Cancel(ctx context.Context, id AttendanceID, cancelledBy string, reason *string) (*Attendance, error) {
	if id == "" || cancelledBy == "" {
		return nil, fmt.Errorf("%w: attendance id and canceller required", ErrInvalidInput)
	}

	var att *Attendance
	err := e.withConflictRetry(ctx, "cancel", func() error {
		return e.store.WithTx(ctx, func(s Store) error {
			a, err := s.GetAttendance(ctx, id)
			if err != nil {
				return err
			}
			if a.Status != AttendanceActive {
				return &AlreadyCancelledError{AttendanceID: a.ID, Status: a.Status}
			}

			if err := e.credit(ctx, s, a.GrantID, a.CreditsUsed); err != nil {
				return err
			}
			if err := s.MarkAttendanceCancelled(ctx, a.ID); err != nil {
				return err
			}

			if err := s.AppendAttendanceLog(ctx, &AttendanceLog{
				ID:           uuid.NewString(),
				AttendanceID: a.ID,
				Action:       LogCancel,
				PerformedBy:  cancelledBy,
				Reason:       reason,
				CreatedAt:    e.now().UTC(),
			}); err != nil {
				return err
			}

			cancelled := *a
			cancelled.Status = AttendanceCancelled
			att = &cancelled
			return nil
		})
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrAlreadyCancelled):
			metrics.Cancellations.WithLabelValues("already_cancelled").Inc()
		default:
			metrics.Cancellations.WithLabelValues("error").Inc()
		}
		return nil, err
	}

	metrics.Cancellations.WithLabelValues("ok").Inc()
	e.log.Info("attendance cancelled",
		zap.String("attendance_id", string(att.ID)),
		zap.String("cancelled_by", cancelledBy),
		zap.Int("credits_refunded", att.CreditsUsed))
	return att, nil
}

// AttendanceLogs returns the audit trail for one attendance row, oldest
// entry first.
func (e *Engine) AttendanceLogs(ctx context.Context, id AttendanceID) ([]AttendanceLog, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: attendance id required", ErrInvalidInput)
	}
	if _, err := e.store.GetAttendance(ctx, id); err != nil {
		return nil, err
	}
	return e.store.AttendanceLogs(ctx, id)
}
