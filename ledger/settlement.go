/*
settlement.go - Purchase lifecycle and settlement

PURPOSE:
  Converts an approved purchase into usable credit. Settlement is the ONLY
  way credit enters the system: pending -> paid flips together with the
  creation of exactly one CreditGrant carrying the package's credit count,
  in one transaction.

IDEMPOTENCY:
  Settling an already-paid purchase is a no-op that returns the current
  purchase and its grant. No duplicate grant, no error. Retries and double
  clicks on "mark paid" are therefore harmless.

DELETION:
  Pending purchases delete freely (no grant exists yet). Paid purchases
  refuse deletion with ErrPurchasePaid: a grant references them and silent
  deletion would break the conservation of granted credit.
*/
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/studyhall/credit-engine/metrics"
)

// CreatePurchase records a pending purchase of a package for a student.
// No ledger effect until SettlePurchase.
func (e *Engine) CreatePurchase(ctx context.Context, studentID StudentID, packageID PackageID) (*Purchase, error) {
	if studentID == "" || packageID == "" {
		return nil, fmt.Errorf("%w: student and package ids required", ErrInvalidInput)
	}

	var purchase *Purchase
	err := e.store.WithTx(ctx, func(s Store) error {
		if _, err := s.GetStudent(ctx, studentID); err != nil {
			return err
		}
		if _, err := s.GetPackage(ctx, packageID); err != nil {
			return err
		}

		p := &Purchase{
			ID:        PurchaseID(uuid.NewString()),
			StudentID: studentID,
			PackageID: packageID,
			Status:    PurchasePending,
			CreatedAt: e.now().UTC(),
		}
		if err := s.CreatePurchase(ctx, p); err != nil {
			return err
		}
		purchase = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return purchase, nil
}

// SettlePurchase marks a pending purchase paid and creates its credit
// grant, atomically. On an already-paid purchase it returns the existing
// state unchanged.
func (e *Engine) SettlePurchase(ctx context.Context, id PurchaseID) (*Purchase, *CreditGrant, error) {
	if id == "" {
		return nil, nil, fmt.Errorf("%w: purchase id required", ErrInvalidInput)
	}

	var (
		purchase *Purchase
		grant    *CreditGrant
		settled  bool
	)

	err := e.store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPurchase(ctx, id)
		if err != nil {
			return err
		}

		if p.Status == PurchasePaid {
			// Already settled: return current state. A paid purchase with
			// no grant means a broken invariant, so the lookup error is
			// allowed to propagate.
			g, err := s.GrantForPurchase(ctx, id)
			if err != nil {
				return fmt.Errorf("paid purchase %s has no grant: %w", id, err)
			}
			purchase, grant = p, g
			return nil
		}

		pkg, err := s.GetPackage(ctx, p.PackageID)
		if err != nil {
			return err
		}
		if len(pkg.SubjectIDs) == 0 {
			// Usable in no subject. A data-entry error in the catalog; the
			// grant is still created so the money trail stays intact.
			e.log.Warn("settling purchase of a package with no subjects",
				zap.String("purchase_id", string(p.ID)),
				zap.String("package_id", string(pkg.ID)))
		}

		paidAt := e.now().UTC()
		if err := s.MarkPurchasePaid(ctx, id, paidAt); err != nil {
			return err
		}

		g := &CreditGrant{
			ID:               GrantID(uuid.NewString()),
			StudentID:        p.StudentID,
			PurchaseID:       p.ID,
			CreditsRemaining: pkg.CreditCount,
		}
		if err := s.InsertGrant(ctx, g); err != nil {
			return err
		}

		settledCopy := *p
		settledCopy.Status = PurchasePaid
		settledCopy.PaidAt = &paidAt
		purchase, grant = &settledCopy, g
		settled = true
		return nil
	})
	if err != nil {
		metrics.Settlements.WithLabelValues("error").Inc()
		return nil, nil, err
	}

	if settled {
		metrics.Settlements.WithLabelValues("settled").Inc()
		e.log.Info("purchase settled",
			zap.String("purchase_id", string(purchase.ID)),
			zap.String("grant_id", string(grant.ID)),
			zap.Int("credits", grant.CreditsRemaining))
	} else {
		metrics.Settlements.WithLabelValues("noop").Inc()
	}
	return purchase, grant, nil
}

// DeletePurchase removes a pending purchase. Paid purchases are refused.
func (e *Engine) DeletePurchase(ctx context.Context, id PurchaseID) error {
	if id == "" {
		return fmt.Errorf("%w: purchase id required", ErrInvalidInput)
	}
	return e.store.WithTx(ctx, func(s Store) error {
		p, err := s.GetPurchase(ctx, id)
		if err != nil {
			return err
		}
		if p.Status == PurchasePaid {
			return fmt.Errorf("%w: delete would orphan its credit grant", ErrPurchasePaid)
		}
		return s.DeletePurchase(ctx, id)
	})
}
