package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/port"
)

// ApplyPayment reconciles an actual payment against the pledge's schedule.
//
// An exact payment completes the target installment. An underpayment
// completes the target at the reduced amount and rolls the shortfall onto
// the next open installment (or a new trailing one). An overpayment
// completes the target and cascades the excess forward, completing further
// installments in scheduled-date order; a residual that only partially
// covers an installment is folded into its scheduled amount, growing the
// pledge total by the same residual.
//
// Each installment touched keeps a link to the payment and the portion of
// money attributed to it, so a later cancellation can undo exactly this
// application. Re-delivery of an already-applied payment is a no-op.
func (s *PledgeService) ApplyPayment(ctx context.Context, pledgeID string, app domain.PaymentApplication) (*domain.Schedule, error) {
	ctx, span := tracer.Start(ctx, "PledgeService.ApplyPayment")
	defer span.End()
	span.SetAttributes(
		attribute.String("pledge.id", pledgeID),
		attribute.String("payment.id", app.PaymentID),
	)

	if app.PaymentID == "" {
		return nil, &domain.ErrValidation{Field: "payment_id", Message: "required"}
	}
	if !app.Amount.IsPositive() {
		return nil, &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}

	pledge, err := s.store.GetPledge(ctx, pledgeID)
	if err != nil {
		return nil, err
	}
	precision, err := s.currency.Precision(ctx, pledge.Currency)
	if err != nil {
		return nil, err
	}

	amount := app.Amount.Round(precision)
	paidDate := app.PaidDate
	if paidDate.IsZero() {
		paidDate = time.Now().UTC()
	}

	var kind string
	err = s.store.Atomic(ctx, func(tx port.PledgeStore) error {
		pledge, err := tx.GetPledge(ctx, pledgeID)
		if err != nil {
			return err
		}

		// At-least-once delivery: a payment already linked to any
		// installment of this pledge was applied before.
		linked, err := tx.FindInstallmentsByPayment(ctx, app.PaymentID)
		if err != nil {
			return err
		}
		if len(linked) > 0 {
			kind = "duplicate"
			return nil
		}

		target, err := s.resolveTarget(ctx, tx, pledgeID, app.InstallmentID)
		if err != nil {
			return err
		}

		switch amount.Cmp(target.ScheduledAmount) {
		case 0:
			kind = "exact"
			err = s.applyExact(ctx, tx, target, app.PaymentID, amount, paidDate)
		case -1:
			kind = "underpaid"
			err = s.applyUnderpayment(ctx, tx, pledge, target, app.PaymentID, amount, paidDate)
		case 1:
			kind = "overpaid"
			err = s.applyOverpayment(ctx, tx, pledge, target, app.PaymentID, amount, paidDate)
		}
		if err != nil {
			return err
		}

		if err := s.rebalance(ctx, tx, pledge); err != nil {
			return err
		}
		return s.refreshPledgeStatus(ctx, tx, pledge)
	})
	if err != nil {
		s.logger.Error("failed to apply payment",
			zap.String("pledge_id", pledgeID),
			zap.String("payment_id", app.PaymentID),
			zap.Error(err))
		return nil, err
	}

	if kind != "duplicate" {
		s.metrics.IncrPaymentApplied(kind)
	}
	s.logger.Info("payment applied",
		zap.String("pledge_id", pledgeID),
		zap.String("payment_id", app.PaymentID),
		zap.String("amount", amount.String()),
		zap.String("kind", kind),
	)

	return s.GetSchedule(ctx, pledgeID)
}

// resolveTarget picks the installment the payment applies to: the
// explicitly named one, or the open installment with the oldest scheduled
// date.
func (s *PledgeService) resolveTarget(ctx context.Context, tx port.PledgeStore, pledgeID, installmentID string) (*domain.Installment, error) {
	if installmentID != "" {
		target, err := tx.GetInstallment(ctx, installmentID)
		if err != nil {
			return nil, err
		}
		if target.PledgeID != pledgeID {
			return nil, &domain.ErrValidation{Field: "installment_id", Message: "installment belongs to a different pledge"}
		}
		if !target.Status.Open() {
			return nil, &domain.ErrValidation{Field: "installment_id", Message: "installment is not open for payment"}
		}
		return target, nil
	}

	open, err := tx.ListOpenInstallments(ctx, pledgeID, 1)
	if err != nil {
		return nil, err
	}
	if len(open) == 0 {
		return nil, &domain.ErrInconsistentState{Op: "apply payment", Detail: "pledge has no open installments"}
	}
	return &open[0], nil
}

func (s *PledgeService) applyExact(ctx context.Context, tx port.PledgeStore, target *domain.Installment, paymentID string, amount decimal.Decimal, paidDate time.Time) error {
	s.complete(target, paymentID, amount, paidDate)
	return tx.UpdateInstallment(ctx, target)
}

// applyUnderpayment completes the target at the received amount and moves
// the shortfall onto the oldest remaining open installment, so the total
// scheduled over the pledge is preserved.
func (s *PledgeService) applyUnderpayment(ctx context.Context, tx port.PledgeStore, pledge *domain.Pledge, target *domain.Installment, paymentID string, amount decimal.Decimal, paidDate time.Time) error {
	shortfall := target.ScheduledAmount.Sub(amount)

	target.ScheduledAmount = amount
	s.complete(target, paymentID, amount, paidDate)
	if err := tx.UpdateInstallment(ctx, target); err != nil {
		return err
	}

	open, err := tx.ListOpenInstallments(ctx, pledge.ID, 1)
	if err != nil {
		return err
	}
	if len(open) == 0 {
		return s.appendInstallment(ctx, tx, pledge, shortfall)
	}

	next := &open[0]
	next.ScheduledAmount = next.ScheduledAmount.Add(shortfall)
	return tx.UpdateInstallment(ctx, next)
}

// applyOverpayment completes the target and walks the excess forward
// through the open installments in scheduled-date order. Fully covered
// installments complete; a final partial residual is folded into the next
// installment's scheduled amount and added to the pledge total.
func (s *PledgeService) applyOverpayment(ctx context.Context, tx port.PledgeStore, pledge *domain.Pledge, target *domain.Installment, paymentID string, amount decimal.Decimal, paidDate time.Time) error {
	excess := amount.Sub(target.ScheduledAmount)

	s.complete(target, paymentID, target.ScheduledAmount, paidDate)
	if err := tx.UpdateInstallment(ctx, target); err != nil {
		return err
	}

	for excess.IsPositive() {
		open, err := tx.ListOpenInstallments(ctx, pledge.ID, 1)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			// Everything is paid; the surplus grows the pledge and is
			// attributed to the target installment.
			pledge.Amount = pledge.Amount.Add(excess)
			target.ScheduledAmount = target.ScheduledAmount.Add(excess)
			target.ActualAmount = target.ActualAmount.Add(excess)
			return tx.UpdateInstallment(ctx, target)
		}

		next := &open[0]
		if excess.Cmp(next.ScheduledAmount) >= 0 {
			excess = excess.Sub(next.ScheduledAmount)
			s.complete(next, paymentID, next.ScheduledAmount, paidDate)
			if err := tx.UpdateInstallment(ctx, next); err != nil {
				return err
			}
			continue
		}

		next.ScheduledAmount = next.ScheduledAmount.Add(excess)
		next.PaymentID = paymentID
		next.ActualAmount = excess
		pledge.Amount = pledge.Amount.Add(excess)
		return tx.UpdateInstallment(ctx, next)
	}
	return nil
}

func (s *PledgeService) complete(inst *domain.Installment, paymentID string, attributed decimal.Decimal, paidDate time.Time) {
	inst.Status = domain.StatusCompleted
	inst.PaymentID = paymentID
	inst.ActualAmount = attributed
	inst.PaidDate = &paidDate
}

// ReleasePayment undoes a payment application after the payment was
// cancelled, refunded, or failed. Completed installments it settled revert
// to Pending at their attributed amount; residual adjustments on open
// installments are backed out of both the installment and the pledge
// total. Unknown payments are a no-op.
func (s *PledgeService) ReleasePayment(ctx context.Context, paymentID string) error {
	ctx, span := tracer.Start(ctx, "PledgeService.ReleasePayment")
	defer span.End()
	span.SetAttributes(attribute.String("payment.id", paymentID))

	err := s.store.Atomic(ctx, func(tx port.PledgeStore) error {
		return s.releasePayment(ctx, tx, paymentID)
	})
	if err != nil {
		s.logger.Error("failed to release payment", zap.String("payment_id", paymentID), zap.Error(err))
		return err
	}

	s.metrics.IncrPaymentApplied("released")
	s.logger.Info("payment released", zap.String("payment_id", paymentID))
	return nil
}

func (s *PledgeService) releasePayment(ctx context.Context, tx port.PledgeStore, paymentID string) error {
	linked, err := tx.FindInstallmentsByPayment(ctx, paymentID)
	if err != nil {
		return err
	}
	if len(linked) == 0 {
		return nil
	}

	pledge, err := tx.GetPledge(ctx, linked[0].PledgeID)
	if err != nil {
		return err
	}

	for i := range linked {
		inst := &linked[i]
		if inst.Status == domain.StatusCompleted {
			inst.Status = domain.StatusPending
			inst.ScheduledAmount = inst.ActualAmount
		} else {
			// Open installment carrying a residual adjustment: back it out.
			inst.ScheduledAmount = inst.ScheduledAmount.Sub(inst.ActualAmount)
			pledge.Amount = pledge.Amount.Sub(inst.ActualAmount)
		}
		inst.PaymentID = ""
		inst.ActualAmount = decimal.Zero
		inst.PaidDate = nil
		if err := tx.UpdateInstallment(ctx, inst); err != nil {
			return err
		}
	}

	if err := s.rebalance(ctx, tx, pledge); err != nil {
		return err
	}
	return s.refreshPledgeStatus(ctx, tx, pledge)
}

// rebalance restores the invariant that the scheduled amounts of the
// pledge's non-cancelled installments sum to the pledge total. A positive
// gap becomes a new trailing installment; a negative gap is folded out of
// the last open installment.
func (s *PledgeService) rebalance(ctx context.Context, tx port.PledgeStore, pledge *domain.Pledge) error {
	sum, err := tx.SumScheduled(ctx, pledge.ID)
	if err != nil {
		return err
	}

	diff := pledge.Amount.Sub(sum)
	switch {
	case diff.IsZero():
		return nil
	case diff.IsPositive():
		return s.appendInstallment(ctx, tx, pledge, diff)
	default:
		open, err := tx.ListOpenInstallments(ctx, pledge.ID, 0)
		if err != nil {
			return err
		}
		if len(open) == 0 {
			// Nothing left to shrink; the pledge total follows reality.
			pledge.Amount = sum
			return nil
		}
		last := &open[len(open)-1]
		shrunk := last.ScheduledAmount.Add(diff)
		if !shrunk.IsPositive() {
			// The gap exceeds the last open installment; the pledge total
			// follows reality instead.
			pledge.Amount = sum
			return nil
		}
		last.ScheduledAmount = shrunk
		return tx.UpdateInstallment(ctx, last)
	}
}
