package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/openpledge/pledged/internal/domain"
)

// HandlePaymentEvent routes a payment-status notification into
// reconciliation. Completed payments are applied against the schedule;
// cancelled, refunded, and failed payments are released from it. Other
// statuses carry no schedule consequence and are ignored. Handling is
// idempotent, so at-least-once delivery is safe.
func (s *PledgeService) HandlePaymentEvent(ctx context.Context, event domain.PaymentEvent) error {
	ctx, span := tracer.Start(ctx, "PledgeService.HandlePaymentEvent")
	defer span.End()

	if event.PaymentID == "" {
		return &domain.ErrValidation{Field: "payment_id", Message: "required"}
	}

	switch {
	case event.Status == domain.StatusCompleted:
		if event.PledgeID == "" {
			return &domain.ErrValidation{Field: "pledge_id", Message: "required for completed payment events"}
		}
		_, err := s.ApplyPayment(ctx, event.PledgeID, domain.PaymentApplication{
			PaymentID:     event.PaymentID,
			InstallmentID: event.InstallmentID,
			Amount:        event.Amount,
			PaidDate:      event.OccurredAt,
		})
		return err

	case event.Status.Terminal():
		return s.ReleasePayment(ctx, event.PaymentID)

	default:
		s.logger.Debug("ignoring payment event without schedule consequence",
			zap.String("payment_id", event.PaymentID),
			zap.String("status", string(event.Status)),
		)
		return nil
	}
}
