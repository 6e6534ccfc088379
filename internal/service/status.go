package service

import (
	"context"
	"time"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/port"
)

// AggregateStatus derives a pledge's status from its installments.
// Precedence: Cancelled, then Overdue, then Completed, then In Progress,
// then Pending. Cancelled and refunded installments are excluded from the
// completion denominator.
func AggregateStatus(pledgeCancelled bool, installments []domain.Installment) domain.Status {
	if pledgeCancelled {
		return domain.StatusCancelled
	}

	var total, completed, overdue int
	for i := range installments {
		switch installments[i].Status {
		case domain.StatusCancelled, domain.StatusRefunded:
			continue
		case domain.StatusCompleted:
			completed++
		case domain.StatusOverdue:
			overdue++
		}
		total++
	}

	switch {
	case overdue > 0:
		return domain.StatusOverdue
	case total > 0 && completed == total:
		return domain.StatusCompleted
	case completed > 0:
		return domain.StatusInProgress
	default:
		return domain.StatusPending
	}
}

// refreshPledgeStatus recomputes the pledge status from its installments
// and persists it. The end date is stamped in the same write that moves
// the pledge to Completed, and cleared when reconciliation reopens it.
func (s *PledgeService) refreshPledgeStatus(ctx context.Context, tx port.PledgeStore, pledge *domain.Pledge) error {
	installments, err := tx.ListInstallments(ctx, pledge.ID)
	if err != nil {
		return err
	}

	next := AggregateStatus(pledge.Status == domain.StatusCancelled, installments)
	if next == domain.StatusCompleted {
		if pledge.EndDate == nil {
			now := time.Now().UTC()
			pledge.EndDate = &now
		}
	} else {
		pledge.EndDate = nil
	}

	pledge.Status = next
	return tx.UpdatePledge(ctx, pledge)
}
