// Package service implements the pledge scheduling and reconciliation
// logic: installment generation, payment application, status aggregation,
// and payment-event handling.
package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/infra/observability"
	"github.com/openpledge/pledged/internal/port"
	"github.com/openpledge/pledged/internal/schedule"
)

var tracer = otel.Tracer("service/pledge")

// PledgeService owns the pledge lifecycle. All multi-record mutations run
// inside a store transaction and finish by recomputing the pledge status
// from its installments.
type PledgeService struct {
	store           port.PledgeStore
	currency        port.CurrencyResolver
	metrics         *observability.Metrics
	logger          *zap.Logger
	defaultCurrency string
}

// NewPledgeService creates a new PledgeService.
func NewPledgeService(store port.PledgeStore, currency port.CurrencyResolver, metrics *observability.Metrics, logger *zap.Logger, defaultCurrency string) *PledgeService {
	return &PledgeService{
		store:           store,
		currency:        currency,
		metrics:         metrics,
		logger:          logger,
		defaultCurrency: defaultCurrency,
	}
}

// CreatePledge validates the request, generates the full installment
// schedule, and persists everything atomically. Installments whose
// scheduled date has already arrived are created Overdue. When the request
// carries a payment, the first installment is created Completed with that
// payment attached.
func (s *PledgeService) CreatePledge(ctx context.Context, req *domain.PledgeRequest) (*domain.Schedule, error) {
	ctx, span := tracer.Start(ctx, "PledgeService.CreatePledge")
	defer span.End()

	if err := validateRequest(req); err != nil {
		return nil, err
	}

	cfg := req.Schedule
	if cfg.Currency == "" {
		cfg.Currency = s.defaultCurrency
	}

	precision, err := s.currency.Precision(ctx, cfg.Currency)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	today := now.Truncate(24 * time.Hour)
	base := schedule.BaseDate(cfg)
	amounts := schedule.SplitAmount(cfg.Amount, cfg.Installments, cfg.InstallmentAmount, precision)

	pledge := &domain.Pledge{
		ID:                uuid.NewString(),
		ContactID:         req.ContactID,
		Amount:            cfg.Amount,
		Currency:          cfg.Currency,
		Installments:      cfg.Installments,
		FrequencyUnit:     cfg.FrequencyUnit,
		FrequencyInterval: cfg.FrequencyInterval,
		FrequencyDay:      cfg.FrequencyDay,
		StartDate:         base,
		Status:            domain.StatusPending,
		CreatedAt:         now,
	}
	span.SetAttributes(attribute.String("pledge.id", pledge.ID))

	installments := make([]domain.Installment, cfg.Installments)
	for i := 0; i < cfg.Installments; i++ {
		date := schedule.NextDate(cfg, i, base)
		status := domain.StatusPending
		if !date.After(today) {
			status = domain.StatusOverdue
		}
		installments[i] = domain.Installment{
			ID:              uuid.NewString(),
			PledgeID:        pledge.ID,
			Sequence:        i + 1,
			ScheduledDate:   date,
			ScheduledAmount: amounts[i],
			Currency:        cfg.Currency,
			Status:          status,
		}
	}

	if req.PaymentID != "" {
		first := &installments[0]
		first.Status = domain.StatusCompleted
		first.PaymentID = req.PaymentID
		first.ActualAmount = first.ScheduledAmount
		paid := now
		first.PaidDate = &paid
	}

	err = s.store.Atomic(ctx, func(tx port.PledgeStore) error {
		if err := tx.CreatePledge(ctx, pledge); err != nil {
			return err
		}
		for i := range installments {
			if err := tx.CreateInstallment(ctx, &installments[i]); err != nil {
				return err
			}
		}
		return s.refreshPledgeStatus(ctx, tx, pledge)
	})
	if err != nil {
		s.logger.Error("failed to create pledge", zap.String("contact_id", req.ContactID), zap.Error(err))
		return nil, err
	}

	s.metrics.IncrPledgeCreated()
	s.logger.Info("pledge created",
		zap.String("pledge_id", pledge.ID),
		zap.String("contact_id", pledge.ContactID),
		zap.String("amount", pledge.Amount.String()),
		zap.Int("installments", pledge.Installments),
	)

	return s.GetSchedule(ctx, pledge.ID)
}

func validateRequest(req *domain.PledgeRequest) error {
	if req.ContactID == "" {
		return &domain.ErrValidation{Field: "contact_id", Message: "required"}
	}
	cfg := req.Schedule
	if !cfg.Amount.IsPositive() {
		return &domain.ErrValidation{Field: "amount", Message: "must be positive"}
	}
	if cfg.Installments < 1 {
		return &domain.ErrValidation{Field: "installments", Message: "must be at least 1"}
	}
	if cfg.InstallmentAmount != nil {
		if !cfg.InstallmentAmount.IsPositive() {
			return &domain.ErrValidation{Field: "installment_amount", Message: "must be positive"}
		}
		// The final installment takes whatever the fixed amounts leave over,
		// so the fixed portion must leave it something positive.
		covered := cfg.InstallmentAmount.Mul(decimal.NewFromInt(int64(cfg.Installments - 1)))
		if covered.GreaterThanOrEqual(cfg.Amount) {
			return &domain.ErrValidation{Field: "installment_amount", Message: "leaves nothing for the final installment"}
		}
	}
	if !cfg.FrequencyUnit.Valid() {
		return &domain.ErrValidation{Field: "frequency_unit", Message: "must be one of day, week, month, year"}
	}
	if cfg.FrequencyInterval < 1 {
		return &domain.ErrValidation{Field: "frequency_interval", Message: "must be at least 1"}
	}
	switch cfg.FrequencyUnit {
	case domain.FrequencyMonth:
		if cfg.FrequencyDay < 1 || cfg.FrequencyDay > 31 {
			return &domain.ErrValidation{Field: "frequency_day", Message: "must be 1-31 for monthly frequency"}
		}
	case domain.FrequencyWeek:
		if cfg.FrequencyDay < 0 || cfg.FrequencyDay > 6 {
			return &domain.ErrValidation{Field: "frequency_day", Message: "must be 0-6 for weekly frequency"}
		}
	}
	if cfg.StartDate.IsZero() {
		return &domain.ErrValidation{Field: "start_date", Message: "required"}
	}
	return nil
}

// GetSchedule returns the pledge with its installments ordered by sequence.
func (s *PledgeService) GetSchedule(ctx context.Context, pledgeID string) (*domain.Schedule, error) {
	ctx, span := tracer.Start(ctx, "PledgeService.GetSchedule")
	defer span.End()

	pledge, err := s.store.GetPledge(ctx, pledgeID)
	if err != nil {
		return nil, err
	}
	installments, err := s.store.ListInstallments(ctx, pledgeID)
	if err != nil {
		return nil, err
	}
	return &domain.Schedule{Pledge: pledge, Installments: installments}, nil
}

// ListOldestOpen returns up to limit open installments of the pledge,
// oldest scheduled date first.
func (s *PledgeService) ListOldestOpen(ctx context.Context, pledgeID string, limit int) ([]domain.Installment, error) {
	ctx, span := tracer.Start(ctx, "PledgeService.ListOldestOpen")
	defer span.End()

	if _, err := s.store.GetPledge(ctx, pledgeID); err != nil {
		return nil, err
	}
	return s.store.ListOpenInstallments(ctx, pledgeID, limit)
}

// UpdateInstallmentStatuses moves the pledge's pending installments whose
// scheduled date has arrived to Overdue and recomputes the pledge status.
func (s *PledgeService) UpdateInstallmentStatuses(ctx context.Context, pledgeID string) (*domain.Schedule, error) {
	ctx, span := tracer.Start(ctx, "PledgeService.UpdateInstallmentStatuses")
	defer span.End()

	today := time.Now().UTC().Truncate(24 * time.Hour)

	err := s.store.Atomic(ctx, func(tx port.PledgeStore) error {
		pledge, err := tx.GetPledge(ctx, pledgeID)
		if err != nil {
			return err
		}
		open, err := tx.ListOpenInstallments(ctx, pledgeID, 0)
		if err != nil {
			return err
		}
		for i := range open {
			inst := &open[i]
			if inst.Status == domain.StatusPending && !inst.ScheduledDate.After(today) {
				inst.Status = domain.StatusOverdue
				if err := tx.UpdateInstallment(ctx, inst); err != nil {
					return err
				}
			}
		}
		return s.refreshPledgeStatus(ctx, tx, pledge)
	})
	if err != nil {
		return nil, err
	}
	return s.GetSchedule(ctx, pledgeID)
}

// SetInstallmentStatus changes a single open installment's status. Only
// Pending, Overdue, and Cancelled are reachable this way; completion goes
// through payment application. The pledge status is recomputed afterwards.
func (s *PledgeService) SetInstallmentStatus(ctx context.Context, installmentID string, status domain.Status) (*domain.Installment, error) {
	ctx, span := tracer.Start(ctx, "PledgeService.SetInstallmentStatus")
	defer span.End()

	switch status {
	case domain.StatusPending, domain.StatusOverdue, domain.StatusCancelled:
	default:
		return nil, &domain.ErrValidation{Field: "status", Message: "must be Pending, Overdue, or Cancelled"}
	}

	var updated *domain.Installment
	err := s.store.Atomic(ctx, func(tx port.PledgeStore) error {
		inst, err := tx.GetInstallment(ctx, installmentID)
		if err != nil {
			return err
		}
		if !inst.Status.Open() {
			return &domain.ErrValidation{Field: "status", Message: "installment is not open"}
		}
		pledge, err := tx.GetPledge(ctx, inst.PledgeID)
		if err != nil {
			return err
		}

		inst.Status = status
		if err := tx.UpdateInstallment(ctx, inst); err != nil {
			return err
		}
		updated = inst

		if status == domain.StatusCancelled {
			if err := s.rebalance(ctx, tx, pledge); err != nil {
				return err
			}
		}
		return s.refreshPledgeStatus(ctx, tx, pledge)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("installment status changed",
		zap.String("installment_id", installmentID),
		zap.String("status", string(status)),
	)
	return updated, nil
}

// MarkReminded records that a reminder was sent for the installment.
func (s *PledgeService) MarkReminded(ctx context.Context, installmentID string) (*domain.Installment, error) {
	ctx, span := tracer.Start(ctx, "PledgeService.MarkReminded")
	defer span.End()

	inst, err := s.store.GetInstallment(ctx, installmentID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	inst.ReminderDate = &now
	inst.ReminderCount++
	if err := s.store.UpdateInstallment(ctx, inst); err != nil {
		return nil, err
	}

	s.logger.Info("reminder recorded",
		zap.String("installment_id", inst.ID),
		zap.Int("reminder_count", inst.ReminderCount),
	)
	return inst, nil
}

// CancelPledge cancels the pledge and every installment not yet completed.
func (s *PledgeService) CancelPledge(ctx context.Context, pledgeID string) (*domain.Schedule, error) {
	ctx, span := tracer.Start(ctx, "PledgeService.CancelPledge")
	defer span.End()

	now := time.Now().UTC()

	err := s.store.Atomic(ctx, func(tx port.PledgeStore) error {
		pledge, err := tx.GetPledge(ctx, pledgeID)
		if err != nil {
			return err
		}
		installments, err := tx.ListInstallments(ctx, pledgeID)
		if err != nil {
			return err
		}
		for i := range installments {
			inst := &installments[i]
			if inst.Status == domain.StatusCompleted || inst.Status == domain.StatusCancelled {
				continue
			}
			inst.Status = domain.StatusCancelled
			if err := tx.UpdateInstallment(ctx, inst); err != nil {
				return err
			}
		}
		pledge.Status = domain.StatusCancelled
		pledge.CancelDate = &now
		return tx.UpdatePledge(ctx, pledge)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("pledge cancelled", zap.String("pledge_id", pledgeID))
	return s.GetSchedule(ctx, pledgeID)
}

// DeletePledge removes the pledge and all its installments.
func (s *PledgeService) DeletePledge(ctx context.Context, pledgeID string) error {
	ctx, span := tracer.Start(ctx, "PledgeService.DeletePledge")
	defer span.End()

	if err := s.store.DeletePledge(ctx, pledgeID); err != nil {
		return err
	}
	s.logger.Info("pledge deleted", zap.String("pledge_id", pledgeID))
	return nil
}

// scheduleConfigOf rebuilds the recurrence pattern from a stored pledge,
// for appending installments behind the existing schedule.
func scheduleConfigOf(p *domain.Pledge) domain.ScheduleConfig {
	return domain.ScheduleConfig{
		Amount:            p.Amount,
		Installments:      p.Installments,
		FrequencyUnit:     p.FrequencyUnit,
		FrequencyInterval: p.FrequencyInterval,
		FrequencyDay:      p.FrequencyDay,
		StartDate:         p.StartDate,
		Currency:          p.Currency,
	}
}

// appendInstallment creates a new Pending installment one period after the
// pledge's last scheduled date.
func (s *PledgeService) appendInstallment(ctx context.Context, tx port.PledgeStore, pledge *domain.Pledge, amount decimal.Decimal) error {
	installments, err := tx.ListInstallments(ctx, pledge.ID)
	if err != nil {
		return err
	}
	if len(installments) == 0 {
		return &domain.ErrInconsistentState{Op: "append installment", Detail: "pledge has no installments"}
	}

	last := installments[len(installments)-1]
	inst := &domain.Installment{
		ID:              uuid.NewString(),
		PledgeID:        pledge.ID,
		Sequence:        last.Sequence + 1,
		ScheduledDate:   schedule.NextAfter(scheduleConfigOf(pledge), last.ScheduledDate),
		ScheduledAmount: amount,
		Currency:        pledge.Currency,
		Status:          domain.StatusPending,
	}
	return tx.CreateInstallment(ctx, inst)
}
