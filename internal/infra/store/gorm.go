// Package store persists pledges and installments through GORM.
// Production runs against MySQL; tests run against in-memory SQLite.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/port"
)

type pledgeRecord struct {
	ID                string          `gorm:"primaryKey;type:varchar(36)"`
	ContactID         string          `gorm:"index;type:varchar(36);not null"`
	Amount            decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Currency          string          `gorm:"type:varchar(3);not null"`
	Installments      int             `gorm:"not null"`
	FrequencyUnit     string          `gorm:"type:varchar(8);not null"`
	FrequencyInterval int             `gorm:"not null"`
	FrequencyDay      int             `gorm:"not null"`
	StartDate         time.Time       `gorm:"not null"`
	StatusID          int             `gorm:"not null"`
	CreatedAt         time.Time
	EndDate           *time.Time
	CancelDate        *time.Time
}

func (pledgeRecord) TableName() string { return "pledges" }

type installmentRecord struct {
	ID              string          `gorm:"primaryKey;type:varchar(36)"`
	PledgeID        string          `gorm:"index;type:varchar(36);not null"`
	Sequence        int             `gorm:"not null"`
	ScheduledDate   time.Time       `gorm:"index;not null"`
	ScheduledAmount decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	Currency        string          `gorm:"type:varchar(3);not null"`
	StatusID        int             `gorm:"index;not null"`
	PaymentID       string          `gorm:"index;type:varchar(36)"`
	ActualAmount    decimal.Decimal `gorm:"type:decimal(20,8);not null"`
	PaidDate        *time.Time
	ReminderDate    *time.Time
	ReminderCount   int `gorm:"not null"`
}

func (installmentRecord) TableName() string { return "installments" }

// GormStore implements port.PledgeStore on top of a *gorm.DB.
type GormStore struct {
	db       *gorm.DB
	statuses *domain.StatusRegistry
	inTx     bool
}

// NewMySQL opens a MySQL-backed store and runs schema migration.
func NewMySQL(dsn string, statuses *domain.StatusRegistry) (*GormStore, error) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "mysql", Err: err}
	}
	return New(db, statuses)
}

// New wraps an already-opened gorm.DB and runs schema migration. Tests use
// this with the SQLite driver.
func New(db *gorm.DB, statuses *domain.StatusRegistry) (*GormStore, error) {
	if err := db.AutoMigrate(&pledgeRecord{}, &installmentRecord{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	return &GormStore{db: db, statuses: statuses}, nil
}

// Atomic runs fn inside a database transaction. Store calls made through
// the transactional store commit or roll back together.
func (s *GormStore) Atomic(ctx context.Context, fn func(tx port.PledgeStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx, statuses: s.statuses, inTx: true})
	})
}

func (s *GormStore) CreatePledge(ctx context.Context, p *domain.Pledge) error {
	rec, err := s.toPledgeRecord(p)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &domain.ErrDuplicate{Key: p.ID}
		}
		return err
	}
	return nil
}

// GetPledge loads a pledge. Inside a transaction on MySQL the row is
// locked FOR UPDATE, serializing concurrent reconciliation of one pledge.
func (s *GormStore) GetPledge(ctx context.Context, pledgeID string) (*domain.Pledge, error) {
	q := s.db.WithContext(ctx)
	if s.inTx && s.db.Dialector.Name() == "mysql" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var rec pledgeRecord
	if err := q.First(&rec, "id = ?", pledgeID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.ErrNotFound{Resource: "pledge", ID: pledgeID}
		}
		return nil, err
	}
	return s.fromPledgeRecord(&rec)
}

func (s *GormStore) UpdatePledge(ctx context.Context, p *domain.Pledge) error {
	rec, err := s.toPledgeRecord(p)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&pledgeRecord{}).Where("id = ?", rec.ID).
		Select("Amount", "StatusID", "EndDate", "CancelDate").Updates(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "pledge", ID: p.ID}
	}
	return nil
}

func (s *GormStore) DeletePledge(ctx context.Context, pledgeID string) error {
	if err := s.db.WithContext(ctx).Where("pledge_id = ?", pledgeID).Delete(&installmentRecord{}).Error; err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Delete(&pledgeRecord{}, "id = ?", pledgeID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "pledge", ID: pledgeID}
	}
	return nil
}

func (s *GormStore) CreateInstallment(ctx context.Context, inst *domain.Installment) error {
	rec, err := s.toInstallmentRecord(inst)
	if err != nil {
		return err
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return &domain.ErrDuplicate{Key: inst.ID}
		}
		return err
	}
	return nil
}

func (s *GormStore) UpdateInstallment(ctx context.Context, inst *domain.Installment) error {
	rec, err := s.toInstallmentRecord(inst)
	if err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Model(&installmentRecord{}).Where("id = ?", rec.ID).
		Select("ScheduledDate", "ScheduledAmount", "StatusID", "PaymentID",
			"ActualAmount", "PaidDate", "ReminderDate", "ReminderCount").Updates(rec)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "installment", ID: inst.ID}
	}
	return nil
}

func (s *GormStore) GetInstallment(ctx context.Context, installmentID string) (*domain.Installment, error) {
	var rec installmentRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", installmentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &domain.ErrNotFound{Resource: "installment", ID: installmentID}
		}
		return nil, err
	}
	return s.fromInstallmentRecord(&rec)
}

func (s *GormStore) ListInstallments(ctx context.Context, pledgeID string) ([]domain.Installment, error) {
	var recs []installmentRecord
	err := s.db.WithContext(ctx).
		Where("pledge_id = ?", pledgeID).
		Order("sequence asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return s.fromInstallmentRecords(recs)
}

func (s *GormStore) ListOpenInstallments(ctx context.Context, pledgeID string, limit int) ([]domain.Installment, error) {
	pending, err := s.statuses.Code(domain.StatusPending)
	if err != nil {
		return nil, err
	}
	overdue, err := s.statuses.Code(domain.StatusOverdue)
	if err != nil {
		return nil, err
	}

	q := s.db.WithContext(ctx).
		Where("pledge_id = ? AND status_id IN ?", pledgeID, []int{pending, overdue}).
		Order("scheduled_date asc, sequence asc")
	if limit > 0 {
		q = q.Limit(limit)
	}

	var recs []installmentRecord
	if err := q.Find(&recs).Error; err != nil {
		return nil, err
	}
	return s.fromInstallmentRecords(recs)
}

func (s *GormStore) FindInstallmentsByPayment(ctx context.Context, paymentID string) ([]domain.Installment, error) {
	var recs []installmentRecord
	err := s.db.WithContext(ctx).
		Where("payment_id = ?", paymentID).
		Order("sequence asc").
		Find(&recs).Error
	if err != nil {
		return nil, err
	}
	return s.fromInstallmentRecords(recs)
}

// SumScheduled totals scheduled amounts over the pledge's installments,
// excluding cancelled and refunded ones.
func (s *GormStore) SumScheduled(ctx context.Context, pledgeID string) (decimal.Decimal, error) {
	cancelled, err := s.statuses.Code(domain.StatusCancelled)
	if err != nil {
		return decimal.Zero, err
	}
	refunded, err := s.statuses.Code(domain.StatusRefunded)
	if err != nil {
		return decimal.Zero, err
	}

	var total decimal.Decimal
	err = s.db.WithContext(ctx).Model(&installmentRecord{}).
		Select("COALESCE(SUM(scheduled_amount), 0)").
		Where("pledge_id = ? AND status_id NOT IN ?", pledgeID, []int{cancelled, refunded}).
		Scan(&total).Error
	if err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

func (s *GormStore) toPledgeRecord(p *domain.Pledge) (*pledgeRecord, error) {
	code, err := s.statuses.Code(p.Status)
	if err != nil {
		return nil, err
	}
	return &pledgeRecord{
		ID:                p.ID,
		ContactID:         p.ContactID,
		Amount:            p.Amount,
		Currency:          p.Currency,
		Installments:      p.Installments,
		FrequencyUnit:     string(p.FrequencyUnit),
		FrequencyInterval: p.FrequencyInterval,
		FrequencyDay:      p.FrequencyDay,
		StartDate:         p.StartDate,
		StatusID:          code,
		CreatedAt:         p.CreatedAt,
		EndDate:           p.EndDate,
		CancelDate:        p.CancelDate,
	}, nil
}

func (s *GormStore) fromPledgeRecord(rec *pledgeRecord) (*domain.Pledge, error) {
	status, err := s.statuses.Name(rec.StatusID)
	if err != nil {
		return nil, err
	}
	return &domain.Pledge{
		ID:                rec.ID,
		ContactID:         rec.ContactID,
		Amount:            rec.Amount,
		Currency:          rec.Currency,
		Installments:      rec.Installments,
		FrequencyUnit:     domain.FrequencyUnit(rec.FrequencyUnit),
		FrequencyInterval: rec.FrequencyInterval,
		FrequencyDay:      rec.FrequencyDay,
		StartDate:         rec.StartDate,
		Status:            status,
		CreatedAt:         rec.CreatedAt,
		EndDate:           rec.EndDate,
		CancelDate:        rec.CancelDate,
	}, nil
}

func (s *GormStore) toInstallmentRecord(inst *domain.Installment) (*installmentRecord, error) {
	code, err := s.statuses.Code(inst.Status)
	if err != nil {
		return nil, err
	}
	return &installmentRecord{
		ID:              inst.ID,
		PledgeID:        inst.PledgeID,
		Sequence:        inst.Sequence,
		ScheduledDate:   inst.ScheduledDate,
		ScheduledAmount: inst.ScheduledAmount,
		Currency:        inst.Currency,
		StatusID:        code,
		PaymentID:       inst.PaymentID,
		ActualAmount:    inst.ActualAmount,
		PaidDate:        inst.PaidDate,
		ReminderDate:    inst.ReminderDate,
		ReminderCount:   inst.ReminderCount,
	}, nil
}

func (s *GormStore) fromInstallmentRecord(rec *installmentRecord) (*domain.Installment, error) {
	status, err := s.statuses.Name(rec.StatusID)
	if err != nil {
		return nil, err
	}
	return &domain.Installment{
		ID:              rec.ID,
		PledgeID:        rec.PledgeID,
		Sequence:        rec.Sequence,
		ScheduledDate:   rec.ScheduledDate,
		ScheduledAmount: rec.ScheduledAmount,
		Currency:        rec.Currency,
		Status:          status,
		PaymentID:       rec.PaymentID,
		ActualAmount:    rec.ActualAmount,
		PaidDate:        rec.PaidDate,
		ReminderDate:    rec.ReminderDate,
		ReminderCount:   rec.ReminderCount,
	}, nil
}

func (s *GormStore) fromInstallmentRecords(recs []installmentRecord) ([]domain.Installment, error) {
	out := make([]domain.Installment, 0, len(recs))
	for i := range recs {
		inst, err := s.fromInstallmentRecord(&recs[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *inst)
	}
	return out, nil
}
