package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/port"
)

func newTestStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	// In-memory SQLite is per-connection; keep a single one.
	sqlDB.SetMaxOpenConns(1)

	s, err := New(db, domain.NewStatusRegistry())
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	return s
}

func seedPledge(t *testing.T, s *GormStore, id string) *domain.Pledge {
	t.Helper()
	p := &domain.Pledge{
		ID:                id,
		ContactID:         "contact-1",
		Amount:            decimal.NewFromInt(150),
		Currency:          "USD",
		Installments:      3,
		FrequencyUnit:     domain.FrequencyMonth,
		FrequencyInterval: 1,
		FrequencyDay:      15,
		StartDate:         time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
		Status:            domain.StatusPending,
		CreatedAt:         time.Now().UTC(),
	}
	if err := s.CreatePledge(context.Background(), p); err != nil {
		t.Fatalf("create pledge: %v", err)
	}
	return p
}

func seedInstallment(t *testing.T, s *GormStore, id, pledgeID string, seq int, amount int64, status domain.Status) *domain.Installment {
	t.Helper()
	inst := &domain.Installment{
		ID:              id,
		PledgeID:        pledgeID,
		Sequence:        seq,
		ScheduledDate:   time.Date(2026, time.Month(seq), 15, 0, 0, 0, 0, time.UTC),
		ScheduledAmount: decimal.NewFromInt(amount),
		Currency:        "USD",
		Status:          status,
	}
	if err := s.CreateInstallment(context.Background(), inst); err != nil {
		t.Fatalf("create installment: %v", err)
	}
	return inst
}

func TestPledgeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	created := seedPledge(t, s, "p1")

	got, err := s.GetPledge(ctx, "p1")
	if err != nil {
		t.Fatalf("get pledge: %v", err)
	}
	if got.ContactID != created.ContactID || got.Status != domain.StatusPending {
		t.Errorf("unexpected pledge: %+v", got)
	}
	if !got.Amount.Equal(created.Amount) {
		t.Errorf("amount mismatch: got %s want %s", got.Amount, created.Amount)
	}
	if got.FrequencyUnit != domain.FrequencyMonth || got.FrequencyDay != 15 {
		t.Errorf("frequency fields lost: %+v", got)
	}
}

func TestCreateDuplicateIDs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedPledge(t, s, "p1")
	inst := seedInstallment(t, s, "i1", "p1", 1, 50, domain.StatusPending)

	var dup *domain.ErrDuplicate
	if err := s.CreatePledge(ctx, p); !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicate for reused pledge id, got %v", err)
	}
	if dup.Key != "p1" {
		t.Errorf("duplicate key %q, want p1", dup.Key)
	}
	if err := s.CreateInstallment(ctx, inst); !errors.As(err, &dup) {
		t.Fatalf("expected ErrDuplicate for reused installment id, got %v", err)
	}
}

func TestGetPledgeNotFound(t *testing.T) {
	s := newTestStore(t)

	var notFound *domain.ErrNotFound
	_, err := s.GetPledge(context.Background(), "missing")
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if notFound.Resource != "pledge" {
		t.Errorf("expected resource pledge, got %s", notFound.Resource)
	}
}

func TestUpdatePledgeStampsDates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := seedPledge(t, s, "p1")

	end := time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC)
	p.Status = domain.StatusCompleted
	p.EndDate = &end
	if err := s.UpdatePledge(ctx, p); err != nil {
		t.Fatalf("update pledge: %v", err)
	}

	got, err := s.GetPledge(ctx, "p1")
	if err != nil {
		t.Fatalf("get pledge: %v", err)
	}
	if got.Status != domain.StatusCompleted {
		t.Errorf("expected Completed, got %s", got.Status)
	}
	if got.EndDate == nil || !got.EndDate.Equal(end) {
		t.Errorf("end date not stamped: %v", got.EndDate)
	}
}

func TestListOpenInstallmentsOrderAndLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedPledge(t, s, "p1")
	seedInstallment(t, s, "i1", "p1", 1, 50, domain.StatusCompleted)
	seedInstallment(t, s, "i2", "p1", 2, 50, domain.StatusOverdue)
	seedInstallment(t, s, "i3", "p1", 3, 50, domain.StatusPending)
	seedInstallment(t, s, "i4", "p1", 4, 50, domain.StatusCancelled)

	open, err := s.ListOpenInstallments(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("list open: %v", err)
	}
	if len(open) != 2 {
		t.Fatalf("expected 2 open installments, got %d", len(open))
	}
	if open[0].ID != "i2" || open[1].ID != "i3" {
		t.Errorf("wrong order: %s, %s", open[0].ID, open[1].ID)
	}

	limited, err := s.ListOpenInstallments(ctx, "p1", 1)
	if err != nil {
		t.Fatalf("list open limited: %v", err)
	}
	if len(limited) != 1 || limited[0].ID != "i2" {
		t.Errorf("expected only i2, got %+v", limited)
	}
}

func TestFindInstallmentsByPayment(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedPledge(t, s, "p1")
	i1 := seedInstallment(t, s, "i1", "p1", 1, 50, domain.StatusPending)
	seedInstallment(t, s, "i2", "p1", 2, 50, domain.StatusPending)

	i1.Status = domain.StatusCompleted
	i1.PaymentID = "pay-9"
	i1.ActualAmount = decimal.NewFromInt(50)
	now := time.Now().UTC()
	i1.PaidDate = &now
	if err := s.UpdateInstallment(ctx, i1); err != nil {
		t.Fatalf("update installment: %v", err)
	}

	linked, err := s.FindInstallmentsByPayment(ctx, "pay-9")
	if err != nil {
		t.Fatalf("find by payment: %v", err)
	}
	if len(linked) != 1 || linked[0].ID != "i1" {
		t.Fatalf("expected i1 linked, got %+v", linked)
	}
	if !linked[0].ActualAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("actual amount lost: %s", linked[0].ActualAmount)
	}
}

func TestSumScheduledExcludesCancelled(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedPledge(t, s, "p1")
	seedInstallment(t, s, "i1", "p1", 1, 50, domain.StatusCompleted)
	seedInstallment(t, s, "i2", "p1", 2, 50, domain.StatusPending)
	seedInstallment(t, s, "i3", "p1", 3, 50, domain.StatusCancelled)

	sum, err := s.SumScheduled(ctx, "p1")
	if err != nil {
		t.Fatalf("sum scheduled: %v", err)
	}
	if !sum.Equal(decimal.NewFromInt(100)) {
		t.Errorf("expected 100, got %s", sum)
	}
}

func TestAtomicRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Atomic(ctx, func(tx port.PledgeStore) error {
		p := &domain.Pledge{
			ID:                "p1",
			ContactID:         "contact-1",
			Amount:            decimal.NewFromInt(100),
			Currency:          "USD",
			Installments:      2,
			FrequencyUnit:     domain.FrequencyMonth,
			FrequencyInterval: 1,
			StartDate:         time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			Status:            domain.StatusPending,
		}
		if err := tx.CreatePledge(ctx, p); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	var notFound *domain.ErrNotFound
	if _, err := s.GetPledge(ctx, "p1"); !errors.As(err, &notFound) {
		t.Fatalf("expected pledge to be rolled back, got %v", err)
	}
}

func TestDeletePledgeCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seedPledge(t, s, "p1")
	seedInstallment(t, s, "i1", "p1", 1, 50, domain.StatusPending)
	seedInstallment(t, s, "i2", "p1", 2, 50, domain.StatusPending)

	if err := s.DeletePledge(ctx, "p1"); err != nil {
		t.Fatalf("delete pledge: %v", err)
	}

	insts, err := s.ListInstallments(ctx, "p1")
	if err != nil {
		t.Fatalf("list installments: %v", err)
	}
	if len(insts) != 0 {
		t.Errorf("expected installments removed, got %d", len(insts))
	}
}
