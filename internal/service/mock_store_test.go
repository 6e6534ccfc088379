package service_test

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/port"
)

// mockStore is an in-memory PledgeStore. Atomic snapshots the maps and
// restores them when fn fails, so rollback behavior is observable in
// tests.
type mockStore struct {
	pledges      map[string]*domain.Pledge
	installments map[string]*domain.Installment

	failUpdatePledge      bool
	failCreateInstallment bool
}

func newMockStore() *mockStore {
	return &mockStore{
		pledges:      make(map[string]*domain.Pledge),
		installments: make(map[string]*domain.Installment),
	}
}

type mockStoreError struct{ op string }

func (e *mockStoreError) Error() string { return "store failure injected: " + e.op }

func (m *mockStore) snapshot() (map[string]*domain.Pledge, map[string]*domain.Installment) {
	pledges := make(map[string]*domain.Pledge, len(m.pledges))
	for k, v := range m.pledges {
		c := *v
		pledges[k] = &c
	}
	installments := make(map[string]*domain.Installment, len(m.installments))
	for k, v := range m.installments {
		c := *v
		installments[k] = &c
	}
	return pledges, installments
}

func (m *mockStore) Atomic(_ context.Context, fn func(tx port.PledgeStore) error) error {
	pledges, installments := m.snapshot()
	if err := fn(m); err != nil {
		m.pledges, m.installments = pledges, installments
		return err
	}
	return nil
}

func (m *mockStore) CreatePledge(_ context.Context, p *domain.Pledge) error {
	c := *p
	m.pledges[p.ID] = &c
	return nil
}

func (m *mockStore) GetPledge(_ context.Context, pledgeID string) (*domain.Pledge, error) {
	p, ok := m.pledges[pledgeID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "pledge", ID: pledgeID}
	}
	c := *p
	return &c, nil
}

func (m *mockStore) UpdatePledge(_ context.Context, p *domain.Pledge) error {
	if m.failUpdatePledge {
		return &mockStoreError{op: "update pledge"}
	}
	if _, ok := m.pledges[p.ID]; !ok {
		return &domain.ErrNotFound{Resource: "pledge", ID: p.ID}
	}
	c := *p
	m.pledges[p.ID] = &c
	return nil
}

func (m *mockStore) DeletePledge(_ context.Context, pledgeID string) error {
	if _, ok := m.pledges[pledgeID]; !ok {
		return &domain.ErrNotFound{Resource: "pledge", ID: pledgeID}
	}
	delete(m.pledges, pledgeID)
	for id, inst := range m.installments {
		if inst.PledgeID == pledgeID {
			delete(m.installments, id)
		}
	}
	return nil
}

func (m *mockStore) CreateInstallment(_ context.Context, inst *domain.Installment) error {
	if m.failCreateInstallment {
		return &mockStoreError{op: "create installment"}
	}
	c := *inst
	m.installments[inst.ID] = &c
	return nil
}

func (m *mockStore) UpdateInstallment(_ context.Context, inst *domain.Installment) error {
	if _, ok := m.installments[inst.ID]; !ok {
		return &domain.ErrNotFound{Resource: "installment", ID: inst.ID}
	}
	c := *inst
	m.installments[inst.ID] = &c
	return nil
}

func (m *mockStore) GetInstallment(_ context.Context, installmentID string) (*domain.Installment, error) {
	inst, ok := m.installments[installmentID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "installment", ID: installmentID}
	}
	c := *inst
	return &c, nil
}

func (m *mockStore) ListInstallments(_ context.Context, pledgeID string) ([]domain.Installment, error) {
	var out []domain.Installment
	for _, inst := range m.installments {
		if inst.PledgeID == pledgeID {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *mockStore) ListOpenInstallments(_ context.Context, pledgeID string, limit int) ([]domain.Installment, error) {
	var out []domain.Installment
	for _, inst := range m.installments {
		if inst.PledgeID == pledgeID && inst.Status.Open() {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ScheduledDate.Equal(out[j].ScheduledDate) {
			return out[i].ScheduledDate.Before(out[j].ScheduledDate)
		}
		return out[i].Sequence < out[j].Sequence
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *mockStore) FindInstallmentsByPayment(_ context.Context, paymentID string) ([]domain.Installment, error) {
	var out []domain.Installment
	for _, inst := range m.installments {
		if inst.PaymentID == paymentID {
			out = append(out, *inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

func (m *mockStore) SumScheduled(_ context.Context, pledgeID string) (decimal.Decimal, error) {
	sum := decimal.Zero
	for _, inst := range m.installments {
		if inst.PledgeID != pledgeID {
			continue
		}
		if inst.Status == domain.StatusCancelled || inst.Status == domain.StatusRefunded {
			continue
		}
		sum = sum.Add(inst.ScheduledAmount)
	}
	return sum, nil
}

// mockCurrency resolves every currency to two decimal places.
type mockCurrency struct{}

func (mockCurrency) Precision(_ context.Context, _ string) (int32, error) {
	return 2, nil
}
