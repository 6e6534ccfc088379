package service_test

import (
	"testing"

	"github.com/openpledge/pledged/internal/domain"
	"github.com/openpledge/pledged/internal/service"
)

func insts(statuses ...domain.Status) []domain.Installment {
	out := make([]domain.Installment, len(statuses))
	for i, s := range statuses {
		out[i] = domain.Installment{Sequence: i + 1, Status: s}
	}
	return out
}

func TestAggregateStatus(t *testing.T) {
	cases := []struct {
		name      string
		cancelled bool
		statuses  []domain.Status
		want      domain.Status
	}{
		{"all pending", false, []domain.Status{domain.StatusPending, domain.StatusPending}, domain.StatusPending},
		{"any overdue wins", false, []domain.Status{domain.StatusCompleted, domain.StatusOverdue}, domain.StatusOverdue},
		{"overdue beats pending", false, []domain.Status{domain.StatusPending, domain.StatusOverdue, domain.StatusPending}, domain.StatusOverdue},
		{"all completed", false, []domain.Status{domain.StatusCompleted, domain.StatusCompleted}, domain.StatusCompleted},
		{"some completed", false, []domain.Status{domain.StatusCompleted, domain.StatusPending}, domain.StatusInProgress},
		{"cancelled pledge wins", true, []domain.Status{domain.StatusCompleted, domain.StatusOverdue}, domain.StatusCancelled},
		{"cancelled installments excluded", false, []domain.Status{domain.StatusCompleted, domain.StatusCancelled}, domain.StatusCompleted},
		{"refunded installments excluded", false, []domain.Status{domain.StatusCompleted, domain.StatusRefunded, domain.StatusPending}, domain.StatusInProgress},
		{"no installments", false, nil, domain.StatusPending},
		{"only cancelled installments", false, []domain.Status{domain.StatusCancelled}, domain.StatusPending},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := service.AggregateStatus(tc.cancelled, insts(tc.statuses...))
			if got != tc.want {
				t.Errorf("got %s, want %s", got, tc.want)
			}
		})
	}
}
