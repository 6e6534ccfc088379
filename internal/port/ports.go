// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/openpledge/pledged/internal/domain"
)

// PledgeStore defines all data operations for pledges and installments.
// Implemented by the GORM adapter (or any other relational backend).
//
// Atomic runs fn inside one transaction: every store call made through the
// PledgeStore passed to fn either commits as a whole or rolls back as a
// whole. Implementations must serialize concurrent transactions touching
// the same pledge (row-level lock on the pledge record).
type PledgeStore interface {
	Atomic(ctx context.Context, fn func(tx PledgeStore) error) error

	// Pledges
	CreatePledge(ctx context.Context, p *domain.Pledge) error
	GetPledge(ctx context.Context, pledgeID string) (*domain.Pledge, error)
	// UpdatePledge writes status, amount, and the end/cancel date stamps in
	// a single statement so status and its dates are never torn.
	UpdatePledge(ctx context.Context, p *domain.Pledge) error
	// DeletePledge removes the pledge and cascades to its installments.
	DeletePledge(ctx context.Context, pledgeID string) error

	// Installments
	CreateInstallment(ctx context.Context, inst *domain.Installment) error
	UpdateInstallment(ctx context.Context, inst *domain.Installment) error
	GetInstallment(ctx context.Context, installmentID string) (*domain.Installment, error)
	// ListInstallments returns all installments of a pledge ordered by
	// sequence ascending.
	ListInstallments(ctx context.Context, pledgeID string) ([]domain.Installment, error)
	// ListOpenInstallments returns up to limit Pending/Overdue installments
	// ordered by scheduled date ascending. limit <= 0 means no limit.
	ListOpenInstallments(ctx context.Context, pledgeID string, limit int) ([]domain.Installment, error)
	// FindInstallmentsByPayment returns the installments linked to an
	// external payment, ordered by sequence ascending.
	FindInstallmentsByPayment(ctx context.Context, paymentID string) ([]domain.Installment, error)
	// SumScheduled returns the sum of scheduled amounts over the pledge's
	// non-cancelled installments.
	SumScheduled(ctx context.Context, pledgeID string) (decimal.Decimal, error)
}

// CurrencyResolver returns the minor-unit decimal precision for an
// ISO-4217 currency code (2 for USD, 0 for JPY, ...).
type CurrencyResolver interface {
	Precision(ctx context.Context, currency string) (int32, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
