package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentEvent is a payment-status-change notification from the surrounding
// payment subsystem. It drives the reconcile → recompute-status → persist
// pipeline; delivery is at-least-once, so handling must be idempotent.
type PaymentEvent struct {
	PaymentID string `json:"payment_id"`
	// PledgeID may be empty for cancel/refund events; the pledge is then
	// resolved through the installments linked to PaymentID.
	PledgeID string `json:"pledge_id,omitempty"`
	// InstallmentID optionally pins the reconciliation target.
	InstallmentID string          `json:"installment_id,omitempty"`
	Amount        decimal.Decimal `json:"amount"`
	Status        Status          `json:"status"`
	OccurredAt    time.Time       `json:"occurred_at"`
}
