// Package domain holds the core data records of the pledge scheduler:
// pledges, installments, scheduling configuration, payment events, and the
// status vocabulary. Records are plain structs; persistence lives behind
// the ports in internal/port.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// FrequencyUnit is the period type between two installments.
type FrequencyUnit string

const (
	FrequencyDay   FrequencyUnit = "day"
	FrequencyWeek  FrequencyUnit = "week"
	FrequencyMonth FrequencyUnit = "month"
	FrequencyYear  FrequencyUnit = "year"
)

// Valid reports whether the unit is one of the recognized period types.
func (u FrequencyUnit) Valid() bool {
	switch u {
	case FrequencyDay, FrequencyWeek, FrequencyMonth, FrequencyYear:
		return true
	}
	return false
}

// ScheduleConfig enumerates exactly the recognized scheduling options for a
// pledge. It replaces the loosely-typed parameter bags the surrounding
// system used to pass around.
type ScheduleConfig struct {
	// Amount is the total pledged amount.
	Amount decimal.Decimal `json:"amount"`
	// Installments is how many slices the amount is split into.
	Installments int `json:"installments"`
	// InstallmentAmount, when set, fixes the per-installment amount instead
	// of deriving it from Amount / Installments.
	InstallmentAmount *decimal.Decimal `json:"installment_amount,omitempty"`
	// FrequencyUnit and FrequencyInterval describe the period between
	// installments, e.g. unit=month interval=2 for bimonthly.
	FrequencyUnit     FrequencyUnit `json:"frequency_unit"`
	FrequencyInterval int           `json:"frequency_interval"`
	// FrequencyDay anchors the period: day-of-month (1-31) for monthly,
	// day-of-week (0=Sunday..6) for weekly. Ignored for day/year units.
	FrequencyDay int `json:"frequency_day,omitempty"`
	// StartDate is the nominal date of the first installment before
	// normalization onto the period pattern.
	StartDate time.Time `json:"start_date"`
	// Currency is an ISO-4217 code; empty means the configured default.
	Currency string `json:"currency,omitempty"`
}

// Pledge is a multi-installment financial commitment by a contact.
// Its status is always derivable from its installments' statuses; its
// amount is only ever adjusted by reconciliation, never directly.
type Pledge struct {
	ID                string          `json:"id"`
	ContactID         string          `json:"contact_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	Installments      int             `json:"installments"`
	FrequencyUnit     FrequencyUnit   `json:"frequency_unit"`
	FrequencyInterval int             `json:"frequency_interval"`
	FrequencyDay      int             `json:"frequency_day"`
	StartDate         time.Time       `json:"start_date"`
	Status            Status          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	// EndDate is stamped in the same write that moves the pledge to
	// Completed; CancelDate likewise for Cancelled.
	EndDate    *time.Time `json:"end_date,omitempty"`
	CancelDate *time.Time `json:"cancel_date,omitempty"`
}

// Installment is one scheduled slice of a pledge. It references the actual
// payment that settled it by identifier only; deleting the payment detaches
// it without deleting the installment.
type Installment struct {
	ID              string          `json:"id"`
	PledgeID        string          `json:"pledge_id"`
	Sequence        int             `json:"sequence"`
	ScheduledDate   time.Time       `json:"scheduled_date"`
	ScheduledAmount decimal.Decimal `json:"scheduled_amount"`
	Currency        string          `json:"currency"`
	Status          Status          `json:"status"`

	// PaymentID links the external payment that settled (or partially
	// settled) this installment. ActualAmount is the portion of that
	// payment attributed to this installment; reconciliation uses it to
	// restore the schedule when the payment is later cancelled or refunded.
	PaymentID    string          `json:"payment_id,omitempty"`
	ActualAmount decimal.Decimal `json:"actual_amount"`
	PaidDate     *time.Time      `json:"paid_date,omitempty"`

	ReminderDate  *time.Time `json:"reminder_date,omitempty"`
	ReminderCount int        `json:"reminder_count"`
}

// Linked reports whether an external payment is attached.
func (i *Installment) Linked() bool { return i.PaymentID != "" }

// PledgeRequest carries everything needed to create a pledge together with
// its installment schedule.
type PledgeRequest struct {
	ContactID string         `json:"contact_id"`
	Schedule  ScheduleConfig `json:"schedule"`
	// PaymentID optionally links a payment made concurrently with pledge
	// creation; it is attached to the first installment only, which is
	// created Completed.
	PaymentID string `json:"payment_id,omitempty"`
}

// PaymentApplication describes an actual payment being applied against a
// pledge's schedule.
type PaymentApplication struct {
	// PaymentID identifies the external payment record. Required.
	PaymentID string `json:"payment_id"`
	// InstallmentID optionally targets a specific installment; when empty
	// the next open installment by ascending scheduled date is used.
	InstallmentID string `json:"installment_id,omitempty"`
	// Amount actually received. Must be positive.
	Amount decimal.Decimal `json:"amount"`
	// PaidDate defaults to now when zero.
	PaidDate time.Time `json:"paid_date,omitempty"`
}

// Schedule is the ordered view of a pledge with its installments.
type Schedule struct {
	Pledge       *Pledge       `json:"pledge"`
	Installments []Installment `json:"installments"`
}
