package domain

import "fmt"

// Status is the symbolic lifecycle state of a pledge or an installment.
type Status string

const (
	StatusPending    Status = "Pending"
	StatusOverdue    Status = "Overdue"
	StatusCompleted  Status = "Completed"
	StatusCancelled  Status = "Cancelled"
	StatusRefunded   Status = "Refunded"
	StatusFailed     Status = "Failed"
	StatusInProgress Status = "In Progress"
)

// Open reports whether an installment in this status still accepts payments.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusOverdue
}

// Terminal reports whether a payment status ends the payment's lifecycle
// on the negative side (the linked installments must be released).
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusRefunded || s == StatusFailed
}

// StatusRegistry maps symbolic status names to the opaque codes stored in
// the database and back. It is built once at startup and injected where
// needed; there is no package-level singleton.
type StatusRegistry struct {
	byName map[Status]int
	byCode map[int]Status
}

// NewStatusRegistry builds the registry with the default code assignment.
// Codes are stable across releases; never renumber.
func NewStatusRegistry() *StatusRegistry {
	r := &StatusRegistry{
		byName: make(map[Status]int),
		byCode: make(map[int]Status),
	}
	for code, name := range []Status{
		StatusCompleted,
		StatusPending,
		StatusCancelled,
		StatusFailed,
		StatusInProgress,
		StatusOverdue,
		StatusRefunded,
	} {
		r.byName[name] = code + 1
		r.byCode[code+1] = name
	}
	return r
}

// Code returns the stored code for a symbolic status.
func (r *StatusRegistry) Code(s Status) (int, error) {
	code, ok := r.byName[s]
	if !ok {
		return 0, fmt.Errorf("unknown status %q", s)
	}
	return code, nil
}

// Name returns the symbolic status for a stored code.
func (r *StatusRegistry) Name(code int) (Status, error) {
	name, ok := r.byCode[code]
	if !ok {
		return "", fmt.Errorf("unknown status code %d", code)
	}
	return name, nil
}
