package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request statuses. Transitions are monotonic:
// PENDING -> QUEUED -> COMPLETED | FAILED.
const (
	StatusPending   = "PENDING"
	StatusQueued    = "QUEUED"
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
)

// IsTerminal reports whether a status ends the request lifecycle.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed
}

// Request is a top-up request as persisted in recharge_requests.
type Request struct {
	ID          string          `json:"id"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
	Carrier     string          `json:"carrier"`
	Status      string          `json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// Wallet is a per-operator prepaid balance used to fund top-ups.
type Wallet struct {
	OperatorID int64           `json:"operator_id"`
	Operator   string          `json:"operator"`
	Balance    decimal.Decimal `json:"balance"`
	Currency   string          `json:"currency"`
}

// AuditRecord is one immutable line of the settlement audit trail.
type AuditRecord struct {
	ID          int64     `json:"id"`
	RequestID   string    `json:"request_id"`
	Detail      string    `json:"detail"`
	CompletedAt time.Time `json:"completed_at"`
}

// TopupEvent is the wire payload between dispatcher and settler.
// Amount travels as a decimal string so no precision is lost in transit.
type TopupEvent struct {
	RequestID   string          `json:"request_id"`
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
	Operator    string          `json:"operator,omitempty"`
}

// TopupRequest is the payload from the intake client.
type TopupRequest struct {
	PhoneNumber string          `json:"phone_number"`
	Amount      decimal.Decimal `json:"amount"`
	Carrier     string          `json:"carrier"`
}

// RequestDetail is the canonical response for GET /topups/{id}.
type RequestDetail struct {
	Request Request       `json:"request"`
	Audits  []AuditRecord `json:"audits"`
}
