package domain

import "time"

// AttemptStatus is the terminal outcome of one gateway invocation.
type AttemptStatus string

const (
	AttemptSucceeded AttemptStatus = "succeeded"
	AttemptFailed    AttemptStatus = "failed"
	AttemptCancelled AttemptStatus = "cancelled"
)

// PaymentAttempt is one immutable record in the append-only payment
// history. Every gateway invocation produces exactly one record,
// regardless of outcome. Records are never updated or deleted.
type PaymentAttempt struct {
	ID             string        `json:"id"`
	UserID         string        `json:"user_id"`
	GatewayOrderID string        `json:"gateway_order_id,omitempty"`
	PaymentID      string        `json:"payment_id,omitempty"`
	Status         AttemptStatus `json:"status"`
	ErrorCode      string        `json:"error_code,omitempty"`
	AttemptNumber  int           `json:"attempt_number"`
	AmountMinor    int64         `json:"amount_minor"`
	Currency       string        `json:"currency"`
	CreatedAt      time.Time     `json:"created_at"`
}
