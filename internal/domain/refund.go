package domain

import "time"

// RefundNotification records one attempt to tell a stored-value holder that
// their remaining balance is about to be (or has been) returned. Created by
// the nightly balance-reset sweep for every FCID still carrying value; at
// most one per token per calendar day.
type RefundNotification struct {
	ID          int64
	FCIDCode    string
	CustomerID  *int64
	AmountMinor int64

	Sent   bool
	SentAt *time.Time

	CreatedAt time.Time
}
