package domain

import "time"

// BackTransactionStatus tracks a canonicalized rail callback through the
// settlement pipeline.
type BackTransactionStatus string

const (
	BackTxReceived BackTransactionStatus = "received"
	BackTxMatched  BackTransactionStatus = "matched"
	BackTxSettled  BackTransactionStatus = "settled"
	BackTxFailed   BackTransactionStatus = "failed"
)

// BackTransaction is the canonical, durable record of a completed payment
// as reported by a bank or gateway webhook. merchant_id is nullable: a
// ref1 that matches no merchant is still recorded for audit.
type BackTransaction struct {
	ID             int64
	Ref1           string
	Ref2           *string
	Ref3           *string
	AmountMinor    int64
	PaidAt         time.Time
	SlipReference  *string
	BankAccount    *string
	MerchantID     *int64
	Status         BackTransactionStatus
	RawPayload     string

	CreatedAt time.Time
}
