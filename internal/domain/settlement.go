package domain

import "time"

// SettlementStatus is the lifecycle of a per-merchant daily settlement
// obligation.
type SettlementStatus string

const (
	SettlementPending     SettlementStatus = "pending"
	SettlementTransferred SettlementStatus = "transferred"
	SettlementNotified    SettlementStatus = "notified"
)

var settlementTransitions = map[SettlementStatus]map[SettlementStatus]bool{
	SettlementPending:     {SettlementTransferred: true},
	SettlementTransferred: {SettlementNotified: true},
	SettlementNotified:    {},
}

// CanTransitionTo reports whether moving from s to next is a legal
// settlement lifecycle transition under the strict (pending->transferred
// ->notified) model. internal/settlement.NotifyMerchant offers a documented
// escape hatch (force=true) for the ambiguous direct pending->notified jump.
func (s SettlementStatus) CanTransitionTo(next SettlementStatus) bool {
	allowed, ok := settlementTransitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// Settlement is the daily per-merchant roll-up of confirmed back-transaction
// amounts: the operator's obligation to pay the merchant.
type Settlement struct {
	ID               int64
	MerchantID       int64
	SettlementDate   time.Time // calendar day, truncated to midnight
	AmountMinor      int64
	Status           SettlementStatus
	TransferredAt    *time.Time
	NotifiedAt       *time.Time
	ReceiptPrintedAt *time.Time

	CreatedAt time.Time
}

// IsOverdue flags a pending settlement whose settlement_date is more than
// one calendar day in the past relative to now — the one-day custody
// constraint.
func (s *Settlement) IsOverdue(now time.Time) bool {
	if s.Status != SettlementPending {
		return false
	}
	return now.Sub(s.SettlementDate) > 24*time.Hour
}
