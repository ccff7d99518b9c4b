package domain

import "time"

// FCIDStatus is the lifecycle state of a stored-value token. The permitted
// transitions are enumerated explicitly in CanTransitionTo rather than left
// as an implicit consequence of balance math.
type FCIDStatus string

const (
	FCIDActive   FCIDStatus = "active"
	FCIDUsed     FCIDStatus = "used"
	FCIDRefunded FCIDStatus = "refunded"
	FCIDExpired  FCIDStatus = "expired"
)

// top_up and debit both require status=active, and refund requires a
// non-zero balance. A token that reaches "used" (debited to a zero balance)
// or "expired" (zeroed by the nightly reset) therefore has no legal
// successor operation, exactly like "refunded" — all three are terminal.
var fcidTransitions = map[FCIDStatus]map[FCIDStatus]bool{
	FCIDActive:   {FCIDUsed: true, FCIDRefunded: true, FCIDExpired: true},
	FCIDUsed:     {},
	FCIDRefunded: {},
	FCIDExpired:  {},
}

// CanTransitionTo reports whether moving from s to next is a legal FCID
// lifecycle transition.
func (s FCIDStatus) CanTransitionTo(next FCIDStatus) bool {
	allowed, ok := fcidTransitions[s]
	if !ok {
		return false
	}
	return allowed[next]
}

// IsTerminal reports whether s accepts no further transitions.
func (s FCIDStatus) IsTerminal() bool {
	return len(fcidTransitions[s]) == 0
}

// FCID is the stored-value bearer token: the system's unit of escrow.
type FCID struct {
	Code string // FC-YYYYMMDD-NNNNN

	InitialAmountMinor int64 // satang, cumulative credited-ever
	CurrentBalanceMinor int64

	PaymentMethod PaymentMethod // original tender at mint time
	Status        FCIDStatus

	CustomerID *int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// CounterTransaction is an append-only record of a counter-side mint or
// top-up.
type CounterTransaction struct {
	ID              int64
	FCIDCode        string
	CounterID       *string
	CounterUserID   *string
	AmountMinor     int64
	PaymentMethod   PaymentMethod
	PaymentDetails  string // opaque JSON blob for variant-specific payloads
	Status          string // completed | pending | failed
	CreatedAt       time.Time
}

// StoreTransaction is an append-only record of a merchant-side debit.
type StoreTransaction struct {
	ID          int64
	FCIDCode    string
	MerchantID  int64
	AmountMinor int64
	Status      string
	CreatedAt   time.Time
}

// CryptoTopUpStatus tracks a pending on-chain top-up through the
// scheduler's periodic confirmation poll.
type CryptoTopUpStatus string

const (
	CryptoTopUpPending   CryptoTopUpStatus = "pending"
	CryptoTopUpConfirmed CryptoTopUpStatus = "confirmed"
	CryptoTopUpFailed    CryptoTopUpStatus = "failed"
)

// CryptoTopUp is a customer-submitted claim of an on-chain transfer,
// awaiting the scheduler's 5-minute poll to verify the transaction receipt
// before the FCID balance is actually credited. The gateway round trip for
// crypto methods is a block explorer / RPC node rather than a payment rail.
type CryptoTopUp struct {
	ID                  int64
	FCIDCode            string
	PaymentMethod       PaymentMethod
	TxHash              string
	DestAddress         string
	ExpectedAmountMinor int64
	Status              CryptoTopUpStatus
	Attempts            int
	LastError           string
	ConfirmedAt         *time.Time
	CreatedAt           time.Time
}

// PaymentTransaction is the customer-facing receipt for a debit or a
// gateway-confirmed webhook payment.
type PaymentTransaction struct {
	ID            int64
	CustomerID    *int64
	MerchantID    int64
	AmountMinor   int64
	PaymentMethod PaymentMethod
	Status        string // confirmed | voided
	ReceiptNumber string // RCP-YYYYMMDD-NNNNN
	FCIDCode      *string
	Ref1          *string
	Ref2          *string
	Ref3          *string
	BankAccount   *string
	CreatedAt     time.Time
}
