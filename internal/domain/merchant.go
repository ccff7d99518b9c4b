package domain

import "time"

// Merchant is a billable store presence. Token is derived deterministically
// from the scoping tuple; see internal/identity.
type Merchant struct {
	ID       int64
	Name     string
	TaxID    string
	BillerID string // exactly 15 digits, derived from TaxID
	GroupID  int
	SiteID   int
	MenuID   int
	Token    string // 20 digits: group(3) site(4) store(6) menu(7)

	City string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ProfileScope is the scope a BankingProfile applies at.
type ProfileScope string

const (
	ScopeGroup ProfileScope = "group"
	ScopeSite  ProfileScope = "site"
	ScopeStore ProfileScope = "store"
)

// ProviderType discriminates which gateway a BankingProfile configures.
type ProviderType string

const (
	ProviderSCB      ProviderType = "scb"
	ProviderKBank    ProviderType = "kbank"
	ProviderOmise    ProviderType = "omise"
	ProviderStripe   ProviderType = "stripe"
	ProviderApplePay ProviderType = "apple_pay"
)

// BankingProfile holds per-rail credentials at one of three scopes. The
// resolver (internal/profile) picks the narrowest active match.
type BankingProfile struct {
	ID       int64
	Scope    ProfileScope
	GroupID  *int
	SiteID   *int
	StoreID  *int64
	Provider ProviderType
	IsActive bool

	SCBAppKey      string
	SCBAppSecret   string
	SCBCallbackURL string

	KBankCustomerID     string
	KBankConsumerSecret string

	OmiseSecretKey string

	StripeSecretKey string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Menu is a merchant-owned pricing list; its MenuID participates in the
// merchant token (internal/identity.BuildMerchantToken).
type Menu struct {
	ID         int64
	MerchantID int64
	Name       string
}

// StoreQuickAmount is a merchant-owned preset top-up/debit amount shown on
// a counter POS keypad.
type StoreQuickAmount struct {
	ID         int64
	MerchantID int64
	Label      string
	AmountMinor int64 // satang
}
