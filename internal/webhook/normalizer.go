// Package webhook normalizes rail-specific callback bodies into the
// canonical BackTransaction record and drives the downstream effects every
// accepted event triggers: merchant attribution, a guest-customer payment
// receipt, and a signage flip.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// Rail identifies which callback shape a payload arrived in.
type Rail string

const (
	RailGeneric Rail = "generic" // also covers SCB's shape
	RailKBank   Rail = "kbank"
	RailOmise   Rail = "omise"
	RailStripe  Rail = "stripe"
)

// MerchantLookup resolves ref1 to a merchant.
type MerchantLookup interface {
	ByToken(ctx context.Context, token string) (*domain.Merchant, error)
}

// BackTxStore is the persistence surface the normalizer needs.
type BackTxStore interface {
	ByUniqueDeliveryKey(ctx context.Context, slipReference string) (*domain.BackTransaction, error)
	Insert(ctx context.Context, b *domain.BackTransaction) (int64, error)
	ByID(ctx context.Context, id int64) (*domain.BackTransaction, error)
}

// ReceiptStore is the minimal payment_transactions surface the normalizer
// needs to create the "PromptPay guest" receipt for every accepted event.
type ReceiptStore interface {
	NextReceiptNumberForDay(ctx context.Context, day time.Time) (string, error)
	InsertPaymentTransactionAutoCommit(ctx context.Context, pt *domain.PaymentTransaction) (int64, error)
}

// SignageNotifier flips a merchant's display to paid when its ref1 resolves.
type SignageNotifier interface {
	MarkPaid(merchantID int64) (domain.SignageSlot, bool)
}

// Result is what Normalize returns: the durable row plus whether it was a
// fresh insert or a replay of a prior delivery.
type Result struct {
	BackTransaction *domain.BackTransaction
	Duplicate       bool
}

// Normalizer implements the rail-to-canonical mapping and idempotent
// ingestion procedure.
type Normalizer struct {
	merchants MerchantLookup
	backTx    BackTxStore
	receipts  ReceiptStore
	signage   SignageNotifier
}

func New(merchants MerchantLookup, backTx BackTxStore, receipts ReceiptStore, signage SignageNotifier) *Normalizer {
	return &Normalizer{merchants: merchants, backTx: backTx, receipts: receipts, signage: signage}
}

// canonical is the rail-agnostic shape every mapper below produces before
// the common ingestion procedure takes over.
type canonical struct {
	ref1          string
	ref2          *string
	ref3          *string
	amountMinor   int64
	paidAt        time.Time
	slipReference *string
	bankAccount   *string
	rawPayload    []byte
	accept        bool // false means the event is a no-op for this rail (e.g. non-success Omise/Stripe event)
}

// Normalize parses rawBody per rail, canonicalizes it, and durably records
// it exactly once.
func (n *Normalizer) Normalize(ctx context.Context, rail Rail, rawBody []byte) (*Result, error) {
	c, err := parseRail(rail, rawBody)
	if err != nil {
		return nil, err
	}
	if !c.accept {
		// A rail event outside the set the table accepts (e.g. Omise
		// charge.create, Stripe payment_intent.created) is simply not a
		// paid event; nothing to ingest, nothing to reject either.
		return &Result{}, nil
	}
	if c.ref1 == "" {
		return nil, domain.NewValidationError("webhook payload missing ref1")
	}
	if c.amountMinor <= 0 {
		return nil, domain.NewValidationError("webhook payload missing or non-positive amount")
	}

	if c.slipReference != nil && *c.slipReference != "" {
		if existing, err := n.backTx.ByUniqueDeliveryKey(ctx, *c.slipReference); err != nil {
			return nil, err
		} else if existing != nil {
			log.Info().Str("slip_reference", *c.slipReference).Msg("duplicate webhook delivery, returning prior row")
			return &Result{BackTransaction: existing, Duplicate: true}, nil
		}
	}

	var merchantID *int64
	if m, err := n.merchants.ByToken(ctx, c.ref1); err != nil && domain.Kind(err) != domain.KindNotFound {
		return nil, err
	} else if m != nil {
		merchantID = &m.ID
	}

	bt := &domain.BackTransaction{
		Ref1:          c.ref1,
		Ref2:          c.ref2,
		Ref3:          c.ref3,
		AmountMinor:   c.amountMinor,
		PaidAt:        c.paidAt,
		SlipReference: c.slipReference,
		BankAccount:   c.bankAccount,
		MerchantID:    merchantID,
		Status:        domain.BackTxReceived,
		RawPayload:    string(c.rawPayload),
	}
	id, err := n.backTx.Insert(ctx, bt)
	if err != nil {
		return nil, err
	}
	bt.ID = id

	if err := n.recordGuestReceipt(ctx, bt); err != nil {
		// A receipt-bookkeeping failure must not un-record a durable bank
		// event; log and continue.
		log.Error().Err(err).Int64("back_transaction_id", id).Msg("failed to record guest receipt for webhook payment")
	}

	if merchantID != nil {
		n.signage.MarkPaid(*merchantID)
	} else {
		log.Warn().Str("ref1", c.ref1).Msg("webhook ref1 matched no merchant; recorded for audit only")
	}

	return &Result{BackTransaction: bt, Duplicate: false}, nil
}

func (n *Normalizer) recordGuestReceipt(ctx context.Context, bt *domain.BackTransaction) error {
	receipt := ""
	if bt.SlipReference != nil && *bt.SlipReference != "" {
		receipt = "RCP-" + onlyAlnum(*bt.SlipReference)
	}
	if receipt == "" {
		synthesized, err := n.receipts.NextReceiptNumberForDay(ctx, bt.PaidAt)
		if err != nil {
			return err
		}
		receipt = synthesized
	}

	merchantID := int64(0)
	if bt.MerchantID != nil {
		merchantID = *bt.MerchantID
	}

	_, err := n.receipts.InsertPaymentTransactionAutoCommit(ctx, &domain.PaymentTransaction{
		CustomerID:    nil, // nullable: the "PromptPay guest" placeholder is derived at read time, not a sentinel row
		MerchantID:    merchantID,
		AmountMinor:   bt.AmountMinor,
		PaymentMethod: domain.MethodPromptPay,
		Status:        "confirmed",
		ReceiptNumber: receipt,
		Ref1:          &bt.Ref1,
		Ref2:          bt.Ref2,
		Ref3:          bt.Ref3,
		BankAccount:   bt.BankAccount,
	})
	return err
}

func onlyAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || (r >= 'A' && r <= 'Z') || (r >= 'a' && r <= 'z') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func parseRail(rail Rail, rawBody []byte) (*canonical, error) {
	switch rail {
	case RailGeneric:
		return parseGeneric(rawBody)
	case RailKBank:
		return parseKBank(rawBody)
	case RailOmise:
		return parseOmise(rawBody)
	case RailStripe:
		return parseStripe(rawBody)
	default:
		return nil, domain.NewValidationError(fmt.Sprintf("unknown webhook rail %q", rail))
	}
}

// genericPayload is the SCB-shaped (and generic) callback body.
type genericPayload struct {
	Ref1          string   `json:"ref1"`
	Ref2          *string  `json:"ref2"`
	Ref3          *string  `json:"ref3"`
	Amount        float64  `json:"amount"`
	PaidAt        *string  `json:"paid_at"`
	SlipReference *string  `json:"slip_reference"`
	BankAccount   *string  `json:"bank_account"`
}

func parseGeneric(raw []byte) (*canonical, error) {
	var p genericPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, domain.NewValidationError("invalid webhook JSON body")
	}
	return &canonical{
		ref1:          p.Ref1,
		ref2:          p.Ref2,
		ref3:          p.Ref3,
		amountMinor:   bahtToMinor(p.Amount),
		paidAt:        parseTimeOrNow(p.PaidAt),
		slipReference: p.SlipReference,
		bankAccount:   p.BankAccount,
		rawPayload:    raw,
		accept:        true,
	}, nil
}

// kbankPayload is K Bank's callback shape; it carries both the documented
// field names and the "reference1"/"totalAmount" variant seen in the wild.
type kbankPayload struct {
	Reference1      string  `json:"reference1"`
	Ref1            string  `json:"ref1"`
	TotalAmount     float64 `json:"totalAmount"`
	Amount          float64 `json:"amount"`
	TransactionID   string  `json:"transactionId"`
	TransRef        string  `json:"transRef"`
	TransactionDate *string `json:"transactionDate"`
}

func parseKBank(raw []byte) (*canonical, error) {
	var p kbankPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, domain.NewValidationError("invalid webhook JSON body")
	}
	ref1 := p.Reference1
	if ref1 == "" {
		ref1 = p.Ref1
	}
	amount := p.TotalAmount
	if amount == 0 {
		amount = p.Amount
	}
	slip := p.TransactionID
	if slip == "" {
		slip = p.TransRef
	}
	var slipPtr *string
	if slip != "" {
		slipPtr = &slip
	}

	return &canonical{
		ref1:          ref1,
		amountMinor:   bahtToMinor(amount),
		paidAt:        parseTimeOrNow(p.TransactionDate),
		slipReference: slipPtr,
		rawPayload:    raw,
		accept:        true,
	}, nil
}

// omisePayload is Omise's event envelope; only a successful charge.complete
// event carries a paid event per the mapping table.
type omisePayload struct {
	Key  string `json:"key"`
	Data struct {
		ID       string  `json:"id"`
		Status   string  `json:"status"`
		Amount   float64 `json:"amount"`
		Metadata struct {
			Ref1 string `json:"ref1"`
		} `json:"metadata"`
	} `json:"data"`
}

func parseOmise(raw []byte) (*canonical, error) {
	var p omisePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, domain.NewValidationError("invalid webhook JSON body")
	}
	if p.Key != "charge.complete" || p.Data.Status != "successful" {
		return &canonical{accept: false}, nil
	}
	var slipPtr *string
	if p.Data.ID != "" {
		slipPtr = &p.Data.ID
	}
	return &canonical{
		ref1:          p.Data.Metadata.Ref1,
		amountMinor:   int64(p.Data.Amount), // already satang
		paidAt:        time.Now().UTC(),
		slipReference: slipPtr,
		rawPayload:    raw,
		accept:        true,
	}, nil
}

// stripePayload is Stripe's event envelope; only payment_intent.succeeded
// carries a paid event.
type stripePayload struct {
	Type string `json:"type"`
	Data struct {
		Object struct {
			ID       string  `json:"id"`
			Amount   float64 `json:"amount"`
			Metadata struct {
				Ref1 string `json:"ref1"`
			} `json:"metadata"`
		} `json:"object"`
	} `json:"data"`
}

func parseStripe(raw []byte) (*canonical, error) {
	var p stripePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, domain.NewValidationError("invalid webhook JSON body")
	}
	if p.Type != "payment_intent.succeeded" {
		return &canonical{accept: false}, nil
	}
	var slipPtr *string
	if p.Data.Object.ID != "" {
		slipPtr = &p.Data.Object.ID
	}
	return &canonical{
		ref1:          p.Data.Object.Metadata.Ref1,
		amountMinor:   int64(p.Data.Object.Amount), // already satang
		paidAt:        time.Now().UTC(),
		slipReference: slipPtr,
		rawPayload:    raw,
		accept:        true,
	}, nil
}

func bahtToMinor(baht float64) int64 {
	return int64(baht*100 + 0.5)
}

func parseTimeOrNow(s *string) time.Time {
	if s == nil || *s == "" {
		return time.Now().UTC()
	}
	t, err := time.Parse(time.RFC3339, *s)
	if err != nil {
		return time.Now().UTC()
	}
	return t.UTC()
}
