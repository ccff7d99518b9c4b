// Package escrow implements the FCID stored-value engine: mint, debit,
// top-up, refund, and balance inspection over a sqlite-backed ledger. Every
// operation is a single atomic unit spanning the FCID row and its
// append-only ledger rows: either both commit or neither does.
package escrow

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// maxMintRetries bounds the code-collision retry loop. At 5 random decimal
// digits there are 100,000 codes per day; log2(100000) ~= 17, so a handful
// of retries covers any plausible collision rate long before exhaustion.
const maxMintRetries = 20

// maxCASRetries bounds the compare-and-set retry loop for debit/top-up/
// refund when two writers race the same FCID.
const maxCASRetries = 3

// Repository is the persistence surface the engine needs; internal/store's
// FCIDRepo implements it against sqlite.
type Repository interface {
	BeginTx(ctx context.Context) (*sql.Tx, error)
	Exists(ctx context.Context, code string) (bool, error)
	Create(ctx context.Context, tx *sql.Tx, f *domain.FCID) error
	Get(ctx context.Context, code string) (*domain.FCID, error)
	GetTx(ctx context.Context, tx *sql.Tx, code string) (*domain.FCID, error)
	UpdateBalance(ctx context.Context, tx *sql.Tx, code string, expectedStatus domain.FCIDStatus, newInitial, newBalance int64, newStatus domain.FCIDStatus) (bool, error)
	AppendCounterTransaction(ctx context.Context, tx *sql.Tx, ct *domain.CounterTransaction) (int64, error)
	AppendStoreTransaction(ctx context.Context, tx *sql.Tx, st *domain.StoreTransaction) (int64, error)
	InsertPaymentTransaction(ctx context.Context, tx *sql.Tx, pt *domain.PaymentTransaction) (int64, error)
	NextReceiptNumber(ctx context.Context, tx *sql.Tx, day time.Time) (string, error)
	MarkCounterTransactionCompleted(ctx context.Context, tx *sql.Tx, fcidCode string) (bool, error)
}

// CryptoRepository is the pending-claim persistence surface a crypto-tendered
// mint/top-up records its claim against; internal/store's CryptoTopUpRepo
// implements it. Left nil, Engine rejects any cryptocurrency PaymentMethod
// rather than silently crediting an unverified on-chain transfer.
type CryptoRepository interface {
	CreateTx(ctx context.Context, tx *sql.Tx, c *domain.CryptoTopUp) (int64, error)
}

// Engine implements the mint/debit/top_up/refund/balance operations.
type Engine struct {
	repo       Repository
	cryptoRepo CryptoRepository
}

func New(repo Repository, cryptoRepo CryptoRepository) *Engine {
	return &Engine{repo: repo, cryptoRepo: cryptoRepo}
}

// cryptoClaim is the shape a crypto-tendered mint/top-up's payment_details
// must carry: the on-chain transaction hash and the destination address the
// poller (internal/crypto) will later check the transfer against.
type cryptoClaim struct {
	TxHash      string `json:"tx_hash"`
	DestAddress string `json:"dest_address"`
}

func parseCryptoClaim(detailsJSON string) (cryptoClaim, error) {
	var c cryptoClaim
	if detailsJSON != "" && detailsJSON != "{}" {
		if err := json.Unmarshal([]byte(detailsJSON), &c); err != nil {
			return c, domain.NewValidationError("invalid payment_details for a cryptocurrency payment method")
		}
	}
	if c.TxHash == "" || c.DestAddress == "" {
		return c, domain.NewValidationError("cryptocurrency payment methods require tx_hash and dest_address in payment_details")
	}
	return c, nil
}

// DebitResult is returned by Debit.
type DebitResult struct {
	RemainingBalanceMinor int64
	PaymentTransactionID  *int64
}

// TopUpResult is returned by TopUp.
type TopUpResult struct {
	OldBalanceMinor int64
	NewBalanceMinor int64
}

// Mint creates a new FCID. amount=0 produces a receptacle waiting for a
// top-up. A CounterTransaction(amount, method, status=completed) is
// recorded even for a zero-amount mint, matching the append-only-ledger
// contract: every credit to the token, including the opening one, leaves a
// trace. A cryptocurrency mint records it with status=pending instead and
// leaves the balance at zero until ConfirmCryptoTopUp credits it.
func (e *Engine) Mint(ctx context.Context, amountMinor int64, method domain.PaymentMethod, detailsJSON string, counterID, counterUserID *string, customerID *int64) (*domain.FCID, error) {
	if amountMinor < 0 {
		return nil, domain.NewValidationError("mint amount must not be negative")
	}
	if !method.Valid() {
		return nil, domain.NewValidationError(fmt.Sprintf("unrecognized payment method %q", method))
	}
	if detailsJSON == "" {
		detailsJSON = "{}"
	}

	pendingCrypto := method.IsCrypto() && amountMinor > 0
	var claim cryptoClaim
	if pendingCrypto {
		if e.cryptoRepo == nil {
			return nil, domain.NewValidationError("cryptocurrency payment methods are not configured on this server")
		}
		var err error
		claim, err = parseCryptoClaim(detailsJSON)
		if err != nil {
			return nil, err
		}
	}

	code, err := e.generateCode(ctx)
	if err != nil {
		return nil, err
	}

	tx, err := e.repo.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// A crypto-tendered mint is minted as an empty receptacle: the balance
	// is credited only once the 5-minute poller confirms the on-chain
	// transfer (internal/crypto.Poller), matching every other crypto
	// top-up's pending-claim lifecycle.
	creditedNow := amountMinor
	ctStatus := "completed"
	if pendingCrypto {
		creditedNow = 0
		ctStatus = "pending"
	}

	f := &domain.FCID{
		Code:                code,
		InitialAmountMinor:  creditedNow,
		CurrentBalanceMinor: creditedNow,
		PaymentMethod:       method,
		Status:              domain.FCIDActive,
		CustomerID:          customerID,
	}
	if err := e.repo.Create(ctx, tx, f); err != nil {
		return nil, err
	}
	if _, err := e.repo.AppendCounterTransaction(ctx, tx, &domain.CounterTransaction{
		FCIDCode:       code,
		CounterID:      counterID,
		CounterUserID:  counterUserID,
		AmountMinor:    amountMinor,
		PaymentMethod:  method,
		PaymentDetails: detailsJSON,
		Status:         ctStatus,
	}); err != nil {
		return nil, err
	}
	if pendingCrypto {
		if _, err := e.cryptoRepo.CreateTx(ctx, tx, &domain.CryptoTopUp{
			FCIDCode:            code,
			PaymentMethod:       method,
			TxHash:              claim.TxHash,
			DestAddress:         claim.DestAddress,
			ExpectedAmountMinor: amountMinor,
		}); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, domain.NewInternalError("committing mint", err)
	}

	now := time.Now().UTC()
	f.CreatedAt, f.UpdatedAt = now, now
	if pendingCrypto {
		log.Info().Str("fcid", code).Int64("amount_minor", amountMinor).Str("method", string(method)).Msg("fcid minted pending crypto confirmation")
	} else {
		log.Info().Str("fcid", code).Int64("amount_minor", amountMinor).Str("method", string(method)).Msg("fcid minted")
	}
	return f, nil
}

// generateCode produces a globally unique FC-YYYYMMDD-NNNNN code, retrying
// on collision.
func (e *Engine) generateCode(ctx context.Context) (string, error) {
	today := time.Now().UTC().Format("20060102")
	for i := 0; i < maxMintRetries; i++ {
		suffix, err := randomDigits(5)
		if err != nil {
			return "", domain.NewInternalError("generating random fcid suffix", err)
		}
		code := fmt.Sprintf("FC-%s-%s", today, suffix)
		exists, err := e.repo.Exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return "", domain.NewInternalError("exhausted fcid code generation retries", nil)
}

func randomDigits(n int) (string, error) {
	max := big.NewInt(1)
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		max.Mul(max, ten)
	}
	v, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}

// Balance is a pure read of the current FCID snapshot.
func (e *Engine) Balance(ctx context.Context, code string) (*domain.FCID, error) {
	return e.repo.Get(ctx, code)
}

// Debit decrements amount from code's balance on behalf of merchantID. It
// fails with InsufficientBalance (also for a "used" token, whose balance is
// zero), NotFound, or Conflict (refunded/expired token), and transitions
// status to "used" when the balance reaches zero.
func (e *Engine) Debit(ctx context.Context, code string, merchantID int64, amountMinor int64) (*DebitResult, error) {
	if amountMinor <= 0 {
		return nil, domain.NewValidationError("debit amount must be positive")
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		result, retry, err := e.tryDebit(ctx, code, merchantID, amountMinor)
		if err != nil {
			return nil, err
		}
		if !retry {
			return result, nil
		}
	}
	return nil, domain.NewInternalError("debit lost the race to a concurrent writer after retrying", nil)
}

func (e *Engine) tryDebit(ctx context.Context, code string, merchantID, amountMinor int64) (*DebitResult, bool, error) {
	tx, err := e.repo.BeginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	f, err := e.repo.GetTx(ctx, tx, code)
	if err != nil {
		return nil, false, err
	}
	if f.Status == domain.FCIDUsed {
		// A used token was debited to zero: report the empty balance.
		return nil, false, domain.NewInsufficientBalanceError(formatBaht(f.CurrentBalanceMinor), formatBaht(amountMinor))
	}
	if f.Status != domain.FCIDActive {
		return nil, false, domain.NewConflictError(fmt.Sprintf("fcid %s is not active (status=%s)", code, f.Status))
	}
	if f.CurrentBalanceMinor < amountMinor {
		return nil, false, domain.NewInsufficientBalanceError(formatBaht(f.CurrentBalanceMinor), formatBaht(amountMinor))
	}

	newBalance := f.CurrentBalanceMinor - amountMinor
	newStatus := domain.FCIDActive
	if newBalance == 0 {
		newStatus = domain.FCIDUsed
	}

	ok, err := e.repo.UpdateBalance(ctx, tx, code, domain.FCIDActive, f.InitialAmountMinor, newBalance, newStatus)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, true, nil // lost the race; caller retries
	}

	if _, err := e.repo.AppendStoreTransaction(ctx, tx, &domain.StoreTransaction{
		FCIDCode:    code,
		MerchantID:  merchantID,
		AmountMinor: amountMinor,
		Status:      "completed",
	}); err != nil {
		return nil, false, err
	}

	var paymentTxID *int64
	if f.CustomerID != nil {
		receipt, err := e.repo.NextReceiptNumber(ctx, tx, time.Now().UTC())
		if err != nil {
			return nil, false, err
		}
		id, err := e.repo.InsertPaymentTransaction(ctx, tx, &domain.PaymentTransaction{
			CustomerID:    f.CustomerID,
			MerchantID:    merchantID,
			AmountMinor:   amountMinor,
			PaymentMethod: f.PaymentMethod,
			Status:        "confirmed",
			ReceiptNumber: receipt,
			FCIDCode:      &code,
		})
		if err != nil {
			return nil, false, err
		}
		paymentTxID = &id
	}

	if err := tx.Commit(); err != nil {
		return nil, false, domain.NewInternalError("committing debit", err)
	}

	log.Info().Str("fcid", code).Int64("merchant_id", merchantID).Int64("amount_minor", amountMinor).Msg("fcid debited")
	return &DebitResult{RemainingBalanceMinor: newBalance, PaymentTransactionID: paymentTxID}, false, nil
}

// TopUp increments code's balance and initial_amount by the same delta.
// Fails if the token is not active.
func (e *Engine) TopUp(ctx context.Context, code string, amountMinor int64, method domain.PaymentMethod, detailsJSON string) (*TopUpResult, error) {
	if amountMinor <= 0 {
		return nil, domain.NewValidationError("top-up amount must be positive")
	}
	if !method.Valid() {
		return nil, domain.NewValidationError(fmt.Sprintf("unrecognized payment method %q", method))
	}
	if detailsJSON == "" {
		detailsJSON = "{}"
	}

	for attempt := 0; attempt < maxCASRetries; attempt++ {
		result, retry, err := e.tryTopUp(ctx, code, amountMinor, method, detailsJSON)
		if err != nil {
			return nil, err
		}
		if !retry {
			return result, nil
		}
	}
	return nil, domain.NewInternalError("top-up lost the race to a concurrent writer after retrying", nil)
}

func (e *Engine) tryTopUp(ctx context.Context, code string, amountMinor int64, method domain.PaymentMethod, detailsJSON string) (*TopUpResult, bool, error) {
	pendingCrypto := method.IsCrypto()
	var claim cryptoClaim
	if pendingCrypto {
		if e.cryptoRepo == nil {
			return nil, false, domain.NewValidationError("cryptocurrency payment methods are not configured on this server")
		}
		var err error
		claim, err = parseCryptoClaim(detailsJSON)
		if err != nil {
			return nil, false, err
		}
	}

	tx, err := e.repo.BeginTx(ctx)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	f, err := e.repo.GetTx(ctx, tx, code)
	if err != nil {
		return nil, false, err
	}
	if f.Status != domain.FCIDActive {
		return nil, false, domain.NewConflictError(fmt.Sprintf("fcid %s is not active (status=%s)", code, f.Status))
	}

	// A crypto-tendered top-up records its claim but leaves the balance
	// untouched until the poller confirms the on-chain transfer and calls
	// ConfirmCryptoTopUp.
	if pendingCrypto {
		if _, err := e.repo.AppendCounterTransaction(ctx, tx, &domain.CounterTransaction{
			FCIDCode:       code,
			AmountMinor:    amountMinor,
			PaymentMethod:  method,
			PaymentDetails: detailsJSON,
			Status:         "pending",
		}); err != nil {
			return nil, false, err
		}
		if _, err := e.cryptoRepo.CreateTx(ctx, tx, &domain.CryptoTopUp{
			FCIDCode:            code,
			PaymentMethod:       method,
			TxHash:              claim.TxHash,
			DestAddress:         claim.DestAddress,
			ExpectedAmountMinor: amountMinor,
		}); err != nil {
			return nil, false, err
		}
		if err := tx.Commit(); err != nil {
			return nil, false, domain.NewInternalError("committing top-up claim", err)
		}
		log.Info().Str("fcid", code).Int64("amount_minor", amountMinor).Str("method", string(method)).Msg("crypto top-up claim recorded, pending confirmation")
		return &TopUpResult{OldBalanceMinor: f.CurrentBalanceMinor, NewBalanceMinor: f.CurrentBalanceMinor}, false, nil
	}

	newBalance := f.CurrentBalanceMinor + amountMinor
	newInitial := f.InitialAmountMinor + amountMinor

	ok, err := e.repo.UpdateBalance(ctx, tx, code, domain.FCIDActive, newInitial, newBalance, domain.FCIDActive)
	if err != nil {
		return nil, false, err
	}
	if !ok {
		return nil, true, nil
	}

	if _, err := e.repo.AppendCounterTransaction(ctx, tx, &domain.CounterTransaction{
		FCIDCode:       code,
		AmountMinor:    amountMinor,
		PaymentMethod:  method,
		PaymentDetails: detailsJSON,
		Status:         "completed",
	}); err != nil {
		return nil, false, err
	}

	if err := tx.Commit(); err != nil {
		return nil, false, domain.NewInternalError("committing top-up", err)
	}

	log.Info().Str("fcid", code).Int64("amount_minor", amountMinor).Msg("fcid topped up")
	return &TopUpResult{OldBalanceMinor: f.CurrentBalanceMinor, NewBalanceMinor: newBalance}, false, nil
}

// ConfirmCryptoTopUp credits amountMinor to code's balance once the 5-minute
// poller (internal/crypto.Poller) has verified the on-chain transfer backing
// a pending crypto mint or top-up claim. It is passed to crypto.NewPoller as
// the credit callback and must never be called before VerifyTransfer
// succeeds.
func (e *Engine) ConfirmCryptoTopUp(ctx context.Context, code string, amountMinor int64, method domain.PaymentMethod) error {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		retry, err := e.tryConfirmCryptoTopUp(ctx, code, amountMinor, method)
		if err != nil {
			return err
		}
		if !retry {
			return nil
		}
	}
	return domain.NewInternalError("confirming crypto top-up lost the race to a concurrent writer after retrying", nil)
}

func (e *Engine) tryConfirmCryptoTopUp(ctx context.Context, code string, amountMinor int64, method domain.PaymentMethod) (bool, error) {
	tx, err := e.repo.BeginTx(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	f, err := e.repo.GetTx(ctx, tx, code)
	if err != nil {
		return false, err
	}
	if f.Status != domain.FCIDActive {
		return false, domain.NewConflictError(fmt.Sprintf("fcid %s is not active (status=%s)", code, f.Status))
	}

	newBalance := f.CurrentBalanceMinor + amountMinor
	newInitial := f.InitialAmountMinor + amountMinor

	ok, err := e.repo.UpdateBalance(ctx, tx, code, domain.FCIDActive, newInitial, newBalance, domain.FCIDActive)
	if err != nil {
		return false, err
	}
	if !ok {
		return true, nil
	}

	if _, err := e.repo.MarkCounterTransactionCompleted(ctx, tx, code); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, domain.NewInternalError("committing crypto top-up confirmation", err)
	}

	log.Info().Str("fcid", code).Int64("amount_minor", amountMinor).Str("method", string(method)).Msg("crypto top-up confirmed and credited")
	return false, nil
}

// Refund zeros code's balance and marks it terminal. Fails if already
// refunded or the balance is already zero.
func (e *Engine) Refund(ctx context.Context, code string) (int64, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		amount, retry, err := e.tryRefund(ctx, code)
		if err != nil {
			return 0, err
		}
		if !retry {
			return amount, nil
		}
	}
	return 0, domain.NewInternalError("refund lost the race to a concurrent writer after retrying", nil)
}

func (e *Engine) tryRefund(ctx context.Context, code string) (int64, bool, error) {
	tx, err := e.repo.BeginTx(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	f, err := e.repo.GetTx(ctx, tx, code)
	if err != nil {
		return 0, false, err
	}
	if f.Status == domain.FCIDRefunded {
		return 0, false, domain.NewConflictError(fmt.Sprintf("fcid %s is already refunded", code))
	}
	if f.CurrentBalanceMinor == 0 {
		return 0, false, domain.NewConflictError(fmt.Sprintf("fcid %s has a zero balance, nothing to refund", code))
	}

	refundAmount := f.CurrentBalanceMinor
	ok, err := e.repo.UpdateBalance(ctx, tx, code, f.Status, f.InitialAmountMinor, 0, domain.FCIDRefunded)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, true, nil
	}

	if err := tx.Commit(); err != nil {
		return 0, false, domain.NewInternalError("committing refund", err)
	}

	log.Info().Str("fcid", code).Int64("refund_amount_minor", refundAmount).Msg("fcid refunded")
	return refundAmount, false, nil
}

// Expire zeros code's balance and marks it expired, the nightly
// balance-reset path for operators without an e-money license. Unlike
// Refund it is driven by the scheduler rather than the counter, so a
// token that is not active or already empty is reported as a Conflict the
// sweep can log and skip instead of a hard failure.
func (e *Engine) Expire(ctx context.Context, code string) (int64, error) {
	for attempt := 0; attempt < maxCASRetries; attempt++ {
		amount, retry, err := e.tryExpire(ctx, code)
		if err != nil {
			return 0, err
		}
		if !retry {
			return amount, nil
		}
	}
	return 0, domain.NewInternalError("expire lost the race to a concurrent writer after retrying", nil)
}

func (e *Engine) tryExpire(ctx context.Context, code string) (int64, bool, error) {
	tx, err := e.repo.BeginTx(ctx)
	if err != nil {
		return 0, false, err
	}
	defer tx.Rollback()

	f, err := e.repo.GetTx(ctx, tx, code)
	if err != nil {
		return 0, false, err
	}
	if f.Status != domain.FCIDActive {
		return 0, false, domain.NewConflictError(fmt.Sprintf("fcid %s is not active (status=%s)", code, f.Status))
	}
	if f.CurrentBalanceMinor == 0 {
		return 0, false, domain.NewConflictError(fmt.Sprintf("fcid %s has a zero balance, nothing to expire", code))
	}

	expiredAmount := f.CurrentBalanceMinor
	ok, err := e.repo.UpdateBalance(ctx, tx, code, domain.FCIDActive, f.InitialAmountMinor, 0, domain.FCIDExpired)
	if err != nil {
		return 0, false, err
	}
	if !ok {
		return 0, true, nil
	}

	if err := tx.Commit(); err != nil {
		return 0, false, domain.NewInternalError("committing expire", err)
	}

	log.Info().Str("fcid", code).Int64("expired_amount_minor", expiredAmount).Msg("fcid expired by balance reset")
	return expiredAmount, false, nil
}

// formatBaht renders satang as a two-decimal baht string for error messages.
func formatBaht(minor int64) string {
	return decimal.New(minor, -2).StringFixed(2)
}

// MarshalDetails is a small convenience for callers building the opaque
// payment_details JSON blob from a typed payload (card last-four, crypto tx
// hash, and similar variant-specific payloads).
func MarshalDetails(v any) string {
	if v == nil {
		return "{}"
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "{}"
	}
	return string(b)
}
