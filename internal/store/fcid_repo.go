package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// FCIDRepo persists stored-value tokens and their append-only ledgers
// (counter transactions, store transactions, payment transactions). Every
// balance mutation goes through UpdateBalance inside the caller's
// transaction so the row update and the ledger append commit atomically.
type FCIDRepo struct {
	db *sql.DB
}

func NewFCIDRepo(db *sql.DB) *FCIDRepo {
	return &FCIDRepo{db: db}
}

// BeginTx starts a transaction for a single escrow operation. sqlite
// serializes writers regardless of isolation level requested here; the
// busy_timeout pragma set at Open time makes a concurrent writer block and
// retry rather than fail immediately.
func (r *FCIDRepo) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.NewInternalError("beginning transaction", err)
	}
	return tx, nil
}

// Exists reports whether code is already in use, for the mint code
// generator's collision check.
func (r *FCIDRepo) Exists(ctx context.Context, code string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM fcids WHERE code = ?`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, domain.NewInternalError("checking fcid code", err)
	}
	return true, nil
}

// Create inserts a freshly minted FCID row.
func (r *FCIDRepo) Create(ctx context.Context, tx *sql.Tx, f *domain.FCID) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO fcids (code, initial_amount_minor, current_balance_minor, payment_method, status, customer_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, f.Code, f.InitialAmountMinor, f.CurrentBalanceMinor, string(f.PaymentMethod), string(f.Status), f.CustomerID)
	if err != nil {
		return domain.NewInternalError("inserting fcid", err)
	}
	return nil
}

func scanFCID(row rowScanner) (*domain.FCID, error) {
	var f domain.FCID
	var paymentMethod, status string
	var createdAt, updatedAt string
	err := row.Scan(&f.Code, &f.InitialAmountMinor, &f.CurrentBalanceMinor, &paymentMethod, &status, &f.CustomerID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("food court id not found")
	}
	if err != nil {
		return nil, domain.NewInternalError("scanning fcid", err)
	}
	f.PaymentMethod = domain.PaymentMethod(paymentMethod)
	f.Status = domain.FCIDStatus(status)
	f.CreatedAt = parseSQLiteTime(createdAt)
	f.UpdatedAt = parseSQLiteTime(updatedAt)
	return &f, nil
}

const fcidColumns = `code, initial_amount_minor, current_balance_minor, payment_method, status, customer_id, created_at, updated_at`

// Get reads the current FCID row outside any transaction (plain read path).
func (r *FCIDRepo) Get(ctx context.Context, code string) (*domain.FCID, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+fcidColumns+` FROM fcids WHERE code = ?`, code)
	return scanFCID(row)
}

// GetTx reads the FCID row within tx, the read half of every mutating
// operation's read-modify-write.
func (r *FCIDRepo) GetTx(ctx context.Context, tx *sql.Tx, code string) (*domain.FCID, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+fcidColumns+` FROM fcids WHERE code = ?`, code)
	return scanFCID(row)
}

// UpdateBalance applies a new balance/status/initial-amount to the FCID row,
// conditioned on the row still being in expectedStatus — the compare part
// of the compare-and-set contract the allows as an alternative to a row
// lock. ok=false means another writer changed the row first (or it isn't
// in expectedStatus any more); callers re-read and decide whether to retry
// or fail.
func (r *FCIDRepo) UpdateBalance(ctx context.Context, tx *sql.Tx, code string, expectedStatus domain.FCIDStatus, newInitial, newBalance int64, newStatus domain.FCIDStatus) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE fcids
		SET initial_amount_minor = ?, current_balance_minor = ?, status = ?, updated_at = datetime('now')
		WHERE code = ? AND status = ?
	`, newInitial, newBalance, string(newStatus), code, string(expectedStatus))
	if err != nil {
		return false, domain.NewInternalError("updating fcid balance", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.NewInternalError("reading rows affected", err)
	}
	return n == 1, nil
}

// AppendCounterTransaction records a counter-side mint or top-up.
func (r *FCIDRepo) AppendCounterTransaction(ctx context.Context, tx *sql.Tx, ct *domain.CounterTransaction) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO counter_transactions (fcid_code, counter_id, counter_user_id, amount_minor, payment_method, payment_details, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, ct.FCIDCode, ct.CounterID, ct.CounterUserID, ct.AmountMinor, string(ct.PaymentMethod), ct.PaymentDetails, ct.Status)
	if err != nil {
		return 0, domain.NewInternalError("inserting counter transaction", err)
	}
	return res.LastInsertId()
}

// MarkCounterTransactionCompleted flips the most recent pending counter
// transaction for code to completed, once a crypto top-up's on-chain
// transfer is confirmed by the poller. ok=false means there was no pending
// row left to complete (already confirmed by a concurrent sweep).
func (r *FCIDRepo) MarkCounterTransactionCompleted(ctx context.Context, tx *sql.Tx, fcidCode string) (bool, error) {
	res, err := tx.ExecContext(ctx, `
		UPDATE counter_transactions SET status = 'completed'
		WHERE id = (
			SELECT id FROM counter_transactions
			WHERE fcid_code = ? AND status = 'pending'
			ORDER BY created_at DESC LIMIT 1
		)
	`, fcidCode)
	if err != nil {
		return false, domain.NewInternalError("marking counter transaction completed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.NewInternalError("reading rows affected", err)
	}
	return n == 1, nil
}

// AppendStoreTransaction records a merchant-side debit.
func (r *FCIDRepo) AppendStoreTransaction(ctx context.Context, tx *sql.Tx, st *domain.StoreTransaction) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO store_transactions (fcid_code, merchant_id, amount_minor, status)
		VALUES (?, ?, ?, ?)
	`, st.FCIDCode, st.MerchantID, st.AmountMinor, st.Status)
	if err != nil {
		return 0, domain.NewInternalError("inserting store transaction", err)
	}
	return res.LastInsertId()
}

// InsertPaymentTransaction records the customer-facing receipt for a debit
// or a gateway-confirmed webhook payment.
func (r *FCIDRepo) InsertPaymentTransaction(ctx context.Context, tx *sql.Tx, pt *domain.PaymentTransaction) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO payment_transactions (
			customer_id, merchant_id, amount_minor, payment_method, status,
			receipt_number, fcid_code, ref1, ref2, ref3, bank_account
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pt.CustomerID, pt.MerchantID, pt.AmountMinor, string(pt.PaymentMethod), pt.Status,
		pt.ReceiptNumber, pt.FCIDCode, pt.Ref1, pt.Ref2, pt.Ref3, pt.BankAccount)
	if err != nil {
		return 0, domain.NewInternalError("inserting payment transaction", err)
	}
	return res.LastInsertId()
}

// NextReceiptNumber returns an unused "RCP-YYYYMMDD-NNNNN" receipt number
// for day, using a per-day count as the sequence. Called within tx so the
// count and the eventual insert are consistent under the single-writer
// sqlite model.
func (r *FCIDRepo) NextReceiptNumber(ctx context.Context, tx *sql.Tx, day time.Time) (string, error) {
	prefix := "RCP-" + day.Format("20060102") + "-"
	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_transactions WHERE receipt_number LIKE ?`, prefix+"%").Scan(&count); err != nil {
		return "", domain.NewInternalError("counting receipt numbers", err)
	}
	return formatSequence(prefix, count+1), nil
}

// NextReceiptNumberForDay is NextReceiptNumber's standalone form, for
// callers (webhook ingestion) that are not already inside an escrow
// transaction.
func (r *FCIDRepo) NextReceiptNumberForDay(ctx context.Context, day time.Time) (string, error) {
	prefix := "RCP-" + day.Format("20060102") + "-"
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM payment_transactions WHERE receipt_number LIKE ?`, prefix+"%").Scan(&count); err != nil {
		return "", domain.NewInternalError("counting receipt numbers", err)
	}
	return formatSequence(prefix, count+1), nil
}

// InsertPaymentTransactionAutoCommit is InsertPaymentTransaction's
// standalone form, for callers that are not already inside an escrow
// transaction (webhook ingestion records a receipt outside of any FCID
// debit).
func (r *FCIDRepo) InsertPaymentTransactionAutoCommit(ctx context.Context, pt *domain.PaymentTransaction) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO payment_transactions (
			customer_id, merchant_id, amount_minor, payment_method, status,
			receipt_number, fcid_code, ref1, ref2, ref3, bank_account
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, pt.CustomerID, pt.MerchantID, pt.AmountMinor, string(pt.PaymentMethod), pt.Status,
		pt.ReceiptNumber, pt.FCIDCode, pt.Ref1, pt.Ref2, pt.Ref3, pt.BankAccount)
	if err != nil {
		return 0, domain.NewInternalError("inserting payment transaction", err)
	}
	return res.LastInsertId()
}

func formatSequence(prefix string, n int) string {
	digits := "00000"
	s := itoa(n)
	if len(s) >= len(digits) {
		return prefix + s
	}
	return prefix + digits[:len(digits)-len(s)] + s
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
