package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// sqliteIsUniqueConstraintError reports whether err is a SQLite unique
// constraint violation (modernc.org/sqlite surfaces these as plain error
// strings rather than a typed sentinel).
func sqliteIsUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// CryptoTopUpRepo persists pending on-chain top-up claims and their
// eventual confirmed/failed outcome.
type CryptoTopUpRepo struct {
	db *sql.DB
}

func NewCryptoTopUpRepo(db *sql.DB) *CryptoTopUpRepo {
	return &CryptoTopUpRepo{db: db}
}

const cryptoTopUpColumns = `
	id, fcid_code, payment_method, tx_hash, dest_address, expected_amount_minor,
	status, attempts, last_error, confirmed_at, created_at
`

func scanCryptoTopUp(row rowScanner) (*domain.CryptoTopUp, error) {
	var c domain.CryptoTopUp
	var method, status, createdAt string
	var lastError sql.NullString
	var confirmedAt sql.NullString
	err := row.Scan(&c.ID, &c.FCIDCode, &method, &c.TxHash, &c.DestAddress, &c.ExpectedAmountMinor,
		&status, &c.Attempts, &lastError, &confirmedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("crypto top-up not found")
	}
	if err != nil {
		return nil, domain.NewInternalError("scanning crypto top-up", err)
	}
	c.PaymentMethod = domain.PaymentMethod(method)
	c.Status = domain.CryptoTopUpStatus(status)
	c.LastError = lastError.String
	c.CreatedAt = parseSQLiteTime(createdAt)
	if confirmedAt.Valid && confirmedAt.String != "" {
		t := parseSQLiteTime(confirmedAt.String)
		c.ConfirmedAt = &t
	}
	return &c, nil
}

// Create records a customer's claim of an on-chain transfer, pending
// verification.
func (r *CryptoTopUpRepo) Create(ctx context.Context, c *domain.CryptoTopUp) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO crypto_topups (fcid_code, payment_method, tx_hash, dest_address, expected_amount_minor, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.FCIDCode, string(c.PaymentMethod), c.TxHash, c.DestAddress, c.ExpectedAmountMinor, string(domain.CryptoTopUpPending))
	if err != nil {
		if sqliteIsUniqueConstraintError(err) {
			return 0, domain.NewConflictError("this transaction hash has already been submitted")
		}
		return 0, domain.NewInternalError("inserting crypto top-up", err)
	}
	return res.LastInsertId()
}

// CreateTx is Create's in-transaction form, used by the escrow engine so a
// crypto-tendered mint/top-up's CounterTransaction row and its pending claim
// commit or roll back together.
func (r *CryptoTopUpRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *domain.CryptoTopUp) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO crypto_topups (fcid_code, payment_method, tx_hash, dest_address, expected_amount_minor, status)
		VALUES (?, ?, ?, ?, ?, ?)
	`, c.FCIDCode, string(c.PaymentMethod), c.TxHash, c.DestAddress, c.ExpectedAmountMinor, string(domain.CryptoTopUpPending))
	if err != nil {
		if sqliteIsUniqueConstraintError(err) {
			return 0, domain.NewConflictError("this transaction hash has already been submitted")
		}
		return 0, domain.NewInternalError("inserting crypto top-up", err)
	}
	return res.LastInsertId()
}

// Pending lists every top-up claim still awaiting confirmation, the work
// list the 5-minute scheduler sweep drains.
func (r *CryptoTopUpRepo) Pending(ctx context.Context) ([]domain.CryptoTopUp, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+cryptoTopUpColumns+` FROM crypto_topups WHERE status = ? ORDER BY created_at ASC`, string(domain.CryptoTopUpPending))
	if err != nil {
		return nil, domain.NewInternalError("querying pending crypto top-ups", err)
	}
	defer rows.Close()

	var out []domain.CryptoTopUp
	for rows.Next() {
		c, err := scanCryptoTopUp(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// MarkConfirmed transitions a pending claim to confirmed. ok=false means it
// was no longer pending (already resolved by a concurrent sweep).
func (r *CryptoTopUpRepo) MarkConfirmed(ctx context.Context, id int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE crypto_topups SET status = ?, confirmed_at = datetime('now') WHERE id = ? AND status = ?
	`, string(domain.CryptoTopUpConfirmed), id, string(domain.CryptoTopUpPending))
	if err != nil {
		return false, domain.NewInternalError("marking crypto top-up confirmed", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.NewInternalError("reading rows affected", err)
	}
	return n == 1, nil
}

// MarkAttempt records a failed verification attempt with its error, or a
// terminal failure once attempts is exhausted by the caller's policy.
func (r *CryptoTopUpRepo) MarkAttempt(ctx context.Context, id int64, lastError string, terminal bool) error {
	status := string(domain.CryptoTopUpPending)
	if terminal {
		status = string(domain.CryptoTopUpFailed)
	}
	_, err := r.db.ExecContext(ctx, `
		UPDATE crypto_topups SET attempts = attempts + 1, last_error = ?, status = ? WHERE id = ?
	`, lastError, status, id)
	if err != nil {
		return domain.NewInternalError("recording crypto top-up attempt", err)
	}
	return nil
}
