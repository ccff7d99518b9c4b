package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// BackTxRepo persists canonicalized rail callbacks.
type BackTxRepo struct {
	db *sql.DB
}

func NewBackTxRepo(db *sql.DB) *BackTxRepo {
	return &BackTxRepo{db: db}
}

const backTxColumns = `
	id, ref1, ref2, ref3, amount_minor, paid_at, slip_reference, bank_account,
	merchant_id, status, raw_payload, created_at
`

func scanBackTx(row rowScanner) (*domain.BackTransaction, error) {
	var b domain.BackTransaction
	var paidAt, createdAt, status string
	err := row.Scan(&b.ID, &b.Ref1, &b.Ref2, &b.Ref3, &b.AmountMinor, &paidAt, &b.SlipReference, &b.BankAccount,
		&b.MerchantID, &status, &b.RawPayload, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewInternalError("scanning back transaction", err)
	}
	b.Status = domain.BackTransactionStatus(status)
	b.PaidAt = parseSQLiteTime(paidAt)
	b.CreatedAt = parseSQLiteTime(createdAt)
	return &b, nil
}

// ByUniqueDeliveryKey finds a prior row with the same slip reference (when
// present) — the idempotency key the requires two deliveries of the same
// event to collapse onto.
func (r *BackTxRepo) ByUniqueDeliveryKey(ctx context.Context, slipReference string) (*domain.BackTransaction, error) {
	if slipReference == "" {
		return nil, nil
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+backTxColumns+` FROM back_transactions WHERE slip_reference = ?`, slipReference)
	return scanBackTx(row)
}

// Insert durably records a new back transaction. The caller has already
// checked ByUniqueDeliveryKey for duplicates; the slip_reference unique
// index is a second line of defense against a race between the check and
// the insert.
func (r *BackTxRepo) Insert(ctx context.Context, b *domain.BackTransaction) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO back_transactions (ref1, ref2, ref3, amount_minor, paid_at, slip_reference, bank_account, merchant_id, status, raw_payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.Ref1, b.Ref2, b.Ref3, b.AmountMinor, b.PaidAt.UTC().Format(time.RFC3339), b.SlipReference, b.BankAccount, b.MerchantID, string(b.Status), b.RawPayload)
	if err != nil {
		return 0, domain.NewInternalError("inserting back transaction", err)
	}
	return res.LastInsertId()
}

// ByID fetches a single back transaction, used to return the prior row's id
// on a duplicate delivery.
func (r *BackTxRepo) ByID(ctx context.Context, id int64) (*domain.BackTransaction, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+backTxColumns+` FROM back_transactions WHERE id = ?`, id)
	bt, err := scanBackTx(row)
	if err != nil {
		return nil, err
	}
	if bt == nil {
		return nil, domain.NewNotFoundError("back transaction not found")
	}
	return bt, nil
}

// Query lists back transactions ordered by paid_at desc, optionally scoped
// to a merchant and/or time window, capped at limit (callers enforce the
// <=2000 page-size ceiling).
func (r *BackTxRepo) Query(ctx context.Context, merchantID *int64, start, end *time.Time, limit int) ([]domain.BackTransaction, error) {
	query := `SELECT ` + backTxColumns + ` FROM back_transactions WHERE 1=1`
	var args []any
	if merchantID != nil {
		query += ` AND merchant_id = ?`
		args = append(args, *merchantID)
	}
	if start != nil {
		query += ` AND paid_at >= ?`
		args = append(args, start.UTC().Format(time.RFC3339))
	}
	if end != nil {
		query += ` AND paid_at <= ?`
		args = append(args, end.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY paid_at DESC LIMIT ?`
	args = append(args, limit)

	return r.queryRows(ctx, query, args...)
}

// RecentPaid returns rows for merchantID paid after since, ordered
// ascending so a POS terminal can advance its polling cursor by the last
// row's paid_at.
func (r *BackTxRepo) RecentPaid(ctx context.Context, merchantID int64, since *time.Time) ([]domain.BackTransaction, error) {
	query := `SELECT ` + backTxColumns + ` FROM back_transactions WHERE merchant_id = ?`
	args := []any{merchantID}
	if since != nil {
		query += ` AND paid_at > ?`
		args = append(args, since.UTC().Format(time.RFC3339))
	}
	query += ` ORDER BY paid_at ASC`
	return r.queryRows(ctx, query, args...)
}

func (r *BackTxRepo) queryRows(ctx context.Context, query string, args ...any) ([]domain.BackTransaction, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewInternalError("querying back transactions", err)
	}
	defer rows.Close()

	var out []domain.BackTransaction
	for rows.Next() {
		b, err := scanBackTx(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// SumByMerchantAndDay aggregates confirmed amounts per merchant for the
// window [start, end], both ends inclusive, the input to settlement roll-up.
type MerchantDaySum struct {
	MerchantID  int64
	AmountMinor int64
}

func (r *BackTxRepo) SumByMerchantAndDay(ctx context.Context, start, end time.Time) ([]MerchantDaySum, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT merchant_id, SUM(amount_minor)
		FROM back_transactions
		WHERE merchant_id IS NOT NULL AND paid_at >= ? AND paid_at <= ?
		GROUP BY merchant_id
		HAVING SUM(amount_minor) > 0
	`, start.UTC().Format(time.RFC3339), end.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, domain.NewInternalError("aggregating back transactions", err)
	}
	defer rows.Close()

	var out []MerchantDaySum
	for rows.Next() {
		var s MerchantDaySum
		if err := rows.Scan(&s.MerchantID, &s.AmountMinor); err != nil {
			return nil, domain.NewInternalError("scanning merchant day sum", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
