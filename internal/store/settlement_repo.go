package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// SettlementRepo persists per-merchant daily settlement rows.
type SettlementRepo struct {
	db *sql.DB
}

func NewSettlementRepo(db *sql.DB) *SettlementRepo {
	return &SettlementRepo{db: db}
}

const settlementColumns = `
	id, merchant_id, settlement_date, amount_minor, status,
	transferred_at, notified_at, receipt_printed_at, created_at
`

func scanSettlement(row rowScanner) (*domain.Settlement, error) {
	var s domain.Settlement
	var settlementDate, status, createdAt string
	var transferredAt, notifiedAt, receiptPrintedAt sql.NullString
	err := row.Scan(&s.ID, &s.MerchantID, &settlementDate, &s.AmountMinor, &status,
		&transferredAt, &notifiedAt, &receiptPrintedAt, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewInternalError("scanning settlement", err)
	}
	s.Status = domain.SettlementStatus(status)
	s.SettlementDate = parseSQLiteDate(settlementDate)
	s.CreatedAt = parseSQLiteTime(createdAt)
	if transferredAt.Valid {
		t := parseSQLiteTime(transferredAt.String)
		s.TransferredAt = &t
	}
	if notifiedAt.Valid {
		t := parseSQLiteTime(notifiedAt.String)
		s.NotifiedAt = &t
	}
	if receiptPrintedAt.Valid {
		t := parseSQLiteTime(receiptPrintedAt.String)
		s.ReceiptPrintedAt = &t
	}
	return &s, nil
}

func parseSQLiteDate(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}
	}
	return t
}

// ByMerchantAndDate returns the settlement row for (merchantID, date) if one
// already exists, enforcing "exactly one settlement row per (merchant, day)
// once created".
func (r *SettlementRepo) ByMerchantAndDate(ctx context.Context, merchantID int64, date time.Time) (*domain.Settlement, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+settlementColumns+` FROM settlements WHERE merchant_id = ? AND settlement_date = ?
	`, merchantID, date.Format("2006-01-02"))
	return scanSettlement(row)
}

// Create inserts a new pending settlement row.
func (r *SettlementRepo) Create(ctx context.Context, merchantID int64, date time.Time, amountMinor int64) (*domain.Settlement, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO settlements (merchant_id, settlement_date, amount_minor, status)
		VALUES (?, ?, ?, ?)
	`, merchantID, date.Format("2006-01-02"), amountMinor, string(domain.SettlementPending))
	if err != nil {
		return nil, domain.NewInternalError("inserting settlement", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, domain.NewInternalError("reading settlement id", err)
	}
	return r.ByID(ctx, id)
}

// ByID fetches a single settlement row.
func (r *SettlementRepo) ByID(ctx context.Context, id int64) (*domain.Settlement, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+settlementColumns+` FROM settlements WHERE id = ?`, id)
	s, err := scanSettlement(row)
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, domain.NewNotFoundError("settlement not found")
	}
	return s, nil
}

// UpdateStatus conditionally transitions a settlement row, stamping the
// matching timestamp column. ok=false means the row was not in
// expectedStatus (already advanced, or never existed).
func (r *SettlementRepo) UpdateStatus(ctx context.Context, id int64, expectedStatus, newStatus domain.SettlementStatus) (bool, error) {
	var column string
	switch newStatus {
	case domain.SettlementTransferred:
		column = "transferred_at"
	case domain.SettlementNotified:
		column = "notified_at"
	default:
		return false, domain.NewInternalError("unsupported settlement status transition target", nil)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE settlements SET status = ?, `+column+` = datetime('now')
		WHERE id = ? AND status = ?
	`, string(newStatus), id, string(expectedStatus))
	if err != nil {
		return false, domain.NewInternalError("updating settlement status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, domain.NewInternalError("reading rows affected", err)
	}
	return n == 1, nil
}

// ForReceipt lists the most recent settlements for merchantID, optionally
// restricted to notified rows, capped at 100
func (r *SettlementRepo) ForReceipt(ctx context.Context, merchantID int64, notifiedOnly bool) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE merchant_id = ?`
	args := []any{merchantID}
	if notifiedOnly {
		query += ` AND status = ?`
		args = append(args, string(domain.SettlementNotified))
	}
	query += ` ORDER BY settlement_date DESC LIMIT 100`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewInternalError("querying settlements", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// List returns settlement rows filtered by calendar day and/or status,
// newest day first.
func (r *SettlementRepo) List(ctx context.Context, date *time.Time, status *domain.SettlementStatus) ([]domain.Settlement, error) {
	query := `SELECT ` + settlementColumns + ` FROM settlements WHERE 1=1`
	var args []any
	if date != nil {
		query += ` AND settlement_date = ?`
		args = append(args, date.Format("2006-01-02"))
	}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY settlement_date DESC, merchant_id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, domain.NewInternalError("listing settlements", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// Overdue returns pending settlements whose settlement_date is more than
// one calendar day before now — the custody-constraint compliance report.
func (r *SettlementRepo) Overdue(ctx context.Context, now time.Time) ([]domain.Settlement, error) {
	cutoff := now.Add(-24 * time.Hour).Format("2006-01-02")
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+settlementColumns+` FROM settlements
		WHERE status = ? AND settlement_date < ?
		ORDER BY settlement_date ASC
	`, string(domain.SettlementPending), cutoff)
	if err != nil {
		return nil, domain.NewInternalError("querying overdue settlements", err)
	}
	defer rows.Close()

	var out []domain.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
