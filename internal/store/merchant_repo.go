package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// MerchantRepo persists merchants, their menus, and quick-amount presets.
type MerchantRepo struct {
	db *sql.DB
}

func NewMerchantRepo(db *sql.DB) *MerchantRepo {
	return &MerchantRepo{db: db}
}

func (r *MerchantRepo) Create(ctx context.Context, m *domain.Merchant) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO merchants (name, tax_id, biller_id, group_id, site_id, menu_id, token, city)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, m.Name, m.TaxID, m.BillerID, m.GroupID, m.SiteID, m.MenuID, m.Token, m.City)
	if err != nil {
		return 0, domain.NewInternalError("inserting merchant", err)
	}
	return res.LastInsertId()
}

func (r *MerchantRepo) ByID(ctx context.Context, id int64) (*domain.Merchant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(tax_id,''), biller_id, group_id, site_id, menu_id, token, city, created_at, updated_at
		FROM merchants WHERE id = ?
	`, id)
	return scanMerchant(row)
}

func (r *MerchantRepo) ByToken(ctx context.Context, token string) (*domain.Merchant, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, name, COALESCE(tax_id,''), biller_id, group_id, site_id, menu_id, token, city, created_at, updated_at
		FROM merchants WHERE token = ?
	`, token)
	return scanMerchant(row)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMerchant(row rowScanner) (*domain.Merchant, error) {
	var m domain.Merchant
	var createdAt, updatedAt string
	err := row.Scan(&m.ID, &m.Name, &m.TaxID, &m.BillerID, &m.GroupID, &m.SiteID, &m.MenuID, &m.Token, &m.City, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NewNotFoundError("merchant not found")
	}
	if err != nil {
		return nil, domain.NewInternalError("scanning merchant", err)
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339, normalizeSQLiteTime(createdAt))
	m.UpdatedAt, _ = time.Parse(time.RFC3339, normalizeSQLiteTime(updatedAt))
	return &m, nil
}

// normalizeSQLiteTime converts sqlite's "2026-07-30 12:00:00" default
// datetime() output into an RFC3339 string time.Parse accepts.
func normalizeSQLiteTime(s string) string {
	if len(s) == 19 && s[10] == ' ' {
		return s[:10] + "T" + s[11:] + "Z"
	}
	return s
}

func (r *MerchantRepo) AddMenu(ctx context.Context, merchantID int64, name string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO menus (merchant_id, name) VALUES (?, ?)`, merchantID, name)
	if err != nil {
		return 0, domain.NewInternalError("inserting menu", err)
	}
	return res.LastInsertId()
}

func (r *MerchantRepo) QuickAmounts(ctx context.Context, merchantID int64) ([]domain.StoreQuickAmount, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, merchant_id, label, amount_minor FROM store_quick_amounts WHERE merchant_id = ? ORDER BY amount_minor
	`, merchantID)
	if err != nil {
		return nil, domain.NewInternalError("querying quick amounts", err)
	}
	defer rows.Close()

	var out []domain.StoreQuickAmount
	for rows.Next() {
		var q domain.StoreQuickAmount
		if err := rows.Scan(&q.ID, &q.MerchantID, &q.Label, &q.AmountMinor); err != nil {
			return nil, domain.NewInternalError("scanning quick amount", err)
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (r *MerchantRepo) AddQuickAmount(ctx context.Context, merchantID int64, label string, amountMinor int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO store_quick_amounts (merchant_id, label, amount_minor) VALUES (?, ?, ?)
	`, merchantID, label, amountMinor)
	if err != nil {
		return 0, domain.NewInternalError("inserting quick amount", err)
	}
	return res.LastInsertId()
}
