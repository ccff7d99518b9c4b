package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// ProfileRepo persists BankingProfile rows and implements
// internal/profile.Repository against the banking_profiles table.
type ProfileRepo struct {
	db *sql.DB
}

func NewProfileRepo(db *sql.DB) *ProfileRepo {
	return &ProfileRepo{db: db}
}

const profileColumns = `
	id, scope, group_id, site_id, store_id, provider, is_active,
	COALESCE(scb_app_key,''), COALESCE(scb_app_secret,''), COALESCE(scb_callback_url,''),
	COALESCE(kbank_customer_id,''), COALESCE(kbank_consumer_secret,''),
	COALESCE(omise_secret_key,''), COALESCE(stripe_secret_key,''),
	created_at, updated_at
`

func scanProfile(row rowScanner) (*domain.BankingProfile, error) {
	var p domain.BankingProfile
	var createdAt, updatedAt string
	var isActive int
	err := row.Scan(
		&p.ID, &p.Scope, &p.GroupID, &p.SiteID, &p.StoreID, &p.Provider, &isActive,
		&p.SCBAppKey, &p.SCBAppSecret, &p.SCBCallbackURL,
		&p.KBankCustomerID, &p.KBankConsumerSecret,
		&p.OmiseSecretKey, &p.StripeSecretKey,
		&createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.NewInternalError("scanning banking profile", err)
	}
	p.IsActive = isActive != 0
	p.CreatedAt = parseSQLiteTime(createdAt)
	p.UpdatedAt = parseSQLiteTime(updatedAt)
	return &p, nil
}

// ActiveProfileForStore returns the active store-scoped profile for a
// merchant, or (nil, nil) if none exists.
func (r *ProfileRepo) ActiveProfileForStore(ctx context.Context, storeID int64) (*domain.BankingProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM banking_profiles
		WHERE scope = 'store' AND store_id = ? AND is_active = 1
		ORDER BY id DESC LIMIT 1
	`, storeID)
	return scanProfile(row)
}

// ActiveProfileForSite returns the active site-scoped profile, or (nil, nil).
func (r *ProfileRepo) ActiveProfileForSite(ctx context.Context, siteID int) (*domain.BankingProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM banking_profiles
		WHERE scope = 'site' AND site_id = ? AND store_id IS NULL AND is_active = 1
		ORDER BY id DESC LIMIT 1
	`, siteID)
	return scanProfile(row)
}

// ActiveProfileForGroup returns the active group-scoped profile, or (nil, nil).
func (r *ProfileRepo) ActiveProfileForGroup(ctx context.Context, groupID int) (*domain.BankingProfile, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+profileColumns+`
		FROM banking_profiles
		WHERE scope = 'group' AND group_id = ? AND site_id IS NULL AND store_id IS NULL AND is_active = 1
		ORDER BY id DESC LIMIT 1
	`, groupID)
	return scanProfile(row)
}

// Create inserts a new banking profile row.
func (r *ProfileRepo) Create(ctx context.Context, p *domain.BankingProfile) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO banking_profiles (
			scope, group_id, site_id, store_id, provider, is_active,
			scb_app_key, scb_app_secret, scb_callback_url,
			kbank_customer_id, kbank_consumer_secret,
			omise_secret_key, stripe_secret_key
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, p.Scope, p.GroupID, p.SiteID, p.StoreID, p.Provider, boolToInt(p.IsActive),
		p.SCBAppKey, p.SCBAppSecret, p.SCBCallbackURL,
		p.KBankCustomerID, p.KBankConsumerSecret,
		p.OmiseSecretKey, p.StripeSecretKey)
	if err != nil {
		return 0, domain.NewInternalError("inserting banking profile", err)
	}
	return res.LastInsertId()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
