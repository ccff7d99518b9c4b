// Package profile resolves which BankingProfile governs a merchant: the
// store-scoped profile if one exists, else the site-scoped profile, else
// the group-scoped profile.
package profile

import (
	"context"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// Repository is the read surface the resolver needs. internal/store
// implements it against the merchant/banking_profiles tables.
type Repository interface {
	ActiveProfileForStore(ctx context.Context, storeID int64) (*domain.BankingProfile, error)
	ActiveProfileForSite(ctx context.Context, siteID int) (*domain.BankingProfile, error)
	ActiveProfileForGroup(ctx context.Context, groupID int) (*domain.BankingProfile, error)
}

// Resolver is pure with respect to its own state — it holds no cache. If a
// caller introduces one, it must invalidate on any profile write (profiles
// change rarely enough that this implementation doesn't bother).
type Resolver struct {
	repo Repository
}

func NewResolver(repo Repository) *Resolver {
	return &Resolver{repo: repo}
}

// Resolve finds the BankingProfile governing merchant, in store > site >
// group precedence. Returns (nil, nil) when nothing matches.
func (r *Resolver) Resolve(ctx context.Context, merchant *domain.Merchant) (*domain.BankingProfile, error) {
	if p, err := r.repo.ActiveProfileForStore(ctx, merchant.ID); err != nil {
		return nil, err
	} else if p != nil {
		return p, nil
	}

	if p, err := r.repo.ActiveProfileForSite(ctx, merchant.SiteID); err != nil {
		return nil, err
	} else if p != nil {
		return p, nil
	}

	if p, err := r.repo.ActiveProfileForGroup(ctx, merchant.GroupID); err != nil {
		return nil, err
	} else if p != nil {
		return p, nil
	}

	return nil, nil
}
