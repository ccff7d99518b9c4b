package profile

import (
	"context"
	"testing"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

type fakeRepo struct {
	store *domain.BankingProfile
	site  *domain.BankingProfile
	group *domain.BankingProfile
}

func (f *fakeRepo) ActiveProfileForStore(ctx context.Context, storeID int64) (*domain.BankingProfile, error) {
	return f.store, nil
}

func (f *fakeRepo) ActiveProfileForSite(ctx context.Context, siteID int) (*domain.BankingProfile, error) {
	return f.site, nil
}

func (f *fakeRepo) ActiveProfileForGroup(ctx context.Context, groupID int) (*domain.BankingProfile, error) {
	return f.group, nil
}

func testMerchant() *domain.Merchant {
	return &domain.Merchant{ID: 1, GroupID: 10, SiteID: 20}
}

func TestResolver_PrefersStoreOverSiteAndGroup(t *testing.T) {
	repo := &fakeRepo{
		store: &domain.BankingProfile{ID: 1, Scope: domain.ScopeStore},
		site:  &domain.BankingProfile{ID: 2, Scope: domain.ScopeSite},
		group: &domain.BankingProfile{ID: 3, Scope: domain.ScopeGroup},
	}
	got, err := NewResolver(repo).Resolve(context.Background(), testMerchant())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || got.ID != 1 {
		t.Fatalf("expected store-scoped profile, got %+v", got)
	}
}

func TestResolver_FallsBackToSite(t *testing.T) {
	repo := &fakeRepo{
		site:  &domain.BankingProfile{ID: 2, Scope: domain.ScopeSite},
		group: &domain.BankingProfile{ID: 3, Scope: domain.ScopeGroup},
	}
	got, err := NewResolver(repo).Resolve(context.Background(), testMerchant())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || got.ID != 2 {
		t.Fatalf("expected site-scoped profile, got %+v", got)
	}
}

func TestResolver_FallsBackToGroup(t *testing.T) {
	repo := &fakeRepo{
		group: &domain.BankingProfile{ID: 3, Scope: domain.ScopeGroup},
	}
	got, err := NewResolver(repo).Resolve(context.Background(), testMerchant())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got == nil || got.ID != 3 {
		t.Fatalf("expected group-scoped profile, got %+v", got)
	}
}

func TestResolver_NoneMatches(t *testing.T) {
	got, err := NewResolver(&fakeRepo{}).Resolve(context.Background(), testMerchant())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil profile, got %+v", got)
	}
}
