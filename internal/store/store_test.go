package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

func TestEnsureSchemaIsIdempotent(t *testing.T) {
	db, err := Open("file::memory:?cache=shared&mode=memory")
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, EnsureSchema(db))
	require.NoError(t, EnsureSchema(db), "running EnsureSchema twice must not fail")
}

func TestFCIDRepoCreateGetAndUpdateBalance(t *testing.T) {
	db, err := Open("file::memory:?cache=shared&mode=memory")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(db))

	repo := NewFCIDRepo(db)
	ctx := context.Background()

	exists, err := repo.Exists(ctx, "FC-20260101-00001")
	require.NoError(t, err)
	require.False(t, exists)

	tx, err := repo.BeginTx(ctx)
	require.NoError(t, err)

	f := &domain.FCID{
		Code:                "FC-20260101-00001",
		InitialAmountMinor:  100000,
		CurrentBalanceMinor: 100000,
		PaymentMethod:       domain.MethodCash,
		Status:              domain.FCIDActive,
	}
	require.NoError(t, repo.Create(ctx, tx, f))
	require.NoError(t, tx.Commit())

	exists, err = repo.Exists(ctx, "FC-20260101-00001")
	require.NoError(t, err)
	require.True(t, exists)

	got, err := repo.Get(ctx, f.Code)
	require.NoError(t, err)
	require.Equal(t, int64(100000), got.CurrentBalanceMinor)
	require.Equal(t, domain.FCIDActive, got.Status)

	tx2, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	ok, err := repo.UpdateBalance(ctx, tx2, f.Code, domain.FCIDActive, 100000, 25000, domain.FCIDActive)
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, tx2.Commit())

	got, err = repo.Get(ctx, f.Code)
	require.NoError(t, err)
	require.Equal(t, int64(25000), got.CurrentBalanceMinor)

	// A conditional update against a now-stale expected status must not apply.
	tx3, err := repo.BeginTx(ctx)
	require.NoError(t, err)
	ok, err = repo.UpdateBalance(ctx, tx3, f.Code, domain.FCIDRefunded, 100000, 0, domain.FCIDRefunded)
	require.NoError(t, err)
	require.False(t, ok, "update must no-op when the expected status doesn't match the current row")
	require.NoError(t, tx3.Rollback())
}

func TestFCIDRepoGetUnknownCodeIsNotFound(t *testing.T) {
	db, err := Open("file::memory:?cache=shared&mode=memory")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(db))

	repo := NewFCIDRepo(db)
	_, err = repo.Get(context.Background(), "FC-NOPE")
	require.Error(t, err)
	require.Equal(t, domain.KindNotFound, domain.Kind(err))
}

func TestNextReceiptNumberIncrementsPerDay(t *testing.T) {
	db, err := Open("file::memory:?cache=shared&mode=memory")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(db))

	repo := NewFCIDRepo(db)
	ctx := context.Background()
	day := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	merchantID, err := NewMerchantRepo(db).Create(ctx, &domain.Merchant{Name: "Receipt Stall", BillerID: "000000000000099", Token: "00100020000030000001", City: "BANGKOK"})
	require.NoError(t, err)

	first, err := repo.NextReceiptNumberForDay(ctx, day)
	require.NoError(t, err)
	require.Equal(t, "RCP-20260101-00001", first)

	_, err = repo.InsertPaymentTransactionAutoCommit(ctx, &domain.PaymentTransaction{
		MerchantID:    merchantID,
		AmountMinor:   1000,
		PaymentMethod: domain.MethodCash,
		Status:        "confirmed",
		ReceiptNumber: first,
	})
	require.NoError(t, err)

	second, err := repo.NextReceiptNumberForDay(ctx, day)
	require.NoError(t, err)
	require.Equal(t, "RCP-20260101-00002", second)
}

func TestRefundRepoNotificationLifecycle(t *testing.T) {
	db, err := Open("file::memory:?cache=shared&mode=memory")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(db))

	fcids := NewFCIDRepo(db)
	repo := NewRefundRepo(db)
	ctx := context.Background()

	tx, err := fcids.BeginTx(ctx)
	require.NoError(t, err)
	require.NoError(t, fcids.Create(ctx, tx, &domain.FCID{
		Code:                "FC-20260101-00009",
		InitialAmountMinor:  20000,
		CurrentBalanceMinor: 20000,
		PaymentMethod:       domain.MethodCash,
		Status:              domain.FCIDActive,
	}))
	require.NoError(t, tx.Commit())

	active, err := repo.ListActiveWithBalance(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	today := time.Now().UTC()
	notified, err := repo.NotifiedOn(ctx, "FC-20260101-00009", today)
	require.NoError(t, err)
	require.False(t, notified)

	id, err := repo.CreateNotification(ctx, &domain.RefundNotification{FCIDCode: "FC-20260101-00009", AmountMinor: 20000})
	require.NoError(t, err)

	notified, err = repo.NotifiedOn(ctx, "FC-20260101-00009", today)
	require.NoError(t, err)
	require.True(t, notified)

	unsent, err := repo.ListUnsent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, unsent, 1)
	require.Equal(t, id, unsent[0].ID)

	require.NoError(t, repo.MarkSent(ctx, id, today))
	unsent, err = repo.ListUnsent(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, unsent)
}

func TestMerchantRepoMenusAndQuickAmounts(t *testing.T) {
	db, err := Open("file::memory:?cache=shared&mode=memory")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(db))

	repo := NewMerchantRepo(db)
	ctx := context.Background()

	id, err := repo.Create(ctx, &domain.Merchant{Name: "Som Tam", BillerID: "000000000000099", Token: "00100020000020000000", City: "BANGKOK"})
	require.NoError(t, err)

	_, err = repo.AddMenu(ctx, id, "Lunch")
	require.NoError(t, err)

	_, err = repo.AddQuickAmount(ctx, id, "100 baht", 10000)
	require.NoError(t, err)
	_, err = repo.AddQuickAmount(ctx, id, "50 baht", 5000)
	require.NoError(t, err)

	amounts, err := repo.QuickAmounts(ctx, id)
	require.NoError(t, err)
	require.Len(t, amounts, 2)
	require.Equal(t, int64(5000), amounts[0].AmountMinor, "presets come back sorted by amount")
	require.Equal(t, "100 baht", amounts[1].Label)
}

func TestMerchantRepoByTokenRoundTrip(t *testing.T) {
	db, err := Open("file::memory:?cache=shared&mode=memory")
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, EnsureSchema(db))

	repo := NewMerchantRepo(db)
	ctx := context.Background()

	m := &domain.Merchant{Name: "Noodle Stall", BillerID: "000000000000099", GroupID: 1, SiteID: 2, MenuID: 1, Token: "00100020000010000001", City: "BANGKOK"}
	id, err := repo.Create(ctx, m)
	require.NoError(t, err)
	require.Positive(t, id)

	got, err := repo.ByToken(ctx, "00100020000010000001")
	require.NoError(t, err)
	require.Equal(t, id, got.ID)
	require.Equal(t, "Noodle Stall", got.Name)

	_, err = repo.ByToken(ctx, "nonexistent-token")
	require.Error(t, err)
	require.Equal(t, domain.KindNotFound, domain.Kind(err))
}
