package webhook

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

type fakeMerchants struct {
	byToken map[string]*domain.Merchant
}

func (f *fakeMerchants) ByToken(ctx context.Context, token string) (*domain.Merchant, error) {
	m, ok := f.byToken[token]
	if !ok {
		return nil, domain.NewNotFoundError("merchant not found")
	}
	return m, nil
}

type fakeBackTxStore struct {
	byDeliveryKey map[string]*domain.BackTransaction
	rows          []domain.BackTransaction
	nextID        int64
}

func newFakeBackTxStore() *fakeBackTxStore {
	return &fakeBackTxStore{byDeliveryKey: make(map[string]*domain.BackTransaction)}
}

func (f *fakeBackTxStore) ByUniqueDeliveryKey(ctx context.Context, slipReference string) (*domain.BackTransaction, error) {
	bt, ok := f.byDeliveryKey[slipReference]
	if !ok {
		return nil, nil
	}
	return bt, nil
}

func (f *fakeBackTxStore) Insert(ctx context.Context, b *domain.BackTransaction) (int64, error) {
	f.nextID++
	b.ID = f.nextID
	f.rows = append(f.rows, *b)
	if b.SlipReference != nil && *b.SlipReference != "" {
		cp := *b
		f.byDeliveryKey[*b.SlipReference] = &cp
	}
	return b.ID, nil
}

func (f *fakeBackTxStore) ByID(ctx context.Context, id int64) (*domain.BackTransaction, error) {
	for _, b := range f.rows {
		if b.ID == id {
			return &b, nil
		}
	}
	return nil, domain.NewNotFoundError("back transaction not found")
}

type fakeReceiptStoreImpl struct {
	inserted []domain.PaymentTransaction
}

func (f *fakeReceiptStoreImpl) NextReceiptNumberForDay(ctx context.Context, day time.Time) (string, error) {
	return "RCP-" + day.Format("20060102") + "-00001", nil
}

func (f *fakeReceiptStoreImpl) InsertPaymentTransactionAutoCommit(ctx context.Context, pt *domain.PaymentTransaction) (int64, error) {
	f.inserted = append(f.inserted, *pt)
	return int64(len(f.inserted)), nil
}

type fakeSignage struct {
	paidMerchants map[int64]bool
}

func (f *fakeSignage) MarkPaid(merchantID int64) (domain.SignageSlot, bool) {
	if f.paidMerchants == nil {
		f.paidMerchants = make(map[int64]bool)
	}
	f.paidMerchants[merchantID] = true
	return domain.SignageSlot{MerchantID: merchantID, Status: domain.SignagePaid}, true
}

func TestNormalizeKBankWebhook(t *testing.T) {
	merchants := &fakeMerchants{byToken: map[string]*domain.Merchant{
		"001000100000100000": {ID: 7, Token: "001000100000100000"},
	}}
	backTx := newFakeBackTxStore()
	receipts := &fakeReceiptStoreImpl{}
	signage := &fakeSignage{}
	n := New(merchants, backTx, receipts, signage)

	body := []byte(`{"reference1":"001000100000100000","totalAmount":50.00,"transactionId":"TXN1","transactionDate":"2024-12-01T10:00:00Z"}`)
	res, err := n.Normalize(context.Background(), RailKBank, body)
	require.NoError(t, err)
	require.NotNil(t, res.BackTransaction)
	assert.False(t, res.Duplicate)
	assert.Equal(t, int64(5000), res.BackTransaction.AmountMinor)
	assert.Equal(t, "001000100000100000", res.BackTransaction.Ref1)
	require.NotNil(t, res.BackTransaction.MerchantID)
	assert.Equal(t, int64(7), *res.BackTransaction.MerchantID)
	assert.True(t, signage.paidMerchants[7])
}

// Two deliveries with the same slip_reference must collapse onto one
// BackTransaction row.
func TestNormalizeIsIdempotentOnDuplicateSlipReference(t *testing.T) {
	merchants := &fakeMerchants{byToken: map[string]*domain.Merchant{
		"001000100000100000": {ID: 7, Token: "001000100000100000"},
	}}
	backTx := newFakeBackTxStore()
	n := New(merchants, backTx, &fakeReceiptStoreImpl{}, &fakeSignage{})

	body := []byte(`{"reference1":"001000100000100000","totalAmount":50.00,"transactionId":"TXN1"}`)
	first, err := n.Normalize(context.Background(), RailKBank, body)
	require.NoError(t, err)
	assert.False(t, first.Duplicate)

	second, err := n.Normalize(context.Background(), RailKBank, body)
	require.NoError(t, err)
	assert.True(t, second.Duplicate)
	assert.Equal(t, first.BackTransaction.ID, second.BackTransaction.ID)
	assert.Len(t, backTx.rows, 1)
}

func TestNormalizeUnresolvedRef1IsRecordedNotOrphaned(t *testing.T) {
	merchants := &fakeMerchants{byToken: map[string]*domain.Merchant{}}
	backTx := newFakeBackTxStore()
	signage := &fakeSignage{}
	n := New(merchants, backTx, &fakeReceiptStoreImpl{}, signage)

	body := []byte(`{"ref1":"999999999999999999999","amount":10.00}`)
	res, err := n.Normalize(context.Background(), RailGeneric, body)
	require.NoError(t, err)
	assert.Nil(t, res.BackTransaction.MerchantID)
	assert.Len(t, backTx.rows, 1, "an unresolved ref1 is still durably recorded for audit")
	assert.Empty(t, signage.paidMerchants)
}

func TestNormalizeRejectsMissingRef1(t *testing.T) {
	n := New(&fakeMerchants{byToken: map[string]*domain.Merchant{}}, newFakeBackTxStore(), &fakeReceiptStoreImpl{}, &fakeSignage{})
	body := []byte(`{"amount":10.00}`)
	_, err := n.Normalize(context.Background(), RailGeneric, body)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.Kind(err))
}

func TestNormalizeOmiseOnlyAcceptsSuccessfulCharge(t *testing.T) {
	merchants := &fakeMerchants{byToken: map[string]*domain.Merchant{"MT1": {ID: 3, Token: "MT1"}}}
	backTx := newFakeBackTxStore()
	n := New(merchants, backTx, &fakeReceiptStoreImpl{}, &fakeSignage{})

	pending := []byte(`{"key":"charge.create","data":{"status":"pending","amount":1000,"metadata":{"ref1":"MT1"}}}`)
	res, err := n.Normalize(context.Background(), RailOmise, pending)
	require.NoError(t, err)
	assert.Nil(t, res.BackTransaction)
	assert.Len(t, backTx.rows, 0)

	paid := []byte(`{"key":"charge.complete","data":{"id":"chrg_1","status":"successful","amount":1481,"metadata":{"ref1":"MT1"}}}`)
	res, err = n.Normalize(context.Background(), RailOmise, paid)
	require.NoError(t, err)
	require.NotNil(t, res.BackTransaction)
	assert.Equal(t, int64(1481), res.BackTransaction.AmountMinor)
}

func TestNormalizeStripeOnlyAcceptsSucceeded(t *testing.T) {
	merchants := &fakeMerchants{byToken: map[string]*domain.Merchant{"MT2": {ID: 4, Token: "MT2"}}}
	backTx := newFakeBackTxStore()
	n := New(merchants, backTx, &fakeReceiptStoreImpl{}, &fakeSignage{})

	body := []byte(`{"type":"payment_intent.succeeded","data":{"object":{"id":"pi_1","amount":2000,"metadata":{"ref1":"MT2"}}}}`)
	res, err := n.Normalize(context.Background(), RailStripe, body)
	require.NoError(t, err)
	require.NotNil(t, res.BackTransaction)
	assert.Equal(t, int64(2000), res.BackTransaction.AmountMinor)
}
