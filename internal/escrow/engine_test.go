package escrow

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/oxzoid/foodcourt-hub/internal/domain"
)

// fakeRepo is an in-memory stand-in for internal/store's FCIDRepo, letting
// the engine's atomicity and invariant logic be tested without a database.
// It opens a throwaway in-memory sqlite connection purely so BeginTx has a
// real *sql.Tx to hand back; all actual state lives in Go maps guarded by mu.
type fakeRepo struct {
	db *sql.DB

	mu       sync.Mutex
	fcids    map[string]*domain.FCID
	counters []domain.CounterTransaction
	stores   []domain.StoreTransaction
	receipts []domain.PaymentTransaction
	nextID   int64
}

func newFakeRepo(t *testing.T) *fakeRepo {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return &fakeRepo{db: db, fcids: make(map[string]*domain.FCID)}
}

func (r *fakeRepo) BeginTx(ctx context.Context) (*sql.Tx, error) {
	return r.db.BeginTx(ctx, nil)
}

func (r *fakeRepo) Exists(ctx context.Context, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.fcids[code]
	return ok, nil
}

func (r *fakeRepo) Create(ctx context.Context, tx *sql.Tx, f *domain.FCID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *f
	r.fcids[f.Code] = &cp
	return nil
}

func (r *fakeRepo) Get(ctx context.Context, code string) (*domain.FCID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fcids[code]
	if !ok {
		return nil, domain.NewNotFoundError("fcid not found")
	}
	cp := *f
	return &cp, nil
}

func (r *fakeRepo) GetTx(ctx context.Context, tx *sql.Tx, code string) (*domain.FCID, error) {
	return r.Get(ctx, code)
}

func (r *fakeRepo) UpdateBalance(ctx context.Context, tx *sql.Tx, code string, expectedStatus domain.FCIDStatus, newInitial, newBalance int64, newStatus domain.FCIDStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.fcids[code]
	if !ok {
		return false, domain.NewNotFoundError("fcid not found")
	}
	if f.Status != expectedStatus {
		return false, nil
	}
	f.InitialAmountMinor = newInitial
	f.CurrentBalanceMinor = newBalance
	f.Status = newStatus
	return true, nil
}

func (r *fakeRepo) AppendCounterTransaction(ctx context.Context, tx *sql.Tx, ct *domain.CounterTransaction) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	ct.ID = r.nextID
	r.counters = append(r.counters, *ct)
	return ct.ID, nil
}

func (r *fakeRepo) AppendStoreTransaction(ctx context.Context, tx *sql.Tx, st *domain.StoreTransaction) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	st.ID = r.nextID
	r.stores = append(r.stores, *st)
	return st.ID, nil
}

func (r *fakeRepo) InsertPaymentTransaction(ctx context.Context, tx *sql.Tx, pt *domain.PaymentTransaction) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	pt.ID = r.nextID
	r.receipts = append(r.receipts, *pt)
	return pt.ID, nil
}

func (r *fakeRepo) NextReceiptNumber(ctx context.Context, tx *sql.Tx, day time.Time) (string, error) {
	return "RCP-" + day.Format("20060102") + "-00001", nil
}

func (r *fakeRepo) MarkCounterTransactionCompleted(ctx context.Context, tx *sql.Tx, fcidCode string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.counters) - 1; i >= 0; i-- {
		if r.counters[i].FCIDCode == fcidCode && r.counters[i].Status == "pending" {
			r.counters[i].Status = "completed"
			return true, nil
		}
	}
	return false, nil
}

// fakeCryptoRepo is an in-memory stand-in for internal/store's
// CryptoTopUpRepo, recording the pending on-chain claims a crypto-tendered
// mint or top-up registers.
type fakeCryptoRepo struct {
	mu     sync.Mutex
	claims []domain.CryptoTopUp
	nextID int64
}

func newFakeCryptoRepo() *fakeCryptoRepo {
	return &fakeCryptoRepo{}
}

func (r *fakeCryptoRepo) CreateTx(ctx context.Context, tx *sql.Tx, c *domain.CryptoTopUp) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.claims {
		if existing.TxHash == c.TxHash {
			return 0, domain.NewConflictError("this transaction hash has already been submitted")
		}
	}
	r.nextID++
	cp := *c
	cp.ID = r.nextID
	cp.Status = domain.CryptoTopUpPending
	r.claims = append(r.claims, cp)
	return cp.ID, nil
}

func TestMintZeroAmountIsReceptacle(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)

	f, err := e.Mint(context.Background(), 0, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.CurrentBalanceMinor)
	assert.Equal(t, domain.FCIDActive, f.Status)
	assert.Len(t, repo.counters, 1)
}

func TestMintRejectsNegativeAmount(t *testing.T) {
	e := New(newFakeRepo(t), nil)
	_, err := e.Mint(context.Background(), -1, domain.MethodCash, "", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.Kind(err))
}

func TestMintRejectsUnknownMethod(t *testing.T) {
	e := New(newFakeRepo(t), nil)
	_, err := e.Mint(context.Background(), 100, domain.PaymentMethod("NOT_A_METHOD"), "", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.Kind(err))
}

// Mint 1000.00, debit 250.00 at a store, expect 750.00 remaining.
func TestMintAndDebit(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	f, err := e.Mint(ctx, 100000, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	res, err := e.Debit(ctx, f.Code, 1, 25000)
	require.NoError(t, err)
	assert.Equal(t, int64(75000), res.RemainingBalanceMinor)
	assert.Nil(t, res.PaymentTransactionID)

	snap, err := e.Balance(ctx, f.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(75000), snap.CurrentBalanceMinor)
	assert.Equal(t, domain.FCIDActive, snap.Status)
}

// Debiting to zero flips status to used; further debit is rejected.
func TestDebitToZeroMarksUsed(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	f, err := e.Mint(ctx, 10000, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	res, err := e.Debit(ctx, f.Code, 1, 10000)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.RemainingBalanceMinor)

	snap, err := e.Balance(ctx, f.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.FCIDUsed, snap.Status)

	_, err = e.Debit(ctx, f.Code, 1, 100)
	require.Error(t, err)
	assert.Equal(t, domain.KindInsufficientBalance, domain.Kind(err))
}

func TestDebitInsufficientBalance(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	f, err := e.Mint(ctx, 5000, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	_, err = e.Debit(ctx, f.Code, 1, 5001)
	require.Error(t, err)
	assert.Equal(t, domain.KindInsufficientBalance, domain.Kind(err))
}

func TestDebitUnknownCode(t *testing.T) {
	e := New(newFakeRepo(t), nil)
	_, err := e.Debit(context.Background(), "FC-20260101-00000", 1, 100)
	require.Error(t, err)
	assert.Equal(t, domain.KindNotFound, domain.Kind(err))
}

func TestDebitRejectsNonPositiveAmount(t *testing.T) {
	e := New(newFakeRepo(t), nil)
	_, err := e.Debit(context.Background(), "FC-20260101-00000", 1, 0)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.Kind(err))
}

// Mint 1000.00, debit 250.00, refund -> 750.00; a second refund fails.
func TestRefundAfterPartialUse(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	f, err := e.Mint(ctx, 100000, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	_, err = e.Debit(ctx, f.Code, 1, 25000)
	require.NoError(t, err)

	amount, err := e.Refund(ctx, f.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(75000), amount)

	snap, err := e.Balance(ctx, f.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.FCIDRefunded, snap.Status)
	assert.Equal(t, int64(0), snap.CurrentBalanceMinor)

	_, err = e.Refund(ctx, f.Code)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.Kind(err))
}

func TestRefundZeroBalanceFails(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	f, err := e.Mint(ctx, 0, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	_, err = e.Refund(ctx, f.Code)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.Kind(err))
}

func TestRefundedTokenCannotBeDebited(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	f, err := e.Mint(ctx, 10000, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)
	_, err = e.Refund(ctx, f.Code)
	require.NoError(t, err)

	_, err = e.Debit(ctx, f.Code, 1, 1)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.Kind(err))

	_, err = e.TopUp(ctx, f.Code, 1, domain.MethodCash, "")
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.Kind(err))
}

func TestTopUpIncreasesInitialAndBalance(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	f, err := e.Mint(ctx, 0, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	res, err := e.TopUp(ctx, f.Code, 50000, domain.MethodVisa, `{"last4":"4242"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.OldBalanceMinor)
	assert.Equal(t, int64(50000), res.NewBalanceMinor)

	snap, err := e.Balance(ctx, f.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), snap.InitialAmountMinor)
	assert.Equal(t, int64(50000), snap.CurrentBalanceMinor)
}

// Conservation: across mint, debit, and refund,
// initial_amount_ever_credited >= sum(debits) + refund_amount + current_balance.
func TestConservationInvariant(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	f, err := e.Mint(ctx, 100000, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	_, err = e.TopUp(ctx, f.Code, 20000, domain.MethodCash, "")
	require.NoError(t, err)

	_, err = e.Debit(ctx, f.Code, 1, 30000)
	require.NoError(t, err)

	refundAmount, err := e.Refund(ctx, f.Code)
	require.NoError(t, err)

	snap, err := e.Balance(ctx, f.Code)
	require.NoError(t, err)

	// initial_amount_ever_credited (120000) >= debits (30000) + refund + current_balance.
	assert.GreaterOrEqual(t, snap.InitialAmountMinor, int64(30000)+refundAmount+snap.CurrentBalanceMinor)
	assert.Equal(t, int64(0), snap.CurrentBalanceMinor, "refund must zero the balance")
	assert.Equal(t, int64(90000), refundAmount, "remaining balance after the debit is what gets refunded")
}

func TestDebitCreatesReceiptOnlyWhenCustomerBound(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	customerID := int64(42)
	f, err := e.Mint(ctx, 10000, domain.MethodCash, "", nil, nil, &customerID)
	require.NoError(t, err)

	res, err := e.Debit(ctx, f.Code, 7, 5000)
	require.NoError(t, err)
	require.NotNil(t, res.PaymentTransactionID)
	require.Len(t, repo.receipts, 1)
	assert.Equal(t, int64(7), repo.receipts[0].MerchantID)
}

// Crypto-tendered mints stay at a zero balance and record a pending claim
// instead of crediting on the spot.
func TestMintWithCryptoMethodIsPendingUntilConfirmed(t *testing.T) {
	repo := newFakeRepo(t)
	cryptoRepo := newFakeCryptoRepo()
	e := New(repo, cryptoRepo)
	ctx := context.Background()

	details := MarshalDetails(cryptoClaim{TxHash: "0xabc", DestAddress: "0xdest"})
	f, err := e.Mint(ctx, 50000, domain.MethodUSDTBEP20, details, nil, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), f.CurrentBalanceMinor)
	assert.Equal(t, int64(0), f.InitialAmountMinor)

	require.Len(t, cryptoRepo.claims, 1)
	assert.Equal(t, "0xabc", cryptoRepo.claims[0].TxHash)
	assert.Equal(t, int64(50000), cryptoRepo.claims[0].ExpectedAmountMinor)
	assert.Equal(t, domain.CryptoTopUpPending, cryptoRepo.claims[0].Status)

	require.Len(t, repo.counters, 1)
	assert.Equal(t, "pending", repo.counters[0].Status)

	err = e.ConfirmCryptoTopUp(ctx, f.Code, 50000, domain.MethodUSDTBEP20)
	require.NoError(t, err)

	snap, err := e.Balance(ctx, f.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(50000), snap.CurrentBalanceMinor)
	assert.Equal(t, int64(50000), snap.InitialAmountMinor)
	assert.Equal(t, "completed", repo.counters[0].Status)
}

func TestMintCryptoMethodRejectsMissingClaimDetails(t *testing.T) {
	e := New(newFakeRepo(t), newFakeCryptoRepo())
	_, err := e.Mint(context.Background(), 1000, domain.MethodUSDTBEP20, "", nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.Kind(err))
}

func TestMintCryptoMethodRejectsWhenUnconfigured(t *testing.T) {
	e := New(newFakeRepo(t), nil)
	details := MarshalDetails(cryptoClaim{TxHash: "0xabc", DestAddress: "0xdest"})
	_, err := e.Mint(context.Background(), 1000, domain.MethodUSDTBEP20, details, nil, nil, nil)
	require.Error(t, err)
	assert.Equal(t, domain.KindValidation, domain.Kind(err))
}

// Crypto-tendered top-ups on an already-active FCID behave the same way:
// the claim is recorded and the balance does not move until confirmed.
func TestTopUpWithCryptoMethodIsPendingUntilConfirmed(t *testing.T) {
	repo := newFakeRepo(t)
	cryptoRepo := newFakeCryptoRepo()
	e := New(repo, cryptoRepo)
	ctx := context.Background()

	f, err := e.Mint(ctx, 10000, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	details := MarshalDetails(cryptoClaim{TxHash: "0xtopup", DestAddress: "0xdest"})
	res, err := e.TopUp(ctx, f.Code, 20000, domain.MethodUSDTBEP20, details)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), res.OldBalanceMinor)
	assert.Equal(t, int64(10000), res.NewBalanceMinor, "balance must not move until the poller confirms")

	require.Len(t, cryptoRepo.claims, 1)
	assert.Equal(t, "0xtopup", cryptoRepo.claims[0].TxHash)

	err = e.ConfirmCryptoTopUp(ctx, f.Code, 20000, domain.MethodUSDTBEP20)
	require.NoError(t, err)

	snap, err := e.Balance(ctx, f.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(30000), snap.CurrentBalanceMinor)
	assert.Equal(t, int64(30000), snap.InitialAmountMinor)
}

// The nightly balance reset expires a token instead of refunding it; an
// expired token is terminal exactly like a refunded one.
func TestExpireZeroesBalanceAndIsTerminal(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	f, err := e.Mint(ctx, 40000, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	amount, err := e.Expire(ctx, f.Code)
	require.NoError(t, err)
	assert.Equal(t, int64(40000), amount)

	snap, err := e.Balance(ctx, f.Code)
	require.NoError(t, err)
	assert.Equal(t, domain.FCIDExpired, snap.Status)
	assert.Equal(t, int64(0), snap.CurrentBalanceMinor)

	_, err = e.Debit(ctx, f.Code, 1, 1)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.Kind(err))

	_, err = e.Expire(ctx, f.Code)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.Kind(err))
}

func TestExpireZeroBalanceReceptacleFails(t *testing.T) {
	repo := newFakeRepo(t)
	e := New(repo, nil)
	ctx := context.Background()

	f, err := e.Mint(ctx, 0, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	_, err = e.Expire(ctx, f.Code)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.Kind(err))
}

func TestTopUpCryptoMethodRejectsDuplicateTxHash(t *testing.T) {
	repo := newFakeRepo(t)
	cryptoRepo := newFakeCryptoRepo()
	e := New(repo, cryptoRepo)
	ctx := context.Background()

	f, err := e.Mint(ctx, 10000, domain.MethodCash, "", nil, nil, nil)
	require.NoError(t, err)

	details := MarshalDetails(cryptoClaim{TxHash: "0xdupe", DestAddress: "0xdest"})
	_, err = e.TopUp(ctx, f.Code, 20000, domain.MethodUSDTBEP20, details)
	require.NoError(t, err)

	_, err = e.TopUp(ctx, f.Code, 20000, domain.MethodUSDTBEP20, details)
	require.Error(t, err)
	assert.Equal(t, domain.KindConflict, domain.Kind(err))
}
