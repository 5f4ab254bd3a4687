package service

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foodnudes/FoodNudesBot/internal/models"
)

type fakeAccountStore struct {
	free int
	paid int
	used int

	// stealBalance drains both pools after the next Balances call,
	// simulating a concurrent debit winning the race.
	stealBalance bool
}

func (f *fakeAccountStore) Balances(ctx context.Context, userID int64) (int, int, int, error) {
	free, paid, used := f.free, f.paid, f.used
	if f.stealBalance {
		f.free = 0
		f.paid = 0
		f.stealBalance = false
	}
	return free, paid, used, nil
}

func (f *fakeAccountStore) ConsumeFreeCredit(ctx context.Context, userID int64) (bool, error) {
	if f.free <= 0 {
		return false, nil
	}
	f.free--
	f.used++
	return true, nil
}

func (f *fakeAccountStore) ConsumePaidCredit(ctx context.Context, userID int64) (bool, error) {
	if f.paid <= 0 {
		return false, nil
	}
	f.paid--
	f.used++
	return true, nil
}

func (f *fakeAccountStore) IncrementTotalUsed(ctx context.Context, userID int64) error {
	f.used++
	return nil
}

func (f *fakeAccountStore) AddCredits(ctx context.Context, userID int64, amount int, pool models.CreditPool) error {
	switch pool {
	case models.PoolFree:
		f.free += amount
	case models.PoolPaid:
		f.paid += amount
	}
	return nil
}

func (f *fakeAccountStore) AddCreditsTx(ctx context.Context, tx *sql.Tx, userID int64, amount int, pool models.CreditPool) error {
	return f.AddCredits(ctx, userID, amount, pool)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDebitOnePrefersFreePool(t *testing.T) {
	store := &fakeAccountStore{free: 2, paid: 5}
	ledger := NewLedgerService(store, testLogger(), false)

	result, err := ledger.DebitOne(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.PoolFree, result.Pool)
	assert.Equal(t, 1, result.Free)
	assert.Equal(t, 5, result.Paid)
	assert.Equal(t, 1, store.used)
}

func TestDebitOneFallsBackToPaidPool(t *testing.T) {
	store := &fakeAccountStore{free: 0, paid: 2}
	ledger := NewLedgerService(store, testLogger(), false)

	result, err := ledger.DebitOne(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, models.PoolPaid, result.Pool)
	assert.Equal(t, 0, result.Free)
	assert.Equal(t, 1, result.Paid)
	assert.Equal(t, 1, store.used)
}

func TestDebitOneEmptyPoolsRejected(t *testing.T) {
	store := &fakeAccountStore{}
	ledger := NewLedgerService(store, testLogger(), false)

	_, err := ledger.DebitOne(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
	assert.Equal(t, 0, store.used)
	assert.Equal(t, 0, store.free)
	assert.Equal(t, 0, store.paid)
}

func TestDebitOneZeroBalancePolicy(t *testing.T) {
	store := &fakeAccountStore{}
	ledger := NewLedgerService(store, testLogger(), true)

	result, err := ledger.DebitOne(context.Background(), 1)
	require.NoError(t, err)

	assert.Empty(t, result.Pool)
	assert.Equal(t, 0, store.free)
	assert.Equal(t, 0, store.paid)
	assert.Equal(t, 1, store.used)
}

func TestDebitOneTotalUsedCountsBothPools(t *testing.T) {
	store := &fakeAccountStore{free: 1, paid: 1}
	ledger := NewLedgerService(store, testLogger(), false)
	ctx := context.Background()

	first, err := ledger.DebitOne(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.PoolFree, first.Pool)

	second, err := ledger.DebitOne(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, models.PoolPaid, second.Pool)

	used, err := ledger.TotalUsed(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, used)

	_, err = ledger.DebitOne(ctx, 1)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestDebitOneRetriesOnLostRace(t *testing.T) {
	store := &fakeAccountStore{free: 1, stealBalance: true}
	ledger := NewLedgerService(store, testLogger(), false)

	_, err := ledger.DebitOne(context.Background(), 1)
	assert.ErrorIs(t, err, ErrInsufficientCredits)
}

func TestCreditRoutesToPool(t *testing.T) {
	store := &fakeAccountStore{}
	ledger := NewLedgerService(store, testLogger(), false)
	ctx := context.Background()

	require.NoError(t, ledger.Credit(ctx, 1, 10, models.PoolFree))
	require.NoError(t, ledger.Credit(ctx, 1, 50, models.PoolPaid))

	assert.Equal(t, 10, store.free)
	assert.Equal(t, 50, store.paid)
	assert.Equal(t, 0, store.used)
}

func TestCreditTxGrantsThroughLedger(t *testing.T) {
	store := &fakeAccountStore{}
	ledger := NewLedgerService(store, testLogger(), false)
	ctx := context.Background()

	require.NoError(t, ledger.CreditTx(ctx, nil, 1, 10, models.PoolFree))
	assert.Equal(t, 10, store.free)
	assert.Equal(t, 0, store.used)

	assert.Error(t, ledger.CreditTx(ctx, nil, 1, 0, models.PoolFree))
	assert.Error(t, ledger.CreditTx(ctx, nil, 1, 10, models.CreditPool("bonus")))
	assert.Equal(t, 10, store.free)
}

func TestCreditRejectsBadInput(t *testing.T) {
	ledger := NewLedgerService(&fakeAccountStore{}, testLogger(), false)
	ctx := context.Background()

	assert.Error(t, ledger.Credit(ctx, 1, 0, models.PoolFree))
	assert.Error(t, ledger.Credit(ctx, 1, -5, models.PoolPaid))
	assert.Error(t, ledger.Credit(ctx, 1, 10, models.CreditPool("bonus")))
}
