package memstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedWallet(t *testing.T, s *Store, id, userID, balance string) {
	t.Helper()
	require.NoError(t, s.Wallets().Create(context.Background(), &domain.Wallet{
		ID:       id,
		UserID:   userID,
		Balance:  decimal.RequireFromString(balance),
		Currency: domain.DefaultCurrency,
	}))
}

func TestRunInTxCommits(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedWallet(t, s, "w1", "u1", "10")

	err := s.RunInTx(ctx, store.DefaultTxOptions(), func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.Wallets().IncrementBalance(ctx, "w1", decimal.NewFromInt(5))
		require.True(t, ok)
		return err
	})
	require.NoError(t, err)

	w, found, err := s.Wallets().FindByID(ctx, "w1")
	require.NoError(t, err)
	require.True(t, found)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(15)))
}

func TestRunInTxRollsBackOnError(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedWallet(t, s, "w1", "u1", "10")
	boom := errors.New("boom")

	err := s.RunInTx(ctx, store.DefaultTxOptions(), func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.Wallets().IncrementBalance(ctx, "w1", decimal.NewFromInt(5)); err != nil {
			return err
		}
		if _, err := tx.Wallets().AppendTransactionRef(ctx, "w1", "SN1"); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	w, _, err := s.Wallets().FindByID(ctx, "w1")
	require.NoError(t, err)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(10)))
	assert.Empty(t, w.TransactionRefs)
}

func TestRunInTxHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := s.RunInTx(ctx, store.DefaultTxOptions(), func(context.Context, store.Tx) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestIncrementBalanceRefusesOverdraft(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedWallet(t, s, "w1", "u1", "10")

	ok, err := s.Wallets().IncrementBalance(ctx, "w1", decimal.NewFromInt(-11))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Wallets().IncrementBalance(ctx, "w1", decimal.NewFromInt(-10))
	require.NoError(t, err)
	assert.True(t, ok)

	w, _, _ := s.Wallets().FindByID(ctx, "w1")
	assert.True(t, w.Balance.IsZero())
}

func TestFaultHook(t *testing.T) {
	fail := errors.New("disk full")
	s := New(WithFault(func(op string) error {
		switch op {
		case "wallets.append_ref":
			return ErrNoMatch
		case "transactions.insert":
			return fail
		}
		return nil
	}))
	ctx := context.Background()
	seedWallet(t, s, "w1", "u1", "10")

	n, err := s.Wallets().AppendTransactionRef(ctx, "w1", "SN1")
	require.NoError(t, err)
	assert.Zero(t, n)

	err = s.Transactions().Insert(ctx, &domain.Transaction{TransactionID: "SN1"})
	require.ErrorIs(t, err, fail)
}

func TestTransactionInsertRejectsDuplicateID(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Transactions().Insert(ctx, &domain.Transaction{TransactionID: "SN1"}))
	err := s.Transactions().Insert(ctx, &domain.Transaction{TransactionID: "SN1"})
	require.ErrorIs(t, err, domain.ErrDuplicateKey)
}

func TestTransactionListNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"A", "B", "C", "D"} {
		require.NoError(t, s.Transactions().Insert(ctx, &domain.Transaction{
			TransactionID: id,
			Type:          domain.TransactionSend,
			Sender:        []string{"w1"},
			Recipient:     "w2",
			Status:        domain.PaymentSuccess,
			CreatedAt:     base.Add(time.Duration(i/2) * time.Minute),
		}))
	}

	got, total, err := s.Transactions().List(ctx, domain.TransactionFilter{WalletID: "w2", Limit: 3})
	require.NoError(t, err)
	assert.EqualValues(t, 4, total)
	ids := make([]string, 0, len(got))
	for _, tx := range got {
		ids = append(ids, tx.TransactionID)
	}
	assert.Equal(t, []string{"D", "C", "B"}, ids)
}

func TestTransactionUpdateStatusIsConditional(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Transactions().Insert(ctx, &domain.Transaction{TransactionID: "FN1", Status: domain.PaymentPending}))

	ok, err := s.Transactions().UpdateStatus(ctx, "FN1", domain.PaymentPending, domain.PaymentSuccess)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Transactions().UpdateStatus(ctx, "FN1", domain.PaymentPending, domain.PaymentFailed)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestEventSettleRequiresExpectedAmount(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Events().Insert(ctx, &domain.Event{
		Code:   "ABCD1234",
		Status: domain.EventActive,
		Amount: decimal.NewFromInt(100),
	}))

	ok, err := s.Events().Settle(ctx, "ABCD1234", decimal.NewFromInt(90), time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Events().Settle(ctx, "ABCD1234", decimal.NewFromInt(100), time.Now())
	require.NoError(t, err)
	assert.True(t, ok)

	e, _, _ := s.Events().FindByCode(ctx, "ABCD1234")
	assert.Equal(t, domain.EventCompleted, e.Status)
	assert.True(t, e.Amount.IsZero())
	assert.NotNil(t, e.FinishTime)
}

func TestEventIncrementAmountOnlyWhenActive(t *testing.T) {
	s := New()
	ctx := context.Background()
	require.NoError(t, s.Events().Insert(ctx, &domain.Event{Code: "PENDING1", Status: domain.EventPending}))

	ok, err := s.Events().IncrementAmount(ctx, "PENDING1", decimal.NewFromInt(5))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOutboxRetryParksAfterMaxAttempts(t *testing.T) {
	s := New()
	ctx := context.Background()
	m, err := domain.NewOutboxMessage(domain.OutboxTransactionRecorded, map[string]string{"id": "SN1"})
	require.NoError(t, err)
	require.NoError(t, s.Outbox().Insert(ctx, m))

	for i := 0; i < domain.MaxOutboxAttempts; i++ {
		batch, err := s.Outbox().FetchPending(ctx, 10)
		require.NoError(t, err)
		require.Len(t, batch, 1)
		require.NoError(t, s.Outbox().MarkForRetry(ctx, m.ID))
	}

	batch, err := s.Outbox().FetchPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
