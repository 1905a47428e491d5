// Package storetest holds the behaviour every store.Store backend must share.
// Backend packages call Run from their own tests.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"spray_ledger/internal/domain"
	"spray_ledger/internal/ledger"
	"spray_ledger/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns an empty store; it is called once per subtest.
type Factory func(t *testing.T) store.Store

var t0 = time.Date(2024, 6, 1, 18, 0, 0, 0, time.UTC)

// Run exercises the conditional writes and listings of the backend.
func Run(t *testing.T, open Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"OverdraftIsRefused", testOverdraftIsRefused},
		{"AbortedTxLeavesNoTrace", testAbortedTxLeavesNoTrace},
		{"SettleOnce", testSettleOnce},
		{"DepositsNeedActiveEvent", testDepositsNeedActiveEvent},
		{"UpdateDetailsMatchesStatus", testUpdateDetailsMatchesStatus},
		{"SaveParticipantUpserts", testSaveParticipantUpserts},
		{"TransactionsNewestFirst", testTransactionsNewestFirst},
		{"TransactionStatusMovesOnce", testTransactionStatusMovesOnce},
		{"UsersByUsername", testUsersByUsername},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, open(t))
		})
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func wallet(t *testing.T, s store.Store, id, balance string) domain.Wallet {
	t.Helper()
	w := domain.Wallet{
		ID:              id,
		UserID:          "user-" + id,
		Balance:         money(balance),
		Currency:        "NGN",
		TransactionRefs: []string{},
		CreatedAt:       t0,
		UpdatedAt:       t0,
	}
	require.NoError(t, s.Wallets().Create(context.Background(), &w))
	return w
}

func balanceOf(t *testing.T, s store.Store, id string) string {
	t.Helper()
	w, found, err := s.Wallets().FindByID(context.Background(), id)
	require.NoError(t, err)
	require.True(t, found)
	return w.Balance.StringFixed(2)
}

func event(t *testing.T, s store.Store, code string, status domain.EventStatus) domain.Event {
	t.Helper()
	ev := domain.Event{
		Code:        code,
		Name:        "Friday live",
		OwnerID:     "owner",
		OwnerWallet: "w-owner",
		Status:      status,
		Class:       domain.EventFree,
		Visibility:  domain.EventPublic,
		AccessFee:   decimal.Zero,
		Amount:      decimal.Zero,
		Participants: []domain.Participant{{
			UserID: "owner", WalletID: "w-owner", IsActive: true, HasPaid: true, Contributed: decimal.Zero, JoinedAt: t0,
		}},
		CreatedAt: t0,
		UpdatedAt: t0,
	}
	require.NoError(t, s.Events().Insert(context.Background(), &ev))
	return ev
}

func testOverdraftIsRefused(t *testing.T, s store.Store) {
	ctx := context.Background()
	w := wallet(t, s, "w-ada", "50")

	ok, err := s.Wallets().IncrementBalance(ctx, w.ID, money("-50.01"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "50.00", balanceOf(t, s, w.ID))

	ok, err = s.Wallets().IncrementBalance(ctx, w.ID, money("-50"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "0.00", balanceOf(t, s, w.ID))

	ok, err = s.Wallets().IncrementBalance(ctx, "w-missing", money("1"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func testAbortedTxLeavesNoTrace(t *testing.T, s store.Store) {
	ctx := context.Background()
	w := wallet(t, s, "w-ada", "10")
	boom := errors.New("boom")

	err := s.RunInTx(ctx, store.DefaultTxOptions(), func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.Wallets().IncrementBalance(ctx, w.ID, money("-10"))
		require.NoError(t, err)
		require.True(t, ok)
		_, err = tx.Wallets().AppendTransactionRef(ctx, w.ID, "SN-aborted")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	got, _, err := s.Wallets().FindByID(ctx, w.ID)
	require.NoError(t, err)
	assert.Equal(t, "10.00", got.Balance.StringFixed(2))
	assert.Empty(t, got.TransactionRefs)
}

func testSettleOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	ev := event(t, s, "EVT00001", domain.EventActive)
	ok, err := s.Events().IncrementAmount(ctx, ev.Code, money("10"))
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = s.Events().Settle(ctx, ev.Code, money("9"), t0)
	require.NoError(t, err)
	assert.False(t, ok, "stale amount must not settle")

	ok, err = s.Events().Settle(ctx, ev.Code, money("10"), t0)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Events().Settle(ctx, ev.Code, money("10"), t0)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.Events().Settle(ctx, ev.Code, decimal.Zero, t0)
	require.NoError(t, err)
	assert.False(t, ok)

	got, found, err := s.Events().FindByCode(ctx, ev.Code)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.EventCompleted, got.Status)
	assert.True(t, got.Amount.IsZero())
	assert.NotNil(t, got.FinishTime)
}

func testDepositsNeedActiveEvent(t *testing.T, s store.Store) {
	ctx := context.Background()
	ev := event(t, s, "EVT00002", domain.EventPending)

	ok, err := s.Events().IncrementAmount(ctx, ev.Code, money("5"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.Events().UpdateStatus(ctx, ev.Code, domain.EventPending, domain.EventActive, t0)
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = s.Events().UpdateStatus(ctx, ev.Code, domain.EventPending, domain.EventCancelled, t0)
	require.NoError(t, err)
	assert.False(t, ok, "status already moved on")

	ok, err = s.Events().IncrementAmount(ctx, ev.Code, money("5"))
	require.NoError(t, err)
	assert.True(t, ok)
	got, _, err := s.Events().FindByCode(ctx, ev.Code)
	require.NoError(t, err)
	assert.Equal(t, "5.00", got.Amount.StringFixed(2))
	assert.NotNil(t, got.StartedAt)
}

func testUpdateDetailsMatchesStatus(t *testing.T, s store.Store) {
	ctx := context.Background()
	ev := event(t, s, "EVT00003", domain.EventPending)
	start := t0.Add(48 * time.Hour)

	next := ev
	next.Name = "Saturday live"
	next.Visibility = domain.EventPrivate
	next.StartDate, next.IsScheduled = &start, true
	next.UpdatedAt = t0.Add(time.Minute)
	ok, err := s.Events().UpdateDetails(ctx, &next)
	require.NoError(t, err)
	assert.True(t, ok)

	got, _, err := s.Events().FindByCode(ctx, ev.Code)
	require.NoError(t, err)
	assert.Equal(t, "Saturday live", got.Name)
	assert.Equal(t, domain.EventPrivate, got.Visibility)
	require.NotNil(t, got.StartDate)
	assert.True(t, start.Equal(*got.StartDate))

	stale := next
	stale.Status = domain.EventActive
	stale.Name = "Stale"
	ok, err = s.Events().UpdateDetails(ctx, &stale)
	require.NoError(t, err)
	assert.False(t, ok)
}

func testSaveParticipantUpserts(t *testing.T, s store.Store) {
	ctx := context.Background()
	ev := event(t, s, "EVT00004", domain.EventActive)
	p := domain.Participant{UserID: "guest", WalletID: "w-guest", IsActive: true, Contributed: decimal.Zero, JoinedAt: t0.Add(time.Second)}

	require.NoError(t, s.Events().SaveParticipant(ctx, ev.Code, p))
	p.Contributed = money("7.5")
	p.IsActive = false
	require.NoError(t, s.Events().SaveParticipant(ctx, ev.Code, p))

	got, _, err := s.Events().FindByCode(ctx, ev.Code)
	require.NoError(t, err)
	require.Len(t, got.Participants, 2)
	guest, ok := got.Participant("guest")
	require.True(t, ok)
	assert.False(t, guest.IsActive)
	assert.Equal(t, "7.50", guest.Contributed.StringFixed(2))

	err = s.Events().SaveParticipant(ctx, "NOPE0000", p)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func testTransactionsNewestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()
	ids := ledger.NewIDGenerator()
	var want []string
	for i := range 3 {
		id, err := ids.New(domain.TransactionSend)
		require.NoError(t, err)
		at := t0.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.Transactions().Insert(ctx, &domain.Transaction{
			TransactionID: id,
			Type:          domain.TransactionSend,
			Amount:        money("1"),
			Currency:      "NGN",
			Status:        domain.PaymentSuccess,
			PaymentMethod: domain.PaymentMethodNA,
			Sender:        []string{"w-ada"},
			Recipient:     "w-bob",
			CreatedAt:     at,
			UpdatedAt:     at,
		}))
		want = append([]string{id}, want...)
	}
	other, err := ids.New(domain.TransactionFund)
	require.NoError(t, err)
	require.NoError(t, s.Transactions().Insert(ctx, &domain.Transaction{
		TransactionID: other, Type: domain.TransactionFund, Amount: money("1"), Currency: "NGN",
		Status: domain.PaymentPending, PaymentMethod: domain.PaymentMethodCard, Recipient: "w-carol",
		CreatedAt: t0.Add(time.Hour), UpdatedAt: t0.Add(time.Hour),
	}))

	page, total, err := s.Transactions().List(ctx, domain.TransactionFilter{WalletID: "w-ada", Limit: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, want[:2], []string{page[0].TransactionID, page[1].TransactionID})

	page, total, err = s.Transactions().List(ctx, domain.TransactionFilter{WalletID: "w-bob", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, want[2], page[0].TransactionID)
	assert.Equal(t, []string{"w-ada"}, page[0].Sender)

	_, total, err = s.Transactions().List(ctx, domain.TransactionFilter{Status: domain.PaymentPending})
	require.NoError(t, err)
	assert.EqualValues(t, 1, total)
}

func testTransactionStatusMovesOnce(t *testing.T, s store.Store) {
	ctx := context.Background()
	id, err := ledger.NewIDGenerator().New(domain.TransactionFund)
	require.NoError(t, err)
	require.NoError(t, s.Transactions().Insert(ctx, &domain.Transaction{
		TransactionID: id, Type: domain.TransactionFund, Reference: id, Amount: money("20"), Currency: "NGN",
		Status: domain.PaymentPending, PaymentMethod: domain.PaymentMethodCard, Recipient: "w-ada",
		CreatedAt: t0, UpdatedAt: t0,
	}))
	err = s.Transactions().Insert(ctx, &domain.Transaction{
		TransactionID: id, Type: domain.TransactionFund, Amount: money("20"), Currency: "NGN",
		Status: domain.PaymentPending, PaymentMethod: domain.PaymentMethodCard, Recipient: "w-ada",
		CreatedAt: t0, UpdatedAt: t0,
	})
	assert.ErrorIs(t, err, domain.ErrDuplicateKey)

	ok, err := s.Transactions().UpdateStatus(ctx, id, domain.PaymentPending, domain.PaymentSuccess)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.Transactions().UpdateStatus(ctx, id, domain.PaymentPending, domain.PaymentFailed)
	require.NoError(t, err)
	assert.False(t, ok)

	got, found, err := s.Transactions().FindByReference(ctx, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, domain.PaymentSuccess, got.Status)
}

func testUsersByUsername(t *testing.T, s store.Store) {
	ctx := context.Background()
	for _, name := range []string{"carol", "alice", "bob"} {
		require.NoError(t, s.Users().Upsert(ctx, domain.User{ID: "id-" + name, Username: name, Role: domain.RoleUser}))
	}
	require.NoError(t, s.Users().SetWalletID(ctx, "id-bob", "w-bob"))
	require.NoError(t, s.Users().Upsert(ctx, domain.User{ID: "id-bob", Username: "bob", Role: domain.RoleAdmin}))

	users, total, err := s.Users().List(ctx, 2, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	require.Len(t, users, 2)
	assert.Equal(t, "alice", users[0].Username)
	assert.Equal(t, "bob", users[1].Username)
	assert.Equal(t, domain.RoleAdmin, users[1].Role)
	assert.Equal(t, "w-bob", users[1].WalletID, "upsert keeps the wallet link")

	users, _, err = s.Users().List(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, "carol", users[0].Username)
}
